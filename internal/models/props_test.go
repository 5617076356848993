package models

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestValidKind(t *testing.T) {
	assert.Equal(t, ValidKind(KindRect), true)
	assert.Equal(t, ValidKind(KindSticky), true)
	assert.Equal(t, ValidKind(ObjectKind("triangle")), false)
	assert.Equal(t, ValidKind(ObjectKind("")), false)
}

func TestValidPropPerKind(t *testing.T) {
	// Common fields exist for every kind.
	assert.Equal(t, ValidProp(KindLine, "left"), true)
	assert.Equal(t, ValidProp(KindText, "opacity"), true)

	// Kind-specific fields stay with their kind.
	assert.Equal(t, ValidProp(KindCircle, "radius"), true)
	assert.Equal(t, ValidProp(KindLine, "radius"), false)
	assert.Equal(t, ValidProp(KindSticky, "noteColor"), true)
	assert.Equal(t, ValidProp(KindText, "noteColor"), false)
}

func TestFilterPropsDropsUnknownFields(t *testing.T) {
	got := FilterProps(KindRect, map[string]any{
		"left":   10.0,
		"rx":     4.0,
		"radius": 99.0, // circle-only
		"bogus":  true,
	})

	assert.Equal(t, got, map[string]any{"left": 10.0, "rx": 4.0})
}

func TestFilterPropsCopies(t *testing.T) {
	in := map[string]any{"left": 1.0}
	got := FilterProps(KindRect, in)
	got["left"] = 2.0
	assert.Equal(t, in["left"], 1.0)
}

func TestCloneIsDeep(t *testing.T) {
	obj := &CanvasObject{ID: "a", Kind: KindRect, Props: map[string]any{"left": 1.0}}
	cp := obj.Clone()
	cp.Props["left"] = 5.0
	assert.Equal(t, obj.Props["left"], 1.0)
}
