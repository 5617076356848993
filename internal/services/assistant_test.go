package services

import (
	"testing"

	"colabcanvas/internal/models"

	"github.com/go-playground/assert/v2"
)

func TestParseShapePlan(t *testing.T) {
	plans, err := parseShapePlan(`[{"kind":"rect","props":{"left":10,"top":20}}]`)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(plans), 1)
	assert.Equal(t, plans[0].Kind, models.KindRect)
	assert.Equal(t, plans[0].Props["left"], 10.0)
}

func TestParseShapePlanStripsFences(t *testing.T) {
	reply := "```json\n[{\"kind\":\"sticky\",\"props\":{\"text\":\"hi\"}}]\n```"
	plans, err := parseShapePlan(reply)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(plans), 1)
	assert.Equal(t, plans[0].Kind, models.KindSticky)
}

func TestParseShapePlanRejectsPlainProse(t *testing.T) {
	_, err := parseShapePlan("Sure! Here are your shapes.")
	assert.NotEqual(t, err, nil)
}
