package engine

import (
	"testing"
	"time"

	"colabcanvas/internal/models"

	"github.com/go-playground/assert/v2"
)

func zObj(id string, z int) *models.CanvasObject {
	return &models.CanvasObject{ID: id, Kind: models.KindRect, ZOrder: z}
}

func stack(zs ...int) []*models.CanvasObject {
	out := make([]*models.CanvasObject, len(zs))
	for i, z := range zs {
		out[i] = zObj(string(rune('a'+i)), z)
	}
	return out
}

func TestBringToFront(t *testing.T) {
	objs := stack(0, 1, 2)

	z, changed := ComputeNewZOrder(objs, "a", ReorderFront)
	assert.Equal(t, changed, true)
	assert.Equal(t, z, 3)

	// Already the maximum: no-op.
	z, changed = ComputeNewZOrder(objs, "c", ReorderFront)
	assert.Equal(t, changed, false)
	assert.Equal(t, z, 2)
}

func TestSendToBack(t *testing.T) {
	objs := stack(0, 1, 2)

	z, changed := ComputeNewZOrder(objs, "c", ReorderBack)
	assert.Equal(t, changed, true)
	assert.Equal(t, z, -1)

	_, changed = ComputeNewZOrder(objs, "a", ReorderBack)
	assert.Equal(t, changed, false)
}

func TestForwardAndBackwardStepOverNeighbor(t *testing.T) {
	objs := stack(0, 10, 20)

	z, changed := ComputeNewZOrder(objs, "a", ReorderForward)
	assert.Equal(t, changed, true)
	assert.Equal(t, z, 11) // next-higher neighbor is b at 10

	z, changed = ComputeNewZOrder(objs, "c", ReorderBackward)
	assert.Equal(t, changed, true)
	assert.Equal(t, z, 9)

	_, changed = ComputeNewZOrder(objs, "c", ReorderForward)
	assert.Equal(t, changed, false)
	_, changed = ComputeNewZOrder(objs, "a", ReorderBackward)
	assert.Equal(t, changed, false)
}

func TestReorderIdempotent(t *testing.T) {
	objs := stack(0, 1, 2)

	z1, c1 := ComputeNewZOrder(objs, "b", ReorderForward)
	z2, c2 := ComputeNewZOrder(objs, "b", ReorderForward)
	assert.Equal(t, c1, c2)
	assert.Equal(t, z1, z2)
}

func TestUnknownTargetIsNoop(t *testing.T) {
	_, changed := ComputeNewZOrder(stack(0, 1), "nope", ReorderFront)
	assert.Equal(t, changed, false)
}

func TestTieBreakDeterministic(t *testing.T) {
	base := time.Unix(1700000000, 0)
	a := zObj("a", 1)
	a.UpdatedAt = base.Add(time.Second)
	b := zObj("b", 1)
	b.UpdatedAt = base

	// Same zOrder: the older update renders below; id breaks exact ties.
	sorted := []*models.CanvasObject{a, b}
	sortRenderOrder(sorted)
	assert.Equal(t, sorted[0].ID, "b")
	assert.Equal(t, sorted[1].ID, "a")

	c := zObj("c", 1)
	c.UpdatedAt = base
	sorted = []*models.CanvasObject{c, b}
	sortRenderOrder(sorted)
	assert.Equal(t, sorted[0].ID, "b")
}

func TestBatchFrontPreservesRelativeOrder(t *testing.T) {
	objs := stack(0, 1, 2, 3) // a b c d

	got := ComputeBatchZOrder(objs, []string{"a", "c"}, ReorderFront)
	// Contiguous run above d (z=3), internal order a-before-c kept.
	assert.Equal(t, got["a"], 4)
	assert.Equal(t, got["c"], 5)
}

func TestBatchBackPreservesRelativeOrder(t *testing.T) {
	objs := stack(0, 1, 2, 3)

	got := ComputeBatchZOrder(objs, []string{"b", "d"}, ReorderBack)
	// Slotted below a (z=0) as b then d.
	assert.Equal(t, got["b"], -2)
	assert.Equal(t, got["d"], -1)
}

func TestBatchForwardStepsOverNextNonMember(t *testing.T) {
	objs := stack(0, 1, 2, 3)

	got := ComputeBatchZOrder(objs, []string{"a", "b"}, ReorderForward)
	// First non-member above the run is c (z=2).
	assert.Equal(t, got["a"], 3)
	assert.Equal(t, got["b"], 4)
}

func TestBatchBackwardStepsUnderNextNonMember(t *testing.T) {
	objs := stack(0, 1, 2, 3)

	got := ComputeBatchZOrder(objs, []string{"c", "d"}, ReorderBackward)
	// First non-member below the run is b (z=1); run sits just under it.
	assert.Equal(t, got["c"], -1)
	assert.Equal(t, got["d"], 0)
}

func TestBatchNoopWhenAlreadyPlaced(t *testing.T) {
	objs := stack(0, 1, 2, 3)

	assert.Equal(t, len(ComputeBatchZOrder(objs, []string{"c", "d"}, ReorderFront)), 0)
	assert.Equal(t, len(ComputeBatchZOrder(objs, []string{"a", "b"}, ReorderBack)), 0)
	// The whole canvas cannot move relative to itself.
	assert.Equal(t, len(ComputeBatchZOrder(objs, []string{"a", "b", "c", "d"}, ReorderFront)), 0)
	assert.Equal(t, len(ComputeBatchZOrder(objs, nil, ReorderFront)), 0)
}

func TestEngineReorderWritesAndUndoes(t *testing.T) {
	e, store, _, _ := newTestEngine(t,
		seedObject("a", models.KindRect, rectProps(0, 0), 0),
		seedObject("b", models.KindRect, rectProps(0, 0), 1),
		seedObject("c", models.KindRect, rectProps(0, 0), 2),
	)

	e.Reorder([]string{"a"}, ReorderFront)
	obj, _ := e.Object("a")
	assert.Equal(t, obj.ZOrder, 3)
	store.waitOps(t, "set", 1)
	assert.Equal(t, store.callsOf("set")[0].fields["zOrder"], 3)

	// The reorder echo is suppressed.
	assert.Equal(t, e.ledgerCount("a"), 1)

	e.Undo()
	obj, _ = e.Object("a")
	assert.Equal(t, obj.ZOrder, 0)

	// Batch reorder goes out as one atomic write and one undo step.
	e.Reorder([]string{"a", "b"}, ReorderFront)
	store.waitOps(t, "batch", 1)
	objA, _ := e.Object("a")
	objB, _ := e.Object("b")
	assert.Equal(t, objB.ZOrder, objA.ZOrder+1)

	e.Undo()
	objA, _ = e.Object("a")
	objB, _ = e.Object("b")
	assert.Equal(t, objA.ZOrder, 0)
	assert.Equal(t, objB.ZOrder, 1)
}

func TestEngineReorderNoopSendsNothing(t *testing.T) {
	e, store, _, _ := newTestEngine(t,
		seedObject("a", models.KindRect, rectProps(0, 0), 0),
		seedObject("b", models.KindRect, rectProps(0, 0), 1),
	)

	e.Reorder([]string{"b"}, ReorderFront)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, store.callCount(), 0)
	assert.Equal(t, e.CanUndo(), false)
}
