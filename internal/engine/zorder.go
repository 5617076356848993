package engine

import (
	"sort"

	"colabcanvas/internal/models"
)

// ReorderAction names the four stacking moves.
type ReorderAction string

const (
	ReorderForward  ReorderAction = "forward"
	ReorderBackward ReorderAction = "backward"
	ReorderFront    ReorderAction = "front"
	ReorderBack     ReorderAction = "back"
)

// sortRenderOrder sorts ascending by zOrder, ties broken by (updatedAt, id)
// ascending so every client renders the same stacking regardless of the
// wall-clock order it received updates in.
func sortRenderOrder(objs []*models.CanvasObject) {
	sort.SliceStable(objs, func(i, j int) bool {
		a, b := objs[i], objs[j]
		if a.ZOrder != b.ZOrder {
			return a.ZOrder < b.ZOrder
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
}

// ComputeNewZOrder returns the target's new zOrder for a single-object
// reorder. The second return is false when the request is a no-op (already
// at the requested edge, or the target is unknown).
func ComputeNewZOrder(objects []*models.CanvasObject, targetID string, action ReorderAction) (int, bool) {
	sorted := make([]*models.CanvasObject, len(objects))
	copy(sorted, objects)
	sortRenderOrder(sorted)

	idx := -1
	for i, obj := range sorted {
		if obj.ID == targetID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, false
	}
	target := sorted[idx]

	switch action {
	case ReorderFront:
		// No-op when the target already holds the maximum zOrder, even if a
		// tie-break renders another object above it.
		if target.ZOrder == sorted[len(sorted)-1].ZOrder {
			return target.ZOrder, false
		}
		return sorted[len(sorted)-1].ZOrder + 1, true
	case ReorderBack:
		if target.ZOrder == sorted[0].ZOrder {
			return target.ZOrder, false
		}
		return sorted[0].ZOrder - 1, true
	case ReorderForward:
		if idx == len(sorted)-1 {
			return target.ZOrder, false
		}
		return sorted[idx+1].ZOrder + 1, true
	case ReorderBackward:
		if idx == 0 {
			return target.ZOrder, false
		}
		return sorted[idx-1].ZOrder - 1, true
	}
	return target.ZOrder, false
}

// ComputeBatchZOrder re-slots the targeted subset as one contiguous run,
// preserving its internal relative order, and returns the new zOrder per
// target id. An empty map means the request was a no-op.
func ComputeBatchZOrder(objects []*models.CanvasObject, targetIDs []string, action ReorderAction) map[string]int {
	want := make(map[string]bool, len(targetIDs))
	for _, id := range targetIDs {
		want[id] = true
	}

	sorted := make([]*models.CanvasObject, len(objects))
	copy(sorted, objects)
	sortRenderOrder(sorted)

	var members, others []*models.CanvasObject
	for _, obj := range sorted {
		if want[obj.ID] {
			members = append(members, obj)
		} else {
			others = append(others, obj)
		}
	}
	if len(members) == 0 {
		return map[string]int{}
	}
	if len(others) == 0 {
		// The subset is the whole canvas; any move is a no-op.
		return map[string]int{}
	}

	assign := func(start int) map[string]int {
		out := make(map[string]int, len(members))
		for i, obj := range members {
			out[obj.ID] = start + i
		}
		return out
	}

	// Index of the first/last member within the full sorted order.
	firstMember, lastMember := -1, -1
	for i, obj := range sorted {
		if want[obj.ID] {
			if firstMember < 0 {
				firstMember = i
			}
			lastMember = i
		}
	}
	contiguous := lastMember-firstMember+1 == len(members)

	switch action {
	case ReorderFront:
		if contiguous && lastMember == len(sorted)-1 {
			return map[string]int{}
		}
		return assign(others[len(others)-1].ZOrder + 1)
	case ReorderBack:
		if contiguous && firstMember == 0 {
			return map[string]int{}
		}
		return assign(others[0].ZOrder - len(members))
	case ReorderForward:
		// Neighbor: first non-member stacked above the highest member.
		var neighbor *models.CanvasObject
		for i := lastMember + 1; i < len(sorted); i++ {
			if !want[sorted[i].ID] {
				neighbor = sorted[i]
				break
			}
		}
		if neighbor == nil {
			return map[string]int{}
		}
		return assign(neighbor.ZOrder + 1)
	case ReorderBackward:
		// Neighbor: first non-member stacked below the lowest member.
		var neighbor *models.CanvasObject
		for i := firstMember - 1; i >= 0; i-- {
			if !want[sorted[i].ID] {
				neighbor = sorted[i]
				break
			}
		}
		if neighbor == nil {
			return map[string]int{}
		}
		return assign(neighbor.ZOrder - len(members))
	}
	return map[string]int{}
}
