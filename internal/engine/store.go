package engine

import "colabcanvas/internal/models"

// objectStore is the local mirror of the room's objects: the single source of
// truth the rendering surface reads from. Invariant: every entry either
// exists in the remote store or is marked locally created and unconfirmed, so
// a creation never flickers out before the subscription catches up.
//
// Not self-locking: the owning Engine serializes access.
type objectStore struct {
	objects map[string]*models.CanvasObject

	// localCreated marks ids created here whose added notification has not
	// arrived yet.
	localCreated map[string]bool
}

func newObjectStore() *objectStore {
	return &objectStore{
		objects:      make(map[string]*models.CanvasObject),
		localCreated: make(map[string]bool),
	}
}

func (s *objectStore) Get(id string) (*models.CanvasObject, bool) {
	obj, ok := s.objects[id]
	return obj, ok
}

func (s *objectStore) Put(obj *models.CanvasObject) {
	s.objects[obj.ID] = obj
}

func (s *objectStore) Remove(id string) bool {
	if _, ok := s.objects[id]; !ok {
		return false
	}
	delete(s.objects, id)
	delete(s.localCreated, id)
	return true
}

func (s *objectStore) Len() int {
	return len(s.objects)
}

// All returns the objects in deterministic render order.
func (s *objectStore) All() []*models.CanvasObject {
	out := make([]*models.CanvasObject, 0, len(s.objects))
	for _, obj := range s.objects {
		out = append(out, obj)
	}
	sortRenderOrder(out)
	return out
}

func (s *objectStore) MarkLocalCreated(id string)  { s.localCreated[id] = true }
func (s *objectStore) ClearLocalCreated(id string) { delete(s.localCreated, id) }
func (s *objectStore) IsLocalCreated(id string) bool {
	return s.localCreated[id]
}
