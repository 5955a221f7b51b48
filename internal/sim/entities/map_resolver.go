package entities

import (
	"fmt"

	"github.com/sasha-s/go-deadlock"
)

// MapResolver is the in-memory Registry used by tests and by sessions
// that run without an index database.
type MapResolver struct {
	mu     deadlock.RWMutex
	byID   map[ID]Handle
	byH    map[Handle]ID
	kinds  map[Handle]Kind
	nextID Handle
}

func NewMapResolver() *MapResolver {
	r := &MapResolver{}
	r.resetLocked()
	return r
}

func (r *MapResolver) resetLocked() {
	r.byID = map[ID]Handle{}
	r.byH = map[Handle]ID{}
	r.kinds = map[Handle]Kind{}
	r.nextID = 1
}

func (r *MapResolver) Resolve(id ID) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byID[id]
	return h, ok
}

func (r *MapResolver) ChainID(h Handle) (ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byH[h]
	return id, ok
}

func (r *MapResolver) Kind(h Handle) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[h]
	return k, ok
}

// Register is idempotent: a known id keeps its handle.
func (r *MapResolver) Register(id ID, kind Kind) (Handle, error) {
	if id.IsZero() {
		return 0, fmt.Errorf("register: zero entity id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.byID[id]; ok {
		return h, nil
	}
	h := r.nextID
	r.nextID++
	r.byID[id] = h
	r.byH[h] = id
	r.kinds[h] = kind
	return h, nil
}

func (r *MapResolver) Remove(id ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("remove: %w: %s", ErrUnresolvableEntity, id)
	}
	delete(r.byID, id)
	delete(r.byH, h)
	delete(r.kinds, h)
	return nil
}

func (r *MapResolver) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
	return nil
}
