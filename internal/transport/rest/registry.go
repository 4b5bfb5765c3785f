package rest

import (
	"context"
	"sync"

	"github.com/roach88/qflow/internal/engine"
	"github.com/roach88/qflow/internal/ir"
	"github.com/roach88/qflow/internal/store"
)

// entry serialises access to one session. engine.Session is single-writer,
// so every handler touching it holds mu.
type entry struct {
	mu       sync.Mutex
	session  *engine.Session
	recorder *store.Recorder // nil without a store
}

func (e *entry) processAnswer(ctx context.Context, questionID string, value ir.Value, final bool) (engine.Snapshot, error) {
	if e.recorder != nil {
		return e.recorder.ProcessAnswer(ctx, questionID, value, final)
	}
	return e.session.ProcessAnswer(questionID, value, final)
}

func (e *entry) addGroupInstance(ctx context.Context, groupID string) (engine.Snapshot, error) {
	if e.recorder != nil {
		return e.recorder.AddGroupInstance(ctx, groupID)
	}
	return e.session.AddGroupInstance(groupID)
}

func (e *entry) removeGroupInstance(ctx context.Context, groupID string) (engine.Snapshot, error) {
	if e.recorder != nil {
		return e.recorder.RemoveGroupInstance(ctx, groupID)
	}
	return e.session.RemoveGroupInstance(groupID)
}

func (e *entry) reset(ctx context.Context) (engine.Snapshot, error) {
	if e.recorder != nil {
		return e.recorder.Reset(ctx)
	}
	return e.session.Reset(), nil
}

type registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*entry)}
}

func (r *registry) get(id string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e, ok
}

// add stores e unless an entry for id already exists, and returns the
// entry that won.
func (r *registry) add(id string, e *entry) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[id]; ok {
		return existing
	}
	r.entries[id] = e
	return e
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
