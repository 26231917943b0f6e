package delivery

import (
	"context"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MemoryStore implements the Store interface for testing and local
// development. Transitions are serialized by a mutex, which gives the same
// isolation guarantee a real document store provides per-document.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[bson.ObjectID]*Delivery
	known   map[bson.ObjectID]struct{}

	// Observability metrics
	transitionsApplied atomic.Int64
}

// MemoryStoreStats provides observability metrics for monitoring and debugging.
type MemoryStoreStats struct {
	Documents          int   // Current number of known documents
	TransitionsApplied int64 // Total number of committed transitions
}

// NewMemoryStore creates a new in-memory store implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[bson.ObjectID]*Delivery),
		known:   make(map[bson.ObjectID]struct{}),
	}
}

// CreateDocument registers a document without a delivery record, the state a
// freshly created message document is in before Initialize claims it.
func (ms *MemoryStore) CreateDocument(id bson.ObjectID) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.known[id] = struct{}{}
}

// Seed registers a document with an existing delivery record.
func (ms *MemoryStore) Seed(id bson.ObjectID, d *Delivery) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.known[id] = struct{}{}
	if d == nil {
		delete(ms.records, id)
		return
	}
	record := *d
	ms.records[id] = &record
}

// Get returns a copy of the document's delivery record, or nil when the
// document exists but has not been claimed yet.
func (ms *MemoryStore) Get(id bson.ObjectID) (*Delivery, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if _, ok := ms.known[id]; !ok {
		return nil, false
	}
	record, ok := ms.records[id]
	if !ok {
		return nil, true
	}
	copied := *record
	return &copied, true
}

// Delete removes a document entirely.
func (ms *MemoryStore) Delete(id bson.ObjectID) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.known, id)
	delete(ms.records, id)
}

// Transition implements the Store interface. The callback observes a copy of
// the current record so an aborted transition cannot leak partial mutations.
func (ms *MemoryStore) Transition(ctx context.Context, id bson.ObjectID, fn TransitionFunc) (*Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.known[id]; !ok {
		return nil, ErrDocumentNotFound
	}

	var current *Delivery
	if record, ok := ms.records[id]; ok {
		copied := *record
		current = &copied
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	stored := *next
	ms.records[id] = &stored
	ms.transitionsApplied.Add(1)

	result := *next
	return &result, nil
}

// Stats returns current store statistics for observability and monitoring.
// This method is thread-safe and can be called at any time.
func (ms *MemoryStore) Stats() MemoryStoreStats {
	ms.mu.RLock()
	documents := len(ms.known)
	ms.mu.RUnlock()

	return MemoryStoreStats{
		Documents:          documents,
		TransitionsApplied: ms.transitionsApplied.Load(),
	}
}
