// Package object implements the managed-object store: every proxy and
// stub is addressed by a 32-bit id, owned by a
// single Store, with per-object call-reference counting that gates
// destruction until every in-flight handler has completed.
package object

import (
	"fmt"
	"sync"

	"github.com/parasvc/fabric/pkg/metrics"
)

// BackendObjectID is the reserved id of the backend object.
const BackendObjectID uint32 = 0

// firstGeneratedID is the first id handed out by Store.GenerateObjectID.
// It sits well above BackendObjectID so generated ids never collide with it.
const firstGeneratedID uint32 = 1000

// ID identifies a managed object within a single transport connection.
type ID = uint32

// Handler is a managed object: something the Manager can route an inbound
// frame to once its id has been resolved to a live, non-destroyed entry in
// the Store. Implementations are stubs (decode call, invoke target, encode
// reply) or proxies (decode reply, resolve a pending future).
type Handler interface {
	// HandleMessage is invoked with the frame body positioned past the
	// leading object id. It must not block on anything that could itself
	// require re-entering the Store: never hold more than one object's
	// meta-mutex at a time.
	HandleMessage(body []byte) error
}

// ErrDuplicateID is returned by Add when id is already present in the store.
type ErrDuplicateID struct{ ID ID }

func (e *ErrDuplicateID) Error() string { return fmt.Sprintf("object: duplicate id %d", e.ID) }

// ErrNotFound is returned by Get/GetMeta when id has no entry.
type ErrNotFound struct{ ID ID }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("object: no object with id %d", e.ID) }

// ErrGone is returned by a CallGuard acquisition when the object is known
// but has already been marked for destruction.
type ErrGone struct{ ID ID }

func (e *ErrGone) Error() string { return fmt.Sprintf("object: object %d gone", e.ID) }

// Meta is the per-object bookkeeping record backing the call-counter
// protocol. It is created once per object and never
// replaced, so holding a *Meta across a Store mutation remains valid.
type Meta struct {
	mu              sync.Mutex
	cond            *sync.Cond
	callCount       int
	markedToDestroy bool
}

func newMeta() *Meta {
	m := &Meta{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// MarkedToDestroy reports whether the object has been marked for removal.
func (m *Meta) MarkedToDestroy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markedToDestroy
}

// CallGuard is held for the duration of one dispatched call. Release must be
// called exactly once, typically via defer immediately after acquisition
// succeeds.
type CallGuard struct {
	meta *Meta
}

// acquire implements the call-counter protocol: increment under the
// mutex, re-check the destroy flag, and only then allow dispatch.
func (m *Meta) acquire() (*CallGuard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markedToDestroy {
		return nil, fmt.Errorf("object: marked to destroy")
	}
	m.callCount++
	if m.markedToDestroy {
		m.callCount--
		if m.callCount == 0 {
			m.cond.Broadcast()
		}
		return nil, fmt.Errorf("object: marked to destroy")
	}
	return &CallGuard{meta: m}, nil
}

// Release decrements the call counter and wakes any destroyer waiting for it
// to reach zero.
func (g *CallGuard) Release() {
	m := g.meta
	m.mu.Lock()
	m.callCount--
	if m.callCount == 0 {
		m.cond.Broadcast()
	}
	m.mu.Unlock()
}

func (m *Meta) markAndWait() {
	m.mu.Lock()
	m.markedToDestroy = true
	for m.callCount > 0 {
		m.cond.Wait()
	}
	m.mu.Unlock()
}

type entry struct {
	handler Handler
	meta    *Meta
}

// Store owns the set of managed objects for one transport connection. All
// operations are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	objects map[ID]entry
	nextID  uint32

	metrics    *metrics.Collectors
	connection string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		objects: make(map[ID]entry),
		nextID:  firstGeneratedID,
	}
}

// SetMetrics wires Collectors into this store, labeled under connection.
// Every size-changing operation after this call reports the current object
// count. A nil collectors is a valid no-op wiring.
func (s *Store) SetMetrics(m *metrics.Collectors, connection string) {
	s.mu.Lock()
	s.metrics = m
	s.connection = connection
	s.mu.Unlock()
	s.reportSize()
}

// reportSize must be called without s.mu held.
func (s *Store) reportSize() {
	s.mu.Lock()
	m, conn, n := s.metrics, s.connection, len(s.objects)
	s.mu.Unlock()
	m.SetObjectStoreSize(conn, n)
}

// GenerateObjectID returns a fresh id, never reused within this Store's
// lifetime.
func (s *Store) GenerateObjectID() ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	return id
}

// Add inserts handler under id. Duplicate ids are rejected.
func (s *Store) Add(id ID, handler Handler) error {
	s.mu.Lock()
	if _, ok := s.objects[id]; ok {
		s.mu.Unlock()
		return &ErrDuplicateID{ID: id}
	}
	s.objects[id] = entry{handler: handler, meta: newMeta()}
	s.mu.Unlock()
	s.reportSize()
	return nil
}

// Get returns the handler registered under id.
func (s *Store) Get(id ID) (Handler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.objects[id]
	if !ok {
		return nil, &ErrNotFound{ID: id}
	}
	return e.handler, nil
}

// GetMeta returns the call-reference meta record for id.
func (s *Store) GetMeta(id ID) (*Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.objects[id]
	if !ok {
		return nil, &ErrNotFound{ID: id}
	}
	return e.meta, nil
}

// Remove atomically erases id, if present. It does not wait for in-flight
// calls; callers that need destruction-safety should use Destroy.
func (s *Store) Remove(id ID) {
	s.mu.Lock()
	delete(s.objects, id)
	s.mu.Unlock()
	s.reportSize()
}

// RemoveWhere erases every entry whose id satisfies predicate.
func (s *Store) RemoveWhere(predicate func(ID) bool) {
	s.mu.Lock()
	for id := range s.objects {
		if predicate(id) {
			delete(s.objects, id)
		}
	}
	s.mu.Unlock()
	s.reportSize()
}

// HasGeneratedObjects reports whether any non-backend object remains.
func (s *Store) HasGeneratedObjects() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.objects {
		if id != BackendObjectID {
			return true
		}
	}
	return false
}

// Find performs a linear scan, returning the first id/handler pair for which
// predicate returns true, or ok == false if none match.
func (s *Store) Find(predicate func(ID, Handler) bool) (id ID, handler Handler, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.objects {
		if predicate(i, e.handler) {
			return i, e.handler, true
		}
	}
	return 0, nil, false
}

// Acquire looks up id and, if present and not marked to destroy, increments
// its call counter and returns a guard. This is the dispatch-time operation
// used by Manager before calling a handler's HandleMessage.
func (s *Store) Acquire(id ID) (Handler, *CallGuard, error) {
	s.mu.Lock()
	e, ok := s.objects[id]
	s.mu.Unlock()
	if !ok {
		return nil, nil, &ErrNotFound{ID: id}
	}
	guard, err := e.meta.acquire()
	if err != nil {
		return nil, nil, &ErrGone{ID: id}
	}
	return e.handler, guard, nil
}

// Destroy marks id for destruction, waits for every in-flight call
// referencing it to finish, and then removes it from the store. Once marked,
// Acquire on id fails immediately for any new call.
func (s *Store) Destroy(id ID) error {
	meta, err := s.GetMeta(id)
	if err != nil {
		return err
	}
	meta.markAndWait()
	s.Remove(id)
	return nil
}

// CloseAll marks and removes every object in the store, waiting for
// in-flight calls to drain first. Used when a transport closes: every
// generated object on that connection is marked destroyed.
func (s *Store) CloseAll() {
	s.mu.Lock()
	ids := make([]ID, 0, len(s.objects))
	for id := range s.objects {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		_ = s.Destroy(id)
	}
}
