// Package session implements the at-most-one-owner invariant over a
// bidirectional message channel: a single slot holding the current
// owner's freshness token, takeover, and the freshness check every
// owner-authored intent must pass before the State Synchronizer applies
// it.
package session

import (
	"sync"
	"time"

	"github.com/sekiba/kifuroom/pkg/idgen"
	"go.uber.org/atomic"
)

// Token identifies one owner generation. A message is authored by the
// current owner iff both fields match the live slot.
type Token struct {
	SessionID  string
	OwnerToken string
}

// Slot is the live, process-wide owner state.
type Slot struct {
	Token
	Since time.Time
}

func (s Slot) empty() bool { return s.SessionID == "" }

// Manager guards the owner slot. Only the State Synchronizer task calls
// its mutating methods; Grant/Takeover/Clear are meant to be called from
// that single goroutine, matching the teacher's "no locks needed outside
// the owning goroutine" convention -- the mutex here makes the read
// methods (Current, IsOwner, IsEmpty) safe to call from other goroutines.
type Manager struct {
	mu   sync.Mutex
	slot Slot

	// generation counts Grant/Takeover calls. The freshness check itself
	// still compares the unguessable Token, not this counter -- Generation
	// exists for callers (e.g. a connection log) that want a cheap ordinal
	// rather than a string compare.
	generation atomic.Uint64
}

// New returns a Manager with an empty owner slot.
func New() *Manager {
	return &Manager{}
}

// Current returns a snapshot of the owner slot. Zero value means empty.
func (m *Manager) Current() Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slot
}

// Grant installs a fresh owner if the slot is empty and returns the new
// token. ok is false if the slot was already occupied -- the caller
// should respond session:busy rather than session:granted.
func (m *Manager) Grant() (Slot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.slot.empty() {
		return m.slot, false
	}
	m.slot = Slot{
		Token: Token{SessionID: idgen.New(), OwnerToken: idgen.New()},
		Since: time.Now(),
	}
	m.generation.Add(1)
	return m.slot, true
}

// Takeover installs a new owner unconditionally, returning the evicted
// slot (empty if there was none) and the new slot.
func (m *Manager) Takeover() (evicted, granted Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted = m.slot
	m.slot = Slot{
		Token: Token{SessionID: idgen.New(), OwnerToken: idgen.New()},
		Since: time.Now(),
	}
	m.generation.Add(1)
	return evicted, m.slot
}

// Generation counts how many times the slot has been granted or taken
// over, starting at 0 for a fresh Manager.
func (m *Manager) Generation() uint64 {
	return m.generation.Load()
}

// Clear empties the slot, e.g. on owner disconnect. Returns the slot that
// was cleared (empty if already empty).
func (m *Manager) Clear() Slot {
	m.mu.Lock()
	defer m.mu.Unlock()

	cleared := m.slot
	m.slot = Slot{}
	return cleared
}

// IsOwner reports whether tok matches the live slot exactly. A zero Token
// never matches, even against an empty slot.
func (m *Manager) IsOwner(tok Token) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return !m.slot.empty() && m.slot.Token == tok
}

// IsEmpty reports whether there is currently no owner.
func (m *Manager) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slot.empty()
}
