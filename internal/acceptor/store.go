package acceptor

import (
	"sync"

	"github.com/kelvinbranch/paxcast/internal/wire"
)

// record is the per-instance state an acceptor remembers. Acceptors are
// volatile by design: there is no on-disk form of this, only the
// in-process Store below. A restart loses every record; acceptors are
// fail-stop, not fail-recover.
type record struct {
	rnd     wire.Round
	vRnd    wire.Round
	vVal    []byte
	hasVVal bool
	decSeq  wire.Seq
	decVal  []byte
	hasDec  bool
}

// Store is the per-instance acceptor state store, keyed by instance since
// paxcast runs many concurrent Paxos instances rather than one.
type Store interface {
	// Exists reports whether inst has ever been touched by a PREPARE or
	// ACCEPT-REQUEST. ACCEPT-REQUEST handling must check this before
	// Load, since (unlike PREPARE) it must drop rather than implicitly
	// create state for an instance this acceptor never promised on.
	Exists(inst wire.Instance) bool

	// Load returns the record for inst, creating
	// {rnd: Round{0, selfID}} if this is the first time inst is seen.
	Load(inst wire.Instance, selfID int) record

	// SavePromise persists that inst has promised rnd.
	SavePromise(inst wire.Instance, rnd wire.Round)

	// SaveAccepted persists that inst accepted (rnd, val) and, if this is
	// the first accept for inst, also the decision (seq, val) used to
	// answer catch-up requests.
	SaveAccepted(inst wire.Instance, rnd wire.Round, val []byte, seq wire.Seq)

	// Decision returns the first-accepted (seq, value) for inst, if any.
	Decision(inst wire.Instance) (seq wire.Seq, val []byte, ok bool)
}

// MemoryStore is the only Store implementation: acceptor state is
// explicitly volatile, so there is nothing to persist to disk. It
// defensively copies byte slices in and out so callers can't mutate
// internal state through a returned or passed-in slice.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[wire.Instance]*record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[wire.Instance]*record)}
}

func (m *MemoryStore) Exists(inst wire.Instance) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[inst]
	return ok
}

func (m *MemoryStore) Load(inst wire.Instance, selfID int) record {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[inst]
	if !ok {
		r = &record{rnd: wire.Round{Counter: 0, NodeID: selfID}}
		m.records[inst] = r
	}
	return copyRecord(r)
}

func (m *MemoryStore) SavePromise(inst wire.Instance, rnd wire.Round) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.mustRecord(inst)
	r.rnd = rnd
}

func (m *MemoryStore) SaveAccepted(inst wire.Instance, rnd wire.Round, val []byte, seq wire.Seq) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.mustRecord(inst)
	r.rnd = rnd
	r.vRnd = rnd
	r.vVal = cloneBytes(val)
	r.hasVVal = true
	if !r.hasDec {
		r.decSeq = seq
		r.decVal = cloneBytes(val)
		r.hasDec = true
	}
}

func (m *MemoryStore) Decision(inst wire.Instance) (wire.Seq, []byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[inst]
	if !ok || !r.hasDec {
		return wire.Seq{}, nil, false
	}
	return r.decSeq, cloneBytes(r.decVal), true
}

// mustRecord returns the existing record for inst, or creates a zero-value
// one. The only callers are SavePromise/SaveAccepted, which overwrite rnd
// immediately after, so the zero value here is never observed; Load is what
// establishes a record's initial {0, selfID} round. Callers hold m.mu already.
func (m *MemoryStore) mustRecord(inst wire.Instance) *record {
	r, ok := m.records[inst]
	if !ok {
		r = &record{}
		m.records[inst] = r
	}
	return r
}

func copyRecord(r *record) record {
	out := *r
	out.vVal = cloneBytes(r.vVal)
	out.decVal = cloneBytes(r.decVal)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
