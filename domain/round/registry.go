package round

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/luca-patrignani/tair-protocol/domain/stake"
)

type entry struct {
	mu    sync.RWMutex
	round *Round
}

// Registry owns every Round and serializes mutations per round.
type Registry struct {
	mu     sync.RWMutex
	rounds map[uint64]*entry
	lastID uint64
	now    func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		rounds: make(map[uint64]*entry),
		now:    time.Now,
	}
}

// WithClock replaces the time source, used by tests and deadline sweeps.
func (reg *Registry) WithClock(now func() time.Time) *Registry {
	reg.now = now
	return reg
}

// Create allocates a new round and opens it for commitments.
//
// prepare runs under the registry lock before the round is published; if it
// fails the round is discarded and its ID is not consumed, so it must stay
// cheap. publish runs after the round is visible but before any other
// operation on it can proceed, holding only that round's lock.
func (reg *Registry) Create(sampleID uint64, creator stake.ParticipantID, pot stake.Amount, prepare func(*Round) error, publish func(*Round)) (*Round, error) {
	reg.mu.Lock()
	r := newRound(reg.lastID+1, sampleID, creator, pot, reg.now())
	if err := r.advance(Committing); err != nil {
		reg.mu.Unlock()
		return nil, err
	}
	if prepare != nil {
		if err := prepare(r); err != nil {
			reg.mu.Unlock()
			return nil, err
		}
	}
	e := &entry{round: r}
	e.mu.Lock()
	reg.lastID = r.ID
	reg.rounds[r.ID] = e
	reg.mu.Unlock()

	defer e.mu.Unlock()
	if publish != nil {
		publish(r.clone())
	}
	return r.clone(), nil
}

func (reg *Registry) lookup(id uint64) (*entry, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	e, ok := reg.rounds[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrRoundNotFound, id)
	}
	return e, nil
}

// Update applies fn to a copy of round id while holding the round lock.
// The copy replaces the stored round only if fn returns nil.
// Finalized rounds are immutable.
func (reg *Registry) Update(id uint64, fn func(r *Round, now time.Time) error) error {
	e, err := reg.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round.phase == Finalized {
		return fmt.Errorf("%w: round %d is finalized", ErrInvalidPhase, id)
	}
	working := e.round.clone()
	if err := fn(working, reg.now()); err != nil {
		return err
	}
	e.round = working
	return nil
}

// Get returns a copy of round id.
func (reg *Registry) Get(id uint64) (*Round, error) {
	e, err := reg.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.round.clone(), nil
}

// PhaseOf returns the current phase of round id.
func (reg *Registry) PhaseOf(id uint64) (Phase, error) {
	e, err := reg.lookup(id)
	if err != nil {
		return "", err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.round.phase, nil
}

// IDs returns the IDs of all rounds in creation order.
func (reg *Registry) IDs() []uint64 {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	ids := make([]uint64, 0, len(reg.rounds))
	for id := range reg.rounds {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// InPhase returns the IDs of the rounds currently in phase p.
func (reg *Registry) InPhase(p Phase) []uint64 {
	var out []uint64
	for _, id := range reg.IDs() {
		if ph, err := reg.PhaseOf(id); err == nil && ph == p {
			out = append(out, id)
		}
	}
	return out
}
