package stake

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientStake = errors.New("insufficient stake")
)

// ParticipantID identifies a participant (e.g. an account address).
type ParticipantID string

// Amount is a quantity of stake expressed in base units.
type Amount uint64

type Ledger struct {
	mu       sync.RWMutex
	balances map[ParticipantID]Amount
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[ParticipantID]Amount)}
}

// Deposit adds amount to the balance of participant and returns the new balance.
// Repeated deposits accumulate.
func (l *Ledger) Deposit(participant ParticipantID, amount Amount) (Amount, error) {
	if amount == 0 {
		return 0, fmt.Errorf("%w: deposit must be positive", ErrInvalidAmount)
	}
	if participant == "" {
		return 0, fmt.Errorf("%w: empty participant", ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.balances[participant]
	if current > math.MaxUint64-amount {
		return current, fmt.Errorf("%w: balance of %s would overflow", ErrInvalidAmount, participant)
	}
	l.balances[participant] = current + amount
	return current + amount, nil
}

// BalanceOf returns the current stake of participant, 0 if it never deposited.
func (l *Ledger) BalanceOf(participant ParticipantID) Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[participant]
}

func (l *Ledger) HasMinimumStake(participant ParticipantID, threshold Amount) bool {
	return l.BalanceOf(participant) >= threshold
}

// Participants returns every participant that ever deposited, sorted by id.
func (l *Ledger) Participants() []ParticipantID {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]ParticipantID, 0, len(l.balances))
	for id := range l.balances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
