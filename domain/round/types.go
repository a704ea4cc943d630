package round

import (
	"errors"
	"time"

	"github.com/luca-patrignani/tair-protocol/domain/commitment"
	"github.com/luca-patrignani/tair-protocol/domain/stake"
)

var (
	ErrRoundNotFound        = errors.New("round not found")
	ErrInvalidPhase         = errors.New("invalid phase")
	ErrInvalidCommitment    = errors.New("invalid commitment")
	ErrNoPriorCommitment    = errors.New("no prior commitment")
	ErrCommitmentMismatch   = errors.New("commitment mismatch")
	ErrAlreadyRevealed      = errors.New("already revealed")
	ErrRandomnessAlreadySet = errors.New("randomness already set")
	ErrNoRevealers          = errors.New("no valid reveals")
)

type Phase string

const (
	Open               Phase = "open"
	Committing         Phase = "committing"
	Revealing          Phase = "revealing"
	AwaitingRandomness Phase = "awaiting_randomness"
	Finalized          Phase = "finalized"
)

var phases = []Phase{Open, Committing, Revealing, AwaitingRandomness, Finalized}

// order returns the position of p in the lifecycle, -1 if p is unknown.
func (p Phase) order() int {
	for i, q := range phases {
		if p == q {
			return i
		}
	}
	return -1
}

// Reveal is a verified disclosure of a committed value.
type Reveal struct {
	Value      uint64
	Salt       commitment.Salt
	RevealedAt time.Time
}

type Round struct {
	ID       uint64
	SampleID uint64
	Creator  stake.ParticipantID
	Pot      stake.Amount // creation payment

	phase       Phase
	commitments map[stake.ParticipantID]commitment.Digest
	commitOrder []stake.ParticipantID
	reveals     map[stake.ParticipantID]Reveal
	randomness  *uint64
	winner      *stake.ParticipantID

	CreatedAt             time.Time
	RevealStartedAt       time.Time
	RandomnessRequestedAt time.Time
	FinalizedAt           time.Time
}
