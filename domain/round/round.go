package round

import (
	"fmt"
	"time"

	"github.com/luca-patrignani/tair-protocol/domain/commitment"
	"github.com/luca-patrignani/tair-protocol/domain/stake"
)

func newRound(id, sampleID uint64, creator stake.ParticipantID, pot stake.Amount, now time.Time) *Round {
	return &Round{
		ID:          id,
		SampleID:    sampleID,
		Creator:     creator,
		Pot:         pot,
		phase:       Open,
		commitments: make(map[stake.ParticipantID]commitment.Digest),
		reveals:     make(map[stake.ParticipantID]Reveal),
		CreatedAt:   now,
	}
}

func (r *Round) Phase() Phase {
	return r.phase
}

// advance moves the round to next. Phases never move backwards.
func (r *Round) advance(next Phase) error {
	if next.order() <= r.phase.order() {
		return fmt.Errorf("%w: cannot move round %d from %s to %s", ErrInvalidPhase, r.ID, r.phase, next)
	}
	r.phase = next
	return nil
}

func (r *Round) requirePhase(op string, allowed ...Phase) error {
	for _, p := range allowed {
		if r.phase == p {
			return nil
		}
	}
	return fmt.Errorf("%w: %s not allowed while round %d is %s", ErrInvalidPhase, op, r.ID, r.phase)
}

// Commit records digest for participant. A participant that already committed
// overwrites its previous commitment but keeps its position in commit order.
func (r *Round) Commit(participant stake.ParticipantID, digest commitment.Digest) error {
	if err := r.requirePhase("commit", Committing); err != nil {
		return err
	}
	if digest.IsZero() {
		return fmt.Errorf("%w: empty digest", ErrInvalidCommitment)
	}
	if _, ok := r.commitments[participant]; !ok {
		r.commitOrder = append(r.commitOrder, participant)
	}
	r.commitments[participant] = digest
	return nil
}

// Reveal verifies and records the disclosure of participant. The first
// successful reveal moves the round to Revealing, closing commitments.
func (r *Round) Reveal(participant stake.ParticipantID, value uint64, salt commitment.Salt, now time.Time) error {
	if err := r.requirePhase("reveal", Committing, Revealing); err != nil {
		return err
	}
	digest, ok := r.commitments[participant]
	if !ok {
		return fmt.Errorf("%w: %s in round %d", ErrNoPriorCommitment, participant, r.ID)
	}
	if _, ok := r.reveals[participant]; ok {
		return fmt.Errorf("%w: %s in round %d", ErrAlreadyRevealed, participant, r.ID)
	}
	if !commitment.Verify(digest, value, salt) {
		return fmt.Errorf("%w: %s in round %d", ErrCommitmentMismatch, participant, r.ID)
	}
	r.reveals[participant] = Reveal{Value: value, Salt: salt, RevealedAt: now}
	if r.phase == Committing {
		r.RevealStartedAt = now
		return r.advance(Revealing)
	}
	return nil
}

// RevealsComplete reports whether every committed participant has revealed.
func (r *Round) RevealsComplete() bool {
	return r.phase == Revealing && len(r.reveals) == len(r.commitments)
}

// CloseReveals stops collecting reveals and waits for randomness.
func (r *Round) CloseReveals(now time.Time) error {
	if err := r.requirePhase("close reveals", Revealing); err != nil {
		return err
	}
	if len(r.reveals) == 0 {
		return fmt.Errorf("%w: round %d", ErrNoRevealers, r.ID)
	}
	r.RandomnessRequestedAt = now
	return r.advance(AwaitingRandomness)
}

// SetRandomness records the value delivered by the oracle. It can be set only once.
func (r *Round) SetRandomness(value uint64) error {
	if err := r.requirePhase("set randomness", AwaitingRandomness); err != nil {
		return err
	}
	if r.randomness != nil {
		return fmt.Errorf("%w: round %d", ErrRandomnessAlreadySet, r.ID)
	}
	r.randomness = &value
	return nil
}

// Finalize selects the winner among the revealers using randomValue and
// seals the round.
func (r *Round) Finalize(randomValue uint64, now time.Time) (stake.ParticipantID, error) {
	if err := r.requirePhase("finalize", AwaitingRandomness); err != nil {
		return "", err
	}
	eligible := r.Revealers()
	if len(eligible) == 0 {
		return "", fmt.Errorf("%w: round %d", ErrNoRevealers, r.ID)
	}
	winner := eligible[randomValue%uint64(len(eligible))]
	if r.randomness == nil {
		r.randomness = &randomValue
	}
	r.winner = &winner
	r.FinalizedAt = now
	if err := r.advance(Finalized); err != nil {
		return "", err
	}
	return winner, nil
}

// Committers returns the participants that committed, in commit order.
func (r *Round) Committers() []stake.ParticipantID {
	return append([]stake.ParticipantID(nil), r.commitOrder...)
}

// Revealers returns the participants with a verified reveal, in commit order.
func (r *Round) Revealers() []stake.ParticipantID {
	out := make([]stake.ParticipantID, 0, len(r.reveals))
	for _, p := range r.commitOrder {
		if _, ok := r.reveals[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *Round) CommitmentOf(participant stake.ParticipantID) (commitment.Digest, bool) {
	d, ok := r.commitments[participant]
	return d, ok
}

func (r *Round) RevealOf(participant stake.ParticipantID) (Reveal, bool) {
	rv, ok := r.reveals[participant]
	return rv, ok
}

func (r *Round) Randomness() (uint64, bool) {
	if r.randomness == nil {
		return 0, false
	}
	return *r.randomness, true
}

func (r *Round) Winner() (stake.ParticipantID, bool) {
	if r.winner == nil {
		return "", false
	}
	return *r.winner, true
}

// clone returns a deep copy of the round.
func (r *Round) clone() *Round {
	c := *r
	c.commitments = make(map[stake.ParticipantID]commitment.Digest, len(r.commitments))
	for k, v := range r.commitments {
		c.commitments[k] = v
	}
	c.reveals = make(map[stake.ParticipantID]Reveal, len(r.reveals))
	for k, v := range r.reveals {
		c.reveals[k] = v
	}
	c.commitOrder = append([]stake.ParticipantID(nil), r.commitOrder...)
	if r.randomness != nil {
		v := *r.randomness
		c.randomness = &v
	}
	if r.winner != nil {
		w := *r.winner
		c.winner = &w
	}
	return &c
}
