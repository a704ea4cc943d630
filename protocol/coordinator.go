package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/luca-patrignani/tair-protocol/config"
	"github.com/luca-patrignani/tair-protocol/domain/commitment"
	"github.com/luca-patrignani/tair-protocol/domain/round"
	"github.com/luca-patrignani/tair-protocol/domain/stake"
	"github.com/luca-patrignani/tair-protocol/oracle"
)

// errUnchanged aborts a registry update that has nothing to do.
var errUnchanged = errors.New("round unchanged")

// Coordinator exposes the protocol operations and wires stakes, rounds and
// the randomness oracle together.
type Coordinator struct {
	cfg    config.Config
	stakes *stake.Ledger
	rounds *round.Registry
	oracle *oracle.Client
	sinks  []EventSink
	log    *slog.Logger

	mu      sync.Mutex
	overdue map[uint64]bool
}

func NewCoordinator(cfg config.Config, stakes *stake.Ledger, rounds *round.Registry, client *oracle.Client, log *slog.Logger, sinks ...EventSink) *Coordinator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		cfg:     cfg,
		stakes:  stakes,
		rounds:  rounds,
		oracle:  client,
		sinks:   sinks,
		log:     log,
		overdue: make(map[uint64]bool),
	}
}

func (c *Coordinator) emit(e Event) {
	c.log.Info("event", "type", e.Type, "round", e.RoundID, "winner", e.Winner)
	for _, s := range c.sinks {
		if err := s.Emit(e); err != nil {
			c.log.Error("event sink failed", "type", e.Type, "round", e.RoundID, "err", err)
		}
	}
}

// AddStake credits value to participant and returns the new balance.
func (c *Coordinator) AddStake(participant stake.ParticipantID, value stake.Amount) (stake.Amount, error) {
	balance, err := c.stakes.Deposit(participant, value)
	if err != nil {
		return 0, err
	}
	c.log.Debug("stake added", "participant", participant, "value", value, "balance", balance)
	return balance, nil
}

// CreateRound opens a new round for sampleID. The attached value is credited
// to the creator's stake and recorded as the round pot.
func (c *Coordinator) CreateRound(creator stake.ParticipantID, sampleID uint64, value stake.Amount) (uint64, error) {
	deposit := func(*round.Round) error {
		if _, err := c.stakes.Deposit(creator, value); err != nil {
			return fmt.Errorf("create round: %w", err)
		}
		return nil
	}
	announce := func(r *round.Round) {
		c.emit(Event{
			Type:     EventRoundCreation,
			RoundID:  r.ID,
			SampleID: sampleID,
			Creator:  creator,
			Pot:      value,
			Time:     r.CreatedAt,
		})
	}
	r, err := c.rounds.Create(sampleID, creator, value, deposit, announce)
	if err != nil {
		return 0, err
	}
	return r.ID, nil
}

// CommitMatch records the commitment of caller in round roundID.
func (c *Coordinator) CommitMatch(caller stake.ParticipantID, roundID uint64, digest commitment.Digest) error {
	return c.rounds.Update(roundID, func(r *round.Round, _ time.Time) error {
		if r.Phase() == round.Committing && !c.stakes.HasMinimumStake(caller, stake.Amount(c.cfg.MinStake)) {
			return fmt.Errorf("%w: %s has %d, needs %d", stake.ErrInsufficientStake, caller, c.stakes.BalanceOf(caller), c.cfg.MinStake)
		}
		return r.Commit(caller, digest)
	})
}

// RevealMatch verifies the reveal of caller against its commitment. When the
// last committed participant reveals, the round stops collecting reveals,
// WillCallOraclize is emitted and randomness is requested.
//
// The request is sent after the round lock is released. A failed request
// does not fail the reveal: the round stays in AwaitingRandomness and Sweep
// sends the request again.
func (c *Coordinator) RevealMatch(caller stake.ParticipantID, roundID uint64, value uint64, salt commitment.Salt) error {
	var closed bool
	err := c.rounds.Update(roundID, func(r *round.Round, now time.Time) error {
		closed = false
		if err := r.Reveal(caller, value, salt, now); err != nil {
			return err
		}
		if !r.RevealsComplete() {
			return nil
		}
		if err := c.closeReveals(r, now); err != nil {
			return err
		}
		closed = true
		return nil
	})
	if err != nil {
		return err
	}
	if closed {
		c.requestRandomness(roundID)
	}
	return nil
}

// closeReveals runs inside a registry update.
func (c *Coordinator) closeReveals(r *round.Round, now time.Time) error {
	if err := r.CloseReveals(now); err != nil {
		return err
	}
	c.emit(Event{Type: EventWillCallOraclize, RoundID: r.ID, Time: now})
	return nil
}

// requestRandomness must be called without holding the round lock: remote
// sources block until the oracle acknowledges the request.
func (c *Coordinator) requestRandomness(roundID uint64) {
	ctx := context.Background()
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}
	err := c.oracle.RequestRandomness(ctx, roundID)
	switch {
	case err == nil:
	case errors.Is(err, oracle.ErrRandomnessAlreadyRequested):
		c.log.Debug("randomness request already sent", "round", roundID)
	default:
		c.log.Error("randomness request failed, retrying on next sweep", "round", roundID, "err", err)
	}
}

// FinalizeRound selects the winner of roundID with randomValue. Only the
// configured finalizer may call it; the trust policy decides whether
// randomValue may differ from, or precede, the oracle delivery.
func (c *Coordinator) FinalizeRound(caller stake.ParticipantID, roundID uint64, randomValue uint64) (stake.ParticipantID, error) {
	if string(caller) != c.cfg.Finalizer {
		return "", fmt.Errorf("%w: %s", ErrNotFinalizer, caller)
	}
	var winner stake.ParticipantID
	err := c.rounds.Update(roundID, func(r *round.Round, now time.Time) error {
		if r.Phase() != round.AwaitingRandomness {
			return fmt.Errorf("%w: finalize not allowed while round %d is %s", round.ErrInvalidPhase, r.ID, r.Phase())
		}
		if err := c.checkRandomness(r, randomValue, now); err != nil {
			return err
		}
		w, err := r.Finalize(randomValue, now)
		if err != nil {
			return err
		}
		winner = w
		c.emitValidated(r, randomValue, now)
		return nil
	})
	if err != nil {
		return "", err
	}
	c.forgetOverdue(roundID)
	return winner, nil
}

func (c *Coordinator) checkRandomness(r *round.Round, randomValue uint64, now time.Time) error {
	if delivered, ok := r.Randomness(); ok {
		if delivered != randomValue {
			return fmt.Errorf("%w: round %d", ErrRandomnessMismatch, r.ID)
		}
		return nil
	}
	switch c.cfg.TrustPolicy {
	case config.TrustFinalizer:
		return nil
	default:
		if c.cfg.RandomnessTimeout > 0 && now.Sub(r.RandomnessRequestedAt) >= c.cfg.RandomnessTimeout {
			c.log.Warn("oracle overdue, finalizer supplies randomness", "round", r.ID)
			return nil
		}
		return fmt.Errorf("%w: round %d", ErrRandomnessPending, r.ID)
	}
}

func (c *Coordinator) emitValidated(r *round.Round, randomValue uint64, now time.Time) {
	winner, _ := r.Winner()
	c.emit(Event{
		Type:       EventRoundValidated,
		RoundID:    r.ID,
		SampleID:   r.SampleID,
		Pot:        r.Pot,
		Winner:     winner,
		Randomness: randomValue,
		Time:       now,
	})
}

// OnRandomnessDelivered records an oracle delivery. Deliveries that are
// unrequested, duplicated, forged or late are logged and dropped.
func (c *Coordinator) OnRandomnessDelivered(d oracle.Delivery) {
	if err := c.oracle.Accept(d); err != nil {
		c.log.Warn("discarding randomness delivery", "round", d.RoundID, "err", err)
		return
	}
	err := c.rounds.Update(d.RoundID, func(r *round.Round, now time.Time) error {
		if err := r.SetRandomness(d.Value); err != nil {
			return err
		}
		if !c.cfg.AutoFinalize {
			return nil
		}
		if _, err := r.Finalize(d.Value, now); err != nil {
			return err
		}
		c.emitValidated(r, d.Value, now)
		return nil
	})
	if err != nil {
		c.log.Warn("randomness delivery not applied", "round", d.RoundID, "err", err)
		return
	}
	c.forgetOverdue(d.RoundID)
	c.log.Debug("randomness delivered", "round", d.RoundID, "value", d.Value)
}

// Sweep enforces the reveal and randomness deadlines and resends randomness
// requests that failed.
func (c *Coordinator) Sweep() {
	if c.cfg.RevealTimeout > 0 {
		for _, id := range c.rounds.InPhase(round.Revealing) {
			err := c.rounds.Update(id, func(r *round.Round, now time.Time) error {
				if r.Phase() != round.Revealing || now.Sub(r.RevealStartedAt) < c.cfg.RevealTimeout {
					return errUnchanged
				}
				c.log.Info("reveal window expired", "round", id, "revealers", len(r.Revealers()), "committers", len(r.Committers()))
				return c.closeReveals(r, now)
			})
			if err != nil && !errors.Is(err, errUnchanged) {
				c.log.Error("could not close reveals", "round", id, "err", err)
			}
		}
	}
	for _, id := range c.rounds.InPhase(round.AwaitingRandomness) {
		r, err := c.rounds.Get(id)
		if err != nil || r.Phase() != round.AwaitingRandomness {
			continue
		}
		if _, ok := r.Randomness(); ok {
			continue
		}
		if !c.oracle.Requested(id) {
			c.requestRandomness(id)
		}
		if c.cfg.RandomnessTimeout > 0 && c.randomnessOverdue(id) && c.markOverdue(id) {
			c.log.Warn("randomness overdue", "round", id, "requested_at", r.RandomnessRequestedAt)
		}
	}
}

// randomnessOverdue reads the registry clock through a discarded update.
func (c *Coordinator) randomnessOverdue(id uint64) bool {
	var overdue bool
	_ = c.rounds.Update(id, func(r *round.Round, now time.Time) error {
		overdue = r.Phase() == round.AwaitingRandomness && now.Sub(r.RandomnessRequestedAt) >= c.cfg.RandomnessTimeout
		return errUnchanged
	})
	return overdue
}

func (c *Coordinator) markOverdue(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.overdue[id] {
		return false
	}
	c.overdue[id] = true
	return true
}

func (c *Coordinator) forgetOverdue(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.overdue, id)
}

// Run applies oracle deliveries and sweeps deadlines until ctx is done or the
// oracle stops delivering.
func (c *Coordinator) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if c.cfg.SweepInterval > 0 {
		ticker := time.NewTicker(c.cfg.SweepInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	deliveries := c.oracle.Deliveries()
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("oracle deliveries closed")
			}
			c.OnRandomnessDelivered(d)
		case <-tick:
			c.Sweep()
		}
	}
}

// Round returns a copy of round roundID.
func (c *Coordinator) Round(roundID uint64) (*round.Round, error) {
	return c.rounds.Get(roundID)
}

// Rounds returns the IDs of every round in creation order.
func (c *Coordinator) Rounds() []uint64 {
	return c.rounds.IDs()
}

func (c *Coordinator) BalanceOf(participant stake.ParticipantID) stake.Amount {
	return c.stakes.BalanceOf(participant)
}

// Overdue returns the rounds whose randomness missed the deadline and that
// are still waiting for it.
func (c *Coordinator) Overdue() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, 0, len(c.overdue))
	for id := range c.overdue {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
