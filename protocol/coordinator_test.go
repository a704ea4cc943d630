package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/luca-patrignani/tair-protocol/config"
	"github.com/luca-patrignani/tair-protocol/domain/commitment"
	"github.com/luca-patrignani/tair-protocol/domain/round"
	"github.com/luca-patrignani/tair-protocol/domain/stake"
	"github.com/luca-patrignani/tair-protocol/oracle"
)

const milli = stake.Amount(1_000_000_000_000_000)

const owner stake.ParticipantID = "owner"

type stubSource struct {
	mu       sync.Mutex
	requests []uint64
	fail     error
	before   func(ctx context.Context, roundID uint64) error
	out      chan oracle.Delivery
}

func newStubSource() *stubSource {
	return &stubSource{out: make(chan oracle.Delivery, 16)}
}

func (s *stubSource) Request(ctx context.Context, roundID uint64) error {
	s.mu.Lock()
	before := s.before
	s.mu.Unlock()
	if before != nil {
		if err := before(ctx, roundID); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.requests = append(s.requests, roundID)
	return nil
}

func (s *stubSource) Deliveries() <-chan oracle.Delivery {
	return s.out
}

func (s *stubSource) setFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// setBefore installs a hook that runs at the start of every request,
// without the source lock held.
func (s *stubSource) setBefore(fn func(ctx context.Context, roundID uint64) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.before = fn
}

func (s *stubSource) requested() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.requests...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	c      *Coordinator
	source *stubSource
	events *Recorder
	clock  *fakeClock
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Finalizer = string(owner)
	cfg.AutoFinalize = false
	if mutate != nil {
		mutate(&cfg)
	}
	clk := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	source := newStubSource()
	events := NewRecorder()
	c := NewCoordinator(cfg, stake.NewLedger(), round.NewRegistry().WithClock(clk.now), oracle.NewClient(source, nil, nil), nil, events)
	return &harness{c: c, source: source, events: events, clock: clk}
}

func saltOf(b byte) commitment.Salt {
	var s commitment.Salt
	for i := range s {
		s[i] = b
	}
	return s
}

type player struct {
	id    stake.ParticipantID
	stake stake.Amount
	value uint64
	salt  commitment.Salt
}

var players = []player{
	{id: "A", stake: 12 * milli, value: 30, salt: saltOf(0xa1)},
	{id: "B", stake: 15 * milli, value: 30, salt: saltOf(0xb2)},
	{id: "C", stake: 17 * milli, value: 29, salt: saltOf(0xc3)},
}

// committed stakes the players, creates round 1 and commits for everyone.
func (h *harness) committed(t *testing.T) uint64 {
	t.Helper()
	for _, p := range players {
		if _, err := h.c.AddStake(p.id, p.stake); err != nil {
			t.Fatalf("AddStake(%s): %v", p.id, err)
		}
	}
	id, err := h.c.CreateRound(owner, 30, 100*milli)
	if err != nil {
		t.Fatalf("CreateRound: %v", err)
	}
	for _, p := range players {
		if err := h.c.CommitMatch(p.id, id, commitment.CommitmentOf(p.value, p.salt)); err != nil {
			t.Fatalf("CommitMatch(%s): %v", p.id, err)
		}
	}
	return id
}

// revealed additionally reveals for every player.
func (h *harness) revealed(t *testing.T) uint64 {
	t.Helper()
	id := h.committed(t)
	for _, p := range players {
		if err := h.c.RevealMatch(p.id, id, p.value, p.salt); err != nil {
			t.Fatalf("RevealMatch(%s): %v", p.id, err)
		}
	}
	return id
}

func TestRoundScenario(t *testing.T) {
	for _, r := range []uint64{0, 1, 2, 3, 7, 1<<64 - 1} {
		t.Run(fmt.Sprint(r), func(t *testing.T) {
			h := newHarness(t, nil)
			id := h.committed(t)
			if id != 1 {
				t.Fatalf("expected round 1, got %d", id)
			}
			if got := h.c.BalanceOf(owner); got != 100*milli {
				t.Fatalf("creator stake = %d, want %d", got, 100*milli)
			}

			for i, p := range players {
				if len(h.events.OfType(EventWillCallOraclize)) != 0 {
					t.Fatalf("WillCallOraclize emitted after %d reveals", i)
				}
				if err := h.c.RevealMatch(p.id, id, p.value, p.salt); err != nil {
					t.Fatalf("RevealMatch(%s): %v", p.id, err)
				}
			}
			if got := h.source.requested(); len(got) != 1 || got[0] != id {
				t.Fatalf("expected one oracle request for round %d, got %v", id, got)
			}

			h.c.OnRandomnessDelivered(oracle.Delivery{RoundID: id, Value: r})
			winner, err := h.c.FinalizeRound(owner, id, r)
			if err != nil {
				t.Fatalf("FinalizeRound: %v", err)
			}
			want := players[r%3].id
			if winner != want {
				t.Fatalf("winner = %s, want %s", winner, want)
			}

			events := h.events.Events()
			if len(events) != 3 {
				t.Fatalf("expected 3 events, got %v", events)
			}
			if events[0].Type != EventRoundCreation || events[0].RoundID != 1 || events[0].SampleID != 30 || events[0].Pot != 100*milli {
				t.Fatalf("unexpected first event %v", events[0])
			}
			if events[1].Type != EventWillCallOraclize || events[1].RoundID != 1 {
				t.Fatalf("unexpected second event %v", events[1])
			}
			if events[2].Type != EventRoundValidated || events[2].Winner != want {
				t.Fatalf("unexpected third event %v", events[2])
			}

			snap, err := h.c.Round(id)
			if err != nil {
				t.Fatal(err)
			}
			if snap.Phase() != round.Finalized {
				t.Fatalf("expected finalized, got %s", snap.Phase())
			}
		})
	}
}

func TestMismatchedRevealLeavesRevealUnset(t *testing.T) {
	h := newHarness(t, nil)
	id := h.committed(t)

	err := h.c.RevealMatch("A", id, 31, players[0].salt)
	if !errors.Is(err, round.ErrCommitmentMismatch) {
		t.Fatalf("expected ErrCommitmentMismatch, got %v", err)
	}
	err = h.c.RevealMatch("A", id, 30, saltOf(0xff))
	if !errors.Is(err, round.ErrCommitmentMismatch) {
		t.Fatalf("expected ErrCommitmentMismatch for wrong salt, got %v", err)
	}
	snap, _ := h.c.Round(id)
	if _, ok := snap.RevealOf("A"); ok {
		t.Fatal("mismatched reveal was recorded")
	}
	if snap.Phase() != round.Committing {
		t.Fatalf("failed reveal changed phase to %s", snap.Phase())
	}
}

func TestFinalizeWrongPhase(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.TrustPolicy = config.TrustFinalizer })
	id := h.committed(t)

	if _, err := h.c.FinalizeRound(owner, id, 1); !errors.Is(err, round.ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase, got %v", err)
	}
	snap, _ := h.c.Round(id)
	if _, ok := snap.Winner(); ok {
		t.Fatal("winner set on failed finalize")
	}
	if n := len(h.events.OfType(EventRoundValidated)); n != 0 {
		t.Fatalf("expected no RoundValidated, got %d", n)
	}
}

func TestOperationErrors(t *testing.T) {
	h := newHarness(t, nil)
	id := h.committed(t)
	digest := commitment.CommitmentOf(1, saltOf(1))

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"zero stake", func() error { _, err := h.c.AddStake("A", 0); return err }(), stake.ErrInvalidAmount},
		{"unknown round commit", h.c.CommitMatch("A", 42, digest), round.ErrRoundNotFound},
		{"unknown round reveal", h.c.RevealMatch("A", 42, 30, players[0].salt), round.ErrRoundNotFound},
		{"no stake", h.c.CommitMatch("D", id, digest), stake.ErrInsufficientStake},
		{"reveal without commit", h.c.RevealMatch("owner", id, 30, saltOf(9)), round.ErrNoPriorCommitment},
		{"finalize unknown round", func() error { _, err := h.c.FinalizeRound(owner, 42, 0); return err }(), round.ErrRoundNotFound},
		{"not finalizer", func() error { _, err := h.c.FinalizeRound("A", id, 0); return err }(), ErrNotFinalizer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, tt.err)
			}
		})
	}
}

func TestInsufficientStakeBelowMinimum(t *testing.T) {
	h := newHarness(t, nil)
	id, err := h.c.CreateRound(owner, 30, 100*milli)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.c.AddStake("D", 9*milli); err != nil {
		t.Fatal(err)
	}
	digest := commitment.CommitmentOf(30, saltOf(4))
	if err := h.c.CommitMatch("D", id, digest); !errors.Is(err, stake.ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake, got %v", err)
	}
	if _, err := h.c.AddStake("D", milli); err != nil {
		t.Fatal(err)
	}
	if err := h.c.CommitMatch("D", id, digest); err != nil {
		t.Fatalf("commit at exactly the minimum stake: %v", err)
	}
}

func TestCreateRoundRejectsZeroValue(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.c.CreateRound(owner, 30, 0); !errors.Is(err, stake.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if len(h.events.Events()) != 0 {
		t.Fatal("failed creation emitted an event")
	}
	id, err := h.c.CreateRound(owner, 30, milli)
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Fatalf("failed creation consumed an ID, got %d", id)
	}
}

func TestCommitAfterRevealStarted(t *testing.T) {
	h := newHarness(t, nil)
	id := h.committed(t)
	if err := h.c.RevealMatch("A", id, 30, players[0].salt); err != nil {
		t.Fatal(err)
	}
	if err := h.c.CommitMatch("B", id, commitment.CommitmentOf(1, saltOf(1))); !errors.Is(err, round.ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase, got %v", err)
	}
	if err := h.c.RevealMatch("A", id, 30, players[0].salt); !errors.Is(err, round.ErrAlreadyRevealed) {
		t.Fatalf("expected ErrAlreadyRevealed, got %v", err)
	}
}

func TestOracleFailureKeepsLastReveal(t *testing.T) {
	h := newHarness(t, nil)
	id := h.committed(t)
	for _, p := range players[:2] {
		if err := h.c.RevealMatch(p.id, id, p.value, p.salt); err != nil {
			t.Fatal(err)
		}
	}
	h.source.setFail(errors.New("oracle unreachable"))
	c := players[2]
	if err := h.c.RevealMatch(c.id, id, c.value, c.salt); err != nil {
		t.Fatalf("reveal failed with the oracle: %v", err)
	}
	snap, _ := h.c.Round(id)
	if snap.Phase() != round.AwaitingRandomness {
		t.Fatalf("expected AwaitingRandomness after failed request, got %s", snap.Phase())
	}
	if _, ok := snap.RevealOf(c.id); !ok {
		t.Fatal("reveal dropped after failed oracle request")
	}
	if n := len(h.source.requested()); n != 0 {
		t.Fatalf("expected no accepted request, got %d", n)
	}
	if err := h.c.RevealMatch(c.id, id, c.value, c.salt); !errors.Is(err, round.ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase on repeated reveal, got %v", err)
	}

	h.source.setFail(nil)
	h.c.Sweep()
	if got := h.source.requested(); len(got) != 1 || got[0] != id {
		t.Fatalf("expected the sweep to request round %d, got %v", id, got)
	}
	h.c.Sweep()
	if n := len(h.source.requested()); n != 1 {
		t.Fatalf("sweep requested again after success: %d requests", n)
	}
	if n := len(h.events.OfType(EventWillCallOraclize)); n != 1 {
		t.Fatalf("expected one WillCallOraclize, got %d", n)
	}
}

func TestBlockedOracleDoesNotLockRound(t *testing.T) {
	h := newHarness(t, nil)
	id := h.committed(t)
	for _, p := range players[:2] {
		if err := h.c.RevealMatch(p.id, id, p.value, p.salt); err != nil {
			t.Fatal(err)
		}
	}
	entered := make(chan struct{})
	release := make(chan struct{})
	h.source.setBefore(func(ctx context.Context, _ uint64) error {
		close(entered)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	c := players[2]
	revealed := make(chan error, 1)
	go func() { revealed <- h.c.RevealMatch(c.id, id, c.value, c.salt) }()
	<-entered

	read := make(chan *round.Round, 1)
	go func() {
		snap, _ := h.c.Round(id)
		read <- snap
	}()
	select {
	case snap := <-read:
		if snap.Phase() != round.AwaitingRandomness {
			t.Fatalf("expected AwaitingRandomness while the request is in flight, got %s", snap.Phase())
		}
	case <-time.After(time.Second):
		t.Fatal("reading the round blocked on the oracle request")
	}
	swept := make(chan struct{})
	go func() {
		h.c.Sweep()
		close(swept)
	}()
	select {
	case <-swept:
	case <-time.After(time.Second):
		t.Fatal("sweep blocked on the oracle request")
	}

	close(release)
	if err := <-revealed; err != nil {
		t.Fatal(err)
	}
	if got := h.source.requested(); len(got) != 1 {
		t.Fatalf("expected a single request, got %v", got)
	}
}

func TestDeliveryDuringFailedRequest(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.AutoFinalize = true })
	id := h.committed(t)
	for _, p := range players[:2] {
		if err := h.c.RevealMatch(p.id, id, p.value, p.salt); err != nil {
			t.Fatal(err)
		}
	}
	h.source.setBefore(func(_ context.Context, roundID uint64) error {
		h.c.OnRandomnessDelivered(oracle.Delivery{RoundID: roundID, Value: 2})
		return context.DeadlineExceeded
	})
	c := players[2]
	if err := h.c.RevealMatch(c.id, id, c.value, c.salt); err != nil {
		t.Fatal(err)
	}
	snap, _ := h.c.Round(id)
	if snap.Phase() != round.Finalized {
		t.Fatalf("expected Finalized after the delivery, got %s", snap.Phase())
	}
	if winner, _ := snap.Winner(); winner != "C" {
		t.Fatalf("expected C to win with randomness 2, got %q", winner)
	}

	h.source.setBefore(nil)
	h.c.Sweep()
	if n := len(h.source.requested()); n != 0 {
		t.Fatalf("finalized round requested again: %d", n)
	}
}

func TestOraclePolicy(t *testing.T) {
	t.Run("pending", func(t *testing.T) {
		h := newHarness(t, nil)
		id := h.revealed(t)
		if _, err := h.c.FinalizeRound(owner, id, 2); !errors.Is(err, ErrRandomnessPending) {
			t.Fatalf("expected ErrRandomnessPending, got %v", err)
		}
	})
	t.Run("mismatch", func(t *testing.T) {
		h := newHarness(t, nil)
		id := h.revealed(t)
		h.c.OnRandomnessDelivered(oracle.Delivery{RoundID: id, Value: 5})
		if _, err := h.c.FinalizeRound(owner, id, 6); !errors.Is(err, ErrRandomnessMismatch) {
			t.Fatalf("expected ErrRandomnessMismatch, got %v", err)
		}
		snap, _ := h.c.Round(id)
		if _, ok := snap.Winner(); ok {
			t.Fatal("winner set after mismatch")
		}
	})
	t.Run("fallback after timeout", func(t *testing.T) {
		h := newHarness(t, func(c *config.Config) { c.RandomnessTimeout = time.Minute })
		id := h.revealed(t)
		if _, err := h.c.FinalizeRound(owner, id, 2); !errors.Is(err, ErrRandomnessPending) {
			t.Fatalf("expected ErrRandomnessPending, got %v", err)
		}
		h.clock.advance(time.Minute)
		winner, err := h.c.FinalizeRound(owner, id, 2)
		if err != nil {
			t.Fatalf("fallback finalize: %v", err)
		}
		if winner != "C" {
			t.Fatalf("winner = %s, want C", winner)
		}
		// the late delivery is dropped
		h.c.OnRandomnessDelivered(oracle.Delivery{RoundID: id, Value: 0})
		if n := len(h.events.OfType(EventRoundValidated)); n != 1 {
			t.Fatalf("expected one RoundValidated, got %d", n)
		}
	})
	t.Run("auto finalize", func(t *testing.T) {
		h := newHarness(t, func(c *config.Config) { c.AutoFinalize = true })
		id := h.revealed(t)
		h.c.OnRandomnessDelivered(oracle.Delivery{RoundID: id, Value: 4})
		validated := h.events.OfType(EventRoundValidated)
		if len(validated) != 1 || validated[0].Winner != "B" || validated[0].Randomness != 4 {
			t.Fatalf("unexpected RoundValidated events %v", validated)
		}
		if _, err := h.c.FinalizeRound(owner, id, 4); !errors.Is(err, round.ErrInvalidPhase) {
			t.Fatalf("second finalize: expected ErrInvalidPhase, got %v", err)
		}
	})
}

func TestFinalizerPolicy(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.TrustPolicy = config.TrustFinalizer })
	id := h.revealed(t)

	winner, err := h.c.FinalizeRound(owner, id, 4)
	if err != nil {
		t.Fatalf("FinalizeRound: %v", err)
	}
	if winner != "B" {
		t.Fatalf("winner = %s, want B", winner)
	}
	h.c.OnRandomnessDelivered(oracle.Delivery{RoundID: id, Value: 0})
	snap, _ := h.c.Round(id)
	if w, _ := snap.Winner(); w != "B" {
		t.Fatalf("late delivery changed the winner to %s", w)
	}

	h2 := newHarness(t, func(c *config.Config) { c.TrustPolicy = config.TrustFinalizer })
	id = h2.revealed(t)
	h2.c.OnRandomnessDelivered(oracle.Delivery{RoundID: id, Value: 5})
	if _, err := h2.c.FinalizeRound(owner, id, 6); !errors.Is(err, ErrRandomnessMismatch) {
		t.Fatalf("expected ErrRandomnessMismatch once delivered, got %v", err)
	}
}

func TestInconsistentDeliveriesAreDropped(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.AutoFinalize = true })
	id := h.committed(t)

	// not requested yet
	h.c.OnRandomnessDelivered(oracle.Delivery{RoundID: id, Value: 1})
	h.c.OnRandomnessDelivered(oracle.Delivery{RoundID: 99, Value: 1})
	snap, _ := h.c.Round(id)
	if _, ok := snap.Randomness(); ok {
		t.Fatal("unrequested delivery was applied")
	}

	for _, p := range players {
		if err := h.c.RevealMatch(p.id, id, p.value, p.salt); err != nil {
			t.Fatal(err)
		}
	}
	h.c.OnRandomnessDelivered(oracle.Delivery{RoundID: id, Value: 1})
	h.c.OnRandomnessDelivered(oracle.Delivery{RoundID: id, Value: 2})
	validated := h.events.OfType(EventRoundValidated)
	if len(validated) != 1 || validated[0].Winner != "B" {
		t.Fatalf("unexpected RoundValidated events %v", validated)
	}
}

func TestRevealTimeoutExcludesSilentParticipants(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.RevealTimeout = time.Minute })
	id := h.committed(t)
	for _, p := range players[:2] {
		if err := h.c.RevealMatch(p.id, id, p.value, p.salt); err != nil {
			t.Fatal(err)
		}
	}

	h.clock.advance(30 * time.Second)
	h.c.Sweep()
	if snap, _ := h.c.Round(id); snap.Phase() != round.Revealing {
		t.Fatalf("reveal window closed early, phase %s", snap.Phase())
	}

	h.clock.advance(30 * time.Second)
	h.c.Sweep()
	snap, _ := h.c.Round(id)
	if snap.Phase() != round.AwaitingRandomness {
		t.Fatalf("expected AwaitingRandomness, got %s", snap.Phase())
	}
	if n := len(h.events.OfType(EventWillCallOraclize)); n != 1 {
		t.Fatalf("expected one WillCallOraclize, got %d", n)
	}

	c := players[2]
	if err := h.c.RevealMatch(c.id, id, c.value, c.salt); !errors.Is(err, round.ErrInvalidPhase) {
		t.Fatalf("late reveal: expected ErrInvalidPhase, got %v", err)
	}

	h.c.OnRandomnessDelivered(oracle.Delivery{RoundID: id, Value: 3})
	winner, err := h.c.FinalizeRound(owner, id, 3)
	if err != nil {
		t.Fatal(err)
	}
	if winner != "B" {
		t.Fatalf("winner = %s, want B (3 mod 2 revealers)", winner)
	}
}

func TestSweepFlagsOverdueRandomness(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.RandomnessTimeout = time.Minute })
	id := h.revealed(t)

	h.c.Sweep()
	if got := h.c.Overdue(); len(got) != 0 {
		t.Fatalf("nothing should be overdue yet, got %v", got)
	}
	h.clock.advance(2 * time.Minute)
	h.c.Sweep()
	h.c.Sweep()
	if got := h.c.Overdue(); len(got) != 1 || got[0] != id {
		t.Fatalf("expected round %d overdue, got %v", id, got)
	}
	h.c.OnRandomnessDelivered(oracle.Delivery{RoundID: id, Value: 0})
	if got := h.c.Overdue(); len(got) != 0 {
		t.Fatalf("delivered round still overdue: %v", got)
	}
}

func TestRunWithBeacon(t *testing.T) {
	beacon := oracle.NewBeacon(10*time.Millisecond, nil)
	defer beacon.Close()

	cfg := config.Default()
	cfg.Finalizer = string(owner)
	cfg.SweepInterval = 10 * time.Millisecond
	events := NewRecorder()
	c := NewCoordinator(cfg, stake.NewLedger(), round.NewRegistry(), oracle.NewClient(beacon, beacon.PublicKey(), nil), nil, events)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	h := &harness{c: c, events: events}
	id := h.revealed(t)

	deadline := time.After(5 * time.Second)
	for len(events.OfType(EventRoundValidated)) == 0 {
		select {
		case <-deadline:
			t.Fatal("round was not finalized from the beacon delivery")
		case <-time.After(5 * time.Millisecond):
		}
	}
	snap, err := c.Round(id)
	if err != nil {
		t.Fatal(err)
	}
	r, ok := snap.Randomness()
	if !ok {
		t.Fatal("randomness not recorded")
	}
	if w, _ := snap.Winner(); w != players[r%3].id {
		t.Fatalf("winner %s does not match randomness %d", w, r)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestConcurrentRounds(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.TrustPolicy = config.TrustFinalizer })
	for _, p := range players {
		if _, err := h.c.AddStake(p.id, p.stake); err != nil {
			t.Fatal(err)
		}
	}

	const rounds = 20
	var wg sync.WaitGroup
	errs := make(chan error, rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(1)
		go func(sample uint64) {
			defer wg.Done()
			id, err := h.c.CreateRound(owner, sample, milli)
			if err != nil {
				errs <- err
				return
			}
			for _, p := range players {
				if err := h.c.CommitMatch(p.id, id, commitment.CommitmentOf(p.value, p.salt)); err != nil {
					errs <- err
					return
				}
			}
			for _, p := range players {
				if err := h.c.RevealMatch(p.id, id, p.value, p.salt); err != nil {
					errs <- err
					return
				}
			}
			if _, err := h.c.FinalizeRound(owner, id, sample); err != nil {
				errs <- err
			}
		}(uint64(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	if n := len(h.c.Rounds()); n != rounds {
		t.Fatalf("expected %d rounds, got %d", rounds, n)
	}
	seen := make(map[uint64][]EventType)
	for _, e := range h.events.Events() {
		seen[e.RoundID] = append(seen[e.RoundID], e.Type)
	}
	for id, types := range seen {
		if len(types) != 3 || types[0] != EventRoundCreation || types[1] != EventWillCallOraclize || types[2] != EventRoundValidated {
			t.Fatalf("round %d: unexpected event order %v", id, types)
		}
	}
	if want := stake.Amount(rounds) * milli; h.c.BalanceOf(owner) != want {
		t.Fatalf("creator stake = %d, want %d", h.c.BalanceOf(owner), want)
	}
}

func TestFeedDropsWhenFull(t *testing.T) {
	var dropped []Event
	f := NewFeed(1, func(e Event) { dropped = append(dropped, e) })
	if err := f.Emit(Event{Type: EventRoundCreation, RoundID: 1}); err != nil {
		t.Fatal(err)
	}
	if err := f.Emit(Event{Type: EventRoundCreation, RoundID: 2}); err == nil {
		t.Fatal("expected an error from a full feed")
	}
	if len(dropped) != 1 || dropped[0].RoundID != 2 {
		t.Fatalf("unexpected dropped events %v", dropped)
	}
	if e := <-f.C; e.RoundID != 1 {
		t.Fatalf("unexpected event %v", e)
	}
}
