package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pterm/pterm"
	"go.dedis.ch/kyber/v4"

	"github.com/luca-patrignani/tair-protocol/config"
	"github.com/luca-patrignani/tair-protocol/discovery"
	"github.com/luca-patrignani/tair-protocol/domain/commitment"
	"github.com/luca-patrignani/tair-protocol/domain/round"
	"github.com/luca-patrignani/tair-protocol/domain/stake"
	"github.com/luca-patrignani/tair-protocol/ledger"
	"github.com/luca-patrignani/tair-protocol/network"
	"github.com/luca-patrignani/tair-protocol/oracle"
	"github.com/luca-patrignani/tair-protocol/protocol"
	"github.com/luca-patrignani/tair-protocol/store"
)

// milli is a thousandth of a whole unit of 1e18 base units.
const milli = stake.Amount(1_000_000_000_000_000)

type participant struct {
	id    stake.ParticipantID
	stake stake.Amount
	value uint64
	salt  commitment.Salt
}

func defaultParticipants() ([]participant, error) {
	players := []participant{
		{id: "A", stake: 12 * milli, value: 30},
		{id: "B", stake: 15 * milli, value: 30},
		{id: "C", stake: 17 * milli, value: 29},
	}
	for i := range players {
		salt, err := commitment.NewSalt()
		if err != nil {
			return nil, err
		}
		players[i].salt = salt
	}
	return players, nil
}

// discoverOracle as ORACLE_URL makes the simulation look for an announced
// oracle service.
const discoverOracle = "discover"

// newOracle connects to the remote oracle when ORACLE_URL is set and starts
// an in-process beacon otherwise. The returned func releases the source.
func newOracle(cfg config.Config, logger *slog.Logger) (*oracle.Client, func(), error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.OracleURL == discoverOracle {
		found, err := discovery.Find(context.Background(),
			discovery.WithPortRange(cfg.DiscoveryStart, cfg.DiscoveryEnd),
			discovery.WithAttempts(3, time.Second),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("discover oracle: %w", err)
		}
		cfg.OracleURL, cfg.OracleKey = found[0].URL, found[0].PublicKey
		logger.Info("oracle discovered", "url", cfg.OracleURL)
	}
	if cfg.OracleURL == "" {
		beacon := oracle.NewBeacon(cfg.OracleDelay, logger)
		return oracle.NewClient(beacon, beacon.PublicKey(), logger), func() { _ = beacon.Close() }, nil
	}

	var public kyber.Point
	if cfg.OracleKey != "" {
		p, err := oracle.ParsePublicKey(cfg.OracleKey)
		if err != nil {
			return nil, nil, err
		}
		public = p
	} else {
		logger.Warn("ORACLE_PUBLIC_KEY not set, deliveries are not authenticated")
	}

	l, err := listen(cfg.CallbackAddr, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("callback listener: %w", err)
	}
	callback := network.NewServer("/randomness", network.WithLogger(logger))
	callback.Start(l)
	client := network.NewClient(network.WithTimeout(cfg.RequestTimeout), network.WithLogger(logger))
	remote := oracle.NewRemote(cfg.OracleURL, callback, client, logger)
	logger.Info("using remote oracle", "oracle", cfg.OracleURL, "callback", callback.URL())

	cleanup := func() {
		_ = remote.Close()
		_ = callback.Close()
	}
	return oracle.NewClient(remote, public, logger), cleanup, nil
}

func runSimulation(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	client, release, err := newOracle(cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	db, err := store.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	chain := ledger.NewBlockchain()
	sinks := []protocol.EventSink{chain}
	var events *store.EventStore
	if db != nil {
		events = store.NewEventStore(db, 256, logger)
		sinks = append(sinks, events)
	}

	coord := protocol.NewCoordinator(cfg, stake.NewLedger(), round.NewRegistry(), client, logger, sinks...)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if events != nil {
		go events.Run(runCtx)
	}
	go func() {
		if err := coord.Run(runCtx); err != nil {
			logger.Error("coordinator stopped", "error", err)
		}
	}()

	players, err := defaultParticipants()
	if err != nil {
		return err
	}

	spinner, _ := pterm.DefaultSpinner.Start("Playing round for sample 30 ...")
	id, err := playRound(ctx, coord, cfg, players, 30, 100*milli)
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success(fmt.Sprintf("Round %d validated", id))

	r, err := coord.Round(id)
	if err != nil {
		return err
	}
	printRound(r, players, coord, chain.History(id))

	if err := chain.Verify(); err != nil {
		pterm.Error.Printfln("Audit log corrupted: %v", err)
		return err
	}
	pterm.Success.Printfln("Audit log verified, %d blocks", chain.Len())

	if events != nil {
		cancel()
		events.Wait()
		if rounds, err := store.Rounds(db, 10); err == nil {
			pterm.Info.Printfln("%d rounds persisted", len(rounds))
		}
	}
	return nil
}

// playRound stakes players, runs one round to completion and returns its ID.
func playRound(ctx context.Context, coord *protocol.Coordinator, cfg config.Config, players []participant, sampleID uint64, pot stake.Amount) (uint64, error) {
	for _, p := range players {
		if _, err := coord.AddStake(p.id, p.stake); err != nil {
			return 0, err
		}
	}
	creator := stake.ParticipantID(cfg.Finalizer)
	id, err := coord.CreateRound(creator, sampleID, pot)
	if err != nil {
		return 0, err
	}
	for _, p := range players {
		if err := coord.CommitMatch(p.id, id, commitment.CommitmentOf(p.value, p.salt)); err != nil {
			return 0, fmt.Errorf("commit %s: %w", p.id, err)
		}
	}
	for _, p := range players {
		if err := coord.RevealMatch(p.id, id, p.value, p.salt); err != nil {
			return 0, fmt.Errorf("reveal %s: %w", p.id, err)
		}
	}
	return id, awaitWinner(ctx, coord, cfg, id)
}

// awaitWinner waits for the round to be validated, finalizing it when the
// coordinator does not do so on delivery.
func awaitWinner(ctx context.Context, coord *protocol.Coordinator, cfg config.Config, id uint64) error {
	finalizer := stake.ParticipantID(cfg.Finalizer)
	started := time.Now()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		r, err := coord.Round(id)
		if err != nil {
			return err
		}
		if _, ok := r.Winner(); ok {
			return nil
		}
		if value, ok := r.Randomness(); ok && !cfg.AutoFinalize {
			if _, err := coord.FinalizeRound(finalizer, id, value); err != nil {
				return err
			}
			return nil
		}
		if cfg.RandomnessTimeout > 0 && time.Since(started) >= cfg.RandomnessTimeout {
			value, err := localRandomness()
			if err != nil {
				return err
			}
			_, err = coord.FinalizeRound(finalizer, id, value)
			if err == nil {
				return nil
			}
			// pending: the coordinator deadline has not passed yet
			// invalid phase: the delivery finalized the round meanwhile
			if !errors.Is(err, protocol.ErrRandomnessPending) && !errors.Is(err, round.ErrInvalidPhase) {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func localRandomness() (uint64, error) {
	salt, err := commitment.NewSalt()
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(salt[:8]), nil
}
