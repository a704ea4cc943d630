// Package protocol coordinates staked commit-reveal rounds.
//
// # Core Components
//
// Coordinator: the public surface of the protocol. It composes the stake
// ledger, the round registry and the oracle client, and emits an Event
// for every observable step:
//
//	CreateRound    -> RoundCreation
//	RevealMatch    -> WillCallOraclize, once every committer has revealed
//	FinalizeRound  -> RoundValidated
//
// Events are emitted while the round is locked, so sinks observe them in
// the order the rounds evolved. Each round carries its own lock; operations
// on different rounds run concurrently. Randomness is requested after the
// round lock is released, so reading a round never waits on the oracle.
//
// # Randomness Trust
//
// With config.TrustOracle the winner is always drawn from the oracle value:
// FinalizeRound must pass that value, and with AutoFinalize the round is
// finalized as soon as the delivery arrives. If the oracle misses
// RandomnessTimeout the finalizer may supply the value instead.
//
// With config.TrustFinalizer the finalizer may supply any value before the
// oracle delivers. Once a value is delivered it must match.
//
// # Deadlines
//
// Sweep closes reveal windows older than RevealTimeout, excluding the
// participants that never revealed, resends randomness requests that
// failed, and flags rounds whose randomness is overdue. Run calls it every SweepInterval.
package protocol
