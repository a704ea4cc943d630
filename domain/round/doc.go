// Package round implements the lifecycle of a commit-reveal round.
//
// # Core Types
//
// Round: a single staking, commit, reveal, randomness and finalization cycle,
// identified by a monotonically assigned ID. Commitments and reveals are
// keyed by participant and owned exclusively by their Round.
//
// Registry: an arena of Round records indexed by ID. Every record has its own
// lock, so mutations of one round never block another round, and reads only
// take a read lock.
//
// # Round Flow
//
// A round progresses through phases: Open → Committing → Revealing →
// AwaitingRandomness → Finalized. Phases only move forward. The first valid
// reveal closes the commit window; once every committed participant has
// revealed (or the caller closes reveals explicitly) the round waits for
// randomness, and the winner is chosen as
//
//	revealers[randomness mod len(revealers)]
//
// where revealers are ordered by first commitment.
//
// # Atomicity
//
// Registry.Update applies a mutation to a private copy of the round and
// publishes it only if the mutation succeeds, so a failed operation never
// leaves a partially updated round behind.
package round
