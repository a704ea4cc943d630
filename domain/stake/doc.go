// Package stake keeps the stake balance of every participant of the protocol.
//
// # Core Components
//
// Ledger: a concurrency-safe map from ParticipantID to Amount. Participants
// are created implicitly by their first deposit and are never removed.
//
// # Eligibility
//
// A participant may commit to a round only while its balance is at least the
// protocol minimum. HasMinimumStake is a pure query so that the coordinator
// can check eligibility without mutating anything.
//
// Withdrawals are not supported: once deposited, stake stays bound to the
// participant.
package stake
