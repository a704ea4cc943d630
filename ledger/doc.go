// Package ledger implements an append-only, hash-chained audit log of the
// events emitted by the protocol.
//
// # Core Components
//
// Blockchain: An append-only log of protocol events with cryptographic
// hash chaining for tamper detection. It implements protocol.EventSink,
// so it can be handed to the Coordinator directly.
//
// Block: A single event together with its position in the chain and the
// hash of the previous block.
//
// # Security Properties
//
// The blockchain provides:
//   - Immutability: Once recorded, blocks cannot be modified
//   - Verifiability: Anyone can verify the integrity of the entire chain
//   - Tamper detection: Any modification breaks the hash chain
//
// # Usage
//
// Create a blockchain, register it as an event sink and call Verify at any
// time to ensure the chain remains intact. History returns the audit trail
// of a single round.
package ledger
