// Package commitment implements the hash commitments used by the commit-reveal
// protocol.
//
// A participant publishes CommitmentOf(value, salt) while the round is
// collecting commitments and later discloses value and salt. Verify
// recomputes the digest and compares it with the published one.
//
// The digest is Keccak-256 over the decimal text of the value followed by the
// 32 byte salt. Since the salt has a fixed width the preimage is unambiguous,
// so distinct (value, salt) pairs never share a preimage.
package commitment
