package commitment

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"go.dedis.ch/kyber/v4/suites"
	"golang.org/x/crypto/sha3"
)

const (
	DigestSize = 32
	SaltSize   = 32
)

// Digest is the published commitment.
type Digest [DigestSize]byte

// Salt is the secret blinding value disclosed at reveal time.
type Salt [SaltSize]byte

var suite = suites.MustFind("Ed25519")

// CommitmentOf returns the commitment binding value and salt.
func CommitmentOf(value uint64, salt Salt) Digest {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(strconv.FormatUint(value, 10)))
	h.Write(salt[:])

	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Verify reports whether digest commits to value and salt.
// A mismatch is a normal outcome and is reported as false.
func Verify(digest Digest, value uint64, salt Salt) bool {
	expected := CommitmentOf(value, salt)
	return subtle.ConstantTimeCompare(expected[:], digest[:]) == 1
}

// NewSalt draws a fresh salt from the suite random stream.
func NewSalt() (Salt, error) {
	var s Salt
	stream := suite.RandomStream()
	stream.XORKeyStream(s[:], s[:])
	if s == (Salt{}) {
		return s, fmt.Errorf("random stream returned an all-zero salt")
	}
	return s, nil
}

func (d Digest) String() string {
	return "0x" + hex.EncodeToString(d[:])
}

func (s Salt) String() string {
	return "0x" + hex.EncodeToString(s[:])
}

func (d Digest) IsZero() bool {
	return d == Digest{}
}

// ParseDigest decodes a hex digest, with or without 0x prefix.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if err := decodeFixed(s, d[:]); err != nil {
		return d, fmt.Errorf("parse digest: %w", err)
	}
	return d, nil
}

// ParseSalt decodes a hex salt, with or without 0x prefix.
func ParseSalt(s string) (Salt, error) {
	var salt Salt
	if err := decodeFixed(s, salt[:]); err != nil {
		return salt, fmt.Errorf("parse salt: %w", err)
	}
	return salt, nil
}

func decodeFixed(s string, dst []byte) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("expected %d bytes, got %d", len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}
