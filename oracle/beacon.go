package oracle

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/sign/schnorr"
	"go.dedis.ch/kyber/v4/suites"
	"golang.org/x/crypto/sha3"
)

var suite suites.Suite = suites.MustFind("Ed25519")

// Beacon is an in-process randomness oracle.
type Beacon struct {
	private kyber.Scalar
	public  kyber.Point
	delay   time.Duration
	log     *slog.Logger

	out     chan Delivery
	done    chan struct{}
	closing sync.Once
	wg      sync.WaitGroup
}

// NewBeacon creates a beacon with a fresh key pair that answers every request
// after delay.
func NewBeacon(delay time.Duration, log *slog.Logger) *Beacon {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	private := suite.Scalar().Pick(suite.RandomStream())
	return &Beacon{
		private: private,
		public:  suite.Point().Mul(private, nil),
		delay:   delay,
		log:     log,
		out:     make(chan Delivery, 16),
		done:    make(chan struct{}),
	}
}

func (b *Beacon) PublicKey() kyber.Point {
	return b.public
}

// Sign produces the delivery for roundID.
func (b *Beacon) Sign(roundID uint64) (Delivery, error) {
	sig, err := schnorr.Sign(suite, b.private, roundMessage(roundID))
	if err != nil {
		return Delivery{}, fmt.Errorf("sign round %d: %w", roundID, err)
	}
	return Delivery{RoundID: roundID, Value: ValueFromProof(sig), Proof: sig}, nil
}

func (b *Beacon) Request(_ context.Context, roundID uint64) error {
	select {
	case <-b.done:
		return fmt.Errorf("beacon closed")
	default:
	}
	d, err := b.Sign(roundID)
	if err != nil {
		return err
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		select {
		case <-time.After(b.delay):
		case <-b.done:
			return
		}
		select {
		case b.out <- d:
			b.log.Debug("randomness delivered", "round", roundID, "value", d.Value)
		case <-b.done:
		}
	}()
	return nil
}

func (b *Beacon) Deliveries() <-chan Delivery {
	return b.out
}

// Close drops pending deliveries.
func (b *Beacon) Close() error {
	b.closing.Do(func() { close(b.done) })
	b.wg.Wait()
	return nil
}

func roundMessage(roundID uint64) []byte {
	msg := make([]byte, 0, 24)
	msg = append(msg, "tair-randomness:"...)
	return binary.BigEndian.AppendUint64(msg, roundID)
}

// ValueFromProof derives the randomness carried by a signature.
func ValueFromProof(proof []byte) uint64 {
	h := sha3.NewLegacyKeccak256()
	h.Write(proof)
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}

// VerifyProof checks that d was produced by the beacon owning public.
func VerifyProof(public kyber.Point, d Delivery) error {
	if err := schnorr.Verify(suite, public, roundMessage(d.RoundID), d.Proof); err != nil {
		return fmt.Errorf("%w: %v", ErrBadProof, err)
	}
	if ValueFromProof(d.Proof) != d.Value {
		return fmt.Errorf("%w: value does not match proof", ErrBadProof)
	}
	return nil
}

// MarshalPublicKey encodes a beacon public key as hex.
func MarshalPublicKey(public kyber.Point) (string, error) {
	b, err := public.MarshalBinary()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ParsePublicKey decodes a key produced by MarshalPublicKey.
func ParsePublicKey(s string) (kyber.Point, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	p := suite.Point()
	if err := p.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	return p, nil
}
