package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.dedis.ch/kyber/v4"
)

var (
	ErrRandomnessAlreadyRequested = errors.New("randomness already requested")
	ErrUnexpectedDelivery         = errors.New("unexpected randomness delivery")
	ErrBadProof                   = errors.New("invalid randomness proof")
)

type requestState int

const (
	pending requestState = iota + 1
	requested
	delivered
)

// Client tracks requests to a Source and validates its deliveries.
type Client struct {
	source Source
	public kyber.Point
	log    *slog.Logger

	mu    sync.Mutex
	state map[uint64]requestState
}

// NewClient wraps source. If public is not nil every delivery must carry a
// valid proof signed by the matching key.
func NewClient(source Source, public kyber.Point, log *slog.Logger) *Client {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Client{
		source: source,
		public: public,
		log:    log,
		state:  make(map[uint64]requestState),
	}
}

// RequestRandomness asks the source for the randomness of roundID. It can be
// called only once per round; a failed request can be retried. A source error
// is ignored when the delivery for roundID has already been accepted.
func (c *Client) RequestRandomness(ctx context.Context, roundID uint64) error {
	c.mu.Lock()
	if _, ok := c.state[roundID]; ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: round %d", ErrRandomnessAlreadyRequested, roundID)
	}
	c.state[roundID] = pending
	c.mu.Unlock()

	err := c.source.Request(ctx, roundID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if c.state[roundID] == delivered {
			c.log.Warn("randomness request reported an error after its delivery", "round", roundID, "err", err)
			return nil
		}
		delete(c.state, roundID)
		return fmt.Errorf("request randomness for round %d: %w", roundID, err)
	}
	if c.state[roundID] == pending {
		c.state[roundID] = requested
	}
	c.log.Debug("randomness requested", "round", roundID)
	return nil
}

func (c *Client) Deliveries() <-chan Delivery {
	return c.source.Deliveries()
}

// Accept validates d and marks its round as delivered. Deliveries for rounds
// that were never requested, or that were already delivered, are rejected.
func (c *Client) Accept(d Delivery) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state[d.RoundID] {
	case pending, requested:
	case delivered:
		return fmt.Errorf("%w: round %d already delivered", ErrUnexpectedDelivery, d.RoundID)
	default:
		return fmt.Errorf("%w: round %d was never requested", ErrUnexpectedDelivery, d.RoundID)
	}
	if c.public != nil {
		if err := VerifyProof(c.public, d); err != nil {
			return fmt.Errorf("round %d: %w", d.RoundID, err)
		}
	}
	c.state[d.RoundID] = delivered
	return nil
}

// Requested reports whether randomness was requested for roundID.
func (c *Client) Requested(roundID uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.state[roundID]
	return ok
}
