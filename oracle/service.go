package oracle

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/luca-patrignani/tair-protocol/network"
)

// Service answers HTTP randomness requests with values signed by a Beacon.
type Service struct {
	beacon   *Beacon
	requests *network.Server
	client   *network.Client
	delay    time.Duration
	log      *slog.Logger
}

// NewService serves beacon on requests, posting deliveries with client
// after delay.
func NewService(beacon *Beacon, requests *network.Server, client *network.Client, delay time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{
		beacon:   beacon,
		requests: requests,
		client:   client,
		delay:    delay,
		log:      log,
	}
}

// Run handles requests until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-s.requests.Messages:
			var req request
			if err := json.Unmarshal(msg, &req); err != nil || req.Callback == "" {
				s.log.Warn("discarding malformed request", "payload", string(msg), "error", err)
				continue
			}
			d, err := s.beacon.Sign(req.RoundID)
			if err != nil {
				s.log.Error("failed to sign round", "round", req.RoundID, "error", err)
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.deliver(ctx, req.Callback, d)
			}()
		}
	}
}

func (s *Service) deliver(ctx context.Context, callback string, d Delivery) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return
	}
	body, err := json.Marshal(d)
	if err != nil {
		s.log.Error("failed to encode delivery", "round", d.RoundID, "error", err)
		return
	}
	if err := s.client.Post(ctx, callback, body); err != nil {
		s.log.Error("delivery failed", "round", d.RoundID, "callback", callback, "error", err)
		return
	}
	s.log.Info("randomness delivered", "round", d.RoundID, "value", d.Value)
}
