package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/luca-patrignani/tair-protocol/network"
)

// Remote is a Source reached over HTTP.
type Remote struct {
	oracleURL string
	callback  *network.Server
	client    *network.Client
	log       *slog.Logger

	out     chan Delivery
	done    chan struct{}
	closing sync.Once
}

// NewRemote sends requests to oracleURL and decodes deliveries received on
// callback, which must already be started.
func NewRemote(oracleURL string, callback *network.Server, client *network.Client, log *slog.Logger) *Remote {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	r := &Remote{
		oracleURL: oracleURL,
		callback:  callback,
		client:    client,
		log:       log,
		out:       make(chan Delivery, 16),
		done:      make(chan struct{}),
	}
	go r.decode()
	return r
}

func (r *Remote) decode() {
	for {
		select {
		case <-r.done:
			return
		case msg := <-r.callback.Messages:
			var d Delivery
			if err := json.Unmarshal(msg, &d); err != nil {
				r.log.Warn("discarding malformed delivery", "error", err)
				continue
			}
			select {
			case r.out <- d:
			case <-r.done:
				return
			}
		}
	}
}

func (r *Remote) Request(ctx context.Context, roundID uint64) error {
	body, err := json.Marshal(request{RoundID: roundID, Callback: r.callback.URL()})
	if err != nil {
		return err
	}
	if err := r.client.Post(ctx, r.oracleURL, body); err != nil {
		return fmt.Errorf("remote oracle: %w", err)
	}
	return nil
}

func (r *Remote) Deliveries() <-chan Delivery {
	return r.out
}

func (r *Remote) Close() error {
	r.closing.Do(func() { close(r.done) })
	return nil
}
