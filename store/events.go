package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/luca-patrignani/tair-protocol/protocol"
	"gorm.io/gorm"
)

// EventStore is a protocol.EventSink writing to the database. Emit only
// queues the event; Run performs the writes so that the protocol never waits
// on the database.
type EventStore struct {
	db    *gorm.DB
	log   *slog.Logger
	queue chan protocol.Event

	closeOnce sync.Once
	done      chan struct{}
}

func NewEventStore(db *gorm.DB, buffer int, log *slog.Logger) *EventStore {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &EventStore{
		db:    db,
		log:   log,
		queue: make(chan protocol.Event, buffer),
		done:  make(chan struct{}),
	}
}

func (s *EventStore) Emit(e protocol.Event) error {
	select {
	case s.queue <- e:
		return nil
	default:
		return fmt.Errorf("event store queue full, dropped %s", e)
	}
}

// Run writes queued events until ctx is done, then drains the queue.
func (s *EventStore) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case e := <-s.queue:
			s.write(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-s.queue:
					s.write(e)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (s *EventStore) Wait() {
	<-s.done
}

func (s *EventStore) write(e protocol.Event) {
	if s.db == nil {
		return
	}
	rec := eventRecord(e)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		var round RoundRecord
		if err := tx.Where(RoundRecord{RoundID: e.RoundID}).FirstOrInit(&round).Error; err != nil {
			return err
		}
		round.apply(e)
		return tx.Save(&round).Error
	})
	if err != nil {
		s.log.Error("persist event", "type", e.Type, "round", e.RoundID, "err", err)
	}
}

// Rounds returns the persisted round summaries, newest first.
func Rounds(db *gorm.DB, limit int) ([]RoundRecord, error) {
	if db == nil {
		return nil, nil
	}
	var out []RoundRecord
	err := db.Order("round_id DESC").Limit(limit).Find(&out).Error
	return out, err
}
