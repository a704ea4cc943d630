package protocol

import (
	"fmt"
	"sync"
	"time"

	"github.com/luca-patrignani/tair-protocol/domain/stake"
)

type EventType string

const (
	EventRoundCreation    EventType = "RoundCreation"
	EventWillCallOraclize EventType = "WillCallOraclize"
	EventRoundValidated   EventType = "RoundValidated"
)

// Event is an observable protocol fact. Fields that do not apply to Type are
// left zero.
type Event struct {
	Type       EventType           `json:"type"`
	RoundID    uint64              `json:"round_id"`
	SampleID   uint64              `json:"sample_id,omitempty"`
	Creator    stake.ParticipantID `json:"creator,omitempty"`
	Pot        stake.Amount        `json:"pot,omitempty"`
	Winner     stake.ParticipantID `json:"winner,omitempty"`
	Randomness uint64              `json:"randomness,omitempty"`
	Time       time.Time           `json:"time"`
}

func (e Event) String() string {
	switch e.Type {
	case EventRoundCreation:
		return fmt.Sprintf("%s(%d, sample=%d, value=%d)", e.Type, e.RoundID, e.SampleID, e.Pot)
	case EventRoundValidated:
		return fmt.Sprintf("%s(%d, winner=%s)", e.Type, e.RoundID, e.Winner)
	default:
		return fmt.Sprintf("%s(%d)", e.Type, e.RoundID)
	}
}

// EventSink receives every event exactly once, in the order the coordinator
// emits them. Emit is called while the emitting round is locked and must not
// call back into the Coordinator.
type EventSink interface {
	Emit(Event) error
}

// Recorder is an in-memory EventSink.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Feed fans events out to a channel. Events are dropped when the channel is
// full, so a slow reader never stalls the protocol.
type Feed struct {
	C       chan Event
	dropped func(Event)
}

func NewFeed(buffer int, dropped func(Event)) *Feed {
	return &Feed{C: make(chan Event, buffer), dropped: dropped}
}

func (f *Feed) Emit(e Event) error {
	select {
	case f.C <- e:
		return nil
	default:
		if f.dropped != nil {
			f.dropped(e)
		}
		return fmt.Errorf("event feed full, dropped %s", e)
	}
}
