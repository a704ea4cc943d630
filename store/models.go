package store

import (
	"time"

	"github.com/luca-patrignani/tair-protocol/domain/round"
	"github.com/luca-patrignani/tair-protocol/protocol"
)

// EventRecord is one emitted protocol event.
type EventRecord struct {
	ID         uint      `gorm:"primaryKey"`
	Type       string    `gorm:"size:32;index"`
	RoundID    uint64    `gorm:"index"`
	SampleID   uint64    `gorm:"index"`
	Creator    string    `gorm:"size:128"`
	Pot        uint64
	Winner     string    `gorm:"size:128;index"`
	Randomness uint64
	Time       time.Time `gorm:"index"`
	CreatedAt  time.Time
}

// RoundRecord summarizes a round as seen through its events.
type RoundRecord struct {
	ID                    uint   `gorm:"primaryKey"`
	RoundID               uint64 `gorm:"uniqueIndex;not null"`
	SampleID              uint64 `gorm:"index"`
	Creator               string `gorm:"size:128"`
	Pot                   uint64
	Phase                 string `gorm:"size:32;index"`
	Winner                string `gorm:"size:128;index"`
	Randomness            uint64
	CreatedAt             time.Time
	RandomnessRequestedAt *time.Time
	FinalizedAt           *time.Time
	UpdatedAt             time.Time
}

func eventRecord(e protocol.Event) EventRecord {
	return EventRecord{
		Type:       string(e.Type),
		RoundID:    e.RoundID,
		SampleID:   e.SampleID,
		Creator:    string(e.Creator),
		Pot:        uint64(e.Pot),
		Winner:     string(e.Winner),
		Randomness: e.Randomness,
		Time:       e.Time,
	}
}

// apply folds e into the round summary.
func (r *RoundRecord) apply(e protocol.Event) {
	r.RoundID = e.RoundID
	switch e.Type {
	case protocol.EventRoundCreation:
		r.SampleID = e.SampleID
		r.Creator = string(e.Creator)
		r.Pot = uint64(e.Pot)
		r.Phase = string(round.Committing)
		r.CreatedAt = e.Time
	case protocol.EventWillCallOraclize:
		t := e.Time
		r.Phase = string(round.AwaitingRandomness)
		r.RandomnessRequestedAt = &t
	case protocol.EventRoundValidated:
		t := e.Time
		r.Phase = string(round.Finalized)
		r.Winner = string(e.Winner)
		r.Randomness = e.Randomness
		r.FinalizedAt = &t
	}
}
