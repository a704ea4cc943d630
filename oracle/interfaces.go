package oracle

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Source produces randomness for rounds asynchronously.
type Source interface {
	// Request asks for the randomness of roundID. It must not block until the
	// value is available.
	Request(ctx context.Context, roundID uint64) error
	// Deliveries returns the channel the values are delivered on.
	Deliveries() <-chan Delivery
}

// Delivery carries the randomness of a round.
type Delivery struct {
	RoundID uint64
	Value   uint64
	Proof   []byte
}

type deliveryJSON struct {
	RoundID uint64 `json:"round_id"`
	Value   uint64 `json:"value"`
	Proof   string `json:"proof,omitempty"`
}

func (d Delivery) MarshalJSON() ([]byte, error) {
	return json.Marshal(deliveryJSON{
		RoundID: d.RoundID,
		Value:   d.Value,
		Proof:   hex.EncodeToString(d.Proof),
	})
}

func (d *Delivery) UnmarshalJSON(data []byte) error {
	var raw deliveryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	proof, err := hex.DecodeString(raw.Proof)
	if err != nil {
		return fmt.Errorf("invalid proof encoding: %w", err)
	}
	*d = Delivery{RoundID: raw.RoundID, Value: raw.Value, Proof: proof}
	return nil
}

// request is the body POSTed to a remote oracle.
type request struct {
	RoundID  uint64 `json:"round_id"`
	Callback string `json:"callback"`
}
