package ledger

import "github.com/luca-patrignani/tair-protocol/protocol"

// Block is one recorded event.
type Block struct {
	Index     int            `json:"index"`
	Timestamp int64          `json:"timestamp"`
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash"`
	Event     protocol.Event `json:"event"`
}

// genesisType marks the first block, which carries no protocol event.
const genesisType protocol.EventType = "genesis"
