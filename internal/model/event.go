package model

import (
	"encoding/json"
	"time"
)

// EventRecord is the normalized representation of a settlement event for
// storage. Decoded carries the event-specific payload.
type EventRecord struct {
	ChainID   uint64      `json:"chain_id"`
	PoolIndex uint64      `json:"pool_index"`
	Sequence  uint64      `json:"sequence"`
	EventName string      `json:"event_name"`
	Actor     string      `json:"actor"`
	Timestamp int64       `json:"timestamp"`
	Decoded   interface{} `json:"decoded"`
}

// EventRecordRaw is EventRecord with the payload left undecoded, used when
// reading records back from storage.
type EventRecordRaw struct {
	ChainID   uint64          `json:"chain_id"`
	PoolIndex uint64          `json:"pool_index"`
	Sequence  uint64          `json:"sequence"`
	EventName string          `json:"event_name"`
	Actor     string          `json:"actor"`
	Timestamp int64           `json:"timestamp"`
	Decoded   json.RawMessage `json:"decoded"`
}

// Event names emitted by the settlement engine.
const (
	EventCreated         = "Created"
	EventCanceled        = "Canceled"
	EventSwapped         = "Swapped"
	EventReversed        = "Reversed"
	EventBid             = "Bid"
	EventBet             = "Bet"
	EventCreatorClaimed  = "CreatorClaimed"
	EventUserClaimed     = "UserClaimed"
	EventBidderClaimed   = "BidderClaimed"
	EventRandomRequested = "RandomRequested"
	EventRandomFulfilled = "RandomFulfilled"
)

// NewEventRecord stamps the envelope around a decoded payload.
func NewEventRecord(chainID, poolIndex, seq uint64, name, actor string, at time.Time, decoded interface{}) EventRecord {
	return EventRecord{
		ChainID:   chainID,
		PoolIndex: poolIndex,
		Sequence:  seq,
		EventName: name,
		Actor:     actor,
		Timestamp: at.Unix(),
		Decoded:   decoded,
	}
}
