package stats

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"auctionHouse/internal/model"
)

// Accumulator holds running totals for one pool.
type Accumulator struct {
	PoolIndex   uint64   `json:"pool_index"`
	PoolType    string   `json:"pool_type"`
	FillCount   uint64   `json:"fill_count"`
	BidCount    uint64   `json:"bid_count"`
	Volume1     *big.Int `json:"-"`
	Fee1        *big.Int `json:"-"`
	LastEventTS int64    `json:"last_event_ts"`
}

// Summary is the JSON shape served by the stats endpoint.
type Summary struct {
	PoolIndex   uint64 `json:"pool_index"`
	PoolType    string `json:"pool_type"`
	FillCount   uint64 `json:"fill_count"`
	BidCount    uint64 `json:"bid_count"`
	Volume1     string `json:"volume1"`
	Fee1        string `json:"fee1"`
	LastEventTS int64  `json:"last_event_ts"`
}

// Collector accumulates per-pool totals from the event stream. It plugs into
// the engine as one leg of the sink fan-out.
type Collector struct {
	mu    sync.Mutex
	pools map[uint64]*Accumulator
}

func NewCollector() *Collector {
	return &Collector{pools: make(map[uint64]*Accumulator)}
}

// Append consumes one event record.
func (c *Collector) Append(_ context.Context, rec model.EventRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	acc, ok := c.pools[rec.PoolIndex]
	if !ok {
		acc = &Accumulator{
			PoolIndex: rec.PoolIndex,
			Volume1:   big.NewInt(0),
			Fee1:      big.NewInt(0),
		}
		c.pools[rec.PoolIndex] = acc
	}
	if rec.Timestamp > acc.LastEventTS {
		acc.LastEventTS = rec.Timestamp
	}

	switch data := rec.Decoded.(type) {
	case model.CreatedData:
		acc.PoolType = data.PoolType
	case model.SwappedData:
		acc.FillCount++
		return addAmount(acc.Volume1, data.Amount1)
	case model.BidData:
		acc.BidCount++
		return addAmount(acc.Volume1, data.Amount1)
	case model.BetData:
		acc.BidCount++
		return addAmount(acc.Volume1, data.Amount1)
	case model.CreatorClaimedData:
		return addAmount(acc.Fee1, data.Fee1)
	}
	return nil
}

// Summaries snapshots every pool's totals, keyed by pool index.
func (c *Collector) Summaries() map[uint64]Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[uint64]Summary, len(c.pools))
	for index, acc := range c.pools {
		out[index] = Summary{
			PoolIndex:   acc.PoolIndex,
			PoolType:    acc.PoolType,
			FillCount:   acc.FillCount,
			BidCount:    acc.BidCount,
			Volume1:     acc.Volume1.String(),
			Fee1:        acc.Fee1.String(),
			LastEventTS: acc.LastEventTS,
		}
	}
	return out
}

func addAmount(dst *big.Int, s string) error {
	if s == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("parse amount %q", s)
	}
	dst.Add(dst, v)
	return nil
}
