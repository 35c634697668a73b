package storage

import (
	"context"

	"auctionHouse/internal/model"
)

// Sink receives settlement event records.
type Sink interface {
	Append(ctx context.Context, rec model.EventRecord) error
}

// Reader serves event records back, for the query surface.
type Reader interface {
	ListByPool(ctx context.Context, poolIndex uint64, limit int) ([]model.EventRecordRaw, error)
}

// Multi fans an event out to several sinks and returns the first error.
type Multi []Sink

func (m Multi) Append(ctx context.Context, rec model.EventRecord) error {
	for _, s := range m {
		if err := s.Append(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
