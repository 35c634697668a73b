package storage

import (
	"context"
	"time"

	"auctionHouse/internal/model"
)

// RetrySink retries transient append failures with exponential backoff
// before giving up.
type RetrySink struct {
	inner      Sink
	maxRetries int
	baseDelay  time.Duration
}

func NewRetrySink(inner Sink, maxRetries int, baseDelay time.Duration) *RetrySink {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	return &RetrySink{inner: inner, maxRetries: maxRetries, baseDelay: baseDelay}
}

func (s *RetrySink) Append(ctx context.Context, rec model.EventRecord) error {
	delay := s.baseDelay
	for attempt := 0; ; attempt++ {
		err := s.inner.Append(ctx, rec)
		if err == nil {
			return nil
		}
		if attempt >= s.maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
