package release

import (
	"errors"
	"fmt"
	"math/big"
	"time"
)

// Type selects how a buyer's purchased base amount unlocks after the sale.
type Type uint8

const (
	Instant  Type = 0
	Cliff    Type = 1
	Linear   Type = 2
	Fragment Type = 3
)

func (t Type) String() string {
	switch t {
	case Instant:
		return "instant"
	case Cliff:
		return "cliff"
	case Linear:
		return "linear"
	case Fragment:
		return "fragment"
	default:
		return fmt.Sprintf("release(%d)", uint8(t))
	}
}

var (
	ErrInvalidSchedule = errors.New("invalid release schedule")
)

// ratioBase scales Fragment ratios, matching the engine's fee scale.
var ratioBase = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Entry is one leg of a schedule. EndAtOrRatio is the linear end time for
// Linear, and a 1e18-scale ratio for Fragment. Cliff and Instant ignore it.
type Entry struct {
	StartAt      time.Time
	EndAtOrRatio *big.Int
}

// Schedule is a validated unlock plan.
type Schedule struct {
	typ     Type
	entries []Entry
}

// New validates entries against the type's shape and returns the schedule.
func New(typ Type, entries []Entry) (*Schedule, error) {
	switch typ {
	case Instant:
		if len(entries) != 0 {
			return nil, fmt.Errorf("%w: instant takes no entries", ErrInvalidSchedule)
		}
	case Cliff:
		if len(entries) != 1 {
			return nil, fmt.Errorf("%w: cliff takes exactly one entry", ErrInvalidSchedule)
		}
	case Linear:
		if len(entries) != 1 {
			return nil, fmt.Errorf("%w: linear takes exactly one entry", ErrInvalidSchedule)
		}
		e := entries[0]
		if e.EndAtOrRatio == nil || !e.EndAtOrRatio.IsInt64() {
			return nil, fmt.Errorf("%w: linear end time out of range", ErrInvalidSchedule)
		}
		if end := time.Unix(e.EndAtOrRatio.Int64(), 0); !end.After(e.StartAt) {
			return nil, fmt.Errorf("%w: linear end must be after start", ErrInvalidSchedule)
		}
	case Fragment:
		if len(entries) == 0 {
			return nil, fmt.Errorf("%w: fragment needs at least one entry", ErrInvalidSchedule)
		}
		sum := new(big.Int)
		for i, e := range entries {
			if e.EndAtOrRatio == nil || e.EndAtOrRatio.Sign() <= 0 {
				return nil, fmt.Errorf("%w: fragment entry %d ratio must be positive", ErrInvalidSchedule, i)
			}
			if i > 0 && e.StartAt.Before(entries[i-1].StartAt) {
				return nil, fmt.Errorf("%w: fragment entries out of order", ErrInvalidSchedule)
			}
			sum.Add(sum, e.EndAtOrRatio)
		}
		if sum.Cmp(ratioBase) != 0 {
			return nil, fmt.Errorf("%w: fragment ratios sum to %s, want 1e18", ErrInvalidSchedule, sum)
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %d", ErrInvalidSchedule, typ)
	}
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &Schedule{typ: typ, entries: cp}, nil
}

// MustNew is New for literals known to be valid.
func MustNew(typ Type, entries []Entry) *Schedule {
	s, err := New(typ, entries)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schedule) Type() Type { return s.typ }

// Released reports how much of total has unlocked by now. Instant releases
// everything immediately; the pool layer gates it behind claimAt.
func (s *Schedule) Released(total *big.Int, now time.Time) *big.Int {
	switch s.typ {
	case Instant:
		return new(big.Int).Set(total)
	case Cliff:
		if now.Before(s.entries[0].StartAt) {
			return new(big.Int)
		}
		return new(big.Int).Set(total)
	case Linear:
		start := s.entries[0].StartAt
		end := time.Unix(s.entries[0].EndAtOrRatio.Int64(), 0)
		if !now.After(start) {
			return new(big.Int)
		}
		if !now.Before(end) {
			return new(big.Int).Set(total)
		}
		elapsed := big.NewInt(now.Unix() - start.Unix())
		span := big.NewInt(end.Unix() - start.Unix())
		out := new(big.Int).Mul(total, elapsed)
		return out.Div(out, span)
	case Fragment:
		ratio := new(big.Int)
		for _, e := range s.entries {
			if now.Before(e.StartAt) {
				break
			}
			ratio.Add(ratio, e.EndAtOrRatio)
		}
		out := new(big.Int).Mul(total, ratio)
		return out.Div(out, ratioBase)
	default:
		return new(big.Int)
	}
}

// Claimable is Released minus what was already claimed, floored at zero.
func (s *Schedule) Claimable(total, claimed *big.Int, now time.Time) *big.Int {
	out := s.Released(total, now)
	out.Sub(out, claimed)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}
