package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"auctionHouse/internal/model"
)

// Swap fills a fixed-price pool. The requested spend is clamped to the
// remaining lot and the per-wallet cap; the actual amounts are returned.
func (e *Engine) Swap(ctx context.Context, index uint64, sender common.Address, amount1 *big.Int, proof []common.Hash) (*big.Int, *big.Int, error) {
	ps, err := e.pool(index)
	if err != nil {
		return nil, nil, err
	}
	if ps.Type != FixedSwap {
		return nil, nil, fmt.Errorf("pool %d is %s: %w", index, ps.Type, ErrWrongPoolType)
	}
	if amount1 == nil || amount1.Sign() <= 0 {
		return nil, nil, ErrZeroAmount
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := e.now()
	if err := e.checkFillable(ps, sender, now, proof); err != nil {
		return nil, nil, err
	}

	// Proportional fill, floor division in the base asset.
	amount0 := mulDiv(amount1, ps.AmountTotal0, ps.AmountTotal1)
	amount1 = new(big.Int).Set(amount1)

	// Clamp to the unsold remainder.
	headroom := new(big.Int).Sub(ps.AmountTotal0, ps.amountSwap0)
	if amount0.Cmp(headroom) > 0 {
		amount0 = headroom
		amount1 = mulDiv(amount0, ps.AmountTotal1, ps.AmountTotal0)
	}

	u := ps.participant(sender)
	if ps.MaxAmount1PerWallet != nil && ps.MaxAmount1PerWallet.Sign() > 0 {
		room := new(big.Int).Sub(ps.MaxAmount1PerWallet, u.amountSwapped1)
		if amount1.Cmp(room) > 0 {
			amount1 = room
			amount0 = mulDiv(amount1, ps.AmountTotal0, ps.AmountTotal1)
		}
	}
	if amount1.Sign() <= 0 || amount0.Sign() <= 0 {
		return nil, nil, ErrZeroAmount
	}

	if err := e.ledger.Transfer(ctx, ps.Token1, sender, e.cfg.Escrow, amount1); err != nil {
		return nil, nil, fmt.Errorf("swap payment: %w", err)
	}

	released := new(big.Int)
	if ps.claimAt.IsZero() {
		if err := e.ledger.Transfer(ctx, ps.Token0, e.cfg.Escrow, sender, amount0); err != nil {
			// Roll the payment back so the rejection stays atomic.
			if rbErr := e.ledger.Transfer(ctx, ps.Token1, e.cfg.Escrow, sender, amount1); rbErr != nil {
				e.log.Error("swap rollback failed", zap.Uint64("pool", index), zap.Error(rbErr))
			}
			return nil, nil, fmt.Errorf("swap delivery: %w", err)
		}
		released.Set(amount0)
		u.claimed0.Add(u.claimed0, amount0)
	}

	ps.amountSwap0.Add(ps.amountSwap0, amount0)
	ps.amountSwap1.Add(ps.amountSwap1, amount1)
	u.amountSwapped0.Add(u.amountSwapped0, amount0)
	u.amountSwapped1.Add(u.amountSwapped1, amount1)

	e.emit(ctx, index, model.EventSwapped, sender, model.SwappedData{
		Amount0:  amount0.String(),
		Amount1:  amount1.String(),
		Released: released.String(),
	})
	return amount0, amount1, nil
}

// SwapNFT fills a fixed-price NFT pool. For ERC-721 lots amount0 is a
// bitmask over the pool's token id list and only still-available positions
// are filled; for semi-fungible lots it is a unit count. Returns the ids
// delivered (ERC-721) and the amount charged.
func (e *Engine) SwapNFT(ctx context.Context, index uint64, sender common.Address, amount0 *big.Int, proof []common.Hash) ([]uint64, *big.Int, error) {
	ps, err := e.pool(index)
	if err != nil {
		return nil, nil, err
	}
	if ps.Type != FixedSwapNFT {
		return nil, nil, fmt.Errorf("pool %d is %s: %w", index, ps.Type, ErrWrongPoolType)
	}
	if amount0 == nil || amount0.Sign() <= 0 {
		return nil, nil, ErrZeroAmount
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := e.now()
	if err := e.checkFillable(ps, sender, now, proof); err != nil {
		return nil, nil, err
	}
	u := ps.participant(sender)

	if ps.IsERC721 {
		// Already-sold positions are dropped from the request; a fill
		// left with nothing is rejected.
		avail := new(big.Int).AndNot(amount0, ps.swapped0Mask)
		count := int64(0)
		var ids []uint64
		for i := range ps.TokenIDs {
			if avail.Bit(i) == 1 {
				ids = append(ids, ps.TokenIDs[i])
				count++
			}
		}
		if count == 0 {
			return nil, nil, fmt.Errorf("pool %d: nothing left to acquire: %w", index, ErrZeroAmount)
		}
		charge := mulDiv(big.NewInt(count), ps.AmountTotal1, ps.AmountTotal0)
		if err := e.ledger.Transfer(ctx, ps.Token1, sender, e.cfg.Escrow, charge); err != nil {
			return nil, nil, fmt.Errorf("swap payment: %w", err)
		}
		if ps.claimAt.IsZero() {
			if err := e.ledger.TransferNFT(ctx, ps.Token0, e.cfg.Escrow, sender, ids); err != nil {
				if rbErr := e.ledger.Transfer(ctx, ps.Token1, e.cfg.Escrow, sender, charge); rbErr != nil {
					e.log.Error("swap rollback failed", zap.Uint64("pool", index), zap.Error(rbErr))
				}
				return nil, nil, fmt.Errorf("swap delivery: %w", err)
			}
		} else {
			u.tokenIDs = append(u.tokenIDs, ids...)
		}

		ps.swapped0Mask.Or(ps.swapped0Mask, avail)
		ps.amountSwap0.Add(ps.amountSwap0, big.NewInt(count))
		ps.amountSwap1.Add(ps.amountSwap1, charge)
		u.amountSwapped0.Add(u.amountSwapped0, big.NewInt(count))
		u.amountSwapped1.Add(u.amountSwapped1, charge)

		e.emit(ctx, index, model.EventSwapped, sender, model.SwappedData{
			Amount0:  new(big.Int).SetInt64(count).String(),
			Amount1:  charge.String(),
			TokenIDs: ids,
		})
		return ids, charge, nil
	}

	// Semi-fungible: clamp the unit count to the remainder.
	amount0 = new(big.Int).Set(amount0)
	headroom := new(big.Int).Sub(ps.AmountTotal0, ps.amountSwap0)
	if amount0.Cmp(headroom) > 0 {
		amount0 = headroom
	}
	if amount0.Sign() <= 0 {
		return nil, nil, ErrZeroAmount
	}
	charge := mulDiv(amount0, ps.AmountTotal1, ps.AmountTotal0)
	if err := e.ledger.Transfer(ctx, ps.Token1, sender, e.cfg.Escrow, charge); err != nil {
		return nil, nil, fmt.Errorf("swap payment: %w", err)
	}
	if ps.claimAt.IsZero() {
		if err := e.ledger.TransferLot(ctx, ps.Token0, ps.TokenIDs[0], e.cfg.Escrow, sender, amount0); err != nil {
			if rbErr := e.ledger.Transfer(ctx, ps.Token1, e.cfg.Escrow, sender, charge); rbErr != nil {
				e.log.Error("swap rollback failed", zap.Uint64("pool", index), zap.Error(rbErr))
			}
			return nil, nil, fmt.Errorf("swap delivery: %w", err)
		}
		u.claimed0.Add(u.claimed0, amount0)
	}

	ps.amountSwap0.Add(ps.amountSwap0, amount0)
	ps.amountSwap1.Add(ps.amountSwap1, charge)
	u.amountSwapped0.Add(u.amountSwapped0, amount0)
	u.amountSwapped1.Add(u.amountSwapped1, charge)

	e.emit(ctx, index, model.EventSwapped, sender, model.SwappedData{
		Amount0: amount0.String(),
		Amount1: charge.String(),
	})
	return nil, charge, nil
}

// Reverse unwinds part of a fixed-swap fill while the pool is still open.
// The buyer returns amount0 worth of position and receives the matching
// payment back, fee-free.
func (e *Engine) Reverse(ctx context.Context, index uint64, sender common.Address, amount0 *big.Int) (*big.Int, error) {
	ps, err := e.pool(index)
	if err != nil {
		return nil, err
	}
	if ps.Type != FixedSwap {
		return nil, fmt.Errorf("pool %d is %s: %w", index, ps.Type, ErrWrongPoolType)
	}
	if amount0 == nil || amount0.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.EnableReverse {
		return nil, fmt.Errorf("pool %d: %w", index, ErrReverseDisabled)
	}
	now := e.now()
	if ps.canceled || ps.creatorClaimed {
		return nil, fmt.Errorf("pool %d: %w", index, ErrCreatorClaimedOrCanceled)
	}
	if !now.Before(ps.closeAt) {
		return nil, fmt.Errorf("pool %d: %w", index, ErrPoolClosed)
	}

	u := ps.participant(sender)
	if u.amountSwapped0.Cmp(amount0) < 0 {
		return nil, fmt.Errorf("pool %d: reverse exceeds position: %w", index, ErrZeroAmount)
	}
	amount1 := mulDiv(amount0, ps.AmountTotal1, ps.AmountTotal0)

	// If delivery was instant, the buyer hands the base asset back first.
	delivered := new(big.Int).Set(u.claimed0)
	returning := new(big.Int)
	if delivered.Sign() > 0 {
		returning.Set(amount0)
		if returning.Cmp(delivered) > 0 {
			returning.Set(delivered)
		}
		if err := e.ledger.Transfer(ctx, ps.Token0, sender, e.cfg.Escrow, returning); err != nil {
			return nil, fmt.Errorf("reverse return: %w", err)
		}
	}
	if err := e.ledger.Transfer(ctx, ps.Token1, e.cfg.Escrow, sender, amount1); err != nil {
		if returning.Sign() > 0 {
			if rbErr := e.ledger.Transfer(ctx, ps.Token0, e.cfg.Escrow, sender, returning); rbErr != nil {
				e.log.Error("reverse rollback failed", zap.Uint64("pool", index), zap.Error(rbErr))
			}
		}
		return nil, fmt.Errorf("reverse refund: %w", err)
	}

	u.amountSwapped0.Sub(u.amountSwapped0, amount0)
	u.amountSwapped1.Sub(u.amountSwapped1, amount1)
	u.claimed0.Sub(u.claimed0, returning)
	ps.amountSwap0.Sub(ps.amountSwap0, amount0)
	ps.amountSwap1.Sub(ps.amountSwap1, amount1)

	e.emit(ctx, index, model.EventReversed, sender, model.ReversedData{
		Amount0: amount0.String(),
		Amount1: amount1.String(),
	})
	return amount1, nil
}

// checkFillable is the shared gate for fill-side operations: the pool must
// be live, not settled, and the sender whitelisted when the pool gates.
func (e *Engine) checkFillable(ps *poolState, sender common.Address, now time.Time, proof []common.Hash) error {
	if ps.canceled || ps.creatorClaimed {
		return fmt.Errorf("pool %d: %w", ps.Index, ErrCreatorClaimedOrCanceled)
	}
	if now.Before(ps.OpenAt) {
		return fmt.Errorf("pool %d: %w", ps.Index, ErrPoolNotOpen)
	}
	if !now.Before(ps.closeAt) {
		return fmt.Errorf("pool %d: %w", ps.Index, ErrPoolClosed)
	}
	return checkWhitelist(ps, sender, proof)
}
