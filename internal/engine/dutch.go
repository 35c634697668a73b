package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"auctionHouse/internal/model"
)

// dutchTotal1 evaluates the step schedule: the whole-lot price starts at
// AmountMax1 and drops to AmountMin1 over Times steps. The schedule divides
// the open window into Times+1 intervals; the price holds AmountMax1 through
// the first and reaches AmountMin1 one interval before close.
func dutchTotal1(ps *poolState, now time.Time) *big.Int {
	if now.Before(ps.OpenAt) {
		return new(big.Int).Set(ps.AmountMax1)
	}
	if !now.Before(ps.closeAt) {
		return new(big.Int).Set(ps.AmountMin1)
	}
	interval := (ps.closeAt.Unix() - ps.OpenAt.Unix()) / int64(ps.Times+1)
	round := uint64(ps.Times)
	if interval > 0 {
		elapsed := uint64((now.Unix() - ps.OpenAt.Unix()) / interval)
		if elapsed < round {
			round = elapsed
		}
	}
	span := new(big.Int).Sub(ps.AmountMax1, ps.AmountMin1)
	drop := new(big.Int).Mul(span, new(big.Int).SetUint64(round))
	drop.Div(drop, new(big.Int).SetUint64(ps.Times))
	return new(big.Int).Sub(ps.AmountMax1, drop)
}

// dutchUnitPrice is the 1e18-scale per-unit price at now.
func dutchUnitPrice(ps *poolState, now time.Time) *big.Int {
	total1 := dutchTotal1(ps, now)
	return mulDiv(total1, ratioBase, ps.AmountTotal0)
}

// DutchCurrentAmount1 reports the current whole-lot price of a dutch pool.
func (e *Engine) DutchCurrentAmount1(index uint64) (*big.Int, error) {
	ps, err := e.pool(index)
	if err != nil {
		return nil, err
	}
	if ps.Type != DutchAuction {
		return nil, fmt.Errorf("pool %d is %s: %w", index, ps.Type, ErrWrongPoolType)
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return dutchTotal1(ps, e.now()), nil
}

// BidDutch buys amount0 units at the current step price. The clearing price
// for the whole pool is the lowest price any fill paid; overpayment comes
// back at claim time.
func (e *Engine) BidDutch(ctx context.Context, index uint64, sender common.Address, amount0 *big.Int, proof []common.Hash) (*big.Int, error) {
	ps, err := e.pool(index)
	if err != nil {
		return nil, err
	}
	if ps.Type != DutchAuction {
		return nil, fmt.Errorf("pool %d is %s: %w", index, ps.Type, ErrWrongPoolType)
	}
	if amount0 == nil || amount0.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := e.now()
	if err := e.checkFillable(ps, sender, now, proof); err != nil {
		return nil, err
	}

	amount0 = new(big.Int).Set(amount0)
	headroom := new(big.Int).Sub(ps.AmountTotal0, ps.amountSwap0)
	if amount0.Cmp(headroom) > 0 {
		amount0 = headroom
	}
	if amount0.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	price := dutchUnitPrice(ps, now)
	amount1 := mulDiv(amount0, price, ratioBase)
	if err := e.ledger.Transfer(ctx, ps.Token1, sender, e.cfg.Escrow, amount1); err != nil {
		return nil, fmt.Errorf("dutch bid payment: %w", err)
	}

	u := ps.participant(sender)
	u.amountSwapped0.Add(u.amountSwapped0, amount0)
	u.amountSwapped1.Add(u.amountSwapped1, amount1)
	ps.amountSwap0.Add(ps.amountSwap0, amount0)
	ps.amountSwap1.Add(ps.amountSwap1, amount1)
	if ps.lowestBidPrice.Sign() == 0 || price.Cmp(ps.lowestBidPrice) < 0 {
		ps.lowestBidPrice.Set(price)
	}

	e.emit(ctx, index, model.EventSwapped, sender, model.SwappedData{
		Amount0: amount0.String(),
		Amount1: amount1.String(),
	})
	return amount1, nil
}

// dutchUserClaim delivers the purchase at the clearing price and refunds the
// overpayment against the prices actually paid.
func (e *Engine) dutchUserClaim(ctx context.Context, ps *poolState, sender common.Address, now time.Time) (*model.UserClaimedData, error) {
	claimAt := ps.claimAt
	if claimAt.IsZero() {
		claimAt = ps.closeAt
	}
	if now.Before(claimAt) {
		return nil, fmt.Errorf("pool %d: %w", ps.Index, ErrClaimNotReady)
	}
	u, ok := ps.participants[sender]
	if !ok || u.amountSwapped0.Sign() == 0 {
		return nil, fmt.Errorf("pool %d: %w", ps.Index, ErrZeroAmount)
	}
	if u.claimed {
		return nil, fmt.Errorf("pool %d: %w", ps.Index, ErrBidderClaimed)
	}

	clearing := mulDiv(u.amountSwapped0, ps.lowestBidPrice, ratioBase)
	refund := new(big.Int).Sub(u.amountSwapped1, clearing)
	if refund.Sign() < 0 {
		refund.SetInt64(0)
	}

	if err := e.deliverLot(ctx, ps, sender, u.amountSwapped0, u.tokenIDs); err != nil {
		return nil, fmt.Errorf("dutch claim delivery: %w", err)
	}
	if err := e.ledger.Transfer(ctx, ps.Token1, e.cfg.Escrow, sender, refund); err != nil {
		return nil, fmt.Errorf("dutch claim refund: %w", err)
	}
	u.claimed = true

	return &model.UserClaimedData{
		Amount0: u.amountSwapped0.String(),
		Refund1: refund.String(),
	}, nil
}

// dutchCreatorClaim settles the creator: unsold refund plus the pool's fill
// repriced at the clearing price, minus fee.
func (e *Engine) dutchCreatorClaim(ctx context.Context, ps *poolState, now time.Time) (*model.CreatorClaimedData, error) {
	if now.Before(ps.closeAt) {
		return nil, fmt.Errorf("pool %d: %w", ps.Index, ErrClaimDuringRunning)
	}
	unsold := new(big.Int).Sub(ps.AmountTotal0, ps.amountSwap0)
	if err := e.ledger.Transfer(ctx, ps.Token0, e.cfg.Escrow, ps.Creator, unsold); err != nil {
		return nil, fmt.Errorf("dutch creator unsold refund: %w", err)
	}
	gross := mulDiv(ps.amountSwap0, ps.lowestBidPrice, ratioBase)
	_, fee, err := e.settleWithFee(ctx, ps.Token1, ps.Creator, gross)
	if err != nil {
		return nil, err
	}
	return &model.CreatorClaimedData{
		UnsoldAmount0: unsold.String(),
		Proceeds1:     gross.String(),
		Fee1:          fee.String(),
	}, nil
}
