package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"auctionHouse/internal/model"
)

// PlaceSealedBid escrows a committed bid. The price stays hidden behind
// priceHash; the attestation signature proves the off-chain auctioneer saw
// the commitment. One bid per address.
func (e *Engine) PlaceSealedBid(ctx context.Context, index uint64, sender common.Address, amount1 *big.Int, priceHash common.Hash, sig []byte, proof []common.Hash) error {
	ps, err := e.pool(index)
	if err != nil {
		return err
	}
	if ps.Type != SealedBid {
		return fmt.Errorf("pool %d is %s: %w", index, ps.Type, ErrWrongPoolType)
	}
	if amount1 == nil || amount1.Sign() <= 0 {
		return ErrZeroAmount
	}
	if err := e.auth.VerifySealedBid(sender, priceHash, sig); err != nil {
		return fmt.Errorf("pool %d: %w", index, ErrBadSignature)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := e.now()
	if err := e.checkFillable(ps, sender, now, proof); err != nil {
		return err
	}
	u := ps.participant(sender)
	if u.amountSwapped1.Sign() > 0 {
		return fmt.Errorf("pool %d: %w", index, ErrAlreadyBet)
	}

	if err := e.ledger.Transfer(ctx, ps.Token1, sender, e.cfg.Escrow, amount1); err != nil {
		return fmt.Errorf("sealed bid escrow: %w", err)
	}
	u.amountSwapped1.Set(amount1)
	u.priceHash = priceHash

	e.emit(ctx, index, model.EventBid, sender, model.BidData{
		Amount1: amount1.String(),
		CloseAt: ps.closeAt.Unix(),
	})
	return nil
}

// UserClaimSealed settles a bidder against the auctioneer-attested fill:
// filled0 of the lot is delivered and the unfilled part of the escrow comes
// back.
func (e *Engine) UserClaimSealed(ctx context.Context, index uint64, sender common.Address, filled0, filled1 *big.Int, sig []byte) error {
	ps, err := e.pool(index)
	if err != nil {
		return err
	}
	if ps.Type != SealedBid {
		return fmt.Errorf("pool %d is %s: %w", index, ps.Type, ErrWrongPoolType)
	}
	if err := e.auth.VerifyFill(index, sender, filled0, filled1, sig); err != nil {
		return fmt.Errorf("pool %d: %w", index, ErrBadSignature)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := e.now()
	if now.Before(ps.closeAt) {
		return fmt.Errorf("pool %d: %w", index, ErrClaimDuringRunning)
	}
	u, ok := ps.participants[sender]
	if !ok || u.amountSwapped1.Sign() == 0 {
		return fmt.Errorf("pool %d: %w", index, ErrZeroAmount)
	}
	if u.claimed {
		return fmt.Errorf("pool %d: %w", index, ErrBidderClaimed)
	}
	if filled1.Cmp(u.amountSwapped1) > 0 {
		return fmt.Errorf("pool %d: fill exceeds escrow: %w", index, ErrInvalidPoolParameters)
	}

	refund := new(big.Int).Sub(u.amountSwapped1, filled1)
	if err := e.ledger.Transfer(ctx, ps.Token0, e.cfg.Escrow, sender, filled0); err != nil {
		return fmt.Errorf("sealed claim delivery: %w", err)
	}
	if err := e.ledger.Transfer(ctx, ps.Token1, e.cfg.Escrow, sender, refund); err != nil {
		return fmt.Errorf("sealed claim refund: %w", err)
	}
	u.amountSwapped0.Set(filled0)
	u.claimed = true

	e.emit(ctx, index, model.EventUserClaimed, sender, model.UserClaimedData{
		Amount0: filled0.String(),
		Refund1: refund.String(),
	})
	return nil
}

// CreatorClaimSealed settles the creator against the attested aggregate
// fill: the unsold lot comes back and the filled payment pays out net of
// fee.
func (e *Engine) CreatorClaimSealed(ctx context.Context, index uint64, sender common.Address, filled0, filled1 *big.Int, sig []byte) error {
	ps, err := e.pool(index)
	if err != nil {
		return err
	}
	if ps.Type != SealedBid {
		return fmt.Errorf("pool %d is %s: %w", index, ps.Type, ErrWrongPoolType)
	}
	if sender != ps.Creator {
		return fmt.Errorf("pool %d: %w", index, ErrInvalidPoolCreator)
	}
	if err := e.auth.VerifyFill(index, sender, filled0, filled1, sig); err != nil {
		return fmt.Errorf("pool %d: %w", index, ErrBadSignature)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := e.now()
	if now.Before(ps.closeAt) {
		return fmt.Errorf("pool %d: %w", index, ErrClaimDuringRunning)
	}
	if ps.creatorClaimed {
		return fmt.Errorf("pool %d: %w", index, ErrCreatorClaimed)
	}
	if filled0.Cmp(ps.AmountTotal0) > 0 {
		return fmt.Errorf("pool %d: fill exceeds lot: %w", index, ErrInvalidPoolParameters)
	}

	unsold := new(big.Int).Sub(ps.AmountTotal0, filled0)
	if err := e.ledger.Transfer(ctx, ps.Token0, e.cfg.Escrow, ps.Creator, unsold); err != nil {
		return fmt.Errorf("sealed creator unsold refund: %w", err)
	}
	_, fee, err := e.settleWithFee(ctx, ps.Token1, ps.Creator, filled1)
	if err != nil {
		return err
	}
	ps.creatorClaimed = true

	e.emit(ctx, index, model.EventCreatorClaimed, sender, model.CreatorClaimedData{
		UnsoldAmount0: unsold.String(),
		Proceeds1:     filled1.String(),
		Fee1:          fee.String(),
	})
	return nil
}
