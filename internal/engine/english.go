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

// englishMinBid is the lowest acceptable next bid.
func englishMinBid(ps *poolState) *big.Int {
	if ps.currentBidderAmount1.Sign() == 0 {
		return new(big.Int).Set(ps.AmountMin1)
	}
	if ps.Type == MutantEnglishAuctionNFT {
		factor := new(big.Int).Add(ratioBase, ps.AmountMinIncrRatio1)
		return mulDiv(ps.currentBidderAmount1, factor, ratioBase)
	}
	return new(big.Int).Add(ps.currentBidderAmount1, ps.AmountMinIncr1)
}

// BidEnglish places an open-outcry bid. The displaced leader is refunded
// immediately; in the mutant variant the refund carries its share of the
// bid's surplus and the close window restarts.
func (e *Engine) BidEnglish(ctx context.Context, index uint64, sender common.Address, amount1 *big.Int, proof []common.Hash) error {
	ps, err := e.pool(index)
	if err != nil {
		return err
	}
	switch ps.Type {
	case EnglishAuction, EnglishAuctionNFT, MutantEnglishAuctionNFT:
	default:
		return fmt.Errorf("pool %d is %s: %w", index, ps.Type, ErrWrongPoolType)
	}
	if amount1 == nil || amount1.Sign() <= 0 {
		return ErrZeroAmount
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := e.now()
	if err := e.checkFillable(ps, sender, now, proof); err != nil {
		return err
	}
	if minBid := englishMinBid(ps); amount1.Cmp(minBid) < 0 {
		return fmt.Errorf("pool %d: bid %s below %s: %w", index, amount1, minBid, ErrBidTooLow)
	}

	if err := e.ledger.Transfer(ctx, ps.Token1, sender, e.cfg.Escrow, amount1); err != nil {
		return fmt.Errorf("bid payment: %w", err)
	}

	prevBidder := ps.currentBidder
	prevAmount := new(big.Int).Set(ps.currentBidderAmount1)
	refund := new(big.Int)

	if ps.Type == MutantEnglishAuctionNFT {
		fee := feeOf(amount1, ps.TxFeeRatio)
		ps.txFee.Add(ps.txFee, fee)
		if prevAmount.Sign() > 0 {
			// The surplus over the previous leader, net of fee,
			// feeds the distribution pot; the displaced leader is
			// paid their slice on the spot.
			netDelta := new(big.Int).Sub(amount1, prevAmount)
			netDelta.Sub(netDelta, fee)
			ps.extraAmount1.Add(ps.extraAmount1, netDelta)
			refund.Add(prevAmount, feeOf(netDelta, ps.PrevBidderRatio))
		}
		ps.closeAt = now.Add(ps.CloseIncrInterval)
		ps.claimAt = ps.closeAt.Add(ps.ClaimDelay)
	} else if prevAmount.Sign() > 0 {
		refund.Set(prevAmount)
	}

	if refund.Sign() > 0 {
		if err := e.ledger.Transfer(ctx, ps.Token1, e.cfg.Escrow, prevBidder, refund); err != nil {
			// The new bid already landed; a stuck refund is an
			// operational fault, not a rejection.
			e.log.Error("displaced bidder refund failed",
				zap.Uint64("pool", index),
				zap.String("bidder", prevBidder.Hex()),
				zap.Error(err))
			return fmt.Errorf("displaced refund: %w", err)
		}
		// The displaced leader has nothing at stake anymore.
		ps.participant(prevBidder).amountSwapped1.SetInt64(0)
	}

	if ps.firstBidAmount1.Sign() == 0 {
		ps.firstBidAmount1.Set(amount1)
	}
	ps.currentBidder = sender
	ps.currentBidderAmount1.Set(amount1)
	u := ps.participant(sender)
	u.amountSwapped1.Set(amount1)

	data := model.BidData{
		Amount1: amount1.String(),
		CloseAt: ps.closeAt.Unix(),
	}
	if prevAmount.Sign() > 0 {
		data.PreviousBidder = prevBidder.Hex()
		data.RefundedAmount1 = refund.String()
	}
	e.emit(ctx, index, model.EventBid, sender, data)
	return nil
}

// BidderClaim hands the lot to the final leader once the claim window opens.
func (e *Engine) BidderClaim(ctx context.Context, index uint64, sender common.Address) error {
	ps, err := e.pool(index)
	if err != nil {
		return err
	}
	switch ps.Type {
	case EnglishAuction, EnglishAuctionNFT, MutantEnglishAuctionNFT:
	default:
		return fmt.Errorf("pool %d is %s: %w", index, ps.Type, ErrWrongPoolType)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := e.now()
	if ps.currentBidder != sender || ps.currentBidderAmount1.Sign() == 0 {
		return fmt.Errorf("pool %d: %w", index, ErrNotWinner)
	}
	claimAt := ps.claimAt
	if claimAt.IsZero() {
		claimAt = ps.closeAt
	}
	if now.Before(claimAt) {
		return fmt.Errorf("pool %d: %w", index, ErrClaimNotReady)
	}
	u := ps.participant(sender)
	if u.claimed {
		return fmt.Errorf("pool %d: %w", index, ErrBidderClaimed)
	}

	if err := e.deliverLot(ctx, ps, sender, ps.AmountTotal0, ps.TokenIDs); err != nil {
		return fmt.Errorf("winner delivery: %w", err)
	}
	extra := new(big.Int)
	if ps.Type == MutantEnglishAuctionNFT {
		extra = feeOf(ps.extraAmount1, ps.LastBidderRatio)
		if err := e.ledger.Transfer(ctx, ps.Token1, e.cfg.Escrow, sender, extra); err != nil {
			return fmt.Errorf("winner surplus: %w", err)
		}
	}
	u.claimed = true

	e.emit(ctx, index, model.EventBidderClaimed, sender, model.BidderClaimedData{
		Amount0: bigStr(ps.AmountTotal0),
		Extra1:  extra.String(),
	})
	return nil
}

// englishCreatorClaim settles the creator side. With no bids it cancels the
// pool and returns the lot; with bids it requires the pool closed.
func (e *Engine) englishCreatorClaim(ctx context.Context, ps *poolState, now time.Time) (*model.CreatorClaimedData, error) {
	if ps.currentBidderAmount1.Sign() == 0 {
		if err := e.deliverLot(ctx, ps, ps.Creator, ps.AmountTotal0, ps.TokenIDs); err != nil {
			return nil, fmt.Errorf("cancel lot refund: %w", err)
		}
		ps.canceled = true
		return &model.CreatorClaimedData{
			UnsoldAmount0: bigStr(ps.AmountTotal0),
			Proceeds1:     "0",
			Fee1:          "0",
		}, nil
	}
	if now.Before(ps.closeAt) {
		return nil, fmt.Errorf("pool %d: %w", ps.Index, ErrClaimDuringRunning)
	}

	if ps.Type == MutantEnglishAuctionNFT {
		// Creator is paid the first bid net of its fee; the accrued
		// per-bid fees and the third-party surplus slices flush here,
		// exactly once.
		fee := feeOf(ps.firstBidAmount1, ps.TxFeeRatio)
		net := new(big.Int).Sub(ps.firstBidAmount1, fee)
		if err := e.ledger.Transfer(ctx, ps.Token1, e.cfg.Escrow, ps.Creator, net); err != nil {
			return nil, fmt.Errorf("creator proceeds: %w", err)
		}
		if err := e.ledger.Transfer(ctx, ps.Token1, e.cfg.Escrow, e.cfg.FeeSink, ps.txFee); err != nil {
			return nil, fmt.Errorf("fee flush: %w", err)
		}
		for _, d := range ps.OtherDistributes {
			share := feeOf(ps.extraAmount1, d.Ratio)
			if err := e.ledger.Transfer(ctx, ps.Token1, e.cfg.Escrow, d.Target, share); err != nil {
				return nil, fmt.Errorf("distribute to %s: %w", d.Target, err)
			}
		}
		return &model.CreatorClaimedData{
			UnsoldAmount0: "0",
			Proceeds1:     ps.firstBidAmount1.String(),
			Fee1:          new(big.Int).Set(ps.txFee).String(),
		}, nil
	}

	gross := ps.currentBidderAmount1
	_, fee, err := e.settleWithFee(ctx, ps.Token1, ps.Creator, gross)
	if err != nil {
		return nil, err
	}
	return &model.CreatorClaimedData{
		UnsoldAmount0: "0",
		Proceeds1:     gross.String(),
		Fee1:          fee.String(),
	}, nil
}
