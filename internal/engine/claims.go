package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"auctionHouse/internal/model"
)

// UserClaim settles a participant after the pool resolves. Which assets move
// depends on the variant: staged purchases, dutch refunds, or lottery
// outcomes. Sealed-bid pools use UserClaimSealed, english pools BidderClaim.
func (e *Engine) UserClaim(ctx context.Context, index uint64, sender common.Address) error {
	ps, err := e.pool(index)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := e.now()
	var data *model.UserClaimedData
	switch ps.Type {
	case FixedSwap, FixedSwapNFT:
		data, err = e.fixedUserClaim(ctx, ps, sender, now)
	case DutchAuction:
		data, err = e.dutchUserClaim(ctx, ps, sender, now)
	case Random, RandomNFT:
		data, err = e.lotteryUserClaim(ctx, ps, sender, now)
	default:
		return fmt.Errorf("pool %d is %s: %w", index, ps.Type, ErrWrongPoolType)
	}
	if err != nil {
		return err
	}
	e.emit(ctx, index, model.EventUserClaimed, sender, *data)
	return nil
}

// fixedUserClaim releases the staged purchase once the claim window opens,
// honoring the pool's vesting schedule when one is set.
func (e *Engine) fixedUserClaim(ctx context.Context, ps *poolState, sender common.Address, now time.Time) (*model.UserClaimedData, error) {
	u, ok := ps.participants[sender]
	if !ok || u.amountSwapped0.Sign() == 0 {
		return nil, fmt.Errorf("pool %d: %w", ps.Index, ErrZeroAmount)
	}
	if ps.claimAt.IsZero() {
		// Instant pools deliver at swap time; nothing is staged.
		return nil, fmt.Errorf("pool %d: %w", ps.Index, ErrBidderClaimed)
	}
	if now.Before(ps.claimAt) {
		return nil, fmt.Errorf("pool %d: %w", ps.Index, ErrClaimNotReady)
	}

	if ps.IsERC721 {
		if u.claimed {
			return nil, fmt.Errorf("pool %d: %w", ps.Index, ErrBidderClaimed)
		}
		if err := e.ledger.TransferNFT(ctx, ps.Token0, e.cfg.Escrow, sender, u.tokenIDs); err != nil {
			return nil, fmt.Errorf("staged claim delivery: %w", err)
		}
		u.claimed = true
		return &model.UserClaimedData{
			Amount0:  u.amountSwapped0.String(),
			TokenIDs: u.tokenIDs,
		}, nil
	}

	claimable := new(big.Int).Sub(u.amountSwapped0, u.claimed0)
	if ps.Release != nil {
		claimable = ps.Release.Claimable(u.amountSwapped0, u.claimed0, now)
	}
	if claimable.Sign() <= 0 {
		if u.claimed0.Cmp(u.amountSwapped0) >= 0 {
			return nil, fmt.Errorf("pool %d: %w", ps.Index, ErrBidderClaimed)
		}
		return nil, fmt.Errorf("pool %d: %w", ps.Index, ErrClaimNotReady)
	}
	if err := e.deliverLot(ctx, ps, sender, claimable, nil); err != nil {
		return nil, fmt.Errorf("staged claim delivery: %w", err)
	}
	u.claimed0.Add(u.claimed0, claimable)
	return &model.UserClaimedData{Amount0: claimable.String()}, nil
}

// CreatorClaim settles the creator side of any non-sealed pool. Before any
// fill it cancels the pool and returns the lot; after close it pays unsold
// assets plus proceeds net of fee.
func (e *Engine) CreatorClaim(ctx context.Context, index uint64, sender common.Address) error {
	ps, err := e.pool(index)
	if err != nil {
		return err
	}
	if ps.Type == SealedBid {
		return fmt.Errorf("pool %d is %s: %w", index, ps.Type, ErrWrongPoolType)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if sender != ps.Creator {
		return fmt.Errorf("pool %d: %w", index, ErrInvalidPoolCreator)
	}
	if ps.canceled {
		return fmt.Errorf("pool %d: %w", index, ErrCreatorClaimedOrCanceled)
	}
	if ps.creatorClaimed {
		return fmt.Errorf("pool %d: %w", index, ErrCreatorClaimed)
	}

	now := e.now()
	var data *model.CreatorClaimedData
	switch ps.Type {
	case FixedSwap, FixedSwapNFT, DutchAuction, Random, RandomNFT:
		if now.Before(ps.OpenAt) {
			return e.cancelPool(ctx, ps, sender)
		}
		switch ps.Type {
		case DutchAuction:
			data, err = e.dutchCreatorClaim(ctx, ps, now)
		case Random, RandomNFT:
			data, err = e.lotteryCreatorClaim(ctx, ps, now)
		default:
			data, err = e.fixedCreatorClaim(ctx, ps, now)
		}
	case EnglishAuction, EnglishAuctionNFT, MutantEnglishAuctionNFT:
		data, err = e.englishCreatorClaim(ctx, ps, now)
	default:
		return fmt.Errorf("pool %d is %s: %w", index, ps.Type, ErrWrongPoolType)
	}
	if err != nil {
		return err
	}
	if ps.canceled {
		e.emit(ctx, index, model.EventCanceled, sender, *data)
		return nil
	}
	ps.creatorClaimed = true
	e.emit(ctx, index, model.EventCreatorClaimed, sender, *data)
	return nil
}

// cancelPool returns the untouched lot before the pool opens.
func (e *Engine) cancelPool(ctx context.Context, ps *poolState, sender common.Address) error {
	if err := e.deliverLot(ctx, ps, ps.Creator, ps.AmountTotal0, ps.TokenIDs); err != nil {
		return fmt.Errorf("cancel lot refund: %w", err)
	}
	ps.canceled = true
	e.emit(ctx, ps.Index, model.EventCanceled, sender, model.CreatorClaimedData{
		UnsoldAmount0: bigStr(ps.AmountTotal0),
		Proceeds1:     "0",
		Fee1:          "0",
	})
	return nil
}

// fixedCreatorClaim pays the creator the sale proceeds net of fee plus
// whatever part of the lot never sold.
func (e *Engine) fixedCreatorClaim(ctx context.Context, ps *poolState, now time.Time) (*model.CreatorClaimedData, error) {
	if now.Before(ps.closeAt) {
		return nil, fmt.Errorf("pool %d: %w", ps.Index, ErrClaimDuringRunning)
	}

	unsold := new(big.Int).Sub(ps.AmountTotal0, ps.amountSwap0)
	if unsold.Sign() > 0 {
		var unsoldIDs []uint64
		if ps.IsERC721 {
			for i, id := range ps.TokenIDs {
				if ps.swapped0Mask.Bit(i) == 0 {
					unsoldIDs = append(unsoldIDs, id)
				}
			}
		}
		if err := e.deliverLot(ctx, ps, ps.Creator, unsold, unsoldIDs); err != nil {
			return nil, fmt.Errorf("unsold refund: %w", err)
		}
	}
	_, fee, err := e.settleWithFee(ctx, ps.Token1, ps.Creator, ps.amountSwap1)
	if err != nil {
		return nil, err
	}
	return &model.CreatorClaimedData{
		UnsoldAmount0: unsold.String(),
		Proceeds1:     ps.amountSwap1.String(),
		Fee1:          fee.String(),
	}, nil
}
