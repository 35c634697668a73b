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

// Bet buys one lottery ticket at the fixed price. Tickets are numbered in
// arrival order; the draw later picks a contiguous run of winners.
func (e *Engine) Bet(ctx context.Context, index uint64, sender common.Address, proof []common.Hash) (uint64, error) {
	ps, err := e.pool(index)
	if err != nil {
		return 0, err
	}
	if ps.Type != Random && ps.Type != RandomNFT {
		return 0, fmt.Errorf("pool %d is %s: %w", index, ps.Type, ErrWrongPoolType)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := e.now()
	if err := e.checkFillable(ps, sender, now, proof); err != nil {
		return 0, err
	}
	u := ps.participant(sender)
	if u.betNo != 0 {
		return 0, fmt.Errorf("pool %d: %w", index, ErrAlreadyBet)
	}
	if ps.curPlayer >= ps.MaxPlayer {
		return 0, fmt.Errorf("pool %d: %w", index, ErrMaxPlayerReached)
	}

	if err := e.ledger.Transfer(ctx, ps.Token1, sender, e.cfg.Escrow, ps.Amount1PerWallet); err != nil {
		return 0, fmt.Errorf("bet payment: %w", err)
	}
	ps.curPlayer++
	u.betNo = ps.curPlayer
	u.amountSwapped1.Set(ps.Amount1PerWallet)
	ps.amountSwap1.Add(ps.amountSwap1, ps.Amount1PerWallet)
	ps.betOrder = append(ps.betOrder, sender)

	e.emit(ctx, index, model.EventBet, sender, model.BetData{
		BetNo:   u.betNo,
		Amount1: ps.Amount1PerWallet.String(),
	})
	return u.betNo, nil
}

// RequestRandom asks the randomness gateway for the draw seed. Callable once
// per pool, only after close, and only when anyone actually bet.
func (e *Engine) RequestRandom(ctx context.Context, index uint64) (uint64, error) {
	ps, err := e.pool(index)
	if err != nil {
		return 0, err
	}
	if ps.Type != Random && ps.Type != RandomNFT {
		return 0, fmt.Errorf("pool %d is %s: %w", index, ps.Type, ErrWrongPoolType)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := e.now()
	if now.Before(ps.closeAt) {
		return 0, fmt.Errorf("pool %d: %w", index, ErrClaimDuringRunning)
	}
	if ps.curPlayer == 0 {
		return 0, fmt.Errorf("pool %d: %w", index, ErrNoBet)
	}
	if ps.winnerSeed != nil {
		return 0, fmt.Errorf("pool %d: %w", index, ErrRandomKnown)
	}
	if ps.randomRequested {
		return 0, fmt.Errorf("pool %d: %w", index, ErrRandomPending)
	}

	reqID, err := e.coord.RequestRandomWords(ctx)
	if err != nil {
		return 0, fmt.Errorf("pool %d: request randomness: %w", index, err)
	}
	ps.randomRequested = true
	ps.randomRequestID = reqID
	e.mu.Lock()
	e.randomRequests[reqID] = index
	e.mu.Unlock()

	e.emit(ctx, index, model.EventRandomRequested, common.Address{}, model.RandomRequestedData{
		RequestID: reqID,
	})
	return reqID, nil
}

// FulfillRandomWords delivers the draw seed. A second fulfillment for the
// same request is rejected; the first word is final.
func (e *Engine) FulfillRandomWords(requestID uint64, word *big.Int) error {
	e.mu.Lock()
	index, ok := e.randomRequests[requestID]
	if ok {
		delete(e.randomRequests, requestID)
	}
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("request %d: %w", requestID, ErrRandomKnown)
	}

	ps, err := e.pool(index)
	if err != nil {
		return err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.winnerSeed != nil {
		return fmt.Errorf("pool %d: %w", index, ErrRandomKnown)
	}
	ps.winnerSeed = new(big.Int).Set(word)

	start := new(big.Int).Mod(word, new(big.Int).SetUint64(ps.curPlayer))
	e.log.Info("lottery randomness fulfilled",
		zap.Uint64("pool", index),
		zap.Uint64("request_id", requestID),
		zap.Uint64("start", start.Uint64()),
		zap.Uint64("winners", ps.winnerCount()))
	e.emit(context.Background(), index, model.EventRandomFulfilled, common.Address{}, model.RandomFulfilledData{
		RequestID: requestID,
		Word:      word.String(),
		Start:     start.Uint64(),
		Winners:   ps.winnerCount(),
	})
	return nil
}

// winnerCount is min(NShare, curPlayer): every share finds a winner unless
// fewer players showed up.
func (ps *poolState) winnerCount() uint64 {
	if ps.curPlayer < ps.NShare {
		return ps.curPlayer
	}
	return ps.NShare
}

// isWinningTicket applies the draw: a contiguous run of winnerCount tickets
// starting at (seed mod curPlayer), wrapping around.
func (ps *poolState) isWinningTicket(betNo uint64) bool {
	if ps.winnerSeed == nil || betNo == 0 {
		return false
	}
	start := new(big.Int).Mod(ps.winnerSeed, new(big.Int).SetUint64(ps.curPlayer)).Uint64()
	offset := (betNo - 1 + ps.curPlayer - start%ps.curPlayer) % ps.curPlayer
	return offset < ps.winnerCount()
}

// lotteryUserClaim pays a player out: winners take their share of the lot,
// losers take their stake back in full.
func (e *Engine) lotteryUserClaim(ctx context.Context, ps *poolState, sender common.Address, now time.Time) (*model.UserClaimedData, error) {
	u, ok := ps.participants[sender]
	if !ok || u.betNo == 0 {
		return nil, fmt.Errorf("pool %d: %w", ps.Index, ErrNoBet)
	}
	if u.claimed {
		return nil, fmt.Errorf("pool %d: %w", ps.Index, ErrBidderClaimed)
	}
	claimAt := ps.claimAt
	if claimAt.IsZero() {
		claimAt = ps.closeAt
	}
	if now.Before(claimAt) || ps.winnerSeed == nil {
		return nil, fmt.Errorf("pool %d: %w", ps.Index, ErrClaimNotReady)
	}

	if !ps.isWinningTicket(u.betNo) {
		refund := new(big.Int).Set(u.amountSwapped1)
		if err := e.ledger.Transfer(ctx, ps.Token1, e.cfg.Escrow, sender, refund); err != nil {
			return nil, fmt.Errorf("lottery refund: %w", err)
		}
		u.claimed = true
		return &model.UserClaimedData{Amount0: "0", Refund1: refund.String()}, nil
	}

	share := new(big.Int).Div(ps.AmountTotal0, new(big.Int).SetUint64(ps.NShare))
	var ids []uint64
	if ps.IsERC721 {
		// Winners draw distinct ids off the lot in claim order.
		n := share.Uint64()
		from := ps.winnersClaimed * n
		ids = ps.TokenIDs[from : from+n]
		ps.winnersClaimed++
	}
	if err := e.deliverLot(ctx, ps, sender, share, ids); err != nil {
		return nil, fmt.Errorf("lottery prize delivery: %w", err)
	}
	u.amountSwapped0.Set(share)
	u.claimed = true
	return &model.UserClaimedData{Amount0: share.String(), TokenIDs: ids}, nil
}

// lotteryCreatorClaim settles the creator: ticket revenue for the winning
// shares net of fee, plus the part of the lot no winner can claim.
func (e *Engine) lotteryCreatorClaim(ctx context.Context, ps *poolState, now time.Time) (*model.CreatorClaimedData, error) {
	if now.Before(ps.closeAt) {
		return nil, fmt.Errorf("pool %d: %w", ps.Index, ErrClaimDuringRunning)
	}

	winners := ps.winnerCount()
	gross := new(big.Int).Mul(ps.Amount1PerWallet, new(big.Int).SetUint64(winners))
	share := new(big.Int).Div(ps.AmountTotal0, new(big.Int).SetUint64(ps.NShare))
	unsold := new(big.Int).Sub(ps.AmountTotal0, new(big.Int).Mul(share, new(big.Int).SetUint64(winners)))

	var unsoldIDs []uint64
	if ps.IsERC721 && unsold.Sign() > 0 {
		// The tail of the id list can never be drawn.
		claimable := share.Uint64() * winners
		unsoldIDs = ps.TokenIDs[claimable:]
	}
	if unsold.Sign() > 0 {
		if err := e.deliverLot(ctx, ps, ps.Creator, unsold, unsoldIDs); err != nil {
			return nil, fmt.Errorf("lottery unsold refund: %w", err)
		}
	}
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
