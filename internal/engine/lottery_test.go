package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// 5 players max, 2 winning shares of a 10-unit lot, tickets at 0.1.
func lotteryPool(env *testEnv) Pool {
	return Pool{
		Type:             Random,
		Name:             "lottery",
		Creator:          creator,
		Token0:           tok0,
		Token1:           tok1,
		AmountTotal0:     eth(10),
		Amount1PerWallet: milliEth(100),
		MaxPlayer:        5,
		NShare:           2,
		OpenAt:           env.t0.Add(time.Hour),
		CloseAt:          env.t0.Add(25 * time.Hour),
	}
}

func (env *testEnv) bet(t *testing.T, index uint64, sender common.Address) uint64 {
	t.Helper()
	env.ledger.Mint(tok1, sender, milliEth(100))
	no, err := env.eng.Bet(context.Background(), index, sender, nil)
	if err != nil {
		t.Fatalf("bet %s: %v", sender, err)
	}
	return no
}

func TestBetSequencingAndLimits(t *testing.T) {
	env := newTestEnv(t)
	index := env.create(t, lotteryPool(env))
	env.clock.Advance(2 * time.Hour)

	if no := env.bet(t, index, buyer1); no != 1 {
		t.Fatalf("first ticket = %d, want 1", no)
	}
	if no := env.bet(t, index, buyer2); no != 2 {
		t.Fatalf("second ticket = %d, want 2", no)
	}
	env.ledger.Mint(tok1, buyer1, milliEth(100))
	if _, err := env.eng.Bet(context.Background(), index, buyer1, nil); !errors.Is(err, ErrAlreadyBet) {
		t.Fatalf("repeat bet err = %v, want ErrAlreadyBet", err)
	}
}

func TestBetPlayerCap(t *testing.T) {
	env := newTestEnv(t)
	p := lotteryPool(env)
	p.MaxPlayer = 2
	index := env.create(t, p)
	env.clock.Advance(2 * time.Hour)

	env.bet(t, index, buyer1)
	env.bet(t, index, buyer2)
	env.ledger.Mint(tok1, buyer3, milliEth(100))
	if _, err := env.eng.Bet(context.Background(), index, buyer3, nil); !errors.Is(err, ErrMaxPlayerReached) {
		t.Fatalf("over-cap bet err = %v, want ErrMaxPlayerReached", err)
	}
}

func TestRequestRandomGates(t *testing.T) {
	env := newTestEnv(t)
	p := lotteryPool(env)
	index := env.create(t, p)
	env.clock.Advance(2 * time.Hour)

	if _, err := env.eng.RequestRandom(context.Background(), index); !errors.Is(err, ErrClaimDuringRunning) {
		t.Fatalf("live request err = %v, want ErrClaimDuringRunning", err)
	}
	env.bet(t, index, buyer1)

	env.clock.Set(p.CloseAt.Add(time.Second))
	reqID, err := env.eng.RequestRandom(context.Background(), index)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := env.eng.RequestRandom(context.Background(), index); !errors.Is(err, ErrRandomPending) {
		t.Fatalf("repeat request err = %v, want ErrRandomPending", err)
	}
	if err := env.coord.Fulfill(reqID); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if _, err := env.eng.RequestRandom(context.Background(), index); !errors.Is(err, ErrRandomKnown) {
		t.Fatalf("post-seed request err = %v, want ErrRandomKnown", err)
	}
	// A second fulfillment of the same request is rejected upstream.
	if err := env.coord.Fulfill(reqID); err == nil {
		t.Fatal("second fulfillment should fail")
	}
}

func TestRequestRandomNoBet(t *testing.T) {
	env := newTestEnv(t)
	p := lotteryPool(env)
	index := env.create(t, p)
	env.clock.Set(p.CloseAt.Add(time.Second))
	if _, err := env.eng.RequestRandom(context.Background(), index); !errors.Is(err, ErrNoBet) {
		t.Fatalf("err = %v, want ErrNoBet", err)
	}
}

// Draw with a chosen seed: 3 players, 2 shares, seed 1 -> tickets 2 and 3
// win, ticket 1 loses.
func TestLotteryDrawAndClaims(t *testing.T) {
	env := newTestEnv(t)
	p := lotteryPool(env)
	index := env.create(t, p)
	env.clock.Advance(2 * time.Hour)

	env.bet(t, index, buyer1) // ticket 1
	env.bet(t, index, buyer2) // ticket 2
	env.bet(t, index, buyer3) // ticket 3

	env.clock.Set(p.CloseAt.Add(time.Second))
	reqID, err := env.eng.RequestRandom(context.Background(), index)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := env.eng.UserClaim(context.Background(), index, buyer1); !errors.Is(err, ErrClaimNotReady) {
		t.Fatalf("pre-seed claim err = %v, want ErrClaimNotReady", err)
	}
	if err := env.coord.FulfillWith(reqID, big.NewInt(1)); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	// Winners take amountTotal0/nShare = 5 each.
	for _, w := range []common.Address{buyer2, buyer3} {
		if err := env.eng.UserClaim(context.Background(), index, w); err != nil {
			t.Fatalf("winner claim %s: %v", w, err)
		}
		if got := env.balance(t, tok0, w); got.Cmp(eth(5)) != 0 {
			t.Fatalf("winner %s lot = %s, want 5e18", w, got)
		}
	}
	// The loser is made whole.
	if err := env.eng.UserClaim(context.Background(), index, buyer1); err != nil {
		t.Fatalf("loser claim: %v", err)
	}
	if got := env.balance(t, tok1, buyer1); got.Cmp(milliEth(100)) != 0 {
		t.Fatalf("loser refund = %s, want 0.1e18", got)
	}
	if got := env.balance(t, tok0, buyer1); got.Sign() != 0 {
		t.Fatalf("loser got lot: %s", got)
	}

	// Creator: 2 winning tickets' revenue minus fee, no unsold lot.
	if err := env.eng.CreatorClaim(context.Background(), index, creator); err != nil {
		t.Fatalf("creator claim: %v", err)
	}
	gross := milliEth(200)
	wantFee := feeOf(gross, milliEth(25))
	wantNet := new(big.Int).Sub(gross, wantFee)
	if got := env.balance(t, tok1, creator); got.Cmp(wantNet) != 0 {
		t.Fatalf("creator = %s, want %s", got, wantNet)
	}
	if got := env.balance(t, tok0, creator); got.Sign() != 0 {
		t.Fatalf("creator lot refund = %s, want 0", got)
	}
}

// Fewer players than shares: the single player always wins one share and the
// other share's lot returns to the creator.
func TestLotteryUndersubscribed(t *testing.T) {
	env := newTestEnv(t)
	p := lotteryPool(env)
	index := env.create(t, p)
	env.clock.Advance(2 * time.Hour)
	env.bet(t, index, buyer1)

	env.clock.Set(p.CloseAt.Add(time.Second))
	reqID, _ := env.eng.RequestRandom(context.Background(), index)
	if err := env.coord.Fulfill(reqID); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	if err := env.eng.UserClaim(context.Background(), index, buyer1); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got := env.balance(t, tok0, buyer1); got.Cmp(eth(5)) != 0 {
		t.Fatalf("winner lot = %s, want 5e18", got)
	}

	if err := env.eng.CreatorClaim(context.Background(), index, creator); err != nil {
		t.Fatalf("creator claim: %v", err)
	}
	// One share of the lot never had a winner.
	if got := env.balance(t, tok0, creator); got.Cmp(eth(5)) != 0 {
		t.Fatalf("unsold lot = %s, want 5e18", got)
	}
	gross := milliEth(100)
	wantNet := new(big.Int).Sub(gross, feeOf(gross, milliEth(25)))
	if got := env.balance(t, tok1, creator); got.Cmp(wantNet) != 0 {
		t.Fatalf("creator revenue = %s, want %s", got, wantNet)
	}
}
