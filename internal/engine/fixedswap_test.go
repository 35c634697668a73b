package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"auctionHouse/internal/merkle"
	"auctionHouse/internal/release"
)

func TestSwapInstantDelivery(t *testing.T) {
	env := newTestEnv(t)
	index := env.create(t, fixedPool(env))
	env.clock.Advance(2 * time.Hour)
	env.ledger.Mint(tok1, buyer1, eth(1))

	amount0, amount1, err := env.eng.Swap(context.Background(), index, buyer1, milliEth(250), nil)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	// 0.25 of the 1.0 ask buys 2.5 of the 10.0 lot.
	if amount0.Cmp(milliEth(2500)) != 0 {
		t.Fatalf("amount0 = %s, want 2.5e18", amount0)
	}
	if amount1.Cmp(milliEth(250)) != 0 {
		t.Fatalf("amount1 = %s, want 0.25e18", amount1)
	}
	if got := env.balance(t, tok0, buyer1); got.Cmp(milliEth(2500)) != 0 {
		t.Fatalf("buyer lot = %s, want instant 2.5e18", got)
	}
	if got := env.balance(t, tok1, escrow); got.Cmp(milliEth(250)) != 0 {
		t.Fatalf("escrowed payment = %s", got)
	}
}

func TestSwapClampsToRemainder(t *testing.T) {
	env := newTestEnv(t)
	index := env.create(t, fixedPool(env))
	env.clock.Advance(2 * time.Hour)
	env.ledger.Mint(tok1, buyer1, eth(1))
	env.ledger.Mint(tok1, buyer2, eth(1))

	if _, _, err := env.eng.Swap(context.Background(), index, buyer1, milliEth(950), nil); err != nil {
		t.Fatalf("first swap: %v", err)
	}
	// Asking for 0.1 when only 0.05 worth of lot is left charges 0.05.
	amount0, amount1, err := env.eng.Swap(context.Background(), index, buyer2, milliEth(100), nil)
	if err != nil {
		t.Fatalf("second swap: %v", err)
	}
	if amount0.Cmp(milliEth(500)) != 0 {
		t.Fatalf("amount0 = %s, want 0.5e18", amount0)
	}
	if amount1.Cmp(milliEth(50)) != 0 {
		t.Fatalf("amount1 = %s, want 0.05e18", amount1)
	}
	// Sold out now.
	if _, _, err := env.eng.Swap(context.Background(), index, buyer2, milliEth(10), nil); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("sold-out swap err = %v, want ErrZeroAmount", err)
	}
}

func TestSwapHonorsPerWalletCap(t *testing.T) {
	env := newTestEnv(t)
	p := fixedPool(env)
	p.MaxAmount1PerWallet = milliEth(300)
	index := env.create(t, p)
	env.clock.Advance(2 * time.Hour)
	env.ledger.Mint(tok1, buyer1, eth(1))

	if _, _, err := env.eng.Swap(context.Background(), index, buyer1, milliEth(250), nil); err != nil {
		t.Fatalf("first swap: %v", err)
	}
	_, amount1, err := env.eng.Swap(context.Background(), index, buyer1, milliEth(100), nil)
	if err != nil {
		t.Fatalf("second swap: %v", err)
	}
	if amount1.Cmp(milliEth(50)) != 0 {
		t.Fatalf("capped amount1 = %s, want 0.05e18", amount1)
	}
	if _, _, err := env.eng.Swap(context.Background(), index, buyer1, milliEth(10), nil); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("over-cap swap err = %v, want ErrZeroAmount", err)
	}
}

func TestSwapWindowGates(t *testing.T) {
	env := newTestEnv(t)
	index := env.create(t, fixedPool(env))
	env.ledger.Mint(tok1, buyer1, eth(1))

	if _, _, err := env.eng.Swap(context.Background(), index, buyer1, milliEth(100), nil); !errors.Is(err, ErrPoolNotOpen) {
		t.Fatalf("pre-open err = %v, want ErrPoolNotOpen", err)
	}
	env.clock.Advance(26 * time.Hour)
	if _, _, err := env.eng.Swap(context.Background(), index, buyer1, milliEth(100), nil); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("post-close err = %v, want ErrPoolClosed", err)
	}
}

func TestSwapWhitelist(t *testing.T) {
	env := newTestEnv(t)
	tree := merkle.NewTree([]common.Address{buyer1, buyer2})
	p := fixedPool(env)
	p.WhitelistRoot = tree.Root()
	index := env.create(t, p)
	env.clock.Advance(2 * time.Hour)
	env.ledger.Mint(tok1, buyer1, eth(1))
	env.ledger.Mint(tok1, buyer3, eth(1))

	if _, _, err := env.eng.Swap(context.Background(), index, buyer3, milliEth(100), nil); !errors.Is(err, ErrNotWhitelisted) {
		t.Fatalf("outsider err = %v, want ErrNotWhitelisted", err)
	}
	proof, ok := tree.Proof(buyer1)
	if !ok {
		t.Fatal("no proof for member")
	}
	if _, _, err := env.eng.Swap(context.Background(), index, buyer1, milliEth(100), proof); err != nil {
		t.Fatalf("member swap: %v", err)
	}
}

func TestStagedClaim(t *testing.T) {
	env := newTestEnv(t)
	p := fixedPool(env)
	p.ClaimAt = p.CloseAt.Add(time.Hour)
	index := env.create(t, p)
	env.clock.Advance(2 * time.Hour)
	env.ledger.Mint(tok1, buyer1, eth(1))

	if _, _, err := env.eng.Swap(context.Background(), index, buyer1, milliEth(250), nil); err != nil {
		t.Fatalf("swap: %v", err)
	}
	// Delivery is staged, not instant.
	if got := env.balance(t, tok0, buyer1); got.Sign() != 0 {
		t.Fatalf("staged pool delivered instantly: %s", got)
	}
	if err := env.eng.UserClaim(context.Background(), index, buyer1); !errors.Is(err, ErrClaimNotReady) {
		t.Fatalf("early claim err = %v, want ErrClaimNotReady", err)
	}

	env.clock.Set(p.ClaimAt.Add(time.Second))
	if err := env.eng.UserClaim(context.Background(), index, buyer1); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got := env.balance(t, tok0, buyer1); got.Cmp(milliEth(2500)) != 0 {
		t.Fatalf("claimed lot = %s, want 2.5e18", got)
	}
	if err := env.eng.UserClaim(context.Background(), index, buyer1); !errors.Is(err, ErrBidderClaimed) {
		t.Fatalf("double claim err = %v, want ErrBidderClaimed", err)
	}
}

func TestStagedClaimLinearVesting(t *testing.T) {
	env := newTestEnv(t)
	p := fixedPool(env)
	p.ClaimAt = p.CloseAt
	vestEnd := p.ClaimAt.Add(10 * time.Hour)
	p.Release = release.MustNew(release.Linear, []release.Entry{
		{StartAt: p.ClaimAt, EndAtOrRatio: big.NewInt(vestEnd.Unix())},
	})
	index := env.create(t, p)
	env.clock.Advance(2 * time.Hour)
	env.ledger.Mint(tok1, buyer1, eth(1))

	if _, _, err := env.eng.Swap(context.Background(), index, buyer1, milliEth(1000), nil); err != nil {
		t.Fatalf("swap: %v", err)
	}

	// Halfway through vesting half the purchase is claimable.
	env.clock.Set(p.ClaimAt.Add(5 * time.Hour))
	if err := env.eng.UserClaim(context.Background(), index, buyer1); err != nil {
		t.Fatalf("mid-vest claim: %v", err)
	}
	if got := env.balance(t, tok0, buyer1); got.Cmp(eth(5)) != 0 {
		t.Fatalf("mid-vest lot = %s, want 5e18", got)
	}

	env.clock.Set(vestEnd)
	if err := env.eng.UserClaim(context.Background(), index, buyer1); err != nil {
		t.Fatalf("final claim: %v", err)
	}
	if got := env.balance(t, tok0, buyer1); got.Cmp(eth(10)) != 0 {
		t.Fatalf("vested lot = %s, want 10e18", got)
	}
}

func TestReverseUnwindsSwap(t *testing.T) {
	env := newTestEnv(t)
	p := fixedPool(env)
	p.EnableReverse = true
	index := env.create(t, p)
	env.clock.Advance(2 * time.Hour)
	env.ledger.Mint(tok1, buyer1, eth(1))

	if _, _, err := env.eng.Swap(context.Background(), index, buyer1, milliEth(250), nil); err != nil {
		t.Fatalf("swap: %v", err)
	}
	refund, err := env.eng.Reverse(context.Background(), index, buyer1, eth(1))
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if refund.Cmp(milliEth(100)) != 0 {
		t.Fatalf("refund = %s, want 0.1e18", refund)
	}
	// Position shrank to 1.5 of the lot, payment balance back to 0.85.
	if got := env.balance(t, tok0, buyer1); got.Cmp(milliEth(1500)) != 0 {
		t.Fatalf("remaining lot = %s, want 1.5e18", got)
	}
	if got := env.balance(t, tok1, buyer1); got.Cmp(milliEth(850)) != 0 {
		t.Fatalf("payment balance = %s, want 0.85e18", got)
	}
}

func TestReverseDisabled(t *testing.T) {
	env := newTestEnv(t)
	index := env.create(t, fixedPool(env))
	env.clock.Advance(2 * time.Hour)
	env.ledger.Mint(tok1, buyer1, eth(1))
	if _, _, err := env.eng.Swap(context.Background(), index, buyer1, milliEth(250), nil); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if _, err := env.eng.Reverse(context.Background(), index, buyer1, eth(1)); !errors.Is(err, ErrReverseDisabled) {
		t.Fatalf("err = %v, want ErrReverseDisabled", err)
	}
}

func TestFixedCreatorClaim(t *testing.T) {
	env := newTestEnv(t)
	index := env.create(t, fixedPool(env))
	env.clock.Advance(2 * time.Hour)
	env.ledger.Mint(tok1, buyer1, eth(1))
	if _, _, err := env.eng.Swap(context.Background(), index, buyer1, milliEth(250), nil); err != nil {
		t.Fatalf("swap: %v", err)
	}

	if err := env.eng.CreatorClaim(context.Background(), index, buyer1); !errors.Is(err, ErrInvalidPoolCreator) {
		t.Fatalf("stranger claim err = %v, want ErrInvalidPoolCreator", err)
	}
	if err := env.eng.CreatorClaim(context.Background(), index, creator); !errors.Is(err, ErrClaimDuringRunning) {
		t.Fatalf("live claim err = %v, want ErrClaimDuringRunning", err)
	}

	env.clock.Advance(24 * time.Hour)
	if err := env.eng.CreatorClaim(context.Background(), index, creator); err != nil {
		t.Fatalf("creator claim: %v", err)
	}
	// 7.5 of the lot unsold, 0.25 proceeds minus 2.5% fee.
	if got := env.balance(t, tok0, creator); got.Cmp(milliEth(7500)) != 0 {
		t.Fatalf("unsold refund = %s, want 7.5e18", got)
	}
	wantNet := new(big.Int).Sub(milliEth(250), feeOf(milliEth(250), milliEth(25)))
	if got := env.balance(t, tok1, creator); got.Cmp(wantNet) != 0 {
		t.Fatalf("proceeds = %s, want %s", got, wantNet)
	}
	if got := env.balance(t, tok1, feeSink); got.Cmp(feeOf(milliEth(250), milliEth(25))) != 0 {
		t.Fatalf("fee = %s", got)
	}
	if err := env.eng.CreatorClaim(context.Background(), index, creator); !errors.Is(err, ErrCreatorClaimed) {
		t.Fatalf("double claim err = %v, want ErrCreatorClaimed", err)
	}
}

func TestPreOpenCreatorClaimCancels(t *testing.T) {
	env := newTestEnv(t)
	index := env.create(t, fixedPool(env))

	if err := env.eng.CreatorClaim(context.Background(), index, creator); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := env.balance(t, tok0, creator); got.Cmp(eth(10)) != 0 {
		t.Fatalf("lot refund = %s, want 10e18", got)
	}
	env.clock.Advance(2 * time.Hour)
	env.ledger.Mint(tok1, buyer1, eth(1))
	if _, _, err := env.eng.Swap(context.Background(), index, buyer1, milliEth(100), nil); !errors.Is(err, ErrCreatorClaimedOrCanceled) {
		t.Fatalf("swap on canceled err = %v, want ErrCreatorClaimedOrCanceled", err)
	}
}
