package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"
)

func nftPool(env *testEnv) Pool {
	return Pool{
		Type:         FixedSwapNFT,
		Name:         "punks",
		Creator:      creator,
		Token0:       tok0,
		Token1:       tok1,
		AmountTotal0: big.NewInt(4),
		AmountTotal1: eth(2), // 0.5 per piece
		TokenIDs:     []uint64{101, 102, 103, 104},
		IsERC721:     true,
		OpenAt:       env.t0.Add(time.Hour),
		CloseAt:      env.t0.Add(25 * time.Hour),
	}
}

func TestSwapNFTBitmask(t *testing.T) {
	env := newTestEnv(t)
	index := env.create(t, nftPool(env))
	env.clock.Advance(2 * time.Hour)
	env.ledger.Mint(tok1, buyer1, eth(2))

	// Bits 0 and 2 pick ids 101 and 103.
	ids, charge, err := env.eng.SwapNFT(context.Background(), index, buyer1, big.NewInt(0b0101), nil)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if len(ids) != 2 || ids[0] != 101 || ids[1] != 103 {
		t.Fatalf("ids = %v, want [101 103]", ids)
	}
	if charge.Cmp(eth(1)) != 0 {
		t.Fatalf("charge = %s, want 1e18", charge)
	}
	if owner, _ := env.ledger.OwnerOf(tok0, 101); owner != buyer1 {
		t.Fatalf("id 101 owner = %s", owner)
	}
	if owner, _ := env.ledger.OwnerOf(tok0, 102); owner != escrow {
		t.Fatalf("id 102 left escrow early: %s", owner)
	}
}

func TestSwapNFTSkipsSoldPositions(t *testing.T) {
	env := newTestEnv(t)
	index := env.create(t, nftPool(env))
	env.clock.Advance(2 * time.Hour)
	env.ledger.Mint(tok1, buyer1, eth(2))
	env.ledger.Mint(tok1, buyer2, eth(2))

	if _, _, err := env.eng.SwapNFT(context.Background(), index, buyer1, big.NewInt(0b0011), nil); err != nil {
		t.Fatalf("first swap: %v", err)
	}
	// Overlapping request only acquires the still-free position.
	ids, charge, err := env.eng.SwapNFT(context.Background(), index, buyer2, big.NewInt(0b0110), nil)
	if err != nil {
		t.Fatalf("second swap: %v", err)
	}
	if len(ids) != 1 || ids[0] != 103 {
		t.Fatalf("ids = %v, want [103]", ids)
	}
	if charge.Cmp(milliEth(500)) != 0 {
		t.Fatalf("charge = %s, want 0.5e18", charge)
	}

	// A request left with nothing after the overlap drop is rejected,
	// and nothing is charged.
	before := env.balance(t, tok1, buyer2)
	if _, _, err := env.eng.SwapNFT(context.Background(), index, buyer2, big.NewInt(0b0011), nil); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("sold-out swap err = %v, want ErrZeroAmount", err)
	}
	if after := env.balance(t, tok1, buyer2); after.Cmp(before) != 0 {
		t.Fatalf("sold-out request charged: %s -> %s", before, after)
	}
}

func TestSwapNFTSemiFungible(t *testing.T) {
	env := newTestEnv(t)
	p := nftPool(env)
	p.IsERC721 = false
	p.TokenIDs = []uint64{7}
	p.AmountTotal0 = big.NewInt(10)
	p.AmountTotal1 = eth(1) // 0.1 per unit
	index := env.create(t, p)
	env.clock.Advance(2 * time.Hour)
	env.ledger.Mint(tok1, buyer1, eth(2))

	_, charge, err := env.eng.SwapNFT(context.Background(), index, buyer1, big.NewInt(3), nil)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if charge.Cmp(milliEth(300)) != 0 {
		t.Fatalf("charge = %s, want 0.3e18", charge)
	}
	if got := env.ledger.LotBalanceOf(tok0, 7, buyer1); got.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("units = %s, want 3", got)
	}
	// Over-ask clamps to the remaining 7 units.
	_, charge, err = env.eng.SwapNFT(context.Background(), index, buyer1, big.NewInt(9), nil)
	if err != nil {
		t.Fatalf("clamped swap: %v", err)
	}
	if charge.Cmp(milliEth(700)) != 0 {
		t.Fatalf("clamped charge = %s, want 0.7e18", charge)
	}
}

func TestSemiFungiblePoolRequiresTokenID(t *testing.T) {
	env := newTestEnv(t)
	p := nftPool(env)
	p.IsERC721 = false
	p.TokenIDs = nil
	env.ledger.Mint(p.Token0, p.Creator, p.AmountTotal0)

	if _, err := env.createErr(p); !errors.Is(err, ErrInvalidPoolParameters) {
		t.Fatalf("err = %v, want ErrInvalidPoolParameters", err)
	}
}

func TestNFTCreatorClaimReturnsUnsoldIDs(t *testing.T) {
	env := newTestEnv(t)
	index := env.create(t, nftPool(env))
	env.clock.Advance(2 * time.Hour)
	env.ledger.Mint(tok1, buyer1, eth(2))
	if _, _, err := env.eng.SwapNFT(context.Background(), index, buyer1, big.NewInt(0b0001), nil); err != nil {
		t.Fatalf("swap: %v", err)
	}

	env.clock.Advance(24 * time.Hour)
	if err := env.eng.CreatorClaim(context.Background(), index, creator); err != nil {
		t.Fatalf("creator claim: %v", err)
	}
	for _, id := range []uint64{102, 103, 104} {
		if owner, _ := env.ledger.OwnerOf(tok0, id); owner != creator {
			t.Fatalf("unsold id %d owner = %s, want creator", id, owner)
		}
	}
	wantFee := feeOf(milliEth(500), milliEth(25))
	wantNet := new(big.Int).Sub(milliEth(500), wantFee)
	if got := env.balance(t, tok1, creator); got.Cmp(wantNet) != 0 {
		t.Fatalf("proceeds = %s, want %s", got, wantNet)
	}
}

func TestSwapNFTStagedClaim(t *testing.T) {
	env := newTestEnv(t)
	p := nftPool(env)
	p.ClaimAt = p.CloseAt.Add(time.Hour)
	index := env.create(t, p)
	env.clock.Advance(2 * time.Hour)
	env.ledger.Mint(tok1, buyer1, eth(2))

	ids, _, err := env.eng.SwapNFT(context.Background(), index, buyer1, big.NewInt(0b1010), nil)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ids = %v", ids)
	}
	if owner, _ := env.ledger.OwnerOf(tok0, 102); owner != escrow {
		t.Fatalf("staged id left escrow: %s", owner)
	}

	env.clock.Set(p.ClaimAt.Add(time.Second))
	if err := env.eng.UserClaim(context.Background(), index, buyer1); err != nil {
		t.Fatalf("claim: %v", err)
	}
	for _, id := range []uint64{102, 104} {
		if owner, _ := env.ledger.OwnerOf(tok0, id); owner != buyer1 {
			t.Fatalf("id %d owner = %s, want buyer", id, owner)
		}
	}
	if err := env.eng.UserClaim(context.Background(), index, buyer1); !errors.Is(err, ErrBidderClaimed) {
		t.Fatalf("double claim err = %v, want ErrBidderClaimed", err)
	}
}
