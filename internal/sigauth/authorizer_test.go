package sigauth

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const chainID = 1337

func newPair(t *testing.T) (*Signer, *Authorizer) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := NewSigner(chainID, key)
	return signer, New(chainID, signer.Address())
}

func TestVerifyCreate(t *testing.T) {
	signer, auth := newPair(t)
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	now := time.Unix(1700000000, 0)
	expireAt := now.Add(10 * time.Minute)

	sig, err := signer.SignCreate(sender, 0, 1, expireAt)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := auth.VerifyCreate(sender, 0, 1, expireAt, sig, now); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyCreateExpired(t *testing.T) {
	signer, auth := newPair(t)
	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	expireAt := time.Unix(1700000000, 0)

	sig, err := signer.SignCreate(sender, 3, 0, expireAt)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	err = auth.VerifyCreate(sender, 3, 0, expireAt, sig, expireAt.Add(time.Second))
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("want ErrExpired, got %v", err)
	}
}

func TestVerifyCreateRejectsTamperedPayload(t *testing.T) {
	signer, auth := newPair(t)
	sender := common.HexToAddress("0x3333333333333333333333333333333333333333")
	now := time.Unix(1700000000, 0)
	expireAt := now.Add(time.Hour)

	sig, err := signer.SignCreate(sender, 0, 0, expireAt)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	cases := []struct {
		name     string
		sender   common.Address
		id       uint64
		poolType uint64
	}{
		{"other sender", common.HexToAddress("0x4444444444444444444444444444444444444444"), 0, 0},
		{"other id", sender, 1, 0},
		{"other type", sender, 0, 5},
	}
	for _, tc := range cases {
		err := auth.VerifyCreate(tc.sender, tc.id, tc.poolType, expireAt, sig, now)
		if !errors.Is(err, ErrSignatureMismatch) {
			t.Fatalf("%s: want ErrSignatureMismatch, got %v", tc.name, err)
		}
	}
}

func TestVerifyCreateRejectsForeignSigner(t *testing.T) {
	_, auth := newPair(t)
	stranger, _ := newPair(t)
	sender := common.HexToAddress("0x5555555555555555555555555555555555555555")
	now := time.Unix(1700000000, 0)
	expireAt := now.Add(time.Hour)

	sig, err := stranger.SignCreate(sender, 0, 0, expireAt)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := auth.VerifyCreate(sender, 0, 0, expireAt, sig, now); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("want ErrSignatureMismatch, got %v", err)
	}
}

func TestSealedBidRoundTrip(t *testing.T) {
	signer, auth := newPair(t)
	sender := common.HexToAddress("0x6666666666666666666666666666666666666666")
	amount0 := big.NewInt(10)
	amount1 := big.NewInt(5)

	hash := PriceHash(2, sender, amount0, amount1)
	if hash == (common.Hash{}) {
		t.Fatal("empty price hash")
	}
	sig, err := signer.SignSealedBid(sender, hash)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := auth.VerifySealedBid(sender, hash, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
	other := PriceHash(2, sender, amount0, big.NewInt(6))
	if err := auth.VerifySealedBid(sender, other, sig); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("want ErrSignatureMismatch, got %v", err)
	}
}

func TestFillRoundTrip(t *testing.T) {
	signer, auth := newPair(t)
	sender := common.HexToAddress("0x7777777777777777777777777777777777777777")
	filled0 := new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18))
	filled1 := new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18))

	sig, err := signer.SignFill(0, sender, filled0, filled1)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := auth.VerifyFill(0, sender, filled0, filled1, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := auth.VerifyFill(0, sender, filled1, filled0, sig); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("swapped amounts must not verify, got %v", err)
	}
	if err := auth.VerifyFill(1, sender, filled0, filled1, sig); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("other pool must not verify, got %v", err)
	}
}
