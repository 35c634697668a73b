package sigauth

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrExpired means the authorization deadline has passed.
	ErrExpired = errors.New("authorization expired")
	// ErrSignatureMismatch means the recovered signer is not the trusted one.
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// Authorizer verifies that requests were approved by the trusted off-chain
// signer. Payload hashes are domain-separated by chain id and bound to the
// sender address, so an authorization cannot be replayed by another party or
// on another network.
type Authorizer struct {
	chainID uint64
	signer  common.Address
}

func New(chainID uint64, signer common.Address) *Authorizer {
	return &Authorizer{chainID: chainID, signer: signer}
}

// Signer returns the trusted signer address.
func (a *Authorizer) Signer() common.Address { return a.signer }

// VerifyCreate checks the pool-creation authorization: the signer approved
// (id, poolType) for sender before expireAt.
func (a *Authorizer) VerifyCreate(sender common.Address, id, poolType uint64, expireAt time.Time, sig []byte, now time.Time) error {
	if now.After(expireAt) {
		return ErrExpired
	}
	inner := crypto.Keccak256Hash(wordUint64(id), wordUint64(poolType))
	msg := crypto.Keccak256Hash(
		wordAddress(sender),
		inner.Bytes(),
		wordUint64(a.chainID),
		wordUint64(uint64(expireAt.Unix())),
	)
	return a.verify(msg, sig)
}

// PriceHash is the sealed-bid commitment over the full (amount0, amount1)
// pair a bidder agreed with the signer.
func PriceHash(index uint64, sender common.Address, amount0, amount1 *big.Int) common.Hash {
	return crypto.Keccak256Hash(
		wordUint64(index),
		wordAddress(sender),
		wordBig(amount0),
		wordBig(amount1),
	)
}

// VerifySealedBid checks that the signer attested the sealed-bid commitment
// for sender.
func (a *Authorizer) VerifySealedBid(sender common.Address, priceHash common.Hash, sig []byte) error {
	msg := crypto.Keccak256Hash(
		wordUint64(a.chainID),
		wordAddress(sender),
		priceHash.Bytes(),
	)
	return a.verify(msg, sig)
}

// VerifyFill checks a settlement attestation: the signer approved the exact
// (filled0, filled1) amounts for sender on the given pool.
func (a *Authorizer) VerifyFill(index uint64, sender common.Address, filled0, filled1 *big.Int, sig []byte) error {
	msg := crypto.Keccak256Hash(
		wordUint64(a.chainID),
		wordUint64(index),
		wordAddress(sender),
		wordBig(filled0),
		wordBig(filled1),
	)
	return a.verify(msg, sig)
}

func (a *Authorizer) verify(msg common.Hash, sig []byte) error {
	recovered, err := Recover(msg, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}
	if recovered != a.signer {
		return ErrSignatureMismatch
	}
	return nil
}

// Recover returns the address that personal-signed the 32-byte message hash.
// Wallet signatures carry the recovery id as 27/28; both raw and offset forms
// are accepted.
func Recover(msg common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	digest := accounts.TextHash(msg.Bytes())
	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// wordUint64 ABI-encodes an unsigned integer as a 32-byte word.
func wordUint64(v uint64) []byte {
	return wordBig(new(big.Int).SetUint64(v))
}

func wordBig(v *big.Int) []byte {
	word := make([]byte, 32)
	if v == nil {
		return word
	}
	return v.FillBytes(word)
}

func wordAddress(addr common.Address) []byte {
	word := make([]byte, 32)
	copy(word[12:], addr.Bytes())
	return word
}
