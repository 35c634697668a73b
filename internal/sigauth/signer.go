package sigauth

import (
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer produces the authorizations an Authorizer verifies. It exists for
// operators running their own approval service and for tests; production
// setups usually keep the key in an external signing service.
type Signer struct {
	chainID uint64
	key     *ecdsa.PrivateKey
}

func NewSigner(chainID uint64, key *ecdsa.PrivateKey) *Signer {
	return &Signer{chainID: chainID, key: key}
}

// Address returns the signer's address.
func (s *Signer) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// SignCreate authorizes pool creation of (id, poolType) by sender until
// expireAt.
func (s *Signer) SignCreate(sender common.Address, id, poolType uint64, expireAt time.Time) ([]byte, error) {
	inner := crypto.Keccak256Hash(wordUint64(id), wordUint64(poolType))
	msg := crypto.Keccak256Hash(
		wordAddress(sender),
		inner.Bytes(),
		wordUint64(s.chainID),
		wordUint64(uint64(expireAt.Unix())),
	)
	return s.sign(msg)
}

// SignSealedBid attests a sealed-bid commitment for sender.
func (s *Signer) SignSealedBid(sender common.Address, priceHash common.Hash) ([]byte, error) {
	msg := crypto.Keccak256Hash(
		wordUint64(s.chainID),
		wordAddress(sender),
		priceHash.Bytes(),
	)
	return s.sign(msg)
}

// SignFill attests settlement amounts for sender on a pool.
func (s *Signer) SignFill(index uint64, sender common.Address, filled0, filled1 *big.Int) ([]byte, error) {
	msg := crypto.Keccak256Hash(
		wordUint64(s.chainID),
		wordUint64(index),
		wordAddress(sender),
		wordBig(filled0),
		wordBig(filled1),
	)
	return s.sign(msg)
}

func (s *Signer) sign(msg common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg.Bytes()), s.key)
	if err != nil {
		return nil, err
	}
	// present the recovery id the way wallets do
	sig[64] += 27
	return sig, nil
}
