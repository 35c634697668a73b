package token

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeToken is the sentinel token address for the native currency.
var NativeToken = common.Address{}

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotOwner            = errors.New("not token owner")
)

// Ledger is the asset-transfer collaborator the engine settles against.
// Implementations must be atomic per call and fail loudly: a returned error
// means nothing moved.
type Ledger interface {
	// Transfer moves a fungible amount (native currency when token is
	// NativeToken).
	Transfer(ctx context.Context, token, from, to common.Address, amount *big.Int) error
	// TransferNFT moves distinct token ids of a collection.
	TransferNFT(ctx context.Context, token, from, to common.Address, ids []uint64) error
	// TransferLot moves amount units of a semi-fungible id.
	TransferLot(ctx context.Context, token common.Address, id uint64, from, to common.Address, amount *big.Int) error
	// BalanceOf reports the fungible balance.
	BalanceOf(ctx context.Context, token, addr common.Address) (*big.Int, error)
}
