package token

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemLedger is an in-process Ledger keyed by (token, holder). It backs the
// engine in tests and in the standalone serving mode, where deposits are
// credited out of band.
type MemLedger struct {
	mu       sync.Mutex
	balances map[common.Address]map[common.Address]*big.Int
	owners   map[common.Address]map[uint64]common.Address
	lots     map[common.Address]map[uint64]map[common.Address]*big.Int
}

func NewMemLedger() *MemLedger {
	return &MemLedger{
		balances: make(map[common.Address]map[common.Address]*big.Int),
		owners:   make(map[common.Address]map[uint64]common.Address),
		lots:     make(map[common.Address]map[uint64]map[common.Address]*big.Int),
	}
}

// Mint credits a fungible balance. Test and deposit plumbing only.
func (l *MemLedger) Mint(token, to common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(token, to, amount)
}

// MintNFT assigns ownership of distinct ids.
func (l *MemLedger) MintNFT(token, to common.Address, ids ...uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.owners[token]
	if !ok {
		m = make(map[uint64]common.Address)
		l.owners[token] = m
	}
	for _, id := range ids {
		m[id] = to
	}
}

// MintLot credits units of a semi-fungible id.
func (l *MemLedger) MintLot(token common.Address, id uint64, to common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.creditLot(token, id, to, amount)
}

func (l *MemLedger) Transfer(_ context.Context, token, from, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("transfer %s: negative amount", token)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balance(token, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s from %s: %w", token, from, ErrInsufficientBalance)
	}
	bal.Sub(bal, amount)
	l.credit(token, to, amount)
	return nil
}

func (l *MemLedger) TransferNFT(_ context.Context, token, from, to common.Address, ids []uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.owners[token]
	for _, id := range ids {
		if m == nil || m[id] != from {
			return fmt.Errorf("transfer %s id %d from %s: %w", token, id, from, ErrNotOwner)
		}
	}
	for _, id := range ids {
		m[id] = to
	}
	return nil
}

func (l *MemLedger) TransferLot(_ context.Context, token common.Address, id uint64, from, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.lotBalance(token, id, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s id %d from %s: %w", token, id, from, ErrInsufficientBalance)
	}
	bal.Sub(bal, amount)
	l.creditLot(token, id, to, amount)
	return nil
}

func (l *MemLedger) BalanceOf(_ context.Context, token, addr common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance(token, addr)), nil
}

// OwnerOf reports the holder of an id, for assertions.
func (l *MemLedger) OwnerOf(token common.Address, id uint64) (common.Address, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.owners[token]
	if !ok {
		return common.Address{}, false
	}
	owner, ok := m[id]
	return owner, ok
}

// LotBalanceOf reports units of a semi-fungible id held by addr.
func (l *MemLedger) LotBalanceOf(token common.Address, id uint64, addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.lotBalance(token, id, addr))
}

func (l *MemLedger) balance(token, addr common.Address) *big.Int {
	m, ok := l.balances[token]
	if !ok {
		m = make(map[common.Address]*big.Int)
		l.balances[token] = m
	}
	b, ok := m[addr]
	if !ok {
		b = new(big.Int)
		m[addr] = b
	}
	return b
}

func (l *MemLedger) credit(token, to common.Address, amount *big.Int) {
	b := l.balance(token, to)
	b.Add(b, amount)
}

func (l *MemLedger) lotBalance(token common.Address, id uint64, addr common.Address) *big.Int {
	byID, ok := l.lots[token]
	if !ok {
		byID = make(map[uint64]map[common.Address]*big.Int)
		l.lots[token] = byID
	}
	byAddr, ok := byID[id]
	if !ok {
		byAddr = make(map[common.Address]*big.Int)
		byID[id] = byAddr
	}
	b, ok := byAddr[addr]
	if !ok {
		b = new(big.Int)
		byAddr[addr] = b
	}
	return b
}

func (l *MemLedger) creditLot(token common.Address, id uint64, to common.Address, amount *big.Int) {
	b := l.lotBalance(token, id, to)
	b.Add(b, amount)
}
