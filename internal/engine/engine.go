package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"auctionHouse/internal/merkle"
	"auctionHouse/internal/model"
	"auctionHouse/internal/sigauth"
	"auctionHouse/internal/token"
	"auctionHouse/internal/vrf"
)

// EventSink receives the audit record of every state-changing operation.
// Sink failures are logged and never abort settlement.
type EventSink interface {
	Append(ctx context.Context, rec model.EventRecord) error
}

// Config carries the engine-wide settlement parameters.
type Config struct {
	ChainID uint64
	// FeeRatio is 1e18-scale; 25000000000000000 is 2.5%.
	FeeRatio *big.Int
	// FeeSink receives extracted fees.
	FeeSink common.Address
	// Escrow is the account holding pool deposits between fill and claim.
	Escrow common.Address
}

// Engine hosts every pool and applies operations under per-pool locks.
// Lifecycle phases are derived from the injected clock on each call, never
// persisted.
type Engine struct {
	cfg    Config
	ledger token.Ledger
	auth   *sigauth.Authorizer
	coord  vrf.Coordinator
	sink   EventSink
	log    *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	pools []*poolState
	// randomRequests maps a coordinator request id back to its pool.
	randomRequests map[uint64]uint64

	seqMu sync.Mutex
	seq   uint64
}

// Option tweaks engine construction.
type Option func(*Engine)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSink attaches an audit sink.
func WithSink(s EventSink) Option {
	return func(e *Engine) { e.sink = s }
}

func New(cfg Config, ledger token.Ledger, auth *sigauth.Authorizer, coord vrf.Coordinator, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:            cfg,
		ledger:         ledger,
		auth:           auth,
		coord:          coord,
		log:            log,
		now:            time.Now,
		randomRequests: make(map[uint64]uint64),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// PoolCount reports how many pools exist.
func (e *Engine) PoolCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint64(len(e.pools))
}

func (e *Engine) pool(index uint64) (*poolState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if index >= uint64(len(e.pools)) {
		return nil, fmt.Errorf("pool %d: %w", index, ErrPoolNotFound)
	}
	return e.pools[index], nil
}

func (e *Engine) nextSeq() uint64 {
	e.seqMu.Lock()
	defer e.seqMu.Unlock()
	e.seq++
	return e.seq
}

// emit appends an audit record. Settlement has already happened by the time
// emit runs, so a sink failure is logged and swallowed.
func (e *Engine) emit(ctx context.Context, poolIndex uint64, name string, actor common.Address, decoded interface{}) {
	if e.sink == nil {
		return
	}
	rec := model.NewEventRecord(e.cfg.ChainID, poolIndex, e.nextSeq(), name, actor.Hex(), e.now(), decoded)
	if err := e.sink.Append(ctx, rec); err != nil {
		e.log.Warn("event sink append failed",
			zap.Uint64("pool", poolIndex),
			zap.String("event", name),
			zap.Error(err))
	}
}

// checkWhitelist verifies membership when the pool gates on a Merkle root.
func checkWhitelist(ps *poolState, sender common.Address, proof []common.Hash) error {
	if !merkle.Verify(ps.WhitelistRoot, sender, proof) {
		return fmt.Errorf("pool %d sender %s: %w", ps.Index, sender, ErrNotWhitelisted)
	}
	return nil
}

// settleWithFee pays gross out of escrow, splitting off the configured fee.
// Returns (net, fee).
func (e *Engine) settleWithFee(ctx context.Context, tok, to common.Address, gross *big.Int) (*big.Int, *big.Int, error) {
	fee := feeOf(gross, e.cfg.FeeRatio)
	net := new(big.Int).Sub(gross, fee)
	if err := e.ledger.Transfer(ctx, tok, e.cfg.Escrow, to, net); err != nil {
		return nil, nil, fmt.Errorf("settle net: %w", err)
	}
	if err := e.ledger.Transfer(ctx, tok, e.cfg.Escrow, e.cfg.FeeSink, fee); err != nil {
		return nil, nil, fmt.Errorf("settle fee: %w", err)
	}
	return net, fee, nil
}

// deliverLot hands base assets out of escrow: ERC-721 ids, semi-fungible
// units, or a fungible amount.
func (e *Engine) deliverLot(ctx context.Context, ps *poolState, to common.Address, amount *big.Int, ids []uint64) error {
	switch {
	case ps.IsERC721:
		return e.ledger.TransferNFT(ctx, ps.Token0, e.cfg.Escrow, to, ids)
	case len(ps.TokenIDs) > 0:
		return e.ledger.TransferLot(ctx, ps.Token0, ps.TokenIDs[0], e.cfg.Escrow, to, amount)
	default:
		return e.ledger.Transfer(ctx, ps.Token0, e.cfg.Escrow, to, amount)
	}
}

// CreateParams is the full creation request. AuthID is the off-chain
// creation nonce covered by AuthSig together with the pool type.
type CreateParams struct {
	Pool

	AuthID       uint64
	AuthExpireAt time.Time
	AuthSig      []byte
}

// CreatePool authorizes, validates, and escrows a new pool, returning its
// index.
func (e *Engine) CreatePool(ctx context.Context, p CreateParams) (uint64, error) {
	now := e.now()
	if err := e.auth.VerifyCreate(p.Creator, p.AuthID, uint64(p.Type), p.AuthExpireAt, p.AuthSig, now); err != nil {
		if errors.Is(err, sigauth.ErrExpired) {
			return 0, fmt.Errorf("create %q: %w", p.Name, ErrAuthExpired)
		}
		return 0, fmt.Errorf("create %q: %w", p.Name, ErrBadSignature)
	}
	if err := validatePool(&p.Pool, now); err != nil {
		return 0, err
	}

	// Escrow the lot before the pool becomes visible.
	switch {
	case p.IsERC721:
		if err := e.ledger.TransferNFT(ctx, p.Token0, p.Creator, e.cfg.Escrow, p.TokenIDs); err != nil {
			return 0, fmt.Errorf("escrow lot: %w", err)
		}
	case len(p.TokenIDs) > 0:
		if err := e.ledger.TransferLot(ctx, p.Token0, p.TokenIDs[0], p.Creator, e.cfg.Escrow, p.AmountTotal0); err != nil {
			return 0, fmt.Errorf("escrow lot: %w", err)
		}
	default:
		if err := e.ledger.Transfer(ctx, p.Token0, p.Creator, e.cfg.Escrow, p.AmountTotal0); err != nil {
			return 0, fmt.Errorf("escrow lot: %w", err)
		}
	}

	e.mu.Lock()
	p.Index = uint64(len(e.pools))
	ps := newPoolState(p.Pool)
	if p.Type == MutantEnglishAuctionNFT {
		ps.closeAt = p.OpenAt.Add(p.CloseIncrInterval)
		ps.claimAt = ps.closeAt.Add(p.ClaimDelay)
	}
	e.pools = append(e.pools, ps)
	e.mu.Unlock()

	e.log.Info("pool created",
		zap.Uint64("index", p.Index),
		zap.Stringer("type", p.Type),
		zap.String("name", p.Name),
		zap.String("creator", p.Creator.Hex()))
	e.emit(ctx, p.Index, model.EventCreated, p.Creator, model.CreatedData{
		Name:          p.Name,
		PoolType:      p.Type.String(),
		Creator:       p.Creator.Hex(),
		Token0:        p.Token0.Hex(),
		Token1:        p.Token1.Hex(),
		AmountTotal0:  bigStr(p.AmountTotal0),
		AmountTotal1:  bigStr(p.AmountTotal1),
		OpenAt:        p.OpenAt.Unix(),
		CloseAt:       ps.closeAt.Unix(),
		ClaimAt:       ps.claimAt.Unix(),
		WhitelistRoot: rootStr(p.WhitelistRoot),
	})
	return p.Index, nil
}

// validatePool enforces the per-variant parameter shape.
func validatePool(p *Pool, now time.Time) error {
	fail := func(msg string) error {
		return fmt.Errorf("%w: %s", ErrInvalidPoolParameters, msg)
	}
	if p.AmountTotal0 == nil || p.AmountTotal0.Sign() <= 0 {
		return fail("amountTotal0 must be positive")
	}
	if p.Type == MutantEnglishAuctionNFT {
		// The close moves with every bid; only the initial window is
		// validated, via CloseIncrInterval below.
	} else {
		if !p.CloseAt.After(p.OpenAt) {
			return fail("closeAt must be after openAt")
		}
		if p.CloseAt.Before(now) {
			return fail("closeAt in the past")
		}
		if !p.ClaimAt.IsZero() && p.ClaimAt.Before(p.CloseAt) {
			return fail("claimAt before closeAt")
		}
	}
	if p.IsERC721 && uint64(len(p.TokenIDs)) != p.AmountTotal0.Uint64() {
		return fail("tokenIds must match amountTotal0 for erc721 lots")
	}

	switch p.Type {
	case FixedSwap, FixedSwapNFT:
		if p.AmountTotal1 == nil || p.AmountTotal1.Sign() <= 0 {
			return fail("amountTotal1 must be positive")
		}
		// Semi-fungible lots settle against TokenIDs[0].
		if p.Type == FixedSwapNFT && len(p.TokenIDs) == 0 {
			return fail("nft pools need a token id list")
		}
	case DutchAuction:
		if p.AmountMax1 == nil || p.AmountMin1 == nil || p.AmountMin1.Sign() <= 0 {
			return fail("dutch price band must be positive")
		}
		if p.AmountMax1.Cmp(p.AmountMin1) <= 0 {
			return fail("amountMax1 must exceed amountMin1")
		}
		if p.Times == 0 {
			return fail("times must be positive")
		}
	case EnglishAuction, EnglishAuctionNFT:
		if p.AmountMin1 == nil || p.AmountMin1.Sign() <= 0 {
			return fail("amountMin1 must be positive")
		}
		if p.AmountMinIncr1 == nil || p.AmountMinIncr1.Sign() <= 0 {
			return fail("amountMinIncr1 must be positive")
		}
	case MutantEnglishAuctionNFT:
		if p.AmountMin1 == nil || p.AmountMin1.Sign() <= 0 {
			return fail("amountMin1 must be positive")
		}
		if p.AmountMinIncrRatio1 == nil || p.AmountMinIncrRatio1.Sign() <= 0 {
			return fail("amountMinIncrRatio1 must be positive")
		}
		if p.CloseIncrInterval <= 0 {
			return fail("closeIncrInterval must be positive")
		}
		if p.TxFeeRatio == nil || p.TxFeeRatio.Sign() < 0 || p.TxFeeRatio.Cmp(ratioBase) >= 0 {
			return fail("txFeeRatio must be in [0, 1e18)")
		}
		sum := new(big.Int)
		if p.PrevBidderRatio != nil {
			sum.Add(sum, p.PrevBidderRatio)
		}
		if p.LastBidderRatio != nil {
			sum.Add(sum, p.LastBidderRatio)
		}
		for _, d := range p.OtherDistributes {
			if d.Ratio == nil || d.Ratio.Sign() <= 0 {
				return fail("distribute ratio must be positive")
			}
			sum.Add(sum, d.Ratio)
		}
		if sum.Cmp(ratioBase) != 0 {
			return fail("distribution ratios must sum to 1e18")
		}
	case SealedBid:
		if p.AmountTotal1 == nil || p.AmountTotal1.Sign() <= 0 {
			return fail("amountTotal1 must be positive")
		}
	case Random, RandomNFT:
		if p.Amount1PerWallet == nil || p.Amount1PerWallet.Sign() <= 0 {
			return fail("amount1PerWallet must be positive")
		}
		if p.MaxPlayer == 0 || p.NShare == 0 {
			return fail("maxPlayer and nShare must be positive")
		}
	default:
		return fail(fmt.Sprintf("unknown pool type %d", p.Type))
	}
	return nil
}

func bigStr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func rootStr(root common.Hash) string {
	if root == (common.Hash{}) {
		return ""
	}
	return root.Hex()
}
