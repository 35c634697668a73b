package engine

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"auctionHouse/internal/release"
)

// PoolType tags the auction variant. Numeric values are part of the creation
// authorization payload and must stay stable.
type PoolType uint8

const (
	FixedSwap               PoolType = 0
	DutchAuction            PoolType = 1
	SealedBid               PoolType = 2
	Random                  PoolType = 3
	FixedSwapNFT            PoolType = 4
	EnglishAuctionNFT       PoolType = 5
	RandomNFT               PoolType = 6
	EnglishAuction          PoolType = 7
	MutantEnglishAuctionNFT PoolType = 8
)

func (t PoolType) String() string {
	switch t {
	case FixedSwap:
		return "fixed_swap"
	case DutchAuction:
		return "dutch_auction"
	case SealedBid:
		return "sealed_bid"
	case Random:
		return "random"
	case FixedSwapNFT:
		return "fixed_swap_nft"
	case EnglishAuctionNFT:
		return "english_auction_nft"
	case RandomNFT:
		return "random_nft"
	case EnglishAuction:
		return "english_auction"
	case MutantEnglishAuctionNFT:
		return "mutant_english_auction_nft"
	default:
		return fmt.Sprintf("pool_type(%d)", uint8(t))
	}
}

// Distribute routes a 1e18-scale share of the mutant variant's accrued
// surplus to a target at creator settlement.
type Distribute struct {
	Target common.Address
	Ratio  *big.Int
}

// Pool holds the immutable parameters fixed at creation. Which fields are
// meaningful depends on Type; CreatePool validates the combination.
type Pool struct {
	Index   uint64
	Type    PoolType
	Name    string
	Creator common.Address

	// Token0 is the asset being sold, Token1 the payment asset. The zero
	// address means native currency.
	Token0 common.Address
	Token1 common.Address

	AmountTotal0 *big.Int
	AmountTotal1 *big.Int

	// Dutch price band and step count.
	AmountMax1 *big.Int
	AmountMin1 *big.Int
	Times      uint64

	// English increments: absolute for the classic variant, 1e18-scale
	// ratio for the mutant variant.
	AmountMinIncr1      *big.Int
	AmountMinIncrRatio1 *big.Int

	// Fixed-swap per-wallet spend cap, nil or zero = uncapped.
	MaxAmount1PerWallet *big.Int

	// Lottery ticket price, player cap, and share count.
	Amount1PerWallet *big.Int
	MaxPlayer        uint64
	NShare           uint64

	OpenAt  time.Time
	CloseAt time.Time
	ClaimAt time.Time

	// Mutant variant: each bid extends the close by CloseIncrInterval and
	// the claim window trails the close by ClaimDelay.
	CloseIncrInterval time.Duration
	ClaimDelay        time.Duration

	// NFT lots. IsERC721 pools list one distinct id per unit of
	// AmountTotal0; otherwise TokenIDs[0] is the semi-fungible id.
	TokenIDs []uint64
	IsERC721 bool

	WhitelistRoot common.Hash
	EnableReverse bool

	Release *release.Schedule

	// Mutant surplus split, summing to 1e18 with OtherDistributes.
	PrevBidderRatio  *big.Int
	LastBidderRatio  *big.Int
	OtherDistributes []Distribute

	// TxFeeRatio is the mutant variant's per-bid fee, 1e18-scale. It
	// overrides the engine-wide ratio for that variant only.
	TxFeeRatio *big.Int
}

// participant is the per-(pool, address) mutable record.
type participant struct {
	amountSwapped0 *big.Int
	amountSwapped1 *big.Int
	claimed        bool
	// claimed0 counts base units already released under a vesting schedule.
	claimed0 *big.Int
	// tokenIDs are the ERC-721 ids owed to this buyer.
	tokenIDs []uint64
	// betNo is the 1-based lottery ticket number.
	betNo uint64
	// priceHash is the sealed-bid commitment.
	priceHash common.Hash
}

func newParticipant() *participant {
	return &participant{
		amountSwapped0: new(big.Int),
		amountSwapped1: new(big.Int),
		claimed0:       new(big.Int),
	}
}

// poolState wraps the immutable parameters with everything operations mutate.
// All access goes through mu.
type poolState struct {
	mu sync.RWMutex

	Pool

	amountSwap0 *big.Int
	amountSwap1 *big.Int

	// swapped0Mask marks sold ERC-721 positions for fixed NFT pools.
	swapped0Mask *big.Int

	lowestBidPrice *big.Int

	currentBidder        common.Address
	currentBidderAmount1 *big.Int
	firstBidAmount1      *big.Int

	// Mutant accumulators.
	txFee        *big.Int
	extraAmount1 *big.Int

	// closeAt/claimAt shadow the parameters for variants that move them.
	closeAt time.Time
	claimAt time.Time

	curPlayer       uint64
	winnersClaimed  uint64
	randomRequested bool
	randomRequestID uint64
	winnerSeed      *big.Int

	creatorClaimed bool
	canceled       bool

	participants map[common.Address]*participant
	// betOrder maps ticket number to player for lottery settlement reads.
	betOrder []common.Address
}

func newPoolState(p Pool) *poolState {
	return &poolState{
		Pool:                 p,
		amountSwap0:          new(big.Int),
		amountSwap1:          new(big.Int),
		swapped0Mask:         new(big.Int),
		lowestBidPrice:       new(big.Int),
		currentBidderAmount1: new(big.Int),
		firstBidAmount1:      new(big.Int),
		txFee:                new(big.Int),
		extraAmount1:         new(big.Int),
		closeAt:              p.CloseAt,
		claimAt:              p.ClaimAt,
		participants:         make(map[common.Address]*participant),
	}
}

func (ps *poolState) participant(addr common.Address) *participant {
	u, ok := ps.participants[addr]
	if !ok {
		u = newParticipant()
		ps.participants[addr] = u
	}
	return u
}

// isOpen reports whether the pool accepts fills at now.
func (ps *poolState) isOpen(now time.Time) bool {
	return !now.Before(ps.OpenAt) && now.Before(ps.closeAt)
}

// Status derives the externally visible lifecycle phase. Nothing persists a
// phase; it is always recomputed against the clock.
func (ps *poolState) status(now time.Time) string {
	switch {
	case ps.canceled:
		return "canceled"
	case now.Before(ps.OpenAt):
		return "upcoming"
	case now.Before(ps.closeAt):
		return "live"
	default:
		return "closed"
	}
}
