package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolView is the externally visible snapshot of a pool.
type PoolView struct {
	Index         uint64   `json:"index"`
	Type          string   `json:"type"`
	Name          string   `json:"name"`
	Status        string   `json:"status"`
	Creator       string   `json:"creator"`
	Token0        string   `json:"token0"`
	Token1        string   `json:"token1"`
	AmountTotal0  string   `json:"amount_total0"`
	AmountTotal1  string   `json:"amount_total1,omitempty"`
	AmountSwap0   string   `json:"amount_swap0"`
	AmountSwap1   string   `json:"amount_swap1"`
	OpenAt        int64    `json:"open_at"`
	CloseAt       int64    `json:"close_at"`
	ClaimAt       int64    `json:"claim_at,omitempty"`
	CurrentBidder string   `json:"current_bidder,omitempty"`
	CurrentBid1   string   `json:"current_bid1,omitempty"`
	LowestPrice   string   `json:"lowest_bid_price,omitempty"`
	CurPlayer     uint64   `json:"cur_player,omitempty"`
	MaxPlayer     uint64   `json:"max_player,omitempty"`
	NShare        uint64   `json:"n_share,omitempty"`
	TokenIDs      []uint64 `json:"token_ids,omitempty"`
	IsERC721      bool     `json:"is_erc721,omitempty"`
	WhitelistRoot string   `json:"whitelist_root,omitempty"`
	CreatorDone   bool     `json:"creator_claimed"`
	Canceled      bool     `json:"canceled"`
}

// ParticipantView is the per-address position in one pool.
type ParticipantView struct {
	Address        string `json:"address"`
	AmountSwapped0 string `json:"amount_swapped0"`
	AmountSwapped1 string `json:"amount_swapped1"`
	Claimed        bool   `json:"claimed"`
	Claimed0       string `json:"claimed0"`
	BetNo          uint64 `json:"bet_no,omitempty"`
	Winner         bool   `json:"winner,omitempty"`
}

// PoolView snapshots a pool under its read lock.
func (e *Engine) PoolView(index uint64) (*PoolView, error) {
	ps, err := e.pool(index)
	if err != nil {
		return nil, err
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	v := &PoolView{
		Index:         ps.Index,
		Type:          ps.Type.String(),
		Name:          ps.Name,
		Status:        ps.status(e.now()),
		Creator:       ps.Creator.Hex(),
		Token0:        ps.Token0.Hex(),
		Token1:        ps.Token1.Hex(),
		AmountTotal0:  bigStr(ps.AmountTotal0),
		AmountTotal1:  bigStr(ps.AmountTotal1),
		AmountSwap0:   ps.amountSwap0.String(),
		AmountSwap1:   ps.amountSwap1.String(),
		OpenAt:        ps.OpenAt.Unix(),
		CloseAt:       ps.closeAt.Unix(),
		CurPlayer:     ps.curPlayer,
		MaxPlayer:     ps.MaxPlayer,
		NShare:        ps.NShare,
		TokenIDs:      ps.TokenIDs,
		IsERC721:      ps.IsERC721,
		WhitelistRoot: rootStr(ps.WhitelistRoot),
		CreatorDone:   ps.creatorClaimed,
		Canceled:      ps.canceled,
	}
	if !ps.claimAt.IsZero() {
		v.ClaimAt = ps.claimAt.Unix()
	}
	if ps.currentBidderAmount1.Sign() > 0 {
		v.CurrentBidder = ps.currentBidder.Hex()
		v.CurrentBid1 = ps.currentBidderAmount1.String()
	}
	if ps.lowestBidPrice.Sign() > 0 {
		v.LowestPrice = ps.lowestBidPrice.String()
	}
	return v, nil
}

// ParticipantView snapshots one address's position.
func (e *Engine) ParticipantView(index uint64, addr common.Address) (*ParticipantView, error) {
	ps, err := e.pool(index)
	if err != nil {
		return nil, err
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	v := &ParticipantView{
		Address:        addr.Hex(),
		AmountSwapped0: "0",
		AmountSwapped1: "0",
		Claimed0:       "0",
	}
	u, ok := ps.participants[addr]
	if !ok {
		return v, nil
	}
	v.AmountSwapped0 = u.amountSwapped0.String()
	v.AmountSwapped1 = u.amountSwapped1.String()
	v.Claimed = u.claimed
	v.Claimed0 = u.claimed0.String()
	v.BetNo = u.betNo
	v.Winner = ps.isWinningTicket(u.betNo)
	return v, nil
}

// Pools snapshots every pool, in index order.
func (e *Engine) Pools() []*PoolView {
	count := e.PoolCount()
	out := make([]*PoolView, 0, count)
	for i := uint64(0); i < count; i++ {
		v, err := e.PoolView(i)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// WinnerSeed exposes the fulfilled draw seed, nil before fulfillment.
func (e *Engine) WinnerSeed(index uint64) (*big.Int, error) {
	ps, err := e.pool(index)
	if err != nil {
		return nil, err
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if ps.winnerSeed == nil {
		return nil, nil
	}
	return new(big.Int).Set(ps.winnerSeed), nil
}
