package model

// CreatedData is the payload of a pool creation event.
type CreatedData struct {
	Name          string `json:"name"`
	PoolType      string `json:"pool_type"`
	Creator       string `json:"creator"`
	Token0        string `json:"token0"`
	Token1        string `json:"token1"`
	AmountTotal0  string `json:"amount_total0"`
	AmountTotal1  string `json:"amount_total1"`
	OpenAt        int64  `json:"open_at"`
	CloseAt       int64  `json:"close_at"`
	ClaimAt       int64  `json:"claim_at"`
	WhitelistRoot string `json:"whitelist_root,omitempty"`
}

// SwappedData is the payload of a fixed-price fill.
type SwappedData struct {
	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`
	// TokenIDs lists delivered ids for ERC721 lots.
	TokenIDs []uint64 `json:"token_ids,omitempty"`
	// Released reports what was delivered immediately; zero when the
	// purchase vests behind a claim window.
	Released string `json:"released,omitempty"`
}

// ReversedData is the payload of an in-window unwind.
type ReversedData struct {
	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`
}

// BidData is the payload of an english or mutant-english bid.
type BidData struct {
	Amount1 string `json:"amount1"`
	// PreviousBidder and RefundedAmount1 report the displaced leader,
	// empty on the first bid.
	PreviousBidder  string `json:"previous_bidder,omitempty"`
	RefundedAmount1 string `json:"refunded_amount1,omitempty"`
	CloseAt         int64  `json:"close_at"`
}

// BetData is the payload of a lottery entry.
type BetData struct {
	BetNo   uint64 `json:"bet_no"`
	Amount1 string `json:"amount1"`
}

// CreatorClaimedData is the payload of the creator's settlement.
type CreatorClaimedData struct {
	UnsoldAmount0 string `json:"unsold_amount0"`
	Proceeds1     string `json:"proceeds1"`
	Fee1          string `json:"fee1"`
}

// UserClaimedData is the payload of a buyer's claim.
type UserClaimedData struct {
	Amount0  string   `json:"amount0"`
	Refund1  string   `json:"refund1,omitempty"`
	TokenIDs []uint64 `json:"token_ids,omitempty"`
}

// BidderClaimedData is the payload of a winning bidder's claim.
type BidderClaimedData struct {
	Amount0 string `json:"amount0"`
	// Extra1 is the mutant-english accumulator share paid to the winner.
	Extra1 string `json:"extra1,omitempty"`
}

// RandomRequestedData is the payload of a lottery randomness request.
type RandomRequestedData struct {
	RequestID uint64 `json:"request_id"`
}

// RandomFulfilledData is the payload of a randomness fulfillment.
type RandomFulfilledData struct {
	RequestID uint64 `json:"request_id"`
	Word      string `json:"word"`
	Start     uint64 `json:"start"`
	Winners   uint64 `json:"winners"`
}
