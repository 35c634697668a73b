package engine

import "errors"

// Sentinel errors returned by engine operations. Every rejection is atomic:
// no balances move and no pool state changes when one of these comes back.
var (
	ErrPoolNotFound             = errors.New("pool not found")
	ErrInvalidPoolParameters    = errors.New("invalid pool parameters")
	ErrInvalidPoolCreator       = errors.New("caller is not the pool creator")
	ErrAuthExpired              = errors.New("creation authorization expired")
	ErrBadSignature             = errors.New("bad authorization signature")
	ErrNotWhitelisted           = errors.New("address not whitelisted")
	ErrPoolNotOpen              = errors.New("pool not open yet")
	ErrPoolClosed               = errors.New("pool already closed")
	ErrPoolNotClosed            = errors.New("pool not closed yet")
	ErrCreatorClaimedOrCanceled = errors.New("creator claimed or pool canceled")
	ErrCreatorClaimed           = errors.New("creator already claimed")
	ErrBidderClaimed            = errors.New("bidder already claimed")
	ErrClaimNotReady            = errors.New("claim not ready")
	ErrClaimDuringRunning       = errors.New("claim while pool is running")
	ErrZeroAmount               = errors.New("zero amount")
	ErrBidTooLow                = errors.New("bid below required amount")
	ErrNotWinner                = errors.New("caller did not win")
	ErrAlreadyBet               = errors.New("address already bet")
	ErrNoBet                    = errors.New("no bets were placed")
	ErrMaxPlayerReached         = errors.New("player cap reached")
	ErrRandomPending            = errors.New("randomness already requested")
	ErrRandomKnown              = errors.New("randomness already fulfilled")
	ErrReverseDisabled          = errors.New("reverse disabled for pool")
	ErrWrongPoolType            = errors.New("operation not valid for pool type")
)
