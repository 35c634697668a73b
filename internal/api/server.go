package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"auctionHouse/internal/engine"
	"auctionHouse/internal/release"
	"auctionHouse/internal/stats"
	"auctionHouse/internal/storage"
	"auctionHouse/internal/vrf"
)

// Server exposes the engine over HTTP. It is a host adapter: all semantics
// live in the engine, the server only translates JSON.
type Server struct {
	eng     *engine.Engine
	stats   *stats.Collector
	events  storage.Reader
	fulfill func(requestID uint64) error
	log     *zap.Logger
}

func NewServer(eng *engine.Engine, collector *stats.Collector, events storage.Reader, log *zap.Logger) *Server {
	return &Server{eng: eng, stats: collector, events: events, log: log}
}

// WithFulfiller exposes POST /random/{request_id}/fulfill, used when the
// randomness coordinator runs in-process and needs an operational trigger.
func (s *Server) WithFulfiller(fulfill func(requestID uint64) error) *Server {
	s.fulfill = fulfill
	return s
}

// Router wires every route.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/pools", s.handleCreatePool).Methods(http.MethodPost)
	r.HandleFunc("/pools", s.handleListPools).Methods(http.MethodGet)
	r.HandleFunc("/pools/{index}", s.handleGetPool).Methods(http.MethodGet)
	r.HandleFunc("/pools/{index}/participants/{address}", s.handleGetParticipant).Methods(http.MethodGet)
	r.HandleFunc("/pools/{index}/swap", s.handleSwap).Methods(http.MethodPost)
	r.HandleFunc("/pools/{index}/bid", s.handleBid).Methods(http.MethodPost)
	r.HandleFunc("/pools/{index}/reverse", s.handleReverse).Methods(http.MethodPost)
	r.HandleFunc("/pools/{index}/bet", s.handleBet).Methods(http.MethodPost)
	r.HandleFunc("/pools/{index}/sealed-bid", s.handleSealedBid).Methods(http.MethodPost)
	r.HandleFunc("/pools/{index}/random-request", s.handleRandomRequest).Methods(http.MethodPost)
	r.HandleFunc("/pools/{index}/creator-claim", s.handleCreatorClaim).Methods(http.MethodPost)
	r.HandleFunc("/pools/{index}/user-claim", s.handleUserClaim).Methods(http.MethodPost)
	r.HandleFunc("/pools/{index}/bidder-claim", s.handleBidderClaim).Methods(http.MethodPost)
	if s.fulfill != nil {
		r.HandleFunc("/random/{request_id}/fulfill", s.handleFulfill).Methods(http.MethodPost)
	}
	if s.events != nil {
		r.HandleFunc("/pools/{index}/events", s.handleListEvents).Methods(http.MethodGet)
	}
	if s.stats != nil {
		r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	}
	return r
}

// distributeDTO mirrors engine.Distribute with string amounts.
type distributeDTO struct {
	Target string `json:"target"`
	Ratio  string `json:"ratio"`
}

type releaseEntryDTO struct {
	StartAt      int64  `json:"start_at"`
	EndAtOrRatio string `json:"end_at_or_ratio,omitempty"`
}

type createPoolRequest struct {
	Name                string            `json:"name"`
	PoolType            uint8             `json:"pool_type"`
	Creator             string            `json:"creator"`
	Token0              string            `json:"token0"`
	Token1              string            `json:"token1"`
	AmountTotal0        string            `json:"amount_total0"`
	AmountTotal1        string            `json:"amount_total1,omitempty"`
	AmountMax1          string            `json:"amount_max1,omitempty"`
	AmountMin1          string            `json:"amount_min1,omitempty"`
	Times               uint64            `json:"times,omitempty"`
	AmountMinIncr1      string            `json:"amount_min_incr1,omitempty"`
	AmountMinIncrRatio1 string            `json:"amount_min_incr_ratio1,omitempty"`
	MaxAmount1PerWallet string            `json:"max_amount1_per_wallet,omitempty"`
	Amount1PerWallet    string            `json:"amount1_per_wallet,omitempty"`
	MaxPlayer           uint64            `json:"max_player,omitempty"`
	NShare              uint64            `json:"n_share,omitempty"`
	OpenAt              int64             `json:"open_at"`
	CloseAt             int64             `json:"close_at,omitempty"`
	ClaimAt             int64             `json:"claim_at,omitempty"`
	CloseIncrSeconds    int64             `json:"close_incr_seconds,omitempty"`
	ClaimDelaySeconds   int64             `json:"claim_delay_seconds,omitempty"`
	TokenIDs            []uint64          `json:"token_ids,omitempty"`
	IsERC721            bool              `json:"is_erc721,omitempty"`
	WhitelistRoot       string            `json:"whitelist_root,omitempty"`
	EnableReverse       bool              `json:"enable_reverse,omitempty"`
	ReleaseType         *uint8            `json:"release_type,omitempty"`
	ReleaseEntries      []releaseEntryDTO `json:"release_entries,omitempty"`
	PrevBidderRatio     string            `json:"prev_bidder_ratio,omitempty"`
	LastBidderRatio     string            `json:"last_bidder_ratio,omitempty"`
	OtherDistributes    []distributeDTO   `json:"other_distributes,omitempty"`
	TxFeeRatio          string            `json:"tx_fee_ratio,omitempty"`

	AuthID       uint64 `json:"auth_id"`
	AuthExpireAt int64  `json:"auth_expire_at"`
	AuthSig      string `json:"auth_sig"`
}

func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}
	params, err := req.toParams()
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	index, err := s.eng.CreatePool(r.Context(), *params)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]uint64{"index": index})
}

func (req *createPoolRequest) toParams() (*engine.CreateParams, error) {
	p := engine.Pool{
		Type:          engine.PoolType(req.PoolType),
		Name:          req.Name,
		Creator:       common.HexToAddress(req.Creator),
		Token0:        common.HexToAddress(req.Token0),
		Token1:        common.HexToAddress(req.Token1),
		Times:         req.Times,
		MaxPlayer:     req.MaxPlayer,
		NShare:        req.NShare,
		OpenAt:        time.Unix(req.OpenAt, 0),
		TokenIDs:      req.TokenIDs,
		IsERC721:      req.IsERC721,
		EnableReverse: req.EnableReverse,
	}
	if req.CloseAt != 0 {
		p.CloseAt = time.Unix(req.CloseAt, 0)
	}
	if req.ClaimAt != 0 {
		p.ClaimAt = time.Unix(req.ClaimAt, 0)
	}
	p.CloseIncrInterval = time.Duration(req.CloseIncrSeconds) * time.Second
	p.ClaimDelay = time.Duration(req.ClaimDelaySeconds) * time.Second
	if req.WhitelistRoot != "" {
		p.WhitelistRoot = common.HexToHash(req.WhitelistRoot)
	}

	var err error
	if p.AmountTotal0, err = parseAmount(req.AmountTotal0, "amount_total0"); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		dst  **big.Int
		src  string
		name string
	}{
		{&p.AmountTotal1, req.AmountTotal1, "amount_total1"},
		{&p.AmountMax1, req.AmountMax1, "amount_max1"},
		{&p.AmountMin1, req.AmountMin1, "amount_min1"},
		{&p.AmountMinIncr1, req.AmountMinIncr1, "amount_min_incr1"},
		{&p.AmountMinIncrRatio1, req.AmountMinIncrRatio1, "amount_min_incr_ratio1"},
		{&p.MaxAmount1PerWallet, req.MaxAmount1PerWallet, "max_amount1_per_wallet"},
		{&p.Amount1PerWallet, req.Amount1PerWallet, "amount1_per_wallet"},
		{&p.PrevBidderRatio, req.PrevBidderRatio, "prev_bidder_ratio"},
		{&p.LastBidderRatio, req.LastBidderRatio, "last_bidder_ratio"},
		{&p.TxFeeRatio, req.TxFeeRatio, "tx_fee_ratio"},
	} {
		if f.src == "" {
			continue
		}
		if *f.dst, err = parseAmount(f.src, f.name); err != nil {
			return nil, err
		}
	}
	for _, d := range req.OtherDistributes {
		ratio, err := parseAmount(d.Ratio, "distribute ratio")
		if err != nil {
			return nil, err
		}
		p.OtherDistributes = append(p.OtherDistributes, engine.Distribute{
			Target: common.HexToAddress(d.Target),
			Ratio:  ratio,
		})
	}
	if req.ReleaseType != nil {
		entries := make([]release.Entry, 0, len(req.ReleaseEntries))
		for _, e := range req.ReleaseEntries {
			entry := release.Entry{StartAt: time.Unix(e.StartAt, 0)}
			if e.EndAtOrRatio != "" {
				if entry.EndAtOrRatio, err = parseAmount(e.EndAtOrRatio, "end_at_or_ratio"); err != nil {
					return nil, err
				}
			}
			entries = append(entries, entry)
		}
		if p.Release, err = release.New(release.Type(*req.ReleaseType), entries); err != nil {
			return nil, err
		}
	}

	sig, err := hexutil.Decode(req.AuthSig)
	if err != nil {
		return nil, fmt.Errorf("decode auth_sig: %w", err)
	}
	return &engine.CreateParams{
		Pool:         p,
		AuthID:       req.AuthID,
		AuthExpireAt: time.Unix(req.AuthExpireAt, 0),
		AuthSig:      sig,
	}, nil
}

type fillRequest struct {
	Sender  string   `json:"sender"`
	Amount0 string   `json:"amount0,omitempty"`
	Amount1 string   `json:"amount1,omitempty"`
	Proof   []string `json:"proof,omitempty"`

	// Sealed-bid fields.
	PriceHash string `json:"price_hash,omitempty"`
	Filled0   string `json:"filled0,omitempty"`
	Filled1   string `json:"filled1,omitempty"`
	Sig       string `json:"sig,omitempty"`
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	index, req, ok := s.fillArgs(w, r)
	if !ok {
		return
	}
	sender := common.HexToAddress(req.Sender)
	proof := parseProof(req.Proof)

	view, err := s.eng.PoolView(index)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if view.Type == engine.FixedSwapNFT.String() {
		amount0, err := parseAmount(req.Amount0, "amount0")
		if err != nil {
			s.writeBadRequest(w, err)
			return
		}
		ids, charge, err := s.eng.SwapNFT(r.Context(), index, sender, amount0, proof)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"token_ids": ids,
			"amount1":   charge.String(),
		})
		return
	}

	amount1, err := parseAmount(req.Amount1, "amount1")
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	amount0, charged, err := s.eng.Swap(r.Context(), index, sender, amount1, proof)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"amount0": amount0.String(),
		"amount1": charged.String(),
	})
}

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request) {
	index, req, ok := s.fillArgs(w, r)
	if !ok {
		return
	}
	sender := common.HexToAddress(req.Sender)
	proof := parseProof(req.Proof)

	view, err := s.eng.PoolView(index)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if view.Type == engine.DutchAuction.String() {
		amount0, err := parseAmount(req.Amount0, "amount0")
		if err != nil {
			s.writeBadRequest(w, err)
			return
		}
		paid, err := s.eng.BidDutch(r.Context(), index, sender, amount0, proof)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"amount1": paid.String()})
		return
	}

	amount1, err := parseAmount(req.Amount1, "amount1")
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.eng.BidEnglish(r.Context(), index, sender, amount1, proof); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"amount1": amount1.String()})
}

func (s *Server) handleReverse(w http.ResponseWriter, r *http.Request) {
	index, req, ok := s.fillArgs(w, r)
	if !ok {
		return
	}
	amount0, err := parseAmount(req.Amount0, "amount0")
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	refund, err := s.eng.Reverse(r.Context(), index, common.HexToAddress(req.Sender), amount0)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"amount1": refund.String()})
}

func (s *Server) handleBet(w http.ResponseWriter, r *http.Request) {
	index, req, ok := s.fillArgs(w, r)
	if !ok {
		return
	}
	betNo, err := s.eng.Bet(r.Context(), index, common.HexToAddress(req.Sender), parseProof(req.Proof))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"bet_no": betNo})
}

func (s *Server) handleSealedBid(w http.ResponseWriter, r *http.Request) {
	index, req, ok := s.fillArgs(w, r)
	if !ok {
		return
	}
	amount1, err := parseAmount(req.Amount1, "amount1")
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	sig, err := hexutil.Decode(req.Sig)
	if err != nil {
		s.writeBadRequest(w, fmt.Errorf("decode sig: %w", err))
		return
	}
	err = s.eng.PlaceSealedBid(r.Context(), index, common.HexToAddress(req.Sender),
		amount1, common.HexToHash(req.PriceHash), sig, parseProof(req.Proof))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"amount1": amount1.String()})
}

func (s *Server) handleRandomRequest(w http.ResponseWriter, r *http.Request) {
	index, ok := s.poolIndex(w, r)
	if !ok {
		return
	}
	reqID, err := s.eng.RequestRandom(r.Context(), index)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"request_id": reqID})
}

func (s *Server) handleFulfill(w http.ResponseWriter, r *http.Request) {
	requestID, err := strconv.ParseUint(mux.Vars(r)["request_id"], 10, 64)
	if err != nil {
		s.writeBadRequest(w, fmt.Errorf("parse request id: %w", err))
		return
	}
	if err := s.fulfill(requestID); err != nil {
		if errors.Is(err, vrf.ErrUnknownRequest) {
			s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreatorClaim(w http.ResponseWriter, r *http.Request) {
	index, req, ok := s.fillArgs(w, r)
	if !ok {
		return
	}
	sender := common.HexToAddress(req.Sender)
	if req.Sig != "" {
		filled0, filled1, sig, err := parseFill(req)
		if err != nil {
			s.writeBadRequest(w, err)
			return
		}
		if err := s.eng.CreatorClaimSealed(r.Context(), index, sender, filled0, filled1, sig); err != nil {
			s.writeEngineError(w, err)
			return
		}
	} else if err := s.eng.CreatorClaim(r.Context(), index, sender); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUserClaim(w http.ResponseWriter, r *http.Request) {
	index, req, ok := s.fillArgs(w, r)
	if !ok {
		return
	}
	sender := common.HexToAddress(req.Sender)
	if req.Sig != "" {
		filled0, filled1, sig, err := parseFill(req)
		if err != nil {
			s.writeBadRequest(w, err)
			return
		}
		if err := s.eng.UserClaimSealed(r.Context(), index, sender, filled0, filled1, sig); err != nil {
			s.writeEngineError(w, err)
			return
		}
	} else if err := s.eng.UserClaim(r.Context(), index, sender); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBidderClaim(w http.ResponseWriter, r *http.Request) {
	index, req, ok := s.fillArgs(w, r)
	if !ok {
		return
	}
	if err := s.eng.BidderClaim(r.Context(), index, common.HexToAddress(req.Sender)); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPools(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.eng.Pools())
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	index, ok := s.poolIndex(w, r)
	if !ok {
		return
	}
	view, err := s.eng.PoolView(index)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetParticipant(w http.ResponseWriter, r *http.Request) {
	index, ok := s.poolIndex(w, r)
	if !ok {
		return
	}
	addr := common.HexToAddress(mux.Vars(r)["address"])
	view, err := s.eng.ParticipantView(index, addr)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	index, ok := s.poolIndex(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	events, err := s.events.ListByPool(r.Context(), index, limit)
	if err != nil {
		s.log.Error("list events failed", zap.Uint64("pool", index), zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "event query failed"})
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.stats.Summaries())
}

func (s *Server) poolIndex(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	index, err := strconv.ParseUint(mux.Vars(r)["index"], 10, 64)
	if err != nil {
		s.writeBadRequest(w, fmt.Errorf("parse pool index: %w", err))
		return 0, false
	}
	return index, true
}

func (s *Server) fillArgs(w http.ResponseWriter, r *http.Request) (uint64, *fillRequest, bool) {
	index, ok := s.poolIndex(w, r)
	if !ok {
		return 0, nil, false
	}
	var req fillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, fmt.Errorf("decode request: %w", err))
		return 0, nil, false
	}
	if req.Sender == "" {
		s.writeBadRequest(w, fmt.Errorf("sender is required"))
		return 0, nil, false
	}
	return index, &req, true
}

func parseFill(req *fillRequest) (*big.Int, *big.Int, []byte, error) {
	filled0, err := parseAmount(req.Filled0, "filled0")
	if err != nil {
		return nil, nil, nil, err
	}
	filled1, err := parseAmount(req.Filled1, "filled1")
	if err != nil {
		return nil, nil, nil, err
	}
	sig, err := hexutil.Decode(req.Sig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode sig: %w", err)
	}
	return filled0, filled1, sig, nil
}

func parseAmount(s, name string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%s is required", name)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse %s %q", name, s)
	}
	return v, nil
}

func parseProof(items []string) []common.Hash {
	if len(items) == 0 {
		return nil
	}
	out := make([]common.Hash, 0, len(items))
	for _, item := range items {
		out = append(out, common.HexToHash(item))
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write response failed", zap.Error(err))
	}
}

func (s *Server) writeBadRequest(w http.ResponseWriter, err error) {
	s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

// writeEngineError maps engine sentinels onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrPoolNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrBadSignature),
		errors.Is(err, engine.ErrAuthExpired),
		errors.Is(err, engine.ErrNotWhitelisted),
		errors.Is(err, engine.ErrInvalidPoolCreator),
		errors.Is(err, engine.ErrNotWinner):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrInvalidPoolParameters),
		errors.Is(err, engine.ErrZeroAmount),
		errors.Is(err, engine.ErrWrongPoolType),
		errors.Is(err, engine.ErrBidTooLow):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrPoolNotOpen),
		errors.Is(err, engine.ErrPoolClosed),
		errors.Is(err, engine.ErrPoolNotClosed),
		errors.Is(err, engine.ErrCreatorClaimedOrCanceled),
		errors.Is(err, engine.ErrCreatorClaimed),
		errors.Is(err, engine.ErrBidderClaimed),
		errors.Is(err, engine.ErrClaimNotReady),
		errors.Is(err, engine.ErrClaimDuringRunning),
		errors.Is(err, engine.ErrAlreadyBet),
		errors.Is(err, engine.ErrNoBet),
		errors.Is(err, engine.ErrMaxPlayerReached),
		errors.Is(err, engine.ErrRandomPending),
		errors.Is(err, engine.ErrRandomKnown),
		errors.Is(err, engine.ErrReverseDisabled):
		status = http.StatusConflict
	default:
		s.log.Error("engine operation failed", zap.Error(err))
		s.writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
