// HTTP handlers exposing the pricing engine: quotes, dry-run trade
// construction, collateral and liquidation queries, and position P&L.

package trade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ovmx/options-engine/internal/collateral"
	"github.com/ovmx/options-engine/internal/instrument"
	"github.com/ovmx/options-engine/internal/metrics"
	"github.com/ovmx/options-engine/internal/model"
	"github.com/ovmx/options-engine/internal/position"
	"github.com/ovmx/options-engine/internal/quote"
	"github.com/ovmx/options-engine/internal/store"
)

// Service handles quote and trade construction requests over stored
// snapshots. All computation is pure over the snapshots, so no
// serialization lock is needed.
type Service struct {
	store   store.Store
	builder *Builder
	wsHub   *WSHub // optional WebSocket hub for quote broadcasts
}

// NewService creates a new service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(st store.Store, hub *WSHub) *Service {
	return &Service{
		store:   st,
		builder: NewBuilder(nil),
		wsHub:   hub,
	}
}

// --- Request/Response types ---

// OptionRef identifies an option across the snapshot hierarchy.
// Callers either set the explicit IDs or pass a ticker like
// ETH-27MAR26-2000-C, which resolves against the stored snapshots.
type OptionRef struct {
	Market     string `json:"market"`
	BoardID    string `json:"board_id"`
	StrikeID   string `json:"strike_id"`
	IsCall     bool   `json:"is_call"`
	Instrument string `json:"instrument,omitempty"`
}

// QuoteRequest is the JSON body for POST /quote.
type QuoteRequest struct {
	OptionRef
	IsBuy        bool            `json:"is_buy"`
	Size         decimal.Decimal `json:"size"`
	Iterations   int             `json:"iterations"` // 0 → default 1
	IsForceClose bool            `json:"is_force_close"`
}

// QuoteResponse wraps a computed quote.
type QuoteResponse struct {
	QuoteID string       `json:"quote_id"`
	Quote   *quote.Quote `json:"quote"`
}

// TradeRequest is the JSON body for POST /trade. The construction is a
// dry run: it produces the economic parameters without submitting
// anything on-chain.
type TradeRequest struct {
	OptionRef
	Owner           string           `json:"owner"`
	IsBuy           bool             `json:"is_buy"`
	Size            decimal.Decimal  `json:"size"`
	PositionID      string           `json:"position_id,omitempty"`
	PremiumSlippage *decimal.Decimal `json:"premium_slippage,omitempty"`
	MinOrMaxPremium *decimal.Decimal `json:"min_or_max_premium,omitempty"`
	Iterations      int              `json:"iterations"`

	CollateralPolicy CollateralPolicy `json:"collateral_policy,omitempty"`
	SetCollateralTo  decimal.Decimal  `json:"set_collateral_to"`
	IsBaseCollateral bool             `json:"is_base_collateral"`
}

// TradeResponse wraps a constructed trade.
type TradeResponse struct {
	TradeID string `json:"trade_id"`
	Trade   *Trade `json:"trade"`

	// Transfer amounts in the 18-decimal fixed-point convention the
	// contracts expect, signed the same way as the decimal fields.
	QuoteTransferWei string `json:"quote_transfer_wei"`
	BaseTransferWei  string `json:"base_transfer_wei"`
}

// LiquidationPriceRequest is the JSON body for POST /liquidation-price.
type LiquidationPriceRequest struct {
	OptionRef
	Size             decimal.Decimal `json:"size"`
	Collateral       decimal.Decimal `json:"collateral"`
	IsBaseCollateral bool            `json:"is_base_collateral"`
}

// LiquidationPriceResponse carries a nullable liquidation price.
type LiquidationPriceResponse struct {
	LiquidationPrice *decimal.Decimal `json:"liquidation_price"`
}

// PositionResponse is a position with its derived accounting attached.
type PositionResponse struct {
	Position  model.Position  `json:"position"`
	AvgCost   decimal.Decimal `json:"average_cost_per_option"`
	BreakEven decimal.Decimal `json:"break_even"`
	PNL       position.PNL    `json:"pnl"`
}

// --- HTTP handlers ---

// GetQuote handles POST /api/v1/quote.
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	o, ok := s.loadOption(w, r, req.OptionRef)
	if !ok {
		return
	}

	start := time.Now()
	q, err := quote.Get(o, req.IsBuy, req.Size, &quote.Options{
		Iterations:   req.Iterations,
		IsForceClose: req.IsForceClose,
	})
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	side := sideLabel(req.IsBuy)
	metrics.QuotesTotal.WithLabelValues(side).Inc()
	metrics.QuoteLatency.WithLabelValues(side).Observe(time.Since(start).Seconds())
	if q.IsDisabled {
		metrics.DisabledQuotesTotal.WithLabelValues(string(q.DisabledReason)).Inc()
	}

	resp := QuoteResponse{QuoteID: uuid.New().String(), Quote: q}

	if s.wsHub != nil && !q.IsDisabled {
		s.wsHub.Broadcast(WSMessage{
			Type:           "quote",
			Market:         req.Market,
			StrikeID:       req.StrikeID,
			IsCall:         req.IsCall,
			Side:           side,
			Size:           req.Size.String(),
			PricePerOption: q.PricePerOption.String(),
			IV:             q.IV.String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// BuildTrade handles POST /api/v1/trade.
func (s *Service) BuildTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Owner == "" {
		writeError(w, "owner is required", http.StatusBadRequest)
		return
	}

	o, ok := s.loadOption(w, r, req.OptionRef)
	if !ok {
		return
	}

	var pos *model.Position
	if req.PositionID != "" {
		p, err := s.store.GetPosition(r.Context(), req.PositionID)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "position not found", http.StatusNotFound)
			return
		}
		if err != nil {
			writeError(w, "failed to load position", http.StatusInternalServerError)
			return
		}
		pos = p
	}

	tr, err := s.builder.Build(Params{
		Owner:           req.Owner,
		Option:          o,
		IsBuy:           req.IsBuy,
		Size:            req.Size,
		Position:        pos,
		PremiumSlippage: req.PremiumSlippage,
		MinOrMaxPremium: req.MinOrMaxPremium,
		Iterations:      req.Iterations,
		Collateral: CollateralOptions{
			Policy:          req.CollateralPolicy,
			SetCollateralTo: req.SetCollateralTo,
			IsBase:          req.IsBaseCollateral,
		},
	})
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	metrics.TradesBuilt.WithLabelValues(tradeKind(tr)).Inc()
	if tr.IsDisabled {
		metrics.DisabledQuotesTotal.WithLabelValues(string(tr.DisabledReason)).Inc()
	}

	slog.Info("trade constructed",
		"owner", req.Owner,
		"market", req.Market,
		"strike", req.StrikeID,
		"side", sideLabel(req.IsBuy),
		"size", req.Size.String(),
		"premium", tr.Premium.String(),
		"force_closed", tr.ForceClosed,
		"disabled", tr.IsDisabled,
	)

	resp := TradeResponse{
		TradeID:          uuid.New().String(),
		Trade:            tr,
		QuoteTransferWei: model.ToWei(tr.QuoteTokenTransfer).String(),
		BaseTransferWei:  model.ToWei(tr.BaseTokenTransfer).String(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetLiquidationPrice handles POST /api/v1/liquidation-price.
func (s *Service) GetLiquidationPrice(w http.ResponseWriter, r *http.Request) {
	var req LiquidationPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	o, ok := s.loadOption(w, r, req.OptionRef)
	if !ok {
		return
	}

	price := collateral.LiquidationPrice(o, req.Size, req.Collateral, req.IsBaseCollateral, time.Now().UTC())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LiquidationPriceResponse{LiquidationPrice: price})
}

// ListMarkets handles GET /api/v1/markets.
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.store.ListMarketSnapshots(r.Context())
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.MarketSnapshot{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(markets)
}

// GetMarket handles GET /api/v1/markets/{market}.
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "market")

	m, err := s.store.GetMarketSnapshot(r.Context(), name)
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m)
}

// ListBoards handles GET /api/v1/markets/{market}/boards.
func (s *Service) ListBoards(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "market")

	boards, err := s.store.ListBoardSnapshots(r.Context(), name)
	if err != nil {
		writeError(w, "failed to list boards", http.StatusInternalServerError)
		return
	}
	if boards == nil {
		boards = []model.BoardSnapshot{}
	}

	active := 0
	for i := range boards {
		if !boards[i].IsExpired {
			active++
		}
	}
	metrics.ActiveBoards.WithLabelValues(name).Set(float64(active))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(boards)
}

// ListStrikes handles GET /api/v1/boards/{boardID}/strikes.
func (s *Service) ListStrikes(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardID")

	strikes, err := s.store.ListStrikeSnapshots(r.Context(), boardID)
	if err != nil {
		writeError(w, "failed to list strikes", http.StatusInternalServerError)
		return
	}
	if strikes == nil {
		strikes = []model.StrikeSnapshot{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(strikes)
}

// ListPositions handles GET /api/v1/positions/{owner}. Each position is
// returned with its derived accounting: average cost, break-even, and
// the P&L breakdown marked to the option's current price.
func (s *Service) ListPositions(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	ctx := r.Context()

	positions, err := s.store.ListPositionsByOwner(ctx, owner)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}

	resp := make([]PositionResponse, 0, len(positions))
	for i := range positions {
		p := &positions[i]
		resp = append(resp, PositionResponse{
			Position:  *p,
			AvgCost:   position.AverageCostPerOption(p),
			BreakEven: position.BreakEven(p),
			PNL:       position.Pnl(p, s.currentFairPrice(r, p)),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetPositionPnl handles GET /api/v1/positions/{owner}/{positionID}/pnl.
func (s *Service) GetPositionPnl(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	positionID := chi.URLParam(r, "positionID")

	p, err := s.store.GetPosition(r.Context(), positionID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "position not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load position", http.StatusInternalServerError)
		return
	}
	if p.Owner != owner {
		writeError(w, "position not found", http.StatusNotFound)
		return
	}

	resp := PositionResponse{
		Position:  *p,
		AvgCost:   position.AverageCostPerOption(p),
		BreakEven: position.BreakEven(p),
		PNL:       position.Pnl(p, s.currentFairPrice(r, p)),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- Helpers ---

// loadOption assembles an option view from stored snapshots, writing
// the HTTP error itself on failure.
func (s *Service) loadOption(w http.ResponseWriter, r *http.Request, ref OptionRef) (*model.Option, bool) {
	ctx := r.Context()

	if ref.Instrument != "" {
		resolved, err := s.resolveTicker(ctx, ref.Instrument)
		if err != nil {
			writeError(w, err.Error(), http.StatusNotFound)
			return nil, false
		}
		ref = *resolved
	}

	market, err := s.store.GetMarketSnapshot(ctx, ref.Market)
	if err != nil {
		writeError(w, "market not found: "+ref.Market, http.StatusNotFound)
		return nil, false
	}
	board, err := s.store.GetBoardSnapshot(ctx, ref.BoardID)
	if err != nil {
		writeError(w, "board not found: "+ref.BoardID, http.StatusNotFound)
		return nil, false
	}
	strike, err := s.store.GetStrikeSnapshot(ctx, ref.StrikeID)
	if err != nil {
		writeError(w, "strike not found: "+ref.StrikeID, http.StatusNotFound)
		return nil, false
	}
	if strike.BoardID != board.ID || board.MarketName != market.Name {
		// Mismatched hierarchy is a data-layer bug, not a user error.
		writeError(w, "option reference mismatch", http.StatusInternalServerError)
		return nil, false
	}

	return model.NewOption(market, board, strike, ref.IsCall, time.Now().UTC()), true
}

// resolveTicker maps an instrument ticker to the snapshot IDs it names.
// Boards match on expiry date, strikes on exact strike price.
func (s *Service) resolveTicker(ctx context.Context, ticker string) (*OptionRef, error) {
	inst, err := instrument.Parse(ticker)
	if err != nil {
		return nil, err
	}

	boards, err := s.store.ListBoardSnapshots(ctx, inst.Market)
	if err != nil || len(boards) == 0 {
		return nil, fmt.Errorf("no boards for market %s", inst.Market)
	}
	var board *model.BoardSnapshot
	for i := range boards {
		y, m, d := boards[i].Expiry.UTC().Date()
		iy, im, id := inst.Expiry.Date()
		if y == iy && m == im && d == id {
			board = &boards[i]
			break
		}
	}
	if board == nil {
		return nil, fmt.Errorf("no board expiring %s on market %s",
			inst.Expiry.Format("2006-01-02"), inst.Market)
	}

	strikes, err := s.store.ListStrikeSnapshots(ctx, board.ID)
	if err != nil {
		return nil, fmt.Errorf("no strikes for board %s", board.ID)
	}
	for i := range strikes {
		if strikes[i].StrikePrice.Equal(inst.StrikePrice) {
			return &OptionRef{
				Market:   inst.Market,
				BoardID:  board.ID,
				StrikeID: strikes[i].ID,
				IsCall:   inst.IsCall,
			}, nil
		}
	}
	return nil, fmt.Errorf("no strike at %s on board %s", inst.StrikePrice, board.ID)
}

// currentFairPrice marks a position to its option's current price,
// falling back to zero when the snapshots are missing.
func (s *Service) currentFairPrice(r *http.Request, p *model.Position) decimal.Decimal {
	ctx := r.Context()

	market, err := s.store.GetMarketSnapshot(ctx, p.MarketName)
	if err != nil {
		return decimal.Zero
	}
	board, err := s.store.GetBoardSnapshot(ctx, p.BoardID)
	if err != nil {
		return decimal.Zero
	}
	strike, err := s.store.GetStrikeSnapshot(ctx, p.StrikeID)
	if err != nil {
		return decimal.Zero
	}

	o := model.NewOption(market, board, strike, p.IsCall, time.Now().UTC())
	return o.Price
}

func sideLabel(isBuy bool) string {
	if isBuy {
		return "buy"
	}
	return "sell"
}

func tradeKind(tr *Trade) string {
	switch {
	case tr.ForceClosed:
		return "force_close"
	case tr.IsOpen:
		return "open"
	default:
		return "close"
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
