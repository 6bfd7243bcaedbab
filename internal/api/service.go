// Package api provides the HTTP surface over the futures engine: account
// funding, position lifecycle, risk checks, the oracle price feed, and
// market analytics. Handlers translate engine results to JSON and map
// sentinel errors to HTTP status codes.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/zionworld/futures-engine/internal/analytics"
	"github.com/zionworld/futures-engine/internal/catalog"
	"github.com/zionworld/futures-engine/internal/engine"
	"github.com/zionworld/futures-engine/internal/metrics"
	"github.com/zionworld/futures-engine/internal/model"
	"github.com/zionworld/futures-engine/internal/monopoly"
	"github.com/zionworld/futures-engine/internal/risk"
	"github.com/zionworld/futures-engine/internal/state"
)

// Service wires the shared host state to the HTTP handlers. The guild
// directory is an optional external collaborator; the hub is optional.
type Service struct {
	state  *state.MarketState
	guilds monopoly.GuildDirectory
	hub    *WSHub
}

// NewService creates the API service. guilds and hub may be nil.
func NewService(st *state.MarketState, guilds monopoly.GuildDirectory, hub *WSHub) *Service {
	return &Service{state: st, guilds: guilds, hub: hub}
}

// State exposes the host state for host-level concerns (snapshots).
func (s *Service) State() *state.MarketState {
	return s.state
}

// Routes mounts every handler on r under /api/v1 semantics.
func (s *Service) Routes(r chi.Router) {
	r.Get("/commodities", s.ListCommodities)
	r.Get("/commodities/{commodityID}", s.GetCommodity)

	r.Get("/accounts/{playerID}", s.GetAccount)
	r.Post("/accounts/{playerID}/deposit", s.Deposit)
	r.Post("/accounts/{playerID}/withdraw", s.Withdraw)
	r.Get("/accounts/{playerID}/positions", s.GetOpenPositions)
	r.Get("/accounts/{playerID}/margin", s.CheckLiquidation)

	r.Post("/positions", s.OpenPosition)
	r.Post("/positions/{contractID}/close", s.ClosePosition)
	r.Post("/positions/{contractID}/liquidate", s.LiquidatePosition)
	r.Get("/positions/{contractID}/pnl", s.GetPositionPnL)

	r.Post("/prices", s.RecordPrice)
	r.Get("/breakers/{item}", s.GetBreaker)
	r.Post("/breakers/{item}/trip", s.TripBreaker)

	r.Get("/monopoly/{item}", s.DetectMonopoly)
	r.Post("/monopoly/{item}/break", s.BreakMonopoly)

	r.Get("/market/health", s.MarketHealth)
	r.Get("/market/top-traders", s.TopTraders)
	r.Get("/market/volume", s.TradingVolume)

	r.Post("/settle", s.SettleExpired)
	r.Post("/tick", s.Tick)
}

// --- Request types ---

// AmountRequest funds or drains an account.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// OpenPositionRequest is the JSON body for POST /positions.
type OpenPositionRequest struct {
	PlayerID    string          `json:"player_id"`
	GuildID     string          `json:"guild_id,omitempty"`
	CommodityID string          `json:"commodity_id"`
	Direction   model.Direction `json:"direction"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Tick        int64           `json:"tick"`
}

// ClosePositionRequest is the JSON body for POST /positions/{id}/close.
type ClosePositionRequest struct {
	PlayerID string          `json:"player_id"`
	Price    decimal.Decimal `json:"price"`
	Tick     int64           `json:"tick"`
}

// LiquidateRequest is the JSON body for POST /positions/{id}/liquidate.
type LiquidateRequest struct {
	Price decimal.Decimal `json:"price"`
	Tick  int64           `json:"tick"`
}

// PriceRequest is one oracle sample, POST /prices.
type PriceRequest struct {
	Item  string          `json:"item"`
	Tick  int64           `json:"tick"`
	Price decimal.Decimal `json:"price"`
}

// TickRequest drives the periodic sweep, POST /tick and /settle.
type TickRequest struct {
	Tick int64 `json:"tick"`
}

// BreakRequest is the JSON body for POST /monopoly/{item}/break. An
// omitted seed means the default 42; an explicit 0 is a valid seed.
type BreakRequest struct {
	Seed *int64 `json:"seed,omitempty"`
}

// --- Commodity catalog ---

// ListCommodities handles GET /api/v1/commodities.
func (s *Service) ListCommodities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, catalog.All())
}

// GetCommodity handles GET /api/v1/commodities/{commodityID}.
func (s *Service) GetCommodity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "commodityID")
	c, ok := catalog.ByID(id)
	if !ok {
		writeError(w, "commodity not found: "+id, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// --- Margin ledger ---

// GetAccount handles GET /api/v1/accounts/{playerID}. Materializes a
// zero-balance account on first access.
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Account(chi.URLParam(r, "playerID")))
}

// Deposit handles POST /api/v1/accounts/{playerID}/deposit.
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "playerID")
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.state.Deposit(player, req.Amount); err != nil {
		writeDomainError(w, err)
		return
	}
	slog.Info("margin deposited", "player", player, "amount", req.Amount.String())
	writeJSON(w, http.StatusOK, s.state.Account(player))
}

// Withdraw handles POST /api/v1/accounts/{playerID}/withdraw. Only the
// free balance is withdrawable; locked margin is not.
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "playerID")
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.state.Withdraw(player, req.Amount); err != nil {
		writeDomainError(w, err)
		return
	}
	slog.Info("margin withdrawn", "player", player, "amount", req.Amount.String())
	writeJSON(w, http.StatusOK, s.state.Account(player))
}

// GetOpenPositions handles GET /api/v1/accounts/{playerID}/positions.
func (s *Service) GetOpenPositions(w http.ResponseWriter, r *http.Request) {
	positions := s.state.OpenPositions(chi.URLParam(r, "playerID"))
	if positions == nil {
		positions = []model.FuturesContract{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// --- Position engine ---

// OpenPosition handles POST /api/v1/positions.
func (s *Service) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req OpenPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PlayerID == "" {
		writeError(w, "player_id is required", http.StatusBadRequest)
		return
	}

	contract, err := engine.OpenPosition(s.state, engine.OpenRequest{
		HolderID:    req.PlayerID,
		GuildID:     req.GuildID,
		CommodityID: req.CommodityID,
		Direction:   req.Direction,
		Quantity:    req.Quantity,
		Price:       req.Price,
		Tick:        req.Tick,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	metrics.PositionsOpened.WithLabelValues(string(contract.Direction)).Inc()
	s.refreshGauges()
	slog.Info("position opened",
		"contract", contract.ID,
		"player", contract.HolderID,
		"commodity", contract.CommodityID,
		"direction", contract.Direction,
		"qty", contract.Quantity,
		"entry", contract.EntryPrice.String(),
		"margin", contract.Margin.String(),
	)
	s.emit(WSMessage{
		Type:        "position_opened",
		ContractID:  contract.ID,
		CommodityID: contract.CommodityID,
		PlayerID:    contract.HolderID,
		Direction:   string(contract.Direction),
		Quantity:    contract.Quantity,
		Price:       contract.EntryPrice.String(),
		Tick:        contract.OpenedAtTick,
	})
	writeJSON(w, http.StatusCreated, contract)
}

// ClosePosition handles POST /api/v1/positions/{contractID}/close.
func (s *Service) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := contractID(w, r)
	if !ok {
		return
	}
	var req ClosePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	contract, err := engine.ClosePosition(s.state, req.PlayerID, id, req.Price, req.Tick)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	metrics.PositionsClosed.WithLabelValues("close").Inc()
	s.refreshGauges()
	slog.Info("position closed",
		"contract", contract.ID,
		"player", contract.HolderID,
		"pnl", contract.RealizedPnL.String(),
	)
	s.emit(WSMessage{
		Type:        "position_closed",
		ContractID:  contract.ID,
		CommodityID: contract.CommodityID,
		PlayerID:    contract.HolderID,
		Price:       req.Price.String(),
		PnL:         contract.RealizedPnL.String(),
		Tick:        req.Tick,
	})
	writeJSON(w, http.StatusOK, contract)
}

// GetPositionPnL handles GET /api/v1/positions/{contractID}/pnl?price=.
// Unknown contracts value to zero; this is a report, not a failure.
func (s *Service) GetPositionPnL(w http.ResponseWriter, r *http.Request) {
	id, ok := contractID(w, r)
	if !ok {
		return
	}
	price, err := decimal.NewFromString(r.URL.Query().Get("price"))
	if err != nil {
		writeError(w, "price query parameter must be a number", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, engine.PositionPnL(s.state, id, price))
}

// SettleExpired handles POST /api/v1/settle.
func (s *Service) SettleExpired(w http.ResponseWriter, r *http.Request) {
	var req TickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.settle(req.Tick))
}

func (s *Service) settle(tick int64) []engine.Settlement {
	settled := engine.SettleExpired(s.state, tick, s.state)
	for _, st := range settled {
		metrics.PositionsClosed.WithLabelValues("settle").Inc()
		slog.Info("contract expired",
			"contract", st.ContractID,
			"player", st.HolderID,
			"pnl", st.RealizedPnL.String(),
		)
		s.emit(WSMessage{
			Type:        "contract_settled",
			ContractID:  st.ContractID,
			CommodityID: st.CommodityID,
			PlayerID:    st.HolderID,
			Price:       st.Price.String(),
			PnL:         st.RealizedPnL.String(),
			Tick:        tick,
		})
	}
	s.refreshGauges()
	if settled == nil {
		settled = []engine.Settlement{}
	}
	return settled
}

// --- Liquidation monitor ---

// CheckLiquidation handles GET /api/v1/accounts/{playerID}/margin.
func (s *Service) CheckLiquidation(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "playerID")
	writeJSON(w, http.StatusOK, risk.CheckLiquidation(s.state, player, s.state))
}

// LiquidatePosition handles POST /api/v1/positions/{contractID}/liquidate.
func (s *Service) LiquidatePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := contractID(w, r)
	if !ok {
		return
	}
	var req LiquidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	loss, err := risk.LiquidatePosition(s.state, id, req.Price, req.Tick)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	metrics.PositionsClosed.WithLabelValues("liquidate").Inc()
	s.refreshGauges()
	slog.Warn("position liquidated", "contract", id, "loss", loss.String())
	s.emit(WSMessage{
		Type:       "position_liquidated",
		ContractID: id,
		Price:      req.Price.String(),
		PnL:        loss.Neg().String(),
		Tick:       req.Tick,
	})
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"loss": loss})
}

// --- Circuit breaker ---

// RecordPrice handles POST /api/v1/prices: ingests one oracle sample and
// evaluates the item's circuit breaker, tripping it on a crash.
func (s *Service) RecordPrice(w http.ResponseWriter, r *http.Request) {
	var req PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Item == "" {
		writeError(w, "item is required", http.StatusBadRequest)
		return
	}
	if req.Price.LessThanOrEqual(decimal.Zero) {
		writeError(w, "price must be positive", http.StatusBadRequest)
		return
	}

	s.state.RecordPrice(req.Item, req.Tick, req.Price)

	check := risk.CheckCircuitBreaker(s.state, req.Item, s.state.PriceHistory(req.Item))
	if check.Triggered {
		if allowed, _ := risk.TradeAllowed(s.state, req.Item, req.Tick); allowed {
			b := risk.TripCircuitBreaker(s.state, req.Item, req.Tick)
			metrics.BreakerTrips.WithLabelValues(req.Item).Inc()
			slog.Warn("circuit breaker tripped",
				"item", req.Item,
				"drop", check.DropPercent.String(),
				"paused_until", b.PausedUntil,
			)
			s.emit(WSMessage{
				Type:  "breaker_tripped",
				Item:  req.Item,
				Price: req.Price.String(),
				Tick:  b.PausedUntil,
			})
		}
	}
	writeJSON(w, http.StatusOK, check)
}

// GetBreaker handles GET /api/v1/breakers/{item}?tick=N: breaker state
// plus whether trading is allowed at the given tick.
func (s *Service) GetBreaker(w http.ResponseWriter, r *http.Request) {
	item := chi.URLParam(r, "item")
	tick, _ := strconv.ParseInt(r.URL.Query().Get("tick"), 10, 64)
	allowed, resumeAt := risk.TradeAllowed(s.state, item, tick)
	writeJSON(w, http.StatusOK, map[string]any{
		"breaker":   s.state.Breaker(item),
		"allowed":   allowed,
		"resume_at": resumeAt,
	})
}

// TripBreaker handles POST /api/v1/breakers/{item}/trip.
func (s *Service) TripBreaker(w http.ResponseWriter, r *http.Request) {
	item := chi.URLParam(r, "item")
	var req TickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	b := risk.TripCircuitBreaker(s.state, item, req.Tick)
	metrics.BreakerTrips.WithLabelValues(item).Inc()
	slog.Warn("circuit breaker tripped manually", "item", item, "paused_until", b.PausedUntil)
	writeJSON(w, http.StatusOK, b)
}

// --- Monopoly auditor ---

// DetectMonopoly handles GET /api/v1/monopoly/{item}.
func (s *Service) DetectMonopoly(w http.ResponseWriter, r *http.Request) {
	item := chi.URLParam(r, "item")
	writeJSON(w, http.StatusOK, monopoly.DetectMonopoly(s.state, item, s.guilds))
}

// BreakMonopoly handles POST /api/v1/monopoly/{item}/break. The seed
// defaults to 42; identical seeds reproduce identical spawn sets.
func (s *Service) BreakMonopoly(w http.ResponseWriter, r *http.Request) {
	item := chi.URLParam(r, "item")
	var req BreakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	seed := int64(monopoly.DefaultSeed)
	if req.Seed != nil {
		seed = *req.Seed
	}

	spawns := monopoly.BreakMonopoly(s.state, item, monopoly.Seeded(seed))
	metrics.MonopolySpawns.Add(float64(len(spawns)))
	slog.Info("monopoly broken", "item", item, "seed", seed, "spawns", len(spawns))
	s.emit(WSMessage{Type: "monopoly_broken", Item: item, Count: len(spawns)})
	writeJSON(w, http.StatusOK, spawns)
}

// --- Analytics ---

// MarketHealth handles GET /api/v1/market/health.
func (s *Service) MarketHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, analytics.MarketHealth(s.state))
}

// TopTraders handles GET /api/v1/market/top-traders?limit=N (default 10).
func (s *Service) TopTraders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 10
	}
	writeJSON(w, http.StatusOK, analytics.TopTraders(s.state, limit))
}

// TradingVolume handles GET /api/v1/market/volume?since=N.
func (s *Service) TradingVolume(w http.ResponseWriter, r *http.Request) {
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	writeJSON(w, http.StatusOK, analytics.TradingVolume(s.state, since))
}

// --- Tick sweep ---

// TickResult summarizes one periodic sweep.
type TickResult struct {
	Tick       int64               `json:"tick"`
	Settled    []engine.Settlement `json:"settled"`
	Liquidated []int64             `json:"liquidated"`
	Unhealthy  []string            `json:"unhealthy"`
}

// Tick handles POST /api/v1/tick: settles expired contracts, then scans
// every account's margin health and force-closes positions until each
// account is healthy again.
func (s *Service) Tick(w http.ResponseWriter, r *http.Request) {
	var req TickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result := TickResult{
		Tick:       req.Tick,
		Settled:    s.settle(req.Tick),
		Liquidated: []int64{},
		Unhealthy:  []string{},
	}

	for _, a := range s.state.Accounts() {
		report := risk.CheckLiquidation(s.state, a.OwnerID, s.state)
		if !report.NeedsLiquidation {
			continue
		}
		result.Unhealthy = append(result.Unhealthy, a.OwnerID)

		for report.NeedsLiquidation {
			positions := s.state.OpenPositions(a.OwnerID)
			if len(positions) == 0 {
				break
			}
			c := positions[0]
			price := c.EntryPrice
			if com, ok := catalog.ByID(c.CommodityID); ok {
				if p, ok := s.state.CurrentPrice(com.UnderlyingItem); ok {
					price = p
				}
			}
			loss, err := risk.LiquidatePosition(s.state, c.ID, price, req.Tick)
			if err != nil {
				break
			}
			metrics.PositionsClosed.WithLabelValues("liquidate").Inc()
			slog.Warn("position liquidated by sweep",
				"contract", c.ID, "player", a.OwnerID, "loss", loss.String())
			s.emit(WSMessage{
				Type:       "position_liquidated",
				ContractID: c.ID,
				PlayerID:   a.OwnerID,
				Price:      price.String(),
				Tick:       req.Tick,
			})
			result.Liquidated = append(result.Liquidated, c.ID)
			report = risk.CheckLiquidation(s.state, a.OwnerID, s.state)
		}
	}

	s.refreshGauges()
	writeJSON(w, http.StatusOK, result)
}

// --- Helpers ---

func (s *Service) emit(msg WSMessage) {
	if s.hub != nil {
		s.hub.Broadcast(msg)
	}
}

// refreshGauges recomputes the open-contract and locked-margin gauges.
func (s *Service) refreshGauges() {
	open := s.state.OpenContracts()
	metrics.OpenContracts.Set(float64(len(open)))

	locked := decimal.Zero
	for _, a := range s.state.Accounts() {
		locked = locked.Add(a.TotalMarginUsed)
	}
	metrics.MarginLocked.Set(locked.InexactFloat64())
}

func contractID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "contractID"), 10, 64)
	if err != nil {
		writeError(w, "contract id must be an integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// writeDomainError maps sentinel errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrUnknownCommodity),
		errors.Is(err, state.ErrContractNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrInvalidDirection),
		errors.Is(err, engine.ErrInvalidQuantity),
		errors.Is(err, engine.ErrInvalidPrice),
		errors.Is(err, risk.ErrInvalidPrice),
		errors.Is(err, state.ErrNonPositiveAmount):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, engine.ErrTradingPaused),
		errors.Is(err, engine.ErrLeverageExceeded),
		errors.Is(err, state.ErrInsufficientBalance),
		errors.Is(err, state.ErrNotHolder),
		errors.Is(err, state.ErrNotOpen):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
