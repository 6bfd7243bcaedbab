// Package engine implements the position lifecycle: opening margined
// futures contracts, valuing them against oracle prices, voluntary
// closes, and automatic settlement at expiry.
//
// Every operation is a synchronous call over the shared host state. The
// engine never spawns goroutines and performs no I/O.
package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zionworld/futures-engine/internal/catalog"
	"github.com/zionworld/futures-engine/internal/model"
	"github.com/zionworld/futures-engine/internal/pricing"
	"github.com/zionworld/futures-engine/internal/risk"
	"github.com/zionworld/futures-engine/internal/state"
)

var (
	// ErrUnknownCommodity is returned when the commodity id is not in the
	// catalog.
	ErrUnknownCommodity = errors.New("engine: unknown commodity")

	// ErrInvalidDirection is returned for directions other than long/short.
	ErrInvalidDirection = errors.New("engine: direction must be long or short")

	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = errors.New("engine: quantity must be positive")

	// ErrInvalidPrice is returned for non-positive prices.
	ErrInvalidPrice = errors.New("engine: price must be positive")

	// ErrTradingPaused is returned while the underlying's circuit breaker
	// is active.
	ErrTradingPaused = errors.New("engine: trading paused by circuit breaker")

	// ErrLeverageExceeded is the defensive ceiling check; the margin floor
	// makes it unreachable by construction.
	ErrLeverageExceeded = errors.New("engine: effective leverage exceeds maximum")
)

// OpenRequest carries the parameters of a position open.
type OpenRequest struct {
	HolderID    string
	GuildID     string // optional controlling guild
	CommodityID string
	Direction   model.Direction
	Quantity    int64
	Price       decimal.Decimal
	Tick        int64
}

// OpenPosition validates the request, sizes the margin, and registers a
// new open contract.
//
//	notional = contractSize × quantity × price
//	margin   = max(notional × marginRate, notional / maxLeverage)
//
// The margin is debited from the holder's free balance and locked; the
// contract settles automatically at tick + settlementTicks if still open.
func OpenPosition(st *state.MarketState, req OpenRequest) (model.FuturesContract, error) {
	com, ok := catalog.ByID(req.CommodityID)
	if !ok {
		return model.FuturesContract{}, fmt.Errorf("%w: %s", ErrUnknownCommodity, req.CommodityID)
	}
	if !req.Direction.Valid() {
		return model.FuturesContract{}, fmt.Errorf("%w: got %q", ErrInvalidDirection, req.Direction)
	}
	if req.Quantity <= 0 {
		return model.FuturesContract{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, req.Quantity)
	}
	if req.Price.LessThanOrEqual(decimal.Zero) {
		return model.FuturesContract{}, fmt.Errorf("%w: got %s", ErrInvalidPrice, req.Price)
	}

	if allowed, resumeAt := risk.TradeAllowed(st, com.UnderlyingItem, req.Tick); !allowed {
		return model.FuturesContract{}, fmt.Errorf("%w: %s resumes at tick %d",
			ErrTradingPaused, com.UnderlyingItem, resumeAt)
	}

	notional := pricing.Notional(com.ContractSize, req.Quantity, req.Price)
	margin := pricing.RequiredMargin(com, req.Quantity, req.Price)

	// Unreachable given the margin floor, checked anyway.
	if pricing.Leverage(notional, margin).GreaterThan(decimal.NewFromInt(com.MaxLeverage)) {
		return model.FuturesContract{}, fmt.Errorf("%w: max %dx", ErrLeverageExceeded, com.MaxLeverage)
	}

	contract := model.FuturesContract{
		CommodityID:    com.ID,
		HolderID:       req.HolderID,
		GuildID:        req.GuildID,
		Direction:      req.Direction,
		Quantity:       req.Quantity,
		EntryPrice:     req.Price,
		Margin:         margin,
		OpenedAtTick:   req.Tick,
		SettlementTick: req.Tick + com.SettlementTicks,
	}

	return st.ApplyOpen(contract, model.TradeLogEntry{
		ID:          uuid.New().String(),
		CommodityID: com.ID,
		PlayerID:    req.HolderID,
		Action:      model.ActionOpen,
		Quantity:    req.Quantity,
		Price:       req.Price,
		Tick:        req.Tick,
	})
}

// PnLResult is the mark-to-market valuation of one contract.
type PnLResult struct {
	ProfitLoss    decimal.Decimal `json:"profit_loss"`
	PercentChange decimal.Decimal `json:"percent_change"`
}

// PositionPnL values a contract at currentPrice. Unknown contracts and
// unknown commodities yield a zero result rather than an error: there is
// nothing to report.
func PositionPnL(st *state.MarketState, contractID int64, currentPrice decimal.Decimal) PnLResult {
	zero := PnLResult{ProfitLoss: decimal.Zero, PercentChange: decimal.Zero}
	c, ok := st.Contract(contractID)
	if !ok {
		return zero
	}
	com, ok := catalog.ByID(c.CommodityID)
	if !ok {
		return zero
	}
	return PnLResult{
		ProfitLoss:    pricing.PnL(c.Direction, com.ContractSize, c.Quantity, c.EntryPrice, currentPrice),
		PercentChange: pricing.PercentChange(c.Direction, c.EntryPrice, currentPrice),
	}
}

// ClosePosition settles an open contract at currentPrice on behalf of its
// holder. Margin plus realized P&L is credited back to the free balance;
// the balance may go negative when the loss exceeds margin plus balance.
// Fails when the contract is unknown, held by someone else, or no longer
// open (the reason names the current status).
func ClosePosition(st *state.MarketState, holder string, contractID int64, currentPrice decimal.Decimal, tick int64) (model.FuturesContract, error) {
	if currentPrice.LessThanOrEqual(decimal.Zero) {
		return model.FuturesContract{}, fmt.Errorf("%w: got %s", ErrInvalidPrice, currentPrice)
	}

	c, ok := st.Contract(contractID)
	if !ok {
		return model.FuturesContract{}, fmt.Errorf("%w: id %d", state.ErrContractNotFound, contractID)
	}
	com, ok := catalog.ByID(c.CommodityID)
	if !ok {
		return model.FuturesContract{}, fmt.Errorf("%w: %s", ErrUnknownCommodity, c.CommodityID)
	}

	pnl := pricing.PnL(c.Direction, com.ContractSize, c.Quantity, c.EntryPrice, currentPrice)

	return st.ApplyClose(contractID, holder, pnl, model.StatusSettled, model.TradeLogEntry{
		ID:          uuid.New().String(),
		ContractID:  contractID,
		CommodityID: c.CommodityID,
		PlayerID:    c.HolderID,
		Action:      model.ActionClose,
		Quantity:    c.Quantity,
		Price:       currentPrice,
		Tick:        tick,
	})
}

// Settlement reports one contract auto-settled at expiry.
type Settlement struct {
	ContractID  int64           `json:"contract_id"`
	HolderID    string          `json:"holder_id"`
	CommodityID string          `json:"commodity_id"`
	Price       decimal.Decimal `json:"price"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// SettleExpired closes every open contract whose settlement tick has
// arrived, at the oracle's current price for its underlying. The
// accounting matches a voluntary close; the terminal status is expired.
// Idempotent: contracts settled here leave the open set, so a later call
// settles nothing further for them.
func SettleExpired(st *state.MarketState, tick int64, oracle pricing.Oracle) []Settlement {
	var settled []Settlement

	for _, c := range st.OpenContracts() {
		if c.SettlementTick > tick {
			continue
		}
		com, ok := catalog.ByID(c.CommodityID)
		if !ok {
			continue
		}
		price, ok := oracle.CurrentPrice(com.UnderlyingItem)
		if !ok || price.LessThanOrEqual(decimal.Zero) {
			// No usable oracle price: settle flat at entry.
			price = c.EntryPrice
		}

		pnl := pricing.PnL(c.Direction, com.ContractSize, c.Quantity, c.EntryPrice, price)

		_, err := st.ApplyClose(c.ID, "", pnl, model.StatusExpired, model.TradeLogEntry{
			ID:          uuid.New().String(),
			ContractID:  c.ID,
			CommodityID: c.CommodityID,
			PlayerID:    c.HolderID,
			Action:      model.ActionSettle,
			Quantity:    c.Quantity,
			Price:       price,
			Tick:        tick,
		})
		if err != nil {
			continue
		}

		settled = append(settled, Settlement{
			ContractID:  c.ID,
			HolderID:    c.HolderID,
			CommodityID: c.CommodityID,
			Price:       price,
			RealizedPnL: pnl,
		})
	}
	return settled
}
