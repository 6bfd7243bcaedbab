package risk

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zionworld/futures-engine/internal/catalog"
	"github.com/zionworld/futures-engine/internal/model"
	"github.com/zionworld/futures-engine/internal/pricing"
	"github.com/zionworld/futures-engine/internal/state"
)

// ErrInvalidPrice is returned when a forced close is attempted at a
// non-positive price.
var ErrInvalidPrice = errors.New("risk: price must be positive")

var one = decimal.NewFromInt(1)

// MarginReport is the outcome of a liquidation health check.
type MarginReport struct {
	MarginLevel      decimal.Decimal `json:"margin_level"`
	Threshold        decimal.Decimal `json:"threshold"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	TotalMarginUsed  decimal.Decimal `json:"total_margin_used"`
	NeedsLiquidation bool            `json:"needs_liquidation"`
}

// CheckLiquidation evaluates an account's margin health against current
// oracle prices.
//
//	marginLevel = (marginUsed + balance + unrealizedPnL) / marginUsed
//
// With no margin in use the account is trivially healthy (level 1).
// Liquidation is needed iff the level is strictly below the account's
// threshold; a level exactly at the threshold is still healthy.
func CheckLiquidation(st *state.MarketState, owner string, oracle pricing.Oracle) MarginReport {
	a := st.Account(owner)

	if a.TotalMarginUsed.IsZero() {
		return MarginReport{
			MarginLevel:     one,
			Threshold:       a.LiquidationThreshold,
			UnrealizedPnL:   decimal.Zero,
			TotalMarginUsed: decimal.Zero,
		}
	}

	unrealized := decimal.Zero
	for _, c := range st.OpenPositions(owner) {
		com, ok := catalog.ByID(c.CommodityID)
		if !ok {
			continue
		}
		current, ok := oracle.CurrentPrice(com.UnderlyingItem)
		if !ok {
			// No observation yet: mark at entry, contributing zero.
			current = c.EntryPrice
		}
		unrealized = unrealized.Add(pricing.PnL(c.Direction, com.ContractSize, c.Quantity, c.EntryPrice, current))
	}

	effective := a.TotalMarginUsed.Add(a.Balance).Add(unrealized)
	level := effective.Div(a.TotalMarginUsed)

	return MarginReport{
		MarginLevel:      level,
		Threshold:        a.LiquidationThreshold,
		UnrealizedPnL:    unrealized,
		TotalMarginUsed:  a.TotalMarginUsed,
		NeedsLiquidation: level.LessThan(a.LiquidationThreshold),
	}
}

// LiquidatePosition force-closes one open contract at currentPrice. The
// accounting matches a voluntary close — margin plus realized P&L credited
// back, margin unlocked — but the terminal status is liquidated. Returns
// the realized loss as a non-negative magnitude; a forced close that was
// actually profitable reports zero.
func LiquidatePosition(st *state.MarketState, contractID int64, currentPrice decimal.Decimal, tick int64) (decimal.Decimal, error) {
	if currentPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: got %s", ErrInvalidPrice, currentPrice)
	}

	c, ok := st.Contract(contractID)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: id %d", state.ErrContractNotFound, contractID)
	}
	com, ok := catalog.ByID(c.CommodityID)
	if !ok {
		return decimal.Zero, fmt.Errorf("risk: unknown commodity %s on contract %d", c.CommodityID, contractID)
	}

	pnl := pricing.PnL(c.Direction, com.ContractSize, c.Quantity, c.EntryPrice, currentPrice)

	_, err := st.ApplyClose(contractID, "", pnl, model.StatusLiquidated, model.TradeLogEntry{
		ID:          uuid.New().String(),
		ContractID:  contractID,
		CommodityID: c.CommodityID,
		PlayerID:    c.HolderID,
		Action:      model.ActionLiquidate,
		Quantity:    c.Quantity,
		Price:       currentPrice,
		Tick:        tick,
	})
	if err != nil {
		return decimal.Zero, err
	}

	if pnl.IsNegative() {
		return pnl.Neg(), nil
	}
	return decimal.Zero, nil
}
