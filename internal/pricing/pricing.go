// Package pricing implements the stateless valuation math for margined
// futures: notional value, margin sizing with a max-leverage floor, and
// directional profit-and-loss.
//
// All monetary values use shopspring/decimal — never float64 for money.
// The package is pure: quantities come in as arguments, nothing is stored.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/zionworld/futures-engine/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Oracle is the synchronous price lookup supplied by the host. It may
// return a stale price but never blocks. ok is false when no price has
// ever been observed for the item.
type Oracle interface {
	CurrentPrice(item string) (decimal.Decimal, bool)
}

// Notional returns the economic size of a position:
//
//	notional = contractSize × quantity × price
func Notional(contractSize, quantity int64, price decimal.Decimal) decimal.Decimal {
	units := decimal.NewFromInt(contractSize).Mul(decimal.NewFromInt(quantity))
	return units.Mul(price)
}

// RequiredMargin returns the collateral a holder must post:
//
//	margin = max(notional × marginRate, notional / maxLeverage)
//
// The max-leverage floor dominates whenever the flat margin rate alone
// would permit excess leverage, so margin ≥ notional/maxLeverage always
// holds.
func RequiredMargin(c model.Commodity, quantity int64, price decimal.Decimal) decimal.Decimal {
	notional := Notional(c.ContractSize, quantity, price)
	flat := notional.Mul(c.MarginRate)
	floor := notional.Div(decimal.NewFromInt(c.MaxLeverage))
	if floor.GreaterThan(flat) {
		return floor
	}
	return flat
}

// Leverage returns notional / margin, the effective leverage of a
// position. Zero margin yields zero leverage rather than a division
// error; RequiredMargin never produces zero for valid inputs.
func Leverage(notional, margin decimal.Decimal) decimal.Decimal {
	if margin.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return notional.Div(margin)
}

// PnL returns the directional profit or loss of a position marked at
// currentPrice:
//
//	delta = currentPrice − entryPrice   (negated for shorts)
//	pnl   = delta × quantity × contractSize
func PnL(dir model.Direction, contractSize, quantity int64, entry, current decimal.Decimal) decimal.Decimal {
	delta := current.Sub(entry)
	if dir == model.Short {
		delta = delta.Neg()
	}
	return delta.Mul(decimal.NewFromInt(quantity)).Mul(decimal.NewFromInt(contractSize))
}

// PercentChange returns the signed percentage move from entry to current,
// negated for shorts. A zero entry price yields zero; open-time
// validation keeps entry prices strictly positive.
func PercentChange(dir model.Direction, entry, current decimal.Decimal) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	delta := current.Sub(entry)
	if dir == model.Short {
		delta = delta.Neg()
	}
	return delta.Div(entry).Mul(hundred)
}
