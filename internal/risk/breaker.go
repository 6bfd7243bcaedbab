// Package risk houses the two safety mechanisms of the exchange: the
// per-item circuit breaker that pauses trading after a crash, and the
// liquidation monitor that force-closes positions when an account's
// effective margin falls below its threshold.
package risk

import (
	"github.com/shopspring/decimal"

	"github.com/zionworld/futures-engine/internal/model"
	"github.com/zionworld/futures-engine/internal/state"
)

// BreakerCheck is the outcome of evaluating an item's price window.
type BreakerCheck struct {
	Triggered      bool            `json:"triggered"`
	DropPercent    decimal.Decimal `json:"drop_percent"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
}

// CheckCircuitBreaker evaluates whether the item's price dropped fast
// enough to trip its breaker. history must be ordered ascending by tick.
//
// The reference price is the earliest sample inside the rolling window
// (tick ≥ latest − window), falling back to the oldest sample when none
// qualifies. With fewer than two samples, or a non-positive reference,
// nothing triggers.
func CheckCircuitBreaker(st *state.MarketState, item string, history []model.PriceSample) BreakerCheck {
	if len(history) < 2 {
		return BreakerCheck{DropPercent: decimal.Zero}
	}

	b := st.Breaker(item)
	latest := history[len(history)-1]
	cutoff := latest.Tick - b.WindowTicks

	ref := history[0]
	for _, s := range history {
		if s.Tick >= cutoff {
			ref = s
			break
		}
	}

	if ref.Price.LessThanOrEqual(decimal.Zero) {
		return BreakerCheck{
			DropPercent:    decimal.Zero,
			ReferencePrice: ref.Price,
			CurrentPrice:   latest.Price,
		}
	}

	drop := ref.Price.Sub(latest.Price).Div(ref.Price)
	return BreakerCheck{
		Triggered:      drop.GreaterThanOrEqual(b.TriggerPercent),
		DropPercent:    drop,
		ReferencePrice: ref.Price,
		CurrentPrice:   latest.Price,
	}
}

// TripCircuitBreaker activates the item's breaker, pausing trading until
// tick + pauseTicks.
func TripCircuitBreaker(st *state.MarketState, item string, tick int64) model.CircuitBreaker {
	return st.UpdateBreaker(item, func(b *model.CircuitBreaker) {
		b.Active = true
		b.PausedUntil = tick + b.PauseTicks
	})
}

// TradeAllowed reports whether the item can be traded at tick. An active
// breaker whose pause has elapsed self-clears here and trading resumes.
// When trading is paused, resumeAt carries the tick it resumes.
func TradeAllowed(st *state.MarketState, item string, tick int64) (allowed bool, resumeAt int64) {
	if !st.BreakerExists(item) {
		return true, 0
	}
	b := st.Breaker(item)
	if !b.Active {
		return true, 0
	}
	if tick >= b.PausedUntil {
		st.UpdateBreaker(item, func(b *model.CircuitBreaker) {
			b.Active = false
			b.PausedUntil = 0
		})
		return true, 0
	}
	return false, b.PausedUntil
}
