// Package analytics derives market health metrics from the host state:
// volatility, margin utilization, open interest, trader leaderboards, and
// trading volume. Queries are read-only and degrade to neutral values on
// empty state; they never error.
package analytics

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/zionworld/futures-engine/internal/catalog"
	"github.com/zionworld/futures-engine/internal/model"
	"github.com/zionworld/futures-engine/internal/pricing"
	"github.com/zionworld/futures-engine/internal/state"
)

var hundred = decimal.NewFromInt(100)

// Health is a cross-market summary.
type Health struct {
	VolatilityIndex   decimal.Decimal  `json:"volatility_index"`   // mean CV of price feeds, percent
	MarginUtilization decimal.Decimal  `json:"margin_utilization"` // locked / (locked + free), percent
	OpenInterest      map[string]int64 `json:"open_interest"`      // commodity id → open quantity
	OpenContracts     int              `json:"open_contracts"`
	TotalContracts    int              `json:"total_contracts"`
	Accounts          int              `json:"accounts"`
}

// MarketHealth computes the derived health metrics.
//
// The volatility index is the mean coefficient of variation (stddev/mean)
// across the price feeds of all catalog underlyings with at least two
// samples, expressed as a percentage. Transcendental math runs on float64
// and is converted back to decimal immediately, as elsewhere in the repo.
func MarketHealth(st *state.MarketState) Health {
	h := Health{
		VolatilityIndex:   decimal.Zero,
		MarginUtilization: decimal.Zero,
		OpenInterest:      make(map[string]int64),
	}

	// Volatility across observed price feeds.
	var cvSum float64
	var cvN int
	for _, com := range catalog.All() {
		cv, ok := feedCV(st.PriceHistory(com.UnderlyingItem))
		if ok {
			cvSum += cv
			cvN++
		}
	}
	if cvN > 0 {
		h.VolatilityIndex = decimal.NewFromFloat(cvSum / float64(cvN) * 100).Round(4)
	}

	// Margin utilization across all accounts.
	locked := decimal.Zero
	free := decimal.Zero
	accounts := st.Accounts()
	for _, a := range accounts {
		locked = locked.Add(a.TotalMarginUsed)
		free = free.Add(a.Balance)
	}
	total := locked.Add(free)
	if total.IsPositive() {
		h.MarginUtilization = locked.Div(total).Mul(hundred).Round(2)
	}
	h.Accounts = len(accounts)

	// Open interest and contract counts.
	all := st.AllContracts()
	h.TotalContracts = len(all)
	for _, c := range all {
		if c.Status == model.StatusOpen {
			h.OpenContracts++
			h.OpenInterest[c.CommodityID] += c.Quantity
		}
	}
	return h
}

// feedCV returns the coefficient of variation of a price feed, or ok=false
// when there are fewer than two samples or a non-positive mean.
func feedCV(history []model.PriceSample) (float64, bool) {
	if len(history) < 2 {
		return 0, false
	}
	var sum float64
	for _, s := range history {
		sum += s.Price.InexactFloat64()
	}
	mean := sum / float64(len(history))
	if mean <= 0 {
		return 0, false
	}
	var sq float64
	for _, s := range history {
		d := s.Price.InexactFloat64() - mean
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(history))) / mean, true
}

// TraderRank is one leaderboard row.
type TraderRank struct {
	PlayerID      string          `json:"player_id"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	OpenPositions int             `json:"open_positions"`
}

// TopTraders ranks accounts by cumulative realized P&L, best first. Ties
// break on owner id for a stable order. limit <= 0 returns everyone.
func TopTraders(st *state.MarketState, limit int) []TraderRank {
	accounts := st.Accounts()
	ranks := make([]TraderRank, 0, len(accounts))
	for _, a := range accounts {
		ranks = append(ranks, TraderRank{
			PlayerID:      a.OwnerID,
			RealizedPnL:   a.TotalProfitLoss,
			OpenPositions: len(a.OpenContractIDs),
		})
	}
	sort.Slice(ranks, func(i, j int) bool {
		if !ranks[i].RealizedPnL.Equal(ranks[j].RealizedPnL) {
			return ranks[i].RealizedPnL.GreaterThan(ranks[j].RealizedPnL)
		}
		return ranks[i].PlayerID < ranks[j].PlayerID
	})
	if limit > 0 && len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return ranks
}

// VolumeRow is the per-commodity trade activity derived from the log.
type VolumeRow struct {
	CommodityID string          `json:"commodity_id"`
	Events      int64           `json:"events"`
	Quantity    int64           `json:"quantity"`
	Notional    decimal.Decimal `json:"notional"`
}

// TradingVolume aggregates trade-log entries at or after sinceTick by
// commodity, ordered by notional descending. Notional is
// contractSize × quantity × price, same as everywhere else. sinceTick <= 0
// covers the whole log.
func TradingVolume(st *state.MarketState, sinceTick int64) []VolumeRow {
	rows := make(map[string]*VolumeRow)
	for _, e := range st.TradeLog() {
		if sinceTick > 0 && e.Tick < sinceTick {
			continue
		}
		size := int64(1)
		if com, ok := catalog.ByID(e.CommodityID); ok {
			size = com.ContractSize
		}
		r, ok := rows[e.CommodityID]
		if !ok {
			r = &VolumeRow{CommodityID: e.CommodityID, Notional: decimal.Zero}
			rows[e.CommodityID] = r
		}
		r.Events++
		r.Quantity += e.Quantity
		r.Notional = r.Notional.Add(pricing.Notional(size, e.Quantity, e.Price))
	}

	out := make([]VolumeRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Notional.Equal(out[j].Notional) {
			return out[i].Notional.GreaterThan(out[j].Notional)
		}
		return out[i].CommodityID < out[j].CommodityID
	})
	return out
}
