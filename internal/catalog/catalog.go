// Package catalog holds the static commodity reference data. The catalog
// is immutable: fifteen instruments, fixed at compile time.
package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/zionworld/futures-engine/internal/model"
)

func rate(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// commodities is the full instrument set. Order is stable and matches the
// in-world listing order.
var commodities = []model.Commodity{
	{ID: "iron_futures", Name: "Iron Futures", UnderlyingItem: "iron", ContractSize: 10, MarginRate: rate(0.20), InterestRate: rate(0.001), MaxLeverage: 5, SettlementTicks: 200},
	{ID: "wood_futures", Name: "Wood Futures", UnderlyingItem: "wood", ContractSize: 25, MarginRate: rate(0.10), InterestRate: rate(0.0005), MaxLeverage: 10, SettlementTicks: 150},
	{ID: "stone_futures", Name: "Stone Futures", UnderlyingItem: "stone", ContractSize: 20, MarginRate: rate(0.12), InterestRate: rate(0.0005), MaxLeverage: 8, SettlementTicks: 150},
	{ID: "wheat_futures", Name: "Wheat Futures", UnderlyingItem: "wheat", ContractSize: 50, MarginRate: rate(0.08), InterestRate: rate(0.0008), MaxLeverage: 12, SettlementTicks: 100},
	{ID: "gold_futures", Name: "Gold Futures", UnderlyingItem: "gold", ContractSize: 5, MarginRate: rate(0.25), InterestRate: rate(0.002), MaxLeverage: 4, SettlementTicks: 300},
	{ID: "crystal_futures", Name: "Crystal Futures", UnderlyingItem: "crystal", ContractSize: 2, MarginRate: rate(0.30), InterestRate: rate(0.003), MaxLeverage: 3, SettlementTicks: 400},
	{ID: "coal_futures", Name: "Coal Futures", UnderlyingItem: "coal", ContractSize: 30, MarginRate: rate(0.10), InterestRate: rate(0.0006), MaxLeverage: 10, SettlementTicks: 150},
	{ID: "clay_futures", Name: "Clay Futures", UnderlyingItem: "clay", ContractSize: 40, MarginRate: rate(0.08), InterestRate: rate(0.0004), MaxLeverage: 12, SettlementTicks: 100},
	{ID: "fish_futures", Name: "Fish Futures", UnderlyingItem: "fish", ContractSize: 60, MarginRate: rate(0.06), InterestRate: rate(0.001), MaxLeverage: 15, SettlementTicks: 80},
	{ID: "hide_futures", Name: "Hide Futures", UnderlyingItem: "hide", ContractSize: 15, MarginRate: rate(0.15), InterestRate: rate(0.001), MaxLeverage: 6, SettlementTicks: 200},
	{ID: "herb_futures", Name: "Herb Futures", UnderlyingItem: "herb", ContractSize: 35, MarginRate: rate(0.10), InterestRate: rate(0.0012), MaxLeverage: 10, SettlementTicks: 120},
	{ID: "salt_futures", Name: "Salt Futures", UnderlyingItem: "salt", ContractSize: 45, MarginRate: rate(0.07), InterestRate: rate(0.0005), MaxLeverage: 14, SettlementTicks: 100},
	{ID: "silk_futures", Name: "Silk Futures", UnderlyingItem: "silk", ContractSize: 8, MarginRate: rate(0.22), InterestRate: rate(0.0018), MaxLeverage: 4, SettlementTicks: 250},
	{ID: "obsidian_futures", Name: "Obsidian Futures", UnderlyingItem: "obsidian", ContractSize: 4, MarginRate: rate(0.28), InterestRate: rate(0.0025), MaxLeverage: 3, SettlementTicks: 350},
	{ID: "amber_futures", Name: "Amber Futures", UnderlyingItem: "amber", ContractSize: 6, MarginRate: rate(0.24), InterestRate: rate(0.002), MaxLeverage: 4, SettlementTicks: 300},
}

var byID = func() map[string]*model.Commodity {
	m := make(map[string]*model.Commodity, len(commodities))
	for i := range commodities {
		m[commodities[i].ID] = &commodities[i]
	}
	return m
}()

var byUnderlying = func() map[string]*model.Commodity {
	m := make(map[string]*model.Commodity, len(commodities))
	for i := range commodities {
		m[commodities[i].UnderlyingItem] = &commodities[i]
	}
	return m
}()

// All returns the full catalog in listing order. Callers must not mutate
// the returned slice.
func All() []model.Commodity {
	out := make([]model.Commodity, len(commodities))
	copy(out, commodities)
	return out
}

// ByID looks up a commodity by instrument id. Returns ok=false for
// unknown ids; not-found is not an error.
func ByID(id string) (model.Commodity, bool) {
	c, ok := byID[id]
	if !ok {
		return model.Commodity{}, false
	}
	return *c, true
}

// ByUnderlying looks up the commodity whose underlying item matches item.
func ByUnderlying(item string) (model.Commodity, bool) {
	c, ok := byUnderlying[item]
	if !ok {
		return model.Commodity{}, false
	}
	return *c, true
}
