// Package model defines the core domain types shared across the futures
// engine. All monetary values use shopspring/decimal — never float64 for
// money. Quantities and simulation ticks are int64.
package model

import (
	"github.com/shopspring/decimal"
)

// Direction is the side of a futures contract.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// ContractStatus is the lifecycle state of a futures contract.
// Transitions are one-way: open → settled | liquidated, and a contract
// auto-settled at its settlement tick carries the final marker expired.
type ContractStatus string

const (
	StatusOpen       ContractStatus = "open"
	StatusSettled    ContractStatus = "settled"
	StatusExpired    ContractStatus = "expired"
	StatusLiquidated ContractStatus = "liquidated"
)

// Terminal reports whether the status is final. A terminal status never
// reverts to open.
func (s ContractStatus) Terminal() bool {
	switch s {
	case StatusSettled, StatusExpired, StatusLiquidated:
		return true
	}
	return false
}

// Commodity is an immutable catalog entry describing one tradable
// instrument. The catalog never changes at runtime.
type Commodity struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	UnderlyingItem  string          `json:"underlying_item"`
	ContractSize    int64           `json:"contract_size"`    // units per contract
	MarginRate      decimal.Decimal `json:"margin_rate"`      // fraction of notional, 0–1
	InterestRate    decimal.Decimal `json:"interest_rate"`    // per-tick carry rate, reference data
	MaxLeverage     int64           `json:"max_leverage"`     // >= 1
	SettlementTicks int64           `json:"settlement_ticks"` // horizon from open to auto-settle
}

// FuturesContract is one margined position. Ids are monotonic per host
// state. Closed contracts stay in the registry for audit and analytics.
type FuturesContract struct {
	ID             int64           `json:"id"`
	CommodityID    string          `json:"commodity_id"`
	HolderID       string          `json:"holder_id"`
	GuildID        string          `json:"guild_id,omitempty"` // optional controlling guild
	Direction      Direction       `json:"direction"`
	Quantity       int64           `json:"quantity"` // positive
	EntryPrice     decimal.Decimal `json:"entry_price"`
	Margin         decimal.Decimal `json:"margin"` // locked at open
	OpenedAtTick   int64           `json:"opened_at_tick"`
	SettlementTick int64           `json:"settlement_tick"`
	Status         ContractStatus  `json:"status"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"` // populated at close
}

// MarginAccount is a participant's collateral account. Created lazily on
// first deposit or position open; never deleted.
type MarginAccount struct {
	OwnerID              string          `json:"owner_id"`
	Balance              decimal.Decimal `json:"balance"` // free balance
	OpenContractIDs      []int64         `json:"open_contract_ids"`
	TotalMarginUsed      decimal.Decimal `json:"total_margin_used"`
	TotalProfitLoss      decimal.Decimal `json:"total_profit_loss"` // cumulative realized
	LiquidationThreshold decimal.Decimal `json:"liquidation_threshold"`
}

// CircuitBreaker tracks the crash-pause state for one underlying item.
// Lazily created with default tuning on first touch.
type CircuitBreaker struct {
	Item           string          `json:"item"`
	TriggerPercent decimal.Decimal `json:"trigger_percent"` // default 0.50
	WindowTicks    int64           `json:"window_ticks"`    // default 100
	PauseTicks     int64           `json:"pause_ticks"`     // default 50
	Active         bool            `json:"active"`
	PausedUntil    int64           `json:"paused_until"`
}

// TradeAction is the kind of event recorded in the trade log.
type TradeAction string

const (
	ActionOpen      TradeAction = "open"
	ActionClose     TradeAction = "close"
	ActionSettle    TradeAction = "settle"
	ActionLiquidate TradeAction = "liquidate"
)

// TradeLogEntry is an immutable record of a market event. Once appended,
// entries are never modified or deleted.
type TradeLogEntry struct {
	ID          string          `json:"id"` // uuid
	ContractID  int64           `json:"contract_id"`
	CommodityID string          `json:"commodity_id"`
	PlayerID    string          `json:"player_id"`
	Action      TradeAction     `json:"action"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Tick        int64           `json:"tick"`
}

// PriceSample is one oracle observation for an underlying item.
type PriceSample struct {
	Tick  int64           `json:"tick"`
	Price decimal.Decimal `json:"price"`
}

// ResourceSpawn is one alternative-supply spawn produced by monopoly
// breaking. The list in host state is append-only.
type ResourceSpawn struct {
	Item     string `json:"item"`
	Region   string `json:"region"`
	X        int64  `json:"x"`
	Y        int64  `json:"y"`
	Quantity int64  `json:"quantity"`
}

// ControllerKind distinguishes guild-held from solo-held long interest.
type ControllerKind string

const (
	ControllerGuild ControllerKind = "guild"
	ControllerSolo  ControllerKind = "solo"
)

// Controller is the entity controlling a slice of open long interest,
// resolved once per contract during a monopoly audit.
type Controller struct {
	Kind ControllerKind `json:"kind"`
	ID   string         `json:"id"`
}

// Key returns a stable aggregation key for the controller.
func (c Controller) Key() string {
	return string(c.Kind) + ":" + c.ID
}
