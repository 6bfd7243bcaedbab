// Package state owns the shared mutable host state: the margin ledger,
// contract registry, oracle price feed, circuit-breaker states, trade log,
// and the alternative-resources list.
//
// MarketState is the unit of mutual exclusion. Every compound mutation
// (open, close) happens under one lock acquisition, so concurrent callers
// see either the pre- or post-operation state, never a partial one.
// Accessors return copies to avoid external mutation.
package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/zionworld/futures-engine/internal/model"
)

var (
	// ErrNonPositiveAmount is returned for deposits or withdrawals <= 0.
	ErrNonPositiveAmount = errors.New("state: amount must be positive")

	// ErrInsufficientBalance is returned when a withdrawal or margin debit
	// exceeds the free balance.
	ErrInsufficientBalance = errors.New("state: insufficient free balance")

	// ErrContractNotFound is returned for unknown contract ids.
	ErrContractNotFound = errors.New("state: contract not found")

	// ErrNotHolder is returned when a close is attempted by a non-owner.
	ErrNotHolder = errors.New("state: contract not held by caller")

	// ErrNotOpen is returned when a close targets a non-open contract.
	ErrNotOpen = errors.New("state: contract is not open")
)

// DefaultLiquidationThreshold is the margin-level ratio below which an
// account's positions are force-closed.
var DefaultLiquidationThreshold = decimal.NewFromFloat(0.5)

// maxPriceHistory bounds the per-item rolling price feed.
const maxPriceHistory = 512

// TradeLogSink receives a mirror of every trade-log append. Used to wire
// an external audit store; appends are best-effort and must not block.
type TradeLogSink interface {
	Append(entry model.TradeLogEntry)
}

// MarketState is the single shared state structure. The caller owns it;
// the engine, risk, monopoly, and analytics packages read and mutate it
// through the methods below.
type MarketState struct {
	mu sync.RWMutex

	accounts       map[string]*model.MarginAccount
	contracts      map[int64]*model.FuturesContract
	nextContractID int64

	breakers map[string]*model.CircuitBreaker
	prices   map[string][]model.PriceSample

	tradeLog     []model.TradeLogEntry
	altResources []model.ResourceSpawn

	sink TradeLogSink
}

// New creates an empty host state. Contract ids start at 1 and are
// monotonic for the lifetime of the state.
func New() *MarketState {
	return &MarketState{
		accounts:       make(map[string]*model.MarginAccount),
		contracts:      make(map[int64]*model.FuturesContract),
		nextContractID: 1,
		breakers:       make(map[string]*model.CircuitBreaker),
		prices:         make(map[string][]model.PriceSample),
	}
}

// SetLogSink attaches an audit mirror for trade-log appends.
func (s *MarketState) SetLogSink(sink TradeLogSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// --- Margin ledger ---

// account returns the live account record, creating a zero-balance one on
// first access. Callers must hold s.mu.
func (s *MarketState) account(owner string) *model.MarginAccount {
	a, ok := s.accounts[owner]
	if !ok {
		a = &model.MarginAccount{
			OwnerID:              owner,
			Balance:              decimal.Zero,
			TotalMarginUsed:      decimal.Zero,
			TotalProfitLoss:      decimal.Zero,
			LiquidationThreshold: DefaultLiquidationThreshold,
		}
		s.accounts[owner] = a
	}
	return a
}

// Account returns a copy of the owner's margin account, materializing a
// zero-balance account on first access. Idempotent.
func (s *MarketState) Account(owner string) model.MarginAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAccount(s.account(owner))
}

// Deposit credits the free balance. Fails for non-positive amounts.
func (s *MarketState) Deposit(owner string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: deposit of %s", ErrNonPositiveAmount, amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.account(owner)
	a.Balance = a.Balance.Add(amount)
	return nil
}

// Withdraw debits the free balance. Locked margin is not withdrawable.
func (s *MarketState) Withdraw(owner string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: withdrawal of %s", ErrNonPositiveAmount, amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.account(owner)
	if amount.GreaterThan(a.Balance) {
		return fmt.Errorf("%w: requested %s, free %s", ErrInsufficientBalance, amount, a.Balance)
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

// --- Contract registry ---

// Contract returns a copy of the contract with the given id.
func (s *MarketState) Contract(id int64) (model.FuturesContract, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[id]
	if !ok {
		return model.FuturesContract{}, false
	}
	return *c, true
}

// OpenPositions returns copies of the holder's open contracts, ordered by
// contract id. Settled, expired, and liquidated contracts are excluded.
func (s *MarketState) OpenPositions(holder string) []model.FuturesContract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[holder]
	if !ok {
		return nil
	}
	out := make([]model.FuturesContract, 0, len(a.OpenContractIDs))
	for _, id := range a.OpenContractIDs {
		if c, ok := s.contracts[id]; ok && c.Status == model.StatusOpen {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OpenContracts returns copies of every open contract, ordered by id.
func (s *MarketState) OpenContracts() []model.FuturesContract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.FuturesContract
	for _, c := range s.contracts {
		if c.Status == model.StatusOpen {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllContracts returns copies of every contract ever opened, ordered by id.
// Closed contracts are retained for audit and analytics.
func (s *MarketState) AllContracts() []model.FuturesContract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.FuturesContract, 0, len(s.contracts))
	for _, c := range s.contracts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ApplyOpen atomically debits the margin, locks it, assigns the next
// monotonic contract id, and registers the contract. The balance check
// runs under the lock, closing the check-then-debit window against
// concurrent withdrawals. Returns the registered contract.
func (s *MarketState) ApplyOpen(c model.FuturesContract, entry model.TradeLogEntry) (model.FuturesContract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.account(c.HolderID)
	if c.Margin.GreaterThan(a.Balance) {
		return model.FuturesContract{}, fmt.Errorf("%w: margin %s, free %s",
			ErrInsufficientBalance, c.Margin, a.Balance)
	}

	c.ID = s.nextContractID
	s.nextContractID++
	c.Status = model.StatusOpen
	c.RealizedPnL = decimal.Zero

	a.Balance = a.Balance.Sub(c.Margin)
	a.TotalMarginUsed = a.TotalMarginUsed.Add(c.Margin)
	a.OpenContractIDs = append(a.OpenContractIDs, c.ID)

	stored := c
	s.contracts[c.ID] = &stored

	entry.ContractID = c.ID
	s.appendLog(entry)
	return c, nil
}

// ApplyClose atomically finalizes a contract: credits margin plus realized
// P&L back to the holder's free balance, unlocks the margin, accumulates
// the realized P&L, removes the contract from the open list, and sets the
// terminal status. The balance may go negative when losses exceed locked
// margin plus balance; the liquidation monitor exists to bound that.
func (s *MarketState) ApplyClose(id int64, holder string, pnl decimal.Decimal,
	status model.ContractStatus, entry model.TradeLogEntry) (model.FuturesContract, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[id]
	if !ok {
		return model.FuturesContract{}, fmt.Errorf("%w: id %d", ErrContractNotFound, id)
	}
	if holder != "" && c.HolderID != holder {
		return model.FuturesContract{}, fmt.Errorf("%w: contract %d belongs to %s",
			ErrNotHolder, id, c.HolderID)
	}
	if c.Status != model.StatusOpen {
		return model.FuturesContract{}, fmt.Errorf("%w: contract %d is %s", ErrNotOpen, id, c.Status)
	}

	a := s.account(c.HolderID)
	a.Balance = a.Balance.Add(c.Margin).Add(pnl)
	a.TotalMarginUsed = a.TotalMarginUsed.Sub(c.Margin)
	a.TotalProfitLoss = a.TotalProfitLoss.Add(pnl)
	a.OpenContractIDs = removeID(a.OpenContractIDs, id)

	c.Status = status
	c.RealizedPnL = pnl

	s.appendLog(entry)
	return *c, nil
}

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// --- Oracle price feed ---

// RecordPrice appends an oracle sample for an underlying item. Samples are
// expected in ascending tick order; the rolling window is bounded.
func (s *MarketState) RecordPrice(item string, tick int64, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.prices[item], model.PriceSample{Tick: tick, Price: price})
	if len(h) > maxPriceHistory {
		h = h[len(h)-maxPriceHistory:]
	}
	s.prices[item] = h
}

// PriceHistory returns a copy of the recorded samples for an item.
func (s *MarketState) PriceHistory(item string) []model.PriceSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.prices[item]
	out := make([]model.PriceSample, len(h))
	copy(out, h)
	return out
}

// CurrentPrice returns the most recent oracle sample for an item. This is
// the synchronous price-oracle lookup the engine consumes; it may be stale
// but never blocks.
func (s *MarketState) CurrentPrice(item string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.prices[item]
	if len(h) == 0 {
		return decimal.Zero, false
	}
	return h[len(h)-1].Price, true
}

// --- Circuit breakers ---

// Breaker returns a copy of the item's breaker state, lazily creating it
// with default tuning.
func (s *MarketState) Breaker(item string) model.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.breaker(item)
}

func (s *MarketState) breaker(item string) *model.CircuitBreaker {
	b, ok := s.breakers[item]
	if !ok {
		b = &model.CircuitBreaker{
			Item:           item,
			TriggerPercent: decimal.NewFromFloat(0.50),
			WindowTicks:    100,
			PauseTicks:     50,
		}
		s.breakers[item] = b
	}
	return b
}

// BreakerExists reports whether a breaker state has been materialized for
// the item, without creating one.
func (s *MarketState) BreakerExists(item string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.breakers[item]
	return ok
}

// UpdateBreaker mutates the item's breaker state under the lock.
func (s *MarketState) UpdateBreaker(item string, fn func(*model.CircuitBreaker)) model.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.breaker(item)
	fn(b)
	return *b
}

// --- Trade log ---

// appendLog records an entry and mirrors it to the audit sink, if any.
// Callers must hold s.mu.
func (s *MarketState) appendLog(entry model.TradeLogEntry) {
	s.tradeLog = append(s.tradeLog, entry)
	if s.sink != nil {
		s.sink.Append(entry)
	}
}

// TradeLog returns a copy of the append-only trade log.
func (s *MarketState) TradeLog() []model.TradeLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TradeLogEntry, len(s.tradeLog))
	copy(out, s.tradeLog)
	return out
}

// --- Alternative resources ---

// AppendSpawns records monopoly-break spawn events. The list is persistent
// and append-only.
func (s *MarketState) AppendSpawns(spawns []model.ResourceSpawn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.altResources = append(s.altResources, spawns...)
}

// AlternativeResources returns a copy of the spawn list.
func (s *MarketState) AlternativeResources() []model.ResourceSpawn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ResourceSpawn, len(s.altResources))
	copy(out, s.altResources)
	return out
}

// Accounts returns copies of all margin accounts, ordered by owner id.
func (s *MarketState) Accounts() []model.MarginAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.MarginAccount, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, cloneAccount(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out
}

func cloneAccount(a *model.MarginAccount) model.MarginAccount {
	c := *a
	c.OpenContractIDs = append([]int64(nil), a.OpenContractIDs...)
	return c
}
