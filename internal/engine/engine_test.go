package engine_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/zionworld/futures-engine/internal/engine"
	"github.com/zionworld/futures-engine/internal/model"
	"github.com/zionworld/futures-engine/internal/risk"
	"github.com/zionworld/futures-engine/internal/state"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newFundedState creates a host state with one funded account.
func newFundedState(t *testing.T, owner string, balance float64) *state.MarketState {
	t.Helper()
	st := state.New()
	if err := st.Deposit(owner, d(balance)); err != nil {
		t.Fatalf("failed to fund %s: %v", owner, err)
	}
	return st
}

func ironOpen(owner string, qty int64, price float64, tick int64) engine.OpenRequest {
	return engine.OpenRequest{
		HolderID:    owner,
		CommodityID: "iron_futures",
		Direction:   model.Long,
		Quantity:    qty,
		Price:       d(price),
		Tick:        tick,
	}
}

func TestOpenPosition_IronExample(t *testing.T) {
	st := newFundedState(t, "ada", 1000)

	c, err := engine.OpenPosition(st, ironOpen("ada", 5, 10, 1))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if !c.Margin.Equal(d(100)) {
		t.Errorf("margin: expected 100, got %s", c.Margin)
	}
	if c.SettlementTick != 201 { // 1 + iron horizon 200
		t.Errorf("settlement tick: expected 201, got %d", c.SettlementTick)
	}
	if c.Status != model.StatusOpen {
		t.Errorf("expected open, got %s", c.Status)
	}

	a := st.Account("ada")
	if !a.Balance.Equal(d(900)) {
		t.Errorf("balance: expected 900, got %s", a.Balance)
	}
	if !a.TotalMarginUsed.Equal(d(100)) {
		t.Errorf("locked: expected 100, got %s", a.TotalMarginUsed)
	}
	if entries := st.TradeLog(); len(entries) != 1 || entries[0].Action != model.ActionOpen {
		t.Errorf("expected one open log entry, got %+v", entries)
	}
}

func TestOpenPosition_Validation(t *testing.T) {
	st := newFundedState(t, "ada", 1000)

	cases := []struct {
		name string
		req  engine.OpenRequest
		want error
	}{
		{"unknown commodity", engine.OpenRequest{HolderID: "ada", CommodityID: "plasma_futures", Direction: model.Long, Quantity: 1, Price: d(10)}, engine.ErrUnknownCommodity},
		{"bad direction", engine.OpenRequest{HolderID: "ada", CommodityID: "iron_futures", Direction: "sideways", Quantity: 1, Price: d(10)}, engine.ErrInvalidDirection},
		{"zero quantity", engine.OpenRequest{HolderID: "ada", CommodityID: "iron_futures", Direction: model.Long, Quantity: 0, Price: d(10)}, engine.ErrInvalidQuantity},
		{"negative quantity", engine.OpenRequest{HolderID: "ada", CommodityID: "iron_futures", Direction: model.Long, Quantity: -3, Price: d(10)}, engine.ErrInvalidQuantity},
		{"zero price", engine.OpenRequest{HolderID: "ada", CommodityID: "iron_futures", Direction: model.Long, Quantity: 1, Price: decimal.Zero}, engine.ErrInvalidPrice},
	}
	for _, tc := range cases {
		if _, err := engine.OpenPosition(st, tc.req); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestOpenPosition_InsufficientMargin(t *testing.T) {
	st := newFundedState(t, "ada", 50)

	_, err := engine.OpenPosition(st, ironOpen("ada", 5, 10, 1)) // needs 100
	if !errors.Is(err, state.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if a := st.Account("ada"); !a.Balance.Equal(d(50)) {
		t.Errorf("failed open must leave the balance untouched, got %s", a.Balance)
	}
}

func TestOpenPosition_PausedByBreaker(t *testing.T) {
	st := newFundedState(t, "ada", 1000)
	risk.TripCircuitBreaker(st, "iron", 10) // paused until 60

	if _, err := engine.OpenPosition(st, ironOpen("ada", 5, 10, 20)); !errors.Is(err, engine.ErrTradingPaused) {
		t.Fatalf("expected ErrTradingPaused, got %v", err)
	}

	// After the pause elapses the breaker self-clears and opens succeed.
	if _, err := engine.OpenPosition(st, ironOpen("ada", 5, 10, 60)); err != nil {
		t.Fatalf("open after pause should succeed: %v", err)
	}
}

func TestClosePosition_RoundTripRestoresBalance(t *testing.T) {
	st := newFundedState(t, "ada", 1000)
	c, _ := engine.OpenPosition(st, ironOpen("ada", 5, 10, 1))

	closed, err := engine.ClosePosition(st, "ada", c.ID, d(10), 2)
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !closed.RealizedPnL.IsZero() {
		t.Errorf("flat close should realize zero, got %s", closed.RealizedPnL)
	}
	if bal := st.Account("ada").Balance; !bal.Equal(d(1000)) {
		t.Errorf("balance must be restored exactly: expected 1000, got %s", bal)
	}
}

func TestClosePosition_IronProfitExample(t *testing.T) {
	st := newFundedState(t, "ada", 1000)
	c, _ := engine.OpenPosition(st, ironOpen("ada", 5, 10, 1))

	closed, err := engine.ClosePosition(st, "ada", c.ID, d(15), 2)
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !closed.RealizedPnL.Equal(d(250)) {
		t.Errorf("pnl: expected 250, got %s", closed.RealizedPnL)
	}
	if closed.Status != model.StatusSettled {
		t.Errorf("expected settled, got %s", closed.Status)
	}
	if bal := st.Account("ada").Balance; !bal.Equal(d(1250)) {
		t.Errorf("balance: expected 1250, got %s", bal)
	}
}

func TestClosePosition_LongShortMirror(t *testing.T) {
	st := newFundedState(t, "ada", 1000)
	st.Deposit("bob", d(1000))

	long, _ := engine.OpenPosition(st, ironOpen("ada", 5, 10, 1))
	shortReq := ironOpen("bob", 5, 10, 1)
	shortReq.Direction = model.Short
	short, _ := engine.OpenPosition(st, shortReq)

	closedLong, _ := engine.ClosePosition(st, "ada", long.ID, d(13), 2)
	closedShort, _ := engine.ClosePosition(st, "bob", short.ID, d(13), 2)

	if !closedLong.RealizedPnL.Equal(closedShort.RealizedPnL.Neg()) {
		t.Errorf("long %s and short %s should be exact negatives",
			closedLong.RealizedPnL, closedShort.RealizedPnL)
	}
}

func TestClosePosition_Failures(t *testing.T) {
	st := newFundedState(t, "ada", 1000)
	c, _ := engine.OpenPosition(st, ironOpen("ada", 5, 10, 1))

	if _, err := engine.ClosePosition(st, "ada", 999, d(10), 2); !errors.Is(err, state.ErrContractNotFound) {
		t.Errorf("unknown contract: expected ErrContractNotFound, got %v", err)
	}
	if _, err := engine.ClosePosition(st, "mallory", c.ID, d(10), 2); !errors.Is(err, state.ErrNotHolder) {
		t.Errorf("wrong owner: expected ErrNotHolder, got %v", err)
	}
	if _, err := engine.ClosePosition(st, "ada", c.ID, d(-1), 2); !errors.Is(err, engine.ErrInvalidPrice) {
		t.Errorf("bad price: expected ErrInvalidPrice, got %v", err)
	}

	engine.ClosePosition(st, "ada", c.ID, d(10), 2)
	_, err := engine.ClosePosition(st, "ada", c.ID, d(10), 3)
	if !errors.Is(err, state.ErrNotOpen) {
		t.Errorf("double close: expected ErrNotOpen, got %v", err)
	}
}

func TestOpenPositions_ShrinkOnClose(t *testing.T) {
	st := newFundedState(t, "ada", 1000)
	c1, _ := engine.OpenPosition(st, ironOpen("ada", 2, 10, 1))
	c2, _ := engine.OpenPosition(st, ironOpen("ada", 3, 10, 1))

	if got := len(st.OpenPositions("ada")); got != 2 {
		t.Fatalf("expected 2 open positions, got %d", got)
	}
	engine.ClosePosition(st, "ada", c1.ID, d(10), 2)
	if got := len(st.OpenPositions("ada")); got != 1 {
		t.Fatalf("expected 1 open position after close, got %d", got)
	}
	engine.ClosePosition(st, "ada", c2.ID, d(10), 3)
	if got := len(st.OpenPositions("ada")); got != 0 {
		t.Fatalf("expected 0 open positions, got %d", got)
	}
}

func TestPositionPnL_UnknownContractIsZero(t *testing.T) {
	st := state.New()
	res := engine.PositionPnL(st, 42, d(10))
	if !res.ProfitLoss.IsZero() || !res.PercentChange.IsZero() {
		t.Errorf("unknown contract should value to zero, got %+v", res)
	}
}

func TestSettleExpired(t *testing.T) {
	st := newFundedState(t, "ada", 1000)
	c, _ := engine.OpenPosition(st, ironOpen("ada", 5, 10, 1)) // settles at 201
	st.RecordPrice("iron", 150, d(15))

	// Before the horizon nothing settles.
	if settled := engine.SettleExpired(st, 200, st); len(settled) != 0 {
		t.Fatalf("nothing should settle at tick 200, got %d", len(settled))
	}

	settled := engine.SettleExpired(st, 201, st)
	if len(settled) != 1 {
		t.Fatalf("expected 1 settlement, got %d", len(settled))
	}
	if settled[0].ContractID != c.ID || !settled[0].RealizedPnL.Equal(d(250)) {
		t.Errorf("unexpected settlement: %+v", settled[0])
	}

	got, _ := st.Contract(c.ID)
	if got.Status != model.StatusExpired {
		t.Errorf("auto-settled contract should end expired, got %s", got.Status)
	}
	if bal := st.Account("ada").Balance; !bal.Equal(d(1250)) {
		t.Errorf("balance: expected 1250, got %s", bal)
	}

	// Idempotent: a later sweep settles nothing further.
	if again := engine.SettleExpired(st, 300, st); len(again) != 0 {
		t.Errorf("second sweep must settle nothing, got %d", len(again))
	}
}

func TestSettleExpired_NoOraclePriceSettlesFlat(t *testing.T) {
	st := newFundedState(t, "ada", 1000)
	engine.OpenPosition(st, ironOpen("ada", 5, 10, 1))

	settled := engine.SettleExpired(st, 500, st)
	if len(settled) != 1 {
		t.Fatalf("expected 1 settlement, got %d", len(settled))
	}
	if !settled[0].RealizedPnL.IsZero() {
		t.Errorf("flat settlement should realize zero, got %s", settled[0].RealizedPnL)
	}
	if bal := st.Account("ada").Balance; !bal.Equal(d(1000)) {
		t.Errorf("balance should be restored, got %s", bal)
	}
}
