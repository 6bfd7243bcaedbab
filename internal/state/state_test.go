package state_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/zionworld/futures-engine/internal/model"
	"github.com/zionworld/futures-engine/internal/state"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func openContract(holder string, margin decimal.Decimal) model.FuturesContract {
	return model.FuturesContract{
		CommodityID:    "iron_futures",
		HolderID:       holder,
		Direction:      model.Long,
		Quantity:       5,
		EntryPrice:     d(10),
		Margin:         margin,
		OpenedAtTick:   1,
		SettlementTick: 201,
	}
}

func logEntry(action model.TradeAction) model.TradeLogEntry {
	return model.TradeLogEntry{
		ID:          "entry-" + string(action),
		CommodityID: "iron_futures",
		PlayerID:    "ada",
		Action:      action,
		Quantity:    5,
		Price:       d(10),
		Tick:        1,
	}
}

func TestAccount_LazyCreation(t *testing.T) {
	st := state.New()

	a := st.Account("ada")
	if a.OwnerID != "ada" {
		t.Errorf("expected owner ada, got %s", a.OwnerID)
	}
	if !a.Balance.IsZero() {
		t.Errorf("fresh account should have zero balance, got %s", a.Balance)
	}
	if !a.LiquidationThreshold.Equal(d(0.5)) {
		t.Errorf("default threshold should be 0.5, got %s", a.LiquidationThreshold)
	}

	// Idempotent: a second access sees the same account.
	st.Deposit("ada", d(100))
	again := st.Account("ada")
	if !again.Balance.Equal(d(100)) {
		t.Errorf("expected 100 after deposit, got %s", again.Balance)
	}
}

func TestDeposit_Validation(t *testing.T) {
	st := state.New()
	if err := st.Deposit("ada", decimal.Zero); !errors.Is(err, state.ErrNonPositiveAmount) {
		t.Errorf("zero deposit: expected ErrNonPositiveAmount, got %v", err)
	}
	if err := st.Deposit("ada", d(-5)); !errors.Is(err, state.ErrNonPositiveAmount) {
		t.Errorf("negative deposit: expected ErrNonPositiveAmount, got %v", err)
	}
	if err := st.Deposit("ada", d(50)); err != nil {
		t.Errorf("positive deposit should succeed: %v", err)
	}
}

func TestWithdraw_FreeBalanceOnly(t *testing.T) {
	st := state.New()
	st.Deposit("ada", d(100))

	if err := st.Withdraw("ada", d(150)); !errors.Is(err, state.ErrInsufficientBalance) {
		t.Errorf("overdraw: expected ErrInsufficientBalance, got %v", err)
	}
	if err := st.Withdraw("ada", d(-1)); !errors.Is(err, state.ErrNonPositiveAmount) {
		t.Errorf("negative withdraw: expected ErrNonPositiveAmount, got %v", err)
	}
	if err := st.Withdraw("ada", d(100)); err != nil {
		t.Fatalf("full withdrawal should succeed: %v", err)
	}
	if bal := st.Account("ada").Balance; !bal.IsZero() {
		t.Errorf("balance should be exactly zero, got %s", bal)
	}
}

func TestApplyOpen_MonotonicIDsAndMarginLock(t *testing.T) {
	st := state.New()
	st.Deposit("ada", d(300))

	c1, err := st.ApplyOpen(openContract("ada", d(100)), logEntry(model.ActionOpen))
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	c2, err := st.ApplyOpen(openContract("ada", d(100)), logEntry(model.ActionOpen))
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	if c2.ID != c1.ID+1 {
		t.Errorf("ids must be monotonic: got %d then %d", c1.ID, c2.ID)
	}

	a := st.Account("ada")
	if !a.Balance.Equal(d(100)) {
		t.Errorf("balance: expected 100, got %s", a.Balance)
	}
	if !a.TotalMarginUsed.Equal(d(200)) {
		t.Errorf("locked margin: expected 200, got %s", a.TotalMarginUsed)
	}

	// Locked margin equals the sum over open contracts.
	sum := decimal.Zero
	for _, c := range st.OpenPositions("ada") {
		sum = sum.Add(c.Margin)
	}
	if !sum.Equal(a.TotalMarginUsed) {
		t.Errorf("margin invariant violated: sum %s, total %s", sum, a.TotalMarginUsed)
	}
}

func TestApplyOpen_ChecksBalanceUnderLock(t *testing.T) {
	st := state.New()
	st.Deposit("ada", d(50))

	_, err := st.ApplyOpen(openContract("ada", d(100)), logEntry(model.ActionOpen))
	if !errors.Is(err, state.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if a := st.Account("ada"); !a.Balance.Equal(d(50)) || !a.TotalMarginUsed.IsZero() {
		t.Errorf("failed open must not touch the account: %+v", a)
	}
}

func TestApplyClose_Accounting(t *testing.T) {
	st := state.New()
	st.Deposit("ada", d(100))
	c, _ := st.ApplyOpen(openContract("ada", d(100)), logEntry(model.ActionOpen))

	closed, err := st.ApplyClose(c.ID, "ada", d(250), model.StatusSettled, logEntry(model.ActionClose))
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if closed.Status != model.StatusSettled {
		t.Errorf("expected settled, got %s", closed.Status)
	}
	if !closed.RealizedPnL.Equal(d(250)) {
		t.Errorf("realized pnl: expected 250, got %s", closed.RealizedPnL)
	}

	a := st.Account("ada")
	if !a.Balance.Equal(d(350)) { // 0 + margin 100 + pnl 250
		t.Errorf("balance: expected 350, got %s", a.Balance)
	}
	if !a.TotalMarginUsed.IsZero() {
		t.Errorf("locked margin should be zero, got %s", a.TotalMarginUsed)
	}
	if !a.TotalProfitLoss.Equal(d(250)) {
		t.Errorf("cumulative pnl: expected 250, got %s", a.TotalProfitLoss)
	}
	if len(st.OpenPositions("ada")) != 0 {
		t.Error("closed contract still listed as open")
	}
}

func TestApplyClose_Failures(t *testing.T) {
	st := state.New()
	st.Deposit("ada", d(100))
	c, _ := st.ApplyOpen(openContract("ada", d(100)), logEntry(model.ActionOpen))

	if _, err := st.ApplyClose(999, "ada", decimal.Zero, model.StatusSettled, logEntry(model.ActionClose)); !errors.Is(err, state.ErrContractNotFound) {
		t.Errorf("unknown id: expected ErrContractNotFound, got %v", err)
	}
	if _, err := st.ApplyClose(c.ID, "mallory", decimal.Zero, model.StatusSettled, logEntry(model.ActionClose)); !errors.Is(err, state.ErrNotHolder) {
		t.Errorf("wrong holder: expected ErrNotHolder, got %v", err)
	}

	if _, err := st.ApplyClose(c.ID, "ada", decimal.Zero, model.StatusSettled, logEntry(model.ActionClose)); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	// A terminal contract never reopens and cannot be closed twice.
	if _, err := st.ApplyClose(c.ID, "ada", decimal.Zero, model.StatusSettled, logEntry(model.ActionClose)); !errors.Is(err, state.ErrNotOpen) {
		t.Errorf("double close: expected ErrNotOpen, got %v", err)
	}
	got, _ := st.Contract(c.ID)
	if got.Status != model.StatusSettled {
		t.Errorf("status must stay terminal, got %s", got.Status)
	}
}

func TestApplyClose_NegativeBalanceAllowed(t *testing.T) {
	st := state.New()
	st.Deposit("ada", d(100))
	c, _ := st.ApplyOpen(openContract("ada", d(100)), logEntry(model.ActionOpen))

	// Loss beyond margin plus balance drives the balance negative.
	if _, err := st.ApplyClose(c.ID, "ada", d(-500), model.StatusLiquidated, logEntry(model.ActionLiquidate)); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if bal := st.Account("ada").Balance; !bal.Equal(d(-400)) {
		t.Errorf("balance: expected -400, got %s", bal)
	}
}

func TestPriceFeed(t *testing.T) {
	st := state.New()

	if _, ok := st.CurrentPrice("iron"); ok {
		t.Error("no samples yet: CurrentPrice should report ok=false")
	}

	st.RecordPrice("iron", 1, d(10))
	st.RecordPrice("iron", 2, d(12))

	price, ok := st.CurrentPrice("iron")
	if !ok || !price.Equal(d(12)) {
		t.Errorf("expected latest price 12, got %s ok=%v", price, ok)
	}
	if h := st.PriceHistory("iron"); len(h) != 2 || h[0].Tick != 1 {
		t.Errorf("unexpected history: %+v", h)
	}
}

func TestBreaker_LazyDefaults(t *testing.T) {
	st := state.New()

	if st.BreakerExists("iron") {
		t.Error("breaker should not exist before first touch")
	}
	b := st.Breaker("iron")
	if !b.TriggerPercent.Equal(d(0.50)) || b.WindowTicks != 100 || b.PauseTicks != 50 {
		t.Errorf("unexpected defaults: %+v", b)
	}
	if !st.BreakerExists("iron") {
		t.Error("breaker should exist after first touch")
	}
}

type captureSink struct {
	entries []model.TradeLogEntry
}

func (c *captureSink) Append(e model.TradeLogEntry) {
	c.entries = append(c.entries, e)
}

func TestTradeLog_SinkMirror(t *testing.T) {
	st := state.New()
	sink := &captureSink{}
	st.SetLogSink(sink)

	st.Deposit("ada", d(100))
	c, _ := st.ApplyOpen(openContract("ada", d(100)), logEntry(model.ActionOpen))
	st.ApplyClose(c.ID, "ada", decimal.Zero, model.StatusSettled, logEntry(model.ActionClose))

	if got := len(st.TradeLog()); got != 2 {
		t.Errorf("expected 2 log entries, got %d", got)
	}
	if len(sink.entries) != 2 {
		t.Errorf("sink should mirror every append, got %d", len(sink.entries))
	}
	if sink.entries[0].ContractID != c.ID {
		t.Errorf("open entry should carry the assigned contract id")
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	st := state.New()
	st.Deposit("ada", d(500))
	c, _ := st.ApplyOpen(openContract("ada", d(100)), logEntry(model.ActionOpen))
	st.RecordPrice("iron", 1, d(10))
	st.Breaker("iron")
	st.AppendSpawns([]model.ResourceSpawn{{Item: "iron", Region: "salt_flats", X: 1, Y: 2, Quantity: 30}})

	restored := state.New()
	restored.Import(st.Export())

	if a := restored.Account("ada"); !a.Balance.Equal(d(400)) || !a.TotalMarginUsed.Equal(d(100)) {
		t.Errorf("account not restored: %+v", a)
	}
	got, ok := restored.Contract(c.ID)
	if !ok || got.Status != model.StatusOpen {
		t.Fatalf("contract not restored: %+v ok=%v", got, ok)
	}
	if len(restored.TradeLog()) != 1 || len(restored.AlternativeResources()) != 1 {
		t.Error("log or spawns not restored")
	}

	// Id generation resumes monotonically after a restore.
	st2, err := restored.ApplyOpen(openContract("ada", d(100)), logEntry(model.ActionOpen))
	if err != nil {
		t.Fatalf("open after restore failed: %v", err)
	}
	if st2.ID != c.ID+1 {
		t.Errorf("expected id %d after restore, got %d", c.ID+1, st2.ID)
	}
}
