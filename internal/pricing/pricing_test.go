package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/zionworld/futures-engine/internal/catalog"
	"github.com/zionworld/futures-engine/internal/model"
	"github.com/zionworld/futures-engine/internal/pricing"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestRequiredMargin_IronExample(t *testing.T) {
	// iron_futures: size 10, rate 0.20, max leverage 5.
	// 5 contracts at price 10 → notional 500, margin 100 (flat rate and
	// leverage floor coincide).
	iron, ok := catalog.ByID("iron_futures")
	if !ok {
		t.Fatal("iron_futures missing from catalog")
	}

	notional := pricing.Notional(iron.ContractSize, 5, d(10))
	if !notional.Equal(d(500)) {
		t.Errorf("notional: expected 500, got %s", notional)
	}

	margin := pricing.RequiredMargin(iron, 5, d(10))
	if !margin.Equal(d(100)) {
		t.Errorf("margin: expected 100, got %s", margin)
	}
}

func TestRequiredMargin_LeverageFloorHolds(t *testing.T) {
	// For every commodity: margin >= notional / maxLeverage, so effective
	// leverage never exceeds the ceiling.
	for _, c := range catalog.All() {
		notional := pricing.Notional(c.ContractSize, 7, d(13.5))
		margin := pricing.RequiredMargin(c, 7, d(13.5))

		floor := notional.Div(decimal.NewFromInt(c.MaxLeverage))
		if margin.LessThan(floor) {
			t.Errorf("%s: margin %s below floor %s", c.ID, margin, floor)
		}

		lev := pricing.Leverage(notional, margin)
		if lev.GreaterThan(decimal.NewFromInt(c.MaxLeverage)) {
			t.Errorf("%s: leverage %s exceeds max %d", c.ID, lev, c.MaxLeverage)
		}
	}
}

func TestPnL_IronExample(t *testing.T) {
	// long 5 iron contracts, entry 10, exit 15 → (15−10)×5×10 = 250.
	pnl := pricing.PnL(model.Long, 10, 5, d(10), d(15))
	if !pnl.Equal(d(250)) {
		t.Errorf("expected 250, got %s", pnl)
	}
}

func TestPnL_LongShortMirror(t *testing.T) {
	long := pricing.PnL(model.Long, 10, 5, d(10), d(13))
	short := pricing.PnL(model.Short, 10, 5, d(10), d(13))
	if !long.Equal(short.Neg()) {
		t.Errorf("long %s and short %s should be exact negatives", long, short)
	}
}

func TestPnL_FlatPriceIsZero(t *testing.T) {
	if pnl := pricing.PnL(model.Long, 10, 5, d(10), d(10)); !pnl.IsZero() {
		t.Errorf("flat close should be zero, got %s", pnl)
	}
	if pnl := pricing.PnL(model.Short, 10, 5, d(10), d(10)); !pnl.IsZero() {
		t.Errorf("flat short close should be zero, got %s", pnl)
	}
}

func TestPercentChange(t *testing.T) {
	pc := pricing.PercentChange(model.Long, d(10), d(15))
	if !pc.Equal(d(50)) {
		t.Errorf("expected +50%%, got %s", pc)
	}
	pc = pricing.PercentChange(model.Short, d(10), d(15))
	if !pc.Equal(d(-50)) {
		t.Errorf("expected -50%% for short, got %s", pc)
	}
	if pc := pricing.PercentChange(model.Long, decimal.Zero, d(15)); !pc.IsZero() {
		t.Errorf("zero entry should report zero, got %s", pc)
	}
}

func TestLeverage_ZeroMargin(t *testing.T) {
	if lev := pricing.Leverage(d(500), decimal.Zero); !lev.IsZero() {
		t.Errorf("zero margin should report zero leverage, got %s", lev)
	}
}
