// Package audit mirrors the append-only trade log into PostgreSQL for
// out-of-process auditing. The in-memory log in host state remains the
// source of truth; this sink is best-effort and never blocks a trade.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/zionworld/futures-engine/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS trade_log (
	id           TEXT PRIMARY KEY,
	contract_id  BIGINT NOT NULL,
	commodity_id TEXT NOT NULL,
	player_id    TEXT NOT NULL,
	action       TEXT NOT NULL,
	quantity     BIGINT NOT NULL,
	price        NUMERIC NOT NULL,
	tick         BIGINT NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresSink implements state.TradeLogSink backed by a pgx pool.
// Monetary values are stored as NUMERIC for exact decimal precision.
type PostgresSink struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresSink creates the sink and ensures the trade_log table exists.
func NewPostgresSink(ctx context.Context, pool *pgxpool.Pool) (*PostgresSink, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, err
	}
	return &PostgresSink{pool: pool, timeout: 2 * time.Second}, nil
}

// Append mirrors one trade-log entry. Failures are logged and swallowed;
// the caller's operation has already committed to host state.
func (s *PostgresSink) Append(e model.TradeLogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO trade_log (id, contract_id, commodity_id, player_id, action, quantity, price, tick)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.ContractID, e.CommodityID, e.PlayerID, string(e.Action),
		e.Quantity, e.Price.String(), e.Tick,
	)
	if err != nil {
		slog.Error("audit append failed", "entry", e.ID, "err", err)
	}
}

// EntriesByPlayer returns the mirrored entries for one player, oldest
// first. Used by out-of-band audit tooling, not by the trading path.
func (s *PostgresSink) EntriesByPlayer(ctx context.Context, playerID string) ([]model.TradeLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, contract_id, commodity_id, player_id, action, quantity, price::TEXT, tick
		 FROM trade_log WHERE player_id = $1 ORDER BY tick, id`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.TradeLogEntry
	for rows.Next() {
		var e model.TradeLogEntry
		var action, priceS string
		if err := rows.Scan(&e.ID, &e.ContractID, &e.CommodityID, &e.PlayerID,
			&action, &e.Quantity, &priceS, &e.Tick); err != nil {
			return nil, err
		}
		e.Action = model.TradeAction(action)
		e.Price, _ = decimal.NewFromString(priceS)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
