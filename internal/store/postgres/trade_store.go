package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradewire/signalbridge/internal/domain"
)

// TradeStore implements domain.TradeStore on PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

var _ domain.TradeStore = (*TradeStore)(nil)

// Insert appends a trade to the log.
func (s *TradeStore) Insert(ctx context.Context, trade domain.Trade) error {
	const query = `
		INSERT INTO trades (id, symbol, side, qty, price, dry_run, trigger, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		trade.ID, trade.Symbol, string(trade.Side),
		trade.Quantity, trade.Price, trade.DryRun,
		trade.Trigger, trade.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", trade.ID, err)
	}
	return nil
}

// ListRecent returns up to limit trades, newest first.
func (s *TradeStore) ListRecent(ctx context.Context, limit int) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, symbol, side, qty, price, dry_run, trigger, executed_at
		 FROM trades
		 ORDER BY executed_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side string
		if err := rows.Scan(
			&t.ID, &t.Symbol, &side,
			&t.Quantity, &t.Price, &t.DryRun,
			&t.Trigger, &t.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trades: %w", err)
		}
		t.Side = domain.OrderSide(side)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list recent trades: %w", err)
	}
	return trades, nil
}
