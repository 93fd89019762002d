package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradewire/signalbridge/internal/domain"
)

// PositionStore implements domain.PositionStore on PostgreSQL. The positions
// table keeps one row per symbol, always holding the latest record.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

var _ domain.PositionStore = (*PositionStore)(nil)

const positionCols = `id, symbol, side, entry_price, qty, status, opened_at, closed_at, exit_price, version`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side, status string

	err := row.Scan(
		&p.ID, &p.Symbol, &side,
		&p.EntryPrice, &p.Quantity, &status,
		&p.OpenedAt, &p.ClosedAt, &p.ExitPrice,
		&p.Version,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.PositionSide(side)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

// Create opens a position for a symbol. The upsert only replaces a row whose
// previous position is closed; an existing open position fails with
// ErrPositionOpen.
func (s *PositionStore) Create(ctx context.Context, pos domain.Position) error {
	const query = `
		INSERT INTO positions (
			symbol, id, side, entry_price, qty, status,
			opened_at, closed_at, exit_price, version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, NULL, 1, NOW())
		ON CONFLICT (symbol) DO UPDATE SET
			id          = EXCLUDED.id,
			side        = EXCLUDED.side,
			entry_price = EXCLUDED.entry_price,
			qty         = EXCLUDED.qty,
			status      = EXCLUDED.status,
			opened_at   = EXCLUDED.opened_at,
			closed_at   = NULL,
			exit_price  = NULL,
			version     = positions.version + 1,
			updated_at  = NOW()
		WHERE positions.status <> 'open'`

	tag, err := s.pool.Exec(ctx, query,
		pos.Symbol, pos.ID, string(pos.Side),
		pos.EntryPrice, pos.Quantity, string(pos.Status),
		pos.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", pos.Symbol, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: create position %s: %w", pos.Symbol, domain.ErrPositionOpen)
	}
	return nil
}

// Get returns the latest position record for a symbol, open or closed.
func (s *PositionStore) Get(ctx context.Context, symbol string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE symbol = $1`, symbol)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", symbol, domain.ErrNotFound)
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", symbol, err)
	}
	return p, nil
}

// Close flattens the symbol's position. Closing an already-closed position is
// a no-op returning the stored record.
func (s *PositionStore) Close(ctx context.Context, symbol string, exitPrice float64) (domain.Position, error) {
	const query = `
		UPDATE positions SET
			side       = 'none',
			status     = 'closed',
			exit_price = $2,
			closed_at  = $3,
			version    = version + 1,
			updated_at = NOW()
		WHERE symbol = $1 AND status = 'open'
		RETURNING ` + positionCols

	now := time.Now().UTC()
	p, err := scanPosition(s.pool.QueryRow(ctx, query, symbol, exitPrice, now))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, fmt.Errorf("postgres: close position %s: %w", symbol, err)
	}

	// Nothing open; return whatever the latest record is, or ErrNotFound for
	// a symbol that never traded.
	return s.Get(ctx, symbol)
}

// ListOpen returns every open position, used to resume monitors at start.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions
		 WHERE status = 'open'
		 ORDER BY opened_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan open positions: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	return positions, nil
}
