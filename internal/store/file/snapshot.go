// Package file implements the default position and trade stores on top of a
// single JSON snapshot file, so state survives a process restart without any
// external database.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tradewire/signalbridge/internal/domain"
)

// maxTrades bounds the trade log kept in the snapshot.
const maxTrades = 500

// positionRecord is the on-disk shape of one symbol's state.
type positionRecord struct {
	Symbol       string   `json:"symbol"`
	HasPosition  bool     `json:"has_position"`
	LastBuyTs    int64    `json:"last_buy_ts"`
	LastEntry    float64  `json:"last_entry_price"`
	LastQty      float64  `json:"last_qty"`
	PositionID   string   `json:"position_id,omitempty"`
	Version      uint64   `json:"version,omitempty"`
	ClosedAtUnix int64    `json:"closed_at,omitempty"`
	ExitPrice    *float64 `json:"exit_price,omitempty"`
}

// tradeRecord is the on-disk shape of one trade log entry.
type tradeRecord struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Quantity   float64 `json:"qty"`
	Price      float64 `json:"price"`
	DryRun     bool    `json:"dry_run"`
	Trigger    string  `json:"trigger"`
	ExecutedAt int64   `json:"executed_at"`
}

// snapshot is the full file contents.
type snapshot struct {
	Positions map[string]positionRecord `json:"positions"`
	Trades    []tradeRecord             `json:"trades,omitempty"`
}

// Store keeps positions and trades in memory and mirrors every mutation to a
// JSON file via write-to-temp-then-rename, so the file is always a complete
// snapshot.
type Store struct {
	path   string
	logger *slog.Logger

	mu        sync.Mutex
	positions map[string]domain.Position
	trades    []domain.Trade
}

var (
	_ domain.PositionStore = (*Store)(nil)
	_ domain.TradeStore    = (*Store)(nil)
)

// NewStore creates a Store backed by the file at path. When load is true and
// the file exists, previous state is restored; a missing file starts empty.
func NewStore(path string, load bool, logger *slog.Logger) (*Store, error) {
	s := &Store{
		path:      path,
		logger:    logger.With(slog.String("component", "snapshot_store")),
		positions: make(map[string]domain.Position),
	}
	if load {
		if err := s.restore(); err != nil {
			return nil, fmt.Errorf("file: restore %s: %w", path, err)
		}
	}
	return s, nil
}

// Create opens a position for a symbol. It fails with ErrPositionOpen when an
// open position already exists.
func (s *Store) Create(ctx context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.positions[pos.Symbol]; ok && cur.Open() {
		return fmt.Errorf("file: create %s: %w", pos.Symbol, domain.ErrPositionOpen)
	}
	pos.Version = s.positions[pos.Symbol].Version + 1
	s.positions[pos.Symbol] = pos
	return s.persistLocked()
}

// Get returns the latest position record for a symbol, open or closed.
func (s *Store) Get(ctx context.Context, symbol string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[symbol]
	if !ok {
		return domain.Position{}, fmt.Errorf("file: get %s: %w", symbol, domain.ErrNotFound)
	}
	return pos, nil
}

// Close flattens the symbol's position. Closing an already-closed position is
// a no-op returning the stored record.
func (s *Store) Close(ctx context.Context, symbol string, exitPrice float64) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[symbol]
	if !ok {
		return domain.Position{}, fmt.Errorf("file: close %s: %w", symbol, domain.ErrNotFound)
	}
	if !pos.Open() {
		return pos, nil
	}

	now := time.Now().UTC()
	pos.Status = domain.PositionStatusClosed
	pos.Side = domain.PositionSideNone
	pos.ClosedAt = &now
	pos.ExitPrice = &exitPrice
	pos.Version++
	s.positions[symbol] = pos

	if err := s.persistLocked(); err != nil {
		return domain.Position{}, err
	}
	return pos, nil
}

// ListOpen returns every open position, in no particular order.
func (s *Store) ListOpen(ctx context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Position
	for _, pos := range s.positions {
		if pos.Open() {
			out = append(out, pos)
		}
	}
	return out, nil
}

// Insert appends a trade to the log, evicting the oldest entry past the cap.
func (s *Store) Insert(ctx context.Context, trade domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, trade)
	if len(s.trades) > maxTrades {
		s.trades = s.trades[len(s.trades)-maxTrades:]
	}
	return s.persistLocked()
}

// ListRecent returns up to limit trades, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.trades)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Trade, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.trades[i])
	}
	return out, nil
}

func (s *Store) restore() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	for symbol, rec := range snap.Positions {
		s.positions[symbol] = recordToPosition(symbol, rec)
	}
	for _, rec := range snap.Trades {
		s.trades = append(s.trades, domain.Trade{
			ID:         rec.ID,
			Symbol:     rec.Symbol,
			Side:       domain.OrderSide(rec.Side),
			Quantity:   rec.Quantity,
			Price:      rec.Price,
			DryRun:     rec.DryRun,
			Trigger:    rec.Trigger,
			ExecutedAt: time.Unix(rec.ExecutedAt, 0).UTC(),
		})
	}
	s.logger.Info("state restored",
		slog.Int("positions", len(s.positions)),
		slog.Int("trades", len(s.trades)))
	return nil
}

// persistLocked writes the snapshot atomically. Caller holds s.mu.
func (s *Store) persistLocked() error {
	snap := snapshot{Positions: make(map[string]positionRecord, len(s.positions))}
	for symbol, pos := range s.positions {
		snap.Positions[symbol] = positionToRecord(pos)
	}
	for _, t := range s.trades {
		snap.Trades = append(snap.Trades, tradeRecord{
			ID:         t.ID,
			Symbol:     t.Symbol,
			Side:       string(t.Side),
			Quantity:   t.Quantity,
			Price:      t.Price,
			DryRun:     t.DryRun,
			Trigger:    t.Trigger,
			ExecutedAt: t.ExecutedAt.Unix(),
		})
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("file: write snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file: write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file: write snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file: write snapshot: %w", err)
	}
	return nil
}

func positionToRecord(pos domain.Position) positionRecord {
	rec := positionRecord{
		Symbol:      pos.Symbol,
		HasPosition: pos.Open(),
		LastBuyTs:   pos.OpenedAt.Unix(),
		LastEntry:   pos.EntryPrice,
		LastQty:     pos.Quantity,
		PositionID:  pos.ID,
		Version:     pos.Version,
		ExitPrice:   pos.ExitPrice,
	}
	if pos.ClosedAt != nil {
		rec.ClosedAtUnix = pos.ClosedAt.Unix()
	}
	return rec
}

func recordToPosition(symbol string, rec positionRecord) domain.Position {
	pos := domain.Position{
		ID:         rec.PositionID,
		Symbol:     symbol,
		EntryPrice: rec.LastEntry,
		Quantity:   rec.LastQty,
		OpenedAt:   time.Unix(rec.LastBuyTs, 0).UTC(),
		Version:    rec.Version,
		ExitPrice:  rec.ExitPrice,
	}
	if rec.HasPosition {
		pos.Status = domain.PositionStatusOpen
		pos.Side = domain.PositionSideLong
	} else {
		pos.Status = domain.PositionStatusClosed
		pos.Side = domain.PositionSideNone
	}
	if rec.ClosedAtUnix > 0 {
		closed := time.Unix(rec.ClosedAtUnix, 0).UTC()
		pos.ClosedAt = &closed
	}
	return pos
}
