package monitor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tradewire/signalbridge/internal/domain"
)

// Manager starts at most one watcher goroutine per symbol and resumes
// watchers for positions that survived a restart.
type Manager struct {
	monitor *Monitor
	logger  *slog.Logger

	mu      sync.Mutex
	wg      sync.WaitGroup
	active  map[string]struct{}
	baseCtx context.Context
}

// NewManager wraps a Monitor with per-symbol goroutine bookkeeping.
func NewManager(monitor *Monitor, logger *slog.Logger) *Manager {
	return &Manager{
		monitor: monitor,
		logger:  logger.With(slog.String("component", "monitor_manager")),
		active:  make(map[string]struct{}),
	}
}

// Run binds the manager to its lifetime context, resumes watchers for every
// open position, and blocks until shutdown. All watcher goroutines share this
// context and are waited for on exit.
func (m *Manager) Run(ctx context.Context, store domain.PositionStore, defaultConfidence int) error {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()

	open, err := store.ListOpen(ctx)
	if err != nil {
		m.logger.Warn("resume scan failed", slog.Any("error", err))
	}
	for _, pos := range open {
		m.logger.Info("resuming watch", slog.String("symbol", pos.Symbol))
		m.StartFor(pos, defaultConfidence)
	}

	<-ctx.Done()
	m.wg.Wait()
	return ctx.Err()
}

// StartFor launches a watcher for the position unless one is already running
// for the symbol. It returns immediately; the watcher cleans itself up.
func (m *Manager) StartFor(pos domain.Position, confidence int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.baseCtx == nil {
		m.logger.Warn("watch requested before start", slog.String("symbol", pos.Symbol))
		return
	}
	if _, running := m.active[pos.Symbol]; running {
		return
	}
	m.active[pos.Symbol] = struct{}{}

	ctx := m.baseCtx
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.active, pos.Symbol)
			m.mu.Unlock()
		}()
		m.monitor.Watch(ctx, pos, confidence)
	}()
}

// Watching reports whether a watcher is currently running for the symbol.
func (m *Manager) Watching(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[symbol]
	return ok
}
