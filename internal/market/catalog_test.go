package market

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/tradewire/signalbridge/internal/domain"
)

type fakeExchange struct {
	domain.Exchange

	markets []domain.Market
	err     error
	calls   int
}

func (f *fakeExchange) LoadMarkets(ctx context.Context) ([]domain.Market, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.markets, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCatalogLoadsOnce(t *testing.T) {
	ex := &fakeExchange{markets: []domain.Market{
		{Symbol: "BTC/EUR", MinAmount: 0.0001, MinCost: 0.5, AmountStep: 0.00000001},
		{Symbol: "ETH/EUR", MinAmount: 0.004, AmountStep: 0.00000001},
	}}
	c := NewCatalog(ex, discard())

	for i := 0; i < 3; i++ {
		m, err := c.Get(context.Background(), "BTC/EUR")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if m.MinAmount != 0.0001 {
			t.Fatalf("MinAmount = %v, want 0.0001", m.MinAmount)
		}
	}
	if ex.calls != 1 {
		t.Errorf("LoadMarkets called %d times, want 1", ex.calls)
	}
}

func TestCatalogUnknownSymbol(t *testing.T) {
	ex := &fakeExchange{markets: []domain.Market{{Symbol: "BTC/EUR"}}}
	c := NewCatalog(ex, discard())

	_, err := c.Get(context.Background(), "DOGE/JPY")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCatalogRetriesAfterFailure(t *testing.T) {
	ex := &fakeExchange{err: errors.New("boom")}
	c := NewCatalog(ex, discard())

	_, err := c.Get(context.Background(), "BTC/EUR")
	if !errors.Is(err, domain.ErrMetadataUnavailable) {
		t.Fatalf("err = %v, want ErrMetadataUnavailable", err)
	}

	ex.err = nil
	ex.markets = []domain.Market{{Symbol: "BTC/EUR", MinAmount: 0.0001}}
	if _, err := c.Get(context.Background(), "BTC/EUR"); err != nil {
		t.Fatalf("Get after recovery: %v", err)
	}
	if ex.calls != 2 {
		t.Errorf("LoadMarkets called %d times, want 2", ex.calls)
	}
}

func TestCatalogInvalidate(t *testing.T) {
	ex := &fakeExchange{markets: []domain.Market{{Symbol: "BTC/EUR"}}}
	c := NewCatalog(ex, discard())

	if _, err := c.Get(context.Background(), "BTC/EUR"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	c.Invalidate()
	if _, err := c.Get(context.Background(), "BTC/EUR"); err != nil {
		t.Fatalf("Get after invalidate: %v", err)
	}
	if ex.calls != 2 {
		t.Errorf("LoadMarkets called %d times, want 2", ex.calls)
	}
}

func TestEffectiveMinAmount(t *testing.T) {
	tests := []struct {
		name    string
		m       domain.Market
		price   float64
		ceiling float64
		want    float64
	}{
		{
			name:    "plausible minimum kept",
			m:       domain.Market{MinAmount: 0.0001, AmountStep: 0.00000001},
			price:   50000,
			ceiling: 500,
			want:    0.0001,
		},
		{
			name:    "implausible minimum replaced by step",
			m:       domain.Market{MinAmount: 1, AmountStep: 0.00000001},
			price:   50000,
			ceiling: 500,
			want:    0.00000001,
		},
		{
			name:    "missing minimum falls back to step",
			m:       domain.Market{AmountStep: 0.001},
			price:   100,
			ceiling: 500,
			want:    0.001,
		},
		{
			name:    "zero ceiling disables the check",
			m:       domain.Market{MinAmount: 1, AmountStep: 0.001},
			price:   50000,
			ceiling: 0,
			want:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveMinAmount(tt.m, tt.price, tt.ceiling); got != tt.want {
				t.Errorf("EffectiveMinAmount = %v, want %v", got, tt.want)
			}
		})
	}
}
