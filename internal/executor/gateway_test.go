package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/tradewire/signalbridge/internal/domain"
)

type fakeExchange struct {
	domain.Exchange

	calls   int
	errs    []error // error per call; nil means success
	fillQty float64
}

func (f *fakeExchange) CreateMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, amount float64) (domain.OrderResult, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return domain.OrderResult{}, f.errs[idx]
	}
	qty := f.fillQty
	if qty == 0 {
		qty = amount
	}
	return domain.OrderResult{
		OrderID:    fmt.Sprintf("oid-%d", idx),
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		ExecutedAt: time.Now().UTC(),
	}, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

var intent = domain.OrderIntent{
	Symbol:         "BTC/EUR",
	Side:           domain.OrderSideBuy,
	Quantity:       0.0005,
	EstimatedPrice: 50000,
}

func TestSubmitSuccessFirstTry(t *testing.T) {
	ex := &fakeExchange{}
	g := NewGateway(ex, 3, time.Millisecond, false, discard())
	g.sleep = noSleep

	res, err := g.Submit(context.Background(), intent)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ex.calls != 1 {
		t.Errorf("exchange called %d times, want 1", ex.calls)
	}
	// Fill price backfilled from the sizing price.
	if res.Price != 50000 {
		t.Errorf("Price = %v, want 50000", res.Price)
	}
	if res.Cost != 0.0005*50000 {
		t.Errorf("Cost = %v, want %v", res.Cost, 0.0005*50000)
	}
}

func TestSubmitRetriesTransientErrors(t *testing.T) {
	ex := &fakeExchange{errs: []error{domain.ErrRateLimited, domain.ErrExchangeUnavailable, nil}}
	g := NewGateway(ex, 3, time.Millisecond, false, discard())
	g.sleep = noSleep

	res, err := g.Submit(context.Background(), intent)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ex.calls != 3 {
		t.Errorf("exchange called %d times, want 3", ex.calls)
	}
	if res.OrderID != "oid-2" {
		t.Errorf("OrderID = %q, want oid-2", res.OrderID)
	}
}

func TestSubmitGivesUpAfterAttempts(t *testing.T) {
	ex := &fakeExchange{errs: []error{domain.ErrRateLimited, domain.ErrRateLimited, domain.ErrRateLimited}}
	g := NewGateway(ex, 3, time.Millisecond, false, discard())
	g.sleep = noSleep

	_, err := g.Submit(context.Background(), intent)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want wrapped ErrRateLimited", err)
	}
	if ex.calls != 3 {
		t.Errorf("exchange called %d times, want 3", ex.calls)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("err %q should mention the attempt count", err)
	}
}

func TestSubmitDoesNotRetryFatalErrors(t *testing.T) {
	for _, fatal := range []error{domain.ErrInsufficientFunds, domain.ErrInvalidOrder, domain.ErrUnauthorized} {
		ex := &fakeExchange{errs: []error{fatal, nil}}
		g := NewGateway(ex, 3, time.Millisecond, false, discard())
		g.sleep = noSleep

		_, err := g.Submit(context.Background(), intent)
		if !errors.Is(err, fatal) {
			t.Errorf("err = %v, want %v", err, fatal)
		}
		if ex.calls != 1 {
			t.Errorf("%v: exchange called %d times, want 1", fatal, ex.calls)
		}
	}
}

func TestSubmitDryRun(t *testing.T) {
	ex := &fakeExchange{}
	g := NewGateway(ex, 3, time.Millisecond, true, discard())

	res, err := g.Submit(context.Background(), intent)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ex.calls != 0 {
		t.Errorf("exchange called %d times in dry run, want 0", ex.calls)
	}
	if !res.DryRun {
		t.Error("DryRun flag not set")
	}
	if !strings.HasPrefix(res.OrderID, "dry-") {
		t.Errorf("OrderID = %q, want dry- prefix", res.OrderID)
	}
	if res.Price != intent.EstimatedPrice || res.Quantity != intent.Quantity {
		t.Errorf("synthetic fill = %+v, want estimated price and full quantity", res)
	}
}

func TestSubmitHonorsContextDuringBackoff(t *testing.T) {
	ex := &fakeExchange{errs: []error{domain.ErrRateLimited, nil}}
	g := NewGateway(ex, 3, time.Hour, false, discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Submit(ctx, intent)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if ex.calls != 1 {
		t.Errorf("exchange called %d times, want 1", ex.calls)
	}
}
