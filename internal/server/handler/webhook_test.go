package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tradewire/signalbridge/internal/domain"
	"github.com/tradewire/signalbridge/internal/symbol"
)

type fakeTrades struct {
	outcome domain.Outcome
	got     *domain.Signal
}

func (f *fakeTrades) HandleSignal(_ context.Context, sig domain.Signal) domain.Outcome {
	f.got = &sig
	return f.outcome
}

func newTestHandler(outcome domain.Outcome) (*WebhookHandler, *fakeTrades) {
	trades := &fakeTrades{outcome: outcome}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewWebhookHandler(trades, symbol.NewNormalizer("BTC/EUR"), "hunter2", logger)
	return h, trades
}

func post(t *testing.T, h *WebhookHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestReceiveRejectsBadSecret(t *testing.T) {
	h, trades := newTestHandler(domain.Skipped(domain.SkipNoPosition, ""))

	rec := post(t, h, `{"secret":"wrong","signal":"BUY"}`)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if trades.got != nil {
		t.Fatal("signal reached the pipeline despite bad secret")
	}
}

func TestReceiveRejectsBadSecretBeforeValidation(t *testing.T) {
	h, _ := newTestHandler(domain.Skipped(domain.SkipNoPosition, ""))

	// An empty signal is a 400, but with the wrong secret the response must
	// stay 401 so probes learn nothing about the payload format.
	rec := post(t, h, `{"secret":"wrong","signal":""}`)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestReceiveRejectsInvalidJSON(t *testing.T) {
	h, _ := newTestHandler(domain.Outcome{})

	rec := post(t, h, `{"secret":`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestReceiveRejectsMissingSignal(t *testing.T) {
	h, trades := newTestHandler(domain.Outcome{})

	rec := post(t, h, `{"secret":"hunter2","symbol":"BTC/EUR"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if trades.got != nil {
		t.Fatal("empty signal reached the pipeline")
	}
}

func TestReceivePing(t *testing.T) {
	h, trades := newTestHandler(domain.Outcome{})

	rec := post(t, h, `{"secret":"hunter2","signal":"ping"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	out := decodeResponse(t, rec)
	if out["result"] != "pong" {
		t.Fatalf("result = %v, want pong", out["result"])
	}
	if trades.got != nil {
		t.Fatal("ping reached the trading pipeline")
	}
}

func TestReceiveExecuted(t *testing.T) {
	h, trades := newTestHandler(domain.Executed(domain.OrderResult{
		OrderID:  "OABC-123",
		Symbol:   "BTC/EUR",
		Side:     domain.OrderSideBuy,
		Quantity: 0.0005,
		Price:    50000,
		Cost:     25,
		DryRun:   true,
	}))

	rec := post(t, h, `{"secret":"hunter2","signal":"buy","symbol":"XBTEUR","quote":"12,5","confidence":1,"id":"evt-1"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	out := decodeResponse(t, rec)
	if out["ok"] != true || out["result"] != "executed" {
		t.Fatalf("unexpected response: %v", out)
	}
	order, _ := out["order"].(map[string]any)
	if order["order_id"] != "OABC-123" {
		t.Fatalf("order_id = %v, want OABC-123", order["order_id"])
	}

	if trades.got == nil {
		t.Fatal("signal never reached the pipeline")
	}
	if trades.got.Kind != domain.SignalBuy {
		t.Errorf("kind = %q, want BUY", trades.got.Kind)
	}
	if trades.got.Symbol != "BTC/EUR" {
		t.Errorf("symbol = %q, want BTC/EUR", trades.got.Symbol)
	}
	if trades.got.Quote != 12.5 {
		t.Errorf("quote = %v, want 12.5 (comma decimal)", trades.got.Quote)
	}
	if trades.got.ID != "evt-1" {
		t.Errorf("id = %q, want evt-1", trades.got.ID)
	}
}

func TestReceiveAssignsIDWhenMissing(t *testing.T) {
	h, trades := newTestHandler(domain.Skipped(domain.SkipNoPosition, "no open position"))

	post(t, h, `{"secret":"hunter2","signal":"SELL"}`)

	if trades.got == nil {
		t.Fatal("signal never reached the pipeline")
	}
	if trades.got.ID == "" {
		t.Error("expected a generated id for payloads without one")
	}
}

func TestReceiveDerivedIDIsDeterministic(t *testing.T) {
	h, trades := newTestHandler(domain.Skipped(domain.SkipNoPosition, ""))

	// Identical id-less deliveries must share an identity so the dedup window
	// can catch the redelivery.
	post(t, h, `{"secret":"hunter2","signal":"BUY","symbol":"BTC/EUR","quote":25}`)
	first := trades.got.ID
	post(t, h, `{"secret":"hunter2","signal":"BUY","symbol":"BTC/EUR","quote":25}`)
	if trades.got.ID != first {
		t.Errorf("redelivery id = %q, want %q", trades.got.ID, first)
	}

	post(t, h, `{"secret":"hunter2","signal":"BUY","symbol":"BTC/EUR","quote":50}`)
	if trades.got.ID == first {
		t.Error("distinct payloads must not share a derived id")
	}
	post(t, h, `{"secret":"hunter2","signal":"SELL","symbol":"BTC/EUR","quote":25}`)
	if trades.got.ID == first {
		t.Error("distinct signal kinds must not share a derived id")
	}
}

func TestReceiveSkipIsOK(t *testing.T) {
	h, _ := newTestHandler(domain.Skipped(domain.SkipBuyCooldown, "cooldown active for 3m"))

	rec := post(t, h, `{"secret":"hunter2","signal":"BUY","symbol":"ETH/EUR"}`)

	// Skips are 200 so the alerting source never retries them.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	out := decodeResponse(t, rec)
	if out["ok"] != true || out["result"] != "skipped" {
		t.Fatalf("unexpected response: %v", out)
	}
	if out["skip"] != "buy_cooldown" {
		t.Errorf("skip = %v, want buy_cooldown", out["skip"])
	}
}

func TestReceiveFailure(t *testing.T) {
	h, _ := newTestHandler(domain.Failed(domain.ErrExchangeUnavailable))

	rec := post(t, h, `{"secret":"hunter2","signal":"BUY"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	out := decodeResponse(t, rec)
	if out["ok"] != false {
		t.Fatalf("ok = %v, want false", out["ok"])
	}
}

func TestReceiveBadCredentialsIsBadGateway(t *testing.T) {
	h, _ := newTestHandler(domain.Failed(domain.ErrUnauthorized))

	rec := post(t, h, `{"secret":"hunter2","signal":"BUY"}`)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestFlexFloat(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
		err  bool
	}{
		{"number", `25`, 25, false},
		{"float", `12.5`, 12.5, false},
		{"string", `"25"`, 25, false},
		{"comma decimal", `"12,5"`, 12.5, false},
		{"null", `null`, 0, false},
		{"empty string", `""`, 0, false},
		{"garbage", `"abc"`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f flexFloat
			err := f.UnmarshalJSON([]byte(tt.in))
			if tt.err {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if float64(f) != tt.want {
				t.Errorf("got %v, want %v", float64(f), tt.want)
			}
		})
	}
}
