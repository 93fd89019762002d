package handler

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tradewire/signalbridge/internal/domain"
	"github.com/tradewire/signalbridge/internal/symbol"
)

// maxBodySize bounds webhook payloads; alert payloads are tiny.
const maxBodySize = 64 << 10

// SignalHandler runs one signal through the trading pipeline. Implemented by
// the trade service.
type SignalHandler interface {
	HandleSignal(ctx context.Context, sig domain.Signal) domain.Outcome
}

// WebhookHandler receives alert webhooks and translates them into signals.
type WebhookHandler struct {
	trades     SignalHandler
	normalizer *symbol.Normalizer
	secret     string
	logger     *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler. secret must be non-empty; every
// payload is checked against it before anything else.
func NewWebhookHandler(trades SignalHandler, normalizer *symbol.Normalizer, secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		trades:     trades,
		normalizer: normalizer,
		secret:     secret,
		logger:     logHandler(logger, "webhook"),
	}
}

// flexFloat accepts JSON numbers and numeric strings, including the
// comma-decimal form some alert tools emit ("12,5").
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*f = flexFloat(v)
	return nil
}

// webhookRequest is the wire format of the alert payload.
type webhookRequest struct {
	Secret     string    `json:"secret"`
	Signal     string    `json:"signal"`
	Symbol     string    `json:"symbol"`
	Quote      flexFloat `json:"quote"`
	Confidence int       `json:"confidence"`
	ForceClose bool      `json:"force_close"`
	ID         string    `json:"id"`
}

// webhookResponse is what the alerting source sees. Skips are ok=true so the
// source never retries a deliberate refusal.
type webhookResponse struct {
	OK     bool   `json:"ok"`
	Result string `json:"result,omitempty"`
	Skip   string `json:"skip,omitempty"`
	Detail string `json:"detail,omitempty"`
	Order  any    `json:"order,omitempty"`
	Error  string `json:"error,omitempty"`
}

// orderView is the subset of an order result exposed over the webhook reply.
type orderView struct {
	OrderID  string  `json:"order_id"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"qty"`
	Price    float64 `json:"price"`
	Cost     float64 `json:"cost"`
	DryRun   bool    `json:"dry_run"`
}

// derivedID gives id-less payloads a deterministic identity from their
// content, so a byte-identical redelivery collapses into the dedup window.
func derivedID(sig domain.Signal) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%g|%t",
		sig.Kind, sig.Symbol, sig.Quote, sig.ForceClose)))
	return hex.EncodeToString(sum[:8])
}

// Receive handles POST /webhook.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var req webhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	// Authenticate before validating anything else, so probing with bad
	// payloads reveals nothing.
	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.secret)) != 1 {
		h.logger.Warn("webhook rejected", slog.String("cause", "bad secret"))
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	kind := domain.SignalKind(strings.ToUpper(strings.TrimSpace(req.Signal)))
	if kind == domain.SignalPing {
		writeJSON(w, http.StatusOK, webhookResponse{OK: true, Result: "pong"})
		return
	}
	if req.Signal == "" {
		writeError(w, http.StatusBadRequest, "signal is required")
		return
	}

	sig := domain.Signal{
		Kind:       kind,
		Symbol:     h.normalizer.Normalize(req.Symbol),
		Quote:      float64(req.Quote),
		Confidence: req.Confidence,
		ForceClose: req.ForceClose,
		ID:         req.ID,
		ReceivedAt: time.Now().UTC(),
	}
	if sig.ID == "" {
		sig.ID = derivedID(sig)
	}

	outcome := h.trades.HandleSignal(r.Context(), sig)
	switch outcome.Status {
	case domain.OutcomeExecuted:
		writeJSON(w, http.StatusOK, webhookResponse{
			OK:     true,
			Result: "executed",
			Order: orderView{
				OrderID:  outcome.Order.OrderID,
				Symbol:   outcome.Order.Symbol,
				Side:     string(outcome.Order.Side),
				Quantity: outcome.Order.Quantity,
				Price:    outcome.Order.Price,
				Cost:     outcome.Order.Cost,
				DryRun:   outcome.Order.DryRun,
			},
		})
	case domain.OutcomeSkipped:
		writeJSON(w, http.StatusOK, webhookResponse{
			OK:     true,
			Result: "skipped",
			Skip:   string(outcome.Reason),
			Detail: outcome.Detail,
		})
	default:
		status := http.StatusInternalServerError
		if errors.Is(outcome.Err, domain.ErrUnauthorized) {
			// Exchange credentials, not webhook auth: a config problem.
			status = http.StatusBadGateway
		}
		writeJSON(w, status, webhookResponse{OK: false, Error: outcome.Err.Error()})
	}
}
