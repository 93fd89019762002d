package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradewire/signalbridge/internal/domain"
)

// TickerHandler receives one ticker update per WebSocket message.
type TickerHandler func(t domain.Ticker)

// WSClient is a client for the Kraken public WebSocket v1 API, limited to the
// ticker channel.
type WSClient struct {
	url string

	mu       sync.Mutex
	conn     *websocket.Conn
	onTicker TickerHandler
}

// NewWSClient creates a WebSocket client for the given endpoint, typically
// "wss://ws.kraken.com".
func NewWSClient(url string) *WSClient {
	return &WSClient{url: url}
}

// OnTicker registers the handler invoked for each ticker update. Must be
// called before Connect.
func (w *WSClient) OnTicker(h TickerHandler) {
	w.onTicker = h
}

// Connect dials the WebSocket endpoint.
func (w *WSClient) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("kraken: ws dial %s: %w", w.url, err)
	}
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	return nil
}

// Subscribe requests ticker updates for the given canonical symbols.
func (w *WSClient) Subscribe(symbols []string) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("kraken: ws subscribe before connect")
	}

	pairs := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		pairs = append(pairs, WSPairName(sym))
	}

	msg := wsSubscribe{Event: "subscribe", Pair: pairs}
	msg.Subscription.Name = "ticker"
	return conn.WriteJSON(msg)
}

// Listen reads messages until the connection drops or ctx is cancelled,
// dispatching ticker updates to the registered handler.
func (w *WSClient) Listen(ctx context.Context, symbolFor func(wsPair string) string) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("kraken: ws listen before connect")
	}

	// Unblock ReadMessage on cancellation.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("kraken: ws read: %w", err)
		}
		w.dispatch(data, symbolFor)
	}
}

// dispatch parses one raw frame. Event objects (heartbeat, system status,
// subscription status) are ignored; channel arrays carry the payloads.
func (w *WSClient) dispatch(data []byte, symbolFor func(wsPair string) string) {
	if len(data) == 0 || data[0] != '[' {
		return
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 4 {
		return
	}

	var channel, wsPair string
	if json.Unmarshal(frame[len(frame)-2], &channel) != nil || channel != "ticker" {
		return
	}
	if json.Unmarshal(frame[len(frame)-1], &wsPair) != nil {
		return
	}

	var payload wsTickerPayload
	if err := json.Unmarshal(frame[1], &payload); err != nil {
		return
	}

	sym := wsPair
	if symbolFor != nil {
		sym = symbolFor(wsPair)
	}
	if w.onTicker != nil {
		w.onTicker(domain.Ticker{
			Symbol: sym,
			Last:   firstNumber(payload.Last),
			Bid:    firstNumber(payload.Bid),
			Ask:    firstNumber(payload.Ask),
			Time:   time.Now().UTC(),
		})
	}
}

// Close shuts down the connection.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}

func firstNumber(arr []json.Number) float64 {
	if len(arr) == 0 {
		return 0
	}
	f, _ := arr[0].Float64()
	return f
}
