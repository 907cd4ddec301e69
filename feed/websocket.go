package feed

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type subscribeMessage struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// WebSocket subscribes to a push provider with
// {"type":"subscribe","symbols":[...]} and decodes one tick per message.
type WebSocket struct {
	URL    string
	Dialer *websocket.Dialer
	Log    zerolog.Logger
}

func NewWebSocket(url string, log zerolog.Logger) *WebSocket {
	return &WebSocket{
		URL:    url,
		Dialer: websocket.DefaultDialer,
		Log:    log.With().Str("component", "feed").Str("feed", "websocket").Logger(),
	}
}

func (w *WebSocket) Run(ctx context.Context, symbols []string, h TickFunc) error {
	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, w.URL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial %s: %w", w.URL, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeMessage{Type: "subscribe", Symbols: symbols}); err != nil {
		return fmt.Errorf("websocket subscribe: %w", err)
	}
	w.Log.Info().Strs("symbols", symbols).Msg("subscribed")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	accept := newFilter(symbols)
	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("websocket read: %w", err)
		}
		if !msg.isTick() || !accept.accept(msg.Symbol) {
			continue
		}
		if err := h(ctx, msg.tick()); err != nil {
			return err
		}
	}
}
