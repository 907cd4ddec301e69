package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rustyeddy/marginledger/market"
	"github.com/rustyeddy/marginledger/session"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type api struct {
	srv  *httptest.Server
	sess *session.Session
}

func newAPI(t *testing.T, balance string) *api {
	t.Helper()
	lease, err := session.NewHost().Acquire("acct-1")
	require.NoError(t, err)
	bus := session.NewBus(64)
	sess, err := session.New(lease, session.Config{
		Balance:                   decimal.RequireFromString(balance),
		NegativeBalanceProtection: true,
	}, nil, nil, bus, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sess.Run(ctx)
	}()

	srv := httptest.NewServer(NewServer(sess, bus, "*", zerolog.Nop()).Routes())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return &api{srv: srv, sess: sess}
}

func (a *api) tick(t *testing.T, symbol, bid, ask string) {
	t.Helper()
	require.NoError(t, a.sess.Tick(context.Background(), market.Tick{
		Symbol: symbol,
		Time:   time.Now().UTC(),
		Quote:  market.Quote{Bid: decimal.RequireFromString(bid), Ask: decimal.RequireFromString(ask)},
	}))
}

func (a *api) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func decField(t *testing.T, m map[string]any, key string) decimal.Decimal {
	t.Helper()
	s, ok := m[key].(string)
	require.Truef(t, ok, "%s is not a decimal string: %v", key, m[key])
	return decimal.RequireFromString(s)
}

func TestHealth(t *testing.T) {
	a := newAPI(t, "1000")
	code, body := a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestOpenAndClosePosition(t *testing.T) {
	a := newAPI(t, "10000")
	a.tick(t, "EURUSD", "1.0998", "1.1000")

	code, pos := a.do(t, http.MethodPost, "/v1/orders", map[string]string{"symbol": "EURUSD", "side": "buy", "lot": "1"})
	require.Equal(t, http.StatusCreated, code, pos)
	assert.True(t, decField(t, pos, "margin").Equal(decimal.NewFromInt(1100)))
	assert.True(t, decField(t, pos, "entry_price").Equal(decimal.RequireFromString("1.1")))

	code, acct := a.do(t, http.MethodGet, "/v1/account", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "acct-1", acct["account_id"])
	assert.EqualValues(t, 1, acct["open_positions"])
	wallet := acct["account"].(map[string]any)
	assert.True(t, decField(t, wallet, "margin_used").Equal(decimal.NewFromInt(1100)))
	assert.True(t, decField(t, wallet, "free_margin").Equal(decimal.NewFromInt(8900)))

	code, list := a.do(t, http.MethodGet, "/v1/positions", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list["items"], 1)

	a.tick(t, "EURUSD", "1.1100", "1.1102")
	code, rec := a.do(t, http.MethodPost, "/v1/positions/"+pos["id"].(string)+"/close", nil)
	require.Equal(t, http.StatusOK, code, rec)
	assert.True(t, decField(t, rec, "realized_pnl").Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "MANUAL", rec["reason"])

	code, hist := a.do(t, http.MethodGet, "/v1/history", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, hist["items"], 1)

	code, body := a.do(t, http.MethodPost, "/v1/positions/"+pos["id"].(string)+"/close", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body["error"], "position not found")
}

func TestOrderErrors(t *testing.T) {
	a := newAPI(t, "100")

	code, body := a.do(t, http.MethodPost, "/v1/orders", map[string]string{"symbol": "EURUSD", "side": "buy", "lot": "1"})
	assert.Equal(t, http.StatusConflict, code, body)

	a.tick(t, "EURUSD", "1.0998", "1.1000")

	cases := []struct {
		name  string
		body  any
		code  int
		field string
	}{
		{"insufficient margin", map[string]string{"symbol": "EURUSD", "side": "BUY", "lot": "1"}, http.StatusUnprocessableEntity, ""},
		{"bad stop", map[string]string{"symbol": "EURUSD", "side": "BUY", "lot": "0.01", "stop_loss": "1.2"}, http.StatusUnprocessableEntity, "stop_loss"},
		{"zero lot", map[string]string{"symbol": "EURUSD", "side": "BUY", "lot": "0"}, http.StatusUnprocessableEntity, "lot"},
		{"bad side", map[string]string{"symbol": "EURUSD", "side": "up", "lot": "1"}, http.StatusBadRequest, "side"},
		{"bad decimal", map[string]string{"symbol": "EURUSD", "side": "BUY", "lot": "one"}, http.StatusBadRequest, "lot"},
		{"no symbol", map[string]string{"side": "BUY", "lot": "1"}, http.StatusBadRequest, "symbol"},
		{"unknown field", map[string]string{"symbol": "EURUSD", "side": "BUY", "lots": "1"}, http.StatusBadRequest, ""},
		{"bad type", map[string]string{"symbol": "EURUSD", "side": "BUY", "lot": "1", "type": "FOK", "price": "1.1"}, http.StatusUnprocessableEntity, "type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := a.do(t, http.MethodPost, "/v1/orders", tc.body)
			assert.Equal(t, tc.code, code, body)
			if tc.field != "" {
				assert.Equal(t, tc.field, body["field"])
			}
		})
	}

	code, acct := a.do(t, http.MethodGet, "/v1/account", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, acct["open_positions"])
}

func TestPendingOrdersOverHTTP(t *testing.T) {
	a := newAPI(t, "1000")

	code, order := a.do(t, http.MethodPost, "/v1/orders", map[string]string{
		"symbol": "EURUSD", "side": "SELL", "type": "limit", "lot": "0.1", "price": "1.12",
	})
	require.Equal(t, http.StatusCreated, code, order)
	assert.Equal(t, "PENDING", order["status"])
	assert.Equal(t, "LIMIT", order["type"])

	code, list := a.do(t, http.MethodGet, "/v1/orders", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list["items"], 1)

	code, cancelled := a.do(t, http.MethodDelete, "/v1/orders/"+order["id"].(string), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "CANCELLED", cancelled["status"])

	code, _ = a.do(t, http.MethodDelete, "/v1/orders/"+order["id"].(string), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	code, _ = a.do(t, http.MethodDelete, "/v1/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCloseAllScopes(t *testing.T) {
	a := newAPI(t, "10000")
	a.tick(t, "EURUSD", "1.1000", "1.1000")
	for i := 0; i < 2; i++ {
		code, body := a.do(t, http.MethodPost, "/v1/orders", map[string]string{"symbol": "EURUSD", "side": "BUY", "lot": "0.1"})
		require.Equal(t, http.StatusCreated, code, body)
	}

	code, body := a.do(t, http.MethodPost, "/v1/positions/close?scope=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "scope", body["field"])

	code, body = a.do(t, http.MethodPost, "/v1/positions/close?scope=loss", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["closed"])

	code, body = a.do(t, http.MethodPost, "/v1/positions/close", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["closed"], 2)
}

func TestStreamForwardsEvents(t *testing.T) {
	a := newAPI(t, "10000")
	url := "ws" + strings.TrimPrefix(a.srv.URL, "http") + "/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return a.sess.Bus().Subscribers() == 1 }, 3*time.Second, 5*time.Millisecond)

	a.tick(t, "EURUSD", "1.0998", "1.1000")
	_, err = a.sess.Open(context.Background(), session.OpenOrder{Symbol: "EURUSD", Side: market.Buy, Lot: decimal.RequireFromString("0.01")})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var evt session.Event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, session.EventPositionOpened, evt.Type)
	assert.Equal(t, "acct-1", evt.Account)
	pos := evt.Data.(map[string]any)
	assert.Equal(t, "EURUSD", pos["symbol"])
}
