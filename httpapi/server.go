// Package httpapi exposes a session over HTTP and a websocket event stream.
// Money and prices are rendered as decimal strings.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rustyeddy/marginledger/ledger"
	"github.com/rustyeddy/marginledger/market"
	"github.com/rustyeddy/marginledger/session"
	"github.com/shopspring/decimal"
)

// Service is the session surface the API drives. *session.Session
// implements it.
type Service interface {
	Open(ctx context.Context, o session.OpenOrder) (ledger.Position, error)
	Close(ctx context.Context, positionID string) (ledger.HistoryRecord, error)
	CloseAll(ctx context.Context, filter ledger.CloseFilter) ([]ledger.HistoryRecord, error)
	PlacePending(ctx context.Context, req ledger.PendingRequest) (ledger.PendingOrder, error)
	CancelPending(ctx context.Context, orderID string) (ledger.PendingOrder, error)
	Snapshot(ctx context.Context) (session.Snapshot, error)
}

type Server struct {
	svc      Service
	bus      *session.Bus
	origin   string
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewServer wires svc to HTTP. bus may be nil, in which case /v1/stream is
// not served. origin "*" accepts websocket clients from anywhere; empty
// accepts same-origin clients only.
func NewServer(svc Service, bus *session.Bus, origin string, log zerolog.Logger) *Server {
	s := &Server{
		svc:    svc,
		bus:    bus,
		origin: origin,
		log:    log.With().Str("component", "httpapi").Logger(),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.allowOrigin}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/v1", func(r chi.Router) {
		r.Get("/account", s.account)
		r.Get("/positions", s.positions)
		r.Post("/positions/close", s.closeAll)
		r.Post("/positions/{id}/close", s.closePosition)
		r.Get("/history", s.history)
		r.Get("/orders", s.orders)
		r.Post("/orders", s.placeOrder)
		r.Delete("/orders/{id}", s.cancelOrder)
		if s.bus != nil {
			r.Get("/stream", s.stream)
		}
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
		next.ServeHTTP(w, r)
	})
}

// writeError maps domain errors to status codes: lookups miss with 404,
// refusals are 422, a missing quote is 409.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var re *ledger.RejectError
	if errors.As(err, &re) {
		resp.Field = re.Field
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrPositionNotFound), errors.Is(err, ledger.ErrOrderNotFound):
		status = http.StatusNotFound
	case ledger.IsRejection(err), errors.Is(err, ledger.ErrOrderNotPending):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrPriceUnavailable):
		status = http.StatusConflict
	case errors.Is(err, session.ErrClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	WriteJSON(w, status, resp)
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (session.Snapshot, bool) {
	snap, err := s.svc.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return session.Snapshot{}, false
	}
	return snap, true
}

type accountResponse struct {
	AccountID string         `json:"account_id"`
	Account   ledger.Account `json:"account"`
	Open      int            `json:"open_positions"`
}

func (s *Server) account(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, accountResponse{AccountID: snap.AccountID, Account: snap.Account, Open: len(snap.Positions)})
}

func (s *Server) positions(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"items": nonNil(snap.Positions)})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"items": nonNil(snap.History)})
}

func (s *Server) orders(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"items": nonNil(snap.Orders)})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

type orderRequest struct {
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	Type       string `json:"type"`
	Lot        string `json:"lot"`
	Price      string `json:"price"`
	Leverage   string `json:"leverage"`
	StopLoss   string `json:"stop_loss"`
	TakeProfit string `json:"take_profit"`
}

// fields parses optional decimal inputs, keeping the first failure.
type fields struct {
	bad string
}

func (f *fields) dec(name, v string) decimal.Decimal {
	v = strings.TrimSpace(v)
	if v == "" || f.bad != "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		f.bad = name
	}
	return d
}

func (f *fields) nullDec(name, v string) decimal.NullDecimal {
	if strings.TrimSpace(v) == "" {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(f.dec(name, v))
}

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := ReadJSON(r, &req); err != nil {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if strings.TrimSpace(req.Symbol) == "" {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: "symbol is required", Field: "symbol"})
		return
	}
	side, err := market.ParseSide(req.Side)
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Field: "side"})
		return
	}

	var f fields
	lot := f.dec("lot", req.Lot)
	price := f.dec("price", req.Price)
	lev := f.dec("leverage", req.Leverage)
	sl := f.nullDec("stop_loss", req.StopLoss)
	tp := f.nullDec("take_profit", req.TakeProfit)
	if f.bad != "" {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid " + f.bad, Field: f.bad})
		return
	}

	switch typ := strings.ToUpper(strings.TrimSpace(req.Type)); typ {
	case "", "MARKET":
		pos, err := s.svc.Open(r.Context(), session.OpenOrder{
			Symbol: req.Symbol, Side: side, Lot: lot, Leverage: lev, StopLoss: sl, TakeProfit: tp,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, pos)
	default:
		order, err := s.svc.PlacePending(r.Context(), ledger.PendingRequest{
			Symbol: req.Symbol, Side: side, Type: ledger.OrderType(typ),
			Lot: lot, Price: price, StopLoss: sl, TakeProfit: tp,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, order)
	}
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.svc.CancelPending(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, order)
}

func (s *Server) closePosition(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Close(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

func (s *Server) closeAll(w http.ResponseWriter, r *http.Request) {
	filter, ok := ledger.ParseCloseFilter(strings.ToLower(r.URL.Query().Get("scope")))
	if !ok {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: "scope must be all, profit or loss", Field: "scope"})
		return
	}
	recs, err := s.svc.CloseAll(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"closed": nonNil(recs)})
}
