// Package fees fetches the commission charged when a position is opened.
package fees

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultFee is charged when the schedule has never been reachable.
var DefaultFee = decimal.NewFromInt(1)

// ErrInvalidPayload is returned when the collaborator answers with something
// that is not a number.
var ErrInvalidPayload = errors.New("fee payload is not numeric")

// Source returns the active fee of a given type.
type Source interface {
	ActiveFee(ctx context.Context, feeType string) (decimal.Decimal, error)
}

// Static always returns Amount.
type Static struct {
	Amount decimal.Decimal
}

func (s Static) ActiveFee(context.Context, string) (decimal.Decimal, error) {
	return s.Amount, nil
}

// HTTPSource pulls GET {BaseURL}/fees/active?type=... and expects
// {"amount": "1.5"} or {"amount": 1.5}.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type feeResponse struct {
	Amount json.RawMessage `json:"amount"`
}

func (s *HTTPSource) ActiveFee(ctx context.Context, feeType string) (decimal.Decimal, error) {
	u := s.BaseURL + "/fees/active?type=" + url.QueryEscape(feeType)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, err
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fees: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("fees: %s returned %s", u, resp.Status)
	}

	var body feeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("fees: %w: %v", ErrInvalidPayload, err)
	}
	return parseAmount(body.Amount)
}

func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	s = strings.Trim(s, `"`)
	if s == "" || s == "null" {
		return decimal.Zero, ErrInvalidPayload
	}
	amt, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPayload, s)
	}
	if amt.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative fee %s", ErrInvalidPayload, amt)
	}
	return amt, nil
}

// Cache serves the last good fee without blocking. Refresh and Run pull
// from the source; failures keep the previous value, or Default before any
// success.
type Cache struct {
	src     Source
	feeType string
	def     decimal.Decimal
	log     zerolog.Logger

	mu      sync.RWMutex
	current decimal.Decimal
	ok      bool
	updated time.Time
}

func NewCache(src Source, feeType string, def decimal.Decimal, log zerolog.Logger) *Cache {
	return &Cache{
		src:     src,
		feeType: feeType,
		def:     def,
		log:     log.With().Str("component", "fees").Str("fee_type", feeType).Logger(),
	}
}

// Current returns the cached fee.
func (c *Cache) Current() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ok {
		return c.def
	}
	return c.current
}

// Updated reports when the fee was last fetched successfully.
func (c *Cache) Updated() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updated, c.ok
}

// Refresh fetches once.
func (c *Cache) Refresh(ctx context.Context) error {
	amt, err := c.src.ActiveFee(ctx, c.feeType)
	if err != nil {
		c.log.Warn().Err(err).Str("fee", c.Current().String()).Msg("fee refresh failed, keeping previous")
		return err
	}

	c.mu.Lock()
	changed := !c.ok || !c.current.Equal(amt)
	c.current = amt
	c.ok = true
	c.updated = time.Now()
	c.mu.Unlock()

	if changed {
		c.log.Info().Str("fee", amt.String()).Msg("fee schedule updated")
	}
	return nil
}

// Run refreshes immediately and then every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	_ = c.Refresh(ctx)
	if interval <= 0 {
		return
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = c.Refresh(ctx)
		}
	}
}
