package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// Stream reads newline-delimited JSON ticks from a long-lived HTTP response.
// Heartbeat lines are skipped.
type Stream struct {
	URL    string
	Client *http.Client
	Log    zerolog.Logger
}

func NewStream(url string, log zerolog.Logger) *Stream {
	return &Stream{
		URL:    url,
		Client: &http.Client{},
		Log:    log.With().Str("component", "feed").Str("feed", "stream").Logger(),
	}
}

func (s *Stream) Run(ctx context.Context, symbols []string, h TickFunc) error {
	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("stream url: %w", err)
	}
	if len(symbols) > 0 {
		q := u.Query()
		q.Set("symbols", strings.Join(symbols, ","))
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream: %s returned %s", u.Redacted(), resp.Status)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	accept := newFilter(symbols)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var msg message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return fmt.Errorf("stream: bad json: %w (line=%q)", err, trimForErr(line))
		}
		if !msg.isTick() || !accept.accept(msg.Symbol) {
			continue
		}
		if err := h(ctx, msg.tick()); err != nil {
			return err
		}
	}

	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return ctx.Err()
}

func trimForErr(s string) string {
	const n = 200
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
