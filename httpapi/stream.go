package httpapi

import (
	"net/http"
	"strings"
)

func (s *Server) allowOrigin(r *http.Request) bool {
	reqOrigin := r.Header.Get("Origin")
	if reqOrigin == "" || s.origin == "*" {
		return true
	}
	if s.origin == "" {
		return strings.EqualFold(strings.TrimPrefix(strings.TrimPrefix(reqOrigin, "https://"), "http://"), r.Host)
	}
	return strings.EqualFold(reqOrigin, s.origin)
}

// stream forwards every session event to a websocket client until either
// side goes away.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("stream client connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
