package api

import (
	"encoding/json"
	"net/http"
	"time"
)

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: false, Error: msg})
}

// responseTTL is how long query responses live in the response cache.
const responseTTL = 15 * time.Second

// cached wraps a handler body with the response cache, keyed by the full
// request URI. Errors are never cached.
func (s *Server) cached(endpoint string, w http.ResponseWriter, r *http.Request, fn func() (interface{}, error)) {
	key := "api:" + r.URL.RequestURI()

	if body, ok := s.deps.Cache.Get(key); ok {
		s.deps.Metrics.CacheHits.WithLabelValues(endpoint).Inc()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
		return
	}
	s.deps.Metrics.CacheMisses.WithLabelValues(endpoint).Inc()

	data, err := fn()
	if err != nil {
		s.log.Error().Err(err).Str("endpoint", endpoint).Msg("Query failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	body, err := json.Marshal(envelope{Success: true, Data: data})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.deps.Cache.Put(key, body, responseTTL)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
