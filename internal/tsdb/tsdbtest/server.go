// Package tsdbtest provides an in-process stand-in for the InfluxDB 1.x HTTP
// API, enough for the query, ping and write calls the service makes.
package tsdbtest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

// Series is one result series as InfluxDB encodes it.
type Series struct {
	Name    string            `json:"name"`
	Tags    map[string]string `json:"tags,omitempty"`
	Columns []string          `json:"columns"`
	Values  [][]any           `json:"values"`
}

// Reply is the answer to one query. Each element of Chunks is sent as a
// separate chunk. A non-empty Error is sent as a statement error instead.
// Delay holds back the response headers; Interval is the pause between chunks.
type Reply struct {
	Chunks   []Series
	Error    string
	Delay    time.Duration
	Interval time.Duration
}

// Server records every query and write it receives.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	queries []string
	writes  []string
	aborted int
	reply   func(query string) Reply
}

// New starts a server that answers every query with an empty result until
// Respond is called. It is closed with the test.
func New(t *testing.T) *Server {
	t.Helper()
	s := &Server{reply: func(string) Reply { return Reply{} }}
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", s.ping)
	mux.HandleFunc("/query", s.query)
	mux.HandleFunc("/write", s.write)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Respond replaces the reply function.
func (s *Server) Respond(fn func(query string) Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = fn
}

// Queries returns the statements received so far.
func (s *Server) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// Writes returns the line-protocol bodies received so far, one per line.
func (s *Server) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

// Aborted returns how many chunked replies the client hung up on before the
// last chunk was sent.
func (s *Server) Aborted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

func (s *Server) ping(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("X-Influxdb-Version", "1.8.10")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	s.mu.Lock()
	s.queries = append(s.queries, q)
	reply := s.reply(q)
	s.mu.Unlock()

	if !pause(r, reply.Delay) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Influxdb-Version", "1.8.10")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)

	if reply.Error != "" {
		_ = enc.Encode(map[string]any{"results": []map[string]any{{"statement_id": 0, "error": reply.Error}}})
		return
	}
	if len(reply.Chunks) == 0 {
		_ = enc.Encode(map[string]any{"results": []map[string]any{{"statement_id": 0}}})
		return
	}
	flusher, _ := w.(http.Flusher)
	for i, series := range reply.Chunks {
		if i > 0 && !pause(r, reply.Interval) {
			s.mu.Lock()
			s.aborted++
			s.mu.Unlock()
			return
		}
		result := map[string]any{"statement_id": 0, "series": []Series{series}}
		if i < len(reply.Chunks)-1 {
			result["partial"] = true
		}
		_ = enc.Encode(map[string]any{"results": []map[string]any{result}})
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// pause waits d, reporting false if the client went away first.
func pause(r *http.Request, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.Context().Done():
		return false
	}
}

func (s *Server) write(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
		if line != "" {
			s.writes = append(s.writes, line)
		}
	}
	s.mu.Unlock()
	w.Header().Set("X-Influxdb-Version", "1.8.10")
	w.WriteHeader(http.StatusNoContent)
}
