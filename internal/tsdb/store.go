// Package tsdb talks to the InfluxDB 1.x time-series store that holds raw and
// processed station readings.
package tsdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"
	"github.com/sony/gobreaker/v2"

	"cosmoz-server/internal/config"
	"cosmoz-server/internal/metrics"
)

const (
	breakerName = "influxdb"
	userAgent   = "cosmoz-server"
)

var (
	// ErrUnavailable is returned while the circuit breaker rejects calls.
	ErrUnavailable = errors.New("tsdb: store unavailable")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("tsdb: store closed")
	// ErrTimeout is returned when a query produces no first chunk within
	// Options.Timeout.
	ErrTimeout = errors.New("tsdb: timed out waiting for query response")
)

// StoreError carries an error reported by the server inside a response body,
// as opposed to a transport failure.
type StoreError struct {
	Message string
}

func (e *StoreError) Error() string { return "tsdb: " + e.Message }

// Options configures a Store. Timeout bounds pings, writes and the wait for
// the first chunk of a query; the rest of a chunked result is read without a
// deadline.
type Options struct {
	Addr      string
	Username  string
	Password  string
	Database  string
	Timeout   time.Duration
	ChunkSize int
}

// OptionsFromConfig maps the INFLUXDB_* settings onto Options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Addr:      cfg.InfluxAddr(),
		Username:  cfg.InfluxUser,
		Password:  cfg.InfluxPassword,
		Database:  cfg.InfluxDatabase,
		Timeout:   cfg.InfluxTimeout,
		ChunkSize: cfg.InfluxChunkSize,
	}
}

// Store is a shared handle on the time-series store. The HTTP clients are
// created on first use; the Store itself is safe for concurrent use.
type Store struct {
	opts    Options
	logger  *slog.Logger
	breaker *gobreaker.CircuitBreaker[any]

	once     sync.Once
	client   client.Client
	stream   *http.Client
	queryURL string
	initErr  error

	mu     sync.Mutex
	closed bool
}

func NewStore(opts Options, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{opts: opts, logger: logger.With("component", "tsdb")}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	s.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Server-side query errors (bad statement, unknown database) and
		// callers giving up say nothing about store health.
		IsSuccessful: func(err error) bool {
			var se *StoreError
			return err == nil || errors.As(err, &se) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	return s
}

func stateValue(st gobreaker.State) float64 {
	switch st {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func (s *Store) conn() (client.Client, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	s.once.Do(s.init)
	return s.client, s.initErr
}

func (s *Store) init() {
	s.client, s.initErr = client.NewHTTPClient(client.HTTPConfig{
		Addr:      s.opts.Addr,
		Username:  s.opts.Username,
		Password:  s.opts.Password,
		Timeout:   s.opts.Timeout,
		UserAgent: userAgent,
	})
	if s.initErr != nil {
		s.initErr = fmt.Errorf("tsdb client: %w", s.initErr)
		return
	}
	u, err := url.Parse(s.opts.Addr)
	if err != nil {
		s.initErr = fmt.Errorf("tsdb client: %w", err)
		return
	}
	u.Path = path.Join(u.Path, "query")
	s.queryURL = u.String()

	// No overall client timeout: a chunked result is read at the pace of
	// whoever consumes the cursor.
	s.stream = &http.Client{Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: s.opts.Timeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout: s.opts.Timeout,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}}
	s.logger.Info("tsdb client created", "addr", s.opts.Addr, "database", s.opts.Database)
}

// execute runs fn through the breaker and maps rejections to ErrUnavailable.
func (s *Store) execute(fn func() (any, error)) (any, error) {
	out, err := s.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.TSDBQueryErrors.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, err
}

// Query starts a chunked query and waits for the first chunk, so a statement
// the server rejects fails here rather than mid-stream. The returned Cursor
// reads the remaining chunks on demand and stops when ctx is done.
func (s *Store) Query(ctx context.Context, command string) (*Cursor, error) {
	if _, err := s.conn(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := s.execute(func() (any, error) {
		return s.startQuery(ctx, command)
	})
	if err != nil {
		metrics.TSDBQueryDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		if !errors.Is(err, ErrUnavailable) {
			metrics.TSDBQueryErrors.WithLabelValues(errorKind(err)).Inc()
		}
		if errors.Is(err, context.Canceled) {
			s.logger.Debug("tsdb query abandoned", "query", command)
		} else {
			s.logger.Error("tsdb query failed", "error", err, "query", command)
		}
		return nil, fmt.Errorf("tsdb query: %w", err)
	}
	metrics.TSDBQueryDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	s.logger.Debug("tsdb query started", "query", command, "duration_ms", time.Since(start).Milliseconds())
	return out.(*Cursor), nil
}

// startQuery posts the statement and reads the first chunk under the
// Timeout deadline. The deadline is lifted once that chunk has arrived.
func (s *Store) startQuery(ctx context.Context, command string) (*Cursor, error) {
	qctx, cancel := context.WithCancel(ctx)
	var deadline *time.Timer
	if s.opts.Timeout > 0 {
		deadline = time.AfterFunc(s.opts.Timeout, cancel)
	}
	expired := func() bool { return deadline != nil && !deadline.Stop() && ctx.Err() == nil }
	fail := func(err error) (*Cursor, error) {
		timedOut := expired()
		cancel()
		if timedOut {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, s.opts.Timeout)
		}
		return nil, err
	}

	params := url.Values{}
	params.Set("q", command)
	params.Set("db", s.opts.Database)
	params.Set("chunked", "true")
	if s.opts.ChunkSize > 0 {
		params.Set("chunk_size", strconv.Itoa(s.opts.ChunkSize))
	}
	req, err := http.NewRequestWithContext(qctx, http.MethodPost, s.queryURL+"?"+params.Encode(), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if s.opts.Username != "" {
		req.SetBasicAuth(s.opts.Username, s.opts.Password)
	}

	resp, err := s.stream.Do(req)
	if err != nil {
		return fail(err)
	}
	if ct, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); ct != "application/json" {
		_ = resp.Body.Close()
		return fail(fmt.Errorf("unexpected response: status %d, content type %q", resp.StatusCode, ct))
	}

	chunks := client.NewChunkedResponse(resp.Body)
	first, err := chunks.NextResponse()
	if err != nil && !errors.Is(err, io.EOF) {
		_ = chunks.Close()
		return fail(chunkError(err))
	}
	if expired() {
		_ = chunks.Close()
		cancel()
		return nil, fmt.Errorf("%w after %s", ErrTimeout, s.opts.Timeout)
	}
	if first != nil {
		if rerr := first.Error(); rerr != nil {
			_ = chunks.Close()
			cancel()
			return nil, &StoreError{Message: rerr.Error()}
		}
	}
	return newCursor(ctx, chunks, first, cancel), nil
}

// chunkError replaces the empty error the chunk decoder reports when the
// body ends mid-document.
func chunkError(err error) error {
	if err.Error() == "" {
		return io.ErrUnexpectedEOF
	}
	return err
}

func errorKind(err error) string {
	var se *StoreError
	if errors.As(err, &se) {
		return "store"
	}
	return "transport"
}

// Ping reports the server version.
func (s *Store) Ping(ctx context.Context) (string, error) {
	c, err := s.conn()
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out, err := s.execute(func() (any, error) {
		_, version, err := c.Ping(0)
		return version, err
	})
	if err != nil {
		return "", fmt.Errorf("tsdb ping: %w", err)
	}
	return out.(string), nil
}

// Close releases idle connections. Open cursors keep working until closed.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	// Waits for a concurrent first conn() to finish; no client is made after.
	s.once.Do(func() { s.initErr = ErrClosed })
	if s.stream != nil {
		s.stream.CloseIdleConnections()
	}
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
