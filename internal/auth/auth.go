// Package auth checks API keys against the api_keys collection.
package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
)

//go:embed sql/get-apikey.sql
var getAPIKeySQL string

//go:embed sql/put-apikey.sql
var putAPIKeySQL string

// Reasons returned by Check.
const (
	ReasonOK           = "OK"
	ReasonNotFound     = "Not Found"
	ReasonExpired      = "Expired"
	ReasonNoToken      = "No access token"
	ReasonLookupFailed = "Key lookup failed"
)

// DefaultTTL is how long an issued key stays valid.
const DefaultTTL = 7 * 24 * time.Hour

type Checker interface {
	// Check reports whether key may be used and why not.
	Check(ctx context.Context, key string) (bool, string)
	// Issue stores a new key bound to accessToken and returns it.
	Issue(ctx context.Context, accessToken string, ttl time.Duration) (string, error)
}

type checkerImpl struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewChecker(db *sql.DB, logger *slog.Logger) Checker {
	return newChecker(db, logger, time.Now)
}

func newChecker(db *sql.DB, logger *slog.Logger, now func() time.Time) *checkerImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &checkerImpl{db: db, logger: logger.With("module", "auth"), now: now}
}

func (c *checkerImpl) Check(ctx context.Context, key string) (bool, string) {
	if key == "" {
		return false, ReasonNotFound
	}

	var token, expires sql.NullString
	err := c.db.QueryRowContext(ctx, getAPIKeySQL, key).Scan(&token, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ReasonNotFound
	}
	if err != nil {
		c.logger.Error("api key lookup failed", "error", err)
		return false, ReasonLookupFailed
	}

	if expires.Valid && expires.String != "" {
		at, err := time.Parse(time.RFC3339Nano, expires.String)
		if err != nil {
			c.logger.Warn("api key has unreadable expiry", "expires", expires.String, "error", err)
			return false, ReasonExpired
		}
		if at.Before(c.now()) {
			return false, ReasonExpired
		}
	}
	if !token.Valid {
		return false, ReasonNoToken
	}
	return true, ReasonOK
}

func (c *checkerImpl) Issue(ctx context.Context, accessToken string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key, err := newKey()
	if err != nil {
		return "", err
	}
	created := c.now().UTC()
	expires := created.Add(ttl)

	var token any
	if accessToken != "" {
		token = accessToken
	}
	doc, err := json.Marshal(map[string]any{
		"created": created.Format(time.RFC3339Nano),
		"expires": expires.Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("encode api key: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, putAPIKeySQL, key, token, expires.Format(time.RFC3339Nano), string(doc)); err != nil {
		return "", fmt.Errorf("store api key: %w", err)
	}
	return key, nil
}

// newKey returns 32 random bytes, URL-safe base64 encoded.
func newKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
