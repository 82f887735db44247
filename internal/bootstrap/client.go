// Package bootstrap implements the HTTP convenience client that trades a
// login/trade-server pair for the token, session key, and signal-server URL
// the core's Connect call needs. It is an external collaborator, not part of
// the protocol engine: the engine itself only ever consumes the opaque
// {token, key, ws_url} triple this package produces.
package bootstrap

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrWebTerminalDisabled is returned when the bootstrap endpoint reports
// enabled == false for the requested account.
var ErrWebTerminalDisabled = errors.New("bootstrap: web terminal disabled for this account")

// Error wraps a bootstrap-layer failure with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("bootstrap: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// sessionKeyLen is the expected decoded length of the hex-encoded session
// key the bootstrap endpoint returns: AES-256 requires a 32-byte key.
const sessionKeyLen = 32

// rawResponse mirrors the bootstrap endpoint's JSON body.
type rawResponse struct {
	SignalServer string `json:"signal_server"`
	Key          string `json:"key"`
	Token        string `json:"token"`
	Enabled      bool   `json:"enabled"`
}

// Result is the bootstrap outcome the core's Connect call consumes.
type Result struct {
	SignalServer string
	Token        string
	Key          []byte // decoded session key, always 32 bytes
}

// Client fetches bootstrap results from the trade/json endpoint. Unlike the
// teacher's CLOB REST client, it retries nothing: the bootstrap call is
// explicitly a one-shot, caller-owned operation.
type Client struct {
	http   *resty.Client
	rl     *TokenBucket
	logger *slog.Logger
}

// New creates a bootstrap client against baseURL with a single rate-limit
// category (the bootstrap endpoint has no documented per-category limits,
// so one bucket covers the whole client).
func New(baseURL string, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/x-www-form-urlencoded")

	return &Client{
		http:   httpClient,
		rl:     NewTokenBucket(10, 2),
		logger: logger,
	}
}

// Fetch performs the POST /trade/json bootstrap call and validates the
// response shape: a disabled account surfaces ErrWebTerminalDisabled, and a
// session key that doesn't decode to exactly 32 bytes is rejected before it
// ever reaches the crypto layer.
func (c *Client) Fetch(ctx context.Context, login, tradeServer string) (*Result, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, &Error{Op: "rate limit", Err: err}
	}

	var raw rawResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"login":        login,
			"trade_server": tradeServer,
			"gwt":          "4",
		}).
		SetResult(&raw).
		Post("/trade/json")
	if err != nil {
		return nil, &Error{Op: "post", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &Error{Op: "post", Err: fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())}
	}

	if !raw.Enabled {
		c.logger.Warn("web terminal disabled for account", "login", login)
		return nil, &Error{Op: "fetch", Err: ErrWebTerminalDisabled}
	}

	key, err := hex.DecodeString(raw.Key)
	if err != nil {
		return nil, &Error{Op: "decode key", Err: err}
	}
	if len(key) != sessionKeyLen {
		return nil, &Error{Op: "decode key", Err: fmt.Errorf("session key is %d bytes, want %d", len(key), sessionKeyLen)}
	}

	return &Result{
		SignalServer: raw.SignalServer,
		Token:        raw.Token,
		Key:          key,
	}, nil
}
