// Package rest is the REST capability the gateway core consumes. Rate
// limiting and retries belong to the Requester implementation.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"emperror.dev/errors"
)

// Requester performs one authenticated REST call and returns the raw
// response body. Non-2xx responses fail with *HTTPError.
type Requester interface {
	Request(ctx context.Context, method, path string, body any) ([]byte, error)
}

// HTTPError is a non-2xx REST response.
type HTTPError struct {
	StatusCode int
	// Code is the API's own error code, zero when the body carried none.
	Code    int
	Message string
	Method  string
	Path    string
}

func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s %s: %d %s (code %d)", e.Method, e.Path, e.StatusCode, msg, e.Code)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}

// IsStatus reports whether err carries an HTTP response with status code.
func IsStatus(err error, code int) bool {
	var herr *HTTPError
	return errors.As(err, &herr) && herr.StatusCode == code
}

// Decode performs a request and unmarshals the response into T.
func Decode[T any](ctx context.Context, r Requester, method, path string, body any) (T, error) {
	var out T
	raw, err := r.Request(ctx, method, path, body)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, errors.WrapIff(err, "decoding %s %s", method, path)
	}
	return out, nil
}

// SessionStartLimit bounds how many identifies may be sent.
type SessionStartLimit struct {
	Total          int `json:"total"`
	Remaining      int `json:"remaining"`
	ResetAfter     int `json:"reset_after"`
	MaxConcurrency int `json:"max_concurrency"`
}

// Gateway is the response of GET /gateway/bot.
type Gateway struct {
	URL               string            `json:"url"`
	Shards            int               `json:"shards"`
	SessionStartLimit SessionStartLimit `json:"session_start_limit"`
}

// GatewayBot fetches the gateway URL and recommended shard count.
func GatewayBot(ctx context.Context, r Requester) (Gateway, error) {
	return Decode[Gateway](ctx, r, http.MethodGet, "/gateway/bot", nil)
}
