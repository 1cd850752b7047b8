package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRequester struct {
	method, path string
	body         any
	resp         string
	err          error
}

func (s *stubRequester) Request(_ context.Context, method, path string, body any) ([]byte, error) {
	s.method, s.path, s.body = method, path, body
	return []byte(s.resp), s.err
}

func TestHTTPErrorMessage(t *testing.T) {
	err := &HTTPError{StatusCode: 404, Code: 10003, Message: "Unknown Channel", Method: "GET", Path: "/channels/1"}
	assert.Equal(t, "GET /channels/1: 404 Unknown Channel (code 10003)", err.Error())

	bare := &HTTPError{StatusCode: 502, Method: "POST", Path: "/x"}
	assert.Equal(t, "POST /x: 502 Bad Gateway", bare.Error())
}

func TestIsStatusUnwraps(t *testing.T) {
	err := fmt.Errorf("sending: %w", &HTTPError{StatusCode: 403})
	assert.True(t, IsStatus(err, http.StatusForbidden))
	assert.False(t, IsStatus(err, http.StatusNotFound))
	assert.False(t, IsStatus(assert.AnError, http.StatusForbidden))
}

func TestGatewayBot(t *testing.T) {
	stub := &stubRequester{resp: `{"url": "wss://gateway.test", "shards": 3, "session_start_limit": {"total": 1000, "remaining": 998, "max_concurrency": 1}}`}

	gw, err := GatewayBot(context.Background(), stub)
	require.NoError(t, err)
	assert.Equal(t, "GET", stub.method)
	assert.Equal(t, "/gateway/bot", stub.path)
	assert.Equal(t, "wss://gateway.test", gw.URL)
	assert.Equal(t, 3, gw.Shards)
	assert.Equal(t, 998, gw.SessionStartLimit.Remaining)
}

func TestDecodeReportsBadJSON(t *testing.T) {
	_, err := Decode[Gateway](context.Background(), &stubRequester{resp: "nope"}, "GET", "/gateway/bot", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding GET /gateway/bot")
}

func TestBucketID(t *testing.T) {
	assert.Equal(t, "/channels/123456789012345678/messages/:id",
		bucketID("PATCH", "/channels/123456789012345678/messages/223456789012345678"))
	assert.Equal(t, "DELETE /channels/123456789012345678/messages/:id",
		bucketID("DELETE", "/channels/123456789012345678/messages/223456789012345678"))
	assert.Equal(t, "/gateway/bot", bucketID("GET", "/gateway/bot?x=1"))
}

func TestDiscordgoRequester(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v10/channels/10/messages":
			_, _ = w.Write([]byte(`{"id": "500", "content": "hi"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code": 10003, "message": "Unknown Channel"}`))
		}
	}))
	defer srv.Close()

	r, err := NewDiscordgoRequester("secret", nil)
	require.NoError(t, err)
	r.SetBaseURL(srv.URL + "/api/v10")

	raw, err := r.Request(context.Background(), http.MethodPost, "/channels/10/messages", map[string]string{"content": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Bot secret", gotAuth)
	assert.JSONEq(t, `{"content": "hi"}`, gotBody)
	var msg struct{ ID string }
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "500", msg.ID)

	_, err = r.Request(context.Background(), http.MethodGet, "/channels/11", nil)
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, http.StatusNotFound, herr.StatusCode)
	assert.Equal(t, 10003, herr.Code)
	assert.Equal(t, "Unknown Channel", herr.Message)
	assert.Equal(t, "/channels/11", herr.Path)
}
