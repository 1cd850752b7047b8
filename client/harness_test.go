package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/EasterCompany/dex-discord-gateway/clock"
	"github.com/EasterCompany/dex-discord-gateway/config"
	"github.com/EasterCompany/dex-discord-gateway/events"
	"github.com/EasterCompany/dex-discord-gateway/rest"
	"github.com/EasterCompany/dex-discord-gateway/session"
	"github.com/EasterCompany/dex-discord-gateway/state"
)

const waitTimeout = 2 * time.Second

const gatewayBot = `{"url": "wss://gateway.test", "shards": 2, "session_start_limit": {"total": 1000, "remaining": 999, "reset_after": 0, "max_concurrency": 1}}`

// Guild 100 lands on shard 0 of 2.
const guildPayload = `{
	"id": "100",
	"name": "dex",
	"channels": [
		{"id": "10", "type": 0, "name": "general"},
		{"id": "11", "type": 2, "name": "voice"}
	],
	"members": [
		{"user": {"id": "1", "username": "dexter"}},
		{"user": {"id": "2", "username": "ada"}, "nick": "Countess"}
	]
}`

type restCall struct {
	method, path string
	body         any
}

// fakeRequester answers REST calls from canned bodies keyed by
// "METHOD /path".
type fakeRequester struct {
	mu        sync.Mutex
	responses map[string]string
	calls     []restCall
}

func (r *fakeRequester) Request(_ context.Context, method, path string, body any) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, restCall{method: method, path: path, body: body})
	resp, ok := r.responses[method+" "+path]
	if !ok {
		return nil, &rest.HTTPError{Method: method, Path: path, StatusCode: http.StatusNotFound}
	}
	return []byte(resp), nil
}

func (r *fakeRequester) respond(method, path, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[method+" "+path] = body
}

func (r *fakeRequester) called(method, path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c.method == method && c.path == path {
			return true
		}
	}
	return false
}

func (r *fakeRequester) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type inboundFrame struct {
	data []byte
	ack  chan struct{}
}

// fakeTransport hands frames to a session one at a time; a frame counts as
// processed once the session asks for the next.
type fakeTransport struct {
	inbox   chan inboundFrame
	done    chan struct{}
	started chan struct{}

	mu        sync.Mutex
	writes    [][]byte
	closeCode int
	pending   chan struct{}
	reads     int
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbox:   make(chan inboundFrame),
		done:    make(chan struct{}),
		started: make(chan struct{}),
	}
}

func (t *fakeTransport) Read() ([]byte, error) {
	t.mu.Lock()
	if t.pending != nil {
		close(t.pending)
		t.pending = nil
	}
	t.reads++
	if t.reads == 1 {
		close(t.started)
	}
	t.mu.Unlock()

	select {
	case f := <-t.inbox:
		t.mu.Lock()
		t.pending = f.ack
		t.mu.Unlock()
		return f.data, nil
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return nil, &session.CloseError{Code: t.closeCode}
	}
}

func (t *fakeTransport) Write(data []byte) error {
	select {
	case <-t.done:
		return session.ErrNotConnected
	default:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, data)
	return nil
}

func (t *fakeTransport) Close(code int, _ string) error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closeCode = code
		t.mu.Unlock()
		close(t.done)
	})
	return nil
}

func (t *fakeTransport) sent(op int) []gjson.Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []gjson.Result
	for _, w := range t.writes {
		if r := gjson.ParseBytes(w); int(r.Get("op").Int()) == op {
			out = append(out, r)
		}
	}
	return out
}

func (t *fakeTransport) deliver(tb testing.TB, frame string) {
	tb.Helper()
	ack := make(chan struct{})
	select {
	case t.inbox <- inboundFrame{data: []byte(frame), ack: ack}:
	case <-time.After(waitTimeout):
		tb.Fatalf("transport not reading, frame %s", frame)
	}
	select {
	case <-ack:
	case <-time.After(waitTimeout):
		tb.Fatalf("frame not processed: %s", frame)
	}
}

func (t *fakeTransport) dispatch(tb testing.TB, seq int, name, data string) {
	tb.Helper()
	t.deliver(tb, fmt.Sprintf(`{"op":0,"s":%d,"t":%q,"d":%s}`, seq, name, data))
}

type fakeDialer struct {
	dials chan *fakeTransport
}

func (d *fakeDialer) Dial(context.Context, string) (session.Transport, error) {
	t := newFakeTransport()
	d.dials <- t
	return t, nil
}

// loopClock waits for the client loop to apply each fired timer before
// Advance moves on.
type loopClock struct {
	*clock.Fake
	loop func() *session.Loop
}

func (c loopClock) AfterFunc(d time.Duration, f func()) *clock.Timer {
	return c.Fake.AfterFunc(d, func() {
		f()
		_ = c.loop().Do(context.Background(), func() {})
	})
}

// recorder keeps every event emitted on the client bus.
type recorder struct {
	mu  sync.Mutex
	got []events.Event
}

func (r *recorder) add(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
}

func (r *recorder) count(typ events.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.got {
		if e.Type() == typ {
			n++
		}
	}
	return n
}

type harness struct {
	t      *testing.T
	client *Client
	clock  *clock.Fake
	rest   *fakeRequester
	dialer *fakeDialer
	events *recorder
	seq    int
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Token = "secret"
	cfg.Intents = 513
	return cfg
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		clock:  clock.NewFake(time.Unix(1_700_000_000, 0)),
		rest:   &fakeRequester{responses: map[string]string{"GET /gateway/bot": gatewayBot}},
		dialer: &fakeDialer{dials: make(chan *fakeTransport, 8)},
		events: &recorder{},
	}
	c, err := New(testConfig(),
		WithRequester(h.rest),
		WithDialer(h.dialer),
		WithClock(loopClock{Fake: h.clock, loop: func() *session.Loop { return h.client.loop }}),
		WithSessionOptions(
			session.WithJitter(func() float64 { return 0.5 }),
			session.WithRandom(func() float64 { return 0.5 }),
		),
	)
	require.NoError(t, err)
	h.client = c
	c.Events().Subscribe(h.events.add)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = c.Close(ctx)
	})
	return h
}

func (h *harness) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	h.t.Cleanup(cancel)
	return ctx
}

func (h *harness) do(fn func(*state.State)) {
	h.t.Helper()
	require.NoError(h.t, h.client.Do(h.ctx(), fn))
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.do(func(*state.State) {})
}

func (h *harness) nextTransport() *fakeTransport {
	h.t.Helper()
	select {
	case tr := <-h.dialer.dials:
		select {
		case <-tr.started:
		case <-time.After(waitTimeout):
			h.t.Fatal("session never read from transport")
		}
		return tr
	case <-time.After(waitTimeout):
		h.t.Fatal("no dial")
		return nil
	}
}

func (h *harness) noDial() {
	h.t.Helper()
	select {
	case <-h.dialer.dials:
		h.t.Fatal("unexpected dial")
	case <-time.After(20 * time.Millisecond):
	}
}

func (h *harness) frame(tr *fakeTransport, name, data string) {
	h.t.Helper()
	h.seq++
	tr.dispatch(h.t, h.seq, name, data)
}

// readyShard completes a handshake on tr. Shard 0 owns guild 100 and
// waits for its GUILD_CREATE.
func (h *harness) readyShard(tr *fakeTransport, shard int) {
	h.t.Helper()
	tr.deliver(h.t, `{"op":10,"d":{"heartbeat_interval":45000}}`)
	if shard == 0 {
		h.frame(tr, "READY", `{"user": {"id": "1", "username": "dexter"}, "session_id": "s0", "guilds": [{"id": "100", "unavailable": true}]}`)
		h.frame(tr, "GUILD_CREATE", guildPayload)
		return
	}
	h.frame(tr, "READY", fmt.Sprintf(`{"user": {"id": "1", "username": "dexter"}, "session_id": "s%d", "guilds": []}`, shard))
}

// connectAll brings both shards to ready, stepping over the identify
// cooldown between them.
func (h *harness) connectAll() (*fakeTransport, *fakeTransport) {
	h.t.Helper()
	require.NoError(h.t, h.client.Connect(h.ctx()))
	first := h.nextTransport()
	h.readyShard(first, 0)
	h.advance(h.client.cfg.ConnectCooldown)
	second := h.nextTransport()
	h.readyShard(second, 1)
	require.NoError(h.t, h.client.WaitReady(h.ctx()))
	return first, second
}
