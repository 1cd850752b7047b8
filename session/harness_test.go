package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/EasterCompany/dex-discord-gateway/clock"
)

const waitTimeout = 2 * time.Second

type inboundFrame struct {
	data []byte
	ack  chan struct{}
}

// fakeTransport hands frames to the session one at a time. A frame counts
// as processed once the session asks for the next one.
type fakeTransport struct {
	inbox    chan inboundFrame
	failures chan error
	done     chan struct{}
	started  chan struct{}

	mu        sync.Mutex
	writes    [][]byte
	closeCode int
	pending   chan struct{}
	reads     int
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbox:    make(chan inboundFrame),
		failures: make(chan error, 1),
		done:     make(chan struct{}),
		started:  make(chan struct{}),
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
	case err := <-t.failures:
		return nil, err
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return nil, &CloseError{Code: t.closeCode}
	}
}

func (t *fakeTransport) Write(data []byte) error {
	select {
	case <-t.done:
		return ErrNotConnected
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

// fail makes the pending Read return err without closing the transport.
func (t *fakeTransport) fail(err error) { t.failures <- err }

func (t *fakeTransport) isClosed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *fakeTransport) code() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeCode
}

// sent returns the frames written with the given opcode.
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

type fakeDialer struct {
	mu    sync.Mutex
	urls  []string
	dials chan *fakeTransport
}

func (d *fakeDialer) Dial(_ context.Context, url string) (Transport, error) {
	t := newFakeTransport()
	d.mu.Lock()
	d.urls = append(d.urls, url)
	d.mu.Unlock()
	d.dials <- t
	return t, nil
}

func (d *fakeDialer) lastURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.urls[len(d.urls)-1]
}

type dispatched struct {
	name string
	data json.RawMessage
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []dispatched
}

func (d *recordingDispatcher) Dispatch(_ int, name string, data json.RawMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, dispatched{name: name, data: data})
}

func (d *recordingDispatcher) names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.events))
	for i, e := range d.events {
		out[i] = e.name
	}
	return out
}

type hookLog struct {
	mu          sync.Mutex
	preReady    int
	ready       int
	resumed     int
	disconnects []error
}

func (h *hookLog) hooks() Hooks {
	return Hooks{
		OnPreReady: func(*Session) { h.mu.Lock(); h.preReady++; h.mu.Unlock() },
		OnReady:    func(*Session) { h.mu.Lock(); h.ready++; h.mu.Unlock() },
		OnResumed:  func(*Session) { h.mu.Lock(); h.resumed++; h.mu.Unlock() },
		OnDisconnect: func(_ *Session, err error) {
			h.mu.Lock()
			h.disconnects = append(h.disconnects, err)
			h.mu.Unlock()
		},
	}
}

func (h *hookLog) readyCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}

func (h *hookLog) lastDisconnect() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.disconnects) == 0 {
		return nil
	}
	return h.disconnects[len(h.disconnects)-1]
}

// loopClock waits for the loop to apply each fired timer before Advance
// moves on, so timers re-armed by the session see the deadline time.
type loopClock struct {
	*clock.Fake
	loop *Loop
}

func (c loopClock) AfterFunc(d time.Duration, f func()) *clock.Timer {
	return c.Fake.AfterFunc(d, func() {
		f()
		_ = c.loop.Do(context.Background(), func() {})
	})
}

type harness struct {
	t          *testing.T
	loop       *Loop
	clock      *clock.Fake
	dialer     *fakeDialer
	dispatcher *recordingDispatcher
	hooks      *hookLog
	session    *Session
}

func defaultConfig() Config {
	return Config{
		Token:                "secret",
		Intents:              513,
		GuildCreateTimeout:   2 * time.Second,
		MaxReconnectAttempts: -1,
	}
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		t:          t,
		loop:       NewLoop(64),
		clock:      clock.NewFake(time.Unix(1_700_000_000, 0)),
		dialer:     &fakeDialer{dials: make(chan *fakeTransport, 8)},
		dispatcher: &recordingDispatcher{},
		hooks:      &hookLog{},
	}
	go h.loop.Run()
	t.Cleanup(h.loop.Stop)

	h.session = New(0, 1, cfg, h.loop, h.dialer, h.dispatcher,
		WithClock(loopClock{Fake: h.clock, loop: h.loop}),
		WithHooks(h.hooks.hooks()),
		WithJitter(func() float64 { return 0.5 }),
		WithRandom(func() float64 { return 0.5 }),
	)
	h.session.SetGatewayURL("wss://gateway.test")
	return h
}

// do runs fn on the loop and waits for it.
func (h *harness) do(fn func()) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(h.t, h.loop.Do(ctx, fn))
}

func (h *harness) flush() { h.do(func() {}) }

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.flush()
}

// nextTransport waits for a dial and for the session to start reading.
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

func (h *harness) connect() *fakeTransport {
	h.do(h.session.Connect)
	return h.nextTransport()
}

func (h *harness) status() Status { return h.session.Status() }

// readyWith connects and completes a handshake with no pending guilds.
func (h *harness) readyWith(sessionID string, seq int) *fakeTransport {
	tr := h.connect()
	tr.deliver(h.t, `{"op":10,"d":{"heartbeat_interval":1000}}`)
	tr.deliver(h.t, `{"op":0,"s":`+itoa(seq)+`,"t":"READY","d":{"session_id":"`+sessionID+`","resume_gateway_url":"wss://resume.test","guilds":[]}}`)
	return tr
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

// awaitStatus waits for the loop to reach want and then for the task that
// set it to finish.
func (h *harness) awaitStatus(want Status) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.status() == want }, waitTimeout, time.Millisecond)
	h.flush()
}
