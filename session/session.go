// Package session implements one gateway connection: identify and resume,
// heartbeating, sequence tracking, readiness gating and reconnects.
//
// A Session is confined to its Loop. Methods other than ID, Count, Status,
// Latency and SendWS must run on the loop goroutine.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"runtime"
	"sync/atomic"
	"time"

	"emperror.dev/errors"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/EasterCompany/dex-discord-gateway/clock"
	"github.com/EasterCompany/dex-discord-gateway/health"
)

// Status is the connection state of a session.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusIdentifying
	StatusResuming
	StatusConnected
	StatusReady
	StatusReconnecting
)

var statusNames = [...]string{
	StatusDisconnected: "disconnected",
	StatusConnecting:   "connecting",
	StatusIdentifying:  "identifying",
	StatusResuming:     "resuming",
	StatusConnected:    "connected",
	StatusReady:        "ready",
	StatusReconnecting: "reconnecting",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// Handshaking reports whether a connection attempt is in flight.
func (s Status) Handshaking() bool {
	return s == StatusConnecting || s == StatusIdentifying || s == StatusResuming
}

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Config holds per-session connection settings.
type Config struct {
	Token                string
	Intents              int
	LargeThreshold       int
	Compress             bool
	Presence             *StatusUpdate
	GuildCreateTimeout   time.Duration
	ConnectionTimeout    time.Duration
	InvalidSessionDelay  time.Duration
	MaxReconnectAttempts int
}

// Dispatcher applies dispatch events to the cache.
type Dispatcher interface {
	Dispatch(shard int, name string, data json.RawMessage)
}

// Hooks are invoked on the loop as the session changes state. All are
// optional.
type Hooks struct {
	OnConnect    func(*Session)
	OnHello      func(*Session, time.Duration)
	OnPreReady   func(*Session)
	OnReady      func(*Session)
	OnResumed    func(*Session)
	OnDisconnect func(*Session, error)
	// RequestConnect queues a (re)connect. Without it the session
	// reconnects directly.
	RequestConnect func(*Session)
}

type connection struct {
	t Transport
}

// Session is one sharded gateway connection.
type Session struct {
	id, count  int
	cfg        Config
	loop       *Loop
	clock      clock.Clock
	dialer     Dialer
	dispatcher Dispatcher
	hooks      Hooks
	counters   *health.Counters
	log        *slog.Logger
	jitter     func() float64
	random     func() float64

	status  atomic.Int32
	latency atomic.Int64
	conn    atomic.Pointer[connection]

	// Loop-confined.
	epoch          uint64
	gatewayURL     string
	resumeURL      string
	sessionID      string
	seq            int64
	interval       time.Duration
	lastAck        bool
	heartbeatSent  time.Time
	attempts       int
	backoff        time.Duration
	preReady       bool
	pendingGuilds  map[string]struct{}
	heartbeatTimer *clock.Timer
	guildTimer     *clock.Timer
	connectTimer   *clock.Timer
	retryTimer     *clock.Timer
	closing        bool
}

// Option customises a Session.
type Option func(*Session)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option { return func(s *Session) { s.clock = c } }

// WithLogger sets the parent logger.
func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.log = l } }

// WithHooks installs state change callbacks.
func WithHooks(h Hooks) Option { return func(s *Session) { s.hooks = h } }

// WithCounters records session activity.
func WithCounters(c *health.Counters) Option { return func(s *Session) { s.counters = c } }

// WithJitter sets the fraction of the heartbeat interval before the first
// heartbeat.
func WithJitter(f func() float64) Option { return func(s *Session) { s.jitter = f } }

// WithRandom sets the source of the backoff growth factor, in [0,1).
func WithRandom(f func() float64) Option { return func(s *Session) { s.random = f } }

// New returns a disconnected session for shard id of count.
func New(id, count int, cfg Config, loop *Loop, dialer Dialer, dispatcher Dispatcher, opts ...Option) *Session {
	s := &Session{
		id:         id,
		count:      count,
		cfg:        cfg,
		loop:       loop,
		clock:      clock.Real(),
		dialer:     dialer,
		dispatcher: dispatcher,
		jitter:     rand.Float64,
		random:     rand.Float64,
		backoff:    initialBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	s.log = s.log.With(slog.String("component", "session"), slog.Int("shard", id))
	return s
}

func (s *Session) ID() int    { return s.id }
func (s *Session) Count() int { return s.count }

// Status returns the current connection state. Safe for concurrent use.
func (s *Session) Status() Status { return Status(s.status.Load()) }

// Latency returns the last heartbeat round trip. Safe for concurrent use.
func (s *Session) Latency() time.Duration { return time.Duration(s.latency.Load()) }

// SessionID returns the resumable session id, empty after a fresh identify
// is forced.
func (s *Session) SessionID() string { return s.sessionID }

// Sequence returns the last dispatch sequence number seen.
func (s *Session) Sequence() int64 { return s.seq }

// SetGatewayURL sets the URL used for fresh connections.
func (s *Session) SetGatewayURL(u string) { s.gatewayURL = u }

func (s *Session) setStatus(st Status) { s.status.Store(int32(st)) }

// Connect opens a transport unless a connection is already active or in
// flight.
func (s *Session) Connect() {
	switch s.Status() {
	case StatusDisconnected, StatusReconnecting:
	default:
		return
	}
	s.closing = false
	s.stopTimers()
	s.epoch++
	epoch := s.epoch
	s.setStatus(StatusConnecting)

	target := s.connectURL()
	s.log.Info("connecting to gateway", "url", target, "resume", s.sessionID != "")

	if s.cfg.ConnectionTimeout > 0 {
		s.connectTimer = s.after(s.cfg.ConnectionTimeout, func() {
			if s.Status().Handshaking() {
				s.log.Warn("gateway handshake timed out", "timeout", s.cfg.ConnectionTimeout)
				s.reconnect(ErrConnectionTimeout, CloseUnknownError)
			}
		})
	}

	go s.run(epoch, target)
}

func (s *Session) connectURL() string {
	base := s.gatewayURL
	if s.sessionID != "" && s.resumeURL != "" {
		base = s.resumeURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("v", fmt.Sprint(APIVersion))
	q.Set("encoding", "json")
	if s.cfg.Compress {
		q.Set("compress", "zlib-stream")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// run dials and then pumps frames onto the loop until the transport fails.
// Each frame is fully applied before the next is read.
func (s *Session) run(epoch uint64, target string) {
	t, err := s.dialer.Dial(context.Background(), target)

	accepted := false
	if doErr := s.loop.Do(context.Background(), func() { accepted = s.opened(epoch, t, err) }); doErr != nil || !accepted {
		if t != nil && err == nil && !accepted {
			_ = t.Close(CloseNormal, "superseded")
		}
		return
	}

	for {
		data, err := t.Read()
		if err != nil {
			s.loop.Post(func() { s.closed(epoch, err) })
			return
		}
		s.counters.IncrementFrames()
		if s.loop.Do(context.Background(), func() { s.frame(epoch, data) }) != nil {
			return
		}
	}
}

func (s *Session) opened(epoch uint64, t Transport, err error) bool {
	if epoch != s.epoch {
		return false
	}
	if err != nil {
		s.log.Warn("gateway dial failed", "error", err)
		s.teardown()
		if t != nil {
			_ = t.Close(CloseUnknownError, "dial failed")
		}
		s.scheduleReconnect(err)
		return false
	}
	s.conn.Store(&connection{t: t})
	if s.hooks.OnConnect != nil {
		s.hooks.OnConnect(s)
	}
	return true
}

func (s *Session) closed(epoch uint64, err error) {
	if epoch != s.epoch {
		return
	}
	// The transport is already dead; closing it releases its write pump
	// and socket. A non-1000 code keeps the session resumable.
	s.teardownWith(CloseUnknownError, "read failed")

	var ce *CloseError
	if errors.As(err, &ce) {
		if ce.Fatal() {
			fatal := &FatalCloseError{Shard: s.id, Close: ce}
			s.log.Error("gateway closed permanently", "code", ce.Code, "reason", ce.Reason)
			s.setStatus(StatusDisconnected)
			s.disconnected(fatal)
			return
		}
		if ce.invalidatesSession() {
			s.resetSession()
		}
	}
	s.log.Warn("gateway connection lost", "error", err)
	s.scheduleReconnect(err)
}

func (s *Session) frame(epoch uint64, data []byte) {
	if epoch != s.epoch {
		return
	}
	fields := gjson.GetManyBytes(data, "op", "s", "t", "d")
	op := int(fields[0].Int())
	raw := json.RawMessage(fields[3].Raw)

	switch op {
	case OpDispatch:
		if seq := fields[1].Int(); seq > s.seq {
			s.seq = seq
		}
		s.handleDispatch(fields[2].String(), raw)
	case OpHeartbeat:
		s.sendHeartbeat()
	case OpReconnect:
		s.log.Info("gateway requested reconnect")
		s.reconnect(nil, CloseUnknownError)
	case OpInvalidSession:
		s.invalidSession(fields[3].Bool())
	case OpHello:
		s.hello(time.Duration(gjson.GetBytes(raw, "heartbeat_interval").Int()) * time.Millisecond)
	case OpHeartbeatAck:
		s.lastAck = true
		s.latency.Store(int64(s.clock.Now().Sub(s.heartbeatSent)))
	default:
		s.log.Debug("unhandled gateway opcode", "op", op)
	}
}

func (s *Session) hello(interval time.Duration) {
	s.interval = interval
	s.lastAck = true
	if s.hooks.OnHello != nil {
		s.hooks.OnHello(s, interval)
	}
	if first := time.Duration(float64(interval) * s.jitter()); first > 0 {
		s.heartbeatTimer = s.after(first, s.heartbeat)
	} else {
		s.heartbeat()
	}

	if s.sessionID != "" {
		s.setStatus(StatusResuming)
		s.send(OpResume, resumeData{Token: s.cfg.Token, SessionID: s.sessionID, Sequence: s.seq})
		return
	}
	s.identify()
}

func (s *Session) identify() {
	s.setStatus(StatusIdentifying)
	s.send(OpIdentify, identifyData{
		Token:   s.cfg.Token,
		Intents: s.cfg.Intents,
		Properties: identifyProperties{
			OS:      runtime.GOOS,
			Browser: "dex-gateway",
			Device:  "dex-gateway",
		},
		LargeThreshold: s.cfg.LargeThreshold,
		Shard:          [2]int{s.id, s.count},
		Presence:       s.cfg.Presence,
	})
}

func (s *Session) heartbeat() {
	if !s.lastAck {
		s.counters.IncrementMissedHeartbeats()
		s.log.Warn("heartbeat not acknowledged", "interval", s.interval)
		s.reconnect(ErrHeartbeatTimeout, CloseUnknownError)
		return
	}
	s.lastAck = false
	s.sendHeartbeat()
	s.heartbeatTimer = s.after(s.interval, s.heartbeat)
}

func (s *Session) sendHeartbeat() {
	var seq *int64
	if s.seq > 0 {
		v := s.seq
		seq = &v
	}
	s.heartbeatSent = s.clock.Now()
	s.send(OpHeartbeat, seq)
}

func (s *Session) invalidSession(resumable bool) {
	s.log.Info("gateway invalidated session", "resumable", resumable)
	if !resumable {
		s.resetSession()
	}
	s.retryTimer = s.after(s.cfg.InvalidSessionDelay, func() {
		if s.sessionID != "" {
			s.setStatus(StatusResuming)
			s.send(OpResume, resumeData{Token: s.cfg.Token, SessionID: s.sessionID, Sequence: s.seq})
			return
		}
		s.identify()
	})
}

func (s *Session) handleDispatch(name string, raw json.RawMessage) {
	s.counters.IncrementDispatches()
	switch name {
	case "READY":
		s.sessionID = gjson.GetBytes(raw, "session_id").String()
		s.resumeURL = gjson.GetBytes(raw, "resume_gateway_url").String()
		s.attempts = 0
		s.backoff = initialBackoff
		s.stopTimer(&s.connectTimer)
		s.setStatus(StatusConnected)
		s.dispatcher.Dispatch(s.id, name, raw)

		s.pendingGuilds = map[string]struct{}{}
		gjson.GetBytes(raw, "guilds").ForEach(func(_, g gjson.Result) bool {
			if g.Get("unavailable").Bool() {
				s.pendingGuilds[g.Get("id").String()] = struct{}{}
			}
			return true
		})
		s.markPreReady()
	case "RESUMED":
		s.attempts = 0
		s.backoff = initialBackoff
		s.stopTimer(&s.connectTimer)
		s.setStatus(StatusReady)
		s.dispatcher.Dispatch(s.id, name, raw)
		s.log.Info("session resumed", "seq", s.seq)
		if s.hooks.OnResumed != nil {
			s.hooks.OnResumed(s)
		}
	case "GUILD_CREATE", "GUILD_SYNC":
		s.dispatcher.Dispatch(s.id, name, raw)
		s.guildSynced(gjson.GetBytes(raw, "id").String())
	default:
		s.dispatcher.Dispatch(s.id, name, raw)
	}
}

func (s *Session) markPreReady() {
	s.preReady = true
	if s.hooks.OnPreReady != nil {
		s.hooks.OnPreReady(s)
	}
	if len(s.pendingGuilds) == 0 || s.cfg.GuildCreateTimeout <= 0 {
		s.ready()
		return
	}
	s.restartGuildTimer()
}

func (s *Session) guildSynced(id string) {
	if !s.preReady || s.Status() == StatusReady {
		return
	}
	delete(s.pendingGuilds, id)
	if len(s.pendingGuilds) == 0 {
		s.ready()
		return
	}
	s.restartGuildTimer()
}

func (s *Session) restartGuildTimer() {
	s.stopTimer(&s.guildTimer)
	s.guildTimer = s.after(s.cfg.GuildCreateTimeout, func() {
		s.log.Debug("guild create timeout elapsed", "pending", len(s.pendingGuilds))
		s.ready()
	})
}

func (s *Session) ready() {
	if s.Status() == StatusReady {
		return
	}
	s.stopTimer(&s.guildTimer)
	s.preReady = false
	s.pendingGuilds = nil
	s.setStatus(StatusReady)
	s.log.Info("session ready", "session_id", s.sessionID)
	if s.hooks.OnReady != nil {
		s.hooks.OnReady(s)
	}
}

// Disconnect closes the transport and cancels every pending timer and
// continuation. The session keeps its resumable state.
func (s *Session) Disconnect() {
	s.closing = true
	wasActive := s.Status() != StatusDisconnected
	s.teardownWith(CloseNormal, "disconnect")
	s.setStatus(StatusDisconnected)
	if wasActive {
		s.disconnected(nil)
	}
}

// reconnect drops the current transport and schedules a new connection.
func (s *Session) reconnect(cause error, code int) {
	s.teardownWith(code, "reconnecting")
	s.scheduleReconnect(cause)
}

func (s *Session) scheduleReconnect(cause error) {
	s.disconnected(cause)
	if s.closing {
		return
	}
	s.attempts++
	if limit := s.cfg.MaxReconnectAttempts; limit >= 0 && s.attempts > limit {
		s.log.Error("giving up on gateway", "attempts", s.attempts-1)
		s.setStatus(StatusDisconnected)
		s.disconnected(ErrReconnectsExhausted)
		return
	}
	s.counters.IncrementReconnects()
	s.setStatus(StatusReconnecting)

	delay := s.backoff
	s.backoff = min(time.Duration(float64(s.backoff)*(1+2*s.random())), maxBackoff)
	s.log.Info("reconnecting", "attempt", s.attempts, "delay", delay)
	s.retryTimer = s.after(delay, func() {
		if s.hooks.RequestConnect != nil {
			s.hooks.RequestConnect(s)
			return
		}
		s.Connect()
	})
}

func (s *Session) disconnected(err error) {
	if s.hooks.OnDisconnect != nil {
		s.hooks.OnDisconnect(s, err)
	}
}

func (s *Session) resetSession() {
	s.sessionID = ""
	s.resumeURL = ""
	s.seq = 0
}

// teardown invalidates in-flight continuations and stops timers.
func (s *Session) teardown() {
	s.epoch++
	s.stopTimers()
	s.preReady = false
	s.pendingGuilds = nil
	s.conn.Store(nil)
}

func (s *Session) teardownWith(code int, reason string) {
	c := s.conn.Load()
	s.teardown()
	if c != nil {
		if err := c.t.Close(code, reason); err != nil {
			s.log.Debug("closing transport", "error", err)
		}
	}
}

func (s *Session) stopTimers() {
	s.stopTimer(&s.heartbeatTimer)
	s.stopTimer(&s.guildTimer)
	s.stopTimer(&s.connectTimer)
	s.stopTimer(&s.retryTimer)
}

func (s *Session) stopTimer(t **clock.Timer) {
	(*t).Stop()
	*t = nil
}

// after runs fn on the loop once d elapses, unless the session has moved
// to a new connection in the meantime.
func (s *Session) after(d time.Duration, fn func()) *clock.Timer {
	if d <= 0 {
		fn()
		return nil
	}
	epoch := s.epoch
	return s.clock.AfterFunc(d, func() {
		s.loop.Post(func() {
			if epoch == s.epoch {
				fn()
			}
		})
	})
}

// send writes on the loop; failures surface through the read side.
func (s *Session) send(op int, data any) {
	if err := s.SendWS(op, data); err != nil {
		s.log.Warn("gateway send failed", "op", op, "error", err)
	}
}

// SendWS encodes and queues a gateway frame. Safe for concurrent use.
func (s *Session) SendWS(op int, data any) error {
	c := s.conn.Load()
	if c == nil {
		return ErrNotConnected
	}
	b, err := encode(op, data)
	if err != nil {
		return fmt.Errorf("encoding op %d: %w", op, err)
	}
	return c.t.Write(b)
}

// UpdateStatus sends a presence update.
func (s *Session) UpdateStatus(status StatusUpdate) error {
	return s.SendWS(OpPresenceUpdate, status)
}

// UpdateVoiceState joins, moves or leaves (empty channelID) voice in a
// guild, or in a private call when guildID is empty.
func (s *Session) UpdateVoiceState(guildID, channelID string, mute, deaf bool) error {
	return s.SendWS(OpVoiceStateUpdate, voiceStateData{
		GuildID:   nullable(guildID),
		ChannelID: nullable(channelID),
		SelfMute:  mute,
		SelfDeaf:  deaf,
	})
}

// RequestGuildMembers sends op 8 and returns the nonce that member chunks
// answering it will carry.
func (s *Session) RequestGuildMembers(req MemberRequest) (string, error) {
	if req.Nonce == "" {
		req.Nonce = uuid.NewString()
	}
	if req.Query == nil && len(req.UserIDs) == 0 {
		empty := ""
		req.Query = &empty
	}
	return req.Nonce, s.SendWS(OpRequestGuildMembers, req)
}
