package client

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"emperror.dev/errors"

	"github.com/EasterCompany/dex-discord-gateway/clock"
	"github.com/EasterCompany/dex-discord-gateway/events"
	"github.com/EasterCompany/dex-discord-gateway/health"
	"github.com/EasterCompany/dex-discord-gateway/session"
	"github.com/EasterCompany/dex-discord-gateway/voice"
)

// ErrShardNotOwned is returned when routing to a shard this process does
// not run.
const ErrShardNotOwned = errors.Sentinel("shard not owned by this client")

// ShardManager owns the sessions of one client. It spaces out connection
// attempts by a cooldown, aggregates shard readiness into client readiness
// and routes outbound state to the shard owning a guild.
//
// Shards are registered before connecting. Everything else runs on the
// event loop, apart from the methods documented as safe for concurrent use.
type ShardManager struct {
	loop     *session.Loop
	bus      *events.Bus
	clock    clock.Clock
	cooldown time.Duration
	log      *slog.Logger

	mu     sync.RWMutex
	shards map[int]*session.Session
	order  []int
	count  int

	// Loop-confined.
	queue         []*session.Session
	queued        map[int]bool
	lastAttempt   time.Time
	cooldownTimer *clock.Timer
	ready         map[int]bool
	allReady      bool
	closed        bool

	readyCh   chan struct{}
	readyOnce sync.Once
	fatalCh   chan struct{}
	fatalOnce sync.Once
	fatalErr  error
}

// NewShardManager returns a manager with no shards.
func NewShardManager(loop *session.Loop, bus *events.Bus, clk clock.Clock, cooldown time.Duration, logger *slog.Logger) *ShardManager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &ShardManager{
		loop:     loop,
		bus:      bus,
		clock:    clk,
		cooldown: cooldown,
		log:      logger.With(slog.String("component", "shards")),
		shards:   make(map[int]*session.Session),
		queued:   make(map[int]bool),
		ready:    make(map[int]bool),
		readyCh:  make(chan struct{}),
		fatalCh:  make(chan struct{}),
	}
}

// Add registers a session. Sessions must share the same shard count.
func (m *ShardManager) Add(s *session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shards[s.ID()]; !ok {
		m.order = append(m.order, s.ID())
	}
	m.shards[s.ID()] = s
	m.count = s.Count()
}

// Shard returns a session by shard id. Safe for concurrent use.
func (m *ShardManager) Shard(id int) (*session.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shards[id]
	return s, ok
}

// Len returns the number of owned shards. Safe for concurrent use.
func (m *ShardManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

func (m *ShardManager) sessions() []*session.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*session.Session, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.shards[id])
	}
	return out
}

// ShardForGuild returns the shard id a guild is assigned to. Guild-less
// traffic such as DM calls belongs to shard 0.
func ShardForGuild(guildID string, count int) int {
	if guildID == "" || count <= 1 {
		return 0
	}
	id, err := strconv.ParseUint(guildID, 10, 64)
	if err != nil {
		return 0
	}
	return int((id >> 22) % uint64(count))
}

// SessionForGuild returns the session owning guildID. Safe for concurrent
// use.
func (m *ShardManager) SessionForGuild(guildID string) (*session.Session, error) {
	m.mu.RLock()
	count := m.count
	m.mu.RUnlock()

	id := ShardForGuild(guildID, count)
	s, ok := m.Shard(id)
	if !ok {
		return nil, errors.WithDetails(ErrShardNotOwned, "shard", id, "guild", guildID)
	}
	return s, nil
}

// Route implements voice.Router.
func (m *ShardManager) Route(guildID string) (voice.Sender, error) {
	s, err := m.SessionForGuild(guildID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ShardStatuses reports every shard's state. Safe for concurrent use.
func (m *ShardManager) ShardStatuses() []health.ShardStatus {
	sessions := m.sessions()
	out := make([]health.ShardStatus, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, health.ShardStatus{ID: s.ID(), Status: s.Status().String(), Latency: s.Latency()})
	}
	return out
}

// Ready is closed once every shard has been ready at the same time.
func (m *ShardManager) Ready() <-chan struct{} { return m.readyCh }

// Fatal is closed when a shard stops for good; Err then reports why.
func (m *ShardManager) Fatal() <-chan struct{} { return m.fatalCh }

// Err returns the error that stopped a shard, once Fatal is closed.
func (m *ShardManager) Err() error {
	select {
	case <-m.fatalCh:
		return m.fatalErr
	default:
		return nil
	}
}

// Hooks returns the session callbacks that feed the manager.
func (m *ShardManager) Hooks() session.Hooks {
	return session.Hooks{
		OnConnect: func(s *session.Session) {
			m.bus.Emit(events.ShardConnect{Meta: meta(s)})
		},
		OnHello: func(s *session.Session, interval time.Duration) {
			m.bus.Emit(events.ShardHello{Meta: meta(s), Interval: interval})
		},
		OnPreReady: func(s *session.Session) {
			m.bus.Emit(events.ShardPreReady{Meta: meta(s)})
			m.tryConnect()
		},
		OnReady: func(s *session.Session) {
			m.bus.Emit(events.ShardReady{Meta: meta(s)})
			m.markReady(s)
		},
		OnResumed: func(s *session.Session) {
			m.bus.Emit(events.ShardResume{Meta: meta(s)})
			m.markReady(s)
			m.tryConnect()
		},
		OnDisconnect:   m.onDisconnect,
		RequestConnect: m.Enqueue,
	}
}

func meta(s *session.Session) events.Meta { return events.Meta{Shard: s.ID()} }

// ConnectAll queues every shard in id order.
func (m *ShardManager) ConnectAll() {
	for _, s := range m.sessions() {
		m.Enqueue(s)
	}
}

// Enqueue asks for s to be connected. Sessions able to resume skip the
// queue, since resuming does not count against the identify limit.
func (m *ShardManager) Enqueue(s *session.Session) {
	if m.closed {
		return
	}
	if s.SessionID() != "" {
		s.Connect()
		return
	}
	if m.queued[s.ID()] {
		return
	}
	m.queued[s.ID()] = true
	m.queue = append(m.queue, s)
	m.tryConnect()
}

// tryConnect starts the next queued identify when no shard is mid
// handshake and the cooldown since the previous attempt has elapsed.
// Otherwise a retry is scheduled for when the cooldown ends.
func (m *ShardManager) tryConnect() {
	if m.closed || len(m.queue) == 0 || m.cooldownTimer != nil {
		return
	}
	for _, s := range m.sessions() {
		if s.Status().Handshaking() {
			return
		}
	}
	if !m.lastAttempt.IsZero() {
		if wait := m.cooldown - m.clock.Now().Sub(m.lastAttempt); wait > 0 {
			m.cooldownTimer = m.clock.AfterFunc(wait, func() {
				m.loop.Post(func() {
					m.cooldownTimer = nil
					m.tryConnect()
				})
			})
			return
		}
	}

	for len(m.queue) > 0 {
		s := m.queue[0]
		m.queue = m.queue[1:]
		delete(m.queued, s.ID())

		switch s.Status() {
		case session.StatusDisconnected, session.StatusReconnecting:
		default:
			continue
		}
		m.lastAttempt = m.clock.Now()
		m.log.Debug("connecting shard", "shard", s.ID(), "queued", len(m.queue))
		s.Connect()
		return
	}
}

func (m *ShardManager) markReady(s *session.Session) {
	m.ready[s.ID()] = true
	if m.allReady || len(m.ready) < m.Len() {
		return
	}
	m.allReady = true
	m.log.Info("all shards ready", "shards", len(m.ready))
	m.bus.Emit(events.Ready{})
	m.readyOnce.Do(func() { close(m.readyCh) })
}

func (m *ShardManager) onDisconnect(s *session.Session, err error) {
	delete(m.ready, s.ID())
	m.bus.Emit(events.ShardDisconnect{Meta: meta(s), Err: err})

	var fatal *session.FatalCloseError
	if errors.As(err, &fatal) || errors.Is(err, session.ErrReconnectsExhausted) {
		m.log.Error("shard stopped", "shard", s.ID(), "error", err)
		m.bus.Emit(events.Error{Meta: meta(s), Err: err})
		m.fatalOnce.Do(func() {
			m.fatalErr = err
			close(m.fatalCh)
		})
	}

	if m.allReady && len(m.ready) == 0 {
		m.allReady = false
		m.log.Info("all shards disconnected")
		m.bus.Emit(events.Disconnect{})
	}
	m.tryConnect()
}

// Close disconnects every shard and drops queued connects.
func (m *ShardManager) Close() {
	m.closed = true
	m.cooldownTimer.Stop()
	m.cooldownTimer = nil
	m.queue = nil
	clear(m.queued)
	for _, s := range m.sessions() {
		s.Disconnect()
	}
}
