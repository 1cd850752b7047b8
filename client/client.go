// Package client ties the gateway together: it owns the event loop, the
// entity cache, the shard manager and the voice registry, and wraps the
// REST calls whose results feed back into the cache.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"

	"emperror.dev/errors"
	"github.com/google/uuid"

	"github.com/EasterCompany/dex-discord-gateway/clock"
	"github.com/EasterCompany/dex-discord-gateway/config"
	"github.com/EasterCompany/dex-discord-gateway/dispatch"
	"github.com/EasterCompany/dex-discord-gateway/events"
	"github.com/EasterCompany/dex-discord-gateway/health"
	"github.com/EasterCompany/dex-discord-gateway/rest"
	"github.com/EasterCompany/dex-discord-gateway/session"
	"github.com/EasterCompany/dex-discord-gateway/state"
	"github.com/EasterCompany/dex-discord-gateway/voice"
)

const (
	// ErrChannelNotFound is returned when acting on a channel the cache
	// does not hold.
	ErrChannelNotFound = errors.Sentinel("channel not found")

	// ErrGuildNotFound is returned when acting on a guild the cache does
	// not hold.
	ErrGuildNotFound = errors.Sentinel("guild not found")

	// ErrAlreadyConnected is returned by a second Connect.
	ErrAlreadyConnected = errors.Sentinel("client already connected")
)

const loopBuffer = 256

// Client is a sharded gateway connection with its cache.
type Client struct {
	cfg        config.Config
	id         string
	loop       *session.Loop
	state      *state.State
	bus        *events.Bus
	dispatcher *dispatch.Dispatcher
	shards     *ShardManager
	voice      *voice.Registry
	rest       rest.Requester
	dialer     session.Dialer
	clock      clock.Clock
	counters   *health.Counters
	presence   *session.StatusUpdate
	log        *slog.Logger

	sessionOpts []session.Option
	unsubVoice  func()
	connected   atomic.Bool
}

// Option customises a Client.
type Option func(*Client)

// WithRequester replaces the discordgo REST adapter.
func WithRequester(r rest.Requester) Option { return func(c *Client) { c.rest = r } }

// WithDialer replaces the websocket dialer.
func WithDialer(d session.Dialer) Option { return func(c *Client) { c.dialer = d } }

// WithClock replaces the wall clock for every timer.
func WithClock(clk clock.Clock) Option { return func(c *Client) { c.clock = clk } }

// WithLogger sets the parent logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

// WithCounters shares activity counters with the caller.
func WithCounters(h *health.Counters) Option { return func(c *Client) { c.counters = h } }

// WithPresence sets the presence sent on identify.
func WithPresence(p session.StatusUpdate) Option { return func(c *Client) { c.presence = &p } }

// WithSessionOptions passes extra options to every session.
func WithSessionOptions(opts ...session.Option) Option {
	return func(c *Client) { c.sessionOpts = append(c.sessionOpts, opts...) }
}

// New builds a client and starts its event loop. Nothing connects until
// Connect is called.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	c := &Client{
		cfg:   cfg,
		id:    uuid.NewString(),
		clock: clock.Real(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}
	if c.counters == nil {
		c.counters = &health.Counters{}
	}
	c.log = c.log.With(slog.String("client", c.id))

	if c.rest == nil {
		r, err := rest.NewDiscordgoRequester(cfg.Token, c.log)
		if err != nil {
			return nil, err
		}
		c.rest = r
	}
	if c.dialer == nil {
		c.dialer = session.WebsocketDialer{
			HandshakeTimeout: cfg.ConnectionTimeout,
			Compress:         cfg.Compress,
			Logger:           c.log,
		}
	}

	c.loop = session.NewLoop(loopBuffer)
	c.state = state.New(cfg.MessageLimit, c.log)
	c.bus = events.NewBus(c.log)
	c.dispatcher = dispatch.New(c.state, c.bus,
		dispatch.WithClock(c.clock),
		dispatch.WithLogger(c.log),
		dispatch.WithCounters(c.counters),
	)
	c.shards = NewShardManager(c.loop, c.bus, c.clock, cfg.ConnectCooldown, c.log)
	c.voice = voice.NewRegistry(c.shards, c.state.SelfID, c.log)
	c.unsubVoice = c.voice.Subscribe(c.bus)

	go c.loop.Run()
	return c, nil
}

// Events returns the bus public events are emitted on. Handlers run on the
// event loop and may read the cache directly.
func (c *Client) Events() *events.Bus { return c.bus }

// Shards returns the shard manager.
func (c *Client) Shards() *ShardManager { return c.shards }

// Voice returns the voice registry.
func (c *Client) Voice() *voice.Registry { return c.voice }

// Counters returns the activity counters.
func (c *Client) Counters() *health.Counters { return c.counters }

func (c *Client) sessionConfig() session.Config {
	return session.Config{
		Token:                c.cfg.Token,
		Intents:              c.cfg.Intents,
		LargeThreshold:       c.cfg.LargeThreshold,
		Compress:             c.cfg.Compress,
		Presence:             c.presence,
		GuildCreateTimeout:   c.cfg.GuildCreateTimeout,
		ConnectionTimeout:    c.cfg.ConnectionTimeout,
		InvalidSessionDelay:  c.cfg.InvalidSessionDelay,
		MaxReconnectAttempts: c.cfg.MaxReconnectAttempts,
	}
}

// Connect looks up the gateway, creates the configured shards and queues
// them for connection. It returns once the shards are queued; use
// WaitReady to wait for them.
func (c *Client) Connect(ctx context.Context) error {
	if !c.connected.CompareAndSwap(false, true) {
		return ErrAlreadyConnected
	}
	gw, err := rest.GatewayBot(ctx, c.rest)
	if err != nil {
		c.connected.Store(false)
		return errors.WrapIf(err, "fetch gateway")
	}

	ids, count := c.cfg.Shards(gw.Shards)
	if limit := gw.SessionStartLimit; limit.Total > 0 && limit.Remaining < len(ids) {
		c.log.Warn("session start limit too low for shard count",
			"remaining", limit.Remaining, "shards", len(ids), "reset_after_ms", limit.ResetAfter)
	}
	c.log.Info("connecting shards", "shards", ids, "count", count, "url", gw.URL)

	cfg := c.sessionConfig()
	sessions := make([]*session.Session, 0, len(ids))
	for _, id := range ids {
		opts := append([]session.Option{
			session.WithClock(c.clock),
			session.WithLogger(c.log),
			session.WithHooks(c.shards.Hooks()),
			session.WithCounters(c.counters),
		}, c.sessionOpts...)
		s := session.New(id, count, cfg, c.loop, c.dialer, c.dispatcher, opts...)
		c.shards.Add(s)
		sessions = append(sessions, s)
	}

	return c.loop.Do(ctx, func() {
		for _, s := range sessions {
			s.SetGatewayURL(gw.URL)
		}
		c.shards.ConnectAll()
	})
}

// WaitReady blocks until every shard is ready, a shard fails for good or
// ctx ends.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.shards.Ready():
		return nil
	case <-c.shards.Fatal():
		return c.shards.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the event loop with exclusive access to the cache.
// Entities must not be retained past fn unless only read from event
// handlers or later Do calls.
func (c *Client) Do(ctx context.Context, fn func(*state.State)) error {
	return c.loop.Do(ctx, func() { fn(c.state) })
}

// Health reports shard, counter and host status. cache may be nil.
func (c *Client) Health(ctx context.Context, cache health.Pinger) health.Report {
	return health.Collect(ctx, c.shards.ShardStatuses(), c.counters, cache)
}

// GetChannel returns a cached channel.
func (c *Client) GetChannel(ctx context.Context, id string) (state.Channel, error) {
	var (
		ch state.Channel
		ok bool
	)
	if err := c.Do(ctx, func(st *state.State) { ch, ok = st.Channel(id) }); err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.WithDetails(ErrChannelNotFound, "channel", id)
	}
	return ch, nil
}

// MessageSend is the body of a message create.
type MessageSend struct {
	Content string `json:"content,omitempty"`
	TTS     bool   `json:"tts,omitempty"`
	Nonce   string `json:"nonce,omitempty"`
}

func channelPath(channelID string, parts ...string) string {
	p := "/channels/" + url.PathEscape(channelID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// CreateMessage posts a message. The gateway echoes it as MESSAGE_CREATE,
// which caches it; the returned message is resolved but not stored.
func (c *Client) CreateMessage(ctx context.Context, channelID string, msg MessageSend) (*state.Message, error) {
	if _, err := c.GetChannel(ctx, channelID); err != nil {
		return nil, err
	}
	p, err := rest.Decode[state.MessagePayload](ctx, c.rest, http.MethodPost, channelPath(channelID, "messages"), msg)
	if err != nil {
		return nil, err
	}
	var m *state.Message
	if err := c.Do(ctx, func(st *state.State) { m = st.BuildMessage(&p) }); err != nil {
		return nil, err
	}
	return m, nil
}

// EditMessage replaces a message's content and refreshes the cached copy.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID, content string) (*state.Message, error) {
	if _, err := c.GetChannel(ctx, channelID); err != nil {
		return nil, err
	}
	body := map[string]string{"content": content}
	p, err := rest.Decode[state.MessagePayload](ctx, c.rest, http.MethodPatch, channelPath(channelID, "messages", url.PathEscape(messageID)), body)
	if err != nil {
		return nil, err
	}

	var (
		m        *state.Message
		cacheErr error
	)
	err = c.Do(ctx, func(st *state.State) {
		m, _, cacheErr = st.UpdateMessage(&p)
		if m == nil {
			m = st.BuildMessage(&p)
		}
	})
	if err != nil {
		return nil, err
	}
	if cacheErr != nil {
		c.log.Debug("edited message not cached", "channel", channelID, "message", messageID, "error", cacheErr)
	}
	return m, nil
}

// DeleteMessage deletes a message and drops it from the cache.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if _, err := c.GetChannel(ctx, channelID); err != nil {
		return err
	}
	if _, err := c.rest.Request(ctx, http.MethodDelete, channelPath(channelID, "messages", url.PathEscape(messageID)), nil); err != nil {
		return err
	}
	return c.Do(ctx, func(st *state.State) { st.RemoveMessage(channelID, messageID) })
}

// AddReaction reacts to a message as the current user.
func (c *Client) AddReaction(ctx context.Context, channelID, messageID string, emoji state.Emoji) error {
	if _, err := c.GetChannel(ctx, channelID); err != nil {
		return err
	}
	path := channelPath(channelID, "messages", url.PathEscape(messageID), "reactions", url.PathEscape(emoji.APIName()), "@me")
	_, err := c.rest.Request(ctx, http.MethodPut, path, nil)
	return err
}

// EditNickname changes the current user's nickname in a guild and
// refreshes the cached member.
func (c *Client) EditNickname(ctx context.Context, guildID, nick string) (*state.Member, error) {
	var known bool
	if err := c.Do(ctx, func(st *state.State) { known = st.Guilds.Has(guildID) }); err != nil {
		return nil, err
	}
	if !known {
		return nil, errors.WithDetails(ErrGuildNotFound, "guild", guildID)
	}

	path := fmt.Sprintf("/guilds/%s/members/@me", url.PathEscape(guildID))
	p, err := rest.Decode[state.MemberPayload](ctx, c.rest, http.MethodPatch, path, map[string]string{"nick": nick})
	if err != nil {
		return nil, err
	}

	var member *state.Member
	err = c.Do(ctx, func(st *state.State) {
		g, ok := st.Guilds.Get(guildID)
		if !ok {
			return
		}
		if p.User == nil && st.Self != nil {
			p.User = &state.UserPayload{ID: st.Self.ID}
		}
		member, _ = st.UpdateMember(g, &p)
	})
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, errors.WithDetails(ErrGuildNotFound, "guild", guildID)
	}
	return member, nil
}

// JoinVoiceChannel connects the current user to a voice channel, or to a
// DM call when guildID is empty, and waits for the voice server
// assignment.
func (c *Client) JoinVoiceChannel(ctx context.Context, guildID, channelID string, mute, deaf bool) (*voice.Connection, error) {
	if _, err := c.GetChannel(ctx, channelID); err != nil {
		return nil, err
	}
	conn, err := c.voice.Join(guildID, channelID, mute, deaf)
	if err != nil {
		return nil, err
	}
	if err := conn.Wait(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

// LeaveVoiceChannel disconnects from voice in a guild, or from the DM call
// when guildID is empty.
func (c *Client) LeaveVoiceChannel(guildID string) error {
	return c.voice.Leave(guildID)
}

// EditStatus sends a presence update on every shard.
func (c *Client) EditStatus(status session.StatusUpdate) error {
	var errs []error
	for _, s := range c.shards.sessions() {
		if err := s.UpdateStatus(status); err != nil {
			errs = append(errs, errors.WrapIff(err, "shard %d", s.ID()))
		}
	}
	return errors.Combine(errs...)
}

// FetchMembers requests guild members over the gateway and collects every
// chunk answering the request.
func (c *Client) FetchMembers(ctx context.Context, req session.MemberRequest) ([]*state.Member, error) {
	s, err := c.shards.SessionForGuild(req.GuildID)
	if err != nil {
		return nil, err
	}
	req.Nonce = uuid.NewString()

	var (
		members []*state.Member
		last    bool
	)
	done := make(chan struct{})
	unsub := events.On(c.bus, func(ev events.GuildMemberChunk) {
		if ev.Nonce != req.Nonce || last {
			return
		}
		members = append(members, ev.Members...)
		if ev.ChunkIndex+1 >= ev.ChunkCount {
			last = true
			close(done)
		}
	})
	defer unsub()

	if _, err := s.RequestGuildMembers(req); err != nil {
		return nil, errors.WrapIf(err, "request guild members")
	}
	select {
	case <-done:
		return members, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close disconnects every shard and stops the event loop.
func (c *Client) Close(ctx context.Context) error {
	c.unsubVoice()
	err := c.loop.Do(ctx, c.shards.Close)
	c.loop.Stop()
	if errors.Is(err, session.ErrLoopStopped) {
		return nil
	}
	return err
}
