// Package voice tracks the account's voice sessions: one per guild plus one
// for a DM call. It sends voice state updates through the session owning
// the guild and collects the server assignment the gateway answers with.
// The UDP audio transport itself lives outside this package.
package voice

import (
	"log/slog"
	"sync"

	"emperror.dev/errors"

	"github.com/EasterCompany/dex-discord-gateway/events"
)

// CallKey identifies the connection to a DM or group call.
const CallKey = "call"

// ErrConnectionClosed is returned once a connection has been left or its
// guild removed.
const ErrConnectionClosed = errors.Sentinel("voice connection closed")

// Sender relays voice state updates to the gateway.
type Sender interface {
	UpdateVoiceState(guildID, channelID string, mute, deaf bool) error
}

// Router resolves the session that owns a guild. An empty guild id routes
// DM calls.
type Router interface {
	Route(guildID string) (Sender, error)
}

// Registry holds the active voice connections.
type Registry struct {
	router Router
	self   func() string
	log    *slog.Logger

	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewRegistry returns an empty registry. self reports the connected
// account id and is called from event handlers.
func NewRegistry(router Router, self func() string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		router: router,
		self:   self,
		log:    logger.With(slog.String("component", "voice")),
		conns:  make(map[string]*Connection),
	}
}

func keyFor(guildID string) string {
	if guildID == "" {
		return CallKey
	}
	return guildID
}

// Get returns the connection for a guild id or CallKey.
func (r *Registry) Get(key string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[key]
	return c, ok
}

// Len returns the number of tracked connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Join asks the gateway to connect the account to channelID. An empty
// guildID joins a DM call. Joining where a connection already exists moves
// it, keeping its speaker map.
func (r *Registry) Join(guildID, channelID string, mute, deaf bool) (*Connection, error) {
	sender, err := r.router.Route(guildID)
	if err != nil {
		return nil, err
	}
	key := keyFor(guildID)

	r.mu.Lock()
	conn, ok := r.conns[key]
	if !ok {
		conn = newConnection(key, guildID, channelID, mute, deaf)
		r.conns[key] = conn
	} else {
		conn.mu.Lock()
		conn.mute, conn.deaf = mute, deaf
		conn.mu.Unlock()
	}
	r.mu.Unlock()

	if err := sender.UpdateVoiceState(guildID, channelID, mute, deaf); err != nil {
		if !ok {
			r.drop(key, conn)
		}
		return nil, errors.WrapIff(err, "join voice channel %s", channelID)
	}
	r.log.Info("joining voice channel", "guild", guildID, "channel", channelID)
	return conn, nil
}

// Leave disconnects from voice in a guild, or from the DM call when
// guildID is empty.
func (r *Registry) Leave(guildID string) error {
	key := keyFor(guildID)
	conn, ok := r.Get(key)
	if !ok {
		return nil
	}
	sender, err := r.router.Route(guildID)
	if err != nil {
		return err
	}
	conn.mu.Lock()
	mute, deaf := conn.mute, conn.deaf
	conn.mu.Unlock()
	if err := sender.UpdateVoiceState(guildID, "", mute, deaf); err != nil {
		return errors.WrapIf(err, "leave voice")
	}
	r.drop(key, conn)
	r.log.Info("left voice", "guild", guildID)
	return nil
}

func (r *Registry) drop(key string, conn *Connection) {
	r.mu.Lock()
	if r.conns[key] == conn {
		delete(r.conns, key)
	}
	r.mu.Unlock()
	if err := conn.close(); err != nil {
		r.log.Warn("closing voice recorder", "key", key, "error", err)
	}
}

// Subscribe wires the registry to gateway events and returns a function
// that unsubscribes it.
func (r *Registry) Subscribe(bus *events.Bus) func() {
	unsubs := []func(){
		events.On(bus, r.onVoiceState),
		events.On(bus, r.onVoiceServer),
		events.On(bus, r.onGuildDelete),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (r *Registry) onVoiceState(ev events.VoiceStateUpdate) {
	if ev.UserID == "" || ev.UserID != r.self() {
		return
	}
	var guildID string
	if ev.Guild != nil {
		guildID = ev.Guild.ID
	}
	key := keyFor(guildID)
	conn, ok := r.Get(key)
	if !ok {
		return
	}
	if ev.ChannelID == "" {
		r.log.Debug("voice session ended", "key", key)
		r.drop(key, conn)
		return
	}
	conn.setState(ev.ChannelID, ev.SessionID)
}

func (r *Registry) onVoiceServer(ev events.VoiceServerUpdate) {
	conn, ok := r.Get(keyFor(ev.GuildID))
	if !ok {
		return
	}
	conn.setServer(ev.Token, ev.Endpoint)
	if conn.Ready() {
		r.log.Debug("voice server assigned", "key", conn.Key(), "endpoint", ev.Endpoint)
	}
}

func (r *Registry) onGuildDelete(ev events.GuildDelete) {
	if ev.Guild == nil {
		return
	}
	if conn, ok := r.Get(ev.Guild.ID); ok {
		r.drop(ev.Guild.ID, conn)
	}
}
