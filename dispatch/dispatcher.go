// Package dispatch applies gateway dispatch events to the entity graph and
// publishes the resulting public events.
//
// Every handler resolves its target from the cache, captures the fields it
// is about to change, mutates the cache and emits one or more events. A
// handler never panics into the session read path: errors and panics are
// turned into Debug or Error events at the Dispatch boundary.
package dispatch

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"emperror.dev/errors"

	"github.com/EasterCompany/dex-discord-gateway/clock"
	"github.com/EasterCompany/dex-discord-gateway/events"
	"github.com/EasterCompany/dex-discord-gateway/health"
	"github.com/EasterCompany/dex-discord-gateway/state"
)

type handler func(d *Dispatcher, m events.Meta, raw json.RawMessage) error

var handlers = map[string]handler{
	"READY":   (*Dispatcher).ready,
	"RESUMED": (*Dispatcher).resumed,

	"GUILD_CREATE":        (*Dispatcher).guildCreate,
	"GUILD_UPDATE":        (*Dispatcher).guildUpdate,
	"GUILD_DELETE":        (*Dispatcher).guildDelete,
	"GUILD_SYNC":          (*Dispatcher).guildSync,
	"GUILD_MEMBER_ADD":    (*Dispatcher).memberAdd,
	"GUILD_MEMBER_UPDATE": (*Dispatcher).memberUpdate,
	"GUILD_MEMBER_REMOVE": (*Dispatcher).memberRemove,
	"GUILD_MEMBERS_CHUNK": (*Dispatcher).membersChunk,
	"GUILD_ROLE_CREATE":   (*Dispatcher).roleCreate,
	"GUILD_ROLE_UPDATE":   (*Dispatcher).roleUpdate,
	"GUILD_ROLE_DELETE":   (*Dispatcher).roleDelete,
	"GUILD_BAN_ADD":       (*Dispatcher).banAdd,
	"GUILD_BAN_REMOVE":    (*Dispatcher).banRemove,
	"GUILD_EMOJIS_UPDATE": (*Dispatcher).emojisUpdate,
	"CHANNEL_CREATE":      (*Dispatcher).channelCreate,
	"CHANNEL_UPDATE":      (*Dispatcher).channelUpdate,
	"CHANNEL_DELETE":      (*Dispatcher).channelDelete,
	"CHANNEL_PINS_UPDATE": (*Dispatcher).pinsUpdate,

	"CHANNEL_RECIPIENT_ADD":    (*Dispatcher).recipientAdd,
	"CHANNEL_RECIPIENT_REMOVE": (*Dispatcher).recipientRemove,
	"THREAD_CREATE":            (*Dispatcher).threadCreate,
	"THREAD_UPDATE":            (*Dispatcher).threadUpdate,
	"THREAD_DELETE":            (*Dispatcher).threadDelete,
	"THREAD_LIST_SYNC":         (*Dispatcher).threadListSync,
	"THREAD_MEMBER_UPDATE":     (*Dispatcher).threadMemberUpdate,
	"THREAD_MEMBERS_UPDATE":    (*Dispatcher).threadMembersUpdate,

	"MESSAGE_CREATE":                (*Dispatcher).messageCreate,
	"MESSAGE_UPDATE":                (*Dispatcher).messageUpdate,
	"MESSAGE_DELETE":                (*Dispatcher).messageDelete,
	"MESSAGE_DELETE_BULK":           (*Dispatcher).messageDeleteBulk,
	"MESSAGE_REACTION_ADD":          (*Dispatcher).reactionAdd,
	"MESSAGE_REACTION_REMOVE":       (*Dispatcher).reactionRemove,
	"MESSAGE_REACTION_REMOVE_ALL":   (*Dispatcher).reactionRemoveAll,
	"MESSAGE_REACTION_REMOVE_EMOJI": (*Dispatcher).reactionRemoveEmoji,

	"PRESENCE_UPDATE":     (*Dispatcher).presenceUpdate,
	"PRESENCES_REPLACE":   (*Dispatcher).presencesReplace,
	"USER_UPDATE":         (*Dispatcher).userUpdate,
	"RELATIONSHIP_ADD":    (*Dispatcher).relationshipAdd,
	"RELATIONSHIP_REMOVE": (*Dispatcher).relationshipRemove,
	"TYPING_START":        (*Dispatcher).typingStart,

	"VOICE_STATE_UPDATE":  (*Dispatcher).voiceStateUpdate,
	"VOICE_SERVER_UPDATE": (*Dispatcher).voiceServerUpdate,
	"CALL_CREATE":         (*Dispatcher).callCreate,
	"CALL_UPDATE":         (*Dispatcher).callUpdate,
	"CALL_DELETE":         (*Dispatcher).callDelete,

	"WEBHOOKS_UPDATE":    (*Dispatcher).webhooksUpdate,
	"INTERACTION_CREATE": (*Dispatcher).interactionCreate,
}

// Dispatcher routes dispatch events by name. It implements
// session.Dispatcher and must only be called from the event loop.
type Dispatcher struct {
	state    *state.State
	bus      *events.Bus
	clock    clock.Clock
	counters *health.Counters
	log      *slog.Logger

	// syncing holds shards between READY and shard readiness. Guilds
	// streamed in during that window are cached without events.
	syncing map[int]bool
}

type Option func(*Dispatcher)

func WithClock(c clock.Clock) Option { return func(d *Dispatcher) { d.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(d *Dispatcher) { d.log = l } }

func WithCounters(c *health.Counters) Option { return func(d *Dispatcher) { d.counters = c } }

// New returns a Dispatcher mutating st and publishing on bus.
func New(st *state.State, bus *events.Bus, opts ...Option) *Dispatcher {
	d := &Dispatcher{state: st, bus: bus, clock: clock.Real(), syncing: map[int]bool{}}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = slog.New(slog.DiscardHandler)
	}
	d.log = d.log.With(slog.String("component", "dispatch"))
	events.On(bus, func(e events.ShardReady) { delete(d.syncing, e.Shard) })
	events.On(bus, func(e events.ShardResume) { delete(d.syncing, e.Shard) })
	return d
}

// Handles reports whether name has a dedicated handler.
func Handles(name string) bool {
	_, ok := handlers[name]
	return ok
}

// Dispatch applies one dispatch event received on shard.
func (d *Dispatcher) Dispatch(shard int, name string, raw json.RawMessage) {
	meta := events.Meta{Shard: shard}
	defer func() {
		if r := recover(); r != nil {
			d.fail(meta, name, fmt.Errorf("handler panicked: %v", r))
		}
	}()

	h, ok := handlers[name]
	if !ok {
		d.log.Debug("unhandled dispatch", "event", name, "shard", shard)
		d.emit(events.Unknown{Meta: meta, Name: name, Data: slices.Clone(raw)})
		return
	}
	if err := h(d, meta, raw); err != nil {
		d.fail(meta, name, err)
	}
}

// fail converts a handler error into an event. Missing cache context is
// expected under eventual consistency and only reported as a diagnostic.
func (d *Dispatcher) fail(m events.Meta, name string, err error) {
	if errors.Is(err, state.ErrNotCached) {
		d.log.Debug("dispatch skipped", "event", name, "shard", m.Shard, "reason", err)
		d.emit(events.Debug{Meta: m, Message: name + ": " + err.Error()})
		return
	}
	d.counters.IncrementHandlerErrors()
	d.log.Error("dispatch failed", "event", name, "shard", m.Shard, "error", err)
	d.emit(events.Error{Meta: m, Err: fmt.Errorf("%s: %w", name, err)})
}

func (d *Dispatcher) warn(m events.Meta, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.log.Warn(msg, "shard", m.Shard)
	d.emit(events.Warn{Meta: m, Message: msg})
}

func (d *Dispatcher) emit(e events.Event) {
	d.counters.IncrementEventsPublished()
	d.bus.Emit(e)
}

func (d *Dispatcher) guild(id string) (*state.Guild, error) {
	g, ok := d.state.Guilds.Get(id)
	if !ok {
		return nil, missing("guild", id)
	}
	return g, nil
}

func missing(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, state.ErrNotCached)
}

func decode[T any](raw json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errors.WrapIf(err, "decode payload")
	}
	return &v, nil
}
