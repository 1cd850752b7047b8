package cache

import (
	"time"

	"github.com/EasterCompany/dex-discord-gateway/events"
	"github.com/EasterCompany/dex-discord-gateway/state"
)

// Record is the flat form of an event published to Redis. Entities are
// reduced to ids and a few display fields so subscribers never depend on
// the in-memory graph.
type Record struct {
	Type      events.Type `json:"type"`
	Shard     *int        `json:"shard,omitempty"`
	At        time.Time   `json:"at"`
	GuildID   string      `json:"guild_id,omitempty"`
	ChannelID string      `json:"channel_id,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
	Username  string      `json:"username,omitempty"`
	Content   string      `json:"content,omitempty"`
	Error     string      `json:"error,omitempty"`
}

type sharded interface{ ShardID() int }

// NewRecord flattens ev. It reads the cache, so it must run on the event
// loop.
func NewRecord(ev events.Event, at time.Time) Record {
	r := Record{Type: ev.Type(), At: at.UTC()}
	if s, ok := ev.(sharded); ok {
		id := s.ShardID()
		r.Shard = &id
	}

	switch e := ev.(type) {
	case events.MessageCreate:
		r.message(e.Message)
	case events.MessageUpdate:
		r.message(e.Message)
	case events.MessageDelete:
		r.message(e.Message)
		r.Content = ""
	case events.GuildCreate:
		r.guild(e.Guild)
	case events.GuildDelete:
		r.guild(e.Guild)
	case events.GuildMemberAdd:
		r.guild(e.Guild)
		r.member(e.Member)
	case events.GuildMemberRemove:
		r.guild(e.Guild)
		r.member(e.Member)
	case events.VoiceStateUpdate:
		r.guild(e.Guild)
		r.UserID, r.ChannelID = e.UserID, e.ChannelID
		r.member(e.Member)
	case events.ShardDisconnect:
		if e.Err != nil {
			r.Error = e.Err.Error()
		}
	case events.Error:
		if e.Err != nil {
			r.Error = e.Err.Error()
		}
	}
	return r
}

func (r *Record) guild(g *state.Guild) {
	if g != nil {
		r.GuildID = g.ID
	}
}

func (r *Record) member(m *state.Member) {
	if m == nil {
		return
	}
	r.UserID = m.ID
	if m.User != nil {
		r.Username = m.User.Username
	}
}

func (r *Record) message(m *state.Message) {
	if m == nil {
		return
	}
	r.MessageID, r.ChannelID, r.GuildID = m.ID, m.ChannelID, m.GuildID
	r.Content = m.Content
	if m.Author != nil {
		r.UserID, r.Username = m.Author.ID, m.Author.Username
	}
}
