// Package state holds the in-memory entity graph: guilds own their
// channels, members, roles and voice states; users are shared across the
// graph; DMs, group DMs and relationships hang off the State itself.
//
// Entities reference each other by id and are resolved through State,
// never through back-pointers. State is not safe for concurrent use and
// must only be touched from the event loop.
package state

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"emperror.dev/errors"

	"github.com/EasterCompany/dex-discord-gateway/collection"
)

const (
	// ErrNotCached marks lookups that failed because the gateway
	// referenced an entity this cache has not seen.
	ErrNotCached = errors.Sentinel("not cached")

	// ErrUntrackedCall is returned when a user leaves a call that no
	// cached channel knows about.
	ErrUntrackedCall = errors.Sentinel("voice state left an untracked call")

	// ErrNoActiveCall is returned when a call update targets a channel
	// without a call in progress.
	ErrNoActiveCall = errors.Sentinel("channel has no active call")

	// ErrNotMessageable is returned when messages target a channel
	// that does not hold messages.
	ErrNotMessageable = errors.Sentinel("channel does not hold messages")
)

func notCached(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotCached)
}

// State is the entity graph.
type State struct {
	Self              *User
	Guilds            *collection.Collection[*Guild]
	UnavailableGuilds *collection.Collection[*UnavailableGuild]
	Users             *collection.Collection[*User]
	PrivateChannels   *collection.Collection[*PrivateChannel]
	GroupChannels     *collection.Collection[*GroupChannel]
	Relationships     *collection.Collection[*Relationship]

	channelGuild map[string]string
	dmByUser     map[string]string
	messageLimit int
	log          *slog.Logger
}

// New returns an empty State. messageLimit bounds every channel's message
// cache; zero disables message caching.
func New(messageLimit int, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &State{
		Guilds:            collection.New[*Guild](),
		UnavailableGuilds: collection.New[*UnavailableGuild](),
		Users:             collection.New[*User](),
		PrivateChannels:   collection.New[*PrivateChannel](),
		GroupChannels:     collection.New[*GroupChannel](),
		Relationships:     collection.New[*Relationship](),
		channelGuild:      make(map[string]string),
		dmByUser:          make(map[string]string),
		messageLimit:      messageLimit,
		log:               logger.With(slog.String("component", "state")),
	}
}

// MessageLimit returns the per-channel message cache bound.
func (s *State) MessageLimit() int { return s.messageLimit }

// SelfID returns the id of the connected account, or "" before READY.
func (s *State) SelfID() string {
	if s.Self == nil {
		return ""
	}
	return s.Self.ID
}

// UpsertUser merges p into the shared user cache.
func (s *State) UpsertUser(p *UserPayload) *User {
	u, err := s.Users.Upsert(p.ID, func() *User { return newUser(p) }, func(u *User) { u.update(p) })
	if err != nil {
		return nil
	}
	return u
}

// UpdateUser merges p and reports the previous values and whether any
// visible field changed. Unknown users are created and reported unchanged.
func (s *State) UpdateUser(p *UserPayload) (*User, UserSnapshot, bool) {
	u, ok := s.Users.Get(p.ID)
	if !ok {
		u = s.UpsertUser(p)
		return u, UserSnapshot{}, false
	}
	old := u.Snapshot()
	changed := u.update(p)
	return u, old, changed
}

// SetSelf records the connected account.
func (s *State) SetSelf(p *UserPayload) *User {
	s.Self = s.UpsertUser(p)
	return s.Self
}

// GuildIDOf returns the guild owning a channel or thread, or "".
func (s *State) GuildIDOf(channelID string) string { return s.channelGuild[channelID] }

// Channel resolves any cached channel by id.
func (s *State) Channel(id string) (Channel, bool) {
	if gid, ok := s.channelGuild[id]; ok {
		if g, ok := s.Guilds.Get(gid); ok {
			if ch, ok := g.Channels.Get(id); ok {
				return ch, true
			}
			if th, ok := g.Threads.Get(id); ok {
				return th, true
			}
		}
	}
	if dm, ok := s.PrivateChannels.Get(id); ok {
		return dm, true
	}
	if group, ok := s.GroupChannels.Get(id); ok {
		return group, true
	}
	return nil, false
}

// PrivateChannelFor returns the cached DM with userID.
func (s *State) PrivateChannelFor(userID string) (*PrivateChannel, bool) {
	id, ok := s.dmByUser[userID]
	if !ok {
		return nil, false
	}
	return s.PrivateChannels.Get(id)
}

// Guild lifecycle

// AddUnavailableGuild records a guild known only by id.
func (s *State) AddUnavailableGuild(id string, shardID int) *UnavailableGuild {
	ug, _ := s.UnavailableGuilds.Replace(&UnavailableGuild{ID: id, ShardID: shardID})
	return ug
}

// CreateGuild builds (or refreshes) a guild from a full payload. It reports
// whether the guild was previously known as unavailable. Voice states whose
// member is not cached yet are buffered on the guild.
func (s *State) CreateGuild(p *GuildPayload, shardID int) (*Guild, bool) {
	_, wasUnavailable := s.UnavailableGuilds.Remove(p.ID)
	g, _ := s.Guilds.Upsert(p.ID, func() *Guild { return newGuild(p.ID, shardID) }, nil)
	g.ShardID = shardID
	g.update(p)

	for i := range p.Roles {
		s.UpsertRole(g, &p.Roles[i])
	}
	for i := range p.Channels {
		if ch, known := s.UpsertGuildChannel(g, &p.Channels[i]); !known {
			s.log.Warn("unknown channel type", "guild", g.ID, "channel", ch.Key(), "type", ch.Kind())
		}
	}
	for i := range p.Threads {
		s.UpsertGuildChannel(g, &p.Threads[i])
	}
	for i := range p.Members {
		s.UpsertMember(g, &p.Members[i])
	}
	for i := range p.Presences {
		pp := &p.Presences[i]
		if _, ok := g.Members.Get(pp.User.ID); !ok {
			s.log.Debug("presence without member", "guild", g.ID, "user", pp.User.ID)
			continue
		}
		s.ApplyPresence(g, pp)
	}
	for i := range p.VoiceStates {
		vp := p.VoiceStates[i]
		vp.GuildID = g.ID
		if _, ok := g.Members.Get(vp.UserID); !ok && vp.Member == nil {
			g.pendingVoiceStates = append(g.pendingVoiceStates, vp)
			continue
		}
		s.ApplyVoiceState(g, &vp)
	}
	return g, wasUnavailable
}

// UpdateGuild applies a partial guild update.
func (s *State) UpdateGuild(p *GuildPayload) (*Guild, GuildSnapshot, error) {
	g, ok := s.Guilds.Get(p.ID)
	if !ok {
		return nil, GuildSnapshot{}, notCached("guild", p.ID)
	}
	old := g.Snapshot()
	g.update(p)
	for i := range p.Roles {
		s.UpsertRole(g, &p.Roles[i])
	}
	return g, old, nil
}

// RemoveGuild drops a guild and its channel index entries.
func (s *State) RemoveGuild(id string) (*Guild, bool) {
	g, ok := s.Guilds.Remove(id)
	if !ok {
		return nil, false
	}
	for _, chID := range g.Channels.Keys() {
		delete(s.channelGuild, chID)
	}
	for _, thID := range g.Threads.Keys() {
		delete(s.channelGuild, thID)
	}
	return g, true
}

// MarkGuildUnavailable moves a guild into the unavailable set, returning
// the dropped guild if it was cached.
func (s *State) MarkGuildUnavailable(id string, shardID int) (*UnavailableGuild, *Guild) {
	g, _ := s.RemoveGuild(id)
	if g != nil {
		shardID = g.ShardID
	}
	return s.AddUnavailableGuild(id, shardID), g
}

// DrainPendingVoiceStates applies buffered voice states whose member is now
// cached. When final is set, the remaining unresolved entries are dropped.
func (s *State) DrainPendingVoiceStates(g *Guild, final bool) []*Member {
	var applied []*Member
	var remaining []VoiceStatePayload
	for i := range g.pendingVoiceStates {
		vp := g.pendingVoiceStates[i]
		if _, ok := g.Members.Get(vp.UserID); !ok {
			remaining = append(remaining, vp)
			continue
		}
		if _, ok := g.Channels.Get(vp.ChannelID); !ok {
			s.log.Debug("voice state for unknown channel", "guild", g.ID, "channel", vp.ChannelID)
		}
		if m, _, err := s.ApplyVoiceState(g, &vp); err == nil {
			applied = append(applied, m)
		}
	}
	if final {
		remaining = nil
	}
	g.pendingVoiceStates = remaining
	return applied
}

// Roles

// UpsertRole merges a role payload, returning the previous values when the
// role was already cached.
func (s *State) UpsertRole(g *Guild, p *RolePayload) (*Role, *RoleSnapshot) {
	if r, ok := g.Roles.Get(p.ID); ok {
		old := r.Snapshot()
		r.update(p)
		return r, &old
	}
	r, _ := g.Roles.Add(newRole(g.ID, p))
	return r, nil
}

// RemoveRole drops a role and strips it from every member.
func (s *State) RemoveRole(g *Guild, roleID string) (*Role, bool) {
	r, ok := g.Roles.Remove(roleID)
	g.Members.Each(func(m *Member) bool {
		m.Roles = slices.DeleteFunc(m.Roles, func(id string) bool { return id == roleID })
		return true
	})
	return r, ok
}

// Channels

// UpsertGuildChannel updates a guild channel or thread in place, or
// builds it. known is false when the channel type is not modelled.
func (s *State) UpsertGuildChannel(g *Guild, p *ChannelPayload) (Channel, bool) {
	if p.GuildID == "" {
		p.GuildID = g.ID
	}
	if th, ok := g.Threads.Get(p.ID); ok && th.Kind() == p.Type {
		th.update(p)
		return th, true
	}
	if ch, ok := g.Channels.Get(p.ID); ok && ch.Kind() == p.Type {
		ch.update(p)
		return ch, true
	}
	return s.rebuildGuildChannel(g, p)
}

// rebuildGuildChannel drops whatever is cached under p.ID and inserts a
// fresh variant into Threads or Channels depending on the new type.
func (s *State) rebuildGuildChannel(g *Guild, p *ChannelPayload) (Channel, bool) {
	g.Threads.Remove(p.ID)
	g.Channels.Remove(p.ID)
	ch, known := s.buildChannel(p)
	if th, ok := ch.(*ThreadChannel); ok {
		g.Threads.Add(th)
	} else {
		g.Channels.Add(ch)
	}
	s.channelGuild[p.ID] = g.ID
	return ch, known
}

// AddPrivateChannel caches a DM or group DM. created is false when the
// channel was already cached; known is false for unmodelled types, which
// are returned but not stored.
func (s *State) AddPrivateChannel(p *ChannelPayload) (ch Channel, created, known bool) {
	switch p.Type {
	case ChannelTypeDM:
		if dm, ok := s.PrivateChannels.Get(p.ID); ok {
			return dm, false, true
		}
		built, _ := s.buildChannel(p)
		dm := built.(*PrivateChannel)
		s.PrivateChannels.Add(dm)
		if dm.Recipient != nil {
			s.dmByUser[dm.Recipient.ID] = dm.ID
		}
		return dm, true, true
	case ChannelTypeGroupDM:
		if group, ok := s.GroupChannels.Get(p.ID); ok {
			return group, false, true
		}
		built, _ := s.buildChannel(p)
		group := built.(*GroupChannel)
		s.GroupChannels.Add(group)
		return group, true, true
	}
	built, known := s.buildChannel(p)
	return built, true, known
}

// UpdateChannel applies a channel update. When the channel's type changed,
// the old variant is destroyed and a fresh one of the new type is built
// and inserted under the same id.
func (s *State) UpdateChannel(p *ChannelPayload) (Channel, ChannelSnapshot, error) {
	gid := p.GuildID
	if gid == "" {
		gid = s.channelGuild[p.ID]
	}
	if gid != "" {
		g, ok := s.Guilds.Get(gid)
		if !ok {
			return nil, ChannelSnapshot{}, notCached("guild", gid)
		}
		if p.GuildID == "" {
			p.GuildID = gid
		}
		var existing Channel
		if th, ok := g.Threads.Get(p.ID); ok {
			existing = th
		} else if ch, ok := g.Channels.Get(p.ID); ok {
			existing = ch
		} else {
			return nil, ChannelSnapshot{}, notCached("channel", p.ID)
		}
		old := existing.Snapshot()
		if existing.Kind() != p.Type {
			rebuilt, known := s.rebuildGuildChannel(g, p)
			if !known {
				s.log.Warn("channel changed to unknown type", "channel", p.ID, "type", p.Type)
			}
			return rebuilt, old, nil
		}
		existing.update(p)
		return existing, old, nil
	}

	if group, ok := s.GroupChannels.Get(p.ID); ok {
		old := group.Snapshot()
		group.update(p)
		if len(p.Recipients) > 0 {
			group.Recipients.Clear()
			for i := range p.Recipients {
				group.Recipients.Add(s.UpsertUser(&p.Recipients[i]))
			}
		}
		return group, old, nil
	}
	if dm, ok := s.PrivateChannels.Get(p.ID); ok {
		old := dm.Snapshot()
		dm.update(p)
		return dm, old, nil
	}
	return nil, ChannelSnapshot{}, notCached("channel", p.ID)
}

// RemoveChannel drops a channel or thread from the cache.
func (s *State) RemoveChannel(p *ChannelPayload) (Channel, error) {
	gid := p.GuildID
	if gid == "" {
		gid = s.channelGuild[p.ID]
	}
	if gid != "" {
		g, ok := s.Guilds.Get(gid)
		if !ok {
			return nil, notCached("guild", gid)
		}
		delete(s.channelGuild, p.ID)
		if th, ok := g.Threads.Remove(p.ID); ok {
			return th, nil
		}
		if ch, ok := g.Channels.Remove(p.ID); ok {
			return ch, nil
		}
		return nil, notCached("channel", p.ID)
	}
	if dm, ok := s.PrivateChannels.Remove(p.ID); ok {
		if dm.Recipient != nil {
			delete(s.dmByUser, dm.Recipient.ID)
		}
		return dm, nil
	}
	if group, ok := s.GroupChannels.Remove(p.ID); ok {
		return group, nil
	}
	return nil, notCached("channel", p.ID)
}

// AddRecipient adds a user to a group DM.
func (s *State) AddRecipient(channelID string, p *UserPayload) (*GroupChannel, *User, error) {
	group, ok := s.GroupChannels.Get(channelID)
	if !ok {
		return nil, nil, notCached("group channel", channelID)
	}
	u := s.UpsertUser(p)
	group.Recipients.Add(u)
	return group, u, nil
}

// RemoveRecipient removes a user from a group DM.
func (s *State) RemoveRecipient(channelID string, p *UserPayload) (*GroupChannel, *User, error) {
	group, ok := s.GroupChannels.Get(channelID)
	if !ok {
		return nil, nil, notCached("group channel", channelID)
	}
	u, ok := group.Recipients.Remove(p.ID)
	if !ok {
		u = s.UpsertUser(p)
	}
	return group, u, nil
}

// Members and presences

// UpsertMember merges a member payload. The member's user is added to the
// shared user cache first, so a cached member always resolves its user.
func (s *State) UpsertMember(g *Guild, p *MemberPayload) *Member {
	if p.User == nil || p.User.ID == "" {
		return nil
	}
	user := s.UpsertUser(p.User)
	m, _ := g.Members.Upsert(user.ID, func() *Member {
		m := &Member{ID: user.ID, GuildID: g.ID, User: user}
		m.update(p)
		return m
	}, func(m *Member) {
		m.User = user
		m.update(p)
	})
	return m
}

// UpdateMember merges a member update and returns the previous values when
// the member was cached.
func (s *State) UpdateMember(g *Guild, p *MemberPayload) (*Member, *MemberSnapshot) {
	var old *MemberSnapshot
	if p.User != nil {
		if m, ok := g.Members.Get(p.User.ID); ok {
			snap := m.Snapshot()
			old = &snap
		}
	}
	return s.UpsertMember(g, p), old
}

// RemoveMember drops a member and its voice state.
func (s *State) RemoveMember(g *Guild, userID string) (*Member, bool) {
	g.VoiceStates.Remove(userID)
	return g.Members.Remove(userID)
}

// ApplyPresence updates a member's presence. A missing member is created
// when the payload carries a full user; otherwise ErrNotCached is returned.
// The previous presence is nil when the member was not cached.
func (s *State) ApplyPresence(g *Guild, p *PresencePayload) (*Member, *Presence, error) {
	if m, ok := g.Members.Get(p.User.ID); ok {
		old := m.PresenceSnapshot()
		m.updatePresence(p)
		return m, &old, nil
	}
	if !p.User.Username.Present() {
		return nil, nil, notCached("member", p.User.ID)
	}
	m := s.UpsertMember(g, &MemberPayload{User: &p.User, Nick: p.Nick, Roles: p.Roles})
	if m == nil {
		return nil, nil, notCached("member", p.User.ID)
	}
	m.updatePresence(p)
	return m, nil, nil
}

// ApplyRelationshipPresence updates the presence of a relationship. ok is
// false when no relationship exists for the user.
func (s *State) ApplyRelationshipPresence(p *PresencePayload) (*Relationship, Presence, bool) {
	r, ok := s.Relationships.Get(p.User.ID)
	if !ok {
		return nil, Presence{}, false
	}
	old := r.PresenceSnapshot()
	r.Presence.update(p)
	return r, old, true
}

// Voice

// ApplyVoiceState records a guild voice state and links it to the member.
// An empty channel id removes the voice state. The previous voice state is
// nil when the member was not connected.
func (s *State) ApplyVoiceState(g *Guild, p *VoiceStatePayload) (*Member, *VoiceState, error) {
	if p.Member != nil {
		s.UpsertMember(g, p.Member)
	}
	m, ok := g.Members.Get(p.UserID)
	if !ok {
		return nil, nil, notCached("member", p.UserID)
	}
	var old *VoiceState
	if m.VoiceState != nil {
		snap := m.VoiceState.Snapshot()
		old = &snap
	}
	if p.ChannelID == "" {
		g.VoiceStates.Remove(p.UserID)
		m.VoiceState = nil
		return m, old, nil
	}
	vs, _ := g.VoiceStates.Upsert(p.UserID, func() *VoiceState { return newVoiceState(p) }, func(vs *VoiceState) { vs.update(p) })
	m.VoiceState = vs
	return m, old, nil
}

// ApplyCallVoiceState records a voice state outside any guild. A voice
// state without a channel is resolved against every cached call; leaving
// a call nobody tracks returns ErrUntrackedCall.
func (s *State) ApplyCallVoiceState(p *VoiceStatePayload) (*Call, *VoiceState, error) {
	if p.ChannelID == "" {
		for _, carrier := range s.callCarriers() {
			call := carrier.ActiveCall()
			if call == nil {
				continue
			}
			if vs, ok := call.VoiceStates.Remove(p.UserID); ok {
				old := vs.Snapshot()
				return call, &old, nil
			}
		}
		return nil, nil, fmt.Errorf("user %s: %w", p.UserID, ErrUntrackedCall)
	}
	carrier, err := s.CallCarrier(p.ChannelID)
	if err != nil {
		return nil, nil, err
	}
	call := carrier.ActiveCall()
	if call == nil {
		return nil, nil, notCached("call", p.ChannelID)
	}
	var old *VoiceState
	if vs, ok := call.VoiceStates.Get(p.UserID); ok {
		snap := vs.Snapshot()
		old = &snap
	}
	call.VoiceStates.Upsert(p.UserID, func() *VoiceState { return newVoiceState(p) }, func(vs *VoiceState) { vs.update(p) })
	return call, old, nil
}

func (s *State) callCarriers() []CallCarrier {
	out := make([]CallCarrier, 0, s.PrivateChannels.Len()+s.GroupChannels.Len())
	s.PrivateChannels.Each(func(c *PrivateChannel) bool {
		out = append(out, c)
		return true
	})
	s.GroupChannels.Each(func(c *GroupChannel) bool {
		out = append(out, c)
		return true
	})
	return out
}

// CallCarrier resolves a DM or group DM by id.
func (s *State) CallCarrier(channelID string) (CallCarrier, error) {
	if dm, ok := s.PrivateChannels.Get(channelID); ok {
		return dm, nil
	}
	if group, ok := s.GroupChannels.Get(channelID); ok {
		return group, nil
	}
	return nil, notCached("channel", channelID)
}

// StartCall records a new call, or updates the active one. The previous
// values are returned when a call was already active.
func (s *State) StartCall(p *CallPayload) (*Call, *CallSnapshot, error) {
	carrier, err := s.CallCarrier(p.ChannelID)
	if err != nil {
		return nil, nil, err
	}
	if call := carrier.ActiveCall(); call != nil {
		old := call.Snapshot()
		call.update(p)
		return call, &old, nil
	}
	call := newCall(p)
	carrier.setCall(call)
	return call, nil, nil
}

// UpdateCall applies an update to the active call of a channel.
func (s *State) UpdateCall(p *CallPayload) (*Call, CallSnapshot, error) {
	carrier, err := s.CallCarrier(p.ChannelID)
	if err != nil {
		return nil, CallSnapshot{}, err
	}
	call := carrier.ActiveCall()
	if call == nil {
		return nil, CallSnapshot{}, fmt.Errorf("channel %s: %w", p.ChannelID, ErrNoActiveCall)
	}
	old := call.Snapshot()
	call.update(p)
	return call, old, nil
}

// EndCall marks the active call as ended at now and retains it as the
// channel's last call.
func (s *State) EndCall(channelID string, now time.Time) (*Call, error) {
	carrier, err := s.CallCarrier(channelID)
	if err != nil {
		return nil, err
	}
	call := carrier.ActiveCall()
	if call == nil {
		return nil, fmt.Errorf("channel %s: %w", channelID, ErrNoActiveCall)
	}
	ended := now
	call.EndedTimestamp = &ended
	carrier.setLastCall(call)
	carrier.setCall(nil)
	return call, nil
}

// Messages

// AddMessage caches a new message. Messages for uncached DMs create the DM
// from the author, since bots are not told about DMs up front.
func (s *State) AddMessage(p *MessagePayload) (*Message, error) {
	ch, ok := s.Channel(p.ChannelID)
	if !ok {
		if p.GuildID != "" || p.Author == nil {
			return nil, notCached("channel", p.ChannelID)
		}
		dm := &ChannelPayload{ID: p.ChannelID, Type: ChannelTypeDM}
		if p.Author.ID != s.SelfID() {
			dm.Recipients = []UserPayload{*p.Author}
		}
		ch, _, _ = s.AddPrivateChannel(dm)
	}
	store, ok := ch.(Messageable)
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", p.ChannelID, ErrNotMessageable)
	}
	m, _ := store.Messages().Add(s.newMessage(p, ch))
	store.setLastMessageID(p.ID)
	return m, nil
}

// UpdateMessage applies an edit. The message is nil when it is not cached;
// the error is set only when the channel is unknown.
func (s *State) UpdateMessage(p *MessagePayload) (*Message, *MessageSnapshot, error) {
	ch, ok := s.Channel(p.ChannelID)
	if !ok {
		return nil, nil, notCached("channel", p.ChannelID)
	}
	store, ok := ch.(Messageable)
	if !ok {
		return nil, nil, fmt.Errorf("channel %s: %w", p.ChannelID, ErrNotMessageable)
	}
	m, ok := store.Messages().Get(p.ID)
	if !ok {
		return nil, nil, nil
	}
	old := m.Snapshot()
	s.updateMessage(m, p)
	return m, &old, nil
}

// BuildMessage resolves a message payload against the cache without
// storing it, for edits and interactions that reference uncached messages.
func (s *State) BuildMessage(p *MessagePayload) *Message {
	ch, _ := s.Channel(p.ChannelID)
	return s.newMessage(p, ch)
}

// RemoveMessage drops a cached message.
func (s *State) RemoveMessage(channelID, messageID string) (*Message, bool) {
	ch, ok := s.Channel(channelID)
	if !ok {
		return nil, false
	}
	store, ok := ch.(Messageable)
	if !ok {
		return nil, false
	}
	return store.Messages().Remove(messageID)
}

// CachedMessage returns a cached message.
func (s *State) CachedMessage(channelID, messageID string) (*Message, bool) {
	ch, ok := s.Channel(channelID)
	if !ok {
		return nil, false
	}
	store, ok := ch.(Messageable)
	if !ok {
		return nil, false
	}
	return store.Messages().Get(messageID)
}

// AddReaction counts a reaction on a cached message. It returns nil when
// the message is not cached.
func (s *State) AddReaction(channelID, messageID string, emoji Emoji, userID string) *Message {
	m, ok := s.CachedMessage(channelID, messageID)
	if !ok {
		return nil
	}
	r, _ := m.Reactions.Upsert(emoji.Key(), func() *Reaction { return &Reaction{Emoji: emoji} }, nil)
	r.Count++
	if userID == s.SelfID() {
		r.Me = true
	}
	return m
}

// RemoveReaction uncounts a reaction; the entry disappears at zero.
func (s *State) RemoveReaction(channelID, messageID string, emoji Emoji, userID string) *Message {
	m, ok := s.CachedMessage(channelID, messageID)
	if !ok {
		return nil
	}
	r, ok := m.Reactions.Get(emoji.Key())
	if !ok {
		return m
	}
	r.Count--
	if userID == s.SelfID() {
		r.Me = false
	}
	if r.Count <= 0 {
		m.Reactions.Remove(emoji.Key())
	}
	return m
}

// ClearReactions removes every reaction, or only those for emoji when set.
func (s *State) ClearReactions(channelID, messageID string, emoji *Emoji) *Message {
	m, ok := s.CachedMessage(channelID, messageID)
	if !ok {
		return nil
	}
	if emoji != nil {
		m.Reactions.Remove(emoji.Key())
	} else {
		m.Reactions.Clear()
	}
	return m
}

// Relationships

// UpsertRelationship caches a relationship. existed reports whether it
// was already known, in which case oldType holds its previous type.
func (s *State) UpsertRelationship(p *RelationshipPayload) (r *Relationship, existed bool, oldType RelationshipType) {
	id := p.ID
	if id == "" {
		id = p.User.ID
	}
	user := s.UpsertUser(&p.User)
	if r, ok := s.Relationships.Get(id); ok {
		oldType = r.Type
		r.Type = RelationshipType(p.Type)
		r.User = user
		return r, true, oldType
	}
	r, _ = s.Relationships.Add(&Relationship{ID: id, Type: RelationshipType(p.Type), User: user})
	return r, false, 0
}

// RemoveRelationship drops a relationship.
func (s *State) RemoveRelationship(id string) (*Relationship, bool) {
	return s.Relationships.Remove(id)
}
