package state

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/EasterCompany/dex-discord-gateway/collection"
)

// ChannelType is the wire discriminator of a channel.
type ChannelType int

const (
	ChannelTypeGuildText          ChannelType = 0
	ChannelTypeDM                 ChannelType = 1
	ChannelTypeGuildVoice         ChannelType = 2
	ChannelTypeGroupDM            ChannelType = 3
	ChannelTypeGuildCategory      ChannelType = 4
	ChannelTypeGuildNews          ChannelType = 5
	ChannelTypeGuildStore         ChannelType = 6
	ChannelTypeGuildNewsThread    ChannelType = 10
	ChannelTypeGuildPublicThread  ChannelType = 11
	ChannelTypeGuildPrivateThread ChannelType = 12
	ChannelTypeGuildStageVoice    ChannelType = 13
	ChannelTypeGuildForum         ChannelType = 15
)

// IsThread reports whether t is one of the thread types.
func (t ChannelType) IsThread() bool {
	return t == ChannelTypeGuildNewsThread || t == ChannelTypeGuildPublicThread || t == ChannelTypeGuildPrivateThread
}

// Channel is the closed set of channel variants:
// *TextChannel, *NewsChannel, *VoiceChannel, *StageChannel,
// *CategoryChannel, *StoreChannel, *ForumChannel, *ThreadChannel,
// *PrivateChannel, *GroupChannel and *UnknownChannel.
type Channel interface {
	collection.Keyed
	Kind() ChannelType
	Snapshot() ChannelSnapshot
	update(p *ChannelPayload)
	sealed()
}

// GuildScoped is implemented by channels that live in a guild.
type GuildScoped interface {
	Channel
	Guild() string
	PermissionOverwrites() *collection.Collection[*PermissionOverwrite]
}

// Messageable is implemented by channels that cache messages.
type Messageable interface {
	Channel
	Messages() *collection.Collection[*Message]
	LastMessageID() string
	setLastMessageID(id string)
}

// CallCarrier is implemented by DM and group channels.
type CallCarrier interface {
	Channel
	ActiveCall() *Call
	PreviousCall() *Call
	setCall(c *Call)
	setLastCall(c *Call)
}

// ChannelSnapshot holds the mutable fields of any channel variant.
type ChannelSnapshot struct {
	Type                ChannelType
	Name                string
	Topic               string
	Position            int
	ParentID            string
	NSFW                bool
	RateLimitPerUser    int
	Bitrate             int
	UserLimit           int
	RTCRegion           string
	Icon                string
	OwnerID             string
	Archived            bool
	Locked              bool
	AutoArchiveDuration int
	Overwrites          []PermissionOverwrite
}

type channelBase struct {
	ID   string
	Type ChannelType
}

func (c *channelBase) Key() string       { return c.ID }
func (c *channelBase) Kind() ChannelType { return c.Type }
func (c *channelBase) sealed()           {}

// GuildChannel carries the fields shared by every guild channel.
type GuildChannel struct {
	channelBase
	GuildID    string
	Name       string
	Position   int
	ParentID   string
	NSFW       bool
	Overwrites *collection.Collection[*PermissionOverwrite]
}

func newGuildChannel(p *ChannelPayload) GuildChannel {
	return GuildChannel{
		channelBase: channelBase{ID: p.ID, Type: p.Type},
		GuildID:     p.GuildID,
		Overwrites:  collection.New[*PermissionOverwrite](),
	}
}

func (c *GuildChannel) Guild() string { return c.GuildID }

func (c *GuildChannel) PermissionOverwrites() *collection.Collection[*PermissionOverwrite] {
	return c.Overwrites
}

func (c *GuildChannel) updateGuild(p *ChannelPayload) {
	if p.GuildID != "" {
		c.GuildID = p.GuildID
	}
	assign(&c.Name, p.Name)
	assign(&c.Position, p.Position)
	assign(&c.ParentID, p.ParentID)
	assign(&c.NSFW, p.NSFW)
	if overwrites, ok := p.PermissionOverwrites.Get(); ok {
		c.Overwrites.Clear()
		for _, ow := range overwrites {
			c.Overwrites.Add(&PermissionOverwrite{ID: ow.ID, Type: ow.Type, Allow: ow.Allow, Deny: ow.Deny})
		}
	}
}

func (c *GuildChannel) snapshotGuild() ChannelSnapshot {
	snap := ChannelSnapshot{
		Type:     c.Type,
		Name:     c.Name,
		Position: c.Position,
		ParentID: c.ParentID,
		NSFW:     c.NSFW,
	}
	c.Overwrites.Each(func(ow *PermissionOverwrite) bool {
		snap.Overwrites = append(snap.Overwrites, *ow)
		return true
	})
	return snap
}

type messageStore struct {
	messages    *collection.Collection[*Message]
	lastMessage string
}

func newMessageStore(limit int) messageStore {
	return messageStore{messages: collection.NewLimited[*Message](limit)}
}

func (m *messageStore) Messages() *collection.Collection[*Message] { return m.messages }
func (m *messageStore) LastMessageID() string                      { return m.lastMessage }
func (m *messageStore) setLastMessageID(id string)                 { m.lastMessage = id }

func (m *messageStore) updateLastMessage(p *ChannelPayload) {
	assign(&m.lastMessage, p.LastMessageID)
}

type callState struct {
	call     *Call
	lastCall *Call
}

func (c *callState) ActiveCall() *Call      { return c.call }
func (c *callState) PreviousCall() *Call    { return c.lastCall }
func (c *callState) setCall(call *Call)     { c.call = call }
func (c *callState) setLastCall(call *Call) { c.lastCall = call }

// TextChannel is a guild text channel.
type TextChannel struct {
	GuildChannel
	messageStore
	Topic            string
	RateLimitPerUser int
	LastPinTimestamp *time.Time
}

func (c *TextChannel) update(p *ChannelPayload) {
	c.updateGuild(p)
	c.updateLastMessage(p)
	assign(&c.Topic, p.Topic)
	assign(&c.RateLimitPerUser, p.RateLimitPerUser)
	assignTime(&c.LastPinTimestamp, p.LastPinTimestamp)
}

func (c *TextChannel) Snapshot() ChannelSnapshot {
	snap := c.snapshotGuild()
	snap.Topic = c.Topic
	snap.RateLimitPerUser = c.RateLimitPerUser
	return snap
}

// NewsChannel is an announcement channel.
type NewsChannel struct {
	TextChannel
}

// VoiceChannel is a guild voice channel. Its connected members are
// derived from the guild's voice states.
type VoiceChannel struct {
	GuildChannel
	messageStore
	Bitrate   int
	UserLimit int
	RTCRegion string
}

func (c *VoiceChannel) update(p *ChannelPayload) {
	c.updateGuild(p)
	c.updateLastMessage(p)
	assign(&c.Bitrate, p.Bitrate)
	assign(&c.UserLimit, p.UserLimit)
	assign(&c.RTCRegion, p.RTCRegion)
}

func (c *VoiceChannel) Snapshot() ChannelSnapshot {
	snap := c.snapshotGuild()
	snap.Bitrate = c.Bitrate
	snap.UserLimit = c.UserLimit
	snap.RTCRegion = c.RTCRegion
	return snap
}

// StageChannel is a stage voice channel.
type StageChannel struct {
	VoiceChannel
	Topic string
}

func (c *StageChannel) update(p *ChannelPayload) {
	c.VoiceChannel.update(p)
	assign(&c.Topic, p.Topic)
}

func (c *StageChannel) Snapshot() ChannelSnapshot {
	snap := c.VoiceChannel.Snapshot()
	snap.Topic = c.Topic
	return snap
}

// CategoryChannel groups other guild channels.
type CategoryChannel struct {
	GuildChannel
}

func (c *CategoryChannel) update(p *ChannelPayload)  { c.updateGuild(p) }
func (c *CategoryChannel) Snapshot() ChannelSnapshot { return c.snapshotGuild() }

// StoreChannel is a legacy store listing channel.
type StoreChannel struct {
	GuildChannel
}

func (c *StoreChannel) update(p *ChannelPayload)  { c.updateGuild(p) }
func (c *StoreChannel) Snapshot() ChannelSnapshot { return c.snapshotGuild() }

// ForumChannel hosts threads only.
type ForumChannel struct {
	GuildChannel
	Topic            string
	RateLimitPerUser int
}

func (c *ForumChannel) update(p *ChannelPayload) {
	c.updateGuild(p)
	assign(&c.Topic, p.Topic)
	assign(&c.RateLimitPerUser, p.RateLimitPerUser)
}

func (c *ForumChannel) Snapshot() ChannelSnapshot {
	snap := c.snapshotGuild()
	snap.Topic = c.Topic
	snap.RateLimitPerUser = c.RateLimitPerUser
	return snap
}

// ThreadMember is a user's membership in a thread.
type ThreadMember struct {
	ThreadID string
	UserID   string
	JoinedAt *time.Time
	Flags    int
}

func (m *ThreadMember) Key() string { return m.UserID }

// ThreadChannel is a public, private or announcement thread. ParentID
// holds the channel the thread was started from.
type ThreadChannel struct {
	GuildChannel
	messageStore
	OwnerID             string
	RateLimitPerUser    int
	Archived            bool
	Locked              bool
	Invitable           bool
	AutoArchiveDuration int
	ArchiveTimestamp    *time.Time
	MessageCount        int
	MemberCount         int
	LastPinTimestamp    *time.Time
	Members             *collection.Collection[*ThreadMember]
}

func (c *ThreadChannel) update(p *ChannelPayload) {
	c.updateGuild(p)
	c.updateLastMessage(p)
	assign(&c.OwnerID, p.OwnerID)
	assign(&c.RateLimitPerUser, p.RateLimitPerUser)
	assign(&c.MessageCount, p.MessageCount)
	assign(&c.MemberCount, p.MemberCount)
	assignTime(&c.LastPinTimestamp, p.LastPinTimestamp)
	if md := p.ThreadMetadata; md != nil {
		c.Archived = md.Archived
		c.Locked = md.Locked
		c.Invitable = md.Invitable
		c.AutoArchiveDuration = md.AutoArchiveDuration
		c.ArchiveTimestamp = md.ArchiveTimestamp
	}
	if m := p.Member; m != nil && m.UserID != "" {
		c.Members.Replace(&ThreadMember{ThreadID: c.ID, UserID: m.UserID, JoinedAt: m.JoinTimestamp, Flags: m.Flags})
	}
}

func (c *ThreadChannel) Snapshot() ChannelSnapshot {
	snap := c.snapshotGuild()
	snap.OwnerID = c.OwnerID
	snap.RateLimitPerUser = c.RateLimitPerUser
	snap.Archived = c.Archived
	snap.Locked = c.Locked
	snap.AutoArchiveDuration = c.AutoArchiveDuration
	return snap
}

// PrivateChannel is a one-to-one DM.
type PrivateChannel struct {
	channelBase
	messageStore
	callState
	Recipient        *User
	LastPinTimestamp *time.Time
}

func (c *PrivateChannel) update(p *ChannelPayload) {
	c.updateLastMessage(p)
	assignTime(&c.LastPinTimestamp, p.LastPinTimestamp)
}

func (c *PrivateChannel) Snapshot() ChannelSnapshot {
	return ChannelSnapshot{Type: c.Type}
}

// GroupChannel is a multi-user DM.
type GroupChannel struct {
	channelBase
	messageStore
	callState
	Name             string
	Icon             string
	OwnerID          string
	Recipients       *collection.Collection[*User]
	LastPinTimestamp *time.Time
}

func (c *GroupChannel) update(p *ChannelPayload) {
	c.updateLastMessage(p)
	assign(&c.Name, p.Name)
	assign(&c.Icon, p.Icon)
	assign(&c.OwnerID, p.OwnerID)
	assignTime(&c.LastPinTimestamp, p.LastPinTimestamp)
}

func (c *GroupChannel) Snapshot() ChannelSnapshot {
	return ChannelSnapshot{Type: c.Type, Name: c.Name, Icon: c.Icon, OwnerID: c.OwnerID}
}

// UnknownChannel stands in for channel types this package does not model.
type UnknownChannel struct {
	channelBase
	GuildID string
	Raw     json.RawMessage
}

func (c *UnknownChannel) Guild() string { return c.GuildID }

func (c *UnknownChannel) update(p *ChannelPayload) {
	if len(p.Raw) > 0 {
		c.Raw = slices.Clone(p.Raw)
	}
}

func (c *UnknownChannel) Snapshot() ChannelSnapshot { return ChannelSnapshot{Type: c.Type} }

// buildChannel constructs the variant matching p.Type. Unmodelled types
// yield an *UnknownChannel and ok == false.
func (s *State) buildChannel(p *ChannelPayload) (ch Channel, ok bool) {
	limit := s.messageLimit
	switch p.Type {
	case ChannelTypeGuildText:
		ch = &TextChannel{GuildChannel: newGuildChannel(p), messageStore: newMessageStore(limit)}
	case ChannelTypeGuildNews:
		ch = &NewsChannel{TextChannel{GuildChannel: newGuildChannel(p), messageStore: newMessageStore(limit)}}
	case ChannelTypeGuildVoice:
		ch = &VoiceChannel{GuildChannel: newGuildChannel(p), messageStore: newMessageStore(limit)}
	case ChannelTypeGuildStageVoice:
		ch = &StageChannel{VoiceChannel: VoiceChannel{GuildChannel: newGuildChannel(p), messageStore: newMessageStore(limit)}}
	case ChannelTypeGuildCategory:
		ch = &CategoryChannel{GuildChannel: newGuildChannel(p)}
	case ChannelTypeGuildStore:
		ch = &StoreChannel{GuildChannel: newGuildChannel(p)}
	case ChannelTypeGuildForum:
		ch = &ForumChannel{GuildChannel: newGuildChannel(p)}
	case ChannelTypeGuildNewsThread, ChannelTypeGuildPublicThread, ChannelTypeGuildPrivateThread:
		ch = &ThreadChannel{
			GuildChannel: newGuildChannel(p),
			messageStore: newMessageStore(limit),
			Members:      collection.New[*ThreadMember](),
		}
	case ChannelTypeDM:
		dm := &PrivateChannel{channelBase: channelBase{ID: p.ID, Type: p.Type}, messageStore: newMessageStore(limit)}
		if len(p.Recipients) > 0 {
			dm.Recipient = s.UpsertUser(&p.Recipients[0])
		}
		ch = dm
	case ChannelTypeGroupDM:
		group := &GroupChannel{
			channelBase:  channelBase{ID: p.ID, Type: p.Type},
			messageStore: newMessageStore(limit),
			Recipients:   collection.New[*User](),
		}
		for i := range p.Recipients {
			group.Recipients.Add(s.UpsertUser(&p.Recipients[i]))
		}
		ch = group
	default:
		return &UnknownChannel{
			channelBase: channelBase{ID: p.ID, Type: p.Type},
			GuildID:     p.GuildID,
			Raw:         slices.Clone(p.Raw),
		}, false
	}
	ch.update(p)
	return ch, true
}
