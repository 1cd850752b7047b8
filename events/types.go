package events

import (
	"encoding/json"
	"time"

	"github.com/EasterCompany/dex-discord-gateway/state"
)

// Type names a public event.
type Type string

const (
	// Connection lifecycle
	TypeReady           Type = "ready"
	TypeDisconnect      Type = "disconnect"
	TypeShardConnect    Type = "shard.connect"
	TypeShardHello      Type = "shard.hello"
	TypeShardPreReady   Type = "shard.pre_ready"
	TypeShardReady      Type = "shard.ready"
	TypeShardResume     Type = "shard.resume"
	TypeShardDisconnect Type = "shard.disconnect"
	TypeDebug           Type = "debug"
	TypeWarn            Type = "warn"
	TypeError           Type = "error"
	TypeUnknown         Type = "unknown"

	// Guilds
	TypeGuildCreate            Type = "guild.create"
	TypeGuildAvailable         Type = "guild.available"
	TypeGuildUpdate            Type = "guild.update"
	TypeGuildDelete            Type = "guild.delete"
	TypeGuildUnavailable       Type = "guild.unavailable"
	TypeUnavailableGuildCreate Type = "guild.unavailable_create"
	TypeGuildSync              Type = "guild.sync"
	TypeGuildMemberAdd         Type = "guild.member.add"
	TypeGuildMemberUpdate      Type = "guild.member.update"
	TypeGuildMemberRemove      Type = "guild.member.remove"
	TypeGuildMemberChunk       Type = "guild.member.chunk"
	TypeGuildRoleCreate        Type = "guild.role.create"
	TypeGuildRoleUpdate        Type = "guild.role.update"
	TypeGuildRoleDelete        Type = "guild.role.delete"
	TypeGuildBanAdd            Type = "guild.ban.add"
	TypeGuildBanRemove         Type = "guild.ban.remove"
	TypeGuildEmojisUpdate      Type = "guild.emojis.update"

	// Channels and threads
	TypeChannelCreate          Type = "channel.create"
	TypeChannelUpdate          Type = "channel.update"
	TypeChannelDelete          Type = "channel.delete"
	TypeChannelPinsUpdate      Type = "channel.pins.update"
	TypeChannelRecipientAdd    Type = "channel.recipient.add"
	TypeChannelRecipientRemove Type = "channel.recipient.remove"
	TypeThreadCreate           Type = "thread.create"
	TypeThreadUpdate           Type = "thread.update"
	TypeThreadDelete           Type = "thread.delete"
	TypeThreadListSync         Type = "thread.list_sync"
	TypeThreadMembersUpdate    Type = "thread.members.update"

	// Messages
	TypeMessageCreate              Type = "message.create"
	TypeMessageUpdate              Type = "message.update"
	TypeMessageDelete              Type = "message.delete"
	TypeMessageDeleteBulk          Type = "message.delete_bulk"
	TypeMessageReactionAdd         Type = "message.reaction.add"
	TypeMessageReactionRemove      Type = "message.reaction.remove"
	TypeMessageReactionRemoveAll   Type = "message.reaction.remove_all"
	TypeMessageReactionRemoveEmoji Type = "message.reaction.remove_emoji"

	// Users
	TypePresenceUpdate     Type = "presence.update"
	TypeUserUpdate         Type = "user.update"
	TypeRelationshipAdd    Type = "relationship.add"
	TypeRelationshipUpdate Type = "relationship.update"
	TypeRelationshipRemove Type = "relationship.remove"
	TypeTypingStart        Type = "typing.start"

	// Voice and calls
	TypeVoiceStateUpdate   Type = "voice.state.update"
	TypeVoiceChannelJoin   Type = "voice.channel.join"
	TypeVoiceChannelLeave  Type = "voice.channel.leave"
	TypeVoiceChannelSwitch Type = "voice.channel.switch"
	TypeVoiceServerUpdate  Type = "voice.server.update"
	TypeCallCreate         Type = "call.create"
	TypeCallUpdate         Type = "call.update"
	TypeCallDelete         Type = "call.delete"
	TypeCallRing           Type = "call.ring"

	// Misc
	TypeWebhooksUpdate    Type = "webhooks.update"
	TypeInteractionCreate Type = "interaction.create"
)

// Event is implemented by every public event.
type Event interface {
	Type() Type
}

// Meta carries the shard an event arrived on.
type Meta struct {
	Shard int
}

// ShardID returns the originating shard.
func (m Meta) ShardID() int { return m.Shard }

// Connection lifecycle

type Ready struct{}
type Disconnect struct{}

type ShardConnect struct{ Meta }

type ShardHello struct {
	Meta
	Interval time.Duration
}

type ShardPreReady struct{ Meta }
type ShardReady struct{ Meta }
type ShardResume struct{ Meta }

type ShardDisconnect struct {
	Meta
	Err error
}

// Debug reports a protocol inconsistency the cache tolerated.
type Debug struct {
	Meta
	Message string
}

// Warn reports a forward-compatible degradation, such as an unmodelled
// channel type.
type Warn struct {
	Meta
	Message string
}

// Error reports a failure: a tracking bug, a handler panic or a fatal
// connection error.
type Error struct {
	Meta
	Err error
}

// Unknown carries a dispatch event with no handler.
type Unknown struct {
	Meta
	Name string
	Data json.RawMessage
}

// Guilds

type GuildCreate struct {
	Meta
	Guild *state.Guild
}

// GuildAvailable is emitted instead of GuildCreate when a guild that was
// known to be unavailable arrives with its full data.
type GuildAvailable struct {
	Meta
	Guild *state.Guild
}

type GuildUpdate struct {
	Meta
	Guild *state.Guild
	Old   state.GuildSnapshot
}

// GuildDelete carries the removed guild, or a stand-in holding only the id
// when it was not cached.
type GuildDelete struct {
	Meta
	Guild *state.Guild
}

type GuildUnavailable struct {
	Meta
	Guild *state.UnavailableGuild
}

type UnavailableGuildCreate struct {
	Meta
	Guild *state.UnavailableGuild
}

type GuildSync struct {
	Meta
	Guild *state.Guild
}

type GuildMemberAdd struct {
	Meta
	Guild  *state.Guild
	Member *state.Member
}

// GuildMemberUpdate has a nil Old when the member was not cached.
type GuildMemberUpdate struct {
	Meta
	Guild  *state.Guild
	Member *state.Member
	Old    *state.MemberSnapshot
}

type GuildMemberRemove struct {
	Meta
	Guild  *state.Guild
	Member *state.Member
}

type GuildMemberChunk struct {
	Meta
	Guild      *state.Guild
	Members    []*state.Member
	ChunkIndex int
	ChunkCount int
	Nonce      string
}

type GuildRoleCreate struct {
	Meta
	Guild *state.Guild
	Role  *state.Role
}

type GuildRoleUpdate struct {
	Meta
	Guild *state.Guild
	Role  *state.Role
	Old   *state.RoleSnapshot
}

type GuildRoleDelete struct {
	Meta
	Guild *state.Guild
	Role  *state.Role
}

type GuildBanAdd struct {
	Meta
	Guild *state.Guild
	User  *state.User
}

type GuildBanRemove struct {
	Meta
	Guild *state.Guild
	User  *state.User
}

type GuildEmojisUpdate struct {
	Meta
	Guild  *state.Guild
	Emojis []state.Emoji
	Old    []state.Emoji
}

// Channels and threads

type ChannelCreate struct {
	Meta
	Channel state.Channel
}

// ChannelUpdate carries the channel after the update; when the type
// changed it is a new variant and Old.Type holds the previous type.
type ChannelUpdate struct {
	Meta
	Channel state.Channel
	Old     state.ChannelSnapshot
}

type ChannelDelete struct {
	Meta
	Channel state.Channel
}

type ChannelPinsUpdate struct {
	Meta
	Channel      state.Channel
	Timestamp    *time.Time
	OldTimestamp *time.Time
}

type ChannelRecipientAdd struct {
	Meta
	Channel *state.GroupChannel
	User    *state.User
}

type ChannelRecipientRemove struct {
	Meta
	Channel *state.GroupChannel
	User    *state.User
}

type ThreadCreate struct {
	Meta
	Thread *state.ThreadChannel
}

type ThreadUpdate struct {
	Meta
	Thread *state.ThreadChannel
	Old    state.ChannelSnapshot
}

type ThreadDelete struct {
	Meta
	Thread state.Channel
}

type ThreadListSync struct {
	Meta
	Guild   *state.Guild
	Threads []*state.ThreadChannel
}

type ThreadMembersUpdate struct {
	Meta
	Thread         *state.ThreadChannel
	AddedMembers   []*state.ThreadMember
	RemovedMembers []string
	MemberCount    int
}

// Messages

type MessageCreate struct {
	Meta
	Message *state.Message
}

// MessageUpdate has a nil Old when the message was not cached; Message is
// then built from the payload and not stored.
type MessageUpdate struct {
	Meta
	Message *state.Message
	Old     *state.MessageSnapshot
}

// MessageDelete carries the removed message, or a stand-in holding only
// the ids when it was not cached.
type MessageDelete struct {
	Meta
	Message *state.Message
}

type MessageDeleteBulk struct {
	Meta
	Messages []*state.Message
}

type MessageReactionAdd struct {
	Meta
	Message *state.Message
	Emoji   state.Emoji
	UserID  string
	Member  *state.Member
}

type MessageReactionRemove struct {
	Meta
	Message *state.Message
	Emoji   state.Emoji
	UserID  string
}

type MessageReactionRemoveAll struct {
	Meta
	Message *state.Message
}

type MessageReactionRemoveEmoji struct {
	Meta
	Message *state.Message
	Emoji   state.Emoji
}

// Users

// PresenceUpdate targets a guild member, or a relationship when the update
// carried no guild. Old is nil when the member was not cached.
type PresenceUpdate struct {
	Meta
	Guild        *state.Guild
	Member       *state.Member
	Relationship *state.Relationship
	Old          *state.Presence
}

type UserUpdate struct {
	Meta
	User *state.User
	Old  state.UserSnapshot
}

type RelationshipAdd struct {
	Meta
	Relationship *state.Relationship
}

type RelationshipUpdate struct {
	Meta
	Relationship *state.Relationship
	OldType      state.RelationshipType
}

type RelationshipRemove struct {
	Meta
	Relationship *state.Relationship
}

type TypingStart struct {
	Meta
	ChannelID string
	Channel   state.Channel
	User      *state.User
	Member    *state.Member
	Timestamp time.Time
}

// Voice and calls

// VoiceStateUpdate has a nil Old when the member was not connected.
// ChannelID is empty when the user left voice.
type VoiceStateUpdate struct {
	Meta
	Guild     *state.Guild
	Member    *state.Member
	Old       *state.VoiceState
	UserID    string
	ChannelID string
	SessionID string
	// Call is set for voice states outside a guild.
	Call *state.Call
}

type VoiceChannelJoin struct {
	Meta
	Member  *state.Member
	Channel state.Channel
}

type VoiceChannelLeave struct {
	Meta
	Member  *state.Member
	Channel state.Channel
}

type VoiceChannelSwitch struct {
	Meta
	Member *state.Member
	New    state.Channel
	Old    state.Channel
}

type VoiceServerUpdate struct {
	Meta
	GuildID   string
	ChannelID string
	Token     string
	Endpoint  string
}

type CallCreate struct {
	Meta
	Call *state.Call
}

type CallUpdate struct {
	Meta
	Call *state.Call
	Old  state.CallSnapshot
}

type CallDelete struct {
	Meta
	Call *state.Call
}

type CallRing struct {
	Meta
	Call *state.Call
}

// Misc

type WebhooksUpdate struct {
	Meta
	GuildID   string
	ChannelID string
}

type InteractionCreate struct {
	Meta
	Interaction state.Interaction
}

func (Ready) Type() Type                      { return TypeReady }
func (Disconnect) Type() Type                 { return TypeDisconnect }
func (ShardConnect) Type() Type               { return TypeShardConnect }
func (ShardHello) Type() Type                 { return TypeShardHello }
func (ShardPreReady) Type() Type              { return TypeShardPreReady }
func (ShardReady) Type() Type                 { return TypeShardReady }
func (ShardResume) Type() Type                { return TypeShardResume }
func (ShardDisconnect) Type() Type            { return TypeShardDisconnect }
func (Debug) Type() Type                      { return TypeDebug }
func (Warn) Type() Type                       { return TypeWarn }
func (Error) Type() Type                      { return TypeError }
func (Unknown) Type() Type                    { return TypeUnknown }
func (GuildCreate) Type() Type                { return TypeGuildCreate }
func (GuildAvailable) Type() Type             { return TypeGuildAvailable }
func (GuildUpdate) Type() Type                { return TypeGuildUpdate }
func (GuildDelete) Type() Type                { return TypeGuildDelete }
func (GuildUnavailable) Type() Type           { return TypeGuildUnavailable }
func (UnavailableGuildCreate) Type() Type     { return TypeUnavailableGuildCreate }
func (GuildSync) Type() Type                  { return TypeGuildSync }
func (GuildMemberAdd) Type() Type             { return TypeGuildMemberAdd }
func (GuildMemberUpdate) Type() Type          { return TypeGuildMemberUpdate }
func (GuildMemberRemove) Type() Type          { return TypeGuildMemberRemove }
func (GuildMemberChunk) Type() Type           { return TypeGuildMemberChunk }
func (GuildRoleCreate) Type() Type            { return TypeGuildRoleCreate }
func (GuildRoleUpdate) Type() Type            { return TypeGuildRoleUpdate }
func (GuildRoleDelete) Type() Type            { return TypeGuildRoleDelete }
func (GuildBanAdd) Type() Type                { return TypeGuildBanAdd }
func (GuildBanRemove) Type() Type             { return TypeGuildBanRemove }
func (GuildEmojisUpdate) Type() Type          { return TypeGuildEmojisUpdate }
func (ChannelCreate) Type() Type              { return TypeChannelCreate }
func (ChannelUpdate) Type() Type              { return TypeChannelUpdate }
func (ChannelDelete) Type() Type              { return TypeChannelDelete }
func (ChannelPinsUpdate) Type() Type          { return TypeChannelPinsUpdate }
func (ChannelRecipientAdd) Type() Type        { return TypeChannelRecipientAdd }
func (ChannelRecipientRemove) Type() Type     { return TypeChannelRecipientRemove }
func (ThreadCreate) Type() Type               { return TypeThreadCreate }
func (ThreadUpdate) Type() Type               { return TypeThreadUpdate }
func (ThreadDelete) Type() Type               { return TypeThreadDelete }
func (ThreadListSync) Type() Type             { return TypeThreadListSync }
func (ThreadMembersUpdate) Type() Type        { return TypeThreadMembersUpdate }
func (MessageCreate) Type() Type              { return TypeMessageCreate }
func (MessageUpdate) Type() Type              { return TypeMessageUpdate }
func (MessageDelete) Type() Type              { return TypeMessageDelete }
func (MessageDeleteBulk) Type() Type          { return TypeMessageDeleteBulk }
func (MessageReactionAdd) Type() Type         { return TypeMessageReactionAdd }
func (MessageReactionRemove) Type() Type      { return TypeMessageReactionRemove }
func (MessageReactionRemoveAll) Type() Type   { return TypeMessageReactionRemoveAll }
func (MessageReactionRemoveEmoji) Type() Type { return TypeMessageReactionRemoveEmoji }
func (PresenceUpdate) Type() Type             { return TypePresenceUpdate }
func (UserUpdate) Type() Type                 { return TypeUserUpdate }
func (RelationshipAdd) Type() Type            { return TypeRelationshipAdd }
func (RelationshipUpdate) Type() Type         { return TypeRelationshipUpdate }
func (RelationshipRemove) Type() Type         { return TypeRelationshipRemove }
func (TypingStart) Type() Type                { return TypeTypingStart }
func (VoiceStateUpdate) Type() Type           { return TypeVoiceStateUpdate }
func (VoiceChannelJoin) Type() Type           { return TypeVoiceChannelJoin }
func (VoiceChannelLeave) Type() Type          { return TypeVoiceChannelLeave }
func (VoiceChannelSwitch) Type() Type         { return TypeVoiceChannelSwitch }
func (VoiceServerUpdate) Type() Type          { return TypeVoiceServerUpdate }
func (CallCreate) Type() Type                 { return TypeCallCreate }
func (CallUpdate) Type() Type                 { return TypeCallUpdate }
func (CallDelete) Type() Type                 { return TypeCallDelete }
func (CallRing) Type() Type                   { return TypeCallRing }
func (WebhooksUpdate) Type() Type             { return TypeWebhooksUpdate }
func (InteractionCreate) Type() Type          { return TypeInteractionCreate }
