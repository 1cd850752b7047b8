package dispatch

import (
	"time"

	"github.com/EasterCompany/dex-discord-gateway/state"
)

// Envelopes for dispatch events whose data is not a single entity payload.

type guildDeletePayload struct {
	ID          string `json:"id"`
	Unavailable bool   `json:"unavailable"`
}

type guildSyncPayload struct {
	ID        string                  `json:"id"`
	Large     bool                    `json:"large"`
	Members   []state.MemberPayload   `json:"members"`
	Presences []state.PresencePayload `json:"presences"`
}

type memberRemovePayload struct {
	GuildID string            `json:"guild_id"`
	User    state.UserPayload `json:"user"`
}

type membersChunkPayload struct {
	GuildID    string                  `json:"guild_id"`
	Members    []state.MemberPayload   `json:"members"`
	Presences  []state.PresencePayload `json:"presences"`
	ChunkIndex int                     `json:"chunk_index"`
	ChunkCount int                     `json:"chunk_count"`
	NotFound   []string                `json:"not_found"`
	Nonce      string                  `json:"nonce"`
}

type rolePayload struct {
	GuildID string            `json:"guild_id"`
	Role    state.RolePayload `json:"role"`
}

type roleDeletePayload struct {
	GuildID string `json:"guild_id"`
	RoleID  string `json:"role_id"`
}

type banPayload struct {
	GuildID string            `json:"guild_id"`
	User    state.UserPayload `json:"user"`
}

type emojisPayload struct {
	GuildID string        `json:"guild_id"`
	Emojis  []state.Emoji `json:"emojis"`
}

type pinsPayload struct {
	GuildID          string     `json:"guild_id"`
	ChannelID        string     `json:"channel_id"`
	LastPinTimestamp *time.Time `json:"last_pin_timestamp"`
}

type recipientPayload struct {
	ChannelID string            `json:"channel_id"`
	User      state.UserPayload `json:"user"`
}

type threadListSyncPayload struct {
	GuildID    string                      `json:"guild_id"`
	ChannelIDs []string                    `json:"channel_ids"`
	Threads    []state.ChannelPayload      `json:"threads"`
	Members    []state.ThreadMemberPayload `json:"members"`
}

type threadMemberPayload struct {
	state.ThreadMemberPayload
	GuildID string `json:"guild_id"`
}

type threadMembersPayload struct {
	ID               string                      `json:"id"`
	GuildID          string                      `json:"guild_id"`
	MemberCount      int                         `json:"member_count"`
	AddedMembers     []state.ThreadMemberPayload `json:"added_members"`
	RemovedMemberIDs []string                    `json:"removed_member_ids"`
}

type messageDeletePayload struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
}

type messageDeleteBulkPayload struct {
	IDs       []string `json:"ids"`
	ChannelID string   `json:"channel_id"`
	GuildID   string   `json:"guild_id"`
}

type reactionPayload struct {
	UserID    string               `json:"user_id"`
	ChannelID string               `json:"channel_id"`
	MessageID string               `json:"message_id"`
	GuildID   string               `json:"guild_id"`
	Member    *state.MemberPayload `json:"member"`
	Emoji     state.Emoji          `json:"emoji"`
}

type typingPayload struct {
	ChannelID string               `json:"channel_id"`
	GuildID   string               `json:"guild_id"`
	UserID    string               `json:"user_id"`
	Timestamp int64                `json:"timestamp"`
	Member    *state.MemberPayload `json:"member"`
}

type relationshipRemovePayload struct {
	ID   string `json:"id"`
	Type int    `json:"type"`
}

type voiceServerPayload struct {
	Token     string `json:"token"`
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	Endpoint  string `json:"endpoint"`
}

type callDeletePayload struct {
	ChannelID   string `json:"channel_id"`
	Unavailable bool   `json:"unavailable"`
}

type webhooksPayload struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
}
