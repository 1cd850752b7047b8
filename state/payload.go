package state

import (
	"encoding/json"
	"time"
)

// Wire payloads. Fields that may be omitted from partial updates are
// Optional so that updates only touch what the gateway actually sent.

type UserPayload struct {
	ID            string           `json:"id"`
	Username      Optional[string] `json:"username"`
	Discriminator Optional[string] `json:"discriminator"`
	GlobalName    Optional[string] `json:"global_name"`
	Avatar        Optional[string] `json:"avatar"`
	Bot           Optional[bool]   `json:"bot"`
	System        Optional[bool]   `json:"system"`
}

type RolePayload struct {
	ID          string                `json:"id"`
	Name        Optional[string]      `json:"name"`
	Color       Optional[int]         `json:"color"`
	Hoist       Optional[bool]        `json:"hoist"`
	Managed     Optional[bool]        `json:"managed"`
	Mentionable Optional[bool]        `json:"mentionable"`
	Position    Optional[int]         `json:"position"`
	Permissions Optional[Permissions] `json:"permissions"`
}

type OverwritePayload struct {
	ID    string        `json:"id"`
	Type  OverwriteType `json:"type"`
	Allow Permissions   `json:"allow"`
	Deny  Permissions   `json:"deny"`
}

type MemberPayload struct {
	GuildID      string              `json:"guild_id"`
	User         *UserPayload        `json:"user"`
	Nick         Optional[string]    `json:"nick"`
	Avatar       Optional[string]    `json:"avatar"`
	Roles        Optional[[]string]  `json:"roles"`
	JoinedAt     Optional[time.Time] `json:"joined_at"`
	PremiumSince Optional[time.Time] `json:"premium_since"`
	Deaf         Optional[bool]      `json:"deaf"`
	Mute         Optional[bool]      `json:"mute"`
	Pending      Optional[bool]      `json:"pending"`
	TimeoutUntil Optional[time.Time] `json:"communication_disabled_until"`
}

// Activity is a rich-presence activity, kept opaque beyond its headline fields.
type Activity struct {
	Name    string `json:"name"`
	Type    int    `json:"type"`
	URL     string `json:"url,omitempty"`
	State   string `json:"state,omitempty"`
	Details string `json:"details,omitempty"`
}

type PresencePayload struct {
	User         UserPayload                 `json:"user"`
	GuildID      string                      `json:"guild_id"`
	Status       Optional[string]            `json:"status"`
	Activities   Optional[[]Activity]        `json:"activities"`
	ClientStatus Optional[map[string]string] `json:"client_status"`
	// Legacy member fields sent alongside presences to user accounts.
	Nick  Optional[string]   `json:"nick"`
	Roles Optional[[]string] `json:"roles"`
}

type VoiceStatePayload struct {
	GuildID                 string         `json:"guild_id"`
	ChannelID               string         `json:"channel_id"`
	UserID                  string         `json:"user_id"`
	Member                  *MemberPayload `json:"member"`
	SessionID               string         `json:"session_id"`
	Deaf                    bool           `json:"deaf"`
	Mute                    bool           `json:"mute"`
	SelfDeaf                bool           `json:"self_deaf"`
	SelfMute                bool           `json:"self_mute"`
	SelfStream              bool           `json:"self_stream"`
	SelfVideo               bool           `json:"self_video"`
	Suppress                bool           `json:"suppress"`
	RequestToSpeakTimestamp *time.Time     `json:"request_to_speak_timestamp"`
}

type ThreadMetadataPayload struct {
	Archived            bool       `json:"archived"`
	AutoArchiveDuration int        `json:"auto_archive_duration"`
	ArchiveTimestamp    *time.Time `json:"archive_timestamp"`
	Locked              bool       `json:"locked"`
	Invitable           bool       `json:"invitable"`
}

type ThreadMemberPayload struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	JoinTimestamp *time.Time `json:"join_timestamp"`
	Flags         int        `json:"flags"`
}

type ChannelPayload struct {
	ID                   string                       `json:"id"`
	Type                 ChannelType                  `json:"type"`
	GuildID              string                       `json:"guild_id"`
	Name                 Optional[string]             `json:"name"`
	Position             Optional[int]                `json:"position"`
	ParentID             Optional[string]             `json:"parent_id"`
	NSFW                 Optional[bool]               `json:"nsfw"`
	Topic                Optional[string]             `json:"topic"`
	LastMessageID        Optional[string]             `json:"last_message_id"`
	RateLimitPerUser     Optional[int]                `json:"rate_limit_per_user"`
	LastPinTimestamp     Optional[time.Time]          `json:"last_pin_timestamp"`
	Bitrate              Optional[int]                `json:"bitrate"`
	UserLimit            Optional[int]                `json:"user_limit"`
	RTCRegion            Optional[string]             `json:"rtc_region"`
	PermissionOverwrites Optional[[]OverwritePayload] `json:"permission_overwrites"`
	Recipients           []UserPayload                `json:"recipients"`
	Icon                 Optional[string]             `json:"icon"`
	OwnerID              Optional[string]             `json:"owner_id"`
	ThreadMetadata       *ThreadMetadataPayload       `json:"thread_metadata"`
	MessageCount         Optional[int]                `json:"message_count"`
	MemberCount          Optional[int]                `json:"member_count"`
	Member               *ThreadMemberPayload         `json:"member"`

	// Raw is the undecoded payload, kept for channel types this package
	// does not model.
	Raw json.RawMessage `json:"-"`
}

func (p *ChannelPayload) UnmarshalJSON(b []byte) error {
	type plain ChannelPayload
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = ChannelPayload(v)
	p.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// Emoji identifies a custom or unicode emoji.
type Emoji struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Animated bool   `json:"animated,omitempty"`
}

// Key returns the id of a custom emoji, or the name of a unicode one.
func (e Emoji) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Name
}

// APIName returns the form used in REST reaction routes.
func (e Emoji) APIName() string {
	if e.ID != "" {
		return e.Name + ":" + e.ID
	}
	return e.Name
}

type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size"`
	URL         string `json:"url"`
	ProxyURL    string `json:"proxy_url"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

type ReactionPayload struct {
	Count int   `json:"count"`
	Me    bool  `json:"me"`
	Emoji Emoji `json:"emoji"`
}

type MessageCallPayload struct {
	Participants   []string   `json:"participants"`
	EndedTimestamp *time.Time `json:"ended_timestamp"`
}

type MessagePayload struct {
	ID              string                      `json:"id"`
	ChannelID       string                      `json:"channel_id"`
	GuildID         string                      `json:"guild_id"`
	Type            Optional[MessageType]       `json:"type"`
	Author          *UserPayload                `json:"author"`
	Member          *MemberPayload              `json:"member"`
	Content         Optional[string]            `json:"content"`
	Timestamp       Optional[time.Time]         `json:"timestamp"`
	EditedTimestamp Optional[time.Time]         `json:"edited_timestamp"`
	TTS             Optional[bool]              `json:"tts"`
	MentionEveryone Optional[bool]              `json:"mention_everyone"`
	Mentions        Optional[[]UserPayload]     `json:"mentions"`
	MentionRoles    Optional[[]string]          `json:"mention_roles"`
	Attachments     Optional[[]Attachment]      `json:"attachments"`
	Embeds          Optional[[]json.RawMessage] `json:"embeds"`
	Reactions       Optional[[]ReactionPayload] `json:"reactions"`
	Pinned          Optional[bool]              `json:"pinned"`
	WebhookID       string                      `json:"webhook_id"`
	Call            *MessageCallPayload         `json:"call"`
}

type GuildPayload struct {
	ID                string              `json:"id"`
	Unavailable       bool                `json:"unavailable"`
	Name              Optional[string]    `json:"name"`
	Icon              Optional[string]    `json:"icon"`
	OwnerID           Optional[string]    `json:"owner_id"`
	Region            Optional[string]    `json:"region"`
	AFKChannelID      Optional[string]    `json:"afk_channel_id"`
	AFKTimeout        Optional[int]       `json:"afk_timeout"`
	VerificationLevel Optional[int]       `json:"verification_level"`
	MemberCount       Optional[int]       `json:"member_count"`
	Large             Optional[bool]      `json:"large"`
	Features          Optional[[]string]  `json:"features"`
	JoinedAt          Optional[time.Time] `json:"joined_at"`
	Emojis            Optional[[]Emoji]   `json:"emojis"`
	Roles             []RolePayload       `json:"roles"`
	Channels          []ChannelPayload    `json:"channels"`
	Threads           []ChannelPayload    `json:"threads"`
	Members           []MemberPayload     `json:"members"`
	VoiceStates       []VoiceStatePayload `json:"voice_states"`
	Presences         []PresencePayload   `json:"presences"`
}

type CallPayload struct {
	ChannelID   string              `json:"channel_id"`
	MessageID   string              `json:"message_id"`
	Region      Optional[string]    `json:"region"`
	Ringing     Optional[[]string]  `json:"ringing"`
	Unavailable Optional[bool]      `json:"unavailable"`
	VoiceStates []VoiceStatePayload `json:"voice_states"`
}

type RelationshipPayload struct {
	ID   string      `json:"id"`
	Type int         `json:"type"`
	User UserPayload `json:"user"`
}

type ReadyPayload struct {
	Version          int                   `json:"v"`
	User             UserPayload           `json:"user"`
	Guilds           []GuildPayload        `json:"guilds"`
	SessionID        string                `json:"session_id"`
	ResumeGatewayURL string                `json:"resume_gateway_url"`
	PrivateChannels  []ChannelPayload      `json:"private_channels"`
	Relationships    []RelationshipPayload `json:"relationships"`
	Presences        []PresencePayload     `json:"presences"`
}
