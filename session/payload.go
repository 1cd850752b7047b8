package session

import (
	"encoding/json"

	"github.com/EasterCompany/dex-discord-gateway/state"
)

// Gateway opcodes.
const (
	OpDispatch            = 0
	OpHeartbeat           = 1
	OpIdentify            = 2
	OpPresenceUpdate      = 3
	OpVoiceStateUpdate    = 4
	OpResume              = 6
	OpReconnect           = 7
	OpRequestGuildMembers = 8
	OpInvalidSession      = 9
	OpHello               = 10
	OpHeartbeatAck        = 11
)

// APIVersion is the gateway protocol version requested on connect.
const APIVersion = 10

type outbound struct {
	Op   int `json:"op"`
	Data any `json:"d"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type identifyData struct {
	Token          string             `json:"token"`
	Intents        int                `json:"intents"`
	Properties     identifyProperties `json:"properties"`
	LargeThreshold int                `json:"large_threshold,omitempty"`
	Shard          [2]int             `json:"shard"`
	Presence       *StatusUpdate      `json:"presence,omitempty"`
}

type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Sequence  int64  `json:"seq"`
}

// StatusUpdate is the presence sent with op 3 and on identify.
type StatusUpdate struct {
	Since      *int64           `json:"since"`
	Activities []state.Activity `json:"activities"`
	Status     string           `json:"status"`
	AFK        bool             `json:"afk"`
}

type voiceStateData struct {
	GuildID   *string `json:"guild_id"`
	ChannelID *string `json:"channel_id"`
	SelfMute  bool    `json:"self_mute"`
	SelfDeaf  bool    `json:"self_deaf"`
}

// MemberRequest asks the gateway for a guild's members. Chunks answering it
// carry the returned nonce.
type MemberRequest struct {
	GuildID   string   `json:"guild_id"`
	Query     *string  `json:"query,omitempty"`
	Limit     int      `json:"limit"`
	Presences bool     `json:"presences,omitempty"`
	UserIDs   []string `json:"user_ids,omitempty"`
	Nonce     string   `json:"nonce,omitempty"`
}

// nullable maps the empty string to JSON null.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func encode(op int, data any) ([]byte, error) {
	return json.Marshal(outbound{Op: op, Data: data})
}
