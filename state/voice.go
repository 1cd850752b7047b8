package state

import (
	"slices"
	"time"

	"github.com/EasterCompany/dex-discord-gateway/collection"
)

// VoiceState is a user's connection to a voice channel or call.
type VoiceState struct {
	UserID         string
	GuildID        string
	ChannelID      string
	SessionID      string
	Deaf           bool
	Mute           bool
	SelfDeaf       bool
	SelfMute       bool
	SelfStream     bool
	SelfVideo      bool
	Suppress       bool
	RequestToSpeak *time.Time
}

func newVoiceState(p *VoiceStatePayload) *VoiceState {
	vs := &VoiceState{UserID: p.UserID}
	vs.update(p)
	return vs
}

func (v *VoiceState) Key() string { return v.UserID }

func (v *VoiceState) update(p *VoiceStatePayload) {
	v.GuildID = p.GuildID
	v.ChannelID = p.ChannelID
	v.SessionID = p.SessionID
	v.Deaf, v.Mute = p.Deaf, p.Mute
	v.SelfDeaf, v.SelfMute = p.SelfDeaf, p.SelfMute
	v.SelfStream, v.SelfVideo = p.SelfStream, p.SelfVideo
	v.Suppress = p.Suppress
	v.RequestToSpeak = p.RequestToSpeakTimestamp
}

// Snapshot returns a copy of the voice state.
func (v *VoiceState) Snapshot() VoiceState { return *v }

// Call is a voice call in a DM or group channel. It is keyed by the id of
// the message that announced it.
type Call struct {
	ID             string
	ChannelID      string
	Region         string
	Ringing        []string
	Unavailable    bool
	EndedTimestamp *time.Time
	VoiceStates    *collection.Collection[*VoiceState]
}

type CallSnapshot struct {
	Region         string
	Ringing        []string
	Unavailable    bool
	EndedTimestamp *time.Time
	Participants   []string
}

func newCall(p *CallPayload) *Call {
	c := &Call{
		ID:          p.MessageID,
		ChannelID:   p.ChannelID,
		VoiceStates: collection.New[*VoiceState](),
	}
	c.update(p)
	return c
}

func (c *Call) Key() string { return c.ID }

func (c *Call) update(p *CallPayload) {
	assign(&c.Region, p.Region)
	if ringing, ok := p.Ringing.Get(); ok {
		c.Ringing = slices.Clone(ringing)
	}
	assign(&c.Unavailable, p.Unavailable)
	for i := range p.VoiceStates {
		vp := &p.VoiceStates[i]
		c.VoiceStates.Upsert(vp.UserID, func() *VoiceState { return newVoiceState(vp) }, func(vs *VoiceState) { vs.update(vp) })
	}
}

// Participants lists the users currently connected to the call.
func (c *Call) Participants() []string { return c.VoiceStates.Keys() }

func (c *Call) Snapshot() CallSnapshot {
	return CallSnapshot{
		Region:         c.Region,
		Ringing:        slices.Clone(c.Ringing),
		Unavailable:    c.Unavailable,
		EndedTimestamp: c.EndedTimestamp,
		Participants:   c.Participants(),
	}
}
