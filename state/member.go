package state

import (
	"slices"
	"time"
)

// Presence is the online status of a user as seen by a guild or a friend list.
type Presence struct {
	Status       string
	Activities   []Activity
	ClientStatus map[string]string
}

func (p Presence) clone() Presence {
	out := Presence{Status: p.Status, Activities: slices.Clone(p.Activities)}
	if p.ClientStatus != nil {
		out.ClientStatus = make(map[string]string, len(p.ClientStatus))
		for k, v := range p.ClientStatus {
			out.ClientStatus[k] = v
		}
	}
	return out
}

func (p *Presence) update(pl *PresencePayload) {
	assign(&p.Status, pl.Status)
	assign(&p.Activities, pl.Activities)
	assign(&p.ClientStatus, pl.ClientStatus)
}

// Member is a user's membership in one guild.
type Member struct {
	ID           string
	GuildID      string
	User         *User
	Nick         string
	Avatar       string
	Roles        []string
	JoinedAt     time.Time
	PremiumSince *time.Time
	TimeoutUntil *time.Time
	Deaf         bool
	Mute         bool
	Pending      bool
	Presence     Presence
	// VoiceState is nil while the member is not connected to voice.
	VoiceState *VoiceState
}

type MemberSnapshot struct {
	Nick         string
	Avatar       string
	Roles        []string
	PremiumSince *time.Time
	TimeoutUntil *time.Time
	Deaf         bool
	Mute         bool
	Pending      bool
}

func (m *Member) Key() string { return m.ID }

func (m *Member) update(p *MemberPayload) {
	assign(&m.Nick, p.Nick)
	assign(&m.Avatar, p.Avatar)
	if roles, ok := p.Roles.Get(); ok {
		m.Roles = slices.Clone(roles)
	} else if p.Roles.IsNull() {
		m.Roles = nil
	}
	assign(&m.JoinedAt, p.JoinedAt)
	assignTime(&m.PremiumSince, p.PremiumSince)
	assignTime(&m.TimeoutUntil, p.TimeoutUntil)
	assign(&m.Deaf, p.Deaf)
	assign(&m.Mute, p.Mute)
	assign(&m.Pending, p.Pending)
}

func (m *Member) updatePresence(p *PresencePayload) {
	m.Presence.update(p)
	assign(&m.Nick, p.Nick)
	if roles, ok := p.Roles.Get(); ok {
		m.Roles = slices.Clone(roles)
	}
}

func (m *Member) Snapshot() MemberSnapshot {
	return MemberSnapshot{
		Nick:         m.Nick,
		Avatar:       m.Avatar,
		Roles:        slices.Clone(m.Roles),
		PremiumSince: m.PremiumSince,
		TimeoutUntil: m.TimeoutUntil,
		Deaf:         m.Deaf,
		Mute:         m.Mute,
		Pending:      m.Pending,
	}
}

// PresenceSnapshot copies the current presence.
func (m *Member) PresenceSnapshot() Presence { return m.Presence.clone() }

// DisplayName returns the nickname, falling back to the user's display name.
func (m *Member) DisplayName() string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User != nil {
		return m.User.DisplayName()
	}
	return ""
}

// Mention returns the mention markup for the member.
func (m *Member) Mention() string {
	if m.Nick != "" {
		return "<@!" + m.ID + ">"
	}
	return "<@" + m.ID + ">"
}

// HasRole reports whether the member holds roleID.
func (m *Member) HasRole(roleID string) bool { return slices.Contains(m.Roles, roleID) }
