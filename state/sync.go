package state

import (
	"time"
)

// SyncMembers caches a batch of members and then their presences.
// Presences whose member is still missing are skipped, since member lists
// and presence lists are not guaranteed to agree.
func (s *State) SyncMembers(g *Guild, members []MemberPayload, presences []PresencePayload) []*Member {
	out := make([]*Member, 0, len(members))
	for i := range members {
		if m := s.UpsertMember(g, &members[i]); m != nil {
			out = append(out, m)
		}
	}
	for i := range presences {
		pp := &presences[i]
		m, ok := g.Members.Get(pp.User.ID)
		if !ok {
			s.log.Debug("presence without member", "guild", g.ID, "user", pp.User.ID)
			continue
		}
		m.updatePresence(pp)
	}
	return out
}

// ReplacePresences applies a batch of guild presences to cached members
// and returns how many were applied. Presences for members that are not
// cached are ignored.
func (s *State) ReplacePresences(presences []PresencePayload) int {
	applied := 0
	for i := range presences {
		pp := &presences[i]
		g, ok := s.Guilds.Get(pp.GuildID)
		if !ok {
			continue
		}
		m, ok := g.Members.Get(pp.User.ID)
		if !ok {
			continue
		}
		m.updatePresence(pp)
		applied++
	}
	return applied
}

// SetLastPin records the newest pin of a channel and returns the previous
// timestamp.
func (s *State) SetLastPin(channelID string, ts *time.Time) (Channel, *time.Time, error) {
	ch, ok := s.Channel(channelID)
	if !ok {
		return nil, nil, notCached("channel", channelID)
	}
	var slot **time.Time
	switch c := ch.(type) {
	case *TextChannel:
		slot = &c.LastPinTimestamp
	case *NewsChannel:
		slot = &c.LastPinTimestamp
	case *ThreadChannel:
		slot = &c.LastPinTimestamp
	case *PrivateChannel:
		slot = &c.LastPinTimestamp
	case *GroupChannel:
		slot = &c.LastPinTimestamp
	default:
		return ch, nil, nil
	}
	old := *slot
	*slot = ts
	return ch, old, nil
}
