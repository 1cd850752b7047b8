package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncMembersSkipsPresencesWithoutMembers(t *testing.T) {
	s, g := newTestState(t)

	members := []MemberPayload{*decode[MemberPayload](t, `{"user": {"id": "5", "username": "eve"}}`)}
	presences := []PresencePayload{
		*decode[PresencePayload](t, `{"user": {"id": "5"}, "status": "dnd"}`),
		*decode[PresencePayload](t, `{"user": {"id": "6"}, "status": "online"}`),
	}

	added := s.SyncMembers(g, members, presences)
	require.Len(t, added, 1)
	assert.Equal(t, "dnd", added[0].Presence.Status)
	_, ok := g.Members.Get("6")
	assert.False(t, ok)
}

func TestReplacePresencesIgnoresMissingMembers(t *testing.T) {
	s, g := newTestState(t)

	applied := s.ReplacePresences([]PresencePayload{
		*decode[PresencePayload](t, `{"user": {"id": "3"}, "guild_id": "100", "status": "idle"}`),
		*decode[PresencePayload](t, `{"user": {"id": "77"}, "guild_id": "100", "status": "idle"}`),
		*decode[PresencePayload](t, `{"user": {"id": "3"}, "guild_id": "999", "status": "idle"}`),
	})
	assert.Equal(t, 1, applied)
	bob, _ := g.Members.Get("3")
	assert.Equal(t, "idle", bob.Presence.Status)
}

func TestSetLastPin(t *testing.T) {
	s, _ := newTestState(t)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	ch, old, err := s.SetLastPin("10", &ts)
	require.NoError(t, err)
	assert.Nil(t, old)
	assert.Equal(t, &ts, ch.(*TextChannel).LastPinTimestamp)

	_, _, err = s.SetLastPin("404", &ts)
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestSyncThreads(t *testing.T) {
	s, g := newTestState(t)
	s.UpsertGuildChannel(g, decode[ChannelPayload](t, `{"id": "50", "type": 11, "parent_id": "10", "name": "old"}`))
	s.UpsertGuildChannel(g, decode[ChannelPayload](t, `{"id": "51", "type": 11, "parent_id": "10", "name": "kept"}`))
	s.UpsertGuildChannel(g, decode[ChannelPayload](t, `{"id": "52", "type": 11, "parent_id": "99", "name": "elsewhere"}`))
	kept, _ := g.Threads.Get("51")

	synced := s.SyncThreads(g, []string{"10"},
		[]ChannelPayload{
			*decode[ChannelPayload](t, `{"id": "51", "type": 11, "parent_id": "10", "name": "renamed"}`),
			*decode[ChannelPayload](t, `{"id": "53", "type": 11, "parent_id": "10", "name": "new"}`),
		},
		[]ThreadMemberPayload{{ID: "53", UserID: "1"}},
	)

	require.Len(t, synced, 2)
	assert.Same(t, kept, synced[0])
	assert.Equal(t, "renamed", kept.Name)
	_, ok := g.Threads.Get("50")
	assert.False(t, ok)
	assert.Empty(t, s.GuildIDOf("50"))
	_, ok = g.Threads.Get("52")
	assert.True(t, ok, "threads outside the synced channels stay")

	th, _ := g.Threads.Get("53")
	assert.True(t, th.Members.Has("1"))
}

func TestUpdateThreadMembers(t *testing.T) {
	s, g := newTestState(t)
	s.UpsertGuildChannel(g, decode[ChannelPayload](t, `{"id": "50", "type": 11, "parent_id": "10", "member_count": 1}`))

	th, added, err := s.UpdateThreadMembers(g, "50", []ThreadMemberPayload{{ID: "50", UserID: "2"}, {ID: "50", UserID: "3"}}, nil, 3)
	require.NoError(t, err)
	assert.Len(t, added, 2)
	assert.Equal(t, 3, th.MemberCount)

	_, _, err = s.UpdateThreadMembers(g, "50", nil, []string{"2"}, -1)
	require.NoError(t, err)
	assert.False(t, th.Members.Has("2"))
	assert.Equal(t, 3, th.MemberCount)

	_, _, err = s.UpdateThreadMembers(g, "404", nil, nil, 0)
	assert.ErrorIs(t, err, ErrNotCached)
}
