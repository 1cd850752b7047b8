package dispatch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EasterCompany/dex-discord-gateway/clock"
	"github.com/EasterCompany/dex-discord-gateway/events"
	"github.com/EasterCompany/dex-discord-gateway/health"
	"github.com/EasterCompany/dex-discord-gateway/state"
)

var epoch = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

const readyPayload = `{
	"v": 10,
	"user": {"id": "1", "username": "dexter"},
	"session_id": "abc",
	"guilds": [{"id": "100", "unavailable": true}],
	"private_channels": [
		{"id": "70", "type": 3, "name": "crew", "recipients": [{"id": "2", "username": "ada"}]}
	],
	"relationships": [{"id": "5", "type": 1, "user": {"id": "5", "username": "eve"}}]
}`

const guildPayload = `{
	"id": "100",
	"name": "dex",
	"member_count": 3,
	"channels": [
		{"id": "10", "type": 0, "name": "general"},
		{"id": "11", "type": 2, "name": "voice"},
		{"id": "12", "type": 2, "name": "lobby"}
	],
	"members": [
		{"user": {"id": "2", "username": "ada"}, "nick": "Countess"},
		{"user": {"id": "3", "username": "bob"}}
	],
	"voice_states": [
		{"user_id": "4", "channel_id": "11", "session_id": "s4"}
	]
}`

type harness struct {
	t        *testing.T
	state    *state.State
	bus      *events.Bus
	counters *health.Counters
	d        *Dispatcher
	got      []events.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, state: state.New(50, nil), counters: &health.Counters{}}
	h.bus = events.NewBus(nil)
	h.bus.Subscribe(func(e events.Event) { h.got = append(h.got, e) })
	h.d = New(h.state, h.bus, WithClock(clock.NewFake(epoch)), WithCounters(h.counters))
	return h
}

// ready brings the harness to a READY state with guild 100 available.
func ready(t *testing.T) *harness {
	h := newHarness(t)
	h.dispatch("READY", readyPayload)
	h.dispatch("GUILD_CREATE", guildPayload)
	h.shardReady()
	h.reset()
	return h
}

func (h *harness) shardReady() { h.bus.Emit(events.ShardReady{Meta: events.Meta{Shard: 0}}) }

func (h *harness) dispatch(name, data string) {
	h.t.Helper()
	require.True(h.t, json.Valid([]byte(data)), "fixture for %s is not valid JSON", name)
	h.d.Dispatch(0, name, json.RawMessage(data))
}

func (h *harness) reset() { h.got = nil }

func (h *harness) types() []events.Type {
	out := make([]events.Type, 0, len(h.got))
	for _, e := range h.got {
		out = append(out, e.Type())
	}
	return out
}

func find[T events.Event](h *harness) T {
	h.t.Helper()
	for _, e := range h.got {
		if v, ok := e.(T); ok {
			return v
		}
	}
	var zero T
	require.Failf(h.t, "event not emitted", "%T not in %v", zero, h.types())
	return zero
}

func TestUnknownEventCarriesRawPayload(t *testing.T) {
	h := newHarness(t)
	h.dispatch("SOMETHING_NEW", `{"x": 1}`)

	ev := find[events.Unknown](h)
	assert.Equal(t, "SOMETHING_NEW", ev.Name)
	assert.JSONEq(t, `{"x": 1}`, string(ev.Data))
	assert.False(t, Handles("SOMETHING_NEW"))
	assert.True(t, Handles("GUILD_SYNC"))
}

func TestMalformedPayloadBecomesErrorEvent(t *testing.T) {
	h := newHarness(t)
	h.d.Dispatch(0, "GUILD_UPDATE", json.RawMessage(`{"id": 5`))

	ev := find[events.Error](h)
	assert.Contains(t, ev.Err.Error(), "GUILD_UPDATE")
	assert.EqualValues(t, 1, h.counters.Snapshot()["handler_errors"])
}

func TestMissingContextIsDiagnostic(t *testing.T) {
	h := newHarness(t)
	h.dispatch("GUILD_MEMBER_UPDATE", `{"guild_id": "999", "user": {"id": "2"}, "nick": "x"}`)

	assert.Equal(t, []events.Type{events.TypeDebug}, h.types())
	assert.Contains(t, find[events.Debug](h).Message, "guild 999")
	assert.Zero(t, h.counters.Snapshot()["handler_errors"])
}

func TestUnavailableGuildBecomesAvailable(t *testing.T) {
	h := newHarness(t)
	h.dispatch("READY", readyPayload)

	assert.True(t, h.state.UnavailableGuilds.Has("100"))
	assert.False(t, h.state.Guilds.Has("100"))
	assert.Empty(t, h.got)

	// Guilds streamed in before the shard is ready are cached silently.
	h.dispatch("GUILD_CREATE", guildPayload)
	assert.Empty(t, h.got)
	g, ok := h.state.Guilds.Get("100")
	require.True(t, ok)
	assert.Equal(t, 3, g.Channels.Len())
	assert.False(t, h.state.UnavailableGuilds.Has("100"))

	h.shardReady()
	h.reset()
	h.dispatch("GUILD_DELETE", `{"id": "100", "unavailable": true}`)
	assert.Equal(t, "100", find[events.GuildUnavailable](h).Guild.ID)
	assert.False(t, h.state.Guilds.Has("100"))

	h.reset()
	h.dispatch("GUILD_CREATE", guildPayload)
	require.Equal(t, []events.Type{events.TypeGuildAvailable}, h.types())
	assert.Equal(t, 3, find[events.GuildAvailable](h).Guild.Channels.Len())

	h.reset()
	h.dispatch("GUILD_CREATE", `{"id": "200", "name": "fresh"}`)
	assert.Equal(t, []events.Type{events.TypeGuildCreate}, h.types())
}

func TestResumeEndsStartupSync(t *testing.T) {
	h := newHarness(t)
	h.dispatch("READY", readyPayload)
	h.bus.Emit(events.ShardResume{Meta: events.Meta{Shard: 0}})
	h.reset()

	h.dispatch("GUILD_CREATE", guildPayload)
	assert.Equal(t, []events.Type{events.TypeGuildAvailable}, h.types())
}

func TestGuildDeleteOfUncachedGuildEmitsStandIn(t *testing.T) {
	h := newHarness(t)
	h.dispatch("GUILD_DELETE", `{"id": "404"}`)

	assert.Equal(t, "404", find[events.GuildDelete](h).Guild.ID)
}

func TestGuildUpdateCarriesOldValues(t *testing.T) {
	h := ready(t)
	h.dispatch("GUILD_UPDATE", `{"id": "100", "name": "dexterity"}`)

	ev := find[events.GuildUpdate](h)
	assert.Equal(t, "dexterity", ev.Guild.Name)
	assert.Equal(t, "dex", ev.Old.Name)
}

func TestMemberLifecycle(t *testing.T) {
	h := ready(t)
	g, _ := h.state.Guilds.Get("100")

	h.dispatch("GUILD_MEMBER_ADD", `{"guild_id": "100", "user": {"id": "6", "username": "fin"}}`)
	assert.Equal(t, 4, g.MemberCount)

	h.dispatch("GUILD_MEMBER_UPDATE", `{"guild_id": "100", "user": {"id": "2"}, "nick": "Lady"}`)
	upd := find[events.GuildMemberUpdate](h)
	require.NotNil(t, upd.Old)
	assert.Equal(t, "Countess", upd.Old.Nick)
	assert.Equal(t, "Lady", upd.Member.Nick)

	h.dispatch("GUILD_MEMBER_REMOVE", `{"guild_id": "100", "user": {"id": "6", "username": "fin"}}`)
	assert.Equal(t, "6", find[events.GuildMemberRemove](h).Member.ID)
	assert.False(t, g.Members.Has("6"))
	assert.Equal(t, 3, g.MemberCount)
}

func TestRoleEvents(t *testing.T) {
	h := ready(t)

	h.dispatch("GUILD_ROLE_CREATE", `{"guild_id": "100", "role": {"id": "300", "name": "mods"}}`)
	h.dispatch("GUILD_ROLE_UPDATE", `{"guild_id": "100", "role": {"id": "300", "name": "admins"}}`)
	h.dispatch("GUILD_ROLE_DELETE", `{"guild_id": "100", "role_id": "300"}`)

	assert.Equal(t, []events.Type{events.TypeGuildRoleCreate, events.TypeGuildRoleUpdate, events.TypeGuildRoleDelete}, h.types())
	upd := find[events.GuildRoleUpdate](h)
	require.NotNil(t, upd.Old)
	assert.Equal(t, "mods", upd.Old.Name)
}

func TestGuildSyncReplaysPendingVoiceStates(t *testing.T) {
	h := ready(t)
	g, _ := h.state.Guilds.Get("100")
	require.Equal(t, 1, g.PendingVoiceStates())

	h.dispatch("GUILD_SYNC", `{
		"id": "100",
		"large": true,
		"members": [{"user": {"id": "4", "username": "dee"}}],
		"presences": [{"user": {"id": "404"}, "status": "online"}]
	}`)

	assert.Equal(t, []events.Type{events.TypeVoiceStateUpdate, events.TypeVoiceChannelJoin, events.TypeGuildSync}, h.types())
	replayed := find[events.VoiceStateUpdate](h)
	assert.Equal(t, "4", replayed.UserID)
	assert.Equal(t, "11", replayed.ChannelID)
	dee, ok := g.Members.Get("4")
	require.True(t, ok)
	require.NotNil(t, dee.VoiceState)
	assert.Equal(t, "11", dee.VoiceState.ChannelID)
	assert.Equal(t, 0, g.PendingVoiceStates())
	assert.True(t, g.Large)
	assert.False(t, g.Members.Has("404"))
}

func TestMemberChunksDropUnresolvedVoiceStatesAtLastChunk(t *testing.T) {
	h := ready(t)
	g, _ := h.state.Guilds.Get("100")

	h.dispatch("GUILD_MEMBERS_CHUNK", `{"guild_id": "100", "chunk_index": 0, "chunk_count": 2, "nonce": "n1",
		"members": [{"user": {"id": "7", "username": "gil"}}]}`)
	assert.Equal(t, 1, g.PendingVoiceStates())
	chunk := find[events.GuildMemberChunk](h)
	assert.Equal(t, "n1", chunk.Nonce)
	require.Len(t, chunk.Members, 1)

	h.dispatch("GUILD_MEMBERS_CHUNK", `{"guild_id": "100", "chunk_index": 1, "chunk_count": 2, "nonce": "n1",
		"members": [{"user": {"id": "8", "username": "hal"}}]}`)
	assert.Equal(t, 0, g.PendingVoiceStates())
	assert.NotContains(t, h.types(), events.TypeVoiceChannelJoin)
}

func TestVoiceChannelTransitions(t *testing.T) {
	h := ready(t)

	h.dispatch("VOICE_STATE_UPDATE", `{"guild_id": "100", "user_id": "3", "channel_id": "11", "session_id": "s3"}`)
	join := find[events.VoiceChannelJoin](h)
	assert.Equal(t, "11", join.Channel.Key())
	upd := find[events.VoiceStateUpdate](h)
	assert.Nil(t, upd.Old)
	assert.Equal(t, "3", upd.UserID)
	assert.Equal(t, "11", upd.ChannelID)
	assert.Equal(t, "s3", upd.SessionID)

	h.reset()
	h.dispatch("VOICE_STATE_UPDATE", `{"guild_id": "100", "user_id": "3", "channel_id": "11", "session_id": "s3", "self_mute": true}`)
	assert.Equal(t, []events.Type{events.TypeVoiceStateUpdate}, h.types())

	h.reset()
	h.dispatch("VOICE_STATE_UPDATE", `{"guild_id": "100", "user_id": "3", "channel_id": "12", "session_id": "s3"}`)
	sw := find[events.VoiceChannelSwitch](h)
	assert.Equal(t, "12", sw.New.Key())
	assert.Equal(t, "11", sw.Old.Key())

	h.reset()
	h.dispatch("VOICE_STATE_UPDATE", `{"guild_id": "100", "user_id": "3", "channel_id": null, "session_id": "s3"}`)
	leave := find[events.VoiceChannelLeave](h)
	assert.Equal(t, "12", leave.Channel.Key())
	assert.Nil(t, leave.Member.VoiceState)
}

func TestCallLifecycle(t *testing.T) {
	h := ready(t)

	h.dispatch("CALL_CREATE", `{"channel_id": "70", "message_id": "900", "region": "eu", "ringing": ["1"], "voice_states": []}`)
	assert.Equal(t, []events.Type{events.TypeCallCreate, events.TypeCallRing}, h.types())

	h.reset()
	h.dispatch("VOICE_STATE_UPDATE", `{"user_id": "2", "channel_id": "70", "session_id": "c2"}`)
	joined := find[events.VoiceStateUpdate](h)
	require.NotNil(t, joined.Call)
	assert.Equal(t, []string{"2"}, joined.Call.Participants())
	assert.Equal(t, "2", joined.UserID)
	assert.Equal(t, "70", joined.ChannelID)

	h.reset()
	h.dispatch("VOICE_STATE_UPDATE", `{"user_id": "2", "channel_id": null, "session_id": "c2"}`)
	left := find[events.VoiceStateUpdate](h)
	require.NotNil(t, left.Old)
	assert.Equal(t, "70", left.Old.ChannelID)
	assert.Empty(t, left.Call.Participants())

	h.reset()
	h.dispatch("CALL_UPDATE", `{"channel_id": "70", "message_id": "900", "ringing": ["1"]}`)
	assert.Equal(t, []events.Type{events.TypeCallUpdate}, h.types(), "already ringing")

	h.reset()
	h.dispatch("CALL_DELETE", `{"channel_id": "70"}`)
	ended := find[events.CallDelete](h).Call
	require.NotNil(t, ended.EndedTimestamp)
	assert.Equal(t, epoch, *ended.EndedTimestamp)
}

func TestLeavingUntrackedCallIsAnError(t *testing.T) {
	h := ready(t)
	h.dispatch("VOICE_STATE_UPDATE", `{"user_id": "9", "channel_id": null, "session_id": "x"}`)

	require.Equal(t, []events.Type{events.TypeError}, h.types())
	assert.ErrorIs(t, find[events.Error](h).Err, state.ErrUntrackedCall)
}

func TestPresenceScopes(t *testing.T) {
	h := ready(t)

	h.dispatch("PRESENCE_UPDATE", `{"user": {"id": "77"}, "status": "online"}`)
	assert.Empty(t, h.got, "presence for a user that is not a relationship")

	h.dispatch("PRESENCE_UPDATE", `{"user": {"id": "5"}, "status": "idle"}`)
	rel := find[events.PresenceUpdate](h)
	require.NotNil(t, rel.Relationship)
	assert.Equal(t, "idle", rel.Relationship.Presence.Status)
	assert.Nil(t, rel.Guild)

	h.reset()
	h.dispatch("PRESENCE_UPDATE", `{"guild_id": "100", "user": {"id": "2"}, "status": "dnd"}`)
	mem := find[events.PresenceUpdate](h)
	assert.Equal(t, "2", mem.Member.ID)
	require.NotNil(t, mem.Old)
	assert.Empty(t, mem.Old.Status)
	assert.Equal(t, "dnd", mem.Member.Presence.Status)
}

func TestPresencesReplaceSkipsMissingMembers(t *testing.T) {
	h := ready(t)
	h.dispatch("PRESENCES_REPLACE", `[
		{"guild_id": "100", "user": {"id": "3"}, "status": "idle"},
		{"guild_id": "100", "user": {"id": "55"}, "status": "idle"}
	]`)

	assert.Empty(t, h.got)
	g, _ := h.state.Guilds.Get("100")
	bob, _ := g.Members.Get("3")
	assert.Equal(t, "idle", bob.Presence.Status)
	assert.False(t, g.Members.Has("55"))
}

func TestChannelTypeChangeRebuildsChannel(t *testing.T) {
	h := ready(t)
	before, _ := h.state.Channel("10")

	h.dispatch("CHANNEL_UPDATE", `{"id": "10", "guild_id": "100", "type": 2, "name": "general", "bitrate": 96000}`)

	ev := find[events.ChannelUpdate](h)
	assert.Equal(t, state.ChannelTypeGuildText, ev.Old.Type)
	vc, ok := ev.Channel.(*state.VoiceChannel)
	require.True(t, ok)
	assert.Equal(t, 96000, vc.Bitrate)
	assert.NotSame(t, before, ev.Channel)
	after, _ := h.state.Channel("10")
	assert.Same(t, vc, after)
}

func TestUnknownChannelTypeWarns(t *testing.T) {
	h := ready(t)
	h.dispatch("CHANNEL_CREATE", `{"id": "13", "guild_id": "100", "type": 42, "name": "future"}`)

	assert.Equal(t, []events.Type{events.TypeWarn, events.TypeChannelCreate}, h.types())
	_, ok := find[events.ChannelCreate](h).Channel.(*state.UnknownChannel)
	assert.True(t, ok)
}

func TestMessageEvents(t *testing.T) {
	h := ready(t)

	h.dispatch("MESSAGE_CREATE", `{"id": "500", "channel_id": "10", "guild_id": "100", "author": {"id": "2"}, "content": "hi"}`)
	created := find[events.MessageCreate](h).Message
	assert.Equal(t, "Countess", created.Member.Nick)

	h.reset()
	h.dispatch("MESSAGE_UPDATE", `{"id": "500", "channel_id": "10", "content": "hello"}`)
	upd := find[events.MessageUpdate](h)
	require.NotNil(t, upd.Old)
	assert.Equal(t, "hi", upd.Old.Content)
	assert.Same(t, created, upd.Message)

	h.reset()
	h.dispatch("MESSAGE_UPDATE", `{"id": "501", "channel_id": "10", "content": "ghost"}`)
	ghost := find[events.MessageUpdate](h)
	assert.Nil(t, ghost.Old)
	assert.Equal(t, "ghost", ghost.Message.Content)
	_, cached := h.state.CachedMessage("10", "501")
	assert.False(t, cached)

	h.reset()
	h.dispatch("MESSAGE_DELETE_BULK", `{"ids": ["500", "502"], "channel_id": "10", "guild_id": "100"}`)
	bulk := find[events.MessageDeleteBulk](h)
	require.Len(t, bulk.Messages, 2)
	assert.Same(t, created, bulk.Messages[0])
	assert.Equal(t, "502", bulk.Messages[1].ID)
}

func TestMessageCreateOpensUncachedDM(t *testing.T) {
	h := ready(t)
	h.dispatch("MESSAGE_CREATE", `{"id": "600", "channel_id": "80", "author": {"id": "9", "username": "ivy"}, "content": "psst"}`)

	find[events.MessageCreate](h)
	dm, ok := h.state.PrivateChannelFor("9")
	require.True(t, ok)
	assert.Equal(t, "80", dm.ID)
}

func TestReactions(t *testing.T) {
	h := ready(t)
	h.dispatch("MESSAGE_CREATE", `{"id": "500", "channel_id": "10", "guild_id": "100", "author": {"id": "2"}, "content": "hi"}`)
	h.reset()

	h.dispatch("MESSAGE_REACTION_ADD", `{"user_id": "1", "channel_id": "10", "message_id": "500", "guild_id": "100",
		"emoji": {"name": "👍"}, "member": {"user": {"id": "1", "username": "dexter"}}}`)
	add := find[events.MessageReactionAdd](h)
	require.NotNil(t, add.Member)
	r, ok := add.Message.Reactions.Get("👍")
	require.True(t, ok)
	assert.True(t, r.Me)
	assert.Equal(t, 1, r.Count)

	h.dispatch("MESSAGE_REACTION_REMOVE_ALL", `{"channel_id": "10", "message_id": "500"}`)
	assert.Zero(t, add.Message.Reactions.Len())

	h.reset()
	h.dispatch("MESSAGE_REACTION_ADD", `{"user_id": "1", "channel_id": "10", "message_id": "999", "emoji": {"name": "x"}}`)
	assert.Equal(t, "999", find[events.MessageReactionAdd](h).Message.ID)
}

func TestRelationships(t *testing.T) {
	h := ready(t)

	h.dispatch("RELATIONSHIP_ADD", `{"id": "5", "type": 2, "user": {"id": "5", "username": "eve"}}`)
	upd := find[events.RelationshipUpdate](h)
	assert.Equal(t, state.RelationshipFriend, upd.OldType)
	assert.Equal(t, state.RelationshipBlocked, upd.Relationship.Type)

	h.reset()
	h.dispatch("RELATIONSHIP_REMOVE", `{"id": "5", "type": 2}`)
	assert.Equal(t, "5", find[events.RelationshipRemove](h).Relationship.ID)

	h.reset()
	h.dispatch("RELATIONSHIP_REMOVE", `{"id": "5", "type": 2}`)
	assert.Equal(t, []events.Type{events.TypeDebug}, h.types())
}

func TestThreadEvents(t *testing.T) {
	h := ready(t)

	h.dispatch("THREAD_CREATE", `{"id": "50", "guild_id": "100", "type": 11, "parent_id": "10", "name": "t"}`)
	th := find[events.ThreadCreate](h).Thread
	assert.Equal(t, "10", th.ParentID)

	h.reset()
	h.dispatch("THREAD_CREATE", `{"id": "50", "guild_id": "100", "type": 11, "parent_id": "10", "name": "t"}`)
	assert.Empty(t, h.got)

	h.dispatch("THREAD_MEMBERS_UPDATE", `{"id": "50", "guild_id": "100", "member_count": 2,
		"added_members": [{"id": "50", "user_id": "2"}], "removed_member_ids": []}`)
	members := find[events.ThreadMembersUpdate](h)
	assert.Equal(t, 2, members.MemberCount)
	assert.True(t, th.Members.Has("2"))

	h.reset()
	h.dispatch("THREAD_UPDATE", `{"id": "50", "guild_id": "100", "type": 11, "name": "renamed"}`)
	upd := find[events.ThreadUpdate](h)
	assert.Equal(t, "t", upd.Old.Name)

	h.reset()
	h.dispatch("THREAD_DELETE", `{"id": "50", "guild_id": "100", "type": 11, "parent_id": "10"}`)
	find[events.ThreadDelete](h)
	_, ok := h.state.Channel("50")
	assert.False(t, ok)
}

func TestThreadTypeChangeRebuildsThread(t *testing.T) {
	h := ready(t)
	h.dispatch("THREAD_CREATE", `{"id": "50", "guild_id": "100", "type": 11, "parent_id": "10", "name": "t"}`)
	before := find[events.ThreadCreate](h).Thread

	h.reset()
	h.dispatch("THREAD_UPDATE", `{"id": "50", "guild_id": "100", "type": 12, "parent_id": "10", "name": "t"}`)
	upd := find[events.ThreadUpdate](h)
	assert.Equal(t, state.ChannelTypeGuildPublicThread, upd.Old.Type)
	assert.Equal(t, state.ChannelTypeGuildPrivateThread, upd.Thread.Kind())
	assert.NotSame(t, before, upd.Thread)

	cached, ok := h.state.Channel("50")
	require.True(t, ok)
	assert.Equal(t, state.ChannelTypeGuildPrivateThread, cached.Kind())
	assert.Same(t, upd.Thread, cached)
}

func TestThreadUpdateCachesThreadGainedByAccess(t *testing.T) {
	h := ready(t)
	h.dispatch("THREAD_UPDATE", `{"id": "51", "guild_id": "100", "type": 11, "parent_id": "10", "name": "old"}`)

	require.Equal(t, []events.Type{events.TypeThreadUpdate}, h.types())
	upd := find[events.ThreadUpdate](h)
	assert.Equal(t, "old", upd.Thread.Name)
	assert.Zero(t, upd.Old)

	cached, ok := h.state.Channel("51")
	require.True(t, ok)
	assert.Same(t, upd.Thread, cached)
	assert.Equal(t, "100", h.state.GuildIDOf("51"))

	h.reset()
	h.dispatch("THREAD_UPDATE", `{"id": "52", "guild_id": "999", "type": 11}`)
	assert.Equal(t, []events.Type{events.TypeDebug}, h.types())
}

func TestTypingStartResolvesMember(t *testing.T) {
	h := ready(t)
	h.dispatch("TYPING_START", `{"channel_id": "10", "guild_id": "100", "user_id": "2", "timestamp": 1709285400,
		"member": {"user": {"id": "2", "username": "ada"}}}`)

	ev := find[events.TypingStart](h)
	assert.Equal(t, "2", ev.User.ID)
	assert.Equal(t, "10", ev.Channel.Key())
	assert.Equal(t, epoch, ev.Timestamp.UTC())
}

func TestInteractionCreate(t *testing.T) {
	h := ready(t)
	h.dispatch("INTERACTION_CREATE", `{"id": "800", "type": 99, "token": "tok", "user": {"id": "2"}}`)

	assert.Equal(t, []events.Type{events.TypeWarn, events.TypeInteractionCreate}, h.types())
	in := find[events.InteractionCreate](h).Interaction
	_, ok := in.(*state.UnknownInteraction)
	assert.True(t, ok)
}

func TestEmojisUpdateCarriesOldList(t *testing.T) {
	h := ready(t)
	h.dispatch("GUILD_EMOJIS_UPDATE", `{"guild_id": "100", "emojis": [{"id": "1", "name": "dex"}]}`)

	ev := find[events.GuildEmojisUpdate](h)
	assert.Empty(t, ev.Old)
	assert.Equal(t, []state.Emoji{{ID: "1", Name: "dex"}}, ev.Emojis)
}
