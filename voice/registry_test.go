package voice

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"emperror.dev/errors"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EasterCompany/dex-discord-gateway/events"
	"github.com/EasterCompany/dex-discord-gateway/state"
)

type voiceUpdate struct {
	guildID, channelID string
	mute, deaf         bool
}

type fakeSender struct {
	mu      sync.Mutex
	updates []voiceUpdate
	err     error
}

func (s *fakeSender) UpdateVoiceState(guildID, channelID string, mute, deaf bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, voiceUpdate{guildID, channelID, mute, deaf})
	return nil
}

type fakeRouter struct {
	routes map[string]*fakeSender
}

func (r fakeRouter) Route(guildID string) (Sender, error) {
	s, ok := r.routes[guildID]
	if !ok {
		return nil, errors.New("guild not owned")
	}
	return s, nil
}

type registryHarness struct {
	registry *Registry
	bus      *events.Bus
	guild    *fakeSender
	dm       *fakeSender
}

func newRegistryHarness(t *testing.T) *registryHarness {
	h := &registryHarness{
		bus:   events.NewBus(nil),
		guild: &fakeSender{},
		dm:    &fakeSender{},
	}
	router := fakeRouter{routes: map[string]*fakeSender{"100": h.guild, "": h.dm}}
	h.registry = NewRegistry(router, func() string { return "1" }, nil)
	t.Cleanup(h.registry.Subscribe(h.bus))
	return h
}

func (h *registryHarness) selfState(guildID, channelID, sessionID string) {
	ev := events.VoiceStateUpdate{UserID: "1", ChannelID: channelID, SessionID: sessionID}
	if guildID != "" {
		ev.Guild = &state.Guild{ID: guildID}
	}
	h.bus.Emit(ev)
}

func TestJoinSendsThroughOwningSession(t *testing.T) {
	h := newRegistryHarness(t)

	conn, err := h.registry.Join("100", "11", false, true)
	require.NoError(t, err)
	assert.Equal(t, "100", conn.Key())
	assert.Equal(t, []voiceUpdate{{"100", "11", false, true}}, h.guild.updates)
	assert.Empty(t, h.dm.updates)
	assert.False(t, conn.Ready())

	_, err = h.registry.Join("200", "21", false, false)
	assert.Error(t, err)
	assert.Equal(t, 1, h.registry.Len())
}

func TestConnectionReadyAfterStateAndServer(t *testing.T) {
	h := newRegistryHarness(t)
	conn, err := h.registry.Join("100", "11", false, false)
	require.NoError(t, err)

	// Someone else's voice state is ignored.
	h.bus.Emit(events.VoiceStateUpdate{Guild: &state.Guild{ID: "100"}, UserID: "2", ChannelID: "11", SessionID: "other"})
	h.selfState("100", "11", "voice-session")
	assert.False(t, conn.Ready())

	h.bus.Emit(events.VoiceServerUpdate{GuildID: "100", Token: "tok", Endpoint: "voice.test:443"})
	require.True(t, conn.Ready())
	require.NoError(t, conn.Wait(context.Background()))
	assert.Equal(t, Info{
		GuildID:   "100",
		ChannelID: "11",
		SessionID: "voice-session",
		Token:     "tok",
		Endpoint:  "voice.test:443",
	}, conn.Info())
}

func TestCallConnectionUsesCallKey(t *testing.T) {
	h := newRegistryHarness(t)
	conn, err := h.registry.Join("", "70", true, false)
	require.NoError(t, err)
	assert.Equal(t, CallKey, conn.Key())
	assert.Equal(t, []voiceUpdate{{"", "70", true, false}}, h.dm.updates)

	h.selfState("", "70", "call-session")
	h.bus.Emit(events.VoiceServerUpdate{Token: "tok", Endpoint: "call.test"})
	assert.True(t, conn.Ready())
}

func TestLeaveDropsConnection(t *testing.T) {
	h := newRegistryHarness(t)
	conn, err := h.registry.Join("100", "11", true, true)
	require.NoError(t, err)

	require.NoError(t, h.registry.Leave("100"))
	assert.Equal(t, voiceUpdate{"100", "", true, true}, h.guild.updates[1])
	_, ok := h.registry.Get("100")
	assert.False(t, ok)
	assert.ErrorIs(t, conn.Wait(context.Background()), ErrConnectionClosed)

	// Leaving again is a no-op.
	require.NoError(t, h.registry.Leave("100"))
	assert.Len(t, h.guild.updates, 2)
}

func TestServerSideDisconnectAndGuildDeleteDropConnections(t *testing.T) {
	h := newRegistryHarness(t)
	_, err := h.registry.Join("100", "11", false, false)
	require.NoError(t, err)
	h.selfState("100", "", "")
	assert.Equal(t, 0, h.registry.Len())

	_, err = h.registry.Join("100", "11", false, false)
	require.NoError(t, err)
	h.bus.Emit(events.GuildDelete{Guild: &state.Guild{ID: "100"}})
	assert.Equal(t, 0, h.registry.Len())
}

func TestFailedJoinForgetsNewConnection(t *testing.T) {
	h := newRegistryHarness(t)
	h.guild.err = errors.New("session not connected")

	_, err := h.registry.Join("100", "11", false, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "join voice channel 11")
	assert.Equal(t, 0, h.registry.Len())
}

func TestWaitHonoursContext(t *testing.T) {
	h := newRegistryHarness(t)
	conn, err := h.registry.Join("100", "11", false, false)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, conn.Wait(ctx), context.DeadlineExceeded)
}

func opusPacket(t *testing.T, ssrc uint32, seq uint16) []byte {
	t.Helper()
	p := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    0x78,
			SequenceNumber: seq,
			Timestamp:      uint32(seq) * 960,
			SSRC:           ssrc,
		},
		Payload: []byte{0xf8, 0xff, 0xfe},
	}
	b, err := p.Marshal()
	require.NoError(t, err)
	return b
}

type closingBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *closingBuffer) Close() error {
	b.closed = true
	return nil
}

func TestAttributeResolvesSpeakers(t *testing.T) {
	conn := newConnection("100", "100", "11", false, false)

	_, p, err := conn.Attribute(opusPacket(t, 42, 1))
	assert.ErrorIs(t, err, ErrUnknownSSRC)
	require.NotNil(t, p)
	assert.EqualValues(t, 42, p.SSRC)
	assert.Equal(t, 1, conn.Unmapped())

	conn.SetSpeaking(42, "2")
	assert.Equal(t, 0, conn.Unmapped())
	userID, p, err := conn.Attribute(opusPacket(t, 42, 2))
	require.NoError(t, err)
	assert.Equal(t, "2", userID)
	assert.EqualValues(t, 2, p.SequenceNumber)

	conn.RemoveSpeaker("2")
	_, _, err = conn.Attribute(opusPacket(t, 42, 3))
	assert.ErrorIs(t, err, ErrUnknownSSRC)

	_, _, err = conn.Attribute([]byte{0x80})
	assert.Error(t, err)
}

func TestRecorderWritesOggPerSource(t *testing.T) {
	sinks := map[string]*closingBuffer{}
	rec := NewRecorder(func(userID string, _ uint32) (io.Writer, error) {
		b := &closingBuffer{}
		sinks[userID] = b
		return b, nil
	})

	conn := newConnection("100", "100", "11", false, false)
	conn.SetSpeaking(42, "2")
	conn.SetSpeaking(43, "3")
	assert.Nil(t, conn.Record(rec))

	for seq := uint16(1); seq <= 3; seq++ {
		_, _, err := conn.Attribute(opusPacket(t, 42, seq))
		require.NoError(t, err)
	}
	_, _, err := conn.Attribute(opusPacket(t, 43, 1))
	require.NoError(t, err)

	assert.Equal(t, 2, rec.Streams())
	require.Contains(t, sinks, "2")
	assert.True(t, bytes.HasPrefix(sinks["2"].Bytes(), []byte("OggS")))

	require.NoError(t, conn.close())
	assert.True(t, sinks["2"].closed)
	assert.True(t, sinks["3"].closed)
	assert.Equal(t, 0, rec.Streams())
	assert.ErrorIs(t, rec.Write("2", &rtp.Packet{}), ErrConnectionClosed)
}
