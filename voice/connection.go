package voice

import (
	"context"
	"sync"

	"emperror.dev/errors"
	"github.com/pion/rtp"
)

// ErrUnknownSSRC is returned when a packet arrives from a source no
// speaking update has announced.
const ErrUnknownSSRC = errors.Sentinel("unknown ssrc")

// Info is the voice server assignment for one connection.
type Info struct {
	GuildID   string
	ChannelID string
	SessionID string
	Token     string
	Endpoint  string
}

// Connection tracks one voice session, in a guild or in a DM call. It
// becomes ready once both the account's own voice state and the voice
// server assignment have arrived.
type Connection struct {
	key string

	mu       sync.Mutex
	info     Info
	mute     bool
	deaf     bool
	ssrcs    map[uint32]string
	unmapped map[uint32]bool
	recorder *Recorder
	ready    chan struct{}
	closed   chan struct{}
}

func newConnection(key, guildID, channelID string, mute, deaf bool) *Connection {
	return &Connection{
		key:      key,
		info:     Info{GuildID: guildID, ChannelID: channelID},
		mute:     mute,
		deaf:     deaf,
		ssrcs:    make(map[uint32]string),
		unmapped: make(map[uint32]bool),
		ready:    make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

// Key is the guild id, or CallKey for a DM call.
func (c *Connection) Key() string { return c.key }

// Info returns the current assignment.
func (c *Connection) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Ready reports whether the session id, token and endpoint are all known.
func (c *Connection) Ready() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

// Wait blocks until the connection is ready, dropped or ctx ends.
func (c *Connection) Wait(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.closed:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) setState(channelID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info.ChannelID = channelID
	c.info.SessionID = sessionID
	c.checkReadyLocked()
}

func (c *Connection) setServer(token, endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info.Token = token
	c.info.Endpoint = endpoint
	c.checkReadyLocked()
}

func (c *Connection) checkReadyLocked() {
	if c.info.SessionID == "" || c.info.Token == "" || c.info.Endpoint == "" {
		return
	}
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
}

// SetSpeaking maps an RTP source to the user announced by a speaking
// update.
func (c *Connection) SetSpeaking(ssrc uint32, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ssrcs[ssrc] = userID
	delete(c.unmapped, ssrc)
}

// RemoveSpeaker forgets every source mapped to userID.
func (c *Connection) RemoveSpeaker(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ssrc, id := range c.ssrcs {
		if id == userID {
			delete(c.ssrcs, ssrc)
		}
	}
}

// Unmapped returns how many sources sent audio before being announced.
func (c *Connection) Unmapped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.unmapped)
}

// Attribute parses a decrypted RTP packet and resolves its sender. When a
// recorder is attached, attributed packets are written to it.
func (c *Connection) Attribute(data []byte) (string, *rtp.Packet, error) {
	p := &rtp.Packet{}
	if err := p.Unmarshal(data); err != nil {
		return "", nil, errors.WrapIf(err, "parse rtp packet")
	}

	c.mu.Lock()
	userID, ok := c.ssrcs[p.SSRC]
	if !ok {
		c.unmapped[p.SSRC] = true
	}
	rec := c.recorder
	c.mu.Unlock()

	if !ok {
		return "", p, errors.WithDetails(ErrUnknownSSRC, "ssrc", p.SSRC)
	}
	if rec != nil {
		if err := rec.Write(userID, p); err != nil {
			return userID, p, err
		}
	}
	return userID, p, nil
}

// Record attaches a recorder; nil detaches. The previous recorder is
// returned and not closed.
func (c *Connection) Record(r *Recorder) *Recorder {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.recorder
	c.recorder = r
	return prev
}

// close marks the connection dropped and closes its recorder.
func (c *Connection) close() error {
	c.mu.Lock()
	rec := c.recorder
	c.recorder = nil
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	c.mu.Unlock()

	if rec != nil {
		return rec.Close()
	}
	return nil
}
