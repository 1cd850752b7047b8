package voice

import (
	"io"
	"sync"

	"emperror.dev/errors"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
)

const (
	sampleRate   = 48000
	channelCount = 2
)

// SinkFunc opens the destination for one speaker's audio.
type SinkFunc func(userID string, ssrc uint32) (io.Writer, error)

type userStream struct {
	userID string
	ogg    *oggwriter.OggWriter
}

// Recorder writes each source's Opus packets to its own Ogg stream.
type Recorder struct {
	mu      sync.Mutex
	open    SinkFunc
	streams map[uint32]*userStream
	closed  bool
}

// NewRecorder returns a recorder that opens a sink per source on its first
// packet. Sinks implementing io.Closer are closed with the recorder.
func NewRecorder(open SinkFunc) *Recorder {
	return &Recorder{open: open, streams: make(map[uint32]*userStream)}
}

// Write appends p to the stream of its source.
func (r *Recorder) Write(userID string, p *rtp.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrConnectionClosed
	}

	stream, ok := r.streams[p.SSRC]
	if !ok || stream.userID != userID {
		if ok {
			if err := stream.ogg.Close(); err != nil {
				return errors.WrapIf(err, "close ogg stream")
			}
		}
		sink, err := r.open(userID, p.SSRC)
		if err != nil {
			return errors.WrapIf(err, "open recording sink")
		}
		ogg, err := oggwriter.NewWith(sink, sampleRate, channelCount)
		if err != nil {
			return errors.WrapIf(err, "create ogg writer")
		}
		stream = &userStream{userID: userID, ogg: ogg}
		r.streams[p.SSRC] = stream
	}
	return stream.ogg.WriteRTP(p)
}

// Streams returns the number of open streams.
func (r *Recorder) Streams() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

// Close finishes every stream.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for ssrc, stream := range r.streams {
		if err := stream.ogg.Close(); err != nil {
			errs = append(errs, errors.WrapIff(err, "close stream %d", ssrc))
		}
		delete(r.streams, ssrc)
	}
	return errors.Combine(errs...)
}
