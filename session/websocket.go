package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/time/rate"
)

// Gateway send limit: 120 frames per minute per connection.
const (
	sendRate  = rate.Limit(120.0 / 60.0)
	sendBurst = 4
)

// WebsocketDialer opens gateway transports over gorilla/websocket.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	// Compress inflates a zlib-stream compressed connection. The dialled URL
	// must request compress=zlib-stream.
	Compress bool
	Logger   *slog.Logger
}

// Dial connects to url.
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		return nil, err
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &websocketTransport{
		conn:    conn,
		limiter: rate.NewLimiter(sendRate, sendBurst),
		out:     make(chan []byte, 64),
		ctx:     ctx,
		cancel:  cancel,
		log:     logger,
	}
	if d.Compress {
		t.startInflater()
	}
	go t.writePump()
	return t, nil
}

type websocketTransport struct {
	conn    *websocket.Conn
	limiter *rate.Limiter
	out     chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
	log     *slog.Logger

	closeOnce sync.Once
	closeErr  atomic.Pointer[CloseError]

	// zlib-stream state, nil when uncompressed.
	pipe    *io.PipeWriter
	decoder *json.Decoder
}

var zlibSuffix = []byte{0x00, 0x00, 0xff, 0xff}

// startInflater feeds binary frames through one shared zlib stream. Each
// frame boundary ending in the sync-flush suffix completes a JSON document.
func (t *websocketTransport) startInflater() {
	pr, pw := io.Pipe()
	t.pipe = pw
	t.decoder = json.NewDecoder(&lazyZlib{src: pr})

	go func() {
		for {
			_, data, err := t.conn.ReadMessage()
			if err != nil {
				_ = pw.CloseWithError(t.convert(err))
				return
			}
			if !bytes.HasSuffix(data, zlibSuffix) {
				t.log.Debug("partial zlib frame", "bytes", len(data))
			}
			if _, err := pw.Write(data); err != nil {
				return
			}
		}
	}()
}

// lazyZlib defers reading the zlib header until the first frame arrives.
type lazyZlib struct {
	src io.Reader
	r   io.ReadCloser
}

func (z *lazyZlib) Read(p []byte) (int, error) {
	if z.r == nil {
		r, err := zlib.NewReader(z.src)
		if err != nil {
			return 0, err
		}
		z.r = r
	}
	return z.r.Read(p)
}

func (t *websocketTransport) Read() ([]byte, error) {
	if t.decoder != nil {
		var raw json.RawMessage
		if err := t.decoder.Decode(&raw); err != nil {
			if ce := t.closeErr.Load(); ce != nil {
				return nil, ce
			}
			return nil, err
		}
		return raw, nil
	}

	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, t.convert(err)
	}
	return data, nil
}

// convert maps websocket closures to *CloseError and remembers them.
func (t *websocketTransport) convert(err error) error {
	var ce *CloseError
	if wsErr, ok := err.(*websocket.CloseError); ok {
		ce = &CloseError{Code: wsErr.Code, Reason: wsErr.Text}
	} else if t.ctx.Err() != nil {
		ce = &CloseError{Code: CloseNormal, Reason: "closed locally"}
	} else {
		return err
	}
	t.closeErr.CompareAndSwap(nil, ce)
	return ce
}

func (t *websocketTransport) Write(data []byte) error {
	select {
	case t.out <- data:
		return nil
	case <-t.ctx.Done():
		return ErrNotConnected
	}
}

func (t *websocketTransport) writePump() {
	for {
		select {
		case data := <-t.out:
			if err := t.limiter.Wait(t.ctx); err != nil {
				return
			}
			if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				t.log.Warn("gateway write failed", "error", err)
				return
			}
		case <-t.ctx.Done():
			return
		}
	}
}

func (t *websocketTransport) Close(code int, reason string) error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()
		deadline := time.Now().Add(time.Second)
		_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		err = t.conn.Close()
		if t.pipe != nil {
			_ = t.pipe.CloseWithError(&CloseError{Code: code, Reason: reason})
		}
	})
	return err
}
