package session

import "context"

// Transport is a connected duplex message channel to the gateway.
type Transport interface {
	// Read blocks until the next complete frame arrives. A closure is
	// reported as a *CloseError.
	Read() ([]byte, error)
	// Write queues a text frame. It is safe for concurrent use.
	Write(data []byte) error
	// Close sends a close frame and releases the connection.
	Close(code int, reason string) error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Transport, error) { return f(ctx, url) }
