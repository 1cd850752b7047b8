package session

import (
	"fmt"

	"emperror.dev/errors"
)

const (
	// ErrNotConnected is returned when sending on a session without an open
	// transport.
	ErrNotConnected = errors.Sentinel("session not connected")

	// ErrReconnectsExhausted is reported when the reconnect attempt limit is
	// reached.
	ErrReconnectsExhausted = errors.Sentinel("reconnect attempts exhausted")

	// ErrHeartbeatTimeout is reported when a heartbeat goes unacknowledged.
	ErrHeartbeatTimeout = errors.Sentinel("heartbeat not acknowledged")

	// ErrConnectionTimeout is reported when the handshake does not complete
	// in time.
	ErrConnectionTimeout = errors.Sentinel("connection timed out")
)

// Gateway close codes with special handling.
const (
	CloseNormal               = 1000
	CloseUnknownError         = 4000
	CloseAuthenticationFailed = 4004
	CloseInvalidSeq           = 4007
	CloseSessionTimedOut      = 4009
	CloseInvalidShard         = 4010
	CloseShardingRequired     = 4011
	CloseInvalidAPIVersion    = 4012
	CloseInvalidIntents       = 4013
	CloseDisallowedIntents    = 4014
)

// CloseError describes a transport closure.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("gateway closed with code %d", e.Code)
	}
	return fmt.Sprintf("gateway closed with code %d: %s", e.Code, e.Reason)
}

// Fatal reports whether the close code forbids reconnecting.
func (e *CloseError) Fatal() bool {
	switch e.Code {
	case CloseAuthenticationFailed, CloseInvalidShard, CloseShardingRequired,
		CloseInvalidAPIVersion, CloseInvalidIntents, CloseDisallowedIntents:
		return true
	}
	return false
}

// invalidatesSession reports whether the close code discards the resumable
// session.
func (e *CloseError) invalidatesSession() bool {
	return e.Code == CloseInvalidSeq || e.Code == CloseSessionTimedOut
}

// FatalCloseError wraps a closure after which the session stays down.
type FatalCloseError struct {
	Shard int
	Close *CloseError
}

func (e *FatalCloseError) Error() string {
	return fmt.Sprintf("shard %d: %v", e.Shard, e.Close)
}

func (e *FatalCloseError) Unwrap() error { return e.Close }
