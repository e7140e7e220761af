package callerr

import (
	"errors"
	"fmt"
)

var (
	ErrTransport         = errors.New("signaling transport error")
	ErrNotReady          = errors.New("signaling channel not ready")
	ErrNegotiation       = errors.New("negotiation failed")
	ErrDeviceUnavailable = errors.New("media device unavailable")
	ErrRoomLookup        = errors.New("room lookup failed")
	ErrRoomNotFound      = errors.New("room not found")
	ErrServer            = errors.New("server error")
	ErrNotJoined         = errors.New("not in a room")
	ErrEmptyMessage      = errors.New("empty chat message")
	ErrSessionClosed     = errors.New("session coordinator stopped")
	ErrDuplicateLink     = errors.New("peer already linked")
	ErrLinkClosed        = errors.New("peer link closed")
)

// CallError attaches the failed operation and, when known, the remote
// participant to one of the sentinel errors above.
type CallError struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *CallError) Error() string {
	if e.Peer != "" {
		if e.Details != "" {
			return fmt.Sprintf("%s %s: %v (%s)", e.Op, e.Peer, e.Err, e.Details)
		}
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *CallError {
	return &CallError{Op: op, Err: err}
}

func NewPeerError(op, peer string, err error) *CallError {
	return &CallError{Op: op, Peer: peer, Err: err}
}

func WrapError(op string, err error, details string) *CallError {
	return &CallError{Op: op, Err: err, Details: details}
}

// ForPeer attributes err to peer. A CallError that names no peer is copied
// with peer filled in; any other error is wrapped in one.
func ForPeer(err error, peer string) error {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*CallError); ok {
		if ce.Peer != "" {
			return err
		}
		attributed := *ce
		attributed.Peer = peer
		return &attributed
	}
	return NewPeerError("peer link", peer, err)
}

// Negotiation wraps cause as a negotiation fault for peer, keeping both
// ErrNegotiation and cause reachable through errors.Is.
func Negotiation(op, peer string, cause error) *CallError {
	if cause == nil {
		return &CallError{Op: op, Peer: peer, Err: ErrNegotiation}
	}
	return &CallError{Op: op, Peer: peer, Err: fmt.Errorf("%w: %w", ErrNegotiation, cause)}
}

// RoomLookup wraps cause as a room lookup fault. cause may itself be
// ErrRoomNotFound or ErrServer.
func RoomLookup(op string, cause error, details string) *CallError {
	switch {
	case cause == nil:
		return &CallError{Op: op, Err: ErrRoomLookup, Details: details}
	case errors.Is(cause, ErrRoomLookup):
		return &CallError{Op: op, Err: cause, Details: details}
	}
	return &CallError{Op: op, Err: fmt.Errorf("%w: %w", ErrRoomLookup, cause), Details: details}
}
