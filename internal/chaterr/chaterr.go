// Package chaterr defines the sentinel error kinds shared across the
// chat server's components, so callers can classify a failure with
// errors.Is instead of matching strings.
package chaterr

import "errors"

var (
	// ErrBindFailed means the listener could not be brought up. Fatal.
	// Go's net.Listen performs what some platforms split into a bind
	// step and a listen step as one syscall sequence with one error
	// return, so there is no separate ErrListenFailed here.
	ErrBindFailed = errors.New("bind failed")
	// ErrAcceptFailed is transient: log and keep accepting.
	ErrAcceptFailed = errors.New("accept failed")
	// ErrReadFailed closes and disconnects the offending connection only.
	ErrReadFailed = errors.New("read failed")
	// ErrWriteFailed closes and disconnects the offending connection only.
	ErrWriteFailed = errors.New("write failed")
	// ErrRateLimited is reported back to the client as a textual reply.
	ErrRateLimited = errors.New("rate limited")
	// ErrMuted is reported back to the client as a textual reply.
	ErrMuted = errors.New("muted")
	// ErrUnknownCommand is reported back to the client as a textual reply.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrUnknownUser is reported for #whisper/#kick/#ban/#mute.
	ErrUnknownUser = errors.New("unknown user")
	// ErrRoomExists is reported for #create.
	ErrRoomExists = errors.New("room already exists")
	// ErrRoomMissing is reported for #join.
	ErrRoomMissing = errors.New("room does not exist")
	// ErrBadPassword is reported for #join against a private room.
	ErrBadPassword = errors.New("wrong password")
	// ErrNotOwner is reported for #topic/DeleteRoom when the requester lacks rights.
	ErrNotOwner = errors.New("not the room owner")
	// ErrUnknownClient signals a client ID no longer known to the registry.
	ErrUnknownClient = errors.New("unknown client")
)
