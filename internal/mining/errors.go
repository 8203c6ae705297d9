package mining

import "errors"

var (
	// ErrBadMessage marks a wire payload that failed to decode.
	ErrBadMessage = errors.New("mining: malformed message")
	// ErrUnexpectedMessage marks a message type not admissible in the
	// direction and channel configuration it arrived on.
	ErrUnexpectedMessage = errors.New("mining: unexpected message for this channel configuration")
	// ErrUnknownChannel marks a channel_id with no registry entry.
	ErrUnknownChannel = errors.New("mining: unknown channel id")
	// ErrUnknownJob marks a job_id with no registry entry.
	ErrUnknownJob = errors.New("mining: unknown job id")
	// ErrUnknownGroup marks a group_id with no registry entry.
	ErrUnknownGroup = errors.New("mining: unknown group id")
	// ErrPeerClosed marks an attempt to route to a peer that has gone away.
	ErrPeerClosed = errors.New("mining: peer connection closed")
	// ErrNoJobDispatcher marks a group with no JobDispatcher bound to it.
	ErrNoJobDispatcher = errors.New("mining: no job dispatcher for group")
)
