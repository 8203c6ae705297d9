package mining

import (
	"context"
	"fmt"
	"sync"
)

// DownstreamStatus is the lifecycle of one downstream connection, from the
// moment a secure transport is established to the point it has a working
// channel relationship with the upstream.
type DownstreamStatus int

const (
	// Initializing: transport is up, SetupConnection has not completed.
	Initializing DownstreamStatus = iota
	// Paired: SetupConnection succeeded, channels may now be opened.
	Paired
	// Closed: the connection has been torn down.
	Closed
)

func (s DownstreamStatus) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Paired:
		return "paired"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// CommonDownstreamData is the connection-level information negotiated
// during SetupConnection, independent of any channel later opened on top
// of it.
type CommonDownstreamData struct {
	ChannelType          ChannelType
	WorkSelectionEnabled bool
	FirmwareVersion      string
}

// Session ties one downstream connection's lifecycle, its router, and the
// shared upstream it has been assigned to into a single owner. A Session is
// meant to be driven by one goroutine per connection: all mutation of
// status and of the embedded Router happens on that goroutine, matching
// the actor discipline the rest of this package assumes.
type Session struct {
	Peer Peer
	Data CommonDownstreamData
	// Setup, when non-nil, is consulted by Pair to run the connection's
	// SetupConnection handshake before the session is marked Paired. A nil
	// Setup skips that step, for callers that have already completed it
	// out of band.
	Setup CommonMessages
	// Routing, when non-nil, is passed through to the Router Pair builds,
	// so every channel this session opens is subject to the same
	// upstream-selection policy.
	Routing RoutingLogic

	mu     sync.Mutex
	status DownstreamStatus

	Router *Router
}

// NewSession starts a session in the Initializing state. Router is nil
// until Pair is called, since the channel type and work-selection flag
// (both inputs to the Router) are only known once SetupConnection
// completes.
func NewSession(peer Peer) *Session {
	return &Session{Peer: peer, status: Initializing}
}

// Status returns the session's current lifecycle state.
func (s *Session) Status() DownstreamStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Pair runs the session's SetupConnection handshake (via Setup, if one is
// configured) and transitions the session out of Initializing, building the
// Router now that the connection's channel type and work-selection flag
// are known.
func (s *Session) Pair(ctx context.Context, data CommonDownstreamData, upstream *Upstream) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Initializing {
		return fmt.Errorf("mining: cannot pair session in state %s", s.status)
	}
	if s.Setup != nil {
		if err := s.Setup.HandleSetupConnection(ctx, s.Peer); err != nil {
			return fmt.Errorf("setup connection: %w", err)
		}
	}
	s.Data = data
	s.Router = NewRouter(data.ChannelType, data.WorkSelectionEnabled, upstream, s.Routing)
	s.status = Paired
	return nil
}

// Close transitions the session to Closed. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Closed
}

// HandleDownstream routes a message received from this session's peer,
// rejecting anything that arrives before pairing completes.
func (s *Session) HandleDownstream(ctx context.Context, msg Message) (SendTo, error) {
	s.mu.Lock()
	status := s.status
	router := s.Router
	s.mu.Unlock()

	if status != Paired {
		return sendNone(), fmt.Errorf("%w: message received before SetupConnection completed", ErrUnexpectedMessage)
	}
	return router.HandleDownstream(ctx, s.Peer, msg)
}
