package mining

import (
	"context"

	"github.com/google/uuid"
)

// PeerID identifies one side of a routed connection: a downstream device or
// sub-proxy, or an upstream pool connection.
type PeerID string

// NewPeerID mints a fresh, collision-resistant PeerID for a connection that
// has not yet identified itself by any more meaningful name (a downstream
// device is only known by its SetupConnection fields once pairing
// completes; until then the caller needs something to log and key maps by).
func NewPeerID() PeerID {
	return PeerID(uuid.NewString())
}

// Peer is anything the Router can hand an outbound Message to. Downstream
// connections and upstream connections both implement it; the Router never
// distinguishes beyond the direction a message arrived from.
type Peer interface {
	// ID returns the peer's stable identifier, used as a registry and log key.
	ID() PeerID

	// Send delivers m to the peer. Implementations should not block longer
	// than ctx allows.
	Send(ctx context.Context, m Message) error
}

// ShareVerdict is the result a JobDispatcher reaches for one submitted share.
type ShareVerdict int

const (
	ShareValid ShareVerdict = iota
	ShareInvalid
	ShareStale
)

// JobDispatcher validates and rewrites share submissions for one group of
// channels sharing a common job stream. Each upstream connection keeps one
// JobDispatcher per group, mirroring the per-group job-id remapping needed
// when several downstream channels multiplex over a single upstream job.
//
// Grounded on the Rust reference's per-channel job-dispatcher map on
// DownstreamMiningNode, generalized to an interface so routing tests can
// supply a fake without a real job-template engine.
type JobDispatcher interface {
	// OnSubmitSharesStandard validates share against the job it names and,
	// if valid, returns the message to forward upstream with any ids
	// rewritten into the upstream's own numbering.
	OnSubmitSharesStandard(share SubmitSharesStandard) (ShareVerdict, SubmitSharesStandard, error)

	// OnSubmitSharesExtended is OnSubmitSharesStandard's extended-channel
	// counterpart.
	OnSubmitSharesExtended(share SubmitSharesExtended) (ShareVerdict, SubmitSharesExtended, error)
}

// RoutingLogic supplies the policy decision the Router itself does not
// make: which upstream peer should receive a newly opened channel. It has no
// hook for channel-open success replies; the Router relays those unchanged
// to the downstream that sent the open request. It is intentionally narrow,
// the same way the teacher keeps transport framing and session policy in
// separate types.
type RoutingLogic interface {
	// ChooseUpstream picks the upstream peer a new channel-open request
	// should be forwarded to.
	ChooseUpstream(ctx context.Context, req Message) (Peer, error)
}

// CommonMessages handles the connection-lifecycle messages that exist
// outside the per-channel tables (Tables 1 and 2 only cover mining
// messages once a connection's setup phase has completed).
type CommonMessages interface {
	// HandleSetupConnection processes the connection-level handshake that
	// precedes any channel being opened.
	HandleSetupConnection(ctx context.Context, downstream Peer) error
}
