package mining

import (
	"context"
	"fmt"
	"sync"
)

// SendToKind tags the category of action a routing decision resolves to.
// It exists mainly so tests and logging can assert on routing shape without
// reaching into message payloads.
type SendToKind int

const (
	// None means the message was fully handled and produces no further
	// action (e.g. a duplicate or a message this router silently drops).
	None SendToKind = iota
	// RelaySameMessage forwards the triggering message unchanged to To.
	RelaySameMessage
	// RelayNewMessage forwards a newly constructed message (ids rewritten,
	// or an unrelated message synthesized in response) to To.
	RelayNewMessage
	// Respond sends a message back on the connection the trigger arrived
	// on, typically an error or acknowledgement.
	Respond
	// Multiple bundles several SendTo values that must all be dispatched,
	// in order, for one trigger.
	Multiple
)

// SendTo is the router's routing decision for one incoming message.
type SendTo struct {
	Kind  SendToKind
	To    Peer
	Msg   Message
	Items []SendTo
}

func sendRelaySame(to Peer, msg Message) SendTo {
	return SendTo{Kind: RelaySameMessage, To: to, Msg: msg}
}
func sendRelayNew(to Peer, msg Message) SendTo {
	return SendTo{Kind: RelayNewMessage, To: to, Msg: msg}
}
func sendRespond(to Peer, msg Message) SendTo { return SendTo{Kind: Respond, To: to, Msg: msg} }
func sendMultiple(items ...SendTo) SendTo     { return SendTo{Kind: Multiple, Items: items} }
func sendNone() SendTo                        { return SendTo{Kind: None} }

// admissibility records which channel types, and whether work selection, a
// message type needs to legally appear on a connection; checkAdmissible
// applies it. This is the declarative form of Tables 1 and 2: a message not
// in its table's entry, or whose channel-type/work-selection gate fails, is
// ErrUnexpectedMessage rather than something the router tries to interpret.
type admissibility struct {
	types        map[ChannelType]bool
	needsWorkSel bool
}

func allTypes() map[ChannelType]bool {
	return map[ChannelType]bool{Standard: true, Extended: true, Group: true, GroupAndExtended: true}
}

// table1 governs downstream -> upstream messages.
var table1 = map[MessageType]admissibility{
	MsgOpenStandardMiningChannel: {types: map[ChannelType]bool{Standard: true, Group: true, GroupAndExtended: true}},
	MsgOpenExtendedMiningChannel: {types: map[ChannelType]bool{Extended: true, GroupAndExtended: true}},
	MsgUpdateChannel:             {types: allTypes()},
	MsgSubmitSharesStandard:      {types: map[ChannelType]bool{Standard: true, Group: true, GroupAndExtended: true}},
	MsgSubmitSharesExtended:      {types: map[ChannelType]bool{Extended: true, GroupAndExtended: true}},
	MsgSetCustomMiningJob:        {types: map[ChannelType]bool{Extended: true, Group: true, GroupAndExtended: true}, needsWorkSel: true},
}

// table2 governs upstream -> downstream messages.
var table2 = map[MessageType]admissibility{
	MsgOpenStandardMiningChannelSuccess: {types: map[ChannelType]bool{Standard: true, Group: true, GroupAndExtended: true}},
	MsgOpenExtendedMiningChannelSuccess: {types: map[ChannelType]bool{Extended: true, GroupAndExtended: true}},
	MsgOpenMiningChannelError:           {types: allTypes()},
	MsgUpdateChannelError:               {types: allTypes()},
	MsgCloseChannel:                     {types: allTypes()},
	MsgSetExtranoncePrefix:              {types: allTypes()},
	MsgSubmitSharesSuccess:              {types: allTypes()},
	MsgSubmitSharesError:                {types: allTypes()},
	MsgNewMiningJob:                     {types: map[ChannelType]bool{Standard: true}},
	MsgNewExtendedMiningJob:             {types: map[ChannelType]bool{Extended: true, Group: true, GroupAndExtended: true}},
	MsgSetNewPrevHash:                   {types: allTypes()},
	MsgSetTarget:                        {types: allTypes()},
	MsgSetCustomMiningJobSuccess:        {types: map[ChannelType]bool{Extended: true, Group: true, GroupAndExtended: true}, needsWorkSel: true},
	MsgSetCustomMiningJobError:          {types: map[ChannelType]bool{Extended: true, Group: true, GroupAndExtended: true}, needsWorkSel: true},
	MsgSetGroupChannel:                  {types: map[ChannelType]bool{Group: true, GroupAndExtended: true}},
	MsgReconnect:                        {types: allTypes()},
}

func checkAdmissible(table map[MessageType]admissibility, msgType MessageType, chType ChannelType, workSelectionEnabled bool) error {
	rule, ok := table[msgType]
	if !ok {
		return fmt.Errorf("%w: message type %d has no admissibility entry", ErrUnexpectedMessage, msgType)
	}
	if !rule.types[chType] {
		return fmt.Errorf("%w: message type %d not admissible on %s channel", ErrUnexpectedMessage, msgType, chType)
	}
	if rule.needsWorkSel && !workSelectionEnabled {
		return fmt.Errorf("%w: message type %d requires work selection", ErrUnexpectedMessage, msgType)
	}
	return nil
}

// Router is the connection-wide dispatcher: it owns the identifier
// translation tables for one upstream connection and decides, for every
// inbound message, who should receive what. Its state is intended to be
// touched from a single owning goroutine per connection (an actor), the
// same non-suspending-critical-section discipline the teacher's transport
// types use for their own short-held locks.
type Router struct {
	ChannelType          ChannelType
	WorkSelectionEnabled bool
	Registry             *Registry
	Upstream             *Upstream
	// Routing picks the upstream peer for a newly opened channel when set.
	// A nil Routing falls back to the single Upstream configured above,
	// which is the only policy a Router with one upstream connection needs.
	Routing RoutingLogic

	mu           sync.Mutex
	pendingOpens map[uint32]Peer // request_id -> downstream awaiting an Open*ChannelSuccess/Error
	channelPeers map[uint32]Peer // channel_id -> owning downstream peer
}

// NewRouter constructs a Router for one upstream connection. routing may be
// nil, in which case every newly opened channel is forwarded to upstream.
func NewRouter(chType ChannelType, workSelectionEnabled bool, upstream *Upstream, routing RoutingLogic) *Router {
	return &Router{
		ChannelType:          chType,
		WorkSelectionEnabled: workSelectionEnabled,
		Registry:             NewRegistry(),
		Upstream:             upstream,
		Routing:              routing,
		pendingOpens:         make(map[uint32]Peer),
		channelPeers:         make(map[uint32]Peer),
	}
}

// chooseUpstream resolves the upstream peer a channel-open request should
// be forwarded to, consulting Routing when the Router was given one.
func (r *Router) chooseUpstream(ctx context.Context, req Message) (Peer, error) {
	if r.Routing != nil {
		return r.Routing.ChooseUpstream(ctx, req)
	}
	return r.Upstream.Peer, nil
}

// HandleDownstream routes one message received from a downstream peer.
func (r *Router) HandleDownstream(ctx context.Context, downstream Peer, msg Message) (SendTo, error) {
	if err := checkAdmissible(table1, msg.messageType(), r.ChannelType, r.WorkSelectionEnabled); err != nil {
		return sendNone(), err
	}

	switch m := msg.(type) {
	case OpenStandardMiningChannel:
		upstreamPeer, err := r.chooseUpstream(ctx, m)
		if err != nil {
			return sendNone(), fmt.Errorf("choose upstream: %w", err)
		}
		r.mu.Lock()
		r.pendingOpens[m.RequestID] = downstream
		r.mu.Unlock()
		return sendRelaySame(upstreamPeer, m), nil

	case OpenExtendedMiningChannel:
		upstreamPeer, err := r.chooseUpstream(ctx, m)
		if err != nil {
			return sendNone(), fmt.Errorf("choose upstream: %w", err)
		}
		r.mu.Lock()
		r.pendingOpens[m.RequestID] = downstream
		r.mu.Unlock()
		return sendRelaySame(upstreamPeer, m), nil

	case UpdateChannel:
		if _, err := r.Registry.GroupIDFromChannelID(m.ChannelID); err != nil {
			return sendRespond(downstream, UpdateChannelError{ChannelID: m.ChannelID, ErrorCode: "unknown-channel"}), nil
		}
		return sendRelaySame(r.Upstream.Peer, m), nil

	case SubmitSharesStandard:
		return r.routeSubmitStandard(downstream, m)

	case SubmitSharesExtended:
		return r.routeSubmitExtended(downstream, m)

	case SetCustomMiningJob:
		return sendRelaySame(r.Upstream.Peer, m), nil

	default:
		return sendNone(), fmt.Errorf("%w: unhandled downstream message %T", ErrUnexpectedMessage, msg)
	}
}

// routeSubmitStandard implements the share-submission translation
// algorithm for standard channels: resolve the submitting channel's group,
// confirm job_id was actually issued on this channel, fetch that group's
// JobDispatcher, and let it validate and rewrite the share before it is
// relayed upstream.
func (r *Router) routeSubmitStandard(downstream Peer, m SubmitSharesStandard) (SendTo, error) {
	groupID, err := r.Registry.GroupIDFromChannelID(m.ChannelID)
	if err != nil {
		return sendRespond(downstream, SubmitSharesError{ChannelID: m.ChannelID, JobID: m.JobID, ErrorCode: "unknown-channel"}), nil
	}
	if owner, err := r.Registry.ChannelFromJobID(m.JobID); err != nil || owner != m.ChannelID {
		return sendRespond(downstream, SubmitSharesError{ChannelID: m.ChannelID, JobID: m.JobID, ErrorCode: "unknown-job"}), nil
	}
	dispatcher, err := r.Upstream.Dispatcher(groupID)
	if err != nil {
		return sendRespond(downstream, SubmitSharesError{ChannelID: m.ChannelID, JobID: m.JobID, ErrorCode: "no-dispatcher"}), nil
	}
	verdict, rewritten, err := dispatcher.OnSubmitSharesStandard(m)
	if err != nil {
		return sendNone(), fmt.Errorf("job dispatcher: %w", err)
	}
	switch verdict {
	case ShareValid:
		return sendRelayNew(r.Upstream.Peer, rewritten), nil
	case ShareStale:
		return sendRespond(downstream, SubmitSharesError{ChannelID: m.ChannelID, JobID: m.JobID, ErrorCode: "stale-job"}), nil
	default:
		return sendRespond(downstream, SubmitSharesError{ChannelID: m.ChannelID, JobID: m.JobID, ErrorCode: "invalid-share"}), nil
	}
}

func (r *Router) routeSubmitExtended(downstream Peer, m SubmitSharesExtended) (SendTo, error) {
	groupID, err := r.Registry.GroupIDFromChannelID(m.ChannelID)
	if err != nil {
		return sendRespond(downstream, SubmitSharesError{ChannelID: m.ChannelID, JobID: m.JobID, ErrorCode: "unknown-channel"}), nil
	}
	if owner, err := r.Registry.ChannelFromJobID(m.JobID); err != nil || owner != m.ChannelID {
		return sendRespond(downstream, SubmitSharesError{ChannelID: m.ChannelID, JobID: m.JobID, ErrorCode: "unknown-job"}), nil
	}
	dispatcher, err := r.Upstream.Dispatcher(groupID)
	if err != nil {
		return sendRespond(downstream, SubmitSharesError{ChannelID: m.ChannelID, JobID: m.JobID, ErrorCode: "no-dispatcher"}), nil
	}
	verdict, rewritten, err := dispatcher.OnSubmitSharesExtended(m)
	if err != nil {
		return sendNone(), fmt.Errorf("job dispatcher: %w", err)
	}
	switch verdict {
	case ShareValid:
		return sendRelayNew(r.Upstream.Peer, rewritten), nil
	case ShareStale:
		return sendRespond(downstream, SubmitSharesError{ChannelID: m.ChannelID, JobID: m.JobID, ErrorCode: "stale-job"}), nil
	default:
		return sendRespond(downstream, SubmitSharesError{ChannelID: m.ChannelID, JobID: m.JobID, ErrorCode: "invalid-share"}), nil
	}
}

// HandleUpstream routes one message received from the upstream pool.
func (r *Router) HandleUpstream(ctx context.Context, msg Message) (SendTo, error) {
	if err := checkAdmissible(table2, msg.messageType(), r.ChannelType, r.WorkSelectionEnabled); err != nil {
		return sendNone(), err
	}

	switch m := msg.(type) {
	case OpenStandardMiningChannelSuccess:
		downstream, ok := r.takePendingOpen(m.RequestID)
		if !ok {
			return sendNone(), fmt.Errorf("%w: request id %d has no pending open", ErrUnexpectedMessage, m.RequestID)
		}
		r.Registry.AddChannel(m.GroupID, m.ChannelID)
		r.bindChannelPeer(m.ChannelID, downstream)
		return sendRelaySame(downstream, m), nil

	case OpenExtendedMiningChannelSuccess:
		downstream, ok := r.takePendingOpen(m.RequestID)
		if !ok {
			return sendNone(), fmt.Errorf("%w: request id %d has no pending open", ErrUnexpectedMessage, m.RequestID)
		}
		r.Registry.AddChannel(m.ChannelID, m.ChannelID) // extended channels are their own group
		r.bindChannelPeer(m.ChannelID, downstream)
		return sendRelaySame(downstream, m), nil

	case OpenMiningChannelError:
		downstream, ok := r.takePendingOpen(m.RequestID)
		if !ok {
			return sendNone(), fmt.Errorf("%w: request id %d has no pending open", ErrUnexpectedMessage, m.RequestID)
		}
		return sendRelaySame(downstream, m), nil

	case NewMiningJob:
		r.Registry.RecordJob(m.ChannelID, m.JobID)
		return r.relayToChannelOwner(m.ChannelID, m)

	case NewExtendedMiningJob:
		r.Registry.RecordJob(m.ChannelID, m.JobID)
		return r.relayToChannelOwner(m.ChannelID, m)

	case SetNewPrevHash:
		r.Registry.InvalidateJobsOnChannel(m.ChannelID)
		return r.relayToChannelOwner(m.ChannelID, m)

	case SetTarget:
		return r.relayToChannelOwner(m.ChannelID, m)

	case SetExtranoncePrefix:
		return r.relayToChannelOwner(m.ChannelID, m)

	case SubmitSharesSuccess:
		return r.relayToChannelOwner(m.ChannelID, m)

	case SubmitSharesError:
		return r.relayToChannelOwner(m.ChannelID, m)

	case UpdateChannelError:
		return r.relayToChannelOwner(m.ChannelID, m)

	case CloseChannel:
		r.Registry.CloseChannel(m.ChannelID)
		sendTo, err := r.relayToChannelOwner(m.ChannelID, m)
		r.mu.Lock()
		delete(r.channelPeers, m.ChannelID)
		r.mu.Unlock()
		return sendTo, err

	case SetGroupChannel:
		items := make([]SendTo, 0, len(m.ChannelIDs))
		for _, ch := range m.ChannelIDs {
			r.Registry.AddChannel(m.GroupID, ch)
			if peer, ok := r.peerForChannel(ch); ok {
				items = append(items, sendRelaySame(peer, m))
			}
		}
		if len(items) == 0 {
			return sendNone(), nil
		}
		return sendMultiple(items...), nil

	case SetCustomMiningJobSuccess:
		r.Registry.RecordJob(m.ChannelID, m.JobID)
		return r.relayToChannelOwner(m.ChannelID, m)

	case SetCustomMiningJobError:
		return r.relayToChannelOwner(m.ChannelID, m)

	case Reconnect:
		items := make([]SendTo, 0)
		r.mu.Lock()
		seen := make(map[PeerID]struct{})
		for _, peer := range r.channelPeers {
			if _, ok := seen[peer.ID()]; ok {
				continue
			}
			seen[peer.ID()] = struct{}{}
			items = append(items, sendRelaySame(peer, m))
		}
		r.mu.Unlock()
		if len(items) == 0 {
			return sendNone(), nil
		}
		return sendMultiple(items...), nil

	default:
		return sendNone(), fmt.Errorf("%w: unhandled upstream message %T", ErrUnexpectedMessage, msg)
	}
}

func (r *Router) takePendingOpen(requestID uint32) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peer, ok := r.pendingOpens[requestID]
	if ok {
		delete(r.pendingOpens, requestID)
	}
	return peer, ok
}

func (r *Router) bindChannelPeer(channelID uint32, peer Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channelPeers[channelID] = peer
}

func (r *Router) peerForChannel(channelID uint32) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peer, ok := r.channelPeers[channelID]
	return peer, ok
}

func (r *Router) relayToChannelOwner(channelID uint32, msg Message) (SendTo, error) {
	peer, ok := r.peerForChannel(channelID)
	if !ok {
		return sendNone(), fmt.Errorf("%w: channel %d", ErrUnknownChannel, channelID)
	}
	return sendRelaySame(peer, msg), nil
}
