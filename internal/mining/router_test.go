package mining

import (
	"context"
	"errors"
	"testing"
)

type fakePeer struct {
	id   PeerID
	sent []Message
}

func newFakePeer(id PeerID) *fakePeer { return &fakePeer{id: id} }

func (p *fakePeer) ID() PeerID { return p.id }

func (p *fakePeer) Send(_ context.Context, m Message) error {
	p.sent = append(p.sent, m)
	return nil
}

// fakeDispatcher accepts/rejects shares by job id, rewriting the channel id
// to a fixed upstream-visible value (the behavior a real proxy needs when
// several downstream channels share one upstream job).
type fakeDispatcher struct {
	validJobs      map[uint32]bool
	upstreamChanID uint32
}

func (d *fakeDispatcher) OnSubmitSharesStandard(share SubmitSharesStandard) (ShareVerdict, SubmitSharesStandard, error) {
	if !d.validJobs[share.JobID] {
		return ShareInvalid, SubmitSharesStandard{}, nil
	}
	rewritten := share
	rewritten.ChannelID = d.upstreamChanID
	return ShareValid, rewritten, nil
}

func (d *fakeDispatcher) OnSubmitSharesExtended(share SubmitSharesExtended) (ShareVerdict, SubmitSharesExtended, error) {
	if !d.validJobs[share.JobID] {
		return ShareInvalid, SubmitSharesExtended{}, nil
	}
	rewritten := share
	rewritten.ChannelID = d.upstreamChanID
	return ShareValid, rewritten, nil
}

func newTestRouter(chType ChannelType, workSel bool) (*Router, *fakePeer) {
	upstreamPeer := newFakePeer("upstream")
	upstream := NewUpstream(upstreamPeer)
	return NewRouter(chType, workSel, upstream, nil), upstreamPeer
}

// fakeRoutingLogic always sends new channels to a peer chosen independently
// of the Router's configured Upstream, so tests can tell the two apart.
type fakeRoutingLogic struct {
	peer  Peer
	calls int
}

func (f *fakeRoutingLogic) ChooseUpstream(_ context.Context, _ Message) (Peer, error) {
	f.calls++
	return f.peer, nil
}

func TestRouterOpenStandardChannelRoundTrip(t *testing.T) {
	router, upstreamPeer := newTestRouter(Standard, false)
	downstream := newFakePeer("miner-1")

	openReq := OpenStandardMiningChannel{RequestID: 1, UserIdentity: "miner.1"}
	sendTo, err := router.HandleDownstream(context.Background(), downstream, openReq)
	if err != nil {
		t.Fatalf("handle open: %v", err)
	}
	if sendTo.Kind != RelaySameMessage || sendTo.To != upstreamPeer {
		t.Fatalf("expected relay to upstream, got %+v", sendTo)
	}

	success := OpenStandardMiningChannelSuccess{RequestID: 1, ChannelID: 7, GroupID: 3}
	sendTo, err = router.HandleUpstream(context.Background(), success)
	if err != nil {
		t.Fatalf("handle success: %v", err)
	}
	if sendTo.Kind != RelaySameMessage || sendTo.To != downstream {
		t.Fatalf("expected relay to downstream, got %+v", sendTo)
	}

	group, err := router.Registry.GroupIDFromChannelID(7)
	if err != nil || group != 3 {
		t.Fatalf("registry not updated: group=%d err=%v", group, err)
	}
}

func TestRouterOpenChannelConsultsRoutingLogic(t *testing.T) {
	defaultUpstream := newFakePeer("upstream")
	router := NewRouter(Standard, false, NewUpstream(defaultUpstream), nil)
	chosen := newFakePeer("chosen-upstream")
	routing := &fakeRoutingLogic{peer: chosen}
	router.Routing = routing
	downstream := newFakePeer("miner-1")

	sendTo, err := router.HandleDownstream(context.Background(), downstream, OpenStandardMiningChannel{RequestID: 1})
	if err != nil {
		t.Fatalf("handle open: %v", err)
	}
	if routing.calls != 1 {
		t.Fatalf("expected RoutingLogic to be consulted once, got %d calls", routing.calls)
	}
	if sendTo.Kind != RelaySameMessage || sendTo.To != chosen {
		t.Fatalf("expected relay to the RoutingLogic's chosen peer, got %+v", sendTo)
	}
}

func TestRouterUpdateChannelUnknownChannelRespondsWithError(t *testing.T) {
	router, _ := newTestRouter(Standard, false)
	downstream := newFakePeer("miner-1")

	sendTo, err := router.HandleDownstream(context.Background(), downstream, UpdateChannel{ChannelID: 99})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sendTo.Kind != Respond || sendTo.To != downstream {
		t.Fatalf("expected Respond to downstream, got %+v", sendTo)
	}
	errMsg, ok := sendTo.Msg.(UpdateChannelError)
	if !ok {
		t.Fatalf("expected UpdateChannelError, got %T", sendTo.Msg)
	}
	if errMsg.ChannelID != 99 {
		t.Fatalf("channel id = %d, want 99", errMsg.ChannelID)
	}
}

// S6 — messages inadmissible for the connection's channel type are
// rejected before any routing logic runs.
func TestRouterAdmissibilityTable(t *testing.T) {
	router, _ := newTestRouter(Standard, false)
	downstream := newFakePeer("miner-1")

	_, err := router.HandleDownstream(context.Background(), downstream, OpenExtendedMiningChannel{RequestID: 1})
	if !errors.Is(err, ErrUnexpectedMessage) {
		t.Fatalf("want ErrUnexpectedMessage for extended-open on standard channel, got %v", err)
	}

	extRouter, _ := newTestRouter(Extended, false)
	_, err = extRouter.HandleDownstream(context.Background(), downstream, SetCustomMiningJob{ChannelID: 7})
	if !errors.Is(err, ErrUnexpectedMessage) {
		t.Fatalf("want ErrUnexpectedMessage for SetCustomMiningJob without work selection, got %v", err)
	}
}

// S5 — share submission translation: channel -> group, job_id validity,
// dispatcher, rewriting the channel id into the upstream's numbering on
// success.
func TestRouterShareSubmissionTranslation(t *testing.T) {
	router, upstreamPeer := newTestRouter(Group, false)
	router.Registry.AddChannel(3, 7)
	router.Registry.RecordJob(7, 100)
	router.Registry.RecordJob(7, 999)
	router.Upstream.BindDispatcher(3, &fakeDispatcher{
		validJobs:      map[uint32]bool{100: true},
		upstreamChanID: 700,
	})

	downstream := newFakePeer("miner-1")

	sendTo, err := router.HandleDownstream(context.Background(), downstream, SubmitSharesStandard{ChannelID: 7, JobID: 100})
	if err != nil {
		t.Fatalf("handle valid share: %v", err)
	}
	if sendTo.Kind != RelayNewMessage || sendTo.To != upstreamPeer {
		t.Fatalf("expected RelayNewMessage to upstream, got %+v", sendTo)
	}
	rewritten, ok := sendTo.Msg.(SubmitSharesStandard)
	if !ok || rewritten.ChannelID != 700 {
		t.Fatalf("expected rewritten channel id 700, got %+v", sendTo.Msg)
	}

	// job 999 was announced on this channel but the dispatcher itself
	// rejects it: this exercises the invalid-share path, distinct from
	// the unknown-job path below.
	sendTo, err = router.HandleDownstream(context.Background(), downstream, SubmitSharesStandard{ChannelID: 7, JobID: 999})
	if err != nil {
		t.Fatalf("handle invalid share: %v", err)
	}
	if sendTo.Kind != Respond || sendTo.To != downstream {
		t.Fatalf("expected Respond to downstream for invalid share, got %+v", sendTo)
	}
	errMsg, ok := sendTo.Msg.(SubmitSharesError)
	if !ok || errMsg.ErrorCode != "invalid-share" {
		t.Fatalf("expected invalid-share SubmitSharesError, got %+v", sendTo.Msg)
	}
}

func TestRouterShareSubmissionUnknownChannel(t *testing.T) {
	router, _ := newTestRouter(Group, false)
	downstream := newFakePeer("miner-1")

	sendTo, err := router.HandleDownstream(context.Background(), downstream, SubmitSharesStandard{ChannelID: 42, JobID: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sendTo.Kind != Respond {
		t.Fatalf("expected Respond, got %+v", sendTo)
	}
	errMsg, ok := sendTo.Msg.(SubmitSharesError)
	if !ok || errMsg.ErrorCode != "unknown-channel" {
		t.Fatalf("expected unknown-channel SubmitSharesError, got %+v", sendTo.Msg)
	}
}

// Property 7 — a job_id never announced on the submitting channel is
// rejected before the dispatcher ever sees it, even though the channel and
// its group are both known.
func TestRouterShareSubmissionUnknownJob(t *testing.T) {
	router, _ := newTestRouter(Group, false)
	router.Registry.AddChannel(3, 7)
	router.Upstream.BindDispatcher(3, &fakeDispatcher{
		validJobs:      map[uint32]bool{100: true},
		upstreamChanID: 700,
	})
	downstream := newFakePeer("miner-1")

	sendTo, err := router.HandleDownstream(context.Background(), downstream, SubmitSharesStandard{ChannelID: 7, JobID: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sendTo.Kind != Respond {
		t.Fatalf("expected Respond, got %+v", sendTo)
	}
	errMsg, ok := sendTo.Msg.(SubmitSharesError)
	if !ok || errMsg.ErrorCode != "unknown-job" {
		t.Fatalf("expected unknown-job SubmitSharesError, got %+v", sendTo.Msg)
	}
}

// A job_id recorded against a different channel must not be honored just
// because it resolves to a group the submitting channel also belongs to.
func TestRouterShareSubmissionJobFromWrongChannelRejected(t *testing.T) {
	router, _ := newTestRouter(Group, false)
	router.Registry.AddChannel(3, 7)
	router.Registry.AddChannel(3, 8)
	router.Registry.RecordJob(8, 100)
	router.Upstream.BindDispatcher(3, &fakeDispatcher{
		validJobs:      map[uint32]bool{100: true},
		upstreamChanID: 700,
	})
	downstream := newFakePeer("miner-1")

	sendTo, err := router.HandleDownstream(context.Background(), downstream, SubmitSharesStandard{ChannelID: 7, JobID: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	errMsg, ok := sendTo.Msg.(SubmitSharesError)
	if !ok || errMsg.ErrorCode != "unknown-job" {
		t.Fatalf("expected unknown-job SubmitSharesError for job recorded on another channel, got %+v", sendTo.Msg)
	}
}

func TestRouterSetGroupChannelBroadcastsToMembers(t *testing.T) {
	router, _ := newTestRouter(Group, false)
	d1 := newFakePeer("miner-1")
	d2 := newFakePeer("miner-2")
	router.bindChannelPeer(7, d1)
	router.bindChannelPeer(8, d2)

	sendTo, err := router.HandleUpstream(context.Background(), SetGroupChannel{GroupID: 3, ChannelIDs: []uint32{7, 8}})
	if err != nil {
		t.Fatalf("handle set group channel: %v", err)
	}
	if sendTo.Kind != Multiple || len(sendTo.Items) != 2 {
		t.Fatalf("expected Multiple with 2 items, got %+v", sendTo)
	}
}

func TestRouterReconnectBroadcastsToAllKnownDownstreams(t *testing.T) {
	router, _ := newTestRouter(Standard, false)
	d1 := newFakePeer("miner-1")
	d2 := newFakePeer("miner-2")
	router.bindChannelPeer(7, d1)
	router.bindChannelPeer(8, d2)

	sendTo, err := router.HandleUpstream(context.Background(), Reconnect{NewHost: "new.pool", NewPort: 4444})
	if err != nil {
		t.Fatalf("handle reconnect: %v", err)
	}
	if sendTo.Kind != Multiple || len(sendTo.Items) != 2 {
		t.Fatalf("expected Multiple with 2 items, got %+v", sendTo)
	}
}

func TestRouterCloseChannelForgetsPeerBinding(t *testing.T) {
	router, _ := newTestRouter(Standard, false)
	d1 := newFakePeer("miner-1")
	router.Registry.AddChannel(1, 7)
	router.bindChannelPeer(7, d1)

	if _, err := router.HandleUpstream(context.Background(), CloseChannel{ChannelID: 7, ReasonCode: "done"}); err != nil {
		t.Fatalf("handle close: %v", err)
	}

	if _, ok := router.peerForChannel(7); ok {
		t.Fatal("expected channel peer binding to be forgotten after close")
	}
}
