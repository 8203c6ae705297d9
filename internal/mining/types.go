// Package mining implements the connection-wide message parser/router and
// the channel & job registry: the pieces that route typed mining messages
// between downstream devices/sub-proxies and upstream pools, translating
// channel and job identifiers across that boundary.
package mining

// ChannelType is the set of channel kinds a connection can be configured
// to support. It governs message admissibility per Tables 1 and 2.
type ChannelType int

const (
	Standard ChannelType = iota
	Extended
	Group
	GroupAndExtended
)

func (c ChannelType) String() string {
	switch c {
	case Standard:
		return "standard"
	case Extended:
		return "extended"
	case Group:
		return "group"
	case GroupAndExtended:
		return "group_and_extended"
	default:
		return "unknown"
	}
}

// MessageType tags a Message on the wire. The full field layout of each
// mining message is outside this module's scope (spec treats the wire
// codec for individual message bodies as an external collaborator); these
// tags and the structs below carry exactly the fields the router and
// registry algorithms need to operate, plus an Extra passthrough for
// whatever else a real codec would carry.
type MessageType uint8

const (
	MsgOpenStandardMiningChannel MessageType = iota
	MsgOpenExtendedMiningChannel
	MsgOpenStandardMiningChannelSuccess
	MsgOpenExtendedMiningChannelSuccess
	MsgOpenMiningChannelError
	MsgUpdateChannel
	MsgUpdateChannelError
	MsgCloseChannel
	MsgSetExtranoncePrefix
	MsgSubmitSharesStandard
	MsgSubmitSharesExtended
	MsgSubmitSharesSuccess
	MsgSubmitSharesError
	MsgNewMiningJob
	MsgNewExtendedMiningJob
	MsgSetNewPrevHash
	MsgSetTarget
	MsgSetCustomMiningJob
	MsgSetCustomMiningJobSuccess
	MsgSetCustomMiningJobError
	MsgSetGroupChannel
	MsgReconnect
)

// Message is implemented by every mining message variant. The marker
// method exists only to close the set to this package's own types.
type Message interface {
	messageType() MessageType
}

// --- Downstream -> Upstream (Table 1) ---

type OpenStandardMiningChannel struct {
	RequestID    uint32
	UserIdentity string
	Extra        []byte
}

func (OpenStandardMiningChannel) messageType() MessageType { return MsgOpenStandardMiningChannel }

type OpenExtendedMiningChannel struct {
	RequestID    uint32
	UserIdentity string
	Extra        []byte
}

func (OpenExtendedMiningChannel) messageType() MessageType { return MsgOpenExtendedMiningChannel }

type UpdateChannel struct {
	ChannelID uint32
	Extra     []byte
}

func (UpdateChannel) messageType() MessageType { return MsgUpdateChannel }

type SubmitSharesStandard struct {
	ChannelID uint32
	JobID     uint32
	Extra     []byte
}

func (SubmitSharesStandard) messageType() MessageType { return MsgSubmitSharesStandard }

type SubmitSharesExtended struct {
	ChannelID uint32
	JobID     uint32
	Extra     []byte
}

func (SubmitSharesExtended) messageType() MessageType { return MsgSubmitSharesExtended }

type SetCustomMiningJob struct {
	ChannelID uint32
	Extra     []byte
}

func (SetCustomMiningJob) messageType() MessageType { return MsgSetCustomMiningJob }

// --- Upstream -> Downstream (Table 2) ---

type OpenStandardMiningChannelSuccess struct {
	RequestID uint32
	ChannelID uint32
	GroupID   uint32
	Extra     []byte
}

func (OpenStandardMiningChannelSuccess) messageType() MessageType {
	return MsgOpenStandardMiningChannelSuccess
}

type OpenExtendedMiningChannelSuccess struct {
	RequestID uint32
	ChannelID uint32
	Extra     []byte
}

func (OpenExtendedMiningChannelSuccess) messageType() MessageType {
	return MsgOpenExtendedMiningChannelSuccess
}

type OpenMiningChannelError struct {
	RequestID uint32
	ErrorCode string
}

func (OpenMiningChannelError) messageType() MessageType { return MsgOpenMiningChannelError }

type UpdateChannelError struct {
	ChannelID uint32
	ErrorCode string
}

func (UpdateChannelError) messageType() MessageType { return MsgUpdateChannelError }

type CloseChannel struct {
	ChannelID  uint32
	ReasonCode string
}

func (CloseChannel) messageType() MessageType { return MsgCloseChannel }

type SetExtranoncePrefix struct {
	ChannelID uint32
	Extra     []byte
}

func (SetExtranoncePrefix) messageType() MessageType { return MsgSetExtranoncePrefix }

type SubmitSharesSuccess struct {
	ChannelID uint32
	Extra     []byte
}

func (SubmitSharesSuccess) messageType() MessageType { return MsgSubmitSharesSuccess }

type SubmitSharesError struct {
	ChannelID uint32
	JobID     uint32
	ErrorCode string
}

func (SubmitSharesError) messageType() MessageType { return MsgSubmitSharesError }

type NewMiningJob struct {
	ChannelID uint32
	JobID     uint32
	Extra     []byte
}

func (NewMiningJob) messageType() MessageType { return MsgNewMiningJob }

type NewExtendedMiningJob struct {
	ChannelID uint32
	JobID     uint32
	Extra     []byte
}

func (NewExtendedMiningJob) messageType() MessageType { return MsgNewExtendedMiningJob }

type SetNewPrevHash struct {
	ChannelID uint32
	JobID     uint32
	Extra     []byte
}

func (SetNewPrevHash) messageType() MessageType { return MsgSetNewPrevHash }

type SetTarget struct {
	ChannelID uint32
	Extra     []byte
}

func (SetTarget) messageType() MessageType { return MsgSetTarget }

type SetCustomMiningJobSuccess struct {
	ChannelID uint32
	JobID     uint32
	Extra     []byte
}

func (SetCustomMiningJobSuccess) messageType() MessageType { return MsgSetCustomMiningJobSuccess }

type SetCustomMiningJobError struct {
	ChannelID uint32
	ErrorCode string
}

func (SetCustomMiningJobError) messageType() MessageType { return MsgSetCustomMiningJobError }

type SetGroupChannel struct {
	GroupID    uint32
	ChannelIDs []uint32
}

func (SetGroupChannel) messageType() MessageType { return MsgSetGroupChannel }

type Reconnect struct {
	NewHost string
	NewPort uint16
}

func (Reconnect) messageType() MessageType { return MsgReconnect }
