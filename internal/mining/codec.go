package mining

import (
	"encoding/binary"
	"fmt"
)

// Wire layout, modeled on the teacher's explicit-cursor Serialize/Deserialize
// style (see portal/corev2/serdes/packet.go) but little-endian throughout and
// flattened to a single tag byte plus fixed fields per message type:
//
//	byte 0      message type tag
//	fixed fields (uint32 ids, in the order declared on the struct)
//	for string fields: uint16 length + bytes
//	for []byte Extra: uint16 length + bytes (always last)
//
// SetGroupChannel and Reconnect are the exceptions: SetGroupChannel is the
// uint32 group id, a uint16 count and that many uint32 channel ids; Reconnect
// is the host string followed by a uint16 port.

// Encode writes m's wire representation.
func Encode(m Message) ([]byte, error) {
	switch v := m.(type) {
	case OpenStandardMiningChannel:
		return encodeReqIDStringExtra(MsgOpenStandardMiningChannel, v.RequestID, v.UserIdentity, v.Extra), nil
	case OpenExtendedMiningChannel:
		return encodeReqIDStringExtra(MsgOpenExtendedMiningChannel, v.RequestID, v.UserIdentity, v.Extra), nil
	case UpdateChannel:
		return encodeChannelExtra(MsgUpdateChannel, v.ChannelID, v.Extra), nil
	case SubmitSharesStandard:
		return encodeChannelJobExtra(MsgSubmitSharesStandard, v.ChannelID, v.JobID, v.Extra), nil
	case SubmitSharesExtended:
		return encodeChannelJobExtra(MsgSubmitSharesExtended, v.ChannelID, v.JobID, v.Extra), nil
	case SetCustomMiningJob:
		return encodeChannelExtra(MsgSetCustomMiningJob, v.ChannelID, v.Extra), nil

	case OpenStandardMiningChannelSuccess:
		buf := make([]byte, 0, 13+len(v.Extra))
		buf = append(buf, byte(MsgOpenStandardMiningChannelSuccess))
		buf = appendUint32(buf, v.RequestID)
		buf = appendUint32(buf, v.ChannelID)
		buf = appendUint32(buf, v.GroupID)
		buf = appendBytes(buf, v.Extra)
		return buf, nil
	case OpenExtendedMiningChannelSuccess:
		return encodeReqChannelExtra(MsgOpenExtendedMiningChannelSuccess, v.RequestID, v.ChannelID, v.Extra), nil
	case OpenMiningChannelError:
		return encodeReqIDString(MsgOpenMiningChannelError, v.RequestID, v.ErrorCode), nil
	case UpdateChannelError:
		return encodeChannelString(MsgUpdateChannelError, v.ChannelID, v.ErrorCode), nil
	case CloseChannel:
		return encodeChannelString(MsgCloseChannel, v.ChannelID, v.ReasonCode), nil
	case SetExtranoncePrefix:
		return encodeChannelExtra(MsgSetExtranoncePrefix, v.ChannelID, v.Extra), nil
	case SubmitSharesSuccess:
		return encodeChannelExtra(MsgSubmitSharesSuccess, v.ChannelID, v.Extra), nil
	case SubmitSharesError:
		buf := make([]byte, 0, 11+len(v.ErrorCode))
		buf = append(buf, byte(MsgSubmitSharesError))
		buf = appendUint32(buf, v.ChannelID)
		buf = appendUint32(buf, v.JobID)
		buf = appendString(buf, v.ErrorCode)
		return buf, nil
	case NewMiningJob:
		return encodeChannelJobExtra(MsgNewMiningJob, v.ChannelID, v.JobID, v.Extra), nil
	case NewExtendedMiningJob:
		return encodeChannelJobExtra(MsgNewExtendedMiningJob, v.ChannelID, v.JobID, v.Extra), nil
	case SetNewPrevHash:
		return encodeChannelJobExtra(MsgSetNewPrevHash, v.ChannelID, v.JobID, v.Extra), nil
	case SetTarget:
		return encodeChannelExtra(MsgSetTarget, v.ChannelID, v.Extra), nil
	case SetCustomMiningJobSuccess:
		return encodeChannelJobExtra(MsgSetCustomMiningJobSuccess, v.ChannelID, v.JobID, v.Extra), nil
	case SetCustomMiningJobError:
		return encodeChannelString(MsgSetCustomMiningJobError, v.ChannelID, v.ErrorCode), nil
	case SetGroupChannel:
		buf := make([]byte, 0, 7+4*len(v.ChannelIDs))
		buf = append(buf, byte(MsgSetGroupChannel))
		buf = appendUint32(buf, v.GroupID)
		buf = append(buf, byte(len(v.ChannelIDs)), byte(len(v.ChannelIDs)>>8))
		for _, id := range v.ChannelIDs {
			buf = appendUint32(buf, id)
		}
		return buf, nil
	case Reconnect:
		buf := make([]byte, 0, 3+len(v.NewHost))
		buf = append(buf, byte(MsgReconnect))
		buf = appendString(buf, v.NewHost)
		buf = append(buf, byte(v.NewPort), byte(v.NewPort>>8))
		return buf, nil
	default:
		return nil, fmt.Errorf("%w: unencodable message type %T", ErrBadMessage, m)
	}
}

// Decode parses a wire payload produced by Encode back into a Message.
func Decode(data []byte) (Message, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty payload", ErrBadMessage)
	}
	tag := MessageType(data[0])
	body := data[1:]

	switch tag {
	case MsgOpenStandardMiningChannel:
		reqID, ident, extra, err := decodeReqIDStringExtra(body)
		if err != nil {
			return nil, err
		}
		return OpenStandardMiningChannel{RequestID: reqID, UserIdentity: ident, Extra: extra}, nil
	case MsgOpenExtendedMiningChannel:
		reqID, ident, extra, err := decodeReqIDStringExtra(body)
		if err != nil {
			return nil, err
		}
		return OpenExtendedMiningChannel{RequestID: reqID, UserIdentity: ident, Extra: extra}, nil
	case MsgUpdateChannel:
		ch, extra, err := decodeChannelExtra(body)
		if err != nil {
			return nil, err
		}
		return UpdateChannel{ChannelID: ch, Extra: extra}, nil
	case MsgSubmitSharesStandard:
		ch, job, extra, err := decodeChannelJobExtra(body)
		if err != nil {
			return nil, err
		}
		return SubmitSharesStandard{ChannelID: ch, JobID: job, Extra: extra}, nil
	case MsgSubmitSharesExtended:
		ch, job, extra, err := decodeChannelJobExtra(body)
		if err != nil {
			return nil, err
		}
		return SubmitSharesExtended{ChannelID: ch, JobID: job, Extra: extra}, nil
	case MsgSetCustomMiningJob:
		ch, extra, err := decodeChannelExtra(body)
		if err != nil {
			return nil, err
		}
		return SetCustomMiningJob{ChannelID: ch, Extra: extra}, nil

	case MsgOpenStandardMiningChannelSuccess:
		if len(body) < 12 {
			return nil, fmt.Errorf("%w: short OpenStandardMiningChannelSuccess", ErrBadMessage)
		}
		reqID := binary.LittleEndian.Uint32(body[0:4])
		ch := binary.LittleEndian.Uint32(body[4:8])
		group := binary.LittleEndian.Uint32(body[8:12])
		extra, err := readBytes(body[12:])
		if err != nil {
			return nil, err
		}
		return OpenStandardMiningChannelSuccess{RequestID: reqID, ChannelID: ch, GroupID: group, Extra: extra}, nil
	case MsgOpenExtendedMiningChannelSuccess:
		reqID, ch, extra, err := decodeReqChannelExtra(body)
		if err != nil {
			return nil, err
		}
		return OpenExtendedMiningChannelSuccess{RequestID: reqID, ChannelID: ch, Extra: extra}, nil
	case MsgOpenMiningChannelError:
		reqID, code, err := decodeReqIDString(body)
		if err != nil {
			return nil, err
		}
		return OpenMiningChannelError{RequestID: reqID, ErrorCode: code}, nil
	case MsgUpdateChannelError:
		ch, code, err := decodeChannelString(body)
		if err != nil {
			return nil, err
		}
		return UpdateChannelError{ChannelID: ch, ErrorCode: code}, nil
	case MsgCloseChannel:
		ch, code, err := decodeChannelString(body)
		if err != nil {
			return nil, err
		}
		return CloseChannel{ChannelID: ch, ReasonCode: code}, nil
	case MsgSetExtranoncePrefix:
		ch, extra, err := decodeChannelExtra(body)
		if err != nil {
			return nil, err
		}
		return SetExtranoncePrefix{ChannelID: ch, Extra: extra}, nil
	case MsgSubmitSharesSuccess:
		ch, extra, err := decodeChannelExtra(body)
		if err != nil {
			return nil, err
		}
		return SubmitSharesSuccess{ChannelID: ch, Extra: extra}, nil
	case MsgSubmitSharesError:
		if len(body) < 8 {
			return nil, fmt.Errorf("%w: short SubmitSharesError", ErrBadMessage)
		}
		ch := binary.LittleEndian.Uint32(body[0:4])
		job := binary.LittleEndian.Uint32(body[4:8])
		code, err := readString(body[8:])
		if err != nil {
			return nil, err
		}
		return SubmitSharesError{ChannelID: ch, JobID: job, ErrorCode: code}, nil
	case MsgNewMiningJob:
		ch, job, extra, err := decodeChannelJobExtra(body)
		if err != nil {
			return nil, err
		}
		return NewMiningJob{ChannelID: ch, JobID: job, Extra: extra}, nil
	case MsgNewExtendedMiningJob:
		ch, job, extra, err := decodeChannelJobExtra(body)
		if err != nil {
			return nil, err
		}
		return NewExtendedMiningJob{ChannelID: ch, JobID: job, Extra: extra}, nil
	case MsgSetNewPrevHash:
		ch, job, extra, err := decodeChannelJobExtra(body)
		if err != nil {
			return nil, err
		}
		return SetNewPrevHash{ChannelID: ch, JobID: job, Extra: extra}, nil
	case MsgSetTarget:
		ch, extra, err := decodeChannelExtra(body)
		if err != nil {
			return nil, err
		}
		return SetTarget{ChannelID: ch, Extra: extra}, nil
	case MsgSetCustomMiningJobSuccess:
		ch, job, extra, err := decodeChannelJobExtra(body)
		if err != nil {
			return nil, err
		}
		return SetCustomMiningJobSuccess{ChannelID: ch, JobID: job, Extra: extra}, nil
	case MsgSetCustomMiningJobError:
		ch, code, err := decodeChannelString(body)
		if err != nil {
			return nil, err
		}
		return SetCustomMiningJobError{ChannelID: ch, ErrorCode: code}, nil
	case MsgSetGroupChannel:
		if len(body) < 6 {
			return nil, fmt.Errorf("%w: short SetGroupChannel", ErrBadMessage)
		}
		group := binary.LittleEndian.Uint32(body[0:4])
		count := int(binary.LittleEndian.Uint16(body[4:6]))
		rest := body[6:]
		if len(rest) < 4*count {
			return nil, fmt.Errorf("%w: short SetGroupChannel channel list", ErrBadMessage)
		}
		ids := make([]uint32, count)
		for i := 0; i < count; i++ {
			ids[i] = binary.LittleEndian.Uint32(rest[4*i : 4*i+4])
		}
		return SetGroupChannel{GroupID: group, ChannelIDs: ids}, nil
	case MsgReconnect:
		host, err := readString(body)
		if err != nil {
			return nil, err
		}
		rest := body[2+len(host):]
		if len(rest) < 2 {
			return nil, fmt.Errorf("%w: short Reconnect", ErrBadMessage)
		}
		port := binary.LittleEndian.Uint16(rest[0:2])
		return Reconnect{NewHost: host, NewPort: port}, nil
	default:
		return nil, fmt.Errorf("%w: unknown message tag %d", ErrBadMessage, tag)
	}
}

// --- shared field helpers ---

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendBytes(buf []byte, b []byte) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], uint16(len(b)))
	buf = append(buf, tmp[:]...)
	return append(buf, b...)
}

func appendString(buf []byte, s string) []byte {
	return appendBytes(buf, []byte(s))
}

func readBytes(body []byte) ([]byte, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("%w: missing length prefix", ErrBadMessage)
	}
	n := int(binary.LittleEndian.Uint16(body[0:2]))
	if len(body) < 2+n {
		return nil, fmt.Errorf("%w: truncated variable field", ErrBadMessage)
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	copy(out, body[2:2+n])
	return out, nil
}

func readString(body []byte) (string, error) {
	b, err := readBytes(body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeReqIDStringExtra(tag MessageType, reqID uint32, ident string, extra []byte) []byte {
	buf := make([]byte, 0, 9+len(ident)+len(extra))
	buf = append(buf, byte(tag))
	buf = appendUint32(buf, reqID)
	buf = appendString(buf, ident)
	buf = appendBytes(buf, extra)
	return buf
}

func decodeReqIDStringExtra(body []byte) (uint32, string, []byte, error) {
	if len(body) < 4 {
		return 0, "", nil, fmt.Errorf("%w: short header", ErrBadMessage)
	}
	reqID := binary.LittleEndian.Uint32(body[0:4])
	ident, err := readString(body[4:])
	if err != nil {
		return 0, "", nil, err
	}
	extra, err := readBytes(body[4+2+len(ident):])
	if err != nil {
		return 0, "", nil, err
	}
	return reqID, ident, extra, nil
}

func encodeReqIDString(tag MessageType, reqID uint32, s string) []byte {
	buf := make([]byte, 0, 7+len(s))
	buf = append(buf, byte(tag))
	buf = appendUint32(buf, reqID)
	buf = appendString(buf, s)
	return buf
}

func decodeReqIDString(body []byte) (uint32, string, error) {
	if len(body) < 4 {
		return 0, "", fmt.Errorf("%w: short header", ErrBadMessage)
	}
	reqID := binary.LittleEndian.Uint32(body[0:4])
	s, err := readString(body[4:])
	return reqID, s, err
}

func encodeChannelExtra(tag MessageType, channelID uint32, extra []byte) []byte {
	buf := make([]byte, 0, 7+len(extra))
	buf = append(buf, byte(tag))
	buf = appendUint32(buf, channelID)
	buf = appendBytes(buf, extra)
	return buf
}

func decodeChannelExtra(body []byte) (uint32, []byte, error) {
	if len(body) < 4 {
		return 0, nil, fmt.Errorf("%w: short header", ErrBadMessage)
	}
	ch := binary.LittleEndian.Uint32(body[0:4])
	extra, err := readBytes(body[4:])
	return ch, extra, err
}

func encodeChannelJobExtra(tag MessageType, channelID, jobID uint32, extra []byte) []byte {
	buf := make([]byte, 0, 11+len(extra))
	buf = append(buf, byte(tag))
	buf = appendUint32(buf, channelID)
	buf = appendUint32(buf, jobID)
	buf = appendBytes(buf, extra)
	return buf
}

func decodeChannelJobExtra(body []byte) (uint32, uint32, []byte, error) {
	if len(body) < 8 {
		return 0, 0, nil, fmt.Errorf("%w: short header", ErrBadMessage)
	}
	ch := binary.LittleEndian.Uint32(body[0:4])
	job := binary.LittleEndian.Uint32(body[4:8])
	extra, err := readBytes(body[8:])
	return ch, job, extra, err
}

func encodeChannelString(tag MessageType, channelID uint32, s string) []byte {
	buf := make([]byte, 0, 7+len(s))
	buf = append(buf, byte(tag))
	buf = appendUint32(buf, channelID)
	buf = appendString(buf, s)
	return buf
}

func decodeChannelString(body []byte) (uint32, string, error) {
	if len(body) < 4 {
		return 0, "", fmt.Errorf("%w: short header", ErrBadMessage)
	}
	ch := binary.LittleEndian.Uint32(body[0:4])
	s, err := readString(body[4:])
	return ch, s, err
}

func encodeReqChannelExtra(tag MessageType, reqID, channelID uint32, extra []byte) []byte {
	buf := make([]byte, 0, 11+len(extra))
	buf = append(buf, byte(tag))
	buf = appendUint32(buf, reqID)
	buf = appendUint32(buf, channelID)
	buf = appendBytes(buf, extra)
	return buf
}

func decodeReqChannelExtra(body []byte) (uint32, uint32, []byte, error) {
	if len(body) < 8 {
		return 0, 0, nil, fmt.Errorf("%w: short header", ErrBadMessage)
	}
	reqID := binary.LittleEndian.Uint32(body[0:4])
	ch := binary.LittleEndian.Uint32(body[4:8])
	extra, err := readBytes(body[8:])
	return reqID, ch, extra, err
}
