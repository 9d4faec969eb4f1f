package gossip

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the encoded Message. The layout is protobuf wire format so
// other implementations can decode it with any protobuf runtime.
const (
	fieldSenderIndex   protowire.Number = 1
	fieldSenderAddress protowire.Number = 2
	fieldType          protowire.Number = 3
	fieldSenderInParty protowire.Number = 4
	fieldOffset        protowire.Number = 5
)

// Encode serializes m. Messages with an unset type are refused.
func Encode(m Message) ([]byte, error) {
	if m.Type == MsgNone {
		return nil, ErrUnsetType
	}
	b := make([]byte, 0, 32+len(m.SenderAddress))
	b = protowire.AppendTag(b, fieldSenderIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.SenderIndex))
	b = protowire.AppendTag(b, fieldSenderAddress, protowire.BytesType)
	b = protowire.AppendString(b, string(m.SenderAddress))
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Type))
	b = protowire.AppendTag(b, fieldSenderInParty, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(m.SenderInParty))
	b = protowire.AppendTag(b, fieldOffset, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(m.MatchStartOffset))
	return b, nil
}

// Decode parses a payload produced by Encode. Any error wraps ErrDecode.
// A message whose type is unset or unknown decodes successfully; rejecting
// it is the engine's job.
func Decode(b []byte) (Message, error) {
	var m Message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, decodeErr("tag", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldSenderIndex, fieldType, fieldSenderInParty:
			if typ != protowire.VarintType {
				return Message{}, decodeErr("field "+fieldName(num), fmt.Errorf("wire type %d", typ))
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, decodeErr("field "+fieldName(num), protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldSenderIndex:
				if v > math.MaxUint8 {
					return Message{}, decodeErr("field sender_index", fmt.Errorf("%d out of range", v))
				}
				m.SenderIndex = uint8(v)
			case fieldType:
				if v > math.MaxUint8 {
					return Message{}, decodeErr("field type", fmt.Errorf("%d out of range", v))
				}
				m.Type = MsgType(v)
			default:
				m.SenderInParty = protowire.DecodeBool(v)
			}
		case fieldSenderAddress:
			if typ != protowire.BytesType {
				return Message{}, decodeErr("field sender_address", fmt.Errorf("wire type %d", typ))
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Message{}, decodeErr("field sender_address", protowire.ParseError(n))
			}
			b = b[n:]
			m.SenderAddress = PeerID(v)
		case fieldOffset:
			if typ != protowire.Fixed64Type {
				return Message{}, decodeErr("field offset", fmt.Errorf("wire type %d", typ))
			}
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return Message{}, decodeErr("field offset", protowire.ParseError(n))
			}
			b = b[n:]
			m.MatchStartOffset = math.Float64frombits(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Message{}, decodeErr("unknown field", protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if m.SenderAddress == "" {
		return Message{}, decodeErr("sender_address", fmt.Errorf("missing"))
	}
	if off := m.MatchStartOffset; math.IsNaN(off) || math.IsInf(off, 0) || off < 0 {
		return Message{}, decodeErr("offset", fmt.Errorf("invalid value %v", off))
	}
	return m, nil
}

func decodeErr(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrDecode, what, err)
}

func fieldName(n protowire.Number) string {
	switch n {
	case fieldSenderIndex:
		return "sender_index"
	case fieldSenderAddress:
		return "sender_address"
	case fieldType:
		return "type"
	case fieldSenderInParty:
		return "sender_in_party"
	case fieldOffset:
		return "offset"
	}
	return "unknown"
}
