// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-walletcore.
//
// go-walletcore is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package device

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ProtocolVersion is the session protocol spoken by this package.
const ProtocolVersion uint32 = 1

// MessageType identifies a frame.
type MessageType uint32

const (
	MsgPing MessageType = iota + 1
	MsgPong
	MsgHello
	MsgHelloAck
	MsgCapabilities
	MsgCapabilitiesAck
	MsgSignRequest
	MsgSignResponse
	MsgFailure
)

func (t MessageType) String() string {
	switch t {
	case MsgPing:
		return "Ping"
	case MsgPong:
		return "Pong"
	case MsgHello:
		return "Hello"
	case MsgHelloAck:
		return "HelloAck"
	case MsgCapabilities:
		return "Capabilities"
	case MsgCapabilitiesAck:
		return "CapabilitiesAck"
	case MsgSignRequest:
		return "SignRequest"
	case MsgSignResponse:
		return "SignResponse"
	case MsgFailure:
		return "Failure"
	default:
		return fmt.Sprintf("MessageType(%d)", uint32(t))
	}
}

// Status is the device verdict carried by responses.
type Status uint32

const (
	StatusUnspecified Status = iota
	StatusApproved
	StatusDenied
	StatusFailed
)

// Frame is one message on a Channel. Fields that a message type does not
// use are left zero and are not encoded.
type Frame struct {
	Type      MessageType
	Version   uint32
	Nonce     []byte
	Sequence  uint64
	Digest    []byte
	Signature []byte
	PublicKey []byte
	Challenge []byte
	Status    Status
	Label     string
}

// Protobuf field numbers. Never renumber.
const (
	fieldType      protowire.Number = 1
	fieldVersion   protowire.Number = 2
	fieldNonce     protowire.Number = 3
	fieldSequence  protowire.Number = 4
	fieldDigest    protowire.Number = 5
	fieldSignature protowire.Number = 6
	fieldPublicKey protowire.Number = 7
	fieldChallenge protowire.Number = 8
	fieldStatus    protowire.Number = 9
	fieldLabel     protowire.Number = 10
)

// MarshalFrame encodes f in protobuf wire format.
func MarshalFrame(f *Frame) []byte {
	var b []byte
	b = appendVarint(b, fieldType, uint64(f.Type))
	b = appendVarint(b, fieldVersion, uint64(f.Version))
	b = appendBytes(b, fieldNonce, f.Nonce)
	b = appendVarint(b, fieldSequence, f.Sequence)
	b = appendBytes(b, fieldDigest, f.Digest)
	b = appendBytes(b, fieldSignature, f.Signature)
	b = appendBytes(b, fieldPublicKey, f.PublicKey)
	b = appendBytes(b, fieldChallenge, f.Challenge)
	b = appendVarint(b, fieldStatus, uint64(f.Status))
	b = appendBytes(b, fieldLabel, []byte(f.Label))
	return b
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// UnmarshalFrame decodes a frame. Unknown fields are skipped so newer
// firmware can add fields without breaking older hosts.
func UnmarshalFrame(b []byte) (*Frame, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedFrame)
	}
	f := &Frame{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType && isVarintField(num):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := f.setVarint(num, v); err != nil {
				return nil, err
			}
		case typ == protowire.BytesType && isBytesField(num):
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(n))
			}
			b = b[n:]
			f.setBytes(num, append([]byte(nil), v...))
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if f.Type == 0 {
		return nil, fmt.Errorf("%w: missing message type", ErrMalformedFrame)
	}
	return f, nil
}

func isVarintField(num protowire.Number) bool {
	switch num {
	case fieldType, fieldVersion, fieldSequence, fieldStatus:
		return true
	}
	return false
}

func isBytesField(num protowire.Number) bool {
	switch num {
	case fieldNonce, fieldDigest, fieldSignature, fieldPublicKey, fieldChallenge, fieldLabel:
		return true
	}
	return false
}

func (f *Frame) setVarint(num protowire.Number, v uint64) error {
	if num != fieldSequence && v > math.MaxUint32 {
		return fmt.Errorf("%w: field %d: value %d overflows uint32", ErrMalformedFrame, num, v)
	}
	switch num {
	case fieldType:
		f.Type = MessageType(v)
	case fieldVersion:
		f.Version = uint32(v)
	case fieldSequence:
		f.Sequence = v
	case fieldStatus:
		f.Status = Status(v)
	}
	return nil
}

func (f *Frame) setBytes(num protowire.Number, v []byte) {
	switch num {
	case fieldNonce:
		f.Nonce = v
	case fieldDigest:
		f.Digest = v
	case fieldSignature:
		f.Signature = v
	case fieldPublicKey:
		f.PublicKey = v
	case fieldChallenge:
		f.Challenge = v
	case fieldLabel:
		f.Label = string(v)
	}
}
