// Package digitalservo implements the presentation-layer codec for
// digitalservo motion-control node payloads (the Dict/Str wire format
// carried inside Cyphal set-value/get-value service calls) together with a
// thin layer of per-application convenience helpers built on top of it.
//
// The fixed port-id constants below are dictated by the digitalservo
// application profile, not by the Cyphal transport itself; they live here,
// not in pkg/transport, so the transport stays free of application
// knowledge.
package digitalservo

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Fixed service/port ids of the digitalservo application profile.
const (
	// PortDeprecatedService is the service-id the deprecated one-shot
	// send_digitalservo_request/send_digitalservo_response calls carry
	// their Dict/Str payload on. It is distinct from PortSetValue so the
	// unacknowledged legacy path never shares wire traffic with the
	// reliable set-value service.
	PortDeprecatedService uint16 = 0x80
	PortSetValue          uint16 = 0x81
	PortSetValueStatus    uint16 = 0x87
	PortGetValue          uint16 = 0x82
	// PortGeneralError is the dedicated subject a node publishes its
	// sticky error flag on, separate from PortSetValueStatus. It exceeds
	// the 9-bit range a service port-id can carry, so it is always framed
	// as a broadcast message subject id (13 bits), never as a service
	// response.
	PortGeneralError uint16 = 0x17C0
)

// PortGetValueResponse lists every port-id a get-value response may arrive
// on, in the order callers should scan them.
var PortGetValueResponse = []uint16{128, 129, 1160}

// Kind tags the wire representation of a single PrimitiveData value.
type Kind uint8

const (
	KindU8 Kind = iota
	KindI8
	KindU16
	KindI16
	KindU32
	KindI32
	KindU64
	KindI64
	KindF32
	KindF64
)

func (k Kind) size() int {
	switch k {
	case KindU8, KindI8:
		return 1
	case KindU16, KindI16:
		return 2
	case KindU32, KindI32, KindF32:
		return 4
	case KindU64, KindI64, KindF64:
		return 8
	default:
		return 0
	}
}

// ErrUnknownKind is returned when decoding encounters a type tag this
// package does not recognize.
var ErrUnknownKind = errors.New("digitalservo: unknown primitive kind")

// ErrShortPayload is returned when a payload ends before a value it
// promised (via its count/type header) can be fully read.
var ErrShortPayload = errors.New("digitalservo: payload too short for declared values")

// PrimitiveData is one scalar value of the digitalservo wire format. Only
// one of the As* accessors is meaningful, selected by Kind.
type PrimitiveData struct {
	Kind Kind
	bits uint64
}

func U8(v uint8) PrimitiveData   { return PrimitiveData{Kind: KindU8, bits: uint64(v)} }
func I8(v int8) PrimitiveData    { return PrimitiveData{Kind: KindI8, bits: uint64(uint8(v))} }
func U16(v uint16) PrimitiveData { return PrimitiveData{Kind: KindU16, bits: uint64(v)} }
func I16(v int16) PrimitiveData  { return PrimitiveData{Kind: KindI16, bits: uint64(uint16(v))} }
func U32(v uint32) PrimitiveData { return PrimitiveData{Kind: KindU32, bits: uint64(v)} }
func I32(v int32) PrimitiveData  { return PrimitiveData{Kind: KindI32, bits: uint64(uint32(v))} }
func U64(v uint64) PrimitiveData { return PrimitiveData{Kind: KindU64, bits: v} }
func I64(v int64) PrimitiveData  { return PrimitiveData{Kind: KindI64, bits: uint64(v)} }

func F32(v float32) PrimitiveData {
	return PrimitiveData{Kind: KindF32, bits: uint64(math.Float32bits(v))}
}

func F64(v float64) PrimitiveData {
	return PrimitiveData{Kind: KindF64, bits: math.Float64bits(v)}
}

// AsFloat64 widens any numeric PrimitiveData to a float64, which is how
// most digitalservo parameters (position, velocity, current) are consumed
// by callers regardless of their wire width.
func (p PrimitiveData) AsFloat64() float64 {
	switch p.Kind {
	case KindU8, KindU16, KindU32, KindU64:
		return float64(p.bits)
	case KindI8:
		return float64(int8(p.bits))
	case KindI16:
		return float64(int16(p.bits))
	case KindI32:
		return float64(int32(p.bits))
	case KindI64:
		return float64(int64(p.bits))
	case KindF32:
		return float64(math.Float32frombits(uint32(p.bits)))
	case KindF64:
		return math.Float64frombits(p.bits)
	default:
		return 0
	}
}

// AsUint64 widens any numeric PrimitiveData to a uint64 bit-for-bit view of
// its integer value; used for key matching and enable/disable style flags.
func (p PrimitiveData) AsUint64() uint64 {
	return p.bits
}

func (p PrimitiveData) encode() []byte {
	buf := make([]byte, p.Kind.size())
	switch p.Kind.size() {
	case 1:
		buf[0] = byte(p.bits)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(p.bits))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(p.bits))
	case 8:
		binary.LittleEndian.PutUint64(buf, p.bits)
	}
	return buf
}

func decodePrimitive(kind Kind, data []byte) (PrimitiveData, int, error) {
	n := kind.size()
	if n == 0 {
		return PrimitiveData{}, 0, ErrUnknownKind
	}
	if len(data) < n {
		return PrimitiveData{}, 0, ErrShortPayload
	}
	var bits uint64
	switch n {
	case 1:
		bits = uint64(data[0])
	case 2:
		bits = uint64(binary.LittleEndian.Uint16(data))
	case 4:
		bits = uint64(binary.LittleEndian.Uint32(data))
	case 8:
		bits = binary.LittleEndian.Uint64(data)
	}
	return PrimitiveData{Kind: kind, bits: bits}, n, nil
}

// Dict is a keyed collection of PrimitiveData values, the payload shape
// carried by a digitalservo set-value request and a get-value response.
//
// Wire format: a 2-byte little-endian key, a 1-byte type tag shared by
// every value, a 1-byte count, followed by count values of that type.
type Dict struct {
	Key    uint16
	Values []PrimitiveData
}

// Serialize encodes a Dict for transmission as a set-value request payload.
// All values must share the same Kind; Serialize returns an error
// otherwise, since the wire format carries only one type tag per Dict.
func (d Dict) Serialize() ([]byte, error) {
	if len(d.Values) == 0 {
		return nil, fmt.Errorf("digitalservo: dict %#x has no values to serialize", d.Key)
	}
	kind := d.Values[0].Kind
	for _, v := range d.Values {
		if v.Kind != kind {
			return nil, fmt.Errorf("digitalservo: dict %#x mixes value kinds", d.Key)
		}
	}

	buf := make([]byte, 4, 4+len(d.Values)*kind.size())
	binary.LittleEndian.PutUint16(buf[0:2], d.Key)
	buf[2] = byte(kind)
	buf[3] = byte(len(d.Values))
	for _, v := range d.Values {
		buf = append(buf, v.encode()...)
	}
	return buf, nil
}

// DecodeDict parses a Dict from a set-value or get-value-response payload.
func DecodeDict(payload []byte) (Dict, error) {
	if len(payload) < 4 {
		return Dict{}, ErrShortPayload
	}
	key := binary.LittleEndian.Uint16(payload[0:2])
	kind := Kind(payload[2])
	count := int(payload[3])

	values := make([]PrimitiveData, 0, count)
	rest := payload[4:]
	for i := 0; i < count; i++ {
		v, n, err := decodePrimitive(kind, rest)
		if err != nil {
			return Dict{}, err
		}
		values = append(values, v)
		rest = rest[n:]
	}
	return Dict{Key: key, Values: values}, nil
}

// Str is a bare key reference with no attached values: the payload shape
// of a digitalservo get-value request, which names the parameter it wants
// read back without carrying data of its own.
type Str struct {
	Key uint16
}

// Serialize encodes a Str as a get-value request payload.
func (s Str) Serialize() []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, s.Key)
	return buf
}

// DecodeStr parses a Str from a get-value request payload.
func DecodeStr(payload []byte) (Str, error) {
	if len(payload) < 2 {
		return Str{}, ErrShortPayload
	}
	return Str{Key: binary.LittleEndian.Uint16(payload)}, nil
}

// GetScalarResponse decodes a get-value response payload expected to carry
// exactly one value, returning that value's Dict key and data.
func GetScalarResponse(payload []byte) (uint16, PrimitiveData, error) {
	dict, err := DecodeDict(payload)
	if err != nil {
		return 0, PrimitiveData{}, err
	}
	if len(dict.Values) != 1 {
		return 0, PrimitiveData{}, fmt.Errorf("digitalservo: expected exactly one value, got %d", len(dict.Values))
	}
	return dict.Key, dict.Values[0], nil
}

// GetVectorResponse decodes a get-value response payload carrying any
// number of values of a shared type.
func GetVectorResponse(payload []byte) (uint16, []PrimitiveData, error) {
	dict, err := DecodeDict(payload)
	if err != nil {
		return 0, nil, err
	}
	return dict.Key, dict.Values, nil
}

// IsAllZeroStatus reports whether a set-value status payload (received on
// PortSetValueStatus) indicates success: the protocol represents
// acknowledgement as every status byte being zero.
func IsAllZeroStatus(payload []byte) bool {
	for _, b := range payload {
		if b != 0 {
			return false
		}
	}
	return true
}
