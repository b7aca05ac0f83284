// Package cyphal implements the Cyphal/CAN extended-id and tail-byte wire
// encoding used by the segmented transport. The TCAN455x register access,
// acceptance filtering and GPIO control that surround this codec are out of
// scope here — this package only knows how to turn a 29-bit extended CAN id
// and a tail byte into their meaningful fields and back.
package cyphal

import "fmt"

// Kind discriminates the three frame categories carried over Cyphal/CAN.
type Kind uint8

const (
	Message Kind = iota
	ServiceRequest
	ServiceResponse
)

func (k Kind) String() string {
	switch k {
	case Message:
		return "message"
	case ServiceRequest:
		return "service-request"
	case ServiceResponse:
		return "service-response"
	default:
		return "unknown"
	}
}

// Priority is a 3-bit Cyphal transfer priority, 0 being highest.
type Priority uint8

const MaxPriority Priority = 7

// FrameID is the decoded form of a 29-bit Cyphal/CAN extended identifier.
//
// Bit layout (bit 28 is MSB):
//
//	bits  0-6   source node id            (7 bits, both kinds)
//	bit   7     reserved, always 0
//	bits  8-20  subject id == PortID       (13 bits, messages only)
//	bits  8-16  service id == PortID       (9 bits, services only)
//	bits 17-23  destination node id        (7 bits, services only)
//	bit   24    request-not-response       (services only)
//	bit   25    service bit (1 = service, 0 = message)
//	bits 26-28  priority                   (3 bits)
//
// Message and service frames share the source-node-id and port-id bit
// bases; services simply narrow the port-id field to make room for a
// destination address, per the "kind and port-id together determine which
// sub-fields are meaningful" invariant.
type FrameID struct {
	Kind         Kind
	PortID       uint16
	SourceNodeID uint8
	DestNodeID   uint8 // meaningful only for ServiceRequest/ServiceResponse
	Priority     Priority
}

const (
	maxSubjectID    = 1<<13 - 1
	maxServiceID    = 1<<9 - 1
	maxNodeID       = 1<<7 - 1
	shiftSource     = 0
	shiftSubject    = 8
	shiftService    = 8
	shiftDest       = 17
	bitRequest      = 24
	bitService      = 25
	shiftPriority   = 26
	maskNodeID      = 0x7F
	maskSubjectID   = 0x1FFF
	maskServiceID   = 0x1FF
	maskPriority    = 0x7
)

// XID is a 29-bit Cyphal/CAN extended identifier.
type XID uint32

var ErrPortIDOutOfRange = fmt.Errorf("cyphal: port id out of range")
var ErrNodeIDOutOfRange = fmt.Errorf("cyphal: node id out of range")
var ErrPriorityOutOfRange = fmt.Errorf("cyphal: priority out of range")

func checkNodeID(id uint8) error {
	if id > maxNodeID {
		return ErrNodeIDOutOfRange
	}
	return nil
}

func checkPriority(p Priority) error {
	if p > MaxPriority {
		return ErrPriorityOutOfRange
	}
	return nil
}

// EncodeMessage builds the XID for a broadcast message transfer.
func EncodeMessage(subjectID uint16, sourceNodeID uint8, priority Priority) (XID, error) {
	if subjectID > maxSubjectID {
		return 0, ErrPortIDOutOfRange
	}
	if err := checkNodeID(sourceNodeID); err != nil {
		return 0, err
	}
	if err := checkPriority(priority); err != nil {
		return 0, err
	}
	xid := uint32(sourceNodeID&maskNodeID) << shiftSource
	xid |= uint32(subjectID&maskSubjectID) << shiftSubject
	xid |= uint32(priority&maskPriority) << shiftPriority
	return XID(xid), nil
}

func encodeService(kind Kind, serviceID uint16, sourceNodeID, destNodeID uint8, priority Priority) (XID, error) {
	if serviceID > maxServiceID {
		return 0, ErrPortIDOutOfRange
	}
	if err := checkNodeID(sourceNodeID); err != nil {
		return 0, err
	}
	if err := checkNodeID(destNodeID); err != nil {
		return 0, err
	}
	if err := checkPriority(priority); err != nil {
		return 0, err
	}
	xid := uint32(sourceNodeID&maskNodeID) << shiftSource
	xid |= uint32(serviceID&maskServiceID) << shiftService
	xid |= uint32(destNodeID&maskNodeID) << shiftDest
	xid |= 1 << bitService
	if kind == ServiceRequest {
		xid |= 1 << bitRequest
	}
	xid |= uint32(priority&maskPriority) << shiftPriority
	return XID(xid), nil
}

// EncodeRequest builds the XID for a service request transfer.
func EncodeRequest(serviceID uint16, sourceNodeID, destNodeID uint8, priority Priority) (XID, error) {
	return encodeService(ServiceRequest, serviceID, sourceNodeID, destNodeID, priority)
}

// EncodeResponse builds the XID for a service response transfer.
func EncodeResponse(serviceID uint16, sourceNodeID, destNodeID uint8, priority Priority) (XID, error) {
	return encodeService(ServiceResponse, serviceID, sourceNodeID, destNodeID, priority)
}

// Decode extracts the meaningful fields of an XID.
func Decode(xid XID) FrameID {
	raw := uint32(xid)
	source := uint8(raw>>shiftSource) & maskNodeID
	isService := raw&(1<<bitService) != 0

	if !isService {
		return FrameID{
			Kind:         Message,
			PortID:       uint16(raw>>shiftSubject) & maskSubjectID,
			SourceNodeID: source,
			Priority:     Priority(raw>>shiftPriority) & maskPriority,
		}
	}

	kind := ServiceResponse
	if raw&(1<<bitRequest) != 0 {
		kind = ServiceRequest
	}
	return FrameID{
		Kind:         kind,
		PortID:       uint16(raw>>shiftService) & maskServiceID,
		SourceNodeID: source,
		DestNodeID:   uint8(raw>>shiftDest) & maskNodeID,
		Priority:     Priority(raw>>shiftPriority) & maskPriority,
	}
}
