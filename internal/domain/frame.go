package domain

// Marker bytes for the four frame headers. The data marker opens a
// length-prefixed frame; the other three are complete frames on their own.
//
//	Data   0x01  start-of-frame, followed by length, payload, checksum
//	Ack    0x06  link-level acknowledgment
//	Nak    0x15  negative acknowledgment, requests retransmission
//	Cancel 0x18  peer aborted the exchange
const (
	MarkerData   byte = 0x01
	MarkerAck    byte = 0x06
	MarkerNak    byte = 0x15
	MarkerCancel byte = 0x18
)

// MaxPayload is the largest payload a data frame can carry; the wire format
// encodes the payload length in a single byte.
const MaxPayload = 255

// Kind identifies the header of a frame.
type Kind byte

const (
	KindData   Kind = Kind(MarkerData)
	KindAck    Kind = Kind(MarkerAck)
	KindNak    Kind = Kind(MarkerNak)
	KindCancel Kind = Kind(MarkerCancel)
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindData:
		return "Data"
	case KindAck:
		return "Ack"
	case KindNak:
		return "Nak"
	case KindCancel:
		return "Cancel"
	default:
		return "Unknown"
	}
}

// Frame is one protocol unit exchanged over the transport. Control frames
// (Ack, Nak, Cancel) carry no payload; a data frame carries a payload and the
// checksum byte that arrived (or will be sent) with it.
//
// Frames are treated as immutable values by the protocol logic: the codec
// builds a fresh Frame per read and never hands the same payload slice out
// twice.
type Frame struct {
	Kind     Kind
	Payload  []byte
	Checksum byte
}

// Control frames are constant on the wire, so shared values suffice.
var (
	AckFrame    = Frame{Kind: KindAck}
	NakFrame    = Frame{Kind: KindNak}
	CancelFrame = Frame{Kind: KindCancel}
)

// NewDataFrame builds a data frame for the given payload with its checksum
// precomputed, so ChecksumValid always holds for locally built frames.
// The payload slice is not copied; callers must not mutate it afterwards.
func NewDataFrame(payload []byte) Frame {
	return Frame{
		Kind:     KindData,
		Payload:  payload,
		Checksum: Checksum(payload),
	}
}

// IsData reports whether the frame is a data frame.
func (f Frame) IsData() bool { return f.Kind == KindData }

// Checksum computes the XOR checksum over the length byte and payload bytes,
// seeded with 0xFF. XOR detects any single corrupted byte in the covered
// region or in the checksum itself.
func Checksum(payload []byte) byte {
	sum := byte(0xFF)
	sum ^= byte(len(payload))
	for _, b := range payload {
		sum ^= b
	}
	return sum
}

// ChecksumValid reports whether a data frame's trailing checksum matches the
// checksum computed over its payload. It is a pure function of the frame and
// touches no connection state; non-data frames are trivially valid.
func (f Frame) ChecksumValid() bool {
	if f.Kind != KindData {
		return true
	}
	return Checksum(f.Payload) == f.Checksum
}
