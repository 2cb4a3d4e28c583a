// Package telemetry implements the serial protocol spoken between the
// controller and the host tools. Frames follow the Klipper MCU framing:
// a length and sequence header, a VLQ-encoded payload, a big-endian
// CRC-16 and a sync byte. The message set is self-describing; the host
// bootstraps from the identify pair and fetches a compressed dictionary
// before it knows any other message ID.
package telemetry

// Version identifies the firmware during the identify handshake.
const Version = "mopo-0.1.0"

const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E

	// Sequence bytes carry a 4-bit counter in the low nibble; the high
	// nibble is always MessageDest, in both directions.
	MessageDest    = 0x10
	MessageSeqMask = 0x0F

	// MessageMax sizes the outgoing scratch buffer. Several frames can
	// queue between flushes, so it is larger than one frame.
	MessageMax = 512
)
