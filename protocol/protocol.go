// Package protocol implements the framed diagnostic link between a device
// running the cooperative core and the host monitor.
//
// A frame is
//
//	[len][seq] payload [crc hi][crc lo][0x7E]
//
// where len counts the whole frame, seq is 0x10 | counter, and the payload
// is a sequence of messages, each a VLQ message ID followed by its
// VLQ-encoded arguments.
package protocol

// Version of the diagnostic protocol
const Version = "avrcoop/1"

// Frame layout
const (
	FrameHeaderSize  = 2
	FrameTrailerSize = 3
	FrameLengthMin   = FrameHeaderSize + FrameTrailerSize
	FrameLengthMax   = 64
	FramePayloadMax  = FrameLengthMax - FrameLengthMin

	FramePositionLen = 0
	FramePositionSeq = 1
	FrameTrailerCRC  = 3
	FrameTrailerSync = 1

	SyncByte = 0x7E

	// Sequence byte: high nibble fixed, low nibble counts frames
	SeqDest = 0x10
	SeqMask = 0x0F
)

// ScratchSize is the capacity of a ScratchOutput, enough for several frames
const ScratchSize = 4 * FrameLengthMax

// NextSeq returns the sequence byte following seq
func NextSeq(seq uint8) uint8 {
	return ((seq + 1) & SeqMask) | SeqDest
}
