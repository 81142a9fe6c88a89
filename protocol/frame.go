package protocol

import "errors"

var ErrFrameTooLong = errors.New("frame payload too long")

// Frame is one validated frame
type Frame struct {
	Seq     uint8
	Payload []byte // aliases the parser input; copy to keep
}

// EncodeFrame writes a frame with sequence seq whose payload is produced by
// body. The length byte is patched once the payload is known. A payload
// that does not fit is rolled back and ErrFrameTooLong returned.
func EncodeFrame(out OutputBuffer, seq uint8, body func(OutputBuffer)) error {
	cursor := out.CurPosition()
	out.Output([]byte{0, seq})

	body(out)

	size := len(out.DataSince(cursor)) + FrameTrailerSize
	if size > FrameLengthMax {
		if t, ok := out.(interface{ Truncate(int) }); ok {
			t.Truncate(cursor)
		}
		return ErrFrameTooLong
	}
	out.Update(cursor, uint8(size))

	crc := CRC16(out.DataSince(cursor))
	out.Output([]byte{uint8(crc >> 8), uint8(crc), SyncByte})
	return nil
}

// AppendFrame appends a complete frame carrying payload to dst
func AppendFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	size := FrameLengthMin + len(payload)
	if size > FrameLengthMax {
		return dst, ErrFrameTooLong
	}
	start := len(dst)
	dst = append(dst, uint8(size), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, uint8(crc>>8), uint8(crc), SyncByte), nil
}

// Parser splits a byte stream into frames. After a bad length, sequence,
// sync or CRC it drops bytes up to the next sync byte.
type Parser struct {
	desync  bool
	resyncs int
	frames  int
}

// Parse calls fn for every complete frame at the front of data and returns
// the number of bytes consumed. Trailing partial frames are left for the
// next call.
func (p *Parser) Parse(data []byte, fn func(Frame)) int {
	total := len(data)

	for len(data) > 0 {
		if p.desync {
			i := indexSync(data)
			if i < 0 {
				data = data[len(data):]
				break
			}
			data = data[i+1:]
			p.desync = false
			continue
		}

		if data[0] == SyncByte {
			data = data[1:]
			continue
		}

		if len(data) < FrameLengthMin {
			break
		}

		size := int(data[FramePositionLen])
		if size < FrameLengthMin || size > FrameLengthMax {
			p.lose()
			continue
		}

		seq := data[FramePositionSeq]
		if seq&^SeqMask != SeqDest {
			p.lose()
			continue
		}

		if len(data) < size {
			break
		}

		if data[size-FrameTrailerSync] != SyncByte {
			p.lose()
			continue
		}

		want := uint16(data[size-FrameTrailerCRC])<<8 | uint16(data[size-FrameTrailerCRC+1])
		if CRC16(data[:size-FrameTrailerSize]) != want {
			p.lose()
			continue
		}

		frame := Frame{Seq: seq, Payload: data[FrameHeaderSize : size-FrameTrailerSize]}
		data = data[size:]
		p.frames++
		fn(frame)
	}

	return total - len(data)
}

// ParseInput parses the contents of in and pops what was consumed
func (p *Parser) ParseInput(in InputBuffer, fn func(Frame)) {
	if n := p.Parse(in.Data(), fn); n > 0 {
		in.Pop(n)
	}
}

func (p *Parser) lose() {
	p.desync = true
	p.resyncs++
}

// Synchronized reports whether the parser is aligned on frame boundaries
func (p *Parser) Synchronized() bool { return !p.desync }

// Resyncs returns how many times framing was lost
func (p *Parser) Resyncs() int { return p.resyncs }

// Frames returns how many valid frames were parsed
func (p *Parser) Frames() int { return p.frames }

// Reset returns the parser to its initial state
func (p *Parser) Reset() { *p = Parser{} }

func indexSync(data []byte) int {
	for i, b := range data {
		if b == SyncByte {
			return i
		}
	}
	return -1
}
