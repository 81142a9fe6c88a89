package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrameLayout(t *testing.T) {
	out := NewScratchOutput()
	require.NoError(t, EncodeFrame(out, SeqDest, func(o OutputBuffer) {
		o.Output([]byte{0x01})
	}))

	frame := out.Result()
	require.Len(t, frame, 6)
	assert.Equal(t, byte(6), frame[FramePositionLen])
	assert.Equal(t, byte(SeqDest), frame[FramePositionSeq])
	crc := CRC16(frame[:3])
	assert.Equal(t, []byte{byte(crc >> 8), byte(crc), SyncByte}, frame[3:])

	// the slice form produces the same bytes
	same, err := AppendFrame(nil, SeqDest, []byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, frame, same)
}

func TestEncodeFrameTooLong(t *testing.T) {
	out := NewScratchOutput()
	out.Output([]byte{0xAA})

	err := EncodeFrame(out, SeqDest, func(o OutputBuffer) {
		o.Output(make([]byte, FramePayloadMax+1))
	})
	assert.True(t, errors.Is(err, ErrFrameTooLong))
	assert.Equal(t, []byte{0xAA}, out.Result(), "partial frame rolled back")

	_, err = AppendFrame(nil, SeqDest, make([]byte, FramePayloadMax+1))
	assert.True(t, errors.Is(err, ErrFrameTooLong))

	_, err = AppendFrame(nil, SeqDest, make([]byte, FramePayloadMax))
	assert.NoError(t, err)
}

func TestParserSplitsFrames(t *testing.T) {
	var stream []byte
	stream, _ = AppendFrame(stream, 0x10, []byte{1})
	stream, _ = AppendFrame(stream, 0x11, []byte{2, 3})

	var p Parser
	var got []Frame
	n := p.Parse(stream, func(f Frame) {
		got = append(got, Frame{Seq: f.Seq, Payload: append([]byte(nil), f.Payload...)})
	})

	assert.Equal(t, len(stream), n)
	require.Len(t, got, 2)
	assert.Equal(t, Frame{Seq: 0x10, Payload: []byte{1}}, got[0])
	assert.Equal(t, Frame{Seq: 0x11, Payload: []byte{2, 3}}, got[1])
	assert.Equal(t, 2, p.Frames())
}

func TestParserPartialFrame(t *testing.T) {
	frame, _ := AppendFrame(nil, 0x10, []byte{1, 2, 3})

	var p Parser
	count := 0
	n := p.Parse(frame[:4], func(Frame) { count++ })
	assert.Zero(t, n)
	assert.Zero(t, count)

	n = p.Parse(frame, func(Frame) { count++ })
	assert.Equal(t, len(frame), n)
	assert.Equal(t, 1, count)
}

func TestParserResync(t *testing.T) {
	good, _ := AppendFrame(nil, 0x12, []byte{7})
	corrupt := append([]byte(nil), good...)
	corrupt[2] ^= 0xFF // payload byte, CRC no longer matches

	cases := map[string][]byte{
		"garbage":    {0x01, 0x02, 0x03, 0x04, 0x05, SyncByte},
		"bad crc":    corrupt,
		"bad length": {0x02, 0x10, 0x00, 0x00, 0x00, SyncByte},
		"bad seq":    {0x05, 0x20, 0x00, 0x00, SyncByte},
	}

	for name, junk := range cases {
		t.Run(name, func(t *testing.T) {
			var p Parser
			stream := append(append([]byte(nil), junk...), good...)

			var got []Frame
			n := p.Parse(stream, func(f Frame) { got = append(got, f) })

			assert.Equal(t, len(stream), n)
			require.Len(t, got, 1)
			assert.Equal(t, uint8(0x12), got[0].Seq)
			assert.Equal(t, 1, p.Resyncs())
			assert.True(t, p.Synchronized())
		})
	}
}

func TestParserDiscardsWithoutSync(t *testing.T) {
	var p Parser
	p.Parse([]byte{0x02, 0x10, 0, 0, 0}, func(Frame) {})
	assert.False(t, p.Synchronized())

	// no sync byte: everything is dropped
	n := p.Parse([]byte{1, 2, 3}, func(Frame) {})
	assert.Equal(t, 3, n)
	assert.False(t, p.Synchronized())

	p.Reset()
	assert.True(t, p.Synchronized())
	assert.Zero(t, p.Resyncs())
}

func TestParseInputPops(t *testing.T) {
	frame, _ := AppendFrame(nil, 0x10, []byte{9})
	in := NewFifoBuffer(64)
	in.Write(frame)
	in.Write(frame[:3])

	var p Parser
	count := 0
	p.ParseInput(in, func(Frame) { count++ })

	assert.Equal(t, 1, count)
	assert.True(t, bytes.Equal(frame[:3], in.Data()))
}

func TestNextSeq(t *testing.T) {
	assert.Equal(t, uint8(0x11), NextSeq(0x10))
	assert.Equal(t, uint8(0x10), NextSeq(0x1F))
}
