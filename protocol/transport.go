package protocol

// Encoder is a message that can write itself into a frame
type Encoder interface {
	Encode(out OutputBuffer)
}

// MessageHandler handles one decoded message. args starts after the
// message ID; the handler consumes its arguments from it.
type MessageHandler func(id uint16, args *[]byte) error

// Transport is the device end of the diagnostic link. Frames are written
// into an OutputBuffer that the platform drains to the UART.
type Transport struct {
	output  OutputBuffer
	handler MessageHandler
	parser  Parser
	seq     uint8
	errors  int
}

// NewTransport creates a transport writing to output and delivering host
// messages to handler
func NewTransport(output OutputBuffer, handler MessageHandler) *Transport {
	return &Transport{
		output:  output,
		handler: handler,
		seq:     SeqDest,
	}
}

// Receive processes the frames available in input and pops them
func (t *Transport) Receive(input InputBuffer) {
	t.parser.ParseInput(input, t.parseFrame)
}

// parseFrame dispatches every message of a frame. A malformed message or a
// handler error abandons the rest of the frame.
func (t *Transport) parseFrame(f Frame) {
	payload := f.Payload
	for len(payload) > 0 {
		id, err := DecodeVLQUint16(&payload)
		if err != nil {
			t.errors++
			return
		}
		if t.handler == nil {
			return
		}
		if err := t.handler(id, &payload); err != nil {
			t.errors++
			return
		}
	}
}

// Send packs msgs into one frame
func (t *Transport) Send(msgs ...Encoder) error {
	err := EncodeFrame(t.output, t.seq, func(out OutputBuffer) {
		for _, m := range msgs {
			m.Encode(out)
		}
	})
	if err != nil {
		return err
	}
	t.seq = NextSeq(t.seq)
	return nil
}

// Errors returns how many received messages could not be handled
func (t *Transport) Errors() int { return t.errors }

// Resyncs returns how many times receive framing was lost
func (t *Transport) Resyncs() int { return t.parser.Resyncs() }

// Reset returns the transport to its initial state
func (t *Transport) Reset() {
	t.parser.Reset()
	t.seq = SeqDest
	t.errors = 0
}
