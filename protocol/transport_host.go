package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var ErrTransportClosed = errors.New("transport closed")

// Message is one decoded device message
type Message struct {
	Seq  uint8
	ID   uint16
	Args []byte // arguments after the message ID, owned by the receiver
}

// Name returns the printable message name
func (m Message) Name() string {
	return MessageName(m.ID)
}

// Decode returns the typed form of the message: Status, Overflow,
// SchedulerFull, DeathAlarm, EEPROMDone, HandlerName or TraceRecord.
// Requests decode to nil.
func (m Message) Decode() (any, error) {
	args := m.Args
	return decodeArgs(m.ID, &args)
}

// SplitMessages separates a device frame payload into messages. Every
// device message has a fixed argument list, so the payload is walked with
// the decoders to find the boundaries.
func SplitMessages(seq uint8, payload []byte) ([]Message, error) {
	var msgs []Message
	for len(payload) > 0 {
		id, err := DecodeVLQUint16(&payload)
		if err != nil {
			return msgs, err
		}
		rest := payload
		if _, err := decodeArgs(id, &payload); err != nil {
			return msgs, fmt.Errorf("message %s: %w", MessageName(id), err)
		}
		msgs = append(msgs, Message{
			Seq:  seq,
			ID:   id,
			Args: append([]byte(nil), rest[:len(rest)-len(payload)]...),
		})
	}
	return msgs, nil
}

// decodeArgs decodes the arguments of message id from data, advancing it
func decodeArgs(id uint16, data *[]byte) (any, error) {
	switch id {
	case MsgGetStatus, MsgListHandlers, MsgDumpTrace:
		return nil, nil
	case MsgStatus:
		return DecodeStatus(data)
	case MsgOverflow:
		return DecodeOverflow(data)
	case MsgSchedulerFull:
		return DecodeSchedulerFull(data)
	case MsgDeathAlarm:
		return DecodeDeathAlarm(data)
	case MsgEEPROMDone:
		return DecodeEEPROMDone(data)
	case MsgHandlerName:
		return DecodeHandlerName(data)
	case MsgTraceRecord:
		return DecodeTraceRecord(data)
	default:
		return nil, fmt.Errorf("unknown message id %d", id)
	}
}

// HostTransport is the host end of the diagnostic link
type HostTransport struct {
	port io.ReadWriteCloser

	seq        uint8
	writeMutex sync.Mutex

	readMutex sync.Mutex
	input     *FifoBuffer
	parser    Parser

	messages chan Message
	errs     chan error

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewHostTransport starts reading frames from port
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:     port,
		seq:      SeqDest,
		input:    NewFifoBuffer(1024),
		messages: make(chan Message, 64),
		errs:     make(chan error, 16),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Messages delivers decoded device messages. When the consumer falls behind
// the oldest undelivered message is dropped.
func (t *HostTransport) Messages() <-chan Message {
	return t.messages
}

// Errors delivers malformed-frame and read errors
func (t *HostTransport) Errors() <-chan error {
	return t.errs
}

// Done is closed when the read loop exits
func (t *HostTransport) Done() <-chan struct{} {
	return t.doneChan
}

// Send writes msgs to the device as one frame
func (t *HostTransport) Send(msgs ...Encoder) error {
	select {
	case <-t.stopChan:
		return ErrTransportClosed
	default:
	}

	scratch := NewScratchOutput()
	for _, m := range msgs {
		m.Encode(scratch)
	}

	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	frame, err := AppendFrame(nil, t.seq, scratch.Result())
	if err != nil {
		return fmt.Errorf("failed to build frame: %w", err)
	}

	n, err := t.port.Write(frame)
	if err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if n != len(frame) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(frame))
	}

	t.seq = NextSeq(t.seq)
	return nil
}

// Request sends a host request without arguments
func (t *HostTransport) Request(id uint16) error {
	return t.Send(Request(id))
}

// readLoop continuously reads from the port and decodes frames
func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if n > 0 {
			t.feed(buffer[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			t.report(fmt.Errorf("read: %w", err))
			select {
			case <-t.stopChan:
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
}

// feed appends data to the input ring and parses complete frames
func (t *HostTransport) feed(data []byte) {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()

	for len(data) > 0 {
		n := t.input.Write(data)
		data = data[n:]
		t.parser.ParseInput(t.input, t.handleFrame)
		if n == 0 && t.input.Free() == 0 {
			// garbage without frames filling the ring
			t.input.Reset()
			t.parser.Reset()
		}
	}
}

func (t *HostTransport) handleFrame(f Frame) {
	msgs, err := SplitMessages(f.Seq, f.Payload)
	for _, m := range msgs {
		t.deliver(m)
	}
	if err != nil {
		t.report(err)
	}
}

func (t *HostTransport) deliver(m Message) {
	select {
	case t.messages <- m:
		return
	default:
	}
	select {
	case <-t.messages:
	default:
	}
	select {
	case t.messages <- m:
	default:
	}
}

func (t *HostTransport) report(err error) {
	select {
	case t.errs <- err:
	default:
	}
}

// Resyncs returns how many times receive framing was lost
func (t *HostTransport) Resyncs() int {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()
	return t.parser.Resyncs()
}

// Close stops the read loop and closes the port
func (t *HostTransport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stopChan)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.doneChan
	})
	return err
}
