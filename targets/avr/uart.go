//go:build tinygo && avr

package main

import (
	"machine"

	"avrcoop/protocol"
)

var (
	uart   = machine.DefaultUART
	rxBuf  = protocol.NewFifoBuffer(64)
	txBuf  = protocol.NewScratchOutput()
	txLost uint32
)

func initUART() {
	uart.Configure(machine.UARTConfig{BaudRate: BaudRate})
}

// pumpUART moves received bytes into the frame parser input and flushes
// whatever the reporter queued this iteration
func pumpUART() {
	for uart.Buffered() > 0 {
		b, err := uart.ReadByte()
		if err != nil {
			break
		}
		if !rxBuf.Put(b) {
			// parser resyncs on the next sync byte
			rxBuf.Reset()
		}
	}

	if data := txBuf.Result(); len(data) > 0 {
		if _, err := uart.Write(data); err != nil {
			txLost++
		}
		txBuf.Reset()
	}
}

// writeUrgent bypasses the output buffer. The smartdog death alarm calls
// it from interrupt context because the main loop is presumed stuck.
func writeUrgent(frame []byte) {
	for _, b := range frame {
		uart.WriteByte(b)
	}
}

func writeDebug(msg string) {
	uart.Write([]byte(msg))
	uart.Write([]byte("\r\n"))
}
