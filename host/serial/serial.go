// Package serial opens the host side of the diagnostic link.
package serial

import (
	"errors"
	"fmt"
	"io"
)

// DefaultBaud matches the UART rate the firmware configures
const DefaultBaud = 38400

var ErrNoDevice = errors.New("serial device not set")

// Port represents a serial port interface. Implementations:
// - native serial (github.com/tarm/serial)
// - net.Pipe or any io.ReadWriteCloser in tests
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string

	// Baud rate of the AVR UART
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the configuration for a board on device
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100,
	}
}

// Validate checks the configuration before opening a port
func (c *Config) Validate() error {
	if c.Device == "" {
		return ErrNoDevice
	}
	if c.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Baud)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("invalid read timeout %dms", c.ReadTimeout)
	}
	return nil
}

// nopFlusher adapts an io.ReadWriteCloser to Port
type nopFlusher struct {
	io.ReadWriteCloser
}

func (*nopFlusher) Flush() error { return nil }

// Wrap turns any stream into a Port with a no-op Flush
func Wrap(rwc io.ReadWriteCloser) Port {
	if p, ok := rwc.(Port); ok {
		return p
	}
	return &nopFlusher{rwc}
}
