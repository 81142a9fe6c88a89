package serial

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// tarmPort is a device node opened through tarm/serial. Read, Write,
// Close and Flush come from the embedded port.
type tarmPort struct {
	*serial.Port
	cfg Config
}

// Open validates cfg and opens the device it names
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	return &tarmPort{Port: port, cfg: *cfg}, nil
}

// Config returns the configuration the port was opened with
func (p *tarmPort) Config() Config {
	return p.cfg
}
