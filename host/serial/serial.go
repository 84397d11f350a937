// Package serial abstracts the concrete serial device driver spec.md §1
// treats as an external collaborator: a bidirectional byte stream with a
// one-shot "reset peer" operation. It exists so the link layer depends only
// on Port, never on a specific transport library.
package serial

import (
	"io"
	"time"
)

// Port is the byte stream the serial endpoint (package link) depends on.
// ResetPeer implements the DTR/RTS reset pulse spec §4.4 requires; a mock or
// WebSerial-style backend can make it a no-op.
type Port interface {
	io.ReadWriteCloser

	// ResetPeer pulses the control lines to reset the remote MCU: assert,
	// hold briefly, then release, per spec §4.4.
	ResetPeer() error
}

// Config holds serial port configuration. Baud 115200 8N1 is the spec §6
// default.
type Config struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration

	// ResetPulse is how long DTR/RTS are held asserted before release.
	ResetPulse time.Duration
}

// DefaultConfig returns the spec §6 default configuration for device.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
		ResetPulse:  10 * time.Millisecond,
	}
}
