//go:build !wasm

package serial

import (
	"fmt"
	"time"

	goserial "go.bug.st/serial"
)

// NativePort wraps go.bug.st/serial. Chosen over the teacher's tarm/serial
// (see DESIGN.md) because its Port exposes SetDTR/SetRTS, which spec §4.4's
// reset-on-connect pulse requires and tarm/serial does not provide.
type NativePort struct {
	port goserial.Port
	cfg  *Config
}

// Open opens a native serial port per cfg.
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("serial: config cannot be nil")
	}

	mode := &goserial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	}

	port, err := goserial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Device, err)
	}

	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("serial: set read timeout: %w", err)
		}
	}

	return &NativePort{port: port, cfg: cfg}, nil
}

func (p *NativePort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *NativePort) Close() error {
	return p.port.Close()
}

// ResetPeer pulses DTR and RTS high then low, with the MCU reset sequence
// spec §4.4 specifies: assert both, hold for cfg.ResetPulse, release both.
func (p *NativePort) ResetPeer() error {
	if err := p.port.SetDTR(true); err != nil {
		return fmt.Errorf("serial: assert DTR: %w", err)
	}
	if err := p.port.SetRTS(true); err != nil {
		return fmt.Errorf("serial: assert RTS: %w", err)
	}

	pulse := p.cfg.ResetPulse
	if pulse <= 0 {
		pulse = 10 * time.Millisecond
	}
	time.Sleep(pulse)

	if err := p.port.SetDTR(false); err != nil {
		return fmt.Errorf("serial: release DTR: %w", err)
	}
	if err := p.port.SetRTS(false); err != nil {
		return fmt.Errorf("serial: release RTS: %w", err)
	}
	return nil
}
