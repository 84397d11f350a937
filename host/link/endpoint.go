package link

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/reticulum/hostlink/host/serial"
	"github.com/reticulum/hostlink/protocol"
	"github.com/reticulum/hostlink/rpc"
)

// SerialEndpoint owns the serial byte stream: it feeds inbound bytes to the
// frame codec, writes encoded frames, and assigns msg_id on send when
// absent (spec §4.4).
type SerialEndpoint struct {
	port      serial.Port
	decoder   *protocol.Decoder
	assembler *protocol.Assembler
	codec     rpc.Codec

	writeMu sync.Mutex
	nextID  atomic.Uint32 // process-local, strictly increasing, spec §3/§8 property 9
}

// NewSerialEndpoint returns an endpoint writing/reading over port, decoding
// frames into packets delivered onto inbound, and using codec to serialize
// outbound messages.
func NewSerialEndpoint(port serial.Port, inbound chan<- protocol.Packet, stats *protocol.Stats, codec rpc.Codec) *SerialEndpoint {
	return &SerialEndpoint{
		port:      port,
		decoder:   protocol.NewDecoder(),
		assembler: protocol.NewAssembler(inbound, stats),
		codec:     codec,
	}
}

// Connect pulses DTR/RTS to reset the MCU, per spec §4.4.
func (e *SerialEndpoint) Connect() error {
	return e.port.ResetPeer()
}

// OnBytes forwards received bytes to the frame codec byte-by-byte, per spec
// §4.4. Any frame that completes is handed to the packet assembler; a failed
// commit is logged by the caller (the read loop), never fatal here.
func (e *SerialEndpoint) OnBytes(data []byte, onCommitError func(error)) {
	for _, b := range data {
		frame, ok := e.decoder.Feed(b)
		if !ok {
			continue
		}
		if err := e.assembler.Commit(frame); err != nil && onCommitError != nil {
			onCommitError(err)
		}
	}
}

// SendPacket serializes msg, assigning the next msg_id if msg does not
// already carry one, encodes a frame per spec §4.2, writes it to the stream,
// and returns the final msg_id (spec §4.4).
func (e *SerialEndpoint) SendPacket(node Node, msg rpc.Message) (rpc.MsgID, error) {
	if !msg.HasMsgID() {
		msg.SetMsgID(e.nextID.Add(1) - 1)
	}

	payload, err := e.codec.Serialize(msg)
	if err != nil {
		return 0, fmt.Errorf("link: serialize outbound message: %w", err)
	}
	if len(payload) >= protocol.MaxPayload {
		return 0, protocol.ErrPayloadTooLarge
	}

	frame, err := protocol.Encode(node.Source, node.Dest, payload)
	if err != nil {
		return 0, err
	}

	e.writeMu.Lock()
	_, err = e.port.Write(frame)
	e.writeMu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("link: write frame: %w", err)
	}

	return msg.MsgIDValue(), nil
}

// ReadLoop continuously reads from the serial port and feeds bytes to the
// decoder until ctx is cancelled or the port reports a terminal read error,
// at which point onDisconnect is called exactly once (spec §4.4/§5/§7
// SerialDisconnect: terminal, stops the runtime).
func (e *SerialEndpoint) ReadLoop(ctx context.Context, onCommitError func(error), onDisconnect func(error)) {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := e.port.Read(buf)
		if n > 0 {
			e.OnBytes(buf[:n], onCommitError)
		}
		if err != nil {
			if onDisconnect != nil {
				onDisconnect(err)
			}
			return
		}
	}
}

// Close closes the underlying port.
func (e *SerialEndpoint) Close() error {
	return e.port.Close()
}
