package protocol

import (
	"errors"
	"sync/atomic"
)

// Wire constants, spec §4.2/§6.
const (
	Start byte = 0x95 // 149
	End   byte = 0xEA // 234
	Esc   byte = 0xBB // 187

	// MaxPayload is the strict upper bound on payload length: len(payload) < MaxPayload.
	MaxPayload = 254

	// Overhead is dest(1) + source(1) + length(1) + crc(4), relative to the
	// unstuffed inner buffer the decoder assembles.
	Overhead = 7

	// maxDecodeBuf bounds the decoder's internal buffer before a framing
	// decision is made (spec §3 invariant), guarding against an unbounded
	// in-frame run of non-END bytes.
	maxDecodeBuf = MaxPayload + Overhead
)

// ErrPayloadTooLarge is returned by Encode when the payload does not fit in
// a single frame.
var ErrPayloadTooLarge = errors.New("protocol: payload too large for one frame")

// Encode builds one complete wire frame (START, stuffed body, END) carrying
// payload from source to dest, per spec §4.2.
func Encode(source, dest byte, payload []byte) ([]byte, error) {
	if len(payload) >= MaxPayload {
		return nil, ErrPayloadTooLarge
	}

	inner := make([]byte, 0, 3+len(payload)+4)
	inner = append(inner, dest, source, byte(len(payload)))
	inner = append(inner, payload...)

	crc := CRC32(inner)
	inner = append(inner, CRC32Bytes(crc)...)

	out := make([]byte, 0, len(inner)*2+2)
	out = append(out, Start)
	for _, b := range inner {
		out = append(out, stuff(b)...)
	}
	out = append(out, End)
	return out, nil
}

func stuff(b byte) []byte {
	if b == Start || b == End || b == Esc {
		return []byte{Esc, b ^ Esc}
	}
	return []byte{b}
}

// decoderState is the frame codec's synchronization state, spec §4.2.
type decoderState int

const (
	stateIdle decoderState = iota
	stateInFrame
	stateInFrameEsc
)

// Stats tallies decoder-level diagnostic events (spec §4.10 / §7). All
// counters are monotonically increasing for the process lifetime and are
// atomic.Int64 because the read loop's goroutine increments them while the
// runtime's metrics sampler and the console's diagnostics printer read them
// from other goroutines (spec §5).
type Stats struct {
	GarbageBytes atomic.Int64
	FrameErrors  atomic.Int64
	CRCFailures  atomic.Int64
}

// Decoder is the byte-stuffed frame decode state machine of spec §4.2. It is
// fed one byte at a time and, on every END byte, hands the unstuffed inner
// buffer back to its caller, which commits it to an Assembler for length/CRC
// validation. It is not safe for concurrent use — the serial endpoint
// feeds it from a single reader.
type Decoder struct {
	state decoderState
	buf   []byte
	Stats Stats
}

// NewDecoder returns a Decoder ready to receive bytes from Idle.
func NewDecoder() *Decoder {
	return &Decoder{state: stateIdle, buf: make([]byte, 0, maxDecodeBuf)}
}

// Feed processes one received byte. When a frame boundary (END) is reached,
// it returns the unstuffed inner buffer (dest, source, length, payload, crc)
// and ok=true; the caller (a Assembler) is responsible for validating it.
// Feed never returns an error to the caller: all decode-time failures are
// tallied in Stats and resolved by resetting to Idle (or, for a START seen
// mid-frame, by restarting the frame), per spec §7 — the
// decoder resynchronizes automatically and must never lose sync permanently.
func (d *Decoder) Feed(b byte) (frame []byte, ok bool) {
	switch d.state {
	case stateIdle:
		if b == Start {
			d.buf = d.buf[:0]
			d.state = stateInFrame
		} else {
			d.Stats.GarbageBytes.Add(1)
		}
		return nil, false

	case stateInFrame:
		switch b {
		case Esc:
			d.state = stateInFrameEsc
		case End:
			out := append([]byte(nil), d.buf...)
			d.buf = d.buf[:0]
			d.state = stateIdle
			return out, true
		case Start:
			// A literal START can never appear inside a valid frame (it would
			// have been escaped); observing one mid-frame means the frame in
			// progress is garbage. Restart rather than resync through Idle so
			// a single dropped END doesn't cost an extra frame.
			d.Stats.FrameErrors.Add(1)
			d.buf = d.buf[:0]
		default:
			d.appendByte(b)
		}
		return nil, false

	case stateInFrameEsc:
		if d.appendByte(b ^ Esc) {
			d.state = stateInFrame
		}
		return nil, false
	}
	return nil, false
}

// appendByte appends b to the in-progress buffer, enforcing the §3 buffer
// bound. It returns false (and resets to Idle) when the bound was hit, so
// callers must not blindly re-enter InFrame afterward.
func (d *Decoder) appendByte(b byte) bool {
	if len(d.buf) >= maxDecodeBuf {
		d.Stats.FrameErrors.Add(1)
		d.buf = d.buf[:0]
		d.state = stateIdle
		return false
	}
	d.buf = append(d.buf, b)
	return true
}
