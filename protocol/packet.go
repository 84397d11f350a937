package protocol

import (
	"errors"
	"time"
)

// ErrFrameTooShort is returned when a committed frame is too small to hold
// even an empty payload plus header and CRC.
var ErrFrameTooShort = errors.New("protocol: frame too short")

// ErrLengthMismatch is returned when the frame's inner length byte disagrees
// with the observed payload length (spec §4.3 step 1 and 3).
var ErrLengthMismatch = errors.New("protocol: length field mismatch")

// Packet is the validated, unstuffed inner buffer delivered to the dispatch
// stage: dest, source, length, and payload — the CRC has already been
// stripped and verified.
type Packet struct {
	Timestamp time.Time
	Dest      byte
	Source    byte
	Raw       []byte // dest, source, length, payload — matches spec §4.5 pkt layout
}

// Assembler validates a decoded frame's length field and CRC (spec §4.3) and
// hands the resulting Packet to a bounded inbound queue.
type Assembler struct {
	inbound chan<- Packet
	Stats   *Stats
	Now     func() time.Time
}

// NewAssembler returns an Assembler that enqueues validated packets onto
// inbound. Stats, if non-nil, is shared with the owning Decoder so validation
// failures are tallied alongside decode failures.
func NewAssembler(inbound chan<- Packet, stats *Stats) *Assembler {
	return &Assembler{inbound: inbound, Stats: stats, Now: time.Now}
}

// Commit validates a frame's unstuffed inner buffer (dest, source, length,
// payload, crc4) per spec §4.3 and, on success, enqueues the packet
// non-blockingly. Any failure is reported via the returned error; the caller
// (the serial endpoint) logs and drops per spec §7 — nothing here is fatal to
// the runtime.
func (a *Assembler) Commit(buf []byte) error {
	if len(buf) < 3+4 {
		a.fail()
		return ErrFrameTooShort
	}

	innerLen := int(buf[2])
	if innerLen != len(buf)-Overhead {
		a.fail()
		return ErrLengthMismatch
	}

	pkt := buf[:len(buf)-4]
	crcRecv := buf[len(buf)-4:]
	if len(pkt)-3 != innerLen {
		a.fail()
		return ErrLengthMismatch
	}

	crcExpected := CRC32(pkt)
	if !CompareCRC(crcExpected, crcRecv) {
		if a.Stats != nil {
			a.Stats.CRCFailures.Add(1)
		}
		return ErrCRCMismatch
	}

	p := Packet{
		Timestamp: a.now(),
		Dest:      pkt[0],
		Source:    pkt[1],
		Raw:       append([]byte(nil), pkt...),
	}

	select {
	case a.inbound <- p:
		return nil
	default:
		a.fail()
		return ErrQueueFull
	}
}

// ErrQueueFull is returned when the inbound packet queue cannot accept a
// validated packet; spec §4.3 step 5 treats this as fatal for the frame only.
var ErrQueueFull = errors.New("protocol: inbound packet queue full")

func (a *Assembler) fail() {
	if a.Stats != nil {
		a.Stats.FrameErrors.Add(1)
	}
}

func (a *Assembler) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
