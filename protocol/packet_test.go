package protocol

import (
	"testing"
	"time"
)

func TestAssemblerCommitSuccess(t *testing.T) {
	wire, _ := Encode(1, 2, []byte{0xAA, 0xBB})
	d := NewDecoder()
	var frame []byte
	for _, b := range wire {
		if f, ok := d.Feed(b); ok {
			frame = f
		}
	}

	ch := make(chan Packet, 1)
	stats := &Stats{}
	a := NewAssembler(ch, stats)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a.Now = func() time.Time { return fixed }

	if err := a.Commit(frame); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	select {
	case p := <-ch:
		if p.Dest != 2 || p.Source != 1 {
			t.Errorf("unexpected packet header: dest=%d source=%d", p.Dest, p.Source)
		}
		if !p.Timestamp.Equal(fixed) {
			t.Errorf("timestamp not propagated")
		}
	default:
		t.Fatal("expected packet on inbound channel")
	}

	if stats.FrameErrors.Load() != 0 || stats.CRCFailures.Load() != 0 {
		t.Errorf("unexpected stats on success: frame_errors=%d crc_failures=%d", stats.FrameErrors.Load(), stats.CRCFailures.Load())
	}
}

func TestAssemblerRejectsLengthMismatch(t *testing.T) {
	// dest, source, length=5 (wrong), one payload byte, 4 crc bytes -> 8 bytes total.
	buf := []byte{1, 2, 5, 0xAA, 0, 0, 0, 0}
	a := NewAssembler(make(chan Packet, 1), &Stats{})
	if err := a.Commit(buf); err != ErrLengthMismatch {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestAssemblerRejectsCRCMismatch(t *testing.T) {
	pkt := []byte{1, 2, 1, 0xAA}
	bad := append(append([]byte{}, pkt...), CRC32Bytes(CRC32(pkt)+1)...)
	stats := &Stats{}
	a := NewAssembler(make(chan Packet, 1), stats)
	if err := a.Commit(bad); err != ErrCRCMismatch {
		t.Errorf("expected ErrCRCMismatch, got %v", err)
	}
	if got := stats.CRCFailures.Load(); got != 1 {
		t.Errorf("expected CRCFailures=1, got %d", got)
	}
}

func TestAssemblerQueueFullIsNonBlocking(t *testing.T) {
	pkt := []byte{1, 2, 1, 0xAA}
	wire := append(append([]byte{}, pkt...), CRC32Bytes(CRC32(pkt))...)

	ch := make(chan Packet) // unbuffered, nothing reading
	a := NewAssembler(ch, &Stats{})

	done := make(chan error, 1)
	go func() { done <- a.Commit(wire) }()

	select {
	case err := <-done:
		if err != ErrQueueFull {
			t.Errorf("expected ErrQueueFull, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Commit blocked on a full queue")
	}
}

func TestAssemblerRejectsTooShortFrame(t *testing.T) {
	a := NewAssembler(make(chan Packet, 1), &Stats{})
	if err := a.Commit([]byte{1, 2, 3}); err != ErrFrameTooShort {
		t.Errorf("expected ErrFrameTooShort, got %v", err)
	}
}
