package protocol

import (
	"bytes"
	"testing"
)

func decodeAll(t []byte) [][]byte {
	d := NewDecoder()
	var frames [][]byte
	for _, b := range t {
		if f, ok := d.Feed(b); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		source, dest byte
		payload      []byte
	}{
		{0, 10, []byte{0x01}},
		{255, 0, []byte{}},
		{1, 2, bytes.Repeat([]byte{0x42}, 253)},
		{7, 8, []byte{0x95, 0xBB, 0xEA}},
	}

	for _, c := range cases {
		wire, err := Encode(c.source, c.dest, c.payload)
		if err != nil {
			t.Fatalf("Encode(%d,%d,%v): %v", c.source, c.dest, c.payload, err)
		}

		frames := decodeAll(wire)
		if len(frames) != 1 {
			t.Fatalf("expected exactly one decoded frame, got %d", len(frames))
		}

		ch := make(chan Packet, 1)
		a := NewAssembler(ch, nil)
		if err := a.Commit(frames[0]); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		p := <-ch
		if p.Source != c.source || p.Dest != c.dest || !bytes.Equal(p.Raw[3:], c.payload) {
			t.Errorf("round trip of (%d,%d,%x) gave (%d,%d,%x)", c.source, c.dest, c.payload, p.Source, p.Dest, p.Raw[3:])
		}
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	if _, err := Encode(0, 0, make([]byte, 254)); err != ErrPayloadTooLarge {
		t.Errorf("expected ErrPayloadTooLarge for 254-byte payload, got %v", err)
	}
	if _, err := Encode(0, 0, make([]byte, 253)); err != nil {
		t.Errorf("253-byte payload should succeed, got %v", err)
	}
}

func TestS1OneBytePayload(t *testing.T) {
	wire, err := Encode(0, 10, []byte{0x01})
	if err != nil {
		t.Fatal(err)
	}
	if wire[0] != Start || wire[len(wire)-1] != End {
		t.Fatalf("frame missing START/END markers: %x", wire)
	}

	frames := decodeAll(wire)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	buf := frames[0]
	if buf[0] != 10 || buf[1] != 0 || buf[2] != 1 || buf[3] != 0x01 {
		t.Errorf("unexpected decoded inner buffer: %x", buf)
	}
}

func TestS2Stuffing(t *testing.T) {
	payload := []byte{0x95, 0xBB, 0xEA}
	wire, err := Encode(0, 1, payload)
	if err != nil {
		t.Fatal(err)
	}
	// no literal START or END may appear between the frame markers
	for i := 1; i < len(wire)-1; i++ {
		if wire[i] == Start || wire[i] == End {
			t.Fatalf("unescaped marker byte inside stuffed region at %d: %x", i, wire)
		}
	}

	frames := decodeAll(wire)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	got := frames[0][3 : len(frames[0])-4]
	if !bytes.Equal(got, payload) {
		t.Errorf("stuffing round trip: got %x want %x", got, payload)
	}
}

func TestS3GarbageRecovery(t *testing.T) {
	f1, _ := Encode(0, 1, []byte{0xAA})
	f2, _ := Encode(2, 3, []byte{0xBB, 0xCC})

	stream := append([]byte{0xFF, 0xFF, 0xFF}, f1...)
	stream = append(stream, 0x00)
	stream = append(stream, f2...)

	d := NewDecoder()
	var frames [][]byte
	for _, b := range stream {
		if f, ok := d.Feed(b); ok {
			frames = append(frames, f)
		}
	}

	if len(frames) != 2 {
		t.Fatalf("expected 2 frames recovered from garbage stream, got %d", len(frames))
	}
	if got := d.Stats.GarbageBytes.Load(); got != 4 {
		t.Errorf("expected 4 garbage bytes tallied (3 leading FF + 1 interstitial 00), got %d", got)
	}
}

func TestGarbagePrependedAndAppended(t *testing.T) {
	wire, _ := Encode(5, 6, []byte{0x01, 0x02})
	stream := append([]byte{0x00, 0x11, 0x22}, wire...)
	stream = append(stream, 0x33, 0x44)

	frames := decodeAll(stream)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame despite surrounding garbage, got %d", len(frames))
	}
}

func TestSingleByteCorruptionNeverYieldsDifferentValidFrame(t *testing.T) {
	wire, _ := Encode(3, 4, []byte{0x10, 0x20, 0x30})

	for i := 1; i < len(wire)-1; i++ {
		corrupt := append([]byte(nil), wire...)
		orig := corrupt[i]
		for _, repl := range []byte{orig + 1, orig ^ 0xFF} {
			corrupt[i] = repl
			frames := decodeAll(corrupt)
			for _, f := range frames {
				a := NewAssembler(make(chan Packet, 1), nil)
				if err := a.Commit(f); err == nil {
					// Successfully validated frame must be byte-identical to the original.
					orig2, _ := Encode(3, 4, []byte{0x10, 0x20, 0x30})
					d2 := NewDecoder()
					var want []byte
					for _, b := range orig2 {
						if fr, ok := d2.Feed(b); ok {
							want = fr
						}
					}
					if !bytes.Equal(f, want) {
						t.Fatalf("corruption at byte %d (0x%02x->0x%02x) produced a different valid frame", i, orig, repl)
					}
				}
			}
		}
	}
}

func TestFrameTooLargeResyncs(t *testing.T) {
	d := NewDecoder()
	// Feed a START followed by more non-marker bytes than maxDecodeBuf allows,
	// never an END, then a valid frame.
	if _, ok := d.Feed(Start); ok {
		t.Fatal("unexpected frame on START")
	}
	for i := 0; i < maxDecodeBuf+10; i++ {
		d.Feed(0x01)
	}
	if d.Stats.FrameErrors.Load() == 0 {
		t.Error("expected at least one FrameErrors tally from buffer overflow")
	}

	wire, _ := Encode(9, 9, []byte{0x42})
	var frames [][]byte
	for _, b := range wire {
		if f, ok := d.Feed(b); ok {
			frames = append(frames, f)
		}
	}
	if len(frames) != 1 {
		t.Fatalf("decoder failed to resynchronize after overflow, got %d frames", len(frames))
	}
}
