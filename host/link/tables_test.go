package link

import (
	"testing"
	"time"

	"github.com/reticulum/hostlink/rpc"
)

func TestTablesInsertRemove(t *testing.T) {
	tb := NewTables()
	msg := &rpc.GenericMessage{Variant: "ping"}

	if tb.Len() != 0 {
		t.Fatalf("expected empty tables, got len=%d", tb.Len())
	}

	tb.Insert(1, Node{Source: 0, Dest: 1}, msg, time.Now())
	if tb.Len() != 1 {
		t.Fatalf("expected len=1 after insert, got %d", tb.Len())
	}

	entry, ok := tb.Remove(1)
	if !ok {
		t.Fatal("expected to find msg_id=1")
	}
	if entry.Msg != rpc.Message(msg) {
		t.Error("removed entry did not carry the original message")
	}
	if tb.Len() != 0 {
		t.Fatalf("expected len=0 after remove, got %d", tb.Len())
	}
}

func TestTablesRemoveMissingIsNoop(t *testing.T) {
	tb := NewTables()
	if _, ok := tb.Remove(99); ok {
		t.Error("expected Remove of unknown id to report not-found")
	}
}

func TestTablesSnapshotIsPointInTime(t *testing.T) {
	tb := NewTables()
	tb.Insert(1, Node{}, &rpc.GenericMessage{}, time.Now())
	tb.Insert(2, Node{}, &rpc.GenericMessage{}, time.Now())

	snap := tb.Snapshot()
	tb.Insert(3, Node{}, &rpc.GenericMessage{}, time.Now())

	if len(snap) != 2 {
		t.Errorf("expected snapshot to have 2 entries, got %d", len(snap))
	}
}

func TestTimeoutByteCounterTally(t *testing.T) {
	c := NewTimeoutByteCounter()
	c.Tally([]byte{1, 1, 2})
	nz := c.NonZero()
	if nz[1] != 2 || nz[2] != 1 {
		t.Errorf("unexpected tally: %v", nz)
	}
	if len(nz) != 2 {
		t.Errorf("expected 2 non-zero byte values, got %d", len(nz))
	}
}
