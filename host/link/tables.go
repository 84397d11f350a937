package link

import (
	"sync"
	"time"

	"github.com/reticulum/hostlink/rpc"
)

// inFlightEntry is one row of the in-flight log, keyed by msg_id, joined with
// the payload cache entry needed to retransmit it (spec §3 InFlight).
type inFlightEntry struct {
	SendTime time.Time
	Node     Node
	Msg      rpc.Message
}

// Tables unifies the in-flight log and payload cache behind one mutex, per
// spec §9's "Shared mutable tables across async stages": both tables are
// mutated together by send, dispatch, and timeout stages, and the spec §3
// invariant (every in-flight entry has a matching payload-cache entry under
// the same msg_id, and vice versa) holds automatically because there is only
// one map, not two kept in sync.
type Tables struct {
	mu      sync.Mutex
	entries map[rpc.MsgID]inFlightEntry
}

// NewTables returns an empty Tables.
func NewTables() *Tables {
	return &Tables{entries: make(map[rpc.MsgID]inFlightEntry)}
}

// Insert records a freshly sent request, per spec §4.6 steps 3-4.
func (t *Tables) Insert(id rpc.MsgID, node Node, msg rpc.Message, sendTime time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[id] = inFlightEntry{SendTime: sendTime, Node: node, Msg: msg}
}

// Remove deletes and returns the entry for id, if present, per spec §4.5
// step 5 and §4.7 step 1.
func (t *Tables) Remove(id rpc.MsgID) (inFlightEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return e, ok
}

// Len reports the number of in-flight requests (spec §8 property 6/7).
func (t *Tables) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// snapshotEntry is one row of a Tables.Snapshot result.
type snapshotEntry struct {
	ID       rpc.MsgID
	SendTime time.Time
	Node     Node
	Msg      rpc.Message
}

// Snapshot returns a point-in-time copy of the in-flight log for the timeout
// stage to scan (spec §4.7: "iterate over a snapshot of the in-flight log").
// Order is unspecified, matching the spec's silence on scan order beyond
// "the first entry whose deadline has passed" in iteration order.
func (t *Tables) Snapshot() []snapshotEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]snapshotEntry, 0, len(t.entries))
	for id, e := range t.entries {
		out = append(out, snapshotEntry{ID: id, SendTime: e.SendTime, Node: e.Node, Msg: e.Msg})
	}
	return out
}

// TimeoutByteCounter tallies each byte of every retransmitted message's
// serialized form, by byte value (spec §3 TimeoutByteCounter, §4.7 step 2).
// Diagnostic only; dumped at shutdown.
type TimeoutByteCounter struct {
	mu     sync.Mutex
	counts [256]int64
}

// NewTimeoutByteCounter returns a zeroed counter.
func NewTimeoutByteCounter() *TimeoutByteCounter {
	return &TimeoutByteCounter{}
}

// Tally adds one count for every byte in data, under that byte's value.
func (c *TimeoutByteCounter) Tally(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range data {
		c.counts[b]++
	}
}

// Snapshot returns a copy of the 256-entry count table.
func (c *TimeoutByteCounter) Snapshot() [256]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts
}

// NonZero returns only the byte values with a non-zero tally, for compact
// shutdown diagnostics (spec §3: "dumped at shutdown").
func (c *TimeoutByteCounter) NonZero() map[byte]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[byte]int64)
	for i, n := range c.counts {
		if n > 0 {
			out[byte(i)] = n
		}
	}
	return out
}
