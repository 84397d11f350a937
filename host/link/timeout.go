package link

import (
	"context"
	"log"
	"time"

	"github.com/reticulum/hostlink/rpc"
)

// TimeoutStage is the timeout stage (packet_check_timeout_loop, spec §4.7):
// it periodically scans a snapshot of the in-flight log and resubmits the
// first expired request, with msg_id cleared for reassignment on resend.
type TimeoutStage struct {
	Tables      *Tables
	RTT         *RTTWindow
	Codec       rpc.Codec
	ByteCounter *TimeoutByteCounter
	Metrics     *LinkMetrics
	Now         func() time.Time
}

// NewTimeoutStage wires a timeout stage over the shared tables and RTT
// window.
func NewTimeoutStage(tables *Tables, rtt *RTTWindow, codec rpc.Codec, counter *TimeoutByteCounter, metrics *LinkMetrics) *TimeoutStage {
	return &TimeoutStage{Tables: tables, RTT: rtt, Codec: codec, ByteCounter: counter, Metrics: metrics, Now: time.Now}
}

// Deadline returns the current adaptive retransmit deadline: 2 x mean(RTT),
// per spec §4.7. Stdev is available on RTT but intentionally unused here,
// per spec §9.
func (s *TimeoutStage) Deadline() time.Duration {
	return time.Duration(2*s.RTT.Mean()) * time.Microsecond
}

// Run sleeps for Deadline, scans once, and repeats, until ctx is cancelled.
func (s *TimeoutStage) Run(ctx context.Context, outbound chan<- OutboundRequest) {
	for {
		d := s.Deadline()
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
		s.scanOnce(outbound)
	}
}

// scanOnce resubmits at most one expired request per call (spec §4.7 step 5:
// "stop scanning for this cycle to avoid storms").
func (s *TimeoutStage) scanOnce(outbound chan<- OutboundRequest) {
	deadline := s.Deadline()
	now := s.Now()

	for _, e := range s.Tables.Snapshot() {
		if now.Sub(e.SendTime) <= deadline {
			continue
		}

		// Re-check under the table's lock: the dispatch stage may have
		// already removed this id between Snapshot and here.
		if _, ok := s.Tables.Remove(e.ID); !ok {
			continue
		}

		if data, err := s.Codec.Serialize(e.Msg); err == nil {
			s.ByteCounter.Tally(data)
		}

		e.Msg.ClearMsgID()

		if s.Metrics != nil {
			s.Metrics.TimeoutsTotal.Inc()
			s.Metrics.InFlightRequests.Set(float64(s.Tables.Len()))
		}

		select {
		case outbound <- OutboundRequest{Node: e.Node, Msg: e.Msg}:
		default:
			log.Printf("link: outbound queue full, dropping retransmit for node=%+v", e.Node)
		}
		return
	}
}
