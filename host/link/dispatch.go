package link

import (
	"context"
	"log"

	"github.com/reticulum/hostlink/protocol"
	"github.com/reticulum/hostlink/rpc"
)

// Dispatcher is the dispatch stage (pkt_decode_loop, spec §4.5): it consumes
// validated packets, parses them into reply messages, correlates by msg_id
// against the shared Tables, updates the RTT window, and forwards every
// packet (parsed or not) to the received-packet queue.
type Dispatcher struct {
	Codec   rpc.Codec
	Tables  *Tables
	RTT     *RTTWindow
	Metrics *LinkMetrics
}

// NewDispatcher wires a dispatch stage over the given shared state.
func NewDispatcher(codec rpc.Codec, tables *Tables, rtt *RTTWindow, metrics *LinkMetrics) *Dispatcher {
	return &Dispatcher{Codec: codec, Tables: tables, RTT: rtt, Metrics: metrics}
}

// Run pulls packets from inbound until ctx is cancelled or inbound is closed,
// pushing the resulting Received value onto received for every packet (spec
// §4.5 step 6).
func (d *Dispatcher) Run(ctx context.Context, inbound <-chan protocol.Packet, received chan<- Received) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-inbound:
			if !ok {
				return
			}
			d.handle(pkt, received)
		}
	}
}

func (d *Dispatcher) handle(pkt protocol.Packet, received chan<- Received) {
	// pkt.Raw is dest, source, length, payload (spec §4.5 step 1); the length
	// byte at index 2 was already validated by the assembler.
	inner := pkt.Raw[3:]

	out := Received{Timestamp: pkt.Timestamp, Source: pkt.Source, Dest: pkt.Dest}

	reply, err := d.Codec.ParseReply(inner)
	if err != nil {
		// spec §4.5 step 2 / §7 ParseError: substitute none, keep going.
		d.push(out, received)
		return
	}
	out.Reply = reply

	msgID := reply.ResultMsgID()
	if entry, ok := d.Tables.Remove(msgID); ok {
		rttUs := pkt.Timestamp.Sub(entry.SendTime).Microseconds()
		if rttUs < 0 {
			rttUs = 0
		}
		d.RTT.Add(rttUs)
		mean, stdev := d.RTT.Snapshot()

		if d.Metrics != nil {
			d.Metrics.RTTMicroseconds.Set(mean)
			d.Metrics.RTTStdevMicroseconds.Set(stdev)
			d.Metrics.InFlightRequests.Set(float64(d.Tables.Len()))
		}

		log.Printf("link: reply source=%d dest=%d msg_id=%d rtt=%dus mean=%.1fus stdev=%.1fus",
			pkt.Source, pkt.Dest, msgID, rttUs, mean, stdev)
	} else {
		if d.Metrics != nil {
			d.Metrics.OrphanRepliesTotal.Inc()
		}
		log.Printf("link: orphan reply: msg_id=%d (already retransmitted or never tracked)", msgID)
	}

	d.push(out, received)
}

// push enqueues non-blockingly: a full received-packet queue must never stall
// the dispatch stage (spec §5's suspension points name only the queue pop,
// not the push, as a blocking point here).
func (d *Dispatcher) push(r Received, received chan<- Received) {
	select {
	case received <- r:
	default:
		log.Printf("link: received-packet queue full, dropping packet from source=%d", r.Source)
	}
}
