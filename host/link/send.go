package link

import (
	"context"
	"log"
	"time"

	"github.com/reticulum/hostlink/rpc"
)

// OutboundRequest is one entry on the outbound-request queue: an RPC message
// bound for node. It may or may not already carry a msg_id — SendPacket
// assigns one if absent (spec §4.4).
type OutboundRequest struct {
	Node Node
	Msg  rpc.Message
}

// Sender is the send stage (packet_send_loop, spec §4.6): it serializes and
// writes each outbound message, then records it in the shared Tables so the
// timeout stage can find and retransmit it later.
type Sender struct {
	Endpoint *SerialEndpoint
	Tables   *Tables
	Metrics  *LinkMetrics
	Now      func() time.Time
}

// NewSender wires a send stage over endpoint and tables.
func NewSender(endpoint *SerialEndpoint, tables *Tables, metrics *LinkMetrics) *Sender {
	return &Sender{Endpoint: endpoint, Tables: tables, Metrics: metrics, Now: time.Now}
}

// Run pulls requests from outbound until ctx is cancelled or outbound is
// closed.
func (s *Sender) Run(ctx context.Context, outbound <-chan OutboundRequest) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-outbound:
			if !ok {
				return
			}
			s.handle(req)
		}
	}
}

func (s *Sender) handle(req OutboundRequest) {
	id, err := s.Endpoint.SendPacket(req.Node, req.Msg)
	if err != nil {
		log.Printf("link: send to node=%+v failed: %v", req.Node, err)
		return
	}

	now := s.Now()
	s.Tables.Insert(id, req.Node, req.Msg, now)

	if s.Metrics != nil {
		s.Metrics.InFlightRequests.Set(float64(s.Tables.Len()))
	}
}
