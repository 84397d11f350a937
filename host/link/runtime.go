package link

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/reticulum/hostlink/host/serial"
	"github.com/reticulum/hostlink/protocol"
	"github.com/reticulum/hostlink/rpc"
)

const queueCapacity = 64

// decoderStatsInterval is how often Runtime samples the frame codec's
// cumulative counters onto the Prometheus collectors.
const decoderStatsInterval = time.Second

// Runtime wires the serial endpoint and the decode/dispatch/send/timeout
// pipeline (spec §2) over the inbound-frames, parsed-replies, and
// outbound-requests queues, plus the serial OS buffer.
type Runtime struct {
	Endpoint    *SerialEndpoint
	Tables      *Tables
	RTT         *RTTWindow
	Dispatcher  *Dispatcher
	Sender      *Sender
	Timeout     *TimeoutStage
	ByteCounter *TimeoutByteCounter
	Stats       *protocol.Stats
	Metrics     *LinkMetrics
	Codec       rpc.Codec

	Inbound  chan protocol.Packet
	Received chan Received
	Outbound chan OutboundRequest
}

// NewRuntime constructs a Runtime ready to Run over port.
func NewRuntime(port serial.Port, codec rpc.Codec, metrics *LinkMetrics) *Runtime {
	stats := &protocol.Stats{}
	inbound := make(chan protocol.Packet, queueCapacity)
	received := make(chan Received, queueCapacity)
	outbound := make(chan OutboundRequest, queueCapacity)

	tables := NewTables()
	rtt := NewRTTWindow(DefaultRTTCapacity)
	byteCounter := NewTimeoutByteCounter()
	endpoint := NewSerialEndpoint(port, inbound, stats, codec)

	return &Runtime{
		Endpoint:    endpoint,
		Tables:      tables,
		RTT:         rtt,
		Dispatcher:  NewDispatcher(codec, tables, rtt, metrics),
		Sender:      NewSender(endpoint, tables, metrics),
		Timeout:     NewTimeoutStage(tables, rtt, codec, byteCounter, metrics),
		ByteCounter: byteCounter,
		Stats:       stats,
		Metrics:     metrics,
		Codec:       codec,
		Inbound:     inbound,
		Received:    received,
		Outbound:    outbound,
	}
}

// Run connects the endpoint, starts all four pipeline stages plus the
// application loop, and blocks until ctx is cancelled or the serial port
// disconnects (spec §5 "Cancellation": terminal, all loops exit, diagnostics
// are printed, outstanding in-flight entries are discarded — no graceful
// drain).
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Endpoint.Connect(); err != nil {
		return fmt.Errorf("link: connect: %w", err)
	}

	disconnected := make(chan error, 1)
	go r.Endpoint.ReadLoop(ctx,
		func(err error) { log.Printf("link: frame commit error: %v", err) },
		func(err error) { disconnected <- err },
	)
	go r.Dispatcher.Run(ctx, r.Inbound, r.Received)
	go r.Sender.Run(ctx, r.Outbound)
	go r.Timeout.Run(ctx, r.Outbound)
	go r.applicationLoop(ctx)
	go r.observeDecoderStats(ctx)

	select {
	case <-ctx.Done():
		r.dumpDiagnostics()
		return ctx.Err()
	case err := <-disconnected:
		r.dumpDiagnostics()
		return fmt.Errorf("link: serial disconnect: %w", err)
	}
}

// Send pushes an application-initiated request onto the outbound queue.
func (r *Runtime) Send(node Node, msg rpc.Message) error {
	select {
	case r.Outbound <- OutboundRequest{Node: node, Msg: msg}:
		return nil
	default:
		return fmt.Errorf("link: outbound queue full")
	}
}

// applicationLoop is the placeholder application-level consumer (spec §2
// item 9 / §4.9): it pulls from the received-packet queue and emits a
// follow-up ping to keep the link exercised.
func (r *Runtime) applicationLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-r.Received:
			if !ok {
				return
			}
			if rec.Reply != nil {
				log.Printf("link: application: reply from source=%d: %+v", rec.Source, rec.Reply)
			} else {
				log.Printf("link: application: unparsed packet from source=%d", rec.Source)
			}

			ping := &rpc.GenericMessage{Variant: "ping"}
			node := Node{Source: rec.Dest, Dest: rec.Source}
			if err := r.Send(node, ping); err != nil {
				log.Printf("link: application: %v", err)
			}
		}
	}
}

// observeDecoderStats periodically copies the frame codec's cumulative
// counters onto the Prometheus collectors (spec §4.10), since the decoder and
// assembler only ever increment r.Stats in place.
func (r *Runtime) observeDecoderStats(ctx context.Context) {
	if r.Metrics == nil {
		return
	}
	var prevGarbage, prevCRC, prevFrame int64

	ticker := time.NewTicker(decoderStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Metrics.ObserveDecoderStats(&prevGarbage, &prevCRC, &prevFrame,
				r.Stats.GarbageBytes.Load(), r.Stats.CRCFailures.Load(), r.Stats.FrameErrors.Load())
		}
	}
}

func (r *Runtime) dumpDiagnostics() {
	log.Printf("link: shutdown diagnostics: garbage_bytes=%d crc_failures=%d frame_errors=%d",
		r.Stats.GarbageBytes.Load(), r.Stats.CRCFailures.Load(), r.Stats.FrameErrors.Load())
	log.Printf("link: shutdown diagnostics: timeout byte tally=%v", r.ByteCounter.NonZero())
}
