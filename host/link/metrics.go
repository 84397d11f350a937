package link

import "github.com/prometheus/client_golang/prometheus"

// LinkMetrics exposes the scheduler's internal state as Prometheus
// collectors (spec §4.10), grounded on runZeroInc-sockstats's exporter
// package use of prometheus/client_golang. None of this instrumentation
// feeds back into scheduling decisions — it is observational only.
type LinkMetrics struct {
	RTTMicroseconds      prometheus.Gauge
	RTTStdevMicroseconds prometheus.Gauge
	InFlightRequests     prometheus.Gauge
	TimeoutsTotal        prometheus.Counter
	GarbageBytesTotal    prometheus.Counter
	CRCFailuresTotal     prometheus.Counter
	FrameErrorsTotal     prometheus.Counter
	OrphanRepliesTotal   prometheus.Counter
}

// NewLinkMetrics constructs and registers the collector set against reg. A
// nil reg uses prometheus.DefaultRegisterer.
func NewLinkMetrics(reg prometheus.Registerer) *LinkMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &LinkMetrics{
		RTTMicroseconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hostlink_rtt_microseconds",
			Help: "Mean of the current RTT window, in microseconds.",
		}),
		RTTStdevMicroseconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hostlink_rtt_stdev_microseconds",
			Help: "Standard deviation of the current RTT window, in microseconds.",
		}),
		InFlightRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hostlink_inflight_requests",
			Help: "Current depth of the in-flight request table.",
		}),
		TimeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hostlink_timeouts_total",
			Help: "Total number of requests retransmitted after exceeding the adaptive deadline.",
		}),
		GarbageBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hostlink_decoder_garbage_bytes_total",
			Help: "Total bytes discarded by the frame decoder while out of sync.",
		}),
		CRCFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hostlink_decoder_crc_failures_total",
			Help: "Total frames dropped for failing CRC validation.",
		}),
		FrameErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hostlink_decoder_frame_errors_total",
			Help: "Total frames dropped for structural errors (length mismatch, overflow, too short).",
		}),
		OrphanRepliesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hostlink_orphan_replies_total",
			Help: "Total replies received for a msg_id no longer tracked (already timed out and retransmitted, or never sent).",
		}),
	}

	reg.MustRegister(
		m.RTTMicroseconds,
		m.RTTStdevMicroseconds,
		m.InFlightRequests,
		m.TimeoutsTotal,
		m.GarbageBytesTotal,
		m.CRCFailuresTotal,
		m.FrameErrorsTotal,
		m.OrphanRepliesTotal,
	)

	return m
}

// ObserveDecoderStats copies the frame codec's live counters onto the
// corresponding Prometheus counters. Counters only increase, so this adds the
// delta since the last observation.
func (m *LinkMetrics) ObserveDecoderStats(prevGarbage, prevCRC, prevFrame *int64, garbage, crc, frame int64) {
	if d := garbage - *prevGarbage; d > 0 {
		m.GarbageBytesTotal.Add(float64(d))
	}
	if d := crc - *prevCRC; d > 0 {
		m.CRCFailuresTotal.Add(float64(d))
	}
	if d := frame - *prevFrame; d > 0 {
		m.FrameErrorsTotal.Add(float64(d))
	}
	*prevGarbage, *prevCRC, *prevFrame = garbage, crc, frame
}
