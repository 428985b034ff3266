package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// engineMetrics holds OTel metric instruments for the propagation engine.
// Instruments are registered against the global delegating provider at
// init time, so they automatically forward to a real provider once one
// is installed; until then they forward to the no-op implementation.
var engineMetrics struct {
	framesSent   metric.Int64Counter
	framesAcked  metric.Int64Counter
	scanDuration metric.Float64Histogram
	ackTimeouts  metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/tablefabric/vtable/internal/propagation")
	engineMetrics.framesSent, _ = m.Int64Counter("vtable.engine.frames_sent",
		metric.WithDescription("Push frames sent by the propagation engine"),
		metric.WithUnit("{frame}"),
	)
	engineMetrics.framesAcked, _ = m.Int64Counter("vtable.engine.frames_acked",
		metric.WithDescription("Pending-pushed trackers folded away by an inbound ack_seq"),
		metric.WithUnit("{frame}"),
	)
	engineMetrics.scanDuration, _ = m.Float64Histogram("vtable.engine.scan_duration_ms",
		metric.WithDescription("Duration of one engine Service scan pass"),
		metric.WithUnit("ms"),
	)
	engineMetrics.ackTimeouts, _ = m.Int64Counter("vtable.engine.ack_timeouts",
		metric.WithDescription("Sessions aborted because the oldest pending frame exceeded ack-wait-limit"),
		metric.WithUnit("{timeout}"),
	)
}

// RecordFrameSent counts one Push Frame handed to the transport.
func RecordFrameSent(ctx context.Context) {
	engineMetrics.framesSent.Add(ctx, 1)
}

// RecordFramesAcked counts n pending-pushed trackers folded away by an
// inbound ack.
func RecordFramesAcked(ctx context.Context, n int64) {
	if n <= 0 {
		return
	}
	engineMetrics.framesAcked.Add(ctx, n)
}

// RecordScanDuration records the wall-clock duration of one Service
// scan pass, in milliseconds.
func RecordScanDuration(ctx context.Context, ms float64) {
	engineMetrics.scanDuration.Record(ctx, ms)
}

// RecordAckTimeout counts one session abort triggered by the ack-wait
// window check.
func RecordAckTimeout(ctx context.Context) {
	engineMetrics.ackTimeouts.Add(ctx, 1)
}
