package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	before := testutil.ToFloat64(dispatchFrames.WithLabelValues("creator", OutcomeOK))
	RecordFrame("creator", OutcomeOK)
	RecordFrame("creator", OutcomeOK)
	if got := testutil.ToFloat64(dispatchFrames.WithLabelValues("creator", OutcomeOK)); got != before+2 {
		t.Fatalf("unexpected frame count: got=%v want=%v", got, before+2)
	}

	RecordDroppedWrite(DropCapacity)
	RecordGrowth()
	RecordDesync()
	RecordDrain(120 * time.Microsecond)

	ticks := testutil.ToFloat64(backendTicks)
	RecordTick()
	if got := testutil.ToFloat64(backendTicks); got != ticks+1 {
		t.Fatalf("unexpected tick count: got=%v want=%v", got, ticks+1)
	}
	RecordReport("ReportTransform")
}
