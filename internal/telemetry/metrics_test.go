package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	logx "remindbot/pkg/logx"
)

func TestIntakeMetricsRecord(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewIntakeMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.Record(ctx, "confirmed", 10*time.Millisecond)
	m.Record(ctx, "rejected", time.Millisecond)
	m.Record(ctx, "confirmed", time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	var total int64
	for _, md := range rm.ScopeMetrics[0].Metrics {
		if md.Name != "remindbot.intake.updates" {
			continue
		}
		sum, ok := md.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		for _, dp := range sum.DataPoints {
			total += dp.Value
		}
	}
	assert.Equal(t, int64(3), total)
}

func TestNilMetricsAreNoops(t *testing.T) {
	t.Parallel()
	var im *IntakeMetrics
	var dm *DeliveryMetrics
	im.Record(context.Background(), "x", time.Second)
	dm.Sent(context.Background())
	dm.Failed(context.Background(), "send")
}

func TestInitDisabled(t *testing.T) {
	t.Parallel()
	p, err := Init(context.Background(), Config{}, logx.Nop())
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))

	_, err = Init(context.Background(), Config{Enabled: true}, logx.Nop())
	assert.Error(t, err)
}
