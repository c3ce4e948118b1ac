package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	_ "github.com/RoqueChristian/backup-inteligencia/internal/testing/guard"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("report:publish_unified").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("report:publish_unified").End(boom), boom)
	m.AddRows("report:publish_unified", 4)
	m.AddRows("report:publish_unified", 0)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("report:publish_unified", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("report:publish_unified", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("report:publish_unified")))
	require.Equal(t, 4.0, testutil.ToFloat64(m.rows.WithLabelValues("report:publish_unified")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("x").End(boom), boom)
	m.AddRows("x", 3)
}
