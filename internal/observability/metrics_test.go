package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RegisterOnFreshRegistry(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()
	for _, c := range m.collectors() {
		require.NoError(t, reg.Register(c))
	}

	m.Comparisons.WithLabelValues("excellent").Inc()
	m.Comparisons.WithLabelValues("excellent").Inc()
	m.FieldCache.WithLabelValues("value", "hit").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Comparisons.WithLabelValues("excellent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FieldCache.WithLabelValues("value", "hit")))
}

func TestMetrics_Namespace(t *testing.T) {
	m := NewMetricsForTesting()
	assert.Contains(t, m.MessagesConsumed.Desc().String(), `"reconciler_messages_consumed_total"`)

	m.FieldLookups.WithLabelValues("lattice", "success").Inc()
	m.FieldLookups.WithLabelValues("value", "absent").Inc()
	assert.Equal(t, 2, testutil.CollectAndCount(m.FieldLookups))
}
