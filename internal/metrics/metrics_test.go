package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/swiftserve/apierr"
)

func TestMetrics_ObserveRequest(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	require.NotNil(t, m)

	start := time.Now()
	m.ObserveRequest("masked", start, nil)
	m.ObserveRequest("masked", start, nil)
	m.ObserveRequest("masked", start, apierr.NewMaskRequired("PartType0/Masses"))
	m.ObserveRequest("unmasked", start, errors.New("disk on fire"))

	require.Equal(t, float64(2), testutil.ToFloat64(m.Requests.WithLabelValues("masked", OutcomeOK)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.Requests.WithLabelValues("masked", "MaskRequired")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.Requests.WithLabelValues("unmasked", "Unknown")))
	require.Equal(t, 2, testutil.CollectAndCount(m.RequestDuration))
}

func TestMetrics_ObserveRead(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveRead(334, 334*4)
	m.ObserveRead(10, 120)

	require.Equal(t, float64(344), testutil.ToFloat64(m.RowsGathered))
	require.Equal(t, float64(1456), testutil.ToFloat64(m.BytesRead))
}

func TestMetrics_ObserveCache(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveCache(false)
	m.ObserveCache(true)
	m.ObserveCache(true)

	require.Equal(t, float64(2), testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveRequest("units", time.Now(), nil)
		m.ObserveRead(1, 1)
		m.ObserveCache(true)
	})
}

func TestMetrics_Registration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Requests.WithLabelValues("filepath", OutcomeOK).Add(0)
	m.RequestDuration.WithLabelValues("filepath").Observe(0)
	m.CacheLookups.WithLabelValues("hit").Add(0)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 5)

	require.Panics(t, func() { NewMetrics(reg) })
}

func TestOutcome(t *testing.T) {
	require.Equal(t, OutcomeOK, Outcome(nil))
	require.Equal(t, "DatasetNotFound", Outcome(apierr.NewDatasetNotFound("nope")))
}
