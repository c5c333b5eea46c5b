package bpmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestObserveProbeIncrementsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveProbe("api_endpoint", "ok", 0.25)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() == "bpvalidate_probes_total" {
			found = true
			require.Len(t, mf.GetMetric(), 1)
			require.Equal(t, float64(1), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	require.True(t, found)
}

func TestObserveFindingIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFinding("bpjson", "err")
	m.ObserveFinding("bpjson", "err")

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	var counter *dto.Metric
	for _, mf := range metricFamilies {
		if mf.GetName() == "bpvalidate_findings_total" {
			counter = mf.GetMetric()[0]
		}
	}
	require.NotNil(t, counter)
	require.Equal(t, float64(2), counter.GetCounter().GetValue())
}
