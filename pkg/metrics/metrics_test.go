package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value returns the value of the counter or gauge in family name whose labels
// match all of labels.
func value(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if want, ok := labels[l.GetName()]; ok && want != l.GetValue() {
					continue metrics
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return 0
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	// second call must not panic on duplicate registration
	Register(reg)

	ObserveRequest("/api/v1/object/list", nil, time.Millisecond)
	ObserveRequest("/api/v1/object/list", errors.New("boom"), time.Millisecond)
	ObserveLogin("account", errors.New("boom"))
	ObserveLogin("contact", nil)
	ObserveRefreshTask("meters", nil)
	ObserveCoalesced("meters", true)
	ObserveSubmission(nil)
	SetEntities("sensor", 3)

	assert.Equal(t, 1.0, value(t, reg, "esplus_upstream_requests_total", map[string]string{"endpoint": "/api/v1/object/list", "result": "success"}))
	assert.Equal(t, 1.0, value(t, reg, "esplus_upstream_requests_total", map[string]string{"endpoint": "/api/v1/object/list", "result": "error"}))
	assert.Equal(t, 1.0, value(t, reg, "esplus_logins_total", map[string]string{"login_type": "account", "result": "error"}))
	assert.Equal(t, 1.0, value(t, reg, "esplus_coalesced_calls_total", map[string]string{"kind": "meters", "shared": "true"}))
	assert.Equal(t, 3.0, value(t, reg, "esplus_entities", map[string]string{"platform": "sensor"}))
}
