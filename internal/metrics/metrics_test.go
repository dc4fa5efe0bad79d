package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.SetPublished("e", true)
	m.SetTracked("e", 2)
	m.RegistryEvent("REGISTERED")
	m.Dereference("e", "hit", time.Millisecond)
	m.SiteReload(false)
	m.HTTPRequest("GET", "/", "200", time.Millisecond)
	m.HTTPRejected("rate")
}

func TestRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetPublished("dbpedia", true)
	m.SetTracked("dbpedia", 2)
	m.RegistryEvent("REGISTERED")
	m.RegistryEvent("REGISTERED")
	m.Dereference("dbpedia", "hit", 5*time.Millisecond)
	m.SiteReload(true)
	m.HTTPRejected("cidr")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishedEngines.WithLabelValues("dbpedia")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.trackedServices.WithLabelValues("dbpedia")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.registryEvents.WithLabelValues("REGISTERED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dereferences.WithLabelValues("dbpedia", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.siteReloads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRejected.WithLabelValues("cidr")))

	m.SetPublished("dbpedia", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.publishedEngines.WithLabelValues("dbpedia")))
}
