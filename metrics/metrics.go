/***********************************************************************************************************************
 *
 *   MIT License
 *
 *   Copyright (c) 2022 Nicolas JUHEL
 *
 *   Permission is hereby granted, free of charge, to any person obtaining a copy
 *   of this software and associated documentation files (the "Software"), to deal
 *   in the Software without restriction, including without limitation the rights
 *   to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *   copies of the Software, and to permit persons to whom the Software is
 *   furnished to do so, subject to the following conditions:
 *
 *   The above copyright notice and this permission notice shall be included in all
 *   copies or substantial portions of the Software.
 *
 *   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *   AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *   OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *   SOFTWARE.
 *
 *
 **********************************************************************************************************************/

// Package metrics exposes the driver's Prometheus collectors (spec.md
// §4.15). Collectors is safe to use with a nil receiver -- every method is
// a no-op when the facade is built without a prometheus.Registerer --
// so callers never need to branch on whether metrics were configured.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nabbar/wcdb/config"
)

// Collectors bundles every gauge/counter this driver reports. A nil
// *Collectors is valid and every method on it is a safe no-op.
type Collectors struct {
	openConnections   *prometheus.GaugeVec
	inFlightStreams   *prometheus.GaugeVec
	poolSaturated     *prometheus.CounterVec
	retries           *prometheus.CounterVec
	speculativeStart  prometheus.Counter
	speculativeWin    prometheus.Counter
	preparedCacheSize prometheus.Gauge
	preparedEvictions prometheus.Counter
	schemaRefreshes   prometheus.Counter
}

// New registers every collector against reg and returns the bundle. A nil
// reg is accepted and yields a *Collectors whose methods are all no-ops,
// the same as a nil *Collectors itself -- both are valid "metrics
// disabled" spellings so New never needs a conditional call site.
func New(reg prometheus.Registerer) *Collectors {
	if reg == nil {
		return nil
	}

	c := &Collectors{
		openConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wcdb",
			Name:      "open_connections",
			Help:      "Open connections per host, labeled by host and distance.",
		}, []string{"host", "distance"}),
		inFlightStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wcdb",
			Name:      "in_flight_streams",
			Help:      "In-flight stream ids per host.",
		}, []string{"host"}),
		poolSaturated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wcdb",
			Name:      "pool_saturated_total",
			Help:      "Borrow calls that had to wait because every connection was at its request limit.",
		}, []string{"host"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wcdb",
			Name:      "retries_total",
			Help:      "Retries issued, labeled by the retry policy's decision.",
		}, []string{"decision"}),
		speculativeStart: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wcdb",
			Name:      "speculative_executions_started_total",
			Help:      "Speculative sibling attempts started.",
		}),
		speculativeWin: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wcdb",
			Name:      "speculative_executions_won_total",
			Help:      "Requests completed by a speculative sibling rather than the original attempt.",
		}),
		preparedCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wcdb",
			Name:      "prepared_cache_size",
			Help:      "Entries currently held in the prepared-statement cache.",
		}),
		preparedEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wcdb",
			Name:      "prepared_cache_evictions_total",
			Help:      "Entries evicted from the prepared-statement cache.",
		}),
		schemaRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wcdb",
			Name:      "control_schema_refreshes_total",
			Help:      "Topology/schema re-scans run by the control link.",
		}),
	}

	reg.MustRegister(
		c.openConnections, c.inFlightStreams, c.poolSaturated, c.retries,
		c.speculativeStart, c.speculativeWin, c.preparedCacheSize,
		c.preparedEvictions, c.schemaRefreshes,
	)
	return c
}

func distanceLabel(d config.HostDistance) string {
	switch d {
	case config.DistanceLocal:
		return "local"
	case config.DistanceRemote:
		return "remote"
	default:
		return "ignored"
	}
}

func (c *Collectors) SetOpenConnections(hostAddr string, distance config.HostDistance, n int) {
	if c == nil {
		return
	}
	c.openConnections.WithLabelValues(hostAddr, distanceLabel(distance)).Set(float64(n))
}

func (c *Collectors) SetInFlightStreams(hostAddr string, n int) {
	if c == nil {
		return
	}
	c.inFlightStreams.WithLabelValues(hostAddr).Set(float64(n))
}

func (c *Collectors) IncPoolSaturated(hostAddr string) {
	if c == nil {
		return
	}
	c.poolSaturated.WithLabelValues(hostAddr).Inc()
}

func (c *Collectors) IncRetry(decision config.RetryDecision) {
	if c == nil {
		return
	}
	var label string
	switch decision {
	case config.RetrySameHost:
		label = "same_host"
	case config.RetryNextHost:
		label = "next_host"
	default:
		label = "decline"
	}
	c.retries.WithLabelValues(label).Inc()
}

func (c *Collectors) IncSpeculativeStarted() {
	if c == nil {
		return
	}
	c.speculativeStart.Inc()
}

func (c *Collectors) IncSpeculativeWon() {
	if c == nil {
		return
	}
	c.speculativeWin.Inc()
}

func (c *Collectors) SetPreparedCacheSize(n int) {
	if c == nil {
		return
	}
	c.preparedCacheSize.Set(float64(n))
}

func (c *Collectors) IncPreparedEviction() {
	if c == nil {
		return
	}
	c.preparedEvictions.Inc()
}

func (c *Collectors) IncSchemaRefresh() {
	if c == nil {
		return
	}
	c.schemaRefreshes.Inc()
}
