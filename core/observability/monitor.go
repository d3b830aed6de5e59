package observability

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Latency bucket upper bounds; the last bucket is open-ended.
var bucketBounds = [...]time.Duration{
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	5 * time.Second,
	10 * time.Second,
}

const numBuckets = len(bucketBounds) + 1

// Monitor collects per-route request metrics and connection counters. All
// methods are safe for concurrent use; nothing runs in the background.
type Monitor struct {
	started time.Time
	routes  *xsync.MapOf[string, *RouteMetrics]

	conns struct {
		accepted       atomic.Uint64
		rejected       atomic.Uint64
		closed         atomic.Uint64
		protocolErrors atomic.Uint64
		requests       atomic.Uint64
	}
	status [6]atomic.Uint64 // by status class, index 1..5
}

// RouteMetrics stores per-route metrics
type RouteMetrics struct {
	Name          string
	Count         atomic.Uint64
	Errors        atomic.Uint64
	TotalDuration atomic.Uint64
	MinDuration   atomic.Uint64
	MaxDuration   atomic.Uint64

	latencyBuckets [numBuckets]atomic.Uint64
}

// Bottleneck represents a performance issue
type Bottleneck struct {
	Type     string  `json:"type"`
	Location string  `json:"location"`
	Severity int     `json:"severity"`
	Impact   float64 `json:"impact"`
	Details  string  `json:"details"`
}

// NewMonitor creates a monitor
func NewMonitor() *Monitor {
	return &Monitor{
		started: time.Now(),
		routes:  xsync.NewMapOf[string, *RouteMetrics](),
	}
}

// RecordRequest records one handled request. route names the matched
// pattern ("GET /users/:id"); a status >= 500 counts as an error.
func (m *Monitor) RecordRequest(route string, status int, duration time.Duration) {
	metrics, _ := m.routes.LoadOrCompute(route, func() *RouteMetrics {
		return &RouteMetrics{Name: route}
	})

	metrics.Count.Add(1)
	if status >= 500 {
		metrics.Errors.Add(1)
	}

	d := uint64(duration.Nanoseconds())
	metrics.TotalDuration.Add(d)
	updateMinMax(metrics, d)
	metrics.latencyBuckets[bucketFor(duration)].Add(1)

	m.RecordStatus(status)
}

// RecordStatus counts a response by status class. Responses the router or
// the connection synthesize are counted here without route metrics.
func (m *Monitor) RecordStatus(status int) {
	m.conns.requests.Add(1)
	if class := status / 100; class >= 1 && class <= 5 {
		m.status[class].Add(1)
	}
}

// ConnAccepted counts an admitted connection.
func (m *Monitor) ConnAccepted() { m.conns.accepted.Add(1) }

// ConnRejected counts a connection refused by admission control.
func (m *Monitor) ConnRejected() { m.conns.rejected.Add(1) }

// ConnClosed counts a finished connection.
func (m *Monitor) ConnClosed() { m.conns.closed.Add(1) }

// ProtocolError counts a request that failed to parse.
func (m *Monitor) ProtocolError() { m.conns.protocolErrors.Add(1) }

func updateMinMax(m *RouteMetrics, d uint64) {
	for {
		min := m.MinDuration.Load()
		if min != 0 && d >= min {
			break
		}
		if m.MinDuration.CompareAndSwap(min, d) {
			break
		}
	}
	for {
		max := m.MaxDuration.Load()
		if d <= max {
			break
		}
		if m.MaxDuration.CompareAndSwap(max, d) {
			break
		}
	}
}

func bucketFor(d time.Duration) int {
	for i, bound := range bucketBounds {
		if d < bound {
			return i
		}
	}
	return numBuckets - 1
}

// RouteSnapshot is a point-in-time copy of one route's metrics.
type RouteSnapshot struct {
	Route       string        `json:"route"`
	Count       uint64        `json:"count"`
	Errors      uint64        `json:"errors"`
	AvgDuration time.Duration `json:"avg_duration"`
	MinDuration time.Duration `json:"min_duration"`
	MaxDuration time.Duration `json:"max_duration"`
	Buckets     []uint64      `json:"buckets"`
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Uptime         time.Duration     `json:"uptime"`
	Accepted       uint64            `json:"accepted"`
	Rejected       uint64            `json:"rejected"`
	Closed         uint64            `json:"closed"`
	ProtocolErrors uint64            `json:"protocol_errors"`
	Requests       uint64            `json:"requests"`
	StatusClasses  map[string]uint64 `json:"status_classes"`
	Routes         []RouteSnapshot   `json:"routes"`
}

// Snapshot copies the current counters. Routes are sorted by name.
func (m *Monitor) Snapshot() Snapshot {
	s := Snapshot{
		Uptime:         time.Since(m.started),
		Accepted:       m.conns.accepted.Load(),
		Rejected:       m.conns.rejected.Load(),
		Closed:         m.conns.closed.Load(),
		ProtocolErrors: m.conns.protocolErrors.Load(),
		Requests:       m.conns.requests.Load(),
		StatusClasses:  make(map[string]uint64, 5),
	}
	for class := 1; class <= 5; class++ {
		s.StatusClasses[fmt.Sprintf("%dxx", class)] = m.status[class].Load()
	}

	m.routes.Range(func(_ string, r *RouteMetrics) bool {
		rs := RouteSnapshot{
			Route:       r.Name,
			Count:       r.Count.Load(),
			Errors:      r.Errors.Load(),
			MinDuration: time.Duration(r.MinDuration.Load()),
			MaxDuration: time.Duration(r.MaxDuration.Load()),
			Buckets:     make([]uint64, numBuckets),
		}
		if rs.Count > 0 {
			rs.AvgDuration = time.Duration(r.TotalDuration.Load() / rs.Count)
		}
		for i := range r.latencyBuckets {
			rs.Buckets[i] = r.latencyBuckets[i].Load()
		}
		s.Routes = append(s.Routes, rs)
		return true
	})
	sort.Slice(s.Routes, func(i, j int) bool { return s.Routes[i].Route < s.Routes[j].Route })
	return s
}

// Bottlenecks inspects the current metrics for slow or failing routes.
func (m *Monitor) Bottlenecks() []Bottleneck {
	bottlenecks := make([]Bottleneck, 0)

	for _, r := range m.Snapshot().Routes {
		if r.Count == 0 {
			continue
		}

		// High latency
		if r.AvgDuration > 100*time.Millisecond {
			bottlenecks = append(bottlenecks, Bottleneck{
				Type:     "latency",
				Location: r.Route,
				Severity: 8,
				Impact:   100.0,
				Details:  fmt.Sprintf("High latency (%v avg)", r.AvgDuration),
			})
		}

		// High error rate
		rate := float64(r.Errors) / float64(r.Count)
		if r.Errors > 0 && rate > 0.05 {
			bottlenecks = append(bottlenecks, Bottleneck{
				Type:     "errors",
				Location: r.Route,
				Severity: 10,
				Impact:   rate * 100,
				Details:  fmt.Sprintf("%.1f%% error rate", rate*100),
			})
		}
	}

	return bottlenecks
}
