// Package metrics exposes content pipeline and event bus counters in the
// Prometheus format.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scipunch/editorhub/event"
)

const namespace = "editorhub"

// Recorder turns bus events into metrics.
type Recorder struct {
	registry *prometheus.Registry
	subs     []*event.Subscription

	fetchTotal    *prometheus.CounterVec
	servedTotal   *prometheus.CounterVec
	items         *prometheus.GaugeVec
	corruptTotal  *prometheus.CounterVec
	fetchDuration *prometheus.SummaryVec
	lastSuccess   *prometheus.GaugeVec

	mu      sync.Mutex
	started map[string]time.Time
	now     func() time.Time
}

// NewRecorder registers the metrics in a private registry and subscribes
// to bus.
func NewRecorder(bus *event.Aggregator) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		started:  make(map[string]time.Time),
		now:      time.Now,
	}

	r.fetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_total",
		Help:      "Remote content fetches by kind and result",
	}, []string{"kind", "result"})
	r.servedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "served_total",
		Help:      "Content responses by kind and origin",
	}, []string{"kind", "origin"})
	r.items = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "items",
		Help:      "Items in the last served feed",
	}, []string{"kind"})
	r.corruptTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_corrupt_total",
		Help:      "Stored feeds removed because they failed validation",
	}, []string{"kind"})
	r.fetchDuration = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Time spent on remote fetches",
	}, []string{"kind"})
	r.lastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful remote fetch",
	}, []string{"kind"})

	r.registry.MustRegister(
		r.fetchTotal, r.servedTotal, r.items,
		r.corruptTotal, r.fetchDuration, r.lastSuccess,
	)
	r.registry.MustRegister(busCollectors(bus)...)

	r.subs = append(r.subs,
		event.On(bus, r.onFetchStarted),
		event.On(bus, r.onContentUpdated),
		event.On(bus, r.onFetchFailed),
		event.On(bus, r.onCacheCorrupted),
	)
	return r
}

// Registry is the registry holding every recorder metric.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Close unsubscribes from the bus.
func (r *Recorder) Close() {
	for _, s := range r.subs {
		s.Unsubscribe()
	}
	r.subs = nil
}

func (r *Recorder) onFetchStarted(e event.FetchStarted) {
	r.mu.Lock()
	r.started[e.Content] = r.now()
	r.mu.Unlock()
}

func (r *Recorder) onContentUpdated(e event.ContentUpdated) {
	r.items.WithLabelValues(e.Content).Set(float64(e.Items))
	if e.FromCache {
		r.servedTotal.WithLabelValues(e.Content, "cache").Inc()
		return
	}
	r.servedTotal.WithLabelValues(e.Content, "remote").Inc()
	r.fetchTotal.WithLabelValues(e.Content, "success").Inc()
	r.lastSuccess.WithLabelValues(e.Content).Set(float64(r.now().Unix()))
	r.observe(e.Content)
}

func (r *Recorder) onFetchFailed(e event.FetchFailed) {
	r.fetchTotal.WithLabelValues(e.Content, "failure").Inc()
	r.observe(e.Content)
}

func (r *Recorder) onCacheCorrupted(e event.CacheCorrupted) {
	r.corruptTotal.WithLabelValues(e.Content).Inc()
}

func (r *Recorder) observe(kind string) {
	r.mu.Lock()
	start, ok := r.started[kind]
	delete(r.started, kind)
	r.mu.Unlock()
	if ok {
		r.fetchDuration.WithLabelValues(kind).Observe(r.now().Sub(start).Seconds())
	}
}

// busCollectors read the aggregator counters at scrape time.
func busCollectors(bus *event.Aggregator) []prometheus.Collector {
	counter := func(name, help string, value func(event.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(bus.Stats())) })
	}

	return []prometheus.Collector{
		counter("published_total", "Events published", func(s event.Stats) uint64 { return s.Published }),
		counter("delivered_total", "Handler invocations", func(s event.Stats) uint64 { return s.Delivered }),
		counter("skipped_total", "Deliveries skipped for dead owners", func(s event.Stats) uint64 { return s.Skipped }),
		counter("purged_total", "Invalid subscriptions purged by publish or sweep", func(s event.Stats) uint64 { return s.Purged }),
		counter("dropped_total", "Events dropped before delivery", func(s event.Stats) uint64 { return s.Dropped }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "subscribers",
			Help:      "Live subscriptions",
		}, func() float64 { return float64(bus.Stats().Subscribers) }),
	}
}
