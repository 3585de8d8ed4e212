// Package metrics instruments the atom/commit/flush pipeline with
// Prometheus counters, gauges, and histograms (spec.md §6 Domain stack:
// metrics). It follows the teacher's common/oc_metrics.go shape -- a
// small struct of pre-registered measures behind package-level functions
// -- but targets github.com/prometheus/client_golang directly rather than
// OpenCensus/OpenTelemetry: the teacher's go.mod carries all three, and
// Prometheus is the simplest fit for a local-process daemon with no
// exporter pipeline of its own to stand up.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Handle is the set of instruments this package registers. A nil *Handle
// is safe to call every method on -- every method nil-checks h first --
// so callers that don't want metrics (tests, `reiser4fs fsck`) can pass
// one around without a no-op stand-in type.
type Handle struct {
	atomsCreated   prometheus.Counter
	atomsFused     prometheus.Counter
	atomsCommitted prometheus.Counter

	capturedJnodes *prometheus.GaugeVec

	commitLatency prometheus.Histogram
	flushQueue    prometheus.Gauge

	blocksFree prometheus.Gauge
	oidsIssued prometheus.Counter
}

// NewHandle builds a Handle and registers its collectors with reg. Passing
// prometheus.NewRegistry() (rather than the global DefaultRegisterer)
// keeps repeated test-harness construction from panicking on duplicate
// registration.
func NewHandle(reg prometheus.Registerer) *Handle {
	h := &Handle{
		atomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reiser4fs",
			Subsystem: "txn",
			Name:      "atoms_created_total",
			Help:      "Write-fusing transaction handles opened by vfs.Store.BeginOp.",
		}),
		atomsFused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reiser4fs",
			Subsystem: "txn",
			Name:      "atoms_fused_total",
			Help:      "Atom-to-atom fusions performed during capture (no caller increments it).",
		}),
		atomsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reiser4fs",
			Subsystem: "txn",
			Name:      "atoms_committed_total",
			Help:      "Atoms committed through vfs.Store.commitNow; commits forced by the daemon or FlushFile, or started by Handle.Close, are not counted.",
		}),
		capturedJnodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "reiser4fs",
			Subsystem: "txn",
			Name:      "captured_jnodes",
			Help:      "Jnodes currently captured, by state (clean, dirty, overwrite, relocate); no caller sets it.",
		}, []string{"state"}),
		commitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reiser4fs",
			Subsystem: "wander",
			Name:      "commit_latency_seconds",
			Help:      "Wall time of the txn.Manager.Force call made by vfs.Store.commitNow.",
			Buckets:   prometheus.DefBuckets,
		}),
		flushQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reiser4fs",
			Subsystem: "flush",
			Name:      "queue_depth",
			Help:      "Nodes queued by the last Flush call's scan/squalloc pass, awaiting WriteLog; no caller sets it.",
		}),
		blocksFree: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reiser4fs",
			Subsystem: "allocator",
			Name:      "blocks_free",
			Help:      "Unallocated blocks remaining in the bitmap.",
		}),
		oidsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reiser4fs",
			Subsystem: "vfs",
			Name:      "oids_issued_total",
			Help:      "Object ids handed out by Store.allocOID.",
		}),
	}

	reg.MustRegister(
		h.atomsCreated, h.atomsFused, h.atomsCommitted,
		h.capturedJnodes, h.commitLatency, h.flushQueue,
		h.blocksFree, h.oidsIssued,
	)
	return h
}

func (h *Handle) AtomCreated() {
	if h == nil {
		return
	}
	h.atomsCreated.Inc()
}

func (h *Handle) AtomFused() {
	if h == nil {
		return
	}
	h.atomsFused.Inc()
}

func (h *Handle) AtomCommitted() {
	if h == nil {
		return
	}
	h.atomsCommitted.Inc()
}

func (h *Handle) SetCapturedJnodes(state string, n float64) {
	if h == nil {
		return
	}
	h.capturedJnodes.WithLabelValues(state).Set(n)
}

func (h *Handle) ObserveCommitLatencySeconds(seconds float64) {
	if h == nil {
		return
	}
	h.commitLatency.Observe(seconds)
}

func (h *Handle) SetFlushQueueDepth(n int) {
	if h == nil {
		return
	}
	h.flushQueue.Set(float64(n))
}

func (h *Handle) SetBlocksFree(n uint64) {
	if h == nil {
		return
	}
	h.blocksFree.Set(float64(n))
}

func (h *Handle) OIDIssued() {
	if h == nil {
		return
	}
	h.oidsIssued.Inc()
}
