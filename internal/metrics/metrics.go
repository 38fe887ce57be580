// Package metrics defines the Prometheus instruments shared by the
// relay components.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "pitwall"

// Set holds the relay's instruments. One Set is registered per process.
type Set struct {
	FramesReceived     prometheus.Counter
	MalformedFrames    prometheus.Counter
	Reconnects         prometheus.Counter
	Connected          prometheus.Gauge
	SnapshotsStored    *prometheus.CounterVec
	DeltasMerged       *prometheus.CounterVec
	Published          *prometheus.CounterVec
	MergeFailures      *prometheus.CounterVec
	DebounceFlushes    prometheus.Counter
	Transcripts        prometheus.Counter
	TranscriptFailures prometheus.Counter
}

// New creates the instrument set and registers it with reg.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_received_total",
			Help:      "Total frames received over the socket",
		}),
		MalformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "malformed_frames_total",
			Help:      "Total frames skipped because they failed to parse",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total reconnect cycles after a transport or negotiation error",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connected",
			Help:      "1 while the socket is established",
		}),
		SnapshotsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "snapshots_stored_total",
			Help:      "Total reference snapshots persisted",
		}, []string{"topic"}),
		DeltasMerged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "deltas_merged_total",
			Help:      "Total deltas merged into canonical state",
		}, []string{"topic"}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "published_total",
			Help:      "Total change events published",
		}, []string{"topic"}),
		MergeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "merge_failures_total",
			Help:      "Total deltas discarded because fetch, merge or persist failed",
		}, []string{"topic"}),
		DebounceFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "debounce_flushes_total",
			Help:      "Total coalesced buffers flushed",
		}),
		Transcripts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "radio",
			Name:      "transcripts_total",
			Help:      "Total radio captures transcribed and published",
		}),
		TranscriptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "radio",
			Name:      "transcript_failures_total",
			Help:      "Total radio captures dropped after a download or transcription failure",
		}),
	}

	reg.MustRegister(
		s.FramesReceived,
		s.MalformedFrames,
		s.Reconnects,
		s.Connected,
		s.SnapshotsStored,
		s.DeltasMerged,
		s.Published,
		s.MergeFailures,
		s.DebounceFlushes,
		s.Transcripts,
		s.TranscriptFailures,
	)

	return s
}

// NewForTest creates a Set backed by a throwaway registry.
func NewForTest() *Set {
	return New(prometheus.NewRegistry())
}
