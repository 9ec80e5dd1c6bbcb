package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/ports"
)

// Operation names counted by the tracker.
const (
	OpStaleSnapshotCheck = "stale-snapshot-check"
	OpSnapshotCapture    = "snapshot-capture"
	OpReportGeneration   = "report-generation"
	OpEmergencyFallback  = "emergency-fallback"
	OpIntegrityCheck     = "integrity-check"
)

// Level is the signal raised by a failure count.
type Level int

const (
	LevelNone Level = iota
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "none"
	}
}

// Stats is the windowed failure state of one operation.
type Stats struct {
	Operation    string
	Count        int
	FirstFailure time.Time
	LastFailure  time.Time
}

// Options configures a FailureTracker.
type Options struct {
	Window            time.Duration
	WarningThreshold  int
	CriticalThreshold int
	Registerer        prometheus.Registerer
	Alerter           ports.Alerter
	Logger            *slog.Logger
	Now               func() time.Time
}

type opState struct {
	mu    sync.Mutex
	stats Stats
}

// FailureTracker counts failures per operation inside a rolling window and
// raises warning/critical alerts when thresholds are crossed. It never
// returns errors to its callers.
type FailureTracker struct {
	window   time.Duration
	warning  int
	critical int
	alerter  ports.Alerter
	logger   *slog.Logger
	now      func() time.Time

	ops sync.Map // operation -> *opState

	failuresTotal *prometheus.CounterVec
	windowed      *prometheus.GaugeVec
	signals       *prometheus.CounterVec
}

// NewFailureTracker builds a tracker. A nil Registerer keeps metrics private.
func NewFailureTracker(opts Options) *FailureTracker {
	if opts.Window <= 0 {
		opts.Window = 30 * time.Minute
	}
	if opts.WarningThreshold <= 0 {
		opts.WarningThreshold = 5
	}
	if opts.CriticalThreshold <= 0 {
		opts.CriticalThreshold = 10
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	t := &FailureTracker{
		window:   opts.Window,
		warning:  opts.WarningThreshold,
		critical: opts.CriticalThreshold,
		alerter:  opts.Alerter,
		logger:   opts.Logger,
		now:      opts.Now,
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportgen_operation_failures_total",
			Help: "Total failures by operation",
		}, []string{"operation"}),
		windowed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reportgen_operation_failures_window",
			Help: "Failures inside the rolling window by operation",
		}, []string{"operation"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportgen_failure_signals_total",
			Help: "Warning and critical signals raised by operation",
		}, []string{"operation", "level"}),
	}

	if opts.Registerer != nil {
		for _, c := range []prometheus.Collector{t.failuresTotal, t.windowed, t.signals} {
			if err := opts.Registerer.Register(c); err != nil {
				t.warn("register failure metric", "error", err)
			}
		}
	}
	return t
}

// Record counts one failure of op and returns the level crossed by this
// failure, or LevelNone when no threshold was crossed.
func (t *FailureTracker) Record(ctx context.Context, op string, cause error) Level {
	if t == nil {
		return LevelNone
	}

	now := t.now()
	v, _ := t.ops.LoadOrStore(op, &opState{})
	st := v.(*opState)

	st.mu.Lock()
	if st.stats.Count > 0 && now.Sub(st.stats.FirstFailure) > t.window {
		st.stats = Stats{}
	}
	if st.stats.Count == 0 {
		st.stats.Operation = op
		st.stats.FirstFailure = now
	}
	st.stats.Count++
	st.stats.LastFailure = now
	snapshot := st.stats
	st.mu.Unlock()

	t.failuresTotal.WithLabelValues(op).Inc()
	t.windowed.WithLabelValues(op).Set(float64(snapshot.Count))

	level := LevelNone
	switch snapshot.Count {
	case t.critical:
		level = LevelCritical
	case t.warning:
		level = LevelWarning
	}
	if level == LevelNone {
		return level
	}

	t.signals.WithLabelValues(op, level.String()).Inc()
	t.raise(ctx, snapshot, level, cause)
	return level
}

// Stats returns the current windowed state of op.
func (t *FailureTracker) Stats(op string) Stats {
	v, ok := t.ops.Load(op)
	if !ok {
		return Stats{Operation: op}
	}
	st := v.(*opState)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.stats.Count > 0 && t.now().Sub(st.stats.FirstFailure) > t.window {
		return Stats{Operation: op}
	}
	return st.stats
}

func (t *FailureTracker) raise(ctx context.Context, stats Stats, level Level, cause error) {
	severity := domain.SeverityWarning
	if level == LevelCritical {
		severity = domain.SeverityCritical
	}

	msg := fmt.Sprintf("%s failed %d times since %s", stats.Operation, stats.Count, stats.FirstFailure.Format(time.RFC3339))
	if cause != nil {
		msg += fmt.Sprintf(" (last error: %v)", cause)
	}
	t.warn("failure threshold crossed", "operation", stats.Operation, "level", level.String(), "count", stats.Count)

	if t.alerter == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			t.warn("alerter panicked", "panic", r)
		}
	}()
	err := t.alerter.Send(ctx, domain.Alert{
		Severity:  severity,
		Operation: stats.Operation,
		Message:   msg,
		At:        stats.LastFailure,
	})
	if err != nil {
		t.warn("send failure alert", "operation", stats.Operation, "error", err)
	}
}

func (t *FailureTracker) warn(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Warn(msg, args...)
	}
}
