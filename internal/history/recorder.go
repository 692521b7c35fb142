package history

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-heatpump/internal/coordinator"
)

// DefaultPruneInterval is how often the recorder removes expired samples.
const DefaultPruneInterval = 24 * time.Hour

// snapshotBuffer is how many pending snapshots the recorder queues before
// dropping new ones.
const snapshotBuffer = 16

// Source is the part of the coordinator the recorder observes.
type Source interface {
	Data() coordinator.Snapshot
	LastUpdateSuccess() bool
	AddListener(fn func()) func()
}

// Logger defines the logging interface for the recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// Retention is how long samples are kept. Zero disables pruning.
	Retention time.Duration

	// PruneInterval defaults to DefaultPruneInterval.
	PruneInterval time.Duration

	Logger Logger

	// now is replaced in tests.
	now func() time.Time
}

// Recorder writes register values to the repository whenever a successful
// fetch changes them.
//
// Thread Safety:
//   - Start and Stop may be called from any goroutine.
//   - Snapshots are diffed and written on the recorder's own goroutine.
type Recorder struct {
	repo   Repository
	src    Source
	opts   RecorderOptions
	logger Logger

	snaps chan coordinator.Snapshot
	prev  coordinator.Snapshot

	mu      sync.Mutex
	running bool
	remove  func()
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRecorder creates a recorder. It does nothing until Start.
func NewRecorder(repo Repository, src Source, opts RecorderOptions) *Recorder {
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = DefaultPruneInterval
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:   repo,
		src:    src,
		opts:   opts,
		logger: logger,
		snaps:  make(chan coordinator.Snapshot, snapshotBuffer),
	}
}

// Start subscribes to the coordinator and runs the write and prune loops.
// The current snapshot, if any, is recorded first.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	if r.src.LastUpdateSuccess() {
		r.enqueue(r.src.Data())
	}
	r.remove = r.src.AddListener(func() {
		if r.src.LastUpdateSuccess() {
			r.enqueue(r.src.Data())
		}
	})

	r.wg.Add(1)
	go r.writeLoop(ctx)

	if r.opts.Retention > 0 {
		r.wg.Add(1)
		go r.pruneLoop(ctx)
	}
	r.logger.Info("history recorder started", "retention", r.opts.Retention.String())
}

// Stop unsubscribes, flushes queued snapshots and waits for the loops.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.remove()
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("history recorder stopped")
}

func (r *Recorder) enqueue(s coordinator.Snapshot) {
	select {
	case r.snaps <- s:
	default:
		r.logger.Warn("history queue full, dropping snapshot")
	}
}

func (r *Recorder) writeLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case s := <-r.snaps:
			r.record(ctx, s)
		case <-ctx.Done():
			// Drain what was already queued.
			for {
				select {
				case s := <-r.snaps:
					r.record(context.WithoutCancel(ctx), s)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) record(ctx context.Context, s coordinator.Snapshot) {
	changed := Diff(r.prev, s)
	r.prev = s
	if len(changed) == 0 {
		return
	}

	now := r.opts.now()
	samples := make([]Sample, 0, len(changed))
	for _, name := range changed {
		samples = append(samples, Sample{Register: name, Value: s[name], RecordedAt: now})
	}
	if err := r.repo.Record(ctx, samples); err != nil {
		r.logger.Error("recording register history failed", "samples", len(samples), "error", err)
		return
	}
	r.logger.Debug("register history recorded", "samples", len(samples))
}

func (r *Recorder) pruneLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opts.PruneInterval)
	defer ticker.Stop()

	r.prune(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.prune(ctx)
		}
	}
}

func (r *Recorder) prune(ctx context.Context) {
	cutoff := r.opts.now().Add(-r.opts.Retention)
	n, err := r.repo.Prune(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("pruning register history failed", "error", err)
		}
		return
	}
	if n > 0 {
		r.logger.Info("register history pruned", "rows", n, "before", cutoff)
	}
}

// Diff returns, sorted, the registers in next whose value is new or differs
// from prev. Registers missing from next are not reported.
func Diff(prev, next coordinator.Snapshot) []string {
	var out []string
	for name, v := range next {
		old, ok := prev[name]
		if !ok || !sameValue(old, v) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// sameValue compares numbers by value so an int and a float64 holding the
// same reading are equal.
func sameValue(a, b any) bool {
	fa, aNum := number(a)
	fb, bNum := number(b)
	if aNum && bNum {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
