package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultInterval is the poll interval used when Options.Interval is zero.
const DefaultInterval = 30 * time.Second

// Device is the heat pump facade the coordinator polls.
type Device interface {
	Fetch(ctx context.Context, names []string) (map[string]any, error)
	WriteRegister(ctx context.Context, name string, value any) error
}

// Normalizer is implemented by devices that can convert a written value to
// the type and precision a fetch would return for it. Optimistic writes use
// it so the next poll does not look like a change.
type Normalizer interface {
	Normalize(register string, value any) any
}

// Logger defines the logging interface for the coordinator.
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

// Observer receives timing and outcome of device operations.
type Observer interface {
	ObserveFetch(elapsed time.Duration, registers int, err error)
	ObserveWrite(register string, err error)
}

// Observers fans each observation out to every member.
type Observers []Observer

// ObserveFetch implements Observer.
func (o Observers) ObserveFetch(elapsed time.Duration, registers int, err error) {
	for _, obs := range o {
		obs.ObserveFetch(elapsed, registers, err)
	}
}

// ObserveWrite implements Observer.
func (o Observers) ObserveWrite(register string, err error) {
	for _, obs := range o {
		obs.ObserveWrite(register, err)
	}
}

// WriteMode selects what happens to the cache after a successful write.
type WriteMode string

const (
	// WritePoll leaves the cache alone; the value shows up on the next poll.
	WritePoll WriteMode = "poll"
	// WriteOptimistic publishes the written value immediately.
	WriteOptimistic WriteMode = "optimistic"
	// WriteRefresh triggers a fetch right after the write.
	WriteRefresh WriteMode = "refresh"
)

// ParseWriteMode converts a configuration string into a WriteMode.
// An empty string yields WritePoll.
func ParseWriteMode(s string) (WriteMode, error) {
	switch WriteMode(s) {
	case "", WritePoll:
		return WritePoll, nil
	case WriteOptimistic:
		return WriteOptimistic, nil
	case WriteRefresh:
		return WriteRefresh, nil
	default:
		return "", fmt.Errorf("coordinator: unknown write mode %q", s)
	}
}

// Options configures a Coordinator.
type Options struct {
	Interval  time.Duration
	WriteMode WriteMode
	Logger    Logger
	Observer  Observer
}

// Snapshot is an immutable view of the register values from one fetch.
type Snapshot map[string]any

// Get returns the value for name and whether it was present.
func (s Snapshot) Get(name string) (any, bool) {
	v, ok := s[name]
	return v, ok
}

// Stats counts coordinator activity since creation.
type Stats struct {
	Fetches       uint64        `json:"fetches"`
	FetchFailures uint64        `json:"fetch_failures"`
	Writes        uint64        `json:"writes"`
	WriteFailures uint64        `json:"write_failures"`
	LastDuration  time.Duration `json:"last_duration_ns"`
}

type listener struct {
	id uint64
	fn func()
}

// Coordinator polls the device for the registers of interest.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Listeners run on the goroutine that completed the fetch. They must not
//     call Refresh; use RequestRefresh instead.
type Coordinator struct {
	device Device
	opts   Options
	logger Logger

	interestMu sync.RWMutex
	interest   map[string]struct{}

	stateMu     sync.RWMutex
	data        Snapshot
	lastSuccess bool
	lastErr     error
	lastUpdate  time.Time
	stats       Stats

	listenersMu sync.RWMutex
	listeners   []listener
	nextID      uint64

	// ioMu serialises device access so a write never interleaves a fetch.
	ioMu  sync.Mutex
	group singleflight.Group

	runMu   sync.Mutex
	running bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Coordinator for device. It does not poll until Start.
func New(device Device, opts Options) *Coordinator {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.WriteMode == "" {
		opts.WriteMode = WritePoll
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Coordinator{
		device:   device,
		opts:     opts,
		logger:   logger,
		interest: make(map[string]struct{}),
		data:     Snapshot{},
	}
}

// DeclareInterest adds register names to the interest set.
// Names already present are ignored.
func (c *Coordinator) DeclareInterest(names ...string) {
	c.interestMu.Lock()
	defer c.interestMu.Unlock()

	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := c.interest[name]; ok {
			continue
		}
		c.interest[name] = struct{}{}
		c.logger.Debug("register interest declared", "register", name)
	}
}

// Interest returns the interest set in sorted order.
func (c *Coordinator) Interest() []string {
	c.interestMu.RLock()
	defer c.interestMu.RUnlock()

	out := make([]string, 0, len(c.interest))
	for name := range c.interest {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Data returns the current snapshot. Callers must not modify it.
func (c *Coordinator) Data() Snapshot {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.data
}

// LastUpdateSuccess reports whether the most recent fetch succeeded.
func (c *Coordinator) LastUpdateSuccess() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.lastSuccess
}

// LastError returns the error of the most recent fetch, or nil.
func (c *Coordinator) LastError() error {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.lastErr
}

// LastUpdate returns when the snapshot was last replaced.
func (c *Coordinator) LastUpdate() time.Time {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.lastUpdate
}

// Interval returns the poll interval.
func (c *Coordinator) Interval() time.Duration { return c.opts.Interval }

// WriteMode returns the configured post-write cache policy.
func (c *Coordinator) WriteMode() WriteMode { return c.opts.WriteMode }

// Stats returns a copy of the activity counters.
func (c *Coordinator) Stats() Stats {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.stats
}

// AddListener registers fn to run after every snapshot change and on
// availability transitions.
//
// Returns:
//   - func(): Removes the listener; safe to call more than once
func (c *Coordinator) AddListener(fn func()) func() {
	c.listenersMu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	c.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.listenersMu.Lock()
			defer c.listenersMu.Unlock()
			for i, l := range c.listeners {
				if l.id == id {
					c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (c *Coordinator) notify() {
	c.listenersMu.RLock()
	fns := make([]func(), len(c.listeners))
	for i, l := range c.listeners {
		fns[i] = l.fn
	}
	c.listenersMu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

// Refresh fetches the interest set, or joins the fetch already in flight.
//
// A fetch that has started runs to completion even if ctx is cancelled;
// ctx only bounds how long this caller waits for it.
//
// Returns:
//   - error: *UpdateFailedError if the device could not be read, or
//     ErrStopped once Stop has been called
func (c *Coordinator) Refresh(ctx context.Context) error {
	if c.isStopped() {
		return ErrStopped
	}
	return c.refresh(ctx)
}

func (c *Coordinator) refresh(ctx context.Context) error {
	ch := c.group.DoChan("refresh", func() (any, error) {
		return nil, c.fetch(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestRefresh schedules a fetch without waiting for it. It does nothing
// after Stop.
func (c *Coordinator) RequestRefresh() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.stopped {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.refresh(context.Background()); err != nil {
			c.logger.Debug("requested refresh failed", "error", err)
		}
	}()
}

func (c *Coordinator) fetch(ctx context.Context) error {
	changed, err := c.fetchLocked(ctx)
	if changed {
		c.notify()
	}
	return err
}

func (c *Coordinator) isStopped() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.stopped
}

// fetchLocked reads the device and swaps the snapshot. It reports whether
// listeners need to hear about the outcome.
func (c *Coordinator) fetchLocked(ctx context.Context) (bool, error) {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	names := c.Interest()
	start := time.Now()
	values, err := c.device.Fetch(ctx, names)
	elapsed := time.Since(start)

	if c.opts.Observer != nil {
		c.opts.Observer.ObserveFetch(elapsed, len(names), err)
	}

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.stats.LastDuration = elapsed

	if err != nil {
		uerr := &UpdateFailedError{Op: "fetch", Err: err}
		wasAvailable := c.lastSuccess
		c.lastSuccess = false
		c.lastErr = uerr
		c.stats.FetchFailures++
		c.logger.Warn("heat pump fetch failed", "registers", len(names), "error", err)
		return wasAvailable, uerr
	}

	snap := make(Snapshot, len(values))
	for k, v := range values {
		snap[k] = v
	}
	c.data = snap
	c.lastSuccess = true
	c.lastErr = nil
	c.lastUpdate = time.Now()
	c.stats.Fetches++
	c.logger.Debug("heat pump fetch complete", "registers", len(names), "values", len(snap), "took", elapsed)
	return true, nil
}

// Write sends one register value to the device.
//
// What happens to the cache afterwards depends on the write mode. In poll
// mode nothing changes until the next tick.
//
// Returns:
//   - error: *UpdateFailedError wrapping the device error, or ErrStopped
func (c *Coordinator) Write(ctx context.Context, register string, value any) error {
	if c.isStopped() {
		return &UpdateFailedError{Op: "write", Register: register, Err: ErrStopped}
	}

	c.ioMu.Lock()
	err := c.device.WriteRegister(ctx, register, value)
	c.ioMu.Unlock()

	if c.opts.Observer != nil {
		c.opts.Observer.ObserveWrite(register, err)
	}

	if err != nil {
		c.stateMu.Lock()
		c.stats.WriteFailures++
		c.stateMu.Unlock()
		c.logger.Warn("heat pump write failed", "register", register, "error", err)
		return &UpdateFailedError{Op: "write", Register: register, Err: err}
	}

	c.stateMu.Lock()
	c.stats.Writes++
	c.stateMu.Unlock()
	c.logger.Info("heat pump register written", "register", register, "value", value)

	switch c.opts.WriteMode {
	case WriteOptimistic:
		c.stateMu.Lock()
		next := make(Snapshot, len(c.data)+1)
		for k, v := range c.data {
			next[k] = v
		}
		if n, ok := c.device.(Normalizer); ok {
			value = n.Normalize(register, value)
		}
		next[register] = value
		c.data = next
		c.stateMu.Unlock()
		c.notify()
	case WriteRefresh:
		// A fetch still notifying listeners read the device before this
		// write; start a new one instead of joining it.
		c.group.Forget("refresh")
		if rerr := c.refresh(ctx); rerr != nil {
			c.logger.Debug("refresh after write failed", "register", register, "error", rerr)
		}
	}
	return nil
}

// Start begins polling every interval until ctx is cancelled or Stop is called.
// It does not fetch immediately; callers perform the first Refresh themselves.
func (c *Coordinator) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running || c.stopped {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true

	c.wg.Add(1)
	go c.loop(ctx)
	c.logger.Info("coordinator started", "interval", c.opts.Interval.String(), "write_mode", string(c.opts.WriteMode))
}

func (c *Coordinator) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Failures are logged inside fetch and retried next tick.
			_ = c.refresh(ctx) //nolint:errcheck
		}
	}
}

// Stop ends polling and waits for background refreshes to return. A stopped
// coordinator no longer touches the device and cannot be restarted.
func (c *Coordinator) Stop() {
	c.runMu.Lock()
	c.stopped = true
	if c.running {
		c.cancel()
		c.running = false
	}
	c.runMu.Unlock()

	c.wg.Wait()
}
