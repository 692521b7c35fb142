package heatpump

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-heatpump/internal/coordinator"
)

// HealthReporter manages periodic health status reporting.
// It publishes health messages to MQTT at regular intervals.
type HealthReporter struct {
	bridgeID  string
	version   string
	address   string
	topic     string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	device    DeviceMonitor
	counters  func() (received, failed uint64)

	entityCount   int
	entityCountMu sync.RWMutex

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// DeviceMonitor reports the state of the Modbus link. It is satisfied by
// *coordinator.Coordinator.
type DeviceMonitor interface {
	LastUpdateSuccess() bool
	LastUpdate() time.Time
	Stats() coordinator.Stats
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Address is the heat pump host:port reported in the connection block.
	Address string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher
	Device    DeviceMonitor

	// Counters returns the bridge's command counters. Optional.
	Counters func() (received, failed uint64)
}

// NewHealthReporter creates a new health reporter.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to start (call Start to begin reporting)
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval == 0 {
		interval = 30 * time.Second
	}

	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		address:   cfg.Address,
		topic:     topics.Health(),
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		device:    cfg.Device,
		counters:  cfg.Counters,
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting. Call Stop to shut down.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop gracefully stops health reporting.
// Publishes a final "stopping" status before returning.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// SetEntityCount updates the managed entity count.
func (h *HealthReporter) SetEntityCount(count int) {
	h.entityCountMu.Lock()
	h.entityCount = count
	h.entityCountMu.Unlock()
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// Current builds the health message without publishing it.
func (h *HealthReporter) Current() HealthMessage {
	status, reason := h.determineStatus()
	return h.build(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.device == nil || !h.device.LastUpdateSuccess() {
		return HealthDegraded, "heat pump unreachable"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) build(status HealthStatus, reason string) HealthMessage {
	h.entityCountMu.RLock()
	entities := h.entityCount
	h.entityCountMu.RUnlock()

	msg := HealthMessage{
		Bridge:          h.bridgeID,
		Timestamp:       time.Now().UTC(),
		Status:          status,
		Version:         h.version,
		UptimeSeconds:   int64(time.Since(h.startTime).Seconds()),
		EntitiesManaged: entities,
		Reason:          reason,
		Statistics:      &BridgeStatistics{},
	}

	if h.device != nil {
		conn := &ConnectionStatus{Status: "disconnected", Address: h.address}
		if h.device.LastUpdateSuccess() {
			conn.Status = "connected"
		}
		if last := h.device.LastUpdate(); !last.IsZero() {
			last = last.UTC()
			conn.LastUpdate = &last
		}
		msg.Connection = conn

		stats := h.device.Stats()
		msg.Statistics.Fetches = stats.Fetches
		msg.Statistics.FetchFailures = stats.FetchFailures
		msg.Statistics.Writes = stats.Writes
		msg.Statistics.WriteFailures = stats.WriteFailures
	}
	if h.counters != nil {
		msg.Statistics.CommandsReceived, msg.Statistics.CommandsFailed = h.counters()
	}
	return msg
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	payload, err := json.Marshal(h.build(status, reason))
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
