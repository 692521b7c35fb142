package heatpump

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-heatpump/internal/coordinator"
	"github.com/nerrad567/gray-logic-heatpump/internal/entity"
	"github.com/nerrad567/gray-logic-heatpump/internal/history"
	"github.com/nerrad567/gray-logic-heatpump/internal/infrastructure/mqtt"
)

// Bridge operation constants.
const (
	// minTopicParts is the minimum number of parts in a routed MQTT topic.
	minTopicParts = 4

	// commandTimeout bounds one entity command. Range setpoints write up to
	// three registers.
	commandTimeout = 15 * time.Second

	// readAllTimeout bounds a read_all request's refresh.
	readAllTimeout = 30 * time.Second
)

// Availability payloads.
const (
	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"
)

var topics = mqtt.Topics{Protocol: Protocol}

// Bridge translates between the heat pump entities and MQTT.
// It handles:
//   - Commands from Core and raw set topics from Home Assistant
//   - Publishing entity state and device availability after every update
//   - Discovery announcements, health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg      Config
	mqtt     MQTTClient
	entry    Entry
	health   *HealthReporter
	recorder CommandRecorder

	// Last published state payload per entity, for change detection
	stateCache   map[string][]byte
	stateCacheMu sync.Mutex

	// Last published availability; empty until the first publish
	availability   string
	availabilityMu sync.Mutex

	removers []func()

	commandsReceived atomic.Uint64
	commandsFailed   atomic.Uint64
	statesPublished  atomic.Uint64

	// Shutdown coordination
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool

	// Disconnect closes the connection gracefully.
	Disconnect(quiesce uint)
}

// Entry is the configured heat pump the bridge serves. It is satisfied by
// *integration.Entry.
type Entry interface {
	Entities() []*entity.Adapter
	Entity(id string) (*entity.Adapter, error)
	OnEntityUpdate(fn func(*entity.Adapter)) func()
	DeviceInfo() entity.DeviceInfo
	Coordinator() *coordinator.Coordinator
}

// CommandRecorder stores executed commands. It is satisfied by
// *history.CommandLog and is optional.
type CommandRecorder interface {
	Log(ctx context.Context, rec *history.CommandRecord) error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config holds the bridge settings.
type Config struct {
	// BridgeID names the bridge in health and discovery messages.
	// Default: "heatpump".
	BridgeID string

	Version string

	// Address is the heat pump host:port, reported in health messages.
	Address string

	// HealthInterval defaults to 30 seconds.
	HealthInterval time.Duration

	// Discovery enables Home Assistant discovery when non-nil.
	Discovery *HADiscovery
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	Config     Config
	MQTTClient MQTTClient
	Entry      Entry

	// Recorder is optional. If nil, commands are not persisted.
	Recorder CommandRecorder

	// Logger is optional structured logger.
	Logger Logger
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Entry == nil {
		return nil, fmt.Errorf("heat pump entry is required")
	}
	cfg := opts.Config
	if cfg.BridgeID == "" {
		cfg.BridgeID = Protocol
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:        cfg,
		mqtt:       opts.MQTTClient,
		entry:      opts.Entry,
		recorder:   opts.Recorder,
		stateCache: make(map[string][]byte),
		ctx:        ctx,
		ctxCancel:  ctxCancel,
		logger:     opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  cfg.BridgeID,
		Version:   cfg.Version,
		Address:   cfg.Address,
		Interval:  cfg.HealthInterval,
		Publisher: opts.MQTTClient,
		Device:    opts.Entry.Coordinator(),
		Counters: func() (uint64, uint64) {
			return b.commandsReceived.Load(), b.commandsFailed.Load()
		},
	})
	b.health.SetEntityCount(len(opts.Entry.Entities()))
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to command, request and set topics, hooks entity updates
// and publishes discovery, state and health.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	for _, topic := range []string{topics.AllCommands(), topics.AllRequests(), topics.AllSets()} {
		if err := b.mqtt.Subscribe(topic, 1, b.handleMQTTMessage); err != nil {
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}
		b.logInfo("subscribed", "topic", topic)
	}

	b.removers = append(b.removers,
		b.entry.OnEntityUpdate(b.publishEntityState),
		b.entry.Coordinator().AddListener(func() { b.publishAvailability(false) }),
	)

	b.Republish()

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish healthy status", err)
	}

	b.logInfo("bridge started",
		"bridge_id", b.cfg.BridgeID,
		"entities", len(b.entry.Entities()))

	return nil
}

// Stop gracefully shuts down the bridge. The device is reported offline
// so retained state is not mistaken for live data.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()

		for _, remove := range b.removers {
			remove()
		}

		b.health.Stop()
		b.wg.Wait()

		if err := b.mqtt.Publish(topics.Availability(), []byte(AvailabilityOffline), 1, true); err != nil {
			b.logError("failed to publish offline availability", err)
		}

		b.logInfo("bridge stopped")
	})
}

// Republish announces discovery and publishes every entity state and the
// device availability, ignoring the change cache. Call it after an MQTT
// reconnect.
func (b *Bridge) Republish() {
	if _, err := b.publishDiscovery(); err != nil {
		b.logError("failed to publish discovery", err)
	}

	b.ClearStateCache()
	for _, a := range b.entry.Entities() {
		b.publishEntityState(a)
	}
	b.publishAvailability(true)
}

// Health returns the current health message.
func (b *Bridge) Health() HealthMessage {
	return b.health.Current()
}

// handleMQTTMessage routes incoming MQTT messages to appropriate handlers.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	b.wg.Add(1)
	defer b.wg.Done()

	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts || parts[0] != mqtt.TopicPrefix {
		b.logError("invalid topic format", fmt.Errorf("%w: %s", ErrInvalidTopic, topic))
		return
	}

	// graylogic/heatpump/set/{key}/{attribute}
	if parts[1] == Protocol && parts[2] == "set" {
		if len(parts) != 5 {
			b.logError("invalid set topic", fmt.Errorf("%w: %s", ErrInvalidTopic, topic))
			return
		}
		b.handleSet(parts[3], parts[4], payload)
		return
	}

	switch parts[1] {
	case "command":
		b.handleCommand(parts[3], payload)
	case "request":
		b.handleRequest(parts[3], payload)
	default:
		b.logError("unknown message type", fmt.Errorf("%w: %s", ErrInvalidTopic, topic))
	}
}

// handleCommand processes a command message from Core.
func (b *Bridge) handleCommand(topicID string, payload []byte) {
	b.commandsReceived.Add(1)

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.commandsFailed.Add(1)
		b.logError("failed to parse command", fmt.Errorf("%w: %w", ErrInvalidPayload, err))
		return
	}
	if cmd.EntityID == "" {
		cmd.EntityID = topicID
	}
	if cmd.Source == "" {
		cmd.Source = history.SourceMQTT
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"entity_id", cmd.EntityID,
		"command", cmd.Command)

	//nolint:errcheck // Failure is reported in the ack
	b.execute(cmd)
}

// handleSet processes a raw Home Assistant command such as "ON" on
// graylogic/heatpump/set/coil_enable_heat/state.
func (b *Bridge) handleSet(key, attribute string, payload []byte) {
	b.commandsReceived.Add(1)

	cmd := CommandMessage{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EntityID:  key,
		Source:    history.SourceMQTT,
	}

	command, params, err := ParseSetPayload(attribute, string(payload))
	if err != nil {
		b.commandsFailed.Add(1)
		b.publishAckError(cmd, err)
		return
	}
	cmd.Command = command
	cmd.Parameters = params

	b.logDebug("received set", "entity_id", key, "attribute", attribute, "payload", string(payload))

	//nolint:errcheck // Failure is reported in the ack
	b.execute(cmd)
}

// ParseSetPayload turns a raw set topic attribute and payload into an
// entity command.
//
// Parameters:
//   - attribute: Last topic segment: state, value, mode, temperature,
//     target_temp_low or target_temp_high
//   - raw: Payload as sent by Home Assistant, e.g. "ON", "21.5", "auto"
//
// Returns:
//   - string: Command name accepted by entity.Apply
//   - map[string]any: Command parameters
//   - error: ErrInvalidPayload for an unknown attribute or switch payload
func ParseSetPayload(attribute, raw string) (string, map[string]any, error) {
	raw = strings.TrimSpace(raw)

	switch attribute {
	case AttrState:
		switch strings.ToUpper(raw) {
		case payloadOn, "TRUE", "1":
			return entity.CommandTurnOn, nil, nil
		case payloadOff, "FALSE", "0":
			return entity.CommandTurnOff, nil, nil
		}
		return "", nil, fmt.Errorf("%w: state must be ON or OFF, got %q", ErrInvalidPayload, raw)

	case AttrValue:
		return entity.CommandSetValue, map[string]any{"value": raw}, nil

	case AttrMode:
		return entity.CommandSetHVACMode, map[string]any{"hvac_mode": raw}, nil

	case AttrTemp, AttrTempLow, AttrTempHigh:
		return entity.CommandSetTemperature, map[string]any{attribute: raw}, nil
	}

	return "", nil, fmt.Errorf("%w: unknown attribute %q", ErrInvalidPayload, attribute)
}

// execute runs cmd against its entity, records it and publishes the ack.
func (b *Bridge) execute(cmd CommandMessage) error {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	a, err := b.entry.Entity(cmd.EntityID)
	if err == nil {
		cmd.EntityID = a.UniqueID()

		// Derive timeout from bridge context so commands are cancelled on shutdown
		ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
		err = entity.Apply(ctx, a, cmd.Command, cmd.Parameters)
		cancel()
	}

	b.record(cmd, err)

	if err != nil {
		b.commandsFailed.Add(1)
		b.publishAckError(cmd, err)
		return err
	}

	b.publishAck(cmd, AckAccepted)
	return nil
}

func (b *Bridge) record(cmd CommandMessage, cmdErr error) {
	if b.recorder == nil || cmd.Command == entity.CommandRefresh {
		return
	}

	rec := &history.CommandRecord{
		RequestID: cmd.ID,
		EntityID:  cmd.EntityID,
		Command:   cmd.Command,
		Params:    cmd.Parameters,
		Source:    cmd.Source,
	}
	if cmdErr != nil {
		rec.Error = cmdErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(b.ctx), 5*time.Second)
	defer cancel()
	if err := b.recorder.Log(ctx, rec); err != nil {
		b.logError("failed to record command", err)
	}
}

// publishAck publishes a command acknowledgment.
//
//nolint:unparam // AckAccepted is the only success status today
func (b *Bridge) publishAck(cmd CommandMessage, status AckStatus) {
	b.publishJSON(topics.Ack(cmd.EntityID), NewAckMessage(cmd, status), false)
}

// publishAckError publishes a failed command acknowledgment.
func (b *Bridge) publishAckError(cmd CommandMessage, cmdErr error) {
	code := errorCode(cmdErr)
	ack := NewAckError(cmd, code, cmdErr.Error(), appliedRegisters(cmdErr))
	b.publishJSON(topics.Ack(cmd.EntityID), ack, false)

	b.logError("command failed",
		fmt.Errorf("code=%s entity=%s: %w", code, cmd.EntityID, cmdErr))
}

// handleRequest processes a request message from Core.
func (b *Bridge) handleRequest(topicID string, payload []byte) {
	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		b.logError("failed to parse request", fmt.Errorf("%w: %w", ErrInvalidPayload, err))
		return
	}
	if req.RequestID == "" {
		req.RequestID = topicID
	}

	b.logInfo("received request",
		"request_id", req.RequestID,
		"action", req.Action)

	var resp ResponseMessage
	switch req.Action {
	case ActionReadState:
		resp = b.handleReadState(req)
	case ActionReadAll:
		resp = b.handleReadAll(req)
	case ActionDiscover:
		resp = b.handleDiscover(req)
	default:
		resp = failedResponse(req, ErrCodeInvalidCommand, fmt.Sprintf("unknown action: %s", req.Action))
	}

	b.publishJSON(topics.Response(req.RequestID), resp, false)
}

func (b *Bridge) handleReadState(req RequestMessage) ResponseMessage {
	a, err := b.entry.Entity(req.EntityID)
	if err != nil {
		return failedResponse(req, ErrCodeNotConfigured, err.Error())
	}
	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data:      map[string]any{"state": a.State()},
	}
}

// handleReadAll refreshes the device and returns every entity state.
func (b *Bridge) handleReadAll(req RequestMessage) ResponseMessage {
	ctx, cancel := context.WithTimeout(b.ctx, readAllTimeout)
	defer cancel()

	if err := b.entry.Coordinator().Refresh(ctx); err != nil {
		code := errorCode(err)
		if errors.Is(err, context.DeadlineExceeded) {
			code = ErrCodeTimeout
		}
		return failedResponse(req, code, err.Error())
	}

	adapters := b.entry.Entities()
	states := make([]entity.State, 0, len(adapters))
	for _, a := range adapters {
		states = append(states, a.State())
	}
	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data:      map[string]any{"entities": states, "count": len(states)},
	}
}

func (b *Bridge) handleDiscover(req RequestMessage) ResponseMessage {
	n, err := b.publishDiscovery()
	if err != nil {
		return failedResponse(req, ErrCodeBridgeError, err.Error())
	}
	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data:      map[string]any{"entities": n},
	}
}

func failedResponse(req RequestMessage, code, message string) ResponseMessage {
	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   false,
		Error:     &ResponseError{Code: code, Message: message},
	}
}

// publishDiscovery publishes the Gray Logic discovery message and, when
// enabled, one Home Assistant config per entity.
//
// Returns:
//   - int: Number of entities announced
//   - error: First publish failure
func (b *Bridge) publishDiscovery() (int, error) {
	adapters := b.entry.Entities()
	device := b.entry.DeviceInfo()

	msg := DiscoveryMessage{
		Timestamp: time.Now().UTC(),
		Bridge:    b.cfg.BridgeID,
		Device:    device,
		Entities:  make([]DiscoveredEntity, 0, len(adapters)),
	}
	for _, a := range adapters {
		msg.Entities = append(msg.Entities, newDiscoveredEntity(a))
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}
	if err := b.mqtt.Publish(topics.Discovery(), payload, 1, true); err != nil {
		return 0, err
	}

	if b.cfg.Discovery != nil {
		var firstErr error
		for topic, cfg := range b.cfg.Discovery.Configs(device, adapters) {
			payload, err := json.Marshal(cfg)
			if err == nil {
				err = b.mqtt.Publish(topic, payload, 1, true)
			}
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("publishing %s: %w", topic, err)
			}
		}
		if firstErr != nil {
			return 0, firstErr
		}
	}

	b.logDebug("discovery published", "entities", len(adapters))
	return len(adapters), nil
}

// publishEntityState publishes a's state when it differs from the last
// published payload.
func (b *Bridge) publishEntityState(a *entity.Adapter) {
	st := a.State()
	rendered, err := json.Marshal(st)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}
	if b.stateUnchanged(st.EntityID, rendered) {
		return
	}

	b.publishJSON(topics.State(st.EntityID), NewStateMessage(st), true)
	b.statesPublished.Add(1)
}

// stateUnchanged checks if the rendered state matches the cache.
// Returns true if unchanged (should skip publish).
func (b *Bridge) stateUnchanged(entityID string, rendered []byte) bool {
	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()

	if bytes.Equal(b.stateCache[entityID], rendered) {
		return true
	}
	b.stateCache[entityID] = rendered
	return false
}

// ClearStateCache forgets published states so the next update of every
// entity is published.
func (b *Bridge) ClearStateCache() {
	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()

	b.stateCache = make(map[string][]byte)
}

// publishAvailability publishes "online" or "offline" for the device on a
// transition, or always when force is set.
func (b *Bridge) publishAvailability(force bool) {
	value := AvailabilityOffline
	if b.entry.Coordinator().LastUpdateSuccess() {
		value = AvailabilityOnline
	}

	b.availabilityMu.Lock()
	if !force && value == b.availability {
		b.availabilityMu.Unlock()
		return
	}
	b.availability = value
	b.availabilityMu.Unlock()

	if err := b.mqtt.Publish(topics.Availability(), []byte(value), 1, true); err != nil {
		b.logError("failed to publish availability", err)
		return
	}
	b.logInfo("device availability", "status", value)
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logError("failed to marshal message", fmt.Errorf("%s: %w", topic, err))
		return
	}
	if err := b.mqtt.Publish(topic, payload, 1, retained); err != nil {
		b.logError("failed to publish message", fmt.Errorf("%s: %w", topic, err))
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// BridgeMetrics contains metrics data for the API metrics endpoint.
type BridgeMetrics struct {
	Connected        bool   `json:"connected"`
	DeviceAvailable  bool   `json:"device_available"`
	Status           string `json:"status"`
	CommandsReceived uint64 `json:"commands_received"`
	CommandsFailed   uint64 `json:"commands_failed"`
	StatesPublished  uint64 `json:"states_published"`
	EntitiesManaged  int    `json:"entities_managed"`
}

// GetMetrics returns current bridge metrics for the API metrics endpoint.
func (b *Bridge) GetMetrics() BridgeMetrics {
	status, _ := b.health.determineStatus()
	return BridgeMetrics{
		Connected:        b.mqtt.IsConnected(),
		DeviceAvailable:  b.entry.Coordinator().LastUpdateSuccess(),
		Status:           string(status),
		CommandsReceived: b.commandsReceived.Load(),
		CommandsFailed:   b.commandsFailed.Load(),
		StatesPublished:  b.statesPublished.Load(),
		EntitiesManaged:  len(b.entry.Entities()),
	}
}
