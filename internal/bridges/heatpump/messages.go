package heatpump

import (
	"time"

	"github.com/nerrad567/gray-logic-heatpump/internal/entity"
)

// Protocol is the protocol segment of every bridge topic.
const Protocol = "heatpump"

// MQTT message types exchanged between Gray Logic Core and the heat pump
// bridge.

// CommandMessage is sent from Core to the bridge to run an entity command.
// Topic: graylogic/command/heatpump/{entity_id}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// EntityID is the entity unique id or bare key. When empty the last
	// topic segment is used.
	EntityID string `json:"entity_id"`

	// Command is one of turn_on, turn_off, set_value, set_temperature,
	// set_hvac_mode or refresh.
	Command string `json:"command"`

	// Parameters holds command values, for example {"value": 21.5} or
	// {"target_temp_low": 18, "target_temp_high": 22}.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated.
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the device accepted every write.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"

	// AckTimeout indicates the device did not answer in time.
	AckTimeout AckStatus = "timeout"
)

// AckMessage is sent from the bridge to acknowledge a command.
// Topic: graylogic/ack/heatpump/{entity_id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	EntityID  string    `json:"entity_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// Applied lists registers written before a multi-register command
	// stopped. They are not rolled back.
	Applied []string `json:"applied,omitempty"`
}

// Error codes for command and request failures.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodePartialWrite      = "PARTIAL_WRITE"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// StateMessage carries the rendered state of one entity.
// Topic: graylogic/state/heatpump/{entity_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	entity.State

	Timestamp time.Time `json:"timestamp"`
	Protocol  string    `json:"protocol"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/heatpump
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge          string            `json:"bridge"`
	Timestamp       time.Time         `json:"timestamp"`
	Status          HealthStatus      `json:"status"`
	Version         string            `json:"version"`
	UptimeSeconds   int64             `json:"uptime_seconds"`
	Connection      *ConnectionStatus `json:"connection,omitempty"`
	Statistics      *BridgeStatistics `json:"statistics,omitempty"`
	EntitiesManaged int               `json:"entities_managed"`
	Reason          string            `json:"reason,omitempty"`
}

// ConnectionStatus describes the Modbus connection to the heat pump.
type ConnectionStatus struct {
	// Status is "connected" after a successful fetch, else "disconnected".
	Status     string     `json:"status"`
	Address    string     `json:"address"`
	LastUpdate *time.Time `json:"last_update,omitempty"`
}

// BridgeStatistics contains operational counters.
type BridgeStatistics struct {
	Fetches          uint64 `json:"fetches"`
	FetchFailures    uint64 `json:"fetch_failures"`
	Writes           uint64 `json:"writes"`
	WriteFailures    uint64 `json:"write_failures"`
	CommandsReceived uint64 `json:"commands_received"`
	CommandsFailed   uint64 `json:"commands_failed"`
}

// Request actions.
const (
	ActionReadState = "read_state"
	ActionReadAll   = "read_all"
	ActionDiscover  = "discover"
)

// RequestMessage is sent from Core for request/response operations.
// Topic: graylogic/request/heatpump/{request_id}
type RequestMessage struct {
	RequestID  string         `json:"request_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Action     string         `json:"action"`
	EntityID   string         `json:"entity_id,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ResponseMessage answers a RequestMessage.
// Topic: graylogic/response/heatpump/{request_id}
type ResponseMessage struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

// ResponseError contains error details for failed requests.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DiscoveryMessage announces the entities the bridge exposes.
// Topic: graylogic/discovery/heatpump
type DiscoveryMessage struct {
	Timestamp time.Time          `json:"timestamp"`
	Bridge    string             `json:"bridge"`
	Device    entity.DeviceInfo  `json:"device"`
	Entities  []DiscoveredEntity `json:"entities"`
}

// DiscoveredEntity describes one entity in a DiscoveryMessage.
type DiscoveredEntity struct {
	EntityID         string          `json:"entity_id"`
	Key              string          `json:"key"`
	Platform         entity.Platform `json:"platform"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit,omitempty"`
	DeviceClass      string          `json:"device_class,omitempty"`
	Category         entity.Category `json:"category,omitempty"`
	Writable         bool            `json:"writable"`
	EnabledByDefault bool            `json:"enabled_by_default"`
}

// NewAckMessage creates an acknowledgment message for a command.
func NewAckMessage(cmd CommandMessage, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		EntityID:  cmd.EntityID,
		Status:    status,
		Protocol:  Protocol,
	}
}

// NewAckError creates an acknowledgment with error details. A TIMEOUT code
// yields AckTimeout, anything else AckFailed.
func NewAckError(cmd CommandMessage, code, message string, applied []string) AckMessage {
	status := AckFailed
	if code == ErrCodeTimeout {
		status = AckTimeout
	}
	ack := NewAckMessage(cmd, status)
	ack.Error = &AckError{Code: code, Message: message, Applied: applied}
	return ack
}

// NewStateMessage wraps an entity state for publishing.
func NewStateMessage(st entity.State) StateMessage {
	return StateMessage{State: st, Timestamp: time.Now().UTC(), Protocol: Protocol}
}

// NewLWTMessage creates the health message a broker would publish for a
// bridge that vanished.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

func newDiscoveredEntity(a *entity.Adapter) DiscoveredEntity {
	d := a.Descriptor()
	return DiscoveredEntity{
		EntityID:         a.UniqueID(),
		Key:              d.Key,
		Platform:         d.Platform,
		Name:             d.Label,
		Unit:             d.Unit,
		DeviceClass:      d.DeviceClass,
		Category:         d.Category,
		Writable:         d.Platform.Writable(),
		EnabledByDefault: d.EnabledByDefault,
	}
}
