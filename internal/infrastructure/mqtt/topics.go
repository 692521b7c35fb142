package mqtt

import "fmt"

// TopicPrefix is the root of every Gray Logic topic.
//
// Bridge topics use the flat scheme graylogic/{category}/{protocol}/{id}.
const TopicPrefix = "graylogic"

// Topics builds Gray Logic topic names for one protocol bridge.
//
//	t := mqtt.Topics{Protocol: "heatpump"}
//	t.State("thermiagenesis_heating")
//	// graylogic/state/heatpump/thermiagenesis_heating
type Topics struct {
	Protocol string
}

func (t Topics) category(category, id string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefix, category, t.Protocol, id)
}

// State returns the retained state topic for an entity.
func (t Topics) State(entityID string) string { return t.category("state", entityID) }

// Command returns the command topic for an entity.
func (t Topics) Command(entityID string) string { return t.category("command", entityID) }

// Ack returns the acknowledgement topic for an entity.
func (t Topics) Ack(entityID string) string { return t.category("ack", entityID) }

// Request returns the request topic for a request id.
func (t Topics) Request(requestID string) string { return t.category("request", requestID) }

// Response returns the response topic for a request id.
func (t Topics) Response(requestID string) string { return t.category("response", requestID) }

// Health returns the bridge health topic.
//
// Example: graylogic/health/heatpump
func (t Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, t.Protocol)
}

// Discovery returns the bridge discovery topic.
//
// Example: graylogic/discovery/heatpump
func (t Topics) Discovery() string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefix, t.Protocol)
}

// Availability returns the device availability topic, carrying "online" or
// "offline" as a plain string.
//
// Example: graylogic/heatpump/availability
func (t Topics) Availability() string {
	return fmt.Sprintf("%s/%s/availability", TopicPrefix, t.Protocol)
}

// Set returns the raw command topic used by Home Assistant discovery for
// one attribute of an entity. attribute is "state" for plain switches and
// numbers.
//
// Example: graylogic/heatpump/set/heating/temperature
func (t Topics) Set(key, attribute string) string {
	return fmt.Sprintf("%s/%s/set/%s/%s", TopicPrefix, t.Protocol, key, attribute)
}

// AllCommands matches every command for the protocol.
func (t Topics) AllCommands() string { return t.category("command", "+") }

// AllRequests matches every request for the protocol.
func (t Topics) AllRequests() string { return t.category("request", "+") }

// AllSets matches every raw set topic for the protocol.
func (t Topics) AllSets() string {
	return fmt.Sprintf("%s/%s/set/+/+", TopicPrefix, t.Protocol)
}

// StatusTopic returns the retained process status topic of an MQTT client.
// The broker publishes the LWT here on an unexpected disconnect.
//
// Example: graylogic/system/graylogic-heatpump/status
func StatusTopic(clientID string) string {
	return fmt.Sprintf("%s/system/%s/status", TopicPrefix, clientID)
}

// DiscoveryConfigTopic returns the Home Assistant discovery topic for one
// entity.
//
// Example: homeassistant/sensor/thermiagenesis/input_outdoor_temperature/config
func DiscoveryConfigTopic(prefix, component, nodeID, objectID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", prefix, component, nodeID, objectID)
}
