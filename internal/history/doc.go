// Package history keeps a record of heat pump register values and of the
// commands that wrote them.
//
// The Recorder listens to the polling coordinator and stores only the
// registers whose value changed since the previous successful fetch. Old
// samples are pruned on a timer according to the configured retention.
// CommandLog stores every entity command received over MQTT or the API.
package history
