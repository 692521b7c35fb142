// Package heatpump bridges a Thermia Genesis heat pump onto MQTT.
//
// The bridge publishes the rendered state of every entity to
// graylogic/state/heatpump/{entity_id} (retained) whenever it changes, and
// the device availability to graylogic/heatpump/availability.
//
// Commands arrive two ways:
//
//   - JSON CommandMessage on graylogic/command/heatpump/{entity_id}, from
//     Gray Logic Core. Each is acknowledged on graylogic/ack/heatpump/{entity_id}.
//   - Raw payloads on graylogic/heatpump/set/{key}/{attribute}, as emitted
//     by Home Assistant entities created from discovery.
//
// Requests (read_state, read_all, discover) on
// graylogic/request/heatpump/{request_id} are answered on the matching
// response topic. Home Assistant discovery configs are published under the
// configured prefix when discovery is enabled.
package heatpump
