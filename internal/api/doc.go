// Package api implements the HTTP REST API and WebSocket server for the heat
// pump bridge.
//
// This package provides:
//   - REST endpoints for entities, entity commands and cached registers
//   - Register history and command log queries backed by SQLite
//   - A setup endpoint that validates a host/port/type form against a live device
//   - WebSocket hub for real-time entity state and availability broadcasts
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// The server reads and writes through the integration entry directly. The
// MQTT bridge is a sibling consumer of the same entry, so REST commands and
// MQTT commands share the coordinator's serialised device access.
//
// # Graceful Degradation
//
// History, the command log and MQTT status are optional. Endpoints that need
// a missing collaborator answer 503 while the rest keep working.
package api
