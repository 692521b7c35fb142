// Package integration wires one heat pump into the bridge.
//
// Setup builds an Entry: it dials the controller, creates the polling
// coordinator, instantiates the entities the configured kind supports and
// performs the first refresh. Everything scoped to the heat pump is owned by
// the Entry and torn down by Unload.
//
// The config flow (ValidateInput, Flow) checks a host/port/type form against
// a live device before an entry is created.
package integration
