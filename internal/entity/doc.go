// Package entity turns heat pump registers into user-facing entities.
//
// Each entity is an Adapter driven by a static Descriptor from the catalog.
// The descriptor's Platform decides how the adapter renders its value and
// which commands it accepts:
//
//   - sensor: a single register value, or the summary "heatpump" sensor
//   - binary_sensor: a coil or discrete input
//   - switch: a writable coil
//   - number: a writable holding register with a range
//   - climate: several registers combined into a heating circuit
//
// Adapters never talk to the device. They declare interest in registers on
// the coordinator, read from its cached snapshot and write through it.
//
// Usage:
//
//	for _, d := range entity.ForKind(genesis.KindInverter) {
//	    a := entity.NewAdapter(d, coord, genesis.KindInverter.Model())
//	    a.Attach(publish)
//	}
package entity
