// Package influxdb exports heat pump register values to InfluxDB.
//
// It wraps the influxdb-client-go v2 non-blocking write API. Every
// successful coordinator fetch becomes one heatpump_registers point whose
// fields are the numeric and boolean registers, tagged with the device
// address and controller kind.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteRegisters("10.0.0.5:502", "inverter", snapshot, time.Now())
package influxdb
