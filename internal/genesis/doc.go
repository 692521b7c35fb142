// Package genesis is the Modbus TCP facade for Thermia Genesis heat pump
// controllers (Diplomat Inverter and Mega).
//
// It owns the register table and performs reads and writes through
// github.com/goburrow/modbus. Registers are addressed by name; the facade
// plans the Modbus requests, paces them, and decodes the raw words.
//
//	dev, err := genesis.Dial(genesis.Config{Host: "10.0.0.20", Kind: genesis.KindInverter})
//	if err != nil {
//	    return err
//	}
//	values, err := dev.Fetch(ctx, []string{"input_outdoor_temperature", genesis.Firmware})
//
// Only one failure kind crosses this boundary to callers that poll:
// ErrConnectivity. Exception responses for individual registers are
// skipped during Fetch.
package genesis
