package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the bridge.
const (
	MeasurementRegisters = "heatpump_registers"
	MeasurementFetch     = "heatpump_fetch"
)

// RegisterPoint builds one point holding every numeric and boolean register
// in values. Strings and other types are skipped. It returns nil when no
// field remains.
//
// Parameters:
//   - device: Device identifier tag, usually host:port
//   - kind: Controller kind tag
//   - values: Register snapshot from the coordinator
//   - ts: Point timestamp
func RegisterPoint(device, kind string, values map[string]any, ts time.Time) *write.Point {
	fields := make(map[string]any, len(values))
	for name, v := range values {
		switch n := v.(type) {
		case bool:
			fields[name] = n
		case int:
			fields[name] = int64(n)
		case int64:
			fields[name] = n
		case float64:
			fields[name] = n
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return write.NewPoint(MeasurementRegisters,
		map[string]string{"device": device, "kind": kind},
		fields, ts)
}

// WriteRegisters queues a register snapshot. It is a no-op when
// disconnected or when values holds nothing numeric.
func (c *Client) WriteRegisters(device, kind string, values map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	if p := RegisterPoint(device, kind, values, ts); p != nil {
		c.writer.WritePoint(p)
	}
}

// WriteFetch records the outcome of one coordinator fetch.
func (c *Client) WriteFetch(device string, elapsed time.Duration, registers int, ok bool) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(write.NewPoint(MeasurementFetch,
		map[string]string{"device": device},
		map[string]any{
			"duration_ms": float64(elapsed) / float64(time.Millisecond),
			"registers":   int64(registers),
			"success":     ok,
		},
		time.Now()))
}

// WritePoint queues a custom point.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}

// MeasurementWrites records register write outcomes.
const MeasurementWrites = "heatpump_writes"

// FetchObserver reports coordinator activity to InfluxDB.
type FetchObserver struct {
	client *Client
	device string
}

// Observer returns a coordinator observer tagged with device.
func (c *Client) Observer(device string) FetchObserver {
	return FetchObserver{client: c, device: device}
}

// ObserveFetch writes a heatpump_fetch point.
func (o FetchObserver) ObserveFetch(elapsed time.Duration, registers int, err error) {
	o.client.WriteFetch(o.device, elapsed, registers, err == nil)
}

// ObserveWrite writes a heatpump_writes point.
func (o FetchObserver) ObserveWrite(register string, err error) {
	o.client.WritePoint(MeasurementWrites,
		map[string]string{"device": o.device, "register": register},
		map[string]any{"success": err == nil},
		time.Now())
}
