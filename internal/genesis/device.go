package genesis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"sync"
	"time"

	mb "github.com/goburrow/modbus"
)

// Connection defaults for a Genesis controller.
const (
	DefaultPort         = 502
	DefaultSlaveID      = 1
	DefaultTimeout      = 5 * time.Second
	DefaultPollDelay    = 50 * time.Millisecond
	DefaultMaxRegisters = 1

	// maxRequestSpan is the Modbus limit for registers per read request.
	maxRequestSpan = 125
)

// Config holds the connection settings for Dial.
type Config struct {
	Host    string
	Port    int
	Kind    Kind
	SlaveID byte
	Timeout time.Duration

	// PollDelay is the minimum gap between two consecutive requests.
	PollDelay time.Duration

	// MaxRegisters caps how many contiguous registers are read per request.
	MaxRegisters int
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Kind == "" {
		c.Kind = KindInverter
	}
	if c.SlaveID == 0 {
		c.SlaveID = DefaultSlaveID
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollDelay < 0 {
		c.PollDelay = 0
	}
	if c.MaxRegisters < 1 {
		c.MaxRegisters = DefaultMaxRegisters
	}
	if c.MaxRegisters > maxRequestSpan {
		c.MaxRegisters = maxRequestSpan
	}
}

// Address returns host:port for the Modbus TCP connection.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Logger defines the logging interface for the device facade.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// registerClient is the subset of modbus.Client the facade uses.
type registerClient interface {
	ReadCoils(address, quantity uint16) ([]byte, error)
	ReadDiscreteInputs(address, quantity uint16) ([]byte, error)
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteSingleCoil(address, value uint16) ([]byte, error)
	WriteSingleRegister(address, value uint16) ([]byte, error)
}

// transport owns the TCP connection underneath registerClient.
type transport interface {
	Connect() error
	Close() error
}

// Stats is a point-in-time view of request counters.
type Stats struct {
	Requests    uint64    `json:"requests"`
	Failures    uint64    `json:"failures"`
	Exceptions  uint64    `json:"exceptions"`
	Reconnects  uint64    `json:"reconnects"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	Connected   bool      `json:"connected"`
}

// Device is the Modbus facade for one Genesis controller.
//
// Thread Safety:
//   - Fetch and WriteRegister are serialised; the controller answers one
//     request at a time and drops requests that arrive too close together.
type Device struct {
	cfg     Config
	handler transport
	client  registerClient

	mu          sync.Mutex
	lastRequest time.Time

	statsMu sync.RWMutex
	stats   Stats
	logger  Logger
}

// Dial opens a Modbus TCP connection to the controller described by cfg.
//
// Parameters:
//   - cfg: Host is required; zero values take the package defaults
//
// Returns:
//   - *Device: Connected facade
//   - error: ErrUnsupportedKind for an unknown kind, ErrConnectivity if the
//     TCP connection cannot be opened
func Dial(cfg Config) (*Device, error) {
	cfg.applyDefaults()
	if _, err := ParseKind(string(cfg.Kind)); err != nil {
		return nil, err
	}

	h := mb.NewTCPClientHandler(cfg.Address())
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.SlaveID

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("%w: connect %s: %w", ErrConnectivity, cfg.Address(), err)
	}

	d := newDevice(cfg, h, mb.NewClient(h))
	d.stats.Connected = true
	return d, nil
}

func newDevice(cfg Config, h transport, c registerClient) *Device {
	if cfg.MaxRegisters < 1 {
		cfg.MaxRegisters = 1
	}
	return &Device{
		cfg:     cfg,
		handler: h,
		client:  c,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger used for request diagnostics.
func (d *Device) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	d.statsMu.Lock()
	d.logger = l
	d.statsMu.Unlock()
}

func (d *Device) log() Logger {
	d.statsMu.RLock()
	defer d.statsMu.RUnlock()
	return d.logger
}

// Kind returns the configured controller kind.
func (d *Device) Kind() Kind { return d.cfg.Kind }

// Model returns the device model name.
func (d *Device) Model() string { return d.cfg.Kind.Model() }

// Address returns host:port of the controller.
func (d *Device) Address() string { return d.cfg.Address() }

// Fetch reads the named registers and returns their decoded values.
//
// Names that are unknown or not provided by the configured kind are skipped.
// Registers the controller answers with a Modbus exception are omitted from
// the result. An empty names slice only verifies the connection.
//
// Parameters:
//   - ctx: Cancels the pacing waits between requests
//   - names: Register names; Firmware expands to the version registers
//
// Returns:
//   - map[string]any: bool for coils and discrete inputs, int for unscaled
//     registers, float64 for scaled ones, string for Firmware
//   - error: Wraps ErrConnectivity when the controller is unreachable
func (d *Device) Fetch(ctx context.Context, names []string) (map[string]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(names) == 0 {
		if err := d.handler.Connect(); err != nil {
			d.recordFailure()
			return nil, fmt.Errorf("%w: connect %s: %w", ErrConnectivity, d.cfg.Address(), err)
		}
		return map[string]any{}, nil
	}

	regs, wantFirmware, explicit := d.resolve(names)
	out := make(map[string]any, len(names))

	for _, req := range planRequests(regs, d.cfg.MaxRegisters) {
		if err := d.pace(ctx); err != nil {
			return nil, err
		}

		data, err := d.readWithRetry(req)
		if err != nil {
			if isException(err) {
				d.countException()
				d.log().Debug("register read rejected by controller",
					"table", req.table.String(), "address", req.start, "count", req.count, "error", err)
				continue
			}
			d.recordFailure()
			return nil, fmt.Errorf("%w: read %s %d+%d: %w", ErrConnectivity, req.table, req.start, req.count, err)
		}

		if err := decodeInto(out, req, data); err != nil {
			d.recordFailure()
			return nil, fmt.Errorf("%w: %w", ErrConnectivity, err)
		}
	}

	if wantFirmware {
		if fw, ok := firmwareVersion(out); ok {
			out[Firmware] = fw
		}
		for _, part := range firmwareParts {
			if !explicit[part] {
				delete(out, part)
			}
		}
	}

	d.recordSuccess()
	return out, nil
}

// resolve turns names into table registers supported by the device.
func (d *Device) resolve(names []string) (regs []Register, wantFirmware bool, explicit map[string]bool) {
	explicit = make(map[string]bool, len(names))
	seen := make(map[string]bool, len(names))
	add := func(name string) {
		if seen[name] {
			return
		}
		r, ok := Lookup(name)
		if !ok || !r.SupportedBy(d.cfg.Kind) {
			d.log().Debug("skipping register", "register", name, "kind", d.cfg.Kind.String())
			return
		}
		seen[name] = true
		regs = append(regs, r)
	}

	for _, name := range names {
		if name == Firmware {
			wantFirmware = true
			continue
		}
		explicit[name] = true
		add(name)
	}
	if wantFirmware {
		for _, part := range firmwareParts {
			add(part)
		}
	}
	return regs, wantFirmware, explicit
}

func (d *Device) readWithRetry(req request) ([]byte, error) {
	data, err := d.read(req)
	if err == nil || isException(err) {
		return data, err
	}

	d.log().Warn("modbus request failed, reconnecting", "address", d.cfg.Address(), "error", err)
	if rerr := d.reconnect(); rerr != nil {
		return nil, errors.Join(err, rerr)
	}
	return d.read(req)
}

func (d *Device) read(req request) ([]byte, error) {
	d.countRequest()
	defer func() { d.lastRequest = time.Now() }()

	switch req.table {
	case TableCoil:
		return d.client.ReadCoils(req.start, req.count)
	case TableDiscreteInput:
		return d.client.ReadDiscreteInputs(req.start, req.count)
	case TableInputRegister:
		return d.client.ReadInputRegisters(req.start, req.count)
	case TableHoldingRegister:
		return d.client.ReadHoldingRegisters(req.start, req.count)
	default:
		return nil, fmt.Errorf("unknown register table %d", req.table)
	}
}

// WriteRegister writes a single coil or holding register.
//
// Parameters:
//   - name: Register name from the table
//   - value: bool for coils; a number in engineering units for holding
//     registers, scaled and rounded to the register resolution
//
// Returns:
//   - error: ErrUnknownRegister, ErrUnsupportedKind, ErrReadOnly,
//     ErrInvalidValue, or a wrapped ErrConnectivity
func (d *Device) WriteRegister(ctx context.Context, name string, value any) error {
	r, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRegister, name)
	}
	if !r.SupportedBy(d.cfg.Kind) {
		return fmt.Errorf("%w: %s not available on %s", ErrUnsupportedKind, name, d.cfg.Kind)
	}
	if !r.Table.Writable() {
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}

	word, err := encodeValue(r, value)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.pace(ctx); err != nil {
		return err
	}

	write := func() error {
		d.countRequest()
		defer func() { d.lastRequest = time.Now() }()
		var werr error
		if r.Table == TableCoil {
			_, werr = d.client.WriteSingleCoil(r.Address, word)
		} else {
			_, werr = d.client.WriteSingleRegister(r.Address, word)
		}
		return werr
	}

	err = write()
	if err != nil && !isException(err) {
		d.log().Warn("modbus write failed, reconnecting", "register", name, "error", err)
		if rerr := d.reconnect(); rerr == nil {
			err = write()
		}
	}
	if err != nil {
		if isException(err) {
			d.countException()
			return fmt.Errorf("%w: %s rejected by controller: %w", ErrInvalidValue, name, err)
		}
		d.recordFailure()
		return fmt.Errorf("%w: write %s: %w", ErrConnectivity, name, err)
	}

	d.recordSuccess()
	d.log().Debug("register written", "register", name, "value", value, "raw", word)
	return nil
}

// Normalize returns value as Fetch would decode it after a successful write
// of that value: bool for coils, int or scaled float64 for holding registers.
// Values that cannot be encoded, and unknown registers, are returned as is.
func (d *Device) Normalize(name string, value any) any {
	return Normalize(name, value)
}

// Normalize is the package-level form of Device.Normalize.
func Normalize(name string, value any) any {
	r, ok := Lookup(name)
	if !ok {
		return value
	}
	raw, err := encodeValue(r, value)
	if err != nil {
		return value
	}
	if r.Table.Boolean() {
		return raw != 0
	}
	return decodeWord(r, raw)
}

// Close closes the TCP connection.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.statsMu.Lock()
	d.stats.Connected = false
	d.statsMu.Unlock()
	return d.handler.Close()
}

// IsConnected reports whether the last request reached the controller.
func (d *Device) IsConnected() bool {
	d.statsMu.RLock()
	defer d.statsMu.RUnlock()
	return d.stats.Connected
}

// Stats returns a copy of the request counters.
func (d *Device) Stats() Stats {
	d.statsMu.RLock()
	defer d.statsMu.RUnlock()
	return d.stats
}

// pace waits until PollDelay has passed since the previous request.
func (d *Device) pace(ctx context.Context) error {
	if d.cfg.PollDelay <= 0 || d.lastRequest.IsZero() {
		return ctx.Err()
	}
	wait := time.Until(d.lastRequest.Add(d.cfg.PollDelay))
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Device) reconnect() error {
	d.statsMu.Lock()
	d.stats.Reconnects++
	d.statsMu.Unlock()

	_ = d.handler.Close() //nolint:errcheck // closing a broken connection
	return d.handler.Connect()
}

func (d *Device) countRequest() {
	d.statsMu.Lock()
	d.stats.Requests++
	d.statsMu.Unlock()
}

func (d *Device) countException() {
	d.statsMu.Lock()
	d.stats.Exceptions++
	d.statsMu.Unlock()
}

func (d *Device) recordFailure() {
	d.statsMu.Lock()
	d.stats.Failures++
	d.stats.Connected = false
	d.statsMu.Unlock()
}

func (d *Device) recordSuccess() {
	d.statsMu.Lock()
	d.stats.LastSuccess = time.Now()
	d.stats.Connected = true
	d.statsMu.Unlock()
}

// isException reports whether err is a Modbus exception response, meaning
// the controller answered but refused the request.
func isException(err error) bool {
	var mbErr *mb.ModbusError
	return errors.As(err, &mbErr)
}

// encodeValue converts a write value into the 16-bit word for r.
func encodeValue(r Register, value any) (uint16, error) {
	if r.Table == TableCoil {
		on, err := toBool(value)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrInvalidValue, r.Name, err)
		}
		if on {
			return 0xFF00, nil
		}
		return 0x0000, nil
	}

	f, err := toFloat(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidValue, r.Name, err)
	}
	raw := math.Round(f * r.Scale)
	if r.Unsigned {
		if raw < 0 || raw > math.MaxUint16 {
			return 0, fmt.Errorf("%w: %s: %v out of range", ErrInvalidValue, r.Name, f)
		}
		return uint16(raw), nil
	}
	if raw < math.MinInt16 || raw > math.MaxInt16 {
		return 0, fmt.Errorf("%w: %s: %v out of range", ErrInvalidValue, r.Name, f)
	}
	return uint16(int16(raw)), nil
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case nil:
		return false, errors.New("nil value")
	}
	f, err := toFloat(v)
	if err != nil {
		return false, err
	}
	return f != 0, nil
}

func toFloat(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("value is not finite")
	}
	return f, nil
}

func firmwareVersion(values map[string]any) (string, bool) {
	parts := make([]int, 0, len(firmwareParts))
	for _, name := range firmwareParts {
		v, ok := values[name].(int)
		if !ok {
			return "", false
		}
		parts = append(parts, v)
	}
	return fmt.Sprintf("%d.%d.%d", parts[0], parts[1], parts[2]), true
}
