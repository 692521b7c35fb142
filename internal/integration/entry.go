package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-heatpump/internal/coordinator"
	"github.com/nerrad567/gray-logic-heatpump/internal/entity"
	"github.com/nerrad567/gray-logic-heatpump/internal/genesis"
	"github.com/nerrad567/gray-logic-heatpump/internal/infrastructure/config"
)

// ErrNotReady is returned by Setup when the first refresh fails. The caller
// should retry later.
var ErrNotReady = errors.New("integration: device not ready")

// Device is the heat pump connection an entry owns.
type Device interface {
	coordinator.Device
	Close() error
}

// Dialer opens a Device.
type Dialer func(cfg genesis.Config) (Device, error)

// DialDevice opens a Modbus TCP connection with genesis.Dial.
func DialDevice(cfg genesis.Config) (Device, error) {
	d, err := genesis.Dial(cfg)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Logger defines the logging interface for the integration.
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

// Config describes one configured heat pump.
type Config struct {
	Device    genesis.Config
	Interval  time.Duration
	WriteMode coordinator.WriteMode
}

// ConfigFromSettings converts the heatpump section of the application
// configuration.
func ConfigFromSettings(hp config.HeatPumpConfig) (Config, error) {
	kind, err := genesis.ParseKind(hp.Type)
	if err != nil {
		return Config{}, err
	}
	mode, err := coordinator.ParseWriteMode(hp.WriteMode)
	if err != nil {
		return Config{}, err
	}
	if hp.SlaveID < 0 || hp.SlaveID > 247 {
		return Config{}, fmt.Errorf("integration: slave id %d out of range", hp.SlaveID)
	}
	return Config{
		Device: genesis.Config{
			Host:         hp.Host,
			Port:         hp.Port,
			Kind:         kind,
			SlaveID:      byte(hp.SlaveID),
			Timeout:      hp.TimeoutDuration(),
			PollDelay:    hp.RequestDelay(),
			MaxRegisters: hp.MaxRegisters,
		},
		Interval:  hp.PollIntervalDuration(),
		WriteMode: mode,
	}, nil
}

// Options holds the collaborators for Setup.
type Options struct {
	Dialer   Dialer
	Logger   Logger
	Observer coordinator.Observer
}

// Entry is one configured heat pump: its connection, coordinator and
// entities.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Entry struct {
	cfg      Config
	device   Device
	coord    *coordinator.Coordinator
	adapters []*entity.Adapter
	byID     map[string]*entity.Adapter
	logger   Logger

	sinksMu sync.RWMutex
	sinks   map[uint64]func(*entity.Adapter)
	nextID  uint64

	unloadOnce sync.Once
}

// Setup dials the heat pump, creates the entities for its kind and performs
// the first refresh.
//
// Parameters:
//   - ctx: Bounds the first refresh
//   - cfg: Connection and polling settings
//   - opts: Optional collaborators; zero values use defaults
//
// Returns:
//   - *Entry: Ready entry; call Start to begin polling
//   - error: Wraps ErrNotReady when the device cannot be reached
func Setup(ctx context.Context, cfg Config, opts Options) (*Entry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = DialDevice
	}
	if cfg.Device.Kind == "" {
		cfg.Device.Kind = genesis.KindInverter
	}

	dev, err := dialer(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	if l, ok := dev.(interface{ SetLogger(genesis.Logger) }); ok {
		l.SetLogger(logger)
	}

	coord := coordinator.New(dev, coordinator.Options{
		Interval:  cfg.Interval,
		WriteMode: cfg.WriteMode,
		Logger:    logger,
		Observer:  opts.Observer,
	})

	e := &Entry{
		cfg:    cfg,
		device: dev,
		coord:  coord,
		byID:   make(map[string]*entity.Adapter),
		logger: logger,
		sinks:  make(map[uint64]func(*entity.Adapter)),
	}

	model := cfg.Device.Kind.Model()
	for _, d := range entity.ForKind(cfg.Device.Kind) {
		a := entity.NewAdapter(d, coord, model)
		a.Attach(e.dispatch)
		e.adapters = append(e.adapters, a)
		e.byID[a.UniqueID()] = a
	}

	if err := coord.Refresh(ctx); err != nil {
		e.detachAll()
		if cerr := dev.Close(); cerr != nil {
			logger.Debug("closing device after failed setup", "error", cerr)
		}
		return nil, fmt.Errorf("%w: %w", ErrNotReady, err)
	}

	logger.Info("heat pump entry set up",
		"model", model,
		"address", cfg.Device.Address(),
		"entities", len(e.adapters),
		"registers", len(coord.Interest()),
	)
	return e, nil
}

// Start begins periodic polling.
func (e *Entry) Start(ctx context.Context) {
	e.coord.Start(ctx)
}

// Unload detaches every entity, stops polling and closes the device.
// Calling it more than once has no further effect.
func (e *Entry) Unload() error {
	var err error
	e.unloadOnce.Do(func() {
		e.detachAll()
		e.coord.Stop()
		err = e.device.Close()
		e.logger.Info("heat pump entry unloaded")
	})
	return err
}

func (e *Entry) detachAll() {
	for _, a := range e.adapters {
		a.Detach()
	}
}

// Entities returns the entry's entities in catalog order.
func (e *Entry) Entities() []*entity.Adapter {
	out := make([]*entity.Adapter, len(e.adapters))
	copy(out, e.adapters)
	return out
}

// Entity returns the entity with the given unique id. The bare descriptor
// key is accepted as well.
func (e *Entry) Entity(id string) (*entity.Adapter, error) {
	if a, ok := e.byID[id]; ok {
		return a, nil
	}
	if a, ok := e.byID[entity.UniqueIDPrefix+id]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %s", entity.ErrNotFound, id)
}

// Coordinator returns the entry's polling coordinator.
func (e *Entry) Coordinator() *coordinator.Coordinator { return e.coord }

// Model returns the device model name.
func (e *Entry) Model() string { return e.cfg.Device.Kind.Model() }

// DeviceInfo returns the device all entities belong to.
func (e *Entry) DeviceInfo() entity.DeviceInfo {
	if len(e.adapters) == 0 {
		return entity.DeviceInfo{
			Identifiers:  []string{UniqueID},
			Name:         e.Model(),
			Manufacturer: entity.Manufacturer,
			Model:        e.Model(),
		}
	}
	return e.adapters[0].DeviceInfo()
}

// OnEntityUpdate registers fn to run for each entity after every
// coordinator update.
//
// Returns:
//   - func(): Removes fn
func (e *Entry) OnEntityUpdate(fn func(*entity.Adapter)) func() {
	e.sinksMu.Lock()
	e.nextID++
	id := e.nextID
	e.sinks[id] = fn
	e.sinksMu.Unlock()

	return func() {
		e.sinksMu.Lock()
		delete(e.sinks, id)
		e.sinksMu.Unlock()
	}
}

func (e *Entry) dispatch(a *entity.Adapter) {
	e.sinksMu.RLock()
	fns := make([]func(*entity.Adapter), 0, len(e.sinks))
	for _, fn := range e.sinks {
		fns = append(fns, fn)
	}
	e.sinksMu.RUnlock()

	for _, fn := range fns {
		fn(a)
	}
}
