package entity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-heatpump/internal/coordinator"
	"github.com/nerrad567/gray-logic-heatpump/internal/genesis"
)

// Manufacturer is reported in DeviceInfo for every entity.
const Manufacturer = "Thermia"

// UniqueIDPrefix prefixes every entity's unique identifier.
const UniqueIDPrefix = "thermiagenesis_"

// Source is the subset of the coordinator an adapter uses.
type Source interface {
	DeclareInterest(names ...string)
	Data() coordinator.Snapshot
	LastUpdateSuccess() bool
	Write(ctx context.Context, register string, value any) error
	AddListener(fn func()) func()
	RequestRefresh()
}

// DeviceInfo groups all entities under one physical heat pump.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// State is the rendered view of an entity at one point in time.
type State struct {
	EntityID   string         `json:"entity_id"`
	Platform   Platform       `json:"platform"`
	Name       string         `json:"name"`
	Value      any            `json:"value"`
	Known      bool           `json:"known"`
	Available  bool           `json:"available"`
	Unit       string         `json:"unit,omitempty"`
	Icon       string         `json:"icon,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Adapter exposes one descriptor as an entity backed by the coordinator.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Adapter struct {
	desc  Descriptor
	src   Source
	model string

	mu     sync.Mutex
	detach func()
}

// NewAdapter creates an adapter. It does not declare interest until Attach.
//
// Parameters:
//   - desc: Static entity description from the catalog
//   - src: Coordinator the adapter reads from and writes through
//   - model: Device model name reported in DeviceInfo
func NewAdapter(desc Descriptor, src Source, model string) *Adapter {
	return &Adapter{desc: desc, src: src, model: model}
}

// Descriptor returns the static description.
func (a *Adapter) Descriptor() Descriptor { return a.desc }

// Key returns the descriptor key.
func (a *Adapter) Key() string { return a.desc.Key }

// Platform returns the entity platform.
func (a *Adapter) Platform() Platform { return a.desc.Platform }

// UniqueID returns the stable identifier "thermiagenesis_<key>".
func (a *Adapter) UniqueID() string { return UniqueIDPrefix + a.desc.Key }

// Name returns the human readable label.
func (a *Adapter) Name() string { return a.desc.Label }

// Unit returns the unit of measurement, if any.
func (a *Adapter) Unit() string { return a.desc.Unit }

// EnabledByDefault reports whether the entity is enabled when first created.
func (a *Adapter) EnabledByDefault() bool { return a.desc.EnabledByDefault }

// Category returns the entity category.
func (a *Adapter) Category() Category { return a.desc.Category }

// Icon returns the entity icon. The summary sensor switches to mdi:alert
// while any alarm register is set.
func (a *Adapter) Icon() string {
	if a.desc.Summary != nil {
		if len(a.activeAlarms(a.src.Data())) > 0 {
			return "mdi:alert"
		}
		return "mdi:pulse"
	}
	return a.desc.Icon
}

// DeviceInfo returns the device the entity belongs to.
func (a *Adapter) DeviceInfo() DeviceInfo {
	info := DeviceInfo{
		Identifiers:  []string{"thermiagenesis"},
		Name:         a.model,
		Manufacturer: Manufacturer,
		Model:        a.model,
	}
	if fw, ok := a.src.Data().Get(genesis.Firmware); ok {
		info.SWVersion = fmt.Sprint(fw)
	}
	return info
}

// Attach declares interest in every register the descriptor references and
// subscribes to coordinator updates. onUpdate may be nil. Attaching twice
// replaces the previous subscription.
func (a *Adapter) Attach(onUpdate func(*Adapter)) {
	a.src.DeclareInterest(a.desc.Registers()...)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.detach != nil {
		a.detach()
	}
	a.detach = a.src.AddListener(func() {
		if onUpdate != nil {
			onUpdate(a)
		}
	})
}

// Detach removes the coordinator subscription. Interest is left declared.
func (a *Adapter) Detach() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.detach != nil {
		a.detach()
		a.detach = nil
	}
}

// Available reports whether the last fetch succeeded.
func (a *Adapter) Available() bool { return a.src.LastUpdateSuccess() }

// Value returns the entity's primary value and whether it is known.
// Nothing is known before the first successful fetch.
func (a *Adapter) Value() (any, bool) {
	data := a.src.Data()
	if a.desc.Platform == PlatformClimate {
		return a.currentTemperature(data)
	}
	if a.desc.Summary != nil {
		code, ok := asInt(data[a.desc.Register])
		if !ok {
			return nil, false
		}
		return genesis.StatusLabel(code), true
	}
	return data.Get(a.desc.Register)
}

// IsOn reports the state of a switch or binary sensor.
func (a *Adapter) IsOn() (on, known bool) {
	v, ok := a.src.Data().Get(a.desc.Register)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// State renders the entity.
func (a *Adapter) State() State {
	data := a.src.Data()
	value, known := a.Value()
	st := State{
		EntityID:  a.UniqueID(),
		Platform:  a.desc.Platform,
		Name:      a.desc.Label,
		Value:     value,
		Known:     known,
		Available: a.src.LastUpdateSuccess(),
		Unit:      a.desc.Unit,
		Icon:      a.Icon(),
	}

	switch {
	case a.desc.Summary != nil:
		st.Attributes = a.summaryAttributes(data)
	case a.desc.Platform == PlatformClimate:
		st.Attributes = a.climateAttributes(data)
	case a.desc.Platform == PlatformNumber:
		r := a.Range()
		st.Attributes = map[string]any{"min": r.Min, "max": r.Max, "step": r.Step}
	}
	return st
}

// TurnOn writes true to the switch coil, or enables a climate circuit.
func (a *Adapter) TurnOn(ctx context.Context) error {
	return a.setEnabled(ctx, true)
}

// TurnOff writes false to the switch coil, or disables a climate circuit.
func (a *Adapter) TurnOff(ctx context.Context) error {
	return a.setEnabled(ctx, false)
}

func (a *Adapter) setEnabled(ctx context.Context, on bool) error {
	switch a.desc.Platform {
	case PlatformSwitch:
		return a.src.Write(ctx, a.desc.Register, on)
	case PlatformClimate:
		if a.desc.Climate == nil || a.desc.Climate.Enabled == "" {
			return fmt.Errorf("%w: %s has no enable flag", ErrNotSupported, a.desc.Key)
		}
		return a.src.Write(ctx, a.desc.Climate.Enabled, on)
	default:
		return fmt.Errorf("%w: %s is a %s", ErrNotWritable, a.desc.Key, a.desc.Platform)
	}
}

// Refresh asks the coordinator for a fetch without waiting for it.
func (a *Adapter) Refresh() { a.src.RequestRefresh() }

// NumberRange holds the limits of a number entity.
type NumberRange struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

// Range returns the number limits. Limits missing from the descriptor are
// derived from the unit.
func (a *Adapter) Range() NumberRange {
	r := rangeForUnit(a.desc.Unit)
	if a.desc.Min != nil {
		r.Min = *a.desc.Min
	}
	if a.desc.Max != nil {
		r.Max = *a.desc.Max
	}
	if a.desc.Step != nil && *a.desc.Step > 0 {
		r.Step = *a.desc.Step
	}
	return r
}

func rangeForUnit(unit string) NumberRange {
	switch unit {
	case UnitPercent:
		return NumberRange{Min: 0, Max: 100, Step: 1}
	case UnitCelsius:
		return NumberRange{Min: -40, Max: 100, Step: 1}
	default:
		return NumberRange{Min: 0, Max: 100, Step: 1}
	}
}

// SetValue writes a number entity's register after checking its range.
func (a *Adapter) SetValue(ctx context.Context, value float64) error {
	if a.desc.Platform != PlatformNumber {
		return fmt.Errorf("%w: %s is a %s", ErrNotWritable, a.desc.Key, a.desc.Platform)
	}
	r := a.Range()
	if value < r.Min || value > r.Max {
		return fmt.Errorf("%w: %s: %v not in [%v, %v]", ErrOutOfRange, a.desc.Key, value, r.Min, r.Max)
	}
	return a.src.Write(ctx, a.desc.Register, value)
}

func (a *Adapter) activeAlarms(data coordinator.Snapshot) []string {
	if a.desc.Summary == nil {
		return nil
	}
	var active []string
	for _, reg := range a.desc.Summary.Alarms {
		if on, _ := data[reg].(bool); on {
			active = append(active, reg)
		}
	}
	return active
}

func (a *Adapter) summaryAttributes(data coordinator.Snapshot) map[string]any {
	attrs := make(map[string]any, len(a.desc.Summary.Attributes)+1)
	for _, ref := range a.desc.Summary.Attributes {
		v, ok := data[ref.Register]
		if !ok {
			continue
		}
		text := fmt.Sprint(v)
		if ref.Unit != "" {
			text += " " + ref.Unit
		}
		attrs[attributeLabel(ref.Register)] = text
	}

	alarms := a.activeAlarms(data)
	labels := make([]string, 0, len(alarms))
	for _, reg := range alarms {
		labels = append(labels, attributeLabel(reg))
	}
	sort.Strings(labels)
	attrs["Alarms"] = labels
	return attrs
}

// attributeLabel drops the table prefix and title-cases the remaining words,
// so "input_outdoor_temperature" becomes "Outdoor Temperature".
func attributeLabel(register string) string {
	_, rest, found := strings.Cut(register, "_")
	if !found {
		rest = register
	}
	words := strings.Split(rest, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
