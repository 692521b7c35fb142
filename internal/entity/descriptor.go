package entity

import "sort"

// Platform is the kind of entity a descriptor produces.
type Platform string

const (
	PlatformSensor       Platform = "sensor"
	PlatformBinarySensor Platform = "binary_sensor"
	PlatformSwitch       Platform = "switch"
	PlatformNumber       Platform = "number"
	PlatformClimate      Platform = "climate"
)

// Writable reports whether entities of this platform accept commands
// that write registers.
func (p Platform) Writable() bool {
	return p == PlatformSwitch || p == PlatformNumber || p == PlatformClimate
}

// Category groups entities that are not primary controls.
type Category string

const (
	CategoryNone       Category = ""
	CategoryConfig     Category = "config"
	CategoryDiagnostic Category = "diagnostic"
)

// Descriptor is the static description of one entity. Descriptors are
// defined once in the catalog and never modified.
type Descriptor struct {
	Key              string
	Platform         Platform
	Label            string
	Icon             string
	Unit             string
	DeviceClass      string
	StateClass       string
	Category         Category
	EnabledByDefault bool

	// Register is the primary register. It decides whether the entity
	// exists for a heat pump kind. For climates it is the enabled flag.
	Register string

	// Number limits. Nil falls back to limits derived from Unit.
	Min  *float64
	Max  *float64
	Step *float64

	Climate *ClimateBinding
	Summary *SummaryBinding
}

// ClimateBinding maps the logical climate attributes onto registers.
// Empty register names mean the attribute is not available.
type ClimateBinding struct {
	CurrentTemperature    string
	TargetTemperature     string
	TargetTemperatureLow  string
	TargetTemperatureHigh string
	Enabled               string
	Status                string

	// ActiveStatus is the Status value meaning this circuit is running.
	ActiveStatus int

	MinTemp float64
	MaxTemp float64
	// Step defaults to 1 when zero.
	Step float64
}

// SummaryBinding configures the aggregated heat pump sensor.
type SummaryBinding struct {
	Attributes []AttributeRef
	Alarms     []string
	// Firmware is read for the device software version.
	Firmware string
}

// AttributeRef is one register shown as an attribute of the summary sensor.
type AttributeRef struct {
	Register string
	Unit     string
}

// Registers returns every register the descriptor reads, sorted.
func (d Descriptor) Registers() []string {
	set := map[string]struct{}{}
	add := func(names ...string) {
		for _, n := range names {
			if n != "" {
				set[n] = struct{}{}
			}
		}
	}

	add(d.Register)
	if c := d.Climate; c != nil {
		add(c.CurrentTemperature, c.TargetTemperature, c.TargetTemperatureLow,
			c.TargetTemperatureHigh, c.Enabled, c.Status)
	}
	if s := d.Summary; s != nil {
		for _, a := range s.Attributes {
			add(a.Register)
		}
		add(s.Alarms...)
		add(s.Firmware)
	}

	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func ptr(v float64) *float64 { return &v }

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return ptr(*p)
}

// clone returns a copy of d that shares no memory with it.
func (d Descriptor) clone() Descriptor {
	d.Min, d.Max, d.Step = clonePtr(d.Min), clonePtr(d.Max), clonePtr(d.Step)
	if d.Climate != nil {
		c := *d.Climate
		d.Climate = &c
	}
	if d.Summary != nil {
		s := *d.Summary
		s.Attributes = append([]AttributeRef(nil), s.Attributes...)
		s.Alarms = append([]string(nil), s.Alarms...)
		d.Summary = &s
	}
	return d
}
