package entity

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-heatpump/internal/coordinator"
	"github.com/nerrad567/gray-logic-heatpump/internal/genesis"
)

type write struct {
	register string
	value    any
}

type fakeSource struct {
	mu        sync.Mutex
	interest  map[string]bool
	data      coordinator.Snapshot
	available bool
	writes    []write
	failOn    map[string]error
	listeners map[int]func()
	nextID    int
	refreshes int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		interest:  map[string]bool{},
		data:      coordinator.Snapshot{},
		failOn:    map[string]error{},
		listeners: map[int]func(){},
	}
}

func (f *fakeSource) DeclareInterest(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range names {
		f.interest[n] = true
	}
}

func (f *fakeSource) Data() coordinator.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data
}

func (f *fakeSource) LastUpdateSuccess() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeSource) Write(_ context.Context, register string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[register]; err != nil {
		return err
	}
	f.writes = append(f.writes, write{register, value})
	return nil
}

func (f *fakeSource) AddListener(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeSource) RequestRefresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
}

func (f *fakeSource) set(data coordinator.Snapshot) {
	f.mu.Lock()
	f.data = data
	f.available = true
	fns := make([]func(), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeSource) interestList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.interest))
	for n := range f.interest {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func descriptor(t *testing.T, key string) Descriptor {
	t.Helper()
	for _, d := range Catalog() {
		if d.Key == key {
			return d
		}
	}
	t.Fatalf("no descriptor %q", key)
	return Descriptor{}
}

func TestCatalog_KeysUniqueAndRegistersKnown(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range Catalog() {
		assert.False(t, seen[d.Key], "duplicate key %s", d.Key)
		seen[d.Key] = true
		for _, reg := range d.Registers() {
			assert.True(t, genesis.Known(reg), "%s references unknown register %s", d.Key, reg)
		}
		if d.Platform.Writable() && d.Platform != PlatformClimate {
			r, ok := genesis.Lookup(d.Register)
			require.True(t, ok, d.Key)
			assert.True(t, r.Table.Writable(), "%s is writable but %s is not", d.Key, d.Register)
		}
	}
}

func TestForKind_FiltersUnsupportedRegisters(t *testing.T) {
	keys := func(ds []Descriptor) map[string]bool {
		out := map[string]bool{}
		for _, d := range ds {
			out[d.Key] = true
		}
		return out
	}

	inverter := keys(ForKind(genesis.KindInverter))
	mega := keys(ForKind(genesis.KindMega))

	assert.True(t, inverter[SummaryKey])
	assert.True(t, mega[SummaryKey])
	assert.True(t, inverter["input_compressor_speed_percent"])
	assert.False(t, mega["input_compressor_speed_percent"])
	assert.True(t, mega["coil_enable_mix_valve_2"])
	assert.False(t, inverter["coil_enable_mix_valve_2"])
	assert.False(t, mega["holding_minimum_allowed_gear_in_heating"])
}

func TestForKind_TrimsSummaryAttributes(t *testing.T) {
	for _, d := range ForKind(genesis.KindMega) {
		if d.Key != SummaryKey {
			continue
		}
		for _, a := range d.Summary.Attributes {
			assert.NotEqual(t, "input_compressor_speed_percent", a.Register)
		}
		return
	}
	t.Fatal("summary sensor missing")
}

func TestAdapter_Identity(t *testing.T) {
	src := newFakeSource()
	a := NewAdapter(descriptor(t, "input_outdoor_temperature"), src, "Diplomat Inverter Duo")

	assert.Equal(t, "thermiagenesis_input_outdoor_temperature", a.UniqueID())
	assert.Equal(t, "Outdoor temperature", a.Name())
	assert.Equal(t, UnitCelsius, a.Unit())
	assert.Equal(t, "mdi:thermometer", a.Icon())
	assert.True(t, a.EnabledByDefault())

	info := a.DeviceInfo()
	assert.Equal(t, "Thermia", info.Manufacturer)
	assert.Equal(t, "Diplomat Inverter Duo", info.Model)
	assert.Empty(t, info.SWVersion)

	src.set(coordinator.Snapshot{genesis.Firmware: "3.2.1"})
	assert.Equal(t, "3.2.1", a.DeviceInfo().SWVersion)
}

func TestAdapter_AttachDeclaresInterest(t *testing.T) {
	src := newFakeSource()
	a := NewAdapter(descriptor(t, "tap_water"), src, "m")
	a.Attach(nil)

	assert.Equal(t, []string{
		"coil_enable_tap_water",
		"holding_start_temperature_tap_water",
		"holding_stop_temperature_tap_water",
		genesis.StatusRegister,
		"input_tap_water_weighted_temperature",
	}, src.interestList())
}

func TestAdapter_AttachNotifiesUntilDetach(t *testing.T) {
	src := newFakeSource()
	a := NewAdapter(descriptor(t, "input_outdoor_temperature"), src, "m")

	var calls int
	a.Attach(func(got *Adapter) {
		assert.Same(t, a, got)
		calls++
	})
	src.set(coordinator.Snapshot{"input_outdoor_temperature": 4.5})
	a.Detach()
	src.set(coordinator.Snapshot{"input_outdoor_temperature": 5.0})

	assert.Equal(t, 1, calls)
}

func TestAdapter_UnknownBeforeFirstFetch(t *testing.T) {
	src := newFakeSource()
	a := NewAdapter(descriptor(t, "input_outdoor_temperature"), src, "m")

	v, known := a.Value()
	assert.Nil(t, v)
	assert.False(t, known)

	st := a.State()
	assert.False(t, st.Known)
	assert.False(t, st.Available)
	assert.Nil(t, st.Value)

	src.set(coordinator.Snapshot{"input_outdoor_temperature": -3.25})
	v, known = a.Value()
	assert.True(t, known)
	assert.Equal(t, -3.25, v)
	assert.True(t, a.Available())
}

func TestAdapter_SummarySensor(t *testing.T) {
	src := newFakeSource()
	a := NewAdapter(descriptor(t, SummaryKey), src, "m")

	assert.Equal(t, "thermiagenesis_heatpump", a.UniqueID())
	assert.Equal(t, "Heatpump", a.Name())

	src.set(coordinator.Snapshot{
		genesis.StatusRegister:             genesis.StatusHeating,
		"input_outdoor_temperature":        4.5,
		"input_compressor_operating_hours": 1200,
	})
	v, known := a.Value()
	assert.True(t, known)
	assert.Equal(t, "Heating", v)
	assert.Equal(t, "mdi:pulse", a.Icon())

	st := a.State()
	assert.Equal(t, "4.5 °C", st.Attributes["Outdoor Temperature"])
	assert.Equal(t, "1200 h", st.Attributes["Compressor Operating Hours"])
	assert.Empty(t, st.Attributes["Alarms"])

	src.set(coordinator.Snapshot{
		genesis.StatusRegister:        genesis.StatusAlarm,
		"dinput_alarm_active_class_b": true,
		"dinput_alarm_active_class_a": false,
	})
	assert.Equal(t, "mdi:alert", a.Icon())
	assert.Equal(t, []string{"Alarm Active Class B"}, a.State().Attributes["Alarms"])
}

func TestAdapter_SwitchCommands(t *testing.T) {
	src := newFakeSource()
	a := NewAdapter(descriptor(t, "coil_enable_heat"), src, "m")

	require.NoError(t, a.TurnOn(context.Background()))
	require.NoError(t, a.TurnOff(context.Background()))
	assert.Equal(t, []write{{"coil_enable_heat", true}, {"coil_enable_heat", false}}, src.writes)

	src.set(coordinator.Snapshot{"coil_enable_heat": true})
	on, known := a.IsOn()
	assert.True(t, on)
	assert.True(t, known)
}

func TestAdapter_SensorNotWritable(t *testing.T) {
	src := newFakeSource()
	a := NewAdapter(descriptor(t, "input_outdoor_temperature"), src, "m")

	assert.ErrorIs(t, a.TurnOn(context.Background()), ErrNotWritable)
	assert.ErrorIs(t, a.SetValue(context.Background(), 1), ErrNotWritable)
	assert.Empty(t, src.writes)
}

func TestAdapter_NumberRange(t *testing.T) {
	tests := []struct {
		name string
		desc Descriptor
		want NumberRange
	}{
		{"percent fallback", Descriptor{Platform: PlatformNumber, Unit: UnitPercent}, NumberRange{0, 100, 1}},
		{"celsius fallback", Descriptor{Platform: PlatformNumber, Unit: UnitCelsius}, NumberRange{-40, 100, 1}},
		{"no unit fallback", Descriptor{Platform: PlatformNumber}, NumberRange{0, 100, 1}},
		{"explicit", Descriptor{Platform: PlatformNumber, Unit: UnitCelsius, Min: ptr(5), Max: ptr(35), Step: ptr(0.5)}, NumberRange{5, 35, 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewAdapter(tt.desc, newFakeSource(), "m").Range())
		})
	}
}

func TestAdapter_SetValue(t *testing.T) {
	src := newFakeSource()
	a := NewAdapter(descriptor(t, "holding_comfort_wheel_setting"), src, "m")

	require.NoError(t, a.SetValue(context.Background(), 21.5))
	assert.ErrorIs(t, a.SetValue(context.Background(), 50), ErrOutOfRange)
	assert.ErrorIs(t, a.SetValue(context.Background(), 1), ErrOutOfRange)
	assert.Equal(t, []write{{"holding_comfort_wheel_setting", 21.5}}, src.writes)
}

func TestAdapter_WriteErrorPassesThrough(t *testing.T) {
	src := newFakeSource()
	boom := errors.New("boom")
	src.failOn["coil_enable_pool"] = boom
	a := NewAdapter(descriptor(t, "coil_enable_pool"), src, "m")

	assert.ErrorIs(t, a.TurnOn(context.Background()), boom)
}

func TestAttributeLabel(t *testing.T) {
	assert.Equal(t, "Outdoor Temperature", attributeLabel("input_outdoor_temperature"))
	assert.Equal(t, "Current Error", attributeLabel("input_current_error"))
	assert.Equal(t, "Firmware", attributeLabel("firmware"))
}

func TestCatalog_ReturnsIndependentCopies(t *testing.T) {
	var num, clim, sum Descriptor
	for _, d := range Catalog() {
		switch {
		case d.Min != nil && num.Key == "":
			num = d
		case d.Climate != nil && clim.Key == "":
			clim = d
		case d.Summary != nil:
			sum = d
		}
	}
	require.NotEmpty(t, num.Key)
	require.NotEmpty(t, clim.Key)
	require.NotEmpty(t, sum.Key)

	wantMin := *num.Min
	wantMax := clim.Climate.MaxTemp
	wantAttrs := len(sum.Summary.Attributes)
	wantAlarm := sum.Summary.Alarms[0]

	*num.Min = -999
	clim.Climate.MaxTemp = 999
	sum.Summary.Attributes = sum.Summary.Attributes[:0]
	sum.Summary.Alarms[0] = "changed"

	assert.Equal(t, wantMin, *descriptor(t, num.Key).Min)
	assert.Equal(t, wantMax, descriptor(t, clim.Key).Climate.MaxTemp)
	assert.Len(t, descriptor(t, sum.Key).Summary.Attributes, wantAttrs)
	assert.Equal(t, wantAlarm, descriptor(t, sum.Key).Summary.Alarms[0])

	for _, d := range ForKind(genesis.KindInverter) {
		if d.Key == clim.Key {
			d.Climate.MaxTemp = 999
		}
	}
	assert.Equal(t, wantMax, descriptor(t, clim.Key).Climate.MaxTemp)
}
