package genesis

import "sort"

// Table is the Modbus data table a register lives in.
type Table uint8

const (
	TableCoil Table = iota + 1
	TableDiscreteInput
	TableInputRegister
	TableHoldingRegister
)

func (t Table) String() string {
	switch t {
	case TableCoil:
		return "coil"
	case TableDiscreteInput:
		return "discrete_input"
	case TableInputRegister:
		return "input"
	case TableHoldingRegister:
		return "holding"
	default:
		return "unknown"
	}
}

// Writable reports whether the table accepts writes.
func (t Table) Writable() bool {
	return t == TableCoil || t == TableHoldingRegister
}

// Boolean reports whether the table holds single bits.
func (t Table) Boolean() bool {
	return t == TableCoil || t == TableDiscreteInput
}

type support uint8

const (
	onInverter support = 1 << iota
	onMega
	onBoth = onInverter | onMega
)

// Register describes one addressable value on the controller.
type Register struct {
	Name    string
	Table   Table
	Address uint16

	// Scale divides the raw word on read and multiplies on write.
	// A scale of 1 yields an int value; anything else a float64.
	Scale float64

	// Unsigned registers are decoded as uint16 instead of int16.
	Unsigned bool

	kinds support
}

// SupportedBy reports whether the register exists on the given kind.
func (r Register) SupportedBy(k Kind) bool {
	switch k {
	case KindInverter:
		return r.kinds&onInverter != 0
	case KindMega:
		return r.kinds&onMega != 0
	default:
		return false
	}
}

// Firmware is a derived register assembled from the three software
// version input registers as "major.minor.micro".
const Firmware = "firmware"

var firmwareParts = [3]string{
	"input_software_version_major",
	"input_software_version_minor",
	"input_software_version_micro",
}

func coil(name string, addr uint16, k support) Register {
	return Register{Name: name, Table: TableCoil, Address: addr, Scale: 1, kinds: k}
}

func dinput(name string, addr uint16, k support) Register {
	return Register{Name: name, Table: TableDiscreteInput, Address: addr, Scale: 1, kinds: k}
}

func input(name string, addr uint16, scale float64, k support) Register {
	return Register{Name: name, Table: TableInputRegister, Address: addr, Scale: scale, kinds: k}
}

func counter(name string, addr uint16, k support) Register {
	return Register{Name: name, Table: TableInputRegister, Address: addr, Scale: 1, Unsigned: true, kinds: k}
}

func holding(name string, addr uint16, scale float64, k support) Register {
	return Register{Name: name, Table: TableHoldingRegister, Address: addr, Scale: scale, kinds: k}
}

var registerTable = []Register{
	// Coils
	coil("coil_reset_all_alarms", 0, onBoth),
	coil("coil_enable_internal_additional_heater", 1, onBoth),
	coil("coil_enable_external_additional_heater", 2, onBoth),
	coil("coil_enable_hgw", 3, onBoth),
	coil("coil_enable_flow_switch_pressure_switch", 4, onBoth),
	coil("coil_enable_tap_water", 5, onBoth),
	coil("coil_enable_heat", 6, onBoth),
	coil("coil_enable_active_cooling", 7, onBoth),
	coil("coil_enable_mix_valve_1", 8, onBoth),
	coil("coil_enable_twc", 9, onBoth),
	coil("coil_enable_wcs", 10, onBoth),
	coil("coil_enable_hot_gas_pump", 11, onBoth),
	coil("coil_enable_mix_valve_2", 13, onMega),
	coil("coil_enable_mix_valve_3", 14, onMega),
	coil("coil_enable_mix_valve_4", 15, onMega),
	coil("coil_enable_mix_valve_5", 16, onMega),
	coil("coil_enable_brine_out_monitoring", 17, onBoth),
	coil("coil_enable_brine_pump_continuous_operation", 18, onBoth),
	coil("coil_enable_system_circulation_pump", 19, onBoth),
	coil("coil_enable_dew_point_calculation", 20, onBoth),
	coil("coil_enable_anti_legionella", 21, onBoth),
	coil("coil_enable_additional_heater_only", 22, onBoth),
	coil("coil_enable_current_limitation", 23, onBoth),
	coil("coil_enable_pool", 24, onBoth),
	coil("coil_enable_surplus_heat_chiller", 25, onMega),
	coil("coil_enable_surplus_heat_borehole", 26, onMega),
	coil("coil_enable_external_additional_heater_for_pool", 27, onBoth),
	coil("coil_enable_internal_additional_heater_for_pool", 28, onBoth),
	coil("coil_enable_passive_cooling", 29, onBoth),
	coil("coil_enable_variable_speed_mode_for_condenser_pump", 30, onBoth),
	coil("coil_enable_variable_speed_mode_for_brine_pump", 31, onBoth),
	coil("coil_enable_cooling_mode_for_mixing_valve_1", 32, onBoth),
	coil("coil_enable_outdoor_temp_dependent_for_cooling_with_mixing_valve_1", 33, onBoth),
	coil("coil_enable_brine_in_monitoring", 38, onBoth),
	coil("coil_enable_fixed_system_supply_set_point", 39, onBoth),
	coil("coil_enable_evaporator_freeze_protection", 40, onBoth),

	// Discrete inputs
	dinput("dinput_alarm_active_class_a", 0, onBoth),
	dinput("dinput_alarm_active_class_b", 1, onBoth),
	dinput("dinput_alarm_active_class_c", 2, onBoth),
	dinput("dinput_alarm_active_class_d", 3, onBoth),
	dinput("dinput_alarm_active_class_e", 4, onBoth),
	dinput("dinput_high_pressure_switch_alarm", 9, onBoth),
	dinput("dinput_low_pressure_level_alarm", 10, onBoth),
	dinput("dinput_high_discharge_pipe_temperature_alarm", 11, onBoth),
	dinput("dinput_operating_pressure_limit_indication", 12, onBoth),
	dinput("dinput_discharge_pipe_sensor_alarm", 13, onBoth),
	dinput("dinput_liquid_line_sensor_alarm", 14, onBoth),
	dinput("dinput_suction_gas_sensor_alarm", 15, onBoth),
	dinput("dinput_flow_pressure_switch_alarm", 16, onBoth),
	dinput("dinput_power_input_phase_detection_alarm", 22, onBoth),
	dinput("dinput_inverter_unit_alarm", 23, onInverter),
	dinput("dinput_system_supply_low_temperature_alarm", 24, onBoth),
	dinput("dinput_compressor_low_speed_alarm", 25, onInverter),
	dinput("dinput_low_super_heat_alarm", 26, onBoth),
	dinput("dinput_pressure_ratio_out_of_range_alarm", 27, onInverter),
	dinput("dinput_compressor_pressure_outside_envelope_alarm", 28, onInverter),
	dinput("dinput_brine_temperature_out_of_range_alarm", 29, onBoth),
	dinput("dinput_brine_in_sensor_alarm", 30, onBoth),
	dinput("dinput_brine_out_sensor_alarm", 31, onBoth),
	dinput("dinput_condenser_in_sensor_alarm", 32, onBoth),
	dinput("dinput_condenser_out_sensor_alarm", 33, onBoth),
	dinput("dinput_outdoor_sensor_alarm", 34, onBoth),
	dinput("dinput_system_supply_line_sensor_alarm", 35, onBoth),
	dinput("dinput_mix_valve_1_supply_line_sensor_alarm", 36, onBoth),
	dinput("dinput_tap_water_top_sensor_alarm", 43, onBoth),
	dinput("dinput_tap_water_lower_sensor_alarm", 44, onBoth),
	dinput("dinput_compressor_running", 49, onBoth),
	dinput("dinput_brine_pump_running", 50, onBoth),
	dinput("dinput_condenser_pump_running", 51, onBoth),

	// Input registers
	input("input_current_error", 0, 1, onBoth),
	input("input_outdoor_temperature", 13, 100, onBoth),
	input("input_tap_water_upper_temperature", 15, 100, onBoth),
	input("input_tap_water_lower_temperature", 16, 100, onBoth),
	input("input_tap_water_weighted_temperature", 17, 100, onBoth),
	input("input_system_supply_line_calculated_set_point", 18, 100, onBoth),
	input("input_selected_heat_curve", 19, 1, onBoth),
	input("input_system_supply_line_temperature", 5, 100, onBoth),
	input("input_condenser_out_temperature", 6, 100, onBoth),
	input("input_condenser_in_temperature", 7, 100, onBoth),
	input("input_brine_in_temperature", 8, 100, onBoth),
	input("input_brine_out_temperature", 9, 100, onBoth),
	input("input_discharge_pipe_temperature", 10, 100, onBoth),
	input("input_liquid_line_temperature", 11, 100, onBoth),
	input("input_suction_gas_temperature", 12, 100, onBoth),
	input("input_condenser_circulation_pump_speed", 39, 100, onBoth),
	input("input_mix_valve_1_supply_line_temperature", 40, 100, onBoth),
	input("input_buffer_tank_temperature", 41, 100, onBoth),
	input("input_mix_valve_1_position", 43, 100, onBoth),
	input("input_brine_circulation_pump_speed", 44, 100, onBoth),
	input("input_hgw_supply_line_temperature", 45, 100, onBoth),
	input("input_hot_water_directional_valve_position", 46, 100, onBoth),
	counter("input_compressor_operating_hours", 47, onBoth),
	counter("input_tap_water_operating_hours", 49, onBoth),
	counter("input_external_additional_heater_operating_hours", 51, onBoth),
	input("input_compressor_speed_percent", 53, 100, onInverter),
	input("input_first_prioritised_demand", 54, 1, onBoth),
	input("input_compressor_current_gear", 61, 1, onInverter),
	input("input_external_additional_heater_current_demand", 65, 1, onBoth),
	input("input_internal_additional_heater_current_step", 67, 1, onBoth),
	input("input_buffer_tank_charge_set_point", 68, 100, onMega),
	input("input_pool_return_line_temperature", 72, 100, onBoth),
	input("input_software_version_major", 108, 1, onBoth),
	input("input_software_version_minor", 109, 1, onBoth),
	input("input_software_version_micro", 110, 1, onBoth),
	input("input_indoor_temperature", 121, 100, onBoth),

	// Holding registers
	holding("holding_operational_mode", 0, 1, onBoth),
	holding("holding_max_limitation", 3, 100, onBoth),
	holding("holding_min_limitation", 4, 100, onBoth),
	holding("holding_comfort_wheel_setting", 5, 100, onBoth),
	holding("holding_heating_season_stop_temperature", 16, 100, onBoth),
	holding("holding_start_temperature_tap_water", 22, 100, onBoth),
	holding("holding_stop_temperature_tap_water", 23, 100, onBoth),
	holding("holding_minimum_allowed_gear_in_heating", 24, 1, onInverter),
	holding("holding_maximum_allowed_gear_in_heating", 25, 1, onInverter),
	holding("holding_maximum_allowed_gear_in_tap_water", 26, 1, onInverter),
	holding("holding_minimum_allowed_gear_in_tap_water", 27, 1, onInverter),
	holding("holding_cooling_mix_valve_set_point", 28, 100, onBoth),
	holding("holding_twc_mix_valve_set_point", 29, 100, onBoth),
	holding("holding_wcs_return_line_set_point", 30, 100, onBoth),
	holding("holding_twc_mix_valve_lowest_allowed_opening", 31, 1, onBoth),
	holding("holding_start_temperature_pool", 50, 100, onBoth),
	holding("holding_stop_temperature_pool", 51, 100, onBoth),
	holding("holding_minimum_allowed_compressor_speed_percent", 56, 1, onMega),
	holding("holding_maximum_allowed_compressor_speed_percent", 57, 1, onMega),
}

var registerIndex = func() map[string]Register {
	idx := make(map[string]Register, len(registerTable))
	for _, r := range registerTable {
		idx[r.Name] = r
	}
	return idx
}()

// Registers returns a copy of the register table sorted by name.
func Registers() []Register {
	out := make([]Register, len(registerTable))
	copy(out, registerTable)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the register definition for name.
// The derived Firmware register has no definition and is not returned.
func Lookup(name string) (Register, bool) {
	r, ok := registerIndex[name]
	return r, ok
}

// Known reports whether name is a table register or the derived Firmware register.
func Known(name string) bool {
	if name == Firmware {
		return true
	}
	_, ok := registerIndex[name]
	return ok
}

// Supported reports whether name can be read on the given kind.
func Supported(name string, k Kind) bool {
	if name == Firmware {
		return k == KindInverter || k == KindMega
	}
	r, ok := registerIndex[name]
	return ok && r.SupportedBy(k)
}
