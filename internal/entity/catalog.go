package entity

import "github.com/nerrad567/gray-logic-heatpump/internal/genesis"

// Units and classes shared by the catalog.
const (
	UnitCelsius = "°C"
	UnitPercent = "%"
	UnitHours   = "h"

	classTemperature = "temperature"
	classDuration    = "duration"
	classProblem     = "problem"
	classRunning     = "running"

	stateMeasurement     = "measurement"
	stateTotalIncreasing = "total_increasing"
)

// SummaryKey is the key of the aggregated heat pump sensor.
const SummaryKey = "heatpump"

func temperatureSensor(reg, label string, enabled bool) Descriptor {
	return Descriptor{
		Key: reg, Platform: PlatformSensor, Label: label, Icon: "mdi:thermometer",
		Unit: UnitCelsius, DeviceClass: classTemperature, StateClass: stateMeasurement,
		EnabledByDefault: enabled, Register: reg,
	}
}

func percentSensor(reg, label, icon string, enabled bool) Descriptor {
	return Descriptor{
		Key: reg, Platform: PlatformSensor, Label: label, Icon: icon,
		Unit: UnitPercent, StateClass: stateMeasurement,
		EnabledByDefault: enabled, Register: reg,
	}
}

func hoursSensor(reg, label string) Descriptor {
	return Descriptor{
		Key: reg, Platform: PlatformSensor, Label: label, Icon: "mdi:timer-outline",
		Unit: UnitHours, DeviceClass: classDuration, StateClass: stateTotalIncreasing,
		Category: CategoryDiagnostic, EnabledByDefault: true, Register: reg,
	}
}

func plainSensor(reg, label, icon string, cat Category) Descriptor {
	return Descriptor{
		Key: reg, Platform: PlatformSensor, Label: label, Icon: icon,
		StateClass: stateMeasurement, Category: cat, EnabledByDefault: true, Register: reg,
	}
}

func alarm(reg, label string, enabled bool) Descriptor {
	return Descriptor{
		Key: reg, Platform: PlatformBinarySensor, Label: label, DeviceClass: classProblem,
		Category: CategoryDiagnostic, EnabledByDefault: enabled, Register: reg,
	}
}

func running(reg, label string) Descriptor {
	return Descriptor{
		Key: reg, Platform: PlatformBinarySensor, Label: label, DeviceClass: classRunning,
		EnabledByDefault: true, Register: reg,
	}
}

func toggle(reg, label, icon string, enabled bool) Descriptor {
	return Descriptor{
		Key: reg, Platform: PlatformSwitch, Label: label, Icon: icon,
		Category: CategoryConfig, EnabledByDefault: enabled, Register: reg,
	}
}

func setpoint(reg, label string, min, max float64, enabled bool) Descriptor {
	return Descriptor{
		Key: reg, Platform: PlatformNumber, Label: label, Icon: "mdi:thermometer-lines",
		Unit: UnitCelsius, Category: CategoryConfig, EnabledByDefault: enabled, Register: reg,
		Min: ptr(min), Max: ptr(max), Step: ptr(0.5),
	}
}

func gear(reg, label string) Descriptor {
	return Descriptor{
		Key: reg, Platform: PlatformNumber, Label: label, Icon: "mdi:cog-outline",
		Category: CategoryConfig, EnabledByDefault: false, Register: reg,
		Min: ptr(1), Max: ptr(9), Step: ptr(1),
	}
}

// heatpumpAlarms light the summary sensor's alarm icon.
var heatpumpAlarms = []string{
	"dinput_alarm_active_class_a",
	"dinput_alarm_active_class_b",
	"dinput_alarm_active_class_c",
	"dinput_alarm_active_class_d",
	"dinput_alarm_active_class_e",
}

var heatpumpAttributes = []AttributeRef{
	{Register: "input_outdoor_temperature", Unit: UnitCelsius},
	{Register: "input_indoor_temperature", Unit: UnitCelsius},
	{Register: "input_system_supply_line_temperature", Unit: UnitCelsius},
	{Register: "input_system_supply_line_calculated_set_point", Unit: UnitCelsius},
	{Register: "input_tap_water_weighted_temperature", Unit: UnitCelsius},
	{Register: "input_brine_in_temperature", Unit: UnitCelsius},
	{Register: "input_brine_out_temperature", Unit: UnitCelsius},
	{Register: "input_compressor_speed_percent", Unit: UnitPercent},
	{Register: "input_compressor_operating_hours", Unit: UnitHours},
	{Register: "input_current_error"},
}

var catalog = []Descriptor{
	{
		Key: SummaryKey, Platform: PlatformSensor, Label: "Heatpump", Icon: "mdi:pulse",
		EnabledByDefault: true, Register: genesis.StatusRegister,
		Summary: &SummaryBinding{
			Attributes: heatpumpAttributes,
			Alarms:     heatpumpAlarms,
			Firmware:   genesis.Firmware,
		},
	},

	// Temperatures
	temperatureSensor("input_outdoor_temperature", "Outdoor temperature", true),
	temperatureSensor("input_indoor_temperature", "Indoor temperature", true),
	temperatureSensor("input_system_supply_line_temperature", "System supply line temperature", true),
	temperatureSensor("input_system_supply_line_calculated_set_point", "System supply line calculated set point", true),
	temperatureSensor("input_condenser_out_temperature", "Condenser out temperature", false),
	temperatureSensor("input_condenser_in_temperature", "Condenser in temperature", false),
	temperatureSensor("input_brine_in_temperature", "Brine in temperature", true),
	temperatureSensor("input_brine_out_temperature", "Brine out temperature", true),
	temperatureSensor("input_discharge_pipe_temperature", "Discharge pipe temperature", false),
	temperatureSensor("input_liquid_line_temperature", "Liquid line temperature", false),
	temperatureSensor("input_suction_gas_temperature", "Suction gas temperature", false),
	temperatureSensor("input_tap_water_upper_temperature", "Tap water upper temperature", true),
	temperatureSensor("input_tap_water_lower_temperature", "Tap water lower temperature", true),
	temperatureSensor("input_tap_water_weighted_temperature", "Tap water weighted temperature", true),
	temperatureSensor("input_mix_valve_1_supply_line_temperature", "Mix valve 1 supply line temperature", false),
	temperatureSensor("input_buffer_tank_temperature", "Buffer tank temperature", false),
	temperatureSensor("input_buffer_tank_charge_set_point", "Buffer tank charge set point", false),
	temperatureSensor("input_hgw_supply_line_temperature", "HGW supply line temperature", false),
	temperatureSensor("input_pool_return_line_temperature", "Pool return line temperature", false),

	// Speeds and positions
	percentSensor("input_compressor_speed_percent", "Compressor speed", "mdi:speedometer", true),
	percentSensor("input_condenser_circulation_pump_speed", "Condenser pump speed", "mdi:pump", true),
	percentSensor("input_brine_circulation_pump_speed", "Brine pump speed", "mdi:pump", true),
	percentSensor("input_mix_valve_1_position", "Mix valve 1 position", "mdi:valve", false),
	percentSensor("input_hot_water_directional_valve_position", "Hot water directional valve position", "mdi:valve", false),
	percentSensor("input_external_additional_heater_current_demand", "External additional heater demand", "mdi:radiator", false),

	// Counters and diagnostics
	hoursSensor("input_compressor_operating_hours", "Compressor operating hours"),
	hoursSensor("input_tap_water_operating_hours", "Tap water operating hours"),
	hoursSensor("input_external_additional_heater_operating_hours", "External additional heater operating hours"),
	plainSensor("input_current_error", "Current error", "mdi:alert-circle-outline", CategoryDiagnostic),
	plainSensor("input_selected_heat_curve", "Selected heat curve", "mdi:chart-bell-curve", CategoryNone),
	plainSensor("input_compressor_current_gear", "Compressor gear", "mdi:cog", CategoryNone),
	plainSensor("input_internal_additional_heater_current_step", "Internal additional heater step", "mdi:radiator", CategoryNone),
	plainSensor(genesis.StatusRegister, "Operational status", "mdi:state-machine", CategoryNone),
	{
		Key: genesis.Firmware, Platform: PlatformSensor, Label: "Firmware", Icon: "mdi:chip",
		Category: CategoryDiagnostic, EnabledByDefault: false, Register: genesis.Firmware,
	},

	// Alarms and run states
	alarm("dinput_alarm_active_class_a", "Alarm class A", true),
	alarm("dinput_alarm_active_class_b", "Alarm class B", true),
	alarm("dinput_alarm_active_class_c", "Alarm class C", true),
	alarm("dinput_alarm_active_class_d", "Alarm class D", true),
	alarm("dinput_alarm_active_class_e", "Alarm class E", true),
	alarm("dinput_high_pressure_switch_alarm", "High pressure switch alarm", false),
	alarm("dinput_low_pressure_level_alarm", "Low pressure level alarm", false),
	alarm("dinput_high_discharge_pipe_temperature_alarm", "High discharge pipe temperature alarm", false),
	alarm("dinput_flow_pressure_switch_alarm", "Flow pressure switch alarm", false),
	alarm("dinput_power_input_phase_detection_alarm", "Power input phase detection alarm", false),
	alarm("dinput_inverter_unit_alarm", "Inverter unit alarm", false),
	alarm("dinput_compressor_low_speed_alarm", "Compressor low speed alarm", false),
	alarm("dinput_brine_temperature_out_of_range_alarm", "Brine temperature out of range alarm", false),
	alarm("dinput_outdoor_sensor_alarm", "Outdoor sensor alarm", false),
	running("dinput_compressor_running", "Compressor running"),
	running("dinput_brine_pump_running", "Brine pump running"),
	running("dinput_condenser_pump_running", "Condenser pump running"),

	// Switches
	toggle("coil_enable_heat", "Enable heat", "mdi:radiator", true),
	toggle("coil_enable_tap_water", "Enable tap water", "mdi:water-boiler", true),
	toggle("coil_enable_pool", "Enable pool", "mdi:pool", false),
	toggle("coil_enable_active_cooling", "Enable active cooling", "mdi:snowflake", false),
	toggle("coil_enable_passive_cooling", "Enable passive cooling", "mdi:snowflake-variant", false),
	toggle("coil_enable_internal_additional_heater", "Enable internal additional heater", "mdi:heating-coil", true),
	toggle("coil_enable_external_additional_heater", "Enable external additional heater", "mdi:heating-coil", false),
	toggle("coil_enable_anti_legionella", "Enable anti legionella", "mdi:bacteria-outline", false),
	toggle("coil_enable_additional_heater_only", "Additional heater only", "mdi:heating-coil", false),
	toggle("coil_enable_hgw", "Enable HGW", "mdi:fire", false),
	toggle("coil_enable_mix_valve_1", "Enable mix valve 1", "mdi:valve", false),
	toggle("coil_enable_mix_valve_2", "Enable mix valve 2", "mdi:valve", false),
	toggle("coil_enable_surplus_heat_borehole", "Enable surplus heat to borehole", "mdi:arrow-collapse-down", false),
	toggle("coil_enable_fixed_system_supply_set_point", "Fixed system supply set point", "mdi:thermometer-check", false),
	toggle("coil_reset_all_alarms", "Reset all alarms", "mdi:alarm-off", false),

	// Numbers
	setpoint("holding_comfort_wheel_setting", "Comfort wheel setting", 5, 35, true),
	setpoint("holding_max_limitation", "Maximum supply line limitation", 0, 70, false),
	setpoint("holding_min_limitation", "Minimum supply line limitation", 0, 70, false),
	setpoint("holding_heating_season_stop_temperature", "Heating season stop temperature", -40, 40, false),
	setpoint("holding_start_temperature_tap_water", "Tap water start temperature", 20, 65, true),
	setpoint("holding_stop_temperature_tap_water", "Tap water stop temperature", 20, 65, true),
	setpoint("holding_start_temperature_pool", "Pool start temperature", 5, 40, false),
	setpoint("holding_stop_temperature_pool", "Pool stop temperature", 5, 40, false),
	setpoint("holding_cooling_mix_valve_set_point", "Cooling mix valve set point", 5, 30, false),
	gear("holding_minimum_allowed_gear_in_heating", "Minimum gear in heating"),
	gear("holding_maximum_allowed_gear_in_heating", "Maximum gear in heating"),
	gear("holding_minimum_allowed_gear_in_tap_water", "Minimum gear in tap water"),
	gear("holding_maximum_allowed_gear_in_tap_water", "Maximum gear in tap water"),
	{
		Key: "holding_minimum_allowed_compressor_speed_percent", Platform: PlatformNumber,
		Label: "Minimum compressor speed", Icon: "mdi:speedometer-slow", Unit: UnitPercent,
		Category: CategoryConfig, Register: "holding_minimum_allowed_compressor_speed_percent",
	},
	{
		Key: "holding_maximum_allowed_compressor_speed_percent", Platform: PlatformNumber,
		Label: "Maximum compressor speed", Icon: "mdi:speedometer", Unit: UnitPercent,
		Category: CategoryConfig, Register: "holding_maximum_allowed_compressor_speed_percent",
	},
	{
		Key: "holding_twc_mix_valve_lowest_allowed_opening", Platform: PlatformNumber,
		Label: "TWC mix valve lowest opening", Icon: "mdi:valve", Unit: UnitPercent,
		Category: CategoryConfig, Register: "holding_twc_mix_valve_lowest_allowed_opening",
	},

	// Climates
	{
		Key: "heating", Platform: PlatformClimate, Label: "Heating", Icon: "mdi:radiator",
		EnabledByDefault: true, Register: "coil_enable_heat",
		Climate: &ClimateBinding{
			CurrentTemperature: "input_indoor_temperature",
			TargetTemperature:  "holding_comfort_wheel_setting",
			Enabled:            "coil_enable_heat",
			Status:             genesis.StatusRegister,
			ActiveStatus:       genesis.StatusHeating,
			MinTemp:            5,
			MaxTemp:            35,
			Step:               0.5,
		},
	},
	{
		Key: "tap_water", Platform: PlatformClimate, Label: "Tap water", Icon: "mdi:water-boiler",
		EnabledByDefault: true, Register: "coil_enable_tap_water",
		Climate: &ClimateBinding{
			CurrentTemperature:    "input_tap_water_weighted_temperature",
			TargetTemperatureLow:  "holding_start_temperature_tap_water",
			TargetTemperatureHigh: "holding_stop_temperature_tap_water",
			Enabled:               "coil_enable_tap_water",
			Status:                genesis.StatusRegister,
			ActiveStatus:          genesis.StatusTapWater,
			MinTemp:               20,
			MaxTemp:               65,
		},
	},
	{
		Key: "pool", Platform: PlatformClimate, Label: "Pool", Icon: "mdi:pool",
		EnabledByDefault: false, Register: "coil_enable_pool",
		Climate: &ClimateBinding{
			CurrentTemperature:    "input_pool_return_line_temperature",
			TargetTemperatureLow:  "holding_start_temperature_pool",
			TargetTemperatureHigh: "holding_stop_temperature_pool",
			Enabled:               "coil_enable_pool",
			Status:                genesis.StatusRegister,
			ActiveStatus:          genesis.StatusPool,
			MinTemp:               5,
			MaxTemp:               40,
		},
	},
}

// Catalog returns every descriptor regardless of heat pump kind.
func Catalog() []Descriptor {
	out := make([]Descriptor, len(catalog))
	for i, d := range catalog {
		out[i] = d.clone()
	}
	return out
}

// ForKind returns the descriptors whose primary register exists on kind.
// Summary attributes the kind cannot provide are dropped.
func ForKind(kind genesis.Kind) []Descriptor {
	out := make([]Descriptor, 0, len(catalog))
	for _, d := range catalog {
		if !genesis.Supported(d.Register, kind) {
			continue
		}
		d = d.clone()
		if d.Summary != nil {
			s := *d.Summary
			s.Attributes = nil
			for _, a := range d.Summary.Attributes {
				if genesis.Supported(a.Register, kind) {
					s.Attributes = append(s.Attributes, a)
				}
			}
			d.Summary = &s
		}
		out = append(out, d)
	}
	return out
}
