package heatpump

import (
	"github.com/nerrad567/gray-logic-heatpump/internal/entity"
	"github.com/nerrad567/gray-logic-heatpump/internal/infrastructure/mqtt"
)

// DiscoveryNodeID is the node segment of every Home Assistant discovery topic.
const DiscoveryNodeID = "thermiagenesis"

// Set topic attributes.
const (
	AttrState      = "state"
	AttrValue      = "value"
	AttrMode       = "mode"
	AttrTemp       = "temperature"
	AttrTempLow    = "target_temp_low"
	AttrTempHigh   = "target_temp_high"
	payloadOn      = "ON"
	payloadOff     = "OFF"
	tplValue       = "{{ value_json.value }}"
	tplOnOff       = "{{ 'ON' if value_json.value else 'OFF' }}"
	tplAttributes  = "{{ value_json.attributes | tojson }}"
	tplAvailStatus = "{{ value_json.status }}"
)

// HADiscovery holds the settings for Home Assistant MQTT discovery.
type HADiscovery struct {
	// Prefix is the discovery topic root, usually "homeassistant".
	Prefix string

	// StatusTopic is the MQTT client's process status topic. Entities are
	// unavailable while it reports offline.
	StatusTopic string
}

// Configs builds one retained discovery payload per entity, keyed by topic.
// Payloads use Home Assistant's abbreviated keys and point every state
// template at the bridge's JSON state topic.
func (d HADiscovery) Configs(device entity.DeviceInfo, adapters []*entity.Adapter) map[string]map[string]any {
	dev := map[string]any{
		"ids":  device.Identifiers,
		"name": device.Name,
		"mf":   device.Manufacturer,
		"mdl":  device.Model,
	}
	if device.SWVersion != "" {
		dev["sw"] = device.SWVersion
	}

	out := make(map[string]map[string]any, len(adapters))
	for _, a := range adapters {
		desc := a.Descriptor()
		stateTopic := topics.State(a.UniqueID())

		cfg := map[string]any{
			"name":          a.Name(),
			"uniq_id":       a.UniqueID(),
			"obj_id":        a.UniqueID(),
			"stat_t":        stateTopic,
			"json_attr_t":   stateTopic,
			"json_attr_tpl": tplAttributes,
			"avty": []map[string]string{
				{"t": d.StatusTopic, "val_tpl": tplAvailStatus},
				{"t": topics.Availability()},
			},
			"avty_mode": "all",
			"dev":       dev,
			"en":        desc.EnabledByDefault,
		}
		if desc.Icon != "" {
			cfg["ic"] = desc.Icon
		}
		if desc.Category != entity.CategoryNone {
			cfg["ent_cat"] = string(desc.Category)
		}
		if desc.DeviceClass != "" {
			cfg["dev_cla"] = desc.DeviceClass
		}

		switch desc.Platform {
		case entity.PlatformSensor:
			cfg["val_tpl"] = tplValue
			if desc.Unit != "" {
				cfg["unit_of_meas"] = desc.Unit
			}
			if desc.StateClass != "" {
				cfg["stat_cla"] = desc.StateClass
			}

		case entity.PlatformBinarySensor:
			cfg["val_tpl"] = tplOnOff
			cfg["pl_on"] = payloadOn
			cfg["pl_off"] = payloadOff

		case entity.PlatformSwitch:
			cfg["val_tpl"] = tplOnOff
			cfg["cmd_t"] = topics.Set(desc.Key, AttrState)
			cfg["pl_on"] = payloadOn
			cfg["pl_off"] = payloadOff
			cfg["stat_on"] = payloadOn
			cfg["stat_off"] = payloadOff

		case entity.PlatformNumber:
			r := a.Range()
			cfg["val_tpl"] = tplValue
			cfg["cmd_t"] = topics.Set(desc.Key, AttrValue)
			cfg["min"] = r.Min
			cfg["max"] = r.Max
			cfg["step"] = r.Step
			cfg["mode"] = "box"
			if desc.Unit != "" {
				cfg["unit_of_meas"] = desc.Unit
			}

		case entity.PlatformClimate:
			delete(cfg, "stat_t")
			climateConfig(cfg, a, stateTopic)
		}

		topic := mqtt.DiscoveryConfigTopic(d.Prefix, string(desc.Platform), DiscoveryNodeID, desc.Key)
		out[topic] = cfg
	}
	return out
}

func climateConfig(cfg map[string]any, a *entity.Adapter, stateTopic string) {
	c := a.Descriptor().Climate
	key := a.Key()

	cfg["curr_temp_t"] = stateTopic
	cfg["curr_temp_tpl"] = tplValue
	cfg["mode_stat_t"] = stateTopic
	cfg["mode_stat_tpl"] = "{{ 'off' if value_json.attributes.hvac_mode == 'off' else 'auto' }}"
	cfg["mode_cmd_t"] = topics.Set(key, AttrMode)
	cfg["modes"] = a.HVACModes()
	cfg["act_t"] = stateTopic
	cfg["act_tpl"] = "{{ value_json.attributes.hvac_action }}"
	cfg["min_temp"] = a.MinTemp()
	cfg["max_temp"] = a.MaxTemp()
	cfg["temp_step"] = a.TemperatureStep()
	cfg["temp_unit"] = "C"

	if c == nil {
		return
	}
	if c.TargetTemperature != "" {
		cfg["temp_cmd_t"] = topics.Set(key, AttrTemp)
		cfg["temp_stat_t"] = stateTopic
		cfg["temp_stat_tpl"] = "{{ value_json.attributes.temperature }}"
	}
	if c.TargetTemperatureLow != "" && c.TargetTemperatureHigh != "" {
		cfg["temp_lo_cmd_t"] = topics.Set(key, AttrTempLow)
		cfg["temp_lo_stat_t"] = stateTopic
		cfg["temp_lo_stat_tpl"] = "{{ value_json.attributes.target_temp_low }}"
		cfg["temp_hi_cmd_t"] = topics.Set(key, AttrTempHigh)
		cfg["temp_hi_stat_t"] = stateTopic
		cfg["temp_hi_stat_tpl"] = "{{ value_json.attributes.target_temp_high }}"
	}
}
