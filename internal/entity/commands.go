package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Command names accepted by Apply.
const (
	CommandTurnOn         = "turn_on"
	CommandTurnOff        = "turn_off"
	CommandSetValue       = "set_value"
	CommandSetTemperature = "set_temperature"
	CommandSetHVACMode    = "set_hvac_mode"
	CommandRefresh        = "refresh"
)

// Apply dispatches a named command with loosely typed parameters, as they
// arrive from MQTT payloads or REST bodies.
//
// Parameters:
//   - command: One of the Command* constants
//   - params: "value" for set_value, "temperature", "target_temp_low" and
//     "target_temp_high" for set_temperature, "hvac_mode" for set_hvac_mode
//
// Returns:
//   - error: ErrNotWritable, ErrUnsupportedCommand or ErrInvalidParameters
//     for bad requests, otherwise whatever the adapter returns
func Apply(ctx context.Context, a *Adapter, command string, params map[string]any) error {
	if command == CommandRefresh {
		a.Refresh()
		return nil
	}
	if !a.Platform().Writable() {
		return fmt.Errorf("%w: %s is a %s", ErrNotWritable, a.Key(), a.Platform())
	}

	switch command {
	case CommandTurnOn:
		if a.Platform() == PlatformNumber {
			break
		}
		return a.TurnOn(ctx)

	case CommandTurnOff:
		if a.Platform() == PlatformNumber {
			break
		}
		return a.TurnOff(ctx)

	case CommandSetValue:
		if a.Platform() != PlatformNumber {
			break
		}
		v, ok, err := numberParam(params, "value")
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: value is required", ErrInvalidParameters)
		}
		return a.SetValue(ctx, v)

	case CommandSetTemperature:
		if a.Platform() != PlatformClimate {
			break
		}
		var req TemperatureRequest
		for key, dst := range map[string]**float64{
			"temperature":      &req.Target,
			"target_temp_low":  &req.Low,
			"target_temp_high": &req.High,
		} {
			v, ok, err := numberParam(params, key)
			if err != nil {
				return err
			}
			if ok {
				*dst = &v
			}
		}
		return a.SetTemperature(ctx, req)

	case CommandSetHVACMode:
		if a.Platform() != PlatformClimate {
			break
		}
		mode, ok := params["hvac_mode"].(string)
		if !ok || mode == "" {
			return fmt.Errorf("%w: hvac_mode is required", ErrInvalidParameters)
		}
		return a.SetHVACMode(ctx, strings.ToLower(mode))
	}

	return fmt.Errorf("%w: %q on %s", ErrUnsupportedCommand, command, a.Platform())
}

// numberParam extracts a numeric parameter. ok is false when key is absent.
func numberParam(params map[string]any, key string) (v float64, ok bool, err error) {
	raw, present := params[key]
	if !present || raw == nil {
		return 0, false, nil
	}
	switch n := raw.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case json.Number:
		f, perr := n.Float64()
		if perr != nil {
			return 0, false, fmt.Errorf("%w: %s: %w", ErrInvalidParameters, key, perr)
		}
		return f, true, nil
	case string:
		f, perr := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if perr != nil {
			return 0, false, fmt.Errorf("%w: %s: %w", ErrInvalidParameters, key, perr)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("%w: %s must be a number, got %T", ErrInvalidParameters, key, raw)
	}
}
