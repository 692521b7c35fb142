package entity

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-heatpump/internal/coordinator"
)

// HVAC actions and modes reported by climate entities.
const (
	HVACActionOff     = "off"
	HVACActionHeating = "heating"
	HVACActionIdle    = "idle"

	HVACModeOff  = "off"
	HVACModeHeat = "heat"
	HVACModeAuto = "auto"
)

// Climate feature bits, numbered the way Home Assistant numbers them.
const (
	FeatureTargetTemperature      = 1
	FeatureTargetTemperatureRange = 2
	FeatureTurnOff                = 128
	FeatureTurnOn                 = 256
)

// TemperatureRequest carries the setpoints to change. Nil fields are left alone.
type TemperatureRequest struct {
	Low    *float64
	High   *float64
	Target *float64
}

func (a *Adapter) climate() (*ClimateBinding, error) {
	if a.desc.Platform != PlatformClimate || a.desc.Climate == nil {
		return nil, fmt.Errorf("%w: %s is not a climate", ErrNotSupported, a.desc.Key)
	}
	return a.desc.Climate, nil
}

func (a *Adapter) currentTemperature(data coordinator.Snapshot) (any, bool) {
	c := a.desc.Climate
	if c == nil || c.CurrentTemperature == "" {
		return nil, false
	}
	return data.Get(c.CurrentTemperature)
}

// enabled returns the circuit's enable flag. An unknown flag counts as off.
func (a *Adapter) enabled(data coordinator.Snapshot) bool {
	on, _ := data[a.desc.Climate.Enabled].(bool)
	return on
}

func (a *Adapter) active(data coordinator.Snapshot) bool {
	code, ok := asInt(data[a.desc.Climate.Status])
	return ok && code == a.desc.Climate.ActiveStatus
}

// HVACAction returns off while the circuit is disabled or its flag is
// unknown, heating while the status code matches the circuit, else idle.
func (a *Adapter) HVACAction() string {
	if _, err := a.climate(); err != nil {
		return HVACActionOff
	}
	data := a.src.Data()
	switch {
	case !a.enabled(data):
		return HVACActionOff
	case a.active(data):
		return HVACActionHeating
	default:
		return HVACActionIdle
	}
}

// HVACMode mirrors HVACAction using mode names.
func (a *Adapter) HVACMode() string {
	switch a.HVACAction() {
	case HVACActionHeating:
		return HVACModeHeat
	case HVACActionIdle:
		return HVACModeAuto
	default:
		return HVACModeOff
	}
}

// HVACModes returns the modes a user may select.
func (a *Adapter) HVACModes() []string {
	return []string{HVACModeOff, HVACModeAuto}
}

// SetHVACMode enables the circuit for auto and disables it for off.
func (a *Adapter) SetHVACMode(ctx context.Context, mode string) error {
	if _, err := a.climate(); err != nil {
		return err
	}
	switch mode {
	case HVACModeOff:
		return a.TurnOff(ctx)
	case HVACModeAuto:
		return a.TurnOn(ctx)
	default:
		return fmt.Errorf("%w: hvac mode %q", ErrNotSupported, mode)
	}
}

// SupportedFeatures returns the feature bitmask derived from the bindings.
func (a *Adapter) SupportedFeatures() int {
	c, err := a.climate()
	if err != nil {
		return 0
	}
	features := 0
	if c.TargetTemperature != "" {
		features |= FeatureTargetTemperature
	}
	if c.TargetTemperatureLow != "" && c.TargetTemperatureHigh != "" {
		features |= FeatureTargetTemperatureRange
	}
	if c.Enabled != "" {
		features |= FeatureTurnOn | FeatureTurnOff
	}
	return features
}

// MinTemp returns the lowest settable temperature.
func (a *Adapter) MinTemp() float64 {
	if a.desc.Climate == nil {
		return 0
	}
	return a.desc.Climate.MinTemp
}

// MaxTemp returns the highest settable temperature.
func (a *Adapter) MaxTemp() float64 {
	if a.desc.Climate == nil {
		return 0
	}
	return a.desc.Climate.MaxTemp
}

// TemperatureStep returns the setpoint increment, 1 unless configured.
func (a *Adapter) TemperatureStep() float64 {
	if a.desc.Climate == nil || a.desc.Climate.Step <= 0 {
		return 1
	}
	return a.desc.Climate.Step
}

type setpointWrite struct {
	register string
	value    float64
}

// SetTemperature writes the requested setpoints in the order low, high,
// target.
//
// Every value is validated before the first write. Writing stops at the
// first failure and nothing already written is reverted.
//
// Returns:
//   - error: ErrInvalidParameters or ErrOutOfRange before any write,
//     *PartialWriteError when some setpoints were applied before a failure,
//     otherwise the write error itself
func (a *Adapter) SetTemperature(ctx context.Context, req TemperatureRequest) error {
	c, err := a.climate()
	if err != nil {
		return err
	}

	var plan []setpointWrite
	add := func(field, register string, v *float64) error {
		if v == nil {
			return nil
		}
		if register == "" {
			return fmt.Errorf("%w: %s has no %s setpoint", ErrInvalidParameters, a.desc.Key, field)
		}
		if *v < c.MinTemp || *v > c.MaxTemp {
			return fmt.Errorf("%w: %s %s %v not in [%v, %v]", ErrOutOfRange, a.desc.Key, field, *v, c.MinTemp, c.MaxTemp)
		}
		plan = append(plan, setpointWrite{register: register, value: *v})
		return nil
	}

	if err := add("low", c.TargetTemperatureLow, req.Low); err != nil {
		return err
	}
	if err := add("high", c.TargetTemperatureHigh, req.High); err != nil {
		return err
	}
	if err := add("target", c.TargetTemperature, req.Target); err != nil {
		return err
	}
	if req.Low != nil && req.High != nil && *req.Low > *req.High {
		return fmt.Errorf("%w: %s low %v above high %v", ErrInvalidParameters, a.desc.Key, *req.Low, *req.High)
	}
	if len(plan) == 0 {
		return fmt.Errorf("%w: no temperature given", ErrInvalidParameters)
	}

	applied := make([]string, 0, len(plan))
	for _, w := range plan {
		if err := a.src.Write(ctx, w.register, w.value); err != nil {
			if len(applied) == 0 {
				return err
			}
			return &PartialWriteError{Applied: applied, Failed: w.register, Err: err}
		}
		applied = append(applied, w.register)
	}
	return nil
}

func (a *Adapter) climateAttributes(data coordinator.Snapshot) map[string]any {
	c := a.desc.Climate
	if c == nil {
		return nil
	}
	attrs := map[string]any{
		"hvac_action":        a.HVACAction(),
		"hvac_mode":          a.HVACMode(),
		"hvac_modes":         a.HVACModes(),
		"min_temp":           c.MinTemp,
		"max_temp":           a.MaxTemp(),
		"target_temp_step":   a.TemperatureStep(),
		"supported_features": a.SupportedFeatures(),
	}
	setpoint := func(key, register string) {
		if register == "" {
			return
		}
		if v, ok := asFloat(data[register]); ok {
			attrs[key] = v
		}
	}
	setpoint("temperature", c.TargetTemperature)
	setpoint("target_temp_low", c.TargetTemperatureLow)
	setpoint("target_temp_high", c.TargetTemperatureHigh)
	return attrs
}
