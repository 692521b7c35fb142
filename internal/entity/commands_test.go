package entity

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		command string
		params  map[string]any
		want    []write
		wantErr error
	}{
		{
			name: "switch on", key: "coil_enable_heat", command: CommandTurnOn,
			want: []write{{"coil_enable_heat", true}},
		},
		{
			name: "switch off", key: "coil_enable_heat", command: CommandTurnOff,
			want: []write{{"coil_enable_heat", false}},
		},
		{
			name: "number from float", key: "holding_comfort_wheel_setting", command: CommandSetValue,
			params: map[string]any{"value": 21.0},
			want:   []write{{"holding_comfort_wheel_setting", 21.0}},
		},
		{
			name: "number from string", key: "holding_comfort_wheel_setting", command: CommandSetValue,
			params: map[string]any{"value": " 22.5 "},
			want:   []write{{"holding_comfort_wheel_setting", 22.5}},
		},
		{
			name: "number from json.Number", key: "holding_comfort_wheel_setting", command: CommandSetValue,
			params: map[string]any{"value": json.Number("20")},
			want:   []write{{"holding_comfort_wheel_setting", 20.0}},
		},
		{
			name: "number missing value", key: "holding_comfort_wheel_setting", command: CommandSetValue,
			wantErr: ErrInvalidParameters,
		},
		{
			name: "number bad value", key: "holding_comfort_wheel_setting", command: CommandSetValue,
			params: map[string]any{"value": "warm"}, wantErr: ErrInvalidParameters,
		},
		{
			name: "number wrong type", key: "holding_comfort_wheel_setting", command: CommandSetValue,
			params: map[string]any{"value": true}, wantErr: ErrInvalidParameters,
		},
		{
			name: "number turn on", key: "holding_comfort_wheel_setting", command: CommandTurnOn,
			wantErr: ErrUnsupportedCommand,
		},
		{
			name: "climate range", key: "tap_water", command: CommandSetTemperature,
			params: map[string]any{"target_temp_low": 40.0, "target_temp_high": 50},
			want: []write{
				{"holding_start_temperature_tap_water", 40.0},
				{"holding_stop_temperature_tap_water", 50.0},
			},
		},
		{
			name: "climate target", key: "heating", command: CommandSetTemperature,
			params: map[string]any{"temperature": 21.0},
			want:   []write{{"holding_comfort_wheel_setting", 21.0}},
		},
		{
			name: "climate mode", key: "heating", command: CommandSetHVACMode,
			params: map[string]any{"hvac_mode": "AUTO"},
			want:   []write{{"coil_enable_heat", true}},
		},
		{
			name: "climate mode missing", key: "heating", command: CommandSetHVACMode,
			wantErr: ErrInvalidParameters,
		},
		{
			name: "sensor", key: "input_outdoor_temperature", command: CommandTurnOn,
			wantErr: ErrNotWritable,
		},
		{
			name: "switch set_value", key: "coil_enable_heat", command: CommandSetValue,
			params: map[string]any{"value": 1.0}, wantErr: ErrUnsupportedCommand,
		},
		{
			name: "unknown command", key: "coil_enable_heat", command: "explode",
			wantErr: ErrUnsupportedCommand,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource()
			a := NewAdapter(descriptor(t, tt.key), src, "m")

			err := Apply(context.Background(), a, tt.command, tt.params)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, src.writes)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, src.writes)
		})
	}
}

func TestApply_RefreshOnAnyPlatform(t *testing.T) {
	src := newFakeSource()
	a := NewAdapter(descriptor(t, "input_outdoor_temperature"), src, "m")

	require.NoError(t, Apply(context.Background(), a, CommandRefresh, nil))
	assert.Equal(t, 1, src.refreshes)
}
