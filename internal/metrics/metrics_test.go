package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func family(t *testing.T, c *Collector, name string) *dto.MetricFamily {
	t.Helper()
	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestObserveFetch(t *testing.T) {
	c := New()

	c.ObserveFetch(200*time.Millisecond, 10, nil)
	c.ObserveFetch(time.Second, 10, nil)

	f := family(t, c, "thermiagenesis_available")
	if f == nil || f.GetMetric()[0].GetGauge().GetValue() != 1 {
		t.Fatalf("available = %v, want 1", f)
	}

	c.ObserveFetch(5*time.Second, 10, errors.New("timeout"))

	if got := family(t, c, "thermiagenesis_available").GetMetric()[0].GetGauge().GetValue(); got != 0 {
		t.Errorf("available after failure = %v, want 0", got)
	}

	counts := map[string]float64{}
	for _, m := range family(t, c, "thermiagenesis_fetches_total").GetMetric() {
		counts[labelValue(m, "result")] = m.GetCounter().GetValue()
	}
	if counts["ok"] != 2 || counts["error"] != 1 {
		t.Errorf("fetches_total = %v, want ok=2 error=1", counts)
	}

	h := family(t, c, "thermiagenesis_fetch_duration_seconds").GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 3 {
		t.Errorf("histogram count = %d, want 3", h.GetSampleCount())
	}
	if ts := family(t, c, "thermiagenesis_last_success_timestamp_seconds").GetMetric()[0].GetGauge().GetValue(); ts == 0 {
		t.Error("last_success_timestamp_seconds not set")
	}
}

func TestObserveWrite(t *testing.T) {
	c := New()

	c.ObserveWrite("coil_enable_heat", nil)
	c.ObserveWrite("coil_enable_heat", errors.New("exception"))
	c.ObserveWrite("holding_comfort_wheel_setting", nil)

	f := family(t, c, "thermiagenesis_writes_total")
	if f == nil {
		t.Fatal("writes_total not gathered")
	}
	if len(f.GetMetric()) != 3 {
		t.Errorf("writes_total series = %d, want 3", len(f.GetMetric()))
	}
}

func TestUpdate(t *testing.T) {
	c := New()

	c.Update(map[string]any{
		"input_outdoor_temperature": -2.5,
		"coil_enable_heat":          true,
		"input_current_error":       0,
		"firmware":                  "1.2.3",
	}, 4)

	values := map[string]float64{}
	for _, m := range family(t, c, "thermiagenesis_register_value").GetMetric() {
		values[labelValue(m, "register")] = m.GetGauge().GetValue()
	}
	want := map[string]float64{
		"input_outdoor_temperature": -2.5,
		"coil_enable_heat":          1,
		"input_current_error":       0,
	}
	if len(values) != len(want) {
		t.Fatalf("register_value = %v, want %v", values, want)
	}
	for k, v := range want {
		if values[k] != v {
			t.Errorf("register_value{%s} = %v, want %v", k, values[k], v)
		}
	}
	if got := family(t, c, "thermiagenesis_interest_registers").GetMetric()[0].GetGauge().GetValue(); got != 4 {
		t.Errorf("interest_registers = %v, want 4", got)
	}

	// A later snapshot without the temperature drops its series.
	c.Update(map[string]any{"coil_enable_heat": false}, 1)
	if n := len(family(t, c, "thermiagenesis_register_value").GetMetric()); n != 1 {
		t.Errorf("series after second update = %d, want 1", n)
	}
}

func TestHandler(t *testing.T) {
	c := New()
	c.ObserveFetch(time.Second, 1, nil)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	for _, name := range []string{"thermiagenesis_fetches_total", "go_goroutines"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("exposition missing %s", name)
		}
	}
}

func TestNumeric(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{true, 1, true},
		{false, 0, true},
		{7, 7, true},
		{int64(-3), -3, true},
		{float32(1.5), 1.5, true},
		{2.25, 2.25, true},
		{"1.0", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := Numeric(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Numeric(%v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
