package integration

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-heatpump/internal/genesis"
)

// UniqueID identifies the single heat pump entry. Only one may be configured.
const UniqueID = "thermiagenesis"

// Form error codes, keyed by field name in FormResult.Errors.
const (
	ErrCodeWrongHost       = "wrong_host"
	ErrCodeUnknownType     = "unknown_type"
	ErrCodeConnectionError = "connection_error"
	ErrCodeUnknown         = "unknown"

	AbortAlreadyConfigured = "already_configured"

	// FieldBase holds errors that do not belong to one field.
	FieldBase = "base"
)

// Input is the user-facing setup form.
type Input struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	Type string `json:"type" yaml:"type"`
}

// FormResult is the outcome of validating an Input.
type FormResult struct {
	// Title is the device model. Set only on success.
	Title string `json:"title,omitempty"`

	// Data is the normalised input. Set only on success.
	Data *Input `json:"data,omitempty"`

	// Errors maps a field name or FieldBase to an error code.
	Errors map[string]string `json:"errors,omitempty"`

	// Abort is set when the form cannot proceed at all.
	Abort string `json:"abort,omitempty"`
}

// OK reports whether validation succeeded.
func (r FormResult) OK() bool {
	return r.Abort == "" && len(r.Errors) == 0 && r.Data != nil
}

// HostValid reports whether host is an IP address or a hostname made of
// non-empty labels of letters, digits and hyphens.
func HostValid(host string) bool {
	if host == "" {
		return false
	}
	if net.ParseIP(host) != nil {
		return true
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" {
			return false
		}
		for _, r := range label {
			isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			if !isAlnum && r != '-' {
				return false
			}
		}
	}
	return true
}

// ValidateInput checks the form fields and performs one live read of the
// firmware version to prove the device answers.
//
// Parameters:
//   - ctx: Bounds the live read
//   - input: Raw form values; Port 0 and empty Type take defaults
//   - dialer: Opens the device connection; nil uses DialDevice
//
// Returns:
//   - FormResult: Title and Data on success, otherwise Errors
func ValidateInput(ctx context.Context, input Input, dialer Dialer) FormResult {
	if dialer == nil {
		dialer = DialDevice
	}

	input.Host = strings.TrimSpace(input.Host)
	if input.Port == 0 {
		input.Port = genesis.DefaultPort
	}
	if input.Type == "" {
		input.Type = string(genesis.KindInverter)
	}

	if !HostValid(input.Host) {
		return FormResult{Errors: map[string]string{"host": ErrCodeWrongHost}}
	}
	kind, err := genesis.ParseKind(input.Type)
	if err != nil {
		return FormResult{Errors: map[string]string{"type": ErrCodeUnknownType}}
	}
	input.Type = string(kind)

	dev, err := dialer(genesis.Config{Host: input.Host, Port: input.Port, Kind: kind})
	if err != nil {
		return FormResult{Errors: map[string]string{FieldBase: errorCode(err)}}
	}
	defer dev.Close() //nolint:errcheck

	if _, err := dev.Fetch(ctx, []string{genesis.Firmware}); err != nil {
		return FormResult{Errors: map[string]string{FieldBase: errorCode(err)}}
	}

	return FormResult{Title: kind.Model(), Data: &input}
}

func errorCode(err error) string {
	if errors.Is(err, genesis.ErrConnectivity) {
		return ErrCodeConnectionError
	}
	return ErrCodeUnknown
}

// Flow runs the setup form and remembers which unique ids are configured.
type Flow struct {
	dialer Dialer

	mu         sync.Mutex
	configured map[string]bool
}

// NewFlow creates a config flow. A nil dialer uses DialDevice.
func NewFlow(dialer Dialer) *Flow {
	return &Flow{dialer: dialer, configured: make(map[string]bool)}
}

// Submit validates input and, on success, claims UniqueID. A second
// successful submission aborts with already_configured.
func (f *Flow) Submit(ctx context.Context, input Input) FormResult {
	if f.IsConfigured(UniqueID) {
		return FormResult{Abort: AbortAlreadyConfigured}
	}

	res := ValidateInput(ctx, input, f.dialer)
	if !res.OK() {
		return res
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configured[UniqueID] {
		return FormResult{Abort: AbortAlreadyConfigured}
	}
	f.configured[UniqueID] = true
	return res
}

// MarkConfigured records an entry created outside the form, such as one
// loaded from the configuration file.
func (f *Flow) MarkConfigured(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configured[id] = true
}

// Forget releases id so it may be configured again.
func (f *Flow) Forget(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.configured, id)
}

// IsConfigured reports whether id has been claimed.
func (f *Flow) IsConfigured(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configured[id]
}
