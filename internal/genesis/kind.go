package genesis

import (
	"fmt"
	"strings"
)

// Kind identifies the Genesis controller variant. The two variants share
// one register map but each exposes a different subset of it.
type Kind string

const (
	KindInverter Kind = "inverter"
	KindMega     Kind = "mega"
)

// ParseKind converts a configuration string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindInverter:
		return KindInverter, nil
	case KindMega:
		return KindMega, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
	}
}

// Model returns the marketing name reported as the device model.
func (k Kind) Model() string {
	if k == KindMega {
		return "Thermia Mega"
	}
	return "Diplomat Inverter Duo"
}

func (k Kind) String() string { return string(k) }
