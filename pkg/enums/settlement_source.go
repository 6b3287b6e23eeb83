package enums

import "fmt"

// SettlementSource identifies which path triggered settlement.
type SettlementSource string

const (
	SettlementSourceWebhook  SettlementSource = "webhook"
	SettlementSourceRedirect SettlementSource = "redirect"
)

var validSettlementSources = []SettlementSource{
	SettlementSourceWebhook,
	SettlementSourceRedirect,
}

// String implements fmt.Stringer.
func (s SettlementSource) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SettlementSource.
func (s SettlementSource) IsValid() bool {
	for _, candidate := range validSettlementSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSettlementSource converts raw input into a SettlementSource.
func ParseSettlementSource(value string) (SettlementSource, error) {
	for _, candidate := range validSettlementSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid settlement source %q", value)
}
