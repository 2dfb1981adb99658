package enums

import "fmt"

// AdEventType describes the allowed values for the `type` column in ad_events.
type AdEventType string

const (
	AdEventTypeImpression AdEventType = "impression"
	AdEventTypeClick      AdEventType = "click"
)

var validAdEventTypes = []AdEventType{
	AdEventTypeImpression,
	AdEventTypeClick,
}

// String implements fmt.Stringer.
func (a AdEventType) String() string {
	return string(a)
}

// IsValid reports whether the value matches the canonical ad event type enum.
func (a AdEventType) IsValid() bool {
	for _, candidate := range validAdEventTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAdEventType converts the raw string to AdEventType.
func ParseAdEventType(value string) (AdEventType, error) {
	for _, candidate := range validAdEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ad event type %q", value)
}
