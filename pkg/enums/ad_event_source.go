package enums

import "fmt"

// AdEventSource identifies which client surface produced an engagement event.
type AdEventSource string

const (
	AdEventSourceProgrammatic AdEventSource = "programmatic"
	AdEventSourceAgent        AdEventSource = "agent"
)

var validAdEventSources = []AdEventSource{
	AdEventSourceProgrammatic,
	AdEventSourceAgent,
}

// String implements fmt.Stringer.
func (a AdEventSource) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AdEventSource.
func (a AdEventSource) IsValid() bool {
	for _, candidate := range validAdEventSources {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAdEventSource converts raw input into an AdEventSource, defaulting to programmatic.
func ParseAdEventSource(value string) (AdEventSource, error) {
	if value == "" {
		return AdEventSourceProgrammatic, nil
	}
	for _, candidate := range validAdEventSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ad event source %q", value)
}
