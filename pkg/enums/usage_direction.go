package enums

import "fmt"

// UsageDirection marks whether a usage event was authored by the user or the assistant.
type UsageDirection string

const (
	UsageDirectionUser      UsageDirection = "user"
	UsageDirectionAssistant UsageDirection = "assistant"
)

var validUsageDirections = []UsageDirection{
	UsageDirectionUser,
	UsageDirectionAssistant,
}

// IsValid reports whether the value matches the canonical usage direction enum.
func (u UsageDirection) IsValid() bool {
	for _, candidate := range validUsageDirections {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseUsageDirection converts the raw string to UsageDirection.
func ParseUsageDirection(value string) (UsageDirection, error) {
	for _, candidate := range validUsageDirections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid usage direction %q", value)
}
