package enums

import (
	"fmt"
	"strings"
)

// ServiceType selects a differentiated commission rate. The empty value means
// the member's default rate applies.
type ServiceType string

const (
	ServiceTypeDefault ServiceType = ""
	ServiceTypeNormal  ServiceType = "normal"
	ServiceTypeDigital ServiceType = "digital"
)

var validServiceTypes = []ServiceType{
	ServiceTypeDefault,
	ServiceTypeNormal,
	ServiceTypeDigital,
}

// String implements fmt.Stringer.
func (s ServiceType) String() string {
	return string(s)
}

// Label is used for metric labels and exports where an empty string is unhelpful.
func (s ServiceType) Label() string {
	if s == ServiceTypeDefault {
		return "default"
	}
	return string(s)
}

// IsValid reports whether the value is a known ServiceType.
func (s ServiceType) IsValid() bool {
	for _, candidate := range validServiceTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseServiceType converts raw input into a ServiceType. "default" maps to the empty value.
func ParseServiceType(value string) (ServiceType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "default" {
		return ServiceTypeDefault, nil
	}
	for _, candidate := range validServiceTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid service type %q", value)
}
