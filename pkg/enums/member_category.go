package enums

import (
	"fmt"
	"strings"
)

// MemberCategory is the membership tier of a referring agent. It is fixed at
// creation and selects the code prefix and default commission rates.
type MemberCategory string

const (
	MemberCategoryGeneral  MemberCategory = "GENERAL"
	MemberCategoryLifetime MemberCategory = "LIFETIME"
	MemberCategoryPremium  MemberCategory = "PREMIUM"
)

var validMemberCategories = []MemberCategory{
	MemberCategoryGeneral,
	MemberCategoryLifetime,
	MemberCategoryPremium,
}

// MemberCategories lists every tier in display order.
func MemberCategories() []MemberCategory {
	out := make([]MemberCategory, len(validMemberCategories))
	copy(out, validMemberCategories)
	return out
}

// String implements fmt.Stringer.
func (c MemberCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known MemberCategory.
func (c MemberCategory) IsValid() bool {
	for _, candidate := range validMemberCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// DisplayName is the label shown on lookup screens and cards.
func (c MemberCategory) DisplayName() string {
	switch c {
	case MemberCategoryGeneral:
		return "General Member"
	case MemberCategoryLifetime:
		return "Lifetime Member"
	case MemberCategoryPremium:
		return "Premium Member"
	default:
		return string(c)
	}
}

// ColorCode is the card colour used by the front desk.
func (c MemberCategory) ColorCode() string {
	switch c {
	case MemberCategoryLifetime:
		return "blue"
	case MemberCategoryPremium:
		return "green"
	default:
		return "white"
	}
}

// ParseMemberCategory converts raw input into a MemberCategory. Matching is case-insensitive.
func ParseMemberCategory(value string) (MemberCategory, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validMemberCategories {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member category %q", value)
}
