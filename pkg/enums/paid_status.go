package enums

import (
	"fmt"
	"strings"
)

// PaidStatus filters ledger reads by settlement state.
type PaidStatus string

const (
	PaidStatusAll    PaidStatus = "all"
	PaidStatusPaid   PaidStatus = "paid"
	PaidStatusUnpaid PaidStatus = "unpaid"
)

// String implements fmt.Stringer.
func (p PaidStatus) String() string {
	return string(p)
}

// ParsePaidStatus converts raw input into a PaidStatus; empty input means all.
func ParsePaidStatus(value string) (PaidStatus, error) {
	switch PaidStatus(strings.ToLower(strings.TrimSpace(value))) {
	case "", PaidStatusAll:
		return PaidStatusAll, nil
	case PaidStatusPaid:
		return PaidStatusPaid, nil
	case PaidStatusUnpaid:
		return PaidStatusUnpaid, nil
	}
	return "", fmt.Errorf("invalid paid status %q", value)
}
