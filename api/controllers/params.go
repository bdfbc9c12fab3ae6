package controllers

import (
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/diagcenter/pcledger/pkg/errors"
	"github.com/diagcenter/pcledger/pkg/money"
)

// parseRate converts an optional percentage string from a request body.
func parseRate(field string, raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	value, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid percentage").
			WithDetails(map[string]any{"field": field})
	}
	if err := money.ValidatePercentage(value); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()).
			WithDetails(map[string]any{"field": field})
	}
	return &value, nil
}

// actorOr prefers an explicit label from the body, falling back to the X-Actor header.
func actorOr(explicit *string, ctxActor string) *string {
	if explicit != nil {
		if trimmed := strings.TrimSpace(*explicit); trimmed != "" {
			return &trimmed
		}
	}
	if ctxActor == "" {
		return nil
	}
	return &ctxActor
}
