package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name       string
		gross      string
		percentage string
		commission string
		admin      string
	}{
		{name: "whole", gross: "1000.00", percentage: "20", commission: "200.00", admin: "800.00"},
		{name: "second referral", gross: "250.00", percentage: "20", commission: "50.00", admin: "200.00"},
		{name: "rounds half up", gross: "0.05", percentage: "50", commission: "0.03", admin: "0.02"},
		{name: "thirds", gross: "100.00", percentage: "33.33", commission: "33.33", admin: "66.67"},
		{name: "zero rate", gross: "199.99", percentage: "0", commission: "0.00", admin: "199.99"},
		{name: "full rate", gross: "199.99", percentage: "100", commission: "199.99", admin: "0.00"},
		{name: "odd cents", gross: "333.33", percentage: "15", commission: "50.00", admin: "283.33"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commission, admin := Split(decimal.RequireFromString(tt.gross), decimal.RequireFromString(tt.percentage))
			assert.True(t, commission.Equal(decimal.RequireFromString(tt.commission)), "commission %s", commission)
			assert.True(t, admin.Equal(decimal.RequireFromString(tt.admin)), "admin %s", admin)
		})
	}
}

func TestSplitIsExactAcrossRange(t *testing.T) {
	rates := []string{"0", "7.5", "12.25", "15", "20", "25", "33.33", "99.99", "100"}
	for cents := int64(1); cents <= 50000; cents += 37 {
		gross := decimal.New(cents, -2)
		for _, r := range rates {
			commission, admin := Split(gross, decimal.RequireFromString(r))
			require.True(t, commission.Add(admin).Equal(gross), "gross %s rate %s", gross, r)
			require.True(t, commission.Equal(commission.Round(Scale)), "commission %s not at currency scale", commission)
			require.True(t, admin.Equal(admin.Round(Scale)), "admin %s not at currency scale", admin)
		}
	}
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount(" 1000.50 ")
	require.NoError(t, err)
	assert.Equal(t, "1000.50", Format(v))

	_, err = ParseAmount("10.005")
	require.Error(t, err)

	_, err = ParseAmount("ten")
	require.Error(t, err)
}

func TestValidatePercentage(t *testing.T) {
	require.NoError(t, ValidatePercentage(decimal.Zero))
	require.NoError(t, ValidatePercentage(decimal.NewFromInt(100)))
	require.NoError(t, ValidatePercentage(decimal.RequireFromString("12.5")))
	require.Error(t, ValidatePercentage(decimal.NewFromInt(-1)))
	require.Error(t, ValidatePercentage(decimal.RequireFromString("100.01")))
	require.Error(t, ValidatePercentage(decimal.RequireFromString("12.345")))
}

func TestNormalizeAndFormat(t *testing.T) {
	v := decimal.NewFromFloat(250.35000000000002)
	assert.Equal(t, "250.35", Format(Normalize(v)))
	assert.Equal(t, "0.00", Format(decimal.Zero))
}
