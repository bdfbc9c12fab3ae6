package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/diagcenter/pcledger/pkg/errors"
)

type amountPayload struct {
	Code   string  `json:"pc_code" validate:"required"`
	Amount string  `json:"amount" validate:"required,decimal2"`
	Notes  *string `json:"notes,omitempty" validate:"omitempty,max=10"`
}

func TestDecodeJSONBody(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"ok", `{"pc_code":"10001","amount":"250.50"}`, ""},
		{"missing code", `{"amount":"1"}`, "pc_code"},
		{"three places", `{"pc_code":"10001","amount":"1.005"}`, "amount"},
		{"not numeric", `{"pc_code":"10001","amount":"abc"}`, "amount"},
		{"long notes", `{"pc_code":"10001","amount":"1","notes":"abcdefghijkl"}`, "notes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dest amountPayload
			err := DecodeJSONBody(req, &dest)
			if tc.field == "" {
				require.NoError(t, err)
				return
			}
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
			details, ok := pkgerrors.As(err).Details().(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details, tc.field)
		})
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"pc_code":"1","amount":"1","extra":true}`))
	var dest amountPayload
	assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &dest), pkgerrors.CodeValidation))
}

func TestParseDateRange(t *testing.T) {
	loc := time.FixedZone("BDT", 6*3600)

	req := httptest.NewRequest(http.MethodGet, "/?from=2025-01-01&to=2025-01-31", nil)
	from, to, err := ParseDateRange(req, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, loc), *from)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, loc), *to)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	from, to, err = ParseDateRange(req, loc)
	require.NoError(t, err)
	assert.Nil(t, from)
	assert.Nil(t, to)

	req = httptest.NewRequest(http.MethodGet, "/?from=2025-02-01&to=2025-01-01", nil)
	_, _, err = ParseDateRange(req, loc)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	req = httptest.NewRequest(http.MethodGet, "/?from=yesterday", nil)
	_, _, err = ParseDateRange(req, loc)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryBoolAndInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?active=false&limit=500", nil)
	active, err := ParseQueryBool(req, "active")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.False(t, *active)

	_, err = ParseQueryInt(req, "limit", 25, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	limit, err := ParseQueryInt(req, "offset", 7, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 7, limit)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Dr. Karim Uddin", SanitizeString("  Dr.\tKarim   Uddin \n", 0))
	assert.Equal(t, "রহমান", SanitizeString("রহমান ক্লিনিক", 5))
	assert.Equal(t, "ab", SanitizeString("ab   cd", 3))
	assert.Empty(t, SanitizeString("   ", 10))
}
