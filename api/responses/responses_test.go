package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/diagcenter/pcledger/pkg/errors"
	"github.com/diagcenter/pcledger/pkg/logger"
	"github.com/diagcenter/pcledger/pkg/types"
)

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"hello": "world"})

	if got := w.Code; got != http.StatusOK {
		t.Fatalf("expected status 200 but got %d", got)
	}

	var body types.SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode success envelope: %v", err)
	}
	if body.Data.(map[string]any)["hello"] != "world" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
	if body.Meta != nil {
		t.Fatalf("expected no meta for plain success")
	}
}

func TestWriteSuccessPageIncludesCursor(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessPage(w, []string{"a"}, "next-token", 25)

	var body types.SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode success envelope: %v", err)
	}
	if body.Meta == nil || body.Meta.NextCursor != "next-token" || body.Meta.Limit != 25 {
		t.Fatalf("unexpected meta %+v", body.Meta)
	}
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"field": "demo"})
	WriteError(context.Background(), nil, w, err)

	if got := w.Code; got != http.StatusBadRequest {
		t.Fatalf("expected status 400 but got %d", got)
	}

	var body types.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}
	if body.Error.Message != "bad input" {
		t.Fatalf("expected specific message, got %q", body.Error.Message)
	}
	if body.Error.Details == nil {
		t.Fatalf("expected details in public payload")
	}
}

func TestWriteErrorDistinguishesInactiveFromNotFound(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   pkgerrors.Code
		msg    string
	}{
		{pkgerrors.New(pkgerrors.CodeNotFound, "invalid PC code 19999"), http.StatusNotFound, pkgerrors.CodeNotFound, "invalid PC code 19999"},
		{pkgerrors.New(pkgerrors.CodeInactive, "PC code 10001 is inactive"), http.StatusConflict, pkgerrors.CodeInactive, "PC code 10001 is inactive"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		WriteError(context.Background(), nil, w, tt.err)
		if w.Code != tt.status {
			t.Fatalf("expected status %d, got %d", tt.status, w.Code)
		}
		var body types.ErrorEnvelope
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Error.Code != string(tt.code) || body.Error.Message != tt.msg {
			t.Fatalf("unexpected error payload %+v", body.Error)
		}
	}
}

func TestWriteErrorHidesConsistencyMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})

	w := httptest.NewRecorder()
	WriteError(context.Background(), logg, w, pkgerrors.New(pkgerrors.CodeConsistency, "due 250.00 != unpaid 240.00"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body types.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Message != "ledger consistency check failed" {
		t.Fatalf("expected generic message, got %q", body.Error.Message)
	}
	if !bytes.Contains(buf.Bytes(), []byte("due 250.00 != unpaid 240.00")) {
		t.Fatalf("expected full error in log, got %s", buf.String())
	}
}

func TestWriteErrorDefaultsToInternalForUntrustedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("boom"))

	if got := w.Code; got != http.StatusInternalServerError {
		t.Fatalf("expected status 500 but got %d", got)
	}

	var body types.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeInternal) {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}
	if body.Error.Details != nil {
		t.Fatalf("details should be omitted for internal errors")
	}
}
