package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/diagcenter/pcledger/api/middleware"
	"github.com/diagcenter/pcledger/internal/members"
	"github.com/diagcenter/pcledger/pkg/db/models"
	"github.com/diagcenter/pcledger/pkg/enums"
	pkgerrors "github.com/diagcenter/pcledger/pkg/errors"
)

func sampleMember() *models.PCMember {
	return &models.PCMember{
		ID:             uuid.New(),
		Code:           "20001",
		Category:       enums.MemberCategoryLifetime,
		Name:           "Dr. Rahman",
		Phone:          "01711000000",
		CommissionRate: decimal.NewFromInt(20),
		IsActive:       true,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return envelope.Error.Code
}

func TestMemberCreateDefaultsCreatedByToActor(t *testing.T) {
	svc := &stubMemberService{member: sampleMember()}
	handler := MemberCreate(svc, nil)

	body := []byte(`{"category":"LIFETIME","name":"Dr. Rahman","phone":"01711000000","commission_percentage":"22.50"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pc/members", bytes.NewReader(body))
	req = req.WithContext(middleware.WithActor(req.Context(), "front-desk"))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.created == nil || svc.created.CreatedBy == nil || *svc.created.CreatedBy != "front-desk" {
		t.Fatalf("expected created_by from actor header, got %+v", svc.created)
	}
	if svc.created.CommissionRate == nil || !svc.created.CommissionRate.Equal(decimal.RequireFromString("22.5")) {
		t.Fatalf("expected rate override 22.50, got %v", svc.created.CommissionRate)
	}

	var envelope struct {
		Data members.MemberDTO `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Code != "20001" || envelope.Data.CommissionRate != "20.00" {
		t.Fatalf("unexpected member payload %+v", envelope.Data)
	}
}

func TestMemberCreateRejectsPhoneHeldByActiveMember(t *testing.T) {
	svc := &stubMemberService{member: sampleMember(), byPhone: []models.PCMember{*sampleMember()}}
	handler := MemberCreate(svc, nil)

	body := []byte(`{"category":"GENERAL","name":"Another","phone":"01711000000"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/pc/members", bytes.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if svc.createCall != 0 {
		t.Fatalf("create must not run when the phone is taken")
	}

	body = []byte(`{"category":"GENERAL","name":"Another","phone":"01711000000","allow_duplicate_phone":true}`)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/pc/members", bytes.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with confirmation got %d", rec.Code)
	}
}

func TestMemberCreateRejectsOutOfRangeRate(t *testing.T) {
	svc := &stubMemberService{member: sampleMember()}
	handler := MemberCreate(svc, nil)

	body := []byte(`{"category":"GENERAL","name":"X","phone":"1","digital_test_rate":"120"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/pc/members", bytes.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if code := decodeError(t, rec); code != string(pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error got %s", code)
	}
}

func TestMemberLookupDistinguishesInactive(t *testing.T) {
	handler := MemberLookup(&stubMemberService{err: pkgerrors.New(pkgerrors.CodeInactive, "PC code 10001 is inactive")}, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pc/lookup?code=10001", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if code := decodeError(t, rec); code != string(pkgerrors.CodeInactive) {
		t.Fatalf("expected inactive code got %s", code)
	}

	handler = MemberLookup(&stubMemberService{err: pkgerrors.New(pkgerrors.CodeNotFound, "invalid PC code 99999")}, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pc/lookup?code=99999", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pc/lookup", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing code got %d", rec.Code)
	}
}

func TestMemberListRejectsBadActiveFlag(t *testing.T) {
	handler := MemberList(&stubMemberService{}, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pc/members?active=maybe", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestMemberDetailIncludesStats(t *testing.T) {
	handler := MemberDetail(&stubMemberService{member: sampleMember()}, &stubLedgerService{}, time.Now, nil)
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/pc/members/20001", nil), "code", "20001")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var envelope struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	for _, key := range []string{"member", "stats", "settlements"} {
		if _, ok := envelope.Data[key]; !ok {
			t.Fatalf("missing %s in detail payload", key)
		}
	}
}
