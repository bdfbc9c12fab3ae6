package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/diagcenter/pcledger/pkg/enums"
	pkgerrors "github.com/diagcenter/pcledger/pkg/errors"
)

func TestReportSummaryParsesFilter(t *testing.T) {
	member := sampleMember()
	svc := &stubReportService{}
	handler := ReportSummary(svc, &stubMemberService{member: member}, time.UTC, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pc/reports/summary?paid=paid&category=lifetime&pc_code=20001&from=2025-01-01", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	f := svc.filter
	if f == nil || f.Paid != enums.PaidStatusPaid {
		t.Fatalf("unexpected filter %+v", f)
	}
	if f.Category == nil || *f.Category != enums.MemberCategoryLifetime {
		t.Fatalf("expected LIFETIME category")
	}
	if f.MemberID == nil || *f.MemberID != member.ID {
		t.Fatalf("expected member id resolved from pc_code")
	}
	if f.From == nil || f.To != nil {
		t.Fatalf("expected open-ended range from 2025-01-01")
	}
}

func TestReportSummaryRejectsUnknownCategory(t *testing.T) {
	handler := ReportSummary(&stubReportService{}, &stubMemberService{}, time.UTC, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pc/reports/summary?category=gold", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestMemberStatementExportSetsDownloadHeaders(t *testing.T) {
	svc := &stubReportService{workbook: []byte("PK-fake-xlsx")}
	handler := MemberStatementExport(svc, time.UTC, nil)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/pc/members/20001/statement.xlsx?paid=unpaid", nil), "code", "20001")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != xlsxContentType {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="PC_Statement_20001.xlsx"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if rec.Body.String() != "PK-fake-xlsx" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if svc.filter == nil || svc.filter.Paid != enums.PaidStatusUnpaid {
		t.Fatalf("expected paid filter forwarded")
	}
}

func TestMemberStatementExportReportsErrorsAsJSON(t *testing.T) {
	handler := MemberStatementExport(&stubReportService{err: pkgerrors.New(pkgerrors.CodeNotFound, "invalid PC code 1")}, time.UTC, nil)
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/pc/members/1/statement.xlsx", nil), "code", "1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected json error, got %q", got)
	}
}

func TestReportDashboardUsesClock(t *testing.T) {
	fixed := time.Date(2025, 1, 23, 10, 0, 0, 0, time.UTC)
	handler := ReportDashboard(&stubReportService{}, func() time.Time { return fixed }, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pc/reports/dashboard", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}
