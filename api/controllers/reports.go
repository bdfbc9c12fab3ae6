package controllers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagcenter/pcledger/api/responses"
	"github.com/diagcenter/pcledger/api/validators"
	"github.com/diagcenter/pcledger/internal/ledger"
	"github.com/diagcenter/pcledger/internal/members"
	"github.com/diagcenter/pcledger/internal/reports"
	"github.com/diagcenter/pcledger/pkg/enums"
	pkgerrors "github.com/diagcenter/pcledger/pkg/errors"
	"github.com/diagcenter/pcledger/pkg/logger"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type summaryResponse struct {
	From       *time.Time                  `json:"from,omitempty"`
	To         *time.Time                  `json:"to,omitempty"`
	Paid       string                      `json:"paid"`
	Category   *string                     `json:"category,omitempty"`
	PCCode     *string                     `json:"pc_code,omitempty"`
	Totals     ledger.TotalsDTO            `json:"totals"`
	Categories []reports.CategoryReportDTO `json:"categories"`
}

// parseReportFilter reads from, to, paid, category and pc_code.
func parseReportFilter(r *http.Request, memberSvc members.Service, loc *time.Location) (reports.Filter, error) {
	var filter reports.Filter
	from, to, err := validators.ParseDateRange(r, loc)
	if err != nil {
		return filter, err
	}
	filter.From, filter.To = from, to

	query := r.URL.Query()
	paid, err := enums.ParsePaidStatus(query.Get("paid"))
	if err != nil {
		return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()).WithDetails(map[string]any{"field": "paid"})
	}
	filter.Paid = paid

	if raw := strings.TrimSpace(query.Get("category")); raw != "" {
		category, err := enums.ParseMemberCategory(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()).WithDetails(map[string]any{"field": "category"})
		}
		filter.Category = &category
	}

	if code := strings.TrimSpace(query.Get("pc_code")); code != "" && memberSvc != nil {
		member, err := memberSvc.Get(r.Context(), code)
		if err != nil {
			return filter, err
		}
		filter.MemberID = &member.ID
	}
	return filter, nil
}

// ReportSummary aggregates transactions over the requested filter, overall and per category.
func ReportSummary(svc reports.Service, memberSvc members.Service, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "report service unavailable"))
			return
		}

		filter, err := parseReportFilter(r, memberSvc, loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		categories, err := svc.ByCategory(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := summaryResponse{
			From:       filter.From,
			To:         filter.To,
			Paid:       filter.Paid.String(),
			Totals:     ledger.TotalsToDTO(summary.Totals),
			Categories: reports.CategoriesToDTO(categories),
		}
		if filter.Category != nil {
			category := string(*filter.Category)
			resp.Category = &category
		}
		if code := strings.TrimSpace(r.URL.Query().Get("pc_code")); code != "" {
			resp.PCCode = &code
		}
		responses.WriteSuccess(w, resp)
	}
}

func ReportDashboard(svc reports.Service, now func() time.Time, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "report service unavailable"))
			return
		}

		dash, err := svc.Dashboard(r.Context(), now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reports.DashboardToDTO(dash))
	}
}

// MemberStatementExport streams the member's statement as an XLSX download.
// The workbook is rendered to memory first so failures still produce a JSON error.
func MemberStatementExport(svc reports.Service, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "report service unavailable"))
			return
		}

		filter, err := parseReportFilter(r, nil, loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var buf bytes.Buffer
		filename, err := svc.ExportStatement(r.Context(), &buf, chi.URLParam(r, "code"), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		if _, err := buf.WriteTo(w); err != nil && logg != nil {
			logg.Error(r.Context(), "statement.write_failed", err)
		}
	}
}
