package controllers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diagcenter/pcledger/internal/ledger"
	"github.com/diagcenter/pcledger/internal/members"
	"github.com/diagcenter/pcledger/internal/reports"
	"github.com/diagcenter/pcledger/pkg/db/models"
	"github.com/diagcenter/pcledger/pkg/pagination"
)

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

type stubMemberService struct {
	member     *models.PCMember
	byPhone    []models.PCMember
	lookup     *members.LookupView
	err        error
	created    *members.CreateMemberInput
	createCall int
}

func (s *stubMemberService) CreateMember(_ context.Context, input members.CreateMemberInput) (*models.PCMember, error) {
	s.createCall++
	s.created = &input
	if s.err != nil {
		return nil, s.err
	}
	return s.member, nil
}

func (s *stubMemberService) Resolve(context.Context, string) (*models.PCMember, error) {
	return s.member, s.err
}

func (s *stubMemberService) Get(context.Context, string) (*models.PCMember, error) {
	return s.member, s.err
}

func (s *stubMemberService) Lookup(context.Context, string) (*members.LookupView, error) {
	return s.lookup, s.err
}

func (s *stubMemberService) FindActiveByPhone(context.Context, string) ([]models.PCMember, error) {
	return s.byPhone, nil
}

func (s *stubMemberService) List(_ context.Context, input members.ListMembersInput) (*members.ListMembersResult, error) {
	return &members.ListMembersResult{Limit: input.Limit, Offset: input.Offset}, s.err
}

func (s *stubMemberService) Update(context.Context, string, members.UpdateMemberInput) (*models.PCMember, error) {
	return s.member, s.err
}

func (s *stubMemberService) Delete(context.Context, string) (*members.DeleteResult, error) {
	return &members.DeleteResult{}, s.err
}

func (s *stubMemberService) LockForUpdate(context.Context, *gorm.DB, string) (*models.PCMember, error) {
	return s.member, s.err
}

func (s *stubMemberService) ApplyReferral(context.Context, *gorm.DB, *models.PCMember, decimal.Decimal) error {
	return s.err
}

func (s *stubMemberService) ApplySettlement(context.Context, *gorm.DB, *models.PCMember, decimal.Decimal) error {
	return s.err
}

type stubLedgerService struct {
	txn         *models.PCTransaction
	page        *pagination.Page[models.PCTransaction]
	settle      *ledger.SettlementResult
	err         error
	created     *ledger.CreateTransactionInput
	listInput   *ledger.ListTransactionsInput
	settledBy   *string
	settleCalls int
}

func (s *stubLedgerService) CreateTransaction(_ context.Context, input ledger.CreateTransactionInput) (*models.PCTransaction, error) {
	s.created = &input
	return s.txn, s.err
}

func (s *stubLedgerService) GetByNumber(context.Context, string) (*models.PCTransaction, error) {
	return s.txn, s.err
}

func (s *stubLedgerService) ListUnpaid(context.Context, uuid.UUID) ([]models.PCTransaction, error) {
	return nil, s.err
}

func (s *stubLedgerService) ListByMember(_ context.Context, _ string, input ledger.ListTransactionsInput) (*pagination.Page[models.PCTransaction], error) {
	s.listInput = &input
	return s.page, s.err
}

func (s *stubLedgerService) ListSettlements(context.Context, string) ([]models.PCSettlement, error) {
	return nil, s.err
}

func (s *stubLedgerService) Settle(_ context.Context, _ string, settledBy *string) (*ledger.SettlementResult, error) {
	s.settleCalls++
	s.settledBy = settledBy
	return s.settle, s.err
}

func (s *stubLedgerService) MemberStats(context.Context, string, time.Time) (*ledger.MemberStats, error) {
	return &ledger.MemberStats{}, s.err
}

type stubReportService struct {
	workbook []byte
	filter   *reports.Filter
	err      error
}

func (s *stubReportService) Summary(_ context.Context, filter reports.Filter) (*reports.Summary, error) {
	s.filter = &filter
	return &reports.Summary{Filter: filter}, s.err
}

func (s *stubReportService) ByCategory(context.Context, reports.Filter) ([]reports.CategoryReport, error) {
	return nil, s.err
}

func (s *stubReportService) Dashboard(_ context.Context, now time.Time) (*reports.Dashboard, error) {
	return &reports.Dashboard{GeneratedAt: now}, s.err
}

func (s *stubReportService) ExportStatement(_ context.Context, w io.Writer, code string, filter reports.Filter) (string, error) {
	s.filter = &filter
	if s.err != nil {
		return "", s.err
	}
	_, err := w.Write(s.workbook)
	return "PC_Statement_" + code + ".xlsx", err
}
