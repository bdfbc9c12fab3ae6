package reports

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/diagcenter/pcledger/internal/ledger"
	"github.com/diagcenter/pcledger/internal/members"
	"github.com/diagcenter/pcledger/pkg/config"
	"github.com/diagcenter/pcledger/pkg/db/models"
	"github.com/diagcenter/pcledger/pkg/enums"
	pkgerrors "github.com/diagcenter/pcledger/pkg/errors"
)

const (
	topEarnersLimit = 5
	statementSheet  = "Statement"
	dateLayout      = "2006-01-02 15:04"
)

// Service serves read-only aggregates and exports.
type Service interface {
	Summary(ctx context.Context, filter Filter) (*Summary, error)
	ByCategory(ctx context.Context, filter Filter) ([]CategoryReport, error)
	Dashboard(ctx context.Context, now time.Time) (*Dashboard, error)
	ExportStatement(ctx context.Context, w io.Writer, code string, filter Filter) (string, error)
}

// Summary is the filtered transaction total.
type Summary struct {
	Filter Filter
	Totals ledger.Totals
}

// CategoryReport joins registry counts with transaction totals for one category.
type CategoryReport struct {
	Category    enums.MemberCategory
	Members     int64
	Active      int64
	DueAmount   decimal.Decimal
	TotalEarned decimal.Decimal
	Totals      ledger.Totals
}

// Dashboard backs the admin landing page.
type Dashboard struct {
	GeneratedAt time.Time
	AllTime     ledger.Totals
	Today       ledger.Totals
	Month       ledger.Totals
	Unpaid      ledger.Totals
	Members     int64
	Active      int64
	Categories  []CategoryReport
	TopEarners  []models.PCMember
}

type ServiceParams struct {
	Repo       Repository
	Members    members.Service
	Commission config.CommissionConfig
}

type service struct {
	repo    Repository
	members members.Service
	loc     *time.Location
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	if params.Members == nil {
		return nil, fmt.Errorf("members service required")
	}
	loc, err := params.Commission.Location()
	if err != nil {
		return nil, err
	}
	return &service{repo: params.Repo, members: params.Members, loc: loc}, nil
}

func (s *service) Summary(ctx context.Context, filter Filter) (*Summary, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	totals, err := s.repo.Totals(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summary report")
	}
	return &Summary{Filter: filter, Totals: totals}, nil
}

func (s *service) ByCategory(ctx context.Context, filter Filter) ([]CategoryReport, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	counts, err := s.repo.MemberCountsByCategory(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "member counts")
	}
	totals, err := s.repo.TotalsByCategory(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "category totals")
	}

	byCategory := make(map[enums.MemberCategory]*CategoryReport)
	out := make([]CategoryReport, 0, len(enums.MemberCategories()))
	for _, category := range enums.MemberCategories() {
		out = append(out, CategoryReport{
			Category:    category,
			DueAmount:   decimal.Zero,
			TotalEarned: decimal.Zero,
			Totals:      ledger.Totals{Gross: decimal.Zero, Commission: decimal.Zero, Admin: decimal.Zero},
		})
	}
	for i := range out {
		byCategory[out[i].Category] = &out[i]
	}
	for _, c := range counts {
		if report, ok := byCategory[c.Category]; ok {
			report.Members = c.Members
			report.Active = c.Active
			report.DueAmount = c.DueAmount
			report.TotalEarned = c.TotalEarned
		}
	}
	for _, t := range totals {
		if report, ok := byCategory[t.Category]; ok {
			report.Totals = t.Totals
		}
	}
	return out, nil
}

func (s *service) Dashboard(ctx context.Context, now time.Time) (*Dashboard, error) {
	local := now.In(s.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, s.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	dash := &Dashboard{GeneratedAt: now.UTC()}
	windows := []struct {
		target *ledger.Totals
		filter Filter
	}{
		{&dash.AllTime, Filter{}},
		{&dash.Today, Filter{From: &dayStart, To: &dayEnd}},
		{&dash.Month, Filter{From: &monthStart, To: &dayEnd}},
		{&dash.Unpaid, Filter{Paid: enums.PaidStatusUnpaid}},
	}
	for _, w := range windows {
		totals, err := s.repo.Totals(ctx, w.filter)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dashboard totals")
		}
		*w.target = totals
	}

	categories, err := s.ByCategory(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	dash.Categories = categories
	for _, c := range categories {
		dash.Members += c.Members
		dash.Active += c.Active
	}

	top, err := s.repo.TopEarners(ctx, topEarnersLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "top earners")
	}
	dash.TopEarners = top
	return dash, nil
}

// ExportStatement writes an XLSX statement of the member's transactions to w
// and returns a suggested file name.
func (s *service) ExportStatement(ctx context.Context, w io.Writer, code string, filter Filter) (string, error) {
	if err := validateFilter(filter); err != nil {
		return "", err
	}
	member, err := s.members.Get(ctx, code)
	if err != nil {
		return "", err
	}
	filter.MemberID = &member.ID
	filter.Category = nil

	rows, err := s.repo.Transactions(ctx, filter)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "statement transactions")
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", statementSheet); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "prepare statement")
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "statement style")
	}
	amount, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "statement style")
	}

	info := [][2]any{
		{"PC Code", member.Code},
		{"Name", member.Name},
		{"Member Type", member.Category.DisplayName()},
		{"Phone", member.Phone},
		{"Due Amount", member.DueAmount.InexactFloat64()},
		{"Total Earned", member.TotalCommissionEarned.InexactFloat64()},
	}
	for i, pair := range info {
		row := i + 1
		_ = f.SetCellValue(statementSheet, fmt.Sprintf("A%d", row), pair[0])
		_ = f.SetCellValue(statementSheet, fmt.Sprintf("B%d", row), pair[1])
	}
	_ = f.SetCellStyle(statementSheet, "A1", fmt.Sprintf("A%d", len(info)), bold)
	_ = f.SetCellStyle(statementSheet, "B5", "B6", amount)

	headerRow := len(info) + 2
	headers := []string{"Transaction No", "Date", "Service", "Total Amount", "Rate %", "Commission", "Admin", "Status", "Paid At"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, headerRow)
		_ = f.SetCellValue(statementSheet, cell, header)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), headerRow)
	_ = f.SetCellStyle(statementSheet, fmt.Sprintf("A%d", headerRow), last, bold)

	gross, commission, admin := decimal.Zero, decimal.Zero, decimal.Zero
	for i, txn := range rows {
		row := headerRow + 1 + i
		status := "Unpaid"
		paidAt := ""
		if txn.IsPaidToMember {
			status = "Paid"
			if txn.PaidAt != nil {
				paidAt = txn.PaidAt.In(s.loc).Format(dateLayout)
			}
		}
		_ = f.SetCellValue(statementSheet, fmt.Sprintf("A%d", row), txn.TransactionNumber)
		_ = f.SetCellValue(statementSheet, fmt.Sprintf("B%d", row), txn.CreatedAt.In(s.loc).Format(dateLayout))
		_ = f.SetCellValue(statementSheet, fmt.Sprintf("C%d", row), txn.ServiceType.Label())
		_ = f.SetCellValue(statementSheet, fmt.Sprintf("D%d", row), txn.TotalAmount.InexactFloat64())
		_ = f.SetCellValue(statementSheet, fmt.Sprintf("E%d", row), txn.CommissionPercentage.InexactFloat64())
		_ = f.SetCellValue(statementSheet, fmt.Sprintf("F%d", row), txn.CommissionAmount.InexactFloat64())
		_ = f.SetCellValue(statementSheet, fmt.Sprintf("G%d", row), txn.AdminAmount.InexactFloat64())
		_ = f.SetCellValue(statementSheet, fmt.Sprintf("H%d", row), status)
		_ = f.SetCellValue(statementSheet, fmt.Sprintf("I%d", row), paidAt)
		gross = gross.Add(txn.TotalAmount)
		commission = commission.Add(txn.CommissionAmount)
		admin = admin.Add(txn.AdminAmount)
	}

	totalRow := headerRow + 1 + len(rows)
	_ = f.SetCellValue(statementSheet, fmt.Sprintf("A%d", totalRow), "Total")
	_ = f.SetCellValue(statementSheet, fmt.Sprintf("D%d", totalRow), gross.InexactFloat64())
	_ = f.SetCellValue(statementSheet, fmt.Sprintf("F%d", totalRow), commission.InexactFloat64())
	_ = f.SetCellValue(statementSheet, fmt.Sprintf("G%d", totalRow), admin.InexactFloat64())
	_ = f.SetCellStyle(statementSheet, fmt.Sprintf("A%d", totalRow), fmt.Sprintf("A%d", totalRow), bold)
	_ = f.SetCellStyle(statementSheet, fmt.Sprintf("D%d", headerRow+1), fmt.Sprintf("G%d", totalRow), amount)
	_ = f.SetColWidth(statementSheet, "A", "A", 20)
	_ = f.SetColWidth(statementSheet, "B", "I", 16)

	if err := f.Write(w); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write statement")
	}
	return fmt.Sprintf("pc_statement_%s_%s.xlsx", member.Code, time.Now().In(s.loc).Format("20060102_150405")), nil
}

func validateFilter(filter Filter) error {
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	if filter.Category != nil && !filter.Category.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid member category %q", *filter.Category))
	}
	return nil
}
