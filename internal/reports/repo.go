package reports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diagcenter/pcledger/internal/ledger"
	"github.com/diagcenter/pcledger/internal/repo"
	"github.com/diagcenter/pcledger/pkg/db/models"
	"github.com/diagcenter/pcledger/pkg/enums"
	"github.com/diagcenter/pcledger/pkg/money"
)

// Filter narrows report aggregates. Nil fields are not applied.
type Filter struct {
	From     *time.Time
	To       *time.Time
	Paid     enums.PaidStatus
	Category *enums.MemberCategory
	MemberID *uuid.UUID
}

// MemberCounts summarises the registry for one category or overall.
type MemberCounts struct {
	Category    enums.MemberCategory
	Members     int64
	Active      int64
	DueAmount   decimal.Decimal
	TotalEarned decimal.Decimal
}

// CategoryTotals is the transaction aggregate for one member category.
type CategoryTotals struct {
	Category enums.MemberCategory
	ledger.Totals
}

// Repository runs read-only aggregate queries over members and transactions.
type Repository interface {
	Totals(ctx context.Context, filter Filter) (ledger.Totals, error)
	TotalsByCategory(ctx context.Context, filter Filter) ([]CategoryTotals, error)
	MemberCountsByCategory(ctx context.Context) ([]MemberCounts, error)
	TopEarners(ctx context.Context, limit int) ([]models.PCMember, error)
	Transactions(ctx context.Context, filter Filter) ([]models.PCTransaction, error)
}

type repository struct {
	base repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

const totalsSelect = "COUNT(*) AS count, " +
	"COALESCE(SUM(t.total_amount), 0) AS gross, " +
	"COALESCE(SUM(t.commission_amount), 0) AS commission, " +
	"COALESCE(SUM(t.admin_amount), 0) AS admin"

type totalsRow struct {
	Category   enums.MemberCategory
	Count      int64
	Gross      decimal.Decimal
	Commission decimal.Decimal
	Admin      decimal.Decimal
}

func (r totalsRow) totals() ledger.Totals {
	return ledger.Totals{
		Count:      r.Count,
		Gross:      money.Normalize(r.Gross),
		Commission: money.Normalize(r.Commission),
		Admin:      money.Normalize(r.Admin),
	}
}

func (r *repository) joined(ctx context.Context, filter Filter) *gorm.DB {
	query := r.base.DB(ctx).
		Table("pc_transactions AS t").
		Joins("JOIN pc_members AS m ON m.id = t.member_id")
	switch filter.Paid {
	case enums.PaidStatusPaid:
		query = query.Where("t.is_paid_to_member = ?", true)
	case enums.PaidStatusUnpaid:
		query = query.Where("t.is_paid_to_member = ?", false)
	}
	if filter.From != nil {
		query = query.Where("t.created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("t.created_at < ?", filter.To.UTC())
	}
	if filter.Category != nil {
		query = query.Where("m.category = ?", *filter.Category)
	}
	if filter.MemberID != nil {
		query = query.Where("t.member_id = ?", *filter.MemberID)
	}
	return query
}

func (r *repository) Totals(ctx context.Context, filter Filter) (ledger.Totals, error) {
	var row totalsRow
	if err := r.joined(ctx, filter).Select(totalsSelect).Scan(&row).Error; err != nil {
		return ledger.Totals{}, err
	}
	return row.totals(), nil
}

func (r *repository) TotalsByCategory(ctx context.Context, filter Filter) ([]CategoryTotals, error) {
	var rows []totalsRow
	if err := r.joined(ctx, filter).
		Select("m.category AS category, " + totalsSelect).
		Group("m.category").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]CategoryTotals, 0, len(rows))
	for _, row := range rows {
		out = append(out, CategoryTotals{Category: row.Category, Totals: row.totals()})
	}
	return out, nil
}

func (r *repository) MemberCountsByCategory(ctx context.Context) ([]MemberCounts, error) {
	var rows []MemberCounts
	if err := r.base.DB(ctx).
		Model(&models.PCMember{}).
		Select("category, " +
			"COUNT(*) AS members, " +
			"COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) AS active, " +
			"COALESCE(SUM(due_amount), 0) AS due_amount, " +
			"COALESCE(SUM(total_commission_earned), 0) AS total_earned").
		Group("category").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].DueAmount = money.Normalize(rows[i].DueAmount)
		rows[i].TotalEarned = money.Normalize(rows[i].TotalEarned)
	}
	return rows, nil
}

func (r *repository) TopEarners(ctx context.Context, limit int) ([]models.PCMember, error) {
	var rows []models.PCMember
	if err := r.base.DB(ctx).
		Order("total_commission_earned DESC").
		Order("due_amount DESC").
		Order("code ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].TotalCommissionEarned = money.Normalize(rows[i].TotalCommissionEarned)
		rows[i].DueAmount = money.Normalize(rows[i].DueAmount)
	}
	return rows, nil
}

func (r *repository) Transactions(ctx context.Context, filter Filter) ([]models.PCTransaction, error) {
	var rows []models.PCTransaction
	if err := r.joined(ctx, filter).
		Select("t.*").
		Order("t.created_at ASC").
		Order("t.transaction_number ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].TotalAmount = money.Normalize(rows[i].TotalAmount)
		rows[i].CommissionPercentage = money.Normalize(rows[i].CommissionPercentage)
		rows[i].CommissionAmount = money.Normalize(rows[i].CommissionAmount)
		rows[i].AdminAmount = money.Normalize(rows[i].AdminAmount)
	}
	return rows, nil
}
