package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diagcenter/pcledger/internal/repo"
	"github.com/diagcenter/pcledger/pkg/db/models"
	"github.com/diagcenter/pcledger/pkg/enums"
	"github.com/diagcenter/pcledger/pkg/money"
	"github.com/diagcenter/pcledger/pkg/pagination"
)

// StatementQuery selects one page of a member's transactions, newest first.
type StatementQuery struct {
	MemberID uuid.UUID
	Paid     enums.PaidStatus
	From     *time.Time
	To       *time.Time
	Cursor   *pagination.Cursor
	Limit    int
}

// TotalsQuery narrows an aggregate over transactions. Zero values mean no filter.
type TotalsQuery struct {
	MemberID *uuid.UUID
	Paid     enums.PaidStatus
	From     *time.Time
	To       *time.Time
}

// Totals aggregates transaction amounts.
type Totals struct {
	Count      int64
	Gross      decimal.Decimal
	Commission decimal.Decimal
	Admin      decimal.Decimal
}

// MemberBalance pairs a member's stored due amount with the unpaid commission
// actually recorded against it.
type MemberBalance struct {
	MemberID  uuid.UUID
	Code      string
	DueAmount decimal.Decimal
	UnpaidSum decimal.Decimal
	Unpaid    int64
}

// Repository manages persistence for referral transactions and settlements.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.PCTransaction) error
	GetByNumber(ctx context.Context, number string) (*models.PCTransaction, error)
	ListNumbersWithPrefix(ctx context.Context, prefix string) ([]string, error)
	ListUnpaid(ctx context.Context, memberID uuid.UUID) ([]models.PCTransaction, error)
	ListStatement(ctx context.Context, query StatementQuery) ([]models.PCTransaction, error)
	MarkPaid(ctx context.Context, ids []uuid.UUID, settlementID uuid.UUID, paidAt time.Time) (int64, error)
	CreateSettlement(ctx context.Context, settlement *models.PCSettlement) error
	ListSettlements(ctx context.Context, memberID uuid.UUID) ([]models.PCSettlement, error)
	Totals(ctx context.Context, query TotalsQuery) (Totals, error)
	MemberBalances(ctx context.Context) ([]MemberBalance, error)
}

type repository struct {
	base repo.Base
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, txn *models.PCTransaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	return r.base.DB(ctx).Create(txn).Error
}

func (r *repository) GetByNumber(ctx context.Context, number string) (*models.PCTransaction, error) {
	var txn models.PCTransaction
	if err := r.base.DB(ctx).Where("transaction_number = ?", number).First(&txn).Error; err != nil {
		return nil, err
	}
	return normalize(&txn), nil
}

func (r *repository) ListNumbersWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var numbers []string
	if err := r.base.DB(ctx).
		Model(&models.PCTransaction{}).
		Where("transaction_number LIKE ?", prefix+"%").
		Pluck("transaction_number", &numbers).Error; err != nil {
		return nil, err
	}
	return numbers, nil
}

func (r *repository) ListUnpaid(ctx context.Context, memberID uuid.UUID) ([]models.PCTransaction, error) {
	var rows []models.PCTransaction
	if err := r.base.DB(ctx).
		Where("member_id = ? AND is_paid_to_member = ?", memberID, false).
		Order("created_at ASC").
		Order("transaction_number ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		normalize(&rows[i])
	}
	return rows, nil
}

func (r *repository) ListStatement(ctx context.Context, q StatementQuery) ([]models.PCTransaction, error) {
	query := r.base.DB(ctx).Model(&models.PCTransaction{}).Where("member_id = ?", q.MemberID)
	query = applyFilters(query, q.Paid, q.From, q.To)
	if q.Cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", q.Cursor.CreatedAt, q.Cursor.CreatedAt, q.Cursor.ID)
	}

	var rows []models.PCTransaction
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(q.Limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		normalize(&rows[i])
	}
	return rows, nil
}

// MarkPaid flips only rows that are still unpaid so a concurrent flip shows up
// as a short row count.
func (r *repository) MarkPaid(ctx context.Context, ids []uuid.UUID, settlementID uuid.UUID, paidAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.base.DB(ctx).
		Model(&models.PCTransaction{}).
		Where("id IN ? AND is_paid_to_member = ?", ids, false).
		Updates(map[string]any{
			"is_paid_to_member": true,
			"paid_at":           paidAt,
			"settlement_id":     settlementID,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CreateSettlement(ctx context.Context, settlement *models.PCSettlement) error {
	if settlement.ID == uuid.Nil {
		settlement.ID = uuid.New()
	}
	return r.base.DB(ctx).Create(settlement).Error
}

func (r *repository) ListSettlements(ctx context.Context, memberID uuid.UUID) ([]models.PCSettlement, error) {
	var rows []models.PCSettlement
	if err := r.base.DB(ctx).
		Where("member_id = ?", memberID).
		Order("settled_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Amount = money.Normalize(rows[i].Amount)
	}
	return rows, nil
}

func (r *repository) Totals(ctx context.Context, q TotalsQuery) (Totals, error) {
	query := r.base.DB(ctx).Model(&models.PCTransaction{})
	if q.MemberID != nil {
		query = query.Where("member_id = ?", *q.MemberID)
	}
	query = applyFilters(query, q.Paid, q.From, q.To)

	var row struct {
		Count      int64
		Gross      decimal.Decimal
		Commission decimal.Decimal
		Admin      decimal.Decimal
	}
	if err := query.Select(
		"COUNT(*) AS count, " +
			"COALESCE(SUM(total_amount), 0) AS gross, " +
			"COALESCE(SUM(commission_amount), 0) AS commission, " +
			"COALESCE(SUM(admin_amount), 0) AS admin",
	).Scan(&row).Error; err != nil {
		return Totals{}, err
	}
	return Totals{
		Count:      row.Count,
		Gross:      money.Normalize(row.Gross),
		Commission: money.Normalize(row.Commission),
		Admin:      money.Normalize(row.Admin),
	}, nil
}

func (r *repository) MemberBalances(ctx context.Context) ([]MemberBalance, error) {
	var rows []MemberBalance
	if err := r.base.DB(ctx).
		Table("pc_members AS m").
		Joins("LEFT JOIN pc_transactions AS t ON t.member_id = m.id AND t.is_paid_to_member = ?", false).
		Select("m.id AS member_id, m.code AS code, m.due_amount AS due_amount, " +
			"COALESCE(SUM(t.commission_amount), 0) AS unpaid_sum, " +
			"COUNT(t.id) AS unpaid").
		Group("m.id, m.code, m.due_amount").
		Order("m.code ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].DueAmount = money.Normalize(rows[i].DueAmount)
		rows[i].UnpaidSum = money.Normalize(rows[i].UnpaidSum)
	}
	return rows, nil
}

func applyFilters(query *gorm.DB, paid enums.PaidStatus, from, to *time.Time) *gorm.DB {
	switch paid {
	case enums.PaidStatusPaid:
		query = query.Where("is_paid_to_member = ?", true)
	case enums.PaidStatusUnpaid:
		query = query.Where("is_paid_to_member = ?", false)
	}
	if from != nil {
		query = query.Where("created_at >= ?", from.UTC())
	}
	if to != nil {
		query = query.Where("created_at < ?", to.UTC())
	}
	return query
}

func normalize(txn *models.PCTransaction) *models.PCTransaction {
	txn.TotalAmount = money.Normalize(txn.TotalAmount)
	txn.CommissionPercentage = money.Normalize(txn.CommissionPercentage)
	txn.CommissionAmount = money.Normalize(txn.CommissionAmount)
	txn.AdminAmount = money.Normalize(txn.AdminAmount)
	return txn
}
