package members

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diagcenter/pcledger/internal/repo"
	"github.com/diagcenter/pcledger/pkg/db/models"
	"github.com/diagcenter/pcledger/pkg/enums"
	"github.com/diagcenter/pcledger/pkg/money"
)

// ListFilter narrows member listings.
type ListFilter struct {
	Category *enums.MemberCategory
	Active   *bool
	Search   string
	Limit    int
	Offset   int
}

// DeleteCounts reports what a member deletion removed.
type DeleteCounts struct {
	Transactions int64
	Settlements  int64
}

// Repository manages persistence for PC members.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, member *models.PCMember) error
	FindByCode(ctx context.Context, code string) (*models.PCMember, error)
	FindByCodeForUpdate(ctx context.Context, code string) (*models.PCMember, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PCMember, error)
	ListCodesWithPrefix(ctx context.Context, prefix string) ([]string, error)
	FindActiveByPhone(ctx context.Context, phone string) ([]models.PCMember, error)
	List(ctx context.Context, filter ListFilter) ([]models.PCMember, int64, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, fields map[string]any) error
	UpdateBalances(ctx context.Context, id uuid.UUID, due, earned decimal.Decimal, referrals int) error
	Delete(ctx context.Context, id uuid.UUID) (DeleteCounts, error)
}

type repository struct {
	base repo.Base
}

// NewRepository returns a member repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, member *models.PCMember) error {
	if member.ID == uuid.Nil {
		member.ID = uuid.New()
	}
	return r.base.DB(ctx).Create(member).Error
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.PCMember, error) {
	var member models.PCMember
	if err := r.base.DB(ctx).Where("code = ?", code).First(&member).Error; err != nil {
		return nil, err
	}
	return normalize(&member), nil
}

func (r *repository) FindByCodeForUpdate(ctx context.Context, code string) (*models.PCMember, error) {
	var member models.PCMember
	if err := repo.ForUpdate(r.base.DB(ctx)).Where("code = ?", code).First(&member).Error; err != nil {
		return nil, err
	}
	return normalize(&member), nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PCMember, error) {
	var member models.PCMember
	if err := repo.ForUpdate(r.base.DB(ctx)).Where("id = ?", id).First(&member).Error; err != nil {
		return nil, err
	}
	return normalize(&member), nil
}

func (r *repository) ListCodesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var codes []string
	if err := r.base.DB(ctx).
		Model(&models.PCMember{}).
		Where("code LIKE ?", prefix+"%").
		Pluck("code", &codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *repository) FindActiveByPhone(ctx context.Context, phone string) ([]models.PCMember, error) {
	var members []models.PCMember
	if err := r.base.DB(ctx).
		Where("phone = ? AND is_active = ?", phone, true).
		Order("created_at ASC").
		Find(&members).Error; err != nil {
		return nil, err
	}
	for i := range members {
		normalize(&members[i])
	}
	return members, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.PCMember, int64, error) {
	query := r.base.DB(ctx).Model(&models.PCMember{})
	if filter.Category != nil {
		query = query.Where("category = ?", *filter.Category)
	}
	if filter.Active != nil {
		query = query.Where("is_active = ?", *filter.Active)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("(LOWER(code) LIKE ? OR LOWER(name) LIKE ? OR phone LIKE ?)", like, like, like)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var members []models.PCMember
	if err := query.
		Order("created_at DESC").
		Order("code DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&members).Error; err != nil {
		return nil, 0, err
	}
	for i := range members {
		normalize(&members[i])
	}
	return members, total, nil
}

func (r *repository) UpdateProfile(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := r.base.DB(ctx).Model(&models.PCMember{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) UpdateBalances(ctx context.Context, id uuid.UUID, due, earned decimal.Decimal, referrals int) error {
	res := r.base.DB(ctx).Model(&models.PCMember{}).Where("id = ?", id).Updates(map[string]any{
		"due_amount":              money.Normalize(due),
		"total_commission_earned": money.Normalize(earned),
		"total_referrals":         referrals,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the member with its transactions and settlements. The
// dependent rows are deleted explicitly so dialects without enforced
// cascades end up in the same state.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) (DeleteCounts, error) {
	db := r.base.DB(ctx)
	var counts DeleteCounts

	res := db.Where("member_id = ?", id).Delete(&models.PCTransaction{})
	if res.Error != nil {
		return counts, res.Error
	}
	counts.Transactions = res.RowsAffected

	res = db.Where("member_id = ?", id).Delete(&models.PCSettlement{})
	if res.Error != nil {
		return counts, res.Error
	}
	counts.Settlements = res.RowsAffected

	res = db.Where("id = ?", id).Delete(&models.PCMember{})
	if res.Error != nil {
		return counts, res.Error
	}
	if res.RowsAffected == 0 {
		return counts, gorm.ErrRecordNotFound
	}
	return counts, nil
}

func normalize(m *models.PCMember) *models.PCMember {
	m.CommissionRate = money.Normalize(m.CommissionRate)
	if m.NormalTestRate.Valid {
		m.NormalTestRate.Decimal = money.Normalize(m.NormalTestRate.Decimal)
	}
	if m.DigitalTestRate.Valid {
		m.DigitalTestRate.Decimal = money.Normalize(m.DigitalTestRate.Decimal)
	}
	m.DueAmount = money.Normalize(m.DueAmount)
	m.TotalCommissionEarned = money.Normalize(m.TotalCommissionEarned)
	return m
}
