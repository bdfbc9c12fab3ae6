package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/diagcenter/pcledger/pkg/enums"
)

// PCMember is a referring agent and its running commission balances.
type PCMember struct {
	ID                    uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Code                  string               `gorm:"column:code;type:varchar(20);not null;uniqueIndex:pc_members_code_key"`
	Category              enums.MemberCategory `gorm:"column:category;type:varchar(16);not null;index:idx_pc_members_category"`
	Name                  string               `gorm:"column:name;type:varchar(200);not null"`
	Phone                 string               `gorm:"column:phone;type:varchar(20);not null;index:idx_pc_members_phone"`
	Email                 *string              `gorm:"column:email;type:varchar(254)"`
	Address               *string              `gorm:"column:address;type:text"`
	Notes                 *string              `gorm:"column:notes;type:text"`
	CommissionRate        decimal.Decimal      `gorm:"column:commission_rate;type:numeric(5,2);not null"`
	NormalTestRate        decimal.NullDecimal  `gorm:"column:normal_test_rate;type:numeric(5,2)"`
	DigitalTestRate       decimal.NullDecimal  `gorm:"column:digital_test_rate;type:numeric(5,2)"`
	DueAmount             decimal.Decimal      `gorm:"column:due_amount;type:numeric(12,2);not null;default:0"`
	TotalCommissionEarned decimal.Decimal      `gorm:"column:total_commission_earned;type:numeric(12,2);not null;default:0"`
	TotalReferrals        int                  `gorm:"column:total_referrals;not null;default:0"`
	IsActive              bool                 `gorm:"column:is_active;not null"`
	CreatedBy             *string              `gorm:"column:created_by;type:varchar(100)"`
	CreatedAt             time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (PCMember) TableName() string { return "pc_members" }
