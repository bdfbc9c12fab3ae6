package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PCSettlement records one non-empty payout batch.
type PCSettlement struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	MemberID         uuid.UUID       `gorm:"column:member_id;type:uuid;not null;index:idx_pc_settlements_member"`
	TransactionCount int             `gorm:"column:transaction_count;not null"`
	Amount           decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	SettledBy        *string         `gorm:"column:settled_by;type:varchar(100)"`
	SettledAt        time.Time       `gorm:"column:settled_at;not null"`
}

func (PCSettlement) TableName() string { return "pc_settlements" }
