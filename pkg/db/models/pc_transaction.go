package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/diagcenter/pcledger/pkg/enums"
)

// PCTransaction is one commission-bearing referral. Monetary fields are fixed
// at creation; only the paid flag, paid_at and settlement_id change afterwards.
type PCTransaction struct {
	ID                   uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	TransactionNumber    string            `gorm:"column:transaction_number;type:varchar(20);not null;uniqueIndex:pc_transactions_number_key"`
	MemberID             uuid.UUID         `gorm:"column:member_id;type:uuid;not null;index:idx_pc_transactions_member_created,priority:1;index:idx_pc_transactions_member_paid,priority:1"`
	PatientRef           *string           `gorm:"column:patient_ref;type:varchar(64)"`
	AppointmentRef       *string           `gorm:"column:appointment_ref;type:varchar(64)"`
	LabBillRef           *string           `gorm:"column:lab_bill_ref;type:varchar(64)"`
	ServiceType          enums.ServiceType `gorm:"column:service_type;type:varchar(16);not null;default:''"`
	TotalAmount          decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	CommissionPercentage decimal.Decimal   `gorm:"column:commission_percentage;type:numeric(5,2);not null"`
	CommissionAmount     decimal.Decimal   `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	AdminAmount          decimal.Decimal   `gorm:"column:admin_amount;type:numeric(12,2);not null"`
	IsPaidToMember       bool              `gorm:"column:is_paid_to_member;not null;default:false;index:idx_pc_transactions_member_paid,priority:2"`
	PaidAt               *time.Time        `gorm:"column:paid_at"`
	SettlementID         *uuid.UUID        `gorm:"column:settlement_id;type:uuid"`
	RecordedBy           *string           `gorm:"column:recorded_by;type:varchar(100)"`
	Notes                *string           `gorm:"column:notes;type:text"`
	CreatedAt            time.Time         `gorm:"column:created_at;not null;index:idx_pc_transactions_created_at;index:idx_pc_transactions_member_created,priority:2"`
}

func (PCTransaction) TableName() string { return "pc_transactions" }
