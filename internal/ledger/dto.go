package ledger

import (
	"time"

	"github.com/diagcenter/pcledger/pkg/db/models"
	"github.com/diagcenter/pcledger/pkg/money"
)

// TransactionDTO is the JSON shape of a referral transaction.
type TransactionDTO struct {
	ID                   string     `json:"id"`
	TransactionNumber    string     `json:"transaction_number"`
	MemberID             string     `json:"member_id"`
	PatientRef           *string    `json:"patient_ref,omitempty"`
	AppointmentRef       *string    `json:"appointment_ref,omitempty"`
	LabBillRef           *string    `json:"lab_bill_ref,omitempty"`
	ServiceType          string     `json:"service_type"`
	TotalAmount          string     `json:"total_amount"`
	CommissionPercentage string     `json:"commission_percentage"`
	CommissionAmount     string     `json:"commission_amount"`
	AdminAmount          string     `json:"admin_amount"`
	IsPaidToMember       bool       `json:"is_paid_to_member"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`
	SettlementID         *string    `json:"settlement_id,omitempty"`
	RecordedBy           *string    `json:"recorded_by,omitempty"`
	Notes                *string    `json:"notes,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

func TransactionFromModel(t *models.PCTransaction) TransactionDTO {
	dto := TransactionDTO{
		ID:                   t.ID.String(),
		TransactionNumber:    t.TransactionNumber,
		MemberID:             t.MemberID.String(),
		PatientRef:           t.PatientRef,
		AppointmentRef:       t.AppointmentRef,
		LabBillRef:           t.LabBillRef,
		ServiceType:          t.ServiceType.Label(),
		TotalAmount:          money.Format(t.TotalAmount),
		CommissionPercentage: money.Format(t.CommissionPercentage),
		CommissionAmount:     money.Format(t.CommissionAmount),
		AdminAmount:          money.Format(t.AdminAmount),
		IsPaidToMember:       t.IsPaidToMember,
		PaidAt:               t.PaidAt,
		RecordedBy:           t.RecordedBy,
		Notes:                t.Notes,
		CreatedAt:            t.CreatedAt,
	}
	if t.SettlementID != nil {
		id := t.SettlementID.String()
		dto.SettlementID = &id
	}
	return dto
}

func TransactionsFromModels(rows []models.PCTransaction) []TransactionDTO {
	out := make([]TransactionDTO, 0, len(rows))
	for i := range rows {
		out = append(out, TransactionFromModel(&rows[i]))
	}
	return out
}

// SettlementDTO confirms a settlement to the caller.
type SettlementDTO struct {
	MemberCode       string     `json:"member_code"`
	Settled          bool       `json:"settled"`
	SettlementID     *string    `json:"settlement_id,omitempty"`
	TransactionCount int        `json:"transaction_count"`
	Amount           string     `json:"amount"`
	TotalEarned      string     `json:"total_earned"`
	SettledAt        *time.Time `json:"settled_at,omitempty"`
}

func SettlementFromResult(r *SettlementResult) SettlementDTO {
	dto := SettlementDTO{
		MemberCode:       r.MemberCode,
		Settled:          r.Settled,
		TransactionCount: r.TransactionCount,
		Amount:           money.Format(r.Amount),
		TotalEarned:      money.Format(r.TotalEarned),
		SettledAt:        r.SettledAt,
	}
	if r.SettlementID != nil {
		id := r.SettlementID.String()
		dto.SettlementID = &id
	}
	return dto
}

// TotalsDTO renders an aggregate.
type TotalsDTO struct {
	Count      int64  `json:"count"`
	Gross      string `json:"total_amount"`
	Commission string `json:"commission_amount"`
	Admin      string `json:"admin_amount"`
}

func TotalsToDTO(t Totals) TotalsDTO {
	return TotalsDTO{
		Count:      t.Count,
		Gross:      money.Format(t.Gross),
		Commission: money.Format(t.Commission),
		Admin:      money.Format(t.Admin),
	}
}

// MemberStatsDTO renders the member detail counters.
type MemberStatsDTO struct {
	Today    TotalsDTO `json:"today"`
	Month    TotalsDTO `json:"this_month"`
	Unpaid   TotalsDTO `json:"unpaid"`
	Lifetime TotalsDTO `json:"lifetime"`
}

func StatsToDTO(s *MemberStats) MemberStatsDTO {
	return MemberStatsDTO{
		Today:    TotalsToDTO(s.Today),
		Month:    TotalsToDTO(s.Month),
		Unpaid:   TotalsToDTO(s.Unpaid),
		Lifetime: TotalsToDTO(s.Lifetime),
	}
}

// SettlementRecordDTO renders a stored payout batch.
type SettlementRecordDTO struct {
	ID               string    `json:"id"`
	TransactionCount int       `json:"transaction_count"`
	Amount           string    `json:"amount"`
	SettledBy        *string   `json:"settled_by,omitempty"`
	SettledAt        time.Time `json:"settled_at"`
}

func SettlementRecordsFromModels(rows []models.PCSettlement) []SettlementRecordDTO {
	out := make([]SettlementRecordDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, SettlementRecordDTO{
			ID:               row.ID.String(),
			TransactionCount: row.TransactionCount,
			Amount:           money.Format(row.Amount),
			SettledBy:        row.SettledBy,
			SettledAt:        row.SettledAt,
		})
	}
	return out
}
