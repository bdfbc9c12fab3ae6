package members

import (
	"time"

	"github.com/diagcenter/pcledger/pkg/db/models"
	"github.com/diagcenter/pcledger/pkg/money"
)

// MemberDTO is the admin representation of a member. Money renders as fixed two-decimal strings.
type MemberDTO struct {
	ID                    string    `json:"id"`
	Code                  string    `json:"code"`
	Category              string    `json:"category"`
	MemberType            string    `json:"member_type"`
	Name                  string    `json:"name"`
	Phone                 string    `json:"phone"`
	Email                 *string   `json:"email,omitempty"`
	Address               *string   `json:"address,omitempty"`
	Notes                 *string   `json:"notes,omitempty"`
	CommissionRate        string    `json:"commission_rate"`
	NormalTestRate        *string   `json:"normal_test_rate,omitempty"`
	DigitalTestRate       *string   `json:"digital_test_rate,omitempty"`
	DueAmount             string    `json:"due_amount"`
	TotalCommissionEarned string    `json:"total_commission_earned"`
	TotalReferrals        int       `json:"total_referrals"`
	IsActive              bool      `json:"is_active"`
	CreatedBy             *string   `json:"created_by,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// FromModel maps the persisted member to its DTO.
func FromModel(m *models.PCMember) MemberDTO {
	dto := MemberDTO{
		ID:                    m.ID.String(),
		Code:                  m.Code,
		Category:              string(m.Category),
		MemberType:            m.Category.DisplayName(),
		Name:                  m.Name,
		Phone:                 m.Phone,
		Email:                 m.Email,
		Address:               m.Address,
		Notes:                 m.Notes,
		CommissionRate:        money.Format(m.CommissionRate),
		DueAmount:             money.Format(m.DueAmount),
		TotalCommissionEarned: money.Format(m.TotalCommissionEarned),
		TotalReferrals:        m.TotalReferrals,
		IsActive:              m.IsActive,
		CreatedBy:             m.CreatedBy,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
	if m.NormalTestRate.Valid {
		v := money.Format(m.NormalTestRate.Decimal)
		dto.NormalTestRate = &v
	}
	if m.DigitalTestRate.Valid {
		v := money.Format(m.DigitalTestRate.Decimal)
		dto.DigitalTestRate = &v
	}
	return dto
}

// FromModels maps a slice of members.
func FromModels(items []models.PCMember) []MemberDTO {
	out := make([]MemberDTO, 0, len(items))
	for i := range items {
		out = append(out, FromModel(&items[i]))
	}
	return out
}

// LookupView is what the front desk sees after typing a PC code.
type LookupView struct {
	Code                 string `json:"code"`
	Name                 string `json:"name"`
	MemberType           string `json:"member_type"`
	Phone                string `json:"phone"`
	CommissionPercentage string `json:"commission_percentage"`
	TotalEarned          string `json:"total_earned"`
	DueAmount            string `json:"due_amount"`
	ColorCode            string `json:"color_code"`
}

func NewLookupView(m *models.PCMember) *LookupView {
	return &LookupView{
		Code:                 m.Code,
		Name:                 m.Name,
		MemberType:           m.Category.DisplayName(),
		Phone:                m.Phone,
		CommissionPercentage: money.Format(m.CommissionRate),
		TotalEarned:          money.Format(m.TotalCommissionEarned),
		DueAmount:            money.Format(m.DueAmount),
		ColorCode:            m.Category.ColorCode(),
	}
}
