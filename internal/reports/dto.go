package reports

import (
	"time"

	"github.com/diagcenter/pcledger/internal/ledger"
	"github.com/diagcenter/pcledger/internal/members"
	"github.com/diagcenter/pcledger/pkg/money"
)

type CategoryReportDTO struct {
	Category    string           `json:"category"`
	MemberType  string           `json:"member_type"`
	ColorCode   string           `json:"color_code"`
	Members     int64            `json:"members"`
	Active      int64            `json:"active_members"`
	DueAmount   string           `json:"due_amount"`
	TotalEarned string           `json:"total_earned"`
	Totals      ledger.TotalsDTO `json:"transactions"`
}

type DashboardDTO struct {
	GeneratedAt time.Time           `json:"generated_at"`
	AllTime     ledger.TotalsDTO    `json:"all_time"`
	Today       ledger.TotalsDTO    `json:"today"`
	Month       ledger.TotalsDTO    `json:"this_month"`
	Unpaid      ledger.TotalsDTO    `json:"unpaid"`
	Members     int64               `json:"members"`
	Active      int64               `json:"active_members"`
	Categories  []CategoryReportDTO `json:"categories"`
	TopEarners  []members.MemberDTO `json:"top_earners"`
}

func CategoriesToDTO(rows []CategoryReport) []CategoryReportDTO {
	out := make([]CategoryReportDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, CategoryReportDTO{
			Category:    string(r.Category),
			MemberType:  r.Category.DisplayName(),
			ColorCode:   r.Category.ColorCode(),
			Members:     r.Members,
			Active:      r.Active,
			DueAmount:   money.Format(r.DueAmount),
			TotalEarned: money.Format(r.TotalEarned),
			Totals:      ledger.TotalsToDTO(r.Totals),
		})
	}
	return out
}

func DashboardToDTO(d *Dashboard) DashboardDTO {
	return DashboardDTO{
		GeneratedAt: d.GeneratedAt,
		AllTime:     ledger.TotalsToDTO(d.AllTime),
		Today:       ledger.TotalsToDTO(d.Today),
		Month:       ledger.TotalsToDTO(d.Month),
		Unpaid:      ledger.TotalsToDTO(d.Unpaid),
		Members:     d.Members,
		Active:      d.Active,
		Categories:  CategoriesToDTO(d.Categories),
		TopEarners:  members.FromModels(d.TopEarners),
	}
}
