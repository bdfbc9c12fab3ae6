package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagcenter/pcledger/api/middleware"
	"github.com/diagcenter/pcledger/api/responses"
	"github.com/diagcenter/pcledger/api/validators"
	"github.com/diagcenter/pcledger/internal/ledger"
	"github.com/diagcenter/pcledger/internal/members"
	pkgerrors "github.com/diagcenter/pcledger/pkg/errors"
	"github.com/diagcenter/pcledger/pkg/logger"
)

const maxSearchLen = 100

type memberCreateRequest struct {
	Category            string  `json:"category" validate:"required"`
	Name                string  `json:"name" validate:"required,max=200"`
	Phone               string  `json:"phone" validate:"required,max=20"`
	Email               *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Address             *string `json:"address,omitempty"`
	Notes               *string `json:"notes,omitempty"`
	CommissionRate      *string `json:"commission_percentage,omitempty" validate:"omitempty,decimal2"`
	NormalTestRate      *string `json:"normal_test_rate,omitempty" validate:"omitempty,decimal2"`
	DigitalTestRate     *string `json:"digital_test_rate,omitempty" validate:"omitempty,decimal2"`
	IsActive            *bool   `json:"is_active,omitempty"`
	CreatedBy           *string `json:"created_by,omitempty" validate:"omitempty,max=100"`
	AllowDuplicatePhone bool    `json:"allow_duplicate_phone,omitempty"`
}

func (r memberCreateRequest) toInput(actor string) (members.CreateMemberInput, error) {
	input := members.CreateMemberInput{
		Category:  r.Category,
		Name:      r.Name,
		Phone:     r.Phone,
		Email:     r.Email,
		Address:   r.Address,
		Notes:     r.Notes,
		IsActive:  r.IsActive,
		CreatedBy: actorOr(r.CreatedBy, actor),
	}
	var err error
	if input.CommissionRate, err = parseRate("commission_percentage", r.CommissionRate); err != nil {
		return input, err
	}
	if input.NormalTestRate, err = parseRate("normal_test_rate", r.NormalTestRate); err != nil {
		return input, err
	}
	if input.DigitalTestRate, err = parseRate("digital_test_rate", r.DigitalTestRate); err != nil {
		return input, err
	}
	return input, nil
}

// MemberCreate registers a PC member. A phone already held by an active member
// is rejected unless the caller confirms with allow_duplicate_phone.
func MemberCreate(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "member service unavailable"))
			return
		}

		var payload memberCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput(middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if !payload.AllowDuplicatePhone {
			existing, err := svc.FindActiveByPhone(r.Context(), payload.Phone)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if len(existing) > 0 {
				codes := make([]string, 0, len(existing))
				for _, m := range existing {
					codes = append(codes, m.Code)
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "phone already registered to an active member").
					WithDetails(map[string]any{"phone": "already registered", "existing_codes": codes}))
				return
			}
		}

		member, err := svc.CreateMember(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, members.FromModel(member))
	}
}

type memberListResponse struct {
	Members []members.MemberDTO `json:"members"`
	Total   int64               `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// MemberList filters by category, active flag and free-text q.
func MemberList(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "member service unavailable"))
			return
		}

		active, err := validators.ParseQueryBool(r, "active")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := r.URL.Query()
		result, err := svc.List(r.Context(), members.ListMembersInput{
			Category: strings.TrimSpace(query.Get("category")),
			Active:   active,
			Search:   validators.SanitizeString(query.Get("q"), maxSearchLen),
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, memberListResponse{
			Members: members.FromModels(result.Members),
			Total:   result.Total,
			Limit:   result.Limit,
			Offset:  result.Offset,
		})
	}
}

type memberDetailResponse struct {
	Member      members.MemberDTO            `json:"member"`
	Stats       ledger.MemberStatsDTO        `json:"stats"`
	Settlements []ledger.SettlementRecordDTO `json:"settlements"`
}

// MemberDetail returns the admin view of a member, active or not.
func MemberDetail(svc members.Service, ledgerSvc ledger.Service, now func() time.Time, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || ledgerSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "member service unavailable"))
			return
		}

		code := chi.URLParam(r, "code")
		member, err := svc.Get(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stats, err := ledgerSvc.MemberStats(r.Context(), member.Code, now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		settlements, err := ledgerSvc.ListSettlements(r.Context(), member.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, memberDetailResponse{
			Member:      members.FromModel(member),
			Stats:       ledger.StatsToDTO(stats),
			Settlements: ledger.SettlementRecordsFromModels(settlements),
		})
	}
}

type memberUpdateRequest struct {
	Name            *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Phone           *string `json:"phone,omitempty" validate:"omitempty,min=1,max=20"`
	Email           *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Address         *string `json:"address,omitempty"`
	Notes           *string `json:"notes,omitempty"`
	CommissionRate  *string `json:"commission_percentage,omitempty" validate:"omitempty,decimal2"`
	NormalTestRate  *string `json:"normal_test_rate,omitempty" validate:"omitempty,decimal2"`
	DigitalTestRate *string `json:"digital_test_rate,omitempty" validate:"omitempty,decimal2"`
	IsActive        *bool   `json:"is_active,omitempty"`
}

func (r memberUpdateRequest) toInput() (members.UpdateMemberInput, error) {
	input := members.UpdateMemberInput{
		Name:     r.Name,
		Phone:    r.Phone,
		Email:    r.Email,
		Address:  r.Address,
		Notes:    r.Notes,
		IsActive: r.IsActive,
	}
	var err error
	if input.CommissionRate, err = parseRate("commission_percentage", r.CommissionRate); err != nil {
		return input, err
	}
	if input.NormalTestRate, err = parseRate("normal_test_rate", r.NormalTestRate); err != nil {
		return input, err
	}
	if input.DigitalTestRate, err = parseRate("digital_test_rate", r.DigitalTestRate); err != nil {
		return input, err
	}
	return input, nil
}

// MemberUpdate edits profile fields, rates and the active flag.
func MemberUpdate(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "member service unavailable"))
			return
		}

		var payload memberUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		member, err := svc.Update(r.Context(), chi.URLParam(r, "code"), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, members.FromModel(member))
	}
}

// MemberDelete removes a member together with its transactions and settlements.
func MemberDelete(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "member service unavailable"))
			return
		}

		result, err := svc.Delete(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// MemberLookup resolves an active code for the billing screen.
func MemberLookup(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "member service unavailable"))
			return
		}

		code := strings.TrimSpace(r.URL.Query().Get("code"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "code is required").
				WithDetails(map[string]any{"field": "code"}))
			return
		}
		view, err := svc.Lookup(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
