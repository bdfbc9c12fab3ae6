package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagcenter/pcledger/api/middleware"
	"github.com/diagcenter/pcledger/api/responses"
	"github.com/diagcenter/pcledger/api/validators"
	"github.com/diagcenter/pcledger/internal/ledger"
	pkgerrors "github.com/diagcenter/pcledger/pkg/errors"
	"github.com/diagcenter/pcledger/pkg/logger"
	"github.com/diagcenter/pcledger/pkg/money"
	"github.com/diagcenter/pcledger/pkg/pagination"
)

type transactionCreateRequest struct {
	PCCode         string  `json:"pc_code" validate:"required,max=20"`
	Amount         string  `json:"amount" validate:"required,decimal2"`
	ServiceType    string  `json:"service_type,omitempty" validate:"omitempty,oneof=normal digital"`
	PatientRef     *string `json:"patient_ref,omitempty" validate:"omitempty,max=64"`
	AppointmentRef *string `json:"appointment_ref,omitempty" validate:"omitempty,max=64"`
	LabBillRef     *string `json:"lab_bill_ref,omitempty" validate:"omitempty,max=64"`
	RecordedBy     *string `json:"recorded_by,omitempty" validate:"omitempty,max=100"`
	Notes          *string `json:"notes,omitempty"`
}

// TransactionCreate records one referral and credits the member's due amount.
func TransactionCreate(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		var payload transactionCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := money.ParseAmount(payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()).
				WithDetails(map[string]any{"field": "amount"}))
			return
		}

		txn, err := svc.CreateTransaction(r.Context(), ledger.CreateTransactionInput{
			MemberCode:     payload.PCCode,
			Amount:         amount,
			ServiceType:    payload.ServiceType,
			PatientRef:     payload.PatientRef,
			AppointmentRef: payload.AppointmentRef,
			LabBillRef:     payload.LabBillRef,
			RecordedBy:     actorOr(payload.RecordedBy, middleware.ActorFromContext(r.Context())),
			Notes:          payload.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, ledger.TransactionFromModel(txn))
	}
}

func TransactionGet(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		txn, err := svc.GetByNumber(r.Context(), chi.URLParam(r, "number"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ledger.TransactionFromModel(txn))
	}
}

// MemberTransactions pages through a member's statement, newest first.
func MemberTransactions(svc ledger.Service, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		from, to, err := validators.ParseDateRange(r, loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := r.URL.Query()
		page, err := svc.ListByMember(r.Context(), chi.URLParam(r, "code"), ledger.ListTransactionsInput{
			Paid:   query.Get("paid"),
			From:   from,
			To:     to,
			Cursor: query.Get("cursor"),
			Limit:  limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessPage(w, ledger.TransactionsFromModels(page.Items), page.NextCursor, limit)
	}
}

type settleRequest struct {
	SettledBy *string `json:"settled_by,omitempty" validate:"omitempty,max=100"`
}

// MemberSettle pays out every unpaid transaction of the member in one batch.
func MemberSettle(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		var payload settleRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Settle(r.Context(), chi.URLParam(r, "code"), actorOr(payload.SettledBy, middleware.ActorFromContext(r.Context())))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ledger.SettlementFromResult(result))
	}
}
