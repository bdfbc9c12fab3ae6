package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diagcenter/pcledger/internal/members"
	"github.com/diagcenter/pcledger/internal/sequence"
	"github.com/diagcenter/pcledger/pkg/config"
	"github.com/diagcenter/pcledger/pkg/db"
	"github.com/diagcenter/pcledger/pkg/db/models"
	"github.com/diagcenter/pcledger/pkg/enums"
	pkgerrors "github.com/diagcenter/pcledger/pkg/errors"
	"github.com/diagcenter/pcledger/pkg/logger"
	"github.com/diagcenter/pcledger/pkg/metrics"
	"github.com/diagcenter/pcledger/pkg/money"
	"github.com/diagcenter/pcledger/pkg/pagination"
)

// Service records referrals and settles what members are owed.
type Service interface {
	CreateTransaction(ctx context.Context, input CreateTransactionInput) (*models.PCTransaction, error)
	GetByNumber(ctx context.Context, number string) (*models.PCTransaction, error)
	ListUnpaid(ctx context.Context, memberID uuid.UUID) ([]models.PCTransaction, error)
	ListByMember(ctx context.Context, code string, input ListTransactionsInput) (*pagination.Page[models.PCTransaction], error)
	ListSettlements(ctx context.Context, code string) ([]models.PCSettlement, error)
	Settle(ctx context.Context, code string, settledBy *string) (*SettlementResult, error)
	MemberStats(ctx context.Context, code string, now time.Time) (*MemberStats, error)
}

// CreateTransactionInput carries one referral as entered at billing time.
type CreateTransactionInput struct {
	MemberCode     string
	Amount         decimal.Decimal
	ServiceType    string
	PatientRef     *string
	AppointmentRef *string
	LabBillRef     *string
	RecordedBy     *string
	Notes          *string
}

// ListTransactionsInput filters a member statement.
type ListTransactionsInput struct {
	Paid   string
	From   *time.Time
	To     *time.Time
	Cursor string
	Limit  int
}

// SettlementResult confirms a settlement. Settled is false when nothing was due.
type SettlementResult struct {
	MemberCode       string
	Settled          bool
	SettlementID     *uuid.UUID
	TransactionCount int
	Amount           decimal.Decimal
	TotalEarned      decimal.Decimal
	SettledAt        *time.Time
}

// MemberStats backs the member detail view.
type MemberStats struct {
	Today    Totals
	Month    Totals
	Unpaid   Totals
	Lifetime Totals
}

// ServiceParams wires the ledger service.
type ServiceParams struct {
	Repo       Repository
	Members    members.Service
	Tx         db.TxRunner
	Commission config.CommissionConfig
	Logger     *logger.Logger
	Metrics    *metrics.LedgerMetrics
}

type service struct {
	repo        Repository
	members     members.Service
	tx          db.TxRunner
	txnPrefix   string
	txnWidth    int
	maxAttempts int
	loc         *time.Location
	logg        *logger.Logger
	metrics     *metrics.LedgerMetrics
	now         func() time.Time
}

// NewService wires the ledger with its repository and the member registry.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Members == nil {
		return nil, fmt.Errorf("members service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if err := params.Commission.Validate(); err != nil {
		return nil, fmt.Errorf("commission config: %w", err)
	}
	loc, err := params.Commission.Location()
	if err != nil {
		return nil, err
	}
	return &service{
		repo:        params.Repo,
		members:     params.Members,
		tx:          params.Tx,
		txnPrefix:   params.Commission.TxnPrefix,
		txnWidth:    params.Commission.TxnWidth,
		maxAttempts: params.Commission.MaxAttempts,
		loc:         loc,
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         time.Now,
	}, nil
}

func (s *service) CreateTransaction(ctx context.Context, input CreateTransactionInput) (*models.PCTransaction, error) {
	code := strings.TrimSpace(input.MemberCode)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "PC code is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total amount must be greater than zero")
	}
	if err := money.CheckScale(input.Amount); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	serviceType, err := enums.ParseServiceType(input.ServiceType)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		now := s.now()
		stamp := now.In(s.loc).Format("20060102")
		prefix := s.txnPrefix + stamp
		scope := sequence.TransactionScope(stamp)
		seed := func(tx *gorm.DB) (int64, error) {
			numbers, err := s.repo.WithTx(tx).ListNumbersWithPrefix(ctx, prefix)
			if err != nil {
				return 0, err
			}
			return sequence.MaxSuffix(numbers, prefix), nil
		}

		var created *models.PCTransaction
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			member, err := s.members.LockForUpdate(ctx, tx, code)
			if err != nil {
				return err
			}
			if !member.IsActive {
				return pkgerrors.New(pkgerrors.CodeInactive, fmt.Sprintf("PC code %s is inactive", member.Code)).
					WithDetails(map[string]any{"code": member.Code})
			}

			rate := members.RateFor(member, serviceType)
			commission, admin := money.Split(input.Amount, rate)

			if attempt > 1 {
				if err := sequence.Resync(ctx, tx, scope, seed); err != nil {
					return err
				}
			}
			value, err := sequence.Next(ctx, tx, scope, seed)
			if err != nil {
				return err
			}

			txn := &models.PCTransaction{
				ID:                   uuid.New(),
				TransactionNumber:    sequence.Format(prefix, value, s.txnWidth),
				MemberID:             member.ID,
				PatientRef:           trimmed(input.PatientRef),
				AppointmentRef:       trimmed(input.AppointmentRef),
				LabBillRef:           trimmed(input.LabBillRef),
				ServiceType:          serviceType,
				TotalAmount:          input.Amount,
				CommissionPercentage: rate,
				CommissionAmount:     commission,
				AdminAmount:          admin,
				RecordedBy:           trimmed(input.RecordedBy),
				Notes:                trimmed(input.Notes),
				CreatedAt:            now.UTC(),
			}
			if err := s.repo.WithTx(tx).Create(ctx, txn); err != nil {
				return err
			}
			if err := s.members.ApplyReferral(ctx, tx, member, commission); err != nil {
				return err
			}
			created = txn
			return nil
		})
		if err == nil {
			s.metrics.TransactionCreated(serviceType.Label(), created.CommissionAmount)
			s.logInfo(ctx, "transaction.created", map[string]any{
				"member_code":        code,
				"transaction_number": created.TransactionNumber,
				"total_amount":       money.Format(created.TotalAmount),
				"commission_amount":  money.Format(created.CommissionAmount),
				"attempt":            attempt,
			})
			return created, nil
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction")
		}
		s.metrics.SequenceConflict(sequence.ScopeKind(scope))
		s.logInfo(ctx, "sequence.conflict_retry", map[string]any{"scope": scope, "attempt": attempt})
	}

	return nil, pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique transaction number").
		WithDetails(map[string]any{"attempts": s.maxAttempts})
}

func (s *service) GetByNumber(ctx context.Context, number string) (*models.PCTransaction, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction number is required")
	}
	txn, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("transaction %s not found", number))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	return txn, nil
}

func (s *service) ListUnpaid(ctx context.Context, memberID uuid.UUID) ([]models.PCTransaction, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id is required")
	}
	rows, err := s.repo.ListUnpaid(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unpaid transactions")
	}
	return rows, nil
}

func (s *service) ListByMember(ctx context.Context, code string, input ListTransactionsInput) (*pagination.Page[models.PCTransaction], error) {
	member, err := s.members.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	paid, err := enums.ParsePaidStatus(input.Paid)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	if input.From != nil && input.To != nil && !input.From.Before(*input.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.ListStatement(ctx, StatementQuery{
		MemberID: member.ID,
		Paid:     paid,
		From:     input.From,
		To:       input.To,
		Cursor:   cursor,
		Limit:    pagination.LimitWithBuffer(input.Limit),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}

	return pagination.NewPage(rows, input.Limit, func(txn models.PCTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: txn.CreatedAt, ID: txn.ID}
	}), nil
}

func (s *service) ListSettlements(ctx context.Context, code string) ([]models.PCSettlement, error) {
	member, err := s.members.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListSettlements(ctx, member.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settlements")
	}
	return rows, nil
}

// Settle pays out everything currently owed to the member in one batch.
// Either every unpaid transaction flips and the balances move, or nothing changes.
// A member with nothing due is left untouched.
func (s *service) Settle(ctx context.Context, code string, settledBy *string) (*SettlementResult, error) {
	var result *SettlementResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		member, err := s.members.LockForUpdate(ctx, tx, code)
		if err != nil {
			return err
		}
		result = &SettlementResult{
			MemberCode:  member.Code,
			Amount:      decimal.Zero,
			TotalEarned: member.TotalCommissionEarned,
		}

		unpaid, err := s.repo.WithTx(tx).ListUnpaid(ctx, member.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load unpaid transactions")
		}
		sum := decimal.Zero
		ids := make([]uuid.UUID, 0, len(unpaid))
		for _, txn := range unpaid {
			sum = sum.Add(txn.CommissionAmount)
			ids = append(ids, txn.ID)
		}
		if !sum.Equal(member.DueAmount) {
			return pkgerrors.New(pkgerrors.CodeConsistency, "unpaid commission does not match due amount").
				WithDetails(map[string]any{
					"code":        member.Code,
					"due_amount":  money.Format(member.DueAmount),
					"unpaid_sum":  money.Format(sum),
					"unpaid_rows": len(unpaid),
				})
		}
		// Rows whose commission rounded to zero stay unpaid; nothing is owed.
		if len(unpaid) == 0 || member.DueAmount.IsZero() {
			return nil
		}

		settledAt := s.now().UTC()
		settlement := &models.PCSettlement{
			ID:               uuid.New(),
			MemberID:         member.ID,
			TransactionCount: len(unpaid),
			Amount:           sum,
			SettledBy:        trimmed(settledBy),
			SettledAt:        settledAt,
		}
		if err := s.repo.WithTx(tx).CreateSettlement(ctx, settlement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record settlement")
		}

		flipped, err := s.repo.WithTx(tx).MarkPaid(ctx, ids, settlement.ID, settledAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark transactions paid")
		}
		if flipped != int64(len(ids)) {
			return pkgerrors.New(pkgerrors.CodeConsistency, "settlement row count mismatch").
				WithDetails(map[string]any{
					"code":     member.Code,
					"expected": len(ids),
					"flipped":  flipped,
				})
		}

		if err := s.members.ApplySettlement(ctx, tx, member, sum); err != nil {
			return err
		}

		result.Settled = true
		result.SettlementID = &settlement.ID
		result.TransactionCount = len(unpaid)
		result.Amount = sum
		result.TotalEarned = member.TotalCommissionEarned
		result.SettledAt = &settledAt
		return nil
	})
	if err != nil {
		s.metrics.Settlement(metrics.SettlementFailed)
		if pkgerrors.IsCode(err, pkgerrors.CodeConsistency) && s.logg != nil {
			s.logg.Error(s.logg.WithMemberCode(ctx, code), "settlement.consistency_failure", err)
		}
		return nil, err
	}

	if !result.Settled {
		s.metrics.Settlement(metrics.SettlementEmpty)
		s.logInfo(ctx, "settlement.empty", map[string]any{"member_code": result.MemberCode})
		return result, nil
	}
	s.metrics.Settlement(metrics.SettlementSettled)
	s.logInfo(ctx, "settlement.completed", map[string]any{
		"member_code":       result.MemberCode,
		"settlement_id":     result.SettlementID.String(),
		"transaction_count": result.TransactionCount,
		"amount":            money.Format(result.Amount),
	})
	return result, nil
}

func (s *service) MemberStats(ctx context.Context, code string, now time.Time) (*MemberStats, error) {
	member, err := s.members.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	local := now.In(s.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, s.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)
	memberID := member.ID

	today, err := s.repo.Totals(ctx, TotalsQuery{MemberID: &memberID, From: &dayStart, To: &dayEnd})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "member stats today")
	}
	month, err := s.repo.Totals(ctx, TotalsQuery{MemberID: &memberID, From: &monthStart, To: &dayEnd})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "member stats month")
	}
	unpaid, err := s.repo.Totals(ctx, TotalsQuery{MemberID: &memberID, Paid: enums.PaidStatusUnpaid})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "member stats unpaid")
	}
	lifetime, err := s.repo.Totals(ctx, TotalsQuery{MemberID: &memberID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "member stats lifetime")
	}
	stats := &MemberStats{Today: today, Month: month, Unpaid: unpaid, Lifetime: lifetime}
	return stats, nil
}

func (s *service) logInfo(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}

func trimmed(raw *string) *string {
	if raw == nil {
		return nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return nil
	}
	return &value
}
