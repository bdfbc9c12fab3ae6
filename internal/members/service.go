package members

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/diagcenter/pcledger/internal/sequence"
	"github.com/diagcenter/pcledger/pkg/config"
	"github.com/diagcenter/pcledger/pkg/db"
	"github.com/diagcenter/pcledger/pkg/db/models"
	"github.com/diagcenter/pcledger/pkg/enums"
	pkgerrors "github.com/diagcenter/pcledger/pkg/errors"
	"github.com/diagcenter/pcledger/pkg/logger"
	"github.com/diagcenter/pcledger/pkg/metrics"
	"github.com/diagcenter/pcledger/pkg/money"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Service owns member identity, rate configuration and running balances.
type Service interface {
	CreateMember(ctx context.Context, input CreateMemberInput) (*models.PCMember, error)
	Resolve(ctx context.Context, code string) (*models.PCMember, error)
	Get(ctx context.Context, code string) (*models.PCMember, error)
	Lookup(ctx context.Context, code string) (*LookupView, error)
	FindActiveByPhone(ctx context.Context, phone string) ([]models.PCMember, error)
	List(ctx context.Context, input ListMembersInput) (*ListMembersResult, error)
	Update(ctx context.Context, code string, input UpdateMemberInput) (*models.PCMember, error)
	Delete(ctx context.Context, code string) (*DeleteResult, error)

	// LockForUpdate loads the member row under a write lock inside tx.
	LockForUpdate(ctx context.Context, tx *gorm.DB, code string) (*models.PCMember, error)
	// ApplyReferral adds one referral's commission to a member locked by tx.
	ApplyReferral(ctx context.Context, tx *gorm.DB, member *models.PCMember, commission decimal.Decimal) error
	// ApplySettlement moves amount from due into lifetime earnings for a member locked by tx.
	ApplySettlement(ctx context.Context, tx *gorm.DB, member *models.PCMember, amount decimal.Decimal) error
}

// CreateMemberInput carries the admin form for a new member. Nil rates fall
// back to the category defaults.
type CreateMemberInput struct {
	Category        string
	Name            string
	Phone           string
	Email           *string
	Address         *string
	Notes           *string
	CommissionRate  *decimal.Decimal
	NormalTestRate  *decimal.Decimal
	DigitalTestRate *decimal.Decimal
	IsActive        *bool
	CreatedBy       *string
}

// UpdateMemberInput carries profile edits. Code, category and balances are not editable.
type UpdateMemberInput struct {
	Name            *string
	Phone           *string
	Email           *string
	Address         *string
	Notes           *string
	CommissionRate  *decimal.Decimal
	NormalTestRate  *decimal.Decimal
	DigitalTestRate *decimal.Decimal
	IsActive        *bool
}

// ListMembersInput filters the admin member list.
type ListMembersInput struct {
	Category string
	Active   *bool
	Search   string
	Limit    int
	Offset   int
}

// ListMembersResult is one page of members plus the unpaged total.
type ListMembersResult struct {
	Members []models.PCMember
	Total   int64
	Limit   int
	Offset  int
}

// DeleteResult confirms a deletion.
type DeleteResult struct {
	Code                string `json:"code"`
	Name                string `json:"name"`
	TransactionsRemoved int64  `json:"transactions_removed"`
	SettlementsRemoved  int64  `json:"settlements_removed"`
}

// ServiceParams wires the member service.
type ServiceParams struct {
	Repo       Repository
	Tx         db.TxRunner
	Commission config.CommissionConfig
	Logger     *logger.Logger
	Metrics    *metrics.LedgerMetrics
}

type service struct {
	repo        Repository
	tx          db.TxRunner
	categories  map[enums.MemberCategory]config.CategoryConfig
	codeWidth   int
	maxAttempts int
	logg        *logger.Logger
	metrics     *metrics.LedgerMetrics
	lookups     singleflight.Group
	now         func() time.Time
}

// NewService builds the member registry.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("members repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if err := params.Commission.Validate(); err != nil {
		return nil, fmt.Errorf("commission config: %w", err)
	}
	categories, err := params.Commission.Categories()
	if err != nil {
		return nil, err
	}
	return &service{
		repo:        params.Repo,
		tx:          params.Tx,
		categories:  categories,
		codeWidth:   params.Commission.CodeWidth,
		maxAttempts: params.Commission.MaxAttempts,
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         time.Now,
	}, nil
}

// RateFor resolves the percentage applied to a referral. A service-specific
// rate wins when configured; otherwise the member's default rate applies.
func RateFor(member *models.PCMember, serviceType enums.ServiceType) decimal.Decimal {
	switch serviceType {
	case enums.ServiceTypeNormal:
		if member.NormalTestRate.Valid {
			return member.NormalTestRate.Decimal
		}
	case enums.ServiceTypeDigital:
		if member.DigitalTestRate.Valid {
			return member.DigitalTestRate.Decimal
		}
	}
	return member.CommissionRate
}

func (s *service) CreateMember(ctx context.Context, input CreateMemberInput) (*models.PCMember, error) {
	category, err := enums.ParseMemberCategory(input.Category)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	phone := strings.TrimSpace(input.Phone)
	if phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone is required")
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}

	defaults := s.categories[category]
	rate, err := pickRate(input.CommissionRate, defaults.DefaultRate, "commission_rate")
	if err != nil {
		return nil, err
	}
	normalRate, err := pickRate(input.NormalTestRate, defaults.NormalRate, "normal_test_rate")
	if err != nil {
		return nil, err
	}
	digitalRate, err := pickRate(input.DigitalTestRate, defaults.DigitalRate, "digital_test_rate")
	if err != nil {
		return nil, err
	}

	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}

	prefix := defaults.Prefix
	scope := sequence.MemberScope(prefix)
	seed := func(tx *gorm.DB) (int64, error) {
		codes, err := s.repo.WithTx(tx).ListCodesWithPrefix(ctx, prefix)
		if err != nil {
			return 0, err
		}
		return sequence.MaxSuffix(codes, prefix), nil
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		now := s.now().UTC()
		member := &models.PCMember{
			ID:                    uuid.New(),
			Category:              category,
			Name:                  name,
			Phone:                 phone,
			Email:                 email,
			Address:               trimmed(input.Address),
			Notes:                 trimmed(input.Notes),
			CommissionRate:        rate,
			NormalTestRate:        decimal.NewNullDecimal(normalRate),
			DigitalTestRate:       decimal.NewNullDecimal(digitalRate),
			DueAmount:             decimal.Zero,
			TotalCommissionEarned: decimal.Zero,
			IsActive:              active,
			CreatedBy:             trimmed(input.CreatedBy),
			CreatedAt:             now,
			UpdatedAt:             now,
		}

		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if attempt > 1 {
				if err := sequence.Resync(ctx, tx, scope, seed); err != nil {
					return err
				}
			}
			value, err := sequence.Next(ctx, tx, scope, seed)
			if err != nil {
				return err
			}
			member.Code = sequence.Format(prefix, value, s.codeWidth)
			return s.repo.WithTx(tx).Create(ctx, member)
		})
		if err == nil {
			s.logInfo(ctx, "member.created", map[string]any{
				"member_code": member.Code,
				"category":    member.Category,
				"attempt":     attempt,
			})
			return member, nil
		}
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create member")
		}
		s.metrics.SequenceConflict(sequence.ScopeKind(scope))
		s.logInfo(ctx, "sequence.conflict_retry", map[string]any{
			"scope":   scope,
			"attempt": attempt,
		})
	}

	return nil, pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique member code").
		WithDetails(map[string]any{"category": category, "attempts": s.maxAttempts})
}

func (s *service) Resolve(ctx context.Context, code string) (*models.PCMember, error) {
	member, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !member.IsActive {
		return nil, inactiveError(member.Code)
	}
	return member, nil
}

// Get loads a member regardless of its active flag. Concurrent reads of the
// same code share one query.
func (s *service) Get(ctx context.Context, code string) (*models.PCMember, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "PC code is required")
	}

	v, err, _ := s.lookups.Do(code, func() (any, error) {
		return s.repo.FindByCode(ctx, code)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError(code)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}
	member := *v.(*models.PCMember)
	return &member, nil
}

func (s *service) Lookup(ctx context.Context, code string) (*LookupView, error) {
	member, err := s.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	return NewLookupView(member), nil
}

func (s *service) FindActiveByPhone(ctx context.Context, phone string) ([]models.PCMember, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone is required")
	}
	members, err := s.repo.FindActiveByPhone(ctx, phone)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find members by phone")
	}
	return members, nil
}

func (s *service) List(ctx context.Context, input ListMembersInput) (*ListMembersResult, error) {
	filter := ListFilter{
		Active: input.Active,
		Search: input.Search,
		Limit:  input.Limit,
		Offset: input.Offset,
	}
	if strings.TrimSpace(input.Category) != "" {
		category, err := enums.ParseMemberCategory(input.Category)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
		}
		filter.Category = &category
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offset must be non-negative")
	}

	members, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list members")
	}
	return &ListMembersResult{
		Members: members,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func (s *service) Update(ctx context.Context, code string, input UpdateMemberInput) (*models.PCMember, error) {
	fields := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		fields["name"] = name
	}
	if input.Phone != nil {
		phone := strings.TrimSpace(*input.Phone)
		if phone == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone cannot be empty")
		}
		fields["phone"] = phone
	}
	if input.Email != nil {
		email, err := normalizeEmail(input.Email)
		if err != nil {
			return nil, err
		}
		fields["email"] = email
	}
	if input.Address != nil {
		fields["address"] = trimmed(input.Address)
	}
	if input.Notes != nil {
		fields["notes"] = trimmed(input.Notes)
	}
	rates := []struct {
		column string
		value  *decimal.Decimal
	}{
		{"commission_rate", input.CommissionRate},
		{"normal_test_rate", input.NormalTestRate},
		{"digital_test_rate", input.DigitalTestRate},
	}
	for _, r := range rates {
		if r.value == nil {
			continue
		}
		if err := money.ValidatePercentage(*r.value); err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s: %v", r.column, err))
		}
		fields[r.column] = *r.value
	}
	if input.IsActive != nil {
		fields["is_active"] = *input.IsActive
	}

	var updated *models.PCMember
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		member, err := s.LockForUpdate(ctx, tx, code)
		if err != nil {
			return err
		}
		if len(fields) > 0 {
			fields["updated_at"] = s.now().UTC()
			if err := s.repo.WithTx(tx).UpdateProfile(ctx, member.ID, fields); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update member")
			}
		}
		updated, err = s.repo.WithTx(tx).FindByCode(ctx, member.Code)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload member")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, "member.updated", map[string]any{"member_code": updated.Code, "fields": len(fields)})
	return updated, nil
}

func (s *service) Delete(ctx context.Context, code string) (*DeleteResult, error) {
	var result *DeleteResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		member, err := s.LockForUpdate(ctx, tx, code)
		if err != nil {
			return err
		}
		counts, err := s.repo.WithTx(tx).Delete(ctx, member.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete member")
		}
		result = &DeleteResult{
			Code:                member.Code,
			Name:                member.Name,
			TransactionsRemoved: counts.Transactions,
			SettlementsRemoved:  counts.Settlements,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, "member.deleted", map[string]any{
		"member_code":          result.Code,
		"transactions_removed": result.TransactionsRemoved,
	})
	return result, nil
}

func (s *service) LockForUpdate(ctx context.Context, tx *gorm.DB, code string) (*models.PCMember, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "PC code is required")
	}
	member, err := s.repo.WithTx(tx).FindByCodeForUpdate(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError(code)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock member")
	}
	return member, nil
}

func (s *service) ApplyReferral(ctx context.Context, tx *gorm.DB, member *models.PCMember, commission decimal.Decimal) error {
	if member == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "member required")
	}
	due := money.Normalize(member.DueAmount.Add(commission))
	referrals := member.TotalReferrals + 1
	if err := s.repo.WithTx(tx).UpdateBalances(ctx, member.ID, due, member.TotalCommissionEarned, referrals); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply referral")
	}
	member.DueAmount = due
	member.TotalReferrals = referrals
	return nil
}

func (s *service) ApplySettlement(ctx context.Context, tx *gorm.DB, member *models.PCMember, amount decimal.Decimal) error {
	if member == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "member required")
	}
	earned := money.Normalize(member.TotalCommissionEarned.Add(amount))
	if err := s.repo.WithTx(tx).UpdateBalances(ctx, member.ID, decimal.Zero, earned, member.TotalReferrals); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply settlement")
	}
	member.DueAmount = decimal.Zero
	member.TotalCommissionEarned = earned
	return nil
}

func (s *service) logInfo(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}

func pickRate(override *decimal.Decimal, fallback decimal.Decimal, field string) (decimal.Decimal, error) {
	if override == nil {
		return fallback, nil
	}
	if err := money.ValidatePercentage(*override); err != nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s: %v", field, err))
	}
	return *override, nil
}

func normalizeEmail(raw *string) (*string, error) {
	email := trimmed(raw)
	if email == nil {
		return nil, nil
	}
	if !strings.Contains(*email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid email")
	}
	return email, nil
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

func notFoundError(code string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("invalid PC code %s", code)).
		WithDetails(map[string]any{"code": code})
}

func inactiveError(code string) error {
	return pkgerrors.New(pkgerrors.CodeInactive, fmt.Sprintf("PC code %s is inactive", code)).
		WithDetails(map[string]any{"code": code})
}
