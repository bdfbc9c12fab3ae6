package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/diagcenter/pcledger/internal/members"
	"github.com/diagcenter/pcledger/internal/repo/repotest"
	"github.com/diagcenter/pcledger/pkg/config"
	"github.com/diagcenter/pcledger/pkg/db"
	"github.com/diagcenter/pcledger/pkg/db/models"
	pkgerrors "github.com/diagcenter/pcledger/pkg/errors"
)

type fixture struct {
	client  *db.Client
	members members.Service
	ledger  *service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, nil)
}

func newFixtureWithRepo(t *testing.T, wrap func(Repository) Repository) *fixture {
	t.Helper()
	client := repotest.Client(t)
	cfg := config.DefaultCommissionConfig()

	memberSvc, err := members.NewService(members.ServiceParams{
		Repo:       members.NewRepository(client.DB()),
		Tx:         client,
		Commission: cfg,
	})
	require.NoError(t, err)

	var repo Repository = NewRepository(client.DB())
	if wrap != nil {
		repo = wrap(repo)
	}
	svc, err := NewService(ServiceParams{
		Repo:       repo,
		Members:    memberSvc,
		Tx:         client,
		Commission: cfg,
	})
	require.NoError(t, err)
	return &fixture{client: client, members: memberSvc, ledger: svc.(*service)}
}

func (f *fixture) member(t *testing.T, category string) *models.PCMember {
	t.Helper()
	m, err := f.members.CreateMember(context.Background(), members.CreateMemberInput{
		Category: category,
		Name:     "Agent " + category,
		Phone:    "0171" + category,
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) record(t *testing.T, code, amount, serviceType string) *models.PCTransaction {
	t.Helper()
	txn, err := f.ledger.CreateTransaction(context.Background(), CreateTransactionInput{
		MemberCode:  code,
		Amount:      dec(amount),
		ServiceType: serviceType,
	})
	require.NoError(t, err)
	return txn
}

func (f *fixture) reload(t *testing.T, code string) *models.PCMember {
	t.Helper()
	m, err := f.members.Get(context.Background(), code)
	require.NoError(t, err)
	return m
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestReferralsThenSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.member(t, "LIFETIME")

	first := f.record(t, member.Code, "1000.00", "")
	second := f.record(t, member.Code, "250.00", "")

	assert.True(t, first.CommissionAmount.Equal(dec("200")))
	assert.True(t, first.AdminAmount.Equal(dec("800")))
	assert.True(t, second.CommissionAmount.Equal(dec("50")))
	assert.True(t, second.AdminAmount.Equal(dec("200")))

	stored := f.reload(t, member.Code)
	assert.True(t, stored.DueAmount.Equal(dec("250")))
	assert.Equal(t, 2, stored.TotalReferrals)
	assert.True(t, stored.TotalCommissionEarned.IsZero())

	result, err := f.ledger.Settle(ctx, member.Code, nil)
	require.NoError(t, err)
	assert.True(t, result.Settled)
	assert.Equal(t, 2, result.TransactionCount)
	assert.True(t, result.Amount.Equal(dec("250")))
	assert.True(t, result.TotalEarned.Equal(dec("250")))

	stored = f.reload(t, member.Code)
	assert.True(t, stored.DueAmount.IsZero())
	assert.True(t, stored.TotalCommissionEarned.Equal(dec("250")))

	unpaid, err := f.ledger.ListUnpaid(ctx, member.ID)
	require.NoError(t, err)
	assert.Empty(t, unpaid)

	paid, err := f.ledger.GetByNumber(ctx, first.TransactionNumber)
	require.NoError(t, err)
	assert.True(t, paid.IsPaidToMember)
	require.NotNil(t, paid.PaidAt)
	require.NotNil(t, paid.SettlementID)
	assert.Equal(t, *result.SettlementID, *paid.SettlementID)

	settlements, err := f.ledger.ListSettlements(ctx, member.Code)
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	assert.Equal(t, 2, settlements[0].TransactionCount)

	// nothing left to pay
	again, err := f.ledger.Settle(ctx, member.Code, nil)
	require.NoError(t, err)
	assert.False(t, again.Settled)
	assert.Zero(t, again.TransactionCount)
	assert.True(t, again.Amount.IsZero())
	assert.True(t, again.TotalEarned.Equal(dec("250")))
}

func TestServiceRatesAndExactSplit(t *testing.T) {
	f := newFixture(t)
	member := f.member(t, "GENERAL")

	digital := f.record(t, member.Code, "333.33", "digital")
	assert.True(t, digital.CommissionPercentage.Equal(dec("20")))
	assert.True(t, digital.CommissionAmount.Equal(dec("66.67")))
	assert.True(t, digital.AdminAmount.Equal(dec("266.66")))

	normal := f.record(t, member.Code, "0.05", "normal")
	assert.True(t, normal.CommissionPercentage.Equal(dec("15")))
	assert.True(t, normal.CommissionAmount.Add(normal.AdminAmount).Equal(dec("0.05")))

	stored := f.reload(t, member.Code)
	assert.True(t, stored.DueAmount.Equal(digital.CommissionAmount.Add(normal.CommissionAmount)))
}

func TestTransactionNumbersUseConfiguredZone(t *testing.T) {
	f := newFixture(t)
	member := f.member(t, "GENERAL")

	// 20:00 UTC on the 22nd is already the 23rd in Dhaka.
	f.ledger.now = fixedClock(time.Date(2025, 1, 22, 20, 0, 0, 0, time.UTC))
	first := f.record(t, member.Code, "100", "")
	second := f.record(t, member.Code, "100", "")
	assert.Equal(t, "PC202501230001", first.TransactionNumber)
	assert.Equal(t, "PC202501230002", second.TransactionNumber)

	f.ledger.now = fixedClock(time.Date(2025, 1, 23, 19, 0, 0, 0, time.UTC))
	nextDay := f.record(t, member.Code, "100", "")
	assert.Equal(t, "PC202501240001", nextDay.TransactionNumber)
}

func TestCreateTransactionRejectsInactiveWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.member(t, "PREMIUM")

	inactive := false
	_, err := f.members.Update(ctx, member.Code, members.UpdateMemberInput{IsActive: &inactive})
	require.NoError(t, err)

	_, err = f.ledger.CreateTransaction(ctx, CreateTransactionInput{MemberCode: member.Code, Amount: dec("500")})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInactive))

	var count int64
	require.NoError(t, f.client.DB().Model(&models.PCTransaction{}).Count(&count).Error)
	assert.Zero(t, count)
	stored := f.reload(t, member.Code)
	assert.True(t, stored.DueAmount.IsZero())
	assert.Zero(t, stored.TotalReferrals)
}

func TestCreateTransactionValidation(t *testing.T) {
	f := newFixture(t)
	member := f.member(t, "GENERAL")

	cases := []struct {
		name  string
		input CreateTransactionInput
		code  pkgerrors.Code
	}{
		{"zero amount", CreateTransactionInput{MemberCode: member.Code, Amount: dec("0")}, pkgerrors.CodeValidation},
		{"negative amount", CreateTransactionInput{MemberCode: member.Code, Amount: dec("-10")}, pkgerrors.CodeValidation},
		{"sub-cent amount", CreateTransactionInput{MemberCode: member.Code, Amount: dec("10.005")}, pkgerrors.CodeValidation},
		{"unknown service", CreateTransactionInput{MemberCode: member.Code, Amount: dec("10"), ServiceType: "xray"}, pkgerrors.CodeValidation},
		{"missing code", CreateTransactionInput{Amount: dec("10")}, pkgerrors.CodeValidation},
		{"unknown member", CreateTransactionInput{MemberCode: "19999", Amount: dec("10")}, pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ledger.CreateTransaction(context.Background(), tc.input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}
}

func TestConcurrentReferralsKeepDueInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.member(t, "GENERAL")
	b := f.member(t, "LIFETIME")

	const perMember = 10
	var (
		mu      sync.Mutex
		numbers = map[string]bool{}
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < perMember; i++ {
		i := i
		for _, code := range []string{a.Code, b.Code} {
			code := code
			g.Go(func() error {
				txn, err := f.ledger.CreateTransaction(gctx, CreateTransactionInput{
					MemberCode: code,
					Amount:     dec(fmt.Sprintf("%d.10", 100+i)),
				})
				if err != nil {
					return err
				}
				mu.Lock()
				defer mu.Unlock()
				if numbers[txn.TransactionNumber] {
					return fmt.Errorf("duplicate number %s", txn.TransactionNumber)
				}
				numbers[txn.TransactionNumber] = true
				return nil
			})
		}
	}
	require.NoError(t, g.Wait())
	assert.Len(t, numbers, 2*perMember)

	for _, code := range []string{a.Code, b.Code} {
		stored := f.reload(t, code)
		unpaid, err := f.ledger.ListUnpaid(ctx, stored.ID)
		require.NoError(t, err)
		sum := decimal.Zero
		for _, txn := range unpaid {
			sum = sum.Add(txn.CommissionAmount)
		}
		assert.True(t, stored.DueAmount.Equal(sum), "member %s due %s unpaid %s", code, stored.DueAmount, sum)
		assert.Equal(t, perMember, stored.TotalReferrals)
	}
}

type shortFlipRepo struct {
	Repository
}

func (r shortFlipRepo) WithTx(tx *gorm.DB) Repository {
	return shortFlipRepo{Repository: r.Repository.WithTx(tx)}
}

func (r shortFlipRepo) MarkPaid(ctx context.Context, ids []uuid.UUID, settlementID uuid.UUID, paidAt time.Time) (int64, error) {
	flipped, err := r.Repository.MarkPaid(ctx, ids[:len(ids)-1], settlementID, paidAt)
	return flipped, err
}

func TestSettleRollsBackOnRowCountMismatch(t *testing.T) {
	f := newFixtureWithRepo(t, func(inner Repository) Repository { return shortFlipRepo{Repository: inner} })
	ctx := context.Background()
	member := f.member(t, "LIFETIME")
	f.record(t, member.Code, "1000", "")
	f.record(t, member.Code, "250", "")

	_, err := f.ledger.Settle(ctx, member.Code, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConsistency))

	stored := f.reload(t, member.Code)
	assert.True(t, stored.DueAmount.Equal(dec("250")))
	assert.True(t, stored.TotalCommissionEarned.IsZero())

	unpaid, err := f.ledger.ListUnpaid(ctx, member.ID)
	require.NoError(t, err)
	assert.Len(t, unpaid, 2)

	var settlements int64
	require.NoError(t, f.client.DB().Model(&models.PCSettlement{}).Count(&settlements).Error)
	assert.Zero(t, settlements)
}

func TestSettleRejectsDriftedBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.member(t, "GENERAL")
	f.record(t, member.Code, "100", "")

	require.NoError(t, f.client.DB().Model(&models.PCMember{}).
		Where("id = ?", member.ID).
		Update("due_amount", dec("99")).Error)

	_, err := f.ledger.Settle(ctx, member.Code, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConsistency))

	unpaid, err := f.ledger.ListUnpaid(ctx, member.ID)
	require.NoError(t, err)
	assert.Len(t, unpaid, 1)
}

func TestSettleUnknownMember(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Settle(context.Background(), "10404", nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSettleLeavesZeroCommissionRowsUnpaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.member(t, "GENERAL")

	// 15% of 0.01 rounds to nothing.
	txn := f.record(t, member.Code, "0.01", "")
	require.True(t, txn.CommissionAmount.IsZero())
	require.True(t, f.reload(t, member.Code).DueAmount.IsZero())

	result, err := f.ledger.Settle(ctx, member.Code, nil)
	require.NoError(t, err)
	assert.False(t, result.Settled)
	assert.Zero(t, result.TransactionCount)
	assert.True(t, result.Amount.IsZero())
	assert.Nil(t, result.SettlementID)

	stored, err := f.ledger.GetByNumber(ctx, txn.TransactionNumber)
	require.NoError(t, err)
	assert.False(t, stored.IsPaidToMember)
	assert.Nil(t, stored.PaidAt)
	assert.Nil(t, stored.SettlementID)

	var settlements int64
	require.NoError(t, f.client.DB().Model(&models.PCSettlement{}).Count(&settlements).Error)
	assert.Zero(t, settlements)
	assert.True(t, f.reload(t, member.Code).TotalCommissionEarned.IsZero())
}

func TestCreateTransactionSkipsNumbersTakenOutsideAllocator(t *testing.T) {
	f := newFixture(t)
	member := f.member(t, "GENERAL")
	f.ledger.now = fixedClock(time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC))

	first := f.record(t, member.Code, "100", "")
	require.Equal(t, "PC202503100001", first.TransactionNumber)

	// A row imported behind the counter's back takes the next number.
	importedAt := time.Date(2025, 3, 10, 5, 0, 0, 0, time.UTC)
	imported := &models.PCTransaction{
		ID:                   uuid.New(),
		TransactionNumber:    "PC202503100002",
		MemberID:             member.ID,
		TotalAmount:          dec("10"),
		CommissionPercentage: dec("0"),
		CommissionAmount:     dec("0"),
		AdminAmount:          dec("10"),
		IsPaidToMember:       true,
		PaidAt:               &importedAt,
		CreatedAt:            importedAt,
	}
	require.NoError(t, f.client.DB().Create(imported).Error)

	next := f.record(t, member.Code, "100", "")
	assert.Equal(t, "PC202503100003", next.TransactionNumber)

	stored := f.reload(t, member.Code)
	assert.Equal(t, 2, stored.TotalReferrals)
	assert.True(t, stored.DueAmount.Equal(dec("30")))
}

type duplicateNumberRepo struct {
	Repository
	attempts *int
}

func (r duplicateNumberRepo) WithTx(tx *gorm.DB) Repository {
	return duplicateNumberRepo{Repository: r.Repository.WithTx(tx), attempts: r.attempts}
}

func (r duplicateNumberRepo) Create(ctx context.Context, txn *models.PCTransaction) error {
	*r.attempts++
	return fmt.Errorf("UNIQUE constraint failed: pc_transactions.transaction_number")
}

func TestCreateTransactionGivesUpAfterRepeatedConflicts(t *testing.T) {
	attempts := 0
	f := newFixtureWithRepo(t, func(inner Repository) Repository {
		return duplicateNumberRepo{Repository: inner, attempts: &attempts}
	})
	ctx := context.Background()
	member := f.member(t, "PREMIUM")

	_, err := f.ledger.CreateTransaction(ctx, CreateTransactionInput{MemberCode: member.Code, Amount: dec("500")})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, config.DefaultCommissionConfig().MaxAttempts, attempts)

	stored := f.reload(t, member.Code)
	assert.True(t, stored.DueAmount.IsZero())
	assert.Zero(t, stored.TotalReferrals)
}

func TestSettleRacingReferralsKeepsBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.member(t, "LIFETIME")
	f.record(t, member.Code, "500", "")

	const workers = 24
	var (
		mu      sync.Mutex
		created int
		settled = decimal.Zero
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			if i%4 == 0 {
				result, err := f.ledger.Settle(gctx, member.Code, nil)
				if err != nil {
					return err
				}
				mu.Lock()
				settled = settled.Add(result.Amount)
				mu.Unlock()
				return nil
			}
			_, err := f.ledger.CreateTransaction(gctx, CreateTransactionInput{
				MemberCode:  member.Code,
				Amount:      dec(fmt.Sprintf("%d.35", 50+i)),
				ServiceType: []string{"normal", "digital", ""}[i%3],
			})
			if err != nil {
				return err
			}
			mu.Lock()
			created++
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var all []models.PCTransaction
	require.NoError(t, f.client.DB().Where("member_id = ?", member.ID).Find(&all).Error)
	unpaidSum, paidSum := decimal.Zero, decimal.Zero
	for _, txn := range all {
		if txn.IsPaidToMember {
			paidSum = paidSum.Add(txn.CommissionAmount)
			continue
		}
		unpaidSum = unpaidSum.Add(txn.CommissionAmount)
	}
	unpaidSum, paidSum = unpaidSum.Round(2), paidSum.Round(2)

	stored := f.reload(t, member.Code)
	assert.Len(t, all, created+1)
	assert.Equal(t, created+1, stored.TotalReferrals)
	assert.True(t, stored.DueAmount.Equal(unpaidSum), "due %s unpaid %s", stored.DueAmount, unpaidSum)
	assert.True(t, stored.TotalCommissionEarned.Equal(paidSum), "earned %s paid %s", stored.TotalCommissionEarned, paidSum)
	assert.True(t, settled.Equal(paidSum), "settled %s paid %s", settled, paidSum)

	var recorded []models.PCSettlement
	require.NoError(t, f.client.DB().Where("member_id = ?", member.ID).Find(&recorded).Error)
	recordedSum, recordedCount := decimal.Zero, 0
	for _, row := range recorded {
		recordedSum = recordedSum.Add(row.Amount)
		recordedCount += row.TransactionCount
	}
	assert.True(t, recordedSum.Round(2).Equal(paidSum))
	paidRows := 0
	for _, txn := range all {
		if txn.IsPaidToMember {
			paidRows++
			assert.NotNil(t, txn.SettlementID)
		}
	}
	assert.Equal(t, paidRows, recordedCount)
}

func TestListByMemberPaginatesAndFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.member(t, "GENERAL")

	base := time.Date(2025, 3, 1, 4, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		f.ledger.now = fixedClock(base.Add(time.Duration(i) * time.Hour))
		f.record(t, member.Code, "100", "")
	}

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := f.ledger.ListByMember(ctx, member.Code, ListTransactionsInput{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		pages++
		for _, txn := range page.Items {
			assert.False(t, seen[txn.TransactionNumber])
			seen[txn.TransactionNumber] = true
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, 3, pages)
	assert.Len(t, seen, 5)

	from := base.Add(2 * time.Hour)
	window, err := f.ledger.ListByMember(ctx, member.Code, ListTransactionsInput{From: &from})
	require.NoError(t, err)
	assert.Len(t, window.Items, 3)

	_, err = f.ledger.Settle(ctx, member.Code, nil)
	require.NoError(t, err)
	f.record(t, member.Code, "100", "")

	unpaid, err := f.ledger.ListByMember(ctx, member.Code, ListTransactionsInput{Paid: "unpaid"})
	require.NoError(t, err)
	assert.Len(t, unpaid.Items, 1)

	paid, err := f.ledger.ListByMember(ctx, member.Code, ListTransactionsInput{Paid: "paid"})
	require.NoError(t, err)
	assert.Len(t, paid.Items, 5)

	_, err = f.ledger.ListByMember(ctx, member.Code, ListTransactionsInput{Paid: "maybe"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.ledger.ListByMember(ctx, member.Code, ListTransactionsInput{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestMemberStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.member(t, "GENERAL")

	now := time.Date(2025, 5, 20, 6, 0, 0, 0, time.UTC)
	f.ledger.now = fixedClock(now.AddDate(0, 0, -10))
	f.record(t, member.Code, "200", "")
	f.ledger.now = fixedClock(now.Add(-time.Hour))
	f.record(t, member.Code, "100", "")

	stats, err := f.ledger.MemberStats(ctx, member.Code, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Today.Count)
	assert.True(t, stats.Today.Commission.Equal(dec("15")))
	assert.Equal(t, int64(2), stats.Month.Count)
	assert.True(t, stats.Month.Commission.Equal(dec("45")))
	assert.True(t, stats.Unpaid.Commission.Equal(dec("45")))
	assert.True(t, stats.Lifetime.Gross.Equal(dec("300")))
	assert.True(t, stats.Lifetime.Admin.Equal(dec("255")))
}

func TestGetByNumberNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.GetByNumber(context.Background(), "PC202501010001")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
