package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/diagcenter/pcledger/internal/ledger"
	"github.com/diagcenter/pcledger/internal/members"
	"github.com/diagcenter/pcledger/internal/repo/repotest"
	"github.com/diagcenter/pcledger/pkg/config"
	"github.com/diagcenter/pcledger/pkg/db/models"
	"github.com/diagcenter/pcledger/pkg/logger"
	"github.com/diagcenter/pcledger/pkg/metrics"
)

type fakeBalanceReader struct {
	rows []ledger.MemberBalance
	err  error
}

func (f *fakeBalanceReader) MemberBalances(context.Context) ([]ledger.MemberBalance, error) {
	return f.rows, f.err
}

func balance(code, due, unpaid string) ledger.MemberBalance {
	return ledger.MemberBalance{
		MemberID:  uuid.New(),
		Code:      code,
		DueAmount: decimal.RequireFromString(due),
		UnpaidSum: decimal.RequireFromString(unpaid),
	}
}

func driftCount(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "pc_balance_drift_total" {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestBalanceAuditJobReportsEveryDrift(t *testing.T) {
	reg := prometheus.NewRegistry()
	repo := &fakeBalanceReader{rows: []ledger.MemberBalance{
		balance("10001", "15.00", "15.00"),
		balance("10002", "10.00", "7.50"),
		balance("20001", "0.00", "50.00"),
	}}
	job, err := NewBalanceAuditJob(BalanceAuditJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		Repository: repo,
		Metrics:    metrics.NewLedgerMetrics(reg),
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 2)

	var drift *DriftError
	require.True(t, errors.As(errs[0], &drift))
	assert.Equal(t, "10002", drift.Code)
	assert.Equal(t, "7.50", drift.UnpaidSum)
	assert.Equal(t, float64(2), driftCount(t, reg))
}

func TestBalanceAuditJobCleanRun(t *testing.T) {
	job, err := NewBalanceAuditJob(BalanceAuditJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		Repository: &fakeBalanceReader{rows: []ledger.MemberBalance{balance("10001", "1.00", "1.00")}},
	})
	require.NoError(t, err)
	assert.NoError(t, job.Run(context.Background()))
}

func TestBalanceAuditJobPropagatesReadFailure(t *testing.T) {
	job, err := NewBalanceAuditJob(BalanceAuditJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		Repository: &fakeBalanceReader{err: errors.New("db down")},
	})
	require.NoError(t, err)
	assert.ErrorContains(t, job.Run(context.Background()), "db down")
}

func TestBalanceAuditJobAgainstLedger(t *testing.T) {
	client := repotest.Client(t)
	ctx := context.Background()
	cfg := config.DefaultCommissionConfig()
	memberSvc, err := members.NewService(members.ServiceParams{
		Repo: members.NewRepository(client.DB()), Tx: client, Commission: cfg,
	})
	require.NoError(t, err)
	ledgerRepo := ledger.NewRepository(client.DB())
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo: ledgerRepo, Members: memberSvc, Tx: client, Commission: cfg,
	})
	require.NoError(t, err)

	healthy, err := memberSvc.CreateMember(ctx, members.CreateMemberInput{Category: "GENERAL", Name: "A", Phone: "1"})
	require.NoError(t, err)
	broken, err := memberSvc.CreateMember(ctx, members.CreateMemberInput{Category: "GENERAL", Name: "B", Phone: "2"})
	require.NoError(t, err)
	_, err = memberSvc.CreateMember(ctx, members.CreateMemberInput{Category: "PREMIUM", Name: "C", Phone: "3"})
	require.NoError(t, err)

	for _, code := range []string{healthy.Code, broken.Code} {
		_, err := ledgerSvc.CreateTransaction(ctx, ledger.CreateTransactionInput{MemberCode: code, Amount: decimal.NewFromInt(100)})
		require.NoError(t, err)
	}
	_, err = ledgerSvc.Settle(ctx, healthy.Code, nil)
	require.NoError(t, err)

	require.NoError(t, client.DB().Model(&models.PCMember{}).
		Where("id = ?", broken.ID).
		Update("due_amount", decimal.RequireFromString("14.99")).Error)

	job, err := NewBalanceAuditJob(BalanceAuditJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		Repository: ledgerRepo,
	})
	require.NoError(t, err)

	err = job.Run(ctx)
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), broken.Code)
	assert.Contains(t, errs[0].Error(), "15.00")
}
