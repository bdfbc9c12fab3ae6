package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/diagcenter/pcledger/internal/ledger"
	"github.com/diagcenter/pcledger/pkg/logger"
	"github.com/diagcenter/pcledger/pkg/metrics"
	"github.com/diagcenter/pcledger/pkg/money"
)

const balanceAuditJobName = "pc-balance-audit"

type BalanceAuditJobParams struct {
	Logger     *logger.Logger
	Repository balanceReader
	Metrics    *metrics.LedgerMetrics
}

type balanceReader interface {
	MemberBalances(ctx context.Context) ([]ledger.MemberBalance, error)
}

// DriftError describes one member whose due amount disagrees with its unpaid
// transactions.
type DriftError struct {
	Code      string
	DueAmount string
	UnpaidSum string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("member %s: due_amount %s != unpaid commission %s", e.Code, e.DueAmount, e.UnpaidSum)
}

// NewBalanceAuditJob checks every member's due amount against the sum of its
// unpaid commission. It reports drift and never rewrites balances.
func NewBalanceAuditJob(params BalanceAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("balance repository required")
	}
	return &balanceAuditJob{
		logg:    params.Logger,
		repo:    params.Repository,
		metrics: params.Metrics,
	}, nil
}

type balanceAuditJob struct {
	logg    *logger.Logger
	repo    balanceReader
	metrics *metrics.LedgerMetrics
}

func (j *balanceAuditJob) Name() string { return balanceAuditJobName }

func (j *balanceAuditJob) Run(ctx context.Context) error {
	balances, err := j.repo.MemberBalances(ctx)
	if err != nil {
		return fmt.Errorf("load member balances: %w", err)
	}

	var drift error
	drifted := 0
	for _, b := range balances {
		if b.DueAmount.Equal(b.UnpaidSum) {
			continue
		}
		drifted++
		derr := &DriftError{
			Code:      b.Code,
			DueAmount: money.Format(b.DueAmount),
			UnpaidSum: money.Format(b.UnpaidSum),
		}
		drift = multierr.Append(drift, derr)
		logCtx := j.logg.WithFields(j.logg.WithMemberCode(ctx, b.Code), map[string]any{
			"due_amount":   derr.DueAmount,
			"unpaid_sum":   derr.UnpaidSum,
			"unpaid_count": b.Unpaid,
		})
		j.logg.Warn(logCtx, "balance drift detected")
	}

	j.metrics.BalanceDrift(drifted)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"members_checked": len(balances),
		"members_drifted": drifted,
	})
	j.logg.Info(logCtx, "balance audit complete")
	return drift
}
