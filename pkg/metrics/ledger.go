package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Settlement outcomes.
const (
	SettlementSettled = "settled"
	SettlementEmpty   = "empty"
	SettlementFailed  = "failed"
)

// LedgerMetrics counts commission ledger activity. A nil *LedgerMetrics is a no-op.
type LedgerMetrics struct {
	transactions *prometheus.CounterVec
	commission   prometheus.Counter
	settlements  *prometheus.CounterVec
	conflicts    *prometheus.CounterVec
	drift        prometheus.Counter
}

// NewLedgerMetrics registers the ledger collectors on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	transactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pc_transactions_created_total",
		Help: "Commission transactions created.",
	}, []string{"service_type"})
	commission := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pc_commission_amount_total",
		Help: "Commission accrued to members, in currency units.",
	})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pc_settlements_total",
		Help: "Settlement attempts by outcome.",
	}, []string{"result"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pc_sequence_conflicts_total",
		Help: "Unique violations on generated codes that triggered a retry.",
	}, []string{"scope_kind"})
	drift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pc_balance_drift_total",
		Help: "Members whose due amount disagreed with their unpaid transactions during an audit.",
	})
	reg.MustRegister(transactions, commission, settlements, conflicts, drift)
	return &LedgerMetrics{
		transactions: transactions,
		commission:   commission,
		settlements:  settlements,
		conflicts:    conflicts,
		drift:        drift,
	}
}

// TransactionCreated records a new transaction and its commission.
func (m *LedgerMetrics) TransactionCreated(serviceType string, commission decimal.Decimal) {
	if m == nil || m.transactions == nil {
		return
	}
	m.transactions.WithLabelValues(normalizeLabel(serviceType)).Inc()
	m.commission.Add(commission.InexactFloat64())
}

// Settlement records a settlement outcome.
func (m *LedgerMetrics) Settlement(result string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(result)).Inc()
}

// SequenceConflict records a retry caused by a duplicate generated value.
func (m *LedgerMetrics) SequenceConflict(scopeKind string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(scopeKind)).Inc()
}

// BalanceDrift records members found out of balance.
func (m *LedgerMetrics) BalanceDrift(count int) {
	if m == nil || m.drift == nil || count <= 0 {
		return
	}
	m.drift.Add(float64(count))
}
