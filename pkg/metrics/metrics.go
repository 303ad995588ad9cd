// Package metrics exports ledger and RPC activity as Prometheus metrics and
// serves them together with health and readiness probes.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fortiblox/x1-agentmarket/pkg/ledger"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/agentmarket"
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

const namespace = "agentmarket"

// Metrics holds every collector of the node. It implements ledger.Recorder
// and rpc.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// Ledger
	Transactions        *prometheus.CounterVec
	Rejections          *prometheus.CounterVec
	ProgramErrors       *prometheus.CounterVec
	FeesCollected       prometheus.Counter
	TransactionDuration prometheus.Histogram
	ComputeUnits        prometheus.Histogram
	CurrentSlot         prometheus.Gauge

	// Storage, sampled by LedgerCollector
	AccountsCount    prometheus.Gauge
	AgentsRegistered prometheus.Gauge
	DBSizeBytes      prometheus.Gauge

	// RPC
	RPCRequests        *prometheus.CounterVec
	RPCRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a private registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Transactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Executed transactions by outcome.",
		}, []string{"result"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_rejections_total",
			Help:      "Transactions rejected before execution, by reason.",
		}, []string{"reason"}),
		ProgramErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "program_errors_total",
			Help:      "Failed transactions by marketplace program error.",
		}, []string{"code", "name"}),
		FeesCollected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_lamports_total",
			Help:      "Transaction fees charged, in lamports.",
		}),
		TransactionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_duration_seconds",
			Help:      "Time to verify, execute and commit a transaction.",
			Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		ComputeUnits: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_compute_units",
			Help:      "Compute units consumed per transaction.",
			Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
		}),
		CurrentSlot: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_slot",
			Help:      "The open slot.",
		}),
		AccountsCount: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accounts_count",
			Help:      "Accounts in the database.",
		}),
		AgentsRegistered: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents_registered",
			Help:      "Agent records owned by the marketplace program.",
		}),
		DBSizeBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_size_bytes",
			Help:      "On-disk size of the account database.",
		}),
		RPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "JSON-RPC calls by method and error code (0 on success).",
		}, []string{"method", "code"}),
		RPCRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_request_duration_seconds",
			Help:      "JSON-RPC call latency.",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method"}),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTransaction implements ledger.Recorder.
func (m *Metrics) ObserveTransaction(result *types.TransactionResult, elapsed time.Duration) {
	m.TransactionDuration.Observe(elapsed.Seconds())
	m.ComputeUnits.Observe(float64(result.ComputeUnits))
	if result.Success {
		m.Transactions.WithLabelValues("success").Inc()
		m.FeesCollected.Add(float64(result.Fee))
		return
	}
	m.Transactions.WithLabelValues("failed").Inc()
	if pe, ok := agentmarket.AsProgramError(ledger.ProgramErrorOf(result)); ok {
		m.ProgramErrors.WithLabelValues(strconv.FormatUint(uint64(pe.Code), 10), pe.Name).Inc()
	}
}

// ObserveRejection implements ledger.Recorder.
func (m *Metrics) ObserveRejection(err error) {
	m.Rejections.WithLabelValues(rejectionReason(err)).Inc()
}

// ObserveSlot implements ledger.Recorder.
func (m *Metrics) ObserveSlot(slot types.Slot, accounts uint64) {
	m.CurrentSlot.Set(float64(slot))
	m.AccountsCount.Set(float64(accounts))
}

// ObserveRequest implements rpc.Observer.
func (m *Metrics) ObserveRequest(method string, code int, elapsed time.Duration) {
	m.RPCRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.RPCRequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

var rejectionReasons = []struct {
	err    error
	reason string
}{
	{ledger.ErrSignatureFailure, "signature_failure"},
	{ledger.ErrBlockhashNotFound, "blockhash_not_found"},
	{ledger.ErrAlreadyProcessed, "already_processed"},
	{ledger.ErrInvalidFeePayer, "invalid_fee_payer"},
	{ledger.ErrInsufficientFundsForFee, "insufficient_funds_for_fee"},
	{ledger.ErrNoInstructions, "malformed"},
	{ledger.ErrNilTransaction, "malformed"},
	{types.ErrMalformedMessage, "malformed"},
	{ledger.ErrClosed, "closed"},
}

func rejectionReason(err error) string {
	for _, r := range rejectionReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}

var _ ledger.Recorder = (*Metrics)(nil)
