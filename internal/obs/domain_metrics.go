package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SettlementsTotal counts settlement attempts by payment method and outcome.
	SettlementsTotal *prometheus.CounterVec
	// StockRejectionsTotal counts sales rejected for insufficient stock.
	StockRejectionsTotal prometheus.Counter
	// DebtCreatedTotal counts debts recorded at the register.
	DebtCreatedTotal prometheus.Counter
	// DebtPaidTotal sums debt payoff amounts in so'm.
	DebtPaidTotal prometheus.Counter
	// ReceiptTotalAmount observes receipt net totals in so'm.
	ReceiptTotalAmount prometheus.Histogram
	// ReceiptsReversedTotal counts deleted-and-rolled-back receipts.
	ReceiptsReversedTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SettlementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Count of settlement outcomes by payment method.",
		}, []string{"method", "result"})
		StockRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_rejections_total",
			Help:      "Sales rejected because stock was insufficient.",
		})
		DebtCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debt_created_total",
			Help:      "Debts recorded at settlement time.",
		})
		DebtPaidTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debt_paid_total",
			Help:      "Total so'm applied to debt payoff.",
		})
		ReceiptTotalAmount = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "receipt_total_som",
			Help:      "Distribution of receipt net totals in so'm.",
			Buckets:   []float64{10_000, 50_000, 100_000, 250_000, 500_000, 1_000_000, 2_500_000, 5_000_000, 10_000_000},
		})
		ReceiptsReversedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipts_reversed_total",
			Help:      "Receipts deleted with full rollback of their effects.",
		})

		mustRegisterCollector(reg, SettlementsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SettlementsTotal = v
			}
		})
		mustRegisterCollector(reg, StockRejectionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				StockRejectionsTotal = v
			}
		})
		mustRegisterCollector(reg, DebtCreatedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				DebtCreatedTotal = v
			}
		})
		mustRegisterCollector(reg, DebtPaidTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				DebtPaidTotal = v
			}
		})
		mustRegisterCollector(reg, ReceiptTotalAmount, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				ReceiptTotalAmount = v
			}
		})
		mustRegisterCollector(reg, ReceiptsReversedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				ReceiptsReversedTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
