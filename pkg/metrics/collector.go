package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// LedgerStats is the part of the ledger the collector samples.
type LedgerStats interface {
	Slot() types.Slot
	AccountsCount() uint64
	ProgramAccounts(program types.Pubkey) ([]types.AccountRef, error)
}

// DBSizer is implemented by account stores that live on disk.
type DBSizer interface {
	Size() int64
}

// LedgerCollector periodically samples state that is too expensive to track
// per transaction: the number of agent records and the database size.
type LedgerCollector struct {
	metrics  *Metrics
	ledger   LedgerStats
	program  types.Pubkey
	sizer    DBSizer
	interval time.Duration
	log      zerolog.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewLedgerCollector creates a collector counting agent records owned by
// program. sizer may be nil.
func NewLedgerCollector(m *Metrics, l LedgerStats, program types.Pubkey, sizer DBSizer, interval time.Duration, log zerolog.Logger) *LedgerCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &LedgerCollector{
		metrics:  m,
		ledger:   l,
		program:  program,
		sizer:    sizer,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Collect samples once.
func (c *LedgerCollector) Collect() {
	c.metrics.CurrentSlot.Set(float64(c.ledger.Slot()))
	c.metrics.AccountsCount.Set(float64(c.ledger.AccountsCount()))

	agents, err := c.ledger.ProgramAccounts(c.program)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to count agent records")
	} else {
		c.metrics.AgentsRegistered.Set(float64(len(agents)))
	}

	if c.sizer != nil {
		c.metrics.DBSizeBytes.Set(float64(c.sizer.Size()))
	}
}

// Start collects immediately and then every interval until ctx is done or
// Stop is called.
func (c *LedgerCollector) Start(ctx context.Context) {
	if c.started.Swap(true) {
		return
	}
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.Collect()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.Collect()
			}
		}
	}()
}

// Stop stops periodic collection and waits for the loop to exit.
func (c *LedgerCollector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	if c.started.Load() {
		<-c.done
	}
}
