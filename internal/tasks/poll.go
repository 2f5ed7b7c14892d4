package tasks

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/desertthunder/occ/internal/services"
	"github.com/desertthunder/occ/internal/shared"
)

// PollStrategy lists active scans on a fixed delay and reconciles each result.
//
// The delay is measured from the end of a poll, so a slow request pushes the next one back instead of
// piling up behind it.
type PollStrategy struct {
	monitor  *Monitor
	client   services.ScanClient
	interval time.Duration
	inFlight atomic.Bool
	cancel   context.CancelFunc
}

// NewPollStrategy creates a poll strategy feeding m.
func NewPollStrategy(m *Monitor, client services.ScanClient, interval time.Duration) *PollStrategy {
	return &PollStrategy{monitor: m, client: client, interval: interval}
}

func (p *PollStrategy) Name() string { return shared.StrategyPoll }

// Start polls immediately, then every interval until ctx is done or Stop is called.
func (p *PollStrategy) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
}

func (p *PollStrategy) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *PollStrategy) run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		p.tick(ctx)
		timer.Reset(p.interval)
	}
}

// tick performs one reconciliation. It returns false without fetching when a poll is already in flight.
func (p *PollStrategy) tick(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		return false
	}
	defer p.inFlight.Store(false)

	scans, err := p.client.ListActiveScans(ctx)
	if ctx.Err() != nil {
		return true
	}
	if err != nil {
		p.monitor.report(err)
		return true
	}

	p.monitor.reconcile(ctx, scans)
	return true
}
