package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/desertthunder/occ/internal/models"
	"github.com/desertthunder/occ/internal/services"
	"github.com/desertthunder/occ/internal/shared"
)

// StreamStrategy applies events from the scan push channel and reopens the channel when it closes.
//
// Reconnects follow a constant backoff with no retry cap; the channel is reopened for as long as
// something is tracked. Events sent while the channel was down are lost, so every reconnect is
// followed by one reconciliation against the active scan listing.
type StreamStrategy struct {
	monitor *Monitor
	client  services.ScanClient
	policy  backoff.BackOff

	// events serializes event handling with resyncs; events that arrive during a resync are applied after it.
	events sync.Mutex

	mu          sync.Mutex
	cancel      context.CancelFunc
	unsubscribe func()
	retry       *time.Timer
}

// NewStreamStrategy creates a push strategy feeding m that waits delay before each reconnect.
func NewStreamStrategy(m *Monitor, client services.ScanClient, delay time.Duration) *StreamStrategy {
	return &StreamStrategy{
		monitor: m,
		client:  client,
		policy:  backoff.NewConstantBackOff(delay),
	}
}

func (s *StreamStrategy) Name() string { return shared.StrategyStream }

// Start opens the channel.
func (s *StreamStrategy) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.connect(ctx, false)
}

// Stop closes the channel and cancels any pending reconnect.
func (s *StreamStrategy) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *StreamStrategy) connect(ctx context.Context, resync bool) {
	if ctx.Err() != nil {
		return
	}

	if resync {
		s.events.Lock()
		defer s.events.Unlock()
	}

	unsubscribe := s.client.SubscribeToScanEvents(ctx, services.ScanCallbacks{
		OnUpdate: func(ev *models.ScanEvent) {
			s.policy.Reset()
			s.events.Lock()
			defer s.events.Unlock()
			s.monitor.handleEvent(ctx, ev)
		},
		OnError: func(err error) {
			if ctx.Err() == nil {
				s.monitor.report(err)
			}
		},
		OnClose: func() { s.closed(ctx) },
	})

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		unsubscribe()
		return
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	if resync {
		s.resync(ctx)
	}
}

// resync reconciles the monitor against the active scan listing.
func (s *StreamStrategy) resync(ctx context.Context) {
	scans, err := s.client.ListActiveScans(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.monitor.report(fmt.Errorf("failed to resynchronize after reconnect: %w", err))
		}
		return
	}

	s.monitor.logger.Debug("resynchronized after reconnect", "active", len(scans))
	s.monitor.reconcile(ctx, scans)
}

// closed schedules a reconnect unless the strategy was stopped.
func (s *StreamStrategy) closed(ctx context.Context) {
	s.mu.Lock()
	s.unsubscribe = nil
	if ctx.Err() != nil {
		s.mu.Unlock()
		return
	}

	delay := s.policy.NextBackOff()
	if delay == backoff.Stop {
		s.mu.Unlock()
		s.monitor.report(fmt.Errorf("%w: giving up on reconnect", shared.ErrChannelClosed))
		return
	}

	s.retry = time.AfterFunc(delay, func() {
		if s.monitor.TrackingCount() > 0 {
			s.connect(ctx, true)
		}
	})
	s.mu.Unlock()

	s.monitor.logger.Debug("scan stream closed", "reconnect_in", delay)
	sendProgress(s.monitor.progress, reconnectingUpdate(delay))
}
