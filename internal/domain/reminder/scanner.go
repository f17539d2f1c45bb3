package reminder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ScanReport summarises one scanner pass: the dispatch outcome plus the
// number of reminders swept to missed.
type ScanReport struct {
	Dispatch *DispatchReport `json:"dispatch"`
	Missed   int             `json:"missed"`
}

// Scanner drives the reminder engine on a fixed interval. Each tick
// dispatches due notifications and sweeps overdue reminders to missed. Scans
// never overlap: a tick that arrives while the previous scan is still
// running is dropped, and a manual RunNow during a scan returns
// ErrScanInProgress.
type Scanner struct {
	dispatcher *Dispatcher
	svc        *Service
	interval   time.Duration
	logger     zerolog.Logger

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewScanner(dispatcher *Dispatcher, svc *Service, interval time.Duration, logger zerolog.Logger) *Scanner {
	return &Scanner{
		dispatcher: dispatcher,
		svc:        svc,
		interval:   interval,
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the scan loop in a goroutine. The loop ends when Stop is
// called or ctx is cancelled.
func (s *Scanner) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info().Dur("interval", s.interval).Msg("reminder scanner started")
		for {
			select {
			case <-ticker.C:
				if _, err := s.RunNow(ctx); err != nil {
					if err == ErrScanInProgress {
						s.logger.Debug().Msg("previous scan still running, tick skipped")
						continue
					}
					s.logger.Error().Err(err).Msg("scan failed")
				}
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the scan loop and waits for it to exit. A scan in flight runs to
// completion.
func (s *Scanner) Stop() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

// RunNow performs a single scan immediately. Returns ErrScanInProgress when
// another scan (ticked or manual) is still running.
//
// The missed sweep runs every cycle even when dispatch fails, so overdue
// reminders still resolve during a gateway outage. A dispatch error is
// returned alongside the report once the sweep has run.
func (s *Scanner) RunNow(ctx context.Context) (*ScanReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer s.running.Store(false)

	dispatch, dispatchErr := s.dispatcher.DispatchDue(ctx)
	if dispatchErr != nil {
		s.logger.Error().Err(dispatchErr).Msg("dispatch failed")
	}

	missed, err := s.svc.SweepMissed(ctx)
	if err != nil {
		return nil, err
	}

	report := &ScanReport{Dispatch: dispatch, Missed: missed}
	if dispatchErr != nil {
		return report, dispatchErr
	}
	return report, nil
}
