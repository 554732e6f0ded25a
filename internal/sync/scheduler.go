package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/intentmail/intentmail/internal/apperrors"
	"github.com/intentmail/intentmail/internal/logging"
	"github.com/intentmail/intentmail/internal/store"
)

func errAlreadySyncing(accountID int64) error {
	return apperrors.New(apperrors.KindValidationError, fmt.Sprintf("sync: account %d is already syncing", accountID))
}

// Scheduler launches one goroutine per account sync run on a fixed
// interval, structured so every launched goroutine is tracked and joined
// on Stop rather than leaked as a detached background task.
type Scheduler struct {
	engine   *Engine
	accounts *store.AccountStore
	interval time.Duration

	mu      gosync.Mutex
	running map[int64]bool

	wg     gosync.WaitGroup
	cancel context.CancelFunc
}

// NewScheduler builds a Scheduler that runs a sync pass for every active
// account every interval.
func NewScheduler(engine *Engine, accounts *store.AccountStore, interval time.Duration) *Scheduler {
	return &Scheduler{
		engine:   engine,
		accounts: accounts,
		interval: interval,
		running:  make(map[int64]bool),
	}
}

// Start begins the periodic sync loop; it returns immediately and runs
// until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop cancels the scheduler and waits for all in-flight sync runs
// launched by it to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) tick(ctx context.Context) {
	log := logging.WithComponent("sync.scheduler")

	accounts, err := s.accounts.List()
	if err != nil {
		log.Error().Err(err).Msg("failed to list accounts for scheduled sync")
		return
	}

	for _, account := range accounts {
		if !account.IsActive {
			continue
		}

		s.mu.Lock()
		if s.running[account.ID] {
			s.mu.Unlock()
			continue
		}
		s.running[account.ID] = true
		s.mu.Unlock()

		s.wg.Add(1)
		go func(a *store.Account) {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.running, a.ID)
				s.mu.Unlock()
			}()

			metric, err := s.engine.Sync(ctx, a, false)
			if err != nil {
				log.Warn().Err(err).Int64("account", a.ID).Str("email", a.Email).Msg("sync run failed")
				return
			}
			log.Info().Int64("account", a.ID).Str("email", a.Email).
				Int("added", metric.Added).Int("deleted", metric.Deleted).
				Int("labelsChanged", metric.LabelsChanged).Int64("durationMs", metric.DurationMs).
				Msg("sync run completed")
		}(account)
	}
}

// TriggerOne runs one synchronous sync pass for a single account, used by
// the façade's sync operation for an on-demand (non-scheduled) sync.
func (s *Scheduler) TriggerOne(ctx context.Context, account *store.Account, forceInitial bool) (*store.SyncMetric, error) {
	s.mu.Lock()
	if s.running[account.ID] {
		s.mu.Unlock()
		return nil, errAlreadySyncing(account.ID)
	}
	s.running[account.ID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, account.ID)
		s.mu.Unlock()
	}()

	return s.engine.Sync(ctx, account, forceInitial)
}
