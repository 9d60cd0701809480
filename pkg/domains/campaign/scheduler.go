package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/wadispatch/pkg/config"
	"github.com/wadispatch/pkg/entities"
	"github.com/wadispatch/pkg/events"
	"github.com/wadispatch/pkg/metrics"
)

// Runner processes one claimed campaign.
type Runner interface {
	Process(ctx context.Context, claimed entities.Campaign) error
}

// Scheduler claims eligible campaigns on a fixed interval and runs each in
// its own goroutine, never more than MaxConcurrent at once.
type Scheduler struct {
	repo      Repository
	runner    Runner
	cfg       config.Scheduler
	publisher events.Publisher
	cron      *cron.Cron
	log       *logrus.Entry
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	active   map[string]uint
	reserved int
	stopped  bool
}

func NewScheduler(repo Repository, runner Runner, sc config.Scheduler, publisher events.Publisher) *Scheduler {
	if publisher == nil {
		publisher = events.Noop{}
	}
	log := logrus.WithField("component", "scheduler")
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		repo:      repo,
		runner:    runner,
		cfg:       sc,
		publisher: publisher,
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log)))),
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		ctx:       ctx,
		cancel:    cancel,
		active:    make(map[string]uint),
	}
}

// Start registers the tick and starts the cron loop.
func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.cfg.Interval)
	if _, err := s.cron.AddFunc(spec, s.Tick); err != nil {
		return fmt.Errorf("campaign: schedule %q: %w", spec, err)
	}
	s.cron.Start()
	s.log.WithFields(logrus.Fields{"interval": s.cfg.Interval, "max_concurrent": s.cfg.MaxConcurrent}).Info("scheduler started")
	return nil
}

// Stop halts the tick, cancels running campaigns and waits for them to hand
// their campaigns back.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// Kick runs a tick now without waiting for the interval.
func (s *Scheduler) Kick() {
	go s.Tick()
}

// Active is the number of campaigns this process is running.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Tick claims campaigns while local slots are free. It never waits for a
// campaign run.
func (s *Scheduler) Tick() {
	for {
		if s.ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		if len(s.active)+s.reserved >= s.cfg.MaxConcurrent {
			s.mu.Unlock()
			return
		}
		s.reserved++
		s.mu.Unlock()

		claimed, err := s.repo.Claim(s.ctx, s.now())

		s.mu.Lock()
		s.reserved--
		if err != nil {
			s.mu.Unlock()
			if !errors.Is(err, ErrNoEligibleCampaign) && s.ctx.Err() == nil {
				s.log.WithError(err).Error("claim failed")
			}
			return
		}
		if s.stopped {
			s.mu.Unlock()
			s.unclaim(claimed)
			return
		}
		s.active[claimed.ClaimToken] = claimed.ID
		s.wg.Add(1)
		s.mu.Unlock()

		metrics.CampaignsClaimed.Inc()
		metrics.CampaignsActive.Inc()
		go s.run(claimed)
	}
}

func (s *Scheduler) run(claimed entities.Campaign) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.active, claimed.ClaimToken)
		s.mu.Unlock()
		metrics.CampaignsActive.Dec()
	}()

	err := s.runner.Process(s.ctx, claimed)
	if err == nil {
		return
	}
	log := s.log.WithFields(logrus.Fields{"campaign_id": claimed.ID, "owner_id": claimed.OwnerID})

	if s.ctx.Err() != nil {
		s.unclaim(claimed)
		log.Info("campaign returned to pending on shutdown")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.WithError(err).Error("campaign run failed")
	ok, rerr := s.repo.Release(ctx, claimed.ID, claimed.ClaimToken, entities.CampaignFailed, map[string]interface{}{
		"last_error":  err.Error(),
		"finished_at": s.now(),
	})
	if rerr != nil {
		log.WithError(rerr).Error("failed to mark campaign failed")
		return
	}
	if ok {
		metrics.CampaignsFinished.WithLabelValues(string(entities.CampaignFailed)).Inc()
		s.publisher.Publish(ctx, events.New(events.CampaignStatus, claimed.OwnerID, map[string]interface{}{
			"campaign_id": claimed.ID,
			"status":      entities.CampaignFailed,
			"error":       err.Error(),
		}))
	}
}

// unclaim hands a campaign back to pending after shutdown interrupted it.
func (s *Scheduler) unclaim(claimed entities.Campaign) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.repo.Release(ctx, claimed.ID, claimed.ClaimToken, entities.CampaignPending, map[string]interface{}{"claim_token": ""}); err != nil {
		s.log.WithError(err).WithField("campaign_id", claimed.ID).Error("failed to return campaign to pending")
	}
}

// Reconcile returns campaigns stuck in running for longer than StaleAfter to
// pending. It runs once at startup, before the first tick.
func (s *Scheduler) Reconcile(ctx context.Context) (int64, error) {
	n, err := s.repo.Reconcile(ctx, s.now().Add(-s.cfg.StaleAfter))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.WithField("campaigns", n).Warn("stale running campaigns returned to pending")
	}
	return n, nil
}
