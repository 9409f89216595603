package simulate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/jury/internal/adapters/repository"
	service "github.com/okian/jury/internal/app"
	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Report summarizes a finished run.
type Report struct {
	Seed         uint64
	Pairs        int
	Submissions  int64
	Rejected     int64
	ScoreRows    int
	ExpectedRows int
	Duration     time.Duration
	Leaders      map[string]model.ProjectScore
}

// SubmissionsPerSecond returns the accepted submission rate.
func (r *Report) SubmissionsPerSecond() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Submissions-r.Rejected) / r.Duration.Seconds()
}

// Runner seeds a store, scores every pair concurrently through the
// service and verifies the outcome.
type Runner struct {
	cfg   Config
	store repository.Store
	svc   *service.Service
	log   logger.Logger
	epoch time.Time
}

// NewRunner returns a runner over store. The store is closed when the
// run's service stops.
func NewRunner(cfg Config, store repository.Store, log logger.Logger) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{
		cfg:   cfg,
		store: store,
		svc:   service.New(service.WithStore(store), service.WithLogger(log.Named("service"))),
		log:   log,
		epoch: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Run executes the simulation. It returns the report together with a
// verification error when the stored state disagrees with what was sent.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	defer r.svc.Stop()

	g := newGenerator(r.cfg.Seed)
	fixtures := g.fixtures(r.cfg, r.epoch)
	plans := g.plans(r.cfg, fixtures)

	r.log.Info(ctx, "starting judging simulation",
		logger.Any("seed", r.cfg.Seed),
		logger.Int("competitions", r.cfg.Competitions),
		logger.Int("pairs", len(plans)),
		logger.Int("concurrency", r.cfg.Concurrency),
		logger.Int("resubmits", r.cfg.Resubmits))

	if err := r.svc.Seed(ctx, fixtures); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	if err := r.svc.Start(ctx); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	report := &Report{Seed: r.cfg.Seed, Pairs: len(plans), ExpectedRows: r.cfg.ExpectedRows()}
	start := time.Now()
	if err := r.submitAll(ctx, plans, report); err != nil {
		return report, err
	}
	report.Duration = time.Since(start)

	r.log.Info(ctx, "submissions finished",
		logger.Any("submissions", report.Submissions),
		logger.Duration("took", report.Duration),
		logger.Float64("perSecond", report.SubmissionsPerSecond()))

	err := r.verify(ctx, fixtures, plans, report)
	if err != nil {
		r.log.Error(ctx, "verification failed", logger.Error(err))
		return report, err
	}
	r.log.Info(ctx, "verification passed", logger.Int("scoreRows", report.ScoreRows))
	return report, nil
}

// submitAll scores pairs with bounded concurrency. Steps of one pair are
// sent in order by one goroutine so the last write is known.
func (r *Runner) submitAll(ctx context.Context, plans []pairPlan, report *Report) error {
	var submitted, rejected int64
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.Concurrency)
	for _, p := range plans {
		eg.Go(func() error {
			for i, sub := range p.Steps {
				atomic.AddInt64(&submitted, 1)
				if _, err := r.svc.Submit(ctx, sub); err != nil {
					atomic.AddInt64(&rejected, 1)
					if errors.Is(err, context.Canceled) {
						return err
					}
					return fmt.Errorf("submit %s/%s step %d: %w", p.EntryID, p.JudgeID, i, err)
				}
			}
			return nil
		})
	}
	err := eg.Wait()
	report.Submissions = atomic.LoadInt64(&submitted)
	report.Rejected = atomic.LoadInt64(&rejected)
	return err
}
