// Package service wires the judging domain to a score store and exposes the
// operations used by the HTTP API and the simulator.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/jury/internal/adapters/repository"
	"github.com/okian/jury/internal/domain/completion"
	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/internal/domain/ranking"
	"github.com/okian/jury/internal/domain/submission"
	"github.com/okian/jury/pkg/errs"
	"github.com/okian/jury/pkg/logger"
	"github.com/okian/jury/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/okian/jury/internal/app"

// SubmitResult is the completion view of a pair right after a submission.
type SubmitResult struct {
	Scored   int
	Total    int
	Complete bool
}

// Scorecard is one judge's current scoring of one entry.
type Scorecard struct {
	Entry    model.Entry
	JudgeID  string
	Criteria []model.Criterion
	// Values holds the scored criteria only.
	Values   map[string]float64
	Feedback *model.Feedback
	Status   completion.Status
}

// Service implements the judging operations.
type Service struct {
	mu sync.RWMutex

	store            repository.Store
	logger           logger.Logger
	tracer           trace.Tracer
	now              func() time.Time
	defaultMinJudges int

	rankings singleflight.Group

	started bool
	closed  bool
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the score store. Defaults to an empty in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source used to stamp scores.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTracerProvider sets the tracer provider. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithDefaultMinJudges sets the judge-count threshold used when a ranking
// request does not name one.
func WithDefaultMinJudges(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.defaultMinJudges = n
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		tracer: otel.Tracer(tracerName),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	return s
}

// Start checks the store and marks the service ready.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	n, err := s.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("store not ready: %w", err)
	}
	s.started = true
	s.logger.Info(ctx, "judging service started", logger.Int("scoreRows", n))
	return nil
}

// Stop closes the store. It is safe to call before Start and more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if err := s.store.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing store", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "judging service stopped")
}

// Seed loads reference data into the store.
func (s *Service) Seed(ctx context.Context, f model.Fixtures) error {
	if err := s.store.Seed(ctx, f); err != nil {
		if errors.Is(err, repository.ErrInvalidRecord) {
			return errs.WrapKind("service.Seed", errs.ErrValidation, err)
		}
		return errs.Wrap("service.Seed", err)
	}
	s.logger.Info(ctx, "seeded reference data",
		logger.Int("teams", len(f.Teams)),
		logger.Int("criteria", len(f.Criteria)),
		logger.Int("entries", len(f.Entries)),
		logger.Int("judges", len(f.Judges)),
	)
	return nil
}

// Submit validates a judge's scores for an entry and upserts them as one
// atomic write. Criteria left empty keep their stored value.
func (s *Service) Submit(ctx context.Context, sub submission.Submission) (SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Submit", trace.WithAttributes(
		attribute.String("entry_id", sub.EntryID),
		attribute.String("judge_id", sub.JudgeID),
	))
	defer span.End()
	start := time.Now()

	res, err := s.submit(ctx, sub)
	latency := float64(time.Since(start).Microseconds()) / 1000
	metrics.RecordSubmissionLatency(latency)
	if err != nil {
		outcome := outcomeOf(err)
		metrics.RecordSubmission(outcome)
		metrics.RecordErrorLatency("service", outcome, latency)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if outcome == metrics.OutcomeFailed {
			s.logger.Error(ctx, "submission failed", logger.String("entryID", sub.EntryID),
				logger.String("judgeID", sub.JudgeID), logger.Error(err))
		} else {
			s.logger.Debug(ctx, "submission rejected", logger.String("entryID", sub.EntryID),
				logger.String("judgeID", sub.JudgeID), logger.Error(err))
		}
		return SubmitResult{}, err
	}

	metrics.RecordSubmission(metrics.OutcomeAccepted)
	if res.Complete {
		metrics.RecordCompletion()
	}
	span.SetAttributes(attribute.Int("scored", res.Scored), attribute.Int("total", res.Total))
	s.logger.Debug(ctx, "submission accepted",
		logger.String("entryID", sub.EntryID),
		logger.String("judgeID", sub.JudgeID),
		logger.Int("scored", res.Scored),
		logger.Int("total", res.Total),
	)
	return res, nil
}

func (s *Service) submit(ctx context.Context, sub submission.Submission) (SubmitResult, error) {
	const op = "service.Submit"
	if err := sub.Validate(); err != nil {
		return SubmitResult{}, err
	}
	entry, criteria, err := s.judgeable(ctx, op, sub.EntryID, sub.JudgeID)
	if err != nil {
		return SubmitResult{}, err
	}

	batch, err := submission.Plan(sub, criteria, s.now())
	if err != nil {
		return SubmitResult{}, err
	}
	if err := s.store.Apply(ctx, batch); err != nil {
		return SubmitResult{}, errs.Wrap(op, err)
	}
	metrics.RecordScoreUpserts(len(batch.Scores))

	scores, err := s.store.PairScores(ctx, entry.ID, sub.JudgeID)
	if err != nil {
		return SubmitResult{}, errs.Wrap(op, err)
	}
	st := completion.Status{Scored: completion.Count(criteria, scores), Total: len(criteria)}
	return SubmitResult{Scored: st.Scored, Total: st.Total, Complete: st.Complete()}, nil
}

// judgeable resolves a submitted entry, an active judge of the same
// competition and that competition's criteria.
func (s *Service) judgeable(ctx context.Context, op, entryID, judgeID string) (model.Entry, []model.Criterion, error) {
	entry, err := s.store.Entry(ctx, entryID)
	if err != nil {
		return model.Entry{}, nil, storeErr(op, err)
	}
	if !entry.IsSubmitted {
		return model.Entry{}, nil, errs.WrapKind(op, errs.ErrNotFound, fmt.Errorf("entry %s is not submitted", entryID))
	}
	judge, err := s.store.Judge(ctx, judgeID)
	if err != nil {
		return model.Entry{}, nil, storeErr(op, err)
	}
	if !judge.Active || judge.CompetitionID != entry.CompetitionID {
		return model.Entry{}, nil, errs.WrapKind(op, errs.ErrNotFound,
			fmt.Errorf("judge %s is not an active judge of competition %s", judgeID, entry.CompetitionID))
	}
	criteria, err := s.store.Criteria(ctx, entry.CompetitionID)
	if err != nil {
		return model.Entry{}, nil, errs.Wrap(op, err)
	}
	return entry, criteria, nil
}

// IsComplete reports whether the judge has scored every criterion of the entry.
func (s *Service) IsComplete(ctx context.Context, entryID, judgeID string) (bool, error) {
	const op = "service.IsComplete"
	ctx, span := s.tracer.Start(ctx, "Service.IsComplete")
	defer span.End()

	entry, criteria, err := s.judgeable(ctx, op, entryID, judgeID)
	if err != nil {
		return false, s.fail(span, err)
	}
	scores, err := s.store.PairScores(ctx, entry.ID, judgeID)
	if err != nil {
		return false, s.fail(span, errs.Wrap(op, err))
	}
	return completion.IsComplete(completion.Count(criteria, scores), len(criteria)), nil
}

// ListEntriesForJudge returns the judge's submitted entries split into those
// still to judge and those fully judged, each in creation order.
func (s *Service) ListEntriesForJudge(ctx context.Context, judgeID string) (completion.Worklist, error) {
	const op = "service.ListEntriesForJudge"
	ctx, span := s.tracer.Start(ctx, "Service.ListEntriesForJudge", trace.WithAttributes(attribute.String("judge_id", judgeID)))
	defer span.End()

	w, err := s.store.JudgeWorkload(ctx, judgeID)
	if err != nil {
		return completion.Worklist{}, s.fail(span, storeErr(op, err))
	}
	if !w.Judge.Active {
		return completion.Worklist{}, s.fail(span, errs.WrapKind(op, errs.ErrNotFound, fmt.Errorf("judge %s is not active", judgeID)))
	}
	return completion.Partition(w), nil
}

// Progress reports complete, partial and untouched entry counts per active judge.
func (s *Service) Progress(ctx context.Context, competitionID string) ([]completion.JudgeProgress, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Progress", trace.WithAttributes(attribute.String("competition_id", competitionID)))
	defer span.End()

	snap, err := s.store.CompetitionSnapshot(ctx, competitionID)
	if err != nil {
		return nil, s.fail(span, errs.Wrap("service.Progress", err))
	}
	return completion.Progress(snap), nil
}

// Scorecard returns the judge's current values and feedback for an entry.
func (s *Service) Scorecard(ctx context.Context, entryID, judgeID string) (Scorecard, error) {
	const op = "service.Scorecard"
	ctx, span := s.tracer.Start(ctx, "Service.Scorecard")
	defer span.End()

	entry, criteria, err := s.judgeable(ctx, op, entryID, judgeID)
	if err != nil {
		return Scorecard{}, s.fail(span, err)
	}
	scores, err := s.store.PairScores(ctx, entryID, judgeID)
	if err != nil {
		return Scorecard{}, s.fail(span, errs.Wrap(op, err))
	}
	card := Scorecard{
		Entry:    entry,
		JudgeID:  judgeID,
		Criteria: criteria,
		Values:   make(map[string]float64, len(scores)),
		Status:   completion.Status{Scored: completion.Count(criteria, scores), Total: len(criteria)},
	}
	for _, sc := range scores {
		card.Values[sc.CriterionID] = sc.Value
	}
	fb, err := s.store.Feedback(ctx, entryID, judgeID)
	switch {
	case err == nil:
		card.Feedback = &fb
	case !errors.Is(err, repository.ErrNotFound):
		return Scorecard{}, s.fail(span, errs.Wrap(op, err))
	}
	return card, nil
}

// Criteria returns the competition's criteria ordered by weight descending.
func (s *Service) Criteria(ctx context.Context, competitionID string) ([]model.Criterion, error) {
	c, err := s.store.Criteria(ctx, competitionID)
	if err != nil {
		return nil, errs.Wrap("service.Criteria", err)
	}
	return c, nil
}

// RankEntries ranks every submitted entry of the competition from one
// consistent read of the store. Concurrent calls for the same competition
// share one computation; each caller gets its own copy.
func (s *Service) RankEntries(ctx context.Context, competitionID string) ([]model.ProjectScore, error) {
	ctx, span := s.tracer.Start(ctx, "Service.RankEntries", trace.WithAttributes(attribute.String("competition_id", competitionID)))
	defer span.End()

	// The shared read must not inherit one caller's cancellation; each
	// caller still stops waiting when its own context ends.
	shareCtx := context.WithoutCancel(ctx)
	ch := s.rankings.DoChan(competitionID, func() (interface{}, error) {
		start := time.Now()
		snap, err := s.store.CompetitionSnapshot(shareCtx, competitionID)
		if err != nil {
			return nil, errs.Wrap("service.RankEntries", err)
		}
		ranked := ranking.Rank(snap)
		metrics.RecordRankingDuration(float64(time.Since(start).Microseconds()) / 1000)
		metrics.UpdateRankedEntries(competitionID, len(ranked))
		return ranked, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, s.fail(span, errs.Wrap("service.RankEntries", ctx.Err()))
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, s.fail(span, res.Err)
	}
	if res.Shared {
		metrics.RecordRankingCoalesced()
	}
	ranked := res.Val.([]model.ProjectScore)
	out := make([]model.ProjectScore, len(ranked))
	for i := range ranked {
		out[i] = ranked[i].Clone()
	}
	span.SetAttributes(attribute.Int("entries", len(out)))
	return out, nil
}

// Ranking ranks the competition and keeps entries scored by at least
// minJudges distinct judges. Ranks are those of the full ranking.
func (s *Service) Ranking(ctx context.Context, competitionID string, minJudges int) ([]model.ProjectScore, error) {
	if minJudges < 0 {
		return nil, errs.Invalid("service.Ranking", "min_judges must not be negative")
	}
	ranked, err := s.RankEntries(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	return ranking.FilterMinJudges(ranked, minJudges), nil
}

// DefaultMinJudges returns the configured ranking threshold.
func (s *Service) DefaultMinJudges() int {
	return s.defaultMinJudges
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":          s.started,
		"defaultMinJudges": s.defaultMinJudges,
	}
	if s.started {
		if n, err := s.store.Count(context.Background()); err == nil {
			stats["scoreRows"] = n
			metrics.UpdateScoreRowsTotal(n)
		}
	}
	return stats
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return errs.WrapKind(op, errs.ErrNotFound, err)
	}
	return errs.Wrap(op, err)
}

func outcomeOf(err error) string {
	switch {
	case errs.IsValidation(err):
		return metrics.OutcomeInvalid
	case errs.IsNotFound(err):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeFailed
	}
}
