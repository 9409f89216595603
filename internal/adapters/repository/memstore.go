package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/pkg/metrics"
)

const memoryStoreName = "memory"

// MemoryStore is an in-memory Store. A single RWMutex guards all state, so an
// Apply is atomic and every snapshot read sees one consistent state.
type MemoryStore struct {
	mu       sync.RWMutex
	teams    map[string]model.Team
	criteria map[string]model.Criterion
	entries  map[string]model.Entry
	judges   map[string]model.Judge
	scores   map[model.ScoreKey]model.Score
	feedback map[model.PairKey]model.Feedback
	closed   bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		teams:    make(map[string]model.Team),
		criteria: make(map[string]model.Criterion),
		entries:  make(map[string]model.Entry),
		judges:   make(map[string]model.Judge),
		scores:   make(map[model.ScoreKey]model.Score),
		feedback: make(map[model.PairKey]model.Feedback),
	}
}

// Seed upserts reference data.
func (s *MemoryStore) Seed(ctx context.Context, f model.Fixtures) error {
	if err := ValidateFixtures(f); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, t := range f.Teams {
		s.teams[t.ID] = t
	}
	for _, c := range f.Criteria {
		s.criteria[c.ID] = c
	}
	for _, e := range f.Entries {
		s.entries[e.ID] = e
	}
	for _, j := range f.Judges {
		s.judges[j.ID] = j
	}
	return nil
}

// Apply upserts every score in the batch and the batch feedback under one lock.
func (s *MemoryStore) Apply(ctx context.Context, batch model.ScoreBatch) error {
	defer observe("apply", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := CheckBatch(batch); err != nil {
		return err
	}
	for _, sc := range batch.Scores {
		k := sc.Key()
		if old, ok := s.scores[k]; ok {
			sc.CreatedAt = old.CreatedAt
		}
		s.scores[k] = sc
	}
	if fb := batch.Feedback; fb != nil {
		s.feedback[model.PairKey{EntryID: fb.EntryID, JudgeID: fb.JudgeID}] = *fb
	}
	metrics.UpdateScoreRowsTotal(len(s.scores))
	return nil
}

// Criteria returns the competition's criteria ordered by weight descending.
func (s *MemoryStore) Criteria(ctx context.Context, competitionID string) ([]model.Criterion, error) {
	defer observe("criteria", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.criteriaLocked(competitionID), nil
}

// Entry returns an entry with its team name.
func (s *MemoryStore) Entry(ctx context.Context, entryID string) (model.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[entryID]
	if !ok {
		return model.Entry{}, fmt.Errorf("entry %s: %w", entryID, ErrNotFound)
	}
	return s.withTeam(e), nil
}

// Judge returns a judge by id.
func (s *MemoryStore) Judge(ctx context.Context, judgeID string) (model.Judge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.judges[judgeID]
	if !ok {
		return model.Judge{}, fmt.Errorf("judge %s: %w", judgeID, ErrNotFound)
	}
	return j, nil
}

// SubmittedEntries returns the competition's submitted entries.
func (s *MemoryStore) SubmittedEntries(ctx context.Context, competitionID string) ([]model.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.submittedLocked(competitionID), nil
}

// ActiveJudges returns the competition's active judges ordered by id.
func (s *MemoryStore) ActiveJudges(ctx context.Context, competitionID string) ([]model.Judge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeJudgesLocked(competitionID), nil
}

// PairScores returns one judge's scores for an entry.
func (s *MemoryStore) PairScores(ctx context.Context, entryID, judgeID string) ([]model.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Score
	for k, sc := range s.scores {
		if k.EntryID == entryID && k.JudgeID == judgeID {
			out = append(out, sc)
		}
	}
	model.SortScores(out)
	return out, nil
}

// Feedback returns the judge's feedback for an entry.
func (s *MemoryStore) Feedback(ctx context.Context, entryID, judgeID string) (model.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fb, ok := s.feedback[model.PairKey{EntryID: entryID, JudgeID: judgeID}]
	if !ok {
		return model.Feedback{}, fmt.Errorf("feedback %s/%s: %w", entryID, judgeID, ErrNotFound)
	}
	return fb, nil
}

// EntryFeedback returns all feedback left on an entry, ordered by judge.
func (s *MemoryStore) EntryFeedback(ctx context.Context, entryID string) ([]model.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Feedback, 0)
	for k, fb := range s.feedback {
		if k.EntryID == entryID {
			out = append(out, fb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JudgeID < out[j].JudgeID })
	return out, nil
}

// CompetitionSnapshot reads everything ranking needs under one read lock.
func (s *MemoryStore) CompetitionSnapshot(ctx context.Context, competitionID string) (model.CompetitionSnapshot, error) {
	defer observe("competition_snapshot", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.submittedLocked(competitionID)
	ids := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		ids[e.ID] = struct{}{}
	}
	scores := make([]model.Score, 0)
	for k, sc := range s.scores {
		if _, ok := ids[k.EntryID]; ok {
			scores = append(scores, sc)
		}
	}
	model.SortScores(scores)

	return model.CompetitionSnapshot{
		CompetitionID: competitionID,
		Criteria:      s.criteriaLocked(competitionID),
		Entries:       entries,
		Judges:        s.activeJudgesLocked(competitionID),
		Scores:        scores,
	}, nil
}

// JudgeWorkload reads one judge's scoring state under one read lock.
func (s *MemoryStore) JudgeWorkload(ctx context.Context, judgeID string) (model.JudgeWorkload, error) {
	defer observe("judge_workload", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.judges[judgeID]
	if !ok {
		return model.JudgeWorkload{}, fmt.Errorf("judge %s: %w", judgeID, ErrNotFound)
	}
	scores := make([]model.Score, 0)
	for k, sc := range s.scores {
		if k.JudgeID == judgeID {
			scores = append(scores, sc)
		}
	}
	model.SortScores(scores)
	return model.JudgeWorkload{
		Judge:    j,
		Criteria: s.criteriaLocked(j.CompetitionID),
		Entries:  s.submittedLocked(j.CompetitionID),
		Scores:   scores,
	}, nil
}

// Count returns the number of stored score rows.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scores), nil
}

// Close marks the store closed; later writes fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) criteriaLocked(competitionID string) []model.Criterion {
	out := make([]model.Criterion, 0)
	for _, c := range s.criteria {
		if c.CompetitionID == competitionID {
			out = append(out, c)
		}
	}
	model.SortCriteria(out)
	return out
}

func (s *MemoryStore) submittedLocked(competitionID string) []model.Entry {
	out := make([]model.Entry, 0)
	for _, e := range s.entries {
		if e.CompetitionID == competitionID && e.IsSubmitted {
			out = append(out, s.withTeam(e))
		}
	}
	model.SortEntries(out)
	return out
}

func (s *MemoryStore) activeJudgesLocked(competitionID string) []model.Judge {
	out := make([]model.Judge, 0)
	for _, j := range s.judges {
		if j.CompetitionID == competitionID && j.Active {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func (s *MemoryStore) withTeam(e model.Entry) model.Entry {
	if t, ok := s.teams[e.TeamID]; ok {
		e.TeamName = t.Name
	}
	return e
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(memoryStoreName, op, float64(time.Since(start).Microseconds())/1000)
}
