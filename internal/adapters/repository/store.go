// Package repository defines the score store contract and its in-memory implementation.
package repository

import (
	"context"
	"fmt"

	"github.com/okian/jury/internal/domain/model"
)

// ReferenceReader reads the externally managed reference data.
type ReferenceReader interface {
	// Criteria returns the competition's criteria ordered by weight descending.
	Criteria(ctx context.Context, competitionID string) ([]model.Criterion, error)
	// Entry returns an entry by id. Returns ErrNotFound if unknown.
	Entry(ctx context.Context, entryID string) (model.Entry, error)
	// Judge returns a judge by id. Returns ErrNotFound if unknown.
	Judge(ctx context.Context, judgeID string) (model.Judge, error)
	// SubmittedEntries returns the competition's submitted entries with team names.
	SubmittedEntries(ctx context.Context, competitionID string) ([]model.Entry, error)
	// ActiveJudges returns the competition's active judges.
	ActiveJudges(ctx context.Context, competitionID string) ([]model.Judge, error)
}

// ScoreWriter applies validated submissions.
type ScoreWriter interface {
	// Apply writes every score of the batch and its feedback as one atomic
	// operation. Each score is inserted or updated on its natural key.
	Apply(ctx context.Context, batch model.ScoreBatch) error
}

// ScoreReader reads scores and derived views.
type ScoreReader interface {
	// PairScores returns the judge's scores for an entry, ordered by criterion.
	PairScores(ctx context.Context, entryID, judgeID string) ([]model.Score, error)
	// Feedback returns the judge's feedback for an entry. Returns ErrNotFound if none.
	Feedback(ctx context.Context, entryID, judgeID string) (model.Feedback, error)
	// EntryFeedback returns every judge's feedback for an entry.
	EntryFeedback(ctx context.Context, entryID string) ([]model.Feedback, error)
	// CompetitionSnapshot reads criteria, submitted entries, active judges and
	// their scores in one consistent view.
	CompetitionSnapshot(ctx context.Context, competitionID string) (model.CompetitionSnapshot, error)
	// JudgeWorkload reads one judge's criteria, entries and scores in one consistent view.
	JudgeWorkload(ctx context.Context, judgeID string) (model.JudgeWorkload, error)
}

// Seeder loads reference data. Provisioning is not part of judging; this
// exists for local runs, fixtures and tests.
type Seeder interface {
	Seed(ctx context.Context, f model.Fixtures) error
}

// Store is the full persistence contract used by the service.
type Store interface {
	ReferenceReader
	ScoreWriter
	ScoreReader
	Seeder

	// Count returns the number of stored score rows.
	Count(ctx context.Context) (int, error)
	Close() error
}

// CheckBatch verifies that every row of a batch belongs to the batch's
// (entry, judge) pair.
func CheckBatch(batch model.ScoreBatch) error {
	for _, sc := range batch.Scores {
		if sc.EntryID != batch.EntryID || sc.JudgeID != batch.JudgeID {
			return fmt.Errorf("%w: score for %s/%s in batch for %s/%s",
				ErrInvalidRecord, sc.EntryID, sc.JudgeID, batch.EntryID, batch.JudgeID)
		}
	}
	if fb := batch.Feedback; fb != nil && (fb.EntryID != batch.EntryID || fb.JudgeID != batch.JudgeID) {
		return fmt.Errorf("%w: feedback for %s/%s in batch for %s/%s",
			ErrInvalidRecord, fb.EntryID, fb.JudgeID, batch.EntryID, batch.JudgeID)
	}
	return nil
}
