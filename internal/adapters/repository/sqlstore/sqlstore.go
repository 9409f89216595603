// Package sqlstore is the bun-backed score store for Postgres and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/okian/jury/internal/adapters/repository"
	"github.com/okian/jury/internal/adapters/repository/sqlstore/migrations"
	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/pkg/logger"
	"github.com/okian/jury/pkg/metrics"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// Drivers accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store implements repository.Store on a SQL database.
type Store struct {
	db       *bun.DB
	driver   string
	snapshot *sql.TxOptions
	log      logger.Logger
}

var _ repository.Store = (*Store)(nil)

// Option configures Open.
type Option func(*Store)

// WithLogger sets the logger used for migration and lifecycle messages.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Open connects to the database and applies pending migrations.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	s := &Store{driver: driver, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	switch driver {
	case DriverPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		s.db = bun.NewDB(sqldb, pgdialect.New())
		s.snapshot = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	case DriverSQLite:
		sqldb, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// One connection serializes writers and keeps transactions on a
		// single database handle.
		sqldb.SetMaxOpenConns(1)
		s.db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}

	if err := s.db.PingContext(ctx); err != nil {
		_ = s.db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := s.migrate(ctx); err != nil {
		_ = s.db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrator := migrate.NewMigrator(s.db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if group.IsZero() {
		s.log.Debug(ctx, "no migrations to run", logger.String("driver", s.driver))
	} else {
		s.log.Info(ctx, "migrated", logger.String("driver", s.driver), logger.String("group", group.String()))
	}
	return nil
}

// Seed upserts reference data.
func (s *Store) Seed(ctx context.Context, f model.Fixtures) error {
	if err := repository.ValidateFixtures(f); err != nil {
		return err
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if len(f.Teams) > 0 {
			rows := make([]teamRow, len(f.Teams))
			for i, t := range f.Teams {
				rows[i] = teamRow{ID: t.ID, Name: t.Name}
			}
			if _, err := tx.NewInsert().Model(&rows).
				On("CONFLICT (id) DO UPDATE").
				Set("name = EXCLUDED.name").
				Exec(ctx); err != nil {
				return fmt.Errorf("seed teams: %w", err)
			}
		}
		if len(f.Criteria) > 0 {
			rows := make([]criterionRow, len(f.Criteria))
			for i, c := range f.Criteria {
				rows[i] = criterionRow{
					ID: c.ID, CompetitionID: c.CompetitionID, Name: c.Name,
					Description: c.Description, Weight: c.Weight, MaxScore: c.MaxScore,
				}
			}
			if _, err := tx.NewInsert().Model(&rows).
				On("CONFLICT (id) DO UPDATE").
				Set("competition_id = EXCLUDED.competition_id").
				Set("name = EXCLUDED.name").
				Set("description = EXCLUDED.description").
				Set("weight = EXCLUDED.weight").
				Set("max_score = EXCLUDED.max_score").
				Exec(ctx); err != nil {
				return fmt.Errorf("seed criteria: %w", err)
			}
		}
		if len(f.Entries) > 0 {
			rows := make([]entryRow, len(f.Entries))
			for i, e := range f.Entries {
				rows[i] = entryRow{
					ID: e.ID, Title: e.Title, TeamID: e.TeamID, CompetitionID: e.CompetitionID,
					IsSubmitted: e.IsSubmitted, CreatedAt: e.CreatedAt,
				}
			}
			if _, err := tx.NewInsert().Model(&rows).
				On("CONFLICT (id) DO UPDATE").
				Set("title = EXCLUDED.title").
				Set("team_id = EXCLUDED.team_id").
				Set("competition_id = EXCLUDED.competition_id").
				Set("is_submitted = EXCLUDED.is_submitted").
				Exec(ctx); err != nil {
				return fmt.Errorf("seed entries: %w", err)
			}
		}
		if len(f.Judges) > 0 {
			rows := make([]judgeRow, len(f.Judges))
			for i, j := range f.Judges {
				rows[i] = judgeRow{ID: j.ID, UserID: j.UserID, CompetitionID: j.CompetitionID, Active: j.Active}
			}
			if _, err := tx.NewInsert().Model(&rows).
				On("CONFLICT (id) DO UPDATE").
				Set("user_id = EXCLUDED.user_id").
				Set("competition_id = EXCLUDED.competition_id").
				Set("active = EXCLUDED.active").
				Exec(ctx); err != nil {
				return fmt.Errorf("seed judges: %w", err)
			}
		}
		return nil
	})
}

// Apply upserts the batch's scores with one statement keyed on
// (entry_id, judge_id, criterion_id), and its feedback, in one transaction.
func (s *Store) Apply(ctx context.Context, batch model.ScoreBatch) error {
	defer s.observe("apply", time.Now())
	if err := repository.CheckBatch(batch); err != nil {
		return err
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if len(batch.Scores) > 0 {
			rows := scoreRows(batch.Scores)
			if _, err := tx.NewInsert().Model(&rows).
				On("CONFLICT (entry_id, judge_id, criterion_id) DO UPDATE").
				Set("value = EXCLUDED.value").
				Set("updated_at = EXCLUDED.updated_at").
				Exec(ctx); err != nil {
				return fmt.Errorf("upsert scores: %w", err)
			}
		}
		if fb := batch.Feedback; fb != nil {
			row := feedbackRow{EntryID: fb.EntryID, JudgeID: fb.JudgeID, Text: fb.Text, UpdatedAt: fb.UpdatedAt}
			if _, err := tx.NewInsert().Model(&row).
				On("CONFLICT (entry_id, judge_id) DO UPDATE").
				Set("text = EXCLUDED.text").
				Set("updated_at = EXCLUDED.updated_at").
				Exec(ctx); err != nil {
				return fmt.Errorf("upsert feedback: %w", err)
			}
		}
		return nil
	})
}

// Criteria returns the competition's criteria ordered by weight descending.
func (s *Store) Criteria(ctx context.Context, competitionID string) ([]model.Criterion, error) {
	defer s.observe("criteria", time.Now())
	return criteria(ctx, s.db, competitionID)
}

// Entry returns an entry with its team name.
func (s *Store) Entry(ctx context.Context, entryID string) (model.Entry, error) {
	var row entryRow
	err := s.db.NewSelect().Model(&row).Relation("Team").Where("e.id = ?", entryID).Scan(ctx)
	if err != nil {
		return model.Entry{}, notFound(err, "entry %s", entryID)
	}
	return row.toModel(), nil
}

// Judge returns a judge by id.
func (s *Store) Judge(ctx context.Context, judgeID string) (model.Judge, error) {
	return judge(ctx, s.db, judgeID)
}

// SubmittedEntries returns the competition's submitted entries.
func (s *Store) SubmittedEntries(ctx context.Context, competitionID string) ([]model.Entry, error) {
	return submittedEntries(ctx, s.db, competitionID)
}

// ActiveJudges returns the competition's active judges ordered by id.
func (s *Store) ActiveJudges(ctx context.Context, competitionID string) ([]model.Judge, error) {
	return activeJudges(ctx, s.db, competitionID)
}

// PairScores returns one judge's scores for an entry.
func (s *Store) PairScores(ctx context.Context, entryID, judgeID string) ([]model.Score, error) {
	var rows []scoreRow
	if err := s.db.NewSelect().Model(&rows).
		Where("entry_id = ?", entryID).
		Where("judge_id = ?", judgeID).
		OrderExpr("criterion_id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("pair scores: %w", err)
	}
	return mapRows(rows, scoreRow.toModel), nil
}

// Feedback returns the judge's feedback for an entry.
func (s *Store) Feedback(ctx context.Context, entryID, judgeID string) (model.Feedback, error) {
	var row feedbackRow
	err := s.db.NewSelect().Model(&row).
		Where("entry_id = ?", entryID).
		Where("judge_id = ?", judgeID).
		Scan(ctx)
	if err != nil {
		return model.Feedback{}, notFound(err, "feedback %s/%s", entryID, judgeID)
	}
	return row.toModel(), nil
}

// EntryFeedback returns all feedback left on an entry, ordered by judge.
func (s *Store) EntryFeedback(ctx context.Context, entryID string) ([]model.Feedback, error) {
	var rows []feedbackRow
	if err := s.db.NewSelect().Model(&rows).
		Where("entry_id = ?", entryID).
		OrderExpr("judge_id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("entry feedback: %w", err)
	}
	return mapRows(rows, feedbackRow.toModel), nil
}

// CompetitionSnapshot reads everything ranking needs in one read-only transaction.
func (s *Store) CompetitionSnapshot(ctx context.Context, competitionID string) (model.CompetitionSnapshot, error) {
	defer s.observe("competition_snapshot", time.Now())
	snap := model.CompetitionSnapshot{CompetitionID: competitionID}
	err := s.db.RunInTx(ctx, s.snapshot, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if snap.Criteria, err = criteria(ctx, tx, competitionID); err != nil {
			return err
		}
		if snap.Entries, err = submittedEntries(ctx, tx, competitionID); err != nil {
			return err
		}
		if snap.Judges, err = activeJudges(ctx, tx, competitionID); err != nil {
			return err
		}
		var rows []scoreRow
		if err := tx.NewSelect().Model(&rows).
			Join("JOIN entries AS e ON e.id = s.entry_id").
			Where("e.competition_id = ?", competitionID).
			Where("e.is_submitted = ?", true).
			Scan(ctx); err != nil {
			return fmt.Errorf("competition scores: %w", err)
		}
		snap.Scores = mapRows(rows, scoreRow.toModel)
		model.SortScores(snap.Scores)
		return nil
	})
	if err != nil {
		return model.CompetitionSnapshot{}, err
	}
	return snap, nil
}

// JudgeWorkload reads one judge's scoring state in one read-only transaction.
func (s *Store) JudgeWorkload(ctx context.Context, judgeID string) (model.JudgeWorkload, error) {
	defer s.observe("judge_workload", time.Now())
	var w model.JudgeWorkload
	err := s.db.RunInTx(ctx, s.snapshot, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if w.Judge, err = judge(ctx, tx, judgeID); err != nil {
			return err
		}
		if w.Criteria, err = criteria(ctx, tx, w.Judge.CompetitionID); err != nil {
			return err
		}
		if w.Entries, err = submittedEntries(ctx, tx, w.Judge.CompetitionID); err != nil {
			return err
		}
		var rows []scoreRow
		if err := tx.NewSelect().Model(&rows).Where("judge_id = ?", judgeID).Scan(ctx); err != nil {
			return fmt.Errorf("judge scores: %w", err)
		}
		w.Scores = mapRows(rows, scoreRow.toModel)
		model.SortScores(w.Scores)
		return nil
	})
	if err != nil {
		return model.JudgeWorkload{}, err
	}
	return w, nil
}

// Count returns the number of stored score rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*scoreRow)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count scores: %w", err)
	}
	metrics.UpdateScoreRowsTotal(n)
	return n, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the bun handle for tooling and tests.
func (s *Store) DB() *bun.DB {
	return s.db
}

func (s *Store) observe(op string, start time.Time) {
	metrics.RecordStoreLatency(s.driver, op, float64(time.Since(start).Microseconds())/1000)
}

func criteria(ctx context.Context, db bun.IDB, competitionID string) ([]model.Criterion, error) {
	var rows []criterionRow
	if err := db.NewSelect().Model(&rows).Where("competition_id = ?", competitionID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("criteria: %w", err)
	}
	out := mapRows(rows, criterionRow.toModel)
	model.SortCriteria(out)
	return out, nil
}

func submittedEntries(ctx context.Context, db bun.IDB, competitionID string) ([]model.Entry, error) {
	var rows []entryRow
	if err := db.NewSelect().Model(&rows).Relation("Team").
		Where("e.competition_id = ?", competitionID).
		Where("e.is_submitted = ?", true).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("submitted entries: %w", err)
	}
	out := mapRows(rows, entryRow.toModel)
	model.SortEntries(out)
	return out, nil
}

func judge(ctx context.Context, db bun.IDB, judgeID string) (model.Judge, error) {
	var row judgeRow
	if err := db.NewSelect().Model(&row).Where("id = ?", judgeID).Scan(ctx); err != nil {
		return model.Judge{}, notFound(err, "judge %s", judgeID)
	}
	return row.toModel(), nil
}

func activeJudges(ctx context.Context, db bun.IDB, competitionID string) ([]model.Judge, error) {
	var rows []judgeRow
	if err := db.NewSelect().Model(&rows).
		Where("competition_id = ?", competitionID).
		Where("active = ?", true).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("active judges: %w", err)
	}
	out := mapRows(rows, judgeRow.toModel)
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func notFound(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, repository.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}
