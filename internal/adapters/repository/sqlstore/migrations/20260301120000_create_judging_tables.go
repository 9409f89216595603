package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// The DDL is kept to the subset Postgres and SQLite share.
var createJudgingTables = []string{
	`CREATE TABLE IF NOT EXISTS teams (
		id   VARCHAR(64) PRIMARY KEY,
		name TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS criteria (
		id             VARCHAR(64) PRIMARY KEY,
		competition_id VARCHAR(64) NOT NULL,
		name           TEXT NOT NULL DEFAULT '',
		description    TEXT NOT NULL DEFAULT '',
		weight         DOUBLE PRECISION NOT NULL CHECK (weight > 0),
		max_score      INTEGER NOT NULL CHECK (max_score > 0)
	)`,
	`CREATE TABLE IF NOT EXISTS entries (
		id             VARCHAR(64) PRIMARY KEY,
		title          TEXT NOT NULL DEFAULT '',
		team_id        VARCHAR(64) NOT NULL DEFAULT '',
		competition_id VARCHAR(64) NOT NULL,
		is_submitted   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS judges (
		id             VARCHAR(64) PRIMARY KEY,
		user_id        VARCHAR(64) NOT NULL DEFAULT '',
		competition_id VARCHAR(64) NOT NULL,
		active         BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS scores (
		entry_id     VARCHAR(64) NOT NULL,
		judge_id     VARCHAR(64) NOT NULL,
		criterion_id VARCHAR(64) NOT NULL,
		value        DOUBLE PRECISION NOT NULL CHECK (value >= 0),
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (entry_id, judge_id, criterion_id)
	)`,
	`CREATE TABLE IF NOT EXISTS judge_feedback (
		entry_id   VARCHAR(64) NOT NULL,
		judge_id   VARCHAR(64) NOT NULL,
		text       TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (entry_id, judge_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_criteria_competition ON criteria(competition_id)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_competition ON entries(competition_id, is_submitted)`,
	`CREATE INDEX IF NOT EXISTS idx_judges_competition ON judges(competition_id)`,
	`CREATE INDEX IF NOT EXISTS idx_scores_judge ON scores(judge_id)`,
}

var dropJudgingTables = []string{
	`DROP TABLE IF EXISTS judge_feedback`,
	`DROP TABLE IF EXISTS scores`,
	`DROP TABLE IF EXISTS judges`,
	`DROP TABLE IF EXISTS entries`,
	`DROP TABLE IF EXISTS criteria`,
	`DROP TABLE IF EXISTS teams`,
}

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return execAll(ctx, tx, createJudgingTables)
		})
	}, func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return execAll(ctx, tx, dropJudgingTables)
		})
	})
}

func execAll(ctx context.Context, tx bun.Tx, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement failed: %w", err)
		}
	}
	return nil
}
