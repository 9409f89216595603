package sqlstore

import (
	"time"

	"github.com/okian/jury/internal/domain/model"
	"github.com/uptrace/bun"
)

type teamRow struct {
	bun.BaseModel `bun:"table:teams,alias:t"`

	ID   string `bun:"id,pk"`
	Name string `bun:"name"`
}

type criterionRow struct {
	bun.BaseModel `bun:"table:criteria,alias:c"`

	ID            string  `bun:"id,pk"`
	CompetitionID string  `bun:"competition_id"`
	Name          string  `bun:"name"`
	Description   string  `bun:"description"`
	Weight        float64 `bun:"weight"`
	MaxScore      int     `bun:"max_score"`
}

type entryRow struct {
	bun.BaseModel `bun:"table:entries,alias:e"`

	ID            string    `bun:"id,pk"`
	Title         string    `bun:"title"`
	TeamID        string    `bun:"team_id"`
	CompetitionID string    `bun:"competition_id"`
	IsSubmitted   bool      `bun:"is_submitted"`
	CreatedAt     time.Time `bun:"created_at"`

	Team *teamRow `bun:"rel:belongs-to,join:team_id=id"`
}

type judgeRow struct {
	bun.BaseModel `bun:"table:judges,alias:j"`

	ID            string `bun:"id,pk"`
	UserID        string `bun:"user_id"`
	CompetitionID string `bun:"competition_id"`
	Active        bool   `bun:"active"`
}

type scoreRow struct {
	bun.BaseModel `bun:"table:scores,alias:s"`

	EntryID     string    `bun:"entry_id,pk"`
	JudgeID     string    `bun:"judge_id,pk"`
	CriterionID string    `bun:"criterion_id,pk"`
	Value       float64   `bun:"value"`
	CreatedAt   time.Time `bun:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at"`
}

type feedbackRow struct {
	bun.BaseModel `bun:"table:judge_feedback,alias:f"`

	EntryID   string    `bun:"entry_id,pk"`
	JudgeID   string    `bun:"judge_id,pk"`
	Text      string    `bun:"text"`
	UpdatedAt time.Time `bun:"updated_at"`
}

func (r criterionRow) toModel() model.Criterion {
	return model.Criterion{
		ID: r.ID, CompetitionID: r.CompetitionID, Name: r.Name,
		Description: r.Description, Weight: r.Weight, MaxScore: r.MaxScore,
	}
}

func (r entryRow) toModel() model.Entry {
	e := model.Entry{
		ID: r.ID, Title: r.Title, TeamID: r.TeamID, CompetitionID: r.CompetitionID,
		IsSubmitted: r.IsSubmitted, CreatedAt: r.CreatedAt.UTC(),
	}
	if r.Team != nil {
		e.TeamName = r.Team.Name
	}
	return e
}

func (r judgeRow) toModel() model.Judge {
	return model.Judge{ID: r.ID, UserID: r.UserID, CompetitionID: r.CompetitionID, Active: r.Active}
}

func (r scoreRow) toModel() model.Score {
	return model.Score{
		EntryID: r.EntryID, JudgeID: r.JudgeID, CriterionID: r.CriterionID, Value: r.Value,
		CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (r feedbackRow) toModel() model.Feedback {
	return model.Feedback{EntryID: r.EntryID, JudgeID: r.JudgeID, Text: r.Text, UpdatedAt: r.UpdatedAt.UTC()}
}

func scoreRows(scores []model.Score) []scoreRow {
	rows := make([]scoreRow, len(scores))
	for i, s := range scores {
		rows[i] = scoreRow{
			EntryID: s.EntryID, JudgeID: s.JudgeID, CriterionID: s.CriterionID, Value: s.Value,
			CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
		}
	}
	return rows
}

func mapRows[R any, M any](rows []R, conv func(R) M) []M {
	out := make([]M, len(rows))
	for i, r := range rows {
		out[i] = conv(r)
	}
	return out
}
