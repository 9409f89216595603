package api

import (
	"time"

	service "github.com/okian/jury/internal/app"
	"github.com/okian/jury/internal/domain/completion"
	"github.com/okian/jury/internal/domain/model"
)

// submissionRequest mirrors the OpenAPI schema for POST /v1/submissions.
// A null score leaves that criterion empty.
type submissionRequest struct {
	EntryID  string              `json:"entry_id"`
	JudgeID  string              `json:"judge_id"`
	Scores   map[string]*float64 `json:"scores"`
	Feedback *string             `json:"feedback,omitempty"`
}

type submissionResponse struct {
	Scored   int  `json:"scored"`
	Total    int  `json:"total"`
	Complete bool `json:"complete"`
}

type criterionDTO struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Weight      float64 `json:"weight"`
	MaxScore    int     `json:"max_score"`
}

type criterionScoreDTO struct {
	Name          string  `json:"name"`
	Weight        float64 `json:"weight"`
	AverageScore  float64 `json:"average_score"`
	WeightedScore float64 `json:"weighted_score"`
}

type projectScoreDTO struct {
	Rank           int                          `json:"rank"`
	EntryID        string                       `json:"entry_id"`
	Title          string                       `json:"title"`
	TeamID         string                       `json:"team_id"`
	TeamName       string                       `json:"team_name"`
	AverageScore   float64                      `json:"average_score"`
	WeightedScore  float64                      `json:"weighted_score"`
	JudgeCount     int                          `json:"judge_count"`
	CriteriaScores map[string]criterionScoreDTO `json:"criteria_scores"`
}

type rankingsResponse struct {
	CompetitionID string            `json:"competition_id"`
	MinJudges     int               `json:"min_judges"`
	Entries       []projectScoreDTO `json:"entries"`
}

type entryDTO struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	TeamName  string    `json:"team_name"`
	CreatedAt time.Time `json:"created_at"`
}

type workItemDTO struct {
	Entry  entryDTO `json:"entry"`
	Scored int      `json:"scored"`
	Total  int      `json:"total"`
}

type worklistResponse struct {
	JudgeID string        `json:"judge_id"`
	ToJudge []workItemDTO `json:"to_judge"`
	Judged  []workItemDTO `json:"judged"`
}

type judgeProgressDTO struct {
	JudgeID   string `json:"judge_id"`
	UserID    string `json:"user_id"`
	Complete  int    `json:"complete"`
	Partial   int    `json:"partial"`
	Untouched int    `json:"untouched"`
}

type scorecardResponse struct {
	Entry    entryDTO           `json:"entry"`
	JudgeID  string             `json:"judge_id"`
	Criteria []criterionDTO     `json:"criteria"`
	Scores   map[string]float64 `json:"scores"`
	Feedback *string            `json:"feedback"`
	Scored   int                `json:"scored"`
	Total    int                `json:"total"`
	Complete bool               `json:"complete"`
}

func toCriteria(cs []model.Criterion) []criterionDTO {
	out := make([]criterionDTO, len(cs))
	for i, c := range cs {
		out[i] = criterionDTO{ID: c.ID, Name: c.Name, Description: c.Description, Weight: c.Weight, MaxScore: c.MaxScore}
	}
	return out
}

func toProjectScores(ps []model.ProjectScore) []projectScoreDTO {
	out := make([]projectScoreDTO, len(ps))
	for i, p := range ps {
		cs := make(map[string]criterionScoreDTO, len(p.CriteriaScores))
		for id, c := range p.CriteriaScores {
			cs[id] = criterionScoreDTO{Name: c.Name, Weight: c.Weight, AverageScore: c.AverageScore, WeightedScore: c.WeightedScore}
		}
		out[i] = projectScoreDTO{
			Rank: p.Rank, EntryID: p.EntryID, Title: p.Title, TeamID: p.TeamID, TeamName: p.TeamName,
			AverageScore: p.AverageScore, WeightedScore: p.WeightedScore, JudgeCount: p.JudgeCount,
			CriteriaScores: cs,
		}
	}
	return out
}

func toEntry(e model.Entry) entryDTO {
	return entryDTO{ID: e.ID, Title: e.Title, TeamName: e.TeamName, CreatedAt: e.CreatedAt}
}

func toWorkItems(items []completion.Item) []workItemDTO {
	out := make([]workItemDTO, len(items))
	for i, it := range items {
		out[i] = workItemDTO{Entry: toEntry(it.Entry), Scored: it.Status.Scored, Total: it.Status.Total}
	}
	return out
}

func toProgress(ps []completion.JudgeProgress) []judgeProgressDTO {
	out := make([]judgeProgressDTO, len(ps))
	for i, p := range ps {
		out[i] = judgeProgressDTO{
			JudgeID: p.Judge.ID, UserID: p.Judge.UserID,
			Complete: p.Complete, Partial: p.Partial, Untouched: p.Untouched,
		}
	}
	return out
}

func toScorecard(c service.Scorecard) scorecardResponse {
	resp := scorecardResponse{
		Entry:    toEntry(c.Entry),
		JudgeID:  c.JudgeID,
		Criteria: toCriteria(c.Criteria),
		Scores:   c.Values,
		Scored:   c.Status.Scored,
		Total:    c.Status.Total,
		Complete: c.Status.Complete(),
	}
	if c.Feedback != nil {
		text := c.Feedback.Text
		resp.Feedback = &text
	}
	return resp
}
