// Package model contains domain models passed between layers.
package model

import (
	"sort"
	"time"
)

// Criterion is one weighted scoring dimension of a competition.
// Weights are relative multipliers; they need not sum to anything.
type Criterion struct {
	ID            string  `yaml:"id"`
	CompetitionID string  `yaml:"competition_id"`
	Name          string  `yaml:"name"`
	Description   string  `yaml:"description"`
	Weight        float64 `yaml:"weight"`
	MaxScore      int     `yaml:"max_score"`
}

// Team owns entries; only its display name is used here.
type Team struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Entry is a competition project. Only submitted entries are judged and ranked.
type Entry struct {
	ID            string    `yaml:"id"`
	Title         string    `yaml:"title"`
	TeamID        string    `yaml:"team_id"`
	TeamName      string    `yaml:"-"`
	CompetitionID string    `yaml:"competition_id"`
	IsSubmitted   bool      `yaml:"is_submitted"`
	CreatedAt     time.Time `yaml:"created_at"`
}

// Judge is a judging identity scoped to one competition.
type Judge struct {
	ID            string `yaml:"id"`
	UserID        string `yaml:"user_id"`
	CompetitionID string `yaml:"competition_id"`
	Active        bool   `yaml:"active"`
}

// ScoreKey is the natural key of a Score.
type ScoreKey struct {
	EntryID     string
	JudgeID     string
	CriterionID string
}

// Score is one judge's value for one criterion of one entry.
type Score struct {
	EntryID     string
	JudgeID     string
	CriterionID string
	Value       float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Key returns the natural key of s.
func (s Score) Key() ScoreKey {
	return ScoreKey{EntryID: s.EntryID, JudgeID: s.JudgeID, CriterionID: s.CriterionID}
}

// PairKey identifies a (entry, judge) relationship.
type PairKey struct {
	EntryID string
	JudgeID string
}

// Feedback is the free-text comment a judge leaves on an entry.
// There is at most one per (entry, judge) pair.
type Feedback struct {
	EntryID   string
	JudgeID   string
	Text      string
	UpdatedAt time.Time
}

// ScoreBatch is the validated write set of one submission.
// Scores are ordered by criterion id.
type ScoreBatch struct {
	EntryID  string
	JudgeID  string
	Scores   []Score
	Feedback *Feedback
}

// CriterionScore is the per-criterion part of a ProjectScore.
type CriterionScore struct {
	Name          string
	Weight        float64
	AverageScore  float64
	WeightedScore float64
}

// ProjectScore is the computed standing of one entry. It is never persisted.
type ProjectScore struct {
	Rank           int
	EntryID        string
	Title          string
	TeamID         string
	TeamName       string
	AverageScore   float64
	WeightedScore  float64
	JudgeCount     int
	CriteriaScores map[string]CriterionScore
}

// Clone returns a deep copy of p.
func (p ProjectScore) Clone() ProjectScore {
	out := p
	out.CriteriaScores = make(map[string]CriterionScore, len(p.CriteriaScores))
	for id, cs := range p.CriteriaScores {
		out.CriteriaScores[id] = cs
	}
	return out
}

// CompetitionSnapshot is a consistent read of everything ranking needs.
// Entries holds submitted entries only; Scores holds scores of those entries.
type CompetitionSnapshot struct {
	CompetitionID string
	Criteria      []Criterion
	Entries       []Entry
	Judges        []Judge
	Scores        []Score
}

// JudgeWorkload is a consistent read of one judge's scoring state.
type JudgeWorkload struct {
	Judge    Judge
	Criteria []Criterion
	Entries  []Entry
	Scores   []Score
}

// Fixtures is reference data used to seed a store.
type Fixtures struct {
	Teams    []Team      `yaml:"teams"`
	Criteria []Criterion `yaml:"criteria"`
	Entries  []Entry     `yaml:"entries"`
	Judges   []Judge     `yaml:"judges"`
}

// SortCriteria orders criteria by weight descending, then name, then id.
func SortCriteria(criteria []Criterion) {
	sort.SliceStable(criteria, func(i, j int) bool {
		a, b := criteria[i], criteria[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

// SortEntries orders entries by creation time, then id.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// SortScores orders scores by entry, judge, then criterion.
func SortScores(scores []Score) {
	sort.Slice(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.EntryID != b.EntryID {
			return a.EntryID < b.EntryID
		}
		if a.JudgeID != b.JudgeID {
			return a.JudgeID < b.JudgeID
		}
		return a.CriterionID < b.CriterionID
	})
}
