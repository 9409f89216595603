// Package ranking combines raw judge scores into weighted entry standings.
//
// Everything here is a pure function of a CompetitionSnapshot, so a ranking
// computed from one snapshot is internally consistent across all entries.
//
// Ordering: weighted score DESC, then title ASC, then entry id ASC.
package ranking

import (
	"sort"

	"github.com/okian/jury/internal/domain/model"
)

// Rank computes a ProjectScore for every entry in the snapshot and returns
// them in ranking order. Entries without any score are included with zeros.
func Rank(snap model.CompetitionSnapshot) []model.ProjectScore {
	byEntry := make(map[string][]model.Score, len(snap.Entries))
	for _, s := range snap.Scores {
		byEntry[s.EntryID] = append(byEntry[s.EntryID], s)
	}

	out := make([]model.ProjectScore, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		out = append(out, Score(e, snap.Criteria, byEntry[e.ID]))
	}
	sortScores(out)
	assignRanksWithTies(out)
	return out
}

// Score aggregates one entry's scores against the criteria set.
func Score(e model.Entry, criteria []model.Criterion, scores []model.Score) model.ProjectScore {
	inSet := make(map[string]bool, len(criteria))
	for _, c := range criteria {
		inSet[c.ID] = true
	}
	// Rows for criteria no longer in the set are ignored, as completion does.
	byCriterion := make(map[string][]float64, len(criteria))
	judges := make(map[string]struct{})
	for _, s := range scores {
		if !inSet[s.CriterionID] {
			continue
		}
		byCriterion[s.CriterionID] = append(byCriterion[s.CriterionID], s.Value)
		judges[s.JudgeID] = struct{}{}
	}

	ps := model.ProjectScore{
		EntryID:        e.ID,
		Title:          e.Title,
		TeamID:         e.TeamID,
		TeamName:       e.TeamName,
		JudgeCount:     len(judges),
		CriteriaScores: make(map[string]model.CriterionScore, len(criteria)),
	}

	var sumAvg, sumWeighted, sumWeight float64
	for _, c := range criteria {
		avg := mean(byCriterion[c.ID])
		weighted := avg * c.Weight
		ps.CriteriaScores[c.ID] = model.CriterionScore{
			Name:          c.Name,
			Weight:        c.Weight,
			AverageScore:  avg,
			WeightedScore: weighted,
		}
		sumAvg += avg
		sumWeighted += weighted
		sumWeight += c.Weight
	}

	if len(criteria) > 0 {
		ps.AverageScore = sumAvg / float64(len(criteria))
	}
	if sumWeight != 0 {
		ps.WeightedScore = sumWeighted / sumWeight
	}
	return ps
}

// FilterMinJudges drops entries judged by fewer than minJudges distinct judges.
// Relative order and assigned ranks of the remaining entries are unchanged.
func FilterMinJudges(scores []model.ProjectScore, minJudges int) []model.ProjectScore {
	out := make([]model.ProjectScore, 0, len(scores))
	for _, ps := range scores {
		if ps.JudgeCount >= minJudges {
			out = append(out, ps)
		}
	}
	return out
}

// mean returns the arithmetic mean of values, or 0 for an empty set.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sortScores(scores []model.ProjectScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.WeightedScore != b.WeightedScore {
			return a.WeightedScore > b.WeightedScore
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.EntryID < b.EntryID
	})
}

// assignRanksWithTies assigns dense ranks: entries with equal weighted scores
// share a rank and the next distinct score gets the following rank.
func assignRanksWithTies(scores []model.ProjectScore) {
	rank := 0
	for i := range scores {
		if i == 0 || scores[i].WeightedScore != scores[i-1].WeightedScore {
			rank++
		}
		scores[i].Rank = rank
	}
}
