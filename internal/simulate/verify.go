package simulate

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/go-cmp/cmp"
	"github.com/okian/jury/internal/domain/model"
)

const tolerance = 1e-9

// verify checks row counts, completion, progress and rankings against the
// values the plans left behind. Every mismatch is reported.
func (r *Runner) verify(ctx context.Context, f model.Fixtures, plans []pairPlan, report *Report) error {
	var problems []error

	rows, err := r.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	report.ScoreRows = rows
	if rows != report.ExpectedRows {
		problems = append(problems, fmt.Errorf("score rows: got %d, want %d", rows, report.ExpectedRows))
	}

	for _, p := range plans {
		ok, err := r.svc.IsComplete(ctx, p.EntryID, p.JudgeID)
		if err != nil {
			return fmt.Errorf("completion %s/%s: %w", p.EntryID, p.JudgeID, err)
		}
		if !ok {
			problems = append(problems, fmt.Errorf("pair %s/%s is not complete", p.EntryID, p.JudgeID))
		}
	}

	report.Leaders = make(map[string]model.ProjectScore)
	for _, comp := range competitions(f) {
		progress, err := r.svc.Progress(ctx, comp)
		if err != nil {
			return fmt.Errorf("progress %s: %w", comp, err)
		}
		for _, jp := range progress {
			if jp.Complete != r.cfg.Entries || jp.Partial != 0 || jp.Untouched != 0 {
				problems = append(problems, fmt.Errorf("judge %s progress: %d complete, %d partial, %d untouched",
					jp.Judge.ID, jp.Complete, jp.Partial, jp.Untouched))
			}
		}

		first, err := r.svc.RankEntries(ctx, comp)
		if err != nil {
			return fmt.Errorf("rank %s: %w", comp, err)
		}
		second, err := r.svc.RankEntries(ctx, comp)
		if err != nil {
			return fmt.Errorf("rank %s: %w", comp, err)
		}
		if diff := cmp.Diff(first, second); diff != "" {
			problems = append(problems, fmt.Errorf("ranking %s is not deterministic (-first +second):\n%s", comp, diff))
		}
		problems = append(problems, checkRanking(comp, first, expectedWeighted(f, plans, comp), r.cfg.Judges)...)
		if len(first) > 0 {
			report.Leaders[comp] = first[0]
		}
	}
	return errors.Join(problems...)
}

func competitions(f model.Fixtures) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range f.Criteria {
		if !seen[c.CompetitionID] {
			seen[c.CompetitionID] = true
			out = append(out, c.CompetitionID)
		}
	}
	return out
}

// expectedWeighted recomputes each entry's weighted score from the final
// planned values: the weight-normalized sum of per-criterion judge means.
func expectedWeighted(f model.Fixtures, plans []pairPlan, comp string) map[string]float64 {
	var criteria []model.Criterion
	for _, c := range f.Criteria {
		if c.CompetitionID == comp {
			criteria = append(criteria, c)
		}
	}
	finals := make(map[string][]map[string]float64)
	for _, p := range plans {
		finals[p.EntryID] = append(finals[p.EntryID], p.Final)
	}

	out := make(map[string]float64)
	for _, e := range f.Entries {
		if e.CompetitionID != comp {
			continue
		}
		var sum, weights float64
		for _, c := range criteria {
			var total float64
			for _, vals := range finals[e.ID] {
				total += vals[c.ID]
			}
			mean := 0.0
			if n := len(finals[e.ID]); n > 0 {
				mean = total / float64(n)
			}
			sum += mean * c.Weight
			weights += c.Weight
		}
		if weights > 0 {
			out[e.ID] = sum / weights
		}
	}
	return out
}

// checkRanking verifies scores, judge counts, ordering and dense ranks.
func checkRanking(comp string, ranked []model.ProjectScore, want map[string]float64, judges int) []error {
	var problems []error
	if len(ranked) != len(want) {
		problems = append(problems, fmt.Errorf("ranking %s: %d entries, want %d", comp, len(ranked), len(want)))
	}
	for i, ps := range ranked {
		if w, ok := want[ps.EntryID]; !ok || math.Abs(ps.WeightedScore-w) > tolerance {
			problems = append(problems, fmt.Errorf("ranking %s: entry %s weighted %.6f, want %.6f", comp, ps.EntryID, ps.WeightedScore, w))
		}
		if ps.JudgeCount != judges {
			problems = append(problems, fmt.Errorf("ranking %s: entry %s judged by %d, want %d", comp, ps.EntryID, ps.JudgeCount, judges))
		}
		if i == 0 {
			if ps.Rank != 1 {
				problems = append(problems, fmt.Errorf("ranking %s: first rank is %d", comp, ps.Rank))
			}
			continue
		}
		prev := ranked[i-1]
		if !inOrder(prev, ps) {
			problems = append(problems, fmt.Errorf("ranking %s: %s placed before %s", comp, prev.EntryID, ps.EntryID))
		}
		wantRank := prev.Rank + 1
		if ps.WeightedScore == prev.WeightedScore {
			wantRank = prev.Rank
		}
		if ps.Rank != wantRank {
			problems = append(problems, fmt.Errorf("ranking %s: entry %s rank %d, want %d", comp, ps.EntryID, ps.Rank, wantRank))
		}
	}
	return problems
}

func inOrder(a, b model.ProjectScore) bool {
	if a.WeightedScore != b.WeightedScore {
		return a.WeightedScore > b.WeightedScore
	}
	if a.Title != b.Title {
		return a.Title < b.Title
	}
	return a.EntryID < b.EntryID
}
