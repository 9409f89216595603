// Package completion derives judging progress from stored scores.
//
// Completion is never stored: an (entry, judge) pair is complete when the
// judge has a score for every criterion currently defined for the competition.
package completion

import (
	"github.com/okian/jury/internal/domain/model"
)

// Status is the derived judging state of one (entry, judge) pair.
type Status struct {
	Scored int
	Total  int
}

// Complete reports whether every criterion has been scored.
func (s Status) Complete() bool { return IsComplete(s.Scored, s.Total) }

// Started reports whether at least one criterion has been scored.
func (s Status) Started() bool { return s.Scored > 0 }

// IsComplete is the completion predicate.
func IsComplete(scored, total int) bool { return scored == total }

// Count returns the number of distinct criteria in criteria that have a score
// in scores. Scores for criteria no longer in the set are ignored.
func Count(criteria []model.Criterion, scores []model.Score) int {
	defined := make(map[string]struct{}, len(criteria))
	for _, c := range criteria {
		defined[c.ID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(scores))
	for _, s := range scores {
		if _, ok := defined[s.CriterionID]; ok {
			seen[s.CriterionID] = struct{}{}
		}
	}
	return len(seen)
}

// Index groups scores by (entry, judge) and answers status queries.
type Index struct {
	criteria []model.Criterion
	byPair   map[model.PairKey][]model.Score
}

// NewIndex builds an Index over scores for the given criteria set.
func NewIndex(criteria []model.Criterion, scores []model.Score) *Index {
	idx := &Index{
		criteria: criteria,
		byPair:   make(map[model.PairKey][]model.Score),
	}
	for _, s := range scores {
		k := model.PairKey{EntryID: s.EntryID, JudgeID: s.JudgeID}
		idx.byPair[k] = append(idx.byPair[k], s)
	}
	return idx
}

// Status returns the status of the (entryID, judgeID) pair.
func (x *Index) Status(entryID, judgeID string) Status {
	k := model.PairKey{EntryID: entryID, JudgeID: judgeID}
	return Status{Scored: Count(x.criteria, x.byPair[k]), Total: len(x.criteria)}
}

// Item is one entry on a judge's worklist.
type Item struct {
	Entry  model.Entry
	Status Status
}

// Worklist partitions a judge's entries into those still to judge and those judged.
type Worklist struct {
	ToJudge []Item
	Judged  []Item
}

// Partition splits the workload's entries by completion, keeping entry order.
func Partition(w model.JudgeWorkload) Worklist {
	idx := NewIndex(w.Criteria, w.Scores)
	out := Worklist{ToJudge: []Item{}, Judged: []Item{}}
	for _, e := range w.Entries {
		it := Item{Entry: e, Status: idx.Status(e.ID, w.Judge.ID)}
		if it.Status.Complete() {
			out.Judged = append(out.Judged, it)
		} else {
			out.ToJudge = append(out.ToJudge, it)
		}
	}
	return out
}

// JudgeProgress summarises one judge's state across a competition.
type JudgeProgress struct {
	Judge     model.Judge
	Complete  int
	Partial   int
	Untouched int
}

// Progress reports, for each judge in the snapshot, how many entries are
// complete, partially scored, or not yet started.
func Progress(snap model.CompetitionSnapshot) []JudgeProgress {
	idx := NewIndex(snap.Criteria, snap.Scores)
	out := make([]JudgeProgress, 0, len(snap.Judges))
	for _, j := range snap.Judges {
		p := JudgeProgress{Judge: j}
		for _, e := range snap.Entries {
			st := idx.Status(e.ID, j.ID)
			switch {
			case st.Complete():
				p.Complete++
			case st.Started():
				p.Partial++
			default:
				p.Untouched++
			}
		}
		out = append(out, p)
	}
	return out
}
