package simulate

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/internal/domain/submission"
)

var criterionNames = []string{"Innovation", "Technical", "Design", "Pitch", "Impact", "Completeness", "Usability", "Originality"}

// generator produces reproducible fixtures and submissions from a seed.
type generator struct {
	rng *rand.Rand
	ids *rand.ChaCha8
}

func newGenerator(seed uint64) *generator {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	src := rand.NewChaCha8(key)
	return &generator{rng: rand.New(src), ids: src}
}

func (g *generator) id() string {
	u, err := uuid.NewRandomFromReader(g.ids)
	if err != nil {
		// ChaCha8 reads never fail.
		panic(err)
	}
	return u.String()
}

// Fixtures builds the reference data for a run. Weights and max scores
// vary per criterion; entries are stamped one minute apart from epoch.
func Fixtures(cfg Config, epoch time.Time) model.Fixtures {
	return newGenerator(cfg.Seed).fixtures(cfg, epoch)
}

func (g *generator) fixtures(cfg Config, epoch time.Time) model.Fixtures {
	var f model.Fixtures
	for c := 0; c < cfg.Competitions; c++ {
		comp := g.id()
		for i := 0; i < cfg.Criteria; i++ {
			f.Criteria = append(f.Criteria, model.Criterion{
				ID:            g.id(),
				CompetitionID: comp,
				Name:          criterionNames[i%len(criterionNames)],
				Weight:        float64(1 + g.rng.IntN(3)),
				MaxScore:      5 * (1 + g.rng.IntN(DefaultMaxScore/5)),
			})
		}
		for i := 0; i < cfg.Entries; i++ {
			team := model.Team{ID: g.id(), Name: fmt.Sprintf("Team %d-%d", c+1, i+1)}
			f.Teams = append(f.Teams, team)
			f.Entries = append(f.Entries, model.Entry{
				ID:            g.id(),
				Title:         fmt.Sprintf("Project %d-%03d", c+1, i+1),
				TeamID:        team.ID,
				CompetitionID: comp,
				IsSubmitted:   true,
				CreatedAt:     epoch.Add(time.Duration(len(f.Entries)) * time.Minute),
			})
		}
		for i := 0; i < cfg.Judges; i++ {
			f.Judges = append(f.Judges, model.Judge{ID: g.id(), UserID: g.id(), CompetitionID: comp, Active: true})
		}
	}
	return f
}

// pairPlan is the ordered submission sequence one judge sends for one entry.
type pairPlan struct {
	EntryID string
	JudgeID string
	Steps   []submission.Submission
	Final   map[string]float64
}

// plans builds the per-pair submission sequences. The first pass scores
// the criteria in two partial submissions; each resubmit round rescores
// every criterion. Final holds the values the last step leaves behind.
func (g *generator) plans(cfg Config, f model.Fixtures) []pairPlan {
	byComp := make(map[string][]model.Criterion)
	for _, c := range f.Criteria {
		byComp[c.CompetitionID] = append(byComp[c.CompetitionID], c)
	}
	var out []pairPlan
	for _, e := range f.Entries {
		for _, j := range f.Judges {
			if j.CompetitionID != e.CompetitionID {
				continue
			}
			out = append(out, g.plan(cfg, e.ID, j.ID, byComp[e.CompetitionID]))
		}
	}
	// Interleave pairs so concurrent workers hit different entries and judges.
	g.rng.Shuffle(len(out), func(i, k int) { out[i], out[k] = out[k], out[i] })
	return out
}

func (g *generator) plan(cfg Config, entryID, judgeID string, criteria []model.Criterion) pairPlan {
	p := pairPlan{EntryID: entryID, JudgeID: judgeID, Final: make(map[string]float64, len(criteria))}

	half := (len(criteria) + 1) / 2
	first := g.values(criteria[:half], p.Final)
	rest := g.values(criteria[half:], p.Final)
	for _, c := range criteria[:half] {
		rest[c.ID] = nil
	}
	p.Steps = append(p.Steps, g.step(entryID, judgeID, first))
	if len(criteria) > half {
		p.Steps = append(p.Steps, g.step(entryID, judgeID, rest))
	}
	for r := 0; r < cfg.Resubmits; r++ {
		p.Steps = append(p.Steps, g.step(entryID, judgeID, g.values(criteria, p.Final)))
	}
	return p
}

// values draws one value per criterion on a 0.5 grid and records it in final.
func (g *generator) values(criteria []model.Criterion, final map[string]float64) map[string]*float64 {
	out := make(map[string]*float64, len(criteria))
	for _, c := range criteria {
		v := math.Round(g.rng.Float64()*float64(c.MaxScore)*2) / 2
		out[c.ID] = submission.Value(v)
		final[c.ID] = v
	}
	return out
}

func (g *generator) step(entryID, judgeID string, values map[string]*float64) submission.Submission {
	sub := submission.Submission{EntryID: entryID, JudgeID: judgeID, Values: values}
	if g.rng.IntN(4) == 0 {
		sub.Feedback = submission.Text(fmt.Sprintf("note %d", g.rng.IntN(1000)))
	}
	return sub
}
