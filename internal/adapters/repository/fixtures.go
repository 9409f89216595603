package repository

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/jury/internal/domain/model"
	"gopkg.in/yaml.v3"
)

// LoadFixtures reads reference data from a YAML file. Records without an id
// get a random one; entries without a creation time are stamped in file order.
func LoadFixtures(path string) (model.Fixtures, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.Fixtures{}, fmt.Errorf("read fixtures: %w", err)
	}
	var doc fixturesFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return model.Fixtures{}, fmt.Errorf("parse fixtures: %w", err)
	}
	f := doc.fixtures()
	FillDefaults(&f, time.Now().UTC())
	if err := ValidateFixtures(f); err != nil {
		return model.Fixtures{}, err
	}
	return f, nil
}

// fixturesFile is the on-disk shape of model.Fixtures.
type fixturesFile struct {
	Teams    []model.Team      `yaml:"teams"`
	Criteria []model.Criterion `yaml:"criteria"`
	Entries  []model.Entry     `yaml:"entries"`
	Judges   []judgeFile       `yaml:"judges"`
}

func (d fixturesFile) fixtures() model.Fixtures {
	f := model.Fixtures{Teams: d.Teams, Criteria: d.Criteria, Entries: d.Entries}
	for _, j := range d.Judges {
		f.Judges = append(f.Judges, model.Judge(j))
	}
	return f
}

// judgeFile decodes a judge; a missing active key means active, matching
// the judges table default.
type judgeFile model.Judge

func (j *judgeFile) UnmarshalYAML(n *yaml.Node) error {
	type plain judgeFile
	p := plain{Active: true}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*j = judgeFile(p)
	return nil
}

// FillDefaults assigns missing ids and creation times.
func FillDefaults(f *model.Fixtures, now time.Time) {
	for i := range f.Teams {
		if f.Teams[i].ID == "" {
			f.Teams[i].ID = uuid.NewString()
		}
	}
	for i := range f.Criteria {
		if f.Criteria[i].ID == "" {
			f.Criteria[i].ID = uuid.NewString()
		}
	}
	for i := range f.Entries {
		if f.Entries[i].ID == "" {
			f.Entries[i].ID = uuid.NewString()
		}
		if f.Entries[i].CreatedAt.IsZero() {
			f.Entries[i].CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
		}
	}
	for i := range f.Judges {
		if f.Judges[i].ID == "" {
			f.Judges[i].ID = uuid.NewString()
		}
	}
}

// ValidateFixtures checks the reference data rules the judging code relies on.
func ValidateFixtures(f model.Fixtures) error {
	var problems []string
	for _, t := range f.Teams {
		if strings.TrimSpace(t.ID) == "" {
			problems = append(problems, "team without id")
		}
	}
	for _, c := range f.Criteria {
		switch {
		case strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.CompetitionID) == "":
			problems = append(problems, fmt.Sprintf("criterion %q: id and competition_id are required", c.Name))
		case !(c.Weight > 0):
			problems = append(problems, fmt.Sprintf("criterion %s: weight must be positive", c.ID))
		case c.MaxScore <= 0:
			problems = append(problems, fmt.Sprintf("criterion %s: max_score must be positive", c.ID))
		}
	}
	for _, e := range f.Entries {
		if strings.TrimSpace(e.ID) == "" || strings.TrimSpace(e.CompetitionID) == "" {
			problems = append(problems, fmt.Sprintf("entry %q: id and competition_id are required", e.Title))
		}
	}
	for _, j := range f.Judges {
		if strings.TrimSpace(j.ID) == "" || strings.TrimSpace(j.CompetitionID) == "" {
			problems = append(problems, fmt.Sprintf("judge %q: id and competition_id are required", j.UserID))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(problems, "; "))
	}
	return nil
}
