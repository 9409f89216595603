// Package submission turns a judge's scoring payload into a validated write batch.
//
// Plan is pure: it checks the payload against the competition's criteria and
// either returns the full batch or rejects it before anything is written.
package submission

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/pkg/errs"
)

var validate = validator.New()

// Submission is what a judge sends for one entry. A nil value means the
// criterion was left empty and is not written.
type Submission struct {
	EntryID  string              `validate:"required"`
	JudgeID  string              `validate:"required"`
	Values   map[string]*float64 `validate:"required"`
	Feedback *string
}

// Value returns a pointer to v, for building Values literals.
func Value(v float64) *float64 { return &v }

// Text returns a pointer to s, for building Feedback literals.
func Text(s string) *string { return &s }

// Validate checks the structural fields of s.
func (s Submission) Validate() error {
	const op = "submission.validate"
	if err := validate.Struct(s); err != nil {
		return errs.WrapKind(op, errs.ErrValidation, err)
	}
	if strings.TrimSpace(s.EntryID) == "" || strings.TrimSpace(s.JudgeID) == "" {
		return errs.Invalid(op, "entry_id and judge_id must not be blank")
	}
	return nil
}

// Plan validates s against criteria and builds the write batch stamped with now.
//
// Unknown criterion ids are reported as not found. Out-of-range or non-finite
// values, and a payload with no values at all, are validation errors.
func Plan(s Submission, criteria []model.Criterion, now time.Time) (model.ScoreBatch, error) {
	const op = "submission.plan"
	if err := s.Validate(); err != nil {
		return model.ScoreBatch{}, err
	}

	byID := make(map[string]model.Criterion, len(criteria))
	for _, c := range criteria {
		byID[c.ID] = c
	}

	ids := make([]string, 0, len(s.Values))
	for id := range s.Values {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var unknown, invalid []string
	scores := make([]model.Score, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		v := s.Values[id]
		if v == nil {
			continue
		}
		if msg := checkValue(c, *v); msg != "" {
			invalid = append(invalid, msg)
			continue
		}
		scores = append(scores, model.Score{
			EntryID:     s.EntryID,
			JudgeID:     s.JudgeID,
			CriterionID: id,
			Value:       *v,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if len(unknown) > 0 {
		return model.ScoreBatch{}, errs.WrapKind(op, errs.ErrNotFound,
			fmt.Errorf("unknown criteria for this competition: %s", strings.Join(unknown, ", ")))
	}
	if len(invalid) > 0 {
		return model.ScoreBatch{}, errs.Invalid(op, invalid...)
	}
	if len(scores) == 0 {
		return model.ScoreBatch{}, errs.Invalid(op, "at least one criterion must be scored")
	}

	batch := model.ScoreBatch{EntryID: s.EntryID, JudgeID: s.JudgeID, Scores: scores}
	if s.Feedback != nil {
		batch.Feedback = &model.Feedback{
			EntryID:   s.EntryID,
			JudgeID:   s.JudgeID,
			Text:      strings.TrimSpace(*s.Feedback),
			UpdatedAt: now,
		}
	}
	return batch, nil
}

func checkValue(c model.Criterion, v float64) string {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return fmt.Sprintf("%s: value must be a finite number", c.ID)
	case v < 0:
		return fmt.Sprintf("%s: value %g is below 0", c.ID, v)
	case v > float64(c.MaxScore):
		return fmt.Sprintf("%s: value %g exceeds max score %d", c.ID, v, c.MaxScore)
	}
	return ""
}
