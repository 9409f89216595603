package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/jury/internal/adapters/http/api"
	service "github.com/okian/jury/internal/app"
	"github.com/okian/jury/internal/domain/completion"
	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/internal/domain/submission"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*service.Service, http.Handler) {
	t.Helper()
	ctx := context.Background()
	svc := service.New()
	err := svc.Seed(ctx, model.Fixtures{
		Teams: []model.Team{{ID: "t1", Name: "Gophers"}},
		Criteria: []model.Criterion{
			{ID: "inno", CompetitionID: "hack", Name: "Innovation", Weight: 3, MaxScore: 10},
			{ID: "tech", CompetitionID: "hack", Name: "Technical", Weight: 2, MaxScore: 10},
		},
		Entries: []model.Entry{
			{ID: "e1", Title: "Alpha", TeamID: "t1", CompetitionID: "hack", IsSubmitted: true, CreatedAt: t0},
			{ID: "e2", Title: "Bravo", TeamID: "t1", CompetitionID: "hack", IsSubmitted: true, CreatedAt: t0.Add(time.Minute)},
		},
		Judges: []model.Judge{
			{ID: "j1", UserID: "u1", CompetitionID: "hack", Active: true},
			{ID: "j2", UserID: "u2", CompetitionID: "hack", Active: true},
		},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc, api.NewServer(svc, svc, nil).Router(ctx)
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestServer_Routes(t *testing.T) {
	Convey("Given the API server", t, func() {
		_, h := newTestServer(t)

		Convey("Health serves Prometheus metrics", func() {
			w := do(h, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "jury_")
		})

		Convey("Stats are JSON", func() {
			w := do(h, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["started"], ShouldEqual, true)
		})

		Convey("Unknown routes are 404", func() {
			w := do(h, http.MethodGet, "/v1/nope", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Criteria are listed by weight", func() {
			w := do(h, http.MethodGet, "/v1/competitions/hack/criteria", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var got []map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
			So(got, ShouldHaveLength, 2)
			So(got[0]["id"], ShouldEqual, "inno")
			So(got[0]["max_score"], ShouldEqual, 10.0)
		})
	})
}

func TestServer_Submissions(t *testing.T) {
	Convey("Given the API server", t, func() {
		_, h := newTestServer(t)

		Convey("A valid partial submission returns its completion view", func() {
			w := do(h, http.MethodPost, "/v1/submissions",
				`{"entry_id":"e1","judge_id":"j1","scores":{"inno":8,"tech":null},"feedback":"good"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["scored"], ShouldEqual, 1.0)
			So(body["total"], ShouldEqual, 2.0)
			So(body["complete"], ShouldEqual, false)

			Convey("And the scorecard shows it", func() {
				w := do(h, http.MethodGet, "/v1/entries/e1/judges/j1/scorecard", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				card := decode(w)
				So(card["scores"], ShouldResemble, map[string]any{"inno": 8.0})
				So(card["feedback"], ShouldEqual, "good")
				So(card["complete"], ShouldEqual, false)
			})
		})

		Convey("Out-of-range values are 400 with details", func() {
			w := do(h, http.MethodPost, "/v1/submissions", `{"entry_id":"e1","judge_id":"j1","scores":{"inno":11}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			body := decode(w)
			So(body["code"], ShouldEqual, "validation_error")
			So(body["details"], ShouldHaveLength, 1)
		})

		Convey("An all-empty submission is 400", func() {
			w := do(h, http.MethodPost, "/v1/submissions", `{"entry_id":"e1","judge_id":"j1","scores":{"inno":null}}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Unknown criteria and entries are 404", func() {
			w := do(h, http.MethodPost, "/v1/submissions", `{"entry_id":"e1","judge_id":"j1","scores":{"vibes":3}}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
			w = do(h, http.MethodPost, "/v1/submissions", `{"entry_id":"zz","judge_id":"j1","scores":{"inno":3}}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Malformed JSON and unknown fields are 400", func() {
			So(do(h, http.MethodPost, "/v1/submissions", `{`).Code, ShouldEqual, http.StatusBadRequest)
			w := do(h, http.MethodPost, "/v1/submissions", `{"entry_id":"e1","judge_id":"j1","scores":{"inno":1},"extra":1}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["code"], ShouldEqual, "bad_request")
		})

		Convey("GET on the submissions route is not allowed", func() {
			So(do(h, http.MethodGet, "/v1/submissions", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestServer_RankingsAndWorklist(t *testing.T) {
	Convey("Given scored entries", t, func() {
		svc, h := newTestServer(t)
		ctx := context.Background()
		_, err := svc.Submit(ctx, submission.Submission{EntryID: "e2", JudgeID: "j1",
			Values: map[string]*float64{"inno": submission.Value(8), "tech": submission.Value(6)}})
		So(err, ShouldBeNil)
		_, err = svc.Submit(ctx, submission.Submission{EntryID: "e2", JudgeID: "j2",
			Values: map[string]*float64{"inno": submission.Value(6), "tech": submission.Value(10)}})
		So(err, ShouldBeNil)

		Convey("Rankings include unscored entries", func() {
			w := do(h, http.MethodGet, "/v1/competitions/hack/rankings", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var resp struct {
				Entries []struct {
					Rank          int     `json:"rank"`
					EntryID       string  `json:"entry_id"`
					WeightedScore float64 `json:"weighted_score"`
					JudgeCount    int     `json:"judge_count"`
				} `json:"entries"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Entries, ShouldHaveLength, 2)
			So(resp.Entries[0].EntryID, ShouldEqual, "e2")
			So(resp.Entries[0].WeightedScore, ShouldAlmostEqual, 7.4, 1e-9)
			So(resp.Entries[0].JudgeCount, ShouldEqual, 2)
			So(resp.Entries[1].EntryID, ShouldEqual, "e1")
			So(resp.Entries[1].Rank, ShouldEqual, 2)
		})

		Convey("min_judges filters entries", func() {
			w := do(h, http.MethodGet, "/v1/competitions/hack/rankings?min_judges=2", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["min_judges"], ShouldEqual, 2.0)
			So(body["entries"], ShouldHaveLength, 1)

			So(do(h, http.MethodGet, "/v1/competitions/hack/rankings?min_judges=-1", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/v1/competitions/hack/rankings?min_judges=x", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("The worklist partitions entries", func() {
			w := do(h, http.MethodGet, "/v1/judges/j1/worklist", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["to_judge"], ShouldHaveLength, 1)
			So(body["judged"], ShouldHaveLength, 1)

			So(do(h, http.MethodGet, "/v1/judges/nobody/worklist", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Progress lists each active judge", func() {
			w := do(h, http.MethodGet, "/v1/competitions/hack/progress", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var got []map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
			So(got, ShouldHaveLength, 2)
			So(got[0]["complete"], ShouldEqual, 1.0)
			So(got[0]["untouched"], ShouldEqual, 1.0)
		})
	})
}

type failingDeps struct{}

func (failingDeps) Submit(context.Context, submission.Submission) (service.SubmitResult, error) {
	return service.SubmitResult{}, errors.New("database on fire")
}
func (failingDeps) Criteria(context.Context, string) ([]model.Criterion, error) {
	return nil, errors.New("database on fire")
}
func (failingDeps) Ranking(context.Context, string, int) ([]model.ProjectScore, error) {
	return nil, context.DeadlineExceeded
}
func (failingDeps) DefaultMinJudges() int { return 0 }
func (failingDeps) ListEntriesForJudge(context.Context, string) (completion.Worklist, error) {
	return completion.Worklist{}, errors.New("boom")
}
func (failingDeps) Progress(context.Context, string) ([]completion.JudgeProgress, error) {
	return nil, errors.New("boom")
}
func (failingDeps) Scorecard(context.Context, string, string) (service.Scorecard, error) {
	return service.Scorecard{}, errors.New("boom")
}
func (failingDeps) GetStats() map[string]interface{} { return map[string]interface{}{} }

func TestServer_InternalErrors(t *testing.T) {
	Convey("Given failing dependencies", t, func() {
		h := api.NewServer(failingDeps{}, failingDeps{}, nil).Router(context.Background())

		Convey("Unexpected errors are 500 without leaking the cause", func() {
			w := do(h, http.MethodPost, "/v1/submissions", `{"entry_id":"e1","judge_id":"j1","scores":{"inno":1}}`)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(w.Body.String(), ShouldNotContainSubstring, "fire")
			So(do(h, http.MethodGet, "/v1/judges/j1/worklist", "").Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("Timeouts are 503", func() {
			So(do(h, http.MethodGet, "/v1/competitions/hack/rankings", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}
