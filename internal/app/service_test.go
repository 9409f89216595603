package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/okian/jury/internal/adapters/repository"
	"github.com/okian/jury/internal/adapters/repository/sqlstore"
	service "github.com/okian/jury/internal/app"
	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/internal/domain/submission"
	"github.com/okian/jury/pkg/errs"
	"github.com/okian/jury/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func fixtures() model.Fixtures {
	return model.Fixtures{
		Teams: []model.Team{{ID: "t1", Name: "Gophers"}, {ID: "t2", Name: "Crabs"}},
		Criteria: []model.Criterion{
			{ID: "inno", CompetitionID: "hack", Name: "Innovation", Weight: 3, MaxScore: 10},
			{ID: "tech", CompetitionID: "hack", Name: "Technical", Weight: 2, MaxScore: 10},
			{ID: "design", CompetitionID: "hack", Name: "Design", Weight: 1, MaxScore: 5},
			{ID: "pitch", CompetitionID: "hack", Name: "Pitch", Weight: 1, MaxScore: 5},
			{ID: "fun", CompetitionID: "jam", Name: "Fun", Weight: 1, MaxScore: 10},
		},
		Entries: []model.Entry{
			{ID: "e1", Title: "Alpha", TeamID: "t1", CompetitionID: "hack", IsSubmitted: true, CreatedAt: t0},
			{ID: "e2", Title: "Bravo", TeamID: "t2", CompetitionID: "hack", IsSubmitted: true, CreatedAt: t0.Add(time.Minute)},
			{ID: "e3", Title: "Charlie", TeamID: "t2", CompetitionID: "hack", IsSubmitted: true, CreatedAt: t0.Add(2 * time.Minute)},
			{ID: "draft", Title: "Draft", TeamID: "t1", CompetitionID: "hack", IsSubmitted: false, CreatedAt: t0},
			{ID: "jam1", Title: "Jam", TeamID: "t1", CompetitionID: "jam", IsSubmitted: true, CreatedAt: t0},
		},
		Judges: []model.Judge{
			{ID: "j1", UserID: "u1", CompetitionID: "hack", Active: true},
			{ID: "j2", UserID: "u2", CompetitionID: "hack", Active: true},
			{ID: "retired", UserID: "u3", CompetitionID: "hack", Active: false},
			{ID: "jamjudge", UserID: "u4", CompetitionID: "jam", Active: true},
		},
	}
}

type storeCase struct {
	name string
	open func(t *testing.T) repository.Store
}

func storeCases() []storeCase {
	return []storeCase{
		{"memory", func(t *testing.T) repository.Store { return repository.NewMemoryStore() }},
		{"sqlite", func(t *testing.T) repository.Store {
			s, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "jury.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return s
		}},
	}
}

func newService(t *testing.T, store repository.Store) *service.Service {
	t.Helper()
	tick := t0
	var mu sync.Mutex
	svc := service.New(
		service.WithStore(store),
		service.WithLogger(logger.Nop()),
		service.WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			tick = tick.Add(time.Second)
			return tick
		}),
	)
	ctx := context.Background()
	if err := svc.Seed(ctx, fixtures()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc
}

func sub(entry, judge string, values map[string]*float64) submission.Submission {
	return submission.Submission{EntryID: entry, JudgeID: judge, Values: values}
}

var v = submission.Value

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it starts on an empty in-memory store", func() {
			So(svc, ShouldNotBeNil)
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)
			So(svc.GetStats()["scoreRows"], ShouldEqual, 0)
			svc.Stop()
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})

	Convey("Given a service with a default judge threshold", t, func() {
		svc := service.New(service.WithDefaultMinJudges(2))
		So(svc.DefaultMinJudges(), ShouldEqual, 2)
	})
}

func TestService_Submit(t *testing.T) {
	for _, sc := range storeCases() {
		Convey("Given a seeded service on the "+sc.name+" store", t, func() {
			ctx := context.Background()
			store := sc.open(t)
			svc := newService(t, store)

			Convey("Submitting the same payload twice keeps one row per criterion", func() {
				payload := sub("e1", "j1", map[string]*float64{"inno": v(8), "tech": v(6)})
				_, err := svc.Submit(ctx, payload)
				So(err, ShouldBeNil)
				payload.Values["inno"] = v(9)
				res, err := svc.Submit(ctx, payload)
				So(err, ShouldBeNil)
				So(res, ShouldResemble, service.SubmitResult{Scored: 2, Total: 4, Complete: false})

				n, _ := store.Count(ctx)
				So(n, ShouldEqual, 2)
				card, err := svc.Scorecard(ctx, "e1", "j1")
				So(err, ShouldBeNil)
				So(card.Values, ShouldResemble, map[string]float64{"inno": 9, "tech": 6})
			})

			Convey("A partial submission leaves other criteria untouched", func() {
				_, err := svc.Submit(ctx, sub("e1", "j1", map[string]*float64{"inno": v(8)}))
				So(err, ShouldBeNil)
				_, err = svc.Submit(ctx, sub("e1", "j1", map[string]*float64{"tech": v(4), "inno": nil}))
				So(err, ShouldBeNil)

				card, err := svc.Scorecard(ctx, "e1", "j1")
				So(err, ShouldBeNil)
				So(card.Values, ShouldResemble, map[string]float64{"inno": 8, "tech": 4})
			})

			Convey("Scoring the last criterion flips completion", func() {
				res, err := svc.Submit(ctx, sub("e1", "j1", map[string]*float64{"inno": v(8), "tech": v(6), "design": v(3)}))
				So(err, ShouldBeNil)
				So(res.Complete, ShouldBeFalse)
				done, err := svc.IsComplete(ctx, "e1", "j1")
				So(err, ShouldBeNil)
				So(done, ShouldBeFalse)

				res, err = svc.Submit(ctx, sub("e1", "j1", map[string]*float64{"pitch": v(5)}))
				So(err, ShouldBeNil)
				So(res, ShouldResemble, service.SubmitResult{Scored: 4, Total: 4, Complete: true})
				done, err = svc.IsComplete(ctx, "e1", "j1")
				So(err, ShouldBeNil)
				So(done, ShouldBeTrue)
			})

			Convey("Feedback is one record per judge and entry", func() {
				s := sub("e1", "j1", map[string]*float64{"inno": v(8)})
				s.Feedback = submission.Text("  nice demo ")
				_, err := svc.Submit(ctx, s)
				So(err, ShouldBeNil)
				_, err = svc.Submit(ctx, sub("e1", "j1", map[string]*float64{"tech": v(2)}))
				So(err, ShouldBeNil)

				card, err := svc.Scorecard(ctx, "e1", "j1")
				So(err, ShouldBeNil)
				So(card.Feedback, ShouldNotBeNil)
				So(card.Feedback.Text, ShouldEqual, "nice demo")

				other, err := svc.Scorecard(ctx, "e1", "j2")
				So(err, ShouldBeNil)
				So(other.Feedback, ShouldBeNil)
				So(other.Values, ShouldBeEmpty)
			})

			Convey("Invalid submissions are rejected before any write", func() {
				cases := []struct {
					name string
					sub  submission.Submission
					kind func(error) bool
				}{
					{"all empty", sub("e1", "j1", map[string]*float64{"inno": nil}), errs.IsValidation},
					{"above max", sub("e1", "j1", map[string]*float64{"inno": v(7), "design": v(6)}), errs.IsValidation},
					{"negative", sub("e1", "j1", map[string]*float64{"inno": v(-1)}), errs.IsValidation},
					{"blank judge", sub("e1", " ", map[string]*float64{"inno": v(1)}), errs.IsValidation},
					{"unknown criterion", sub("e1", "j1", map[string]*float64{"inno": v(1), "vibes": v(3)}), errs.IsNotFound},
					{"criterion of another competition", sub("e1", "j1", map[string]*float64{"fun": v(3)}), errs.IsNotFound},
					{"unknown entry", sub("nope", "j1", map[string]*float64{"inno": v(1)}), errs.IsNotFound},
					{"draft entry", sub("draft", "j1", map[string]*float64{"inno": v(1)}), errs.IsNotFound},
					{"unknown judge", sub("e1", "nobody", map[string]*float64{"inno": v(1)}), errs.IsNotFound},
					{"inactive judge", sub("e1", "retired", map[string]*float64{"inno": v(1)}), errs.IsNotFound},
					{"judge of another competition", sub("e1", "jamjudge", map[string]*float64{"inno": v(1)}), errs.IsNotFound},
				}
				for _, c := range cases {
					_, err := svc.Submit(ctx, c.sub)
					So(err, ShouldNotBeNil)
					So(c.kind(err), ShouldBeTrue)
				}
				n, _ := store.Count(ctx)
				So(n, ShouldEqual, 0)
			})

			Convey("Out-of-range values report every violation", func() {
				_, err := svc.Submit(ctx, sub("e1", "j1", map[string]*float64{"inno": v(11), "design": v(6)}))
				So(errs.IsValidation(err), ShouldBeTrue)
				So(errs.Details(err), ShouldHaveLength, 2)
			})
		})
	}
}

func TestService_ConcurrentSubmissions(t *testing.T) {
	for _, sc := range storeCases() {
		Convey("Given judges submitting concurrently on the "+sc.name+" store", t, func() {
			ctx := context.Background()
			store := sc.open(t)
			svc := newService(t, store)

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				for _, judge := range []string{"j1", "j2"} {
					wg.Add(1)
					go func(i int, judge string) {
						defer wg.Done()
						_, _ = svc.Submit(ctx, sub("e1", judge, map[string]*float64{"inno": v(float64(i)), "tech": v(5)}))
					}(i, judge)
				}
			}
			wg.Wait()

			Convey("Then each judge has exactly one row per criterion", func() {
				n, err := store.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 4)
				ranked, err := svc.RankEntries(ctx, "hack")
				So(err, ShouldBeNil)
				So(ranked[0].EntryID, ShouldEqual, "e1")
				So(ranked[0].JudgeCount, ShouldEqual, 2)
			})
		})
	}
}

func TestService_RankEntries(t *testing.T) {
	for _, sc := range storeCases() {
		Convey("Given scored entries on the "+sc.name+" store", t, func() {
			ctx := context.Background()
			svc := newService(t, sc.open(t))

			mustSubmit := func(s submission.Submission) {
				_, err := svc.Submit(ctx, s)
				So(err, ShouldBeNil)
			}
			mustSubmit(sub("e2", "j1", map[string]*float64{"inno": v(8), "tech": v(6)}))
			mustSubmit(sub("e2", "j2", map[string]*float64{"inno": v(6), "tech": v(10)}))
			mustSubmit(sub("e1", "j1", map[string]*float64{"inno": v(2)}))

			ranked, err := svc.RankEntries(ctx, "hack")
			So(err, ShouldBeNil)

			Convey("Then every submitted entry is ranked, scored or not", func() {
				So(ranked, ShouldHaveLength, 3)
				ids := []string{ranked[0].EntryID, ranked[1].EntryID, ranked[2].EntryID}
				So(ids, ShouldResemble, []string{"e2", "e1", "e3"})

				e2 := ranked[0]
				So(e2.Rank, ShouldEqual, 1)
				So(e2.JudgeCount, ShouldEqual, 2)
				So(e2.TeamName, ShouldEqual, "Crabs")
				So(e2.CriteriaScores["inno"].AverageScore, ShouldEqual, 7)
				So(e2.CriteriaScores["tech"].AverageScore, ShouldEqual, 8)
				So(e2.CriteriaScores["design"].AverageScore, ShouldEqual, 0)
				// (7*3 + 8*2 + 0 + 0) / (3+2+1+1)
				So(e2.WeightedScore, ShouldAlmostEqual, 37.0/7.0, 1e-9)
				So(e2.AverageScore, ShouldAlmostEqual, 15.0/4.0, 1e-9)

				e3 := ranked[2]
				So(e3.WeightedScore, ShouldEqual, 0)
				So(e3.AverageScore, ShouldEqual, 0)
				So(e3.JudgeCount, ShouldEqual, 0)
			})

			Convey("Then consecutive calls agree exactly", func() {
				again, err := svc.RankEntries(ctx, "hack")
				So(err, ShouldBeNil)
				So(cmp.Diff(ranked, again), ShouldBeEmpty)
			})

			Convey("Then callers get independent copies", func() {
				ranked[0].CriteriaScores["inno"] = model.CriterionScore{AverageScore: 99}
				again, err := svc.RankEntries(ctx, "hack")
				So(err, ShouldBeNil)
				So(again[0].CriteriaScores["inno"].AverageScore, ShouldEqual, 7)
			})

			Convey("Then the judge filter keeps order and ranks", func() {
				filtered, err := svc.Ranking(ctx, "hack", 1)
				So(err, ShouldBeNil)
				So(filtered, ShouldHaveLength, 2)
				So(filtered[0].EntryID, ShouldEqual, "e2")
				So(filtered[1].EntryID, ShouldEqual, "e1")
				So(filtered[1].Rank, ShouldEqual, 2)

				_, err = svc.Ranking(ctx, "hack", -1)
				So(errs.IsValidation(err), ShouldBeTrue)
			})

			Convey("Then an unknown competition ranks nothing", func() {
				empty, err := svc.RankEntries(ctx, "nope")
				So(err, ShouldBeNil)
				So(empty, ShouldBeEmpty)
			})
		})
	}
}

func TestService_Worklist(t *testing.T) {
	Convey("Given a judge part way through the competition", t, func() {
		ctx := context.Background()
		svc := newService(t, repository.NewMemoryStore())
		all := map[string]*float64{"inno": v(1), "tech": v(1), "design": v(1), "pitch": v(1)}
		_, err := svc.Submit(ctx, sub("e2", "j1", all))
		So(err, ShouldBeNil)
		_, err = svc.Submit(ctx, sub("e3", "j1", map[string]*float64{"inno": v(4)}))
		So(err, ShouldBeNil)

		Convey("The worklist splits entries by completion in creation order", func() {
			w, err := svc.ListEntriesForJudge(ctx, "j1")
			So(err, ShouldBeNil)
			So(w.ToJudge, ShouldHaveLength, 2)
			So(w.ToJudge[0].Entry.ID, ShouldEqual, "e1")
			So(w.ToJudge[1].Entry.ID, ShouldEqual, "e3")
			So(w.ToJudge[1].Status.Scored, ShouldEqual, 1)
			So(w.Judged, ShouldHaveLength, 1)
			So(w.Judged[0].Entry.ID, ShouldEqual, "e2")
		})

		Convey("Completing an entry moves it to judged", func() {
			_, err := svc.Submit(ctx, sub("e3", "j1", map[string]*float64{"tech": v(1), "design": v(1), "pitch": v(1)}))
			So(err, ShouldBeNil)
			w, err := svc.ListEntriesForJudge(ctx, "j1")
			So(err, ShouldBeNil)
			So(w.ToJudge, ShouldHaveLength, 1)
			So(w.Judged, ShouldHaveLength, 2)
		})

		Convey("Progress counts complete, partial and untouched entries", func() {
			p, err := svc.Progress(ctx, "hack")
			So(err, ShouldBeNil)
			So(p, ShouldHaveLength, 2)
			So(p[0].Judge.ID, ShouldEqual, "j1")
			So([]int{p[0].Complete, p[0].Partial, p[0].Untouched}, ShouldResemble, []int{1, 1, 1})
			So([]int{p[1].Complete, p[1].Partial, p[1].Untouched}, ShouldResemble, []int{0, 0, 3})
		})

		Convey("Unknown and inactive judges have no worklist", func() {
			_, err := svc.ListEntriesForJudge(ctx, "nobody")
			So(errs.IsNotFound(err), ShouldBeTrue)
			_, err = svc.ListEntriesForJudge(ctx, "retired")
			So(errs.IsNotFound(err), ShouldBeTrue)
		})
	})
}

func TestService_Seed(t *testing.T) {
	Convey("Given invalid reference data", t, func() {
		svc := service.New()
		f := fixtures()
		f.Criteria[0].Weight = 0

		Convey("Seeding fails with a validation error", func() {
			So(errs.IsValidation(svc.Seed(context.Background(), f)), ShouldBeTrue)
		})
	})
}

// gatedStore holds the first CompetitionSnapshot call until release is closed.
type gatedStore struct {
	*repository.MemoryStore
	once     sync.Once
	entered  chan struct{}
	release  chan struct{}
	ctxErrMu sync.Mutex
	ctxErr   error
}

func (g *gatedStore) CompetitionSnapshot(ctx context.Context, competitionID string) (model.CompetitionSnapshot, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
		g.ctxErrMu.Lock()
		g.ctxErr = ctx.Err()
		g.ctxErrMu.Unlock()
	}
	return g.MemoryStore.CompetitionSnapshot(ctx, competitionID)
}

func TestService_RankEntriesCancellation(t *testing.T) {
	Convey("Given two callers sharing one ranking read", t, func() {
		store := &gatedStore{
			MemoryStore: repository.NewMemoryStore(),
			entered:     make(chan struct{}),
			release:     make(chan struct{}),
		}
		svc := newService(t, store)
		_, err := svc.Submit(context.Background(), sub("e1", "j1", map[string]*float64{"inno": v(8)}))
		So(err, ShouldBeNil)

		ctxA, cancelA := context.WithCancel(context.Background())
		errA := make(chan error, 1)
		go func() {
			_, err := svc.RankEntries(ctxA, "hack")
			errA <- err
		}()
		<-store.entered

		type result struct {
			ranked []model.ProjectScore
			err    error
		}
		resB := make(chan result, 1)
		go func() {
			ranked, err := svc.RankEntries(context.Background(), "hack")
			resB <- result{ranked, err}
		}()
		time.Sleep(20 * time.Millisecond)

		Convey("When only the first caller cancels", func() {
			cancelA()
			So(errors.Is(<-errA, context.Canceled), ShouldBeTrue)
			close(store.release)

			Convey("Then the other caller still gets the ranking", func() {
				b := <-resB
				So(b.err, ShouldBeNil)
				So(b.ranked, ShouldHaveLength, 3)
				So(b.ranked[0].EntryID, ShouldEqual, "e1")

				store.ctxErrMu.Lock()
				defer store.ctxErrMu.Unlock()
				So(store.ctxErr, ShouldBeNil)
			})
		})
	})
}
