package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with defaults on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then collectors are registered under the jury namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.submissions.WithLabelValues(OutcomeAccepted).Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "jury_scoring_submissions_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("sub"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test")
				So(manager.subsystem, ShouldEqual, "sub")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				manager.scoreUpserts.Add(2)
				So(testutil.ToFloat64(manager.scoreUpserts), ShouldEqual, 2)
			})
		})

		Convey("When empty options are given", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "jury")
				So(manager.subsystem, ShouldEqual, "scoring")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording scoring metrics", func() {
			before := testutil.ToFloat64(globalManager.submissions.WithLabelValues(OutcomeInvalid))
			RecordSubmission(OutcomeInvalid)
			RecordScoreUpserts(3)
			UpdateScoreRowsTotal(42)
			UpdateRankedEntries("hack", 7)

			Convey("Then the values are visible", func() {
				So(testutil.ToFloat64(globalManager.submissions.WithLabelValues(OutcomeInvalid)), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.scoreRowsTotal), ShouldEqual, 42)
				So(testutil.ToFloat64(globalManager.rankedEntries.WithLabelValues("hack")), ShouldEqual, 7)
			})
		})

		Convey("When recording the remaining metrics", func() {
			Convey("Then nothing panics", func() {
				So(func() {
					RecordSubmissionLatency(1.5)
					RecordCompletion()
					RecordRankingDuration(2)
					RecordRankingCoalesced()
					RecordStoreLatency("memory", "apply", 0.3)
					RecordHTTPRequest("/v1/submissions", "POST", "200")
					RecordHTTPRequestDuration("/v1/submissions", "POST", "200", 4)
					RecordErrorByComponent("http", "not_found")
					RecordErrorByType("validation", "warning")
					RecordErrorByEndpoint("/v1/submissions", "POST", "validation")
					RecordErrorLatency("http", "validation", 1)
					UpdateSystemMemoryUsage(1024)
					UpdateSystemGoroutineCount(8)
					RecordSystemGCPauseTime(0.2)
				}, ShouldNotPanic)
			})
		})

		Convey("When gathering the registry", func() {
			UpdateScoreRowsTotal(5)
			Convey("Then the exposition contains jury metrics", func() {
				n, err := testutil.GatherAndCount(GetRegistry(), "jury_scoring_score_rows")
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})
	})
}
