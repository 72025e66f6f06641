package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with custom options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10}),
				WithRefreshInterval(time.Second),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metrics carry the namespace and const labels", func() {
				So(manager, ShouldNotBeNil)
				manager.draws.WithLabelValues("aredl", OutcomeOK).Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, mf := range families {
					if mf.GetName() == "test_unit_draws_total" {
						found = true
						So(mf.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When two managers share a registry", func() {
			registry := prometheus.NewRegistry()
			_ = NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("Draw and cooldown counters increase", func() {
			before := testutil.ToFloat64(globalManager.draws.WithLabelValues("hdl", OutcomeOK))
			RecordDraw("hdl", OutcomeOK)
			So(testutil.ToFloat64(globalManager.draws.WithLabelValues("hdl", OutcomeOK)), ShouldEqual, before+1)

			before = testutil.ToFloat64(globalManager.cooldownDecisions.WithLabelValues("draw", DecisionDenied))
			RecordCooldownDecision("draw", DecisionDenied)
			So(testutil.ToFloat64(globalManager.cooldownDecisions.WithLabelValues("draw", DecisionDenied)), ShouldEqual, before+1)
		})

		Convey("List refresh sets item gauge and timestamp", func() {
			RecordListRefresh("idl", 150, 20*time.Millisecond)
			So(testutil.ToFloat64(globalManager.listItems.WithLabelValues("idl")), ShouldEqual, 150)
			So(testutil.ToFloat64(globalManager.listLastRefreshUnix.WithLabelValues("idl")), ShouldBeGreaterThan, 0)
		})

		Convey("Delivery errors are counted per sink", func() {
			before := testutil.ToFloat64(globalManager.deliveryErrors.WithLabelValues("webhook"))
			RecordDelivery("webhook", time.Millisecond, errors.New("down"))
			RecordDelivery("webhook", time.Millisecond, nil)
			So(testutil.ToFloat64(globalManager.deliveryErrors.WithLabelValues("webhook")), ShouldEqual, before+1)
		})

		Convey("Gauges accept deltas", func() {
			AddPendingTrades(2)
			AddPendingTrades(-1)
			AddWSClients(1)
			AddWSClients(-1)
			UpdateQueueSize(3)
			So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3)
		})

		Convey("Other recorders do not panic", func() {
			So(func() {
				RecordDrawLatency(12)
				RecordTrade("accepted")
				RecordTradeCommitLatency(3)
				RecordIngestionRun("schedule", OutcomeOK)
				RecordListRefreshFailure("cl", "source_unavailable")
				UpdateQueueCapacity(10)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				UpdateWorkerActiveCount(2)
				RecordStorageError("draw")
				RecordHTTPRequest("/v1/lists", "GET", "200", 1.5)
			}, ShouldNotPanic)
		})

		Convey("The system collector samples runtime gauges", func() {
			ctx, cancel := context.WithCancel(context.Background())
			StartSystemCollector(ctx)
			cancel()
			collectSystem()
			So(testutil.ToFloat64(globalManager.systemGoroutineCount), ShouldBeGreaterThan, 0)
		})

		Convey("The registry exposes the fishy namespace", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			var prefixed bool
			for _, mf := range families {
				if strings.HasPrefix(mf.GetName(), "fishy_game_") {
					prefixed = true
				}
			}
			So(prefixed, ShouldBeTrue)
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given a reconfigured global manager", t, func() {
		Configure(WithNamespace("arcade"), WithRefreshInterval(time.Minute))
		defer Configure()

		Convey("Then recordings land in the new registry under the new namespace", func() {
			So(globalManager.refreshInterval, ShouldEqual, time.Minute)
			RecordTrade("accepted")
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			var names []string
			for _, mf := range families {
				names = append(names, mf.GetName())
			}
			So(names, ShouldContain, "arcade_game_trades_total")
			So(strings.Join(names, ","), ShouldNotContainSubstring, "fishy_game_")
		})
	})
}
