package trade_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/fishy/internal/adapters/repository"
	"github.com/okian/fishy/internal/app/trade"
	"github.com/okian/fishy/internal/catalog"
	"github.com/okian/fishy/internal/domain/model"
	"github.com/okian/fishy/internal/domain/scoring"
	"github.com/okian/fishy/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type recorder struct {
	mu     sync.Mutex
	events []model.TradeEvent
}

func (r *recorder) Notify(_ context.Context, e model.TradeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) states() []model.TradeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.TradeState, len(r.events))
	for i, e := range r.events {
		out[i] = e.Session.State
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakySessions drops the connection on every transition out of processing
// while failing is set.
type flakySessions struct {
	*repository.SQLStore
	failing atomic.Bool
}

func (f *flakySessions) Transition(ctx context.Context, id string, from, to model.TradeState, reason string, now time.Time) (model.TradeSession, error) {
	if from == model.TradeProcessing && f.failing.Load() {
		return model.TradeSession{}, fmt.Errorf("%w: connection reset", repository.ErrStorage)
	}
	return f.SQLStore.Transition(ctx, id, from, to, reason, now)
}

type fixture struct {
	store  *repository.SQLStore
	flaky  *flakySessions
	engine *trade.Engine
	events *recorder
	clock  *clock
}

func newFixture(t *testing.T, sessions string, opts ...trade.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "trade.db") + "?_pragma=busy_timeout(5000)"
	store, err := repository.Open(ctx, repository.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cat, err := catalog.New(catalog.List{
		ID: "hdl", Name: "HDL", Formula: scoring.FormulaHDL, Score: scoring.HDL,
		Source: catalog.Source{Kind: catalog.SourceRepo, Repo: "https://example.invalid/hdl.git"},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	items := []model.CachedItem{
		{ListID: "hdl", Rank: 1, Filename: "a", Name: "A", Points: 50},
		{ListID: "hdl", Rank: 2, Filename: "b", Name: "B", Points: 49},
		{ListID: "hdl", Rank: 3, Filename: "c", Name: "C", Points: 48},
	}
	if err := store.ReplaceItems(ctx, "hdl", items); err != nil {
		t.Fatalf("seed: %v", err)
	}
	for _, d := range []struct{ user, item int }{{0, 0}, {1, 1}} {
		if _, err := store.RecordDraw(ctx, []string{"alice", "bob"}[d.user], items[d.item]); err != nil {
			t.Fatalf("draw: %v", err)
		}
	}

	f := &fixture{store: store, events: &recorder{}, clock: &clock{now: time.Now()}}
	var swapper repository.Swapper = store
	var ss repository.SessionStore = store
	switch sessions {
	case "memory":
		ss = repository.NewMemorySessionStore()
	case "flaky":
		f.flaky = &flakySessions{SQLStore: store}
		swapper, ss = f.flaky, f.flaky
	}
	all := append([]trade.Option{trade.WithNotifier(f.events), trade.WithClock(f.clock.Now)}, opts...)
	f.engine = trade.New(cat, store, store, swapper, ss, all...)
	t.Cleanup(f.engine.Close)
	return f
}

func (f *fixture) count(user, item string) int {
	n, _ := f.store.ItemCount(context.Background(), user, "hdl", item)
	return n
}

var offer = trade.Request{ListID: "hdl", Requester: "alice", Target: "bob", Give: "a", Want: "b"}

func TestRequest(t *testing.T) {
	Convey("Given alice holding a and bob holding b", t, func() {
		ctx := context.Background()
		f := newFixture(t, "sql")

		Convey("Invalid requests are rejected synchronously", func() {
			bad := offer
			bad.Target = "alice"
			_, err := f.engine.Request(ctx, bad)
			So(errors.Is(err, trade.ErrSelfTrade), ShouldBeTrue)

			bad = offer
			bad.Want = "a"
			_, err = f.engine.Request(ctx, bad)
			So(errors.Is(err, trade.ErrSameItem), ShouldBeTrue)

			bad = offer
			bad.Want = "zzz"
			_, err = f.engine.Request(ctx, bad)
			So(errors.Is(err, trade.ErrUnknownItem), ShouldBeTrue)

			bad = offer
			bad.Want = "c"
			_, err = f.engine.Request(ctx, bad)
			So(errors.Is(err, trade.ErrOwnership), ShouldBeTrue)

			bad = offer
			bad.ListID = "nope"
			_, err = f.engine.Request(ctx, bad)
			So(errors.Is(err, catalog.ErrUnknownList), ShouldBeTrue)
			So(f.events.states(), ShouldBeEmpty)
		})

		Convey("A valid request is pending with a deadline and a timer", func() {
			s, err := f.engine.Request(ctx, offer)
			So(err, ShouldBeNil)
			So(s.State, ShouldEqual, model.TradePending)
			So(s.Deadline.Sub(s.CreatedAt), ShouldEqual, 120*time.Second)
			So(f.engine.PendingTimers(), ShouldEqual, 1)
			So(f.events.states(), ShouldResemble, []model.TradeState{model.TradePending})
		})
	})
}

func TestResolve(t *testing.T) {
	for _, sessions := range []string{"sql", "memory"} {
		Convey("Given a pending trade with "+sessions+" sessions", t, func() {
			ctx := context.Background()
			f := newFixture(t, sessions)
			s, err := f.engine.Request(ctx, offer)
			So(err, ShouldBeNil)

			Convey("Only the target may respond", func() {
				_, err := f.engine.Accept(ctx, s.ID, "alice")
				So(errors.Is(err, trade.ErrNotParticipant), ShouldBeTrue)
				_, err = f.engine.Reject(ctx, s.ID, "carol")
				So(errors.Is(err, trade.ErrNotParticipant), ShouldBeTrue)
			})

			Convey("Accept swaps the items", func() {
				done, err := f.engine.Accept(ctx, s.ID, "bob")
				So(err, ShouldBeNil)
				So(done.State, ShouldEqual, model.TradeAccepted)
				So(f.count("alice", "a"), ShouldEqual, 0)
				So(f.count("alice", "b"), ShouldEqual, 1)
				So(f.count("bob", "a"), ShouldEqual, 1)
				So(f.count("bob", "b"), ShouldEqual, 0)
				So(f.engine.PendingTimers(), ShouldEqual, 0)
				So(f.events.states(), ShouldResemble, []model.TradeState{model.TradePending, model.TradeAccepted})

				Convey("And any later action is terminal", func() {
					_, err := f.engine.Reject(ctx, s.ID, "bob")
					So(errors.Is(err, trade.ErrSessionTerminal), ShouldBeTrue)
					_, err = f.engine.Expire(ctx, s.ID)
					So(errors.Is(err, trade.ErrSessionTerminal), ShouldBeTrue)
				})
			})

			Convey("Reject leaves the ledgers alone", func() {
				done, err := f.engine.Reject(ctx, s.ID, "bob")
				So(err, ShouldBeNil)
				So(done.State, ShouldEqual, model.TradeRejected)
				So(f.count("alice", "a"), ShouldEqual, 1)
			})

			Convey("Accept fails cleanly when ownership changed", func() {
				So(f.store.Swap(ctx, repository.SwapRequest{
					ListID: "hdl", Requester: "alice", Target: "bob", Give: "a", Want: "b",
				}), ShouldBeNil)

				failed, err := f.engine.Accept(ctx, s.ID, "bob")
				So(errors.Is(err, trade.ErrOwnership), ShouldBeTrue)
				So(failed.State, ShouldEqual, model.TradeFailed)
				So(failed.Reason, ShouldEqual, trade.ReasonOwnership)
				So(f.count("alice", "b"), ShouldEqual, 1)
				So(f.count("bob", "a"), ShouldEqual, 1)
			})

			Convey("Accept after the deadline expires the trade", func() {
				f.clock.Advance(121 * time.Second)
				_, err := f.engine.Accept(ctx, s.ID, "bob")
				So(errors.Is(err, trade.ErrSessionTerminal), ShouldBeTrue)
				got, _ := f.engine.Get(ctx, s.ID)
				So(got.State, ShouldEqual, model.TradeExpired)
			})

			Convey("Concurrent accepts and rejects resolve exactly once", func() {
				var wins atomic.Int32
				var wg sync.WaitGroup
				for i := 0; i < 10; i++ {
					wg.Add(2)
					go func() {
						defer wg.Done()
						if _, err := f.engine.Accept(ctx, s.ID, "bob"); err == nil {
							wins.Add(1)
						}
					}()
					go func() {
						defer wg.Done()
						if _, err := f.engine.Reject(ctx, s.ID, "bob"); err == nil {
							wins.Add(1)
						}
					}()
				}
				wg.Wait()
				So(wins.Load(), ShouldEqual, 1)

				got, err := f.engine.Get(ctx, s.ID)
				So(err, ShouldBeNil)
				So(got.State.Terminal(), ShouldBeTrue)
				moved := f.count("bob", "a") == 1
				So(moved, ShouldEqual, got.State == model.TradeAccepted)
				So(f.count("alice", "a")+f.count("bob", "a"), ShouldEqual, 1)
				So(f.count("alice", "b")+f.count("bob", "b"), ShouldEqual, 1)
			})

			Convey("Unknown ids are reported", func() {
				_, err := f.engine.Accept(ctx, "missing", "bob")
				So(errors.Is(err, trade.ErrSessionNotFound), ShouldBeTrue)
			})
		})
	}
}

func TestExpiry(t *testing.T) {
	Convey("Given a short trade timeout", t, func() {
		ctx := context.Background()
		f := newFixture(t, "sql", trade.WithTimeout(30*time.Millisecond))
		s, err := f.engine.Request(ctx, offer)
		So(err, ShouldBeNil)

		Convey("The timer expires the trade and notifies the requester", func() {
			deadline := time.Now().Add(2 * time.Second)
			var got model.TradeSession
			for time.Now().Before(deadline) {
				got, _ = f.engine.Get(ctx, s.ID)
				if got.State == model.TradeExpired {
					break
				}
				time.Sleep(5 * time.Millisecond)
			}
			So(got.State, ShouldEqual, model.TradeExpired)
			So(f.count("alice", "a"), ShouldEqual, 1)
		})
	})

	Convey("Given pending trades whose timers were lost", t, func() {
		ctx := context.Background()
		f := newFixture(t, "memory", trade.WithRetention(time.Minute))
		s, err := f.engine.Request(ctx, offer)
		So(err, ShouldBeNil)
		f.engine.Close()

		Convey("The sweeper expires them and later deletes them", func() {
			res, err := f.engine.Sweep(ctx)
			So(err, ShouldBeNil)
			So(res, ShouldResemble, trade.SweepResult{})

			f.clock.Advance(3 * time.Minute)
			res, err = f.engine.Sweep(ctx)
			So(err, ShouldBeNil)
			So(res.Expired, ShouldEqual, 1)

			f.clock.Advance(2 * time.Minute)
			res, err = f.engine.Sweep(ctx)
			So(err, ShouldBeNil)
			So(res.Deleted, ShouldEqual, 1)

			_, err = f.engine.Get(ctx, s.ID)
			So(errors.Is(err, trade.ErrSessionNotFound), ShouldBeTrue)
		})
	})
}

func TestAcceptSurvivesLostConnection(t *testing.T) {
	Convey("Given a session store that drops the connection after the claim", t, func() {
		ctx := context.Background()
		f := newFixture(t, "flaky")
		s, err := f.engine.Request(ctx, offer)
		So(err, ShouldBeNil)
		f.flaky.failing.Store(true)

		Convey("Accept commits the accepted state with the swap", func() {
			done, err := f.engine.Accept(ctx, s.ID, "bob")
			So(err, ShouldBeNil)
			So(done.State, ShouldEqual, model.TradeAccepted)

			got, err := f.engine.Get(ctx, s.ID)
			So(err, ShouldBeNil)
			So(got.State, ShouldEqual, model.TradeAccepted)
			So(f.count("bob", "a"), ShouldEqual, 1)
			So(f.count("alice", "b"), ShouldEqual, 1)
			So(f.events.states(), ShouldResemble, []model.TradeState{model.TradePending, model.TradeAccepted})
		})

		Convey("A failed swap that cannot be recorded is recovered by the sweeper", func() {
			So(f.store.Swap(ctx, repository.SwapRequest{
				ListID: "hdl", Requester: "alice", Target: "bob", Give: "a", Want: "b",
			}), ShouldBeNil)

			_, err := f.engine.Accept(ctx, s.ID, "bob")
			So(errors.Is(err, repository.ErrStorage), ShouldBeTrue)
			got, _ := f.engine.Get(ctx, s.ID)
			So(got.State, ShouldEqual, model.TradeProcessing)

			f.flaky.failing.Store(false)
			res, err := f.engine.Sweep(ctx)
			So(err, ShouldBeNil)
			So(res.Recovered, ShouldEqual, 0)

			f.clock.Advance(2 * time.Minute)
			res, err = f.engine.Sweep(ctx)
			So(err, ShouldBeNil)
			So(res.Recovered, ShouldEqual, 1)

			got, _ = f.engine.Get(ctx, s.ID)
			So(got.State, ShouldEqual, model.TradeFailed)
			So(got.Reason, ShouldEqual, trade.ReasonStalled)
			So(f.count("alice", "b"), ShouldEqual, 1)
			So(f.count("bob", "a"), ShouldEqual, 1)
			So(f.events.states(), ShouldResemble, []model.TradeState{model.TradePending, model.TradeFailed})
		})

		Convey("A swap whose claim was already failed changes nothing", func() {
			f.flaky.failing.Store(false)
			_, err := f.store.Transition(ctx, s.ID, model.TradePending, model.TradeProcessing, "", f.clock.Now())
			So(err, ShouldBeNil)
			_, err = f.store.Transition(ctx, s.ID, model.TradeProcessing, model.TradeFailed, trade.ReasonStalled, f.clock.Now())
			So(err, ShouldBeNil)

			err = f.store.Swap(ctx, repository.SwapRequest{
				ListID: "hdl", Requester: "alice", Target: "bob", Give: "a", Want: "b",
				SessionID: s.ID, At: f.clock.Now(),
			})
			So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
			So(f.count("alice", "a"), ShouldEqual, 1)
			So(f.count("bob", "b"), ShouldEqual, 1)
		})
	})
}
