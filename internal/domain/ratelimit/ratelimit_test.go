package ratelimit_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/fishy/internal/domain/ratelimit"
	"github.com/okian/fishy/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type brokenStore struct{}

var errDown = errors.New("connection refused")

func (brokenStore) Peek(context.Context, string, time.Duration) (ratelimit.Usage, error) {
	return ratelimit.Usage{}, errDown
}

func (brokenStore) Consume(context.Context, string, int, time.Duration) (ratelimit.Usage, bool, error) {
	return ratelimit.Usage{}, false, errDown
}

func (brokenStore) Reset(context.Context, string) error { return errDown }

func TestLimiterFixedWindow(t *testing.T) {
	Convey("Given a limiter with limit 3 per 1000ms", t, func() {
		ctx := context.Background()
		clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
		lim := ratelimit.New(ratelimit.NewMemoryStore(ratelimit.WithClock(clock.Now)))
		key := ratelimit.Key("u1", ratelimit.DrawAction("aredl"))
		window := 1000 * time.Millisecond

		Convey("Four checks with commits answer true, true, true, false", func() {
			var got []bool
			for i := 0; i < 4; i++ {
				d, err := lim.Allow(ctx, key, 3, window)
				So(err, ShouldBeNil)
				got = append(got, d.Allowed)
			}
			So(got, ShouldResemble, []bool{true, true, true, false})

			Convey("After the window elapses the count resets", func() {
				clock.Advance(1001 * time.Millisecond)
				d, err := lim.Check(ctx, key, 3, window)
				So(err, ShouldBeNil)
				So(d.Allowed, ShouldBeTrue)
				So(d.Remaining, ShouldEqual, 3)

				d, err = lim.Allow(ctx, key, 3, window)
				So(err, ShouldBeNil)
				So(d.Allowed, ShouldBeTrue)
				So(d.Remaining, ShouldEqual, 2)
			})
		})

		Convey("Check never consumes", func() {
			for i := 0; i < 5; i++ {
				d, err := lim.Check(ctx, key, 3, window)
				So(err, ShouldBeNil)
				So(d.Allowed, ShouldBeTrue)
			}
			d, _ := lim.Check(ctx, key, 3, window)
			So(d.Remaining, ShouldEqual, 3)
			So(d.ResetIn, ShouldEqual, window)
		})

		Convey("Check then Commit follows the same window", func() {
			for i := 0; i < 3; i++ {
				d, _ := lim.Check(ctx, key, 3, window)
				So(d.Allowed, ShouldBeTrue)
				So(lim.Commit(ctx, key, 3, window), ShouldBeNil)
				clock.Advance(100 * time.Millisecond)
			}
			d, _ := lim.Check(ctx, key, 3, window)
			So(d.Allowed, ShouldBeFalse)
			So(d.ResetIn, ShouldEqual, 700*time.Millisecond)

			err := lim.Commit(ctx, key, 3, window)
			So(ratelimit.IsLimited(err), ShouldBeTrue)
		})

		Convey("Keys are independent", func() {
			_, _ = lim.Allow(ctx, key, 1, window)
			d, _ := lim.Allow(ctx, ratelimit.Key("u2", ratelimit.DrawAction("aredl")), 1, window)
			So(d.Allowed, ShouldBeTrue)
			d, _ = lim.Allow(ctx, ratelimit.Key("u1", ratelimit.DrawAction("hdl")), 1, window)
			So(d.Allowed, ShouldBeTrue)
		})

		Convey("Clear reopens the window", func() {
			_, _ = lim.Allow(ctx, key, 1, window)
			So(lim.Clear(ctx, key), ShouldBeNil)
			d, _ := lim.Allow(ctx, key, 1, window)
			So(d.Allowed, ShouldBeTrue)
		})

		Convey("Invalid quotas are rejected", func() {
			_, err := lim.Allow(ctx, key, 0, window)
			So(errors.Is(err, ratelimit.ErrInvalidQuota), ShouldBeTrue)
			_, err = lim.Check(ctx, key, 1, 0)
			So(errors.Is(err, ratelimit.ErrInvalidQuota), ShouldBeTrue)
		})
	})
}

func TestLimiterConcurrentAllow(t *testing.T) {
	Convey("Given 200 concurrent callers on one key with limit 10", t, func() {
		lim := ratelimit.New(ratelimit.NewMemoryStore())
		var allowed atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 200; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d, err := lim.Allow(context.Background(), "u:draw-cl", 10, time.Minute)
				if err == nil && d.Allowed {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()

		Convey("Exactly 10 are allowed", func() {
			So(allowed.Load(), ShouldEqual, 10)
		})
	})
}

func TestLimiterStoreFailure(t *testing.T) {
	Convey("Given a store that always fails", t, func() {
		ctx := context.Background()

		Convey("The default policy denies and reports the failure", func() {
			lim := ratelimit.New(brokenStore{})
			d, err := lim.Allow(ctx, "u:draw-aredl", 1, time.Hour)
			So(d.Allowed, ShouldBeFalse)
			So(errors.Is(err, ratelimit.ErrStoreUnavailable), ShouldBeTrue)

			_, err = lim.Check(ctx, "u:draw-aredl", 1, time.Hour)
			So(errors.Is(err, ratelimit.ErrStoreUnavailable), ShouldBeTrue)
		})

		Convey("Fail-open allows without error", func() {
			lim := ratelimit.New(brokenStore{}, ratelimit.WithFailOpen(true))
			d, err := lim.Allow(ctx, "u:draw-aredl", 1, time.Hour)
			So(err, ShouldBeNil)
			So(d.Allowed, ShouldBeTrue)
		})

		Convey("Clear surfaces the error", func() {
			lim := ratelimit.New(brokenStore{})
			So(errors.Is(lim.Clear(ctx, "k"), ratelimit.ErrStoreUnavailable), ShouldBeTrue)
		})
	})
}

func TestMemoryStoreSweep(t *testing.T) {
	Convey("Given windows of different ages", t, func() {
		clock := &fakeClock{now: time.Unix(0, 0)}
		s := ratelimit.NewMemoryStore(ratelimit.WithClock(clock.Now))
		ctx := context.Background()
		_, _, _ = s.Consume(ctx, "short", 1, time.Second)
		_, _, _ = s.Consume(ctx, "long", 1, time.Hour)
		clock.Advance(2 * time.Second)

		Convey("Sweep drops only the expired one", func() {
			So(s.Sweep(), ShouldEqual, 1)
			So(s.Len(), ShouldEqual, 1)
		})
	})
}
