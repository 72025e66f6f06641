package ingest_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/fishy/internal/adapters/repository"
	"github.com/okian/fishy/internal/adapters/sources"
	"github.com/okian/fishy/internal/app/ingest"
	"github.com/okian/fishy/internal/catalog"
	"github.com/okian/fishy/internal/domain/model"
	"github.com/okian/fishy/internal/domain/scoring"
	"github.com/okian/fishy/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type fakeCache struct {
	mu    sync.Mutex
	lists map[string][]model.CachedItem
	fail  error
}

func newFakeCache() *fakeCache { return &fakeCache{lists: map[string][]model.CachedItem{}} }

func (c *fakeCache) ReplaceItems(_ context.Context, listID string, items []model.CachedItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.lists[listID] = items
	return nil
}

func (c *fakeCache) ItemsUpTo(_ context.Context, listID string, limit int) ([]model.CachedItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.lists[listID]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, nil
}

func (c *fakeCache) ItemByFilename(context.Context, string, string) (model.CachedItem, error) {
	return model.CachedItem{}, repository.ErrNotFound
}

func (c *fakeCache) SearchItems(context.Context, string, string, int) ([]model.CachedItem, error) {
	return nil, nil
}

func (c *fakeCache) ItemCounts(context.Context) (map[string]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]int{}
	for k, v := range c.lists {
		out[k] = len(v)
	}
	return out, nil
}

type fakeSource struct {
	items []model.RankedItem
	err   error
	block chan struct{}
	calls int
	mu    sync.Mutex
}

func (s *fakeSource) FetchOrderedItems(ctx context.Context) ([]model.RankedItem, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.items, s.err
}

func ranked(names ...string) []model.RankedItem {
	out := make([]model.RankedItem, len(names))
	for i, n := range names {
		// source positions arrive reversed and gapped
		out[i] = model.RankedItem{Name: n, Filename: n, Rank: (len(names) - i) * 10}
	}
	return out
}

func testCatalog() *catalog.Catalog {
	mk := func(id string) catalog.List {
		return catalog.List{
			ID: id, Name: id, Formula: scoring.FormulaCL, Score: scoring.CL,
			Source: catalog.Source{Kind: catalog.SourceAPI, Endpoint: "http://example.invalid/" + id, Mapper: catalog.MapperPositioned},
		}
	}
	c, err := catalog.New(mk("one"), mk("two"), mk("three"))
	if err != nil {
		panic(err)
	}
	return c
}

func TestPipeline(t *testing.T) {
	Convey("Given a pipeline over three lists", t, func() {
		ctx := context.Background()
		cache := newFakeCache()
		srcs := map[string]*fakeSource{
			"one":   {items: ranked("c", "b", "a")},
			"two":   {err: sources.ErrSourceUnavailable},
			"three": {items: ranked("z")},
		}
		p := ingest.NewPipeline(testCatalog(), cache, ingest.WithSourceFactory(func(l catalog.List) (sources.Source, error) {
			return srcs[l.ID], nil
		}))

		Convey("RefreshAll scores every list and isolates failures", func() {
			rep, err := p.RefreshAll(ctx)
			So(err, ShouldBeNil)
			So(len(rep.Lists), ShouldEqual, 3)
			So(rep.Failed(), ShouldEqual, 1)
			So(rep.Lists[1].Kept, ShouldBeTrue)
			So(errors.Is(rep.Lists[1].Err, sources.ErrSourceUnavailable), ShouldBeTrue)

			one, _ := cache.ItemsUpTo(ctx, "one", 0)
			So(len(one), ShouldEqual, 3)
			So(one[0].Name, ShouldEqual, "a")
			So(one[0].Rank, ShouldEqual, 1)
			So(one[0].Points, ShouldEqual, 250)
			So(one[2].Rank, ShouldEqual, 3)
			So(one[2].Points, ShouldAlmostEqual, 15, 1e-9)

			three, _ := cache.ItemsUpTo(ctx, "three", 0)
			So(three[0].Points, ShouldEqual, 250)
			So(p.LastReport().Trigger, ShouldEqual, ingest.TriggerManual)
		})

		Convey("An empty fetch keeps the previous cache", func() {
			_, err := p.RefreshAll(ctx)
			So(err, ShouldBeNil)
			srcs["one"].items = nil

			res, err := p.RefreshList(ctx, "one")
			So(err, ShouldBeNil)
			So(res.Kept, ShouldBeTrue)
			So(errors.Is(res.Err, ingest.ErrEmptySource), ShouldBeTrue)

			one, _ := cache.ItemsUpTo(ctx, "one", 0)
			So(len(one), ShouldEqual, 3)
		})

		Convey("A storage failure keeps the previous cache too", func() {
			cache.fail = repository.ErrStorage
			res, err := p.RefreshList(ctx, "one")
			So(err, ShouldBeNil)
			So(res.Kept, ShouldBeTrue)
		})

		Convey("Unknown lists are rejected", func() {
			_, err := p.RefreshList(ctx, "nope")
			So(errors.Is(err, catalog.ErrUnknownList), ShouldBeTrue)
		})

		Convey("A trigger during a run is coalesced", func() {
			srcs["one"].block = make(chan struct{})
			done := make(chan error, 1)
			go func() {
				_, err := p.RefreshAll(ctx)
				done <- err
			}()
			for !p.Running() {
				time.Sleep(time.Millisecond)
			}

			_, err := p.RefreshAll(ctx)
			So(errors.Is(err, ingest.ErrRunInProgress), ShouldBeTrue)
			_, err = p.RefreshList(ctx, "three")
			So(errors.Is(err, ingest.ErrRunInProgress), ShouldBeTrue)

			close(srcs["one"].block)
			So(<-done, ShouldBeNil)
			So(p.Running(), ShouldBeFalse)
		})
	})
}

func TestScheduler(t *testing.T) {
	Convey("Given a scheduler", t, func() {
		cache := newFakeCache()
		src := &fakeSource{items: ranked("a")}
		p := ingest.NewPipeline(testCatalog(), cache, ingest.WithSourceFactory(func(catalog.List) (sources.Source, error) {
			return src, nil
		}))

		Convey("Boundaries align to the interval", func() {
			s := ingest.NewScheduler(p, ingest.WithInterval(time.Hour))
			at := time.Date(2024, 5, 1, 10, 17, 3, 0, time.UTC)
			So(s.Next(at).Equal(time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)), ShouldBeTrue)
			So(s.Next(time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)).Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)), ShouldBeTrue)
		})

		Convey("Pending triggers coalesce into one", func() {
			s := ingest.NewScheduler(p, ingest.WithRunOnStart(false))
			So(s.Trigger("guild"), ShouldBeTrue)
			So(s.Trigger("guild"), ShouldBeFalse)
		})

		Convey("Run refreshes on start and on trigger", func() {
			s := ingest.NewScheduler(p, ingest.WithInterval(time.Hour))
			ctx, cancel := context.WithCancel(context.Background())
			stopped := make(chan struct{})
			go func() {
				s.Run(ctx)
				close(stopped)
			}()

			waitFor := func(calls int) {
				deadline := time.Now().Add(2 * time.Second)
				for time.Now().Before(deadline) {
					src.mu.Lock()
					n := src.calls
					src.mu.Unlock()
					if n >= calls && !p.Running() {
						return
					}
					time.Sleep(5 * time.Millisecond)
				}
			}
			waitFor(3)
			So(p.LastReport().Trigger, ShouldEqual, ingest.TriggerStartup)

			So(s.Trigger(ingest.TriggerGuild), ShouldBeTrue)
			waitFor(6)
			So(p.LastReport().Trigger, ShouldEqual, ingest.TriggerGuild)

			cancel()
			<-stopped
		})
	})
}
