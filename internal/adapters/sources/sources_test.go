package sources_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/fishy/internal/adapters/sources"
	"github.com/okian/fishy/internal/catalog"
	"github.com/okian/fishy/internal/domain/scoring"
	"github.com/okian/fishy/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func apiList(endpoint, mapper string) catalog.List {
	return catalog.List{
		ID: "test", Score: scoring.HDL,
		Source: catalog.Source{Kind: catalog.SourceAPI, Endpoint: endpoint, Mapper: mapper},
	}
}

func serve(status int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestSlugify(t *testing.T) {
	Convey("Given display names", t, func() {
		So(sources.Slugify("Tidal Wave"), ShouldEqual, "tidal_wave")
		So(sources.Slugify("Sakupen Circles (Old)"), ShouldEqual, "sakupen_circles_old")
		So(sources.Slugify("  _Acu!!_  "), ShouldEqual, "acu")
		So(sources.Slugify("Firework / 2"), ShouldEqual, "firework_2")
	})
}

func TestAPISource(t *testing.T) {
	Convey("Given an API source", t, func() {
		ctx := context.Background()

		Convey("AREDL drops legacy entries and slugifies names", func() {
			srv := serve(http.StatusOK, `[
				{"name":"Tidal Wave","position":1,"legacy":false},
				{"name":"Old One","position":2,"legacy":true},
				{"name":"Acheron (Remake)","position":3,"legacy":false}
			]`)
			defer srv.Close()

			src, err := sources.New(apiList(srv.URL, catalog.MapperAREDL), sources.WithRPS(100))
			So(err, ShouldBeNil)
			items, err := src.FetchOrderedItems(ctx)
			So(err, ShouldBeNil)
			So(len(items), ShouldEqual, 2)
			So(items[0].Filename, ShouldEqual, "tidal_wave")
			So(items[1].Filename, ShouldEqual, "acheron_remake")
			So(items[1].Rank, ShouldEqual, 3)
		})

		Convey("Positioned lists accept numeric ids and are sorted by rank", func() {
			srv := serve(http.StatusOK, `[
				{"name":"B","position":2,"id":42},
				{"name":"A","position":1,"id":"abc"}
			]`)
			defer srv.Close()

			src, _ := sources.New(apiList(srv.URL, catalog.MapperPositioned), sources.WithRPS(100))
			items, err := src.FetchOrderedItems(ctx)
			So(err, ShouldBeNil)
			So(items[0].Filename, ShouldEqual, "abc")
			So(items[1].Filename, ShouldEqual, "42")
		})

		Convey("Pemonlist reads the data envelope", func() {
			srv := serve(http.StatusOK, `{"data":[{"name":"X","placement":1,"level_id":123}]}`)
			defer srv.Close()

			src, _ := sources.New(apiList(srv.URL, catalog.MapperPemonlist), sources.WithRPS(100))
			items, err := src.FetchOrderedItems(ctx)
			So(err, ShouldBeNil)
			So(items, ShouldHaveLength, 1)
			So(items[0].Filename, ShouldEqual, "123")
		})

		Convey("Server errors yield an empty sequence and ErrSourceUnavailable", func() {
			srv := serve(http.StatusBadGateway, `oops`)
			defer srv.Close()

			src, _ := sources.New(apiList(srv.URL, catalog.MapperAREDL), sources.WithRPS(100))
			items, err := src.FetchOrderedItems(ctx)
			So(items, ShouldBeEmpty)
			So(errors.Is(err, sources.ErrSourceUnavailable), ShouldBeTrue)
		})

		Convey("Malformed bodies yield ErrSourceUnavailable", func() {
			srv := serve(http.StatusOK, `{"not":"an array"}`)
			defer srv.Close()

			src, _ := sources.New(apiList(srv.URL, catalog.MapperAREDL), sources.WithRPS(100))
			items, err := src.FetchOrderedItems(ctx)
			So(items, ShouldBeEmpty)
			So(errors.Is(err, sources.ErrSourceUnavailable), ShouldBeTrue)
		})

		Convey("Slow servers hit the timeout", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			}))
			defer srv.Close()

			src, _ := sources.New(apiList(srv.URL, catalog.MapperAREDL), sources.WithTimeout(50*time.Millisecond), sources.WithRPS(100))
			_, err := src.FetchOrderedItems(ctx)
			So(errors.Is(err, sources.ErrSourceUnavailable), ShouldBeTrue)
		})

		Convey("Requests are paced", func() {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				_, _ = w.Write([]byte(`[]`))
			}))
			defer srv.Close()

			src, _ := sources.New(apiList(srv.URL, catalog.MapperAREDL), sources.WithRPS(10))
			start := time.Now()
			for i := 0; i < 3; i++ {
				_, err := src.FetchOrderedItems(ctx)
				So(err, ShouldBeNil)
			}
			So(hits.Load(), ShouldEqual, 3)
			So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 150*time.Millisecond)
		})

		Convey("Unknown mappers are rejected at construction", func() {
			_, err := sources.New(apiList("http://x", "csv"))
			So(err, ShouldNotBeNil)
		})
	})
}
