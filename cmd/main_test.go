package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/okian/fishy/internal/adapters/http/api"
	service "github.com/okian/fishy/internal/app"
	"github.com/okian/fishy/internal/bootstrap"
	"github.com/okian/fishy/internal/config"
	"github.com/okian/fishy/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func TestMainWiring(t *testing.T) {
	convey.Convey("Given configuration from the environment", t, func() {
		dsn := "file:" + filepath.Join(t.TempDir(), "main.db") + "?_pragma=busy_timeout(5000)"
		t.Setenv("FISHY_ADDR", ":18080")
		t.Setenv("FISHY_DB_DSN", dsn)
		t.Setenv("FISHY_DOTENV", filepath.Join(t.TempDir(), "missing.env"))

		ctx := context.Background()
		cfg, err := config.Load(ctx)
		convey.So(err, convey.ShouldBeNil)
		convey.So(cfg.Addr, convey.ShouldEqual, ":18080")
		convey.So(bootstrap.InitLogger(ctx, cfg), convey.ShouldBeNil)

		convey.Convey("When the runtime is built without a startup refresh", func() {
			rt, err := bootstrap.Build(ctx, cfg, service.WithRefreshOnStart(false))
			convey.So(err, convey.ShouldBeNil)
			defer func() { _ = rt.Close() }()

			srv := newHTTPServer(cfg, api.NewServer(rt.Service).Handler())

			convey.Convey("Then the server carries the configured address and timeouts", func() {
				convey.So(srv.Addr, convey.ShouldEqual, ":18080")
				convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)
				convey.So(srv.WriteTimeout, convey.ShouldEqual, writeTimeout)
			})

			convey.Convey("Then the handler answers health checks", func() {
				w := httptest.NewRecorder()
				srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			})

			convey.Convey("Then the service starts and stops cleanly", func() {
				rt.Service.Start(ctx)
				convey.So(rt.Service.Stop(ctx), convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given an invalid address", t, func() {
		t.Setenv("FISHY_ADDR", "")
		t.Setenv("FISHY_DOTENV", filepath.Join(t.TempDir(), "missing.env"))

		convey.Convey("Then configuration loading fails", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}

func TestServe(t *testing.T) {
	convey.Convey("Given a server whose port is already taken", t, func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)
		defer func() { _ = ln.Close() }()

		srv := &http.Server{Addr: ln.Addr().String(), Handler: http.NotFoundHandler(), ReadHeaderTimeout: readHeaderTimeout}
		stopped := false
		stop := func(context.Context) error { stopped = true; return nil }

		convey.Convey("Then serve shuts down and returns the listener error", func() {
			err := serve(context.Background(), srv, stop)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "http server")
			convey.So(stopped, convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given a server on a free port", t, func() {
		srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler(), ReadHeaderTimeout: readHeaderTimeout}
		stopErr := errors.New("drain timed out")
		stopped := false
		stop := func(context.Context) error { stopped = true; return stopErr }

		convey.Convey("Then cancelling the context is a clean exit", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			convey.So(serve(ctx, srv, stop), convey.ShouldBeNil)
			convey.So(stopped, convey.ShouldBeTrue)
		})
	})
}
