package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/fishy/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.DBDriver, convey.ShouldEqual, config.DriverSQLite)
				convey.So(cfg.TradeTimeoutSeconds, convey.ShouldEqual, 120)
				convey.So(cfg.DefaultList, convey.ShouldEqual, "aredl")
				convey.So(cfg.LimiterFailOpen, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("FISHY_ADDR", ":8080")
			_ = os.Setenv("FISHY_LIMITER_BACKEND", "redis")
			_ = os.Setenv("FISHY_REDIS_DB", "3")
			_ = os.Setenv("FISHY_LIMITER_FAIL_OPEN", "true")
			_ = os.Setenv("FISHY_FETCH_RPS", "0.5")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.LimiterBackend, convey.ShouldEqual, config.LimiterRedis)
				convey.So(cfg.RedisDB, convey.ShouldEqual, 3)
				convey.So(cfg.LimiterFailOpen, convey.ShouldBeTrue)
				convey.So(cfg.FetchRPS, convey.ShouldAlmostEqual, 0.5)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(t, `
# storage
db_driver: postgres
db_dsn: "postgres://fishy@localhost/fishy?sslmode=disable"
trade_timeout_seconds: 60
session_store: memory
`)
			_ = os.Setenv("FISHY_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.DBDriver, convey.ShouldEqual, config.DriverPostgres)
				convey.So(cfg.TradeTimeoutSeconds, convey.ShouldEqual, 60)
				convey.So(cfg.SessionStore, convey.ShouldEqual, config.SessionsMemory)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(t, "addr: \":7000\"\n")
			_ = os.Setenv("FISHY_CONFIG", tmpFile)
			_ = os.Setenv("FISHY_ADDR", ":7001")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7001")
			})
		})

		convey.Convey("When a .env file provides values", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "test.env")
			convey.So(os.WriteFile(path, []byte("FISHY_DEFAULT_LIST=hdl\n"), 0o600), convey.ShouldBeNil)
			_ = os.Setenv("FISHY_DOTENV", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then they are applied like env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.DefaultList, convey.ShouldEqual, "hdl")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, "addr: [unclosed\n")
			_ = os.Setenv("FISHY_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("FISHY_CONFIG", "/nonexistent/fishy.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("FISHY_TRADE_TIMEOUT_SECONDS", "soon")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestConfigValidate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()
		convey.So(cfg.Validate(), convey.ShouldBeNil)

		cases := []struct {
			name   string
			mutate func(c *config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = "" }},
			{"unknown driver", func(c *config.Config) { c.DBDriver = "mysql" }},
			{"empty dsn", func(c *config.Config) { c.DBDSN = "" }},
			{"unknown limiter", func(c *config.Config) { c.LimiterBackend = "etcd" }},
			{"unknown sessions", func(c *config.Config) { c.SessionStore = "file" }},
			{"zero refresh", func(c *config.Config) { c.RefreshIntervalMinutes = 0 }},
			{"zero draw window", func(c *config.Config) { c.DrawCooldownSeconds = 0 }},
			{"negative command ms", func(c *config.Config) { c.CommandCooldownMS = -1 }},
			{"zero trade timeout", func(c *config.Config) { c.TradeTimeoutSeconds = 0 }},
			{"zero fetch rps", func(c *config.Config) { c.FetchRPS = 0 }},
		}
		for _, tc := range cases {
			convey.Convey("Rejects "+tc.name, func() {
				tc.mutate(cfg)
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"FISHY_CONFIG",
		"FISHY_DOTENV",
		"FISHY_ADDR",
		"FISHY_LIMITER_BACKEND",
		"FISHY_REDIS_DB",
		"FISHY_LIMITER_FAIL_OPEN",
		"FISHY_FETCH_RPS",
		"FISHY_DEFAULT_LIST",
		"FISHY_TRADE_TIMEOUT_SECONDS",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fishy-config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
