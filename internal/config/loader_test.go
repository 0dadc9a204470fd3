package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/lineup/internal/config"
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
				convey.So(cfg, convey.ShouldResemble, config.New())
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("LINEUP_ADDR", ":8080")
			_ = os.Setenv("LINEUP_CLAIM_MAX_ATTEMPTS", "9")
			_ = os.Setenv("LINEUP_AUTOPILOT_ENABLED", "true")
			_ = os.Setenv("LINEUP_AUTOPILOT_INTERVAL_MS", "250")
			_ = os.Setenv("LINEUP_AUTOPILOT_COUNTERS", "c1,c2")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.ClaimMaxAttempts, convey.ShouldEqual, 9)
				convey.So(cfg.AutopilotEnabled, convey.ShouldBeTrue)
				convey.So(cfg.AutopilotInterval(), convey.ShouldEqual, 250*time.Millisecond)
				convey.So(cfg.Counters(), convey.ShouldResemble, []string{"c1", "c2"})
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(`
# file layer
addr: ":9090"
store: postgres
database_url: postgres://db/lineup
history_window: 30
congestion_percent: 150
`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("LINEUP_CONFIG", tmpFile)
			_ = os.Setenv("LINEUP_HISTORY_WINDOW", "40")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Store, convey.ShouldEqual, config.StorePostgres)
				convey.So(cfg.DatabaseURL, convey.ShouldEqual, "postgres://db/lineup")
				convey.So(cfg.HistoryWindow, convey.ShouldEqual, 40)
				convey.So(cfg.CongestionPercent, convey.ShouldEqual, 150)
				convey.So(cfg.SimulateMax, convey.ShouldEqual, 200)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("LINEUP_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("LINEUP_CONFIG", "/nonexistent/lineup.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("LINEUP_HISTORY_WINDOW", "not_a_number")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("LINEUP_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, envVar := range []string{
		"LINEUP_CONFIG",
		"LINEUP_ADDR",
		"LINEUP_CLAIM_MAX_ATTEMPTS",
		"LINEUP_AUTOPILOT_ENABLED",
		"LINEUP_AUTOPILOT_INTERVAL_MS",
		"LINEUP_AUTOPILOT_COUNTERS",
		"LINEUP_HISTORY_WINDOW",
	} {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "lineup-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
