package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/lineup/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.ClaimMaxAttempts, convey.ShouldEqual, 5)
			convey.So(cfg.HistoryWindow, convey.ShouldEqual, 10)
			convey.So(cfg.CongestionThreshold, convey.ShouldEqual, 10)
			convey.So(cfg.CongestionPercent, convey.ShouldEqual, 120)
			convey.So(cfg.SimulateMax, convey.ShouldEqual, 200)
			convey.So(cfg.AutopilotInterval(), convey.ShouldEqual, 3*time.Second)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Counters(t *testing.T) {
	convey.Convey("Given an autopilot counter list", t, func() {
		cfg := config.New()

		convey.Convey("When it is empty", func() {
			convey.So(cfg.Counters(), convey.ShouldBeEmpty)
		})

		convey.Convey("When it has blanks and spaces", func() {
			cfg.AutopilotCounters = " c1, ,c2,"
			convey.So(cfg.Counters(), convey.ShouldResemble, []string{"c1", "c2"})
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid settings", t, func() {
		cases := map[string]func(*config.Config){
			"addr must not be empty":   func(c *config.Config) { c.Addr = "" },
			"unknown store":            func(c *config.Config) { c.Store = "sqlite" },
			"database_url is required": func(c *config.Config) { c.Store = config.StorePostgres },
			"unknown log format":       func(c *config.Config) { c.LogFormat = "xml" },
			"claim_max_attempts":       func(c *config.Config) { c.ClaimMaxAttempts = 0 },
			"history_window":           func(c *config.Config) { c.HistoryWindow = 0 },
			"congestion_threshold":     func(c *config.Config) { c.CongestionThreshold = -1 },
			"congestion_percent":       func(c *config.Config) { c.CongestionPercent = 99 },
			"autopilot_interval_ms": func(c *config.Config) {
				c.AutopilotEnabled = true
				c.AutopilotIntervalMS = 0
			},
			"autopilot_service_ms": func(c *config.Config) { c.AutopilotServiceMS = -1 },
			"simulate_max":         func(c *config.Config) { c.SimulateMax = 0 },
		}

		for msg, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, msg)
		}

		convey.Convey("Then postgres with a dsn is valid", func() {
			cfg := config.New()
			cfg.Store = config.StorePostgres
			cfg.DatabaseURL = "postgres://localhost/lineup"
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
