package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/okian/panelscore/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.JobTimeoutMS, convey.ShouldEqual, 60_000)
			convey.So(cfg.ConflictRetries, convey.ShouldEqual, 3)
			convey.So(cfg.Store.Driver, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.Scorer.Mode, convey.ShouldEqual, config.ScorerLocal)
			convey.So(cfg.Scorer.TimeoutMS, convey.ShouldEqual, 3_000)
		})

		convey.Convey("Then the defaults validate", func() {
			convey.So(config.Validate(cfg), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given an otherwise valid config", t, func() {
		cfg := config.New()

		convey.Convey("When the mongo driver has no uri", func() {
			cfg.Store.Driver = config.StoreMongo
			err := config.Validate(cfg)

			convey.Convey("Then validation fails with ErrInvalidConfig", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the http scorer has no url", func() {
			cfg.Scorer.Mode = config.ScorerHTTP
			convey.So(config.Validate(cfg), convey.ShouldNotBeNil)

			cfg.Scorer.URL = "http://scorer.local/score"
			convey.So(config.Validate(cfg), convey.ShouldBeNil)
		})

		convey.Convey("When the gemini scorer has no api key", func() {
			cfg.Scorer.Mode = config.ScorerGemini
			convey.So(config.Validate(cfg), convey.ShouldNotBeNil)
		})

		convey.Convey("When latency bounds are inverted", func() {
			cfg.Scorer.LatencyMinMS = 100
			cfg.Scorer.LatencyMaxMS = 10
			convey.So(config.Validate(cfg), convey.ShouldNotBeNil)
		})

		convey.Convey("When the log format is unknown", func() {
			cfg.LogFormat = "xml"
			convey.So(config.Validate(cfg), convey.ShouldNotBeNil)
		})
	})
}
