package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/safesite/proximity/internal/config"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDefaults(t *testing.T) {
	Convey("Given a default configuration", t, func() {
		cfg := config.New()

		So(cfg.Addr, ShouldEqual, ":9080")
		So(cfg.DBPath, ShouldEqual, "proximity.db")
		So(cfg.CommandChannelPrefix, ShouldEqual, "gateway:%s:cmd")
		So(cfg.QueueSize, ShouldEqual, 10_000)
		So(cfg.MaxDistance, ShouldEqual, 100)
		So(cfg.PathLossExponent, ShouldEqual, 2.0)
		So(cfg.DefaultTxPower, ShouldEqual, -59)
		So(cfg.RingType, ShouldEqual, 4)
		So(cfg.RingTimeMS, ShouldEqual, 4000)
		So(cfg.AlertCooldownMS, ShouldEqual, 0)
		So(cfg.SweepIntervalMS, ShouldEqual, 0)
	})
}

func TestLoad(t *testing.T) {
	Convey("Given environment overrides", t, func() {
		t.Setenv("PROX_ADDR", ":7070")
		t.Setenv("PROX_QUEUE_SIZE", "250")
		t.Setenv("PROX_MAX_DISTANCE", "42.5")

		cfg, err := config.Load()
		So(err, ShouldBeNil)

		Convey("Env values override defaults", func() {
			So(cfg.Addr, ShouldEqual, ":7070")
			So(cfg.QueueSize, ShouldEqual, 250)
			So(cfg.MaxDistance, ShouldEqual, 42.5)
		})

		Convey("Untouched keys keep their defaults", func() {
			So(cfg.DBPath, ShouldEqual, "proximity.db")
			So(cfg.WorkerCount, ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given a YAML config file", t, func() {
		path := filepath.Join(t.TempDir(), "proximity.yaml")
		yaml := "addr: \":6060\"\ndb_path: /tmp/prox-test.db\nalert_cooldown_ms: 30000\n"
		So(os.WriteFile(path, []byte(yaml), 0o600), ShouldBeNil)
		t.Setenv("PROX_CONFIG", path)

		cfg, err := config.Load()
		So(err, ShouldBeNil)
		So(cfg.Addr, ShouldEqual, ":6060")
		So(cfg.DBPath, ShouldEqual, "/tmp/prox-test.db")
		So(cfg.AlertCooldownMS, ShouldEqual, 30000)

		Convey("Env still wins over the file", func() {
			t.Setenv("PROX_ADDR", ":6061")
			cfg, err := config.Load()
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":6061")
		})
	})

	Convey("Given invalid values", t, func() {
		Convey("An empty addr is rejected", func() {
			t.Setenv("PROX_ADDR", "")
			_, err := config.Load()
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("A channel prefix without a format verb is rejected", func() {
			t.Setenv("PROX_COMMAND_CHANNEL_PREFIX", "commands")
			_, err := config.Load()
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("A positive reference power is rejected", func() {
			t.Setenv("PROX_DEFAULT_TX_POWER", "59")
			_, err := config.Load()
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("A missing config file fails the load", func() {
			t.Setenv("PROX_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
			_, err := config.Load()
			So(errors.Is(err, config.ErrLoadConfig), ShouldBeTrue)
		})
	})
}
