package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	service "github.com/okian/panelscore/internal/app"
	"github.com/okian/panelscore/internal/config"
	"github.com/okian/panelscore/internal/domain/model"
	"github.com/okian/panelscore/pkg/logger"
)

// execute runs the root command with args and returns its stdout.
func execute(args ...string) (string, error) {
	_ = os.Unsetenv(config.EnvConfigPath)
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		cmd := newRootCmd()

		convey.Convey("Then every subcommand is registered", func() {
			names := map[string]bool{}
			for _, c := range cmd.Commands() {
				names[c.Name()] = true
			}
			for _, want := range []string{"serve", "recompute", "seed", "export", "version"} {
				convey.So(names[want], convey.ShouldBeTrue)
			}
		})

		convey.Convey("Then version prints the build version", func() {
			out, err := execute("version")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldEqual, "panelscore version: dev\n")
		})
	})
}

func TestRecomputeCommand(t *testing.T) {
	convey.Convey("Given the recompute command", t, func() {
		convey.Convey("When the kind is unknown", func() {
			_, err := execute("recompute", "rebuild_everything")
			convey.So(errors.Is(err, model.ErrUnknownKind), convey.ShouldBeTrue)
		})

		convey.Convey("When a required target is missing", func() {
			_, err := execute("recompute", "recompute_expert_subject", "--subject", "s1")
			convey.So(errors.Is(err, model.ErrInvalidJob), convey.ShouldBeTrue)
		})

		convey.Convey("When the job is complete", func() {
			out, err := execute("recompute", "recompute_expert_averages", "--experts", "e1,e2")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "recompute_expert_averages done")
		})
	})
}

func TestSeedCommand(t *testing.T) {
	convey.Convey("Given a small seed with a report", t, func() {
		path := filepath.Join(t.TempDir(), "board")

		out, err := execute("seed", "--subjects", "2", "--experts", "3", "--candidates", "4",
			"--panel-size", "2", "--applications", "1", "--export", path)

		convey.Convey("Then the counts are printed and the workbook is written", func() {
			convey.So(err, convey.ShouldBeNil)
			var rep service.SeedReport
			convey.So(json.Unmarshal([]byte(out), &rep), convey.ShouldBeNil)
			convey.So(rep.Subjects, convey.ShouldEqual, 2)
			convey.So(rep.Experts, convey.ShouldEqual, 3)
			convey.So(rep.Candidates, convey.ShouldEqual, 4)

			_, statErr := os.Stat(path + ".xlsx")
			convey.So(statErr, convey.ShouldBeNil)
		})
	})
}

func TestExportCommand(t *testing.T) {
	convey.Convey("Given the memory store", t, func() {
		path := filepath.Join(t.TempDir(), "empty.xlsx")

		out, err := execute("export", "--out", path)

		convey.Convey("Then an empty report is still written", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldEqual, path+"\n")
			_, statErr := os.Stat(path)
			convey.So(statErr, convey.ShouldBeNil)
		})
	})
}

func TestNewMux(t *testing.T) {
	convey.Convey("Given the serve mux over a running service", t, func() {
		ctx := context.Background()
		convey.So(logger.Init(), convey.ShouldBeNil)
		cfg := config.New()
		svc := service.New(cfg)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		srv := httptest.NewServer(newMux(ctx, cfg, svc, logger.Get()))
		defer srv.Close()

		for _, path := range []string{"/", "/api-docs", "/openapi.yaml", "/healthz", "/stats"} {
			convey.Convey("Then GET "+path+" answers 200", func() {
				resp, err := srv.Client().Get(srv.URL + path)
				convey.So(err, convey.ShouldBeNil)
				defer resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			})
		}
	})
}
