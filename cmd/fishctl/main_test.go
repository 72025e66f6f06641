package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/okian/fishy/internal/app/ingest"
	"github.com/okian/fishy/internal/catalog"
	"github.com/okian/fishy/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestFishctl(t *testing.T) {
	Convey("Given a store configured through the environment", t, func() {
		dir := t.TempDir()
		t.Setenv("FISHY_DB_DSN", "file:"+filepath.Join(dir, "ctl.db")+"?_pragma=busy_timeout(5000)")
		t.Setenv("FISHY_DOTENV", filepath.Join(dir, "missing.env"))
		t.Setenv("FISHY_CONFIG", "")

		Convey("help lists every subcommand", func() {
			out, err := execute("--help")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "refresh")
			So(out, ShouldContainSubstring, "cooldown")
			So(out, ShouldContainSubstring, "loadtest")
		})

		Convey("cooldown check reports an open window", func() {
			out, err := execute("cooldown", "check", "u1", "draw-aredl")
			So(err, ShouldBeNil)
			var cd types.Cooldown
			So(json.Unmarshal([]byte(out), &cd), ShouldBeNil)
			So(cd.Allowed, ShouldBeTrue)
			So(cd.Key, ShouldEqual, "u1:draw-aredl")
		})

		Convey("cooldown clear confirms", func() {
			out, err := execute("cooldown", "clear", "u1", "draw-aredl")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "cleared draw-aredl for u1")
		})

		Convey("cooldown rejects unknown actions", func() {
			_, err := execute("cooldown", "clear", "u1", "fly")
			So(err, ShouldNotBeNil)
		})

		Convey("refresh rejects unknown lists", func() {
			_, err := execute("refresh", "nope")
			So(errors.Is(err, catalog.ErrUnknownList), ShouldBeTrue)
		})

		Convey("a missing config file fails before anything is built", func() {
			_, err := execute("--config", filepath.Join(dir, "absent.yaml"), "cooldown", "check", "u1", "draw-aredl")
			So(err, ShouldNotBeNil)
		})
	})

	Convey("loadtest requires a list", t, func() {
		_, err := execute("loadtest")
		So(err, ShouldNotBeNil)
	})

	Convey("refresh reports carry failure reasons", t, func() {
		rep := refreshReport([]ingest.ListResult{
			{ListID: "a", Items: 3},
			{ListID: "b", Kept: true, Err: ingest.ErrEmptySource},
		})
		So(len(rep.Lists), ShouldEqual, 2)
		So(rep.Lists[0].Error, ShouldBeEmpty)
		So(rep.Lists[1].Error, ShouldEqual, "empty")
	})
}
