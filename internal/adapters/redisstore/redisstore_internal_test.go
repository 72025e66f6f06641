package redisstore

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParseResult(t *testing.T) {
	Convey("Given script replies", t, func() {
		Convey("A well formed reply maps to usage", func() {
			u, ok, err := parseResult([]interface{}{int64(2), int64(1500), int64(1)})
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(u.Count, ShouldEqual, 2)
			So(u.ResetIn, ShouldEqual, 1500*time.Millisecond)
		})

		Convey("Wrong shapes are errors", func() {
			_, _, err := parseResult("OK")
			So(err, ShouldNotBeNil)
			_, _, err = parseResult([]interface{}{int64(1), "x", int64(0)})
			So(err, ShouldNotBeNil)
		})
	})
}
