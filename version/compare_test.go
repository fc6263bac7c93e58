package version

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCompare(t *testing.T) {
	Convey("Compare should order semantic versions", t, func() {
		for _, tc := range []struct {
			a, b string
			want int
		}{
			{"0.1.0", "0.1.0", 0},
			{"v0.2.0", "0.1.9", 1},
			{"1.0.0", "1.0.1", -1},
			{"2.0.0", "1.99.99", 1},
		} {
			got, err := Compare(tc.a, tc.b)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, tc.want)
		}
	})

	Convey("Compare should reject what it cannot parse", t, func() {
		_, err := Compare("latest", "0.1.0")
		So(err, ShouldNotBeNil)
	})
}
