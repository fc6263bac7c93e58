package filesystem

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestApi(t *testing.T) {
	Convey("Filesystem API", t, func() {
		Convey("Should default to OsFs", func() {
			SetOsFs()
			So(API().Name(), ShouldEqual, "OsFs")
		})

		Convey("Should switch to MemMapFs", func() {
			SetMemMapFs()
			So(API().Name(), ShouldEqual, "MemMapFS")
		})
	})
}

func TestIsRegular(t *testing.T) {
	Convey("Given an in-memory filesystem", t, func() {
		SetMemMapFs()
		So(API().WriteFile("/media/clip.m3u8", []byte("#EXTM3U\n"), 0644), ShouldBeNil)

		Convey("A written file should be regular", func() {
			ok, err := IsRegular("/media/clip.m3u8")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
		})

		Convey("A directory should not be", func() {
			ok, err := IsRegular("/media")
			So(err, ShouldNotBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("A missing path should error", func() {
			_, err := IsRegular("/media/missing.mp4")
			So(err, ShouldNotBeNil)
		})
	})
}
