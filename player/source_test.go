package player

import (
	"errors"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/playbridge/playbridge/filesystem"
	"github.com/playbridge/playbridge/where"
	"github.com/samber/lo"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	filesystem.SetMemMapFs()
}

func TestValidateURL(t *testing.T) {
	Convey("ValidateURL", t, func() {
		valid := []string{
			"https://cdn.example.com/master.m3u8",
			"http://127.0.0.1:8080/live.m3u8",
			"file:///media/clip.mp4",
		}
		for _, raw := range valid {
			So(ValidateURL(lo.Must(url.Parse(raw))), ShouldBeNil)
		}

		invalid := []string{
			"rtmp://example.com/live",
			"https:///nohost.m3u8",
			"master.m3u8",
		}
		for _, raw := range invalid {
			So(errors.Is(ValidateURL(lo.Must(url.Parse(raw))), ErrInvalidSource), ShouldBeTrue)
		}

		So(errors.Is(ValidateURL(nil), ErrInvalidSource), ShouldBeTrue)
	})
}

func TestLocalSources(t *testing.T) {
	Convey("Given media on disk", t, func() {
		dir := where.Resources()
		lo.Must0(filesystem.API().WriteFile(filepath.Join(dir, "intro.m3u8"), []byte("#EXTM3U\n"), 0644))

		Convey("A resource should resolve to a file url", func() {
			u, err := ResourceURL("intro", ".m3u8")
			So(err, ShouldBeNil)
			So(u.Scheme, ShouldEqual, "file")
			So(u.Path, ShouldEndWith, "/intro.m3u8")
		})

		Convey("A missing resource should be an invalid source", func() {
			_, err := ResourceURL("outro", "m3u8")
			So(errors.Is(err, ErrInvalidSource), ShouldBeTrue)
		})

		Convey("Traversal in resource names should be rejected", func() {
			_, err := ResourceURL("../secrets", "txt")
			So(errors.Is(err, ErrInvalidSource), ShouldBeTrue)
		})

		Convey("A local path should resolve when it exists", func() {
			u, err := LocalURL(filepath.Join(dir, "intro.m3u8"))
			So(err, ShouldBeNil)
			So(ValidateURL(u), ShouldBeNil)
		})

		Convey("An empty path should be rejected", func() {
			_, err := LocalURL("  ")
			So(errors.Is(err, ErrInvalidSource), ShouldBeTrue)
		})
	})
}
