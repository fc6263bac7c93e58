package log

import (
	"bytes"
	"testing"

	"github.com/playbridge/playbridge/filesystem"
	"github.com/sirupsen/logrus"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	filesystem.SetMemMapFs()
}

func TestLogger(t *testing.T) {
	Convey("Given logging disabled", t, func() {
		So(Setup(), ShouldBeNil)

		Convey("Entries should be discarded", func() {
			So(func() { Infof("nothing %d", 1) }, ShouldNotPanic)
		})
	})

	Convey("Given a captured output", t, func() {
		var buf bytes.Buffer
		SetOutput(&buf, logrus.DebugLevel)

		Convey("Component entries should carry their tag", func() {
			Component("seek").Debug("settled")
			So(buf.String(), ShouldContainSubstring, "component=seek")
			So(buf.String(), ShouldContainSubstring, "settled")
		})

		Convey("Levels above the threshold should be dropped", func() {
			SetOutput(&buf, logrus.WarnLevel)
			Info("quiet")
			So(buf.String(), ShouldNotContainSubstring, "quiet")
		})
	})
}
