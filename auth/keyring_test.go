package auth

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/zalando/go-keyring"
)

func init() {
	keyring.MockInit()
}

func TestAuthorization(t *testing.T) {
	Convey("Given an empty keyring", t, func() {
		So(DeleteAuthorization(), ShouldBeNil)

		Convey("Nothing should be stored", func() {
			value, err := GetAuthorization()
			So(err, ShouldBeNil)
			So(value, ShouldBeEmpty)
		})

		Convey("A stored value should be read back trimmed", func() {
			So(SetAuthorization("  Bearer abc123  "), ShouldBeNil)

			value, err := GetAuthorization()
			So(err, ShouldBeNil)
			So(value, ShouldEqual, "Bearer abc123")
		})

		Convey("A blank value should be refused", func() {
			So(SetAuthorization(" "), ShouldEqual, ErrEmpty)
		})
	})
}

func TestRedact(t *testing.T) {
	Convey("Redact should only reveal the scheme and the tail", t, func() {
		So(Redact("Bearer abcdefgh"), ShouldEqual, "Bearer ****efgh")
		So(Redact("Basic abc"), ShouldEqual, "Basic ***")
		So(Redact("token"), ShouldEqual, "*oken")
	})
}
