package view

import (
	"errors"
	"testing"
	"time"

	"github.com/playbridge/playbridge/player"
	. "github.com/smartystreets/goconvey/convey"
)

// fakePlayer only implements what a view touches.
type fakePlayer struct {
	player.VideoPlayer
	emitter  *player.Emitter
	disposed int
}

func (f *fakePlayer) Subscribe(l player.Listener) func() {
	return f.emitter.Subscribe(l)
}

func (f *fakePlayer) Dispose() error {
	f.disposed++
	return nil
}

func TestView(t *testing.T) {
	Convey("Given a view", t, func() {
		var (
			created   []*fakePlayer
			ready     []player.VideoPlayer
			positions []time.Duration
			states    []player.VideoState
		)

		factory := func(options player.Options) (player.VideoPlayer, error) {
			p := &fakePlayer{emitter: player.NewEmitter()}
			created = append(created, p)
			return p, nil
		}

		v := &View{
			ReadyCommand: func(p player.VideoPlayer) { ready = append(ready, p) },
			ReportCurrentPositionChanged: func(ev player.PositionChanged) {
				positions = append(positions, ev.Position)
			},
			ReportVideoStateChanged: func(s player.VideoState) { states = append(states, s) },
		}

		Convey("Attach should create one player and hand it over once", func() {
			p, err := v.Attach(factory, player.Options{})
			So(err, ShouldBeNil)
			So(created, ShouldHaveLength, 1)
			So(ready, ShouldResemble, []player.VideoPlayer{p})
			So(v.Player(), ShouldEqual, p)

			Convey("and refuse a second attachment", func() {
				_, err := v.Attach(factory, player.Options{})
				So(err, ShouldEqual, ErrAttached)
				So(created, ShouldHaveLength, 1)
				So(ready, ShouldHaveLength, 1)
			})

			Convey("Events should be mirrored until detach", func() {
				created[0].emitter.PositionChanged(player.PositionChanged{Position: time.Second})
				created[0].emitter.VideoStateChanged(player.StatePlaying)
				So(positions, ShouldResemble, []time.Duration{time.Second})
				So(states, ShouldResemble, []player.VideoState{player.StatePlaying})

				So(v.Detach(), ShouldBeNil)
				created[0].emitter.VideoStateChanged(player.StatePaused)
				So(states, ShouldHaveLength, 1)
			})

			Convey("Detach should dispose exactly once", func() {
				So(v.Detach(), ShouldBeNil)
				So(v.Detach(), ShouldBeNil)
				So(created[0].disposed, ShouldEqual, 1)
				So(v.Player(), ShouldBeNil)

				Convey("and allow attaching again", func() {
					_, err := v.Attach(factory, player.Options{})
					So(err, ShouldBeNil)
					So(created, ShouldHaveLength, 2)
					So(ready, ShouldHaveLength, 2)
				})
			})
		})

		Convey("A failing factory should leave the view empty", func() {
			boom := errors.New("boom")
			_, err := v.Attach(func(player.Options) (player.VideoPlayer, error) { return nil, boom }, player.Options{})
			So(errors.Is(err, boom), ShouldBeTrue)
			So(v.Player(), ShouldBeNil)
			So(ready, ShouldBeEmpty)
		})
	})
}
