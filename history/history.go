// Package history remembers where playback of a source stopped.
package history

import (
	"sync"
	"time"

	"github.com/metafates/gache"
	"github.com/playbridge/playbridge/filesystem"
	"github.com/playbridge/playbridge/where"
	"github.com/samber/mo"
)

// resumeMargin is how close to the end a position counts as watched.
const resumeMargin = 5 * time.Second

var cacher = sync.OnceValue(func() *gache.Cache[map[string]*Entry] {
	return gache.New[map[string]*Entry](
		&gache.Options{
			Path:       where.History(),
			FileSystem: &filesystem.GacheFs{},
		},
	)
})

// Get returns every saved entry keyed by source.
func Get() (map[string]*Entry, error) {
	cached, expired, err := cacher().Get()
	if err != nil {
		return nil, err
	}
	if expired || cached == nil {
		return make(map[string]*Entry), nil
	}
	return cached, nil
}

// Save records where playback of source stopped. Positions within a few
// seconds of the end clear the entry, the source was watched.
func Save(source string, position, duration time.Duration) error {
	saved, err := Get()
	if err != nil {
		return err
	}

	if position <= 0 || (duration > 0 && duration-position <= resumeMargin) {
		delete(saved, source)
		return cacher().Set(saved)
	}

	saved[source] = &Entry{
		Source:   source,
		Position: position,
		Duration: duration,
		SavedAt:  time.Now(),
	}

	return cacher().Set(saved)
}

// Position returns where playback of source stopped, if it was saved.
func Position(source string) mo.Option[time.Duration] {
	saved, err := Get()
	if err != nil {
		return mo.None[time.Duration]()
	}

	entry, ok := saved[source]
	if !ok {
		return mo.None[time.Duration]()
	}
	return mo.Some(entry.Position)
}

// Remove forgets source.
func Remove(source string) error {
	saved, err := Get()
	if err != nil {
		return err
	}

	delete(saved, source)
	return cacher().Set(saved)
}
