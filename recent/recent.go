// Package recent remembers played sources and suggests them back.
package recent

import (
	"strings"
	"sync"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/metafates/gache"
	"github.com/playbridge/playbridge/filesystem"
	"github.com/playbridge/playbridge/key"
	"github.com/playbridge/playbridge/where"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/viper"
	"golang.org/x/exp/slices"
)

type record struct {
	Rank     int       `json:"rank"`
	Source   string    `json:"source"`
	PlayedAt time.Time `json:"played_at"`
}

var (
	mu     sync.Mutex
	cacher = sync.OnceValue(func() *gache.Cache[map[string]*record] {
		return gache.New[map[string]*record](
			&gache.Options{
				Path:       where.Recent(),
				FileSystem: &filesystem.GacheFs{},
			},
		)
	})
)

func load() map[string]*record {
	cached, expired, err := cacher().Get()
	if expired || err != nil || cached == nil {
		return make(map[string]*record)
	}
	return cached
}

// Remember records a played source or bumps its rank. Only the
// history.recent_size highest ranked sources are kept.
func Remember(source string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil
	}

	mu.Lock()
	defer mu.Unlock()

	cached := load()
	if r, ok := cached[source]; ok {
		r.Rank++
		r.PlayedAt = time.Now()
	} else {
		cached[source] = &record{Rank: 1, Source: source, PlayedAt: time.Now()}
	}

	if limit := viper.GetInt(key.HistoryRecentSize); limit > 0 && len(cached) > limit {
		records := sorted(lo.Values(cached))
		for _, r := range records[limit:] {
			delete(cached, r.Source)
		}
	}

	return cacher().Set(cached)
}

// Suggest returns the best ranked source matching partial.
func Suggest(partial string) mo.Option[string] {
	suggestions := SuggestMany(partial)
	if len(suggestions) == 0 {
		return mo.None[string]()
	}
	return mo.Some(suggestions[0])
}

// SuggestMany returns remembered sources fuzzily matching partial, best ranked first.
func SuggestMany(partial string) []string {
	mu.Lock()
	cached := load()
	mu.Unlock()

	records := lo.Filter(lo.Values(cached), func(r *record, _ int) bool {
		return fuzzy.MatchFold(partial, r.Source)
	})

	return lo.Map(sorted(records), func(r *record, _ int) string {
		return r.Source
	})
}

// sorted orders by rank, then by recency.
func sorted(records []*record) []*record {
	slices.SortFunc(records, func(a, b *record) int {
		if a.Rank != b.Rank {
			return b.Rank - a.Rank
		}
		return b.PlayedAt.Compare(a.PlayedAt)
	})
	return records
}
