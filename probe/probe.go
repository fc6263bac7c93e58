// Package probe inspects an HLS manifest without playing it.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/playbridge/playbridge/engine/hls"
	"github.com/playbridge/playbridge/key"
	"github.com/playbridge/playbridge/log"
	"github.com/playbridge/playbridge/util"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Variant is one rendition of a master playlist.
type Variant struct {
	URI        string `json:"uri"`
	Bandwidth  int    `json:"bandwidth"`
	Resolution string `json:"resolution,omitempty"`
	Codecs     string `json:"codecs,omitempty"`
}

// Result describes a probed source. For a master playlist the media fields
// describe its first variant, the one the hls engine plays.
type Result struct {
	URL            string        `json:"url"`
	Master         bool          `json:"master"`
	Variants       []Variant     `json:"variants,omitempty"`
	Segments       int           `json:"segments"`
	Duration       time.Duration `json:"duration"`
	TargetDuration time.Duration `json:"target_duration"`
	Live           bool          `json:"live"`
	Encryption     string        `json:"encryption,omitempty"`
	Bytes          int64         `json:"bytes"`
	ProbedAt       time.Time     `json:"probed_at"`
}

// Summary renders the result on one line.
func (r *Result) Summary() string {
	var parts []string

	if r.Master {
		parts = append(parts, util.Quantify(len(r.Variants), "variant", "variants"))
	}

	parts = append(parts, util.Quantify(r.Segments, "segment", "segments"))
	if r.Live {
		parts = append(parts, "live")
	} else {
		parts = append(parts, r.Duration.Round(time.Second).String())
	}

	if r.Encryption != "" {
		parts = append(parts, "encrypted with "+r.Encryption)
	}

	parts = append(parts,
		humanize.Bytes(uint64(r.Bytes))+" of playlists",
		"probed "+humanize.Time(r.ProbedAt),
	)
	return strings.Join(parts, ", ")
}

// Probe fetches source and, for a master playlist, its first variant. Results
// are cached for a day when probe.cache is set.
func Probe(ctx context.Context, client *http.Client, source *url.URL) (*Result, error) {
	cacheKey := source.String()
	useCache := viper.GetBool(key.ProbeCache)

	if useCache {
		if cached, ok := resultCacher().Get(cacheKey).Get(); ok {
			log.Debugf("probe cache hit for %s", source.Redacted())
			return cached, nil
		}
	}

	result := &Result{URL: source.Redacted(), ProbedAt: time.Now()}

	playlist, n, err := fetch(ctx, client, source)
	result.Bytes += n
	if err != nil {
		return nil, err
	}

	if playlist.Master() {
		result.Master = true
		result.Variants = lo.Map(playlist.Variants, func(v hls.Variant, _ int) Variant {
			return Variant{
				URI:        v.URI.Redacted(),
				Bandwidth:  v.Bandwidth,
				Resolution: v.Resolution,
				Codecs:     v.Codecs,
			}
		})

		playlist, n, err = fetch(ctx, client, playlist.Variants[0].URI)
		result.Bytes += n
		if err != nil {
			return nil, fmt.Errorf("first variant: %w", err)
		}
	}

	result.Segments = len(playlist.Segments)
	result.Duration = playlist.Duration()
	result.TargetDuration = playlist.TargetDuration
	result.Live = !playlist.Ended
	if playlist.Key != nil {
		result.Encryption = string(playlist.Key.Method)
	}

	if useCache {
		if err := resultCacher().Set(cacheKey, result); err != nil {
			log.Warnf("cache probe result: %v", err)
		}
	}

	return result, nil
}

func fetch(ctx context.Context, client *http.Client, source *url.URL) (*hls.Playlist, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.String(), nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer util.Ignore(resp.Body.Close)

	if resp.StatusCode != http.StatusOK {
		return nil, 0, &hls.StatusError{URL: source.Redacted(), Code: resp.StatusCode}
	}

	body := &countingReader{r: resp.Body}
	playlist, err := hls.Parse(body, source)
	return playlist, body.n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
