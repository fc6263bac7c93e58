package inline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/playbridge/playbridge/player"
	"github.com/samber/mo"
)

// Loader starts a load on p. Sources given as URLs, local paths and bundled
// resources each make one.
type Loader func(ctx context.Context, p player.VideoPlayer) (player.VideoLoadStatus, error)

type Options struct {
	Out    io.Writer
	Json   bool
	Player player.VideoPlayer
	Load   Loader

	// Start seeks there once loaded.
	Start mo.Option[time.Duration]
	// For ends the run after playing this long.
	For mo.Option[time.Duration]
	// LoadTimeout bounds the load; zero means no bound.
	LoadTimeout time.Duration
}

// FromURL loads source.
func FromURL(source *url.URL) Loader {
	return func(ctx context.Context, p player.VideoPlayer) (player.VideoLoadStatus, error) {
		return p.FromURL(ctx, source)
	}
}

// FromLocal loads a local file.
func FromLocal(path string) Loader {
	return func(ctx context.Context, p player.VideoPlayer) (player.VideoLoadStatus, error) {
		return p.FromLocal(ctx, path)
	}
}

// FromResource loads a bundled resource given as name.ext.
func FromResource(file string) (Loader, error) {
	name, extension, ok := strings.Cut(file, ".")
	if !ok || name == "" {
		return nil, fmt.Errorf("resource %q: want name.extension", file)
	}

	return func(ctx context.Context, p player.VideoPlayer) (player.VideoLoadStatus, error) {
		return p.FromResource(ctx, name, extension)
	}, nil
}

// ResourcePrefix marks a source as a bundled resource, as in resource:intro.mp4.
const ResourcePrefix = "resource:"

// ParseSource picks the loader for a source given on the command line: a
// resource: reference, an http(s) URL or a local path.
func ParseSource(source string) (Loader, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, errors.New("empty source")
	}

	if file, ok := strings.CutPrefix(source, ResourcePrefix); ok {
		return FromResource(file)
	}

	if u, err := url.Parse(source); err == nil && u.Scheme != "" && u.Host != "" {
		return FromURL(u), nil
	}

	return FromLocal(source), nil
}
