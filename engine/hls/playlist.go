package hls

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/playbridge/playbridge/drm"
)

// ErrNotPlaylist is returned for documents that do not start with #EXTM3U.
var ErrNotPlaylist = errors.New("hls: not an m3u8 playlist")

// Segment is one media segment of a media playlist.
type Segment struct {
	URI      *url.URL
	Start    time.Duration
	Duration time.Duration
}

// End is where the segment stops.
func (s Segment) End() time.Duration {
	return s.Start + s.Duration
}

// Variant is one rendition listed by a master playlist.
type Variant struct {
	URI        *url.URL
	Bandwidth  int
	Resolution string
	Codecs     string
}

// Playlist is either a master playlist (Variants set) or a media playlist.
type Playlist struct {
	Version        int
	TargetDuration time.Duration
	Segments       []Segment
	Variants       []Variant
	// Ended is set by #EXT-X-ENDLIST: no segments will be added.
	Ended bool
	Type  string
	Key   *drm.KeyRequest
}

// Master reports whether the playlist lists variants rather than segments.
func (p *Playlist) Master() bool {
	return len(p.Variants) > 0
}

// Duration is the sum of all segment durations.
func (p *Playlist) Duration() time.Duration {
	if len(p.Segments) == 0 {
		return 0
	}
	return p.Segments[len(p.Segments)-1].End()
}

// SegmentAt returns the index of the segment containing position, or -1.
func (p *Playlist) SegmentAt(position time.Duration) int {
	for i, s := range p.Segments {
		if position < s.End() {
			if position < s.Start {
				return -1
			}
			return i
		}
	}
	return -1
}

// Parse reads a playlist, resolving URIs against base.
func Parse(r io.Reader, base *url.URL) (*Playlist, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	playlist := &Playlist{}

	var (
		header         bool
		lineNo         int
		pendingInf     *time.Duration
		pendingVariant *Variant
		start          time.Duration
	)

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.TrimRight(scanner.Text(), "\r"))
		if line == "" {
			continue
		}

		if !header {
			if line != "#EXTM3U" {
				return nil, ErrNotPlaylist
			}
			header = true
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXTINF:"):
			value, _, _ := strings.Cut(strings.TrimPrefix(line, "#EXTINF:"), ",")
			seconds, err := strconv.ParseFloat(value, 64)
			if err != nil || seconds < 0 {
				return nil, fmt.Errorf("hls: line %d: bad segment duration %q", lineNo, value)
			}
			d := time.Duration(seconds * float64(time.Second))
			pendingInf = &d
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			attrs := parseAttributes(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))
			bandwidth, _ := strconv.Atoi(attrs["BANDWIDTH"])
			pendingVariant = &Variant{
				Bandwidth:  bandwidth,
				Resolution: attrs["RESOLUTION"],
				Codecs:     attrs["CODECS"],
			}
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			seconds, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"))
			if err != nil {
				return nil, fmt.Errorf("hls: line %d: bad target duration", lineNo)
			}
			playlist.TargetDuration = time.Duration(seconds) * time.Second
		case strings.HasPrefix(line, "#EXT-X-VERSION:"):
			playlist.Version, _ = strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-VERSION:"))
		case strings.HasPrefix(line, "#EXT-X-PLAYLIST-TYPE:"):
			playlist.Type = strings.TrimPrefix(line, "#EXT-X-PLAYLIST-TYPE:")
		case strings.HasPrefix(line, "#EXT-X-KEY:"):
			attrs := parseAttributes(strings.TrimPrefix(line, "#EXT-X-KEY:"))
			method := drm.Method(attrs["METHOD"])
			if !method.Protected() {
				playlist.Key = nil
				continue
			}

			req := &drm.KeyRequest{Method: method, KeyFormat: attrs["KEYFORMAT"], IV: attrs["IV"]}
			if uri, ok := attrs["URI"]; ok {
				resolved, err := base.Parse(uri)
				if err != nil {
					return nil, fmt.Errorf("hls: line %d: bad key uri: %w", lineNo, err)
				}
				req.URI = resolved
			}
			playlist.Key = req
		case line == "#EXT-X-ENDLIST":
			playlist.Ended = true
		case strings.HasPrefix(line, "#"):
			// comments and tags that do not affect fetching
		default:
			uri, err := base.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("hls: line %d: bad uri: %w", lineNo, err)
			}

			switch {
			case pendingVariant != nil:
				pendingVariant.URI = uri
				playlist.Variants = append(playlist.Variants, *pendingVariant)
				pendingVariant = nil
			case pendingInf != nil:
				playlist.Segments = append(playlist.Segments, Segment{URI: uri, Start: start, Duration: *pendingInf})
				start += *pendingInf
				pendingInf = nil
			default:
				return nil, fmt.Errorf("hls: line %d: uri without #EXTINF or #EXT-X-STREAM-INF", lineNo)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("hls: read playlist: %w", err)
	}

	if !header {
		return nil, ErrNotPlaylist
	}

	// A VOD playlist cannot change even without the end tag.
	if playlist.Type == "VOD" {
		playlist.Ended = true
	}

	return playlist, nil
}

// parseAttributes splits an attribute list such as
// BANDWIDTH=1280000,CODECS="avc1.4d401f,mp4a.40.2" into its values.
func parseAttributes(list string) map[string]string {
	attrs := make(map[string]string)

	for list != "" {
		name, rest, ok := strings.Cut(list, "=")
		if !ok {
			break
		}

		var value string
		if strings.HasPrefix(rest, `"`) {
			end := strings.Index(rest[1:], `"`)
			if end < 0 {
				value, rest = rest[1:], ""
			} else {
				value, rest = rest[1:end+1], rest[end+2:]
			}
			rest = strings.TrimPrefix(rest, ",")
		} else {
			value, rest, _ = strings.Cut(rest, ",")
		}

		attrs[strings.TrimSpace(name)] = value
		list = rest
	}

	return attrs
}
