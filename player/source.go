package player

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/playbridge/playbridge/filesystem"
	"github.com/playbridge/playbridge/where"
)

// ValidateURL rejects sources no engine should be handed: empty or relative
// URLs, unknown schemes and anything an argv-based engine could mistake for a flag.
func ValidateURL(u *url.URL) error {
	if u == nil {
		return fmt.Errorf("%w: nil url", ErrInvalidSource)
	}

	raw := u.String()
	if strings.ContainsAny(raw, "\x00\n\r") {
		return fmt.Errorf("%w: control characters in url", ErrInvalidSource)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("%w: %s: missing host", ErrInvalidSource, u.Redacted())
		}
	case "file":
		if u.Path == "" || strings.HasPrefix(u.Path, "-") {
			return fmt.Errorf("%w: %s: bad path", ErrInvalidSource, u.Redacted())
		}
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSource, u.Scheme)
	}

	return nil
}

// LocalURL turns a path on the local filesystem into a file URL, failing if the
// path is not a regular file.
func LocalURL(path string) (*url.URL, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidSource)
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}

	if _, err := filesystem.IsRegular(abs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}

	return &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}, nil
}

// ResourceURL resolves a bundled resource under where.Resources().
func ResourceURL(name, extension string) (*url.URL, error) {
	extension = strings.TrimPrefix(extension, ".")
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("%w: bad resource name %q", ErrInvalidSource, name)
	}

	file := name
	if extension != "" {
		file += "." + extension
	}

	return LocalURL(filepath.Join(where.Resources(), file))
}
