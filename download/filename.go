package download

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ccollins476ad/imgfetch/content"
	"github.com/flytam/filenamify"
)

const (
	generatedPrefix = "ubuntu_image_"

	// Leaves room for a collision suffix under the usual 255 byte limit.
	maxNameLength = 240
)

// ResolveFilename returns the local filename imgfetch would use to save the
// image at rawURL. It prefers the last segment of the url's path. When that is
// missing, lacks an extension, or sanitizes away to nothing, it falls back to
// "ubuntu_image_<unix time>" with an extension derived from contentType. The
// result only contains characters in [A-Za-z0-9._-].
func ResolveFilename(rawURL string, contentType string, now time.Time) string {
	generated := generatedPrefix + fmt.Sprint(now.Unix()) + content.Extension(contentType)

	candidate := lastSegment(rawURL)
	if candidate == "" || !strings.Contains(candidate, ".") {
		return generated
	}

	// Leading dots are dropped so a saved image is never hidden and never
	// mistaken for an in-flight temp file. This also rules out "." and "..".
	name := strings.TrimLeft(Sanitize(candidate), ".")
	if name == "" || !strings.Contains(name, ".") {
		return generated
	}

	return name
}

// lastSegment returns the final segment of rawURL's path as it appears in the
// url, percent-escapes included, or "" if the url can't be parsed. An escaped
// slash stays part of the segment.
func lastSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	p := u.EscapedPath()
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return p
}

// Sanitize makes name safe to use as a file in the download directory: every
// character outside [A-Za-z0-9._-] is removed. Names longer than
// maxNameLength lose the end of their stem; the extension is kept.
func Sanitize(name string) string {
	// filenamify marks what it rejects (reserved and control characters, "."
	// and "..") with "!", which the filter below removes along with everything
	// else that isn't allowed.
	if s, err := filenamify.Filenamify(name, filenamify.Options{
		Replacement: "!",
		MaxLength:   len(name) + 1,
	}); err == nil {
		name = s
	}

	var sb strings.Builder
	for _, c := range name {
		if isSafeRune(c) {
			sb.WriteRune(c)
		}
	}

	return truncateStem(sb.String(), maxNameLength)
}

// truncateStem shortens an ascii name to at most n bytes, cutting from the end
// of the stem so the extension survives.
func truncateStem(name string, n int) string {
	if len(name) <= n {
		return name
	}

	ext := path.Ext(name)
	if len(ext) >= n {
		return name[:n]
	}
	return name[:n-len(ext)] + ext
}

func isSafeRune(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z':
	case c >= 'A' && c <= 'Z':
	case c >= '0' && c <= '9':
	case c == '.' || c == '-' || c == '_':
	default:
		return false
	}
	return true
}
