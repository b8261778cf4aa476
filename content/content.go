package content

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// MaxSize is the largest image, in bytes, that imgfetch accepts.
const MaxSize = 50 * 1024 * 1024

var (
	ErrUnsafeType = errors.New("unsafe content type")
	ErrTooLarge   = errors.New("file too large")
)

// extensions maps each allowed media type to the extension used when a
// filename has to be synthesized.
var extensions = map[string]string{
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/bmp":     ".bmp",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

const defaultExtension = ".jpg"

// UnsafeTypeError reports a declared content type outside the allow-list.
type UnsafeTypeError struct {
	ContentType string
}

func (e *UnsafeTypeError) Error() string {
	return fmt.Sprintf("unsafe content type: %s", e.ContentType)
}

func (e *UnsafeTypeError) Unwrap() error {
	return ErrUnsafeType
}

// TooLargeError reports a declared or actual size over the limit.
type TooLargeError struct {
	Size  int64
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("file too large: %d bytes (limit=%d)", e.Size, e.Limit)
}

func (e *TooLargeError) Unwrap() error {
	return ErrTooLarge
}

// Result is what Classify learned from a set of response headers.
type Result struct {
	MediaType string // Lower-cased, parameters stripped.
	Length    int64  // Declared length; -1 if unknown.
}

// MediaType returns the lower-cased media type of a Content-Type header value,
// without parameters such as charset.
func MediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// IsAllowed returns true if the given content type is an accepted image
// format.
func IsAllowed(contentType string) bool {
	_, ok := extensions[MediaType(contentType)]
	return ok
}

// Extension returns the filename extension (including the dot) for the given
// content type. It returns ".jpg" for anything it doesn't recognize.
func Extension(contentType string) string {
	ext, ok := extensions[MediaType(contentType)]
	if !ok {
		return defaultExtension
	}
	return ext
}

// Classify checks the Content-Type and Content-Length headers of a response
// against the image allow-list and MaxSize. A missing or unparsable
// Content-Length is not an error; the size is simply unknown.
func Classify(h http.Header) (Result, error) {
	return ClassifyLimit(h, MaxSize)
}

// ClassifyLimit is Classify with a caller-supplied size limit.
func ClassifyLimit(h http.Header, limit int64) (Result, error) {
	res := Result{
		MediaType: MediaType(h.Get("Content-Type")),
		Length:    -1,
	}

	if _, ok := extensions[res.MediaType]; !ok {
		return res, &UnsafeTypeError{ContentType: res.MediaType}
	}

	if cl := strings.TrimSpace(h.Get("Content-Length")); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err == nil {
			res.Length = n
		}
	}

	if res.Length > limit {
		return res, &TooLargeError{Size: res.Length, Limit: limit}
	}

	return res, nil
}
