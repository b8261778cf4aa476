// Package fetch downloads single images and batches of images into a
// directory, skipping anything unsafe or already present.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ccollins476ad/imgfetch/content"
	"github.com/ccollins476ad/imgfetch/dedup"
	"github.com/ccollins476ad/imgfetch/download"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	DefaultDir          = "Fetched_Images"
	DefaultProbeTimeout = 10 * time.Second
	DefaultFetchTimeout = 30 * time.Second
)

// Fetcher downloads images into one directory. It owns the http client, the
// request header, and the duplicate index for the lifetime of a run. A
// Fetcher is meant to be driven by a single goroutine.
type Fetcher struct {
	hc     *http.Client
	header http.Header
	store  *download.Store
	index  *dedup.Index

	probeTimeout time.Duration
	fetchTimeout time.Duration
	maxSize      int64
	now          func() time.Time
}

type Option func(*Fetcher)

// WithFs makes the fetcher read and write through fs instead of the OS
// filesystem.
func WithFs(fs afero.Fs) Option {
	return func(f *Fetcher) {
		f.store = download.NewStore(fs, f.store.Dir())
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) {
		f.hc = hc
	}
}

func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.header.Set("User-Agent", ua)
	}
}

// WithTimeouts overrides the HEAD probe and GET timeouts.
func WithTimeouts(probe time.Duration, fetch time.Duration) Option {
	return func(f *Fetcher) {
		f.probeTimeout = probe
		f.fetchTimeout = fetch
	}
}

// WithMaxSize overrides the largest accepted image size in bytes.
func WithMaxSize(n int64) Option {
	return func(f *Fetcher) {
		f.maxSize = n
	}
}

// WithClock overrides the time source used for generated filenames.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		f.now = now
	}
}

// New creates a fetcher that saves into dir. It scans dir once to seed the
// duplicate index.
func New(dir string, opts ...Option) *Fetcher {
	f := &Fetcher{
		hc:           &http.Client{},
		header:       download.DefaultHeader(),
		store:        download.NewStore(afero.NewOsFs(), dir),
		probeTimeout: DefaultProbeTimeout,
		fetchTimeout: DefaultFetchTimeout,
		maxSize:      content.MaxSize,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}

	f.index = dedup.Load(f.store.Fs(), dir)
	return f
}

// Dir returns the directory images are saved to.
func (f *Fetcher) Dir() string {
	return f.store.Dir()
}

// Index returns the fetcher's duplicate index.
func (f *Fetcher) Index() *dedup.Index {
	return f.index
}

// FetchOne downloads the image at url u. It never returns an error: every
// failure is reported in the returned Outcome.
func (f *Fetcher) FetchOne(ctx context.Context, u string) (o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o = failure(u, fmt.Errorf("panic: %v", r))
		}
	}()

	log.Debugf("fetching: %s", u)

	probeErr := f.probe(ctx, u)
	if probeErr != nil {
		log.WithError(probeErr).Debugf("head request failed, proceeding with get: url=%s", u)
	}

	o = f.fetch(ctx, u)
	o.ProbeErr = probeErr
	return o
}

// probe issues a HEAD request and classifies its headers. It is advisory:
// the result is only ever logged and reported.
func (f *Fetcher) probe(ctx context.Context, u string) error {
	ctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()

	rsp, err := download.Head(ctx, f.hc, u, f.header)
	if err != nil {
		return err
	}

	res, err := content.ClassifyLimit(responseHeader(rsp), f.maxSize)
	if err != nil {
		return err
	}

	log.Debugf("content verified: url=%s type=%s", u, res.MediaType)
	return nil
}

func (f *Fetcher) fetch(ctx context.Context, u string) Outcome {
	ctx, cancel := context.WithTimeout(ctx, f.fetchTimeout)
	defer cancel()

	rsp, err := download.GetResponse(ctx, f.hc, u, f.header)
	if err != nil {
		return failure(u, err)
	}
	defer rsp.Body.Close()

	res, err := content.ClassifyLimit(responseHeader(rsp), f.maxSize)
	if err != nil {
		return failure(u, err)
	}

	b, err := download.ReadAllLimit(rsp.Body, f.maxSize)
	if err != nil {
		return failure(u, err)
	}

	digest := dedup.Sum(b)
	if f.index.Contains(digest) {
		log.Debugf("duplicate content: url=%s digest=%s", u, digest)
		return duplicate(u)
	}

	filename := download.ResolveFilename(u, res.MediaType, f.now())
	path, err := f.store.SaveFile(filename, b)
	if err != nil {
		return failure(u, err)
	}

	// Only after the file is in place.
	f.index.Record(digest)

	return saved(u, path, int64(len(b)))
}

// responseHeader returns the response's header, filling in Content-Length
// from the parsed value when the header itself is absent.
func responseHeader(rsp *http.Response) http.Header {
	h := rsp.Header
	if h.Get("Content-Length") == "" && rsp.ContentLength >= 0 {
		h = h.Clone()
		h.Set("Content-Length", strconv.FormatInt(rsp.ContentLength, 10))
	}
	return h
}
