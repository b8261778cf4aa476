package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ccollins476ad/imgfetch/fetch"
	"github.com/ccollins476ad/imgfetch/media"
	"github.com/ccollins476ad/imgfetch/media/imgbb"
	"github.com/ccollins476ad/imgfetch/media/imgur"
	"github.com/ccollins476ad/imgfetch/media/postimg"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"mvdan.cc/xurls/v2"
)

// expandTimeout bounds a single album lookup.
const expandTimeout = 10 * time.Second

func newExpander(hc *http.Client) media.Expander {
	return media.Chain{
		imgur.NewExpander(hc),
		postimg.NewExpander(hc),
		imgbb.NewExpander(hc),
	}
}

// readURLFile extracts every url from the given file. The file may be a plain
// list or free text (e.g., markdown notes); anything that isn't a url is
// ignored.
func readURLFile(filename string) ([]string, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read url file: filename=%s err=%w", filename, err)
	}

	rx := xurls.Strict()
	return rx.FindAllString(string(b), -1), nil
}

// collectURLs returns the command line urls followed by those read from
// cfg.File.
func collectURLs(cfg *Config) ([]string, error) {
	urls := append([]string(nil), cfg.URLs...)

	if cfg.File != "" {
		fromFile, err := readURLFile(cfg.File)
		if err != nil {
			return nil, err
		}
		log.Debugf("read %d urls from %s", len(fromFile), cfg.File)
		urls = append(urls, fromFile...)
	}

	return urls, nil
}

// expandURLs replaces album and page urls with the urls of the images they
// contain. Lookups run in parallel, at most `jobs` at a time; the result keeps
// the input order. A url that fails to expand is kept as-is.
func expandURLs(ctx context.Context, e media.Expander, urls []string, jobs int) []string {
	expanded := make([][]string, len(urls))

	g := &errgroup.Group{}
	g.SetLimit(jobs)

	for i, u := range urls {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, expandTimeout)
			defer cancel()

			got, err := e.Expand(ctx, u)
			if err != nil {
				log.WithError(err).Warnf("failed to expand url, fetching it as-is: url=%s", u)
			}
			if err != nil || got == nil {
				got = []string{u}
			} else {
				log.Debugf("expanded %s into %d urls", u, len(got))
			}

			expanded[i] = got
			return nil
		})
	}

	// Workers never fail.
	g.Wait()

	var flat []string
	for _, us := range expanded {
		flat = append(flat, us...)
	}
	return flat
}

// runBatch fetches urls one at a time and prints a line per url to w. It
// returns the number of saved and failed urls.
func runBatch(ctx context.Context, w io.Writer, f fetch.URLFetcher, urls []string, delay time.Duration) (int, int) {
	fmt.Fprintf(w, "Preparing to fetch %d images...\n\n", len(urls))

	r := fetch.NewRunner(f,
		fetch.WithDelay(delay),
		fetch.WithCallback(func(i int, n int, o fetch.Outcome) {
			printOutcome(w, i, n, o)
		}),
	)
	successful, failed := r.Run(ctx, urls)

	fmt.Fprintf(w, "Summary: %d successful, %d failed\n", successful, failed)
	return successful, failed
}

func printOutcome(w io.Writer, i int, n int, o fetch.Outcome) {
	fmt.Fprintf(w, "[%d/%d] %s\n", i+1, n, o.URL)

	if o.ProbeErr != nil {
		fmt.Fprintf(w, "  HEAD request failed (%v), proceeded with GET\n", o.ProbeErr)
	}

	switch o.Status {
	case fetch.StatusSaved:
		fmt.Fprintf(w, "  Saved %s (%d bytes)\n\n", o.Path, o.Size)
	default:
		fmt.Fprintf(w, "  Failed: %s\n\n", o.Message())
	}
}
