package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/ccollins476ad/imgfetch/fetch"
	"github.com/ccollins476ad/imgfetch/media"
	log "github.com/sirupsen/logrus"
)

// Exit codes.
const (
	exitOK      = 0
	exitUsage   = 1
	exitFailure = 2
)

func printFatalError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) int {
	cfg, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		printFatalError(stderr, err)
		return exitUsage
	}

	if cfg.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	hc := &http.Client{}
	f := fetch.New(cfg.Dir, fetch.WithHTTPClient(hc))
	log.Debugf("loaded %d known images from %s", f.Index().Len(), f.Dir())

	e := newExpander(hc)

	if cfg.Interactive() {
		interact(ctx, cfg, stdin, stdout, f, e)
		return exitOK
	}

	urls, err := collectURLs(cfg)
	if err != nil {
		printFatalError(stderr, err)
		return exitUsage
	}
	if len(urls) == 0 {
		printFatalError(stderr, fmt.Errorf("no urls to fetch"))
		return exitUsage
	}

	urls = expandURLs(ctx, e, urls, cfg.Jobs)

	_, failed := runBatch(ctx, stdout, f, urls, cfg.Delay)
	if failed > 0 {
		return exitFailure
	}
	return exitOK
}

// interact runs the menu loop until the user chooses to exit or input ends.
func interact(ctx context.Context, cfg *Config, stdin io.Reader, w io.Writer, f fetch.URLFetcher, e media.Expander) {
	sc := bufio.NewScanner(stdin)

	// readLine returns false at end of input.
	readLine := func() (string, bool) {
		if !sc.Scan() {
			return "", false
		}
		return strings.TrimSpace(sc.Text()), true
	}

	fmt.Fprintf(w, "Image Fetcher\n")
	fmt.Fprintf(w, "Saving images to %s\n", cfg.Dir)

	for ctx.Err() == nil {
		fmt.Fprintf(w, "\nChoose an option:\n")
		fmt.Fprintf(w, "1. Fetch single image\n")
		fmt.Fprintf(w, "2. Fetch multiple images\n")
		fmt.Fprintf(w, "3. Exit\n")
		fmt.Fprintf(w, "\nEnter your choice (1-3): ")

		choice, ok := readLine()
		if !ok {
			fmt.Fprintln(w)
			return
		}

		switch choice {
		case "1":
			fmt.Fprintf(w, "\nPlease enter the image URL: ")
			u, ok := readLine()
			if !ok {
				fmt.Fprintln(w)
				return
			}
			if u == "" {
				fmt.Fprintf(w, "Please enter a valid URL\n")
				continue
			}
			fetchSingle(ctx, cfg, w, f, e, u)

		case "2":
			fmt.Fprintf(w, "\nEnter image URLs (one per line, empty line to finish):\n")
			var urls []string
			for {
				u, ok := readLine()
				if !ok || u == "" {
					break
				}
				urls = append(urls, u)
			}

			if len(urls) == 0 {
				fmt.Fprintf(w, "No URLs provided\n")
				continue
			}

			urls = expandURLs(ctx, e, urls, cfg.Jobs)
			successful, _ := runBatch(ctx, w, f, urls, cfg.Delay)
			fmt.Fprintf(w, "\nImages saved: %d\n", successful)

		case "3":
			fmt.Fprintf(w, "\nGoodbye\n")
			return

		default:
			fmt.Fprintf(w, "Please enter 1, 2, or 3\n")
		}
	}
}

// fetchSingle fetches one url. An album url turns into a batch.
func fetchSingle(ctx context.Context, cfg *Config, w io.Writer, f fetch.URLFetcher, e media.Expander, u string) {
	urls := expandURLs(ctx, e, []string{u}, cfg.Jobs)
	if len(urls) != 1 {
		runBatch(ctx, w, f, urls, cfg.Delay)
		return
	}

	o := f.FetchOne(ctx, urls[0])
	if o.ProbeErr != nil {
		fmt.Fprintf(w, "HEAD request failed (%v), proceeded with GET\n", o.ProbeErr)
	}
	if o.OK() {
		fmt.Fprintf(w, "\nSaved %s (%d bytes)\n", o.Path, o.Size)
	} else {
		fmt.Fprintf(w, "\nFetch failed: %s\n", o.Message())
	}
}
