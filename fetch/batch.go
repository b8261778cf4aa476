package fetch

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultDelay is the pause between consecutive requests in a batch.
const DefaultDelay = time.Second

// URLFetcher fetches a single url. *Fetcher implements it.
type URLFetcher interface {
	FetchOne(ctx context.Context, u string) Outcome
}

// Runner fetches a list of urls one at a time, in order.
type Runner struct {
	f        URLFetcher
	delay    time.Duration
	callback func(i int, n int, o Outcome)
	sleep    func(ctx context.Context, d time.Duration)
}

type RunnerOption func(*Runner)

// WithDelay sets the pause inserted between consecutive requests.
func WithDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.delay = d
	}
}

// WithCallback registers a function that is called after each url with its
// zero-based index, the batch size, and the outcome.
func WithCallback(cb func(i int, n int, o Outcome)) RunnerOption {
	return func(r *Runner) {
		r.callback = cb
	}
}

func NewRunner(f URLFetcher, opts ...RunnerOption) *Runner {
	r := &Runner{
		f:        f,
		delay:    DefaultDelay,
		callback: func(int, int, Outcome) {},
		sleep:    sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run fetches every url exactly once, in order, regardless of earlier
// failures. It returns the number of saved images and the number of urls that
// did not produce a saved image; the two always sum to len(urls).
func (r *Runner) Run(ctx context.Context, urls []string) (successful int, failed int) {
	log.Debugf("preparing to fetch %d images", len(urls))

	for i, u := range urls {
		u = strings.TrimSpace(u)

		o := r.f.FetchOne(ctx, u)
		if o.OK() {
			successful++
		} else {
			failed++
		}
		r.callback(i, len(urls), o)

		// Be polite to the servers; no pause after the last one.
		if i < len(urls)-1 {
			r.sleep(ctx, r.delay)
		}
	}

	log.Debugf("batch done: successful=%d failed=%d", successful, failed)
	return successful, failed
}

// FetchBatch fetches urls with the default pacing. See Runner.Run.
func (f *Fetcher) FetchBatch(ctx context.Context, urls []string) (int, int) {
	return NewRunner(f).Run(ctx, urls)
}

// sleep pauses for d, returning early if ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
