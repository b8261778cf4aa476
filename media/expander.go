// Package media turns links to image-host pages and albums into direct image
// urls.
package media

import "context"

// Expander resolves a page or album url into the urls of the images it shows.
// Most expander implementations only know how to access a particular web site
// (e.g., imgur).
type Expander interface {
	// Expand returns the direct image urls behind url=u. It returns nil, nil
	// if it does not recognize u; callers should then use u as-is.
	Expand(ctx context.Context, u string) ([]string, error)
}

// Chain tries each expander in turn and returns the result of the first one
// that recognizes the url.
type Chain []Expander

func (c Chain) Expand(ctx context.Context, u string) ([]string, error) {
	for _, e := range c {
		urls, err := e.Expand(ctx, u)
		if urls != nil || err != nil {
			return urls, err
		}
	}
	return nil, nil
}
