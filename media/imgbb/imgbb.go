package imgbb

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ccollins476ad/imgfetch/download"
	"github.com/ccollins476ad/imgfetch/web"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

const defaultSiteBase = "https://ibb.co"

// Expander resolves imgbb albums and image pages. It implements the
// media.Expander interface.
type Expander struct {
	hc       *http.Client
	siteBase string
}

func NewExpander(hc *http.Client) *Expander {
	return &Expander{
		hc:       hc,
		siteBase: defaultSiteBase,
	}
}

// Expand retrieves the imgbb page at url=u and returns the images it embeds.
// It handles albums and individual image pages. See media.Expander#Expand for
// API details.
func (e *Expander) Expand(ctx context.Context, u string) ([]string, error) {
	if strings.HasPrefix(u, e.siteBase+"/album/") {
		return e.expandAlbum(ctx, u)
	}
	if strings.HasPrefix(u, e.siteBase+"/") && len(u) > len(e.siteBase)+1 {
		return e.expandImage(ctx, u)
	}
	return nil, nil
}

// embeddedImageURLs returns the absolute https urls of all images embedded in
// an imgbb page. Site assets are served relative to the page and are left out.
func embeddedImageURLs(doc *html.Node) []string {
	var urls []string
	for _, src := range web.EmbeddedImageURLs(doc) {
		if strings.HasPrefix(src, "https://") {
			urls = append(urls, src)
		}
	}
	return urls
}

// parseAlbum extracts the urls of all images from an imgbb album.
func parseAlbum(doc *html.Node) ([]string, error) {
	urls := embeddedImageURLs(doc)
	if len(urls) == 0 {
		return nil, fmt.Errorf("imgbb album contains 0 embedded image urls")
	}

	return urls, nil
}

// parseImage extracts the single image url from an imgbb image page.
func parseImage(doc *html.Node) (string, error) {
	var target string
	for _, iu := range embeddedImageURLs(doc) {
		if target != "" && iu != target {
			return "", fmt.Errorf("imgbb page contains multiple image links: first=%s second=%s", target, iu)
		}
		target = iu
	}
	if target == "" {
		return "", fmt.Errorf("imgbb page lacks image link")
	}

	return target, nil
}

func (e *Expander) expandAlbum(ctx context.Context, u string) ([]string, error) {
	log.Debugf("scanning imgbb album: %s", u)

	doc, err := web.FetchDocument(ctx, e.hc, u, download.DefaultHeader())
	if err != nil {
		return nil, err
	}

	return parseAlbum(doc)
}

func (e *Expander) expandImage(ctx context.Context, u string) ([]string, error) {
	log.Debugf("scanning imgbb page: %s", u)

	doc, err := web.FetchDocument(ctx, e.hc, u, download.DefaultHeader())
	if err != nil {
		return nil, err
	}

	target, err := parseImage(doc)
	if err != nil {
		return nil, err
	}

	return []string{target}, nil
}
