package postimg

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/ccollins476ad/imgfetch/download"
	"github.com/ccollins476ad/imgfetch/web"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

const defaultSiteBase = "https://postimg.cc"

var linkRegexp = regexp.MustCompile(`background-image:\s*url\('(https://i\.postimg\.cc/[^']+)'\)`)

// Expander resolves postimg galleries. It implements the media.Expander
// interface.
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

// Expand retrieves the postimg gallery at url=u and returns the full-size
// image of every thumbnail. See media.Expander#Expand for API details.
func (e *Expander) Expand(ctx context.Context, u string) ([]string, error) {
	if !strings.HasPrefix(u, e.siteBase+"/gallery/") {
		return nil, nil
	}

	log.Debugf("scanning postimg gallery: %s", u)

	doc, err := web.FetchDocument(ctx, e.hc, u, download.DefaultHeader())
	if err != nil {
		return nil, err
	}

	links := parseGallery(doc)
	if len(links) == 0 {
		return nil, fmt.Errorf("postimg gallery contains 0 images: url=%s", u)
	}

	return links, nil
}

// parseGallery extracts the urls of all images from a postimg gallery. Each
// thumbnail is a link whose style carries the full image as its background.
func parseGallery(doc *html.Node) []string {
	var links []string
	seen := map[string]struct{}{}

	web.ForEachLink(doc, func(n *html.Node) error {
		matches := linkRegexp.FindStringSubmatch(web.Attr(n, "style"))
		if len(matches) < 2 {
			return nil
		}

		link := matches[1]
		if _, ok := seen[link]; !ok {
			seen[link] = struct{}{}
			links = append(links, link)
		}
		return nil
	})

	return links
}
