package imgur

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ccollins476ad/imgfetch/download"
	"github.com/koffeinsource/go-imgur"
	log "github.com/sirupsen/logrus"
)

const (
	clientID = "ab1802d70cb1deb"

	defaultSiteBase = "https://imgur.com"
	defaultAPIBase  = "https://api.imgur.com"
	imageBase       = "https://i.imgur.com/"

	hashLen = 7
)

var apiHeader = http.Header{
	"Authorization": []string{"Client-ID " + clientID},
	"Referer":       []string{"https://imgur.com/"},
	"Origin":        []string{"https://imgur.com"},
	"User-Agent":    []string{download.UserAgent},
}

type albumInfoDataWrapper struct {
	AI      *imgur.AlbumInfo `json:"data"`
	Success bool             `json:"success"`
	Status  int              `json:"status"`
}

// Expander resolves imgur albums and image pages. It implements the
// media.Expander interface.
type Expander struct {
	hc       *http.Client
	siteBase string
	apiBase  string
}

func NewExpander(hc *http.Client) *Expander {
	return &Expander{
		hc:       hc,
		siteBase: defaultSiteBase,
		apiBase:  defaultAPIBase,
	}
}

// Expand handles two url forms:
//
//	https://imgur.com/a/<album_hash>  every image in the album
//	https://imgur.com/<image_id>      the image itself
//
// Direct links (https://i.imgur.com/...) are left alone. See
// media.Expander#Expand for API details.
func (e *Expander) Expand(ctx context.Context, u string) ([]string, error) {
	albumPrefix := e.siteBase + "/a/"
	if strings.HasPrefix(u, albumPrefix) {
		hash, err := albumHash(strings.TrimPrefix(u, albumPrefix))
		if err != nil {
			return nil, err
		}
		return e.albumLinks(ctx, hash)
	}

	imageID := strings.TrimPrefix(u, e.siteBase+"/")
	if imageID != u && len(imageID) == hashLen && !strings.ContainsAny(imageID, "/?#.") {
		return []string{imageBase + imageID + ".jpeg"}, nil
	}

	return nil, nil
}

// albumHash extracts the album hash from the part of an album url following
// "/a/". Album slugs may carry a title in front of the hash
// (e.g., "my-trip-AbCdEfG").
func albumHash(trimmed string) (string, error) {
	if i := strings.IndexAny(trimmed, "?#/"); i >= 0 {
		trimmed = trimmed[:i]
	}

	if len(trimmed) < hashLen {
		return "", fmt.Errorf("imgur album hash length too short: have=%d want=%d hash=%s", len(trimmed), hashLen, trimmed)
	}
	if len(trimmed) > hashLen {
		hash := trimmed[len(trimmed)-hashLen:]
		log.Debugf("removing imgur album prefix: %s --> %s", trimmed, hash)
		trimmed = hash
	}

	return trimmed, nil
}

// albumLinks asks the imgur api for the album with the given hash and returns
// the urls of all its images.
func (e *Expander) albumLinks(ctx context.Context, hash string) ([]string, error) {
	log.Debugf("scanning imgur album: %s", hash)

	b, err := download.Get(ctx, e.hc, e.apiBase+"/3/album/"+hash, apiHeader)
	if err != nil {
		return nil, err
	}

	aidw := &albumInfoDataWrapper{}
	err = json.Unmarshal(b, aidw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode album info: %w", err)
	}

	if !aidw.Success || aidw.AI == nil {
		return nil, fmt.Errorf("album info response has success=false: status=%d", aidw.Status)
	}

	var links []string
	for _, img := range aidw.AI.Images {
		log.Debugf("detected imgur album image link: %s", img.Link)
		links = append(links, img.Link)
	}

	if len(links) == 0 {
		return nil, fmt.Errorf("imgur album contains 0 images: hash=%s", hash)
	}

	return links, nil
}
