// Package web fetches html pages and picks image links out of them.
package web

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/ccollins476ad/imgfetch/download"
	"golang.org/x/net/html"
)

// MaxPageSize is the largest html page FetchDocument will read.
const MaxPageSize = 10 << 20

// FetchDocument retrieves the html page at url=u and parses it.
func FetchDocument(ctx context.Context, hc *http.Client, u string, header http.Header) (*html.Node, error) {
	rsp, err := download.GetResponse(ctx, hc, u, header)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close()

	b, err := download.ReadAllLimit(rsp.Body, MaxPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read page: url=%s err=%w", u, err)
	}

	doc, err := html.Parse(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: url=%s err=%w", u, err)
	}

	return doc, nil
}
