package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// UserAgent identifies imgfetch to the servers it talks to.
const UserAgent = "Ubuntu-Image-Fetcher/1.0 (Respectful Community Tool)"

// ErrBodyTooLarge is returned by ReadAllLimit when the body exceeds the limit.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// StatusError is returned when a server answers with a non-2xx status.
type StatusError struct {
	Code   int
	Status string
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s for url: %s", e.Status, e.URL)
}

// DefaultHeader returns the header sent with every imgfetch request.
func DefaultHeader() http.Header {
	return http.Header{
		"User-Agent": []string{UserAgent},
	}
}

func newRequest(ctx context.Context, method string, u string, header http.Header) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

func checkStatus(rsp *http.Response, u string) error {
	if rsp.StatusCode < 200 || rsp.StatusCode >= 300 {
		return &StatusError{
			Code:   rsp.StatusCode,
			Status: rsp.Status,
			URL:    u,
		}
	}
	return nil
}

// Head performs an http HEAD with url=u and returns the final response
// (redirects are followed by the client). The response has no body. Any non-2xx
// status is reported as a *StatusError.
func Head(ctx context.Context, hc *http.Client, u string, header http.Header) (*http.Response, error) {
	log.Debugf("head: %s", u)

	req, err := newRequest(ctx, http.MethodHead, u, header)
	if err != nil {
		return nil, err
	}

	rsp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	rsp.Body.Close()

	err = checkStatus(rsp, u)
	if err != nil {
		return nil, err
	}

	return rsp, nil
}

// GetResponse performs an http GET with url=u using the supplied client and
// header. On success the caller owns the response body. Any non-2xx status is
// reported as a *StatusError.
func GetResponse(ctx context.Context, hc *http.Client, u string, header http.Header) (*http.Response, error) {
	log.Debugf("get: %s", u)

	req, err := newRequest(ctx, http.MethodGet, u, header)
	if err != nil {
		return nil, err
	}

	rsp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}

	err = checkStatus(rsp, u)
	if err != nil {
		rsp.Body.Close()
		return nil, err
	}

	return rsp, nil
}

// GetBody performs an http GET and returns only the response body.
func GetBody(ctx context.Context, hc *http.Client, u string, header http.Header) (io.ReadCloser, error) {
	rsp, err := GetResponse(ctx, hc, u, header)
	if err != nil {
		return nil, err
	}
	return rsp.Body, nil
}

// Get calls GetBody(), then reads the full response and returns the result.
func Get(ctx context.Context, hc *http.Client, u string, header http.Header) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	body, err := GetBody(ctx, hc, u, header)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return io.ReadAll(body)
}

// ReadAllLimit reads r to EOF. It fails with ErrBodyTooLarge as soon as more
// than limit bytes have been read.
func ReadAllLimit(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, ErrBodyTooLarge
	}
	return b, nil
}
