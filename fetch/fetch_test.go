package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ccollins476ad/imgfetch/content"
	"github.com/ccollins476ad/imgfetch/dedup"
	"github.com/ccollins476ad/imgfetch/download"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDir = "/imgs"

var testNow = time.Unix(1700000000, 0)

// image serves body with the given content type on both HEAD and GET.
func image(contentType string, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		if r.Method == http.MethodGet {
			w.Write([]byte(body))
		}
	}
}

type testEnv struct {
	srv *httptest.Server
	mux *http.ServeMux
	fs  afero.Fs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testEnv{
		srv: srv,
		mux: mux,
		fs:  afero.NewMemMapFs(),
	}
}

func (e *testEnv) url(path string) string {
	return e.srv.URL + path
}

func (e *testEnv) fetcher(opts ...Option) *Fetcher {
	base := []Option{
		WithFs(e.fs),
		WithHTTPClient(e.srv.Client()),
		WithClock(func() time.Time { return testNow }),
	}
	return New(testDir, append(base, opts...)...)
}

func (e *testEnv) files(t *testing.T) map[string]string {
	t.Helper()

	files := map[string]string{}
	infos, err := afero.ReadDir(e.fs, testDir)
	if os.IsNotExist(err) {
		return files
	}
	require.NoError(t, err)

	for _, info := range infos {
		b, err := afero.ReadFile(e.fs, testDir+"/"+info.Name())
		require.NoError(t, err)
		files[info.Name()] = string(b)
	}
	return files
}

func TestFetchOneSaves(t *testing.T) {
	env := newTestEnv(t)
	env.mux.Handle("/pics/cat.png", image("image/png", "png-bytes"))
	f := env.fetcher()

	o := f.FetchOne(context.Background(), env.url("/pics/cat.png"))

	require.True(t, o.OK(), o.Message())
	assert.Equal(t, StatusSaved, o.Status)
	assert.Equal(t, KindNone, o.Kind)
	assert.Equal(t, testDir+"/cat.png", o.Path)
	assert.Equal(t, int64(len("png-bytes")), o.Size)
	assert.NoError(t, o.ProbeErr)

	assert.Equal(t, map[string]string{"cat.png": "png-bytes"}, env.files(t))
	assert.True(t, f.Index().Contains(dedup.Sum([]byte("png-bytes"))))
}

func TestFetchOneGeneratedName(t *testing.T) {
	env := newTestEnv(t)
	env.mux.Handle("/image", image("image/png; charset=binary", "generated"))
	f := env.fetcher()

	o := f.FetchOne(context.Background(), env.url("/image"))

	require.True(t, o.OK(), o.Message())
	assert.Equal(t, testDir+"/ubuntu_image_1700000000.png", o.Path)
}

func TestFetchOneDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.mux.Handle("/a.jpg", image("image/jpeg", "same"))
	env.mux.Handle("/b.jpg", image("image/jpeg", "same"))
	f := env.fetcher()

	first := f.FetchOne(context.Background(), env.url("/a.jpg"))
	require.True(t, first.OK(), first.Message())

	second := f.FetchOne(context.Background(), env.url("/b.jpg"))
	assert.False(t, second.OK())
	assert.Equal(t, StatusDuplicate, second.Status)
	assert.Equal(t, KindDuplicateContent, second.Kind)
	assert.Equal(t, "Duplicate image", second.Message())

	assert.Equal(t, map[string]string{"a.jpg": "same"}, env.files(t))
}

func TestFetchOneDuplicateOfExistingFile(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, afero.WriteFile(env.fs, testDir+"/old.gif", []byte("gif-bytes"), 0644))
	env.mux.Handle("/new.gif", image("image/gif", "gif-bytes"))
	f := env.fetcher()

	o := f.FetchOne(context.Background(), env.url("/new.gif"))

	assert.Equal(t, StatusDuplicate, o.Status)
	assert.Equal(t, map[string]string{"old.gif": "gif-bytes"}, env.files(t))
}

func TestFetchOneUnsafeType(t *testing.T) {
	for _, ct := range []string{"text/html", "application/octet-stream", "image/tiff", ""} {
		t.Run(ct, func(t *testing.T) {
			env := newTestEnv(t)
			env.mux.Handle("/evil.png", image(ct, "<script>"))
			f := env.fetcher()

			o := f.FetchOne(context.Background(), env.url("/evil.png"))

			assert.Equal(t, StatusRejected, o.Status)
			assert.Equal(t, KindUnsafeContentType, o.Kind)
			assert.True(t, errors.Is(o.Err, content.ErrUnsafeType))
			assert.Contains(t, o.Message(), "Safety check failed")
			assert.Empty(t, env.files(t))
			assert.Equal(t, 0, f.Index().Len())
		})
	}
}

func TestFetchOneDeclaredTooLarge(t *testing.T) {
	env := newTestEnv(t)
	env.mux.HandleFunc("/huge.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", strconv.Itoa(content.MaxSize+1))
		w.WriteHeader(http.StatusOK)
	})
	f := env.fetcher()

	o := f.FetchOne(context.Background(), env.url("/huge.jpg"))

	assert.Equal(t, StatusRejected, o.Status)
	assert.Equal(t, KindContentTooLarge, o.Kind)
	assert.Empty(t, env.files(t))
}

func TestFetchOneBodyTooLarge(t *testing.T) {
	env := newTestEnv(t)
	env.mux.HandleFunc("/chunked.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		// Flushing before the body forces chunked encoding: no Content-Length.
		w.(http.Flusher).Flush()
		w.Write([]byte("0123456789"))
	})
	f := env.fetcher(WithMaxSize(8))

	o := f.FetchOne(context.Background(), env.url("/chunked.png"))

	assert.Equal(t, StatusRejected, o.Status)
	assert.Equal(t, KindContentTooLarge, o.Kind)
	assert.Empty(t, env.files(t))
}

func TestFetchOneFilenameCollision(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, afero.WriteFile(env.fs, testDir+"/foo.jpg", []byte("original"), 0644))
	env.mux.Handle("/foo.jpg", image("image/jpeg", "different"))
	env.mux.Handle("/other/foo.jpg", image("image/jpeg", "different again"))
	f := env.fetcher()

	o := f.FetchOne(context.Background(), env.url("/foo.jpg"))
	require.True(t, o.OK(), o.Message())
	assert.Equal(t, testDir+"/foo_1.jpg", o.Path)

	o = f.FetchOne(context.Background(), env.url("/other/foo.jpg"))
	require.True(t, o.OK(), o.Message())
	assert.Equal(t, testDir+"/foo_2.jpg", o.Path)

	assert.Equal(t, map[string]string{
		"foo.jpg":   "original",
		"foo_1.jpg": "different",
		"foo_2.jpg": "different again",
	}, env.files(t))
}

func TestFetchOneHTTPError(t *testing.T) {
	env := newTestEnv(t)
	f := env.fetcher()

	o := f.FetchOne(context.Background(), env.url("/missing.png"))

	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, KindHTTPStatus, o.Kind)
	assert.Contains(t, o.Message(), "404")
	assert.Error(t, o.ProbeErr)
}

func TestFetchOneUnreachable(t *testing.T) {
	env := newTestEnv(t)
	f := env.fetcher()
	u := env.url("/gone.png")
	env.srv.Close()

	o := f.FetchOne(context.Background(), u)

	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, KindUnreachable, o.Kind)
	assert.Equal(t, "Connection error - could not reach the server", o.Message())
}

func TestFetchOneUntrustedCertificate(t *testing.T) {
	env := newTestEnv(t)
	tlsSrv := httptest.NewTLSServer(image("image/png", "secure"))
	defer tlsSrv.Close()

	// A client that doesn't trust the test server's self-signed certificate.
	f := env.fetcher(WithHTTPClient(&http.Client{}))

	o := f.FetchOne(context.Background(), tlsSrv.URL+"/cert.png")

	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, KindUnreachable, o.Kind)
	assert.Equal(t, "Connection error - could not reach the server", o.Message())
	assert.Empty(t, env.files(t))
}

func TestFetchOneTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.mux.HandleFunc("/slow.png", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	f := env.fetcher(WithTimeouts(20*time.Millisecond, 50*time.Millisecond))

	o := f.FetchOne(context.Background(), env.url("/slow.png"))

	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, KindTimeout, o.Kind)
	assert.Error(t, o.ProbeErr)
}

func TestFetchOneProbeFailureIsAdvisory(t *testing.T) {
	env := newTestEnv(t)
	env.mux.HandleFunc("/nohead.png", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		image("image/png", "nohead").ServeHTTP(w, r)
	})
	env.mux.HandleFunc("/liar.png", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "text/html")
			return
		}
		image("image/png", "liar").ServeHTTP(w, r)
	})
	f := env.fetcher()

	o := f.FetchOne(context.Background(), env.url("/nohead.png"))
	require.True(t, o.OK(), o.Message())
	var se *download.StatusError
	assert.ErrorAs(t, o.ProbeErr, &se)

	o = f.FetchOne(context.Background(), env.url("/liar.png"))
	require.True(t, o.OK(), o.Message())
	assert.ErrorIs(t, o.ProbeErr, content.ErrUnsafeType)
}

func TestFetchOneSendsUserAgent(t *testing.T) {
	env := newTestEnv(t)
	var mu sync.Mutex
	var agents []string
	env.mux.HandleFunc("/ua.png", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.Method+" "+r.Header.Get("User-Agent"))
		mu.Unlock()
		image("image/png", "ua").ServeHTTP(w, r)
	})
	f := env.fetcher()

	o := f.FetchOne(context.Background(), env.url("/ua.png"))

	require.True(t, o.OK(), o.Message())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"HEAD " + download.UserAgent,
		"GET " + download.UserAgent,
	}, agents)
}

func TestFetchOnePermissionDenied(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.fs.MkdirAll(testDir, 0755))
	env.fs = afero.NewReadOnlyFs(env.fs)
	env.mux.Handle("/ro.png", image("image/png", "read-only"))
	f := env.fetcher()

	o := f.FetchOne(context.Background(), env.url("/ro.png"))

	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, KindPermissionDenied, o.Kind)
	assert.Equal(t, 0, f.Index().Len())
}

// brokenFs cannot rename, so every save fails after the temp file is written.
type brokenFs struct {
	afero.Fs
}

func (b *brokenFs) Rename(oldname, newname string) error {
	return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: errors.New("io error")}
}

func TestFetchOneFailedWriteNotRecorded(t *testing.T) {
	env := newTestEnv(t)
	env.mux.Handle("/a.png", image("image/png", "content"))
	base := env.fs
	env.fs = &brokenFs{Fs: base}
	f := env.fetcher()

	o := f.FetchOne(context.Background(), env.url("/a.png"))

	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, KindUnexpected, o.Kind)
	assert.Equal(t, 0, f.Index().Len())
	assert.Empty(t, env.files(t))

	// Once the disk recovers the same content is saved rather than skipped.
	f.store = download.NewStore(base, testDir)
	o = f.FetchOne(context.Background(), env.url("/a.png"))
	require.True(t, o.OK(), o.Message())
}

func TestFetchOneBadURL(t *testing.T) {
	env := newTestEnv(t)
	f := env.fetcher()

	o := f.FetchOne(context.Background(), "not-a-url")

	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, KindUnexpected, o.Kind)
	assert.Contains(t, o.Message(), "An unexpected error occurred")
}
