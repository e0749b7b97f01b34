package imagemin

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/assetpipe/internal/assets"
	"github.com/leapstack-labs/assetpipe/internal/state"
	"github.com/leapstack-labs/assetpipe/internal/testutil"
)

// fakeTinyPNG upper-cases uploads, so compressed output is recognizable.
type fakeTinyPNG struct {
	server      *httptest.Server
	shrinks     atomic.Int32
	failShrinks atomic.Int32
	status      int
}

func newFakeTinyPNG(t *testing.T) *fakeTinyPNG {
	t.Helper()
	f := &fakeTinyPNG{}
	var outputs sync.Map

	mux := http.NewServeMux()
	mux.HandleFunc("POST /shrink", func(w http.ResponseWriter, r *http.Request) {
		f.shrinks.Add(1)
		user, key, ok := r.BasicAuth()
		if !ok || user != "api" || key != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"Unauthorized","message":"Credentials are invalid."}`)
			return
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		if f.failShrinks.Load() > 0 {
			f.failShrinks.Add(-1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		id := strconv.Itoa(int(f.shrinks.Load())) + "-" + hex.EncodeToString(body)
		outputs.Store(id, strings.ToUpper(string(body)))
		w.Header().Set("Location", f.server.URL+"/output/"+id)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"output":{"size":1}}`)
	})
	mux.HandleFunc("GET /output/{id}", func(w http.ResponseWriter, r *http.Request) {
		out, ok := outputs.Load(r.PathValue("id"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, out.(string))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeTinyPNG) client(key string) *Client {
	return NewClient(key, f.server.URL+"/shrink", WithRetry(3, time.Millisecond))
}

func TestClient_Shrink(t *testing.T) {
	f := newFakeTinyPNG(t)

	out, err := f.client("secret").Shrink(context.Background(), []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "PNG-BYTES", string(out))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	f := newFakeTinyPNG(t)
	f.failShrinks.Store(2)

	out, err := f.client("secret").Shrink(context.Background(), []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, "ABC", string(out))
	assert.Equal(t, int32(3), f.shrinks.Load())
}

func TestClient_GivesUpAfterRetries(t *testing.T) {
	f := newFakeTinyPNG(t)
	f.status = http.StatusTooManyRequests

	_, err := f.client("secret").Shrink(context.Background(), []byte("abc"))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, int32(4), f.shrinks.Load())
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	f := newFakeTinyPNG(t)

	_, err := f.client("wrong").Shrink(context.Background(), []byte("abc"))
	require.Error(t, err)
	assert.Equal(t, "tinypng: HTTP 401 Unauthorized: Credentials are invalid.", err.Error())
	assert.Equal(t, int32(1), f.shrinks.Load())
}

func TestClient_JSONLocationFallback(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"output":{"size":3,"url":"`+srv.URL+`/out"}}`)
			return
		}
		_, _ = io.WriteString(w, "out")
	}))
	defer srv.Close()

	out, err := NewClient("k", srv.URL).Shrink(context.Background(), []byte("in"))
	require.NoError(t, err)
	assert.Equal(t, "out", string(out))
}

func TestIsCompressible(t *testing.T) {
	assert.True(t, IsCompressible("a/b.PNG"))
	assert.True(t, IsCompressible("photo.jpeg"))
	assert.True(t, IsCompressible("x.webp"))
	assert.False(t, IsCompressible("icon.svg"))
	assert.False(t, IsCompressible("site.webmanifest"))
}

func TestCompressor_CompressAndCache(t *testing.T) {
	f := newFakeTinyPNG(t)
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{
		"src/img/logo.png":       "logo",
		"src/img/photos/cat.jpg": "cat",
		"src/img/icon.svg":       "<svg/>",
	})
	matches, err := assets.Glob(root, "src/img/**/*")
	require.NoError(t, err)

	store := state.NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	t.Cleanup(func() { _ = store.Close() })

	c := NewCompressor(Options{
		Shrinker: f.client("secret"),
		Cache:    store,
		CacheDir: filepath.Join(root, ".assetpipe/images"),
		Parallel: 2,
	}, testutil.NewTestLogger(t))

	dest := filepath.Join(root, "dist/img")
	stats, err := c.Compress(context.Background(), matches, dest)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Compressed)
	assert.Equal(t, 0, stats.Cached)
	assert.Equal(t, int64(7), stats.BytesIn)
	assert.Equal(t, "LOGO", testutil.ReadFile(t, root, "dist/img/logo.png"))
	assert.Equal(t, "CAT", testutil.ReadFile(t, root, "dist/img/photos/cat.jpg"))
	assert.NoFileExists(t, filepath.Join(dest, "icon.svg"))

	cached, err := store.GetCachedImage(context.Background(), HashContent([]byte("logo")))
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, int64(4), cached.OutputSize)

	stats, err = c.Compress(context.Background(), matches, filepath.Join(root, "dist2"))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Cached)
	assert.Equal(t, int32(2), f.shrinks.Load())
	assert.Equal(t, "LOGO", testutil.ReadFile(t, root, "dist2/logo.png"))
}

type failingShrinker struct{}

func (failingShrinker) Shrink(ctx context.Context, data []byte) ([]byte, error) {
	if string(data) == "bad" {
		return nil, errors.New("unsupported image")
	}
	return data, nil
}

func TestCompressor_PerFileFailuresJoined(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{
		"img/a.png": "bad",
		"img/b.png": "good",
		"img/c.jpg": "bad",
	})
	matches, err := assets.Glob(root, "img/*")
	require.NoError(t, err)

	stats, err := NewCompressor(Options{Shrinker: failingShrinker{}}, nil).Compress(context.Background(), matches, filepath.Join(root, "out"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.png: unsupported image")
	assert.Contains(t, err.Error(), "c.jpg: unsupported image")
	assert.Equal(t, 1, stats.Compressed)
	assert.Equal(t, int64(0), stats.Saved())
	assert.FileExists(t, filepath.Join(root, "out", "b.png"))
}
