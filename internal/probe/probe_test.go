package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/imroc/req/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProber() *Prober {
	return New(req.C(), nil)
}

func TestProbe_SizeFromContentLength(t *testing.T) {
	var heads, gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			heads.Add(1)
		case http.MethodGet:
			gets.Add(1)
		}
		w.Header().Set("Content-Length", "100")
		w.Header().Set("Content-Type", "application/x-parquet")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	info, err := newTestProber().Probe(context.Background(), srv.URL+"/yellow_tripdata_2023-01.parquet")
	require.NoError(t, err)
	assert.True(t, info.SizeKnown)
	assert.Equal(t, int64(100), info.Size)
	assert.Equal(t, "application/x-parquet", info.MimeType)
	assert.Equal(t, int32(1), heads.Load(), "head alone should satisfy the probe")
	assert.Equal(t, int32(0), gets.Load())
}

func TestProbe_ContentEncodingOmitsSize(t *testing.T) {
	var heads, gets atomic.Int32
	body := strings.Repeat("x", 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Length", "100")
		switch r.Method {
		case http.MethodHead:
			heads.Add(1)
		case http.MethodGet:
			gets.Add(1)
			w.Write([]byte(body)) //nolint:errcheck
		}
	}))
	defer srv.Close()

	info, err := newTestProber().Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.False(t, info.SizeKnown, "compressed length headers must not be trusted")
	assert.Equal(t, int32(1), heads.Load())
	assert.Equal(t, int32(1), gets.Load(), "missing size should trigger the get fallback")
}

func TestProbe_SizeFromContentRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-99/500")
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer srv.Close()

	info, err := newTestProber().Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, info.SizeKnown)
	assert.Equal(t, int64(500), info.Size)
}

func TestProbe_HeadFailureFallsBackToGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Length", "3")
		w.Write([]byte("abc")) //nolint:errcheck
	}))
	defer srv.Close()

	info, err := newTestProber().Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, info.SizeKnown)
	assert.Equal(t, int64(3), info.Size)
}

func TestProbe_NotFoundAfterBothPhases(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	url := srv.URL + "/yellow_tripdata_2035-01.parquet"
	info, err := newTestProber().Probe(context.Background(), url)
	require.Error(t, err)
	assert.Nil(t, info)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, url, notFound.URL)
	assert.Error(t, notFound.Unwrap())
}

func TestProbe_ResolvedURLAfterRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/final.parquet", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "42")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/old.parquet", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final.parquet", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	info, err := newTestProber().Probe(context.Background(), srv.URL+"/old.parquet")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/final.parquet", info.ResolvedURL)
	assert.Equal(t, int64(42), info.Size)
}

func TestProbe_HeaderMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10")
		w.Header().Set("Content-Type", "application/octet-stream; charset=binary")
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		w.Header().Set("ETag", `"abc123"`)
		w.Header().Set("Content-MD5", "md5hint")
		w.Header().Set("Digest", "sha-256=deadbeef")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	info, err := newTestProber().Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", info.MimeType)
	require.False(t, info.ModifiedAt.IsZero())
	assert.Equal(t, 2006, info.ModifiedAt.Year())
	assert.Equal(t, `"abc123"`, info.ETag)
	assert.Equal(t, "md5hint", info.ContentMD5)
	assert.Equal(t, "sha-256=deadbeef", info.Digest)
}

func TestProbe_NoTransportRetries(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var attempts atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			attempts.Add(1)
			conn.Close()
		}
	}()

	// a client configured with transport retries, like the shared one
	client := req.C().
		SetCommonRetryCount(2).
		SetCommonRetryFixedInterval(10 * time.Millisecond)

	url := "http://" + ln.Addr().String() + "/yellow_tripdata_2023-01.parquet"
	_, err = New(client, nil).Probe(context.Background(), url)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.LessOrEqual(t, attempts.Load(), int32(2), "one head plus one get, no transport retries")
}

func TestContentRangeTotal(t *testing.T) {
	tests := []struct {
		in    string
		total int64
		ok    bool
	}{
		{"bytes 0-99/500", 500, true},
		{"bytes */1048576", 1048576, true},
		{"bytes 0-99/*", 0, false},
		{"garbage", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		total, ok := contentRangeTotal(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.total, total, tt.in)
	}
}
