package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, endpoint string) *Store {
	t.Helper()
	s, err := New(Options{
		Endpoint:  endpoint,
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "posts",
		Region:    "us-east-1",
	})
	require.NoError(t, err)
	s.now = func() time.Time { return time.UnixMilli(1714564800123) }
	return s
}

func TestObjectKey(t *testing.T) {
	s := newTestStore(t, "s3.example.com")

	key := s.objectKey("Holiday.JPG")

	assert.Regexp(t, regexp.MustCompile(`^1714564800123-[0-9a-f-]{36}\.jpg$`), key)
	assert.NotContains(t, s.objectKey("noext"), ".")
}

func TestPutImage(t *testing.T) {
	var (
		gotPath        string
		gotContentType string
		gotBody        string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		b, _ := io.ReadAll(r.Body)
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotBody = string(b)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	s := newTestStore(t, strings.TrimPrefix(ts.URL, "http://"))

	url, err := s.PutImage(context.Background(), "cat.png", strings.NewReader("png-bytes"), 9, "image/png")

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(gotPath, "/posts/1714564800123-"), gotPath)
	assert.Equal(t, "image/png", gotContentType)
	// Plain HTTP uploads may be aws-chunked, so only look for the payload.
	assert.Contains(t, gotBody, "png-bytes")
	assert.Equal(t, ts.URL+gotPath, url)
}
