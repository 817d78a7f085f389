package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves the path-style subset of the S3 API the store uses.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3(t *testing.T) (*fakeS3, *httptest.Server) {
	f := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeS3) object(path string) (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.objects[path]), f.types[path]
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		b, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = b
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		b, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", f.types[r.URL.Path])
		_, _ = w.Write(b)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestS3(t *testing.T, endpoint string) *S3Storage {
	t.Helper()
	s, err := NewS3Storage(context.Background(), Config{
		Endpoint:  endpoint,
		Region:    "us-east-1",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "serviciomed",
		PathStyle: true,
		PublicURL: "https://cdn.example.com/serviciomed/",
	})
	require.NoError(t, err)
	return s
}

func TestS3Storage_RoundTrip(t *testing.T) {
	fake, srv := newFakeS3(t)
	s := newTestS3(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "ISC01/a.pdf", bytes.NewReader([]byte("%PDF-1.3 body")), 13, "application/pdf"))
	_, ct := fake.object("/serviciomed/ISC01/a.pdf")
	assert.Equal(t, "application/pdf", ct)

	rc, err := s.Get(ctx, "ISC01/a.pdf")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "%PDF-1.3 body", string(b))

	require.NoError(t, s.Delete(ctx, "ISC01/a.pdf"))
	_, err = s.Get(ctx, "ISC01/a.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3Storage_PutBuffersPlainReaders(t *testing.T) {
	fake, srv := newFakeS3(t)
	s := newTestS3(t, srv.URL)

	require.NoError(t, s.Put(context.Background(), "ISC01/b.pdf", strings.NewReader("plain"), -1, "application/pdf"))
	body, _ := fake.object("/serviciomed/ISC01/b.pdf")
	assert.Equal(t, "plain", body)
}

func TestS3Storage_PresignAndObjectURL(t *testing.T) {
	s := newTestS3(t, "http://127.0.0.1:9000")

	u, err := s.PresignedURL(context.Background(), "ISC01/a.pdf", 5*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, u, "/serviciomed/ISC01/a.pdf")
	assert.Contains(t, u, "X-Amz-Signature=")
	assert.Contains(t, u, "X-Amz-Expires=300")

	assert.Equal(t, "https://cdn.example.com/serviciomed/ISC01/a.pdf", s.ObjectURL("ISC01/a.pdf"))

	_, err = s.PresignedURL(context.Background(), "../a.pdf", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestNewS3Storage_RequiresBucket(t *testing.T) {
	_, err := NewS3Storage(context.Background(), Config{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestMinIOStorage_PresignOffline(t *testing.T) {
	s, err := newMinIOClient(Config{
		Endpoint:  "127.0.0.1:9000",
		Region:    "us-east-1",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "serviciomed",
	})
	require.NoError(t, err)

	u, err := s.PresignedURL(context.Background(), "ISC01/a.pdf", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "http://127.0.0.1:9000/serviciomed/ISC01/a.pdf?"), u)
	assert.Contains(t, u, "X-Amz-Signature=")
	assert.Empty(t, s.ObjectURL("ISC01/a.pdf"))
}

func TestNewMinIOClient_MissingConfig(t *testing.T) {
	_, err := newMinIOClient(Config{Bucket: "b"})
	assert.Error(t, err)
	_, err = newMinIOClient(Config{Endpoint: "127.0.0.1:9000"})
	assert.Error(t, err)
}

func TestMinioErr(t *testing.T) {
	assert.ErrorIs(t, minioErr(minio.ErrorResponse{Code: "NoSuchKey"}), ErrNotFound)
	err := minioErr(errors.New("connection refused"))
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "connection refused")
}
