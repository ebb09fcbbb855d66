package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jpegHeader is enough of a JPEG for content sniffing.
var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46, 0x00}

func TestNewArchiverValidation(t *testing.T) {
	_, err := NewArchiver(Config{})
	assert.ErrorContains(t, err, "bucket")

	_, err = NewArchiver(Config{Bucket: "b"})
	assert.ErrorContains(t, err, "region")

	_, err = NewArchiver(Config{Bucket: "b", Region: "r"})
	assert.ErrorContains(t, err, "credentials")

	_, err = NewArchiver(Config{Bucket: "b", Region: "r", AccessKey: "a", SecretKey: "s"})
	assert.ErrorContains(t, err, "public base url")
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpegHeader)
	}))
	defer srv.Close()

	a, err := NewArchiver(Config{Bucket: "b", Region: "r", AccessKey: "a", SecretKey: "s", PublicBaseURL: "https://cdn.example.com"})
	require.NoError(t, err)

	data, contentType, err := a.download(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, jpegHeader, data)
	assert.Equal(t, "image/jpeg", contentType)
}

func TestDownloadBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	a, err := NewArchiver(Config{Bucket: "b", Region: "r", AccessKey: "a", SecretKey: "s", PublicBaseURL: "https://cdn.example.com"})
	require.NoError(t, err)

	_, _, err = a.download(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "status: 410")
}

func TestNormalizeContentTypeSniffsOctetStream(t *testing.T) {
	assert.Equal(t, "image/jpeg", normalizeContentType("application/octet-stream", jpegHeader))
	assert.Equal(t, "image/png", normalizeContentType("image/png; charset=binary", nil))
}

func TestGenerateKeyLayout(t *testing.T) {
	a, err := NewArchiver(Config{Bucket: "b", Region: "r", AccessKey: "a", SecretKey: "s", PublicBaseURL: "https://cdn.example.com", Prefix: "/results/"})
	require.NoError(t, err)

	key := a.generateKey("image/jpeg")
	assert.True(t, strings.HasPrefix(key, "results/"), key)
	assert.True(t, strings.HasSuffix(key, ".jpg"), key)
	assert.Equal(t, 4, strings.Count(key, "/"), "prefix/yyyy/mm/dd/name")
}
