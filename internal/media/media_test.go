package media

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStoreUploadDataURI(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir, "http://localhost:8080/media/")
	require.NoError(t, err)

	raw := []byte{0x89, 0x50, 0x4e, 0x47}
	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)

	url, err := s.Upload(context.Background(), payload)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:8080/media/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	name := strings.TrimPrefix(url, "http://localhost:8080/media/")
	written, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, raw, written)
}

func TestDiskStoreUploadBareBase64(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), "http://localhost:8080/media")
	require.NoError(t, err)

	url, err := s.Upload(context.Background(), base64.StdEncoding.EncodeToString([]byte("hello")))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, ".bin"))
}

func TestDiskStoreRejectsInvalidPayload(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), "http://localhost:8080/media")
	require.NoError(t, err)

	_, err = s.Upload(context.Background(), "not base64 at all!!!")
	assert.Error(t, err)

	_, err = s.Upload(context.Background(), "data:image/png;base64")
	assert.Error(t, err)
}
