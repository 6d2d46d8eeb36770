package browser

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecorderWritesDecodedFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tab-01.mjpeg")
	r := newRecorder(path, zap.NewNop())

	f, err := os.Create(path)
	require.NoError(t, err)
	r.file = f

	frameA := []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}
	frameB := []byte{0xFF, 0xD8, 0x02, 0xFF, 0xD9}
	require.NoError(t, r.writeFrame(base64.StdEncoding.EncodeToString(frameA)))
	require.NoError(t, r.writeFrame(base64.StdEncoding.EncodeToString(frameB)))
	assert.Equal(t, 2, r.Frames())

	require.NoError(t, f.Close())
	r.file = nil

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, append(frameA, frameB...), got)
}

func TestRecorderRejectsBadBase64(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tab-01.mjpeg")
	r := newRecorder(path, zap.NewNop())
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	r.file = f

	require.Error(t, r.writeFrame("not base64!!!"))
	assert.Equal(t, 0, r.Frames())
}

func TestRecorderClosedDropsFrames(t *testing.T) {
	r := newRecorder(filepath.Join(t.TempDir(), "x.mjpeg"), zap.NewNop())
	err := r.writeFrame(base64.StdEncoding.EncodeToString([]byte{1}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recorder closed")
}
