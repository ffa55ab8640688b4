package camera

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func writeFrame(t *testing.T, dir, name string, rows, cols int) {
	t.Helper()
	mat := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	defer mat.Close()
	require.True(t, gocv.IMWrite(filepath.Join(dir, name), mat))
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame-10.png", "frame-2.png", "frame-1.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "frame-3.png"), 0o700))

	files, err := ListImageFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{files[0].Frame, files[1].Frame, files[2].Frame})
	assert.Equal(t, filepath.Join(dir, "frame-1.jpg"), files[0].Path)
}

func TestListImageFiles_BadName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshot.png"), nil, 0o600))

	_, err := ListImageFiles(dir)
	assert.Error(t, err)
}

func TestDirectory_Read(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, dir, "frame-1.png", 48, 64)
	writeFrame(t, dir, "frame-2.png", 48, 64)

	src, err := OpenDirectory(dir)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, 2, src.Len())

	frame := gocv.NewMat()
	defer frame.Close()

	assert.True(t, src.Read(&frame))
	assert.Equal(t, 48, frame.Rows())
	assert.Equal(t, 64, frame.Cols())
	assert.True(t, src.Read(&frame))
	assert.False(t, src.Read(&frame))
}

func TestOpenDirectory_Empty(t *testing.T) {
	_, err := OpenDirectory(t.TempDir())
	assert.True(t, errors.Is(err, ErrNotOpened))

	_, err = OpenDirectory(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.Is(err, ErrNotOpened))
}
