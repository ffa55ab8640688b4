package camera

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ImageFile is one numbered frame on disk.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Frame is the frame number parsed from the name, e.g. frame-12.jpg.
	Frame int
}

// ListImageFiles returns the image files in dir ordered by frame number.
//
// Arguments:
//   - dir: Directory path containing frame-<n>.<ext> files.
//
// Returns:
//   - []ImageFile: The frames, lowest number first.
//   - error: If the directory cannot be read or a name has no frame number.
func ListImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []ImageFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		switch ext {
		case ".jpg", ".jpeg", ".png", ".bmp":
			stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
			frame, err := strconv.Atoi(strings.TrimPrefix(stem, "frame-"))
			if err != nil {
				return nil, errors.Wrapf(err, "frame number of %s", entry.Name())
			}
			files = append(files, ImageFile{Path: filepath.Join(dir, entry.Name()), Frame: frame})
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Frame < files[j].Frame
	})
	return files, nil
}

// Directory is a Source replaying numbered image files once, in order.
type Directory struct {
	mu    sync.Mutex
	dir   string
	files []ImageFile
	next  int
}

// OpenDirectory lists the frames in dir. It returns ErrNotOpened when dir
// holds no frames.
func OpenDirectory(dir string) (*Directory, error) {
	files, err := ListImageFiles(dir)
	if err != nil {
		return nil, errors.Wrapf(ErrNotOpened, "frames %s: %v", dir, err)
	}
	if len(files) == 0 {
		return nil, errors.Wrapf(ErrNotOpened, "frames %s: no image files", dir)
	}
	return &Directory{dir: dir, files: files}, nil
}

// Read implements Source. It returns false after the last frame or when a
// file cannot be decoded.
func (d *Directory) Read(frame *gocv.Mat) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.next >= len(d.files) {
		return false
	}
	img := gocv.IMRead(d.files[d.next].Path, gocv.IMReadColor)
	defer img.Close()
	d.next++

	if img.Empty() {
		return false
	}
	img.CopyTo(frame)
	return true
}

// Len returns the number of frames.
func (d *Directory) Len() int {
	return len(d.files)
}

// String returns the directory path.
func (d *Directory) String() string {
	return d.dir
}

// Close implements Source.
func (d *Directory) Close() error {
	return nil
}
