package processing

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by Store.Read when the named raster does not exist.
var ErrNotFound = errors.New("raster not found")

// Store is a directory of raster files addressed by file name.
type Store struct {
	dir  string
	proc *Processor
}

// NewStore creates a store rooted at dir using proc for encoding and decoding.
func NewStore(dir string, proc *Processor) *Store {
	if proc == nil {
		proc = NewProcessor()
	}
	return &Store{dir: dir, proc: proc}
}

// Dir returns the store root.
func (s *Store) Dir() string { return s.dir }

// Path resolves name against the store root.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, filepath.FromSlash(name))
}

// Read decodes the raster stored under name.
func (s *Store) Read(name string) (image.Image, error) {
	path := s.Path(name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	return s.proc.LoadImage(path)
}

// Write encodes img under name.
func (s *Store) Write(name string, img image.Image) error {
	return s.proc.SaveImage(img, s.Path(name))
}

// Crop extracts a region of img.
func (s *Store) Crop(img image.Image, x, y, w, h int) (image.Image, error) {
	return s.proc.CropRegion(img, x, y, w, h)
}

// Extension is the file extension used by Write.
func (s *Store) Extension() string {
	return s.proc.Extension()
}
