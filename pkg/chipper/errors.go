package chipper

import (
	"errors"
	"fmt"

	"github.com/menta2k/geococo/pkg/geometry"
)

var (
	// ErrSourcePixelUnavailable matches any SourcePixelUnavailableError.
	ErrSourcePixelUnavailable = errors.New("source pixels unavailable")
	// ErrChipExtraction matches any ChipExtractionError.
	ErrChipExtraction = errors.New("chip extraction failed")
)

// SourcePixelUnavailableError means a source raster was missing or could not
// be decoded. Every chip planned on that image is skipped.
type SourcePixelUnavailableError struct {
	ImageID  int64
	FileName string
	Err      error
}

func (e *SourcePixelUnavailableError) Error() string {
	return fmt.Sprintf("image %d (%s): source pixels unavailable: %v", e.ImageID, e.FileName, e.Err)
}

func (e *SourcePixelUnavailableError) Unwrap() error { return e.Err }

func (e *SourcePixelUnavailableError) Is(target error) bool {
	return target == ErrSourcePixelUnavailable
}

// ChipExtractionError means one planned chip could not be cropped or written.
type ChipExtractionError struct {
	ChipID   int64
	ImageID  int64
	Region   geometry.Region
	FileName string
	Err      error
}

func (e *ChipExtractionError) Error() string {
	return fmt.Sprintf("chip %d of image %d at %d,%d (%s): %v",
		e.ChipID, e.ImageID, e.Region.X, e.Region.Y, e.FileName, e.Err)
}

func (e *ChipExtractionError) Unwrap() error { return e.Err }

func (e *ChipExtractionError) Is(target error) bool { return target == ErrChipExtraction }
