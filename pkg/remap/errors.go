package remap

import (
	"errors"
	"fmt"
)

// ErrCategoryAlignment matches any CategoryAlignmentError via errors.Is.
var ErrCategoryAlignment = errors.New("category alignment failed")

// CategoryAlignmentError reports a category name with no match in the
// reference table.
type CategoryAlignmentError struct {
	CategoryID int64
	Name       string
}

func (e *CategoryAlignmentError) Error() string {
	return fmt.Sprintf("category %d %q has no match in the reference table", e.CategoryID, e.Name)
}

func (e *CategoryAlignmentError) Is(target error) bool { return target == ErrCategoryAlignment }
