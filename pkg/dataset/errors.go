package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed matches any MalformedDatasetError via errors.Is.
	ErrMalformed = errors.New("malformed dataset")
	// ErrUnresolvedReference matches any UnresolvedReferenceError via errors.Is.
	ErrUnresolvedReference = errors.New("unresolved reference")
	// ErrDestinationExists is returned by Save when the destination exists and
	// overwrite was not requested.
	ErrDestinationExists = errors.New("destination already exists")
)

// MalformedDatasetError reports a missing or invalid top-level table.
type MalformedDatasetError struct {
	Source string
	Table  string
	Err    error
}

func (e *MalformedDatasetError) Error() string {
	msg := fmt.Sprintf("malformed dataset %s: table %q", e.Source, e.Table)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedDatasetError) Unwrap() error { return e.Err }

func (e *MalformedDatasetError) Is(target error) bool { return target == ErrMalformed }

// UnresolvedReferenceError reports an annotation pointing at an image or
// category that does not exist.
type UnresolvedReferenceError struct {
	AnnotationID int64
	Field        string // "image_id" or "category_id"
	Value        int64
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("annotation %d: %s %d does not resolve", e.AnnotationID, e.Field, e.Value)
}

func (e *UnresolvedReferenceError) Is(target error) bool { return target == ErrUnresolvedReference }
