// Package dataset is the in-memory model of a COCO-style annotation file:
// the images, annotations and categories tables plus any other top-level
// keys, which are carried through untouched.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/menta2k/geococo/pkg/types"
)

const (
	tableImages      = "images"
	tableAnnotations = "annotations"
	tableCategories  = "categories"
)

// Dataset holds the three linked tables. Transforms never mutate a Dataset;
// they return a new one.
type Dataset struct {
	Images      []types.ImageRecord
	Annotations []types.Annotation
	Categories  []types.Category

	// Meta holds every other top-level key (info, licenses, ...).
	Meta map[string]json.RawMessage
}

// Load reads a dataset file.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()
	return Decode(f, path)
}

// Decode parses a dataset document from r. source is used in error messages.
func Decode(r io.Reader, source string) (*Dataset, error) {
	var top map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&top); err != nil {
		return nil, &MalformedDatasetError{Source: source, Table: "<root>", Err: err}
	}

	ds := &Dataset{Meta: make(map[string]json.RawMessage)}
	if err := decodeTable(top, tableImages, source, &ds.Images); err != nil {
		return nil, err
	}
	if err := decodeTable(top, tableAnnotations, source, &ds.Annotations); err != nil {
		return nil, err
	}
	if err := decodeTable(top, tableCategories, source, &ds.Categories); err != nil {
		return nil, err
	}
	for k, v := range top {
		switch k {
		case tableImages, tableAnnotations, tableCategories:
		default:
			ds.Meta[k] = v
		}
	}
	return ds, nil
}

func decodeTable[T any](top map[string]json.RawMessage, table, source string, dst *[]T) error {
	raw, ok := top[table]
	if !ok {
		return &MalformedDatasetError{Source: source, Table: table, Err: errors.New("missing")}
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return &MalformedDatasetError{Source: source, Table: table, Err: errors.New("not a sequence")}
	}
	var rows []T
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return &MalformedDatasetError{Source: source, Table: table, Err: err}
	}
	if rows == nil {
		rows = []T{}
	}
	*dst = rows
	return nil
}

// SaveOptions controls Save.
type SaveOptions struct {
	// Overwrite truncates an existing destination. Without it Save fails with
	// ErrDestinationExists.
	Overwrite bool
	Indent    string
}

// Save writes the dataset to path.
func Save(ds *Dataset, path string, opts SaveOptions) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	flags := os.O_WRONLY | os.O_CREATE
	if opts.Overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrDestinationExists, path)
		}
		return fmt.Errorf("failed to create dataset file: %w", err)
	}

	if err := Encode(f, ds, opts.Indent); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// Encode serializes the dataset as a single document.
func Encode(w io.Writer, ds *Dataset, indent string) error {
	top := make(map[string]any, len(ds.Meta)+3)
	for k, v := range ds.Meta {
		top[k] = v
	}
	top[tableImages] = nonNil(ds.Images)
	top[tableAnnotations] = nonNil(ds.Annotations)
	top[tableCategories] = nonNil(ds.Categories)

	enc := json.NewEncoder(w)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(top); err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Derive returns an empty dataset sharing ds's metadata. The category table
// is copied.
func (ds *Dataset) Derive() *Dataset {
	meta := make(map[string]json.RawMessage, len(ds.Meta))
	for k, v := range ds.Meta {
		meta[k] = v
	}
	cats := make([]types.Category, len(ds.Categories))
	copy(cats, ds.Categories)
	return &Dataset{
		Images:      []types.ImageRecord{},
		Annotations: []types.Annotation{},
		Categories:  cats,
		Meta:        meta,
	}
}

// IndexByImage groups annotations by image id, preserving table order.
func IndexByImage(ds *Dataset) map[int64][]types.Annotation {
	idx := make(map[int64][]types.Annotation, len(ds.Images))
	for _, a := range ds.Annotations {
		idx[a.ImageID] = append(idx[a.ImageID], a)
	}
	return idx
}

// IndexByName maps file names to image records.
func IndexByName(ds *Dataset) map[string]types.ImageRecord {
	idx := make(map[string]types.ImageRecord, len(ds.Images))
	for _, im := range ds.Images {
		idx[im.FileName] = im
	}
	return idx
}

// IndexImages maps image ids to records.
func IndexImages(ds *Dataset) map[int64]types.ImageRecord {
	idx := make(map[int64]types.ImageRecord, len(ds.Images))
	for _, im := range ds.Images {
		idx[im.ID] = im
	}
	return idx
}

// IndexCategories maps category ids to records.
func IndexCategories(ds *Dataset) map[int64]types.Category {
	idx := make(map[int64]types.Category, len(ds.Categories))
	for _, c := range ds.Categories {
		idx[c.ID] = c
	}
	return idx
}
