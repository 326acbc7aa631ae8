// Package remap rewrites the category table of a dataset and cascades the
// new ids to its annotations.
package remap

import (
	"log/slog"
	"slices"

	"github.com/menta2k/geococo/pkg/dataset"
	"github.com/menta2k/geococo/pkg/types"
)

// MinAnnotationsPerImage is the retention threshold applied by Subset when
// DropSparseImages is set: images with fewer retained annotations are
// removed.
const MinAnnotationsPerImage = 2

// CollapsedSupercategory is the supercategory given to every category
// produced by CollapseToSupercategory.
const CollapsedSupercategory = "None"

// Report counts what a remap operation kept and dropped.
type Report struct {
	Categories         int
	AnnotationsKept    int
	AnnotationsDropped int
	Unresolved         int
	ImagesDropped      int
}

// CollapseToSupercategory replaces the category table with one category per
// distinct supercategory, numbered 1..n in sorted name order. Annotations
// whose category does not resolve are dropped.
func CollapseToSupercategory(ds *dataset.Dataset, logger *slog.Logger) (*dataset.Dataset, Report) {
	if logger == nil {
		logger = slog.Default()
	}

	var names []string
	for _, c := range ds.Categories {
		if !slices.Contains(names, c.Supercategory) {
			names = append(names, c.Supercategory)
		}
	}
	slices.Sort(names)

	superID := make(map[string]int64, len(names))
	out := ds.Derive()
	out.Categories = make([]types.Category, 0, len(names))
	for i, name := range names {
		id := int64(i + 1)
		superID[name] = id
		out.Categories = append(out.Categories, types.Category{ID: id, Name: name, Supercategory: CollapsedSupercategory})
	}

	mapping := make(map[int64]int64, len(ds.Categories))
	for _, c := range ds.Categories {
		mapping[c.ID] = superID[c.Supercategory]
	}

	out.Images = append(out.Images, ds.Images...)
	report := Report{Categories: len(out.Categories)}
	for _, a := range ds.Annotations {
		id, ok := mapping[a.CategoryID]
		if !ok {
			report.Unresolved++
			logger.Debug("annotation with unknown category dropped", "annotation_id", a.ID, "category_id", a.CategoryID)
			continue
		}
		a.CategoryID = id
		out.Annotations = append(out.Annotations, a)
	}
	report.AnnotationsKept = len(out.Annotations)
	return out, report
}

// SubsetOptions controls Subset.
type SubsetOptions struct {
	// Renumber assigns the surviving categories dense ids starting at 1 in
	// their original table order.
	Renumber bool
	// DropSparseImages removes images left with fewer than
	// MinAnnotationsPerImage annotations, together with their annotations.
	DropSparseImages bool
}

// Subset keeps only the annotations whose category id is in allow.
func Subset(ds *dataset.Dataset, allow []int64, opts SubsetOptions) (*dataset.Dataset, Report) {
	keep := make(map[int64]bool, len(allow))
	for _, id := range allow {
		keep[id] = true
	}

	out := ds.Derive()
	out.Categories = out.Categories[:0]
	mapping := make(map[int64]int64, len(allow))
	for _, c := range ds.Categories {
		if !keep[c.ID] {
			continue
		}
		if opts.Renumber {
			mapping[c.ID] = int64(len(out.Categories) + 1)
			c.ID = mapping[c.ID]
		} else {
			mapping[c.ID] = c.ID
		}
		out.Categories = append(out.Categories, c)
	}

	var report Report
	retained := make([]types.Annotation, 0, len(ds.Annotations))
	perImage := make(map[int64]int, len(ds.Images))
	for _, a := range ds.Annotations {
		id, ok := mapping[a.CategoryID]
		if !ok {
			report.AnnotationsDropped++
			continue
		}
		a.CategoryID = id
		retained = append(retained, a)
		perImage[a.ImageID]++
	}

	dropped := make(map[int64]bool)
	for _, im := range ds.Images {
		if opts.DropSparseImages && perImage[im.ID] < MinAnnotationsPerImage {
			dropped[im.ID] = true
			report.ImagesDropped++
			continue
		}
		out.Images = append(out.Images, im)
	}
	for _, a := range retained {
		if dropped[a.ImageID] {
			report.AnnotationsDropped++
			continue
		}
		out.Annotations = append(out.Annotations, a)
	}

	report.Categories = len(out.Categories)
	report.AnnotationsKept = len(out.Annotations)
	return out, report
}

// Align rewrites target so that its categories use the ids of reference,
// matched by name. The returned dataset carries the reference category table.
// A target category without a match in reference fails with a
// CategoryAlignmentError; an annotation whose category is not in target's
// table fails with a dataset.UnresolvedReferenceError.
func Align(reference, target *dataset.Dataset) (*dataset.Dataset, error) {
	byName := make(map[string]int64, len(reference.Categories))
	for _, c := range reference.Categories {
		byName[c.Name] = c.ID
	}

	mapping := make(map[int64]int64, len(target.Categories))
	for _, c := range target.Categories {
		id, ok := byName[c.Name]
		if !ok {
			return nil, &CategoryAlignmentError{CategoryID: c.ID, Name: c.Name}
		}
		mapping[c.ID] = id
	}

	out := target.Derive()
	out.Categories = append(out.Categories[:0], reference.Categories...)
	out.Images = append(out.Images, target.Images...)
	for _, a := range target.Annotations {
		id, ok := mapping[a.CategoryID]
		if !ok {
			return nil, &dataset.UnresolvedReferenceError{AnnotationID: a.ID, Field: "category_id", Value: a.CategoryID}
		}
		a.CategoryID = id
		out.Annotations = append(out.Annotations, a)
	}
	return out, nil
}
