// Package validate checks a dataset against the invariants every transform
// must preserve.
package validate

import (
	"fmt"
	"image"

	"github.com/menta2k/geococo/pkg/dataset"
	"github.com/menta2k/geococo/pkg/types"
)

// Rule names a violated invariant
type Rule string

const (
	RuleImageRef       Rule = "image-reference"
	RuleCategoryRef    Rule = "category-reference"
	RuleDuplicateImage Rule = "duplicate-image-id"
	RuleDuplicateAnn   Rule = "duplicate-annotation-id"
	RuleDuplicateCat   Rule = "duplicate-category-id"
	RuleDegenerateBox  Rule = "degenerate-box"
	RuleOutOfBounds    Rule = "box-out-of-bounds"
	RuleRasterMissing  Rule = "raster-missing"
	RuleRasterMismatch Rule = "raster-size-mismatch"
)

// Violation is one broken invariant on one record
type Violation struct {
	Rule   Rule
	Record int64
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: record %d: %s", v.Rule, v.Record, v.Detail)
}

// Info contains basic dataset counts
type Info struct {
	Images      int
	Annotations int
	Categories  int
}

// GetInfo returns the table sizes of ds
func GetInfo(ds *dataset.Dataset) Info {
	return Info{Images: len(ds.Images), Annotations: len(ds.Annotations), Categories: len(ds.Categories)}
}

// Check returns every invariant violation in ds. A nil result means the
// dataset is consistent.
func Check(ds *dataset.Dataset) []Violation {
	var out []Violation

	images := make(map[int64]types.ImageRecord, len(ds.Images))
	for _, im := range ds.Images {
		if _, dup := images[im.ID]; dup {
			out = append(out, Violation{RuleDuplicateImage, im.ID, im.FileName})
			continue
		}
		images[im.ID] = im
	}

	cats := make(map[int64]bool, len(ds.Categories))
	for _, c := range ds.Categories {
		if cats[c.ID] {
			out = append(out, Violation{RuleDuplicateCat, c.ID, c.Name})
		}
		cats[c.ID] = true
	}

	anns := make(map[int64]bool, len(ds.Annotations))
	for _, a := range ds.Annotations {
		if anns[a.ID] {
			out = append(out, Violation{RuleDuplicateAnn, a.ID, ""})
		}
		anns[a.ID] = true

		if !cats[a.CategoryID] {
			out = append(out, Violation{RuleCategoryRef, a.ID, fmt.Sprintf("category_id %d", a.CategoryID)})
		}
		b := a.BBox.Box()
		if b.W <= 0 || b.H <= 0 {
			out = append(out, Violation{RuleDegenerateBox, a.ID, fmt.Sprintf("w=%g h=%g", b.W, b.H)})
		}
		im, ok := images[a.ImageID]
		if !ok {
			out = append(out, Violation{RuleImageRef, a.ID, fmt.Sprintf("image_id %d", a.ImageID)})
			continue
		}
		if b.X < 0 || b.Y < 0 || b.X+b.W > float64(im.Width) || b.Y+b.H > float64(im.Height) {
			out = append(out, Violation{RuleOutOfBounds, a.ID,
				fmt.Sprintf("box %v outside %dx%d", a.BBox, im.Width, im.Height)})
		}
	}
	return out
}

// RasterReader reads a raster by file name
type RasterReader interface {
	Read(name string) (image.Image, error)
}

// CheckRasters decodes every image of ds and compares its size with the
// record. Decoding is expensive; callers opt in.
func CheckRasters(ds *dataset.Dataset, src RasterReader) []Violation {
	var out []Violation
	for _, im := range ds.Images {
		img, err := src.Read(im.FileName)
		if err != nil {
			out = append(out, Violation{RuleRasterMissing, im.ID, err.Error()})
			continue
		}
		b := img.Bounds()
		if b.Dx() != im.Width || b.Dy() != im.Height {
			out = append(out, Violation{RuleRasterMismatch, im.ID,
				fmt.Sprintf("record %dx%d, raster %dx%d", im.Width, im.Height, b.Dx(), b.Dy())})
		}
	}
	return out
}
