package dataset

import (
	"github.com/menta2k/geococo/pkg/geometry"
	"github.com/menta2k/geococo/pkg/types"
)

// SelectImages returns a dataset holding only the images named in names
// (matched on file_name) and the annotations on them. Names that match no
// image are returned as missing.
func SelectImages(ds *Dataset, names []string) (*Dataset, []string) {
	byName := IndexByName(ds)
	byImage := IndexByImage(ds)

	out := ds.Derive()
	var missing []string
	seen := make(map[int64]bool, len(names))
	for _, name := range names {
		im, ok := byName[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if seen[im.ID] {
			continue
		}
		seen[im.ID] = true
		out.Images = append(out.Images, im)
		out.Annotations = append(out.Annotations, byImage[im.ID]...)
	}
	return out, missing
}

// WithCenterpoints returns a copy of ds where every annotation carries its
// object_center.
func WithCenterpoints(ds *Dataset) *Dataset {
	out := ds.Derive()
	out.Images = append(out.Images, ds.Images...)
	for _, a := range ds.Annotations {
		out.Annotations = append(out.Annotations, SetCenter(a))
	}
	return out
}

// SetCenter recomputes a's object_center from its box.
func SetCenter(a types.Annotation) types.Annotation {
	c := geometry.Center(a.BBox.Box())
	a.ObjectCenter = &[2]float64{c.X, c.Y}
	return a
}

// WithBox replaces a's box and keeps the derived fields consistent.
func WithBox(a types.Annotation, b types.Box) types.Annotation {
	a.BBox = types.ToBBox(b)
	if a.Area != nil {
		area := geometry.Area(b)
		a.Area = &area
	}
	if a.ObjectCenter != nil {
		a = SetCenter(a)
	}
	return a
}
