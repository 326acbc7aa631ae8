// Package repair fixes annotation boxes that spill over the edge of their
// image, a common artifact of geo-referenced projection pipelines.
package repair

import (
	"log/slog"

	"github.com/menta2k/geococo/pkg/dataset"
	"github.com/menta2k/geococo/pkg/geometry"
	"github.com/menta2k/geococo/pkg/types"
)

// Options controls the repair policy.
type Options struct {
	// Legacy reproduces the comparisons of the original chipping scripts:
	// the far-corner test checks both axes against the image height, the
	// near-corner repair triggers on y1 < 0 or x2 < 0, and the center must be
	// strictly positive.
	Legacy bool
	// Strict drops boxes that are still out of bounds after the repair
	// attempt (center off-image). By default they are kept as-is when they
	// have positive extent.
	Strict bool
}

// Report counts what Repair did.
type Report struct {
	Unchanged    int
	Repaired     int
	Dropped      int
	Unrepairable int
	Unresolved   int
}

// Repair returns a new dataset whose annotations have been repaired or
// dropped. Annotations on images missing from the table are dropped and
// counted as unresolved.
func Repair(ds *dataset.Dataset, opts Options, logger *slog.Logger) (*dataset.Dataset, Report) {
	if logger == nil {
		logger = slog.Default()
	}
	images := dataset.IndexImages(ds)
	out := ds.Derive()
	out.Images = append(out.Images, ds.Images...)

	var report Report
	for _, a := range ds.Annotations {
		im, ok := images[a.ImageID]
		if !ok {
			report.Unresolved++
			logger.Debug("annotation on unknown image dropped", "annotation_id", a.ID, "image_id", a.ImageID)
			continue
		}

		orig := a.BBox.Box()
		var fixed types.Box
		if opts.Legacy {
			fixed = legacyBox(orig, float64(im.Width), float64(im.Height))
		} else {
			fixed = Box(orig, float64(im.Width), float64(im.Height))
		}

		if !geometry.Valid(fixed) {
			report.Dropped++
			continue
		}
		if opts.Strict && !inBounds(fixed, float64(im.Width), float64(im.Height)) {
			report.Unrepairable++
			continue
		}
		if fixed == orig {
			report.Unchanged++
			out.Annotations = append(out.Annotations, a)
			continue
		}
		report.Repaired++
		out.Annotations = append(out.Annotations, dataset.WithBox(a, fixed))
	}
	return out, report
}

// Box applies the symmetric repair policy to one box on a width x height
// image. The result may have non-positive extent, in which case the caller
// drops it.
func Box(b types.Box, width, height float64) types.Box {
	x1, y1 := b.X, b.Y
	x2, y2 := b.X+b.W, b.Y+b.H

	if x2 > width || y2 > height {
		xc, yc := (x1+x2)/2, (y1+y2)/2
		if xc >= 0 && xc <= width && yc >= 0 && yc <= height {
			if x2 > width {
				x2 = width
			}
			if y2 > height {
				y2 = height
			}
		}
	}

	if x1 < 0 || y1 < 0 {
		xc, yc := (x1+x2)/2, (y1+y2)/2
		if xc >= 0 && yc >= 0 {
			if x1 < 0 {
				x1 = 0
			}
			if y1 < 0 {
				y1 = 0
			}
		}
	}

	return types.Box{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

func legacyBox(b types.Box, width, height float64) types.Box {
	x1, y1, w, h := b.X, b.Y, b.W, b.H
	x2, y2 := x1+w, y1+h

	if y2 > height || x2 > width {
		xc, yc := (x1+x2)/2, (y1+y2)/2
		if x1 < height && y2 < height && xc < height && yc < height {
			if x2 > width {
				w = width - x1
				x2 = x1 + w
			}
			if y2 > height {
				h = height - y1
				y2 = y1 + h
			}
		}
	}

	if y1 < 0 || x2 < 0 {
		xc, yc := (x1+x2)/2, (y1+y2)/2
		if xc > 0 && yc > 0 {
			if y1 < 0 {
				y1 = 0
				h = y2 - y1
			}
			if x1 < 0 {
				x1 = 0
				w = x2 - x1
			}
		}
	}

	return types.Box{X: x1, Y: y1, W: w, H: h}
}

func inBounds(b types.Box, width, height float64) bool {
	return b.X >= 0 && b.Y >= 0 && b.X+b.W <= width && b.Y+b.H <= height
}
