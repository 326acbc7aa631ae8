// Package planner lays a fixed grid of square cells over a source image and
// assigns each annotation to the cell containing its centerpoint.
package planner

import (
	"fmt"

	"github.com/menta2k/geococo/pkg/geometry"
	"github.com/menta2k/geococo/pkg/types"
)

// Cell is one grid position of the plan. Row and Col count from the top-left.
type Cell struct {
	Row    int
	Col    int
	Region geometry.Region
	// Annotations holds the assigned annotations with their original,
	// untranslated boxes.
	Annotations []types.Annotation
}

// Plan is the tiling of one source image.
type Plan struct {
	Image types.ImageRecord
	Size  int
	Rows  int
	Cols  int
	// Cells lists only cells with at least one assigned annotation, in
	// row-major order.
	Cells []Cell
	// Unassigned counts annotations whose centerpoint fell in the discarded
	// remainder strip or outside the image.
	Unassigned int
}

// Grid returns the number of rows and columns of size x size cells that fit
// in a width x height image. Remainder strips are discarded.
func Grid(width, height, size int) (rows, cols int) {
	if size <= 0 || width <= 0 || height <= 0 {
		return 0, 0
	}
	return height / size, width / size
}

// Regions returns every cell region of the grid in row-major order,
// including empty ones.
func Regions(width, height, size int) []geometry.Region {
	rows, cols := Grid(width, height, size)
	out := make([]geometry.Region, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out = append(out, geometry.Region{X: c * size, Y: r * size, W: size, H: size})
		}
	}
	return out
}

// PlanImage tiles img with size x size cells and assigns anns to them by
// centerpoint. Annotations not belonging to img are ignored.
func PlanImage(img types.ImageRecord, anns []types.Annotation, size int) (*Plan, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chip size must be positive, got %d", size)
	}
	rows, cols := Grid(img.Width, img.Height, size)
	plan := &Plan{Image: img, Size: size, Rows: rows, Cols: cols}
	if rows == 0 || cols == 0 {
		for _, a := range anns {
			if a.ImageID == img.ID {
				plan.Unassigned++
			}
		}
		return plan, nil
	}

	buckets := make([][]types.Annotation, rows*cols)
	for _, a := range anns {
		if a.ImageID != img.ID {
			continue
		}
		r, c, ok := locate(geometry.Center(a.BBox.Box()), rows, cols, size)
		if !ok {
			plan.Unassigned++
			continue
		}
		buckets[r*cols+c] = append(buckets[r*cols+c], a)
	}

	for i, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		r, c := i/cols, i%cols
		plan.Cells = append(plan.Cells, Cell{
			Row:         r,
			Col:         c,
			Region:      geometry.Region{X: c * size, Y: r * size, W: size, H: size},
			Annotations: bucket,
		})
	}
	return plan, nil
}

// locate finds the grid cell whose half-open region contains p.
func locate(p types.Point, rows, cols, size int) (int, int, bool) {
	if p.X < 0 || p.Y < 0 {
		return 0, 0, false
	}
	c := int(p.X) / size
	r := int(p.Y) / size
	if r >= rows || c >= cols {
		return 0, 0, false
	}
	region := geometry.Region{X: c * size, Y: r * size, W: size, H: size}
	if !geometry.ContainsPoint(region.Box(), p) {
		return 0, 0, false
	}
	return r, c, true
}
