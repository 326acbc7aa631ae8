package chipper

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/menta2k/geococo/pkg/dataset"
	"github.com/menta2k/geococo/pkg/geometry"
	"github.com/menta2k/geococo/pkg/types"
)

// ChipRef is everything a chip file name encodes.
type ChipRef struct {
	ChipID   int64
	SourceID int64
	Region   geometry.Region
	Ext      string
}

// ChipName builds the file name {chip}_{source}_{x}_{y}_{w}_{h}.{ext}.
func ChipName(ref ChipRef) string {
	return fmt.Sprintf("%d_%d_%d_%d_%d_%d.%s",
		ref.ChipID, ref.SourceID, ref.Region.X, ref.Region.Y, ref.Region.W, ref.Region.H, ref.Ext)
}

// ParseChipName inverts ChipName.
func ParseChipName(name string) (ChipRef, error) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := path.Ext(base)
	parts := strings.Split(strings.TrimSuffix(base, ext), "_")
	if len(parts) != 6 {
		return ChipRef{}, fmt.Errorf("chip name %q: want 6 fields, got %d", name, len(parts))
	}
	var nums [6]int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return ChipRef{}, fmt.Errorf("chip name %q: field %d: %w", name, i, err)
		}
		nums[i] = n
	}
	return ChipRef{
		ChipID:   nums[0],
		SourceID: nums[1],
		Region:   geometry.Region{X: int(nums[2]), Y: int(nums[3]), W: int(nums[4]), H: int(nums[5])},
		Ext:      strings.TrimPrefix(ext, "."),
	}, nil
}

// AttachGSD copies each source image's gsd onto the chips cut from it,
// resolving the source through the chip file name. It returns the new chip
// dataset and the number of chips whose source could not be resolved.
func AttachGSD(full, chips *dataset.Dataset) (*dataset.Dataset, int) {
	sources := dataset.IndexImages(full)
	out := chips.Derive()
	out.Annotations = append(out.Annotations, chips.Annotations...)

	unresolved := 0
	for _, im := range chips.Images {
		ref, err := ParseChipName(im.FileName)
		src, ok := sources[ref.SourceID]
		if err != nil || !ok {
			unresolved++
			out.Images = append(out.Images, im)
			continue
		}
		if src.GSD != nil {
			g := *src.GSD
			im.GSD = &g
		} else {
			im.GSD = nil
		}
		out.Images = append(out.Images, im)
	}
	return out, unresolved
}

// chipRecord builds the image record of a chip cut from src.
func chipRecord(id int64, name string, size int, src types.ImageRecord) types.ImageRecord {
	rec := types.ImageRecord{
		ID:       id,
		FileName: name,
		Width:    size,
		Height:   size,
	}
	if src.GSD != nil {
		g := *src.GSD
		rec.GSD = &g
	}
	if src.License != nil {
		l := *src.License
		rec.License = &l
	}
	return rec
}
