package types

import "encoding/json"

// Box is an axis-aligned bounding box in pixel coordinates of the image it
// belongs to. X,Y is the top-left corner.
type Box struct {
	X float64
	Y float64
	W float64
	H float64
}

// Point is a location in pixel coordinates.
type Point struct {
	X float64
	Y float64
}

// Extra holds the keys of a record that have no dedicated field
// (segmentation, score, coco_url, ...). They are written back unchanged.
type Extra map[string]json.RawMessage

// Category is one entry of the category table
type Category struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory"`

	Extra Extra `json:"-"`
}

// ImageRecord describes one raster in the image store. FileName is resolved
// against the store directory.
type ImageRecord struct {
	ID       int64    `json:"id"`
	FileName string   `json:"file_name"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	GSD      *float64 `json:"gsd,omitempty"`
	License  *int     `json:"license,omitempty"`

	Extra Extra `json:"-"`
}

// Annotation is a single labelled box on an image
type Annotation struct {
	ID           int64       `json:"id"`
	ImageID      int64       `json:"image_id"`
	CategoryID   int64       `json:"category_id"`
	BBox         BBox        `json:"bbox"`
	Area         *float64    `json:"area,omitempty"`
	IsCrowd      *int        `json:"iscrowd,omitempty"`
	ObjectCenter *[2]float64 `json:"object_center,omitempty"`

	Extra Extra `json:"-"`
}

// BBox is the on-disk [x, y, w, h] form of a Box.
type BBox [4]float64

// Box converts the serialized form to a Box.
func (b BBox) Box() Box {
	return Box{X: b[0], Y: b[1], W: b[2], H: b[3]}
}

// ToBBox converts a Box to its serialized form.
func ToBBox(b Box) BBox {
	return BBox{b.X, b.Y, b.W, b.H}
}
