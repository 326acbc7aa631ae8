package types

import "encoding/json"

var (
	categoryKeys   = []string{"id", "name", "supercategory"}
	imageKeys      = []string{"id", "file_name", "width", "height", "gsd", "license"}
	annotationKeys = []string{"id", "image_id", "category_id", "bbox", "area", "iscrowd", "object_center"}
)

type (
	categoryFields   Category
	imageFields      ImageRecord
	annotationFields Annotation
)

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (c *Category) UnmarshalJSON(data []byte) error {
	extra, err := decodeRecord(data, (*categoryFields)(c), categoryKeys)
	if err != nil {
		return err
	}
	c.Extra = extra
	return nil
}

// MarshalJSON writes the known fields merged with Extra.
func (c Category) MarshalJSON() ([]byte, error) {
	return encodeRecord(categoryFields(c), c.Extra)
}

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (im *ImageRecord) UnmarshalJSON(data []byte) error {
	extra, err := decodeRecord(data, (*imageFields)(im), imageKeys)
	if err != nil {
		return err
	}
	im.Extra = extra
	return nil
}

// MarshalJSON writes the known fields merged with Extra.
func (im ImageRecord) MarshalJSON() ([]byte, error) {
	return encodeRecord(imageFields(im), im.Extra)
}

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (a *Annotation) UnmarshalJSON(data []byte) error {
	extra, err := decodeRecord(data, (*annotationFields)(a), annotationKeys)
	if err != nil {
		return err
	}
	a.Extra = extra
	return nil
}

// MarshalJSON writes the known fields merged with Extra.
func (a Annotation) MarshalJSON() ([]byte, error) {
	return encodeRecord(annotationFields(a), a.Extra)
}

func decodeRecord(data []byte, dst any, known []string) (Extra, error) {
	if err := json.Unmarshal(data, dst); err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return Extra(all), nil
}

func encodeRecord(fields any, extra Extra) ([]byte, error) {
	data, err := json.Marshal(fields)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := all[k]; !ok {
			all[k] = v
		}
	}
	return json.Marshal(all)
}
