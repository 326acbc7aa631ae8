package dataset

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/geococo/pkg/types"
)

const sampleDoc = `{
  "info": {"description": "xview subset"},
  "licenses": [{"id": 1, "name": "cc"}],
  "images": [
    {"id": 1, "file_name": "a.tif", "width": 800, "height": 600, "gsd": 0.3, "license": 1},
    {"id": 2, "file_name": "b.tif", "width": 100, "height": 100, "license": 1}
  ],
  "annotations": [
    {"id": 10, "image_id": 1, "category_id": 3, "bbox": [236, 236, 128, 128], "area": 16384, "iscrowd": 0},
    {"id": 11, "image_id": 2, "category_id": 3, "bbox": [-10, 5, 50, 20], "iscrowd": 0},
    {"id": 12, "image_id": 1, "category_id": 4, "bbox": [10, 10, 5, 5], "iscrowd": 0}
  ],
  "categories": [
    {"id": 3, "name": "small car", "supercategory": "vehicle"},
    {"id": 4, "name": "hut", "supercategory": "building"}
  ]
}`

func TestDecode(t *testing.T) {
	ds, err := Decode(strings.NewReader(sampleDoc), "sample")
	require.NoError(t, err)

	assert.Len(t, ds.Images, 2)
	assert.Len(t, ds.Annotations, 3)
	assert.Len(t, ds.Categories, 2)
	require.NotNil(t, ds.Images[0].GSD)
	assert.InDelta(t, 0.3, *ds.Images[0].GSD, 1e-9)
	assert.Nil(t, ds.Images[1].GSD)
	assert.Equal(t, types.Box{X: -10, Y: 5, W: 50, H: 20}, ds.Annotations[1].BBox.Box())
	assert.Contains(t, ds.Meta, "info")
	assert.Contains(t, ds.Meta, "licenses")
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		table string
	}{
		{"missing images", `{"annotations": [], "categories": []}`, "images"},
		{"missing categories", `{"images": [], "annotations": []}`, "categories"},
		{"annotations not a sequence", `{"images": [], "annotations": {}, "categories": []}`, "annotations"},
		{"null table", `{"images": null, "annotations": [], "categories": []}`, "images"},
		{"rows not records", `{"images": [1, 2], "annotations": [], "categories": []}`, "images"},
		{"not a document", `[1,2,3]`, "<root>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc), "doc.json")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))

			var mErr *MalformedDatasetError
			require.True(t, errors.As(err, &mErr))
			assert.Equal(t, tt.table, mErr.Table)
			assert.Contains(t, err.Error(), "doc.json")
		})
	}
}

func TestSaveRoundTripKeepsMeta(t *testing.T) {
	ds, err := Decode(strings.NewReader(sampleDoc), "sample")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "gt.json")
	require.NoError(t, Save(ds, path, SaveOptions{}))

	back, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(ds.Annotations, back.Annotations); diff != "" {
		t.Errorf("annotations differ (-want +got):\n%s", diff)
	}
	var info map[string]string
	require.NoError(t, json.Unmarshal(back.Meta["info"], &info))
	assert.Equal(t, "xview subset", info["description"])
}

func TestSaveRefusesExisting(t *testing.T) {
	ds, err := Decode(strings.NewReader(sampleDoc), "sample")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "gt.json")
	require.NoError(t, os.WriteFile(path, []byte("previous content that is longer than nothing"), 0o644))

	err = Save(ds, path, SaveOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDestinationExists))

	require.NoError(t, Save(ds, path, SaveOptions{Overwrite: true, Indent: "  "}))
	back, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, back.Images, 2)
}

func TestSaveRemovesPartialFile(t *testing.T) {
	ds, err := Decode(strings.NewReader(sampleDoc), "sample")
	require.NoError(t, err)
	ds.Meta["info"] = json.RawMessage(`{broken`)

	path := filepath.Join(t.TempDir(), "gt.json")
	require.Error(t, Save(ds, path, SaveOptions{}))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	ds.Meta["info"] = json.RawMessage(`{}`)
	assert.NoError(t, Save(ds, path, SaveOptions{}))
}

func TestRecordExtrasSurviveRoundTrip(t *testing.T) {
	doc := `{
  "images": [{"id": 1, "file_name": "a.tif", "width": 10, "height": 10, "date_captured": "2019-03-01", "coco_url": "http://host/a.tif"}],
  "annotations": [{"id": 1, "image_id": 1, "category_id": 1, "bbox": [1, 1, 2, 2], "segmentation": [[1, 1, 3, 1, 3, 3]], "score": 0.8}],
  "categories": [{"id": 1, "name": "person", "supercategory": "human", "keypoints": ["nose"]}]
}`
	ds, err := Decode(strings.NewReader(doc), "extras")
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, Encode(&sb, ds, ""))
	assert.JSONEq(t, doc, sb.String())
}

func TestEncodeEmptyTablesAsSequences(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, Encode(&sb, &Dataset{}, ""))
	back, err := Decode(strings.NewReader(sb.String()), "empty")
	require.NoError(t, err)
	assert.Empty(t, back.Images)
	assert.NotNil(t, back.Annotations)
}

func TestIndexes(t *testing.T) {
	ds, err := Decode(strings.NewReader(sampleDoc), "sample")
	require.NoError(t, err)

	byImage := IndexByImage(ds)
	require.Len(t, byImage[1], 2)
	assert.Equal(t, int64(10), byImage[1][0].ID)
	assert.Equal(t, int64(12), byImage[1][1].ID)

	byName := IndexByName(ds)
	assert.Equal(t, int64(2), byName["b.tif"].ID)
	_, ok := byName["missing.tif"]
	assert.False(t, ok)
}

func TestSelectImages(t *testing.T) {
	ds, err := Decode(strings.NewReader(sampleDoc), "sample")
	require.NoError(t, err)

	out, missing := SelectImages(ds, []string{"b.tif", "nope.tif", "b.tif"})
	assert.Equal(t, []string{"nope.tif"}, missing)
	require.Len(t, out.Images, 1)
	require.Len(t, out.Annotations, 1)
	assert.Equal(t, int64(11), out.Annotations[0].ID)
	assert.Len(t, out.Categories, 2)
	// source untouched
	assert.Len(t, ds.Images, 2)
}

func TestWithCenterpoints(t *testing.T) {
	ds, err := Decode(strings.NewReader(sampleDoc), "sample")
	require.NoError(t, err)

	out := WithCenterpoints(ds)
	require.NotNil(t, out.Annotations[0].ObjectCenter)
	assert.Equal(t, [2]float64{300, 300}, *out.Annotations[0].ObjectCenter)
	assert.Equal(t, [2]float64{15, 15}, *out.Annotations[1].ObjectCenter)
	assert.Nil(t, ds.Annotations[0].ObjectCenter)
}

func TestWithBoxUpdatesDerivedFields(t *testing.T) {
	area := 100.0
	a := types.Annotation{ID: 1, BBox: types.BBox{0, 0, 10, 10}, Area: &area, ObjectCenter: &[2]float64{5, 5}}

	got := WithBox(a, types.Box{X: 2, Y: 2, W: 4, H: 6})
	assert.Equal(t, types.BBox{2, 2, 4, 6}, got.BBox)
	assert.Equal(t, 24.0, *got.Area)
	assert.Equal(t, [2]float64{4, 5}, *got.ObjectCenter)
	assert.Equal(t, 100.0, *a.Area)
}
