package chipper

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/menta2k/geococo/internal/testutil"
	"github.com/menta2k/geococo/pkg/dataset"
	"github.com/menta2k/geococo/pkg/geometry"
	"github.com/menta2k/geococo/pkg/processing"
	"github.com/menta2k/geococo/pkg/types"
	"github.com/menta2k/geococo/pkg/validate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// createTestImage creates an image whose red/green channels encode x/y.
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x / 4), uint8(y / 4), 64, 255})
		}
	}
	return img
}

// memStore is an in-memory RasterSource and ChipWriter.
type memStore struct {
	mu       sync.Mutex
	sources  map[string]image.Image
	written  map[string]image.Image
	failName string
}

func newMemStore() *memStore {
	return &memStore{sources: map[string]image.Image{}, written: map[string]image.Image{}}
}

func (m *memStore) Read(name string) (image.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.sources[name]
	if !ok {
		return nil, processing.ErrNotFound
	}
	return img, nil
}

func (m *memStore) Crop(img image.Image, x, y, w, h int) (image.Image, error) {
	return processing.NewProcessor().CropRegion(img, x, y, w, h)
}

func (m *memStore) Write(name string, img image.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name == m.failName {
		return errors.New("disk full")
	}
	m.written[name] = img
	return nil
}

func (m *memStore) Extension() string { return "png" }

func gsd(v float64) *float64 { return &v }

func license(v int) *int { return &v }

func twoImageDataset() *dataset.Dataset {
	return &dataset.Dataset{
		Images: []types.ImageRecord{
			{ID: 1, FileName: "a.png", Width: 800, Height: 600, GSD: gsd(0.5), License: license(2)},
			{ID: 2, FileName: "b.png", Width: 512, Height: 512},
		},
		Annotations: []types.Annotation{
			{ID: 1, ImageID: 1, CategoryID: 1, BBox: types.BBox{236, 236, 128, 128}},
			{ID: 2, ImageID: 1, CategoryID: 2, BBox: types.BBox{10, 10, 20, 20}},
			{ID: 1, ImageID: 2, CategoryID: 1, BBox: types.BBox{10, 10, 20, 20}},
			{ID: 2, ImageID: 2, CategoryID: 1, BBox: types.BBox{300, 40, 20, 20}},
		},
		Categories: []types.Category{
			{ID: 1, Name: "car", Supercategory: "vehicle"},
			{ID: 2, Name: "truck", Supercategory: "vehicle"},
		},
	}
}

func TestChipScenario(t *testing.T) {
	ds := &dataset.Dataset{
		Images:      []types.ImageRecord{{ID: 9, FileName: "src.png", Width: 800, Height: 600}},
		Annotations: []types.Annotation{{ID: 4, ImageID: 9, CategoryID: 1, BBox: types.BBox{300, 300, 128, 128}}},
		Categories:  []types.Category{{ID: 1, Name: "car"}},
	}
	store := newMemStore()
	store.sources["src.png"] = createTestImage(800, 600)

	res, err := NewWithConfig(Config{Size: 256, Workers: 1, FirstImageID: 1, FirstAnnotationID: 1}, testutil.NewTestLogger(t)).
		Chip(context.Background(), ds, store, store)
	require.NoError(t, err)

	require.Len(t, res.Dataset.Images, 1)
	chip := res.Dataset.Images[0]
	assert.Equal(t, "1_9_256_256_256_256.png", chip.FileName)
	assert.Equal(t, 256, chip.Width)
	assert.Equal(t, 256, chip.Height)

	require.Len(t, res.Dataset.Annotations, 1)
	a := res.Dataset.Annotations[0]
	assert.Equal(t, types.BBox{44, 44, 128, 128}, a.BBox)
	assert.Equal(t, chip.ID, a.ImageID)
	assert.Equal(t, int64(1), a.CategoryID)

	written := store.written[chip.FileName]
	require.NotNil(t, written)
	assert.Equal(t, 256, written.Bounds().Dx())
	r, g, _, _ := written.At(written.Bounds().Min.X, written.Bounds().Min.Y).RGBA()
	assert.Equal(t, uint32(256/4), r>>8)
	assert.Equal(t, uint32(256/4), g>>8)

	assert.Equal(t, ds.Categories, res.Dataset.Categories)
}

func TestChipClipsBoxStraddlingCellEdge(t *testing.T) {
	// center (300,300) falls in the cell at (256,256); the box starts 20px
	// before the cell on both axes
	ds := &dataset.Dataset{
		Images:      []types.ImageRecord{{ID: 9, FileName: "src.png", Width: 800, Height: 600}},
		Annotations: []types.Annotation{{ID: 4, ImageID: 9, CategoryID: 1, BBox: types.BBox{236, 236, 128, 128}}},
		Categories:  []types.Category{{ID: 1, Name: "car"}},
	}
	store := newMemStore()
	store.sources["src.png"] = createTestImage(800, 600)

	res, err := NewWithConfig(Config{Size: 256, Workers: 1, FirstImageID: 1, FirstAnnotationID: 1}, testutil.NewTestLogger(t)).
		Chip(context.Background(), ds, store, store)
	require.NoError(t, err)

	require.Len(t, res.Dataset.Images, 1)
	assert.Equal(t, "1_9_256_256_256_256.png", res.Dataset.Images[0].FileName)
	require.Len(t, res.Dataset.Annotations, 1)
	assert.Equal(t, types.BBox{0, 0, 108, 108}, res.Dataset.Annotations[0].BBox)
}

func TestChipIDsUniqueAcrossImages(t *testing.T) {
	ds := twoImageDataset()
	store := newMemStore()
	store.sources["a.png"] = createTestImage(800, 600)
	store.sources["b.png"] = createTestImage(512, 512)

	res, err := NewWithConfig(Config{Size: 256, Workers: 3, FirstImageID: 100, FirstAnnotationID: 1}, testutil.NewTestLogger(t)).
		Chip(context.Background(), ds, store, store)
	require.NoError(t, err)

	// a: cells (0,0) and (1,1); b: cells (0,0) and (0,1)
	require.Len(t, res.Dataset.Images, 4)
	require.Len(t, res.Dataset.Annotations, 4)

	imageIDs := map[int64]bool{}
	for _, im := range res.Dataset.Images {
		assert.False(t, imageIDs[im.ID], "duplicate image id %d", im.ID)
		imageIDs[im.ID] = true
	}
	annIDs := map[int64]bool{}
	for _, a := range res.Dataset.Annotations {
		assert.False(t, annIDs[a.ID], "duplicate annotation id %d", a.ID)
		annIDs[a.ID] = true
	}
	assert.Equal(t, []int64{100, 101, 102, 103}, ids(res.Dataset.Images))

	assert.Empty(t, validate.Check(res.Dataset))
	assert.Equal(t, 4, res.Summary.ChipsEmitted)
	assert.Equal(t, 4, res.Summary.AnnotationsEmitted)
	assert.Len(t, store.written, 4)

	// gsd and license ride along
	assert.Equal(t, 0.5, *res.Dataset.Images[0].GSD)
	require.NotNil(t, res.Dataset.Images[0].License)
	assert.Equal(t, 2, *res.Dataset.Images[0].License)
	assert.Nil(t, res.Dataset.Images[2].License)
}

func ids(images []types.ImageRecord) []int64 {
	out := make([]int64, len(images))
	for i, im := range images {
		out[i] = im.ID
	}
	return out
}

func TestChipDeterministicAcrossWorkerCounts(t *testing.T) {
	ds := twoImageDataset()
	var results []*dataset.Dataset
	for _, workers := range []int{1, 2, 8} {
		store := newMemStore()
		store.sources["a.png"] = createTestImage(800, 600)
		store.sources["b.png"] = createTestImage(512, 512)
		res, err := NewWithConfig(Config{Size: 256, Workers: workers, FirstImageID: 1, FirstAnnotationID: 1}, testutil.NewTestLogger(t)).
			Chip(context.Background(), ds, store, store)
		require.NoError(t, err)
		results = append(results, res.Dataset)
	}
	for i := 1; i < len(results); i++ {
		if diff := cmp.Diff(results[0].Images, results[i].Images); diff != "" {
			t.Errorf("images differ (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(results[0].Annotations, results[i].Annotations); diff != "" {
			t.Errorf("annotations differ (-want +got):\n%s", diff)
		}
	}
}

func TestChipMissingSourceIsCounted(t *testing.T) {
	ds := twoImageDataset()
	store := newMemStore()
	store.sources["b.png"] = createTestImage(512, 512)

	res, err := NewWithConfig(Config{Size: 256, Workers: 2, FirstImageID: 1, FirstAnnotationID: 1}, testutil.NewTestLogger(t)).
		Chip(context.Background(), ds, store, store)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Summary.ImagesSkipped)
	assert.Equal(t, 2, res.Summary.ChipsSkipped)
	assert.Equal(t, 2, res.Summary.ChipsEmitted)
	require.Len(t, res.Summary.Failures, 1)
	assert.True(t, errors.Is(res.Summary.Failures[0], ErrSourcePixelUnavailable))
	assert.True(t, errors.Is(res.Summary.Failures[0], processing.ErrNotFound))

	for _, im := range res.Dataset.Images {
		ref, err := ParseChipName(im.FileName)
		require.NoError(t, err)
		assert.Equal(t, int64(2), ref.SourceID)
	}
	assert.Empty(t, validate.Check(res.Dataset))
}

func TestChipWriteFailureSkipsOnlyThatChip(t *testing.T) {
	ds := twoImageDataset()
	store := newMemStore()
	store.sources["a.png"] = createTestImage(800, 600)
	store.sources["b.png"] = createTestImage(512, 512)
	store.failName = "1_1_0_0_256_256.png"

	res, err := NewWithConfig(Config{Size: 256, Workers: 2, FirstImageID: 1, FirstAnnotationID: 1}, testutil.NewTestLogger(t)).
		Chip(context.Background(), ds, store, store)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Summary.ChipsSkipped)
	assert.Equal(t, 0, res.Summary.ImagesSkipped)
	assert.Equal(t, 3, res.Summary.ChipsEmitted)
	require.Len(t, res.Summary.Failures, 1)

	var chipErr *ChipExtractionError
	require.True(t, errors.As(res.Summary.Failures[0], &chipErr))
	assert.Equal(t, int64(1), chipErr.ChipID)
	assert.Empty(t, validate.Check(res.Dataset))
}

func TestChipRecordSmallerThanRaster(t *testing.T) {
	ds := &dataset.Dataset{
		Images:      []types.ImageRecord{{ID: 1, FileName: "a.png", Width: 512, Height: 512}},
		Annotations: []types.Annotation{{ID: 1, ImageID: 1, CategoryID: 1, BBox: types.BBox{300, 300, 10, 10}}},
		Categories:  []types.Category{{ID: 1, Name: "car"}},
	}
	store := newMemStore()
	store.sources["a.png"] = createTestImage(400, 400)

	res, err := NewWithConfig(Config{Size: 256, Workers: 1, FirstImageID: 1, FirstAnnotationID: 1}, testutil.NewTestLogger(t)).
		Chip(context.Background(), ds, store, store)
	require.NoError(t, err)
	assert.Empty(t, res.Dataset.Images)
	assert.Equal(t, 1, res.Summary.ChipsSkipped)
	assert.True(t, errors.Is(res.Summary.Failures[0], ErrChipExtraction))
	assert.True(t, errors.Is(res.Summary.Failures[0], processing.ErrEmptyRegion))
}

func TestChipClipsAndDrops(t *testing.T) {
	ds := &dataset.Dataset{
		Images: []types.ImageRecord{{ID: 1, FileName: "a.png", Width: 512, Height: 256}},
		Annotations: []types.Annotation{
			// center (200,128) in cell 0, box reaches into cell 1
			{ID: 1, ImageID: 1, CategoryID: 1, BBox: types.BBox{100, 28, 200, 200}},
			// degenerate input box, clamping yields nothing
			{ID: 2, ImageID: 1, CategoryID: 1, BBox: types.BBox{400, 100, 0, 10}},
			// unknown category
			{ID: 3, ImageID: 1, CategoryID: 99, BBox: types.BBox{10, 10, 10, 10}},
			// unknown image
			{ID: 4, ImageID: 42, CategoryID: 1, BBox: types.BBox{10, 10, 10, 10}},
		},
		Categories: []types.Category{{ID: 1, Name: "car"}},
	}
	store := newMemStore()
	store.sources["a.png"] = createTestImage(512, 256)

	res, err := NewWithConfig(Config{Size: 256, Workers: 1, FirstImageID: 1, FirstAnnotationID: 1}, testutil.NewTestLogger(t)).
		Chip(context.Background(), ds, store, store)
	require.NoError(t, err)

	require.Len(t, res.Dataset.Images, 1)
	require.Len(t, res.Dataset.Annotations, 1)
	assert.Equal(t, types.BBox{100, 28, 156, 200}, res.Dataset.Annotations[0].BBox)
	assert.Equal(t, 1, res.Summary.AnnotationsClipped)
	assert.Equal(t, 2, res.Summary.AnnotationsUnresolved)
	assert.Len(t, store.written, 1)
}

func TestChipSwapOrigin(t *testing.T) {
	ds := &dataset.Dataset{
		Images:      []types.ImageRecord{{ID: 1, FileName: "a.png", Width: 768, Height: 768}},
		Annotations: []types.Annotation{{ID: 1, ImageID: 1, CategoryID: 1, BBox: types.BBox{100, 0, 400, 300}}},
		Categories:  []types.Category{{ID: 1, Name: "car"}},
	}

	run := func(swap bool) *Result {
		store := newMemStore()
		store.sources["a.png"] = createTestImage(768, 768)
		res, err := NewWithConfig(Config{Size: 256, Workers: 1, FirstImageID: 1, FirstAnnotationID: 1, SwapOrigin: swap}, testutil.NewTestLogger(t)).
			Chip(context.Background(), ds, store, store)
		require.NoError(t, err)
		require.Len(t, store.written, 1)
		return res
	}

	// center (300,150) lands in the cell at x=256, y=0
	plain := run(false)
	require.Len(t, plain.Dataset.Images, 1)
	assert.Equal(t, "1_1_256_0_256_256.png", plain.Dataset.Images[0].FileName)
	assert.Equal(t, types.BBox{0, 0, 244, 256}, plain.Dataset.Annotations[0].BBox)

	swapped := run(true)
	require.Len(t, swapped.Dataset.Images, 1)
	assert.Equal(t, "1_1_0_256_256_256.png", swapped.Dataset.Images[0].FileName)
	assert.Equal(t, types.BBox{100, 0, 156, 44}, swapped.Dataset.Annotations[0].BBox)
}

func TestChipCancelled(t *testing.T) {
	ds := twoImageDataset()
	store := newMemStore()
	store.sources["a.png"] = createTestImage(800, 600)
	store.sources["b.png"] = createTestImage(512, 512)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewWithConfig(Config{Size: 256, Workers: 2}, testutil.NewTestLogger(t)).Chip(ctx, ds, store, store)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChipInvalidSize(t *testing.T) {
	_, err := Chip(context.Background(), twoImageDataset(), newMemStore(), newMemStore(), Config{Size: 0})
	assert.Error(t, err)
}

func TestChipRegionsDisjointPerSource(t *testing.T) {
	ds := &dataset.Dataset{
		Images:     []types.ImageRecord{{ID: 1, FileName: "a.png", Width: 1024, Height: 1024}},
		Categories: []types.Category{{ID: 1, Name: "car"}},
	}
	var n int64
	for y := 5.0; y < 1024; y += 97 {
		for x := 5.0; x < 1024; x += 113 {
			n++
			ds.Annotations = append(ds.Annotations, types.Annotation{ID: n, ImageID: 1, CategoryID: 1, BBox: types.BBox{x, y, 30, 30}})
		}
	}
	store := newMemStore()
	store.sources["a.png"] = createTestImage(1024, 1024)

	res, err := NewWithConfig(Config{Size: 256, Workers: 4, FirstImageID: 1, FirstAnnotationID: 1}, testutil.NewTestLogger(t)).
		Chip(context.Background(), ds, store, store)
	require.NoError(t, err)

	var regions []geometry.Region
	for _, im := range res.Dataset.Images {
		ref, err := ParseChipName(im.FileName)
		require.NoError(t, err)
		regions = append(regions, ref.Region)
	}
	for i := range regions {
		for j := i + 1; j < len(regions); j++ {
			assert.False(t, regions[i].Overlaps(regions[j]), fmt.Sprintf("%v/%v", regions[i], regions[j]))
		}
	}
	for _, a := range res.Dataset.Annotations {
		b := a.BBox.Box()
		assert.True(t, b.W > 0 && b.H > 0)
		assert.GreaterOrEqual(t, b.X, 0.0)
		assert.LessOrEqual(t, b.X+b.W, 256.0)
	}
}

func TestChipWithFileStore(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	proc := processing.NewProcessor()
	require.NoError(t, proc.SaveImage(createTestImage(800, 600), filepath.Join(srcDir, "a.png")))

	ds := &dataset.Dataset{
		Images:      []types.ImageRecord{{ID: 1, FileName: "a.png", Width: 800, Height: 600}},
		Annotations: []types.Annotation{{ID: 1, ImageID: 1, CategoryID: 1, BBox: types.BBox{236, 236, 128, 128}}},
		Categories:  []types.Category{{ID: 1, Name: "car"}},
	}
	res, err := Chip(context.Background(), ds,
		processing.NewStore(srcDir, proc), processing.NewStore(outDir, proc),
		Config{Size: 256, Workers: 2, FirstImageID: 1, FirstAnnotationID: 1})
	require.NoError(t, err)
	require.Len(t, res.Dataset.Images, 1)

	_, err = os.Stat(filepath.Join(outDir, res.Dataset.Images[0].FileName))
	assert.NoError(t, err)
}
