package vision

import (
	"image/color"
	"image/png"
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"rookery/pkg/model"
)

func smallVisionConfig() model.VisionConfig {
	config := model.DefaultVisionConfig()
	config.ResizeTo = 8
	config.CropSize = 8
	return config
}

func writeImage(t *testing.T, path string, c color.RGBA) {
	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(file, uniformImage(16, 16, c)))
	require.NoError(t, file.Close())
}

func writeImageTree(t *testing.T, classes map[string]int) string {
	dir, err := ioutil.TempDir("", "images")
	require.NoError(t, err)
	for class, count := range classes {
		classDir := filepath.Join(dir, class)
		require.NoError(t, os.Mkdir(classDir, 0755))
		for i := 0; i < count; i++ {
			writeImage(t, filepath.Join(classDir, class+string(rune('a'+i))+".png"), color.RGBA{R: uint8(40 * i), A: 255})
		}
	}
	return dir
}

func TestLoadImageDirectory(t *testing.T) {
	dir := writeImageTree(t, map[string]int{"cats": 2, "dogs": 3})
	defer os.RemoveAll(dir)

	// A stray non-image file is ignored
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "cats", "notes.txt"), []byte("nothing"), 0644))

	labels, records, dataErrors, err := LoadImageDirectory(ImageParameters{DataDir: dir, Config: smallVisionConfig()}, nil)
	require.NoError(t, err)
	require.Equal(t, 0, len(dataErrors))
	require.Equal(t, 5, len(records))

	// Class names are interned in sorted directory order
	require.Equal(t, 2, labels.Size())
	require.Equal(t, 0, labels.NameToIndex["cats"])
	require.Equal(t, 1, labels.NameToIndex["dogs"])

	counts := map[float64]int{}
	for _, record := range records {
		require.Equal(t, 3, len(record.Channels))
		require.Equal(t, 8, record.Channels[0].Rows())
		require.Equal(t, 8, record.Channels[0].Columns())
		require.NotEmpty(t, record.Path)
		counts[record.Target]++
	}
	require.Equal(t, map[float64]int{0: 2, 1: 3}, counts)
}

func TestLoadImageDirectoryErrors(t *testing.T) {
	dir := writeImageTree(t, map[string]int{"cats": 1})
	defer os.RemoveAll(dir)
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "cats", "corrupt.png"), []byte("not an image"), 0644))

	labels, records, dataErrors, err := LoadImageDirectory(ImageParameters{DataDir: dir, Config: smallVisionConfig()}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, len(records))
	require.Equal(t, 1, len(dataErrors))
	require.Contains(t, dataErrors[0].Path, "corrupt.png")

	// Reusing labels flags directories for classes not seen before
	otherDir := writeImageTree(t, map[string]int{"cats": 1, "birds": 2})
	defer os.RemoveAll(otherDir)

	reused, records, dataErrors, err := LoadImageDirectory(ImageParameters{DataDir: otherDir, Config: smallVisionConfig()}, &labels)
	require.NoError(t, err)
	require.Equal(t, labels, reused)
	require.Equal(t, 1, len(records))
	require.Equal(t, 0.0, records[0].Target)
	require.Equal(t, 1, len(dataErrors))
	require.Contains(t, dataErrors[0].Path, "birds")
}

func makeImageRecords(n int) []*ImageRecord {
	records := make([]*ImageRecord, n)
	for i := range records {
		records[i] = &ImageRecord{Target: float64(i)}
	}
	return records
}

func TestImageSetBatches(t *testing.T) {
	s := NewImageSet(makeImageRecords(7), 3)
	require.Equal(t, 7, s.Size())

	var targets []float64
	for batch := s.Next(); len(batch) > 0; batch = s.Next() {
		for _, record := range batch {
			targets = append(targets, record.Target)
		}
	}
	require.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6}, targets)
}

func TestImageSetRandomSplit(t *testing.T) {
	s := NewImageSet(makeImageRecords(10), 4)
	s.Rand = rand.New(rand.NewSource(42))

	splits := s.RandomSplit(6, 4)
	require.Equal(t, 6, splits[0].Size())
	require.Equal(t, 4, splits[1].Size())

	seen := map[float64]bool{}
	for _, split := range splits {
		split.ResetOrder(OriginalOrder)
		for batch := split.Next(); len(batch) > 0; batch = split.Next() {
			for _, record := range batch {
				require.False(t, seen[record.Target])
				seen[record.Target] = true
			}
		}
	}
	require.Equal(t, 10, len(seen))
}
