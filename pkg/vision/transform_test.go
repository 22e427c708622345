package vision

import (
	"image"
	"image/color"
	"image/png"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"rookery/pkg/model"
)

func testVisionConfig() model.VisionConfig {
	config := model.DefaultVisionConfig()
	config.ResizeTo = 36
	config.CropSize = 32
	return config
}

func uniformImage(width, height int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func normalize(value float64, config model.VisionConfig, channel int) float64 {
	return (value/255.0-config.Mean[channel])/config.StdDev[channel]
}

func TestTransformApply(t *testing.T) {
	config := testVisionConfig()
	transform := NewTransform(config)

	img := uniformImage(48, 64, color.RGBA{R: 102, G: 51, B: 204, A: 255})
	channels := transform.Apply(img)
	require.Equal(t, 3, len(channels))

	expected := []float64{
		normalize(102, config, 0),
		normalize(51, config, 1),
		normalize(204, config, 2),
	}
	for c, channel := range channels {
		require.Equal(t, config.CropSize, channel.Rows())
		require.Equal(t, config.CropSize, channel.Columns())
		for _, value := range channel.Data() {
			require.InDelta(t, expected[c], value, 1e-9)
		}
	}
}

func TestTransformOrientation(t *testing.T) {
	config := testVisionConfig()
	transform := NewTransform(config)

	// Red top half, blue bottom half; 72x36 so only the width is cropped
	img := image.NewRGBA(image.Rect(0, 0, 72, 36))
	for y := 0; y < 36; y++ {
		c := color.RGBA{R: 255, A: 255}
		if y >= 18 {
			c = color.RGBA{B: 255, A: 255}
		}
		for x := 0; x < 72; x++ {
			img.Set(x, y, c)
		}
	}

	channels := transform.Apply(img)
	red := channels[0]
	blue := channels[2]

	// Row 0 of the output is the top of the image
	require.InDelta(t, normalize(255, config, 0), red.Data()[0], 1e-9)
	require.InDelta(t, normalize(0, config, 2), blue.Data()[0], 1e-9)
	last := config.CropSize*config.CropSize - 1
	require.InDelta(t, normalize(0, config, 0), red.Data()[last], 1e-9)
	require.InDelta(t, normalize(255, config, 2), blue.Data()[last], 1e-9)
}

func TestLoadImage(t *testing.T) {
	dir, err := ioutil.TempDir("", "transform")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "img.png")
	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(file, uniformImage(64, 48, color.RGBA{R: 10, G: 20, B: 30, A: 255})))
	require.NoError(t, file.Close())

	transform := NewTransform(testVisionConfig())
	channels, err := transform.LoadImage(path)
	require.NoError(t, err)
	require.Equal(t, 3, len(channels))
	require.Equal(t, 32, channels[0].Rows())
	require.Equal(t, 32, channels[0].Columns())

	corrupt := filepath.Join(dir, "corrupt.png")
	require.NoError(t, ioutil.WriteFile(corrupt, []byte("not an image"), 0644))
	_, err = transform.LoadImage(corrupt)
	require.Error(t, err)

	_, err = transform.LoadImage(filepath.Join(dir, "missing.png"))
	require.Error(t, err)
}
