package vision

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/nlpodyssey/spago/pkg/mat"
	"golang.org/x/image/draw"

	"rookery/pkg/model"
)

// Transform turns a decoded image into normalized channel planes. The same
// deterministic pipeline runs at training, evaluation and inference time:
// scale the shorter side to ResizeTo, take a centered CropSize square,
// convert to [0,1] RGB planes and normalize each channel.
type Transform struct {
	config model.VisionConfig
}

func NewTransform(config model.VisionConfig) Transform {
	return Transform{config: config}
}

// LoadImage decodes and transforms a single image file.
func (t Transform) LoadImage(path string) ([]mat.Matrix, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening image %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("error decoding image %s: %w", path, err)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("image %s is empty", path)
	}
	return t.Apply(img), nil
}

// Apply runs the pipeline on a decoded image and returns one matrix per RGB
// channel, each CropSize by CropSize.
func (t Transform) Apply(img image.Image) []mat.Matrix {
	resized := t.resize(img)
	crop := centerCropRect(resized.Bounds(), t.config.CropSize)

	size := t.config.CropSize
	channels := make([]mat.Matrix, 3)
	for c := range channels {
		channels[c] = mat.NewEmptyDense(size, size)
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(crop.Min.X+x, crop.Min.Y+y).RGBA()
			values := [3]float64{float64(r >> 8), float64(g >> 8), float64(b >> 8)}
			for c := range values {
				channels[c].Set(y, x, (values[c]/255.0-t.config.Mean[c])/t.config.StdDev[c])
			}
		}
	}
	return channels
}

// resize scales the image so that its shorter side measures ResizeTo pixels,
// preserving the aspect ratio.
func (t Transform) resize(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	target := t.config.ResizeTo
	if width < height {
		height = height * target / width
		width = target
	} else {
		width = width * target / height
		height = target
	}
	resized := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Src, nil)
	return resized
}

func centerCropRect(bounds image.Rectangle, size int) image.Rectangle {
	x := bounds.Min.X + (bounds.Dx()-size)/2
	y := bounds.Min.Y + (bounds.Dy()-size)/2
	return image.Rect(x, y, x+size, y+size)
}
