package vision

import (
	"fmt"
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/nlpodyssey/spago/pkg/mat"

	"rookery/pkg/model"
)

// ImageRecord is a single transformed example.
type ImageRecord struct {
	// Channels holds the normalized RGB planes
	Channels []mat.Matrix

	// Target contains the class index
	Target float64

	// Path is the source file, kept for reporting
	Path string
}

type ImageBatch []*ImageRecord

// DataError reports an image or class directory that could not be used.
type DataError struct {
	Path  string
	Error string
}

type ImageParameters struct {
	// DataDir is the dataset root: one subdirectory per class, named after
	// the class and holding its images
	DataDir string

	// Config is the transform applied to every image
	Config model.VisionConfig
}

// LoadImageDirectory reads a labeled image tree. With nil labels the class
// names are interned from the subdirectory names, in sorted order so indices
// are stable; otherwise the given mapping is reused and directories for
// unknown classes are reported as data errors. Files without an image
// extension are ignored; images that fail to decode are skipped and reported.
func LoadImageDirectory(p ImageParameters, labels *model.NameMap) (model.NameMap, []*ImageRecord, []DataError, error) {
	entries, err := ioutil.ReadDir(p.DataDir)
	if err != nil {
		return model.NameMap{}, nil, nil, fmt.Errorf("error reading image directory %s: %w", p.DataDir, err)
	}

	newLabels := false
	var labelMap model.NameMap
	if labels == nil {
		labelMap = model.NewNameMap()
		newLabels = true
	} else {
		labelMap = *labels
	}

	transform := NewTransform(p.Config)
	var errors []DataError
	var result []*ImageRecord

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		className := entry.Name()
		classDir := filepath.Join(p.DataDir, className)

		var target int
		if newLabels {
			target = labelMap.ValueFor(className)
		} else {
			var ok bool
			target, ok = labelMap.ContainsName(className)
			if !ok {
				errors = append(errors, DataError{Path: classDir, Error: fmt.Sprintf("unknown class %s", className)})
				continue
			}
		}

		err := filepath.Walk(classDir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || !isImageFile(path) {
				return nil
			}
			channels, err := transform.LoadImage(path)
			if err != nil {
				errors = append(errors, DataError{Path: path, Error: err.Error()})
				return nil
			}
			result = append(result, &ImageRecord{
				Channels: channels,
				Target:   float64(target),
				Path:     path,
			})
			return nil
		})
		if err != nil {
			return labelMap, nil, nil, fmt.Errorf("error walking class directory %s: %w", classDir, err)
		}
	}
	return labelMap, result, errors, nil
}

func isImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// ImageSet serves batches of images in a configurable order, splitting the
// same way the tabular datasets do.
type ImageSet struct {
	Data      []*ImageRecord
	BatchSize int

	// Rand drives shuffling and must be set before any random reordering
	Rand *rand.Rand

	dataIndices  []int
	currentOrder []int
	currentIndex int
}

type ImageSetOrder int

const (
	OriginalOrder ImageSetOrder = iota
	RandomOrder
)

func NewImageSet(data []*ImageRecord, batchSize int) *ImageSet {
	dataIndices := make([]int, len(data))
	for i := range dataIndices {
		dataIndices[i] = i
	}
	s := &ImageSet{Data: data, BatchSize: batchSize, dataIndices: dataIndices}
	s.ResetOrder(OriginalOrder)
	return s
}

func NewImageSetSplit(data []*ImageRecord, batchSize int, indices []int) *ImageSet {
	s := &ImageSet{Data: data, BatchSize: batchSize, dataIndices: indices}
	s.ResetOrder(OriginalOrder)
	return s
}

func (s *ImageSet) ResetOrder(order ImageSetOrder) {
	if s.currentOrder == nil {
		s.currentOrder = make([]int, len(s.dataIndices))
	}
	switch order {
	case OriginalOrder:
		copy(s.currentOrder, s.dataIndices)
	case RandomOrder:
		ind := s.Rand.Perm(len(s.currentOrder))
		for i := range ind {
			s.currentOrder[i] = s.dataIndices[ind[i]]
		}
	}
	s.currentIndex = 0
}

func (s *ImageSet) Next() ImageBatch {
	batch := make(ImageBatch, 0, s.BatchSize)
	for ; s.currentIndex < len(s.currentOrder) && len(batch) < s.BatchSize; s.currentIndex++ {
		batch = append(batch, s.Data[s.currentOrder[s.currentIndex]])
	}
	return batch
}

func (s *ImageSet) Size() int {
	return len(s.dataIndices)
}

func (s *ImageSet) RandomSplit(sizes ...int) []*ImageSet {
	indices := make([]int, len(s.dataIndices))
	copy(indices, s.dataIndices)
	s.Rand.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})
	splits := make([]*ImageSet, len(sizes))
	idx := 0
	for i := range sizes {
		splitIndices := make([]int, sizes[i])
		for j := range splitIndices {
			splitIndices[j] = indices[idx]
			idx++
		}
		splits[i] = NewImageSetSplit(s.Data, s.BatchSize, splitIndices)
		splits[i].Rand = s.Rand
	}
	return splits
}
