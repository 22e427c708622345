package pkg

import (
	mrand "math/rand"

	"github.com/nlpodyssey/spago/pkg/mat"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
)

// uniformSource yields uniform draws in [0, 1).
type uniformSource interface {
	Float() float64
}

type randUniformSource struct {
	rand *mrand.Rand
}

func (r randUniformSource) Float() float64 {
	return r.rand.Float64()
}

// DropoutPreprocessor zeroes each input feature independently with
// probability p. It runs on training batches only; evaluation and inference
// see the full input. The masks of the last processed batch are kept for
// inspection.
type DropoutPreprocessor struct {
	p           float64
	source      uniformSource
	featureSize int
	batchSize   int

	CurrentMasks []mat.Matrix
}

func NewDropoutPreprocessor(p float64, source uniformSource, featureSize, batchSize int) *DropoutPreprocessor {
	return &DropoutPreprocessor{
		p:           p,
		source:      source,
		featureSize: featureSize,
		batchSize:   batchSize,
	}
}

func (d *DropoutPreprocessor) process(g *ag.Graph, data []ag.Node) []ag.Node {
	d.CurrentMasks = make([]mat.Matrix, 0, d.batchSize)
	output := make([]ag.Node, len(data))
	for i := range data {
		mask := mat.NewEmptyVecDense(d.featureSize)
		for j := 0; j < d.featureSize; j++ {
			if d.source.Float() >= d.p {
				mask.Set(j, 0, 1.0)
			}
		}
		d.CurrentMasks = append(d.CurrentMasks, mask)
		output[i] = g.Prod(data[i], g.NewVariable(mask, false))
	}
	return output
}
