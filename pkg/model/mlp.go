package model

import (
	"github.com/nlpodyssey/spago/pkg/mat"
	"github.com/nlpodyssey/spago/pkg/mat/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/initializers"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/nn/linear"
)

var (
	_ nn.Model = &MLP{}
)

// MLP is a plain fully-connected classifier: a stack of linear layers with
// ReLU activations in between and a final linear layer producing one logit
// per class (or a single value for continuous targets).
type MLP struct {
	nn.BaseModel
	MLPConfig
	Hidden []*linear.Model
	Output *linear.Model

	// CategoricalFeatureEmbeddings holds one learned vector per distinct
	// categorical (column, value) pair, indexed by the metadata value map
	CategoricalFeatureEmbeddings []*nn.Param
}

type MLPConfig struct {
	InputDimension                int
	HiddenSizes                   []int
	OutputDimension               int
	CategoricalEmbeddingDimension int
	NumCategoricalEmbeddings      int
}

func NewMLP(config MLPConfig) *MLP {
	hidden := make([]*linear.Model, len(config.HiddenSizes))
	inputSize := config.InputDimension
	for i, size := range config.HiddenSizes {
		hidden[i] = linear.New(inputSize, size)
		inputSize = size
	}
	embeddings := make([]*nn.Param, config.NumCategoricalEmbeddings)
	for i := range embeddings {
		embeddings[i] = nn.NewParam(mat.NewEmptyVecDense(config.CategoricalEmbeddingDimension))
	}
	return &MLP{
		MLPConfig:                    config,
		Hidden:                       hidden,
		Output:                       linear.New(inputSize, config.OutputDimension),
		CategoricalFeatureEmbeddings: embeddings,
	}
}

func (m *MLP) Init(generator *rand.LockedRand) {
	for _, layer := range m.Hidden {
		initializers.XavierUniform(layer.W.Value(), initializers.Gain(ag.OpReLU), generator)
	}
	gain := initializers.Gain(ag.OpIdentity)
	initializers.XavierUniform(m.Output.W.Value(), gain, generator)
	for _, embedding := range m.CategoricalFeatureEmbeddings {
		initializers.XavierUniform(embedding.Value(), gain, generator)
	}
}

func (m *MLP) Forward(xs ...ag.Node) []ag.Node {
	g := m.Graph()
	ys := make([]ag.Node, len(xs))
	for i, x := range xs {
		h := x
		for _, layer := range m.Hidden {
			h = g.ReLU(layer.Forward(h)[0])
		}
		ys[i] = m.Output.Forward(h)[0]
	}
	return ys
}
