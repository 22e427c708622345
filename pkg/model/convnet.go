package model

import (
	"github.com/nlpodyssey/spago/pkg/mat/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/initializers"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/nn/convolution"
	"github.com/nlpodyssey/spago/pkg/ml/nn/linear"
)

var (
	_ nn.Model = &ConvNet{}
)

// ConvNet is a small convolutional image classifier: two convolution+pooling
// stages followed by a single linear classifier over the flattened feature
// maps. The convolution stages act as the feature extractor; the classifier
// is the part fine-tuning replaces and retrains.
type ConvNet struct {
	nn.BaseModel
	ConvNetConfig
	Conv1      *convolution.Model
	Conv2      *convolution.Model
	Classifier *linear.Model
}

type ConvNetConfig struct {
	InputChannels int
	Conv1Channels int
	Conv2Channels int
	KernelSize    int
	PoolSize      int
	CropSize      int
	NumClasses    int
}

// featureSide is the side of one feature map after both convolution and
// pooling stages. CropSize must keep both pooling divisions exact.
func (c ConvNetConfig) featureSide() int {
	side := (c.CropSize - c.KernelSize + 1) / c.PoolSize
	return (side - c.KernelSize + 1) / c.PoolSize
}

// FeatureDimension is the size of the flattened feature vector the
// classifier consumes.
func (c ConvNetConfig) FeatureDimension() int {
	side := c.featureSide()
	return c.Conv2Channels * side * side
}

func NewConvNet(config ConvNetConfig) *ConvNet {
	return &ConvNet{
		ConvNetConfig: config,
		Conv1: convolution.New(convolution.Config{
			KernelSizeX:    config.KernelSize,
			KernelSizeY:    config.KernelSize,
			XStride:        1,
			YStride:        1,
			InputChannels:  config.InputChannels,
			OutputChannels: config.Conv1Channels,
			Activation:     ag.OpReLU,
		}),
		Conv2: convolution.New(convolution.Config{
			KernelSizeX:    config.KernelSize,
			KernelSizeY:    config.KernelSize,
			XStride:        1,
			YStride:        1,
			InputChannels:  config.Conv1Channels,
			OutputChannels: config.Conv2Channels,
			Activation:     ag.OpReLU,
		}),
		Classifier: linear.New(config.FeatureDimension(), config.NumClasses),
	}
}

func (m *ConvNet) Init(generator *rand.LockedRand) {
	gain := initializers.Gain(ag.OpReLU)
	for _, kernel := range m.Conv1.K {
		initializers.XavierUniform(kernel.Value(), gain, generator)
	}
	for _, kernel := range m.Conv2.K {
		initializers.XavierUniform(kernel.Value(), gain, generator)
	}
	initializers.XavierUniform(m.Classifier.W.Value(), initializers.Gain(ag.OpIdentity), generator)
}

// ReplaceClassifier swaps the classifier head for a freshly initialized one
// sized for a new class count, leaving the convolution stages untouched.
func (m *ConvNet) ReplaceClassifier(numClasses int, generator *rand.LockedRand) {
	m.NumClasses = numClasses
	m.Classifier = linear.New(m.FeatureDimension(), numClasses)
	initializers.XavierUniform(m.Classifier.W.Value(), initializers.Gain(ag.OpIdentity), generator)
}

// Forward runs one image through the network. The arguments are the image's
// channel planes; the result holds a single node with one logit per class.
func (m *ConvNet) Forward(xs ...ag.Node) []ag.Node {
	g := m.Graph()
	maps := m.Conv1.Forward(xs...)
	for i := range maps {
		maps[i] = g.MaxPooling(maps[i], m.PoolSize, m.PoolSize)
	}
	maps = m.Conv2.Forward(maps...)
	side := m.featureSide()
	flat := make([]ag.Node, len(maps))
	for i := range maps {
		flat[i] = g.Reshape(g.MaxPooling(maps[i], m.PoolSize, m.PoolSize), side*side, 1)
	}
	return m.Classifier.Forward(g.Concat(flat...))
}
