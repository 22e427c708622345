package pkg

import (
	"fmt"
	mrand "math/rand"
	"os"

	"github.com/nlpodyssey/spago/pkg/mat/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/optimizers/gd"
	"github.com/rs/zerolog/log"

	"rookery/pkg/io"
	"rookery/pkg/model"
	"rookery/pkg/vision"
)

// Pretrain trains a convolutional image classifier from scratch on a
// directory tree with one subdirectory per class, and saves the resulting
// model together with the image transform settings and the class names.
// When no test directory is given a random split of the training images
// provides the held-out evaluation set.
func Pretrain(dataDir, testDir, outputFileName string, config model.ConvNetConfig, visionConfig model.VisionConfig, params TrainingParameters) error {
	if err := validateVisionConfig(visionConfig, config); err != nil {
		return err
	}

	rndGen := rand.NewLockedRand(params.RndSeed)
	shuffler := mrand.New(mrand.NewSource(int64(params.RndSeed)))

	labels, images, imageErrors, err := vision.LoadImageDirectory(vision.ImageParameters{
		DataDir: dataDir,
		Config:  visionConfig,
	}, nil)
	if err != nil {
		return fmt.Errorf("error loading training images from %s: %w", dataDir, err)
	}
	printImageErrors(imageErrors)
	if len(images) == 0 {
		log.Fatal().Msg("No images to train")
	}
	if labels.Size() < 2 {
		return fmt.Errorf("training directory %s must contain at least two class subdirectories", dataDir)
	}

	trainSet, evalSet, err := splitImageSets(images, testDir, labels, visionConfig, params, shuffler)
	if err != nil {
		return err
	}

	// Geometry that follows from the data rather than from flags
	config.CropSize = visionConfig.CropSize
	config.NumClasses = labels.Size()

	net := model.NewConvNet(config)
	net.Init(rndGen)
	m := model.NewVisionModel(labels, visionConfig, net)

	t := &visionTrainer{params: params, optimizer: newOptimizer(params.LearningRate, net), net: net}
	if err := t.trainEpochs(m, trainSet, evalSet); err != nil {
		return err
	}

	outputFile, err := os.Create(outputFileName)
	if err != nil {
		return fmt.Errorf("error creating output file %s: %w", outputFileName, err)
	}
	defer outputFile.Close()
	if err := io.SaveModel(m, outputFile); err != nil {
		return fmt.Errorf("error saving model to %s: %w", outputFileName, err)
	}

	return evalVisionSet(m, evalSet, "", "")
}

// validateVisionConfig rejects crop sizes the network geometry cannot
// handle: both pooling stages must divide their input exactly.
func validateVisionConfig(visionConfig model.VisionConfig, config model.ConvNetConfig) error {
	if visionConfig.CropSize <= 0 {
		return fmt.Errorf("crop size must be positive, got %d", visionConfig.CropSize)
	}
	if visionConfig.ResizeTo < visionConfig.CropSize {
		return fmt.Errorf("resize size %d is smaller than crop size %d", visionConfig.ResizeTo, visionConfig.CropSize)
	}
	conv1Side := visionConfig.CropSize - config.KernelSize + 1
	if conv1Side <= 0 || conv1Side%config.PoolSize != 0 {
		return fmt.Errorf("crop size %d does not fit a %dx%d kernel with pool size %d",
			visionConfig.CropSize, config.KernelSize, config.KernelSize, config.PoolSize)
	}
	conv2Side := conv1Side/config.PoolSize - config.KernelSize + 1
	if conv2Side <= 0 || conv2Side%config.PoolSize != 0 {
		return fmt.Errorf("crop size %d does not fit two %dx%d convolution stages with pool size %d",
			visionConfig.CropSize, config.KernelSize, config.KernelSize, config.PoolSize)
	}
	return nil
}

// splitImageSets pairs the training images with a held-out evaluation set,
// loading the test directory against the training labels when one is given
// and splitting randomly otherwise.
func splitImageSets(images []*vision.ImageRecord, testDir string, labels model.NameMap,
	visionConfig model.VisionConfig, params TrainingParameters, shuffler *mrand.Rand) (*vision.ImageSet, *vision.ImageSet, error) {
	all := vision.NewImageSet(images, params.BatchSize)
	all.Rand = shuffler

	if testDir != "" {
		_, testImages, testErrors, err := vision.LoadImageDirectory(vision.ImageParameters{
			DataDir: testDir,
			Config:  visionConfig,
		}, &labels)
		if err != nil {
			return nil, nil, fmt.Errorf("error loading test images from %s: %w", testDir, err)
		}
		printImageErrors(testErrors)
		if len(testImages) == 0 {
			return nil, nil, fmt.Errorf("no usable test images in %s", testDir)
		}
		evalSet := vision.NewImageSet(testImages, params.BatchSize)
		evalSet.Rand = shuffler
		return all, evalSet, nil
	}

	if params.SplitFraction <= 0 || params.SplitFraction >= 1 {
		return nil, nil, fmt.Errorf("split fraction must lie strictly between 0 and 1, got %f", params.SplitFraction)
	}
	if all.Size() < 2 {
		return nil, nil, fmt.Errorf("not enough images to hold out an evaluation set")
	}
	trainSize := int(float64(all.Size()) * params.SplitFraction)
	if trainSize < 1 {
		trainSize = 1
	}
	splits := all.RandomSplit(trainSize, all.Size()-trainSize)
	return splits[0], splits[1], nil
}

type visionTrainer struct {
	params    TrainingParameters
	optimizer *gd.GradientDescent
	net       *model.ConvNet
}

func (t *visionTrainer) trainEpochs(m *model.Model, trainSet, evalSet *vision.ImageSet) error {
	history := &History{}
	for epoch := 0; epoch < t.params.NumEpochs; epoch++ {
		t.optimizer.IncEpoch()
		trainSet.ResetOrder(vision.RandomOrder)
		epochLoss := 0.0
		exampleCount := 0
		batchIndex := 0
		for batch := trainSet.Next(); len(batch) > 0; batch = trainSet.Next() {
			loss := t.trainBatch(batch)
			t.optimizer.Optimize()
			epochLoss += loss * float64(len(batch))
			exampleCount += len(batch)
			if batchIndex%t.params.ReportInterval == 0 {
				log.Info().Int("Epoch", epoch).Int("Batch", batchIndex).Float64("Loss", loss).Msg("")
			}
			batchIndex++
		}
		trainLoss := epochLoss / float64(exampleCount)
		evalLoss := evalImageSetLoss(m, evalSet)
		history.Append(epoch, trainLoss, evalLoss)
		log.Info().Int("Epoch", epoch).Float64("TrainLoss", trainLoss).Float64("EvalLoss", evalLoss).Msg("")
	}

	if t.params.HistoryFile != "" {
		return history.WriteCSVFile(t.params.HistoryFile)
	}
	return nil
}

func (t *visionTrainer) trainBatch(batch vision.ImageBatch) float64 {
	t.optimizer.IncBatch()

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(t.params.RndSeed)))
	defer g.Clear()
	proc := nn.Reify(nn.Context{Graph: g, Mode: nn.Training}, t.net).(*model.ConvNet)

	var loss ag.Node
	for _, record := range batch {
		channels := make([]ag.Node, len(record.Channels))
		for i, channel := range record.Channels {
			channels[i] = g.NewVariable(channel, false)
		}
		prediction := proc.Forward(channels...)[0]
		loss = g.Add(loss, crossEntropyLoss(g, prediction, record.Target))
	}
	loss = g.Div(loss, g.NewScalar(float64(len(batch))))
	g.Backward(loss)
	return loss.ScalarValue()
}
