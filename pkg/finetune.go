package pkg

import (
	"fmt"
	mrand "math/rand"
	"os"

	"github.com/nlpodyssey/spago/pkg/mat/rand"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/rs/zerolog/log"

	"rookery/pkg/io"
	"rookery/pkg/model"
	"rookery/pkg/vision"
)

// Finetune adapts a saved vision model to a new set of classes. The
// convolution stages keep their pretrained weights and the classifier is
// replaced by a freshly initialized one sized for the classes found in the
// training directory. Only the new classifier is updated unless trainAll is
// set, in which case the convolution stages are trained as well.
func Finetune(modelFileName, dataDir, testDir, outputFileName string, trainAll bool, params TrainingParameters) error {
	modelFile, err := os.Open(modelFileName)
	if err != nil {
		return fmt.Errorf("error opening model file %s: %w", modelFileName, err)
	}
	defer modelFile.Close()

	m, err := io.LoadModel(modelFile)
	if err != nil {
		return fmt.Errorf("error loading model from file %s: %w", modelFileName, err)
	}
	if m.Kind != model.KindVision {
		return fmt.Errorf("model %s is not a vision model", modelFileName)
	}

	rndGen := rand.NewLockedRand(params.RndSeed)
	shuffler := mrand.New(mrand.NewSource(int64(params.RndSeed)))

	labels, images, imageErrors, err := vision.LoadImageDirectory(vision.ImageParameters{
		DataDir: dataDir,
		Config:  *m.Vision,
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

	trainSet, evalSet, err := splitImageSets(images, testDir, labels, *m.Vision, params, shuffler)
	if err != nil {
		return err
	}

	m.ConvNet.ReplaceClassifier(labels.Size(), rndGen)
	m.Labels = labels

	var updated nn.Model = m.ConvNet.Classifier
	if trainAll {
		updated = m.ConvNet
	}
	t := &visionTrainer{params: params, optimizer: newOptimizer(params.LearningRate, updated), net: m.ConvNet}
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
