package pkg

import (
	"fmt"
	gio "io"
	"os"

	"github.com/nlpodyssey/spago/pkg/mat/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"

	"rookery/pkg/io"
	"rookery/pkg/model"
	"rookery/pkg/vision"
)

// Predict runs a saved model over unlabelled input and writes one line per
// prediction to stdout. Tabular models read CSV rows from the given file, or
// from stdin when the name is empty; vision models read a single image file.
// Classifiers print the predicted class with its softmax probability,
// regression models the predicted value.
func Predict(modelFileName, inputFileName string) error {
	modelFile, err := os.Open(modelFileName)
	if err != nil {
		return fmt.Errorf("error opening model file %s: %w", modelFileName, err)
	}
	defer modelFile.Close()

	m, err := io.LoadModel(modelFile)
	if err != nil {
		return fmt.Errorf("error loading model from file %s: %w", modelFileName, err)
	}

	if m.Kind == model.KindVision {
		return predictImageFile(m, inputFileName, os.Stdout)
	}
	return predictRecords(m, inputFileName, os.Stdout)
}

func predictRecords(m *model.Model, inputFileName string, outputWriter gio.Writer) error {
	var input gio.Reader
	if inputFileName != "" {
		inputFile, err := os.Open(inputFileName)
		if err != nil {
			return fmt.Errorf("error opening input file %s: %w", inputFileName, err)
		}
		defer inputFile.Close()
		input = inputFile
	} else {
		input = os.Stdin
	}

	records, dataErrors, err := io.LoadFeatureRecords(input, m.MetaData)
	if err != nil {
		return fmt.Errorf("error reading input data: %w", err)
	}
	printDataErrors(dataErrors)

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	defer g.Clear()

	data := io.NewDataSet(records, evalBatchSize)
	data.ResetOrder(io.OriginalOrder)
	for batch := data.Next(); len(batch) > 0; batch = data.Next() {
		predictions := predictTabular(g, m, batch)
		for _, prediction := range predictions {
			writePrediction(m, g, prediction, outputWriter)
		}
		g.Clear()
	}
	return nil
}

func writePrediction(m *model.Model, g *ag.Graph, prediction ag.Node, outputWriter gio.Writer) {
	if m.MetaData.TargetType() == model.Continuous {
		fmt.Fprintf(outputWriter, "%.5f\n", prediction.ScalarValue())
		return
	}
	probabilities := g.Softmax(prediction)
	class, probability := argmax(probabilities.Value().Data())
	fmt.Fprintf(outputWriter, "%s,%.5f\n", m.MetaData.TargetMap.IndexToName[class], probability)
}

func predictImageFile(m *model.Model, imageFileName string, outputWriter gio.Writer) error {
	if imageFileName == "" {
		return fmt.Errorf("no image file given")
	}
	transform := vision.NewTransform(*m.Vision)
	channels, err := transform.LoadImage(imageFileName)
	if err != nil {
		return fmt.Errorf("error loading image %s: %w", imageFileName, err)
	}

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	defer g.Clear()

	record := &vision.ImageRecord{Channels: channels, Path: imageFileName}
	prediction := predictVision(g, m, record)
	probabilities := g.Softmax(prediction)
	class, probability := argmax(probabilities.Value().Data())
	fmt.Fprintf(outputWriter, "%s,%s,%.5f\n", imageFileName, m.Labels.IndexToName[class], probability)
	return nil
}
