package pkg

import (
	"fmt"
	gio "io"

	"sort"

	"github.com/nlpodyssey/spago/pkg/mat"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"rookery/pkg/io"
	"rookery/pkg/model"
	"rookery/pkg/vision"

	"os"

	"github.com/nlpodyssey/spago/pkg/mat/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/stats"
)

const evalBatchSize = 16

type NoopWriter struct{}

func (x NoopWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

// Test evaluates a saved model on labelled data: a CSV file for tabular
// models, a directory with one subdirectory per class for vision models.
// Per-class metrics and the confusion matrix are logged. When given,
// outputFileName receives one line per prediction and confusionFileName
// the confusion matrix as CSV.
func Test(modelFileName, inputFileName, outputFileName, confusionFileName string) error {

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
		return testVision(m, inputFileName, outputFileName, confusionFileName)
	}

	_, records, dataErrors, err := io.LoadData(io.DataParameters{
		DataFile:     inputFileName,
		TargetColumn: m.MetaData.TargetName(),
	}, m.MetaData)
	if err != nil {
		return fmt.Errorf("error loading data from %s: %w", inputFileName, err)
	}
	printDataErrors(dataErrors)
	if len(records) == 0 {
		log.Fatal().Msg("No data to test")
		return nil
	}
	return testInternal(m, io.NewDataSet(records, evalBatchSize), outputFileName, confusionFileName)
}

type modelEvaluator interface {
	EvaluatePrediction(prediction ag.Node, target float64)
	LogMetrics()
	Loss() float64
}

type classificationEvaluator struct {
	predictionCount int
	loss            float64
	metrics         map[string]*stats.ClassMetrics
	labels          model.NameMap
	confusion       *ConfusionMatrix
	lossFunc        lossFunc
	g               *ag.Graph
	outputWriter    gio.Writer
}

func newClassificationEvaluator(labels model.NameMap, lossFunc lossFunc, g *ag.Graph, outputWriter gio.Writer) *classificationEvaluator {
	return &classificationEvaluator{
		metrics:      map[string]*stats.ClassMetrics{},
		labels:       labels,
		confusion:    NewConfusionMatrix(labels),
		lossFunc:     lossFunc,
		g:            g,
		outputWriter: outputWriter,
	}
}

type classificationPrediction struct {
	predictedClass string
	predictedIndex int
	label          string
	labelValue     float64
	logits         mat.Matrix
	maxLogit       float64
}

func (c *classificationEvaluator) EvaluatePrediction(node ag.Node, target float64) {
	prediction := c.decode(node, target)
	c.loss += c.lossFunc(c.g, c.g.NewVariable(prediction.logits, false), prediction.labelValue).ScalarValue()
	c.predictionCount++

	fmt.Fprintf(c.outputWriter, "%s,%s,%.5f\n", prediction.label, prediction.predictedClass, prediction.maxLogit)

	c.confusion.Add(int(prediction.labelValue), prediction.predictedIndex)

	labelClassMetrics, ok := c.metrics[prediction.label]
	if !ok {
		labelClassMetrics = stats.NewMetricCounter()
		c.metrics[prediction.label] = labelClassMetrics
	}
	predictedClassMetrics, ok := c.metrics[prediction.predictedClass]
	if !ok {
		predictedClassMetrics = stats.NewMetricCounter()
		c.metrics[prediction.predictedClass] = predictedClassMetrics
	}

	if prediction.label == prediction.predictedClass {
		labelClassMetrics.IncTruePos()
	} else {
		labelClassMetrics.IncFalseNeg()
		predictedClassMetrics.IncFalsePos()
	}

}

func (c *classificationEvaluator) LogMetrics() {
	// Sort class names for deterministic output
	sortedClasses := sortClasses(c.metrics)
	for _, class := range sortedClasses {
		result := c.metrics[class]
		log.Info().Str("Class", class).
			Int("TP", result.TruePos).
			Int("FP", result.FalsePos).
			Int("TN", result.TrueNeg).
			Int("FN", result.FalseNeg).
			Float64("Precision", result.Precision()).
			Float64("Recall", result.Recall()).
			Float64("F1", result.F1Score()).
			Msg("")

	}

	macroF1, microF1 := computeOverallF1(c.metrics)
	log.Info().Float64("MacroF1", macroF1).Float64("MicroF1", microF1).Msg("")

	c.confusion.LogRows()
	log.Info().Float64("Accuracy", c.confusion.Accuracy()).Msg("")
}

func (c *classificationEvaluator) Loss() float64 {
	return c.loss / float64(c.predictionCount)
}

func (c *classificationEvaluator) decode(modelOutput ag.Node, target float64) classificationPrediction {
	class, logit := argmax(modelOutput.Value().Data())
	return classificationPrediction{
		predictedClass: c.labels.IndexToName[class],
		predictedIndex: class,
		label:          c.labels.IndexToName[int(target)],
		labelValue:     target,
		logits:         modelOutput.Value().Clone(),
		maxLogit:       logit,
	}
}

func testInternal(m *model.Model, testSet *io.DataSet, outputFileName, confusionFileName string) error {

	var outputWriter gio.Writer
	if outputFileName != "" {
		outputFile, err := os.Create(outputFileName)
		if err != nil {
			return fmt.Errorf("error opening output file %s: %w", outputFileName, err)
		}
		defer outputFile.Close()
		outputWriter = outputFile
	} else {
		outputWriter = NoopWriter{}
	}

	lossFunc := lossFor(m.MetaData)

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	defer g.Clear()

	var evaluator modelEvaluator
	var confusion *ConfusionMatrix
	switch m.MetaData.TargetType() {
	case model.Categorical:
		classificationEval := newClassificationEvaluator(m.MetaData.TargetMap, lossFunc, g, outputWriter)
		confusion = classificationEval.confusion
		evaluator = classificationEval
	default:
		evaluator = &regressionEvaluator{
			lossFunc:     lossFunc,
			g:            g,
			outputWriter: outputWriter,
		}
	}

	testSet.ResetOrder(io.OriginalOrder)
	for batch := testSet.Next(); len(batch) > 0; batch = testSet.Next() {
		predictions := predictTabular(g, m, batch)
		for i, prediction := range predictions {
			evaluator.EvaluatePrediction(prediction, batch[i].Target)
		}
		g.Clear()

	}
	evaluator.LogMetrics()
	log.Info().Float64("Loss", evaluator.Loss()).Msg("")

	if confusionFileName != "" && confusion != nil {
		return confusion.WriteCSVFile(confusionFileName)
	}
	return nil
}

func computeOverallF1(metrics map[string]*stats.ClassMetrics) (float64, float64) {
	macroF1 := 0.0
	for _, metric := range metrics {
		macroF1 += metric.F1Score()
	}
	macroF1 /= float64(len(metrics))

	micro := stats.NewMetricCounter()
	for _, result := range metrics {
		micro.TruePos += result.TruePos
		micro.FalsePos += result.FalsePos
		micro.FalseNeg += result.FalseNeg
		micro.TrueNeg += result.TrueNeg
	}
	return macroF1, micro.F1Score()

}

func sortClasses(metrics map[string]*stats.ClassMetrics) []string {
	result := make([]string, 0, len(metrics))
	for class := range metrics {
		result = append(result, class)
	}
	sort.Strings(result)
	return result
}

type regressionEvaluator struct {
	loss            float64
	predictionCount int
	estimated       []float64
	values          []float64
	lossFunc        lossFunc
	g               *ag.Graph
	outputWriter    gio.Writer
}

func (r *regressionEvaluator) EvaluatePrediction(prediction ag.Node, target float64) {
	log.Debug().Float64("Target", target).Float64("Prediction", prediction.ScalarValue()).Msg("")
	fmt.Fprintf(r.outputWriter, "%f,%f\n", target, prediction.ScalarValue())

	r.estimated = append(r.estimated, prediction.ScalarValue())
	r.values = append(r.values, target)
	r.loss += r.lossFunc(r.g, prediction, target).ScalarValue()
	r.predictionCount++
}

func (r *regressionEvaluator) LogMetrics() {
	r2 := stat.RSquaredFrom(r.estimated, r.values, nil)
	log.Info().Float64("R-squared", r2).Msg("")
}

func (r *regressionEvaluator) Loss() float64 {
	return r.loss / float64(r.predictionCount)
}

func predictTabular(g *ag.Graph, m *model.Model, batch io.DataBatch) []ag.Node {
	input := createInputNodes(batch, g, m.MLP)
	ctx := nn.Context{Graph: g, Mode: nn.Inference}
	proc := nn.Reify(ctx, m.MLP).(*model.MLP)
	return proc.Forward(input...)
}

func argmax(data []float64) (int, float64) {
	maxInd := 0
	for i := range data {
		if data[i] > data[maxInd] {
			maxInd = i
		}
	}
	return maxInd, data[maxInd]
}

func testVision(m *model.Model, inputDirName, outputFileName, confusionFileName string) error {
	_, images, imageErrors, err := vision.LoadImageDirectory(vision.ImageParameters{
		DataDir: inputDirName,
		Config:  *m.Vision,
	}, &m.Labels)
	if err != nil {
		return fmt.Errorf("error loading images from %s: %w", inputDirName, err)
	}
	printImageErrors(imageErrors)
	if len(images) == 0 {
		log.Fatal().Msg("No images to test")
		return nil
	}
	return evalVisionSet(m, vision.NewImageSet(images, evalBatchSize), outputFileName, confusionFileName)
}

func evalVisionSet(m *model.Model, testSet *vision.ImageSet, outputFileName, confusionFileName string) error {

	var outputWriter gio.Writer
	if outputFileName != "" {
		outputFile, err := os.Create(outputFileName)
		if err != nil {
			return fmt.Errorf("error opening output file %s: %w", outputFileName, err)
		}
		defer outputFile.Close()
		outputWriter = outputFile
	} else {
		outputWriter = NoopWriter{}
	}

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	defer g.Clear()

	evaluator := newClassificationEvaluator(m.Labels, crossEntropyLoss, g, outputWriter)

	testSet.ResetOrder(vision.OriginalOrder)
	for batch := testSet.Next(); len(batch) > 0; batch = testSet.Next() {
		for _, record := range batch {
			evaluator.EvaluatePrediction(predictVision(g, m, record), record.Target)
		}
		g.Clear()
	}
	evaluator.LogMetrics()
	log.Info().Float64("Loss", evaluator.Loss()).Msg("")

	if confusionFileName != "" {
		return evaluator.confusion.WriteCSVFile(confusionFileName)
	}
	return nil
}

func predictVision(g *ag.Graph, m *model.Model, record *vision.ImageRecord) ag.Node {
	channels := make([]ag.Node, len(record.Channels))
	for i, channel := range record.Channels {
		channels[i] = g.NewVariable(channel, false)
	}
	ctx := nn.Context{Graph: g, Mode: nn.Inference}
	proc := nn.Reify(ctx, m.ConvNet).(*model.ConvNet)
	return proc.Forward(channels...)[0]
}

// evalImageSetLoss is the mean cross-entropy over a held-out image set,
// computed in inference mode.
func evalImageSetLoss(m *model.Model, data *vision.ImageSet) float64 {
	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	defer g.Clear()
	total := 0.0
	count := 0
	data.ResetOrder(vision.OriginalOrder)
	for batch := data.Next(); len(batch) > 0; batch = data.Next() {
		for _, record := range batch {
			prediction := predictVision(g, m, record)
			total += crossEntropyLoss(g, prediction, record.Target).ScalarValue()
			count++
		}
		g.Clear()
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}
