package pkg

import (
	"fmt"
	mrand "math/rand"
	"os"

	"github.com/nlpodyssey/spago/pkg/mat/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/losses"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/optimizers/gd"
	"github.com/nlpodyssey/spago/pkg/ml/optimizers/gd/adam"
	"github.com/rs/zerolog/log"

	"rookery/pkg/io"
	"rookery/pkg/model"
)

type TrainingParameters struct {
	BatchSize          int
	NumEpochs          int
	LearningRate       float64
	ReportInterval     int
	RndSeed            uint64
	CategoricalColumns []string
	InputDropout       float64

	// Replicate duplicates every training record this many times
	Replicate int

	// NoScale disables feature standardization
	NoScale bool

	// ContinuousTarget trains a regression model instead of a classifier
	ContinuousTarget bool

	// SplitFraction is the share of records kept for training when no
	// separate test file is given; the rest is held out for evaluation
	SplitFraction float64

	// HistoryFile, when set, receives the per-epoch loss curves as CSV
	HistoryFile string
}

const GradientClipThreshold = 2000.0

type Trainer struct {
	params    TrainingParameters
	optimizer *gd.GradientDescent
	model     *model.MLP
	lossFunc  lossFunc
	dropout   *DropoutPreprocessor
}

type lossFunc func(g *ag.Graph, prediction ag.Node, target float64) ag.Node

func lossFor(metaData *model.Metadata) lossFunc {
	if metaData.TargetType() == model.Continuous {
		return meanSquaredLoss
	}
	return crossEntropyLoss
}

func crossEntropyLoss(g *ag.Graph, prediction ag.Node, target float64) ag.Node {
	return losses.CrossEntropy(g, prediction, int(target))
}

func meanSquaredLoss(g *ag.Graph, prediction ag.Node, target float64) ag.Node {
	return losses.MSE(g, prediction, g.NewScalar(target), false)
}

func newOptimizer(learningRate float64, updated nn.Model) *gd.GradientDescent {
	updaterConfig := adam.NewDefaultConfig()
	updaterConfig.StepSize = learningRate
	return gd.NewOptimizer(adam.New(updaterConfig), nn.NewDefaultParamsIterator(updated),
		gd.ClipGradByValue(GradientClipThreshold))
}

// Train fits a fully-connected network on the given CSV data and saves the
// resulting model. When no test file is given, a random 70/30-style split of
// the training data provides the held-out evaluation set; either way the
// held-out loss is tracked per epoch and full metrics are reported at the
// end.
func Train(trainFile, testFile, outputFileName, targetColumn string, config model.MLPConfig, trainingParams TrainingParameters) error {
	t := &Trainer{params: trainingParams}

	rndGen := rand.NewLockedRand(trainingParams.RndSeed)
	shuffler := mrand.New(mrand.NewSource(int64(trainingParams.RndSeed)))

	metaData, records, dataErrors, err := io.LoadData(io.DataParameters{
		DataFile:                 trainFile,
		TargetColumn:             targetColumn,
		CategoricalColumns:       io.NewSet(trainingParams.CategoricalColumns...),
		CategoricalEmbeddingSize: config.CategoricalEmbeddingDimension,
		Replicate:                trainingParams.Replicate,
		Standardize:              !trainingParams.NoScale,
		ContinuousTarget:         trainingParams.ContinuousTarget,
	}, nil)
	if err != nil {
		return fmt.Errorf("error reading training data: %w", err)
	}
	printDataErrors(dataErrors)
	if len(records) == 0 {
		log.Fatal().Msg("No data to train")
	}

	trainSet, evalSet, err := splitTrainEval(records, testFile, metaData, trainingParams, shuffler)
	if err != nil {
		return err
	}

	// Overwrite values that are only known after parsing the dataset
	config.InputDimension = metaData.InputSize()
	config.NumCategoricalEmbeddings = metaData.CategoricalValuesMap.Size()
	if metaData.TargetType() == model.Categorical {
		config.OutputDimension = metaData.TargetMap.Size()
	} else {
		config.OutputDimension = 1
	}

	t.model = model.NewMLP(config)
	t.model.Init(rndGen)
	t.lossFunc = lossFor(metaData)
	if trainingParams.InputDropout > 0 {
		t.dropout = NewDropoutPreprocessor(trainingParams.InputDropout, randUniformSource{rand: shuffler},
			config.InputDimension, trainingParams.BatchSize)
	}
	t.optimizer = newOptimizer(trainingParams.LearningRate, t.model)

	m := model.NewTabularModel(metaData, t.model)

	history := &History{}
	for epoch := 0; epoch < trainingParams.NumEpochs; epoch++ {
		t.optimizer.IncEpoch()
		trainSet.ResetOrder(io.RandomOrder)
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
		evalLoss := evalDataSetLoss(m, evalSet, t.lossFunc)
		history.Append(epoch, trainLoss, evalLoss)
		log.Info().Int("Epoch", epoch).Float64("TrainLoss", trainLoss).Float64("EvalLoss", evalLoss).Msg("")
	}

	if trainingParams.HistoryFile != "" {
		if err := history.WriteCSVFile(trainingParams.HistoryFile); err != nil {
			return err
		}
	}

	outputFile, err := os.Create(outputFileName)
	if err != nil {
		return fmt.Errorf("error creating output file %s: %w", outputFileName, err)
	}
	defer outputFile.Close()
	if err := io.SaveModel(m, outputFile); err != nil {
		return fmt.Errorf("error saving model to %s: %w", outputFileName, err)
	}

	return testInternal(m, evalSet, "", "")
}

// splitTrainEval pairs the training records with a held-out evaluation set,
// loading the test file against the training metadata when one is given and
// splitting randomly otherwise.
func splitTrainEval(records []*io.DataRecord, testFile string, metaData *model.Metadata,
	params TrainingParameters, shuffler *mrand.Rand) (*io.DataSet, *io.DataSet, error) {
	all := io.NewDataSet(records, params.BatchSize)
	all.Rand = shuffler

	if testFile != "" {
		_, testRecords, testErrors, err := io.LoadData(io.DataParameters{
			DataFile:     testFile,
			TargetColumn: metaData.TargetName(),
		}, metaData)
		if err != nil {
			return nil, nil, fmt.Errorf("error reading test data: %w", err)
		}
		printDataErrors(testErrors)
		if len(testRecords) == 0 {
			return nil, nil, fmt.Errorf("no usable test records in %s", testFile)
		}
		evalSet := io.NewDataSet(testRecords, params.BatchSize)
		evalSet.Rand = shuffler
		return all, evalSet, nil
	}

	if params.SplitFraction <= 0 || params.SplitFraction >= 1 {
		return nil, nil, fmt.Errorf("split fraction must lie strictly between 0 and 1, got %f", params.SplitFraction)
	}
	if all.Size() < 2 {
		return nil, nil, fmt.Errorf("not enough records to hold out an evaluation set")
	}
	trainSize := int(float64(all.Size()) * params.SplitFraction)
	if trainSize < 1 {
		trainSize = 1
	}
	splits := all.RandomSplit(trainSize, all.Size()-trainSize)
	return splits[0], splits[1], nil
}

func (t *Trainer) trainBatch(batch io.DataBatch) float64 {
	t.optimizer.IncBatch()

	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(t.params.RndSeed)))
	defer g.Clear()
	input := createInputNodes(batch, g, t.model)
	if t.dropout != nil {
		input = t.dropout.process(g, input)
	}
	proc := nn.Reify(nn.Context{Graph: g, Mode: nn.Training}, t.model).(*model.MLP)
	logits := proc.Forward(input...)

	var loss ag.Node
	for i := range batch {
		loss = g.Add(loss, t.lossFunc(g, logits[i], batch[i].Target))
	}
	loss = g.Div(loss, g.NewScalar(float64(len(batch))))
	g.Backward(loss)
	return loss.ScalarValue()
}

func createInputNodes(batch io.DataBatch, g *ag.Graph, m *model.MLP) []ag.Node {
	input := make([]ag.Node, len(batch))
	for i := range input {
		input[i] = g.NewVariable(batch[i].ContinuousFeatures, false)
		for _, index := range batch[i].CategoricalFeatures {
			input[i] = g.Concat(input[i], g.NewWrap(m.CategoricalFeatureEmbeddings[index]))
		}
	}
	return input
}

// evalDataSetLoss is the mean loss over a held-out set, computed in
// inference mode.
func evalDataSetLoss(m *model.Model, data *io.DataSet, loss lossFunc) float64 {
	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	defer g.Clear()
	total := 0.0
	count := 0
	data.ResetOrder(io.OriginalOrder)
	for batch := data.Next(); len(batch) > 0; batch = data.Next() {
		predictions := predictTabular(g, m, batch)
		for i, prediction := range predictions {
			total += loss(g, prediction, batch[i].Target).ScalarValue()
			count++
		}
		g.Clear()
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}
