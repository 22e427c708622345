package pkg

import (
	mrand "math/rand"
	"testing"

	"github.com/nlpodyssey/spago/pkg/mat"
	"github.com/nlpodyssey/spago/pkg/mat/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/stretchr/testify/require"

	"rookery/pkg/io"
)

type testRand struct {
	values []float64
	index  int
}

func (t *testRand) Float() float64 {
	v := t.values[t.index]
	t.index = (t.index + 1) % len(t.values)
	return v
}

func TestInputDropout(t *testing.T) {

	r := rand.NewLockedRand(42)
	g := ag.NewGraph(ag.Rand(r))
	tr := testRand{
		values: []float64{0.0, 0.09, 0.101, 1.0, 0.0, 0.0, 1.0, 1.0, 0.0, 0.0},
	}
	dropout := NewDropoutPreprocessor(0.1, &tr, 10, 5)
	data := make([]ag.Node, 5)
	for i := range data {
		data[i] = g.NewVariable(mat.NewInitVecDense(10, 100.0), false)
	}
	output := dropout.process(g, data)
	require.Equal(t, len(data), len(output))
	require.Equal(t, len(data), len(dropout.CurrentMasks))

	// Draws below the dropout probability zero the feature out
	for i := range output {
		mask := dropout.CurrentMasks[i]
		require.Equal(t, mask.Rows(), data[i].Value().Rows())
		require.Equal(t, mask.Columns(), data[i].Value().Columns())
		require.Equal(t, []float64{0, 0, 1, 1, 0, 0, 1, 1, 0, 0}, mask.Data())
		require.Equal(t, []float64{0.0, 0.0, 100.0, 100.0, 0.0, 0.0, 100.0, 100.0, 0.0, 0.0}, output[i].Value().Data())
	}

}

func TestSplitTrainEvalFraction(t *testing.T) {
	records := make([]*io.DataRecord, 10)
	for i := range records {
		records[i] = &io.DataRecord{Target: float64(i)}
	}
	shuffler := mrand.New(mrand.NewSource(42))

	params := TrainingParameters{BatchSize: 4, SplitFraction: 0.7}
	trainSet, evalSet, err := splitTrainEval(records, "", nil, params, shuffler)
	require.NoError(t, err)
	require.Equal(t, 7, trainSet.Size())
	require.Equal(t, 3, evalSet.Size())

	params.SplitFraction = 1.0
	_, _, err = splitTrainEval(records, "", nil, params, shuffler)
	require.Error(t, err)

	params.SplitFraction = 0.0
	_, _, err = splitTrainEval(records, "", nil, params, shuffler)
	require.Error(t, err)
}

func TestSplitTrainEvalTestFile(t *testing.T) {
	metaData, records, _, err := io.LoadData(io.DataParameters{
		DataFile:     "../datasets/penguins/penguins.train",
		TargetColumn: "species",
	}, nil)
	require.NoError(t, err)

	shuffler := mrand.New(mrand.NewSource(42))
	params := TrainingParameters{BatchSize: 16}
	trainSet, evalSet, err := splitTrainEval(records, "../datasets/penguins/penguins.test", metaData, params, shuffler)
	require.NoError(t, err)
	require.Equal(t, 84, trainSet.Size())
	require.Equal(t, 24, evalSet.Size())
}
