package pkg

import (
	"testing"

	"github.com/nlpodyssey/spago/pkg/ml/stats"
	"github.com/stretchr/testify/require"
)

func TestArgmax(t *testing.T) {
	index, value := argmax([]float64{0.1, 2.5, -1.0, 2.5})
	require.Equal(t, 1, index)
	require.Equal(t, 2.5, value)

	index, value = argmax([]float64{-3.0})
	require.Equal(t, 0, index)
	require.Equal(t, -3.0, value)
}

func TestComputeOverallF1(t *testing.T) {
	a := stats.NewMetricCounter()
	a.TruePos = 8
	a.FalsePos = 2
	a.FalseNeg = 2

	b := stats.NewMetricCounter()
	b.TruePos = 2
	b.FalsePos = 4
	b.FalseNeg = 4

	metrics := map[string]*stats.ClassMetrics{"a": a, "b": b}
	macroF1, microF1 := computeOverallF1(metrics)

	// Macro averages per-class F1, micro pools the counts
	require.InDelta(t, (0.8+1.0/3.0)/2.0, macroF1, 1e-9)
	require.InDelta(t, 2.0*10.0/(2.0*10.0+6.0+6.0), microF1, 1e-9)
}
