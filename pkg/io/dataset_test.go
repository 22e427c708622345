package io

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func makeRecords(n int) []*DataRecord {
	records := make([]*DataRecord, n)
	for i := range records {
		records[i] = &DataRecord{Target: float64(i)}
	}
	return records
}

func collectTargets(d *DataSet) []float64 {
	var targets []float64
	for batch := d.Next(); len(batch) > 0; batch = d.Next() {
		for _, record := range batch {
			targets = append(targets, record.Target)
		}
	}
	return targets
}

func TestDataSetBatches(t *testing.T) {
	d := NewDataSet(makeRecords(10), 3)
	require.Equal(t, 10, d.Size())

	require.Equal(t, 3, len(d.Next()))
	require.Equal(t, 3, len(d.Next()))
	require.Equal(t, 3, len(d.Next()))
	require.Equal(t, 1, len(d.Next()))
	require.Equal(t, 0, len(d.Next()))

	d.ResetOrder(OriginalOrder)
	require.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, collectTargets(d))
}

func TestDataSetRandomOrder(t *testing.T) {
	d := NewDataSet(makeRecords(10), 4)
	d.Rand = rand.New(rand.NewSource(42))

	d.ResetOrder(RandomOrder)
	shuffled := collectTargets(d)
	require.Equal(t, 10, len(shuffled))
	require.NotEqual(t, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, shuffled)

	seen := map[float64]bool{}
	for _, target := range shuffled {
		seen[target] = true
	}
	require.Equal(t, 10, len(seen))
}

func TestDataSetRandomSplit(t *testing.T) {
	d := NewDataSet(makeRecords(10), 4)
	d.Rand = rand.New(rand.NewSource(42))

	splits := d.RandomSplit(7, 3)
	require.Equal(t, 2, len(splits))
	require.Equal(t, 7, splits[0].Size())
	require.Equal(t, 3, splits[1].Size())

	seen := map[float64]bool{}
	for _, split := range splits {
		for _, target := range collectTargets(split) {
			require.False(t, seen[target])
			seen[target] = true
		}
	}
	require.Equal(t, 10, len(seen))
}
