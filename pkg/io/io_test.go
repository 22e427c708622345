package io

import (
	"io/ioutil"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"rookery/pkg/model"
)

func TestLoadData(t *testing.T) {
	params := DataParameters{
		DataFile:     "../../datasets/penguins/penguins.train",
		TargetColumn: "species",
	}

	metaData, records, dataErrors, err := LoadData(params, nil)
	require.NoError(t, err)
	require.NotNil(t, metaData)
	require.Equal(t, 0, len(dataErrors))
	require.Equal(t, 84, len(records))

	require.Equal(t, 4, metaData.ContinuousFeaturesMap.Size())
	require.Equal(t, 0, metaData.CategoricalFeaturesMap.Size())
	require.Equal(t, 3, metaData.TargetMap.Size())
	require.Equal(t, model.Categorical, metaData.TargetType())
	require.Equal(t, "species", metaData.TargetName())

	r := records[0]
	require.Equal(t, 4, r.ContinuousFeatures.Rows())
	require.Equal(t, 0, len(r.CategoricalFeatures))

	// Classes are interned in order of first appearance
	require.Equal(t, 0, metaData.TargetMap.NameToIndex["Adelie"])
	require.Equal(t, 1, metaData.TargetMap.NameToIndex["Chinstrap"])
	require.Equal(t, 2, metaData.TargetMap.NameToIndex["Gentoo"])
	require.Equal(t, 0.0, records[0].Target)
	require.Equal(t, 1.0, records[1].Target)
	require.Equal(t, 2.0, records[2].Target)
}

func TestLoadDataReuseMetadata(t *testing.T) {
	trainParams := DataParameters{
		DataFile:     "../../datasets/penguins/penguins.train",
		TargetColumn: "species",
	}
	metaData, _, _, err := LoadData(trainParams, nil)
	require.NoError(t, err)

	testParams := DataParameters{
		DataFile:     "../../datasets/penguins/penguins.test",
		TargetColumn: "species",
	}
	testMetaData, records, dataErrors, err := LoadData(testParams, metaData)
	require.NoError(t, err)
	require.Equal(t, metaData, testMetaData)
	require.Equal(t, 0, len(dataErrors))
	require.Equal(t, 24, len(records))
}

func TestLoadDataErrors(t *testing.T) {
	file, err := ioutil.TempFile("", "penguins")
	require.NoError(t, err)
	defer os.Remove(file.Name())
	_, err = file.WriteString("bill_length_mm,bill_depth_mm,flipper_length_mm,body_mass_g,species\n" +
		"39.1,18.7,181,3750,Adelie\n" +
		"39.5,not-a-number,186,3800,Adelie\n" +
		"46.1,13.2,211,4500,Gentoo\n")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	params := DataParameters{DataFile: file.Name(), TargetColumn: "species"}
	metaData, records, dataErrors, err := LoadData(params, nil)
	require.NoError(t, err)
	require.Equal(t, 2, len(records))
	require.Equal(t, 1, len(dataErrors))
	require.Equal(t, 3, dataErrors[0].Line)

	// An unseen class is an error when the metadata is reused
	unseen, err := ioutil.TempFile("", "penguins")
	require.NoError(t, err)
	defer os.Remove(unseen.Name())
	_, err = unseen.WriteString("bill_length_mm,bill_depth_mm,flipper_length_mm,body_mass_g,species\n" +
		"39.1,18.7,181,3750,Emperor\n")
	require.NoError(t, err)
	require.NoError(t, unseen.Close())

	params.DataFile = unseen.Name()
	_, records, dataErrors, err = LoadData(params, metaData)
	require.NoError(t, err)
	require.Equal(t, 0, len(records))
	require.Equal(t, 1, len(dataErrors))
	require.Equal(t, 2, dataErrors[0].Line)
}

func TestLoadDataReplicate(t *testing.T) {
	params := DataParameters{
		DataFile:     "../../datasets/penguins/penguins.train",
		TargetColumn: "species",
		Replicate:    3,
	}
	_, records, dataErrors, err := LoadData(params, nil)
	require.NoError(t, err)
	require.Equal(t, 0, len(dataErrors))
	require.Equal(t, 3*84, len(records))

	// Copies carry the same values but do not share the feature matrix
	require.Equal(t, records[0].Target, records[1].Target)
	require.Equal(t, records[0].ContinuousFeatures.Data(), records[1].ContinuousFeatures.Data())
	records[0].ContinuousFeatures.Set(0, 0, -100)
	require.NotEqual(t, records[0].ContinuousFeatures.Data()[0], records[1].ContinuousFeatures.Data()[0])
}

func TestLoadDataStandardize(t *testing.T) {
	params := DataParameters{
		DataFile:     "../../datasets/penguins/penguins.train",
		TargetColumn: "species",
		Standardize:  true,
	}
	metaData, records, _, err := LoadData(params, nil)
	require.NoError(t, err)
	require.True(t, metaData.Standardized())
	require.Equal(t, 4, len(metaData.FeatureMeans))
	require.Equal(t, 4, len(metaData.FeatureStdDevs))

	column := make([]float64, len(records))
	for i := 0; i < 4; i++ {
		for j, record := range records {
			column[j] = record.ContinuousFeatures.Data()[i]
		}
		mean, stdDev := stat.MeanStdDev(column, nil)
		require.InDelta(t, 0.0, mean, 1e-9)
		require.InDelta(t, 1.0, stdDev, 1e-9)
	}

	// Reused metadata applies the stored statistics to new data
	testParams := DataParameters{
		DataFile:     "../../datasets/penguins/penguins.test",
		TargetColumn: "species",
	}
	_, testRecords, _, err := LoadData(testParams, metaData)
	require.NoError(t, err)
	first := testRecords[0].ContinuousFeatures.Data()[0]
	require.InDelta(t, (36.2-metaData.FeatureMeans[0])/metaData.FeatureStdDevs[0], first, 1e-9)
}

func TestLoadFeatureRecords(t *testing.T) {
	params := DataParameters{
		DataFile:     "../../datasets/penguins/penguins.train",
		TargetColumn: "species",
		Standardize:  true,
	}
	metaData, _, _, err := LoadData(params, nil)
	require.NoError(t, err)

	// Columns may arrive in any order and the target column may be missing
	input := "body_mass_g,bill_length_mm,bill_depth_mm,flipper_length_mm\n" +
		"3750,39.1,18.7,181\n" +
		"5700,50.0,16.3,230\n"
	records, dataErrors, err := LoadFeatureRecords(strings.NewReader(input), metaData)
	require.NoError(t, err)
	require.Equal(t, 0, len(dataErrors))
	require.Equal(t, 2, len(records))
	require.Equal(t, 4, records[0].ContinuousFeatures.Rows())
	require.InDelta(t, (39.1-metaData.FeatureMeans[0])/metaData.FeatureStdDevs[0],
		records[0].ContinuousFeatures.Data()[0], 1e-9)

	_, _, err = LoadFeatureRecords(strings.NewReader("bill_length_mm,bill_depth_mm\n1.0,2.0\n"), metaData)
	require.Error(t, err)
}
