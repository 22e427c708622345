package io

import (
	"encoding/csv"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/nlpodyssey/spago/pkg/mat"
	"gonum.org/v1/gonum/stat"

	"rookery/pkg/model"
)

// DataRecord is a single parsed example.
type DataRecord struct {
	// ContinuousFeatures is a column vector holding the numeric features
	ContinuousFeatures mat.Matrix

	// CategoricalFeatures contains the embedding indexes of the categorical
	// features, ordered by ascending data column
	CategoricalFeatures []int

	// Target contains the class index or, for continuous targets, the value
	Target float64
}

type DataBatch []*DataRecord

type void struct{}

var Void = void{}

type Set map[string]void

func NewSet(values ...string) Set {
	set := Set{}
	for _, val := range values {
		set[val] = Void
	}
	return set
}

type DataParameters struct {
	// DataFile is the CSV file to read. Empty means standard input.
	DataFile                 string
	TargetColumn             string
	CategoricalColumns       Set
	CategoricalEmbeddingSize int

	// Replicate appends each parsed record this many times, inflating small
	// datasets. Values below one behave like one.
	Replicate int

	// Standardize rescales every continuous feature to zero mean and unit
	// variance. Only consulted when building fresh metadata; reused metadata
	// always applies its stored statistics.
	Standardize bool

	// ContinuousTarget parses the target column as a number instead of a class
	ContinuousTarget bool
}

type DataError struct {
	Line  int
	Error string
}

// LoadData reads a CSV data file whose first line is a header. With nil
// metadata a fresh Metadata is built from the header and the parameters;
// otherwise the given metadata drives parsing and unseen categorical or
// target values are reported as data errors. Records that fail to parse are
// skipped and reported the same way.
func LoadData(p DataParameters, metaData *model.Metadata) (*model.Metadata, []*DataRecord, []DataError, error) {
	var input io.Reader
	if p.DataFile == "" {
		input = os.Stdin
	} else {
		inputFile, err := os.Open(p.DataFile)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("error opening data file: %w", err)
		}
		defer inputFile.Close()
		input = inputFile
	}

	reader := csv.NewReader(input)
	reader.Comma = ','

	// First line is expected to be a header
	record, err := reader.Read()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error reading data header: %w", err)
	}

	newMetadata := false
	if metaData == nil {
		metaData = model.NewMetadata()
		newMetadata = true
		metaData.Columns = make([]model.Column, len(record))
		for i, name := range record {
			metaData.Columns[i] = model.Column{Name: name}
		}
		metaData.CategoricalEmbeddingSize = p.CategoricalEmbeddingSize
		if p.ContinuousTarget {
			metaData.TargetKind = model.Continuous
		}
		if err := setTargetColumn(p, metaData); err != nil {
			return nil, nil, nil, err
		}
		buildFeatureIndex(p, metaData)
	}

	var errors []DataError
	var result []*DataRecord
	replicate := p.Replicate
	if replicate < 1 {
		replicate = 1
	}
	categoricalColumns := sortedColumns(metaData.CategoricalFeaturesMap)

	currentLine := 1
	for {
		record, err = reader.Read()
		currentLine++
		if err == io.EOF {
			break
		}
		if err != nil {
			errors = append(errors, DataError{Line: currentLine, Error: err.Error()})
			continue
		}

		targetValue, err := parseTarget(newMetadata, metaData, record[metaData.TargetColumn])
		if err != nil {
			errors = append(errors, DataError{Line: currentLine, Error: err.Error()})
			continue
		}

		features := mat.NewEmptyVecDense(metaData.ContinuousFeaturesMap.Size())
		if err := parseContinuousFeatures(metaData, record, features); err != nil {
			errors = append(errors, DataError{Line: currentLine, Error: err.Error()})
			continue
		}

		categoricalFeatures, err := parseCategoricalFeatures(metaData, newMetadata, categoricalColumns, record)
		if err != nil {
			errors = append(errors, DataError{Line: currentLine, Error: err.Error()})
			continue
		}

		result = append(result, &DataRecord{
			ContinuousFeatures:  features,
			CategoricalFeatures: categoricalFeatures,
			Target:              targetValue,
		})
		for i := 1; i < replicate; i++ {
			result = append(result, &DataRecord{
				ContinuousFeatures:  features.Clone(),
				CategoricalFeatures: categoricalFeatures,
				Target:              targetValue,
			})
		}
	}

	if newMetadata && p.Standardize {
		computeStandardization(metaData, result)
	}
	if metaData.Standardized() {
		applyStandardization(metaData, result)
	}

	return metaData, result, errors, nil
}

// LoadFeatureRecords parses target-less records for inference. The header
// must name every feature column the model was trained on; column order is
// free and extra columns are ignored. Stored standardization statistics are
// applied.
func LoadFeatureRecords(input io.Reader, metaData *model.Metadata) ([]*DataRecord, []DataError, error) {
	reader := csv.NewReader(input)
	reader.Comma = ','

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("error reading data header: %w", err)
	}
	headerIndex := map[string]int{}
	for i, name := range header {
		headerIndex[name] = i
	}

	// columnIndex maps training-time column positions to input positions
	columnIndex := map[int]int{}
	for _, featureMap := range []model.ColumnMap{metaData.ContinuousFeaturesMap, metaData.CategoricalFeaturesMap} {
		for column := range featureMap.ColumnToIndex {
			name := metaData.Columns[column].Name
			index, ok := headerIndex[name]
			if !ok {
				return nil, nil, fmt.Errorf("feature column %s not found in data header", name)
			}
			columnIndex[column] = index
		}
	}

	categoricalColumns := sortedColumns(metaData.CategoricalFeaturesMap)

	var errors []DataError
	var result []*DataRecord
	currentLine := 1
	for {
		record, err := reader.Read()
		currentLine++
		if err == io.EOF {
			break
		}
		if err != nil {
			errors = append(errors, DataError{Line: currentLine, Error: err.Error()})
			continue
		}

		features := mat.NewEmptyVecDense(metaData.ContinuousFeaturesMap.Size())
		parseFailed := false
		for column, index := range metaData.ContinuousFeaturesMap.ColumnToIndex {
			value, err := strconv.ParseFloat(record[columnIndex[column]], 64)
			if err != nil {
				errors = append(errors, DataError{Line: currentLine, Error: fmt.Sprintf("error parsing feature %s: %s", metaData.Columns[column].Name, err)})
				parseFailed = true
				break
			}
			features.Set(index, 0, value)
		}
		if parseFailed {
			continue
		}

		categoricalFeatures := make([]int, 0, len(categoricalColumns))
		for _, column := range categoricalColumns {
			key := categoricalValueKey(metaData, column, record[columnIndex[column]])
			value, ok := metaData.CategoricalValuesMap.ContainsValue(key)
			if !ok {
				errors = append(errors, DataError{Line: currentLine, Error: fmt.Sprintf("unknown value %s for categorical attribute %s", record[columnIndex[column]], metaData.Columns[column].Name)})
				parseFailed = true
				break
			}
			categoricalFeatures = append(categoricalFeatures, value)
		}
		if parseFailed {
			continue
		}

		result = append(result, &DataRecord{
			ContinuousFeatures:  features,
			CategoricalFeatures: categoricalFeatures,
		})
	}

	if metaData.Standardized() {
		applyStandardization(metaData, result)
	}
	return result, errors, nil
}

func parseCategoricalFeatures(metaData *model.Metadata, newMetadata bool, columns []int, record []string) ([]int, error) {
	categoricalFeatures := make([]int, 0, len(columns))
	for _, column := range columns {
		key := categoricalValueKey(metaData, column, record[column])
		var value int
		if newMetadata {
			value = metaData.CategoricalValuesMap.ValueFor(key)
		} else {
			var ok bool
			value, ok = metaData.CategoricalValuesMap.ContainsValue(key)
			if !ok {
				return nil, fmt.Errorf("unknown value %s for categorical attribute %s", record[column], metaData.Columns[column].Name)
			}
		}
		categoricalFeatures = append(categoricalFeatures, value)
	}
	return categoricalFeatures, nil
}

func categoricalValueKey(metaData *model.Metadata, column int, value string) string {
	return metaData.Columns[column].Name + "=" + value
}

func parseContinuousFeatures(metaData *model.Metadata, record []string, features *mat.Dense) error {
	for column, index := range metaData.ContinuousFeaturesMap.ColumnToIndex {
		value, err := strconv.ParseFloat(record[column], 64)
		if err != nil {
			return fmt.Errorf("error parsing feature %s: %w", metaData.Columns[column].Name, err)
		}
		features.Set(index, 0, value)
	}
	return nil
}

func parseTarget(newMetadata bool, metaData *model.Metadata, target string) (float64, error) {
	if metaData.TargetType() == model.Continuous {
		targetValue, err := strconv.ParseFloat(target, 64)
		if err != nil {
			return 0, fmt.Errorf("error parsing target value: %w", err)
		}
		return targetValue, nil
	}
	if newMetadata {
		return metaData.ParseOrAddCategoricalTarget(target), nil
	}
	targetValue, ok := metaData.ParseCategoricalTarget(target)
	if !ok {
		return 0, fmt.Errorf("unknown categorical target value %s", target)
	}
	return targetValue, nil
}

func buildFeatureIndex(p DataParameters, metaData *model.Metadata) {
	continuousIndex := 0
	categoricalIndex := 0
	for i, col := range metaData.Columns {
		if i == metaData.TargetColumn {
			continue
		}
		if _, isCategorical := p.CategoricalColumns[col.Name]; isCategorical {
			metaData.CategoricalFeaturesMap.Set(i, categoricalIndex)
			categoricalIndex++
		} else {
			metaData.ContinuousFeaturesMap.Set(i, continuousIndex)
			continuousIndex++
		}
	}
}

func setTargetColumn(p DataParameters, metaData *model.Metadata) error {
	for i, col := range metaData.Columns {
		if col.Name == p.TargetColumn {
			metaData.TargetColumn = i
			return nil
		}
	}
	return fmt.Errorf("target column %s not found in data header", p.TargetColumn)
}

func sortedColumns(columns model.ColumnMap) []int {
	result := make([]int, 0, columns.Size())
	for column := range columns.ColumnToIndex {
		result = append(result, column)
	}
	sort.Ints(result)
	return result
}

// computeStandardization records the per-feature mean and standard deviation
// of the loaded records in the metadata.
func computeStandardization(metaData *model.Metadata, records []*DataRecord) {
	size := metaData.ContinuousFeaturesMap.Size()
	if size == 0 || len(records) == 0 {
		return
	}
	metaData.FeatureMeans = make([]float64, size)
	metaData.FeatureStdDevs = make([]float64, size)
	column := make([]float64, len(records))
	for i := 0; i < size; i++ {
		for j, record := range records {
			column[j] = record.ContinuousFeatures.Data()[i]
		}
		metaData.FeatureMeans[i], metaData.FeatureStdDevs[i] = stat.MeanStdDev(column, nil)
	}
}

// applyStandardization rescales every record in place using the metadata
// statistics. Features with zero deviation are left untouched.
func applyStandardization(metaData *model.Metadata, records []*DataRecord) {
	for _, record := range records {
		for i, mean := range metaData.FeatureMeans {
			stdDev := metaData.FeatureStdDevs[i]
			if stdDev == 0 {
				continue
			}
			value := record.ContinuousFeatures.Data()[i]
			record.ContinuousFeatures.Set(i, 0, (value-mean)/stdDev)
		}
	}
}

func SaveModel(model *model.Model, writer io.Writer) error {
	encoder := gob.NewEncoder(writer)
	err := encoder.Encode(model)
	if err != nil {
		return fmt.Errorf("error encoding model: %w", err)
	}
	return nil
}

func LoadModel(input io.Reader) (*model.Model, error) {
	decoder := gob.NewDecoder(input)
	model := model.Model{}
	err := decoder.Decode(&model)
	if err != nil {
		return nil, fmt.Errorf("error decoding model: %w", err)
	}
	return &model, nil
}
