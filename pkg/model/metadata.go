package model

// NameMap implements a bidirectional mapping between a name and an index
type NameMap struct {
	NameToIndex map[string]int
	IndexToName map[int]string
}

func NewNameMap() NameMap {
	return NameMap{
		NameToIndex: map[string]int{},
		IndexToName: map[int]string{},
	}
}

func (f NameMap) Set(name string, index int) {
	f.NameToIndex[name] = index
	f.IndexToName[index] = name
}

func (f NameMap) Size() int {
	return len(f.IndexToName)
}

func (f NameMap) ContainsName(name string) (int, bool) {
	index, ok := f.NameToIndex[name]
	return index, ok
}

// ValueFor returns the index of name, interning it first if it has not been
// seen before.
func (f NameMap) ValueFor(name string) int {
	index, ok := f.NameToIndex[name]
	if !ok {
		index = f.Size()
		f.Set(name, index)
	}
	return index
}

// ColumnMap is a bidirectional mapping between a column index and a dense matrix index
type ColumnMap struct {
	ColumnToIndex map[int]int
	IndexToColumn map[int]int
}

func NewColumnMap() ColumnMap {
	return ColumnMap{
		ColumnToIndex: map[int]int{},
		IndexToColumn: map[int]int{},
	}
}

func (f ColumnMap) Set(column int, index int) {
	f.ColumnToIndex[column] = index
	f.IndexToColumn[index] = column
}

func (f ColumnMap) Size() int {
	return len(f.ColumnToIndex)
}

func (f ColumnMap) GetColumn(column int) (int, bool) {
	index, ok := f.ColumnToIndex[column]
	return index, ok
}

// ValueMap interns arbitrary string values, assigning each distinct value a
// dense index. Categorical feature values are keyed as "column=value" so that
// every (column, value) pair owns its own embedding.
type ValueMap struct {
	ValueToIndex map[string]int
	IndexToValue map[int]string
}

func NewValueMap() ValueMap {
	return ValueMap{
		ValueToIndex: map[string]int{},
		IndexToValue: map[int]string{},
	}
}

func (v ValueMap) Size() int {
	return len(v.ValueToIndex)
}

func (v ValueMap) ValueFor(value string) int {
	index, ok := v.ValueToIndex[value]
	if !ok {
		index = v.Size()
		v.ValueToIndex[value] = index
		v.IndexToValue[index] = value
	}
	return index
}

func (v ValueMap) ContainsValue(value string) (int, bool) {
	index, ok := v.ValueToIndex[value]
	return index, ok
}

type TargetType int

const (
	Categorical TargetType = iota
	Continuous
)

// Column describes a single column of the training data.
type Column struct {
	Name string
}

type Metadata struct {
	Columns []Column

	// ContinuousFeaturesMap maps a data row column index to a dense matrix row index
	ContinuousFeaturesMap ColumnMap

	// CategoricalFeaturesMap maps a data row column index to the categorical features index
	CategoricalFeaturesMap ColumnMap

	// CategoricalValuesMap assigns an embedding index to every distinct
	// (column, value) pair seen during training
	CategoricalValuesMap ValueMap

	// TargetColumn points to the column in the data row that contains the prediction target
	TargetColumn int

	// TargetMap contains a mapping of target category names to target category indexes
	TargetMap NameMap

	// TargetKind records whether the target column holds a class or a number
	TargetKind TargetType

	// CategoricalEmbeddingSize is the size of each categorical feature embedding
	CategoricalEmbeddingSize int

	// FeatureMeans and FeatureStdDevs hold the training-time standardization
	// statistics, indexed like the continuous feature vector. Nil when the
	// model was trained on unscaled data.
	FeatureMeans   []float64
	FeatureStdDevs []float64
}

func NewMetadata() *Metadata {
	return &Metadata{
		Columns:                nil,
		ContinuousFeaturesMap:  NewColumnMap(),
		CategoricalFeaturesMap: NewColumnMap(),
		CategoricalValuesMap:   NewValueMap(),
		TargetMap:              NewNameMap(),
	}
}

func (d *Metadata) FeatureCount() int {
	return d.CategoricalFeaturesMap.Size() + d.ContinuousFeaturesMap.Size()
}

// InputSize is the size of the dense input vector fed to the network:
// the continuous features plus one embedding per categorical feature.
func (d *Metadata) InputSize() int {
	return d.ContinuousFeaturesMap.Size() + d.CategoricalEmbeddingSize*d.CategoricalFeaturesMap.Size()
}

func (d *Metadata) TargetType() TargetType {
	return d.TargetKind
}

// ParseOrAddCategoricalTarget returns the index for the given target class,
// interning it if necessary. Used while building fresh metadata.
func (d *Metadata) ParseOrAddCategoricalTarget(value string) float64 {
	target, ok := d.TargetMap.ContainsName(value)
	if !ok {
		target = d.TargetMap.Size()
		d.TargetMap.Set(value, target)
	}
	return float64(target)
}

// ParseCategoricalTarget returns the index for the given target class. The
// second return value is false for classes not seen during training.
func (d *Metadata) ParseCategoricalTarget(value string) (float64, bool) {
	target, ok := d.TargetMap.ContainsName(value)
	return float64(target), ok
}

func (d *Metadata) TargetName() string {
	return d.Columns[d.TargetColumn].Name
}

// Standardized reports whether feature scaling statistics were recorded at
// training time.
func (d *Metadata) Standardized() bool {
	return len(d.FeatureMeans) > 0
}
