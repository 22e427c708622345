package model

const (
	// KindTabular marks models trained on CSV rows of measurements
	KindTabular = "tabular"
	// KindVision marks models trained on labeled image directories
	KindVision = "vision"
)

// Model is the unit of persistence: the trained network together with
// everything needed to run it on raw inputs again. Exactly one of the two
// network kinds is populated.
type Model struct {
	Kind string

	// Tabular models
	MetaData *Metadata
	MLP      *MLP

	// Vision models
	Labels  NameMap
	Vision  *VisionConfig
	ConvNet *ConvNet
}

func NewTabularModel(metaData *Metadata, mlp *MLP) *Model {
	return &Model{
		Kind:     KindTabular,
		MetaData: metaData,
		MLP:      mlp,
	}
}

func NewVisionModel(labels NameMap, vision VisionConfig, net *ConvNet) *Model {
	return &Model{
		Kind:    KindVision,
		Labels:  labels,
		Vision:  &vision,
		ConvNet: net,
	}
}
