package model

// VisionConfig describes the fixed image transform a vision model was trained
// with. It is stored inside the model so that evaluation and inference apply
// exactly the training-time pipeline.
type VisionConfig struct {
	// ResizeTo is the length the shorter image side is scaled to before cropping
	ResizeTo int

	// CropSize is the side of the square center crop fed to the network
	CropSize int

	// Mean and StdDev are the per-channel (RGB) normalization statistics
	Mean   [3]float64
	StdDev [3]float64
}

// DefaultVisionConfig uses the conventional ImageNet normalization constants.
func DefaultVisionConfig() VisionConfig {
	return VisionConfig{
		ResizeTo: 36,
		CropSize: 32,
		Mean:     [3]float64{0.485, 0.456, 0.406},
		StdDev:   [3]float64{0.229, 0.224, 0.225},
	}
}
