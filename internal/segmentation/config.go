package segmentation

import (
	"github.com/MeKo-Tech/photocheck/internal/models"
	"github.com/MeKo-Tech/photocheck/internal/onnx"
)

// Method selects the segmentation backend.
type Method string

const (
	// MethodU2Net runs a U2-Net saliency model through ONNX Runtime.
	MethodU2Net Method = "u2net"
	// MethodU2NetPortable runs the small u2netp variant.
	MethodU2NetPortable Method = "u2netp"
	// MethodFloodFill grows the background from the image corners.
	MethodFloodFill Method = "floodfill"
)

// Config holds configuration for subject segmentation.
type Config struct {
	Enabled         bool               `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Method          Method             `mapstructure:"method" yaml:"method" json:"method" validate:"omitempty,oneof=u2net u2netp floodfill"`
	ModelPath       string             `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	InputSize       int                `mapstructure:"input_size" yaml:"input_size" json:"input_size" validate:"gte=0"`
	MaskThreshold   float64            `mapstructure:"mask_threshold" yaml:"mask_threshold" json:"mask_threshold" validate:"gte=0,lte=1"`
	MinMaskCoverage float64            `mapstructure:"min_mask_coverage" yaml:"min_mask_coverage" json:"min_mask_coverage" validate:"gte=0,lte=1"`
	FloodTolerance  int                `mapstructure:"flood_tolerance" yaml:"flood_tolerance" json:"flood_tolerance" validate:"gte=0,lte=255"`
	BlurSigma       float64            `mapstructure:"blur_sigma" yaml:"blur_sigma" json:"blur_sigma" validate:"gte=0"`
	MorphKernel     int                `mapstructure:"morph_kernel" yaml:"morph_kernel" json:"morph_kernel" validate:"gte=0"`
	Session         onnx.SessionConfig `mapstructure:"session" yaml:"session" json:"session"`
	// EdgeThreshold is the Sobel |gx|+|gy| level the flood fill cannot cross; 0 disables the barrier.
	EdgeThreshold int `mapstructure:"edge_threshold" yaml:"edge_threshold" json:"edge_threshold" validate:"gte=0"`
	// FacePadding grows the protected face rectangle by this share of its size on each side.
	FacePadding float64 `mapstructure:"face_padding" yaml:"face_padding" json:"face_padding" validate:"gte=0,lte=2"`
	// DebugDir receives mask PNGs when non-empty.
	DebugDir string `mapstructure:"debug_dir" yaml:"debug_dir" json:"debug_dir"`
}

// DefaultConfig returns the U2-Net setup used by the original rembg pipeline.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Method:          MethodU2Net,
		ModelPath:       models.GetSegmentationModelPath("", models.SegmentationU2Net),
		InputSize:       320,
		MaskThreshold:   0.5,
		MinMaskCoverage: 0.02,
		FloodTolerance:  30,
		BlurSigma:       1.0,
		MorphKernel:     5,
		EdgeThreshold:   24,
		FacePadding:     0.3,
	}
}

// UpdateModelPath relocates the model under the provided models directory.
func (c *Config) UpdateModelPath(modelsDir string) {
	filename := models.SegmentationU2Net
	if c.Method == MethodU2NetPortable {
		filename = models.SegmentationU2NetPortable
	}
	c.ModelPath = models.GetSegmentationModelPath(modelsDir, filename)
}
