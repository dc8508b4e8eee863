package detector

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/models"
	"github.com/MeKo-Tech/photocheck/internal/onnx"
)

// Config holds configuration for the face detector.
type Config struct {
	DetectionModel    string  `mapstructure:"detection_model" yaml:"detection_model" json:"detection_model"`
	LandmarkModel     string  `mapstructure:"landmark_model" yaml:"landmark_model" json:"landmark_model"`
	InputSize         int     `mapstructure:"input_size" yaml:"input_size" json:"input_size" validate:"gte=32"`
	ScoreThreshold    float64 `mapstructure:"score_threshold" yaml:"score_threshold" json:"score_threshold" validate:"gt=0,lte=1"`
	NMSThreshold      float64 `mapstructure:"nms_threshold" yaml:"nms_threshold" json:"nms_threshold" validate:"gt=0,lte=1"`
	LandmarkInputSize int     `mapstructure:"landmark_input_size" yaml:"landmark_input_size" json:"landmark_input_size" validate:"gte=32"`
	// LandmarkExpand grows the face box before the landmark crop.
	LandmarkExpand float64 `mapstructure:"landmark_expand" yaml:"landmark_expand" json:"landmark_expand" validate:"gte=1"`
	EstimatePose   bool    `mapstructure:"estimate_pose" yaml:"estimate_pose" json:"estimate_pose"`
	// MaxFaces caps the number of returned faces; 0 keeps all.
	MaxFaces int               `mapstructure:"max_faces" yaml:"max_faces" json:"max_faces" validate:"gte=0"`
	Session  onnx.SessionConfig `mapstructure:"session" yaml:"session" json:"session"`

	// Landmarks names the points used for pose estimation.
	Landmarks icao.LandmarkIndices `mapstructure:"-" yaml:"-" json:"-"`
}

// DefaultConfig returns the buffalo_l detector settings with models resolved
// from the default models directory.
func DefaultConfig() Config {
	c := Config{
		InputSize:         640,
		ScoreThreshold:    0.5,
		NMSThreshold:      0.4,
		LandmarkInputSize: 192,
		LandmarkExpand:    1.5,
		Session:           onnx.SessionConfig{GPU: onnx.DefaultGPUConfig()},
		Landmarks:         icao.DefaultConfig().Landmarks,
	}
	c.UpdateModelPaths("")
	return c
}

// UpdateModelPaths resolves both model paths below modelsDir.
func (c *Config) UpdateModelPaths(modelsDir string) {
	c.DetectionModel = models.GetFaceDetectionModelPath(modelsDir)
	c.LandmarkModel = models.GetLandmarkModelPath(modelsDir)
}

func validateConfig(c Config) error {
	if c.DetectionModel == "" {
		return errors.New("detection model path cannot be empty")
	}
	if c.InputSize < 32 || c.InputSize%32 != 0 {
		return fmt.Errorf("input size must be a positive multiple of 32, got %d", c.InputSize)
	}
	if c.ScoreThreshold <= 0 || c.ScoreThreshold > 1 {
		return fmt.Errorf("score threshold out of range: %v", c.ScoreThreshold)
	}
	if c.LandmarkModel != "" && c.LandmarkInputSize <= 0 {
		return fmt.Errorf("invalid landmark input size: %d", c.LandmarkInputSize)
	}
	return nil
}
