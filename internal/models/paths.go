// Package models resolves the on-disk locations of the ONNX models used for
// face detection, landmarks and background segmentation.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Model file names.
const (
	// FaceDetectionSCRFD is the SCRFD detector shipped in the insightface
	// buffalo_l pack.
	FaceDetectionSCRFD = "det_10g.onnx"
	// Landmarks2D106 is the 106-point 2D landmark regressor.
	Landmarks2D106 = "2d106det.onnx"
	// SegmentationU2Net is the salient-object model used for background removal.
	SegmentationU2Net = "u2net.onnx"
	// SegmentationU2NetPortable is the small U2-Net variant.
	SegmentationU2NetPortable = "u2netp.onnx"
	// FaceFinderCascade is the pigo pixel-intensity cascade used by the
	// quick face count.
	FaceFinderCascade = "facefinder"
)

// Model type directories.
const (
	TypeFace         = "buffalo_l"
	TypeSegmentation = "segmentation"
	TypeCascade      = "cascade"
)

// DefaultModelsDir is used relative to the project root.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "MODELS_DIR"

// findProjectRoot finds the project root by looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("could not find project root (go.mod not found)")
}

// ModelInfo contains metadata about a model.
type ModelInfo struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Filename    string `json:"filename" yaml:"filename"`
	Required    bool   `json:"required" yaml:"required"`
}

// GetModelsDir returns the models directory path.
// Priority: 1. explicit modelsDir, 2. MODELS_DIR, 3. project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}
	if projectRoot, err := findProjectRoot(); err == nil {
		return filepath.Join(projectRoot, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// ResolveModelPath resolves a model filename to its full path. The typed
// layout (<dir>/<type>/<file>) wins when present; otherwise the flat layout
// (<dir>/<file>) is returned.
func ResolveModelPath(modelsDir, modelType, filename string) string {
	baseDir := GetModelsDir(modelsDir)
	if modelType != "" {
		organized := filepath.Join(baseDir, modelType, filename)
		if _, err := os.Stat(organized); err == nil {
			return organized
		}
	}
	return filepath.Join(baseDir, filename)
}

// GetFaceDetectionModelPath returns the path of the SCRFD detector.
func GetFaceDetectionModelPath(modelsDir string) string {
	return ResolveModelPath(modelsDir, TypeFace, FaceDetectionSCRFD)
}

// GetLandmarkModelPath returns the path of the 106-point landmark model.
func GetLandmarkModelPath(modelsDir string) string {
	return ResolveModelPath(modelsDir, TypeFace, Landmarks2D106)
}

// GetSegmentationModelPath returns the path of a segmentation model; an
// empty filename selects U2-Net.
func GetSegmentationModelPath(modelsDir, filename string) string {
	if filename == "" {
		filename = SegmentationU2Net
	}
	return ResolveModelPath(modelsDir, TypeSegmentation, filename)
}

// GetCascadePath returns the path of the pigo face cascade.
func GetCascadePath(modelsDir string) string {
	return ResolveModelPath(modelsDir, TypeCascade, FaceFinderCascade)
}

// ValidateModelExists checks if a model file exists at the given path.
func ValidateModelExists(modelPath string) error {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", modelPath)
	}
	return nil
}

// ListAvailableModels returns the models the pipeline knows about.
func ListAvailableModels() []ModelInfo {
	return []ModelInfo{
		{
			Name:        "scrfd-10g",
			Type:        TypeFace,
			Description: "SCRFD face detector with 5-point keypoints",
			Filename:    FaceDetectionSCRFD,
			Required:    true,
		},
		{
			Name:        "2d106det",
			Type:        TypeFace,
			Description: "106-point 2D facial landmarks",
			Filename:    Landmarks2D106,
			Required:    true,
		},
		{
			Name:        "u2net",
			Type:        TypeSegmentation,
			Description: "U2-Net salient object segmentation for background removal",
			Filename:    SegmentationU2Net,
		},
		{
			Name:        "u2netp",
			Type:        TypeSegmentation,
			Description: "Portable U2-Net variant",
			Filename:    SegmentationU2NetPortable,
		},
		{
			Name:        "facefinder",
			Type:        TypeCascade,
			Description: "pigo face cascade for the quick face count",
			Filename:    FaceFinderCascade,
		},
	}
}

// Status describes whether a model is present on disk.
type Status struct {
	ModelInfo `yaml:",inline"`
	Path      string `json:"path" yaml:"path"`
	Present   bool   `json:"present" yaml:"present"`
}

// Inventory resolves every known model under modelsDir.
func Inventory(modelsDir string) []Status {
	known := ListAvailableModels()
	out := make([]Status, 0, len(known))
	for _, m := range known {
		p := ResolveModelPath(modelsDir, m.Type, m.Filename)
		out = append(out, Status{ModelInfo: m, Path: p, Present: ValidateModelExists(p) == nil})
	}
	return out
}
