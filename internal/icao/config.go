// Package icao holds the parameter set that defines a compliant passport
// photo: physical size, framing ratios, pose ceilings and image quality
// thresholds, together with the pixel values derived from them.
package icao

import (
	"errors"
	"fmt"
)

const mmPerInch = 25.4

// LandmarkIndices names the semantically meaningful points of the detector's
// landmark array.
type LandmarkIndices struct {
	Chin       int   `mapstructure:"chin" yaml:"chin" json:"chin" validate:"gte=0"`
	LeftEye    []int `mapstructure:"left_eye" yaml:"left_eye" json:"left_eye" validate:"len=6,dive,gte=0"`
	RightEye   []int `mapstructure:"right_eye" yaml:"right_eye" json:"right_eye" validate:"len=6,dive,gte=0"`
	LeftPupil  int   `mapstructure:"left_pupil" yaml:"left_pupil" json:"left_pupil" validate:"gte=0"`
	RightPupil int   `mapstructure:"right_pupil" yaml:"right_pupil" json:"right_pupil" validate:"gte=0"`
}

// Max returns the highest index referenced, i.e. the minimum landmark count
// a detector must provide.
func (l LandmarkIndices) Max() int {
	m := l.Chin
	for _, v := range append(append([]int{l.LeftPupil, l.RightPupil}, l.LeftEye...), l.RightEye...) {
		if v > m {
			m = v
		}
	}
	return m
}

// RGB is a color triple used for background bounds.
type RGB [3]float64

// Config is the complete ICAO rule set.
type Config struct {
	PhotoWidthMM  float64 `mapstructure:"photo_width_mm" yaml:"photo_width_mm" json:"photo_width_mm" validate:"gt=0"`
	PhotoHeightMM float64 `mapstructure:"photo_height_mm" yaml:"photo_height_mm" json:"photo_height_mm" validate:"gt=0"`
	DPI           int     `mapstructure:"dpi" yaml:"dpi" json:"dpi" validate:"gt=0"`

	AspectRatioTolerance float64 `mapstructure:"aspect_ratio_tolerance" yaml:"aspect_ratio_tolerance" json:"aspect_ratio_tolerance" validate:"gte=0"`
	MinChinCrownRatio    float64 `mapstructure:"min_chin_crown_ratio" yaml:"min_chin_crown_ratio" json:"min_chin_crown_ratio" validate:"gt=0,lt=1"`
	MaxChinCrownRatio    float64 `mapstructure:"max_chin_crown_ratio" yaml:"max_chin_crown_ratio" json:"max_chin_crown_ratio" validate:"gt=0,lte=1"`

	MaxYaw   float64 `mapstructure:"max_yaw" yaml:"max_yaw" json:"max_yaw" validate:"gte=0"`
	MaxPitch float64 `mapstructure:"max_pitch" yaml:"max_pitch" json:"max_pitch" validate:"gte=0"`
	MaxRoll  float64 `mapstructure:"max_roll" yaml:"max_roll" json:"max_roll" validate:"gte=0"`

	// Preliminary background check, used to decide whether segmentation runs.
	PrelimBackgroundMinLight float64 `mapstructure:"prelim_background_min_light" yaml:"prelim_background_min_light" json:"prelim_background_min_light" validate:"gte=0,lte=255"`
	PrelimBackgroundMaxStd   float64 `mapstructure:"prelim_background_max_std" yaml:"prelim_background_max_std" json:"prelim_background_max_std" validate:"gte=0"`

	// Final background check, run by the validator.
	BackgroundMinRGB RGB     `mapstructure:"background_min_rgb" yaml:"background_min_rgb" json:"background_min_rgb"`
	BackgroundMaxRGB RGB     `mapstructure:"background_max_rgb" yaml:"background_max_rgb" json:"background_max_rgb"`
	BackgroundMaxStd float64 `mapstructure:"background_max_std" yaml:"background_max_std" json:"background_max_std" validate:"gte=0"`

	ContrastThreshold float64 `mapstructure:"contrast_threshold" yaml:"contrast_threshold" json:"contrast_threshold" validate:"gte=0"`
	MinDetectionScore float64 `mapstructure:"min_detection_score" yaml:"min_detection_score" json:"min_detection_score" validate:"gte=0,lte=1"`

	CrownMultiplier float64 `mapstructure:"crown_multiplier" yaml:"crown_multiplier" json:"crown_multiplier" validate:"gt=0"`
	EARThreshold    float64 `mapstructure:"ear_threshold" yaml:"ear_threshold" json:"ear_threshold" validate:"gte=0"`

	EyeLevelMinMM float64 `mapstructure:"eye_level_min_mm" yaml:"eye_level_min_mm" json:"eye_level_min_mm" validate:"gte=0"`
	EyeLevelMaxMM float64 `mapstructure:"eye_level_max_mm" yaml:"eye_level_max_mm" json:"eye_level_max_mm" validate:"gte=0"`

	// RedEyeMaxFraction is the share of a pupil ROI (0..1) that may still be red after correction.
	RedEyeMaxFraction  float64 `mapstructure:"red_eye_max_fraction" yaml:"red_eye_max_fraction" json:"red_eye_max_fraction" validate:"gte=0,lte=1"`
	SharpnessThreshold float64 `mapstructure:"sharpness_threshold" yaml:"sharpness_threshold" json:"sharpness_threshold" validate:"gte=0"`

	TargetHeadHeightRatio float64 `mapstructure:"target_head_height_ratio" yaml:"target_head_height_ratio" json:"target_head_height_ratio" validate:"gt=0,lte=1"`
	HeadPosRatioVertical  float64 `mapstructure:"head_pos_ratio_vertical" yaml:"head_pos_ratio_vertical" json:"head_pos_ratio_vertical" validate:"gte=0,lt=1"`

	Landmarks LandmarkIndices `mapstructure:"landmarks" yaml:"landmarks" json:"landmarks"`
}

// DefaultConfig returns the rule set for a 35x45 mm photo printed at 600 DPI.
func DefaultConfig() Config {
	return Config{
		PhotoWidthMM:             35,
		PhotoHeightMM:            45,
		DPI:                      600,
		AspectRatioTolerance:     0.05,
		MinChinCrownRatio:        0.55,
		MaxChinCrownRatio:        0.80,
		MaxYaw:                   10,
		MaxPitch:                 10,
		MaxRoll:                  7,
		PrelimBackgroundMinLight: 220,
		PrelimBackgroundMaxStd:   15,
		BackgroundMinRGB:         RGB{220, 220, 220},
		BackgroundMaxRGB:         RGB{255, 255, 255},
		BackgroundMaxStd:         25,
		ContrastThreshold:        35,
		MinDetectionScore:        0.6,
		CrownMultiplier:          2.0,
		EARThreshold:             0.35,
		EyeLevelMinMM:            18,
		EyeLevelMaxMM:            29,
		RedEyeMaxFraction:        0.1,
		SharpnessThreshold:       40,
		TargetHeadHeightRatio:    0.66,
		HeadPosRatioVertical:     0.12,
		Landmarks: LandmarkIndices{
			Chin:       16,
			LeftEye:    []int{35, 36, 33, 37, 39, 42},
			RightEye:   []int{74, 93, 90, 94, 96, 97},
			LeftPupil:  35,
			RightPupil: 74,
		},
	}
}

// MMToPixels converts a physical length to pixels at the configured DPI,
// truncating toward zero.
func (c Config) MMToPixels(mm float64) int {
	return int(mm / mmPerInch * float64(c.DPI))
}

// PixelsToMM converts a pixel distance back to millimetres.
func (c Config) PixelsToMM(px float64) float64 {
	if c.DPI == 0 {
		return 0
	}
	return px / float64(c.DPI) * mmPerInch
}

// FinalWidth is the output image width in pixels.
func (c Config) FinalWidth() int { return c.MMToPixels(c.PhotoWidthMM) }

// FinalHeight is the output image height in pixels.
func (c Config) FinalHeight() int { return c.MMToPixels(c.PhotoHeightMM) }

// AspectRatio is width over height of the physical photo.
func (c Config) AspectRatio() float64 {
	if c.PhotoHeightMM == 0 {
		return 0
	}
	return c.PhotoWidthMM / c.PhotoHeightMM
}

// EyeLevelMinPx and EyeLevelMaxPx bound the eye line's distance from the
// bottom edge of the final image.
func (c Config) EyeLevelMinPx() int { return c.MMToPixels(c.EyeLevelMinMM) }

func (c Config) EyeLevelMaxPx() int { return c.MMToPixels(c.EyeLevelMaxMM) }

// Validate checks the cross-field constraints that struct tags cannot express.
func (c Config) Validate() error {
	if c.PhotoWidthMM <= 0 || c.PhotoHeightMM <= 0 || c.DPI <= 0 {
		return errors.New("photo size and dpi must be positive")
	}
	if c.FinalWidth() == 0 || c.FinalHeight() == 0 {
		return fmt.Errorf("photo size %.1fx%.1fmm at %d dpi yields an empty image",
			c.PhotoWidthMM, c.PhotoHeightMM, c.DPI)
	}
	if c.MinChinCrownRatio >= c.MaxChinCrownRatio {
		return fmt.Errorf("min_chin_crown_ratio (%.2f) must be below max_chin_crown_ratio (%.2f)",
			c.MinChinCrownRatio, c.MaxChinCrownRatio)
	}
	if c.EyeLevelMinMM > c.EyeLevelMaxMM {
		return fmt.Errorf("eye_level_min_mm (%.1f) must not exceed eye_level_max_mm (%.1f)",
			c.EyeLevelMinMM, c.EyeLevelMaxMM)
	}
	if c.TargetHeadHeightRatio <= 0 {
		return errors.New("target_head_height_ratio must be positive")
	}
	if c.CrownMultiplier <= 0 {
		return errors.New("crown_multiplier must be positive")
	}
	for i := range 3 {
		if c.BackgroundMinRGB[i] > c.BackgroundMaxRGB[i] {
			return fmt.Errorf("background_min_rgb[%d] exceeds background_max_rgb[%d]", i, i)
		}
	}
	if len(c.Landmarks.LeftEye) != 6 || len(c.Landmarks.RightEye) != 6 {
		return errors.New("eye landmark rings must have exactly 6 indices")
	}
	return nil
}
