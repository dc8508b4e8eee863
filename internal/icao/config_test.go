package icao

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_DerivedValues(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 826, cfg.FinalWidth())
	assert.Equal(t, 1062, cfg.FinalHeight())
	assert.InDelta(t, 35.0/45.0, cfg.AspectRatio(), 1e-12)
	assert.Equal(t, 425, cfg.EyeLevelMinPx())
	assert.Equal(t, 685, cfg.EyeLevelMaxPx())
	assert.Equal(t, 97, cfg.Landmarks.Max())
	require.NoError(t, cfg.Validate())
}

func TestPixelsToMM(t *testing.T) {
	cfg := DefaultConfig()
	assert.InDelta(t, 25.4, cfg.PixelsToMM(600), 1e-9)

	cfg.DPI = 0
	assert.Zero(t, cfg.PixelsToMM(100))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"zero dpi", func(c *Config) { c.DPI = 0 }, "must be positive"},
		{"tiny photo", func(c *Config) { c.PhotoWidthMM = 0.01 }, "empty image"},
		{"ratio order", func(c *Config) { c.MinChinCrownRatio = 0.9 }, "min_chin_crown_ratio"},
		{"eye level order", func(c *Config) { c.EyeLevelMinMM = 40 }, "eye_level_min_mm"},
		{"head ratio", func(c *Config) { c.TargetHeadHeightRatio = 0 }, "target_head_height_ratio"},
		{"crown multiplier", func(c *Config) { c.CrownMultiplier = -1 }, "crown_multiplier"},
		{"background bounds", func(c *Config) { c.BackgroundMinRGB[1] = 256 }, "background_min_rgb[1]"},
		{"eye ring", func(c *Config) { c.Landmarks.LeftEye = []int{1, 2} }, "exactly 6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
