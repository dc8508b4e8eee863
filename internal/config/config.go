package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MeKo-Tech/photocheck/internal/detector"
	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/models"
	"github.com/MeKo-Tech/photocheck/internal/pipeline"
	"github.com/MeKo-Tech/photocheck/internal/printlayout"
	"github.com/MeKo-Tech/photocheck/internal/quickcheck"
	"github.com/MeKo-Tech/photocheck/internal/segmentation"
	"github.com/MeKo-Tech/photocheck/internal/storage"
	"github.com/go-playground/validator/v10"
)

// Config represents the complete configuration for the photocheck
// application. It covers every command (check, quick, layout, serve) and is
// loaded from configuration files, environment variables and flags.
type Config struct {
	// Global settings
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`
	// LogFile enables a rotating log file next to stderr when set.
	LogFile string `mapstructure:"log_file" yaml:"log_file" json:"log_file"`
	Verbose bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	ICAO         icao.Config         `mapstructure:"icao" yaml:"icao" json:"icao"`
	Detector     detector.Config     `mapstructure:"detector" yaml:"detector" json:"detector"`
	Segmentation segmentation.Config `mapstructure:"segmentation" yaml:"segmentation" json:"segmentation"`
	Pipeline     PipelineConfig      `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	QuickCheck   quickcheck.Config   `mapstructure:"quickcheck" yaml:"quickcheck" json:"quickcheck"`
	Layout       printlayout.Config  `mapstructure:"layout" yaml:"layout" json:"layout"`
	Storage      storage.Config      `mapstructure:"storage" yaml:"storage" json:"storage"`
	Server       ServerConfig        `mapstructure:"server" yaml:"server" json:"server"`
	Output       OutputConfig        `mapstructure:"output" yaml:"output" json:"output"`
}

// PipelineConfig contains orchestration settings of the check pipeline.
type PipelineConfig struct {
	WarmupIterations int  `mapstructure:"warmup_iterations" yaml:"warmup_iterations" json:"warmup_iterations" validate:"gte=0"`
	KeepImages       bool `mapstructure:"keep_images" yaml:"keep_images" json:"keep_images"`
	// MaxWorkers bounds batch concurrency; 0 uses all CPUs.
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers" validate:"gte=0"`
}

// OutputConfig contains CLI output settings.
type OutputConfig struct {
	Format  string `mapstructure:"format" yaml:"format" json:"format" validate:"oneof=text json yaml csv"`
	SaveDir string `mapstructure:"save_dir" yaml:"save_dir" json:"save_dir"`
	Overlay bool   `mapstructure:"overlay" yaml:"overlay" json:"overlay"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host               string          `mapstructure:"host" yaml:"host" json:"host" validate:"required"`
	Port               int             `mapstructure:"port" yaml:"port" json:"port" validate:"gte=1,lte=65535"`
	CORSOrigin         string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB        int64           `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb" validate:"gt=0"`
	TimeoutSec         int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec" validate:"gt=0"`
	ShutdownTimeoutSec int             `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec" json:"shutdown_timeout_sec" validate:"gte=0"`
	RateLimit          RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client request limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute" validate:"gte=0"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour" validate:"gte=0"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day" validate:"gte=0"`
	MaxDataPerDayMB   int64 `mapstructure:"max_data_per_day_mb" yaml:"max_data_per_day_mb" json:"max_data_per_day_mb" validate:"gte=0"`
}

// DefaultConfig returns a configuration with sensible defaults. Model paths
// are left empty and resolved against models_dir.
func DefaultConfig() Config {
	det := detector.DefaultConfig()
	det.DetectionModel, det.LandmarkModel = "", ""
	seg := segmentation.DefaultConfig()
	seg.ModelPath = ""
	qc := quickcheck.DefaultConfig()
	qc.CascadePath = ""

	return Config{
		ModelsDir:    models.GetModelsDir(""),
		LogLevel:     "info",
		ICAO:         icao.DefaultConfig(),
		Detector:     det,
		Segmentation: seg,
		Pipeline: PipelineConfig{
			KeepImages: true,
		},
		QuickCheck: qc,
		Layout:     printlayout.DefaultConfig(),
		Storage:    storage.DefaultConfig(),
		Server: ServerConfig{
			Host:               "localhost",
			Port:               8080,
			CORSOrigin:         "*",
			MaxUploadMB:        50,
			TimeoutSec:         30,
			ShutdownTimeoutSec: 10,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
				MaxRequestsPerDay: 5000,
				MaxDataPerDayMB:   1024,
			},
		},
		Output: OutputConfig{
			Format: "text",
		},
	}
}

// Validate checks struct constraints and the cross-field rules that tags
// cannot express.
func (c *Config) Validate() error {
	probe := *c
	probe.Detector.Landmarks = c.ICAO.Landmarks
	if err := validator.New().Struct(&probe); err != nil {
		return formatValidationError(err)
	}

	if err := c.ICAO.Validate(); err != nil {
		return fmt.Errorf("icao: %w", err)
	}
	if c.ICAO.MinChinCrownRatio >= c.ICAO.MaxChinCrownRatio {
		return fmt.Errorf("icao: min_chin_crown_ratio (%.2f) must be below max_chin_crown_ratio (%.2f)",
			c.ICAO.MinChinCrownRatio, c.ICAO.MaxChinCrownRatio)
	}
	if c.Detector.InputSize%32 != 0 {
		return fmt.Errorf("detector: input_size must be a multiple of 32, got %d", c.Detector.InputSize)
	}
	if c.Segmentation.Enabled && c.Segmentation.Method == "" {
		return errors.New("segmentation: method is required when enabled")
	}
	if c.Storage.Provider == storage.ProviderS3 && c.Storage.Bucket == "" {
		return errors.New("storage: bucket is required for the s3 provider")
	}
	if _, err := printlayout.New(c.Layout, c.ICAO); err != nil {
		return fmt.Errorf("layout: %w", err)
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", field, fe.Tag()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// SlogLevel maps log_level, raised to debug by verbose.
func (c *Config) SlogLevel() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	return ParseLogLevel(c.LogLevel)
}

// ParseLogLevel converts a level name to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ResolvedModelsDir returns models_dir, falling back to MODELS_DIR and the
// project models directory.
func (c *Config) ResolvedModelsDir() string {
	return models.GetModelsDir(c.ModelsDir)
}

// ToPipelineConfig converts the application config to the pipeline config.
func (c *Config) ToPipelineConfig() pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.ModelsDir = c.ResolvedModelsDir()
	pc.ICAO = c.ICAO
	pc.Detector = c.toDetectorConfig(pc.ModelsDir)
	pc.Segmentation = c.toSegmentationConfig(pc.ModelsDir)
	pc.WarmupIterations = c.Pipeline.WarmupIterations
	pc.KeepImages = c.Pipeline.KeepImages
	pc.Parallel.MaxWorkers = c.Pipeline.MaxWorkers
	return pc
}

func (c *Config) toDetectorConfig(modelsDir string) detector.Config {
	d := c.Detector
	if d.DetectionModel == "" {
		landmark := d.LandmarkModel
		d.UpdateModelPaths(modelsDir)
		if landmark != "" {
			d.LandmarkModel = landmark
		}
	}
	d.Landmarks = c.ICAO.Landmarks
	return d
}

func (c *Config) toSegmentationConfig(modelsDir string) segmentation.Config {
	s := c.Segmentation
	if s.ModelPath == "" && s.Method != segmentation.MethodFloodFill {
		s.UpdateModelPath(modelsDir)
	}
	return s
}

// ToQuickCheckConfig returns the quick-check settings with the cascade
// resolved against the models directory.
func (c *Config) ToQuickCheckConfig() quickcheck.Config {
	q := c.QuickCheck
	if q.CascadePath == "" {
		q.UpdateCascadePath(c.ResolvedModelsDir())
	}
	return q
}

// ToStorageConfig returns the storage settings with the print quality
// aligned to the layout quality when unset.
func (c *Config) ToStorageConfig() storage.Config {
	s := c.Storage
	if s.JPEGQuality == 0 {
		s.JPEGQuality = c.Layout.JPEGQuality
	}
	return s
}
