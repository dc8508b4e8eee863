// Package storage keeps order photos in a local directory or an
// S3-compatible bucket and hands out time-limited URLs for them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

// Providers.
const (
	ProviderLocal = "local"
	ProviderS3    = "s3"
)

// Store is a flat key/value object store.
type Store interface {
	// Put stores data under key and returns its storage location.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// URL returns a link to key that stays valid for at least expiry.
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Config selects and configures the storage backend.
type Config struct {
	Provider  string `mapstructure:"provider" yaml:"provider" json:"provider" validate:"oneof=local s3"`
	LocalPath string `mapstructure:"local_path" yaml:"local_path" json:"local_path"`

	Bucket   string `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
	Region   string `mapstructure:"region" yaml:"region" json:"region"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	// PublicEndpoint is used for presigned URLs when clients reach the
	// bucket under a different host than the service (MinIO in compose).
	PublicEndpoint string `mapstructure:"public_endpoint" yaml:"public_endpoint" json:"public_endpoint"`
	AccessKey      string `mapstructure:"access_key" yaml:"access_key" json:"-"`
	SecretKey      string `mapstructure:"secret_key" yaml:"secret_key" json:"-"`
	ForcePathStyle bool   `mapstructure:"force_path_style" yaml:"force_path_style" json:"force_path_style"`
	CreateBucket   bool   `mapstructure:"create_bucket" yaml:"create_bucket" json:"create_bucket"`

	URLExpiry   time.Duration `mapstructure:"url_expiry" yaml:"url_expiry" json:"url_expiry" validate:"gt=0"`
	JPEGQuality int           `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality" validate:"gte=1,lte=100"`
}

// DefaultConfig stores files under ./storage.
func DefaultConfig() Config {
	return Config{
		Provider:    ProviderLocal,
		LocalPath:   "storage",
		Region:      "us-east-1",
		URLExpiry:   time.Hour,
		JPEGQuality: 95,
	}
}

// New creates the configured backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Provider {
	case "", ProviderLocal:
		return NewLocalStore(cfg.LocalPath)
	case ProviderS3:
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}
