// Package segmentation provides the subject/background separation used to
// replace non-compliant photo backgrounds.
package segmentation

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/photocheck/internal/background"
	"github.com/MeKo-Tech/photocheck/internal/utils"
)

// Segmenter is a background.Segmenter that owns releasable resources.
type Segmenter interface {
	background.Segmenter
	Close() error
}

var (
	_ Segmenter = (*U2Net)(nil)
	_ Segmenter = (*FloodFill)(nil)
)

// New builds the configured segmenter. It returns nil, nil when segmentation
// is disabled.
func New(cfg Config) (Segmenter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Method {
	case MethodFloodFill:
		return NewFloodFill(cfg), nil
	case MethodU2Net, MethodU2NetPortable, "":
		u, err := NewU2Net(cfg)
		if err != nil {
			return nil, err
		}
		return u, nil
	default:
		return nil, fmt.Errorf("unknown segmentation method %q", cfg.Method)
	}
}

func dumpMask(dir, prefix string, m *utils.Mask) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_mask_%d.png", prefix, time.Now().UnixNano()))
	return utils.SaveImage(m.Image(), path)
}
