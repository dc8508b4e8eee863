package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

// ErrSessionClosed is returned by Run after Close.
var ErrSessionClosed = errors.New("onnx session is closed")

// SessionConfig controls how a model session is created.
type SessionConfig struct {
	NumThreads int       `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads" validate:"gte=0"`
	GPU        GPUConfig `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// Output is a copied float32 output tensor.
type Output struct {
	Name  string
	Shape []int64
	Data  []float32
}

// Session wraps a dynamic ONNX Runtime session with a single image input and
// any number of float32 outputs. Run is safe for concurrent use.
type Session struct {
	path    string
	input   onnxruntime_go.InputOutputInfo
	outputs []onnxruntime_go.InputOutputInfo

	mu   sync.RWMutex
	sess *onnxruntime_go.DynamicAdvancedSession
}

// NewSession initializes the runtime if needed and loads modelPath. The
// model must have exactly one input.
func NewSession(modelPath string, cfg SessionConfig) (*Session, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	if err := ValidateGPUConfig(cfg.GPU); err != nil {
		return nil, err
	}
	if err := Initialize(cfg.GPU.UseGPU); err != nil {
		return nil, err
	}

	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("expected 1 input, got %d", len(inputs))
	}
	if len(outputs) == 0 {
		return nil, errors.New("model has no outputs")
	}

	opts, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("Failed to destroy session options", "error", err)
		}
	}()

	if err := configureGPU(opts, cfg.GPU); err != nil {
		// CPU remains available; keep going.
		slog.Warn("GPU configuration failed, using CPU", "error", err)
	}
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	names := make([]string, len(outputs))
	for i, o := range outputs {
		names[i] = o.Name
	}
	sess, err := onnxruntime_go.NewDynamicAdvancedSession(modelPath, []string{inputs[0].Name}, names, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	slog.Debug("ONNX session created", "model", modelPath, "input", inputs[0].Name, "outputs", names)
	return &Session{path: modelPath, input: inputs[0], outputs: outputs, sess: sess}, nil
}

// Path returns the model file path.
func (s *Session) Path() string { return s.path }

// InputShape returns the declared input shape; dynamic dimensions are -1.
func (s *Session) InputShape() []int64 {
	shape := make([]int64, len(s.input.Dimensions))
	copy(shape, s.input.Dimensions)
	return shape
}

// OutputNames returns the output names in model order.
func (s *Session) OutputNames() []string {
	names := make([]string, len(s.outputs))
	for i, o := range s.outputs {
		names[i] = o.Name
	}
	return names
}

// Run executes the model on t and returns copies of all outputs. All
// runtime tensors are released before returning.
func (s *Session) Run(t Tensor) ([]Output, error) {
	if err := VerifyImageTensor(t); err != nil {
		return nil, fmt.Errorf("invalid tensor: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess == nil {
		return nil, ErrSessionClosed
	}

	input, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(t.Shape...), t.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer destroy(input)

	values := make([]onnxruntime_go.Value, len(s.outputs))
	defer func() {
		for _, v := range values {
			if v != nil {
				destroy(v)
			}
		}
	}()
	if err := s.sess.Run([]onnxruntime_go.Value{input}, values); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := make([]Output, len(values))
	for i, v := range values {
		ft, ok := v.(*onnxruntime_go.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("output %s: expected float32 tensor, got %T", s.outputs[i].Name, v)
		}
		data := ft.GetData()
		out[i] = Output{
			Name:  s.outputs[i].Name,
			Shape: append([]int64(nil), v.GetShape()...),
			Data:  append([]float32(nil), data...),
		}
	}
	return out, nil
}

// Close releases the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil
	}
	err := s.sess.Destroy()
	s.sess = nil
	return err
}

func destroy(v onnxruntime_go.Value) {
	if err := v.Destroy(); err != nil {
		slog.Warn("Failed to destroy tensor", "error", err)
	}
}
