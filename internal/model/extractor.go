package model

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/agrisight/leafscan/internal/preprocess"
)

// FeatureExtractor produces the pooled feature vector of the frozen
// backbone for a single preprocessed image. Implementations must be safe
// for concurrent use.
type FeatureExtractor interface {
	// Extract runs the backbone and returns a feature vector of length
	// FeatureDim. The input tensor must have the shape InputShape reports.
	Extract(t *preprocess.Tensor) ([]float32, error)
	FeatureDim() int
	InputShape() [4]int
	Close() error
}

// OnnxExtractor runs a frozen ONNX backbone through onnxruntime and applies
// global average pooling over the spatial output. The session binds fixed
// input/output tensors, so Run is serialized with a mutex to keep concurrent
// requests from sharing scratch buffers.
type OnnxExtractor struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	meta         BackboneMetadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewOnnxExtractor initializes the ONNX runtime environment and creates a
// session for the backbone graph described by the metadata file.
func NewOnnxExtractor(modelPath, metadataPath string) (*OnnxExtractor, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	metaFile, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read backbone metadata: %w", err)
	}

	var meta BackboneMetadata
	if err := json.Unmarshal(metaFile, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse backbone metadata: %w", err)
	}
	if len(meta.InputShape) != 4 {
		return nil, fmt.Errorf("%w: backbone input shape %v is not rank 4", ErrInvocation, meta.InputShape)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{meta.InputName}, []string{meta.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &OnnxExtractor{
		session:      session,
		meta:         meta,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (e *OnnxExtractor) FeatureDim() int {
	return e.meta.FeatureDim()
}

func (e *OnnxExtractor) InputShape() [4]int {
	var s [4]int
	for i, d := range e.meta.InputShape {
		s[i] = int(d)
	}
	return s
}

// Extract copies the image into the session's input tensor, runs the graph
// and pools the output feature map down to one value per channel.
func (e *OnnxExtractor) Extract(t *preprocess.Tensor) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	in := e.inputTensor.GetData()
	if len(t.Data) != len(in) {
		return nil, fmt.Errorf("%w: got %d input values, backbone expects %d",
			ErrInvocation, len(t.Data), len(in))
	}
	copy(in, t.Data)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvocation, err)
	}

	return globalAveragePool(e.outputTensor.GetData(), e.meta.FeatureDim()), nil
}

// globalAveragePool reduces a (..., channels)-shaped feature map to a
// channels-length vector by averaging over every leading position. For a
// backbone that already emits (1, channels), it is a copy.
func globalAveragePool(out []float32, channels int) []float32 {
	positions := len(out) / channels
	pooled := make([]float32, channels)
	for p := 0; p < positions; p++ {
		base := p * channels
		for c := 0; c < channels; c++ {
			pooled[c] += out[base+c]
		}
	}
	inv := 1.0 / float32(positions)
	for c := range pooled {
		pooled[c] *= inv
	}
	return pooled
}

// Close destroys the session tensors and tears down the runtime.
func (e *OnnxExtractor) Close() error {
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
	if e.session != nil {
		e.session.Destroy()
	}
	return ort.DestroyEnvironment()
}
