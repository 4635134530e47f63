package model

import (
	"fmt"
	"path/filepath"

	"github.com/agrisight/leafscan/internal/labels"
	"github.com/agrisight/leafscan/internal/preprocess"
)

// Artifact bundle file names. A bundle directory is written by one training
// run and consumed as an immutable unit by the service.
const (
	BackboneFile     = "backbone.onnx"
	BackboneMetaFile = "backbone.json"
	HeadFile         = "head.json"
)

// Engine wraps the frozen feature extractor and the trained classification
// head. It is loaded once at startup and is a pure function of its input
// tensor afterwards; concurrent calls are safe.
type Engine struct {
	extractor FeatureExtractor
	head      *DenseHead
}

// NewEngine pairs an extractor with a head, verifying that the head was
// trained on features of the extractor's width.
func NewEngine(extractor FeatureExtractor, head *DenseHead) (*Engine, error) {
	if head.InputDim != extractor.FeatureDim() {
		return nil, fmt.Errorf("%w: head expects %d features, backbone produces %d",
			ErrInvocation, head.InputDim, extractor.FeatureDim())
	}
	return &Engine{extractor: extractor, head: head}, nil
}

// NumClasses returns the width of the head's output layer.
func (e *Engine) NumClasses() int {
	return e.head.NumClasses
}

// Predict runs the full model on one preprocessed image. Dropout is a no-op
// at inference, so the head forward pass is just dense + soft-max.
func (e *Engine) Predict(t *preprocess.Tensor) (Distribution, error) {
	if t.Shape != e.extractor.InputShape() {
		return nil, fmt.Errorf("%w: tensor shape %v, model expects %v",
			ErrInvocation, t.Shape, e.extractor.InputShape())
	}
	features, err := e.extractor.Extract(t)
	if err != nil {
		return nil, err
	}
	return e.head.Forward(features), nil
}

// Close releases the extractor's runtime resources.
func (e *Engine) Close() error {
	return e.extractor.Close()
}

// LoadBundle opens an artifact bundle directory: the ONNX backbone, the head
// checkpoint and the label map. It fails fast with ErrLabelMismatch when the
// label count disagrees with the head's output width, so a skewed deployment
// never reaches a ready state.
func LoadBundle(dir string) (*Engine, labels.LabelMap, error) {
	lm, err := labels.Load(filepath.Join(dir, labels.FileName))
	if err != nil {
		return nil, nil, err
	}

	head, _, err := LoadCheckpoint(filepath.Join(dir, HeadFile))
	if err != nil {
		return nil, nil, err
	}
	if head.NumClasses != len(lm) {
		return nil, nil, fmt.Errorf("%w: %d labels, model output width %d",
			ErrLabelMismatch, len(lm), head.NumClasses)
	}

	extractor, err := NewOnnxExtractor(
		filepath.Join(dir, BackboneFile),
		filepath.Join(dir, BackboneMetaFile),
	)
	if err != nil {
		return nil, nil, err
	}

	engine, err := NewEngine(extractor, head)
	if err != nil {
		extractor.Close()
		return nil, nil, err
	}
	return engine, lm, nil
}
