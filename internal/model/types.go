package model

import "errors"

// ErrInvocation reports a tensor/model shape mismatch or a failed model run.
// It indicates artifact/engine version skew and is a configuration-level
// failure, not a per-request one.
var ErrInvocation = errors.New("model invocation failed")

// ErrLabelMismatch reports disagreement between the label map and the
// model's output width. A service must refuse to start in this state rather
// than serve corrupted predictions.
var ErrLabelMismatch = errors.New("label map does not match model output")

// Distribution is an ordered sequence of class probabilities, one per class
// index, summing to ~1.0.
type Distribution []float32

// ArgMax returns the index and value of the maximum element. Ties resolve
// to the lowest index.
func (d Distribution) ArgMax() (int, float32) {
	maxIdx := 0
	maxVal := d[0]
	for i, v := range d {
		if v > maxVal {
			maxVal = v
			maxIdx = i
		}
	}
	return maxIdx, maxVal
}

// Result is the caller-facing diagnosis, recomputed per request.
type Result struct {
	CropDisease string  `json:"crop_disease"`
	Confidence  float64 `json:"confidence"`
	Suggestion  string  `json:"suggestion"`
}

// BackboneMetadata describes the frozen feature extractor's ONNX graph:
// tensor names and shapes needed to bind a session to it.
type BackboneMetadata struct {
	InputName   string  `json:"input_name"`
	OutputName  string  `json:"output_name"`
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
}

// FeatureDim is the channel width of the backbone output, i.e. the length
// of the pooled feature vector.
func (m BackboneMetadata) FeatureDim() int {
	return int(m.OutputShape[len(m.OutputShape)-1])
}
