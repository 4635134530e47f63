package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"
)

// DenseHead is the trainable classification head: a single dense layer with
// soft-max activation sitting on top of the pooled backbone features.
// Weights are row-major: W[i*NumClasses+j] connects feature i to class j.
type DenseHead struct {
	InputDim   int
	NumClasses int
	W          []float32
	B          []float32
}

// NewDenseHead allocates a zero-initialized head. Zero weights give a
// uniform soft-max, which is a valid starting point for training.
func NewDenseHead(inputDim, numClasses int) *DenseHead {
	return &DenseHead{
		InputDim:   inputDim,
		NumClasses: numClasses,
		W:          make([]float32, inputDim*numClasses),
		B:          make([]float32, numClasses),
	}
}

// Logits computes Wx+b without the soft-max.
func (h *DenseHead) Logits(x []float32) []float32 {
	logits := make([]float32, h.NumClasses)
	copy(logits, h.B)
	for i := 0; i < h.InputDim; i++ {
		xi := x[i]
		if xi == 0 {
			continue
		}
		row := i * h.NumClasses
		for j := 0; j < h.NumClasses; j++ {
			logits[j] += xi * h.W[row+j]
		}
	}
	return logits
}

// Forward computes the class probability distribution for one feature
// vector.
func (h *DenseHead) Forward(x []float32) Distribution {
	return softmax(h.Logits(x))
}

// softmax uses the max-subtraction form for numerical stability.
func softmax(logits []float32) Distribution {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	probs := make(Distribution, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxLogit))
		probs[i] = float32(e)
		sum += e
	}
	inv := float32(1.0 / sum)
	for i := range probs {
		probs[i] *= inv
	}
	return probs
}

// WeightTensor is one named parameter tensor inside a head checkpoint.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
	Layer string    `json:"layer"`
	Type  string    `json:"type"`
}

// TrainingState records where a fit run ended.
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	LearningRate float32 `json:"learning_rate"`
	BestLoss     float32 `json:"best_loss"`
	BestAccuracy float32 `json:"best_accuracy"`
}

// CheckpointMetadata identifies who wrote a checkpoint and when.
type CheckpointMetadata struct {
	Version   string    `json:"version"`
	Framework string    `json:"framework"`
	CreatedAt time.Time `json:"created_at"`
}

// Checkpoint is the serialized form of a trained head plus training
// metadata. It is the mutable half of the artifact bundle; the backbone
// graph stays byte-identical across training runs.
type Checkpoint struct {
	Weights       []WeightTensor     `json:"weights"`
	TrainingState TrainingState      `json:"training_state"`
	Metadata      CheckpointMetadata `json:"metadata"`
}

// SaveCheckpoint writes the head and training state as an indented JSON
// checkpoint.
func SaveCheckpoint(h *DenseHead, state TrainingState, path string) error {
	ckpt := Checkpoint{
		Weights: []WeightTensor{
			{Name: "dense/weight", Shape: []int{h.InputDim, h.NumClasses}, Data: h.W, Layer: "dense", Type: "weight"},
			{Name: "dense/bias", Shape: []int{h.NumClasses}, Data: h.B, Layer: "dense", Type: "bias"},
		},
		TrainingState: state,
		Metadata: CheckpointMetadata{
			Version:   "1.0.0",
			Framework: "leafscan",
			CreatedAt: time.Now().UTC(),
		},
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(&ckpt); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint and reconstructs the head, validating
// that the stored tensors have consistent shapes.
func LoadCheckpoint(path string) (*DenseHead, *Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var ckpt Checkpoint
	if err := json.NewDecoder(file).Decode(&ckpt); err != nil {
		return nil, nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	var weight, bias *WeightTensor
	for i := range ckpt.Weights {
		switch ckpt.Weights[i].Type {
		case "weight":
			weight = &ckpt.Weights[i]
		case "bias":
			bias = &ckpt.Weights[i]
		}
	}
	if weight == nil || bias == nil {
		return nil, nil, fmt.Errorf("checkpoint is missing dense weight or bias tensor")
	}
	if len(weight.Shape) != 2 {
		return nil, nil, fmt.Errorf("dense weight shape %v is not rank 2", weight.Shape)
	}

	inputDim, numClasses := weight.Shape[0], weight.Shape[1]
	if len(weight.Data) != inputDim*numClasses {
		return nil, nil, fmt.Errorf("dense weight has %d values, shape %v expects %d",
			len(weight.Data), weight.Shape, inputDim*numClasses)
	}
	if len(bias.Data) != numClasses {
		return nil, nil, fmt.Errorf("dense bias has %d values, expected %d", len(bias.Data), numClasses)
	}

	return &DenseHead{
		InputDim:   inputDim,
		NumClasses: numClasses,
		W:          weight.Data,
		B:          bias.Data,
	}, &ckpt, nil
}
