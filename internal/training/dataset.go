// Package training implements the offline transfer-learning pipeline:
// corpus ingestion, label discovery, feature extraction through the frozen
// backbone, the head fit loop and artifact persistence.
package training

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agrisight/leafscan/internal/labels"
)

// ErrCorpusEmpty reports a corpus with no class subdirectories or no images.
var ErrCorpusEmpty = errors.New("training corpus is empty")

// ErrInsufficientData reports a corpus too small to yield at least one batch
// in both the training and validation partitions.
var ErrInsufficientData = errors.New("not enough data for a train/validation split")

// Sample is one labeled corpus image, identified by path until its features
// are extracted.
type Sample struct {
	Path  string
	Label int
}

// ScanCorpus enumerates every image under each class subdirectory of root.
// Class order comes from the label map, file order from the sorted directory
// listing, so the sample sequence is stable across runs. Files that are not
// regular files are skipped.
func ScanCorpus(root string, lm labels.LabelMap) ([]Sample, error) {
	var samples []Sample
	for idx, class := range lm {
		dir := filepath.Join(root, class)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read class directory %q: %w", class, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			samples = append(samples, Sample{
				Path:  filepath.Join(dir, e.Name()),
				Label: idx,
			})
		}
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no images under %q", ErrCorpusEmpty, root)
	}
	return samples, nil
}

// Batch holds the extracted feature vectors and class indices for a fixed
// run of samples. It is the unit the train/validation split operates on.
type Batch struct {
	Features [][]float32
	Labels   []int
}

// MakeBatches groups features and labels into batches of batchSize in their
// original order. The final batch may be short.
func MakeBatches(features [][]float32, classIdx []int, batchSize int) []Batch {
	var batches []Batch
	for start := 0; start < len(features); start += batchSize {
		end := start + batchSize
		if end > len(features) {
			end = len(features)
		}
		batches = append(batches, Batch{
			Features: features[start:end],
			Labels:   classIdx[start:end],
		})
	}
	return batches
}

// Split partitions batches into training and validation sets along batch
// boundaries. The first trainFrac of batches, in their emitted order, become
// the training set; no shuffling is applied.
func Split(batches []Batch, trainFrac float64) (train, val []Batch, err error) {
	n := int(float64(len(batches)) * trainFrac)
	train, val = batches[:n], batches[n:]
	if len(train) == 0 || len(val) == 0 {
		return nil, nil, fmt.Errorf("%w: %d batches total, %d train / %d validation",
			ErrInsufficientData, len(batches), len(train), len(val))
	}
	return train, val, nil
}
