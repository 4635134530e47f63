// Package labels owns the class-index ↔ class-name binding. The label map is
// written once at the start of a training run and must be loaded unmodified
// by the inference service; the two are only valid as a pair with the model
// artifact trained against them.
package labels

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// FileName is the label map file inside an artifact bundle: a JSON array of
// strings where array position is the class index.
const FileName = "class_names.json"

// LabelMap is an ordered sequence of class names. The position of a name is
// the class index the model's output layer uses for it.
type LabelMap []string

// Discover enumerates the immediate subdirectories of corpusRoot in
// lexicographic order. Each directory name becomes a class name. The order
// is stable across runs so index assignment is reproducible.
func Discover(corpusRoot string) (LabelMap, error) {
	entries, err := os.ReadDir(corpusRoot)
	if err != nil {
		return nil, fmt.Errorf("read corpus root: %w", err)
	}

	var lm LabelMap
	for _, e := range entries {
		if e.IsDir() {
			lm = append(lm, e.Name())
		}
	}
	sort.Strings(lm)
	return lm, nil
}

// Save writes the label map as a JSON array.
func (lm LabelMap) Save(path string) error {
	data, err := json.Marshal(lm)
	if err != nil {
		return fmt.Errorf("marshal label map: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write label map: %w", err)
	}
	return nil
}

// Load reads a label map previously written by Save.
func Load(path string) (LabelMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read label map: %w", err)
	}
	var lm LabelMap
	if err := json.Unmarshal(data, &lm); err != nil {
		return nil, fmt.Errorf("parse label map: %w", err)
	}
	return lm, nil
}

// Name returns the class name for index i and false if i is out of range.
func (lm LabelMap) Name(i int) (string, bool) {
	if i < 0 || i >= len(lm) {
		return "", false
	}
	return lm[i], true
}
