package model

import (
	"fmt"
	"math"

	"github.com/agrisight/leafscan/internal/advisory"
	"github.com/agrisight/leafscan/internal/labels"
)

// Resolve selects the top class from a distribution and assembles the
// caller-facing result. The raw maximum decides the class; rounding to three
// decimals happens only for display, after selection.
func Resolve(dist Distribution, lm labels.LabelMap, catalog *advisory.Catalog) (*Result, error) {
	if len(dist) == 0 {
		return nil, fmt.Errorf("%w: empty distribution", ErrInvocation)
	}

	idx, maxVal := dist.ArgMax()
	className, ok := lm.Name(idx)
	if !ok {
		return nil, fmt.Errorf("%w: class index %d, label map length %d",
			ErrLabelMismatch, idx, len(lm))
	}

	return &Result{
		CropDisease: className,
		Confidence:  math.Round(float64(maxVal)*1000) / 1000,
		Suggestion:  catalog.Lookup(className),
	}, nil
}
