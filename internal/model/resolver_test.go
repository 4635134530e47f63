package model

import (
	"errors"
	"testing"

	"github.com/agrisight/leafscan/internal/advisory"
	"github.com/agrisight/leafscan/internal/labels"
)

func TestResolveSelectsMaximum(t *testing.T) {
	lm := labels.LabelMap{"Tomato___Late_blight", "Tomato___healthy", "Tomato___Leaf_Mold"}
	dist := Distribution{0.1, 0.7, 0.2}

	result, err := Resolve(dist, lm, advisory.Default())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.CropDisease != "Tomato___healthy" {
		t.Errorf("Expected Tomato___healthy, got %q", result.CropDisease)
	}
	if result.Confidence != 0.7 {
		t.Errorf("Expected confidence 0.7, got %f", result.Confidence)
	}
	if result.Suggestion != "Your plant is healthy!" {
		t.Errorf("Unexpected suggestion: %q", result.Suggestion)
	}
}

// Ties resolve to the lowest index.
func TestResolveTieBreaking(t *testing.T) {
	lm := labels.LabelMap{"A", "B", "C"}
	dist := Distribution{0.5, 0.5, 0.0}

	result, err := Resolve(dist, lm, advisory.Default())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.CropDisease != "A" {
		t.Errorf("Tie should resolve to index 0 (A), got %q", result.CropDisease)
	}
}

// Confidence is rounded to three decimals for display only.
func TestResolveConfidenceRounding(t *testing.T) {
	lm := labels.LabelMap{"A", "B"}
	dist := Distribution{0.94321, 0.05679}

	result, err := Resolve(dist, lm, advisory.Default())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Confidence != 0.943 {
		t.Errorf("Expected confidence 0.943, got %v", result.Confidence)
	}
}

func TestResolveUnknownClassFallback(t *testing.T) {
	lm := labels.LabelMap{"Mystery___disease"}
	result, err := Resolve(Distribution{1.0}, lm, advisory.Default())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Suggestion != advisory.Fallback {
		t.Errorf("Expected fallback suggestion, got %q", result.Suggestion)
	}
}

// A distribution wider than the label map signals model/label skew and must
// fail, not silently pick a wrong name.
func TestResolveLabelMismatch(t *testing.T) {
	lm := labels.LabelMap{"A", "B"}
	dist := Distribution{0.1, 0.2, 0.7} // max index 2 exceeds label map

	_, err := Resolve(dist, lm, advisory.Default())
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !errors.Is(err, ErrLabelMismatch) {
		t.Errorf("Expected ErrLabelMismatch, got %v", err)
	}
}

func TestResolveEmptyDistribution(t *testing.T) {
	_, err := Resolve(Distribution{}, labels.LabelMap{"A"}, advisory.Default())
	if err == nil {
		t.Fatal("Expected error for empty distribution, got nil")
	}
	if !errors.Is(err, ErrInvocation) {
		t.Errorf("Expected ErrInvocation, got %v", err)
	}
}

func TestArgMax(t *testing.T) {
	tests := []struct {
		name    string
		dist    Distribution
		wantIdx int
	}{
		{"SingleElement", Distribution{1.0}, 0},
		{"MaxAtEnd", Distribution{0.1, 0.2, 0.7}, 2},
		{"AllEqual", Distribution{0.25, 0.25, 0.25, 0.25}, 0},
		{"TieFirstTwo", Distribution{0.5, 0.5, 0.0}, 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			idx, val := test.dist.ArgMax()
			if idx != test.wantIdx {
				t.Errorf("ArgMax index = %d, expected %d", idx, test.wantIdx)
			}
			if val != test.dist[test.wantIdx] {
				t.Errorf("ArgMax value = %f, expected %f", val, test.dist[test.wantIdx])
			}
		})
	}
}
