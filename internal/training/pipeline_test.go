package training

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/agrisight/leafscan/internal/labels"
	"github.com/agrisight/leafscan/internal/model"
	"github.com/agrisight/leafscan/internal/preprocess"
)

// stubExtractor derives a small feature vector from pixel averages, standing
// in for the ONNX backbone.
type stubExtractor struct {
	dim int
}

func (s *stubExtractor) Extract(t *preprocess.Tensor) ([]float32, error) {
	f := make([]float32, s.dim)
	counts := make([]int, s.dim)
	for i, v := range t.Data {
		f[i%s.dim] += v
		counts[i%s.dim]++
	}
	for i := range f {
		f[i] /= float32(counts[i])
	}
	return f, nil
}

func (s *stubExtractor) FeatureDim() int { return s.dim }

func (s *stubExtractor) InputShape() [4]int {
	return [4]int{1, preprocess.ImageSize, preprocess.ImageSize, preprocess.Channels}
}

func (s *stubExtractor) Close() error { return nil }

func writeImage(t *testing.T, path string, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode image: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write image: %v", err)
	}
}

func writeImageCorpus(t *testing.T, perClass int) string {
	t.Helper()
	root := t.TempDir()
	colors := map[string]color.RGBA{
		"A": {R: 200, G: 30, B: 30, A: 255},
		"B": {R: 30, G: 30, B: 200, A: 255},
	}
	for class, c := range colors {
		dir := filepath.Join(root, class)
		if err := os.Mkdir(dir, 0755); err != nil {
			t.Fatalf("Failed to create class dir: %v", err)
		}
		for i := 0; i < perClass; i++ {
			shade := c
			shade.G = uint8(30 + i*20)
			writeImage(t, filepath.Join(dir, "leaf_"+string(rune('a'+i))+".png"), shade)
		}
	}
	return root
}

func writeBackboneDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{model.BackboneFile, model.BackboneMetaFile} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("frozen"), 0644); err != nil {
			t.Fatalf("Failed to write backbone file: %v", err)
		}
	}
	return dir
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p := NewPipeline(&stubExtractor{dim: 6}, writeBackboneDir(t))
	p.BatchSize = 2
	p.Epochs = 2
	return p
}

// End-to-end: a two-class corpus trains to a loadable artifact whose engine
// emits a length-2 distribution summing to ~1. Classification quality is not
// asserted — the head is barely trained.
func TestTrainEndToEnd(t *testing.T) {
	corpus := writeImageCorpus(t, 5)
	out := filepath.Join(t.TempDir(), "bundle")

	p := newTestPipeline(t)
	lm, err := p.Train(corpus, out)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	if len(lm) != 2 || lm[0] != "A" || lm[1] != "B" {
		t.Fatalf("Expected label map [A B], got %v", lm)
	}

	// The persisted label map must round-trip identically.
	loaded, err := labels.Load(filepath.Join(out, labels.FileName))
	if err != nil {
		t.Fatalf("Failed to load persisted label map: %v", err)
	}
	if len(loaded) != 2 || loaded[0] != "A" || loaded[1] != "B" {
		t.Fatalf("Persisted label map %v differs from %v", loaded, lm)
	}

	// Backbone files are copied into the bundle.
	for _, name := range []string{model.BackboneFile, model.BackboneMetaFile} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("Bundle missing %s: %v", name, err)
		}
	}

	// Reload the head and run an image from class A through the engine.
	head, ckpt, err := model.LoadCheckpoint(filepath.Join(out, model.HeadFile))
	if err != nil {
		t.Fatalf("Failed to load head checkpoint: %v", err)
	}
	if head.NumClasses != 2 {
		t.Fatalf("Expected 2 output classes, got %d", head.NumClasses)
	}
	if ckpt.TrainingState.Epoch != p.Epochs {
		t.Errorf("Expected final epoch %d, got %d", p.Epochs, ckpt.TrainingState.Epoch)
	}

	engine, err := model.NewEngine(&stubExtractor{dim: 6}, head)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(corpus, "A", "leaf_a.png"))
	if err != nil {
		t.Fatalf("Failed to read corpus image: %v", err)
	}
	tensor, err := preprocess.Preprocess(raw)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	dist, err := engine.Predict(tensor)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	if len(dist) != 2 {
		t.Fatalf("Expected distribution of length 2, got %d", len(dist))
	}
	var sum float64
	for _, v := range dist {
		sum += float64(v)
	}
	if math.Abs(sum-1.0) > 1e-4 {
		t.Errorf("Distribution sums to %f, expected ~1.0", sum)
	}
}

func TestTrainCorpusEmpty(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.Train(t.TempDir(), filepath.Join(t.TempDir(), "bundle"))
	if err == nil {
		t.Fatal("Expected error for empty corpus, got nil")
	}
	if !errors.Is(err, ErrCorpusEmpty) {
		t.Errorf("Expected ErrCorpusEmpty, got %v", err)
	}
}

// With the default batch size a ten-image corpus yields a single batch and
// the split must abort. The label map is still persisted first, so index
// assignment is locked in before the failure.
func TestTrainInsufficientData(t *testing.T) {
	corpus := writeImageCorpus(t, 5)
	out := filepath.Join(t.TempDir(), "bundle")

	p := newTestPipeline(t)
	p.BatchSize = 32

	_, err := p.Train(corpus, out)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData, got %v", err)
	}

	if _, statErr := os.Stat(filepath.Join(out, labels.FileName)); statErr != nil {
		t.Errorf("Label map should be persisted before training: %v", statErr)
	}
}

// Training loss should decrease on a separable two-class problem.
func TestFitReducesLoss(t *testing.T) {
	corpus := writeImageCorpus(t, 5)
	out := filepath.Join(t.TempDir(), "bundle")

	p := newTestPipeline(t)
	p.Epochs = 20
	p.DropoutRate = 0 // deterministic loss for the assertion
	p.Optimizer.LearningRate = 0.05

	if _, err := p.Train(corpus, out); err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	_, ckpt, err := model.LoadCheckpoint(filepath.Join(out, model.HeadFile))
	if err != nil {
		t.Fatalf("Failed to load checkpoint: %v", err)
	}

	// ln(2) is the uniform-head starting loss for two classes.
	if ckpt.TrainingState.BestLoss >= float32(math.Log(2)) {
		t.Errorf("Best loss %f did not improve on the untrained baseline %f",
			ckpt.TrainingState.BestLoss, math.Log(2))
	}
}
