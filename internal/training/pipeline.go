package training

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/agrisight/leafscan/internal/labels"
	"github.com/agrisight/leafscan/internal/model"
	"github.com/agrisight/leafscan/internal/preprocess"
)

// Pipeline runs one offline training pass: discover labels, extract backbone
// features for every corpus image, fit the dense head and persist the
// artifact bundle. It is a single-process batch job with no concurrency of
// its own.
type Pipeline struct {
	Extractor   model.FeatureExtractor
	BackboneDir string // source of backbone.onnx + backbone.json to copy into the bundle
	BatchSize   int
	Epochs      int
	DropoutRate float32
	TrainFrac   float64
	Optimizer   AdamConfig
	Seed        int64
}

// NewPipeline returns a pipeline with the reference defaults: batch size 32,
// 5 epochs, dropout 0.3, 80/20 split, standard Adam.
func NewPipeline(extractor model.FeatureExtractor, backboneDir string) *Pipeline {
	return &Pipeline{
		Extractor:   extractor,
		BackboneDir: backboneDir,
		BatchSize:   32,
		Epochs:      5,
		DropoutRate: 0.3,
		TrainFrac:   0.8,
		Optimizer:   DefaultAdamConfig(),
		Seed:        1,
	}
}

// Train ingests the corpus at corpusRoot and writes a complete artifact
// bundle to outDir. The label map is persisted before any training occurs,
// locking in index assignment.
func (p *Pipeline) Train(corpusRoot, outDir string) (labels.LabelMap, error) {
	lm, err := labels.Discover(corpusRoot)
	if err != nil {
		return nil, err
	}
	if len(lm) == 0 {
		return nil, fmt.Errorf("%w: no class directories under %q", ErrCorpusEmpty, corpusRoot)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if err := lm.Save(filepath.Join(outDir, labels.FileName)); err != nil {
		return nil, err
	}
	zap.L().Info("label map persisted", zap.Int("classes", len(lm)))

	samples, err := ScanCorpus(corpusRoot, lm)
	if err != nil {
		return nil, err
	}
	zap.L().Info("corpus scanned", zap.Int("samples", len(samples)))

	features, classIdx, err := p.extractFeatures(samples)
	if err != nil {
		return nil, err
	}

	batches := MakeBatches(features, classIdx, p.BatchSize)
	train, val, err := Split(batches, p.TrainFrac)
	if err != nil {
		return nil, err
	}
	zap.L().Info("dataset split",
		zap.Int("train_batches", len(train)),
		zap.Int("val_batches", len(val)))

	head := model.NewDenseHead(p.Extractor.FeatureDim(), len(lm))
	state := p.fit(head, train, val)

	if err := p.copyBackbone(outDir); err != nil {
		return nil, err
	}
	if err := model.SaveCheckpoint(head, state, filepath.Join(outDir, model.HeadFile)); err != nil {
		return nil, err
	}
	zap.L().Info("artifact bundle written", zap.String("dir", outDir))
	return lm, nil
}

// extractFeatures preprocesses every sample with the same transform the
// inference service uses and runs it through the frozen backbone. The
// backbone never updates, so features are computed once and the fit loop
// iterates over the cached vectors.
func (p *Pipeline) extractFeatures(samples []Sample) ([][]float32, []int, error) {
	features := make([][]float32, 0, len(samples))
	classIdx := make([]int, 0, len(samples))
	for _, s := range samples {
		raw, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("read sample %q: %w", s.Path, err)
		}
		t, err := preprocess.Preprocess(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("sample %q: %w", s.Path, err)
		}
		f, err := p.Extractor.Extract(t)
		if err != nil {
			return nil, nil, fmt.Errorf("sample %q: %w", s.Path, err)
		}
		features = append(features, f)
		classIdx = append(classIdx, s.Label)
	}
	return features, classIdx, nil
}

// fit optimizes sparse cross-entropy over the training batches with Adam,
// applying inverted dropout to the feature vectors. Validation accuracy is
// tracked per epoch; there is no early stopping.
func (p *Pipeline) fit(head *model.DenseHead, train, val []Batch) model.TrainingState {
	rng := rand.New(rand.NewSource(p.Seed))
	wOpt := NewAdam(p.Optimizer, len(head.W))
	bOpt := NewAdam(p.Optimizer, len(head.B))

	state := model.TrainingState{
		LearningRate: p.Optimizer.LearningRate,
		BestLoss:     float32(math.Inf(1)),
	}

	gradW := make([]float32, len(head.W))
	gradB := make([]float32, len(head.B))
	dropped := make([]float32, head.InputDim)

	for epoch := 1; epoch <= p.Epochs; epoch++ {
		var lossSum float64
		var count int

		for _, batch := range train {
			for i := range gradW {
				gradW[i] = 0
			}
			for i := range gradB {
				gradB[i] = 0
			}

			for s, x := range batch.Features {
				x = p.dropout(x, dropped, rng)
				probs := head.Forward(x)

				y := batch.Labels[s]
				lossSum += -math.Log(math.Max(float64(probs[y]), 1e-12))
				count++

				// Soft-max + cross-entropy gradient: p - onehot(y).
				for j, pj := range probs {
					g := pj
					if j == y {
						g -= 1
					}
					gradB[j] += g
					for i := 0; i < head.InputDim; i++ {
						gradW[i*head.NumClasses+j] += x[i] * g
					}
				}
			}

			inv := float32(1.0 / float64(len(batch.Features)))
			for i := range gradW {
				gradW[i] *= inv
			}
			for i := range gradB {
				gradB[i] *= inv
			}
			wOpt.Step(head.W, gradW)
			bOpt.Step(head.B, gradB)
		}

		epochLoss := float32(lossSum / float64(count))
		accuracy := p.evaluate(head, val)
		if epochLoss < state.BestLoss {
			state.BestLoss = epochLoss
		}
		if accuracy > state.BestAccuracy {
			state.BestAccuracy = accuracy
		}
		state.Epoch = epoch

		zap.L().Info("epoch complete",
			zap.Int("epoch", epoch),
			zap.Float32("train_loss", epochLoss),
			zap.Float32("val_accuracy", accuracy))
	}

	return state
}

// dropout zeroes each feature with probability DropoutRate and rescales the
// survivors so the expected activation is unchanged. Inference never applies
// it.
func (p *Pipeline) dropout(x, buf []float32, rng *rand.Rand) []float32 {
	if p.DropoutRate <= 0 {
		return x
	}
	keep := 1 - p.DropoutRate
	for i, v := range x {
		if rng.Float32() < p.DropoutRate {
			buf[i] = 0
		} else {
			buf[i] = v / keep
		}
	}
	return buf
}

// evaluate returns top-1 accuracy over the validation batches.
func (p *Pipeline) evaluate(head *model.DenseHead, val []Batch) float32 {
	var correct, total int
	for _, batch := range val {
		for s, x := range batch.Features {
			idx, _ := head.Forward(x).ArgMax()
			if idx == batch.Labels[s] {
				correct++
			}
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float32(correct) / float32(total)
}

// copyBackbone copies the frozen backbone graph and its metadata sidecar
// into the bundle so the artifact is self-contained.
func (p *Pipeline) copyBackbone(outDir string) error {
	for _, name := range []string{model.BackboneFile, model.BackboneMetaFile} {
		src := filepath.Join(p.BackboneDir, name)
		dst := filepath.Join(outDir, name)
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("copy %s into bundle: %w", name, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
