package main

import (
	"flag"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/agrisight/leafscan/internal/logging"
	"github.com/agrisight/leafscan/internal/model"
	"github.com/agrisight/leafscan/internal/training"
)

func main() {
	corpus := flag.String("corpus", "dataset", "root directory of the labeled image corpus")
	backbone := flag.String("backbone", filepath.Join("models", "backbone"), "directory holding backbone.onnx and backbone.json")
	out := flag.String("out", filepath.Join("models", "plant_disease"), "output directory for the artifact bundle")
	epochs := flag.Int("epochs", 5, "number of training epochs")
	batchSize := flag.Int("batch-size", 32, "training batch size")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	if err := logging.Setup(*logLevel); err != nil {
		panic(err)
	}
	defer zap.L().Sync()

	extractor, err := model.NewOnnxExtractor(
		filepath.Join(*backbone, model.BackboneFile),
		filepath.Join(*backbone, model.BackboneMetaFile),
	)
	if err != nil {
		zap.L().Fatal("failed to load backbone", zap.Error(err))
	}
	defer extractor.Close()

	pipeline := training.NewPipeline(extractor, *backbone)
	pipeline.Epochs = *epochs
	pipeline.BatchSize = *batchSize

	labelMap, err := pipeline.Train(*corpus, *out)
	if err != nil {
		zap.L().Fatal("training failed", zap.Error(err))
	}

	zap.L().Info("training complete",
		zap.String("artifact", *out),
		zap.Strings("labels", labelMap))
}
