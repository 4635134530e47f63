package main

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/agrisight/leafscan/internal/advisory"
	"github.com/agrisight/leafscan/internal/config"
	"github.com/agrisight/leafscan/internal/handlers"
	"github.com/agrisight/leafscan/internal/history"
	"github.com/agrisight/leafscan/internal/logging"
	"github.com/agrisight/leafscan/internal/model"
)

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func main() {
	cfg := config.Load()

	if err := logging.Setup(cfg.LogLevel); err != nil {
		panic(err)
	}
	defer zap.L().Sync()

	zap.L().Info("loading artifact bundle", zap.String("dir", cfg.ModelDir))

	// Model/label skew is a fatal configuration error; the process refuses
	// to serve rather than emit corrupted predictions.
	engine, labelMap, err := model.LoadBundle(cfg.ModelDir)
	if err != nil {
		zap.L().Fatal("failed to load model bundle", zap.Error(err))
	}
	defer engine.Close()

	store, err := history.Open(cfg.HistoryDBPath)
	if err != nil {
		zap.L().Fatal("failed to open history store", zap.Error(err))
	}
	defer store.Close()

	handler := handlers.NewHandler(engine, labelMap, advisory.Default(), store, cfg.MaxUploadMB)

	http.HandleFunc("/health", enableCORS(handler.Health))
	http.HandleFunc("/analyze", enableCORS(handler.Analyze))
	http.HandleFunc("/predict", enableCORS(handler.Analyze))
	http.HandleFunc("/history", enableCORS(handler.History))

	zap.L().Info("server starting",
		zap.Int("port", cfg.Port),
		zap.Int("classes", len(labelMap)),
		zap.Strings("labels", labelMap))

	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.Port), nil); err != nil {
		zap.L().Fatal("server failed", zap.Error(err))
	}
}
