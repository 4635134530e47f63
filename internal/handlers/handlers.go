package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/agrisight/leafscan/internal/advisory"
	"github.com/agrisight/leafscan/internal/history"
	"github.com/agrisight/leafscan/internal/labels"
	"github.com/agrisight/leafscan/internal/model"
	"github.com/agrisight/leafscan/internal/preprocess"
)

// Handler serves the inference endpoints. Everything it holds is built once
// at startup and read-only afterwards, so concurrent requests need no
// locking.
type Handler struct {
	engine      *model.Engine
	labelMap    labels.LabelMap
	catalog     *advisory.Catalog
	store       *history.Store
	maxUploadMB int64
}

func NewHandler(engine *model.Engine, lm labels.LabelMap, catalog *advisory.Catalog, store *history.Store, maxUploadMB int64) *Handler {
	return &Handler{
		engine:      engine,
		labelMap:    lm,
		catalog:     catalog,
		store:       store,
		maxUploadMB: maxUploadMB,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "healthy",
		"classes": len(h.labelMap),
	})
}

// Analyze accepts a multipart upload under the "image" field, runs the full
// diagnosis pipeline and returns the result as JSON. Decode failures are
// client errors; everything past preprocessing is a server error.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(h.maxUploadMB << 20); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read upload", http.StatusBadRequest)
		return
	}

	tensor, err := preprocess.Preprocess(raw)
	if err != nil {
		if errors.Is(err, preprocess.ErrDecode) {
			http.Error(w, "Invalid image format. Supported: JPEG, PNG, GIF", http.StatusBadRequest)
			return
		}
		zap.L().Error("preprocessing failed", zap.Error(err))
		http.Error(w, "Failed to preprocess image", http.StatusInternalServerError)
		return
	}

	dist, err := h.engine.Predict(tensor)
	if err != nil {
		zap.L().Error("prediction failed", zap.Error(err))
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	result, err := model.Resolve(dist, h.labelMap, h.catalog)
	if err != nil {
		zap.L().Error("resolution failed", zap.Error(err))
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	if h.store != nil {
		entry := history.Entry{
			FileName:    header.Filename,
			CropDisease: result.CropDisease,
			Confidence:  result.Confidence,
			Suggestion:  result.Suggestion,
		}
		if err := h.store.Record(r.Context(), entry); err != nil {
			zap.L().Warn("failed to record prediction", zap.Error(err))
		}
	}

	zap.L().Info("diagnosis served",
		zap.String("class", result.CropDisease),
		zap.Float64("confidence", result.Confidence))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// History lists the most recent diagnoses, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.store == nil {
		http.Error(w, "History not available", http.StatusNotFound)
		return
	}

	entries, err := h.store.Recent(r.Context(), 50)
	if err != nil {
		zap.L().Error("history query failed", zap.Error(err))
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
