package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"plateful/internal/media"
)

// FoodClassifier is the classification side the handler needs.
type FoodClassifier interface {
	IsFood(ctx context.Context, img media.Image) bool
	MatchesRecipe(ctx context.Context, name string, img media.Image) bool
}

// Handler exposes HTTP endpoints for ad-hoc vision tooling.
type Handler struct {
	Classifier FoodClassifier
	Renderer   ImageGenerator
}

// Classify handles POST /api/vision/classify with a multipart "image" file and
// an optional "recipe" field to check the image against.
func (h Handler) Classify(w http.ResponseWriter, r *http.Request) {
	if h.Classifier == nil {
		http.Error(w, "vision classification inactive", http.StatusServiceUnavailable)
		return
	}
	if err := r.ParseMultipartForm(media.MaxImageBytes + (1 << 20)); err != nil {
		http.Error(w, fmt.Sprintf("could not parse form: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "image is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	img, err := media.ReadImage(file, header.Header.Get("Content-Type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := map[string]bool{"isFood": h.Classifier.IsFood(r.Context(), img)}
	if name := strings.TrimSpace(r.FormValue("recipe")); name != "" {
		result["matches"] = h.Classifier.MatchesRecipe(r.Context(), name, img)
	}
	writeJSON(w, result)
}

// Render handles POST /api/vision/render.
func (h Handler) Render(w http.ResponseWriter, r *http.Request) {
	if h.Renderer == nil {
		http.Error(w, "image rendering inactive", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}

	img, err := h.Renderer.Generate(r.Context(), req.Prompt)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ErrNoImageProduced) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, map[string]string{
		"mimeType": img.MIMEType,
		"dataUri":  img.DataURI(),
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
