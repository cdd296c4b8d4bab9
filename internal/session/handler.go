package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"plateful/internal/events"
	"plateful/internal/llm"
	"plateful/internal/media"
	"plateful/internal/recipe"
	"plateful/internal/share"
)

// ClientCookie names the cookie carrying the anonymous client ID.
const ClientCookie = "plateful_client"

const (
	clientCookieMaxAge = 365 * 24 * 60 * 60
	heartbeatInterval  = 25 * time.Second
	msgShareInvalid    = "That recipe link could not be opened."
)

// Handler bundles dependencies for the recipe endpoints.
type Handler struct {
	Registry  *Registry
	Broker    *events.Broker
	Fetcher   *media.Fetcher
	Models    llm.Models
	PublicURL string
	Logger    *zap.Logger
}

type discoverRequest struct {
	ImageURL string   `json:"imageUrl"`
	Cuisines []string `json:"cuisines"`
	Model    string   `json:"model"`
}

type sharedRequest struct {
	URL string `json:"url"`
}

type timerRequest struct {
	Seconds     int    `json:"seconds"`
	Description string `json:"description"`
	// Instruction lets the client start a timer straight from a recipe step.
	Instruction string `json:"instruction"`
}

type errorResponse struct {
	Error string    `json:"error"`
	State *Snapshot `json:"state,omitempty"`
}

// State handles GET /api/state.
func (h Handler) State(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, o.Snapshot())
}

// Discover handles POST /api/discover with either a multipart "image" file or
// a JSON body carrying an imageUrl. An optional "model" picks one of the
// selectable recipe models.
func (h Handler) Discover(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}

	req, model, err := h.parseDiscover(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, nil)
		return
	}
	ctx, err := h.Models.Select(r.Context(), model)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, nil)
		return
	}

	snap, err := o.Discover(ctx, req)
	if err != nil {
		writeError(w, statusFor(err), err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h Handler) parseDiscover(r *http.Request) (Request, string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(media.MaxImageBytes + (1 << 20)); err != nil {
			return Request{}, "", fmt.Errorf("invalid multipart payload: %w", err)
		}
		req := Request{Cuisines: splitList(r.FormValue("cuisines"))}
		model := r.FormValue("model")

		file, header, err := r.FormFile("image")
		switch {
		case errors.Is(err, http.ErrMissingFile):
			if imageURL := strings.TrimSpace(r.FormValue("imageUrl")); imageURL != "" {
				req.Image, err = h.fetch(r, imageURL)
				return req, model, err
			}
			return req, model, nil
		case err != nil:
			return Request{}, "", fmt.Errorf("could not read image: %w", err)
		}
		defer file.Close()

		img, err := media.ReadImage(file, header.Header.Get("Content-Type"))
		if err != nil && !errors.Is(err, media.ErrEmptyImage) {
			return Request{}, "", err
		}
		req.Image = img
		return req, model, nil
	}

	// An empty body is a request without a photo.
	var body discoverRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return Request{}, "", fmt.Errorf("invalid request body")
	}
	req := Request{Cuisines: body.Cuisines}
	if strings.TrimSpace(body.ImageURL) != "" {
		img, err := h.fetch(r, body.ImageURL)
		if err != nil {
			return Request{}, "", err
		}
		req.Image = img
	}
	return req, body.Model, nil
}

func (h Handler) fetch(r *http.Request, imageURL string) (media.Image, error) {
	if h.Fetcher == nil {
		return media.Image{}, fmt.Errorf("image urls are not supported")
	}
	return h.Fetcher.Fetch(r.Context(), imageURL)
}

// More handles POST /api/more. The "model" query parameter works as in Discover.
func (h Handler) More(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx, err := h.Models.Select(r.Context(), r.URL.Query().Get("model"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err, nil)
		return
	}
	snap, err := o.LoadMore(ctx)
	if err != nil {
		writeError(w, statusFor(err), err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Reset handles POST /api/reset.
func (h Handler) Reset(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, o.Reset())
}

// Popular handles GET /api/popular. A gallery that failed to load is retried.
func (h Handler) Popular(w http.ResponseWriter, r *http.Request) {
	gallery := h.Registry.Gallery()
	if loaded, _ := gallery.Status(); !loaded {
		if err := gallery.Load(r.Context()); err != nil {
			h.logger().Warn("gallery retry failed", zap.Error(err))
		}
	}
	loaded, err := gallery.Status()
	resp := map[string]any{
		"loaded":  loaded,
		"recipes": gallery.Recipes(),
	}
	if err != nil && !loaded {
		resp["error"] = "Popular recipes are unavailable right now."
	}
	writeJSON(w, http.StatusOK, resp)
}

// Saved handles GET /api/saved.
func (h Handler) Saved(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, o.Saved())
}

// ToggleSaved handles POST /api/saved/{id}/toggle.
func (h Handler) ToggleSaved(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	saved, err := o.ToggleSaved(r.Context(), id)
	if errors.Is(err, ErrUnknownRecipe) {
		writeError(w, http.StatusNotFound, err, nil)
		return
	}
	resp := map[string]any{"id": id, "saved": saved}
	if err != nil {
		resp["error"] = msgSaveFailed
	}
	writeJSON(w, http.StatusOK, resp)
}

// RemoveSaved handles DELETE /api/saved/{id}.
func (h Handler) RemoveSaved(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}
	err := o.RemoveSaved(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, ErrUnknownRecipe):
		writeError(w, http.StatusNotFound, err, nil)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err, nil)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// Steps handles GET /api/recipes/{id}/steps.
func (h Handler) Steps(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.recipe(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         rec.ID,
		"recipeName": rec.Name,
		"steps":      recipe.Steps(rec),
	})
}

// ShareLink handles GET /api/recipes/{id}/share.
func (h Handler) ShareLink(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.recipe(w, r)
	if !ok {
		return
	}
	link, err := share.Encode(h.appURL(r), rec)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": link})
}

// OpenShared handles POST /api/shared.
func (h Handler) OpenShared(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}
	var req sharedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body"), nil)
		return
	}

	rec, cleaned, err := share.Decode(req.URL)
	if err != nil {
		if !errors.Is(err, share.ErrNoRecipe) {
			o.Advise(AdvisoryShareInvalid, msgShareInvalid)
		}
		snap := o.Snapshot()
		writeError(w, http.StatusBadRequest, err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":   cleaned,
		"state": o.ShowShared(rec),
	})
}

// StartTimer handles POST /api/timer.
func (h Handler) StartTimer(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}
	var req timerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body"), nil)
		return
	}
	if req.Seconds <= 0 && req.Instruction != "" {
		step := recipe.ParseStep(req.Instruction)
		req.Seconds = step.Seconds
		if req.Description == "" {
			req.Description = step.Text
		}
	}

	timer, err := o.StartTimer(req.Seconds, req.Description)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, timer)
}

// CloseTimer handles DELETE /api/timer.
func (h Handler) CloseTimer(w http.ResponseWriter, r *http.Request) {
	o, ok := h.session(w, r)
	if !ok {
		return
	}
	o.CloseTimer()
	w.WriteHeader(http.StatusNoContent)
}

// StreamEvents handles GET /api/events as a server-sent event stream.
func (h Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.Broker == nil {
		http.Error(w, "event stream inactive", http.StatusServiceUnavailable)
		return
	}
	clientID := h.clientID(w, r)

	rc := http.NewResponseController(w)
	// the stream outlives the server's write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	ch := h.Broker.Subscribe(clientID)
	defer h.Broker.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger().Warn("streaming not supported", zap.Error(err))
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case evt, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				h.logger().Error("encode event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, payload); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (h Handler) session(w http.ResponseWriter, r *http.Request) (*Orchestrator, bool) {
	o, err := h.Registry.Session(r.Context(), h.clientID(w, r))
	if err != nil {
		h.logger().Error("load session", zap.Error(err))
		http.Error(w, "could not load session", http.StatusInternalServerError)
		return nil, false
	}
	return o, true
}

func (h Handler) recipe(w http.ResponseWriter, r *http.Request) (recipe.Recipe, bool) {
	o, ok := h.session(w, r)
	if !ok {
		return recipe.Recipe{}, false
	}
	rec, found := o.Recipe(chi.URLParam(r, "id"))
	if !found {
		writeError(w, http.StatusNotFound, ErrUnknownRecipe, nil)
		return recipe.Recipe{}, false
	}
	return rec, true
}

// clientID reads the client cookie, issuing a fresh ID when it is missing or invalid.
func (h Handler) clientID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(ClientCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   clientCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	// later lookups within this request must see the same ID
	r.AddCookie(&http.Cookie{Name: ClientCookie, Value: id})
	return id
}

func (h Handler) appURL(r *http.Request) string {
	if h.PublicURL != "" {
		return h.PublicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/"
}

func (h Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNoImage),
		errors.Is(err, ErrInvalidTimer),
		errors.Is(err, share.ErrMalformed),
		errors.Is(err, share.ErrNoRecipe):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownRecipe):
		return http.StatusNotFound
	case errors.Is(err, ErrSuperseded):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, status int, err error, snap *Snapshot) {
	writeJSON(w, status, errorResponse{Error: err.Error(), State: snap})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func splitList(raw string) []string {
	chunks := strings.Split(raw, ",")
	values := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if trimmed := strings.TrimSpace(c); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
