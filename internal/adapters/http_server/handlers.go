package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"restaurant_offline/internal/app"
	"restaurant_offline/internal/domain"
)

type Catalog interface {
	FetchByID(ctx context.Context, id int64) (domain.Restaurant, error)
	FetchReviews(ctx context.Context, id int64) ([]domain.Review, error)
	ByCuisineAndNeighborhood(ctx context.Context, cuisine, neighborhood string) ([]domain.Restaurant, error)
	DistinctNeighborhoods(ctx context.Context) ([]string, error)
	DistinctCuisines(ctx context.Context) ([]string, error)
}

type Mutations interface {
	CreateReview(ctx context.Context, id int64, d domain.ReviewDraft) (domain.Review, error)
	ToggleFavorite(ctx context.Context, id int64) (domain.Restaurant, error)
}

type Syncer interface {
	SyncNow(ctx context.Context) (app.SyncReport, error)
}

type ConnectivityReporter interface {
	Online() bool
	SetOnline(online bool)
}

type Handlers struct {
	Catalog   Catalog
	Mutations Mutations
	Sync      Syncer
	Conn      ConnectivityReporter
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type connectivityBody struct {
	Online bool `json:"online"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Route("/v1", func(r chi.Router) {
		r.Get("/restaurants", h.listRestaurants)
		r.Get("/restaurants/{id}", h.getRestaurant)
		r.Get("/restaurants/{id}/reviews", h.listReviews)
		r.Post("/restaurants/{id}/reviews", h.createReview)
		r.Put("/restaurants/{id}/favorite", h.toggleFavorite)
		r.Get("/neighborhoods", h.neighborhoods)
		r.Get("/cuisines", h.cuisines)
		r.Post("/sync", h.syncNow)
		r.Get("/connectivity", h.getConnectivity)
		r.Post("/connectivity", h.setConnectivity)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain error kinds onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		writeProblem(w, http.StatusServiceUnavailable, "Offline", err.Error())
	case errors.Is(err, domain.ErrRejected):
		writeProblem(w, http.StatusBadGateway, "Rejected By Remote", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeProblem(w, http.StatusServiceUnavailable, "Timeout", err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "local storage failure")
	}
}

// calcETagAndBody marshals once and hashes once.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

// writeJSON writes v with a weak ETag, answering 304 when the client
// already holds it.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	etag, body := calcETagAndBody(v)
	if body == nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "encode failure")
		return
	}
	if r.Method == http.MethodGet {
		if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
			w.Header().Set("ETag", etag)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return 0, false
	}
	return id, true
}

func (h *Handlers) listRestaurants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.Catalog.ByCuisineAndNeighborhood(r.Context(), q.Get("cuisine"), q.Get("neighborhood"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (h *Handlers) getRestaurant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := h.Catalog.FetchByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := h.Catalog.FetchReviews(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (h *Handlers) createReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var d domain.ReviewDraft
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&d); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "expected {name, rating, comments}")
		return
	}
	rv, err := h.Mutations.CreateReview(r.Context(), id, d)
	if err != nil {
		writeError(w, err)
		return
	}
	// stored locally; the remote write happens on replay
	writeJSON(w, r, http.StatusAccepted, rv)
}

func (h *Handlers) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := h.Mutations.ToggleFavorite(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (h *Handlers) neighborhoods(w http.ResponseWriter, r *http.Request) {
	out, err := h.Catalog.DistinctNeighborhoods(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (h *Handlers) cuisines(w http.ResponseWriter, r *http.Request) {
	out, err := h.Catalog.DistinctCuisines(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (h *Handlers) syncNow(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Sync.SyncNow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rep)
}

func (h *Handlers) getConnectivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, connectivityBody{Online: h.Conn.Online()})
}

func (h *Handlers) setConnectivity(w http.ResponseWriter, r *http.Request) {
	var body connectivityBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", `expected {"online": bool}`)
		return
	}
	h.Conn.SetOnline(body.Online)
	w.WriteHeader(http.StatusNoContent)
}
