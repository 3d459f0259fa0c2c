// internal/api/handler.go
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github-issue-mirror/internal/store"
)

// Handler is the container for API dependencies.
type Handler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewRouter creates and configures a new chi router exposing the cache
// read-only over HTTP.
func NewRouter(st *store.Store, logger *slog.Logger) http.Handler {
	h := &Handler{
		store:  st,
		logger: logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// API Routes
	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/repos/{owner}/{name}", h.getRepo)
		r.Get("/repos/{owner}/{name}/issues", h.getIssues)
		r.Get("/issues/{id}/comments", h.getComments)
		r.Get("/search", h.search)
		r.Get("/local-repos", h.getLocalRepos)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getRepo returns the cached repository row with its sync cursor.
// GET /v1/repos/{owner}/{name}
func (h *Handler) getRepo(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	name := chi.URLParam(r, "name")

	repo, err := h.store.GetRepoBySlug(r.Context(), owner, name)
	if err != nil {
		h.logger.Error("Failed to get repository", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if repo == nil {
		respondWithError(w, http.StatusNotFound, "Repository not synced")
		return
	}

	respondWithJSON(w, http.StatusOK, repo)
}

// getIssues returns a repository's cached issues, number-descending.
// GET /v1/repos/{owner}/{name}/issues
func (h *Handler) getIssues(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	name := chi.URLParam(r, "name")

	repo, err := h.store.GetRepoBySlug(r.Context(), owner, name)
	if err != nil {
		h.logger.Error("Failed to get repository", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if repo == nil {
		respondWithError(w, http.StatusNotFound, "Repository not synced")
		return
	}

	issues, err := h.store.ListIssues(r.Context(), repo.ID)
	if err != nil {
		h.logger.Error("Failed to list issues", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, issues)
}

// getComments returns an issue's cached comments in thread order.
// GET /v1/issues/{id}/comments
func (h *Handler) getComments(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid issue id")
		return
	}

	issue, err := h.store.GetIssue(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get issue", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if issue == nil {
		respondWithError(w, http.StatusNotFound, "Issue not cached")
		return
	}

	comments, err := h.store.CommentsForIssue(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to list comments", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, comments)
}

// search runs a full-text query over cached issues and comments.
// GET /v1/search?q=term
func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondWithError(w, http.StatusBadRequest, "Missing 'q' parameter")
		return
	}

	hits, err := h.store.Search(r.Context(), query)
	if err != nil {
		h.logger.Error("Failed to search", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, hits)
}

// getLocalRepos returns the remembered filesystem clone/remote pairs.
// GET /v1/local-repos
func (h *Handler) getLocalRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := h.store.ListLocalRepos(r.Context())
	if err != nil {
		h.logger.Error("Failed to list local repos", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, repos)
}
