package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/vibeshift/dashboard/internal/api/respond"
	"github.com/vibeshift/dashboard/internal/cache"
	"github.com/vibeshift/dashboard/internal/jobs"
)

// JobTrigger runs a refresh job by name. *jobs.Jobs satisfies it.
type JobTrigger interface {
	Trigger(ctx context.Context, name string) (jobs.Summary, error)
}

// CacheInvalidator deletes a primary-tier entry. *cache.Hybrid satisfies it.
type CacheInvalidator interface {
	Delete(ctx context.Context, key cache.Key) error
}

// OpsHandler handles the bearer-protected operator endpoints.
type OpsHandler struct {
	jobs  JobTrigger
	cache CacheInvalidator
}

// NewOpsHandler creates a new operator handler
func NewOpsHandler(j JobTrigger, c CacheInvalidator) *OpsHandler {
	return &OpsHandler{jobs: j, cache: c}
}

// RunJob handles GET /api/cron/{job}
func (h *OpsHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["job"]

	// A disconnecting scheduler must not abort a half-written refresh.
	sum, err := h.jobs.Trigger(context.WithoutCancel(r.Context()), name)
	if err != nil {
		respond.WriteNotFound(w, err.Error())
		return
	}
	status := http.StatusOK
	if !sum.Success {
		status = http.StatusInternalServerError
	}
	respond.WriteJSON(w, status, sum)
}

// DeleteCacheKey handles DELETE /api/cache/{key}
func (h *OpsHandler) DeleteCacheKey(w http.ResponseWriter, r *http.Request) {
	key, ok := cache.ParseKey(mux.Vars(r)["key"])
	if !ok {
		respond.WriteNotFound(w, "unknown cache key")
		return
	}
	if err := h.cache.Delete(r.Context(), key); err != nil {
		log.Error().Err(err).Str("key", string(key)).Msg("cache invalidation failed")
		respond.WriteError(w, http.StatusBadGateway, "primary cache unavailable")
		return
	}
	log.Info().Str("key", string(key)).Msg("cache entry invalidated")
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"key":     key,
	})
}
