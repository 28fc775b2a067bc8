package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/LexiconIndonesia/covercraft-service/common"
	"github.com/LexiconIndonesia/covercraft-service/common/utils"
	"github.com/go-chi/chi/v5"
)

// Pinger is satisfied by *db.DB and the redis client wrapper.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	checks map[string]Pinger
	router *chi.Mux
}

// NewHealthHandler reports on the named dependencies. Nil entries are
// reported as disabled.
func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	h := &HealthHandler{checks: checks}

	r := chi.NewRouter()
	r.Get("/", h.handleHealthCheck)
	r.Get("/dependencies", h.handleDependencies)

	h.router = r
	return h
}

func (h *HealthHandler) Router() *chi.Mux {
	return h.router
}

// @Summary  Service liveness
// @Tags     health
// @Produce  json
// @Success  200 {object} models.BaseResponse
// @Router   /health [get]
func (h *HealthHandler) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   common.ServiceName,
	}

	utils.WriteJSON(w, http.StatusOK, response)
}

// @Summary  Dependency health
// @Tags     health
// @Produce  json
// @Success  200 {object} models.BaseResponse
// @Failure  503 {object} models.BaseResponse
// @Router   /health/dependencies [get]
func (h *HealthHandler) handleDependencies(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]interface{}, len(h.checks))
	for name, check := range h.checks {
		if check == nil {
			deps[name] = map[string]interface{}{"status": "disabled"}
			continue
		}
		if err := check.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = map[string]interface{}{"status": "unhealthy", "error": err.Error()}
			continue
		}
		deps[name] = map[string]interface{}{"status": "healthy"}
	}

	response := map[string]interface{}{
		"status":       "healthy",
		"timestamp":    time.Now().UTC(),
		"dependencies": deps,
	}
	if status != http.StatusOK {
		response["status"] = "unhealthy"
	}

	utils.WriteJSON(w, status, response)
}
