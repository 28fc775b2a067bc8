package handler

import (
	"net/http"

	"github.com/LexiconIndonesia/covercraft-service/common/utils"
	"github.com/LexiconIndonesia/covercraft-service/handoff"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type HandoffHandler struct {
	cache  *handoff.Cache
	router *chi.Mux
}

func NewHandoffHandler(cache *handoff.Cache) *HandoffHandler {
	router := chi.NewRouter()
	h := &HandoffHandler{cache: cache, router: router}
	router.Get("/", h.handleGet)
	return h
}

func (h *HandoffHandler) Router() *chi.Mux {
	return h.router
}

type HandoffResponse struct {
	Entry handoff.Entry `json:"entry"`
	Fresh bool          `json:"fresh"`
}

// @Summary  Current handoff cache entry
// @Tags     handoff
// @Produce  json
// @Success  200 {object} models.BaseResponse
// @Failure  404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router   /handoff [get]
func (h *HandoffHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	entry, err := h.cache.Read(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read handoff cache")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to read handoff cache")
		return
	}

	e, ok := entry.Get()
	if !ok {
		utils.WriteError(w, http.StatusNotFound, "No extraction cached")
		return
	}

	utils.WriteJSON(w, http.StatusOK, HandoffResponse{
		Entry: e,
		Fresh: handoff.IsFresh(e, h.cache.Now()),
	})
}
