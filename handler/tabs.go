package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/LexiconIndonesia/covercraft-service/common/models"
	"github.com/LexiconIndonesia/covercraft-service/common/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// ActiveTabs is the part of the browser capability exposed over HTTP.
type ActiveTabs interface {
	Active(ctx context.Context) (models.Tab, error)
}

// ContextMenu receives page context-menu clicks.
type ContextMenu interface {
	OnContextMenuClicked(ctx context.Context, menuID string, tab models.Tab) error
}

// ErrNoBrowser is reported when the process runs without a browser.
var ErrNoBrowser = errors.New("no browser attached")

type TabHandler struct {
	tabs     ActiveTabs
	menu     ContextMenu
	validate *validator.Validate
	router   *chi.Mux
}

func NewTabHandler(tabs ActiveTabs, menu ContextMenu) *TabHandler {
	router := chi.NewRouter()
	h := &TabHandler{
		tabs:     tabs,
		menu:     menu,
		validate: validator.New(),
		router:   router,
	}
	router.Get("/active", h.handleActive)
	router.Post("/{tabID}/context-menu", h.handleContextMenu)
	return h
}

func (h *TabHandler) Router() *chi.Mux {
	return h.router
}

// @Summary  Active browser tab
// @Tags     tabs
// @Produce  json
// @Success  200 {object} models.BaseResponse
// @Failure  503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router   /tabs/active [get]
func (h *TabHandler) handleActive(w http.ResponseWriter, r *http.Request) {
	if h.tabs == nil {
		utils.WriteError(w, http.StatusServiceUnavailable, ErrNoBrowser.Error())
		return
	}

	tab, err := h.tabs.Active(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to query active tab")
		utils.WriteError(w, http.StatusServiceUnavailable, "Failed to query active tab")
		return
	}
	utils.WriteJSON(w, http.StatusOK, tab)
}

type ContextMenuParams struct {
	MenuID string `json:"menuId" validate:"required"`
	URL    string `json:"url"`
}

// @Summary  Click a page context-menu entry
// @Tags     tabs
// @Accept   json
// @Produce  json
// @Param    tabID path int true "tab id"
// @Param    body body ContextMenuParams true "menu entry"
// @Success  202 {object} models.BaseResponse
// @Failure  400 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router   /tabs/{tabID}/context-menu [post]
func (h *TabHandler) handleContextMenu(w http.ResponseWriter, r *http.Request) {
	tabID, err := strconv.Atoi(chi.URLParam(r, "tabID"))
	if err != nil || tabID <= 0 {
		utils.WriteError(w, http.StatusBadRequest, "Invalid tab id")
		return
	}

	var p ContextMenuParams
	if err := utils.DecodeJSON(r, &p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.menu.OnContextMenuClicked(r.Context(), p.MenuID, models.Tab{ID: tabID, URL: p.URL}); err != nil {
		log.Warn().Err(err).Int("tabID", tabID).Msg("Context menu action failed")
		utils.WriteError(w, http.StatusServiceUnavailable, "No listener on tab")
		return
	}
	utils.WriteMessage(w, http.StatusAccepted, "accepted")
}
