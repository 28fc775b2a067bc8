package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/LexiconIndonesia/covercraft-service/common/constants"
	"github.com/LexiconIndonesia/covercraft-service/common/messaging"
	"github.com/LexiconIndonesia/covercraft-service/common/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const defaultMessageTimeout = 30 * time.Second

type MessageHandler struct {
	transport messaging.Transport
	timeout   time.Duration
	validate  *validator.Validate
	router    *chi.Mux
}

// NewMessageHandler answers POST / by relaying the message and waiting up to
// timeout for the reply. Zero means 30s.
func NewMessageHandler(transport messaging.Transport, timeout time.Duration) *MessageHandler {
	router := chi.NewRouter()
	if timeout <= 0 {
		timeout = defaultMessageTimeout
	}

	h := &MessageHandler{
		transport: transport,
		timeout:   timeout,
		validate:  validator.New(),
		router:    router,
	}
	_ = h.validate.RegisterValidation("endpoint", func(fl validator.FieldLevel) bool {
		return validEndpoint(fl.Field().String())
	})

	router.Post("/", h.handleSend)
	return h
}

func (h *MessageHandler) Router() *chi.Mux {
	return h.router
}

type SendMessageParams struct {
	Target  string            `json:"target" validate:"required,endpoint"`
	Message messaging.Message `json:"message"`
}

func validEndpoint(target string) bool {
	switch target {
	case constants.BackgroundEndpoint, constants.PopupEndpoint:
		return true
	}
	id, ok := strings.CutPrefix(target, "content.")
	if !ok {
		return false
	}
	n, err := strconv.Atoi(id)
	return err == nil && n > 0
}

// @Summary  Send a message to a context
// @Tags     messages
// @Accept   json
// @Produce  json
// @Param    body body SendMessageParams true "target endpoint and message"
// @Success  200 {object} models.BaseResponse
// @Failure  400 {object} models.ErrorResponse
// @Failure  404 {object} models.ErrorResponse
// @Failure  503 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router   /messages [post]
func (h *MessageHandler) handleSend(w http.ResponseWriter, r *http.Request) {
	var p SendMessageParams
	if err := utils.DecodeJSON(r, &p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.Message.Type == "" {
		utils.WriteError(w, http.StatusBadRequest, "message.type is required")
		return
	}
	if p.Message.ID == "" {
		p.Message.ID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp, err := h.transport.Request(ctx, p.Target, p.Message)
	switch {
	case err == nil:
		utils.WriteJSON(w, http.StatusOK, resp)
	case errors.Is(err, messaging.ErrNoResponse):
		utils.WriteError(w, http.StatusNotFound, "Message not handled")
	case errors.Is(err, messaging.ErrNoListener):
		utils.WriteError(w, http.StatusServiceUnavailable, "No listener for "+p.Target)
	case errors.Is(err, context.DeadlineExceeded):
		utils.WriteError(w, http.StatusGatewayTimeout, "Timed out waiting for a response")
	default:
		log.Error().Err(err).Str("target", p.Target).Msg("Failed to deliver message")
		utils.WriteError(w, http.StatusBadGateway, "Failed to deliver message")
	}
}
