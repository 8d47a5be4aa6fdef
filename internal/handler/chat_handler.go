package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/kmohamed-dz/abcher/internal/chat"
	"github.com/kmohamed-dz/abcher/internal/identity"
	"github.com/kmohamed-dz/abcher/internal/model"
	"github.com/kmohamed-dz/abcher/pkg/logger"
	"github.com/kmohamed-dz/abcher/prometheus"
)

// ChatHandler serves direct-message history and send endpoints. Realtime
// delivery runs over the websocket handler; these endpoints cover the load
// and optimistic-send paths.
type ChatHandler struct {
	resolver *identity.Resolver
	chat     *chat.Service
}

// NewChatHandler wires the handler to its services.
func NewChatHandler(resolver *identity.Resolver, svc *chat.Service) *ChatHandler {
	return &ChatHandler{resolver: resolver, chat: svc}
}

// requireMember resolves the caller and rejects anyone who has not finished
// onboarding; messaging is school-scoped. A nil profile return means the
// response has been written.
func (h *ChatHandler) requireMember(c echo.Context) (*model.Profile, error) {
	log := logger.FromEcho(c)

	ident, profile, err := h.resolver.Resolve(c.Request().Context())
	if err != nil {
		log.Error("profile resolution failed", zap.Error(err))
		return nil, c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load profile"})
	}
	if ident == nil {
		return nil, c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	if !profile.Onboarded() {
		return nil, c.JSON(http.StatusForbidden, echo.Map{"error": "school membership required"})
	}
	return profile, nil
}

// Conversation returns the message history with one peer, oldest first.
func (h *ChatHandler) Conversation(c echo.Context) error {
	log := logger.FromEcho(c)

	profile, resErr := h.requireMember(c)
	if profile == nil {
		return resErr
	}

	peer := c.Param("peer")
	if peer == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "peer is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	messages, err := h.chat.History(c.Request().Context(), *profile.SchoolID, profile.ID, peer)
	if err != nil {
		log.Error("conversation load failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load messages"})
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": messages})
}

// Send stores a direct message and broadcasts it to the school's
// subscribers. The response carries the stored row with its assigned id
// and timestamp so the client can apply its dedup rule.
func (h *ChatHandler) Send(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		ReceiverID string `json:"receiver_id"`
		Body       string `json:"body"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.ReceiverID == "" || req.Body == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "receiver_id and body are required"})
	}

	profile, resErr := h.requireMember(c)
	if profile == nil {
		return resErr
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	message, err := h.chat.Send(c.Request().Context(), *profile.SchoolID, profile.ID, req.ReceiverID, req.Body)
	if err != nil {
		log.Error("message send failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not send message"})
	}
	prometheus.MessageSentCounter.Inc()

	return c.JSON(http.StatusCreated, echo.Map{"message": message})
}
