package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/kmohamed-dz/abcher/internal/identity"
	"github.com/kmohamed-dz/abcher/internal/realtime"
	"github.com/kmohamed-dz/abcher/pkg/jwtutil"
	"github.com/kmohamed-dz/abcher/pkg/logger"
	"github.com/kmohamed-dz/abcher/prometheus"
)

// WSHandler streams school-scoped message-insert events to a connected
// client. One bus subscription is opened per connection and released when
// the socket goes away, so switching views on the client cannot leak
// subscriptions.
type WSHandler struct {
	jwt      *jwtutil.JWTUtil
	resolver *identity.Resolver
	bus      realtime.Bus
}

// NewWSHandler wires the websocket gateway to its dependencies.
func NewWSHandler(jwt *jwtutil.JWTUtil, resolver *identity.Resolver, bus realtime.Bus) *WSHandler {
	return &WSHandler{jwt: jwt, resolver: resolver, bus: bus}
}

// Handle upgrades the connection and pumps events until the client leaves.
// Browser websockets cannot set an Authorization header, so the token
// travels in the query string. An optional peer parameter narrows the
// stream to one conversation.
func (h *WSHandler) Handle(c echo.Context) error {
	log := logger.FromEcho(c)

	tokenString := c.QueryParam("token")
	if tokenString == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing token"})
	}
	claims, err := h.jwt.ValidateToken(tokenString)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
	}

	ctx := identity.NewContext(c.Request().Context(), &identity.Identity{
		ID:       claims.Subject,
		Email:    claims.Email,
		FullName: claims.FullName,
	})
	_, profile, err := h.resolver.Resolve(ctx)
	if err != nil {
		log.Error("profile resolution failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load profile"})
	}
	if !profile.Onboarded() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "school membership required"})
	}
	peer := c.QueryParam("peer")

	conn, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return nil
	}

	sub, err := h.bus.Subscribe(ctx, *profile.SchoolID)
	if err != nil {
		log.Error("realtime subscribe failed", zap.Error(err))
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return nil
	}
	prometheus.IncreaseActiveSubscriptions()
	defer func() {
		_ = sub.Close()
		prometheus.DecreaseActiveSubscriptions()
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The client never sends application data; reading serves only to
	// notice the close frame.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(connCtx); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(25 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-connCtx.Done():
			return nil
		case <-ping.C:
			pingCtx, pingCancel := context.WithTimeout(connCtx, 5*time.Second)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				return nil
			}
		case message, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if peer != "" && !message.InConversation(profile.ID, peer) {
				continue
			}
			writeCtx, writeCancel := context.WithTimeout(connCtx, 10*time.Second)
			err := wsjson.Write(writeCtx, conn, message)
			writeCancel()
			if err != nil {
				prometheus.RecordRealtimeEvent("dropped")
				return nil
			}
			prometheus.RecordRealtimeEvent("delivered")
		}
	}
}
