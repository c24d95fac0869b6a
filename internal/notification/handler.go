package notification

import (
	"net/http"
	"strconv"

	"CampusNotify/internal/auth"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationHandler handles HTTP requests for notifications.
type NotificationHandler struct {
	service *NotificationService
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(service *NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

func claimsFrom(c echo.Context) *auth.JWTClaims {
	claims, _ := c.Get("user").(*auth.JWTClaims)
	return claims
}

// Create authors a new notification, immediate or scheduled.
func (h *NotificationHandler) Create(c echo.Context) error {
	claims := claimsFrom(c)
	if claims == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	result, err := h.service.Create(c.Request().Context(), claims, req)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, result)
}

// MarkRead marks the caller's delivery item read.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	claims := claimsFrom(c)
	if claims == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}
	err := h.service.MarkRead(c.Request().Context(), c.Param("id"), claims.UserID)
	if err != nil {
		if err == ErrNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Notification not found"})
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Marked as read"})
}

// Resend re-runs delivery for an existing notification.
func (h *NotificationHandler) Resend(c echo.Context) error {
	stats, err := h.service.Resend(c.Request().Context(), c.Param("id"))
	if err != nil {
		if err == ErrNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Notification not found"})
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}

// Feed lists the caller's own notifications.
func (h *NotificationHandler) Feed(c echo.Context) error {
	claims := claimsFrom(c)
	if claims == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}
	limit, _ := strconv.ParseInt(c.QueryParam("limit"), 10, 64)
	notifications, err := h.service.Feed(c.Request().Context(), claims.UserID, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list notifications"})
	}
	return c.JSON(http.StatusOK, notifications)
}

// AdminList lists notifications filtered by department, level, sender role or
// sender id.
func (h *NotificationHandler) AdminList(c echo.Context) error {
	filter := AdminFilter{
		Department: c.QueryParam("department"),
		SenderRole: c.QueryParam("senderRole"),
	}
	if lvl, err := strconv.Atoi(c.QueryParam("level")); err == nil {
		filter.Level = lvl
	}
	if sid := c.QueryParam("senderId"); sid != "" {
		oid, err := primitive.ObjectIDFromHex(sid)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid sender id"})
		}
		filter.SenderID = oid
	}
	limit, _ := strconv.ParseInt(c.QueryParam("limit"), 10, 64)

	notifications, err := h.service.AdminList(c.Request().Context(), filter, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list notifications"})
	}
	return c.JSON(http.StatusOK, notifications)
}
