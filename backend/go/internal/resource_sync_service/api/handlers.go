package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"Cirkle/backend/go/internal/credentials"
	"Cirkle/backend/go/internal/drive"
	"Cirkle/backend/go/internal/models"
	"Cirkle/backend/go/internal/resource_sync_service/service"
	"Cirkle/backend/go/internal/resource_sync_service/store"
	"Cirkle/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"
)

// Service is the part of the sync service the HTTP layer calls.
type Service interface {
	SyncGroup(ctx context.Context, groupID, userID, trigger string) (*models.Group, bool, error)
	ViewGroup(ctx context.Context, groupID, userID string) (*models.Group, error)
	RenameResource(ctx context.Context, req service.RenameRequest) (string, error)
	DeleteResource(ctx context.Context, req service.DeleteRequest) error
	SaveGoogleToken(ctx context.Context, userID string, tok *oauth2.Token) error
	RefreshGoogleToken(ctx context.Context, userID, refreshToken string) (*oauth2.Token, error)
	AddConnection(userID string, conn *websocket.Conn)
	RemoveConnection(userID string, conn *websocket.Conn)
}

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// API provides handlers for the resource sync service.
type API struct {
	service  Service
	logger   *logger.Logger
	health   []HealthCheck
	upgrader websocket.Upgrader
}

// NewAPI creates a new API handler.
func NewAPI(svc Service, log *logger.Logger, health ...HealthCheck) *API {
	if log == nil {
		log = logger.Nop()
	}
	return &API{
		service: svc,
		logger:  log,
		health:  health,
		upgrader: websocket.Upgrader{
			// 前端与 API 不同源，鉴权由 JWT 完成。
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SyncGroupHandler runs a reconcile pass for the group and returns the refreshed group.
func (a *API) SyncGroupHandler(c *gin.Context) {
	userID := c.GetString(ctxUserID)
	group, synced, err := a.service.SyncGroup(c.Request.Context(), c.Param("id"), userID, models.TriggerAPI)
	if err != nil {
		a.fail(c, err, "Failed to sync group")
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": synced, "group": group})
}

// GetGroupHandler returns the cached group and schedules a background reconcile.
func (a *API) GetGroupHandler(c *gin.Context) {
	group, err := a.service.ViewGroup(c.Request.Context(), c.Param("id"), c.GetString(ctxUserID))
	if err != nil {
		a.fail(c, err, "Failed to load group")
		return
	}
	c.JSON(http.StatusOK, group)
}

type tokenPayload struct {
	AccessToken  string    `json:"access_token" binding:"required"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
}

// SaveTokenHandler stores the caller's Google Drive token.
func (a *API) SaveTokenHandler(c *gin.Context) {
	var payload tokenPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		a.logger.WithError(models.NewErrorInfo(err, "bind_error")).Warn("Invalid token payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	tok := &oauth2.Token{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    payload.TokenType,
		Expiry:       payload.Expiry,
	}
	if err := a.service.SaveGoogleToken(c.Request.Context(), c.GetString(ctxUserID), tok); err != nil {
		a.fail(c, err, "Failed to save token")
		return
	}
	c.Status(http.StatusNoContent)
}

// RefreshTokenHandler refreshes the caller's access token.
func (a *API) RefreshTokenHandler(c *gin.Context) {
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	// 请求体可以为空，此时使用已保存的 refresh token。
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
			return
		}
	}
	tok, err := a.service.RefreshGoogleToken(c.Request.Context(), c.GetString(ctxUserID), payload.RefreshToken)
	if err != nil {
		a.fail(c, err, "Failed to refresh token")
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok.AccessToken, "expiry": tok.Expiry})
}

type renamePayload struct {
	GroupID string `json:"group_id"`
	Kind    string `json:"kind"`
	FileID  string `json:"file_id" binding:"required"`
	NewName string `json:"new_name" binding:"required"`
}

// RenameHandler renames a Drive file on behalf of the caller.
func (a *API) RenameHandler(c *gin.Context) {
	var payload renamePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	name, err := a.service.RenameResource(c.Request.Context(), service.RenameRequest{
		UserID:  c.GetString(ctxUserID),
		GroupID: payload.GroupID,
		Kind:    models.ResourceKind(payload.Kind),
		FileID:  payload.FileID,
		NewName: payload.NewName,
	})
	if err != nil {
		a.fail(c, err, "Failed to rename file")
		return
	}
	c.JSON(http.StatusOK, gin.H{"file_id": payload.FileID, "name": name})
}

type deletePayload struct {
	GroupID string `json:"group_id"`
	Kind    string `json:"kind"`
	FileID  string `json:"file_id" binding:"required"`
}

// DeleteHandler deletes a Drive file on behalf of the caller.
func (a *API) DeleteHandler(c *gin.Context) {
	var payload deletePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	err := a.service.DeleteResource(c.Request.Context(), service.DeleteRequest{
		UserID:  c.GetString(ctxUserID),
		GroupID: payload.GroupID,
		Kind:    models.ResourceKind(payload.Kind),
		FileID:  payload.FileID,
	})
	if err != nil {
		a.fail(c, err, "Failed to delete file")
		return
	}
	c.Status(http.StatusNoContent)
}

// WebSocketHandler upgrades the connection and registers it for sync notices.
func (a *API) WebSocketHandler(c *gin.Context) {
	userID := c.GetString(ctxUserID)

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.WithError(models.NewErrorInfo(err, "websocket_error")).Error("Failed to upgrade WebSocket connection")
		return
	}

	a.service.AddConnection(userID, conn)

	// 客户端不发送业务消息，读循环只用于感知断开。
	go func() {
		defer a.service.RemoveConnection(userID, conn)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
}

// HealthHandler pings every configured dependency.
func (a *API) HealthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(gin.H, len(a.health))
	for _, h := range a.health {
		if err := h.Check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[h.Name] = err.Error()
			continue
		}
		results[h.Name] = "ok"
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": results})
}

func (a *API) fail(c *gin.Context, err error, message string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.WithError(models.NewErrorInfo(err, "request_error")).
			WithRequest(models.RequestInfo{
				Method:     c.Request.Method,
				Path:       c.Request.URL.Path,
				RemoteAddr: c.ClientIP(),
				UserAgent:  c.Request.UserAgent(),
			}).
			Error(message)
		c.JSON(status, gin.H{"error": message})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrGroupNotFound), errors.Is(err, drive.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, drive.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, credentials.ErrNoRefreshToken):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNoAccessToken):
		return http.StatusUnauthorized
	case errors.Is(err, credentials.ErrRefreshNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
