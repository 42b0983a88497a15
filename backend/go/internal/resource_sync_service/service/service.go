package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"Cirkle/backend/go/internal/drive"
	"Cirkle/backend/go/internal/models"
	"Cirkle/backend/go/internal/resource_sync_service/store"
	"Cirkle/backend/go/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
	"golang.org/x/oauth2"
)

var (
	// ErrInvalidRequest is returned when required request fields are missing.
	ErrInvalidRequest = errors.New("missing required parameters")
	// ErrNoAccessToken is returned when the user has not granted Drive access.
	ErrNoAccessToken = errors.New("no drive access token for user")
)

// NoticeResourcesSynced is the websocket message type sent after names were corrected.
const NoticeResourcesSynced = "resources_synced"

// TokenManager stores and refreshes per-user Drive tokens.
type TokenManager interface {
	CredentialProvider
	SaveToken(ctx context.Context, userID string, tok *oauth2.Token) error
	Refresh(ctx context.Context, userID, refreshToken string) (*oauth2.Token, error)
}

// DriveClient is the subset of the Drive API the service uses.
type DriveClient interface {
	MetadataFetcher
	Rename(ctx context.Context, fileID, newName, token string) (string, error)
	Delete(ctx context.Context, fileID, token string) error
}

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
	Close() error
}

// Dependencies groups everything SyncService needs. Publishers may be nil.
type Dependencies struct {
	Groups      store.GroupStore
	Reconciler  *Reconciler
	Tokens      TokenManager
	Drive       DriveClient
	Results     EventPublisher
	Views       EventPublisher
	ConnManager *ConnectionManager
	Logger      *logger.Logger
}

// SyncService provides the business logic behind the resource sync API and consumers.
type SyncService struct {
	groups      store.GroupStore
	reconciler  *Reconciler
	tokens      TokenManager
	drive       DriveClient
	results     EventPublisher
	views       EventPublisher
	connManager *ConnectionManager
	logger      *logger.Logger
	now         func() time.Time
}

// NewSyncService creates a new SyncService.
func NewSyncService(deps Dependencies) *SyncService {
	s := &SyncService{
		groups:      deps.Groups,
		reconciler:  deps.Reconciler,
		tokens:      deps.Tokens,
		drive:       deps.Drive,
		results:     deps.Results,
		views:       deps.Views,
		connManager: deps.ConnManager,
		logger:      deps.Logger,
		now:         time.Now,
	}
	if s.connManager == nil {
		s.connManager = NewConnectionManager()
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	return s
}

// AddConnection adds a new WebSocket connection for a user.
func (s *SyncService) AddConnection(userID string, conn *websocket.Conn) {
	s.connManager.Add(userID, conn)
	s.logger.WithField("user_id", userID).Info("WebSocket connection added")
}

// RemoveConnection removes a WebSocket connection for a user.
func (s *SyncService) RemoveConnection(userID string, conn *websocket.Conn) {
	s.connManager.Remove(userID, conn)
	s.logger.WithField("user_id", userID).Info("WebSocket connection removed")
}

// SyncGroup loads a group, reconciles its resource names and returns the group as
// stored after the pass. synced reports whether any correction was issued.
func (s *SyncService) SyncGroup(ctx context.Context, groupID, userID, trigger string) (*models.Group, bool, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, false, err
	}

	synced, err := s.reconciler.Reconcile(ctx, group, userID)
	s.publishResult(ctx, groupID, userID, trigger, synced, err)
	if err != nil {
		s.logger.WithError(models.NewErrorInfo(err, "reconcile_error")).
			WithPayload(map[string]interface{}{"group_id": groupID, "user_id": userID}).
			Error("Resource reconcile failed")
		return nil, false, err
	}
	if !synced {
		return group, false, nil
	}

	refreshed, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		s.logger.WithError(models.NewErrorInfo(err, "store_error")).
			WithField("group_id", groupID).
			Warn("Failed to reload group after reconcile")
	} else {
		group = refreshed
	}
	s.connManager.SendJSON(userID, models.SyncNotice{Type: NoticeResourcesSynced, GroupID: groupID})
	return group, true, nil
}

// ViewGroup returns the cached group and schedules a background reconcile.
func (s *SyncService) ViewGroup(ctx context.Context, groupID, userID string) (*models.Group, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if s.views != nil {
		event := models.GroupViewedEvent{
			EventID:  uuid.NewString(),
			GroupID:  groupID,
			UserID:   userID,
			ViewedAt: s.now(),
		}
		if err := s.views.Publish(ctx, groupID, event); err != nil {
			s.logger.WithError(models.NewErrorInfo(err, "kafka_error")).
				WithField("group_id", groupID).
				Warn("Failed to publish group viewed event")
		}
	}
	return group, nil
}

// HandleGroupViewed processes a group viewed event received from Kafka.
func (s *SyncService) HandleGroupViewed(msg kafka.Message) error {
	var event models.GroupViewedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		s.logger.WithError(models.NewErrorInfo(err, "decode_error")).Error("Failed to unmarshal group viewed event")
		return err
	}
	if event.GroupID == "" {
		return fmt.Errorf("group viewed event %s has no group id", event.EventID)
	}

	_, _, err := s.SyncGroup(context.Background(), event.GroupID, event.UserID, models.TriggerGroupViewed)
	if errors.Is(err, store.ErrGroupNotFound) {
		s.logger.WithField("group_id", event.GroupID).Warn("Group viewed event for unknown group")
		return nil
	}
	return err
}

func (s *SyncService) publishResult(ctx context.Context, groupID, userID, trigger string, synced bool, reconcileErr error) {
	if s.results == nil {
		return
	}
	event := models.SyncResultEvent{
		EventID:    uuid.NewString(),
		GroupID:    groupID,
		UserID:     userID,
		Synced:     synced,
		Trigger:    trigger,
		FinishedAt: s.now(),
	}
	if reconcileErr != nil {
		event.Error = reconcileErr.Error()
	}
	// The pass may have timed out; publishing should not depend on its context.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.results.Publish(pubCtx, groupID, event); err != nil {
		s.logger.WithError(models.NewErrorInfo(err, "kafka_error")).
			WithField("group_id", groupID).
			Warn("Failed to publish sync result")
	}
}

// RenameRequest renames a Drive file and, when GroupID is set, the group's cached entry.
type RenameRequest struct {
	UserID  string
	GroupID string
	Kind    models.ResourceKind
	FileID  string
	NewName string
}

// RenameResource renames a file in Drive. The cached group entry is stamped with
// last_updated so the next reconcile pass leaves it alone.
func (s *SyncService) RenameResource(ctx context.Context, req RenameRequest) (string, error) {
	if req.FileID == "" || strings.TrimSpace(req.NewName) == "" {
		return "", ErrInvalidRequest
	}
	if req.GroupID != "" && !req.Kind.Valid() {
		return "", fmt.Errorf("%w: unknown resource kind %q", ErrInvalidRequest, req.Kind)
	}
	token, err := s.accessToken(ctx, req.UserID)
	if err != nil {
		return "", err
	}

	name, err := s.drive.Rename(ctx, req.FileID, req.NewName, token)
	if err != nil {
		return "", err
	}
	if req.GroupID == "" {
		return name, nil
	}

	if err := s.groups.MarkResourceRenamed(ctx, req.GroupID, req.FileID, req.Kind, name, s.now()); err != nil {
		// Drive is the source of truth; the next reconcile pass repairs the cache.
		s.logger.WithError(models.NewErrorInfo(err, "store_error")).
			WithPayload(map[string]interface{}{"group_id": req.GroupID, "resource_id": req.FileID}).
			Warn("Renamed in Drive but failed to update group")
	}
	return name, nil
}

// DeleteRequest deletes a Drive file and, when GroupID is set, the group's entry.
type DeleteRequest struct {
	UserID  string
	GroupID string
	Kind    models.ResourceKind
	FileID  string
}

// DeleteResource deletes a file in Drive. A file that is already gone is still
// removed from the group, and drive.ErrNotFound is returned to the caller.
func (s *SyncService) DeleteResource(ctx context.Context, req DeleteRequest) error {
	if req.FileID == "" {
		return ErrInvalidRequest
	}
	if req.GroupID != "" && !req.Kind.Valid() {
		return fmt.Errorf("%w: unknown resource kind %q", ErrInvalidRequest, req.Kind)
	}
	token, err := s.accessToken(ctx, req.UserID)
	if err != nil {
		return err
	}

	driveErr := s.drive.Delete(ctx, req.FileID, token)
	if driveErr != nil && !errors.Is(driveErr, drive.ErrNotFound) {
		return driveErr
	}
	if req.GroupID != "" {
		if err := s.groups.RemoveResource(ctx, req.GroupID, req.FileID, req.Kind); err != nil {
			return err
		}
	}
	return driveErr
}

// SaveGoogleToken stores the user's Drive token.
func (s *SyncService) SaveGoogleToken(ctx context.Context, userID string, tok *oauth2.Token) error {
	return s.tokens.SaveToken(ctx, userID, tok)
}

// RefreshGoogleToken exchanges a refresh token (or the stored one if empty) for a new access token.
func (s *SyncService) RefreshGoogleToken(ctx context.Context, userID, refreshToken string) (*oauth2.Token, error) {
	return s.tokens.Refresh(ctx, userID, refreshToken)
}

func (s *SyncService) accessToken(ctx context.Context, userID string) (string, error) {
	token, found, err := s.tokens.AccessToken(ctx, userID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrNoAccessToken
	}
	return token, nil
}
