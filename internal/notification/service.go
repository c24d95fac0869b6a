package notification

import (
	"context"
	"errors"
	"time"

	"CampusNotify/internal/auth"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// minScheduleLead is how far in the future a scheduledAt must be to count as
// a deferred send. Anything closer downgrades silently to immediate.
const minScheduleLead = time.Second

type CreateRequest struct {
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	HTML        string            `json:"html"`
	Channels    []string          `json:"channels"`
	Target      *Target           `json:"target"`
	Priority    string            `json:"priority"`
	Meta        map[string]string `json:"meta"`
	ScheduledAt string            `json:"scheduledAt"`
}

type CreateResult struct {
	ID          string     `json:"notificationId"`
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

// ServiceStore extends the delivery-side store contract with the feed and
// admin listing queries the authoring boundary needs.
type ServiceStore interface {
	Store
	ListForUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]*Notification, error)
	ListAdmin(ctx context.Context, f AdminFilter, limit int64) ([]*Notification, error)
}

// NotificationService is the authoring boundary: creation, read marking,
// resend and the feed/admin queries.
type NotificationService struct {
	repo   ServiceStore
	users  Directory
	engine *Engine
	logger *zap.Logger
}

func NewNotificationService(repo *NotificationRepository, users *auth.UserRepository, engine *Engine, logger *zap.Logger) *NotificationService {
	return &NotificationService{repo: repo, users: users, engine: engine, logger: logger}
}

// Create validates and persists a notification. Queued notifications are
// delivered asynchronously so authoring always returns quickly; scheduled
// ones wait for the poller.
func (s *NotificationService) Create(ctx context.Context, claims *auth.JWTClaims, req CreateRequest) (*CreateResult, error) {
	if req.Content == "" {
		return nil, errors.New("content is required")
	}
	senderID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return nil, errors.New("invalid sender identity")
	}

	var target Target
	if req.Target != nil {
		target = *req.Target
		target.Normalize()
	} else {
		target = DefaultTarget(claims.Role)
	}
	ApplyLevelAdviserDefault(&target, claims.Role, claims.Level)

	priority := req.Priority
	if !ValidPriority(priority) {
		priority = PriorityNormal
	}
	channels := req.Channels
	if len(channels) == 0 {
		channels = []string{ChannelInApp}
	}

	now := time.Now()
	scheduledAt := parseScheduledAt(req.ScheduledAt, now)
	status := StatusQueued
	if scheduledAt != nil {
		status = StatusScheduled
	}

	n := &Notification{
		SenderID:    senderID,
		SenderRole:  claims.Role, // role snapshot; the sender's live role may drift later
		Title:       req.Title,
		Content:     req.Content,
		HTML:        req.HTML,
		Channels:    channels,
		Target:      target,
		Priority:    priority,
		Meta:        req.Meta,
		ScheduledAt: scheduledAt,
		Status:      status,
		CreatedAt:   now,
	}
	n.EstimatedCount = s.estimateAudience(ctx, senderID, claims.Role, target)

	if err := s.repo.Save(ctx, n); err != nil {
		return nil, err
	}

	if status == StatusQueued {
		go func(queued *Notification) {
			stats := s.engine.Deliver(context.Background(), queued)
			s.logger.Info("immediate notification delivered",
				zap.String("notification", queued.ID.Hex()),
				zap.Int("recipients", stats.Recipients),
				zap.Int("connections", stats.DeliveredConnections))
		}(n)
	}

	return &CreateResult{ID: n.ID.Hex(), Status: status, ScheduledAt: scheduledAt}, nil
}

// parseScheduledAt accepts only timestamps strictly more than one second in
// the future; everything else (including parse failures) means immediate send.
func parseScheduledAt(raw string, now time.Time) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	if !t.After(now.Add(minScheduleLead)) {
		return nil
	}
	return &t
}

func (s *NotificationService) estimateAudience(ctx context.Context, senderID primitive.ObjectID, senderRole string, target Target) int64 {
	sender, err := s.users.FindByID(ctx, senderID)
	if err != nil || sender == nil {
		return 0
	}
	count, err := s.users.CountMatching(ctx, Resolve(sender, senderRole, target))
	if err != nil {
		return 0
	}
	return count
}

// MarkRead is idempotent: marking an already-read item succeeds again.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID, userID string) error {
	nID, err := primitive.ObjectIDFromHex(notificationID)
	if err != nil {
		return errors.New("invalid notification id")
	}
	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return errors.New("invalid user id")
	}
	return s.repo.SetItemRead(ctx, nID, uID, time.Now())
}

// Resend re-enters the delivery engine for an existing notification, reusing
// any persisted delivery items. This is the explicit form of rerunning a
// failed or stuck send.
func (s *NotificationService) Resend(ctx context.Context, notificationID string) (DeliveryStats, error) {
	nID, err := primitive.ObjectIDFromHex(notificationID)
	if err != nil {
		return DeliveryStats{}, errors.New("invalid notification id")
	}
	n, err := s.repo.FindNotificationByID(ctx, nID)
	if err != nil {
		return DeliveryStats{}, err
	}
	return s.engine.Deliver(ctx, n), nil
}

// Feed returns the caller's own notification items, newest first.
func (s *NotificationService) Feed(ctx context.Context, userID string, limit int64) ([]*Notification, error) {
	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, errors.New("invalid user id")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListForUser(ctx, uID, limit)
}

// AdminList is the filtered listing for administrators.
func (s *NotificationService) AdminList(ctx context.Context, f AdminFilter, limit int64) ([]*Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	f.Department = auth.NormalizeDepartment(f.Department)
	return s.repo.ListAdmin(ctx, f, limit)
}
