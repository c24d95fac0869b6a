package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CampusNotify/internal/auth"
	"CampusNotify/internal/realtime"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Store is the record store contract consumed by the delivery engine and the
// scheduler. The mongo NotificationRepository implements it.
type Store interface {
	FindNotificationByID(ctx context.Context, id primitive.ObjectID) (*Notification, error)
	FindDueScheduled(ctx context.Context, limit int64, now time.Time) ([]*Notification, error)
	Save(ctx context.Context, n *Notification) error
	TransitionStatus(ctx context.Context, id primitive.ObjectID, from, to string) (bool, error)
	SetItemDeliveredAt(ctx context.Context, id primitive.ObjectID, userIDs []primitive.ObjectID, ts time.Time) error
	SetItemRead(ctx context.Context, id primitive.ObjectID, userID primitive.ObjectID, ts time.Time) error
}

// Directory is the slice of the user store the engine needs.
type Directory interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*auth.User, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]auth.User, error)
	FindMatching(ctx context.Context, f auth.Filter) ([]auth.User, error)
	CountMatching(ctx context.Context, f auth.Filter) (int64, error)
}

// Conn is one live connection as seen by fan-out.
type Conn interface {
	ID() string
	UserID() string
	Enqueue(payload []byte) bool
}

// Registry is the connection registry contract: snapshot lookups by user and
// by role.
type Registry interface {
	ConnectionsFor(userID string) []Conn
	ConnectionsForRole(role string) []Conn
}

// Mailer sends the email channel. Optional; nil disables it.
type Mailer interface {
	SendBatch(to []string, subject, body string) error
}

// HubRegistry adapts the websocket hub to the Registry contract.
type HubRegistry struct {
	Hub *realtime.Hub
}

func (h HubRegistry) ConnectionsFor(userID string) []Conn {
	return wrapClients(h.Hub.ConnectionsFor(userID))
}

func (h HubRegistry) ConnectionsForRole(role string) []Conn {
	return wrapClients(h.Hub.ConnectionsForRole(role))
}

func wrapClients(clients []*realtime.Client) []Conn {
	if len(clients) == 0 {
		return nil
	}
	out := make([]Conn, len(clients))
	for i, c := range clients {
		out[i] = c
	}
	return out
}

var errSenderNotFound = errors.New("sender_not_found")

// Engine performs recipient resolution, websocket fan-out and durable delivery
// tracking for one notification at a time.
type Engine struct {
	store    Store
	users    Directory
	registry Registry
	mailer   Mailer
	logger   *zap.Logger
}

func NewEngine(store Store, users Directory, registry Registry, mailer Mailer, logger *zap.Logger) *Engine {
	return &Engine{store: store, users: users, registry: registry, mailer: mailer, logger: logger}
}

// Deliver runs the full delivery pass. Failures inside the per-recipient and
// per-connection loops are isolated and counted; anything outside them marks
// the notification failed. The caller only ever inspects the returned stats
// and the final status.
func (e *Engine) Deliver(ctx context.Context, n *Notification) DeliveryStats {
	stats, err := e.deliver(ctx, n)
	if err != nil {
		e.markFailed(ctx, n, err)
	}
	return stats
}

func (e *Engine) deliver(ctx context.Context, n *Notification) (DeliveryStats, error) {
	recipients, err := e.sourceRecipients(ctx, n)
	if err != nil {
		return DeliveryStats{}, err
	}

	delivered, reached := e.fanOut(n, recipients)

	// Advisory telemetry: the durable record already names every recipient,
	// so a store hiccup here must not fail the delivery.
	if len(reached) > 0 {
		if err := e.store.SetItemDeliveredAt(ctx, n.ID, reached, time.Now()); err != nil {
			e.logger.Warn("delivered-at update failed",
				zap.String("notification", n.ID.Hex()), zap.Error(err))
		}
	}

	e.sendEmailChannel(n, recipients)

	n.Status = StatusCompleted
	n.DeliveryCount = len(recipients)
	if err := e.store.Save(ctx, n); err != nil {
		return DeliveryStats{Recipients: len(recipients), DeliveredConnections: delivered}, err
	}

	return DeliveryStats{Recipients: len(recipients), DeliveredConnections: delivered}, nil
}

// sourceRecipients either re-loads the users named by already-persisted items
// (retry path) or resolves the target and persists the item list before any
// fan-out happens.
func (e *Engine) sourceRecipients(ctx context.Context, n *Notification) ([]auth.User, error) {
	if len(n.Items) > 0 {
		ids := make([]primitive.ObjectID, 0, len(n.Items))
		for _, item := range n.Items {
			ids = append(ids, item.UserID)
		}
		users, err := e.users.FindByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load recipients: %w", err)
		}
		return dedupeUsers(users), nil
	}

	sender, err := e.users.FindByID(ctx, n.SenderID)
	if err != nil {
		return nil, fmt.Errorf("load sender: %w", err)
	}
	if sender == nil {
		return nil, errSenderNotFound
	}

	filter := Resolve(sender, n.SenderRole, n.Target)
	users, err := e.users.FindMatching(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	users = dedupeUsers(users)

	items := make([]DeliveryItem, 0, len(users))
	for _, u := range users {
		items = append(items, DeliveryItem{UserID: u.ID})
	}
	n.Items = items

	// The item list must be durable before any connection sees the event, so
	// a crash mid-send still leaves a recoverable recipient set.
	if err := e.store.Save(ctx, n); err != nil {
		return nil, fmt.Errorf("persist recipients: %w", err)
	}
	return users, nil
}

// fanOut pushes the event to the union of each recipient's connections and the
// connections subscribed to any explicitly targeted role, once per connection.
// Returns the count of connections reached and the ids of recipients with at
// least one reached connection.
func (e *Engine) fanOut(n *Notification, recipients []auth.User) (int, []primitive.ObjectID) {
	payload, err := json.Marshal(realtime.NotificationEvent{
		Event:          realtime.EventNotificationNew,
		NotificationID: n.ID.Hex(),
		Title:          n.Title,
		Content:        n.Content,
		From:           realtime.EventSender{ID: n.SenderID.Hex(), Role: n.SenderRole},
		CreatedAt:      n.CreatedAt,
	})
	if err != nil {
		e.logger.Error("event marshal failed", zap.String("notification", n.ID.Hex()), zap.Error(err))
		return 0, nil
	}

	byID := make(map[string]primitive.ObjectID, len(recipients))
	conns := make(map[string]Conn)
	for _, u := range recipients {
		uid := u.ID.Hex()
		byID[uid] = u.ID
		for _, c := range e.registry.ConnectionsFor(uid) {
			conns[c.ID()] = c
		}
	}
	for _, role := range n.Target.Roles {
		for _, c := range e.registry.ConnectionsForRole(role) {
			conns[c.ID()] = c
		}
	}

	delivered := 0
	reachedSet := make(map[primitive.ObjectID]bool)
	for _, c := range conns {
		if !c.Enqueue(payload) {
			e.logger.Warn("push dropped",
				zap.String("notification", n.ID.Hex()),
				zap.String("conn", c.ID()),
				zap.String("user", c.UserID()))
			continue
		}
		delivered++
		if uid, ok := byID[c.UserID()]; ok {
			reachedSet[uid] = true
		}
	}

	reached := make([]primitive.ObjectID, 0, len(reachedSet))
	for uid := range reachedSet {
		reached = append(reached, uid)
	}
	return delivered, reached
}

// sendEmailChannel mirrors the event over email when the channel list asks for
// it. Recipients go out as one batch; failures are logged, never propagated.
func (e *Engine) sendEmailChannel(n *Notification, recipients []auth.User) {
	if e.mailer == nil || !hasChannel(n.Channels, ChannelEmail) {
		return
	}
	to := make([]string, 0, len(recipients))
	for _, u := range recipients {
		if u.Email != "" {
			to = append(to, u.Email)
		}
	}
	if len(to) == 0 {
		return
	}
	subject := n.Title
	if subject == "" {
		subject = "Notification"
	}
	body := n.HTML
	if body == "" {
		body = n.Content
	}
	if err := e.mailer.SendBatch(to, subject, body); err != nil {
		e.logger.Warn("email channel send failed",
			zap.String("notification", n.ID.Hex()),
			zap.Int("recipients", len(to)),
			zap.Error(err))
	}
}

func (e *Engine) markFailed(ctx context.Context, n *Notification, cause error) {
	n.Status = StatusFailed
	n.SetLastError(cause.Error())
	if err := e.store.Save(ctx, n); err != nil {
		e.logger.Error("failed-status save failed",
			zap.String("notification", n.ID.Hex()), zap.Error(err))
	}
	e.logger.Warn("delivery failed",
		zap.String("notification", n.ID.Hex()), zap.Error(cause))
}

func dedupeUsers(users []auth.User) []auth.User {
	seen := make(map[primitive.ObjectID]bool, len(users))
	out := users[:0]
	for _, u := range users {
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		out = append(out, u)
	}
	return out
}

func hasChannel(channels []string, want string) bool {
	for _, c := range channels {
		if c == want {
			return true
		}
	}
	return false
}
