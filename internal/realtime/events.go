package realtime

import "time"

// Wire event names.
const (
	EventNotificationNew = "notification:new"
	EventUserOnline      = "userOnline"
	EventUserOffline     = "userOffline"

	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

func EventPresence(status string) string {
	if status == PresenceOnline {
		return EventUserOnline
	}
	return EventUserOffline
}

type EventSender struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// NotificationEvent is the payload pushed to each live connection when a
// notification is delivered.
type NotificationEvent struct {
	Event          string      `json:"event"`
	NotificationID string      `json:"notificationId"`
	Title          string      `json:"title,omitempty"`
	Content        string      `json:"content"`
	From           EventSender `json:"from"`
	CreatedAt      time.Time   `json:"createdAt"`
}

type PresenceEvent struct {
	Event  string `json:"event"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Status string `json:"status"`
}
