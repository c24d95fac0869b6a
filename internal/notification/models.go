package notification

import (
	"time"

	"CampusNotify/internal/auth"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status lifecycle:
//
//	draft -> scheduled -> sending -> completed
//	draft -> queued -> completed
//	(any non-terminal) -> failed
//
// draft is reserved and never produced by the flows below.
const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusQueued    = "queued"
	StatusSending   = "sending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	PriorityLow       = "low"
	PriorityNormal    = "normal"
	PriorityHigh      = "high"
	PriorityEmergency = "emergency"
)

const ChannelInApp = "inapp"
const ChannelEmail = "email"

// Target is the declarative audience description embedded in a notification.
type Target struct {
	All          bool     `bson:"all" json:"all"`
	Departments  []string `bson:"departments,omitempty" json:"departments,omitempty"` // stored normalized
	Levels       []int    `bson:"levels,omitempty" json:"levels,omitempty"`
	Roles        []string `bson:"roles,omitempty" json:"roles,omitempty"`
	StaffOnly    bool     `bson:"staff_only" json:"staffOnly"`
	StudentsOnly bool     `bson:"students_only" json:"studentsOnly"`
}

// DeliveryItem is the per-recipient durable record. At most one exists per
// (notification, user) pair; items are updated in place, never deleted.
type DeliveryItem struct {
	UserID      primitive.ObjectID `bson:"user_id" json:"userId"`
	Read        bool               `bson:"read" json:"read"`
	ReadAt      *time.Time         `bson:"read_at,omitempty" json:"readAt,omitempty"`
	DeliveredAt *time.Time         `bson:"delivered_at,omitempty" json:"deliveredAt,omitempty"`
	Channels    map[string]string  `bson:"channels,omitempty" json:"channels,omitempty"`
}

type Notification struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SenderID       primitive.ObjectID `bson:"sender_id" json:"senderId"`
	SenderRole     string             `bson:"sender_role" json:"senderRole"` // snapshot at creation, not a live reference
	Title          string             `bson:"title,omitempty" json:"title,omitempty"`
	Content        string             `bson:"content" json:"content"`
	HTML           string             `bson:"html,omitempty" json:"html,omitempty"`
	Channels       []string           `bson:"channels" json:"channels"`
	Target         Target             `bson:"target" json:"target"`
	Priority       string             `bson:"priority" json:"priority"`
	EstimatedCount int64              `bson:"estimated_count" json:"estimatedCount"`
	DeliveryCount  int                `bson:"delivery_count" json:"deliveryCount"`
	Items          []DeliveryItem     `bson:"items,omitempty" json:"items,omitempty"`
	Meta           map[string]string  `bson:"meta,omitempty" json:"meta,omitempty"`
	ScheduledAt    *time.Time         `bson:"scheduled_at,omitempty" json:"scheduledAt,omitempty"`
	Status         string             `bson:"status" json:"status"`
	CreatedAt      time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updatedAt"`
}

// SetLastError records the most recent failure in the free-form metadata bag.
func (n *Notification) SetLastError(msg string) {
	if n.Meta == nil {
		n.Meta = make(map[string]string)
	}
	n.Meta["lastError"] = msg
}

func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityEmergency:
		return true
	}
	return false
}

// Normalize coerces a target into canonical form: departments trimmed and
// lower-cased, unknown roles and levels dropped. Malformed entries never
// produce an error.
func (t *Target) Normalize() {
	if len(t.Departments) > 0 {
		depts := t.Departments[:0]
		for _, d := range t.Departments {
			if nd := auth.NormalizeDepartment(d); nd != "" {
				depts = append(depts, nd)
			}
		}
		t.Departments = depts
	}
	if len(t.Roles) > 0 {
		roles := t.Roles[:0]
		for _, r := range t.Roles {
			if auth.IsValidRole(r) {
				roles = append(roles, r)
			}
		}
		t.Roles = roles
	}
	if len(t.Levels) > 0 {
		levels := t.Levels[:0]
		for _, l := range t.Levels {
			if auth.ValidLevels[l] {
				levels = append(levels, l)
			}
		}
		t.Levels = levels
	}
}

// DeliveryStats summarizes one delivery pass. Recipients counts resolved
// audience members; DeliveredConnections counts live connections reached.
type DeliveryStats struct {
	Recipients           int `json:"recipientsCount"`
	DeliveredConnections int `json:"deliveredConnections"`
}
