package notification

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrNotFound = errors.New("notification not found")

// NotificationRepository is the mongo implementation of the record store
// accessor used by the delivery engine and the scheduler.
type NotificationRepository struct {
	collection *mongo.Collection
}

func NewNotificationRepository(db *mongo.Database) *NotificationRepository {
	return &NotificationRepository{collection: db.Collection("notifications")}
}

func (r *NotificationRepository) FindNotificationByID(ctx context.Context, id primitive.ObjectID) (*Notification, error) {
	var n Notification
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&n)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// FindDueScheduled fetches scheduled notifications whose time has passed,
// bounded so one tick never takes unbounded work.
func (r *NotificationRepository) FindDueScheduled(ctx context.Context, limit int64, now time.Time) ([]*Notification, error) {
	filter := bson.M{"status": StatusScheduled, "scheduled_at": bson.M{"$lte": now}}
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetLimit(limit))
	if err != nil {
		return nil, err
	}
	var notifications []*Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// Save upserts the full notification document including embedded items.
func (r *NotificationRepository) Save(ctx context.Context, n *Notification) error {
	n.UpdatedAt = time.Now()
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
		_, err := r.collection.InsertOne(ctx, n)
		return err
	}
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": n.ID}, n, options.Replace().SetUpsert(true))
	return err
}

// TransitionStatus updates the status only if the stored status still matches
// from. The false return means another worker claimed the document first.
func (r *NotificationRepository) TransitionStatus(ctx context.Context, id primitive.ObjectID, from, to string) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now()}})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// SetItemDeliveredAt stamps delivered_at on the items of the given users.
// Targeted partial update; the embedded list itself is never rewritten here.
func (r *NotificationRepository) SetItemDeliveredAt(ctx context.Context, id primitive.ObjectID, userIDs []primitive.ObjectID, ts time.Time) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"items.$[item].delivered_at": ts, "updated_at": time.Now()}},
		options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{bson.M{"item.user_id": bson.M{"$in": userIDs}}},
		}))
	return err
}

// SetItemRead marks one recipient's item read. Safe to repeat; marking an
// already-read item is a no-op, not an error.
func (r *NotificationRepository) SetItemRead(ctx context.Context, id primitive.ObjectID, userID primitive.ObjectID, ts time.Time) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "items.user_id": userID},
		bson.M{"$set": bson.M{"items.$.read": true, "items.$.read_at": ts, "updated_at": time.Now()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForUser returns the notifications carrying an item for the user, newest
// first.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]*Notification, error) {
	filter := bson.M{"items.user_id": userID}
	opts := options.Find().SetSort(bson.M{"created_at": -1}).SetLimit(limit)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var notifications []*Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// AdminFilter narrows the admin listing; zero values place no restriction.
type AdminFilter struct {
	Department string
	Level      int
	SenderRole string
	SenderID   primitive.ObjectID
}

func (r *NotificationRepository) ListAdmin(ctx context.Context, f AdminFilter, limit int64) ([]*Notification, error) {
	filter := bson.M{}
	if f.Department != "" {
		filter["target.departments"] = f.Department
	}
	if f.Level != 0 {
		filter["target.levels"] = f.Level
	}
	if f.SenderRole != "" {
		filter["sender_role"] = f.SenderRole
	}
	if !f.SenderID.IsZero() {
		filter["sender_id"] = f.SenderID
	}
	opts := options.Find().SetSort(bson.M{"created_at": -1}).SetLimit(limit)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var notifications []*Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}
