package auth

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{collection: db.Collection("users")}
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := r.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*User, error) {
	var user User
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// FindByIDs loads the users referenced by an already-resolved delivery item list.
func (r *UserRepository) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var users []User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// FindMatching runs the recipient filter produced by audience resolution.
// Empty filter axes place no restriction.
func (r *UserRepository) FindMatching(ctx context.Context, f Filter) ([]User, error) {
	query := bson.M{}
	if f.ActiveOnly {
		query["active"] = true
	}
	if len(f.Roles) > 0 {
		query["role"] = bson.M{"$in": f.Roles}
	}
	if len(f.Departments) > 0 {
		query["department"] = bson.M{"$in": f.Departments}
	}
	if len(f.Levels) > 0 {
		query["level"] = bson.M{"$in": f.Levels}
	}
	cursor, err := r.collection.Find(ctx, query)
	if err != nil {
		return nil, err
	}
	var users []User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CountMatching backs the estimated recipient count recorded at authoring time.
func (r *UserRepository) CountMatching(ctx context.Context, f Filter) (int64, error) {
	query := bson.M{}
	if f.ActiveOnly {
		query["active"] = true
	}
	if len(f.Roles) > 0 {
		query["role"] = bson.M{"$in": f.Roles}
	}
	if len(f.Departments) > 0 {
		query["department"] = bson.M{"$in": f.Departments}
	}
	if len(f.Levels) > 0 {
		query["level"] = bson.M{"$in": f.Levels}
	}
	return r.collection.CountDocuments(ctx, query)
}

func (r *UserRepository) CreateUser(ctx context.Context, user *User) error {
	_, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.New("Email already exists")
		}
		return err
	}
	return nil
}

func (r *UserRepository) UpdateUser(ctx context.Context, user *User) error {
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": user.ID}, user)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errors.New("user not found")
	}
	return nil
}
