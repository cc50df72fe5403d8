package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gecofarm/farm-session/internal/core/domain"
)

const collectionUsers = "users"

// UserRepository is the users row store keyed by identity id.
type UserRepository struct {
	col *mongo.Collection
	now func() time.Time
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(collectionUsers), now: time.Now}
}

type mongoUserRow struct {
	ID           string      `bson:"_id"`
	Name         string      `bson:"name"`
	Email        string      `bson:"email"`
	Role         domain.Role `bson:"role"`
	ProfilePhoto *string     `bson:"profile_photo,omitempty"`
	CreatedAt    time.Time   `bson:"created_at"`
	UpdatedAt    time.Time   `bson:"updated_at"`
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var row mongoUserRow
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&row); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return row.toDomain(), nil
}

// Insert stores user. Zero timestamps are set to the current time.
func (r *UserRepository) Insert(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := fromDomain(user)
	now := r.now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}

	if _, err := r.col.InsertOne(ctx, row); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUniqueViolation
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return row.toDomain(), nil
}

func (r *UserRepository) Update(ctx context.Context, id string, patch domain.ProfilePatch) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	set := bson.M{"updated_at": r.now().UTC()}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.ProfilePhoto != nil {
		set["profile_photo"] = *patch.ProfilePhoto
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var row mongoUserRow
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&row)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return row.toDomain(), nil
}

// EnsureIndexes creates the indexes of the users collection.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}},
		{Keys: bson.D{{Key: "role.type", Value: 1}}},
	})
	return err
}

func fromDomain(u *domain.User) mongoUserRow {
	return mongoUserRow{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Role:         u.Role,
		ProfilePhoto: u.ProfilePhoto,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (row mongoUserRow) toDomain() *domain.User {
	return &domain.User{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		Role:         row.Role,
		ProfilePhoto: row.ProfilePhoto,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}
