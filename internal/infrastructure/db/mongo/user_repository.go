package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/prontuario/proamp/internal/core/domain"
)

const usersCollection = "users"

// UserRepository stores accounts in the users collection.
type UserRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{coll: db.Collection(usersCollection)}
}

type mongoHealthProfile struct {
	Specialty     string `bson:"specialty"`
	CouncilNumber string `bson:"council_number"`
}

type mongoUser struct {
	ID                 primitive.ObjectID  `bson:"_id,omitempty"`
	Username           string              `bson:"username"`
	Email              string              `bson:"email"`
	PasswordHash       string              `bson:"password_hash"`
	Role               string              `bson:"role"`
	FirstName          string              `bson:"first_name"`
	LastName           string              `bson:"last_name"`
	HealthProfile      *mongoHealthProfile `bson:"health_profile,omitempty"`
	MustChangePassword bool                `bson:"must_change_password"`
	CreatedAt          int64               `bson:"created_at"`
	UpdatedAt          int64               `bson:"updated_at"`
}

func toMongoUser(u *domain.User) mongoUser {
	doc := mongoUser{
		Username:           u.Username,
		Email:              u.Email,
		PasswordHash:       u.PasswordHash,
		Role:               string(u.Role),
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		MustChangePassword: u.MustChangePassword,
		CreatedAt:          u.CreatedAt.Unix(),
		UpdatedAt:          u.UpdatedAt.Unix(),
	}
	if u.HealthProfile != nil {
		doc.HealthProfile = &mongoHealthProfile{
			Specialty:     u.HealthProfile.Specialty,
			CouncilNumber: u.HealthProfile.CouncilNumber,
		}
	}
	return doc
}

func (m *mongoUser) toDomain() *domain.User {
	u := &domain.User{
		ID:                 m.ID.Hex(),
		Username:           m.Username,
		Email:              m.Email,
		PasswordHash:       m.PasswordHash,
		Role:               domain.Role(m.Role),
		FirstName:          m.FirstName,
		LastName:           m.LastName,
		MustChangePassword: m.MustChangePassword,
		CreatedAt:          unixToTime(m.CreatedAt),
		UpdatedAt:          unixToTime(m.UpdatedAt),
	}
	if m.HealthProfile != nil {
		u.HealthProfile = &domain.HealthProfile{
			Specialty:     m.HealthProfile.Specialty,
			CouncilNumber: m.HealthProfile.CouncilNumber,
		}
	}
	return u
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	doc := toMongoUser(user)
	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return r.FindByEmail(ctx, user.Email)
	}
	doc.ID = oid
	return doc.toDomain(), nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *UserRepository) FindByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "first_name", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"role": string(role)}, opts)
	if err != nil {
		return nil, fmt.Errorf("find users by role: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoUser
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	users := make([]*domain.User, 0, len(docs))
	for i := range docs {
		users = append(users, docs[i].toDomain())
	}
	return users, nil
}

func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	oid, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		return domain.ErrUserNotFound
	}
	doc := toMongoUser(user)
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": oid}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// EnsureIndexes makes email unique and speeds up role listings.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "role", Value: 1}, {Key: "first_name", Value: 1}}},
	}
	_, err := r.coll.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var mu mongoUser
	if err := r.coll.FindOne(ctx, filter).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return mu.toDomain(), nil
}

func unixToTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
