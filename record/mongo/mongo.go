// Package mongo is a record.Store on MongoDB. Credentials live in the
// "users" collection with a unique index on email; incidents go to
// "security_logs".
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ramppy/authkit/record"
)

type credentialDoc struct {
	ID                string     `bson:"_id"`
	Name              string     `bson:"name"`
	Email             string     `bson:"email"`
	PasswordHash      string     `bson:"password_hash"`
	Company           string     `bson:"company"`
	LockedUntil       *time.Time `bson:"locked_until"`
	FailedAttempts    int        `bson:"login_attempts"`
	LastLoginAt       *time.Time `bson:"last_login"`
	EmailVerified     bool       `bson:"email_verified"`
	VerificationToken string     `bson:"verification_token"`
	ResetTokenHash    string     `bson:"reset_token_hash"`
	ResetExpiresAt    *time.Time `bson:"reset_expires"`
	CreatedAt         time.Time  `bson:"created_at"`
}

type incidentDoc struct {
	Type      string            `bson:"type"`
	Details   map[string]string `bson:"details"`
	UserAgent string            `bson:"user_agent"`
	IP        string            `bson:"ip"`
	Timestamp time.Time         `bson:"timestamp"`
}

// Store implements record.Store.
type Store struct {
	client    *mongo.Client
	users     *mongo.Collection
	incidents *mongo.Collection
}

// Connect dials uri, verifies the connection and ensures indexes on the
// named database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := New(client.Database(database))
	s.client = client
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle. Call EnsureIndexes before use.
func New(db *mongo.Database) *Store {
	return &Store{
		users:     db.Collection("users"),
		incidents: db.Collection("security_logs"),
	}
}

// EnsureIndexes creates the unique email index and the token lookup indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "verification_token", Value: 1}}},
		{Keys: bson.D{{Key: "reset_token_hash", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// Close disconnects the client opened by Connect.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) Create(ctx context.Context, c *record.Credential) error {
	if _, err := s.users.InsertOne(ctx, toDoc(c)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return record.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*record.Credential, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *Store) FindByVerificationToken(ctx context.Context, token string) (*record.Credential, error) {
	if token == "" {
		return nil, record.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"verification_token": token})
}

func (s *Store) FindByResetTokenHash(ctx context.Context, hash string) (*record.Credential, error) {
	if hash == "" {
		return nil, record.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"reset_token_hash": hash})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*record.Credential, error) {
	var doc credentialDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, record.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return fromDoc(&doc), nil
}

func (s *Store) Update(ctx context.Context, c *record.Credential) error {
	res, err := s.users.ReplaceOne(ctx, bson.M{"_id": c.ID}, toDoc(c))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return record.ErrDuplicate
		}
		return fmt.Errorf("replace user: %w", err)
	}
	if res.MatchedCount == 0 {
		return record.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return record.ErrNotFound
	}
	return nil
}

func (s *Store) LogIncident(ctx context.Context, inc record.Incident) error {
	_, err := s.incidents.InsertOne(ctx, incidentDoc{
		Type:      inc.Type,
		Details:   inc.Details,
		UserAgent: inc.UserAgent,
		IP:        inc.IP,
		Timestamp: inc.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("insert security log: %w", err)
	}
	return nil
}

func toDoc(c *record.Credential) credentialDoc {
	return credentialDoc{
		ID:                c.ID,
		Name:              c.Name,
		Email:             c.Email,
		PasswordHash:      c.PasswordHash,
		Company:           c.Company,
		LockedUntil:       c.LockedUntil,
		FailedAttempts:    c.FailedAttempts,
		LastLoginAt:       c.LastLoginAt,
		EmailVerified:     c.EmailVerified,
		VerificationToken: c.VerificationToken,
		ResetTokenHash:    c.ResetTokenHash,
		ResetExpiresAt:    c.ResetExpiresAt,
		CreatedAt:         c.CreatedAt,
	}
}

func fromDoc(d *credentialDoc) *record.Credential {
	return &record.Credential{
		ID:                d.ID,
		Name:              d.Name,
		Email:             d.Email,
		PasswordHash:      d.PasswordHash,
		Company:           d.Company,
		LockedUntil:       utc(d.LockedUntil),
		FailedAttempts:    d.FailedAttempts,
		LastLoginAt:       utc(d.LastLoginAt),
		EmailVerified:     d.EmailVerified,
		VerificationToken: d.VerificationToken,
		ResetTokenHash:    d.ResetTokenHash,
		ResetExpiresAt:    utc(d.ResetExpiresAt),
		CreatedAt:         d.CreatedAt.UTC(),
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
