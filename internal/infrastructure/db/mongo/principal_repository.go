package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sdcourse/auth-api/internal/core/domain"
)

const (
	collectionPrincipals = "principals"

	usernameIndex = "username_key_unique"
	emailIndex    = "email_key_unique"

	duplicateKeyCode = 11000
)

// sortColumns maps public sort fields to stored columns.
var sortColumns = map[string]string{
	"username":   "username_key",
	"email":      "email_key",
	"created_at": "created_at",
}

// PrincipalRepository implements ports.PrincipalRepository using MongoDB.
// Username and email are matched through lower-cased key columns backed by
// unique indexes.
type PrincipalRepository struct {
	col *mongo.Collection
}

func NewPrincipalRepository(db *mongo.Database) *PrincipalRepository {
	return &PrincipalRepository{col: db.Collection(collectionPrincipals)}
}

type principalDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	UsernameKey  string             `bson:"username_key"`
	Email        string             `bson:"email"`
	EmailKey     string             `bson:"email_key"`
	PasswordHash string             `bson:"password_hash"`
	Roles        []string           `bson:"roles"`
	CreatedAt    int64              `bson:"created_at"`
	UpdatedAt    int64              `bson:"updated_at"`
}

func toDoc(p *domain.Principal) principalDoc {
	roles := make([]string, len(p.Roles))
	for i, r := range p.Roles {
		roles[i] = string(r)
	}
	return principalDoc{
		Username:     p.Username,
		UsernameKey:  domain.NormalizeKey(p.Username),
		Email:        p.Email,
		EmailKey:     domain.NormalizeKey(p.Email),
		PasswordHash: p.PasswordHash,
		Roles:        roles,
		CreatedAt:    p.CreatedAt.Unix(),
		UpdatedAt:    p.UpdatedAt.Unix(),
	}
}

func (d principalDoc) toDomain() *domain.Principal {
	roles := make([]domain.Role, 0, len(d.Roles))
	for _, name := range d.Roles {
		if r, err := domain.ParseRole(name); err == nil {
			roles = append(roles, r)
		}
	}
	return &domain.Principal{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Roles:        roles,
		CreatedAt:    unixToTime(d.CreatedAt),
		UpdatedAt:    unixToTime(d.UpdatedAt),
	}
}

// EnsureIndexes creates the unique key indexes on the principals collection.
func (r *PrincipalRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "username_key", Value: 1}}, Options: options.Index().SetUnique(true).SetName(usernameIndex)},
		{Keys: bson.D{{Key: "email_key", Value: 1}}, Options: options.Index().SetUnique(true).SetName(emailIndex)},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *PrincipalRepository) Create(ctx context.Context, p *domain.Principal) (*domain.Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := toDoc(p)
	res, err := r.col.InsertOne(ctx, doc)
	if err != nil {
		if conflict := conflictFrom(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("insert principal: %w", err)
	}

	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("insert principal: unexpected id type %T", res.InsertedID)
	}
	doc.ID = id
	return doc.toDomain(), nil
}

func (r *PrincipalRepository) FindByID(ctx context.Context, id string) (*domain.Principal, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrPrincipalNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

// FindByIdentifier matches the username first, then the email.
func (r *PrincipalRepository) FindByIdentifier(ctx context.Context, identifier string) (*domain.Principal, error) {
	key := domain.NormalizeKey(identifier)
	if key == "" {
		return nil, domain.ErrPrincipalNotFound
	}

	p, err := r.findOne(ctx, bson.M{"username_key": key})
	if !errors.Is(err, domain.ErrPrincipalNotFound) {
		return p, err
	}
	return r.findOne(ctx, bson.M{"email_key": key})
}

func (r *PrincipalRepository) Update(ctx context.Context, p *domain.Principal) (*domain.Principal, error) {
	oid, err := primitive.ObjectIDFromHex(p.ID)
	if err != nil {
		return nil, domain.ErrPrincipalNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := toDoc(p)
	doc.ID = oid
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": oid}, doc)
	if err != nil {
		if conflict := conflictFrom(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("update principal: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, domain.ErrPrincipalNotFound
	}
	return doc.toDomain(), nil
}

func (r *PrincipalRepository) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrPrincipalNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete principal: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrPrincipalNotFound
	}
	return nil
}

func (r *PrincipalRepository) List(ctx context.Context, page domain.PageRequest) ([]*domain.Principal, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	total, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("count principals: %w", err)
	}

	column, ok := sortColumns[page.SortBy]
	if !ok {
		column = "username_key"
	}
	dir := 1
	if page.Desc {
		dir = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: column, Value: dir}, {Key: "_id", Value: 1}})
	if page.Size > 0 {
		opts.SetSkip(int64(page.Page) * int64(page.Size)).SetLimit(int64(page.Size))
	}

	cur, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list principals: %w", err)
	}
	defer cur.Close(ctx)

	var docs []principalDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("decode principals: %w", err)
	}

	items := make([]*domain.Principal, len(docs))
	for i, d := range docs {
		items[i] = d.toDomain()
	}
	return items, total, nil
}

func (r *PrincipalRepository) findOne(ctx context.Context, filter bson.M) (*domain.Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc principalDoc
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("find principal: %w", err)
	}
	return doc.toDomain(), nil
}

// conflictFrom names the field behind a duplicate key error, or returns nil.
func conflictFrom(err error) error {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == duplicateKeyCode {
				return domain.NewConflict(fieldFor(e.Message))
			}
		}
	}
	if mongo.IsDuplicateKeyError(err) {
		return domain.NewConflict(fieldFor(err.Error()))
	}
	return nil
}

func fieldFor(msg string) string {
	if strings.Contains(msg, emailIndex) {
		return "email"
	}
	return "username"
}
