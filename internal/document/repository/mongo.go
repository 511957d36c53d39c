package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/collabdocs/collabdocs/internal/document"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements Store on a MongoDB collection. Document ids are uuid
// strings stored in _id.
type MongoRepo struct {
	col *mongo.Collection
}

// NewMongoRepo wraps col and ensures the lookup indexes used by listings.
func NewMongoRepo(ctx context.Context, col *mongo.Collection) (*MongoRepo, error) {
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner", Value: 1}}},
		{Keys: bson.D{{Key: "collaborators.user", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("create document indexes: %w", err)
	}
	return &MongoRepo{col: col}, nil
}

func (m *MongoRepo) Create(ctx context.Context, doc *document.Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Collaborators == nil {
		doc.Collaborators = []document.Collaborator{}
	}
	if _, err := m.col.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return doc.ID, nil
}

func (m *MongoRepo) FindByID(ctx context.Context, id string) (*document.Document, error) {
	var d document.Document
	if err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return &d, nil
}

// update $sets fields plus updatedAt on id and returns the stored result.
func (m *MongoRepo) update(ctx context.Context, id, op string, fields bson.M) (*document.Document, error) {
	fields["updatedAt"] = time.Now().UTC()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d document.Document
	if err := m.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": fields}, opts).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &d, nil
}

func (m *MongoRepo) UpdateContent(ctx context.Context, id, content string) (*document.Document, error) {
	return m.update(ctx, id, "update content", bson.M{"content": content})
}

func (m *MongoRepo) UpdateTitle(ctx context.Context, id, title string) (*document.Document, error) {
	return m.update(ctx, id, "update title", bson.M{"title": title})
}

func (m *MongoRepo) SetCollaborators(ctx context.Context, id string, collaborators []document.Collaborator) (*document.Document, error) {
	if collaborators == nil {
		collaborators = []document.Collaborator{}
	}
	return m.update(ctx, id, "set collaborators", bson.M{"collaborators": collaborators})
}

func (m *MongoRepo) ListOwnedBy(ctx context.Context, userID string) ([]*document.Document, error) {
	return m.find(ctx, bson.M{"owner": userID})
}

func (m *MongoRepo) ListSharedWith(ctx context.Context, email string) ([]*document.Document, error) {
	return m.find(ctx, bson.M{"collaborators.user": email})
}

func (m *MongoRepo) find(ctx context.Context, filter bson.M) ([]*document.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cur, err := m.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer cur.Close(ctx)
	out := []*document.Document{}
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, &d)
	}
	return out, cur.Err()
}

func (m *MongoRepo) Delete(ctx context.Context, id string) error {
	res, err := m.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
