package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"seedwarden/internal/domain"
	"seedwarden/internal/domain/ports"
)

// RegistryRepository stores one document per torrent identity. Writes are
// journaled so an acknowledged copy survives a crash of the database host.
type RegistryRepository struct {
	collection *mongo.Collection
}

var _ ports.Registry = (*RegistryRepository)(nil)

type entryDoc struct {
	ID        string `bson:"_id"`
	Name      string `bson:"name"`
	Copied    bool   `bson:"copied"`
	CreatedAt int64  `bson:"createdAt"`
	UpdatedAt int64  `bson:"updatedAt"`
	CopiedAt  int64  `bson:"copiedAt,omitempty"`
}

type entryUpdateDoc struct {
	Name      string `bson:"name"`
	Copied    bool   `bson:"copied"`
	UpdatedAt int64  `bson:"updatedAt"`
	CopiedAt  int64  `bson:"copiedAt"`
}

func NewRegistryRepository(client *mongo.Client, dbName, collectionName string) *RegistryRepository {
	opts := options.Collection().SetWriteConcern(writeconcern.Journaled())
	return &RegistryRepository{collection: client.Database(dbName).Collection(collectionName, opts)}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *RegistryRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "copied", Value: 1}}},
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (r *RegistryRepository) Get(ctx context.Context, id domain.TorrentUUID) (domain.RegistryEntry, error) {
	var doc entryDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.RegistryEntry{}, domain.ErrNotFound
		}
		return domain.RegistryEntry{}, err
	}
	return fromEntryDoc(doc), nil
}

// Upsert writes the entry under its identity. createdAt is only written when
// the document is inserted.
func (r *RegistryRepository) Upsert(ctx context.Context, entry domain.RegistryEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = entry.UpdatedAt
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": string(entry.UUID)},
		bson.M{
			"$set":         toEntryUpdateDoc(entry),
			"$setOnInsert": bson.M{"createdAt": unixOrZero(created)},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// DeleteNotIn removes every entry whose identity is not in keep and returns
// the number removed. An empty keep removes everything.
func (r *RegistryRepository) DeleteNotIn(ctx context.Context, keep []domain.TorrentUUID) (int64, error) {
	ids := make([]string, 0, len(keep))
	for _, id := range keep {
		ids = append(ids, string(id))
	}
	res, err := r.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$nin": ids}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func toEntryDoc(e domain.RegistryEntry) entryDoc {
	return entryDoc{
		ID:        string(e.UUID),
		Name:      e.Name,
		Copied:    e.Copied,
		CreatedAt: unixOrZero(e.CreatedAt),
		UpdatedAt: unixOrZero(e.UpdatedAt),
		CopiedAt:  unixOrZero(e.CopiedAt),
	}
}

func toEntryUpdateDoc(e domain.RegistryEntry) entryUpdateDoc {
	doc := toEntryDoc(e)
	return entryUpdateDoc{
		Name:      doc.Name,
		Copied:    doc.Copied,
		UpdatedAt: doc.UpdatedAt,
		CopiedAt:  doc.CopiedAt,
	}
}

func fromEntryDoc(doc entryDoc) domain.RegistryEntry {
	return domain.RegistryEntry{
		UUID:      domain.TorrentUUID(doc.ID),
		Name:      doc.Name,
		Copied:    doc.Copied,
		CreatedAt: timeFromUnix(doc.CreatedAt),
		UpdatedAt: timeFromUnix(doc.UpdatedAt),
		CopiedAt:  timeFromUnix(doc.CopiedAt),
	}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().Unix()
}

func timeFromUnix(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(value, 0).UTC()
}
