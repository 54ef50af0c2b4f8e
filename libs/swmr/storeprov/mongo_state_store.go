package storeprov

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/xinkaiwang/swmr/libs/xklib/kcommon"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	KeyPrefix  string // prepended to every _id
}

type stateDocument struct {
	Key         string `bson:"_id"`
	Data        []byte `bson:"data"`
	UpdatedAtMs int64  `bson:"updatedAtMs"`
}

// MongoStateStore keeps one document per grain, upserted on every Save. The document id is <prefix><key>.
type MongoStateStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	prefix     string
}

func NewMongoStateStore(ctx context.Context, cfg MongoConfig) (*MongoStateStore, error) {
	bsonOpts := &options.BSONOptions{
		NilSliceAsEmpty: true,
	}
	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetBSONOptions(bsonOpts)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, kerror.Wrap(err, "MongoConnectError", "failed to connect to mongodb", false).
			WithErrorCode(kerror.EC_UNAVAILABLE).With("database", cfg.Database)
	}
	klogging.Info(ctx).With("database", cfg.Database).With("collection", cfg.Collection).With("prefix", cfg.KeyPrefix).
		Log("MongoConnected", "mongo client created")
	return &MongoStateStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		prefix:     cfg.KeyPrefix,
	}, nil
}

func (s *MongoStateStore) Save(ctx context.Context, key string, data []byte) error {
	id := s.docId(key)
	doc := stateDocument{Key: id, Data: data, UpdatedAtMs: kcommon.GetWallTimeMs()}
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return kerror.Wrap(err, "MongoSaveError", "failed to save state", false).
			WithErrorCode(kerror.EC_UNAVAILABLE).With("key", id)
	}
	return nil
}

func (s *MongoStateStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	id := s.docId(key)
	var doc stateDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, kerror.Wrap(err, "MongoLoadError", "failed to load state", false).
			WithErrorCode(kerror.EC_UNAVAILABLE).With("key", id)
	}
	return doc.Data, true, nil
}

func (s *MongoStateStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	filter := bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(s.prefix+prefix)}}
	cursor, err := s.collection.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, kerror.Wrap(err, "MongoListError", "failed to list keys", false).
			WithErrorCode(kerror.EC_UNAVAILABLE).With("prefix", s.prefix+prefix)
	}
	var docs []stateDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, kerror.Wrap(err, "MongoListError", "failed to read keys", false).
			WithErrorCode(kerror.EC_UNAVAILABLE).With("prefix", s.prefix+prefix)
	}
	keys := make([]string, 0, len(docs))
	for _, doc := range docs {
		keys = append(keys, s.keyOf(doc.Key))
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MongoStateStore) docId(key string) string {
	return s.prefix + key
}

func (s *MongoStateStore) keyOf(docId string) string {
	return strings.TrimPrefix(docId, s.prefix)
}

func (s *MongoStateStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
