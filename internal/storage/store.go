// Package storage implements the object-document mapping over MongoDB:
// connection lifecycle, CRUD, single-field lookup, and the pagination
// aggregations. It is the only package that talks to the driver.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wealthwise/internal/config"
	"wealthwise/internal/core"
)

var (
	// ErrNotFound is returned when no document matches, or when the
	// requested kind is not a registered entity type.
	ErrNotFound = errors.New("not found")

	// ErrMonthWithoutYear rejects a period filter that names a month but
	// no year; the created_at prefix would be meaningless.
	ErrMonthWithoutYear = errors.New("month filter requires a year")
)

// Store owns one client connection to the document database for the
// lifetime of the process. Open and Close are the only lifecycle
// operations; request-scoped work flows through the contexts passed to
// each data operation, and connection pooling belongs to the driver.
type Store struct {
	cfg    *config.Config
	client *mongo.Client
	db     *mongo.Database
}

func New(cfg *config.Config) *Store {
	return &Store{cfg: cfg}
}

// Open establishes the connection. Idempotent: a second call on a
// connected store is a no-op.
func (s *Store) Open(ctx context.Context) error {
	if s.client != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(s.cfg.MongoURI()))
	if err != nil {
		return fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongodb: %w", err)
	}

	s.client = client
	s.db = client.Database(s.cfg.MongoDB)

	slog.InfoContext(ctx, "Connected to MongoDB",
		"host", s.cfg.MongoHost,
		"port", s.cfg.MongoPort,
		"database", s.cfg.MongoDB)
	return nil
}

// Close tears the connection down. Safe on an unopened store.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	err := s.client.Disconnect(ctx)
	s.client = nil
	s.db = nil
	if err != nil {
		return fmt.Errorf("disconnect mongodb: %w", err)
	}
	return nil
}

// collection routes an entity kind to its named collection. Calling any
// data operation on a closed store is a programming error, not a
// recoverable condition.
func (s *Store) collection(kind core.Kind) *mongo.Collection {
	if s.db == nil {
		panic("storage: operation on closed store")
	}
	return s.db.Collection(collectionName(kind))
}

// collectionName derives the collection from the type name: lower-cased
// and pluralized (User -> users).
func collectionName(kind core.Kind) string {
	return strings.ToLower(string(kind)) + "s"
}

// Create inserts the entity as a new document in its collection, stamping
// updated_at first.
func (s *Store) Create(ctx context.Context, e core.Entity) error {
	e.Touch(time.Now())
	doc := storedDocument(e, true)
	if _, err := s.collection(e.EntityKind()).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert %s: %w", collectionName(e.EntityKind()), err)
	}
	return nil
}

// Update replaces the named fields of the stored document matching the
// entity's id; stored fields the entity does not name are left untouched.
func (s *Store) Update(ctx context.Context, e core.Entity) error {
	e.Touch(time.Now())
	doc := storedDocument(e, false)
	_, err := s.collection(e.EntityKind()).UpdateOne(ctx,
		bson.M{"_id": e.EntityID()},
		bson.M{"$set": doc})
	if err != nil {
		return fmt.Errorf("update %s: %w", collectionName(e.EntityKind()), err)
	}
	return nil
}

// Delete removes the entity's document permanently. A nil entity is a
// no-op, not an error.
func (s *Store) Delete(ctx context.Context, e core.Entity) error {
	if e == nil {
		return nil
	}
	_, err := s.collection(e.EntityKind()).DeleteOne(ctx, bson.M{"_id": e.EntityID()})
	if err != nil {
		return fmt.Errorf("delete %s: %w", collectionName(e.EntityKind()), err)
	}
	return nil
}

// GetByID reconstructs the entity of the given kind matching the id.
func (s *Store) GetByID(ctx context.Context, kind core.Kind, id string) (core.Entity, error) {
	if kind != core.KindUser && kind != core.KindTransaction {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, kind, bson.M{"_id": id})
}

// GetUser is a typed convenience over GetByID.
func (s *Store) GetUser(ctx context.Context, id string) (*core.User, error) {
	e, err := s.GetByID(ctx, core.KindUser, id)
	if err != nil {
		return nil, err
	}
	return e.(*core.User), nil
}

// GetTransaction is a typed convenience over GetByID.
func (s *Store) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	e, err := s.GetByID(ctx, core.KindTransaction, id)
	if err != nil {
		return nil, err
	}
	return e.(*core.Transaction), nil
}

// FindUserBy returns the single user whose document has field == value.
// Intended for fields expected to be unique (email, username); with
// duplicates the store's arbitrary first match wins.
func (s *Store) FindUserBy(ctx context.Context, field, value string) (*core.User, error) {
	e, err := s.findOne(ctx, core.KindUser, bson.M{field: value})
	if err != nil {
		return nil, err
	}
	return e.(*core.User), nil
}

func (s *Store) findOne(ctx context.Context, kind core.Kind, filter bson.M) (core.Entity, error) {
	var doc bson.M
	err := s.collection(kind).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collectionName(kind), err)
	}
	e, err := core.FromDocument(kind, normalize(doc))
	if err != nil {
		return nil, fmt.Errorf("rehydrate %s: %w", collectionName(kind), err)
	}
	return e, nil
}

// AppendTransactionID atomically appends the transaction id to the user's
// owned list, skipping it if already present. This replaces a
// read-modify-write of the user document; the surrounding
// create-transaction-then-append sequence still spans two documents and is
// not atomic as a whole.
func (s *Store) AppendTransactionID(ctx context.Context, userID, txnID string) error {
	res, err := s.collection(core.KindUser).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$addToSet": bson.M{"transactions": txnID},
			"$set":      bson.M{"updated_at": time.Now().UTC().Format(core.TimeLayout)},
		})
	if err != nil {
		return fmt.Errorf("append transaction id: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveTransactionID pulls the transaction id from the user's owned list.
func (s *Store) RemoveTransactionID(ctx context.Context, userID, txnID string) error {
	res, err := s.collection(core.KindUser).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$pull": bson.M{"transactions": txnID},
			"$set":  bson.M{"updated_at": time.Now().UTC().Format(core.TimeLayout)},
		})
	if err != nil {
		return fmt.Errorf("remove transaction id: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// storedDocument turns an entity into its on-disk document: the view with
// the discriminator stripped. User documents always carry the password
// hash the view excludes, and get an empty owned-transactions list on
// first insert.
func storedDocument(e core.Entity, insert bool) bson.M {
	doc := bson.M(e.View())
	delete(doc, core.FieldKind)
	if u, ok := e.(*core.User); ok {
		doc["password"] = u.Password
		if insert {
			doc["transactions"] = []string{}
		}
	}
	return doc
}

// normalize converts a decoded bson document into the plain map shape the
// core constructors expect (bson.A and nested bson.M have their own
// dynamic types).
func normalize(doc bson.M) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case bson.A:
		arr := make([]any, len(t))
		for i, e := range t {
			arr[i] = normalizeValue(e)
		}
		return arr
	case bson.M:
		return normalize(t)
	case bson.D:
		return normalize(t.Map())
	default:
		return v
	}
}
