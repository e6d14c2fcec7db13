package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	apperrors "spoke-graph/backend/pkg/errors"
	"spoke-graph/backend/pkg/logger"
)

// Key prefixes
const (
	collectionPrefix = "col:"
	documentPrefix   = "doc:"
	edgeKeySeq       = "seq:" + EdgeCollection

	sequenceBandwidth = 100
)

// BadgerStore is an embedded Store used for offline imports and tests.
// Documents are JSON values under "doc:<collection>/<key>".
type BadgerStore struct {
	db      *badger.DB
	edgeSeq *badger.Sequence
	logger  *zap.Logger
}

// badgerLogger adapts zap to badger.Logger
type badgerLogger struct {
	sugar *zap.SugaredLogger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any)   { l.sugar.Errorf(msg, items...) }
func (l *badgerLogger) Warningf(msg string, items ...any) { l.sugar.Warnf(msg, items...) }
func (l *badgerLogger) Infof(msg string, items ...any)    { l.sugar.Debugf(msg, items...) }
func (l *badgerLogger) Debugf(msg string, items ...any)   { l.sugar.Debugf(msg, items...) }

// OpenBadgerStore opens (creating if needed) a store under dir, or a purely in-memory one
func OpenBadgerStore(dir string, inMemory bool) (*BadgerStore, error) {
	log := logger.Named("badger")

	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.NewStoreUnreachable(dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLogger{sugar: log.Sugar()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, apperrors.NewStoreUnreachable(dir, err)
	}

	seq, err := db.GetSequence([]byte(edgeKeySeq), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, apperrors.NewStoreUnreachable(dir, err)
	}

	return &BadgerStore{db: db, edgeSeq: seq, logger: log}, nil
}

// Close releases the edge sequence and closes the database
func (s *BadgerStore) Close() error {
	if err := s.edgeSeq.Release(); err != nil {
		s.logger.Warn("Failed to release edge sequence", zap.Error(err))
	}
	return s.db.Close()
}

func collectionKey(name string) []byte {
	return []byte(collectionPrefix + name)
}

func documentKey(collection, key string) []byte {
	return []byte(documentPrefix + DocumentID(collection, key))
}

// HasCollection reports whether a collection was created
func (s *BadgerStore) HasCollection(_ context.Context, name string) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(collectionKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// CreateCollection registers a collection; creating an existing one is a no-op
func (s *BadgerStore) CreateCollection(_ context.Context, name string, kind CollectionType) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(collectionKey(name))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(collectionKey(name), []byte(kind))
	})
	if err != nil {
		return apperrors.NewProvisionFailed("collection "+name, err)
	}
	return nil
}

// CollectionType returns the registered type of a collection
func (s *BadgerStore) CollectionType(name string) (CollectionType, error) {
	var kind CollectionType
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(collectionKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			kind = CollectionType(val)
			return nil
		})
	})
	return kind, err
}

func (s *BadgerStore) requireCollection(txn *badger.Txn, name string) error {
	if _, err := txn.Get(collectionKey(name)); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("collection %s not found", name)
		}
		return err
	}
	return nil
}

// InsertNode stores a node document, rejecting a taken key with *errors.ErrDuplicateKey
func (s *BadgerStore) InsertNode(_ context.Context, doc NodeDocument) error {
	value := make(map[string]any, len(doc.Properties)+2)
	for k, v := range doc.Properties {
		value[k] = v
	}
	value[AttrKey] = doc.Key
	value[AttrID] = DocumentID(NodeCollection, doc.Key)

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode node %s: %w", doc.Key, err)
	}

	key := documentKey(NodeCollection, doc.Key)
	return s.db.Update(func(txn *badger.Txn) error {
		if err := s.requireCollection(txn, NodeCollection); err != nil {
			return err
		}
		_, err := txn.Get(key)
		if err == nil {
			return apperrors.NewDuplicateKey(NodeCollection, doc.Key)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, payload)
	})
}

// InsertEdge stores an edge document under a sequence-assigned key.
// Endpoints are not checked.
func (s *BadgerStore) InsertEdge(_ context.Context, doc EdgeDocument) error {
	next, err := s.edgeSeq.Next()
	if err != nil {
		return fmt.Errorf("allocate edge key: %w", err)
	}
	edgeKey := strconv.FormatUint(next, 10)

	value := make(map[string]any, len(doc.Properties)+4)
	for k, v := range doc.Properties {
		value[k] = v
	}
	value[AttrKey] = edgeKey
	value[AttrID] = DocumentID(EdgeCollection, edgeKey)
	value[AttrFrom] = doc.From
	value[AttrTo] = doc.To

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode edge %s -> %s: %w", doc.From, doc.To, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := s.requireCollection(txn, EdgeCollection); err != nil {
			return err
		}
		return txn.Set(documentKey(EdgeCollection, edgeKey), payload)
	})
}

// Get returns a single document
func (s *BadgerStore) Get(_ context.Context, collection, key string) (map[string]any, error) {
	var doc map[string]any
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(documentKey(collection, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	return doc, err
}

// Documents returns every document of a collection in storage order
func (s *BadgerStore) Documents(_ context.Context, collection string) ([]map[string]any, error) {
	docs := []map[string]any{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentPrefix + collection + "/")
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var doc map[string]any
			if err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			}); err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	return docs, err
}

// Count returns the number of documents in a collection
func (s *BadgerStore) Count(_ context.Context, collection string) (int64, error) {
	var total int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(documentPrefix + collection + "/")
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			total++
		}
		return nil
	})
	return total, err
}

// Stats counts documents in both collections
func (s *BadgerStore) Stats(ctx context.Context) (*Stats, error) {
	nodes, err := s.Count(ctx, NodeCollection)
	if err != nil {
		return nil, err
	}
	edges, err := s.Count(ctx, EdgeCollection)
	if err != nil {
		return nil, err
	}
	return &Stats{Nodes: nodes, Edges: edges}, nil
}
