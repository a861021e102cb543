package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	logx "doggobot/pkg/logx"

	bolt "go.etcd.io/bbolt"
)

var (
	boltBucket = []byte("punishments")
	boltKey    = []byte("document")
)

// boltStore keeps the document as a single value in a bbolt database.
// Each Save is one read-write transaction, which bbolt commits atomically.
//
// bbolt takes an exclusive lock on the file: only one process may open it.
type boltStore struct {
	db  *bolt.DB
	log logx.Logger
}

func openBolt(cfg Config, log logx.Logger) (Store, error) {
	path := cfg.Path
	if filepath.Ext(path) == ".json" {
		path = path[:len(path)-len(".json")] + ".db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt bucket: %w", err)
	}
	return &boltStore{db: db, log: log}, nil
}

func (s *boltStore) Load(ctx context.Context) (Document, error) {
	b, ok, err := s.Export(ctx)
	if err != nil || !ok {
		return Document{}, err
	}
	doc, ok := decodeDocument(b)
	if !ok {
		s.log.Warn("punishment document unreadable; treating as empty", logx.String("path", s.db.Path()))
		return Document{}, nil
	}
	return doc, nil
}

func (s *boltStore) Save(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := encodeDocument(doc)
	if err != nil {
		return fmt.Errorf("encode punishments: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(boltKey, b)
	})
}

func (s *boltStore) Export(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(boltBucket).Get(boltKey); v != nil {
			// v is only valid inside the transaction
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (s *boltStore) Close() error { return s.db.Close() }
