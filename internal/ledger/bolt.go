package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var appliedBucket = []byte("applied")

// BoltLedger keeps the ledger in a BoltDB file. The file lock also keeps two
// ingest runs from sharing one ledger at the same time.
type BoltLedger struct {
	db *bolt.DB
}

var _ Store = (*BoltLedger)(nil)

type boltRecord struct {
	AppliedAt time.Time `json:"applied_at"`
	Digest    string    `json:"digest,omitempty"`
}

// OpenBolt opens or creates the ledger database at path.
func OpenBolt(path string) (*BoltLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open ledger %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(appliedBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger bucket: %w", err)
	}
	return &BoltLedger{db: db}, nil
}

func (l *BoltLedger) Contains(ctx context.Context, path string) (bool, error) {
	found := false
	err := l.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(appliedBucket).Get([]byte(normalize(path))) != nil
		return nil
	})
	return found, err
}

func (l *BoltLedger) MarkApplied(ctx context.Context, path, digest string) error {
	key := normalize(path)
	if key == "" {
		return fmt.Errorf("ledger path is required")
	}
	data, err := json.Marshal(boltRecord{AppliedAt: time.Now().UTC(), Digest: digest})
	if err != nil {
		return fmt.Errorf("encode ledger entry: %w", err)
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(appliedBucket)
		if b.Get([]byte(key)) != nil {
			return nil
		}
		return b.Put([]byte(key), data)
	})
}

func (l *BoltLedger) List(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(appliedBucket).ForEach(func(k, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode ledger entry %q: %w", k, err)
			}
			out = append(out, Entry{Path: string(k), Digest: rec.Digest, AppliedAt: rec.AppliedAt})
			return nil
		})
	})
	return out, err
}

func (l *BoltLedger) Close() error {
	return l.db.Close()
}
