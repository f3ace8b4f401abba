package cache

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ngas-archive/ngas/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var bucketNewFiles = []byte("new_files")

// NewFileEntry records a newly archived file for the cache-control worker.
type NewFileEntry struct {
	DiskID      string    `json:"disk_id"`
	FileID      string    `json:"file_id"`
	FileVersion int       `json:"file_version"`
	Filename    string    `json:"filename"`
	AddedAt     time.Time `json:"added_at"`
}

// Notifier feeds newly archived files into the cache-control DBM. The
// cache-control worker consuming the entries is external to the archive
// core.
type Notifier struct {
	db *bolt.DB
}

// NewNotifier opens (or creates) the cache-control DBM in the data
// directory.
func NewNotifier(dataDir string) (*Notifier, error) {
	dbPath := filepath.Join(dataDir, "cache_new_files.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache-control database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketNewFiles)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Notifier{db: db}, nil
}

// Close closes the DBM.
func (n *Notifier) Close() error {
	return n.db.Close()
}

// Insert records a new file entry, keyed by its catalog identity.
func (n *Notifier) Insert(diskID, fileID string, fileVersion int, filename string) error {
	entry := NewFileEntry{
		DiskID:      diskID,
		FileID:      fileID,
		FileVersion: fileVersion,
		Filename:    filename,
		AddedAt:     time.Now(),
	}
	return n.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNewFiles)
		data, err := json.Marshal(&entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(types.FileKey(diskID, fileID, fileVersion)), data)
	})
}

// List returns all pending entries, for the external cache-control worker.
func (n *Notifier) List() ([]*NewFileEntry, error) {
	var entries []*NewFileEntry
	err := n.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNewFiles)
		return b.ForEach(func(k, v []byte) error {
			var entry NewFileEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	return entries, err
}

// Remove deletes an entry once the cache-control worker has consumed it.
func (n *Notifier) Remove(diskID, fileID string, fileVersion int) error {
	return n.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNewFiles)
		return b.Delete([]byte(types.FileKey(diskID, fileID, fileVersion)))
	})
}
