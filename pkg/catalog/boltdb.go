package catalog

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ngas-archive/ngas/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names, matching the catalog table names
	bucketDisks = []byte("ngas_disks")
	bucketFiles = []byte("ngas_files")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed catalog store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "ngas.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketDisks,
			bucketFiles,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Disk operations

// RegisterDisk inserts or updates a disk row.
func (s *BoltStore) RegisterDisk(disk *types.DiskInfo) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDisks)
		data, err := json.Marshal(disk)
		if err != nil {
			return err
		}
		return b.Put([]byte(disk.DiskID), data)
	})
}

func (s *BoltStore) GetDisk(diskID string) (*types.DiskInfo, error) {
	var disk types.DiskInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDisks)
		data := b.Get([]byte(diskID))
		if data == nil {
			return fmt.Errorf("disk not found: %s", diskID)
		}
		return json.Unmarshal(data, &disk)
	})
	if err != nil {
		return nil, err
	}
	return &disk, nil
}

// GetDiskBySlot looks up the single live disk mounted in a slot.
func (s *BoltStore) GetDiskBySlot(hostID, slotID string) (*types.DiskInfo, error) {
	var found *types.DiskInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDisks)
		return b.ForEach(func(k, v []byte) error {
			var disk types.DiskInfo
			if err := json.Unmarshal(v, &disk); err != nil {
				return err
			}
			if disk.HostID == hostID && disk.SlotID == slotID {
				found = &disk
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("no disk in slot %s on host %s", slotID, hostID)
	}
	return found, nil
}

func (s *BoltStore) ListDisks() ([]*types.DiskInfo, error) {
	var disks []*types.DiskInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDisks)
		return b.ForEach(func(k, v []byte) error {
			var disk types.DiskInfo
			if err := json.Unmarshal(v, &disk); err != nil {
				return err
			}
			disks = append(disks, &disk)
			return nil
		})
	})
	return disks, err
}

// AvailableDisks returns the non-completed disks on a host. The query is
// fresh every call so a completion flag set by a concurrent archive is
// observed promptly.
func (s *BoltStore) AvailableDisks(hostID string) ([]*types.DiskInfo, error) {
	disks, err := s.ListDisks()
	if err != nil {
		return nil, err
	}

	var available []*types.DiskInfo
	for _, disk := range disks {
		if !disk.Completed && disk.HostID == hostID {
			available = append(available, disk)
		}
	}
	return available, nil
}

// UpdateDiskStats bumps number_of_files and bytes_stored for a disk. The
// read-modify-write runs inside one update transaction so concurrent
// archives to the same disk serialize here.
func (s *BoltStore) UpdateDiskStats(diskID string, deltaBytes int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDisks)
		data := b.Get([]byte(diskID))
		if data == nil {
			return fmt.Errorf("disk not found: %s", diskID)
		}
		var disk types.DiskInfo
		if err := json.Unmarshal(data, &disk); err != nil {
			return err
		}
		disk.NumberOfFiles++
		disk.BytesStored += deltaBytes
		updated, err := json.Marshal(&disk)
		if err != nil {
			return err
		}
		return b.Put([]byte(diskID), updated)
	})
}

// MarkDiskCompleted flips the completion flag. Once set, the disk receives
// no new files.
func (s *BoltStore) MarkDiskCompleted(diskID string, completionDate time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDisks)
		data := b.Get([]byte(diskID))
		if data == nil {
			return fmt.Errorf("disk not found: %s", diskID)
		}
		var disk types.DiskInfo
		if err := json.Unmarshal(data, &disk); err != nil {
			return err
		}
		disk.Completed = true
		disk.CompletionDate = completionDate
		updated, err := json.Marshal(&disk)
		if err != nil {
			return err
		}
		return b.Put([]byte(diskID), updated)
	})
}

// File operations

// InsertFile inserts a file row. On key conflict the row is replaced; the
// archive path relies on the DAPI handing out fresh versions.
func (s *BoltStore) InsertFile(record *types.FileRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFiles)
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		key := types.FileKey(record.DiskID, record.FileID, record.FileVersion)
		return b.Put([]byte(key), data)
	})
}

func (s *BoltStore) GetFile(diskID, fileID string, fileVersion int) (*types.FileRecord, error) {
	var record types.FileRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFiles)
		data := b.Get([]byte(types.FileKey(diskID, fileID, fileVersion)))
		if data == nil {
			return fmt.Errorf("file not found: %s version %d on disk %s", fileID, fileVersion, diskID)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *BoltStore) ListFiles() ([]*types.FileRecord, error) {
	var records []*types.FileRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFiles)
		return b.ForEach(func(k, v []byte) error {
			var record types.FileRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, &record)
			return nil
		})
	})
	return records, err
}

// LatestFileVersion returns the highest catalogued version of a file id
// across all disks, or 0 when the file is unknown.
func (s *BoltStore) LatestFileVersion(fileID string) (int, error) {
	latest := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFiles)
		return b.ForEach(func(k, v []byte) error {
			var record types.FileRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			if record.FileID == fileID && record.FileVersion > latest {
				latest = record.FileVersion
			}
			return nil
		})
	})
	return latest, err
}

func (s *BoltStore) ListFilesOnDisk(diskID string) ([]*types.FileRecord, error) {
	records, err := s.ListFiles()
	if err != nil {
		return nil, err
	}

	var filtered []*types.FileRecord
	for _, record := range records {
		if record.DiskID == diskID {
			filtered = append(filtered, record)
		}
	}
	return filtered, nil
}
