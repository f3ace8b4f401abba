package catalog

import (
	"time"

	"github.com/ngas-archive/ngas/pkg/types"
)

// Store defines the catalog gateway consumed by the archive core. Every
// method maps to a single-statement update or query against the catalog;
// no cross-row transaction is assumed by callers.
type Store interface {
	// Disks
	RegisterDisk(disk *types.DiskInfo) error
	GetDisk(diskID string) (*types.DiskInfo, error)
	GetDiskBySlot(hostID, slotID string) (*types.DiskInfo, error)
	ListDisks() ([]*types.DiskInfo, error)
	AvailableDisks(hostID string) ([]*types.DiskInfo, error)
	UpdateDiskStats(diskID string, deltaBytes int64) error
	MarkDiskCompleted(diskID string, completionDate time.Time) error

	// Files
	InsertFile(record *types.FileRecord) error
	GetFile(diskID, fileID string, fileVersion int) (*types.FileRecord, error)
	ListFiles() ([]*types.FileRecord, error)
	ListFilesOnDisk(diskID string) ([]*types.FileRecord, error)
	LatestFileVersion(fileID string) (int, error)

	Close() error
}
