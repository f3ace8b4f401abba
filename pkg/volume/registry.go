package volume

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/ngas-archive/ngas/pkg/catalog"
	"github.com/ngas-archive/ngas/pkg/log"
	"github.com/ngas-archive/ngas/pkg/types"
)

// Registry enumerates the managed disk volumes of the local host and picks
// archive targets among them. Picks query the catalog fresh every time so a
// completion flag set by a concurrent archive is observed promptly.
type Registry struct {
	store  catalog.Store
	hostID string

	mu        sync.Mutex
	slotLocks map[string]*sync.Mutex

	// freeSpace is swappable for tests
	freeSpace func(path string) (int64, error)
}

// NewRegistry creates a volume registry backed by the catalog store.
func NewRegistry(store catalog.Store, hostID string) *Registry {
	return &Registry{
		store:     store,
		hostID:    hostID,
		slotLocks: make(map[string]*sync.Mutex),
		freeSpace: diskFreeSpace,
	}
}

// PickTarget returns a random non-completed volume on the local host, or nil
// when no volume can take new files. Random tie-breaking distributes load
// across disks without stream/storage-set bookkeeping.
func (r *Registry) PickTarget() (*types.DiskInfo, error) {
	disks, err := r.store.AvailableDisks(r.hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to query available volumes: %w", err)
	}
	if len(disks) == 0 {
		return nil, nil
	}
	return disks[rand.Intn(len(disks))], nil
}

// ForSlot returns the volume mounted in a slot, strictly.
func (r *Registry) ForSlot(slotID string) (*types.DiskInfo, error) {
	return r.store.GetDiskBySlot(r.hostID, slotID)
}

// MarkCompleted persists the completion flag for a volume.
func (r *Registry) MarkCompleted(disk *types.DiskInfo, completionDate time.Time) error {
	disk.Completed = true
	disk.CompletionDate = completionDate
	if err := r.store.MarkDiskCompleted(disk.DiskID, completionDate); err != nil {
		return fmt.Errorf("failed to mark disk %s completed: %w", disk.DiskID, err)
	}
	log.WithDiskID(disk.DiskID).Info().
		Str("mount_point", disk.MountPoint).
		Msg("volume flagged completed")
	return nil
}

// LockSlot acquires the mutex serializing writes to a slot's volume. Writes
// to different volumes proceed in parallel.
func (r *Registry) LockSlot(slotID string) {
	r.slotLock(slotID).Lock()
}

// UnlockSlot releases the slot mutex.
func (r *Registry) UnlockSlot(slotID string) {
	r.slotLock(slotID).Unlock()
}

// SlotLocker exposes a slot's mutex as a sync.Locker, for handing to the
// staging writer.
func (r *Registry) SlotLocker(slotID string) sync.Locker {
	return r.slotLock(slotID)
}

func (r *Registry) slotLock(slotID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.slotLocks[slotID]
	if !ok {
		lock = &sync.Mutex{}
		r.slotLocks[slotID] = lock
	}
	return lock
}

// FreeSpaceMB returns the approximate free space on a volume's mount in
// megabytes. An approximation is fine: it only drives the completion
// threshold check, avoiding a catalog read.
func (r *Registry) FreeSpaceMB(disk *types.DiskInfo) (int64, error) {
	free, err := r.freeSpace(disk.MountPoint)
	if err != nil {
		return 0, fmt.Errorf("failed to probe free space on %s: %w", disk.MountPoint, err)
	}
	return free / (1024 * 1024), nil
}

// EnsureStagingDir creates the volume's staging directory if missing and
// returns its path.
func (r *Registry) EnsureStagingDir(disk *types.DiskInfo) (string, error) {
	dir := filepath.Join(disk.MountPoint, types.StagingDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	return dir, nil
}

func diskFreeSpace(path string) (int64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
