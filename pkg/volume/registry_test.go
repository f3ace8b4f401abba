package volume

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ngas-archive/ngas/pkg/catalog"
	"github.com/ngas-archive/ngas/pkg/log"
	"github.com/ngas-archive/ngas/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel})
	os.Exit(m.Run())
}

func testRegistry(t *testing.T) (*Registry, catalog.Store) {
	t.Helper()
	store, err := catalog.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewRegistry(store, "host1"), store
}

func addDisk(t *testing.T, store catalog.Store, id string, completed bool) *types.DiskInfo {
	t.Helper()
	disk := &types.DiskInfo{
		DiskID:     id,
		HostID:     "host1",
		SlotID:     "slot-" + id,
		MountPoint: filepath.Join(t.TempDir(), id),
		Completed:  completed,
	}
	if err := store.RegisterDisk(disk); err != nil {
		t.Fatalf("RegisterDisk() error = %v", err)
	}
	return disk
}

func TestPickTarget(t *testing.T) {
	reg, store := testRegistry(t)
	addDisk(t, store, "d1", false)
	addDisk(t, store, "d2", true)

	// Only the non-completed disk is ever picked.
	for i := 0; i < 10; i++ {
		disk, err := reg.PickTarget()
		if err != nil {
			t.Fatalf("PickTarget() error = %v", err)
		}
		if disk == nil {
			t.Fatal("PickTarget() = nil, want d1")
		}
		if disk.DiskID != "d1" {
			t.Errorf("PickTarget() = %s, want d1", disk.DiskID)
		}
	}
}

func TestPickTargetNoCandidates(t *testing.T) {
	reg, store := testRegistry(t)
	addDisk(t, store, "d1", true)

	disk, err := reg.PickTarget()
	if err != nil {
		t.Fatalf("PickTarget() error = %v", err)
	}
	if disk != nil {
		t.Errorf("PickTarget() = %v, want nil when all disks are completed", disk)
	}
}

func TestPickTargetSpreadsLoad(t *testing.T) {
	reg, store := testRegistry(t)
	addDisk(t, store, "d1", false)
	addDisk(t, store, "d2", false)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		disk, err := reg.PickTarget()
		if err != nil {
			t.Fatalf("PickTarget() error = %v", err)
		}
		seen[disk.DiskID] = true
	}
	if len(seen) != 2 {
		t.Errorf("100 picks hit %d disks, want both", len(seen))
	}
}

func TestForSlot(t *testing.T) {
	reg, store := testRegistry(t)
	addDisk(t, store, "d1", false)

	disk, err := reg.ForSlot("slot-d1")
	if err != nil {
		t.Fatalf("ForSlot() error = %v", err)
	}
	if disk.DiskID != "d1" {
		t.Errorf("ForSlot() = %s, want d1", disk.DiskID)
	}

	if _, err := reg.ForSlot("slot-d9"); err == nil {
		t.Error("ForSlot() expected error for unknown slot")
	}
}

func TestMarkCompleted(t *testing.T) {
	reg, store := testRegistry(t)
	disk := addDisk(t, store, "d1", false)

	if err := reg.MarkCompleted(disk, time.Now().UTC()); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if !disk.Completed {
		t.Error("in-memory disk not flagged completed")
	}

	picked, _ := reg.PickTarget()
	if picked != nil {
		t.Errorf("PickTarget() = %v after completion, want nil", picked)
	}
}

func TestSlotLockerIsStable(t *testing.T) {
	reg, _ := testRegistry(t)

	a := reg.SlotLocker("slot-1")
	b := reg.SlotLocker("slot-1")
	if a != b {
		t.Error("SlotLocker() returned different mutexes for the same slot")
	}
	if c := reg.SlotLocker("slot-2"); c == a {
		t.Error("SlotLocker() shared a mutex across slots")
	}
}

func TestEnsureStagingDir(t *testing.T) {
	reg, store := testRegistry(t)
	disk := addDisk(t, store, "d1", false)

	dir, err := reg.EnsureStagingDir(disk)
	if err != nil {
		t.Fatalf("EnsureStagingDir() error = %v", err)
	}
	if filepath.Base(dir) != types.StagingDir {
		t.Errorf("staging dir = %s, want basename %s", dir, types.StagingDir)
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		t.Errorf("staging dir not created: %v", err)
	}
}

func TestFreeSpaceMB(t *testing.T) {
	reg, store := testRegistry(t)
	disk := addDisk(t, store, "d1", false)

	reg.freeSpace = func(path string) (int64, error) {
		return 512 * 1024 * 1024, nil
	}
	free, err := reg.FreeSpaceMB(disk)
	if err != nil {
		t.Fatalf("FreeSpaceMB() error = %v", err)
	}
	if free != 512 {
		t.Errorf("FreeSpaceMB() = %d, want 512", free)
	}
}
