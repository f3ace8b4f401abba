package catalog

import (
	"testing"
	"time"

	"github.com/ngas-archive/ngas/pkg/types"
)

func testStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testDisk(id, host string) *types.DiskInfo {
	return &types.DiskInfo{
		DiskID:     id,
		HostID:     host,
		SlotID:     "slot-" + id,
		MountPoint: "/mnt/" + id,
	}
}

func TestRegisterAndGetDisk(t *testing.T) {
	store := testStore(t)

	disk := testDisk("d1", "host1")
	if err := store.RegisterDisk(disk); err != nil {
		t.Fatalf("RegisterDisk() error = %v", err)
	}

	got, err := store.GetDisk("d1")
	if err != nil {
		t.Fatalf("GetDisk() error = %v", err)
	}
	if got.MountPoint != "/mnt/d1" {
		t.Errorf("MountPoint = %s, want /mnt/d1", got.MountPoint)
	}
}

func TestGetDiskBySlot(t *testing.T) {
	store := testStore(t)
	store.RegisterDisk(testDisk("d1", "host1"))
	store.RegisterDisk(testDisk("d2", "host1"))

	got, err := store.GetDiskBySlot("host1", "slot-d2")
	if err != nil {
		t.Fatalf("GetDiskBySlot() error = %v", err)
	}
	if got.DiskID != "d2" {
		t.Errorf("DiskID = %s, want d2", got.DiskID)
	}

	if _, err := store.GetDiskBySlot("host1", "slot-d9"); err == nil {
		t.Error("GetDiskBySlot() expected error for unknown slot")
	}
}

func TestAvailableDisks(t *testing.T) {
	store := testStore(t)
	store.RegisterDisk(testDisk("d1", "host1"))
	store.RegisterDisk(testDisk("d2", "host1"))
	store.RegisterDisk(testDisk("d3", "other-host"))

	completed := testDisk("d4", "host1")
	completed.Completed = true
	store.RegisterDisk(completed)

	disks, err := store.AvailableDisks("host1")
	if err != nil {
		t.Fatalf("AvailableDisks() error = %v", err)
	}
	if len(disks) != 2 {
		t.Fatalf("len(AvailableDisks()) = %d, want 2", len(disks))
	}
	for _, d := range disks {
		if d.Completed || d.HostID != "host1" {
			t.Errorf("unexpected candidate disk %+v", d)
		}
	}
}

func TestUpdateDiskStats(t *testing.T) {
	store := testStore(t)
	store.RegisterDisk(testDisk("d1", "host1"))

	if err := store.UpdateDiskStats("d1", 1000); err != nil {
		t.Fatalf("UpdateDiskStats() error = %v", err)
	}
	if err := store.UpdateDiskStats("d1", 500); err != nil {
		t.Fatalf("UpdateDiskStats() error = %v", err)
	}

	got, _ := store.GetDisk("d1")
	if got.NumberOfFiles != 2 {
		t.Errorf("NumberOfFiles = %d, want 2", got.NumberOfFiles)
	}
	if got.BytesStored != 1500 {
		t.Errorf("BytesStored = %d, want 1500", got.BytesStored)
	}
}

func TestMarkDiskCompleted(t *testing.T) {
	store := testStore(t)
	store.RegisterDisk(testDisk("d1", "host1"))

	when := time.Now().UTC()
	if err := store.MarkDiskCompleted("d1", when); err != nil {
		t.Fatalf("MarkDiskCompleted() error = %v", err)
	}

	got, _ := store.GetDisk("d1")
	if !got.Completed {
		t.Error("Completed = false, want true")
	}
	if !got.CompletionDate.Equal(when) {
		t.Errorf("CompletionDate = %v, want %v", got.CompletionDate, when)
	}

	disks, _ := store.AvailableDisks("host1")
	if len(disks) != 0 {
		t.Errorf("completed disk still offered as candidate")
	}
}

func testRecord(diskID, fileID string, version int, size int64) *types.FileRecord {
	return &types.FileRecord{
		DiskID:         diskID,
		FileID:         fileID,
		FileVersion:    version,
		Filename:       "data/" + fileID,
		Format:         "application/fits",
		FileSize:       size,
		Checksum:       "12345",
		ChecksumPlugin: types.ChecksumPlugin,
		FileStatus:     types.FileStatusOK,
	}
}

func TestInsertAndGetFile(t *testing.T) {
	store := testStore(t)

	if err := store.InsertFile(testRecord("d1", "obs1.fits", 1, 100)); err != nil {
		t.Fatalf("InsertFile() error = %v", err)
	}

	got, err := store.GetFile("d1", "obs1.fits", 1)
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if got.FileSize != 100 {
		t.Errorf("FileSize = %d, want 100", got.FileSize)
	}
	if got.ChecksumPlugin != "ngamsGenCrc32" {
		t.Errorf("ChecksumPlugin = %s, want ngamsGenCrc32", got.ChecksumPlugin)
	}

	if _, err := store.GetFile("d1", "obs1.fits", 2); err == nil {
		t.Error("GetFile() expected error for unknown version")
	}
}

func TestInsertFileReplacesOnConflict(t *testing.T) {
	store := testStore(t)

	store.InsertFile(testRecord("d1", "obs1.fits", 1, 100))
	store.InsertFile(testRecord("d1", "obs1.fits", 1, 200))

	got, err := store.GetFile("d1", "obs1.fits", 1)
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if got.FileSize != 200 {
		t.Errorf("FileSize = %d, want 200 after replace", got.FileSize)
	}

	files, _ := store.ListFiles()
	if len(files) != 1 {
		t.Errorf("len(ListFiles()) = %d, want 1", len(files))
	}
}

func TestLatestFileVersion(t *testing.T) {
	store := testStore(t)

	latest, err := store.LatestFileVersion("obs1.fits")
	if err != nil {
		t.Fatalf("LatestFileVersion() error = %v", err)
	}
	if latest != 0 {
		t.Errorf("LatestFileVersion() = %d, want 0 for unknown file", latest)
	}

	store.InsertFile(testRecord("d1", "obs1.fits", 1, 100))
	store.InsertFile(testRecord("d2", "obs1.fits", 3, 100))
	store.InsertFile(testRecord("d1", "other.fits", 7, 100))

	latest, _ = store.LatestFileVersion("obs1.fits")
	if latest != 3 {
		t.Errorf("LatestFileVersion() = %d, want 3", latest)
	}
}

func TestListFilesOnDisk(t *testing.T) {
	store := testStore(t)
	store.InsertFile(testRecord("d1", "a.fits", 1, 10))
	store.InsertFile(testRecord("d1", "b.fits", 1, 20))
	store.InsertFile(testRecord("d2", "c.fits", 1, 30))

	files, err := store.ListFilesOnDisk("d1")
	if err != nil {
		t.Fatalf("ListFilesOnDisk() error = %v", err)
	}
	if len(files) != 2 {
		t.Errorf("len(ListFilesOnDisk()) = %d, want 2", len(files))
	}
}
