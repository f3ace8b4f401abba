package archive

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ngas-archive/ngas/pkg/cache"
	"github.com/ngas-archive/ngas/pkg/catalog"
	"github.com/ngas-archive/ngas/pkg/config"
	"github.com/ngas-archive/ngas/pkg/dapi"
	"github.com/ngas-archive/ngas/pkg/events"
	"github.com/ngas-archive/ngas/pkg/log"
	"github.com/ngas-archive/ngas/pkg/mimetype"
	"github.com/ngas-archive/ngas/pkg/subscription"
	"github.com/ngas-archive/ngas/pkg/types"
	"github.com/ngas-archive/ngas/pkg/volume"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel})
	os.Exit(m.Run())
}

type testEnv struct {
	cfg         *config.Config
	store       catalog.Store
	coordinator *Coordinator
	trigger     *subscription.Trigger
	broker      *events.Broker
	srvCtx      *ServerContext
	disk        *types.DiskInfo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.HostID = "testhost"
	cfg.DataDir = t.TempDir()
	cfg.IdleTimeout = time.Second

	store, err := catalog.NewBoltStore(cfg.DataDir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	disk := &types.DiskInfo{
		DiskID:     "disk-1",
		HostID:     "testhost",
		SlotID:     "slot-1",
		MountPoint: t.TempDir(),
	}
	require.NoError(t, store.RegisterDisk(disk))

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	plugins := dapi.NewRegistry()
	plugins.Register(dapi.GenPlugInName, dapi.GenPlugIn{})

	trigger := subscription.NewTrigger()
	srvCtx := NewServerContext()
	srvCtx.SetOnline()

	coordinator := NewCoordinator(cfg, srvCtx, store,
		volume.NewRegistry(store, cfg.HostID),
		mimetype.NewResolver(cfg.MimeTypeMappings),
		plugins, broker, trigger, nil)

	return &testEnv{
		cfg:         cfg,
		store:       store,
		coordinator: coordinator,
		trigger:     trigger,
		broker:      broker,
		srvCtx:      srvCtx,
		disk:        disk,
	}
}

// stagingFiles lists what is left in the volume's staging directory.
func (e *testEnv) stagingFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(e.disk.MountPoint, types.StagingDir))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func TestArchivePush(t *testing.T) {
	env := newTestEnv(t)

	req := NewRequest("QARCHIVE", "hello.txt")
	req.MimeType = "text/plain"
	req.Size = 10

	res, err := env.coordinator.Archive(req, strings.NewReader("HELLOWORLD"))
	require.NoError(t, err)

	require.Equal(t, "hello.txt", res.FileID)
	require.Equal(t, 1, res.FileVersion)
	require.Equal(t, "4067704210", res.Checksum)
	require.Equal(t, int64(10), res.BytesReceived)

	// Exactly one catalog row, and the file is on disk with matching size.
	record, err := env.store.GetFile(res.DiskID, res.FileID, res.FileVersion)
	require.NoError(t, err)
	require.Equal(t, int64(10), record.FileSize)
	require.Equal(t, "4067704210", record.Checksum)
	require.Equal(t, types.FileStatusOK, record.FileStatus)
	require.Equal(t, "ngamsGenCrc32", record.ChecksumPlugin)

	onDisk, err := os.ReadFile(filepath.Join(env.disk.MountPoint, record.Filename))
	require.NoError(t, err)
	require.Equal(t, "HELLOWORLD", string(onDisk))

	// Disk stats updated.
	disk, err := env.store.GetDisk(res.DiskID)
	require.NoError(t, err)
	require.Equal(t, int64(1), disk.NumberOfFiles)
	require.Equal(t, int64(10), disk.BytesStored)

	// Subscription trigger fired.
	require.Equal(t, 1, env.trigger.Pending())
	entries := env.trigger.Drain()
	require.Equal(t, "hello.txt", entries[0].FileID)

	// No staging file remains.
	require.Empty(t, env.stagingFiles(t))

	// Substate back to IDLE.
	require.Equal(t, types.SubStateIdle, env.srvCtx.SubState())
}

func TestArchivePushChecksumMismatch(t *testing.T) {
	env := newTestEnv(t)

	req := NewRequest("QARCHIVE", "hello.txt")
	req.MimeType = "text/plain"
	req.Size = 10
	req.Checksum = "4067704211" // off by one

	_, err := env.coordinator.Archive(req, strings.NewReader("HELLOWORLD"))
	require.Error(t, err)
	require.Equal(t, types.ErrChecksumMismatch, types.CodeOf(err))

	// Catalog untouched, staging cleaned.
	files, err := env.store.ListFiles()
	require.NoError(t, err)
	require.Empty(t, files)
	require.Empty(t, env.stagingFiles(t))

	disk, _ := env.store.GetDisk("disk-1")
	require.Equal(t, int64(0), disk.BytesStored)
}

func TestArchivePushShortRead(t *testing.T) {
	env := newTestEnv(t)

	req := NewRequest("QARCHIVE", "big.txt")
	req.MimeType = "text/plain"
	req.Size = 1000

	_, err := env.coordinator.Archive(req, strings.NewReader("only ten b"))
	require.Error(t, err)
	require.Equal(t, types.ErrShortRead, types.CodeOf(err))

	files, _ := env.store.ListFiles()
	require.Empty(t, files)
	require.Empty(t, env.stagingFiles(t))
}

func TestArchiveNoVolumes(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.MarkDiskCompleted("disk-1", time.Now()))

	sub := env.broker.Subscribe()
	defer env.broker.Unsubscribe(sub)

	req := NewRequest("QARCHIVE", "hello.txt")
	req.MimeType = "text/plain"
	req.Size = 10

	_, err := env.coordinator.Archive(req, strings.NewReader("HELLOWORLD"))
	require.Error(t, err)
	require.Equal(t, types.ErrNoVolumes, types.CodeOf(err))

	// Operator notification published.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-sub:
			if event.Type == events.EventNotifyNoDisks {
				return
			}
		case <-deadline:
			t.Fatal("no operator notification for NO_VOLUMES")
		}
	}
}

func TestArchiveValidation(t *testing.T) {
	env := newTestEnv(t)

	// Empty URI.
	req := NewRequest("QARCHIVE", "")
	_, err := env.coordinator.Archive(req, strings.NewReader(""))
	require.Equal(t, types.ErrInvalidRequest, types.CodeOf(err))

	// Forbidden pull root.
	req = NewRequest("QARCHIVE", "file:///etc/passwd")
	_, err = env.coordinator.Archive(req, nil)
	require.Equal(t, types.ErrInvalidRequest, types.CodeOf(err))

	// Archiving disabled.
	env.cfg.AllowArchiveReq = false
	req = NewRequest("QARCHIVE", "hello.txt")
	_, err = env.coordinator.Archive(req, strings.NewReader("x"))
	require.Equal(t, types.ErrInvalidRequest, types.CodeOf(err))
	env.cfg.AllowArchiveReq = true

	// Server offline.
	env.srvCtx.SetOffline()
	req = NewRequest("QARCHIVE", "hello.txt")
	req.MimeType = "text/plain"
	_, err = env.coordinator.Archive(req, strings.NewReader("x"))
	require.Equal(t, types.ErrInvalidRequest, types.CodeOf(err))
}

func TestArchivePull(t *testing.T) {
	env := newTestEnv(t)

	payload := bytes.Repeat([]byte("f"), 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	req := NewRequest("QARCHIVE", srv.URL+"/data.fits")
	res, err := env.coordinator.Archive(req, nil)
	require.NoError(t, err)

	require.Equal(t, "data.fits", res.FileID)
	record, err := env.store.GetFile(res.DiskID, res.FileID, res.FileVersion)
	require.NoError(t, err)
	require.Equal(t, "application/fits", record.Format)
	require.Equal(t, int64(len(payload)), record.FileSize)
	require.Equal(t, "", record.Compression)
}

func TestArchivePullVersionOverride(t *testing.T) {
	env := newTestEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("DATA"))
	}))
	defer srv.Close()

	req := NewRequest("QARCHIVE", srv.URL+"/RETRIEVE?file_version=7&file_id=obs9.fits")
	req.MimeType = "application/fits"
	res, err := env.coordinator.Archive(req, nil)
	require.NoError(t, err)

	require.Equal(t, "obs9.fits", res.FileID)
	require.Equal(t, 7, res.FileVersion)

	_, err = env.store.GetFile(res.DiskID, "obs9.fits", 7)
	require.NoError(t, err)
}

func TestArchiveVersionIncrements(t *testing.T) {
	env := newTestEnv(t)

	for want := 1; want <= 3; want++ {
		req := NewRequest("QARCHIVE", "hello.txt")
		req.MimeType = "text/plain"
		req.Size = 10
		res, err := env.coordinator.Archive(req, strings.NewReader("HELLOWORLD"))
		require.NoError(t, err)
		require.Equal(t, want, res.FileVersion)
	}

	// No two archives share (disk-id, file-id, version).
	files, err := env.store.ListFiles()
	require.NoError(t, err)
	require.Len(t, files, 3)
}

func TestArchiveDiskCompletionThreshold(t *testing.T) {
	env := newTestEnv(t)
	// Any realistic free space is below this, so the archive completes the disk.
	env.cfg.FreeSpaceDiskChangeMB = int64(1) << 40

	req := NewRequest("QARCHIVE", "hello.txt")
	req.MimeType = "text/plain"
	req.Size = 10
	_, err := env.coordinator.Archive(req, strings.NewReader("HELLOWORLD"))
	require.NoError(t, err)

	disk, err := env.store.GetDisk("disk-1")
	require.NoError(t, err)
	require.True(t, disk.Completed, "disk should be flagged completed after crossing the threshold")

	// The next archive finds no volume.
	req = NewRequest("QARCHIVE", "hello2.txt")
	req.MimeType = "text/plain"
	req.Size = 10
	_, err = env.coordinator.Archive(req, strings.NewReader("HELLOWORLD"))
	require.Equal(t, types.ErrNoVolumes, types.CodeOf(err))
}

func TestArchiveBytesStoredMatchesFiles(t *testing.T) {
	env := newTestEnv(t)

	sizes := []string{"HELLOWORLD", "abc", "0123456789abcdef"}
	var want int64
	for i, content := range sizes {
		req := NewRequest("QARCHIVE", strings.Repeat("f", i+1)+".txt")
		req.MimeType = "text/plain"
		req.Size = int64(len(content))
		_, err := env.coordinator.Archive(req, strings.NewReader(content))
		require.NoError(t, err)
		want += int64(len(content))
	}

	disk, err := env.store.GetDisk("disk-1")
	require.NoError(t, err)
	require.Equal(t, want, disk.BytesStored)

	files, err := env.store.ListFilesOnDisk("disk-1")
	require.NoError(t, err)
	var sum int64
	for _, f := range files {
		sum += f.FileSize
	}
	require.Equal(t, want, sum)
}

func TestArchiveCachingNotification(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.CachingActive = true

	notifier, err := cache.NewNotifier(env.cfg.DataDir)
	require.NoError(t, err)
	defer notifier.Close()
	env.coordinator.notifier = notifier

	req := NewRequest("QARCHIVE", "hello.txt")
	req.MimeType = "text/plain"
	req.Size = 10
	res, err := env.coordinator.Archive(req, strings.NewReader("HELLOWORLD"))
	require.NoError(t, err)

	entries, err := notifier.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, res.FileID, entries[0].FileID)
	require.Equal(t, res.FileVersion, entries[0].FileVersion)
}
