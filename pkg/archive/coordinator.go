package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ngas-archive/ngas/pkg/cache"
	"github.com/ngas-archive/ngas/pkg/catalog"
	"github.com/ngas-archive/ngas/pkg/config"
	"github.com/ngas-archive/ngas/pkg/dapi"
	"github.com/ngas-archive/ngas/pkg/events"
	"github.com/ngas-archive/ngas/pkg/fetch"
	"github.com/ngas-archive/ngas/pkg/log"
	"github.com/ngas-archive/ngas/pkg/metrics"
	"github.com/ngas-archive/ngas/pkg/mimetype"
	"github.com/ngas-archive/ngas/pkg/stage"
	"github.com/ngas-archive/ngas/pkg/subscription"
	"github.com/ngas-archive/ngas/pkg/types"
	"github.com/ngas-archive/ngas/pkg/volume"
)

// forbiddenPullRoots are system paths archive pulls must not read from.
var forbiddenPullRoots = []string{"/dev", "/var", "/usr", "/opt", "/etc"}

// Result reports one successfully archived file.
type Result struct {
	FileID        string
	FileVersion   int
	DiskID        string
	RelFilename   string
	Checksum      string
	BytesReceived int64
	Elapsed       time.Duration
	RateBps       float64
}

// Coordinator drives an archive request through the ingestion state
// machine: validate, pick volume, stage, invoke DAPI, move, update the
// catalog, notify cache and subscription. It exclusively owns the request
// and its staging file for the duration of the operation.
type Coordinator struct {
	cfg      *config.Config
	srvCtx   *ServerContext
	store    catalog.Store
	volumes  *volume.Registry
	resolver *mimetype.Resolver
	plugins  *dapi.Registry
	broker   *events.Broker
	trigger  *subscription.Trigger
	notifier *cache.Notifier // nil unless caching is active
}

// NewCoordinator assembles the archive coordinator. notifier may be nil
// when caching is inactive.
func NewCoordinator(cfg *config.Config, srvCtx *ServerContext, store catalog.Store,
	volumes *volume.Registry, resolver *mimetype.Resolver, plugins *dapi.Registry,
	broker *events.Broker, trigger *subscription.Trigger, notifier *cache.Notifier) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		srvCtx:   srvCtx,
		store:    store,
		volumes:  volumes,
		resolver: resolver,
		plugins:  plugins,
		broker:   broker,
		trigger:  trigger,
		notifier: notifier,
	}
}

// NewRequest builds a request shell with id and receive time stamped.
func NewRequest(command, fileURI string) *types.Request {
	return &types.Request{
		ID:         uuid.NewString(),
		Command:    command,
		FileURI:    fileURI,
		Size:       -1,
		ReceivedAt: time.Now(),
	}
}

// Archive handles a push or pull archive request. For push requests body is
// the client's request body; pulls ignore it and open the source named by
// the request URI.
func (c *Coordinator) Archive(req *types.Request, body io.Reader) (*Result, error) {
	timer := metrics.NewTimer()
	res, err := c.archive(req, body)
	status := "ok"
	if err != nil {
		status = "error"
		c.broker.Publish(&events.Event{
			ID:      uuid.NewString(),
			Type:    events.EventArchiveFailed,
			Message: err.Error(),
			Metadata: map[string]string{
				"command":  req.Command,
				"file_uri": fetch.HidePassword(req.FileURI),
			},
		})
	}
	metrics.ArchiveRequestsTotal.WithLabelValues(req.Command, status).Inc()
	timer.ObserveDurationVec(metrics.ArchiveDuration, req.Command)
	return res, err
}

func (c *Coordinator) archive(req *types.Request, body io.Reader) (*Result, error) {
	logger := log.WithRequestID(req.ID)

	if err := c.validate(req); err != nil {
		return nil, err
	}
	if err := c.srvCtx.BeginRequest(); err != nil {
		return nil, err
	}
	defer c.srvCtx.EndRequest()

	if req.MimeType == "" {
		mime, err := c.resolver.Resolve(req.FileURI, false)
		if err != nil {
			return nil, err
		}
		req.MimeType = mime
	}

	disk, err := c.pickVolume(req)
	if err != nil {
		return nil, err
	}

	stagingPath, err := c.stagingPath(req, disk)
	if err != nil {
		return nil, err
	}
	req.StagingFilename = stagingPath

	// Open the byte source: the pushed body, or the remote named by the URI.
	src := body
	size := req.Size
	if req.IsPull() {
		remote, err := fetch.Open(req.FileURI, 0)
		if err != nil {
			return nil, err
		}
		defer remote.Close()
		src = remote
		size = remote.Size
		logger.Debug().
			Str("file_uri", fetch.HidePassword(req.FileURI)).
			Int64("size", size).
			Msg("opened pull source")
	}

	recv, err := stage.Receive(src, stagingPath, stage.Options{
		Size:        size,
		BlockSize:   c.cfg.BlockSize,
		ExpectedCRC: req.Checksum,
		RcvBufSize:  c.cfg.ArchiveRcvBufSize,
		IdleTimeout: c.cfg.IdleTimeout,
		SlotLock:    c.volumes.SlotLocker(disk.SlotID),
	})
	if err != nil {
		c.unlinkStaging(req)
		if types.CodeOf(err) == types.ErrChecksumMismatch {
			metrics.ChecksumMismatchesTotal.Inc()
		}
		return nil, err
	}
	req.BytesReceived = recv.BytesReceived
	req.IOTime += recv.Elapsed
	metrics.ArchiveBytesReceived.Add(float64(recv.BytesReceived))
	metrics.IngestRate.Observe(recv.RateBps)
	if recv.SlowReads > 0 {
		metrics.SlowReadsTotal.Add(float64(recv.SlowReads))
	}
	if recv.SlowWrites > 0 {
		metrics.SlowWritesTotal.Add(float64(recv.SlowWrites))
	}

	return c.finalize(req, disk, fmt.Sprintf("%d", recv.CRC), recv)
}

// finalize runs the post-receipt sequence common to every transport: DAPI,
// move, catalog, cache, completion check, subscription trigger. checksum is
// the decimal CRC-32 of the staged bytes, whichever loop computed it.
func (c *Coordinator) finalize(req *types.Request, disk *types.DiskInfo, checksum string, recv *stage.Result) (*Result, error) {
	logger := log.WithRequestID(req.ID)

	resDapi, err := c.plugins.Invoke(&dapi.Context{Config: c.cfg, Store: c.store}, req.MimeType, req)
	if err != nil {
		c.unlinkStaging(req)
		return nil, err
	}

	// The URL-encoded file_version overrides the plug-in's when present.
	fileVersion := resDapi.FileVersion
	if v, ok := dapi.FileVersionFromURI(req.FileURI); ok {
		fileVersion = v
	}

	if err := c.moveToFinal(req.StagingFilename, resDapi.CompleteFilename); err != nil {
		c.unlinkStaging(req)
		return nil, err
	}

	st, err := os.Stat(resDapi.CompleteFilename)
	if err != nil {
		return nil, types.NewArchiveError(types.ErrStagingIO, "failed to stat final file", err)
	}

	record := &types.FileRecord{
		DiskID:           resDapi.DiskID,
		FileID:           resDapi.FileID,
		FileVersion:      fileVersion,
		Filename:         resDapi.RelFilename,
		Format:           resDapi.Format,
		FileSize:         resDapi.FileSize,
		UncompressedSize: resDapi.UncomprSize,
		Compression:      resDapi.Compression,
		IngestionDate:    time.Now().UTC(),
		Checksum:         checksum,
		ChecksumPlugin:   types.ChecksumPlugin,
		FileStatus:       types.FileStatusOK,
		CreationDate:     st.ModTime(),
	}
	if err := c.store.InsertFile(record); err != nil {
		// The file is on disk; leave it for an external audit to reconcile.
		return nil, types.NewArchiveError(types.ErrCatalogFailure, "failed to insert file record", err)
	}

	if c.cfg.CachingActive && c.notifier != nil {
		cacheVersion := fileVersion
		if req.Command == "BBCPARC" {
			cacheVersion = 1
		}
		if err := c.notifier.Insert(resDapi.DiskID, resDapi.FileID, cacheVersion, resDapi.RelFilename); err != nil {
			logger.Warn().Err(err).Msg("failed to notify cache control of new file")
		}
	}

	if err := c.store.UpdateDiskStats(resDapi.DiskID, resDapi.FileSize); err != nil {
		return nil, types.NewArchiveError(types.ErrCatalogFailure, "failed to update disk stats", err)
	}

	c.checkDiskCompletion(disk)

	c.broker.Publish(&events.Event{
		ID:      uuid.NewString(),
		Type:    events.EventFileIngested,
		Message: fmt.Sprintf("archived %s version %d", resDapi.FileID, fileVersion),
		Metadata: map[string]string{
			"disk_id":      resDapi.DiskID,
			"file_id":      resDapi.FileID,
			"file_version": fmt.Sprintf("%d", fileVersion),
		},
	})

	c.trigger.Enqueue(subscription.Entry{FileID: resDapi.FileID, FileVersion: fileVersion})
	metrics.SubscriptionPending.Set(float64(c.trigger.Pending()))

	result := &Result{
		FileID:        resDapi.FileID,
		FileVersion:   fileVersion,
		DiskID:        resDapi.DiskID,
		RelFilename:   resDapi.RelFilename,
		Checksum:      checksum,
		BytesReceived: req.BytesReceived,
	}
	if recv != nil {
		result.Elapsed = recv.Elapsed
		result.RateBps = recv.RateBps
	}
	log.WithFileID(result.FileID).Info().
		Str("request_id", req.ID).
		Int("file_version", result.FileVersion).
		Str("disk_id", result.DiskID).
		Int64("bytes", result.BytesReceived).
		Msg("successfully handled archive request")
	return result, nil
}

// validate applies the admission rules common to every archive transport.
func (c *Coordinator) validate(req *types.Request) error {
	if req.FileURI == "" {
		return types.NewArchiveError(types.ErrInvalidRequest, "missing file uri", nil)
	}
	if !c.cfg.AllowArchiveReq {
		return types.NewArchiveError(types.ErrInvalidRequest, "archive requests are not permitted", nil)
	}
	if req.IsPull() || req.Command == "BBCPARC" {
		lowered := strings.ToLower(strings.TrimPrefix(req.FileURI, "file://"))
		for _, root := range forbiddenPullRoots {
			if strings.HasPrefix(lowered, root) {
				return types.NewArchiveError(types.ErrInvalidRequest,
					fmt.Sprintf("illegal uri %s for archive pull request", req.FileURI), nil)
			}
		}
	}
	return nil
}

// pickVolume selects the target volume, raising the operator notification
// when no volume can take new files.
func (c *Coordinator) pickVolume(req *types.Request) (*types.DiskInfo, error) {
	disk, err := c.volumes.PickTarget()
	if err != nil {
		return nil, types.NewArchiveError(types.ErrCatalogFailure, "failed to query volumes", err)
	}
	if disk == nil {
		c.broker.Publish(&events.Event{
			ID:      uuid.NewString(),
			Type:    events.EventNotifyNoDisks,
			Message: "no disk volumes are available for ingesting any files",
		})
		return nil, types.NewArchiveError(types.ErrNoVolumes,
			"no disk volumes are available for ingesting any files", nil)
	}
	req.TargetDisk = disk
	return disk, nil
}

// stagingPath computes the staging filename for a request on the chosen
// volume, guaranteeing at least one extension so MIME resolution by suffix
// stays well-defined.
func (c *Coordinator) stagingPath(req *types.Request, disk *types.DiskInfo) (string, error) {
	stagingDir, err := c.volumes.EnsureStagingDir(disk)
	if err != nil {
		return "", types.NewArchiveError(types.ErrStagingIO, "failed to prepare staging area", err)
	}

	base := dapi.FileIDFromURI(req.FileURI)
	name := stage.GenUniqueFilename(base)
	if !strings.Contains(base, ".") {
		if ext, ok := c.cfg.ExtensionFor(req.MimeType); ok {
			name += "." + ext
		} else {
			name += ".dat"
		}
	}
	return filepath.Join(stagingDir, name), nil
}

// moveToFinal renames the staging file to the DAPI-chosen destination. An
// existing destination is made writable, then overwritten.
func (c *Coordinator) moveToFinal(stagingPath, finalPath string) error {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return types.NewArchiveError(types.ErrStagingIO, "failed to create destination directory", err)
	}
	if _, err := os.Stat(finalPath); err == nil {
		if err := os.Chmod(finalPath, 0644); err != nil {
			return types.NewArchiveError(types.ErrStagingIO, "failed to make destination writable", err)
		}
	}
	if err := os.Rename(stagingPath, finalPath); err != nil {
		return types.NewArchiveError(types.ErrStagingIO, "failed to move staging file to destination", err)
	}
	return nil
}

// checkDiskCompletion flips the volume to completed when its free space
// dropped below the configured threshold.
func (c *Coordinator) checkDiskCompletion(disk *types.DiskInfo) {
	freeMB, err := c.volumes.FreeSpaceMB(disk)
	if err != nil {
		log.WithDiskID(disk.DiskID).Warn().Err(err).
			Msg("failed to probe free space after archive")
		return
	}
	if freeMB >= c.cfg.FreeSpaceDiskChangeMB {
		return
	}
	if err := c.volumes.MarkCompleted(disk, time.Now().UTC()); err != nil {
		log.WithDiskID(disk.DiskID).Error().Err(err).
			Msg("failed to flag volume completed")
		return
	}
	metrics.DisksCompletedTotal.Inc()
	c.broker.Publish(&events.Event{
		ID:      uuid.NewString(),
		Type:    events.EventDiskCompleted,
		Message: fmt.Sprintf("volume %s completed, free space below %d MB", disk.DiskID, c.cfg.FreeSpaceDiskChangeMB),
		Metadata: map[string]string{
			"disk_id": disk.DiskID,
			"slot_id": disk.SlotID,
		},
	})
}

// unlinkStaging removes the staging file after a failed archive. Nothing
// has reached the catalog at any call site.
func (c *Coordinator) unlinkStaging(req *types.Request) {
	if req.StagingFilename == "" {
		return
	}
	if err := os.Remove(req.StagingFilename); err != nil && !os.IsNotExist(err) {
		log.WithRequestID(req.ID).Warn().Err(err).
			Str("staging_file", req.StagingFilename).
			Msg("failed to remove staging file")
	}
}
