package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/ngas-archive/ngas/pkg/container"
	"github.com/ngas-archive/ngas/pkg/events"
	"github.com/ngas-archive/ngas/pkg/fetch"
	"github.com/ngas-archive/ngas/pkg/log"
	"github.com/ngas-archive/ngas/pkg/metrics"
	"github.com/ngas-archive/ngas/pkg/stage"
	"github.com/ngas-archive/ngas/pkg/types"
)

// ArchiveContainer handles a container archive request: the multipart body
// is unpacked streaming into the staging area of one chosen volume, then
// every leaf file is archived onto that same volume as its own catalog
// entry.
func (c *Coordinator) ArchiveContainer(req *types.Request, body io.Reader, contentType string) ([]*Result, error) {
	timer := metrics.NewTimer()
	results, err := c.archiveContainer(req, body, contentType)
	status := "ok"
	if err != nil {
		status = "error"
		c.broker.Publish(&events.Event{
			ID:      uuid.NewString(),
			Type:    events.EventArchiveFailed,
			Message: err.Error(),
			Metadata: map[string]string{"command": req.Command},
		})
	}
	metrics.ArchiveRequestsTotal.WithLabelValues(req.Command, status).Inc()
	timer.ObserveDurationVec(metrics.ArchiveDuration, req.Command)
	return results, err
}

func (c *Coordinator) archiveContainer(req *types.Request, body io.Reader, contentType string) ([]*Result, error) {
	logger := log.WithRequestID(req.ID)

	if !c.cfg.AllowArchiveReq {
		return nil, types.NewArchiveError(types.ErrInvalidRequest, "archive requests are not permitted", nil)
	}
	if err := c.srvCtx.BeginRequest(); err != nil {
		return nil, err
	}
	defer c.srvCtx.EndRequest()

	disk, err := c.pickVolume(req)
	if err != nil {
		return nil, err
	}
	stagingDir, err := c.volumes.EnsureStagingDir(disk)
	if err != nil {
		return nil, types.NewArchiveError(types.ErrStagingIO, "failed to prepare staging area", err)
	}

	// Unpack the container under a unique staging subdirectory.
	unpackDir := filepath.Join(stagingDir, stage.GenUniqueFilename("container"))
	root, err := container.Parse(body, contentType, unpackDir)
	if err != nil {
		os.RemoveAll(unpackDir)
		return nil, types.NewArchiveError(types.ErrSourceIO, "failed to parse container body", err)
	}
	defer os.RemoveAll(unpackDir)

	logger.Info().Str("container_root", root).Msg("container unpacked, archiving contents")

	var results []*Result
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		res, aerr := c.archiveLocalFile(path, disk)
		if aerr != nil {
			return aerr
		}
		results = append(results, res)
		return nil
	})
	if err != nil {
		if _, ok := err.(*types.ArchiveError); ok {
			return nil, err
		}
		return nil, types.NewArchiveError(types.ErrStagingIO, "failed to archive container contents", err)
	}
	return results, nil
}

// archiveLocalFile archives one unpacked leaf onto the already chosen
// volume, running the full staging and post-receipt sequence so every leaf
// gets its own checksum and catalog row.
func (c *Coordinator) archiveLocalFile(path string, disk *types.DiskInfo) (*Result, error) {
	req := NewRequest("CARCHIVE", path)
	req.TargetDisk = disk

	mime, err := c.resolver.Resolve(path, true)
	if err != nil {
		return nil, err
	}
	req.MimeType = mime

	stagingPath, err := c.stagingPath(req, disk)
	if err != nil {
		return nil, err
	}
	req.StagingFilename = stagingPath

	src, err := fetch.Open(path, 0)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	recv, err := stage.Receive(src, stagingPath, stage.Options{
		Size:        src.Size,
		BlockSize:   c.cfg.BlockSize,
		IdleTimeout: c.cfg.IdleTimeout,
		SlotLock:    c.volumes.SlotLocker(disk.SlotID),
	})
	if err != nil {
		c.unlinkStaging(req)
		return nil, err
	}
	req.BytesReceived = recv.BytesReceived
	metrics.ArchiveBytesReceived.Add(float64(recv.BytesReceived))

	return c.finalize(req, disk, fmt.Sprintf("%d", recv.CRC), recv)
}
