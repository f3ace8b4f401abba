package archive

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/ngas-archive/ngas/pkg/events"
	"github.com/ngas-archive/ngas/pkg/fetch"
	"github.com/ngas-archive/ngas/pkg/log"
	"github.com/ngas-archive/ngas/pkg/metrics"
	"github.com/ngas-archive/ngas/pkg/types"
)

// ArchiveBBCP handles a BBCPARC request: the external bbcp binary copies
// the remote file straight into the staging area and supplies the CRC the
// staging loop would otherwise have computed; the rest of the sequence is
// the common post-receipt handling.
func (c *Coordinator) ArchiveBBCP(ctx context.Context, req *types.Request) (*Result, error) {
	timer := metrics.NewTimer()
	res, err := c.archiveBBCP(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
		c.broker.Publish(&events.Event{
			ID:      uuid.NewString(),
			Type:    events.EventArchiveFailed,
			Message: err.Error(),
			Metadata: map[string]string{
				"command":  req.Command,
				"file_uri": req.FileURI,
			},
		})
	}
	metrics.ArchiveRequestsTotal.WithLabelValues(req.Command, status).Inc()
	timer.ObserveDurationVec(metrics.ArchiveDuration, req.Command)
	return res, err
}

func (c *Coordinator) archiveBBCP(ctx context.Context, req *types.Request) (*Result, error) {
	logger := log.WithRequestID(req.ID)

	req.NoReplication = true
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

	// bbcp writes directly to the staging path; serialize against other
	// writers on the same volume for the duration of the transfer.
	slotLock := c.volumes.SlotLocker(disk.SlotID)
	slotLock.Lock()
	start := time.Now()
	crc, err := fetch.BBCPTransfer(ctx, req.FileURI, stagingPath, fetch.BBCPParams{
		Port:       req.BBCPPort,
		WinSize:    req.BBCPWinSize,
		NumStreams: req.BBCPNumStreams,
		Binary:     c.cfg.BBCPBinary,
	})
	elapsed := time.Since(start)
	slotLock.Unlock()
	if err != nil {
		c.unlinkStaging(req)
		return nil, err
	}

	st, err := os.Stat(stagingPath)
	if err != nil {
		c.unlinkStaging(req)
		return nil, types.NewArchiveError(types.ErrStagingIO, "failed to stat transferred file", err)
	}
	req.Size = st.Size()
	req.BytesReceived = st.Size()
	req.IOTime += elapsed
	metrics.ArchiveBytesReceived.Add(float64(st.Size()))

	checksum := fmt.Sprintf("%d", crc)
	if req.Checksum != "" && req.Checksum != checksum {
		c.unlinkStaging(req)
		metrics.ChecksumMismatchesTotal.Inc()
		return nil, types.NewArchiveError(types.ErrChecksumMismatch,
			fmt.Sprintf("bbcp crc %s does not match declared crc %s", checksum, req.Checksum), nil)
	}

	logger.Info().
		Int64("bytes", st.Size()).
		Dur("elapsed", elapsed).
		Msg("bbcp transfer finished")

	return c.finalize(req, disk, checksum, nil)
}
