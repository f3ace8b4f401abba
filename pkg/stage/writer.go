package stage

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ngas-archive/ngas/pkg/log"
	"github.com/ngas-archive/ngas/pkg/types"
)

const (
	// unknownSizeBound drives the receive loop for sources of unknown
	// length; the idle timeout ends them.
	unknownSizeBound = int64(1e11)

	// slowRateBps is the throughput floor below which a single block read
	// or write counts as slow.
	slowRateBps = 512 * 1024

	// retrySleep is the pause after an empty read within the idle window.
	retrySleep = 50 * time.Millisecond

	// minRcvBufSize stops the halving ladder when raising SO_RCVBUF.
	minRcvBufSize = 8192
)

// ReadBufferSetter is implemented by sources whose receive buffer can be
// resized (net.TCPConn in particular).
type ReadBufferSetter interface {
	SetReadBuffer(bytes int) error
}

// Options configures one receive.
type Options struct {
	// Size is the declared content length, -1 when unknown.
	Size int64

	// BlockSize is the read/write granularity.
	BlockSize int

	// ExpectedCRC is the client-declared CRC-32 as a decimal string, empty
	// when the client sent none.
	ExpectedCRC string

	// RcvBufSize, when positive, is the target socket receive buffer size.
	RcvBufSize int

	// IdleTimeout ends the receive after this long without a successful
	// read.
	IdleTimeout time.Duration

	// SlotLock serializes writes to the target volume. Held for the entire
	// receive when non-nil.
	SlotLock sync.Locker
}

// Result reports a completed receive.
type Result struct {
	Elapsed       time.Duration
	CRC           uint32
	RateBps       float64
	BytesReceived int64
	SlowReads     int
	SlowWrites    int
}

// Receive streams a byte source into the staging file at stagingPath,
// folding a running CRC-32 (zlib variant, seed 0) into the receive loop.
// On any error the staging file is closed and left for the caller to
// unlink; the slot lock is released on every exit path.
func Receive(src io.Reader, stagingPath string, opts Options) (*Result, error) {
	logger := log.WithComponent("stage")

	if err := os.MkdirAll(filepath.Dir(stagingPath), 0755); err != nil {
		return nil, types.NewArchiveError(types.ErrStagingIO, "failed to create staging directory", err)
	}
	out, err := os.Create(stagingPath)
	if err != nil {
		return nil, types.NewArchiveError(types.ErrStagingIO, "failed to open staging file", err)
	}

	if opts.SlotLock != nil {
		opts.SlotLock.Lock()
		defer opts.SlotLock.Unlock()
	}

	if opts.RcvBufSize > 0 {
		raiseReadBuffer(src, opts.RcvBufSize)
	}

	idleTimeout := opts.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Second
	}

	sizeKnown := opts.Size >= 0
	remaining := opts.Size
	if !sizeKnown {
		remaining = unknownSizeBound
	}

	// A block slower than this took under 512 KiB/s.
	slow := time.Duration(float64(opts.BlockSize) / slowRateBps * float64(time.Second))

	var (
		crc       uint32
		total     int64
		slowReads int
		slowWrite int
	)
	buf := make([]byte, opts.BlockSize)
	start := time.Now()
	lastRecv := start

	fail := func(aerr error) (*Result, error) {
		out.Close()
		return nil, aerr
	}

	for remaining > 0 {
		rdSize := int64(opts.BlockSize)
		if remaining < rdSize {
			rdSize = remaining
		}

		rdStart := time.Now()
		n, rerr := src.Read(buf[:rdSize])
		if time.Since(rdStart) >= slow {
			slowReads++
		}

		if n > 0 {
			crc = crc32.Update(crc, crc32.IEEETable, buf[:n])

			wrStart := time.Now()
			if _, werr := out.Write(buf[:n]); werr != nil {
				return fail(types.NewArchiveError(types.ErrStagingIO, "failed to write staging file", werr))
			}
			if time.Since(wrStart) >= slow {
				slowWrite++
			}

			remaining -= int64(n)
			total += int64(n)
			lastRecv = time.Now()
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fail(types.NewArchiveError(types.ErrSourceIO, "failed to read from source", rerr))
		}
		if n == 0 {
			if time.Since(lastRecv) >= idleTimeout {
				break
			}
			time.Sleep(retrySleep)
		}
	}

	elapsed := time.Since(start)
	if err := out.Close(); err != nil {
		return nil, types.NewArchiveError(types.ErrStagingIO, "failed to close staging file", err)
	}

	rate := 0.0
	if elapsed > 0 {
		rate = float64(total) / elapsed.Seconds()
	}
	logger.Info().
		Str("staging_file", stagingPath).
		Int64("bytes_received", total).
		Dur("elapsed", elapsed).
		Float64("rate_bps", rate).
		Msg("saved data in staging file")

	if slowReads > 0 || slowWrite > 0 {
		logger.Warn().Int("slow_reads", slowReads).Int("slow_writes", slowWrite).
			Msg("slow network reads or disk writes during transfer, consider checking the network and the disks")
	}

	if sizeKnown && total < opts.Size {
		return nil, types.NewArchiveError(types.ErrShortRead,
			fmt.Sprintf("declared size %d but received %d bytes", opts.Size, total), nil)
	}

	if opts.ExpectedCRC != "" && opts.ExpectedCRC != fmt.Sprintf("%d", crc) {
		return nil, types.NewArchiveError(types.ErrChecksumMismatch,
			fmt.Sprintf("local crc %d does not match remote crc %s", crc, opts.ExpectedCRC), nil)
	}

	return &Result{
		Elapsed:       elapsed,
		CRC:           crc,
		RateBps:       rate,
		BytesReceived: total,
		SlowReads:     slowReads,
		SlowWrites:    slowWrite,
	}, nil
}

// raiseReadBuffer attempts to raise the source's receive buffer to target,
// halving on rejection. Sources without an adjustable buffer are left
// untouched.
func raiseReadBuffer(src io.Reader, target int) {
	setter, ok := src.(ReadBufferSetter)
	if !ok {
		return
	}
	size := target
	for size >= minRcvBufSize {
		if err := setter.SetReadBuffer(size); err == nil {
			log.WithComponent("stage").Debug().Int("rcv_buf_size", size).Msg("receive buffer resized")
			return
		}
		size /= 2
	}
	log.WithComponent("stage").Warn().Int("requested", target).Msg("failed to raise receive buffer")
}
