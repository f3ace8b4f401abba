package types

import (
	"fmt"
	"strings"
	"time"
)

// ServerState represents the operational state of the server
type ServerState string

const (
	StateOffline ServerState = "OFFLINE"
	StateOnline  ServerState = "ONLINE"
)

// ServerSubState represents the activity substate while online
type ServerSubState string

const (
	SubStateIdle ServerSubState = "IDLE"
	SubStateBusy ServerSubState = "BUSY"
)

// FileStatus marks the integrity state of a catalogued file
type FileStatus string

const (
	FileStatusOK  FileStatus = "OK"
	FileStatusBad FileStatus = "BAD"
)

const (
	// StagingDir is the per-volume directory incoming files are written to
	// before catalog commit.
	StagingDir = "staging"

	// MaxFilenameLen bounds generated staging filenames. Longer names are
	// middle-truncated with a "__" marker.
	MaxFilenameLen = 128

	// ChecksumPlugin identifies the CRC-32 (zlib variant) checksum scheme
	// recorded with every archived file.
	ChecksumPlugin = "ngamsGenCrc32"

	// UnknownMimeType is the sentinel returned by the MIME resolver when the
	// caller permits unresolved extensions.
	UnknownMimeType = "unknown/unknown"
)

// Request carries the properties of one archive operation from HTTP parsing
// through catalog commit. It lives for exactly one command invocation and is
// owned by the archive coordinator.
type Request struct {
	ID       string // request id, for log correlation
	Command  string // QARCHIVE, BBCPARC, CARCHIVE
	FileURI  string // local path, http(s)://, ftp://, file://, or user@host:/path
	MimeType string
	Size     int64  // declared content length, -1 when unknown
	Checksum string // expected CRC-32 as decimal string, empty when absent

	NoReplication bool

	// BBCP transport parameters
	BBCPPort       int
	BBCPWinSize    string
	BBCPNumStreams int

	// Filled in as the coordinator advances
	StagingFilename string
	TargetDisk      *DiskInfo
	BytesReceived   int64
	IOTime          time.Duration

	ReceivedAt time.Time
}

// IsPull reports whether the request names a remote source the server must
// fetch, as opposed to a body pushed by the client.
func (r *Request) IsPull() bool {
	return IsArchivePullURI(r.FileURI)
}

// IsArchivePullURI reports whether a file URI refers to a pull source.
func IsArchivePullURI(uri string) bool {
	return strings.Contains(uri, "http:") || strings.Contains(uri, "https:") ||
		strings.Contains(uri, "ftp:") || strings.Contains(uri, "file:")
}

// DiskInfo mirrors one row of the ngas_disks catalog table.
type DiskInfo struct {
	DiskID         string    `json:"disk_id"`
	HostID         string    `json:"host_id"`
	SlotID         string    `json:"slot_id"`
	MountPoint     string    `json:"mount_point"`
	BytesStored    int64     `json:"bytes_stored"`
	NumberOfFiles  int64     `json:"number_of_files"`
	Completed      bool      `json:"completed"`
	CompletionDate time.Time `json:"completion_date"`
}

// FileRecord mirrors one row of the ngas_files catalog table. Records are
// immutable once inserted by the archive path.
type FileRecord struct {
	DiskID           string     `json:"disk_id"`
	FileID           string     `json:"file_id"`
	FileVersion      int        `json:"file_version"`
	Filename         string     `json:"filename"` // relative to the volume mount
	Format           string     `json:"format"`
	FileSize         int64      `json:"file_size"`
	UncompressedSize int64      `json:"uncompressed_file_size"`
	Compression      string     `json:"compression"`
	IngestionDate    time.Time  `json:"ingestion_date"`
	Checksum         string     `json:"checksum"` // decimal CRC-32
	ChecksumPlugin   string     `json:"checksum_plugin"`
	FileStatus       FileStatus `json:"file_status"`
	CreationDate     time.Time  `json:"creation_date"`
}

// FileKey builds the catalog key identifying a stored file.
func FileKey(diskID, fileID string, fileVersion int) string {
	if diskID != "" {
		return fmt.Sprintf("%s|%s|%d", diskID, fileID, fileVersion)
	}
	return fmt.Sprintf("%s|%d", fileID, fileVersion)
}

// DapiResult is what a data-archive plug-in returns: the final identity and
// location of a staged file. Identity fields go into the catalog verbatim;
// the destination path is advisory for the move only.
type DapiResult struct {
	CompleteFilename string // absolute destination under the target mount
	RelFilename      string // destination relative to the mount root
	DiskID           string
	FileID           string
	FileVersion      int
	Format           string
	FileSize         int64
	UncomprSize      int64
	Compression      string
}
