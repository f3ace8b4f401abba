package dapi

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ngas-archive/ngas/pkg/types"
)

// GenPlugInName identifies the generic data-archive plug-in, used for every
// MIME type without a dedicated mapping.
const GenPlugInName = "ngamsGenDapi"

// GenPlugIn is the generic data-archive plug-in. It derives the file id
// from the request URI, assigns the next free version, and places the file
// under data/<version>/<file id> on the target volume.
type GenPlugIn struct{}

// Archive implements PlugIn.
func (GenPlugIn) Archive(ctx *Context, req *types.Request) (*types.DapiResult, error) {
	if req.TargetDisk == nil {
		return nil, fmt.Errorf("no target volume on request")
	}
	if req.StagingFilename == "" {
		return nil, fmt.Errorf("no staging file on request")
	}

	st, err := os.Stat(req.StagingFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to stat staging file: %w", err)
	}

	fileID := FileIDFromURI(req.FileURI)
	latest, err := ctx.Store.LatestFileVersion(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to determine file version: %w", err)
	}
	version := latest + 1

	relFilename := filepath.Join("data", strconv.Itoa(version), fileID)
	return &types.DapiResult{
		CompleteFilename: filepath.Join(req.TargetDisk.MountPoint, relFilename),
		RelFilename:      relFilename,
		DiskID:           req.TargetDisk.DiskID,
		FileID:           fileID,
		FileVersion:      version,
		Format:           req.MimeType,
		FileSize:         st.Size(),
		UncomprSize:      st.Size(),
		Compression:      "",
	}, nil
}

// FileIDFromURI derives the file id from an archive URI: the file_id query
// parameter when present, otherwise the basename with any query stripped.
func FileIDFromURI(uri string) string {
	if i := strings.Index(uri, "file_id="); i >= 0 {
		id := uri[i+len("file_id="):]
		if j := strings.IndexByte(id, '&'); j >= 0 {
			id = id[:j]
		}
		if dec, err := url.QueryUnescape(id); err == nil {
			id = dec
		}
		return filepath.Base(id)
	}
	base := uri
	if j := strings.IndexByte(base, '?'); j >= 0 {
		base = base[:j]
	}
	return filepath.Base(base)
}

// FileVersionFromURI extracts a file_version query parameter from an
// archive URI. The URL-supplied version overrides the plug-in's when
// present.
func FileVersionFromURI(uri string) (int, bool) {
	i := strings.Index(uri, "file_version=")
	if i < 0 {
		return 0, false
	}
	v := uri[i+len("file_version="):]
	if j := strings.IndexByte(v, '&'); j >= 0 {
		v = v[:j]
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
