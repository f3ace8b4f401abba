package server

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ngas-archive/ngas/pkg/archive"
	"github.com/ngas-archive/ngas/pkg/config"
	"github.com/ngas-archive/ngas/pkg/log"
	"github.com/ngas-archive/ngas/pkg/metrics"
)

// ChecksumHeader is the client-declared CRC-32 the receiver must match.
const ChecksumHeader = "X-NGAS-Checksum"

// Server exposes the NGAS archive commands over HTTP.
type Server struct {
	cfg         *config.Config
	srvCtx      *archive.ServerContext
	coordinator *archive.Coordinator
	httpSrv     *http.Server
}

// NewServer creates the HTTP command surface.
func NewServer(cfg *config.Config, srvCtx *archive.ServerContext, coordinator *archive.Coordinator) *Server {
	s := &Server{
		cfg:         cfg,
		srvCtx:      srvCtx,
		coordinator: coordinator,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/QARCHIVE", s.handleQArchive)
	mux.HandleFunc("/BBCPARC", s.handleBBCPArc)
	mux.HandleFunc("/CARCHIVE", s.handleCArchive)
	mux.HandleFunc("/STATUS", s.handleStatus)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())

	s.httpSrv = &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until the listener closes. The caller owns the listener's
// address; cfg.BindAddr is used when lis is nil.
func (s *Server) Start(lis net.Listener) error {
	logger := log.WithComponent("server")
	if lis == nil {
		var err error
		lis, err = net.Listen("tcp", s.cfg.BindAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.BindAddr, err)
		}
	}
	logger.Info().Str("addr", lis.Addr().String()).Msg("archive server listening")
	if err := s.httpSrv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the command mux, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// handleQArchive serves the quick-archive command: an archive push when the
// client sends the file as the request body, an archive pull when the
// request names a remote file_uri.
func (s *Server) handleQArchive(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil &&
		strings.HasPrefix(mediaType, "multipart/") {
		s.archiveContainer(w, r, contentType)
		return
	}

	fileURI := queryFileURI(r)
	req := archive.NewRequest("QARCHIVE", fileURI)
	req.MimeType = queryMimeType(r, contentType)
	req.Checksum = r.Header.Get(ChecksumHeader)

	body := r.Body
	if req.FileURI == "" || !req.IsPull() {
		// Archive push: the body is the file.
		if req.FileURI == "" {
			req.FileURI = pushFilename(r)
		}
		if r.ContentLength >= 0 {
			req.Size = r.ContentLength
		}
	}

	res, err := s.coordinator.Archive(req, body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, fmt.Sprintf("Successfully handled archive request for data file with URI: %s", req.FileURI), res)
}

// handleBBCPArc serves the BBCP archive-pull command.
func (s *Server) handleBBCPArc(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := archive.NewRequest("BBCPARC", q.Get("fileUri"))
	req.MimeType = q.Get("mimeType")
	req.Checksum = q.Get("bchecksum")
	if v := q.Get("bport"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			req.BBCPPort = port
		}
	}
	req.BBCPWinSize = q.Get("bwinsize")
	if v := q.Get("bnum_streams"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.BBCPNumStreams = n
		}
	}

	res, err := s.coordinator.ArchiveBBCP(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, fmt.Sprintf("Successfully handled archive pull request for data file with URI: %s", req.FileURI), res)
}

// handleCArchive serves an explicit container archive.
func (s *Server) handleCArchive(w http.ResponseWriter, r *http.Request) {
	s.archiveContainer(w, r, r.Header.Get("Content-Type"))
}

func (s *Server) archiveContainer(w http.ResponseWriter, r *http.Request, contentType string) {
	req := archive.NewRequest("CARCHIVE", "container")
	results, err := s.coordinator.ArchiveContainer(req, r.Body, contentType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, fmt.Sprintf("Successfully handled container archive request with %d files", len(results)), results...)
}

// handleStatus reports server state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeSuccess(w, "Status request successfully handled")
}

// queryFileURI accepts the pull URI under either parameter spelling.
func queryFileURI(r *http.Request) string {
	q := r.URL.Query()
	if v := q.Get("file_uri"); v != "" {
		return v
	}
	return q.Get("fileUri")
}

// queryMimeType prefers an explicit mime_type parameter, then the request
// Content-Type unless it is a generic default.
func queryMimeType(r *http.Request, contentType string) string {
	q := r.URL.Query()
	if v := q.Get("mime_type"); v != "" {
		return v
	}
	if v := q.Get("mimeType"); v != "" {
		return v
	}
	if contentType != "" && contentType != "application/x-www-form-urlencoded" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			return mediaType
		}
	}
	return ""
}

// pushFilename recovers the pushed file's name from the filename parameter
// or the Content-Disposition header.
func pushFilename(r *http.Request) string {
	if v := r.URL.Query().Get("filename"); v != "" {
		return v
	}
	if cd := r.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return name
			}
		}
	}
	return ""
}
