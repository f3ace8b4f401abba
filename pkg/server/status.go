package server

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"time"

	"github.com/ngas-archive/ngas/pkg/archive"
	"github.com/ngas-archive/ngas/pkg/types"
)

// StatusDocument is the XML status document returned by every command.
type StatusDocument struct {
	XMLName xml.Name     `xml:"NgamsStatus"`
	Status  Status       `xml:"Status"`
	Files   []FileStatus `xml:"FileStatus,omitempty"`
}

// Status carries the outcome and server state of one command.
type Status struct {
	Date     string `xml:"Date,attr"`
	HostID   string `xml:"HostId,attr"`
	Message  string `xml:"Message,attr"`
	State    string `xml:"State,attr"`
	SubState string `xml:"SubState,attr"`
	Status   string `xml:"Status,attr"`
}

// FileStatus names one archived file in a success document.
type FileStatus struct {
	FileID      string  `xml:"FileId,attr"`
	FileVersion int     `xml:"FileVersion,attr"`
	DiskID      string  `xml:"DiskId,attr"`
	Checksum    string  `xml:"Checksum,attr"`
	IngestRate  float64 `xml:"IngestRate,attr"`
}

func (s *Server) statusDoc(status, message string) *StatusDocument {
	return &StatusDocument{
		Status: Status{
			Date:     time.Now().UTC().Format(time.RFC3339),
			HostID:   s.cfg.HostID,
			Message:  message,
			State:    string(s.srvCtx.State()),
			SubState: string(s.srvCtx.SubState()),
			Status:   status,
		},
	}
}

func fileStatus(res *archive.Result) FileStatus {
	return FileStatus{
		FileID:      res.FileID,
		FileVersion: res.FileVersion,
		DiskID:      res.DiskID,
		Checksum:    res.Checksum,
		IngestRate:  res.RateBps,
	}
}

// writeSuccess emits a 200 with the XML status document naming the
// archived files.
func (s *Server) writeSuccess(w http.ResponseWriter, message string, results ...*archive.Result) {
	doc := s.statusDoc("SUCCESS", message)
	for _, res := range results {
		doc.Files = append(doc.Files, fileStatus(res))
	}
	writeXML(w, http.StatusOK, doc)
}

// writeError maps the error taxonomy to an HTTP status and emits a FAILURE
// document.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if types.CodeOf(err).ClientError() {
		code = http.StatusBadRequest
	}
	writeXML(w, code, s.statusDoc("FAILURE", err.Error()))
}

func writeXML(w http.ResponseWriter, code int, doc *StatusDocument) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(code)
	fmt.Fprint(w, xml.Header)
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	_ = enc.Encode(doc)
	fmt.Fprintln(w)
}
