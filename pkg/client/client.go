package client

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ngas-archive/ngas/pkg/config"
	"github.com/ngas-archive/ngas/pkg/container"
	"github.com/ngas-archive/ngas/pkg/mimetype"
)

// Client speaks the NGAS archive protocol for CLI usage.
type Client struct {
	baseURL  string
	http     *http.Client
	resolver *mimetype.Resolver
}

// ArchiveStatus is the parsed XML status document of an archive reply.
type ArchiveStatus struct {
	XMLName xml.Name `xml:"NgamsStatus"`
	Status  struct {
		Message string `xml:"Message,attr"`
		Status  string `xml:"Status,attr"`
	} `xml:"Status"`
	Files []struct {
		FileID      string  `xml:"FileId,attr"`
		FileVersion int     `xml:"FileVersion,attr"`
		DiskID      string  `xml:"DiskId,attr"`
		Checksum    string  `xml:"Checksum,attr"`
		IngestRate  float64 `xml:"IngestRate,attr"`
	} `xml:"FileStatus"`
}

// NewClient creates a client against one server address.
func NewClient(addr string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  "http://" + addr,
		http:     &http.Client{Timeout: timeout},
		resolver: mimetype.NewResolver(config.Default().MimeTypeMappings),
	}
}

// ArchivePush streams a local file to the server as a QARCHIVE push.
func (c *Client) ArchivePush(path string) (*ArchiveStatus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	mime, _ := c.resolver.Resolve(path, true)
	u := fmt.Sprintf("%s/QARCHIVE?filename=%s", c.baseURL, url.QueryEscape(filepath.Base(path)))
	req, err := http.NewRequest(http.MethodPost, u, f)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mime)
	req.ContentLength = st.Size()

	return c.do(req)
}

// ArchivePull asks the server to fetch a remote URI.
func (c *Client) ArchivePull(fileURI string, fileVersion int) (*ArchiveStatus, error) {
	// The server reads file_version from the file URI itself.
	if fileVersion > 0 {
		sep := "?"
		if strings.Contains(fileURI, "?") {
			sep = "&"
		}
		fileURI += sep + "file_version=" + strconv.Itoa(fileVersion)
	}
	u := fmt.Sprintf("%s/QARCHIVE?file_uri=%s", c.baseURL, url.QueryEscape(fileURI))
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// ArchiveDir pushes a whole directory tree as one container archive. The
// body length is computed before any file data is read so the POST carries
// an exact Content-Length.
func (c *Client) ArchiveDir(dir string) (*ArchiveStatus, error) {
	cont, err := container.Scan(dir, c.resolver)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	go func() {
		_, werr := cont.WriteTo(pw)
		pw.CloseWithError(werr)
	}()

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/CARCHIVE", pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", cont.ContentType())
	req.ContentLength = cont.TotalSize()

	return c.do(req)
}

// ArchiveBBCP asks the server to pull through bbcp.
func (c *Client) ArchiveBBCP(fileURI, mimeType string, port, numStreams int, winSize string) (*ArchiveStatus, error) {
	q := url.Values{}
	q.Set("fileUri", fileURI)
	if mimeType != "" {
		q.Set("mimeType", mimeType)
	}
	if port > 0 {
		q.Set("bport", strconv.Itoa(port))
	}
	if numStreams > 0 {
		q.Set("bnum_streams", strconv.Itoa(numStreams))
	}
	if winSize != "" {
		q.Set("bwinsize", winSize)
	}
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/BBCPARC?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*ArchiveStatus, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var status ArchiveStatus
	if err := xml.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to parse status document: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &status, fmt.Errorf("server replied %d: %s", resp.StatusCode, status.Status.Message)
	}
	return &status, nil
}
