package fetch

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/ngas-archive/ngas/pkg/log"
	"github.com/ngas-archive/ngas/pkg/types"
)

// Source is a byte source opened from a remote or local URI, ready to hand
// to the staging writer. Size is -1 when the server did not declare one.
type Source struct {
	io.ReadCloser
	Size int64
}

// Open opens the byte source named by an archive pull URI. Supported
// schemes: http, https, ftp, file; anything else is treated as a local
// path.
func Open(uri string, timeout time.Duration) (*Source, error) {
	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return openHTTP(uri, timeout)
	case strings.HasPrefix(uri, "ftp://"):
		return openFTP(uri, timeout)
	case strings.HasPrefix(uri, "file://"):
		return openLocal(strings.TrimPrefix(uri, "file://"))
	default:
		return openLocal(uri)
	}
}

func openHTTP(uri string, timeout time.Duration) (*Source, error) {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(uri)
	if err != nil {
		return nil, types.NewArchiveError(types.ErrSourceIO,
			fmt.Sprintf("failed to open %s", HidePassword(uri)), err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, types.NewArchiveError(types.ErrSourceIO,
			fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, HidePassword(uri)), nil)
	}
	if resp.ContentLength < 0 {
		log.WithComponent("fetch").Debug().Str("uri", HidePassword(uri)).
			Msg("no Content-Length on pull response")
	}
	return &Source{ReadCloser: resp.Body, Size: resp.ContentLength}, nil
}

func openFTP(uri string, timeout time.Duration) (*Source, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, types.NewArchiveError(types.ErrSourceIO, "failed to parse ftp uri", err)
	}
	addr := u.Host
	if u.Port() == "" {
		addr += ":21"
	}

	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(timeout))
	if err != nil {
		return nil, types.NewArchiveError(types.ErrSourceIO,
			fmt.Sprintf("failed to connect to %s", addr), err)
	}

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		conn.Quit()
		return nil, types.NewArchiveError(types.ErrSourceIO,
			fmt.Sprintf("ftp login failed for %s", HidePassword(uri)), err)
	}

	size := int64(-1)
	if n, err := conn.FileSize(u.Path); err == nil {
		size = n
	}
	resp, err := conn.Retr(u.Path)
	if err != nil {
		conn.Quit()
		return nil, types.NewArchiveError(types.ErrSourceIO,
			fmt.Sprintf("ftp retrieve failed for %s", HidePassword(uri)), err)
	}
	return &Source{ReadCloser: &ftpSource{resp: resp, conn: conn}, Size: size}, nil
}

// ftpSource closes the data connection and the control connection together.
type ftpSource struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (s *ftpSource) Read(p []byte) (int, error) {
	return s.resp.Read(p)
}

func (s *ftpSource) Close() error {
	err := s.resp.Close()
	if qerr := s.conn.Quit(); err == nil {
		err = qerr
	}
	return err
}

func openLocal(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, types.NewArchiveError(types.ErrSourceIO,
			fmt.Sprintf("failed to open local source %s", path), err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, types.NewArchiveError(types.ErrSourceIO,
			fmt.Sprintf("failed to stat local source %s", path), err)
	}
	return &Source{ReadCloser: f, Size: st.Size()}, nil
}

// HidePassword blanks out the password of an ftp URI for logging.
func HidePassword(uri string) string {
	if !strings.Contains(uri, "ftp://") {
		return uri
	}
	at := strings.LastIndex(uri, "@")
	if at < 0 {
		return uri
	}
	head := uri[:at]
	colon := strings.LastIndex(head, ":")
	if colon < 0 || !strings.Contains(head[:colon], "//") {
		return uri
	}
	return head[:colon] + ":*****" + uri[at:]
}
