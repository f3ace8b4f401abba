package container

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ngas-archive/ngas/pkg/log"
	"github.com/ngas-archive/ngas/pkg/mimetype"
)

const crlf = "\r\n"

// FileEntry is one regular file inside a container.
type FileEntry struct {
	Name     string
	MimeType string
	Size     int64
	AbsPath  string
}

// Container is a directory tree prepared for serialisation as one
// MIME-multipart body. Nested directories become nested containers.
type Container struct {
	Name     string
	Boundary string
	Files    []FileEntry
	Subs     []*Container
}

// Scan walks a directory tree and builds its container description. Only
// regular files are included; anything else is skipped with a debug log.
// MIME types come from the per-extension resolver, falling back to the
// unknown sentinel.
func Scan(absDir string, resolver *mimetype.Resolver) (*Container, error) {
	logger := log.WithComponent("container")

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", absDir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	c := &Container{
		Name:     filepath.Base(absDir),
		Boundary: newBoundary(),
	}
	for _, e := range entries {
		path := filepath.Join(absDir, e.Name())
		switch {
		case e.IsDir():
			sub, err := Scan(path, resolver)
			if err != nil {
				return nil, err
			}
			c.Subs = append(c.Subs, sub)
		case e.Type().IsRegular():
			info, err := e.Info()
			if err != nil {
				return nil, fmt.Errorf("failed to stat %s: %w", path, err)
			}
			mime, _ := resolver.Resolve(e.Name(), true)
			c.Files = append(c.Files, FileEntry{
				Name:     e.Name(),
				MimeType: mime,
				Size:     info.Size(),
				AbsPath:  path,
			})
		default:
			logger.Debug().Str("path", path).Msg("skipping non-regular entry")
		}
	}
	return c, nil
}

// ContentType returns the Content-Type header value for the enclosing
// request, carrying the root boundary and the container name.
func (c *Container) ContentType() string {
	return fmt.Sprintf("multipart/mixed; boundary=%q; container_name=%q", c.Boundary, c.Name)
}

// TotalSize returns the exact byte length of the serialised body, so a
// Content-Length header can be set on the enclosing POST before any file
// data is read.
func (c *Container) TotalSize() int64 {
	var n int64
	for _, f := range c.Files {
		n += int64(len(partOpen(c.Boundary) + fileHeaders(f)))
		n += f.Size
		n += int64(len(crlf))
	}
	for _, sub := range c.Subs {
		n += int64(len(partOpen(c.Boundary) + subHeaders(sub)))
		n += sub.TotalSize()
		n += int64(len(crlf))
	}
	n += int64(len(partClose(c.Boundary)))
	return n
}

// WriteTo streams the container body. File contents are copied block by
// block; the whole body is never materialised.
func (c *Container) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	err := c.write(cw)
	return cw.n, err
}

func (c *Container) write(w io.Writer) error {
	for _, f := range c.Files {
		if _, err := io.WriteString(w, partOpen(c.Boundary)+fileHeaders(f)); err != nil {
			return err
		}
		if err := copyFile(w, f.AbsPath); err != nil {
			return err
		}
		if _, err := io.WriteString(w, crlf); err != nil {
			return err
		}
	}
	for _, sub := range c.Subs {
		if _, err := io.WriteString(w, partOpen(c.Boundary)+subHeaders(sub)); err != nil {
			return err
		}
		if err := sub.write(w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, crlf); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, partClose(c.Boundary))
	return err
}

func partOpen(boundary string) string {
	return "--" + boundary + crlf
}

func partClose(boundary string) string {
	return "--" + boundary + "--" + crlf
}

func fileHeaders(f FileEntry) string {
	return fmt.Sprintf("Content-Type: %s%s", f.MimeType, crlf) +
		fmt.Sprintf("Content-Disposition: attachment; filename=%q%s", f.Name, crlf) +
		fmt.Sprintf("Content-Length: %d%s", f.Size, crlf) +
		crlf
}

func subHeaders(sub *Container) string {
	return fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q; container_name=%q%s", sub.Boundary, sub.Name, crlf) +
		crlf
}

func copyFile(w io.Writer, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer in.Close()
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("failed to stream %s: %w", path, err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
