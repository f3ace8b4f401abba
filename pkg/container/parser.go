package container

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// newBoundary generates a fresh part boundary. Boundaries are fixed-length
// so body sizes stay computable up front.
func newBoundary() string {
	return "ngas-" + uuid.NewString()
}

// Parse reads a container MIME body from the wire and writes every leaf
// part directly into a filesystem tree rooted at baseDir, preserving the
// sender's directory structure. Parts are streamed straight to disk; no
// part is buffered in memory. Returns the root directory created for the
// container.
func Parse(body io.Reader, contentType, baseDir string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("failed to parse content type: %w", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", fmt.Errorf("not a multipart body: %s", mediaType)
	}
	name := params["container_name"]
	if name == "" {
		name = "container"
	}
	if err := checkPartName(name); err != nil {
		return "", err
	}

	root := filepath.Join(baseDir, name)
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", fmt.Errorf("failed to create container root: %w", err)
	}
	if err := parseInto(body, params["boundary"], root); err != nil {
		return "", err
	}
	return root, nil
}

func parseInto(body io.Reader, boundary, dir string) error {
	if boundary == "" {
		return fmt.Errorf("multipart body without boundary")
	}
	mr := multipart.NewReader(body, boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}
		if err := handlePart(part, dir); err != nil {
			part.Close()
			return err
		}
		part.Close()
	}
}

func handlePart(part *multipart.Part, dir string) error {
	mediaType, params, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
	if err != nil {
		return fmt.Errorf("failed to parse part content type: %w", err)
	}

	// Nested container: recurse with the nested boundary.
	if strings.HasPrefix(mediaType, "multipart/") {
		name := params["container_name"]
		if name == "" {
			return fmt.Errorf("nested container without a name")
		}
		if err := checkPartName(name); err != nil {
			return err
		}
		sub := filepath.Join(dir, name)
		if err := os.MkdirAll(sub, 0755); err != nil {
			return fmt.Errorf("failed to create container directory: %w", err)
		}
		return parseInto(part, params["boundary"], sub)
	}

	// Leaf file: stream straight to disk.
	name := part.FileName()
	if name == "" {
		return fmt.Errorf("file part without a filename")
	}
	if err := checkPartName(name); err != nil {
		return err
	}
	out, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("failed to create file for part %q: %w", name, err)
	}
	if _, err := io.Copy(out, part); err != nil {
		out.Close()
		return fmt.Errorf("failed to write part %q: %w", name, err)
	}
	return out.Close()
}

// checkPartName rejects names that would escape the container root.
func checkPartName(name string) error {
	if name == "." || name == ".." ||
		strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("illegal part name %q", name)
	}
	return nil
}
