package container

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ngas-archive/ngas/pkg/config"
	"github.com/ngas-archive/ngas/pkg/log"
	"github.com/ngas-archive/ngas/pkg/mimetype"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel})
	os.Exit(m.Run())
}

func testResolver() *mimetype.Resolver {
	return mimetype.NewResolver(config.Default().MimeTypeMappings)
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "obs42")
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestScan(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.fits":     "AAAA",
		"notes.txt":  "hello",
		"sub/b.fits": "BBBBBBBB",
	})

	cont, err := Scan(root, testResolver())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if cont.Name != "obs42" {
		t.Errorf("Name = %s, want obs42", cont.Name)
	}
	if len(cont.Files) != 2 {
		t.Fatalf("len(Files) = %d, want 2", len(cont.Files))
	}
	if len(cont.Subs) != 1 {
		t.Fatalf("len(Subs) = %d, want 1", len(cont.Subs))
	}
	if cont.Files[0].MimeType != "application/fits" {
		t.Errorf("MimeType = %s, want application/fits", cont.Files[0].MimeType)
	}
	if cont.Subs[0].Name != "sub" {
		t.Errorf("sub container name = %s, want sub", cont.Subs[0].Name)
	}
}

func TestTotalSizeMatchesWrittenBytes(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.fits":         "AAAA",
		"sub/b.fits":     "BBBBBBBB",
		"sub/deep/c.txt": "C",
	})

	cont, err := Scan(root, testResolver())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	var buf bytes.Buffer
	n, err := cont.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("WriteTo() reported %d bytes, wrote %d", n, buf.Len())
	}
	if want := cont.TotalSize(); n != want {
		t.Errorf("TotalSize() = %d, but WriteTo() produced %d bytes", want, n)
	}
}

func TestRoundTrip(t *testing.T) {
	files := map[string]string{
		"a.fits":         "AAAA",
		"notes.txt":      "hello world",
		"sub/b.fits":     "BBBBBBBB",
		"sub/deep/c.txt": "C",
	}
	root := writeTree(t, files)

	cont, err := Scan(root, testResolver())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	var buf bytes.Buffer
	if _, err := cont.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}

	outDir := t.TempDir()
	gotRoot, err := Parse(&buf, cont.ContentType(), outDir)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if filepath.Base(gotRoot) != "obs42" {
		t.Errorf("parsed root = %s, want obs42", gotRoot)
	}

	for name, content := range files {
		data, err := os.ReadFile(filepath.Join(gotRoot, name))
		if err != nil {
			t.Errorf("missing file %s after round trip: %v", name, err)
			continue
		}
		if string(data) != content {
			t.Errorf("file %s content = %q, want %q", name, data, content)
		}
	}
}

func TestParseContainsTraversal(t *testing.T) {
	body := "--b\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Disposition: attachment; filename=\"../evil.txt\"\r\n" +
		"\r\n" +
		"x\r\n" +
		"--b--\r\n"

	baseDir := t.TempDir()
	root, err := Parse(bytes.NewReader([]byte(body)),
		`multipart/mixed; boundary="b"; container_name="c"`, baseDir)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// The traversal component must be stripped, not honored.
	if _, err := os.Stat(filepath.Join(baseDir, "evil.txt")); err == nil {
		t.Error("part escaped the container root")
	}
	if _, err := os.Stat(filepath.Join(root, "evil.txt")); err != nil {
		t.Errorf("part not written inside the container root: %v", err)
	}
}

func TestParseRejectsTraversalContainerName(t *testing.T) {
	_, err := Parse(bytes.NewReader(nil),
		`multipart/mixed; boundary="b"; container_name="../c"`, t.TempDir())
	if err == nil {
		t.Fatal("Parse() accepted a path-traversal container name")
	}
}

func TestParseRejectsNonMultipart(t *testing.T) {
	_, err := Parse(bytes.NewReader(nil), "text/plain", t.TempDir())
	if err == nil {
		t.Fatal("Parse() accepted a non-multipart content type")
	}
}
