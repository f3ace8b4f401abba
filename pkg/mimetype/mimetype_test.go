package mimetype

import (
	"testing"

	"github.com/ngas-archive/ngas/pkg/config"
	"github.com/ngas-archive/ngas/pkg/types"
)

func testResolver() *Resolver {
	return NewResolver([]config.MimeTypeMapping{
		{MimeType: "application/fits", Extension: "fits"},
		{MimeType: "application/x-gfits", Extension: "fits.gz"},
		{MimeType: "text/plain", Extension: "txt"},
	})
}

func TestResolve(t *testing.T) {
	r := testResolver()

	mime, err := r.Resolve("obs123.fits", false)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if mime != "application/fits" {
		t.Errorf("Resolve() = %s, want application/fits", mime)
	}
}

func TestResolveLongestSuffixWins(t *testing.T) {
	r := testResolver()

	mime, err := r.Resolve("obs123.fits.gz", false)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if mime != "application/x-gfits" {
		t.Errorf("Resolve() = %s, want application/x-gfits", mime)
	}
}

func TestResolveSuffixMustEndName(t *testing.T) {
	r := testResolver()

	// ".fits" appears mid-name only; it must not match.
	if _, err := r.Resolve("obs.fits.backup", false); err == nil {
		t.Error("Resolve() matched an extension that does not end the name")
	}
}

func TestResolveUnknown(t *testing.T) {
	r := testResolver()

	_, err := r.Resolve("mystery.bin", false)
	if err == nil {
		t.Fatal("Resolve() expected error for unknown extension")
	}
	if code := types.CodeOf(err); code != types.ErrUnknownMime {
		t.Errorf("error code = %s, want %s", code, types.ErrUnknownMime)
	}

	mime, err := r.Resolve("mystery.bin", true)
	if err != nil {
		t.Fatalf("Resolve(allowUnknown) error = %v", err)
	}
	if mime != types.UnknownMimeType {
		t.Errorf("Resolve(allowUnknown) = %s, want %s", mime, types.UnknownMimeType)
	}
}
