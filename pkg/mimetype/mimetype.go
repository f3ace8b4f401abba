package mimetype

import (
	"fmt"
	"strings"

	"github.com/ngas-archive/ngas/pkg/config"
	"github.com/ngas-archive/ngas/pkg/types"
)

// Resolver maps filename extensions to MIME types using the configured
// extension table.
type Resolver struct {
	mappings []config.MimeTypeMapping
}

// NewResolver creates a resolver over the configured mappings.
func NewResolver(mappings []config.MimeTypeMapping) *Resolver {
	return &Resolver{mappings: mappings}
}

// Resolve determines the MIME type of a file from its name. The match is
// the longest configured ".ext" suffix ending at end-of-name. When nothing
// matches and allowUnknown is set, the unknown/unknown sentinel is
// returned; otherwise resolution fails. The filename is never mutated.
func (r *Resolver) Resolve(filename string, allowUnknown bool) (string, error) {
	var (
		best    string
		bestLen int
	)
	for _, m := range r.mappings {
		ext := "." + m.Extension
		if strings.HasSuffix(filename, ext) && len(ext) > bestLen {
			best = m.MimeType
			bestLen = len(ext)
		}
	}
	if best != "" {
		return best, nil
	}
	if allowUnknown {
		return types.UnknownMimeType, nil
	}
	return "", types.NewArchiveError(types.ErrUnknownMime,
		fmt.Sprintf("unknown mime-type for file %q", filename), nil)
}
