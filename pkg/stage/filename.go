package stage

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ngas-archive/ngas/pkg/types"
)

// uniqueNo is the process-local monotonic counter folded into staging names.
var uniqueNo atomic.Int64

// GenUniqueFilename generates a staging filename of the form
//
//	<timestamp>-<unique index>-<basename>
//
// URL metacharacters are replaced and the result is middle-truncated to
// MaxFilenameLen characters with a "__" marker when needed.
func GenUniqueFilename(filename string) string {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000")
	name := ts + "-" + fmt.Sprintf("%d", uniqueNo.Add(1)) + "-" + filepath.Base(filename)
	name = strings.NewReplacer("?", "_", "=", "_", "&", "_").Replace(name)

	if len(name) > types.MaxFilenameLen {
		half := types.MaxFilenameLen / 2
		name = name[:types.MaxFilenameLen-half-2] + "__" + name[len(name)-half:]
	}
	return name
}
