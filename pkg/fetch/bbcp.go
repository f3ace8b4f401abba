package fetch

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ngas-archive/ngas/pkg/log"
	"github.com/ngas-archive/ngas/pkg/types"
)

// BBCPParams carries the transport options of one bbcp transfer.
type BBCPParams struct {
	Port       int
	WinSize    string
	NumStreams int

	// Binary overrides the bbcp executable; empty resolves "bbcp" via PATH.
	Binary string
}

// BBCPArgs builds the fixed bbcp argument vector for a transfer. The c32z
// checksum is emitted on stdout so the transfer verifies end to end.
func BBCPArgs(src, dst string, p BBCPParams) []string {
	args := []string{"-f", "-V", "-e", "-E", "c32z=/dev/stdout"}
	if p.WinSize != "" {
		args = append(args, "-w", p.WinSize)
	}
	if p.NumStreams > 0 {
		args = append(args, "-s", strconv.Itoa(p.NumStreams))
	}
	args = append(args, "-P", "2")
	if p.Port > 0 {
		args = append(args, "-Z", strconv.Itoa(p.Port))
	} else {
		args = append(args, "-z")
	}
	return append(args, src, dst)
}

// BBCPTransfer copies a remote file straight to the staging path with bbcp
// and returns the CRC-32 (zlib variant) bbcp computed on the sending side.
// The staging writer's loop is bypassed for this transport; the returned
// checksum stands in for the streamed one.
func BBCPTransfer(ctx context.Context, src, dst string, p BBCPParams) (uint32, error) {
	// Make an existing target writable before bbcp overwrites it.
	if _, err := os.Stat(dst); err == nil {
		if err := os.Chmod(dst, 0644); err != nil {
			return 0, types.NewArchiveError(types.ErrStagingIO, "failed to make target writable", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, types.NewArchiveError(types.ErrStagingIO, "failed to create staging directory", err)
	}

	bin := p.Binary
	if bin == "" {
		bin = "bbcp"
	}
	args := BBCPArgs(src, dst, p)
	log.WithComponent("fetch").Info().
		Str("command", bin+" "+strings.Join(args, " ")).
		Msg("executing external transfer")

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, types.NewArchiveError(types.ErrSourceIO,
			fmt.Sprintf("bbcp failed: %s", strings.TrimSpace(stderr.String())), err)
	}

	crc, err := ParseC32z(stdout.String())
	if err != nil {
		return 0, types.NewArchiveError(types.ErrSourceIO, "failed to parse bbcp checksum output", err)
	}

	// The progress tail ends with a summary line worth keeping.
	if lines := strings.Split(strings.TrimRight(stderr.String(), "\n"), "\n"); len(lines) > 0 {
		log.WithComponent("fetch").Debug().Str("bbcp", lines[len(lines)-1]).Msg("transfer finished")
	}
	return crc, nil
}

// ParseC32z extracts the CRC-32 from bbcp's c32z stdout line: the last
// whitespace token is the checksum as 8 hex digits, a big-endian 4-byte
// integer.
func ParseC32z(out string) (uint32, error) {
	var line string
	for _, l := range strings.Split(out, "\n") {
		if strings.TrimSpace(l) != "" {
			line = l
		}
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty c32z output")
	}
	tok := fields[len(fields)-1]
	raw, err := hex.DecodeString(tok)
	if err != nil || len(raw) != 4 {
		return 0, fmt.Errorf("malformed c32z token %q", tok)
	}
	return binary.BigEndian.Uint32(raw), nil
}
