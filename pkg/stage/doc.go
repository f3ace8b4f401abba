/*
Package stage implements the staging-area write path of the archive core.

An incoming byte stream (the body of an archive push, an HTTP pull
response, or a local file) is written block by block to a staging file on
the target volume while a CRC-32 (zlib variant, seed 0) is folded into the
same loop. The writer measures per-block read and write latency and counts
blocks slower than 512 KiB/s as slow-network or slow-disk events, surfaced
as a single warning at the end of the transfer.

# Receive Loop

	remaining = declared size, or a generous bound for unknown-size sources
	loop:
	  read up to min(blockSize, remaining)
	  fold block into CRC, write block to staging file
	  empty read within the idle window -> sleep 50 ms, retry
	  empty read past the idle window   -> terminate

A declared size that is not fully delivered fails with SHORT_READ; an
expected CRC from the request that differs from the computed one fails with
CHECKSUM_MISMATCH. Unknown-size sources end at EOF or after the 30 s idle
window.

The slot lock passed in Options is held for the entire receive, so
concurrent archives onto the same volume serialize their disk writes.

# Staging Filenames

GenUniqueFilename builds <timestamp>-<counter>-<basename> names, bounded to
MaxFilenameLen characters by middle truncation with a "__" marker.
*/
package stage
