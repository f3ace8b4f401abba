/*
Package fetch opens remote byte sources for archive pull requests.

For http(s), ftp and file URIs, Open returns a readable source with the
declared content length when the remote side provides one, ready to hand to
the staging writer. Plain paths open as local files. Passwords embedded in
ftp URIs are blanked before any URI reaches a log line.

BBCP transfers are different: the external bbcp binary writes straight to
the staging path, bypassing the staging writer's loop, and emits a
CRC-32 (zlib variant) checksum on stdout in its c32z mode. BBCPTransfer
invokes the fixed argument vector, fails on a non-zero exit with the
process's stderr, and returns the parsed checksum for the catalog as if the
staging writer had computed it.
*/
package fetch
