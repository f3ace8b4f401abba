/*
Package archive implements the archive coordinator: the command handler
that turns an incoming archive request into a durably stored,
catalog-registered, integrity-checked file on a chosen volume.

# State Machine

Each request advances strictly sequentially:

	RECEIVED -> VALIDATED -> VOLUME_PICKED -> STAGING_WRITTEN
	         -> DAPI_NAMED -> MOVED -> CATALOG_WRITTEN
	         -> CACHE_NOTIFIED -> SUBSCRIPTION_TRIGGERED -> REPLIED

Validation requires a non-empty URI, archiving permitted by configuration,
and the server ONLINE; pull URIs rooted at system paths are rejected. The
target volume is a fresh random pick among the host's non-completed disks.
Staging writes stream through pkg/stage under the volume's slot mutex. The
DAPI names the final path and identity; a file_version encoded in the URI
overrides the plug-in's. The move is an atomic rename on the same mount,
overwriting an existing destination after making it writable.

Any failure past VOLUME_PICKED unlinks the staging file and leaves the
catalog untouched, with one deliberate exception: a catalog failure after
the move leaves the on-disk file in place for an external audit. The
catalog writes are ordered (file insert before disk stats) so a crash
between them over-counts rather than forgetting an on-disk file.

# Transports

Archive serves push bodies and http/https/ftp/file pulls through the
staging writer. ArchiveBBCP delegates the byte transport to the external
bbcp binary, which writes straight to the staging path and supplies the
CRC via its c32z output. ArchiveContainer unpacks a multipart container
into the staging area and archives every leaf onto the same volume.

# Server Context

The process-wide operational state (the ONLINE state and the IDLE/BUSY
substate) lives in ServerContext and moves only through
BeginRequest/EndRequest, which also admit or refuse archive commands.
*/
package archive
