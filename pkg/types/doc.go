/*
Package types defines the core data structures used throughout NGAS.

This package contains the fundamental types of the archive domain model:
requests, disks, file records, DAPI results, server states and the error
taxonomy. These types are used by all other packages for catalog persistence,
request handling and telemetry.

# Core Types

Archive Request:
  - Request: One archive operation (push or pull), from HTTP parsing to
    catalog commit
  - ServerState / ServerSubState: ONLINE/OFFLINE and IDLE/BUSY gating

Catalog Rows:
  - DiskInfo: One row of ngas_disks (mount, slot, stats, completion flag)
  - FileRecord: One row of ngas_files (identity, sizes, checksum, dates)
  - FileKey: The (disk_id, file_id, file_version) composite key

Plug-In Results:
  - DapiResult: Final file identity and destination as chosen by a
    data-archive plug-in

Errors:
  - ErrorCode / ArchiveError: The archive failure taxonomy
    (INVALID_REQUEST, NO_VOLUMES, SOURCE_IO, STAGING_IO, SHORT_READ,
    CHECKSUM_MISMATCH, DAPI_FAILURE, CATALOG_FAILURE, UNKNOWN_MIME)

All catalog-bound types are JSON-serializable; field tags match the
ngas_disks and ngas_files column names.
*/
package types
