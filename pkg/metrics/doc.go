/*
Package metrics provides Prometheus instrumentation for the archive path.

Collectors are package-level and registered in init; the archive
coordinator and staging writer bump counters inline, while a background
Collector refreshes the catalog gauges (disk counts, files, bytes stored)
every 15 seconds.

Exposed series:

	ngas_disks_total{state}                     managed disks, open vs completed
	ngas_files_total                            catalogued files
	ngas_bytes_stored_total                     bytes across all disks
	ngas_archive_requests_total{command,status} request outcomes
	ngas_archive_duration_seconds{command}      request latency
	ngas_archive_bytes_received_total           received payload bytes
	ngas_archive_ingest_rate_bytes_per_second   per-request throughput
	ngas_staging_slow_reads_total               blocks under 512 KiB/s on read
	ngas_staging_slow_writes_total              blocks under 512 KiB/s on write
	ngas_checksum_mismatches_total              CRC verification failures
	ngas_disks_completed_total                  free-space completions
	ngas_subscription_pending_total             queued subscription entries

The package also carries a minimal component health registry with JSON
/health output, and a Timer helper for histogram observations.
*/
package metrics
