/*
Package log provides structured logging for NGAS using zerolog.

The package wraps zerolog behind a small API: a global logger initialized
once at startup and child-logger helpers scoped to the entities the
archive path deals in. Output is either human-readable console format or
JSON for log aggregation; when a host id is configured it is stamped on
every line, so output from several archive hosts can be merged.

# Usage

Initialize once in main:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, HostID: cfg.HostID})

Create component loggers in long-lived objects:

	logger := log.WithComponent("archive")
	logger.Info().Str("staging_file", path).Msg("saved data in staging file")

Entity-scoped helpers attach the correlating field for their scope:
WithRequestID for one archive operation, WithDiskID for one managed
volume, WithFileID for one archived file.
*/
package log
