/*
Package server exposes the NGAS archive commands over HTTP.

Commands respond 200 with an XML status document on success and 4xx/5xx
with a FAILURE document on error; the error taxonomy decides the class
(client faults like INVALID_REQUEST and UNKNOWN_MIME map to 400,
everything else to 500).

Routes:

	/QARCHIVE   archive push (body is the file) or pull (?file_uri=...);
	            a multipart/mixed body routes to the container path
	/BBCPARC    archive pull through the external bbcp binary
	            (?fileUri=...&bport=...&bwinsize=...&bnum_streams=...)
	/CARCHIVE   container archive of a multipart/mixed body
	/STATUS     server state document
	/metrics    Prometheus exposition
	/health     component health JSON

Push requests declare their MIME type via Content-Type, their length via
Content-Length, and optionally an expected CRC-32 via X-NGAS-Checksum,
which the receiver must match or fail the archive.
*/
package server
