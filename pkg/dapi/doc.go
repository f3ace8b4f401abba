/*
Package dapi dispatches archive requests to data-archive plug-ins.

A plug-in names and finalises a staged file for one MIME type: given the
request (staging path, target volume, URI) it returns the file's catalog
identity and the absolute destination path under the volume mount.
Plug-ins register in a Registry at startup; dispatch is a map lookup
through the configured MIME-to-plug-in mapping, with the generic plug-in
as fallback.

The coordinator treats the returned destination path as advisory for the
move only; identity fields go into the catalog verbatim, except that a
file_version encoded in the request URI overrides the plug-in's version.
*/
package dapi
