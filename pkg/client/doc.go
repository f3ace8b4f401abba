/*
Package client implements the client side of the NGAS archive protocol for
CLI usage: archive push (the file as the request body), archive pull (the
server fetches a remote URI), container push of a whole directory tree,
and BBCP pull triggering.

Replies are the server's XML status documents, parsed into ArchiveStatus.
A non-200 reply returns both the parsed document and an error carrying the
server's message.
*/
package client
