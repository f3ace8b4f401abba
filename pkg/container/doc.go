/*
Package container serialises a directory tree as one MIME-multipart body
and parses such bodies back into filesystem trees.

A container archives a directory as one logical unit carrying many stored
files. On the send side every regular file becomes a part with
Content-Type, Content-Disposition and Content-Length headers; nested
directories become nested multiparts. The total body length is computable
before any file data is read, so the enclosing POST can carry an exact
Content-Length.

On the receive side the body is parsed with a streaming reader that writes
each leaf part directly to disk under the supplied base directory,
preserving the sender's structure. Containers may be arbitrarily large;
neither side ever materialises a whole part in memory.

Part names are validated against path traversal before any directory or
file is created.
*/
package container
