/*
Package cache notifies the cache-control subsystem of newly archived files.

When caching is active, every successful archive inserts the new file's
identity into a small BoltDB database the external cache-control worker
polls. The notifier is write-mostly from the archive path; List and Remove
exist for the consuming side.
*/
package cache
