/*
Package subscription holds the trigger side of downstream file delivery.

After each successful archive the coordinator enqueues the new file's
(file id, version) pair and wakes the subscription worker. Delivery itself
is the worker's concern and out of scope here; the trigger only guarantees
that every archived file is queued exactly once per archive and that the
worker is signalled without ever blocking the archive path.
*/
package subscription
