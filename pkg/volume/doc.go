/*
Package volume manages the set of disk volumes NGAS archives onto.

The registry is a thin layer over the catalog: it enumerates the local
host's non-completed disks, picks archive targets uniformly at random, and
owns the per-slot mutexes that serialize concurrent writes to the same
physical volume.

# Target Selection

PickTarget issues a fresh catalog query per request (no caching) and
shuffles the candidates. Random tie-breaking gives volume load balancing
without stream or storage-set bookkeeping. An empty candidate set is not an
error at this layer; the coordinator turns it into a NO_VOLUMES failure and
an operator notification.

# Slot Mutexes

One mutex per slot id, created lazily. The staging writer holds the mutex
for the whole receive, so two archives landing on the same volume never
interleave their disk writes, while archives to different volumes proceed
in parallel.

# Free Space

FreeSpaceMB probes the filesystem directly (statfs) rather than reading
catalog counters. The result is approximate by design; it only feeds the
completion-threshold check after each successful archive.
*/
package volume
