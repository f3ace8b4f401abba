/*
Package catalog provides the BoltDB-backed catalog gateway for NGAS.

The catalog is the system of record for managed disks and archived files.
This package implements the gateway contract the archive core consumes:
single-statement-equivalent reads and updates against two buckets mirroring
the ngas_disks and ngas_files catalog tables, with JSON values.

# Bucket Structure

	ngas_disks   key: disk_id                          value: DiskInfo
	ngas_files   key: disk_id|file_id|file_version     value: FileRecord

# Transaction Model

Reads run in db.View, updates in db.Update. No multi-bucket transaction is
offered; the archive coordinator orders its writes so a crash between the
file insert and the disk-stats update leaves an over-counted file rather
than a catalog that forgets an on-disk file. UpdateDiskStats performs its
read-modify-write inside one update transaction, so concurrent stat bumps
for the same disk serialize here.

# Usage

	store, err := catalog.NewBoltStore(dataDir)
	...
	defer store.Close()

	disks, err := store.AvailableDisks(hostID)
*/
package catalog
