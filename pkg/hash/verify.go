package hash

import "fmt"

// VerifyIntegrity walks the directory and every bucket, checking the
// structural invariants of the table: the directory's bucket-family
// invariant, per-bucket occupancy bounds, and that every live entry hashes
// back to a slot owned by the bucket it lives in.
func (table *HashTable) VerifyIntegrity() error {
	table.rwlock.RLock()
	defer table.rwlock.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return err
	}
	defer table.pager.PutPage(dir.page)

	if err = dir.VerifyIntegrity(); err != nil {
		return err
	}

	checked := make(map[int64]bool)
	for slot := int64(0); slot < dir.Size(); slot++ {
		pn := dir.GetBucketPagenum(slot)
		if checked[pn] {
			continue
		}
		checked[pn] = true
		if err = table.verifyBucket(dir, slot, pn); err != nil {
			return err
		}
	}
	return nil
}

// verifyBucket checks the bucket on the given pagenum against the directory.
func (table *HashTable) verifyBucket(dir *HashDirectory, slot int64, pn int64) error {
	bucket, err := table.fetchBucket(pn)
	if err != nil {
		return fmt.Errorf("slot %d: %w", slot, err)
	}
	defer table.pager.PutPage(bucket.page)
	bucket.RLock()
	defer bucket.RUnlock()

	if n := bucket.NumReadable(); n > table.bucketCapacity {
		return fmt.Errorf("bucket page %d holds %d entries, capacity %d", pn, n, table.bucketCapacity)
	}
	for _, e := range bucket.Select() {
		idx := int64(table.hash(e.Key)) & (dir.Size() - 1)
		if owner := dir.GetBucketPagenum(idx); owner != pn {
			return fmt.Errorf("entry with key %d lives on page %d but hashes to slot %d owned by page %d",
				e.Key, pn, idx, owner)
		}
	}
	return nil
}
