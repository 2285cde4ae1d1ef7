// Package hash implements a disk-resident extendible hash index. The
// directory and every bucket live on fixed-size pages managed by the pager;
// the HashTable controller navigates the directory, splits buckets that
// overflow, and merges buckets that empty, under a two-tier latch protocol
// (table-wide RWMutex outermost, per-page latches innermost).
package hash

import (
	"fmt"
	"sync"

	"hatchdb/pkg/pager"
)

// ErrCapacityExhausted is returned when an insert needs to split a bucket
// whose local depth is already at the maximum: too many keys share a hash
// prefix and growing the directory further cannot separate them. This is a
// structural limit, distinct from a duplicate-entry rejection.
var ErrCapacityExhausted = fmt.Errorf("hash table at capacity for this hash prefix")

// A HashTable is a database index that uses extendible hashing for quick lookups.
//
// Latch discipline: rwlock (the table latch) is held shared for lookups and
// the insert/remove fast paths and exclusive for anything that changes the
// directory's shape or its bucket-to-page mappings. Page latches are only
// ever acquired while the table latch is held, are released before their
// page is unpinned, and every fetched page is unpinned exactly once on every
// exit path.
type HashTable struct {
	directoryPN    int64        // Pagenum of the directory page, lazily created
	bucketCapacity int64        // Max live entries per bucket before it splits
	hash           HashFunc     // Hashes keys to directory indices
	compare        Comparator   // Key equality / ordering
	pager          *pager.Pager // The pager associated with the Hash Table
	rwlock         sync.RWMutex // Table latch
	dirMtx         sync.Mutex   // Serializes lazy creation of the directory page
}

// NewHashTable returns a HashTable backed by the given pager, using xxHash
// and integer key comparison, with buckets as large as a page allows.
func NewHashTable(pager *pager.Pager) *HashTable {
	return NewHashTableWithCapacity(pager, MAX_BUCKET_SIZE)
}

// NewHashTableWithCapacity is NewHashTable with a custom bucket capacity.
// The capacity is not persisted; reopening an index must use the capacity it
// was created with.
func NewHashTableWithCapacity(p *pager.Pager, capacity int64) *HashTable {
	return NewHashTableWith(p, capacity, XxHasher, CompareInt64)
}

// NewHashTableWith is NewHashTable with a custom bucket capacity, hash
// function and key comparator. The hash function must stay the same across
// every open of the same index file.
func NewHashTableWith(p *pager.Pager, capacity int64, hashFn HashFunc, cmp Comparator) *HashTable {
	if capacity < 1 || capacity > MAX_BUCKET_SIZE {
		capacity = MAX_BUCKET_SIZE
	}
	table := &HashTable{
		directoryPN:    pager.NoPage,
		bucketCapacity: capacity,
		hash:           hashFn,
		compare:        cmp,
		pager:          p,
	}
	// A non-empty backing file already holds a directory on its first page.
	if p.GetNumPages() > 0 {
		table.directoryPN = DIRECTORY_PN
	}
	return table
}

// GetPager returns the pager backing the Hash Table.
func (table *HashTable) GetPager() *pager.Pager {
	return table.pager
}

// GetDepth returns the directory's current global depth.
func (table *HashTable) GetDepth() (int64, error) {
	table.rwlock.RLock()
	defer table.rwlock.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return 0, err
	}
	defer table.pager.PutPage(dir.page)
	return dir.GetGlobalDepth(), nil
}

// Find returns the values of every entry with the given key.
// An absent key yields an empty slice, not an error.
func (table *HashTable) Find(key int64) ([]int64, error) {
	table.rwlock.RLock()
	defer table.rwlock.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return nil, err
	}
	defer table.pager.PutPage(dir.page)

	bucket, err := table.fetchBucket(dir.GetBucketPagenum(table.keyToDirectoryIndex(key, dir)))
	if err != nil {
		return nil, err
	}
	defer table.pager.PutPage(bucket.page)

	bucket.RLock()
	values := bucket.GetValue(key, table.compare)
	bucket.RUnlock()
	return values, nil
}

// Insert adds a (key, value) pair to the Hash Table, splitting the target
// bucket (and growing the directory) as needed. Returns ErrDuplicateEntry if
// the exact pair is already present, or ErrCapacityExhausted if the bucket
// cannot split any further.
//
// The split-then-retry is an explicit loop rather than recursion: after a
// split the receiving bucket can still be full when many keys collide on a
// shared hash prefix, so each retry may trigger another split until a local
// depth hits MAX_GLOBAL_DEPTH.
func (table *HashTable) Insert(key int64, value int64) error {
	for {
		needSplit, err := table.insertAttempt(key, value)
		if err != nil || !needSplit {
			return err
		}
		if err = table.splitInsert(key); err != nil {
			return err
		}
	}
}

// insertAttempt is the insert fast path: under a shared table latch, insert
// into the target bucket if it has room. Reports needSplit if the bucket is
// full, in which case nothing was modified.
func (table *HashTable) insertAttempt(key int64, value int64) (needSplit bool, err error) {
	table.rwlock.RLock()
	defer table.rwlock.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return false, err
	}
	defer table.pager.PutPage(dir.page)

	bucket, err := table.fetchBucket(dir.GetBucketPagenum(table.keyToDirectoryIndex(key, dir)))
	if err != nil {
		return false, err
	}
	defer table.pager.PutPage(bucket.page)

	bucket.WLock()
	defer bucket.WUnlock()
	if bucket.IsFull() {
		return true, nil
	}
	return false, bucket.Insert(key, value, table.compare)
}

// splitInsert splits the bucket owning the given key's directory slot,
// under an exclusive table latch. The directory may have changed since the
// caller observed the full bucket, so all state is re-fetched here.
func (table *HashTable) splitInsert(key int64) error {
	table.rwlock.Lock()
	defer table.rwlock.Unlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return err
	}
	defer table.pager.PutPage(dir.page)

	splitIdx := table.keyToDirectoryIndex(key, dir)
	if dir.GetLocalDepth(splitIdx) >= MAX_GLOBAL_DEPTH {
		return ErrCapacityExhausted
	}

	// Fetch the overflowing bucket and allocate its image up front: page
	// fetch/allocation are the only fallible steps, and they must abort the
	// split before any page has been mutated.
	splitPN := dir.GetBucketPagenum(splitIdx)
	splitBucket, err := table.fetchBucket(splitPN)
	if err != nil {
		return err
	}
	defer table.pager.PutPage(splitBucket.page)
	imageBucket, err := newHashBucket(table.pager, table.bucketCapacity)
	if err != nil {
		return err
	}
	defer table.pager.PutPage(imageBucket.page)
	imagePN := imageBucket.page.GetPageNum()

	// Double the directory if the bucket already uses every directory bit.
	if dir.GetLocalDepth(splitIdx) == dir.GetGlobalDepth() {
		dir.IncrementGlobalDepth()
	}
	dir.IncrLocalDepth(splitIdx)
	newDepth := dir.GetLocalDepth(splitIdx)

	// Snapshot the overflowing bucket's entries and reset it.
	splitBucket.WLock()
	defer splitBucket.WUnlock()
	imageBucket.WLock()
	defer imageBucket.WUnlock()
	entries := splitBucket.SnapshotAndReset()

	// Point the split image's slot at the new bucket.
	imageIdx := dir.SplitImageIndex(splitIdx)
	dir.SetLocalDepth(imageIdx, newDepth)
	dir.SetBucketPagenum(imageIdx, imagePN)

	// Re-point every slot of the old bucket's family: with the extra depth
	// bit, the family partitions into the split bucket's and the image's.
	// Sweeping by the low newDepth bits covers the whole family at any
	// directory size.
	mask := (int64(1) << newDepth) - 1
	for i := int64(0); i < dir.Size(); i++ {
		switch i & mask {
		case splitIdx & mask:
			dir.SetBucketPagenum(i, splitPN)
			dir.SetLocalDepth(i, newDepth)
		case imageIdx & mask:
			dir.SetBucketPagenum(i, imagePN)
			dir.SetLocalDepth(i, newDepth)
		}
	}

	// Redistribute the snapshotted entries between the two buckets using the
	// new local-depth mask. An entry that lands in neither is an unrecoverable
	// defect, not an error to swallow.
	for _, e := range entries {
		var dst *HashBucket
		switch int64(table.hash(e.Key)) & mask {
		case splitIdx & mask:
			dst = splitBucket
		case imageIdx & mask:
			dst = imageBucket
		default:
			panic(fmt.Sprintf("hash: entry with key %d rehashes to neither post-split bucket", e.Key))
		}
		if err := dst.Insert(e.Key, e.Value, table.compare); err != nil {
			panic(fmt.Sprintf("hash: failed to redistribute entry with key %d: %v", e.Key, err))
		}
	}
	return nil
}

// Remove deletes the entry matching both the given key and value. If the
// deletion empties the bucket, a best-effort merge with the bucket's split
// image runs afterwards under its own exclusive latch; the delete has
// already succeeded whether or not the merge does anything.
func (table *HashTable) Remove(key int64, value int64) error {
	table.rwlock.RLock()
	dir, err := table.fetchDirectory()
	if err != nil {
		table.rwlock.RUnlock()
		return err
	}
	targetIdx := table.keyToDirectoryIndex(key, dir)
	bucket, err := table.fetchBucket(dir.GetBucketPagenum(targetIdx))
	if err != nil {
		table.pager.PutPage(dir.page)
		table.rwlock.RUnlock()
		return err
	}

	bucket.WLock()
	err = bucket.Remove(key, value, table.compare)
	empty := bucket.IsEmpty()
	bucket.WUnlock()

	table.pager.PutPage(bucket.page)
	table.pager.PutPage(dir.page)
	table.rwlock.RUnlock()

	// A failed remove never changes the bucket, so only a successful one can
	// have emptied it; don't take the exclusive latch for nothing.
	if err == nil && empty {
		table.merge(targetIdx)
	}
	return err
}

// merge coalesces the (empty) bucket at the given directory slot into its
// split image, then shrinks the directory as far as possible. Everything is
// re-validated under the exclusive table latch since the state may have
// changed after the triggering delete; when any precondition no longer
// holds, merge is a no-op.
func (table *HashTable) merge(targetIdx int64) {
	table.rwlock.Lock()
	defer table.rwlock.Unlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return
	}
	defer table.pager.PutPage(dir.page)

	// The directory may have shrunk past the slot since the delete.
	if targetIdx >= dir.Size() {
		return
	}
	// A depth-0 bucket is the last one standing; nothing to merge into.
	localDepth := dir.GetLocalDepth(targetIdx)
	if localDepth == 0 {
		return
	}
	// Merging is only legal between symmetric siblings.
	imageIdx := dir.SplitImageIndex(targetIdx)
	if dir.GetLocalDepth(imageIdx) != localDepth {
		return
	}

	// Skip if another operation refilled the bucket.
	targetPN := dir.GetBucketPagenum(targetIdx)
	bucket, err := table.fetchBucket(targetPN)
	if err != nil {
		return
	}
	bucket.RLock()
	empty := bucket.IsEmpty()
	bucket.RUnlock()
	table.pager.PutPage(bucket.page)
	if !empty {
		return
	}

	// Drop the empty bucket's page and fold its slots into the image's.
	if err = table.pager.DeletePage(targetPN); err != nil {
		return
	}
	imagePN := dir.GetBucketPagenum(imageIdx)
	dir.SetBucketPagenum(targetIdx, imagePN)
	dir.DecrLocalDepth(targetIdx)
	dir.DecrLocalDepth(imageIdx)
	newDepth := dir.GetLocalDepth(targetIdx)
	for i := int64(0); i < dir.Size(); i++ {
		if pn := dir.GetBucketPagenum(i); pn == targetPN || pn == imagePN {
			dir.SetBucketPagenum(i, imagePN)
			dir.SetLocalDepth(i, newDepth)
		}
	}

	// Shed every directory bit no bucket needs anymore.
	for dir.CanShrink() {
		dir.DecrementGlobalDepth()
	}
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////// HashTable Helper Functions ///////////////////////
/////////////////////////////////////////////////////////////////////////////

// keyToDirectoryIndex masks the key's hash down to the directory's slot range.
func (table *HashTable) keyToDirectoryIndex(key int64, dir *HashDirectory) int64 {
	return int64(table.hash(key)) & (dir.Size() - 1)
}

// fetchDirectory returns the pinned directory, creating it together with one
// empty bucket on first access. Creation is double-checked under dirMtx so
// concurrent first operations race safely; the directory page, once created,
// lives for the rest of the table's lifetime. The caller must put the
// directory's page exactly once.
func (table *HashTable) fetchDirectory() (*HashDirectory, error) {
	table.dirMtx.Lock()
	if table.directoryPN == pager.NoPage {
		if err := table.bootstrapDirectory(); err != nil {
			table.dirMtx.Unlock()
			return nil, err
		}
	}
	table.dirMtx.Unlock()

	page, err := table.pager.GetPage(table.directoryPN)
	if err != nil {
		return nil, err
	}
	return pageToDirectory(page), nil
}

// bootstrapDirectory creates the directory page and its first bucket at
// global depth 0. dirMtx must be held on entry.
func (table *HashTable) bootstrapDirectory() error {
	dirPage, err := table.pager.GetNewPage()
	if err != nil {
		return err
	}
	dir := initDirectory(dirPage)
	bucket, err := newHashBucket(table.pager, table.bucketCapacity)
	if err != nil {
		table.pager.PutPage(dirPage)
		return err
	}
	dir.SetBucketPagenum(0, bucket.page.GetPageNum())
	dir.SetLocalDepth(0, 0)
	table.pager.PutPage(bucket.page)
	table.directoryPN = dirPage.GetPageNum()
	return table.pager.PutPage(dirPage)
}

// fetchBucket returns the pinned bucket living on the given pagenum.
// The caller must put the bucket's page exactly once.
func (table *HashTable) fetchBucket(pagenum int64) (*HashBucket, error) {
	page, err := table.pager.GetPage(pagenum)
	if err != nil {
		return nil, err
	}
	return pageToBucket(page, table.bucketCapacity), nil
}
