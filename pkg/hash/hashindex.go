package hash

import (
	"fmt"
	"io"
	"path/filepath"

	"hatchdb/pkg/entry"
	"hatchdb/pkg/pager"
)

// HashIndex is a named index backed by a HashTable and its pager.
type HashIndex struct {
	table *HashTable   // The HashTable
	pager *pager.Pager // The pager backing this index / HashTable
}

// OpenTable opens the hash index backed by the given file, creating the file
// if it does not exist yet. The directory page itself is created lazily on
// the first operation.
func OpenTable(filename string) (*HashIndex, error) {
	return OpenTableWithCapacity(filename, MAX_BUCKET_SIZE)
}

// OpenTableWithCapacity is OpenTable with a custom bucket capacity, used to
// force frequent splits with small workloads. An index must always be opened
// with the capacity it was created with.
func OpenTableWithCapacity(filename string, capacity int64) (*HashIndex, error) {
	p, err := pager.New(filename)
	if err != nil {
		return nil, err
	}
	return &HashIndex{table: NewHashTableWithCapacity(p, capacity), pager: p}, nil
}

// GetName returns the base file name of the file backing this index's pager.
func (index *HashIndex) GetName() string {
	return filepath.Base(index.pager.GetFileName())
}

// GetPager returns the pager backing this index.
func (index *HashIndex) GetPager() *pager.Pager {
	return index.pager
}

// GetTable returns the underlying HashTable.
func (index *HashIndex) GetTable() *HashTable {
	return index.table
}

// Close flushes the index to disk and closes its backing file.
func (index *HashIndex) Close() error {
	return index.pager.Close()
}

// Find returns all values stored under the given key.
func (index *HashIndex) Find(key int64) ([]int64, error) {
	return index.table.Find(key)
}

// Insert adds the given (key, value) pair to the index.
func (index *HashIndex) Insert(key int64, value int64) error {
	return index.table.Insert(key, value)
}

// Remove deletes the entry matching both key and value from the index.
func (index *HashIndex) Remove(key int64, value int64) error {
	return index.table.Remove(key, value)
}

// Select returns every entry in the index.
func (index *HashIndex) Select() ([]entry.Entry, error) {
	table := index.table
	table.rwlock.RLock()
	defer table.rwlock.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return nil, err
	}
	defer table.pager.PutPage(dir.page)

	entries := make([]entry.Entry, 0)
	seen := make(map[int64]bool)
	for slot := int64(0); slot < dir.Size(); slot++ {
		pn := dir.GetBucketPagenum(slot)
		if seen[pn] {
			continue
		}
		seen[pn] = true
		bucket, err := table.fetchBucket(pn)
		if err != nil {
			return nil, err
		}
		bucket.RLock()
		entries = append(entries, bucket.Select()...)
		bucket.RUnlock()
		table.pager.PutPage(bucket.page)
	}
	return entries, nil
}

// VerifyIntegrity walks the table's structural invariants.
func (index *HashIndex) VerifyIntegrity() error {
	return index.table.VerifyIntegrity()
}

// Print writes a string representation of this entire index (directory and
// buckets) to the specified writer.
func (index *HashIndex) Print(w io.Writer) {
	table := index.table
	table.rwlock.RLock()
	defer table.rwlock.RUnlock()
	dir, err := table.fetchDirectory()
	if err != nil {
		return
	}
	defer table.pager.PutPage(dir.page)

	io.WriteString(w, "====\n")
	dir.Print(w)
	seen := make(map[int64]bool)
	for slot := int64(0); slot < dir.Size(); slot++ {
		pn := dir.GetBucketPagenum(slot)
		if seen[pn] {
			continue
		}
		seen[pn] = true
		bucket, err := table.fetchBucket(pn)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "====\nbucket on page %d\n", pn)
		bucket.RLock()
		bucket.Print(w)
		bucket.RUnlock()
		table.pager.PutPage(bucket.page)
	}
	io.WriteString(w, "====\n")
}

// PrintPN writes a string representation of the bucket living on the given
// pagenum to the specified writer.
func (index *HashIndex) PrintPN(pn int, w io.Writer) {
	table := index.table
	table.rwlock.RLock()
	defer table.rwlock.RUnlock()
	bucket, err := table.fetchBucket(int64(pn))
	if err != nil {
		return
	}
	bucket.RLock()
	bucket.Print(w)
	bucket.RUnlock()
	table.pager.PutPage(bucket.page)
}
