package hash

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"hatchdb/pkg/entry"
	"hatchdb/pkg/pager"

	"github.com/bits-and-blooms/bitset"
)

// Error for inserting a (key, value) pair that is already present.
var ErrDuplicateEntry = errors.New("entry already exists")

// Error for removing a (key, value) pair that is not present.
var ErrKeyNotFound = errors.New("entry not found")

// errBucketFull is returned when an insert finds no free cell; the table
// controller never lets this surface (it splits instead).
var errBucketFull = errors.New("bucket is full")

// HashBucket is a page-resident bucket of an extendible hash table: a
// bounded multiset of (key, value) entries stored in fixed cells, with an
// occupancy bitmap in the page header marking which cells hold live entries.
// A removed entry just has its bit cleared; cells are never compacted.
type HashBucket struct {
	occupied *bitset.BitSet // Which entry cells hold a live entry; current only while the page latch is held
	capacity int64          // Max live entries before this bucket must split
	page     *pager.Page    // The page containing the bucket's data
}

// newHashBucket constructs a new, empty HashBucket with the given capacity
// using a new page from the specified pager.
// The new page must be put by the caller of this method.
func newHashBucket(pager *pager.Pager, capacity int64) (*HashBucket, error) {
	newPage, err := pager.GetNewPage()
	if err != nil {
		return nil, err
	}
	bucket := &HashBucket{
		occupied: bitset.From(make([]uint64, BITMAP_WORDS)),
		capacity: capacity,
		page:     newPage,
	}
	// The frame may hold stale bytes from an evicted page; writing the empty
	// bitmap makes every cell dead.
	bucket.syncBitmap()
	return bucket, nil
}

// pageToBucket wraps the given page in a HashBucket handle. The occupancy
// bitmap is not decoded here: the page bytes can change between fetching a
// bucket and latching it, so WLock/RLock decode the bitmap once the latch is
// held and the bytes are stable.
func pageToBucket(page *pager.Page, capacity int64) *HashBucket {
	return &HashBucket{
		occupied: bitset.From(make([]uint64, BITMAP_WORDS)),
		capacity: capacity,
		page:     page,
	}
}

// GetPage returns the bucket's page.
func (bucket *HashBucket) GetPage() *pager.Page {
	return bucket.page
}

// NumReadable returns the number of live entries in this bucket.
func (bucket *HashBucket) NumReadable() int64 {
	return int64(bucket.occupied.Count())
}

// IsFull reports whether the bucket has no room for another entry.
func (bucket *HashBucket) IsFull() bool {
	return bucket.NumReadable() >= bucket.capacity
}

// IsEmpty reports whether the bucket holds no live entries.
func (bucket *HashBucket) IsEmpty() bool {
	return !bucket.occupied.Any()
}

// GetValue returns the values of every live entry whose key equals the given
// key under the comparator. An absent key yields an empty slice.
func (bucket *HashBucket) GetValue(key int64, cmp Comparator) []int64 {
	values := make([]int64, 0)
	for i, ok := bucket.occupied.NextSet(0); ok; i, ok = bucket.occupied.NextSet(i + 1) {
		if e := bucket.getEntry(int64(i)); cmp(e.Key, key) == 0 {
			values = append(values, e.Value)
		}
	}
	return values
}

// Insert adds the given (key, value) pair to the bucket. Duplicate keys are
// allowed, but an exact duplicate of an existing pair is rejected with
// ErrDuplicateEntry.
func (bucket *HashBucket) Insert(key int64, value int64, cmp Comparator) error {
	for i, ok := bucket.occupied.NextSet(0); ok; i, ok = bucket.occupied.NextSet(i + 1) {
		if e := bucket.getEntry(int64(i)); cmp(e.Key, key) == 0 && e.Value == value {
			return ErrDuplicateEntry
		}
	}
	slot, ok := bucket.occupied.NextClear(0)
	if !ok || int64(slot) >= bucket.capacity {
		return errBucketFull
	}
	bucket.modifyEntry(int64(slot), entry.New(key, value))
	bucket.occupied.Set(slot)
	bucket.syncBitmap()
	return nil
}

// Remove deletes the entry matching both the given key and value, or returns
// ErrKeyNotFound if no such entry is live.
func (bucket *HashBucket) Remove(key int64, value int64, cmp Comparator) error {
	for i, ok := bucket.occupied.NextSet(0); ok; i, ok = bucket.occupied.NextSet(i + 1) {
		if e := bucket.getEntry(int64(i)); cmp(e.Key, key) == 0 && e.Value == value {
			bucket.occupied.Clear(i)
			bucket.syncBitmap()
			return nil
		}
	}
	return ErrKeyNotFound
}

// SnapshotAndReset returns every live entry and resets the bucket to empty.
// Used during a split to redistribute entries between the bucket and its
// newly created split image.
func (bucket *HashBucket) SnapshotAndReset() []entry.Entry {
	entries := bucket.Select()
	bucket.occupied.ClearAll()
	bucket.syncBitmap()
	return entries
}

// Select returns all live entries within this bucket.
func (bucket *HashBucket) Select() []entry.Entry {
	entries := make([]entry.Entry, 0, bucket.NumReadable())
	for i, ok := bucket.occupied.NextSet(0); ok; i, ok = bucket.occupied.NextSet(i + 1) {
		entries = append(entries, bucket.getEntry(int64(i)))
	}
	return entries
}

// Print writes a string-representation of this bucket and it's entries to the specified writer.
func (bucket *HashBucket) Print(w io.Writer) {
	fmt.Fprintf(w, "entries (%d):", bucket.NumReadable())
	for _, e := range bucket.Select() {
		e.Print(w)
	}
	io.WriteString(w, "\n")
}

// WLock grabs an exclusive latch on the bucket's page and decodes the
// occupancy bitmap under it, so the handle never acts on bytes written by
// an operation that latched the page first.
func (bucket *HashBucket) WLock() {
	bucket.page.WLock()
	bucket.refreshBitmap()
}

// WUnlock releases an exclusive latch on the bucket's page.
func (bucket *HashBucket) WUnlock() {
	bucket.page.WUnlock()
}

// RLock grabs a shared latch on the bucket's page and decodes the occupancy
// bitmap under it.
func (bucket *HashBucket) RLock() {
	bucket.page.RLock()
	bucket.refreshBitmap()
}

// RUnlock releases a shared latch on the bucket's page.
func (bucket *HashBucket) RUnlock() {
	bucket.page.RUnlock()
}

/////////////////////////////////////////////////////////////////////////////
///////////////////// HashBucket Helper Functions ///////////////////////////
/////////////////////////////////////////////////////////////////////////////

// entryPos gets the byte-position of the entry cell with the given index.
func entryPos(index int64) int64 {
	return BUCKET_HEADER_SIZE + index*ENTRYSIZE
}

// modifyEntry writes the given entry into the bucket's page at the given cell index.
func (bucket *HashBucket) modifyEntry(index int64, entry entry.Entry) {
	bucket.page.Update(entry.Marshal(), entryPos(index), ENTRYSIZE)
}

// getEntry returns the entry in the cell at the given index.
func (bucket *HashBucket) getEntry(index int64) entry.Entry {
	startPos := entryPos(index)
	return entry.UnmarshalEntry(bucket.page.GetData()[startPos : startPos+ENTRYSIZE])
}

// refreshBitmap re-reads the occupancy bitmap from the page header.
// The page latch must be held.
func (bucket *HashBucket) refreshBitmap() {
	words := make([]uint64, BITMAP_WORDS)
	data := bucket.page.GetData()
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(data[BITMAP_OFFSET+int64(i)*8:])
	}
	bucket.occupied = bitset.From(words)
}

// syncBitmap writes the occupancy bitmap back to the bucket's page header.
func (bucket *HashBucket) syncBitmap() {
	bitmapData := make([]byte, BUCKET_HEADER_SIZE)
	for i, word := range bucket.occupied.Bytes() {
		binary.LittleEndian.PutUint64(bitmapData[i*8:], word)
	}
	bucket.page.Update(bitmapData, BITMAP_OFFSET, BUCKET_HEADER_SIZE)
}
