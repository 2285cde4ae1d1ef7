package pager

import (
	"sync"
	"sync/atomic"
)

// NoPage is the pagenum for when there is no page being held
const NoPage = -1

// Page caches a page from disk and stores additional metadata.
// The rwlock is the page-level latch: it protects the page's bytes while the
// page is pinned and is always acquired after any table-level latch.
type Page struct {
	pager    *Pager       // Pointer to the pager that this page belongs to
	pagenum  int64        // Unique identifier for the page also denoting it's position stored in the pager's file
	pinCount atomic.Int64 // The number of active references to this page
	dirty    bool         // Flag on whether the page's data has changed and needs to be written to disk
	rwlock   sync.RWMutex // Reader-writer latch on the page's contents
	data     []byte       // Serialized data (the actual 4096 bytes of the page)
}

// GetPager returns the pager this page belongs to.
func (page *Page) GetPager() *Pager {
	return page.pager
}

// GetPageNum returns the page's pagenum (unique identifier).
func (page *Page) GetPageNum() int64 {
	return page.pagenum
}

// IsDirty reports whether the page's data has changed and needs to be written to disk.
func (page *Page) IsDirty() bool {
	return page.dirty
}

// SetDirty changes the dirty status of a page.
func (page *Page) SetDirty(dirty bool) {
	page.dirty = dirty
}

// GetData returns the byte data held by the page.
func (page *Page) GetData() []byte {
	return page.data
}

// Get increments the pin count, indicating that another process is using this page.
func (page *Page) Get() {
	page.pinCount.Add(1)
}

// Put decrements the pincount, indicating that a process is done using this page.
func (page *Page) Put() int64 {
	return page.pinCount.Add(-1)
}

// Update overwrites `size` bytes of this page with the given data slice at
// the specified offset, marking the page dirty. Keeping the dirty flag inside
// Update means an unpinned page's flag always matches whether its bytes
// actually changed.
func (page *Page) Update(data []byte, offset int64, size int64) {
	page.dirty = true
	copy(page.data[offset:offset+size], data)
}

// WLock grabs an exclusive latch on the page's contents.
func (page *Page) WLock() {
	page.rwlock.Lock()
}

// WUnlock releases an exclusive latch.
func (page *Page) WUnlock() {
	page.rwlock.Unlock()
}

// RLock grabs a shared latch on the page's contents.
func (page *Page) RLock() {
	page.rwlock.RLock()
}

// RUnlock releases a shared latch.
func (page *Page) RUnlock() {
	page.rwlock.RUnlock()
}
