package pager_test

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"hatchdb/pkg/config"
	"hatchdb/pkg/pager"
)

// =====================================================================
// HELPERS
// =====================================================================

// getTempDbFile creates a random file in the OS's temp directory to be used
// for testing, returning the file's name.
func getTempDbFile(t *testing.T) string {
	tmpfile, err := os.CreateTemp("", "*.db")
	if err != nil {
		t.Fatal(err)
	}
	_ = tmpfile.Close()
	t.Cleanup(func() {
		_ = os.Remove(tmpfile.Name())
	})
	return tmpfile.Name()
}

// setupPager creates a new pager and checks for creation errors.
func setupPager(t *testing.T) *pager.Pager {
	t.Parallel()
	p, err := pager.New(getTempDbFile(t))
	if err != nil {
		t.Fatal("Failed to create a new pager:", err)
	}
	t.Cleanup(func() {
		// Don't check close error since we are only concerned with resource cleanup
		_ = p.Close()
	})
	return p
}

// getNewPage wraps a call to Pager.GetNewPage() with error checking.
func getNewPage(t *testing.T, p *pager.Pager) *pager.Page {
	page, err := p.GetNewPage()
	if err != nil {
		t.Fatal("Error getting new page:", err)
	}
	return page
}

// =====================================================================
// TESTS
// =====================================================================

func TestPager(t *testing.T) {
	t.Run("NewPager", testNewPager)
	t.Run("GetNewPage", testGetNewPage)
	t.Run("GetPagePagenumber", testGetPagePagenumber)
	t.Run("InvalidPagenumber", testInvalidPagenumber)
	t.Run("MaxGetNewPages", testMaxGetNewPages)
	t.Run("FlushAndReopen", testFlushAndReopen)
	t.Run("TooManyPuts", testTooManyPuts)
	t.Run("PincountsOnClose", testPincountsOnClose)
	t.Run("DeletePage", testDeletePage)
	t.Run("DeletePinnedPage", testDeletePinnedPage)
	t.Run("ReuseDeletedPagenum", testReuseDeletedPagenum)
}

// Sets up a new pager and then closes it, checking that no errors
// happen along the way.
func testNewPager(t *testing.T) {
	_ = setupPager(t)
}

// New pages get sequential pagenums starting from 0.
func testGetNewPage(t *testing.T) {
	p := setupPager(t)
	for i := int64(0); i < 3; i++ {
		page := getNewPage(t, p)
		if page.GetPageNum() != i {
			t.Fatalf("Expected pagenum %d, got %d", i, page.GetPageNum())
		}
		if err := p.PutPage(page); err != nil {
			t.Fatal("Error putting page:", err)
		}
	}
	if p.GetNumPages() != 3 {
		t.Fatalf("Expected 3 pages, got %d", p.GetNumPages())
	}
}

// Getting an existing page returns the same pagenum and data.
func testGetPagePagenumber(t *testing.T) {
	p := setupPager(t)
	page := getNewPage(t, p)
	pagenum := page.GetPageNum()
	payload := []byte("deadbeef")
	page.Update(payload, 0, int64(len(payload)))
	if err := p.PutPage(page); err != nil {
		t.Fatal("Error putting page:", err)
	}

	fetched, err := p.GetPage(pagenum)
	if err != nil {
		t.Fatal("Error getting existing page:", err)
	}
	defer p.PutPage(fetched)
	if fetched.GetPageNum() != pagenum {
		t.Fatalf("Expected pagenum %d, got %d", pagenum, fetched.GetPageNum())
	}
	if !bytes.Equal(fetched.GetData()[:len(payload)], payload) {
		t.Fatal("Page data was not preserved")
	}
}

// Out-of-range pagenums are rejected.
func testInvalidPagenumber(t *testing.T) {
	p := setupPager(t)
	if _, err := p.GetPage(-1); !errors.Is(err, pager.ErrInvalidPagenum) {
		t.Fatalf("Expected ErrInvalidPagenum for a negative pagenum, got %v", err)
	}
	if _, err := p.GetPage(0); !errors.Is(err, pager.ErrInvalidPagenum) {
		t.Fatalf("Expected ErrInvalidPagenum for an unallocated pagenum, got %v", err)
	}
}

// Pinning more pages than the buffer holds runs out of frames.
func testMaxGetNewPages(t *testing.T) {
	p := setupPager(t)
	pages := make([]*pager.Page, 0, config.MaxPagesInBuffer)
	for i := 0; i < config.MaxPagesInBuffer; i++ {
		pages = append(pages, getNewPage(t, p))
	}
	if _, err := p.GetNewPage(); !errors.Is(err, pager.ErrRanOutOfPages) {
		t.Fatalf("Expected ErrRanOutOfPages, got %v", err)
	}
	for _, page := range pages {
		if err := p.PutPage(page); err != nil {
			t.Fatal("Error putting page:", err)
		}
	}
}

// Dirty pages survive a close and reopen.
func testFlushAndReopen(t *testing.T) {
	t.Parallel()
	dbName := getTempDbFile(t)
	p, err := pager.New(dbName)
	if err != nil {
		t.Fatal("Failed to create a new pager:", err)
	}
	page := getNewPage(t, p)
	pagenum := page.GetPageNum()
	payload := []byte("persist me")
	page.Update(payload, 0, int64(len(payload)))
	if err = p.PutPage(page); err != nil {
		t.Fatal("Error putting page:", err)
	}
	if err = p.Close(); err != nil {
		t.Fatal("Failed to close pager:", err)
	}

	reopened, err := pager.New(dbName)
	if err != nil {
		t.Fatal("Failed to reopen pager:", err)
	}
	t.Cleanup(func() {
		_ = reopened.Close()
	})
	fetched, err := reopened.GetPage(pagenum)
	if err != nil {
		t.Fatal("Error getting page after reopen:", err)
	}
	defer reopened.PutPage(fetched)
	if !bytes.Equal(fetched.GetData()[:len(payload)], payload) {
		t.Fatal("Page data did not survive the reopen")
	}
}

// Unbalanced puts are reported.
func testTooManyPuts(t *testing.T) {
	p := setupPager(t)
	page := getNewPage(t, p)
	if err := p.PutPage(page); err != nil {
		t.Fatal("Error putting page:", err)
	}
	if err := p.PutPage(page); err == nil {
		t.Fatal("Expected an error when putting a page more times than it was got")
	}
}

// Closing with pinned pages is an error.
func testPincountsOnClose(t *testing.T) {
	p := setupPager(t)
	page := getNewPage(t, p)
	if err := p.Close(); err == nil {
		t.Fatal("Expected close to fail while a page is still pinned")
	}
	if err := p.PutPage(page); err != nil {
		t.Fatal("Error putting page:", err)
	}
}

// A deleted page can no longer be fetched.
func testDeletePage(t *testing.T) {
	p := setupPager(t)
	page := getNewPage(t, p)
	pagenum := page.GetPageNum()
	if err := p.PutPage(page); err != nil {
		t.Fatal("Error putting page:", err)
	}
	if err := p.DeletePage(pagenum); err != nil {
		t.Fatal("Error deleting page:", err)
	}
	if _, err := p.GetPage(pagenum); !errors.Is(err, pager.ErrInvalidPagenum) {
		t.Fatalf("Expected ErrInvalidPagenum for a deleted page, got %v", err)
	}
	if err := p.DeletePage(pagenum); !errors.Is(err, pager.ErrInvalidPagenum) {
		t.Fatalf("Expected ErrInvalidPagenum for a double delete, got %v", err)
	}
}

// A pinned page cannot be deleted.
func testDeletePinnedPage(t *testing.T) {
	p := setupPager(t)
	page := getNewPage(t, p)
	if err := p.DeletePage(page.GetPageNum()); err == nil {
		t.Fatal("Expected an error when deleting a pinned page")
	}
	if err := p.PutPage(page); err != nil {
		t.Fatal("Error putting page:", err)
	}
}

// GetNewPage recycles deleted pagenums before extending the file, and a
// recycled page comes back zeroed.
func testReuseDeletedPagenum(t *testing.T) {
	p := setupPager(t)
	first := getNewPage(t, p)
	first.Update([]byte("stale data"), 0, 10)
	pagenum := first.GetPageNum()
	if err := p.PutPage(first); err != nil {
		t.Fatal("Error putting page:", err)
	}
	if err := p.DeletePage(pagenum); err != nil {
		t.Fatal("Error deleting page:", err)
	}

	recycled := getNewPage(t, p)
	defer p.PutPage(recycled)
	if recycled.GetPageNum() != pagenum {
		t.Fatalf("Expected recycled pagenum %d, got %d", pagenum, recycled.GetPageNum())
	}
	if !bytes.Equal(recycled.GetData()[:10], make([]byte, 10)) {
		t.Fatal("Recycled page still holds stale data")
	}
	if p.GetNumPages() != 1 {
		t.Fatalf("Expected recycling to not grow the pager, got %d pages", p.GetNumPages())
	}
}
