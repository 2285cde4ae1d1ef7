package hash_test

import (
	"errors"
	"math/rand"
	"os"
	"testing"

	"hatchdb/pkg/hash"
	"hatchdb/pkg/pager"
)

// =====================================================================
// HELPERS
// =====================================================================

// Mod vals by this value to prevent hardcoding tests
var hashSalt = rand.Int63n(1000) + 1

// getTempDbFile creates a random file in the OS's temp directory to be used
// for testing, returning the file's name. The file is deleted when the test
// ends.
func getTempDbFile(t *testing.T) string {
	tmpfile, err := os.CreateTemp("", "*.db")
	if err != nil {
		t.Fatal(err)
	}
	// Since os.CreateTemp automatically opens the file, we need to close it
	_ = tmpfile.Close()
	t.Cleanup(func() {
		_ = os.Remove(tmpfile.Name())
	})
	return tmpfile.Name()
}

// setupHash creates and opens an empty HashIndex with the default bucket
// capacity and hasher.
func setupHash(t *testing.T) *hash.HashIndex {
	t.Parallel()
	index, err := hash.OpenTable(getTempDbFile(t))
	if err != nil {
		t.Fatal("Failed to create hash index:", err)
	}
	t.Cleanup(func() {
		// don't care about close error, just want to cleanup
		_ = index.Close()
	})
	return index
}

// identityHasher makes directory placement deterministic: a key's slot is
// just its low bits.
func identityHasher(key int64) uint32 {
	return uint32(key)
}

// setupTableWith creates a HashTable with a custom bucket capacity and
// hasher, used to force splits and merges with tiny workloads.
func setupTableWith(t *testing.T, capacity int64, hashFn hash.HashFunc) *hash.HashTable {
	t.Parallel()
	p, err := pager.New(getTempDbFile(t))
	if err != nil {
		t.Fatal("Failed to create pager:", err)
	}
	t.Cleanup(func() {
		_ = p.Close()
	})
	return hash.NewHashTableWith(p, capacity, hashFn, hash.CompareInt64)
}

// insertEntry tries to insert the entry (key, val) into the table,
// failing the test if the insertion errors.
func insertEntry(t *testing.T, table *hash.HashTable, key, val int64) {
	t.Helper()
	if err := table.Insert(key, val); err != nil {
		t.Fatalf("Failed to insert (%d, %d): %s", key, val, err)
	}
}

// checkFindEntry verifies that exactly the entry (key, expectedVal) is
// stored under key.
func checkFindEntry(t *testing.T, table *hash.HashTable, key, expectedVal int64) {
	t.Helper()
	values, err := table.Find(key)
	if err != nil {
		t.Fatalf("Failed to find inserted entry (%d, %d): %s", key, expectedVal, err)
	}
	if len(values) != 1 {
		t.Fatalf("Expected 1 value for key %d, found %d: %v", key, len(values), values)
	}
	if values[0] != expectedVal {
		t.Fatalf("Expected key %d to have value %d, found %d", key, expectedVal, values[0])
	}
}

// checkDepth verifies the directory's global depth.
func checkDepth(t *testing.T, table *hash.HashTable, want int64) {
	t.Helper()
	depth, err := table.GetDepth()
	if err != nil {
		t.Fatal("Failed to get global depth:", err)
	}
	if depth != want {
		t.Fatalf("Expected global depth %d, found %d", want, depth)
	}
}

// checkIntegrity runs the table's structural invariant check.
func checkIntegrity(t *testing.T, table *hash.HashTable) {
	t.Helper()
	if err := table.VerifyIntegrity(); err != nil {
		t.Fatal("Integrity check failed:", err)
	}
}

// =====================================================================
// TESTS
// =====================================================================

func TestHashInsert(t *testing.T) {
	t.Run("Ascending", testInsertAscending)
	t.Run("Random", testInsertRandom)
	t.Run("Duplicate", testInsertDuplicate)
	t.Run("MultiValue", testInsertMultiValue)
	t.Run("AbsentKey", testFindAbsentKey)
}

// Inserts ascending keys and checks that they are all retrievable.
func testInsertAscending(t *testing.T) {
	index := setupHash(t)
	table := index.GetTable()
	for i := int64(0); i < 1000; i++ {
		insertEntry(t, table, i, i%hashSalt)
	}
	for i := int64(0); i < 1000; i++ {
		checkFindEntry(t, table, i, i%hashSalt)
	}
	checkIntegrity(t, table)
}

// Inserts random unique keys and checks that they are all retrievable.
func testInsertRandom(t *testing.T) {
	index := setupHash(t)
	table := index.GetTable()
	inserted := make(map[int64]int64)
	for len(inserted) < 1000 {
		key := rand.Int63()
		if _, ok := inserted[key]; ok {
			continue
		}
		inserted[key] = key % hashSalt
		insertEntry(t, table, key, key%hashSalt)
	}
	for key, val := range inserted {
		checkFindEntry(t, table, key, val)
	}
	checkIntegrity(t, table)
}

// Inserting the same (key, value) pair twice leaves exactly one copy and the
// second insert is rejected.
func testInsertDuplicate(t *testing.T) {
	index := setupHash(t)
	table := index.GetTable()
	insertEntry(t, table, 7, 42)
	if err := table.Insert(7, 42); !errors.Is(err, hash.ErrDuplicateEntry) {
		t.Fatalf("Expected ErrDuplicateEntry on duplicate insert, got %v", err)
	}
	checkFindEntry(t, table, 7, 42)
}

// The table is a multimap: one key may map to several values, and removal
// matches on both key and value.
func testInsertMultiValue(t *testing.T) {
	index := setupHash(t)
	table := index.GetTable()
	insertEntry(t, table, 7, 1)
	insertEntry(t, table, 7, 2)
	values, err := table.Find(7)
	if err != nil {
		t.Fatal("Failed to find key:", err)
	}
	if len(values) != 2 {
		t.Fatalf("Expected 2 values for key 7, found %v", values)
	}
	if err = table.Remove(7, 1); err != nil {
		t.Fatal("Failed to remove entry:", err)
	}
	checkFindEntry(t, table, 7, 2)
}

// Looking up a key that was never inserted yields an empty result, not an error.
func testFindAbsentKey(t *testing.T) {
	index := setupHash(t)
	values, err := index.Find(1337)
	if err != nil {
		t.Fatal("Find on an absent key should not error:", err)
	}
	if len(values) != 0 {
		t.Fatalf("Expected no values for an absent key, found %v", values)
	}
}

/*
With capacity-4 buckets and an identity hasher, 64 sequential keys pack every
depth-4 bucket exactly full, and one more key forces a fifth split. Membership
must be preserved across every split along the way.
*/
func TestHashSplitting(t *testing.T) {
	table := setupTableWith(t, 4, identityHasher)
	for i := int64(0); i < 64; i++ {
		insertEntry(t, table, i, i%hashSalt)
	}
	checkDepth(t, table, 4)
	checkIntegrity(t, table)
	for i := int64(0); i < 64; i++ {
		checkFindEntry(t, table, i, i%hashSalt)
	}

	// Key 64 lands in the full bucket of keys {0, 16, 32, 48}.
	insertEntry(t, table, 64, 64%hashSalt)
	checkDepth(t, table, 5)
	checkIntegrity(t, table)
	for i := int64(0); i <= 64; i++ {
		checkFindEntry(t, table, i, i%hashSalt)
	}
}

func TestHashRemove(t *testing.T) {
	t.Run("Basic", testRemoveBasic)
	t.Run("ValueMismatch", testRemoveValueMismatch)
	t.Run("EmptyBucket", testRemoveFromEmptyBucket)
}

// Removal deletes exactly the matching entry and leaves the rest.
func testRemoveBasic(t *testing.T) {
	index := setupHash(t)
	table := index.GetTable()
	for i := int64(0); i < 100; i++ {
		insertEntry(t, table, i, i%hashSalt)
	}
	for i := int64(0); i < 100; i += 2 {
		if err := table.Remove(i, i%hashSalt); err != nil {
			t.Fatalf("Failed to remove (%d, %d): %s", i, i%hashSalt, err)
		}
	}
	for i := int64(0); i < 100; i++ {
		values, err := table.Find(i)
		if err != nil {
			t.Fatal("Find failed:", err)
		}
		if i%2 == 0 && len(values) != 0 {
			t.Fatalf("Expected key %d to be removed, found %v", i, values)
		}
		if i%2 == 1 {
			checkFindEntry(t, table, i, i%hashSalt)
		}
	}
	checkIntegrity(t, table)
}

// A failed remove on an already-empty bucket reports ErrKeyNotFound and
// leaves the table fully usable.
func testRemoveFromEmptyBucket(t *testing.T) {
	index := setupHash(t)
	table := index.GetTable()
	if err := table.Remove(7, 42); !errors.Is(err, hash.ErrKeyNotFound) {
		t.Fatalf("Expected ErrKeyNotFound on an empty bucket, got %v", err)
	}
	insertEntry(t, table, 7, 42)
	checkFindEntry(t, table, 7, 42)
	checkIntegrity(t, table)
}

// Remove matches on both key and value; a wrong value is not found.
func testRemoveValueMismatch(t *testing.T) {
	index := setupHash(t)
	table := index.GetTable()
	insertEntry(t, table, 7, 42)
	if err := table.Remove(7, 43); !errors.Is(err, hash.ErrKeyNotFound) {
		t.Fatalf("Expected ErrKeyNotFound for a value mismatch, got %v", err)
	}
	checkFindEntry(t, table, 7, 42)
}

/*
The 1000-key grow/shrink scenario, made deterministic by the identity hasher:
capacity-4 buckets grow the directory to exactly depth 8 (each depth-8 bucket
holds at most the 4 keys sharing its low byte). Removing keys 999 down to 100
empties and merges buckets pairwise, shrinking the directory, while the
remaining keys stay retrievable.
*/
func TestHashScenario(t *testing.T) {
	table := setupTableWith(t, 4, identityHasher)
	for i := int64(0); i < 1000; i++ {
		insertEntry(t, table, i, i%hashSalt)
	}
	checkDepth(t, table, 8)
	checkIntegrity(t, table)
	for i := int64(0); i < 1000; i++ {
		checkFindEntry(t, table, i, i%hashSalt)
	}

	for i := int64(999); i >= 100; i-- {
		if err := table.Remove(i, i%hashSalt); err != nil {
			t.Fatalf("Failed to remove (%d, %d): %s", i, i%hashSalt, err)
		}
	}
	depth, err := table.GetDepth()
	if err != nil {
		t.Fatal("Failed to get global depth:", err)
	}
	if depth >= 8 {
		t.Fatalf("Expected the directory to shrink below depth 8, found %d", depth)
	}
	checkIntegrity(t, table)
	for i := int64(0); i < 100; i++ {
		checkFindEntry(t, table, i, i%hashSalt)
	}
	for i := int64(100); i < 1000; i++ {
		values, findErr := table.Find(i)
		if findErr != nil {
			t.Fatal("Find failed:", findErr)
		}
		if len(values) != 0 {
			t.Fatalf("Expected key %d to be removed, found %v", i, values)
		}
	}
}

/*
Keys 0 and 256 collide on every directory bit the table can use, so with
capacity-1 buckets the second insert keeps splitting until it hits the
maximum local depth and must be rejected. The table stays usable afterwards.
*/
func TestHashCapacityExhausted(t *testing.T) {
	table := setupTableWith(t, 1, identityHasher)
	insertEntry(t, table, 0, 0)
	if err := table.Insert(256, 1); !errors.Is(err, hash.ErrCapacityExhausted) {
		t.Fatalf("Expected ErrCapacityExhausted, got %v", err)
	}
	insertEntry(t, table, 1, 1)
	checkFindEntry(t, table, 0, 0)
	checkFindEntry(t, table, 1, 1)
	checkIntegrity(t, table)
}

// Closing and reopening an index preserves its contents.
func TestHashPersistence(t *testing.T) {
	t.Parallel()
	dbName := getTempDbFile(t)
	index, err := hash.OpenTable(dbName)
	if err != nil {
		t.Fatal("Failed to create hash index:", err)
	}
	table := index.GetTable()
	for i := int64(0); i < 500; i++ {
		insertEntry(t, table, i, i%hashSalt)
	}
	if err = index.Close(); err != nil {
		t.Fatal("Failed to close hash index:", err)
	}

	reopened, err := hash.OpenTable(dbName)
	if err != nil {
		t.Fatal("Failed to reopen hash index:", err)
	}
	t.Cleanup(func() {
		_ = reopened.Close()
	})
	table = reopened.GetTable()
	for i := int64(0); i < 500; i++ {
		checkFindEntry(t, table, i, i%hashSalt)
	}
	checkIntegrity(t, table)
}
