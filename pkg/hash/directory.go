package hash

import (
	"encoding/binary"
	"fmt"
	"io"

	"hatchdb/pkg/pager"
)

// HashDirectory is the page-resident directory of an extendible hash table:
// a global depth plus, for each of the 2^globalDepth slots, the pagenum of
// the bucket owning that slot and the bucket's local depth. Multiple slots
// may alias the same bucket page; all slots whose indices agree on their low
// localDepth bits must carry the same pagenum and local depth.
type HashDirectory struct {
	globalDepth int64       // Cached copy of the global depth stored on the page
	page        *pager.Page // The page containing the directory's data
}

// initDirectory initializes a freshly allocated page as an empty directory
// at global depth 0 (a single slot).
func initDirectory(page *pager.Page) *HashDirectory {
	dir := &HashDirectory{globalDepth: 0, page: page}
	dir.updateGlobalDepth(0)
	return dir
}

// pageToDirectory decodes the given page into a HashDirectory struct.
func pageToDirectory(page *pager.Page) *HashDirectory {
	depth, _ := binary.Varint(
		page.GetData()[GLOBAL_DEPTH_OFFSET : GLOBAL_DEPTH_OFFSET+GLOBAL_DEPTH_SIZE],
	)
	return &HashDirectory{globalDepth: depth, page: page}
}

// GetPage returns the directory's page.
func (dir *HashDirectory) GetPage() *pager.Page {
	return dir.page
}

// GetGlobalDepth returns the number of low-order hash bits the directory
// currently uses to index its slots.
func (dir *HashDirectory) GetGlobalDepth() int64 {
	return dir.globalDepth
}

// Size returns the number of directory slots, always 2^globalDepth.
func (dir *HashDirectory) Size() int64 {
	return int64(1) << dir.globalDepth
}

// updateGlobalDepth writes a new global depth to the directory's page.
func (dir *HashDirectory) updateGlobalDepth(newDepth int64) {
	dir.globalDepth = newDepth
	depthData := make([]byte, GLOBAL_DEPTH_SIZE)
	binary.PutVarint(depthData, newDepth)
	dir.page.Update(depthData, GLOBAL_DEPTH_OFFSET, GLOBAL_DEPTH_SIZE)
}

// IncrementGlobalDepth doubles the directory: every existing slot record is
// duplicated into the upper half, so both halves initially alias the same
// buckets at unchanged local depths.
func (dir *HashDirectory) IncrementGlobalDepth() {
	oldSize := dir.Size()
	data := dir.page.GetData()
	for i := int64(0); i < oldSize; i++ {
		src := slotPos(i)
		record := make([]byte, DIR_SLOT_SIZE)
		copy(record, data[src:src+DIR_SLOT_SIZE])
		dir.page.Update(record, slotPos(oldSize+i), DIR_SLOT_SIZE)
	}
	dir.updateGlobalDepth(dir.globalDepth + 1)
}

// DecrementGlobalDepth halves the directory, discarding the upper half.
// Only legal when no slot's local depth needs the removed bit (see CanShrink).
func (dir *HashDirectory) DecrementGlobalDepth() {
	dir.updateGlobalDepth(dir.globalDepth - 1)
}

// GetBucketPagenum returns the pagenum of the bucket that slot points to.
func (dir *HashDirectory) GetBucketPagenum(slot int64) int64 {
	pos := slotPos(slot)
	pn, _ := binary.Varint(dir.page.GetData()[pos : pos+PN_SIZE])
	return pn
}

// SetBucketPagenum points slot at the bucket living on the given pagenum.
func (dir *HashDirectory) SetBucketPagenum(slot int64, pagenum int64) {
	pnData := make([]byte, PN_SIZE)
	binary.PutVarint(pnData, pagenum)
	dir.page.Update(pnData, slotPos(slot), PN_SIZE)
}

// GetLocalDepth returns the local depth recorded for the given slot.
func (dir *HashDirectory) GetLocalDepth(slot int64) int64 {
	return int64(dir.page.GetData()[slotPos(slot)+PN_SIZE])
}

// SetLocalDepth records a new local depth for the given slot.
func (dir *HashDirectory) SetLocalDepth(slot int64, depth int64) {
	dir.page.Update([]byte{byte(depth)}, slotPos(slot)+PN_SIZE, LOCAL_DEPTH_SIZE)
}

// IncrLocalDepth increments the local depth recorded for the given slot.
func (dir *HashDirectory) IncrLocalDepth(slot int64) {
	dir.SetLocalDepth(slot, dir.GetLocalDepth(slot)+1)
}

// DecrLocalDepth decrements the local depth recorded for the given slot.
func (dir *HashDirectory) DecrLocalDepth(slot int64) {
	dir.SetLocalDepth(slot, dir.GetLocalDepth(slot)-1)
}

// SplitImageIndex returns the sibling slot that the given slot was split
// from or would merge back into: the slot whose index differs only in the
// highest bit covered by the slot's local depth.
func (dir *HashDirectory) SplitImageIndex(slot int64) int64 {
	depth := dir.GetLocalDepth(slot)
	if depth == 0 {
		return slot
	}
	return slot ^ (int64(1) << (depth - 1))
}

// LocalDepthMask returns the mask selecting the low bits that discriminate
// the bucket in the given slot.
func (dir *HashDirectory) LocalDepthMask(slot int64) int64 {
	return (int64(1) << dir.GetLocalDepth(slot)) - 1
}

// CanShrink reports whether the directory could halve: true when no slot's
// local depth uses the directory's highest bit.
func (dir *HashDirectory) CanShrink() bool {
	if dir.globalDepth == 0 {
		return false
	}
	for i := int64(0); i < dir.Size(); i++ {
		if dir.GetLocalDepth(i) >= dir.globalDepth {
			return false
		}
	}
	return true
}

// VerifyIntegrity checks the directory's structural invariants:
//   - every slot's local depth is at most the global depth,
//   - slots agreeing on their low localDepth bits form a family aliasing one
//     bucket page at one shared local depth,
//   - each bucket page is referenced by exactly 2^(globalDepth-localDepth)
//     slots.
func (dir *HashDirectory) VerifyIntegrity() error {
	pageRefs := make(map[int64]int64)
	pageDepths := make(map[int64]int64)
	size := dir.Size()
	for i := int64(0); i < size; i++ {
		depth := dir.GetLocalDepth(i)
		pn := dir.GetBucketPagenum(i)
		if depth > dir.globalDepth {
			return fmt.Errorf("slot %d: local depth %d exceeds global depth %d", i, depth, dir.globalDepth)
		}
		family := i & ((int64(1) << depth) - 1)
		familyPN := dir.GetBucketPagenum(family)
		familyDepth := dir.GetLocalDepth(family)
		if pn != familyPN || depth != familyDepth {
			return fmt.Errorf("slot %d: (page %d, depth %d) disagrees with family slot %d: (page %d, depth %d)",
				i, pn, depth, family, familyPN, familyDepth)
		}
		pageRefs[pn]++
		pageDepths[pn] = depth
	}
	for pn, refs := range pageRefs {
		if want := int64(1) << (dir.globalDepth - pageDepths[pn]); refs != want {
			return fmt.Errorf("bucket page %d referenced by %d slots, want %d", pn, refs, want)
		}
	}
	return nil
}

// Print writes a string representation of the directory to the specified writer.
func (dir *HashDirectory) Print(w io.Writer) {
	fmt.Fprintf(w, "global depth: %d\n", dir.globalDepth)
	for i := int64(0); i < dir.Size(); i++ {
		fmt.Fprintf(w, "slot %d: page %d, local depth %d\n",
			i, dir.GetBucketPagenum(i), dir.GetLocalDepth(i))
	}
}

// slotPos gets the byte-position of the slot record with the given index.
func slotPos(slot int64) int64 {
	return DIR_SLOTS_OFFSET + slot*DIR_SLOT_SIZE
}
