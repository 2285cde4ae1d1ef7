package hash

import (
	"encoding/binary"

	"hatchdb/pkg/pager"
)

/////////////////////////////////////////////////////////////////////////////
////////////////////////// Low-level Constants //////////////////////////////
/////////////////////////////////////////////////////////////////////////////

const PAGESIZE int64 = pager.Pagesize

// The directory always lives on the first page of the index file.
const DIRECTORY_PN int64 = 0

// Directory page layout: a global depth header followed by one fixed-width
// record per slot holding the slot's bucket pagenum and local depth.
const GLOBAL_DEPTH_OFFSET int64 = 0
const GLOBAL_DEPTH_SIZE int64 = binary.MaxVarintLen64
const DIR_SLOTS_OFFSET int64 = GLOBAL_DEPTH_OFFSET + GLOBAL_DEPTH_SIZE
const PN_SIZE int64 = binary.MaxVarintLen64
const LOCAL_DEPTH_SIZE int64 = 1
const DIR_SLOT_SIZE int64 = PN_SIZE + LOCAL_DEPTH_SIZE

// MAX_GLOBAL_DEPTH is the largest depth whose 2^depth slot records still fit
// on the directory page; it also bounds every bucket's local depth, so a
// bucket that would need to split past it rejects the insert instead.
const MAX_GLOBAL_DEPTH int64 = 8

// Bucket page layout: an occupancy bitmap header followed by fixed-width
// entry cells. A cell holds a readable entry iff its bitmap bit is set.
const BITMAP_OFFSET int64 = 0
const BITMAP_WORDS int64 = 4 // 256 occupancy bits
const BUCKET_HEADER_SIZE int64 = BITMAP_WORDS * 8
const ENTRYSIZE int64 = binary.MaxVarintLen64 * 2 // int64 key, int64 value

// MAX_BUCKET_SIZE is the most entries a bucket page can physically hold.
const MAX_BUCKET_SIZE int64 = (PAGESIZE - BUCKET_HEADER_SIZE) / ENTRYSIZE
