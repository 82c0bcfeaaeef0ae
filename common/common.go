package common

const (
	BlockSize uint64 = 512
	NBITBLOCK uint64 = BlockSize * 8

	NDirect   uint64 = 7 // blocks[0..NDirect) are direct
	IndBlock  uint64 = NDirect
	NBlocks   uint64 = IndBlock + 1
	NIndirect uint64 = BlockSize / 8 // pointers per indirect block

	MaxFileBlocks uint64 = NDirect + NIndirect

	SUPERSZ uint64 = 6 * 8 // on-disk superblock size
	INODESZ uint64 = 120   // on-disk inode record, one per BlockSize slot

	NAMELEN    uint64 = 28 // dentry name field, NUL padded
	MaxNameLen uint64 = NAMELEN - 1
	DENTRYSZ   uint64 = NAMELEN + 4
	NDentry    uint64 = BlockSize / DENTRYSZ

	// inode and block counts are rounded up to a multiple of this so
	// that both bitmaps end on a byte boundary
	RoundCount uint64 = 32
)

type Inum uint64
type Bnum = uint64

const (
	ROOTINUM Inum = 0
	NULLINUM Inum = 0xFFFFFFFF // dentry inode number after removal
)
