package alloc

import (
	"fmt"

	"github.com/mit-pdos/go-wfs/addr"
	"github.com/mit-pdos/go-wfs/buf"
	"github.com/mit-pdos/go-wfs/common"
	"github.com/mit-pdos/go-wfs/disk"
	"github.com/mit-pdos/go-wfs/util"
)

// Alloc uses an on-image bit map to allocate and free numbers. Bit 0 is the
// most significant bit of the first byte and corresponds to number 0. A set
// bit means the number is in use.
type Alloc struct {
	d     disk.Disk
	start addr.Addr
	len   uint64 // number of bits
}

func MkAlloc(d disk.Disk, start addr.Addr, len uint64) *Alloc {
	a := &Alloc{
		d:     d,
		start: start,
		len:   len,
	}
	return a
}

func (a *Alloc) Len() uint64 {
	return a.len
}

// Bits returns a copy of the whole bitmap
func (a *Alloc) Bits() ([]byte, error) {
	b, err := buf.Load(a.d, a.start, util.RoundUp(a.len, 8))
	if err != nil {
		return nil, err
	}
	return b.Data, nil
}

// Load the byte holding bit n
func (a *Alloc) loadBit(n uint64) (*buf.Buf, byte, error) {
	if n >= a.len {
		return nil, 0, fmt.Errorf("bit %d of %d: %w", n, a.len, common.ErrInvalid)
	}
	ba := addr.MkBitAddr(a.start, n)
	b, err := buf.Load(a.d, ba.Byte, 1)
	if err != nil {
		return nil, 0, err
	}
	util.DPrintf(15, "loadBit %d: %v byte 0x%x\n", n, ba.Byte, b.Data[0])
	return b, ba.Mask, nil
}

// FindFree returns the lowest clear bit, scanning byte by byte and then from
// the most significant bit of the first byte that has room.
func (a *Alloc) FindFree() (uint64, bool, error) {
	bits, err := a.Bits()
	if err != nil {
		return 0, false, err
	}
	for i, by := range bits {
		if by == 0xff {
			continue
		}
		for j := uint64(0); j < 8; j++ {
			n := uint64(i)*8 + j
			if n >= a.len {
				return 0, false, nil
			}
			if by&(0x80>>j) == 0 {
				return n, true, nil
			}
		}
	}
	return 0, false, nil
}

func (a *Alloc) AllocNum() (uint64, error) {
	n, ok, err := a.FindFree()
	if err != nil {
		return 0, err
	}
	if !ok {
		util.DPrintf(5, "AllocNum: %v exhausted\n", a.start)
		return 0, common.ErrNoSpace
	}
	if err := a.MarkUsed(n); err != nil {
		return 0, err
	}
	util.DPrintf(10, "AllocNum: %v -> %d\n", a.start, n)
	return n, nil
}

// FreeNum clears bit n whatever its current state
func (a *Alloc) FreeNum(n uint64) error {
	b, mask, err := a.loadBit(n)
	if err != nil {
		return err
	}
	b.Data[0] = b.Data[0] & ^mask
	b.SetDirty()
	util.DPrintf(10, "FreeNum: %v %d\n", a.start, n)
	return b.WriteDirect(a.d)
}

func (a *Alloc) MarkUsed(n uint64) error {
	b, mask, err := a.loadBit(n)
	if err != nil {
		return err
	}
	b.Data[0] = b.Data[0] | mask
	b.SetDirty()
	return b.WriteDirect(a.d)
}

func (a *Alloc) IsUsed(n uint64) (bool, error) {
	b, mask, err := a.loadBit(n)
	if err != nil {
		return false, err
	}
	return b.Data[0]&mask != 0, nil
}

func popCnt(b byte) uint64 {
	var count uint64
	var x = b
	for i := uint64(0); i < 8; i++ {
		count += uint64(x & 1)
		x = x >> 1
	}
	return count
}

func (a *Alloc) NumFree() (uint64, error) {
	bits, err := a.Bits()
	if err != nil {
		return 0, err
	}
	used := uint64(0)
	for i, by := range bits {
		// bits past len in the last byte are never set by this allocator
		if uint64(i+1)*8 > a.len {
			for j := uint64(0); uint64(i)*8+j < a.len; j++ {
				if by&(0x80>>j) != 0 {
					used++
				}
			}
			continue
		}
		used += popCnt(by)
	}
	return a.len - used, nil
}
