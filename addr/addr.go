package addr

import (
	"fmt"
)

// Addr is a byte offset into the image. Every on-disk reference (block
// pointer, inode slot, bitmap byte) is carried as an Addr and checked
// against the Region it must fall in before it is dereferenced.
type Addr uint64

const Null Addr = 0

func (a Addr) Add(n uint64) Addr {
	return a + Addr(n)
}

func (a Addr) IsNull() bool {
	return a == Null
}

func (a Addr) String() string {
	return fmt.Sprintf("%#x", uint64(a))
}

// BitAddr identifies bit n of a bitmap that starts at some Addr.
//
// Byte is the image offset of the byte containing the bit and Mask selects
// the bit within it. Bits are numbered most-significant first: bit 0 of a
// byte is 0x80.
type BitAddr struct {
	Byte Addr
	Mask byte
}

func MkBitAddr(start Addr, n uint64) BitAddr {
	return BitAddr{
		Byte: start.Add(n / 8),
		Mask: byte(0x80) >> (n % 8),
	}
}

// Region is a contiguous run of fixed-size units in the image, such as the
// inode table or the data region.
type Region struct {
	Start Addr
	Unit  uint64 // size of one unit in bytes
	Count uint64 // number of units
}

func MkRegion(start Addr, unit uint64, count uint64) Region {
	return Region{Start: start, Unit: unit, Count: count}
}

func (r Region) End() Addr {
	return r.Start.Add(r.Unit * r.Count)
}

// At returns the address of unit i; i must be below Count.
func (r Region) At(i uint64) Addr {
	if i >= r.Count {
		panic(fmt.Errorf("region index %d out of range [0,%d)", i, r.Count))
	}
	return r.Start.Add(i * r.Unit)
}

// Index returns the unit a starts, and false if a is outside the region or
// not aligned to a unit boundary.
func (r Region) Index(a Addr) (uint64, bool) {
	if a < r.Start || a >= r.End() {
		return 0, false
	}
	off := uint64(a - r.Start)
	if off%r.Unit != 0 {
		return 0, false
	}
	return off / r.Unit, true
}

func (r Region) Contains(a Addr) bool {
	_, ok := r.Index(a)
	return ok
}
