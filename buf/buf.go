// buf manages sub-image objects (a superblock, an inode record, a block of
// dentries or block pointers) that are loaded, modified in memory, and
// written back in place.
package buf

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-wfs/addr"
	"github.com/mit-pdos/go-wfs/disk"
	"github.com/mit-pdos/go-wfs/util"
)

// A Buf is a copy of the image bytes at [Addr, Addr+len(Data))
type Buf struct {
	Addr  addr.Addr
	Data  []byte
	dirty bool // has Data been modified since the load?
}

func MkBuf(a addr.Addr, data []byte) *Buf {
	b := &Buf{
		Addr:  a,
		Data:  data,
		dirty: false,
	}
	return b
}

// Load the sz bytes at a into a new buf
func Load(d disk.Disk, a addr.Addr, sz uint64) (*Buf, error) {
	data := make([]byte, sz)
	if err := d.ReadAt(uint64(a), data); err != nil {
		return nil, fmt.Errorf("loading %d bytes at %v: %w", sz, a, err)
	}
	util.DPrintf(20, "load %v: %d bytes\n", a, sz)
	return MkBuf(a, data), nil
}

func (buf *Buf) IsDirty() bool {
	return buf.dirty
}

func (buf *Buf) SetDirty() {
	buf.dirty = true
}

// Zero clears the buf's contents
func (buf *Buf) Zero() {
	for i := range buf.Data {
		buf.Data[i] = 0
	}
	buf.SetDirty()
}

// WriteDirect stores a dirty buf back at its address
func (buf *Buf) WriteDirect(d disk.Disk) error {
	if !buf.dirty {
		return nil
	}
	util.DPrintf(20, "write %v: %d bytes\n", buf.Addr, len(buf.Data))
	if err := d.WriteAt(uint64(buf.Addr), buf.Data); err != nil {
		return fmt.Errorf("writing %d bytes at %v: %w", len(buf.Data), buf.Addr, err)
	}
	buf.dirty = false
	return nil
}

// BnumGet decodes the 8-byte block pointer at byte offset off
func (buf *Buf) BnumGet(off uint64) addr.Addr {
	dec := marshal.NewDec(buf.Data[off : off+8])
	return addr.Addr(dec.GetInt())
}

// BnumPut encodes v as the 8-byte block pointer at byte offset off
func (buf *Buf) BnumPut(off uint64, v addr.Addr) {
	enc := marshal.NewEnc(8)
	enc.PutInt(uint64(v))
	copy(buf.Data[off:off+8], enc.Finish())
	buf.SetDirty()
}
