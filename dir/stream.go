package dir

import (
	"github.com/mit-pdos/go-wfs/buf"
	"github.com/mit-pdos/go-wfs/common"
	"github.com/mit-pdos/go-wfs/inode"
)

// Entry is a live dentry together with the stream position after it
type Entry struct {
	Dentry
	Next uint64
}

// Stream lists the live entries of a directory lazily, in block-then-slot
// order. It ends once the directory's link count worth of live entries has
// been seen, counting those before the starting position, or when the
// blocks run out. A Stream cannot be restarted.
type Stream struct {
	dirs *Dirs
	dip  *inode.Inode
	pos  uint64 // next slot to examine, counting across blocks
	live uint64 // live entries seen so far
	blk  *buf.Buf
	next *Entry
	err  error
	done bool
}

// Stream starts a listing of dip at slot position off
func (dirs *Dirs) Stream(dip *inode.Inode, off uint64) *Stream {
	s := &Stream{dirs: dirs, dip: dip}
	// entries before off still count towards the link count
	for s.pos < off && !s.done {
		de, ok := s.slot()
		if ok && !de.Free() {
			s.live++
		}
	}
	return s
}

// slot decodes the dentry at pos and advances; false at the end
func (s *Stream) slot() (Dentry, bool) {
	if s.err != nil || s.pos >= nblocks(s.dip)*common.NDentry {
		s.done = true
		return Dentry{}, false
	}
	lbn := s.pos / common.NDentry
	slot := s.pos % common.NDentry
	if slot == 0 || s.blk == nil {
		s.blk, s.err = s.dirs.loadBlock(s.dip, lbn)
		if s.err != nil {
			s.done = true
			return Dentry{}, false
		}
	}
	s.pos++
	off := slot * common.DENTRYSZ
	return DecodeDentry(s.blk.Data[off : off+common.DENTRYSZ]), true
}

func (s *Stream) advance() {
	for !s.done && s.next == nil {
		if s.live >= uint64(s.dip.Nlinks) {
			s.done = true
			return
		}
		de, ok := s.slot()
		if !ok {
			return
		}
		if !de.Free() {
			s.live++
			s.next = &Entry{Dentry: de, Next: s.pos}
		}
	}
}

func (s *Stream) HasNext() bool {
	s.advance()
	return s.next != nil || s.err != nil
}

func (s *Stream) Next() (Entry, error) {
	s.advance()
	if s.err != nil {
		err := s.err
		s.err = nil
		s.done = true
		return Entry{}, err
	}
	if s.next == nil {
		return Entry{}, nil
	}
	e := *s.next
	s.next = nil
	return e, nil
}
