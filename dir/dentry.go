package dir

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-wfs/addr"
	"github.com/mit-pdos/go-wfs/common"
)

// Dentry binds a name to an inode number. A slot whose name is empty is
// free.
type Dentry struct {
	Name string
	Num  uint32
}

func (de Dentry) Free() bool {
	return de.Name == ""
}

func (de Dentry) Inum() common.Inum {
	return common.Inum(de.Num)
}

func (de Dentry) Encode() []byte {
	name := make([]byte, common.NAMELEN)
	copy(name, de.Name)
	enc := marshal.NewEnc(common.DENTRYSZ)
	enc.PutBytes(name)
	enc.PutInt32(de.Num)
	return enc.Finish()
}

func DecodeDentry(b []byte) Dentry {
	dec := marshal.NewDec(b)
	name := dec.GetBytes(common.NAMELEN)
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return Dentry{Name: string(name), Num: dec.GetInt32()}
}

// Ref locates a dentry slot: slot Slot of the dentry block at Block
type Ref struct {
	Block addr.Addr
	Slot  uint64
}

func (r Ref) Addr() addr.Addr {
	return r.Block.Add(r.Slot * common.DENTRYSZ)
}

func (r Ref) String() string {
	return fmt.Sprintf("%v[%d]", r.Block, r.Slot)
}

// CheckName reports whether name can be stored in a dentry
func CheckName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("name %q: %w", name, common.ErrInvalid)
	}
	if uint64(len(name)) > common.MaxNameLen {
		return fmt.Errorf("name %q: %w", name, common.ErrNameTooLong)
	}
	return nil
}

// SplitPath splits p into its parent directory and final element.
// Trailing slashes are ignored; the parent of a top-level name is "/".
func SplitPath(p string) (string, string) {
	p = strings.TrimRight(p, "/")
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "/", p
	}
	parent := p[:i]
	if parent == "" {
		parent = "/"
	}
	return parent, p[i+1:]
}
