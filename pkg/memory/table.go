package memory

import (
	"lineidx/pkg/common"

	"github.com/google/btree"
)

const DefaultDegree = 32

// Table keeps index entries ordered by common.CompareEntries.
// Entries with equal keys but different offsets are all retained.
type Table struct {
	tree *btree.BTreeG[common.Entry]
	size int
}

func NewTable(degree int) *Table {
	if degree < 2 {
		degree = DefaultDegree
	}
	return &Table{
		tree: btree.NewG(degree, func(a, b common.Entry) bool {
			return common.CompareEntries(a, b) < 0
		}),
	}
}

func (t *Table) Put(e common.Entry) {
	if _, replaced := t.tree.ReplaceOrInsert(e); !replaced {
		t.size += len(e.Key) + common.OffsetSize
	}
}

// Size 是表中条目按磁盘格式计算的字节数
func (t *Table) Size() int {
	return t.size
}

func (t *Table) Count() int {
	return t.tree.Len()
}

// Iterator walks entries in ascending order until fn returns false.
func (t *Table) Iterator(fn func(e common.Entry) bool) {
	t.tree.Ascend(func(e common.Entry) bool {
		return fn(e)
	})
}
