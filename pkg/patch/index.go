package patch

import (
	"sort"

	"github.com/panbanda/excise/pkg/parser"
	sitter "github.com/smacker/go-tree-sitter"
)

type indexedNode struct {
	start, end int
	node       *sitter.Node
}

// nodeIndex holds every named, non-empty node in pre-order. Pre-order over a
// syntax tree is already sorted by start offset, and a node always precedes
// its descendants.
type nodeIndex []indexedNode

func buildIndex(root *sitter.Node, src []byte) nodeIndex {
	var idx nodeIndex
	parser.WalkNamed(root, src, func(n *sitter.Node, _ []byte) bool {
		start, end := int(n.StartByte()), int(n.EndByte())
		if end > start {
			idx = append(idx, indexedNode{start: start, end: end, node: n})
		}
		return true
	})
	return idx
}

// innermost returns the deepest node with start < span.Start and
// end > span.End, or nil. Every node starting before span.Start lies left of
// the binary search bound; scanning back from it, the first container found
// is the last one in pre-order, hence the deepest.
func (idx nodeIndex) innermost(span Span) *sitter.Node {
	bound := sort.Search(len(idx), func(i int) bool {
		return idx[i].start >= span.Start
	})
	for i := bound - 1; i >= 0; i-- {
		if idx[i].end > span.End {
			return idx[i].node
		}
	}
	return nil
}
