// Package carry implements the balancing pipeline (spec.md §4.6): a
// leaf-level edit is posted as one or more carry-ops, and carry() drives a
// level-by-level queue of ops and target nodes until nothing more needs
// mutating, growing the tree's root when a level's work overflows upward
// past the current top.
package carry

import (
	"github.com/reiser4/reiser4fs/jnode"
	"github.com/reiser4/reiser4fs/key"
	"github.com/reiser4/reiser4fs/tree"
)

// OpKind tags the variant of a carry-op (spec.md §3 carry_op).
type OpKind int

const (
	OpInsert OpKind = iota
	OpPaste
	OpExtent
	OpDelete
	OpCut
	OpUpdate
	OpModify
	OpInsertFlow
)

func (k OpKind) String() string {
	return [...]string{"INSERT", "PASTE", "EXTENT", "DELETE", "CUT", "UPDATE", "MODIFY", "INSERT_FLOW"}[k]
}

// RefKind identifies how a CarryNode's real target is resolved (spec.md
// §4.6: "directly the given znode", "the parent of a given znode", or "the
// left neighbor of the parent").
type RefKind int

const (
	RefDirect RefKind = iota
	RefParentOf
	RefLeftNeighborOfParent
)

// CarryNode is a lazily-resolved reference to a carry target. Parents can
// shift while sibling carrying is in progress, so carry ops reference
// relationships, not raw pointers, and resolve at handler time (spec.md
// §4.6).
type CarryNode struct {
	Kind RefKind
	Base *tree.Znode // the znode Kind is relative to
}

// Resolve returns the real znode this CarryNode currently refers to, or nil
// if the relationship does not exist (e.g. Base has no parent yet).
func (c CarryNode) Resolve() *tree.Znode {
	switch c.Kind {
	case RefDirect:
		return c.Base
	case RefParentOf:
		return c.Base.Parent()
	case RefLeftNeighborOfParent:
		p := c.Base.Parent()
		if p == nil {
			return nil
		}
		return p.Left()
	default:
		return nil
	}
}

// Op is one pending unit of balancing work (spec.md §3 carry_op): a tagged
// variant with its operands and, once run, its outputs (e.g. a newly
// allocated sibling for the handler to report upward).
type Op struct {
	Kind   OpKind
	Target CarryNode

	Key  key.Key
	Item tree.Item
	Data []byte
	From int
	To   int

	// NewSibling holds a sibling split off Target's node. No handler in
	// this package sets it: maybeSplit posts the parent-level INSERT for a
	// new sibling itself.
	NewSibling *tree.Znode
}

// Level is carry_level: the ordered queue of ops and the set of nodes they
// target, for one level of the tree, plus balancing's restart and
// tracked-coordinate bookkeeping (spec.md §3).
type Level struct {
	Height jnode.Level
	Ops    []*Op

	// Restartable marks a level whose ops may need re-resolution because
	// an earlier op on this level already shifted node boundaries. Carry
	// does not read it; a failed op ends the pass with an error.
	Restartable bool

	// Tracked is the coordinate the original caller cares about (e.g. the
	// just-inserted item). Carry does not update it when nodes shift.
	Tracked *tree.Coord
}

// NewLevel creates an empty carry level at the given tree height.
func NewLevel(height jnode.Level) *Level {
	return &Level{Height: height}
}

func (l *Level) Post(op *Op) { l.Ops = append(l.Ops, op) }

func (l *Level) IsEmpty() bool { return len(l.Ops) == 0 }
