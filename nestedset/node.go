package nestedset

// SingleScope is the scope_id shared by every row of a single-tree table.
const SingleScope uint64 = 0

// Node holds the tree columns. Domain models embed it:
//
//	type Issue struct {
//		nestedset.Node
//		Subject string
//	}
type Node struct {
	ID uint64 `gorm:"column:id;primarykey"`

	// NULL for roots
	ParentID *uint64 `gorm:"column:parent_id;index"`

	// partition key: the root's id in a forest, SingleScope otherwise
	ScopeID uint64 `gorm:"column:scope_id;not null;default:0;index"`

	Lft int64 `gorm:"column:lft;index"`
	Rgt int64 `gorm:"column:rgt"`
}

// TreeNode gives the tree engine access to the embedded columns.
func (n *Node) TreeNode() *Node {
	return n
}

func (n Node) Interval() Interval {
	return Interval{Lft: n.Lft, Rgt: n.Rgt}
}

func (n Node) Width() int64 {
	return n.Rgt - n.Lft + 1
}

func (n Node) DescendantCount() int64 {
	return (n.Width() - 2) / 2
}

func (n Node) IsRoot() bool {
	return n.ParentID == nil
}

func (n Node) IsLeaf() bool {
	return n.Rgt-n.Lft == 1
}

func (n Node) IsAncestorOf(o Node) bool {
	return n.ScopeID == o.ScopeID && n.Lft < o.Lft && n.Rgt > o.Rgt
}

func (n Node) IsDescendantOf(o Node) bool {
	return o.IsAncestorOf(n)
}

// HasParent reports whether n's parent link points at id (nil meaning root).
func (n Node) HasParent(id *uint64) bool {
	if n.ParentID == nil || id == nil {
		return n.ParentID == nil && id == nil
	}
	return *n.ParentID == *id
}
