// Package sfs reads and writes KSP ConfigNode text (.sfs save files).
//
// A file is a tree of named nodes. Each node holds an ordered list of entries;
// an entry is either a "key = value" pair or a child node. Keys and node names
// may repeat, and their relative order is preserved across Decode/Encode.
package sfs

// Entry is one line-level item inside a node: a value or a child node.
type Entry struct {
	Key   string
	Value string
	Node  *Node // non-nil for child nodes; Key/Value unused
}

// IsNode reports whether the entry is a child node.
func (e Entry) IsNode() bool { return e.Node != nil }

// Node is a named block of entries.
type Node struct {
	Name    string
	Entries []Entry
}

// NewNode returns an empty node.
func NewNode(name string) *Node {
	return &Node{Name: name}
}

// Value returns the first value stored under key.
func (n *Node) Value(key string) (string, bool) {
	for _, e := range n.Entries {
		if e.Node == nil && e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Values returns every value stored under key, in order.
func (n *Node) Values(key string) []string {
	var out []string
	for _, e := range n.Entries {
		if e.Node == nil && e.Key == key {
			out = append(out, e.Value)
		}
	}
	return out
}

// SetValue overwrites the first value under key, appending if absent.
func (n *Node) SetValue(key, value string) {
	for i := range n.Entries {
		if n.Entries[i].Node == nil && n.Entries[i].Key == key {
			n.Entries[i].Value = value
			return
		}
	}
	n.AddValue(key, value)
}

// AddValue appends a value, even if key already exists.
func (n *Node) AddValue(key, value string) {
	n.Entries = append(n.Entries, Entry{Key: key, Value: value})
}

// AddChild appends a child node and returns it.
func (n *Node) AddChild(child *Node) *Node {
	n.Entries = append(n.Entries, Entry{Node: child})
	return child
}

// Child returns the first child node with the given name.
func (n *Node) Child(name string) *Node {
	for _, e := range n.Entries {
		if e.Node != nil && e.Node.Name == name {
			return e.Node
		}
	}
	return nil
}

// Children returns every child node with the given name, in order.
func (n *Node) Children(name string) []*Node {
	var out []*Node
	for _, e := range n.Entries {
		if e.Node != nil && e.Node.Name == name {
			out = append(out, e.Node)
		}
	}
	return out
}

// Path walks nested children by name, taking the first match at each level.
func (n *Node) Path(names ...string) *Node {
	cur := n
	for _, name := range names {
		if cur = cur.Child(name); cur == nil {
			return nil
		}
	}
	return cur
}
