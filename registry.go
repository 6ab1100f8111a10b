package sproxy

// Registry is the arena of every node, masters and virtuals alike. Masters
// are kept in insertion order; each master keeps its virtuals in attachment
// order. Nodes refer to each other only by NodeID.
type Registry struct {
	nodes   []*Node
	masters []NodeID
}

func NewRegistry() *Registry {
	return &Registry{}
}

// CreateNode allocates a new disconnected node with the default baud rate.
// The node is not part of the topology until AddMaster or Attach is called.
func (r *Registry) CreateNode(name string, role Role) (NodeID, error) {
	switch role {
	case RoleMaster, RoleVirtual:
	default:
		return NoNode, &TopologyError{Name: name, Reason: "create node", Err: ErrInvalidRole}
	}
	id := NodeID(len(r.nodes))
	r.nodes = append(r.nodes, newNode(id, name, role))
	return id, nil
}

// Node resolves an id, returning nil for unknown or released ids.
func (r *Registry) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(r.nodes) {
		return nil
	}
	return r.nodes[id]
}

func (r *Registry) AddMaster(id NodeID) error {
	node := r.Node(id)
	if node == nil {
		return ErrUnknownNode
	}
	if !node.IsMaster() {
		return &TopologyError{Name: node.name, Reason: "add master", Err: ErrNotMaster}
	}
	for _, mid := range r.masters {
		if mid == id {
			return nil
		}
		if r.nodes[mid].name == node.name {
			return &TopologyError{Name: node.name, Reason: "add master", Err: ErrDuplicateName}
		}
	}
	r.masters = append(r.masters, id)
	return nil
}

// Attach makes virtual a child of master. Attaching a virtual to the master
// it already belongs to is a no-op; moving it to another master requires an
// explicit Detach first.
func (r *Registry) Attach(master, virtual NodeID) error {
	m, v := r.Node(master), r.Node(virtual)
	if m == nil || v == nil {
		return ErrUnknownNode
	}
	if !m.IsMaster() {
		return &TopologyError{Name: m.name, Reason: "attach " + v.name, Err: ErrNotMaster}
	}
	if !v.IsVirtual() {
		return &TopologyError{Name: v.name, Reason: "attach to " + m.name, Err: ErrNotVirtual}
	}
	if v.parent == master {
		return nil
	}
	if v.parent != NoNode {
		return &TopologyError{Name: v.name, Reason: "attach to " + m.name, Err: ErrAlreadyAttached}
	}
	m.children = append(m.children, virtual)
	v.parent = master
	return nil
}

func (r *Registry) Detach(master, virtual NodeID) error {
	m, v := r.Node(master), r.Node(virtual)
	if m == nil || v == nil {
		return ErrUnknownNode
	}
	if v.parent != master {
		return &TopologyError{Name: v.name, Reason: "detach from " + m.name, Err: ErrNotAttached}
	}
	m.children = removeID(m.children, virtual)
	v.parent = NoNode
	return nil
}

// Release removes a node from the arena. A master is dropped from the
// master list and its virtuals are orphaned; a virtual is detached from its
// master. The caller owns closing the node's link first.
func (r *Registry) Release(id NodeID) {
	node := r.Node(id)
	if node == nil {
		return
	}
	switch node.role {
	case RoleMaster:
		for _, cid := range node.children {
			if child := r.Node(cid); child != nil {
				child.parent = NoNode
			}
		}
		node.children = nil
		r.masters = removeID(r.masters, id)
	case RoleVirtual:
		if node.parent != NoNode {
			_ = r.Detach(node.parent, id)
		}
	}
	r.nodes[id] = nil
}

// Lookup finds a master by name.
func (r *Registry) Lookup(name string) (NodeID, bool) {
	for _, id := range r.masters {
		if r.nodes[id].name == name {
			return id, true
		}
	}
	return NoNode, false
}

// LookupVirtual finds a virtual by its full name among master's children.
func (r *Registry) LookupVirtual(master NodeID, name string) (NodeID, bool) {
	m := r.Node(master)
	if m == nil {
		return NoNode, false
	}
	for _, id := range m.children {
		if r.nodes[id].name == name {
			return id, true
		}
	}
	return NoNode, false
}

// DesignateWriter sets the writer flag on a virtual. Flags on its siblings
// are left untouched.
func (r *Registry) DesignateWriter(virtual NodeID) error {
	v := r.Node(virtual)
	if v == nil {
		return ErrUnknownNode
	}
	if !v.IsVirtual() {
		return &TopologyError{Name: v.name, Reason: "designate writer", Err: ErrNotVirtual}
	}
	v.writer = true
	return nil
}

func (r *Registry) ClearWriter(virtual NodeID) {
	if v := r.Node(virtual); v != nil {
		v.writer = false
	}
}

// ActiveWriter returns the first flagged virtual of master in attachment
// order. Later flagged siblings are ignored for relaying.
func (r *Registry) ActiveWriter(master NodeID) (NodeID, bool) {
	m := r.Node(master)
	if m == nil {
		return NoNode, false
	}
	for _, id := range m.children {
		if r.nodes[id].writer {
			return id, true
		}
	}
	return NoNode, false
}

// Masters returns a copy of the master ids in insertion order.
func (r *Registry) Masters() []NodeID {
	masters := make([]NodeID, len(r.masters))
	copy(masters, r.masters)
	return masters
}

// Walk visits every master followed by its virtuals, stopping early when fn
// returns false.
func (r *Registry) Walk(fn func(node *Node) bool) {
	for _, mid := range r.Masters() {
		master := r.Node(mid)
		if master == nil {
			continue
		}
		if !fn(master) {
			return
		}
		for _, vid := range master.Children() {
			if virtual := r.Node(vid); virtual != nil {
				if !fn(virtual) {
					return
				}
			}
		}
	}
}

func (r *Registry) Len() int {
	n := 0
	for _, node := range r.nodes {
		if node != nil {
			n++
		}
	}
	return n
}

func removeID(ids []NodeID, id NodeID) []NodeID {
	for i, cur := range ids {
		if cur == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
