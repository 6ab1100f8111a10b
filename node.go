package sproxy

import (
	"math"
)

const (
	DefaultBaudRate = 9600
	// MaxBaudRate is the largest rate serial_struct can divide by.
	MaxBaudRate = math.MaxInt32
	// VirtualSeparator joins a master name and a virtual suffix.
	VirtualSeparator = "."
)

// NodeID is the stable index of a node inside a Registry. IDs are never
// reused, so a stale ID resolves to nothing instead of to another node.
type NodeID int

const NoNode NodeID = -1

type Role uint8

const (
	RoleMaster Role = iota + 1
	RoleVirtual
)

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleVirtual:
		return "virtual"
	default:
		return "unknown"
	}
}

type State uint8

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Node is a named serial endpoint: either the real device (master) or a
// pty backed stand-in for it (virtual).
type Node struct {
	id       NodeID
	name     string
	role     Role
	baudRate int
	writer   bool
	children []NodeID
	parent   NodeID
	state    State
	link     *Link
}

func newNode(id NodeID, name string, role Role) *Node {
	return &Node{
		id:       id,
		name:     name,
		role:     role,
		baudRate: DefaultBaudRate,
		parent:   NoNode,
	}
}

func (n *Node) ID() NodeID {
	return n.id
}

func (n *Node) Name() string {
	return n.name
}

func (n *Node) Role() Role {
	return n.role
}

func (n *Node) IsMaster() bool {
	return n.role == RoleMaster
}

func (n *Node) IsVirtual() bool {
	return n.role == RoleVirtual
}

// BaudRate is only meaningful for masters.
func (n *Node) BaudRate() int {
	return n.baudRate
}

func (n *Node) SetBaudRate(baud int) {
	n.baudRate = baud
}

// ValidBaudRate reports whether baud can be programmed into a line.
func ValidBaudRate(baud int) bool {
	return baud > 0 && baud <= MaxBaudRate
}

// IsWriter reports the writer flag. Only meaningful for virtuals.
func (n *Node) IsWriter() bool {
	return n.writer
}

// Parent returns the owning master of a virtual, or NoNode.
func (n *Node) Parent() NodeID {
	return n.parent
}

// Children returns a copy of a master's virtuals in attachment order.
func (n *Node) Children() []NodeID {
	children := make([]NodeID, len(n.children))
	copy(children, n.children)
	return children
}

func (n *Node) State() State {
	return n.state
}

func (n *Node) Connected() bool {
	return n.link != nil
}

// Link returns the live link, or nil while disconnected.
func (n *Node) Link() *Link {
	return n.link
}

// VirtualName builds the published name of a virtual from its master name
// and suffix.
func VirtualName(master, suffix string) string {
	return master + VirtualSeparator + suffix
}
