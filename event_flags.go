package sproxy

import (
	"github.com/rs/zerolog/log"
)

// eventMask derives the readiness events a node's link must be registered
// for:
//
//	master:  read, plus write when it has an active writer to drain
//	virtual: write, plus read when it is its master's active writer
func (h *Hub) eventMask(node *Node) EventMask {
	switch node.role {
	case RoleMaster:
		if _, ok := h.registry.ActiveWriter(node.id); ok {
			return Readable | Writable
		}
		return Readable
	case RoleVirtual:
		if h.isActiveWriter(node) {
			return Readable | Writable
		}
		return Writable
	default:
		panic("sproxy: node " + node.name + " has no role")
	}
}

func (h *Hub) isActiveWriter(node *Node) bool {
	if node.parent == NoNode {
		return false
	}
	writer, ok := h.registry.ActiveWriter(node.parent)
	return ok && writer == node.id
}

// refreshEvents brings the registration of a connected node in line with
// eventMask, granting missing events and revoking obsolete ones.
func (h *Hub) refreshEvents(id NodeID) {
	node := h.registry.Node(id)
	if node == nil || node.link == nil {
		return
	}
	link := node.link
	want := h.eventMask(node)
	if want == link.mask {
		return
	}
	grant := want &^ link.mask
	revoke := link.mask &^ want
	if revoke != NoEvents {
		if err := h.mux.UnregisterFile(link.fd, revoke); err != nil {
			log.Error().Msgf("[%d] can't revoke %s events of %s: %+v", link.fd, revoke, node.name, err)
			h.teardown(link, err)
			return
		}
		link.mask &^= revoke
	}
	if grant != NoEvents {
		if err := h.mux.RegisterFile(link.fd, grant, h.fileHandler(link)); err != nil {
			log.Error().Msgf("[%d] can't grant %s events to %s: %+v", link.fd, grant, node.name, err)
			h.teardown(link, err)
			return
		}
		link.mask |= grant
	}
	if log.Debug().Enabled() {
		log.Debug().Msgf("[%d] %s events now [%s]", link.fd, node.name, link.mask)
	}
}

// refreshFamily refreshes a master and all of its virtuals.
func (h *Hub) refreshFamily(master NodeID) {
	m := h.registry.Node(master)
	if m == nil {
		return
	}
	h.refreshEvents(master)
	for _, cid := range m.children {
		h.refreshEvents(cid)
	}
}
