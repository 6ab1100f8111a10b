package sproxy

import (
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
	"io"
)

// fileHandler binds the relay to one link. Events delivered after the link
// was torn down, or for a descriptor number that now belongs to another
// link, are ignored.
func (h *Hub) fileHandler(link *Link) FileHandler {
	return func(fd int, mask EventMask) {
		if link.closed || link.fd != fd {
			return
		}
		if mask&Readable != 0 {
			if !h.onReadable(link) {
				return
			}
		}
		if mask&Writable != 0 {
			h.onWritable(link)
		}
	}
}

// onReadable performs one bounded read that replaces the link's previous
// receive buffer. It returns false when the link was torn down.
func (h *Hub) onReadable(link *Link) bool {
	n, err := unix.Read(link.fd, link.recvBuf[:])
	if err == unix.EAGAIN || err == unix.EINTR {
		return true
	}
	if err == nil && n == 0 {
		err = io.EOF
	}
	if err != nil {
		ioErr := &IOError{Node: h.nodeName(link), Op: "read", Err: err}
		log.Error().Msgf("[%d] I/O error reading from node link: %v", link.fd, ioErr)
		h.teardown(link, ioErr)
		return false
	}
	link.recvLen = n
	link.stats.recordRead(n)
	if log.Debug().Enabled() {
		log.Debug().Msgf("[%d] read %d bytes from %s", link.fd, n, h.nodeName(link))
	}
	return true
}

// onWritable relays the pending bytes of the link's source to it with a
// single write. Only the destination link is torn down on failure; a short
// write drops the tail.
func (h *Hub) onWritable(link *Link) {
	source := h.relaySource(link)
	if source == nil || source.closed || source.recvLen == 0 {
		return
	}
	data := source.recvBuf[:source.recvLen]
	n, err := unix.Write(link.fd, data)
	if err == unix.EAGAIN || err == unix.EINTR {
		link.stats.recordWrite(0, len(data))
		return
	}
	if err == nil && n == 0 {
		err = io.ErrShortWrite
	}
	if err != nil {
		ioErr := &IOError{Node: h.nodeName(link), Op: "write", Err: err}
		log.Error().Msgf("[%d] I/O error writing to node link: %v", link.fd, ioErr)
		h.teardown(link, ioErr)
		return
	}
	link.stats.recordWrite(n, len(data)-n)
	if log.Debug().Enabled() {
		log.Debug().Msgf("wrote %d bytes from %s (%d) to %s (%d)",
			n, h.nodeName(source), source.fd, h.nodeName(link), link.fd)
	}
}

// relaySource picks the link whose bytes flow into link: the active writer
// for a master, the parent master for a virtual.
func (h *Hub) relaySource(link *Link) *Link {
	node := h.registry.Node(link.node)
	if node == nil {
		return nil
	}
	var source NodeID
	switch node.role {
	case RoleMaster:
		writer, ok := h.registry.ActiveWriter(node.id)
		if !ok {
			return nil
		}
		source = writer
	case RoleVirtual:
		source = node.parent
	default:
		return nil
	}
	if src := h.registry.Node(source); src != nil {
		return src.link
	}
	return nil
}

// BeforeSleep runs once per loop pass before the loop blocks: it forgets
// every receive buffer so data is relayed during at most one pass, then
// holds the loop for the configured delay.
func (h *Hub) BeforeSleep() {
	h.registry.Walk(func(node *Node) bool {
		if node.link != nil {
			node.link.recvLen = 0
		}
		return true
	})
	if h.beforeSleepDelay > 0 {
		h.sleep(h.beforeSleepDelay)
	}
}

func (h *Hub) nodeName(link *Link) string {
	if node := h.registry.Node(link.node); node != nil {
		return node.name
	}
	return "<released>"
}
