package sproxy

import (
	"errors"
	"fmt"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
	"os"
)

// Connect opens and configures the node's OS connection and registers it
// with the multiplexer. A node that already has a link is left untouched and
// ErrAlreadyConnected is returned. On failure everything acquired so far is
// released, the node stays disconnected and a *ConnectError is returned.
func (h *Hub) Connect(id NodeID) error {
	node := h.registry.Node(id)
	if node == nil {
		return ErrUnknownNode
	}
	if node.link != nil {
		return ErrAlreadyConnected
	}
	node.state = Connecting
	link, err := h.establish(node)
	if err != nil {
		node.state = Disconnected
		h.publish(ConnectFailedEvent, node, err, "")
		return err
	}
	node.link = link
	node.state = Connected
	h.publish(LinkUpEvent, node, nil, "")
	return nil
}

func (h *Hub) establish(node *Node) (link *Link, err error) {
	link = newLink(node.id)
	symlinked := false
	defer func() {
		if err == nil {
			return
		}
		if link.mask != NoEvents {
			_ = h.mux.UnregisterFile(link.fd, link.mask)
			link.mask = NoEvents
		}
		if rerr := link.release(); rerr != nil {
			log.Error().Msgf("can't release partial link of %s: %+v", node.name, rerr)
		}
		if symlinked {
			removeVirtualName(node.name)
		}
	}()

	switch node.role {
	case RoleMaster:
		if err = h.openDevice(node, link); err != nil {
			return link, err
		}
	case RoleVirtual:
		if err = h.openVirtual(node, link); err != nil {
			return link, err
		}
		symlinked = true
	default:
		return link, connectError(node.name, "open", fmt.Errorf("node has no role"))
	}

	termios, err := h.line.GetTermios(link.fd)
	if err != nil {
		return link, connectError(node.name, "tcgetattr", err)
	}
	if node.IsMaster() {
		custom, serr := configureSpeed(h.line, link.fd, termios, node.baudRate)
		if serr != nil {
			op := "set speed"
			if custom {
				op = "set custom baud"
			}
			return link, connectError(node.name, op, serr)
		}
		if custom && log.Debug().Enabled() {
			log.Debug().Msgf("[%d] %s uses custom baud rate %d", link.fd, node.name, node.baudRate)
		}
	}
	makeRaw(termios)
	if err = h.line.SetTermios(link.fd, termios); err != nil {
		return link, connectError(node.name, "tcsetattr", err)
	}
	if err = unix.SetNonblock(link.fd, true); err != nil {
		return link, connectError(node.name, "set nonblock", os.NewSyscallError("fcntl", err))
	}

	mask := h.eventMask(node)
	if err = h.mux.RegisterFile(link.fd, mask, h.fileHandler(link)); err != nil {
		return link, connectError(node.name, "register", err)
	}
	link.mask = mask
	return link, nil
}

func (h *Hub) openDevice(node *Node, link *Link) error {
	file, err := os.OpenFile(node.name, os.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return connectError(node.name, "open", err)
	}
	link.primary = file
	link.fd = int(file.Fd())
	if _, err := h.line.GetTermios(link.fd); err != nil {
		return connectError(node.name, "isatty", fmt.Errorf("%w: %v", ErrNotTerminal, err))
	}
	return nil
}

func (h *Hub) openVirtual(node *Node, link *Link) error {
	ptmx, tty, err := h.openPty()
	if err != nil {
		return connectError(node.name, "openpty", err)
	}
	link.primary = ptmx
	link.secondary = tty
	link.fd = int(ptmx.Fd())
	if err := os.Remove(node.name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return connectError(node.name, "remove", err)
	}
	if err := os.Symlink(tty.Name(), node.name); err != nil {
		return connectError(node.name, "symlink", err)
	}
	return nil
}
