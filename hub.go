package sproxy

import (
	"errors"
	"fmt"
	"github.com/creack/pty"
	"github.com/rs/zerolog/log"
	"os"
	"time"
)

// Hub owns the topology and every link, and wires them to a Multiplexer.
// All methods must be called from the event loop goroutine.
type Hub struct {
	registry         *Registry
	mux              Multiplexer
	router           EventRouter
	line             lineDiscipline
	openPty          func() (*os.File, *os.File, error)
	beforeSleepDelay time.Duration
	sleep            func(time.Duration)
}

// NewHub creates an empty hub. A nil router selects the log router.
func NewHub(mux Multiplexer, router EventRouter) *Hub {
	if router == nil {
		router = NewLogEventRouter()
	}
	return &Hub{
		registry: NewRegistry(),
		mux:      mux,
		router:   router,
		line:     unixLine{},
		openPty:  pty.Open,
		sleep:    time.Sleep,
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// SetBeforeSleepDelay sets how long BeforeSleep holds the loop after the
// receive buffers are cleared. Zero disables the pause.
func (h *Hub) SetBeforeSleepDelay(delay time.Duration) {
	h.beforeSleepDelay = delay
}

// LoadTopology adds the configured devices. Nodes start disconnected.
func (h *Hub) LoadTopology(devices []DeviceConfig) error {
	return h.registry.ApplyTopology(devices)
}

// AddMaster registers a new master device.
func (h *Hub) AddMaster(name string, baud int) (NodeID, error) {
	if !ValidBaudRate(baud) {
		return NoNode, &TopologyError{Name: name, Reason: fmt.Sprintf("add master with baud rate %d", baud), Err: ErrInvalidBaudRate}
	}
	id, err := h.registry.ensureMaster(name)
	if err != nil {
		return NoNode, err
	}
	h.registry.Node(id).SetBaudRate(baud)
	return id, nil
}

// AddVirtual publishes a new virtual "<master>.<suffix>" under master.
func (h *Hub) AddVirtual(master NodeID, suffix string) (NodeID, error) {
	m := h.registry.Node(master)
	if m == nil {
		return NoNode, ErrUnknownNode
	}
	if !m.IsMaster() {
		return NoNode, &TopologyError{Name: m.name, Reason: "add virtual " + suffix, Err: ErrNotMaster}
	}
	id, err := h.registry.ensureVirtual(master, VirtualName(m.name, suffix))
	if err != nil {
		return NoNode, err
	}
	h.refreshEvents(id)
	return id, nil
}

// SetWriter makes virtual the only writer of its master. Registrations of the
// master and every sibling are updated so that only the new writer is read.
func (h *Hub) SetWriter(virtual NodeID) error {
	v := h.registry.Node(virtual)
	if v == nil {
		return ErrUnknownNode
	}
	if !v.IsVirtual() {
		return &TopologyError{Name: v.name, Reason: "set writer", Err: ErrNotVirtual}
	}
	if v.parent == NoNode {
		return &TopologyError{Name: v.name, Reason: "set writer", Err: ErrNotAttached}
	}
	master := h.registry.Node(v.parent)
	for _, cid := range master.children {
		h.registry.ClearWriter(cid)
	}
	if err := h.registry.DesignateWriter(virtual); err != nil {
		return err
	}
	h.refreshFamily(master.id)
	h.publish(WriterChangedEvent, v, nil, "designated writer of "+master.name)
	return nil
}

// ClearWriter removes the writer designation from virtual.
func (h *Hub) ClearWriter(virtual NodeID) error {
	v := h.registry.Node(virtual)
	if v == nil {
		return ErrUnknownNode
	}
	h.registry.ClearWriter(virtual)
	if v.parent != NoNode {
		h.refreshFamily(v.parent)
	}
	h.publish(WriterChangedEvent, v, nil, "writer cleared")
	return nil
}

// Detach disconnects virtual from its master without releasing it.
func (h *Hub) Detach(virtual NodeID) error {
	v := h.registry.Node(virtual)
	if v == nil {
		return ErrUnknownNode
	}
	master := v.parent
	if err := h.registry.Detach(master, virtual); err != nil {
		return err
	}
	h.refreshFamily(master)
	h.refreshEvents(virtual)
	return nil
}

// Attach makes a detached virtual a child of master.
func (h *Hub) Attach(master, virtual NodeID) error {
	if err := h.registry.Attach(master, virtual); err != nil {
		return err
	}
	h.refreshFamily(master)
	return nil
}

// RemoveNode closes the node's link and drops it from the topology. Removing
// a master removes its virtuals too.
func (h *Hub) RemoveNode(id NodeID) error {
	node := h.registry.Node(id)
	if node == nil {
		return ErrUnknownNode
	}
	if node.IsMaster() {
		for _, cid := range node.Children() {
			if err := h.RemoveNode(cid); err != nil {
				return err
			}
		}
	}
	h.release(node)
	parent := node.parent
	h.registry.Release(id)
	if parent != NoNode {
		h.refreshFamily(parent)
	}
	return nil
}

// Disconnect tears down the node's link, if any. The next reconnect sweep
// brings it back.
func (h *Hub) Disconnect(id NodeID) error {
	node := h.registry.Node(id)
	if node == nil {
		return ErrUnknownNode
	}
	if node.link != nil {
		h.teardown(node.link, nil)
	}
	return nil
}

// Close tears down every link, removes the published virtual names and
// releases every node from the registry.
func (h *Hub) Close() {
	for _, mid := range h.registry.Masters() {
		master := h.registry.Node(mid)
		for _, vid := range master.Children() {
			virtual := h.registry.Node(vid)
			log.Info().Msgf("Closing virtual: %s", virtual.name)
			h.release(virtual)
			h.registry.Release(vid)
		}
		log.Info().Msgf("Closing serial: %s", master.name)
		h.release(master)
		h.registry.Release(mid)
	}
	for _, node := range h.registry.nodes {
		if node != nil {
			log.Info().Msgf("Closing detached virtual: %s", node.name)
			h.release(node)
			h.registry.Release(node.id)
		}
	}
}

// release closes a node's link and, for virtuals, removes the symlink.
func (h *Hub) release(node *Node) {
	if node.link != nil {
		h.teardown(node.link, nil)
	}
	if node.IsVirtual() {
		removeVirtualName(node.name)
	}
}

// teardown is the single exit path of a link: it revokes the registrations,
// closes the descriptors and marks the node disconnected. Calling it on a
// link that is already down does nothing.
func (h *Hub) teardown(link *Link, cause error) {
	if link.closed {
		return
	}
	link.closed = true
	node := h.registry.Node(link.node)
	name := "<released>"
	if node != nil {
		name = node.name
	}
	fd := link.fd
	if link.mask != NoEvents {
		if err := h.mux.UnregisterFile(fd, link.mask); err != nil && !errors.Is(err, ErrUnknownFile) {
			log.Error().Msgf("[%d] error occurs while detaching fd from netpoll: %v", fd, err)
		}
		link.mask = NoEvents
	}
	if err := link.release(); err != nil {
		log.Error().Msgf("[%d] error occurs while closing link of %s: %v", fd, name, err)
	}
	if node == nil || node.link != link {
		return
	}
	node.link = nil
	node.state = Disconnected
	if cause != nil {
		log.Warn().Msgf("[%d] link of %s torn down: %v", fd, name, cause)
	} else {
		log.Info().Msgf("[%d] link of %s closed", fd, name)
	}
	h.publish(LinkDownEvent, node, cause, "")
}

func (h *Hub) publish(eventType EventType, node *Node, err error, msg string) {
	event := newNodeEvent(eventType, node, err, msg)
	if rerr := h.router.Process(node.name, event); rerr != nil {
		log.Error().Msgf("can't route %s event of %s: %+v", eventType, node.name, rerr)
	}
}

func removeVirtualName(name string) {
	info, err := os.Lstat(name)
	if err != nil {
		return
	}
	if info.Mode()&os.ModeSymlink == 0 {
		log.Warn().Msgf("not removing %s: not a symlink", name)
		return
	}
	if err := os.Remove(name); err != nil {
		log.Error().Msgf("can't remove virtual %s: %+v", name, err)
	}
}
