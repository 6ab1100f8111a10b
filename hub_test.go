package sproxy

import (
	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type recordingRouter struct {
	events []*Event
}

func (r *recordingRouter) Process(_ string, event *Event) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingRouter) Close() error {
	return nil
}

func (r *recordingRouter) find(eventType EventType, node string) *Event {
	for _, event := range r.events {
		if event.Type == eventType && event.Node == node {
			return event
		}
	}
	return nil
}

type testRig struct {
	loop   *EventLoop
	hub    *Hub
	router *recordingRouter
	dir    string
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	loop := newTestLoop(t)
	router := &recordingRouter{}
	hub := NewHub(loop, router)
	hub.SetBeforeSleepDelay(0)
	// Keeps every pass short even when nothing is ready.
	loop.CreateTimer(time.Millisecond, func(int64) time.Duration { return time.Millisecond })
	t.Cleanup(hub.Close)
	return &testRig{loop: loop, hub: hub, router: router, dir: t.TempDir()}
}

// pass runs one loop iteration the way EventLoop.Run does.
func (rig *testRig) pass(t *testing.T) {
	t.Helper()
	rig.hub.BeforeSleep()
	_, err := rig.loop.ProcessEvents()
	require.NoError(t, err)
}

func (rig *testRig) pumpUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		require.True(t, time.Now().Before(deadline), "condition not reached in time")
		rig.pass(t)
	}
}

func (rig *testRig) node(t *testing.T, name string) *Node {
	t.Helper()
	var found *Node
	rig.hub.Registry().Walk(func(node *Node) bool {
		if node.Name() == name {
			found = node
			return false
		}
		return true
	})
	require.NotNil(t, found, "no node %s", name)
	return found
}

// fakeDevice is a pty pair standing in for a physical serial port. The hub
// opens path; the test plays the remote equipment through port.
type fakeDevice struct {
	path string
	port int
	file *os.File
	tty  *os.File
}

func newFakeDevice(t *testing.T, dir, name string) *fakeDevice {
	t.Helper()
	port, tty, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() {
		port.Close()
		tty.Close()
	})
	path := filepath.Join(dir, name)
	require.NoError(t, os.Symlink(tty.Name(), path))
	fd := int(port.Fd())
	require.NoError(t, unix.SetNonblock(fd, true))
	return &fakeDevice{path: path, port: fd, file: port, tty: tty}
}

func (d *fakeDevice) hangup() {
	d.file.Close()
}

// openClient opens a published name the way a serial client would.
func openClient(t *testing.T, path string) int {
	t.Helper()
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(fd) })
	return fd
}

func writeAll(t *testing.T, fd int, data string) {
	t.Helper()
	n, err := unix.Write(fd, []byte(data))
	require.NoError(t, err)
	require.Equal(t, len(data), n)
}

// drain appends whatever fd has ready to buf.
func drain(fd int, buf *[]byte) {
	chunk := make([]byte, 256)
	for {
		n, err := unix.Read(fd, chunk)
		if n <= 0 || err != nil {
			return
		}
		*buf = append(*buf, chunk[:n]...)
	}
}

func isTerminal(path string) bool {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return false
	}
	defer unix.Close(fd)
	_, err = unix.IoctlGetTermios(fd, unix.TCGETS)
	return err == nil
}

func TestHubRuntimeTopology(t *testing.T) {
	rig := newTestRig(t)
	dev := newFakeDevice(t, rig.dir, "ttyR")

	m, err := rig.hub.AddMaster(dev.path, 19200)
	require.NoError(t, err)
	_, err = rig.hub.AddMaster(dev.path+"x", 0)
	require.ErrorIs(t, err, ErrInvalidBaudRate)
	_, err = rig.hub.AddMaster(dev.path+"x", 1<<32)
	require.ErrorIs(t, err, ErrInvalidBaudRate)

	a, err := rig.hub.AddVirtual(m, "a")
	require.NoError(t, err)
	_, err = rig.hub.AddVirtual(a, "nested")
	require.ErrorIs(t, err, ErrNotMaster)
	require.Equal(t, 0, rig.hub.Reconnect())

	late, err := rig.hub.AddVirtual(m, "late")
	require.NoError(t, err)
	require.Equal(t, 0, rig.hub.Reconnect())
	require.True(t, rig.hub.Registry().Node(late).Connected())
	require.True(t, isTerminal(dev.path+".late"))

	require.NoError(t, rig.hub.RemoveNode(late))
	require.Nil(t, rig.hub.Registry().Node(late))
	_, err = os.Lstat(dev.path + ".late")
	require.True(t, os.IsNotExist(err))

	require.NoError(t, rig.hub.RemoveNode(m))
	require.Nil(t, rig.hub.Registry().Node(a))
	_, err = os.Lstat(dev.path + ".a")
	require.True(t, os.IsNotExist(err))
	require.Zero(t, rig.hub.Registry().Len())
}

func TestHubCloseRemovesVirtualNames(t *testing.T) {
	rig := newTestRig(t)
	dev := newFakeDevice(t, rig.dir, "ttyC")
	require.NoError(t, rig.hub.LoadTopology([]DeviceConfig{
		{Name: dev.path, Virtuals: []string{"a", "b"}},
	}))
	require.Equal(t, 0, rig.hub.Reconnect())
	b := rig.node(t, dev.path+".b")
	require.NoError(t, rig.hub.Detach(b.ID()))

	rig.hub.Close()
	rig.hub.Registry().Walk(func(node *Node) bool {
		require.False(t, node.Connected(), node.Name())
		return true
	})
	require.False(t, b.Connected())
	require.Zero(t, rig.hub.Registry().Len(), "every node is released")
	require.Empty(t, rig.hub.Registry().Masters())
	for _, suffix := range []string{"a", "b"} {
		_, err := os.Lstat(dev.path + "." + suffix)
		require.True(t, os.IsNotExist(err), suffix)
	}
}
