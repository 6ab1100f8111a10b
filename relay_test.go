package sproxy

import (
	"github.com/stretchr/testify/require"
	"testing"
)

type relayFixture struct {
	*testRig
	dev  *fakeDevice
	m    *Node
	a, b *Node
}

// newRelayFixture builds master M with virtuals A (writer) and B, all
// connected, with clients attached to both virtuals.
func newRelayFixture(t *testing.T) (*relayFixture, int, int) {
	rig := newTestRig(t)
	dev := newFakeDevice(t, rig.dir, "ttyM")
	require.NoError(t, rig.hub.LoadTopology([]DeviceConfig{
		{Name: dev.path, Virtuals: []string{"a", "b"}, Writer: "a"},
	}))
	require.Equal(t, 0, rig.hub.Reconnect())
	f := &relayFixture{
		testRig: rig,
		dev:     dev,
		m:       rig.node(t, dev.path),
		a:       rig.node(t, dev.path+".a"),
		b:       rig.node(t, dev.path+".b"),
	}
	return f, openClient(t, dev.path+".a"), openClient(t, dev.path+".b")
}

func TestRelayEndToEnd(t *testing.T) {
	f, clientA, clientB := newRelayFixture(t)

	writeAll(t, f.dev.port, "ABCDE")
	var gotA, gotB []byte
	f.pumpUntil(t, func() bool {
		drain(clientA, &gotA)
		drain(clientB, &gotB)
		return len(gotA) >= 5 && len(gotB) >= 5
	})
	require.Equal(t, "ABCDE", string(gotA))
	require.Equal(t, "ABCDE", string(gotB))

	writeAll(t, clientB, "QQ")
	writeAll(t, clientA, "XYZ")
	var gotDev []byte
	f.pumpUntil(t, func() bool {
		drain(f.dev.port, &gotDev)
		return len(gotDev) >= 3
	})
	for i := 0; i < 50; i++ {
		f.pass(t)
		drain(f.dev.port, &gotDev)
	}
	require.Equal(t, "XYZ", string(gotDev), "only the writer reaches the device")

	drain(clientA, &gotA)
	drain(clientB, &gotB)
	require.Equal(t, "ABCDE", string(gotA), "virtuals never hear each other")
	require.Equal(t, "ABCDE", string(gotB))

	require.Equal(t, uint64(5), f.m.Link().Stats().TotalReadBytes)
	require.Equal(t, uint64(3), f.m.Link().Stats().TotalWrittenBytes)
	require.Equal(t, uint64(3), f.a.Link().Stats().TotalReadBytes)
	require.Zero(t, f.b.Link().Stats().TotalReadBytes)
	require.Len(t, f.hub.Stats(), 3)
}

func TestRelayReceiveBufferLivesOnePass(t *testing.T) {
	f, clientA, _ := newRelayFixture(t)

	writeAll(t, f.dev.port, "once")
	var got []byte
	f.pumpUntil(t, func() bool {
		drain(clientA, &got)
		return len(got) >= 4
	})
	for i := 0; i < 20; i++ {
		f.pass(t)
	}
	drain(clientA, &got)
	require.Equal(t, "once", string(got), "bytes are relayed at most once")

	f.m.Link().recvLen = 3
	require.Len(t, f.m.Link().Pending(), 3)
	f.hub.BeforeSleep()
	require.Empty(t, f.m.Link().Pending())
}

func TestRelayWithoutMasterLinkIsSilent(t *testing.T) {
	f, clientA, clientB := newRelayFixture(t)
	aLink := f.a.Link()

	require.NoError(t, f.hub.Disconnect(f.m.ID()))
	require.False(t, f.m.Connected())

	f.hub.onWritable(aLink)
	f.hub.onWritable(f.b.Link())
	for i := 0; i < 20; i++ {
		f.pass(t)
	}
	require.True(t, f.a.Connected())
	require.True(t, f.b.Connected())
	require.Same(t, aLink, f.a.Link())

	var got []byte
	drain(clientA, &got)
	drain(clientB, &got)
	require.Empty(t, got)
}

func TestRelayDeviceHangup(t *testing.T) {
	f, clientA, _ := newRelayFixture(t)

	f.dev.hangup()
	f.pumpUntil(t, func() bool { return !f.m.Connected() })

	require.Equal(t, Disconnected, f.m.State())
	require.True(t, f.a.Connected(), "virtuals outlive their master link")
	require.True(t, f.b.Connected())
	down := f.router.find(LinkDownEvent, f.dev.path)
	require.NotNil(t, down)
	require.NotEmpty(t, down.Err)

	writeAll(t, clientA, "lost")
	for i := 0; i < 20; i++ {
		f.pass(t)
	}
	require.True(t, f.a.Connected())
	require.Equal(t, 1, f.hub.Reconnect(), "the hung up device cannot be reopened")
}

func TestRelayWriterChange(t *testing.T) {
	f, clientA, clientB := newRelayFixture(t)

	require.NoError(t, f.hub.SetWriter(f.b.ID()))
	require.NotNil(t, f.router.find(WriterChangedEvent, f.b.Name()))

	writeAll(t, clientA, "old")
	writeAll(t, clientB, "new")
	var gotDev []byte
	f.pumpUntil(t, func() bool {
		drain(f.dev.port, &gotDev)
		return len(gotDev) >= 3
	})
	for i := 0; i < 20; i++ {
		f.pass(t)
		drain(f.dev.port, &gotDev)
	}
	require.Equal(t, "new", string(gotDev))
}
