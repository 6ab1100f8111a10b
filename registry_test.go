package sproxy

import (
	"errors"
	"github.com/stretchr/testify/require"
	"testing"
)

func mustCreateNode(t *testing.T, r *Registry, name string, role Role) NodeID {
	t.Helper()
	id, err := r.CreateNode(name, role)
	require.NoError(t, err)
	return id
}

func TestRegistryRejectsUnknownRole(t *testing.T) {
	r := NewRegistry()
	id, err := r.CreateNode("/dev/ttyS9", Role(0))
	require.ErrorIs(t, err, ErrInvalidRole)
	require.Equal(t, NoNode, id)
	_, err = r.CreateNode("/dev/ttyS9", Role(7))
	require.ErrorIs(t, err, ErrInvalidRole)
	require.Zero(t, r.Len())
}

func TestRegistryAttachDetach(t *testing.T) {
	r := NewRegistry()
	m := mustCreateNode(t, r, "/dev/ttyS0", RoleMaster)
	require.NoError(t, r.AddMaster(m))
	a := mustCreateNode(t, r, "/dev/ttyS0.a", RoleVirtual)
	b := mustCreateNode(t, r, "/dev/ttyS0.b", RoleVirtual)

	require.NoError(t, r.Attach(m, a))
	require.NoError(t, r.Attach(m, b))
	require.NoError(t, r.Attach(m, a), "attaching twice to the same master is a no-op")
	require.Equal(t, []NodeID{a, b}, r.Node(m).Children())
	require.Equal(t, m, r.Node(a).Parent())

	other := mustCreateNode(t, r, "/dev/ttyS1", RoleMaster)
	require.NoError(t, r.AddMaster(other))
	err := r.Attach(other, a)
	require.True(t, errors.Is(err, ErrAlreadyAttached))

	require.NoError(t, r.Detach(m, a))
	require.Equal(t, NoNode, r.Node(a).Parent())
	require.Equal(t, []NodeID{b}, r.Node(m).Children())
	require.True(t, errors.Is(r.Detach(m, a), ErrNotAttached))
	require.NoError(t, r.Attach(other, a))
}

func TestRegistryRoleChecks(t *testing.T) {
	r := NewRegistry()
	m := mustCreateNode(t, r, "m", RoleMaster)
	v := mustCreateNode(t, r, "m.v", RoleVirtual)

	require.True(t, errors.Is(r.AddMaster(v), ErrNotMaster))
	require.True(t, errors.Is(r.Attach(v, m), ErrNotMaster))
	require.True(t, errors.Is(r.Attach(m, m), ErrNotVirtual))
	require.True(t, errors.Is(r.DesignateWriter(m), ErrNotVirtual))
	require.True(t, errors.Is(r.Attach(m, NodeID(42)), ErrUnknownNode))

	var topoErr *TopologyError
	require.True(t, errors.As(r.Attach(m, m), &topoErr))
	require.Equal(t, "m", topoErr.Name)
}

func TestRegistryDuplicateMaster(t *testing.T) {
	r := NewRegistry()
	first := mustCreateNode(t, r, "/dev/ttyUSB0", RoleMaster)
	require.NoError(t, r.AddMaster(first))
	require.NoError(t, r.AddMaster(first))
	second := mustCreateNode(t, r, "/dev/ttyUSB0", RoleMaster)
	require.True(t, errors.Is(r.AddMaster(second), ErrDuplicateName))
	require.Equal(t, []NodeID{first}, r.Masters())
}

func TestRegistryActiveWriterIsFirstFlagged(t *testing.T) {
	r := NewRegistry()
	m := mustCreateNode(t, r, "m", RoleMaster)
	require.NoError(t, r.AddMaster(m))
	var ids []NodeID
	for _, name := range []string{"m.a", "m.b", "m.c"} {
		id := mustCreateNode(t, r, name, RoleVirtual)
		require.NoError(t, r.Attach(m, id))
		ids = append(ids, id)
	}

	_, ok := r.ActiveWriter(m)
	require.False(t, ok)

	require.NoError(t, r.DesignateWriter(ids[2]))
	require.NoError(t, r.DesignateWriter(ids[1]))
	writer, ok := r.ActiveWriter(m)
	require.True(t, ok)
	require.Equal(t, ids[1], writer)
	require.True(t, r.Node(ids[2]).IsWriter(), "other flags are kept")

	r.ClearWriter(ids[1])
	writer, _ = r.ActiveWriter(m)
	require.Equal(t, ids[2], writer)
}

func TestRegistryRelease(t *testing.T) {
	r := NewRegistry()
	m := mustCreateNode(t, r, "m", RoleMaster)
	require.NoError(t, r.AddMaster(m))
	a := mustCreateNode(t, r, "m.a", RoleVirtual)
	b := mustCreateNode(t, r, "m.b", RoleVirtual)
	require.NoError(t, r.Attach(m, a))
	require.NoError(t, r.Attach(m, b))

	r.Release(a)
	require.Nil(t, r.Node(a))
	require.Equal(t, []NodeID{b}, r.Node(m).Children())

	r.Release(m)
	require.Nil(t, r.Node(m))
	require.Empty(t, r.Masters())
	require.Equal(t, NoNode, r.Node(b).Parent(), "virtuals of a released master are orphaned")
	require.Equal(t, 1, r.Len())

	next := mustCreateNode(t, r, "m", RoleMaster)
	require.NotEqual(t, m, next, "ids are never reused")
	require.NotEqual(t, a, next)
}

func TestRegistryWalkOrder(t *testing.T) {
	r := NewRegistry()
	var want []string
	for _, master := range []string{"x", "y"} {
		m := mustCreateNode(t, r, master, RoleMaster)
		require.NoError(t, r.AddMaster(m))
		want = append(want, master)
		for _, suffix := range []string{"1", "2"} {
			name := VirtualName(master, suffix)
			v := mustCreateNode(t, r, name, RoleVirtual)
			require.NoError(t, r.Attach(m, v))
			want = append(want, name)
		}
	}

	var got []string
	r.Walk(func(node *Node) bool {
		got = append(got, node.Name())
		return true
	})
	require.Equal(t, want, got)

	got = got[:0]
	r.Walk(func(node *Node) bool {
		got = append(got, node.Name())
		return len(got) < 2
	})
	require.Equal(t, []string{"x", "x.1"}, got)
}
