package sproxy

import (
	"os"
)

// RecvBufferSize bounds a single relay read.
const RecvBufferSize = 8192

// Link is the live OS connection of a connected node. It owns its
// descriptors; they are only ever closed by Hub.teardown.
type Link struct {
	node      NodeID
	fd        int
	primary   *os.File
	secondary *os.File
	recvBuf   [RecvBufferSize]byte
	recvLen   int
	mask      EventMask
	closed    bool
	stats     LinkStats
}

func newLink(node NodeID) *Link {
	return &Link{
		node: node,
		fd:   -1,
	}
}

func (l *Link) Node() NodeID {
	return l.node
}

// Fd is the primary descriptor used for I/O and readiness registration.
func (l *Link) Fd() int {
	return l.fd
}

// Mask is the set of readiness events the link is registered for.
func (l *Link) Mask() EventMask {
	return l.mask
}

// Pending returns the bytes of the most recent read that are still eligible
// for relaying in this pass.
func (l *Link) Pending() []byte {
	return l.recvBuf[:l.recvLen]
}

func (l *Link) Stats() LinkStats {
	return l.stats
}

// SlaveName is the pty slave path of a virtual link, empty for masters.
func (l *Link) SlaveName() string {
	if l.secondary == nil {
		return ""
	}
	return l.secondary.Name()
}

// release closes every descriptor the link still holds. Safe to call more
// than once.
func (l *Link) release() error {
	var err error
	if l.primary != nil {
		err = l.primary.Close()
		l.primary = nil
	}
	if l.secondary != nil {
		if serr := l.secondary.Close(); err == nil {
			err = serr
		}
		l.secondary = nil
	}
	l.fd = -1
	l.recvLen = 0
	return err
}
