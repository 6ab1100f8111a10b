package sproxy

import (
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
	"os"
)

const (
	defEventsBufferSize = 64
	blocked             = -1
)

const (
	readEvents  = unix.EPOLLPRI | unix.EPOLLIN
	writeEvents = unix.EPOLLOUT
	errorEvents = unix.EPOLLERR | unix.EPOLLHUP
)

// Poller is a level triggered epoll instance.
type Poller struct {
	fd     int
	events []unix.EpollEvent
}

func openPoller(eventsBufferSize int) (*Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	bufferSize := eventsBufferSize
	if bufferSize < defEventsBufferSize {
		bufferSize = defEventsBufferSize
	}
	return &Poller{
		fd:     fd,
		events: make([]unix.EpollEvent, bufferSize),
	}, nil
}

func (p *Poller) close() {
	err := os.NewSyscallError("close", unix.Close(p.fd))
	if err != nil {
		log.Error().Msgf("got error while closing epoll: %+v", err)
	}
}

// wait blocks for at most msec milliseconds (blocked waits forever) and
// returns the ready events. An interrupted wait returns no events.
func (p *Poller) wait(msec int) ([]unix.EpollEvent, error) {
	n, err := unix.EpollWait(p.fd, p.events, msec)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, os.NewSyscallError("epoll_wait", err)
	}
	return p.events[:n], nil
}

func (p *Poller) add(fd int, mask EventMask) error {
	if log.Debug().Enabled() {
		log.Debug().Msgf("add %s epoll for fd: %d", mask, fd)
	}
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: epollEvents(mask)})
	if err != nil {
		return os.NewSyscallError("epoll_ctl add", err)
	}
	return nil
}

func (p *Poller) modify(fd int, mask EventMask) error {
	if log.Debug().Enabled() {
		log.Debug().Msgf("modify epoll for fd: %d to %s", fd, mask)
	}
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: epollEvents(mask)})
	if err != nil {
		return os.NewSyscallError("epoll_ctl mod", err)
	}
	return nil
}

func (p *Poller) delete(fd int) error {
	if log.Debug().Enabled() {
		log.Debug().Msgf("delete epoll for fd: %d", fd)
	}
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil {
		return os.NewSyscallError("epoll_ctl del", err)
	}
	return nil
}

func epollEvents(mask EventMask) uint32 {
	var events uint32
	if mask&Readable != 0 {
		events |= readEvents
	}
	if mask&Writable != 0 {
		events |= writeEvents
	}
	return events
}

// firedMask translates epoll events back to the registered mask. Errors and
// hang-ups are reported as both readable and writable so the handler sees
// the failure on its next I/O call.
func firedMask(events uint32, registered EventMask) EventMask {
	var mask EventMask
	if events&readEvents != 0 {
		mask |= Readable
	}
	if events&writeEvents != 0 {
		mask |= Writable
	}
	if events&errorEvents != 0 {
		mask |= Readable | Writable
	}
	return mask & registered
}
