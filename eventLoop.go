package sproxy

import (
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
	"runtime"
	"time"
)

type EventMask uint8

const (
	Readable EventMask = 1 << iota
	Writable

	NoEvents EventMask = 0
)

func (m EventMask) String() string {
	switch m & (Readable | Writable) {
	case Readable | Writable:
		return "rw"
	case Readable:
		return "r"
	case Writable:
		return "w"
	default:
		return "-"
	}
}

// FileHandler is invoked with the subset of registered events that fired.
type FileHandler func(fd int, mask EventMask)

// TimerHandler returns the delay until its next run, or NoMore to be
// deleted.
type TimerHandler func(id int64) time.Duration

const NoMore time.Duration = -1

// Multiplexer is the readiness based I/O loop the relay runs on.
type Multiplexer interface {
	RegisterFile(fd int, mask EventMask, handler FileHandler) error
	UnregisterFile(fd int, mask EventMask) error
	CreateTimer(after time.Duration, handler TimerHandler) int64
	DeleteTimer(id int64) error
	SetBeforeSleep(hook func())
	Run()
	Stop()
}

type EventLoopConfig struct {
	Name            string
	LockOsThread    bool
	EventBufferSize int
}

type fileEvent struct {
	mask    EventMask
	handler FileHandler
}

type timeEvent struct {
	id      int64
	when    time.Time
	handler TimerHandler
	deleted bool
}

// EventLoop is a single threaded, level triggered epoll loop with timers
// and a hook run before every blocking wait.
type EventLoop struct {
	Name         string
	lockOsThread bool
	isRunning    *atomic.Bool
	poller       *Poller
	files        map[int]*fileEvent
	timers       []*timeEvent
	nextTimerID  int64
	beforeSleep  func()
	now          func() time.Time
}

func NewEventLoop(config EventLoopConfig) (*EventLoop, error) {
	if log.Debug().Enabled() {
		log.Debug().Msgf("init event loop:%+v", config)
	} else {
		log.Info().Msgf("init event loop:%s", config.Name)
	}

	poller, err := openPoller(config.EventBufferSize)
	if err != nil {
		log.Error().Msgf("can't open poller: %+v", err)
		return nil, err
	}
	eLoop := &EventLoop{
		Name:         config.Name,
		lockOsThread: config.LockOsThread,
		isRunning:    atomic.NewBool(false),
		poller:       poller,
		files:        make(map[int]*fileEvent),
		now:          time.Now,
	}
	return eLoop, nil
}

// Run processes passes until Stop is called. Stop takes effect once the
// current pass is complete.
func (el *EventLoop) Run() {
	if el.lockOsThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	el.isRunning.Store(true)
	for el.isRunning.Load() {
		if el.beforeSleep != nil {
			el.beforeSleep()
		}
		if _, err := el.ProcessEvents(); err != nil {
			log.Error().Msgf("got error while waiting for the events: %+v", err)
		}
	}
}

func (el *EventLoop) Stop() {
	el.isRunning.Store(false)
}

func (el *EventLoop) IsRunning() bool {
	return el.isRunning.Load()
}

// Close releases the epoll descriptor. Registered descriptors are not
// touched.
func (el *EventLoop) Close() {
	el.poller.close()
}

func (el *EventLoop) SetBeforeSleep(hook func()) {
	el.beforeSleep = hook
}

// RegisterFile adds mask to the events watched on fd. A descriptor has a
// single handler; registering again replaces it.
func (el *EventLoop) RegisterFile(fd int, mask EventMask, handler FileHandler) error {
	fe, ok := el.files[fd]
	if !ok {
		if err := el.poller.add(fd, mask); err != nil {
			return err
		}
		el.files[fd] = &fileEvent{mask: mask, handler: handler}
		return nil
	}
	newMask := fe.mask | mask
	if newMask != fe.mask {
		if err := el.poller.modify(fd, newMask); err != nil {
			return err
		}
	}
	fe.mask = newMask
	fe.handler = handler
	return nil
}

// UnregisterFile removes mask from the events watched on fd. The descriptor
// is dropped from epoll once no events are left.
func (el *EventLoop) UnregisterFile(fd int, mask EventMask) error {
	fe, ok := el.files[fd]
	if !ok {
		return ErrUnknownFile
	}
	newMask := fe.mask &^ mask
	if newMask == NoEvents {
		delete(el.files, fd)
		return el.poller.delete(fd)
	}
	if newMask != fe.mask {
		fe.mask = newMask
		return el.poller.modify(fd, newMask)
	}
	return nil
}

// Mask returns the events currently watched on fd.
func (el *EventLoop) Mask(fd int) EventMask {
	if fe, ok := el.files[fd]; ok {
		return fe.mask
	}
	return NoEvents
}

func (el *EventLoop) CreateTimer(after time.Duration, handler TimerHandler) int64 {
	el.nextTimerID++
	el.timers = append(el.timers, &timeEvent{
		id:      el.nextTimerID,
		when:    el.now().Add(after),
		handler: handler,
	})
	return el.nextTimerID
}

func (el *EventLoop) DeleteTimer(id int64) error {
	for _, te := range el.timers {
		if te.id == id && !te.deleted {
			te.deleted = true
			return nil
		}
	}
	return ErrUnknownTimer
}

// ProcessEvents runs one pass: wait for readiness bounded by the nearest
// timer, service ready descriptors, then fire due timers. Descriptors are
// serviced in two rounds, every readable one first and then every writable
// one, each round in the order epoll reports them. Bytes read during a pass
// are therefore visible to every write handler of the same pass. It returns
// the number of handler calls.
func (el *EventLoop) ProcessEvents() (int, error) {
	ready, err := el.poller.wait(el.waitTimeout())
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, round := range [...]EventMask{Readable, Writable} {
		for _, event := range ready {
			fd := int(event.Fd)
			fe, ok := el.files[fd]
			if !ok {
				continue
			}
			mask := firedMask(event.Events, fe.mask) & round
			if mask == NoEvents {
				continue
			}
			fe.handler(fd, mask)
			processed++
		}
	}
	processed += el.processTimers()
	return processed, nil
}

func (el *EventLoop) waitTimeout() int {
	var nearest *timeEvent
	for _, te := range el.timers {
		if te.deleted {
			continue
		}
		if nearest == nil || te.when.Before(nearest.when) {
			nearest = te
		}
	}
	if nearest == nil {
		return blocked
	}
	wait := nearest.when.Sub(el.now())
	if wait <= 0 {
		return 0
	}
	msec := int((wait + time.Millisecond - 1) / time.Millisecond)
	return msec
}

func (el *EventLoop) processTimers() int {
	processed := 0
	now := el.now()
	// Timers created by a handler wait for the next pass.
	due := len(el.timers)
	for i := 0; i < due; i++ {
		te := el.timers[i]
		if te.deleted || te.when.After(now) {
			continue
		}
		next := te.handler(te.id)
		processed++
		if te.deleted {
			continue
		}
		if next < 0 {
			te.deleted = true
			continue
		}
		te.when = el.now().Add(next)
	}
	alive := el.timers[:0]
	for _, te := range el.timers {
		if !te.deleted {
			alive = append(alive, te)
		}
	}
	for i := len(alive); i < len(el.timers); i++ {
		el.timers[i] = nil
	}
	el.timers = alive
	return processed
}
