package sproxy

import (
	"go.uber.org/atomic"
	"strconv"
	"time"
)

type EventType int

const (
	LinkUpEvent EventType = iota + 1
	LinkDownEvent
	ConnectFailedEvent
	WriterChangedEvent
)

func (t EventType) String() string {
	switch t {
	case LinkUpEvent:
		return "link_up"
	case LinkDownEvent:
		return "link_down"
	case ConnectFailedEvent:
		return "connect_failed"
	case WriterChangedEvent:
		return "writer_changed"
	default:
		return "unknown"
	}
}

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Event is a link lifecycle notification handed to the EventRouter.
type Event struct {
	Id        string    `json:"id"`
	Timestamp int64     `json:"timestamp"`
	Type      EventType `json:"type"`
	Node      string    `json:"node"`
	Role      string    `json:"role"`
	Fd        int       `json:"fd,omitempty"`
	Mask      string    `json:"mask,omitempty"`
	Msg       string    `json:"msg,omitempty"`
	Err       string    `json:"error,omitempty"`
}

var eventSeq = atomic.NewUint64(0)

func newNodeEvent(eventType EventType, node *Node, err error, msg string) *Event {
	event := &Event{
		Id:        strconv.FormatUint(eventSeq.Inc(), 10),
		Timestamp: time.Now().UnixMilli(),
		Type:      eventType,
		Node:      node.name,
		Role:      node.role.String(),
		Msg:       msg,
		Fd:        -1,
	}
	if node.link != nil {
		event.Fd = node.link.fd
		event.Mask = node.link.mask.String()
	}
	if err != nil {
		event.Err = err.Error()
	}
	return event
}
