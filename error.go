package sproxy

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyConnected = errors.New("node already connected")
	ErrUnknownNode      = errors.New("unknown node")
	ErrNotMaster        = errors.New("node is not a master")
	ErrNotVirtual       = errors.New("node is not a virtual")
	ErrAlreadyAttached  = errors.New("virtual already attached to another master")
	ErrNotAttached      = errors.New("virtual not attached to master")
	ErrDuplicateName    = errors.New("duplicate node name")
	ErrNotTerminal      = errors.New("device is not a terminal")
	ErrUnknownFile      = errors.New("file descriptor not registered")
	ErrUnknownTimer     = errors.New("unknown timer")
	ErrInvalidBaudRate  = errors.New("invalid baud rate")
	ErrInvalidRole      = errors.New("invalid node role")
)

// ConnectError is returned when a link could not be established. The node
// stays disconnected and is retried by the next reconnect sweep.
type ConnectError struct {
	Node string
	Op   string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %s: %v", e.Node, e.Op, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IOError describes a failed relay read or write. The affected link is torn
// down before the error is reported.
type IOError struct {
	Node string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Node, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// TopologyError reports an invalid device topology.
type TopologyError struct {
	Name   string
	Reason string
	Err    error
}

func (e *TopologyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("topology %s: %s: %v", e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("topology %s: %s", e.Name, e.Reason)
}

func (e *TopologyError) Unwrap() error {
	return e.Err
}

func connectError(node, op string, err error) error {
	return &ConnectError{Node: node, Op: op, Err: err}
}
