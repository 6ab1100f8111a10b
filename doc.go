// Package sproxy implements a serial port multiplexer.
//
// One physical ("master") serial device is fanned out to any number of
// virtual endpoints. Every virtual endpoint is a pseudo-terminal whose slave
// side is published through a symlink named "<master>.<suffix>", so other
// processes open it like an ordinary tty. Bytes read from the master are
// broadcast to all of its virtuals; bytes read from the single virtual
// designated as writer are relayed back to the master.
//
// Everything runs on one epoll driven EventLoop:
//
//	loop, err := sproxy.NewEventLoop(sproxy.EventLoopConfig{Name: "main"})
//	if err != nil {
//	    log.Fatal().Msgf("%+v", err)
//	}
//	hub := sproxy.NewHub(loop, nil)
//	if err := hub.LoadTopology(config.Devices); err != nil {
//	    log.Fatal().Msgf("%+v", err)
//	}
//	loop.SetBeforeSleep(hub.BeforeSleep)
//	hub.Reconnect()
//	loop.Run()
//
// Linux only.
package sproxy
