package sproxy

import (
	"context"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const Version = "1.0.0"

// Server drives a Hub from an EventLoop: it runs the cron timer that
// reconnects links, dumps stats and observes shutdown requests.
type Server struct {
	ctx        context.Context
	cancel     context.CancelFunc
	config     *Config
	loop       *EventLoop
	hub        *Hub
	router     EventRouter
	shutdown   *atomic.Bool
	cronLoops  int64
	cronID     int64
	signals    chan os.Signal
	exit       func(code int)
	terminated bool
}

func NewServer(ctx context.Context, config *Config) (*Server, error) {
	serverCtx, cancel := context.WithCancel(ctx)
	loop, err := NewEventLoop(EventLoopConfig{
		Name:            "MainLoop",
		LockOsThread:    config.Global.LockOSThread(),
		EventBufferSize: config.Global.EventBufferSize,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	router, err := InitEventRouter(serverCtx, config.Events)
	if err != nil {
		loop.Close()
		cancel()
		return nil, err
	}
	hub := NewHub(loop, router)
	hub.SetBeforeSleepDelay(time.Duration(config.Global.BeforeSleepDelay()) * time.Millisecond)
	if err := hub.LoadTopology(config.Devices); err != nil {
		_ = router.Close()
		loop.Close()
		cancel()
		return nil, err
	}
	EnsureFileLimit(requiredFiles(hub.Registry()))
	s := &Server{
		ctx:      serverCtx,
		cancel:   cancel,
		config:   config,
		loop:     loop,
		hub:      hub,
		router:   router,
		shutdown: atomic.NewBool(false),
		cronID:   -1,
		exit:     os.Exit,
	}
	return s, nil
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Loop() *EventLoop {
	return s.loop
}

// Init arms the cron timer and the before-sleep hook and makes the first
// connection attempt for every node.
func (s *Server) Init() {
	s.cronID = s.loop.CreateTimer(time.Millisecond, s.cron)
	s.loop.SetBeforeSleep(s.hub.BeforeSleep)
	s.hub.Reconnect()
}

// Start installs the signal handlers, runs the loop until shutdown and
// releases everything.
func (s *Server) Start() {
	s.handleSignals()
	s.Init()
	log.Info().Msgf("Server started, sproxy version %s", Version)
	s.loop.Run()
	s.Term()
}

// RequestShutdown asks the loop to stop after the current pass. It reports
// false when a shutdown was already pending.
func (s *Server) RequestShutdown() bool {
	return s.shutdown.CAS(false, true)
}

func (s *Server) ShutdownPending() bool {
	return s.shutdown.Load()
}

func (s *Server) handleSignals() {
	signal.Ignore(syscall.SIGHUP, syscall.SIGPIPE)
	s.signals = make(chan os.Signal, 2)
	signal.Notify(s.signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			select {
			case <-s.ctx.Done():
				return
			case sig := <-s.signals:
				s.onSignal(sig)
			}
		}
	}()
}

func (s *Server) onSignal(sig os.Signal) {
	if !s.RequestShutdown() && sig == syscall.SIGINT {
		log.Warn().Msg("second SIGINT received, exiting now")
		s.exit(1)
		return
	}
	log.Info().Msgf("received %s", sig)
}

func (s *Server) cron(int64) time.Duration {
	if s.shutdown.Load() {
		s.prepareForShutdown()
		s.loop.Stop()
		s.cronID = -1
		return NoMore
	}
	if s.runWithPeriod(s.config.Global.ReconnectIntervalMs) {
		s.hub.Reconnect()
	}
	if stats := s.config.Global.StatsInterval(); stats > 0 && s.runWithPeriod(stats*1000) {
		s.hub.LogStats()
	}
	s.cronLoops++
	return s.cronPeriod()
}

func (s *Server) cronPeriod() time.Duration {
	return time.Duration(1000/s.config.Global.Hz) * time.Millisecond
}

func (s *Server) runWithPeriod(ms int) bool {
	period := 1000 / s.config.Global.Hz
	return ms <= period || s.cronLoops%int64(ms/period) == 0
}

func (s *Server) prepareForShutdown() {
	log.Warn().Msg("User requested shutdown...")
	if s.config.Global.PidFile != "" {
		RemovePidFile(s.config.Global.PidFile)
	}
}

// Term closes every link, the event router and the loop. It is safe to call
// more than once.
func (s *Server) Term() {
	if s.terminated {
		return
	}
	s.terminated = true
	s.hub.Close()
	if s.cronID >= 0 {
		if err := s.loop.DeleteTimer(s.cronID); err != nil {
			log.Warn().Msgf("Failed removing event loop timers: %+v", err)
		}
	}
	if err := s.router.Close(); err != nil {
		log.Error().Msgf("got error while closing event router: %+v", err)
	}
	if s.signals != nil {
		signal.Stop(s.signals)
	}
	s.cancel()
	s.loop.Close()
}

func requiredFiles(registry *Registry) uint64 {
	var files uint64
	registry.Walk(func(node *Node) bool {
		if node.IsMaster() {
			files++
		} else {
			files += 2
		}
		return true
	})
	return files
}
