package sproxy

import (
	"context"
	"fmt"
	"github.com/rs/zerolog/log"
)

// EventRouter delivers link events somewhere outside the relay. Process is
// called from the event loop and must not block.
type EventRouter interface {
	Process(key string, event *Event) error
	Close() error
}

// InitEventRouter builds the router selected by conf.Router. An empty
// router name selects the log router.
func InitEventRouter(ctx context.Context, conf EventsConfig) (EventRouter, error) {
	switch conf.Router {
	case "", "log":
		return NewLogEventRouter(), nil
	case "kafka":
		router, err := NewKafkaEventRouter(ctx, conf)
		if err != nil {
			return nil, err
		}
		return router, nil
	default:
		return nil, fmt.Errorf("unknown event router: %s", conf.Router)
	}
}

type logEventRouter struct{}

func NewLogEventRouter() EventRouter {
	return logEventRouter{}
}

func (logEventRouter) Process(key string, event *Event) error {
	if log.Debug().Enabled() {
		log.Debug().Msgf("[%s] event %s: %+v", key, event.Type, event)
	}
	return nil
}

func (logEventRouter) Close() error {
	return nil
}
