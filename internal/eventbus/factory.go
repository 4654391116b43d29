package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/taskforge/maf/internal/config"
	"github.com/taskforge/maf/internal/observability"
)

// New creates an event bus backend selected by cfg.EventBusType
// ("inmemory" or "brokered"). An unknown type fails fast with a
// descriptive error, per §4.4.
func New(cfg *config.AppConfig, obs *observability.Observability) (Bus, error) {
	switch cfg.EventBusType {
	case "inmemory":
		return NewInMemoryBus(obs), nil
	case "brokered":
		return NewRedisBus(RedisOptions{
			Addr:          cfg.BrokerAddr,
			ConsumerGroup: cfg.ConsumerGroup,
		}, obs), nil
	default:
		return nil, fmt.Errorf("eventbus: unsupported event bus type %q (supported: inmemory, brokered)", cfg.EventBusType)
	}
}

var (
	globalMu  sync.Mutex
	globalBus Bus
)

// Global returns the process-wide event bus, creating and starting it
// on first call via New(cfg, obs). Subsequent calls return the same
// instance regardless of cfg.
func Global(cfg *config.AppConfig, obs *observability.Observability) (Bus, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalBus != nil {
		return globalBus, nil
	}

	bus, err := New(cfg, obs)
	if err != nil {
		return nil, err
	}
	if err := bus.Start(context.Background()); err != nil {
		return nil, err
	}
	globalBus = bus
	return globalBus, nil
}

// Reset stops and clears the global event bus instance. Intended for
// tests and explicit backend switches.
func Reset(ctx context.Context) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalBus == nil {
		return nil
	}
	err := globalBus.Stop(ctx)
	globalBus = nil
	return err
}
