package event

import (
	evbus "github.com/asaskevich/EventBus"

	logging "github.com/talentchain/go-walletd/lib/log"
	"github.com/talentchain/go-walletd/lib/types"
)

var logger = logging.Logger("event")

// Bus broadcasts session lifecycle events to registered listeners.
// Dispatch is synchronous: each handler runs once per Emit, in registration
// order. No history, no backpressure; listener count is assumed small.
type Bus struct {
	bus evbus.Bus
}

func NewBus() *Bus {
	return &Bus{bus: evbus.New()}
}

// Emit publishes payload to every listener currently registered for ev.
func (b *Bus) Emit(ev types.EventType, payload interface{}) {
	logger.Debugf("emit %s", ev)
	b.bus.Publish(string(ev), payload)
}

// On registers fn for ev. fn must be a func taking one payload argument.
func (b *Bus) On(ev types.EventType, fn interface{}) error {
	return b.bus.Subscribe(string(ev), fn)
}

// Off removes a previously registered fn.
func (b *Bus) Off(ev types.EventType, fn interface{}) error {
	return b.bus.Unsubscribe(string(ev), fn)
}

// WaitAsync blocks until all async callbacks complete; handy in tests.
func (b *Bus) WaitAsync() {
	b.bus.WaitAsync()
}
