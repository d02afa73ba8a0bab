package events

import (
	"sync"

	"go.uber.org/zap"
)

// EventType labels what happened.
type EventType string

const (
	// EventBlockCommit fires once a decided block's transactions have all
	// been applied and its state committed to durable storage.
	EventBlockCommit EventType = "block_commit"
	// EventTxExecuted fires after each individual transaction application.
	EventTxExecuted EventType = "tx_executed"
	// EventDecided fires when the decider observes a new finalized
	// proposal, before its body has been decoded or executed.
	EventDecided EventType = "decided"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	log      *zap.SugaredLogger
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter(log *zap.SugaredLogger) *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler), log: log}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot crash the node or halt block production.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Errorw("event handler panicked", "event_type", ev.Type, "panic", r)
				}
			}()
			h(ev)
		}()
	}
}
