package session

import (
	"log/slog"
	"sync"

	"github.com/audiorelay/speech-gateway/internal/event"
	"github.com/audiorelay/speech-gateway/internal/metrics"
)

// outputDepth bounds the per-client outbound queue. Events published
// past this bound are dropped so a stalled writer cannot wedge the
// publisher.
const outputDepth = 64

type output struct {
	mu     sync.Mutex
	ch     chan event.Outbound
	closed bool
}

// Dispatcher routes outbound events to per-client queues. Events for one
// client are delivered in publish order; events for clients that have
// been removed are dropped without error.
type Dispatcher struct {
	outputs map[string]*output
	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher(logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		outputs: make(map[string]*output),
		logger:  logger,
		metrics: m,
	}
}

// Open registers a client and returns its outbound event channel. The
// channel is closed when the client is removed. Opening an already
// registered client returns the existing channel.
func (d *Dispatcher) Open(clientID string) <-chan event.Outbound {
	d.mu.Lock()
	defer d.mu.Unlock()

	if out, exists := d.outputs[clientID]; exists {
		return out.ch
	}

	out := &output{ch: make(chan event.Outbound, outputDepth)}
	d.outputs[clientID] = out

	d.logger.Debug("Dispatcher output opened", slog.String("client_id", clientID))

	return out.ch
}

// Publish queues an event for a client, preserving publish order per
// client. Publishing to an unknown or removed client drops the event,
// as does a full queue; Publish never blocks the caller.
func (d *Dispatcher) Publish(clientID string, ev event.Outbound) {
	d.mu.RLock()
	out, exists := d.outputs[clientID]
	d.mu.RUnlock()

	if !exists {
		d.metrics.RecordPublishDropped()
		d.logger.Debug("Dropping event for removed client",
			slog.String("client_id", clientID),
			slog.String("type", ev.Type),
		)
		return
	}

	out.mu.Lock()
	defer out.mu.Unlock()

	if out.closed {
		d.metrics.RecordPublishDropped()
		return
	}

	select {
	case out.ch <- ev:
		d.metrics.RecordEventPublished(ev.Type)
	default:
		d.metrics.RecordPublishDropped()
		d.logger.Warn("Dropping event for stalled client",
			slog.String("client_id", clientID),
			slog.String("type", ev.Type),
		)
	}
}

// Close removes a client and closes its event channel. Safe to call for
// clients that were never opened.
func (d *Dispatcher) Close(clientID string) {
	d.mu.Lock()
	out, exists := d.outputs[clientID]
	delete(d.outputs, clientID)
	d.mu.Unlock()

	if !exists {
		return
	}

	out.mu.Lock()
	out.closed = true
	close(out.ch)
	out.mu.Unlock()

	d.logger.Debug("Dispatcher output closed", slog.String("client_id", clientID))
}

// CloseAll removes every client during shutdown
func (d *Dispatcher) CloseAll() {
	d.mu.Lock()
	outputs := d.outputs
	d.outputs = make(map[string]*output)
	d.mu.Unlock()

	for _, out := range outputs {
		out.mu.Lock()
		out.closed = true
		close(out.ch)
		out.mu.Unlock()
	}
}
