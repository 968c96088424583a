package alerts

import (
	"context"
	"fmt"
	"sync"

	"github.com/mr-karan/searchwatch/internal/template"
	"github.com/mr-karan/searchwatch/pkg/models"
)

// ErrNoHandler is returned by Dispatch when no handler serves a definition's channel.
var ErrNoHandler = fmt.Errorf("%w: no handler registered for channel", models.ErrInvalidConfiguration)

// ChannelHandler renders and delivers notifications for one channel.
type ChannelHandler interface {
	Channel() models.NotificationChannel
	// Handle receives fully merged variables. Send failures are returned as is.
	Handle(ctx context.Context, def models.NotificationDefinition, vars map[string]string) error
}

// Dispatcher routes notification definitions to the handler for their channel.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []ChannelHandler
	index    map[models.NotificationChannel]ChannelHandler
}

// NewDispatcher builds a dispatcher with one handler per distinct channel.
func NewDispatcher(handlers ...ChannelHandler) (*Dispatcher, error) {
	d := &Dispatcher{index: make(map[models.NotificationChannel]ChannelHandler, len(handlers))}
	for _, h := range handlers {
		if err := d.Register(h); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Register adds a handler. A channel can only be registered once.
func (d *Dispatcher) Register(h ChannelHandler) error {
	if h == nil {
		return fmt.Errorf("nil channel handler")
	}
	ch := h.Channel()
	if ch == "" {
		return fmt.Errorf("channel handler %T reports an empty channel", h)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.index[ch]; exists {
		return fmt.Errorf("handler for channel %q already registered", ch)
	}
	d.handlers = append(d.handlers, h)
	d.index[ch] = h
	return nil
}

// Channels lists the registered channels in registration order.
func (d *Dispatcher) Channels() []models.NotificationChannel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.NotificationChannel, len(d.handlers))
	for i, h := range d.handlers {
		out[i] = h.Channel()
	}
	return out
}

// Supports reports whether a handler is registered for ch.
func (d *Dispatcher) Supports(ch models.NotificationChannel) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.index[ch]
	return ok
}

// Dispatch merges variables (context < definition defaults < invocation overrides)
// and hands the definition to its channel handler.
func (d *Dispatcher) Dispatch(ctx context.Context, def models.NotificationDefinition, invocationVars, contextVars map[string]string) error {
	ch := def.Channel()

	d.mu.RLock()
	h, ok := d.index[ch]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("notification %q: %w %q", def.ID, ErrNoHandler, ch)
	}

	vars := template.MergeVariables(contextVars, def.Variables, invocationVars)
	if err := h.Handle(ctx, def, vars); err != nil {
		return fmt.Errorf("notification %q via %s: %w", def.ID, ch, err)
	}
	return nil
}
