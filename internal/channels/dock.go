package channels

import (
	"context"
	"fmt"
	"sync"
)

// State is a channel's lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateStarting     State = "starting"
	StateRunning      State = "running"
	StateStopping     State = "stopping"
	StateFailed       State = "failed"
)

// ChannelStatus is one channel's lifecycle snapshot.
type ChannelStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	State     State  `json:"state"`
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

type dockEntry struct {
	mu    sync.Mutex
	state State
	err   error
	// inFlight is non-nil while a start is running; awaiters wait on it.
	inFlight chan struct{}
}

// Dock drives every registered plugin through the lifecycle state machine:
//
//	Disconnected --start--> Starting --ok--> Running --stop--> Stopping --ok--> Disconnected
//	                              \--fail--> Failed (retryable)
type Dock struct {
	registry *Registry

	mu      sync.Mutex
	entries map[string]*dockEntry
}

// NewDock creates a Dock driving the given registry's plugins.
func NewDock(registry *Registry) *Dock {
	return &Dock{registry: registry, entries: make(map[string]*dockEntry)}
}

func (d *Dock) entry(id string) *dockEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[id]
	if !ok {
		e = &dockEntry{state: StateDisconnected}
		d.entries[id] = e
	}
	return e
}

// StartChannel starts the plugin with the given id. It is idempotent when
// the channel is already Running, and awaits an in-flight start when the
// channel is already Starting.
func (d *Dock) StartChannel(ctx context.Context, id string) error {
	plugin, ok := d.registry.Get(id)
	if !ok {
		return fmt.Errorf("channel not found: %s", id)
	}

	e := d.entry(id)
	e.mu.Lock()
	switch e.state {
	case StateRunning:
		e.mu.Unlock()
		return nil
	case StateStarting:
		wait := e.inFlight
		e.mu.Unlock()
		<-wait
		return nil
	}
	e.state = StateStarting
	e.err = nil
	inFlight := make(chan struct{})
	e.inFlight = inFlight
	e.mu.Unlock()

	err := plugin.Start(ctx)

	e.mu.Lock()
	if err != nil {
		e.state = StateFailed
		e.err = err
	} else {
		e.state = StateRunning
	}
	e.inFlight = nil
	e.mu.Unlock()
	close(inFlight)

	return err
}

// StopChannel stops the plugin with the given id. It is idempotent when
// the channel is already Disconnected.
func (d *Dock) StopChannel(ctx context.Context, id string) error {
	plugin, ok := d.registry.Get(id)
	if !ok {
		return fmt.Errorf("channel not found: %s", id)
	}

	e := d.entry(id)
	e.mu.Lock()
	if e.state == StateDisconnected {
		e.mu.Unlock()
		return nil
	}
	e.state = StateStopping
	e.mu.Unlock()

	err := plugin.Stop(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.state = StateFailed
		e.err = err
		return err
	}
	e.state = StateDisconnected
	e.err = nil
	return nil
}

// Status returns a lifecycle snapshot for every registered channel.
func (d *Dock) Status() []ChannelStatus {
	plugins := d.registry.List()
	out := make([]ChannelStatus, 0, len(plugins))
	for _, p := range plugins {
		e := d.entry(p.ID())
		e.mu.Lock()
		state := e.state
		var errMsg string
		if e.err != nil {
			errMsg = e.err.Error()
		}
		e.mu.Unlock()

		pluginStatus := p.Status()
		out = append(out, ChannelStatus{
			ID:        p.ID(),
			Name:      p.DisplayName(),
			State:     state,
			Connected: pluginStatus.Connected,
			Error:     errMsg,
		})
	}
	return out
}
