package sse

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/tsengine/component"
)

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// Component runs a Hub under the component registry.
type Component struct {
	hub  *Hub
	path string
	wg   sync.WaitGroup
}

// NewComponent wraps hub; path is only reported in the startup summary.
func NewComponent(hub *Hub, path string) *Component {
	return &Component{hub: hub, path: path}
}

func (c *Component) Hub() *Hub    { return c.hub }
func (c *Component) Name() string { return "sse" }

func (c *Component) Start(_ context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.hub.Run()
	}()
	return nil
}

// Stop closes every stream and waits for the hub loop to exit.
func (c *Component) Stop(_ context.Context) error {
	c.hub.Stop()
	c.wg.Wait()
	return nil
}

func (c *Component) Health(_ context.Context) component.Health {
	h := component.Health{Name: c.Name(), Status: component.StatusHealthy}
	select {
	case <-c.hub.done:
		h.Status = component.StatusUnhealthy
		h.Message = "hub stopped"
	default:
		h.Message = fmt.Sprintf("%d clients, %d events", c.hub.ClientCount(), c.hub.Published())
	}
	return h
}

func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Event Stream",
		Type:    "sse",
		Details: "path=" + c.path,
	}
}
