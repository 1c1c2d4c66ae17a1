package service

import (
	"context"
	"fmt"
)

// Runnable is a long-running component with a graceful stop.
type Runnable interface {
	Run()
	Shutdown(ctx context.Context) error
}

// Group is a container for managing a bunch of services.
type Group struct {
	list []Runnable
}

func (g *Group) Add(services ...Runnable) { g.list = append(g.list, services...) }

// Start starts each service in the group.
func (g *Group) Start() {
	for _, s := range g.list {
		s.Run()
	}
}

// Shutdown terminates a group of services.
func (g *Group) Shutdown(ctx context.Context) (err error) {
	var errs []error
	for _, s := range g.list {
		if err := s.Shutdown(ctx); err != nil && err != context.Canceled {
			errs = append(errs, fmt.Errorf("error: failed to stop [%s] because of %v", s, err))
		}
	}
	if len(errs) > 0 {
		err = fmt.Errorf("%s", errs)
	}
	return
}
