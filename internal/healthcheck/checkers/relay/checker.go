// Package relaychecker reports whether a middleware client is attached to the relay.
package relaychecker

import (
	"context"
	"fmt"

	"github.com/honus/comwechat/internal/healthcheck"
)

const checkTypeRelay = "relay.clients"

// Observer reads the relay hub state.
type Observer interface {
	Clients() int
	Backlog() int
}

type Checker struct {
	observer Observer
}

func NewChecker(observer Observer) *Checker {
	return &Checker{observer: observer}
}

func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	if c.observer == nil {
		return nil
	}
	clients := c.observer.Clients()
	backlog := c.observer.Backlog()
	item := healthcheck.CheckResult{
		ID:      checkTypeRelay,
		Type:    checkTypeRelay,
		Status:  healthcheck.StatusOK,
		Summary: fmt.Sprintf("%d middleware clients connected.", clients),
		Metadata: map[string]any{
			"clients": clients,
			"backlog": backlog,
		},
	}
	if clients == 0 {
		item.Status = healthcheck.StatusWarn
		item.Summary = fmt.Sprintf("No middleware client connected, %d frames queued.", backlog)
	}
	return []healthcheck.CheckResult{item}
}
