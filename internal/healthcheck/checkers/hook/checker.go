// Package hookchecker reports whether the ComWeChat hook is reachable and
// logged in, and how many inbound payloads are still outstanding.
package hookchecker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/honus/comwechat/internal/healthcheck"
)

const (
	checkTypeLogin   = "hook.login"
	checkTypeBacklog = "hook.backlog"

	defaultPendingWarn = 50
	probeTimeout       = 5 * time.Second
)

// Source is the part of the adapter the checker reads.
type Source interface {
	LoggedIn(ctx context.Context) (bool, error)
	Pending() int
	StagedFiles() int
}

type Checker struct {
	logger      *slog.Logger
	source      Source
	pendingWarn int
}

// NewChecker creates a hook checker. pendingWarn <= 0 uses the default threshold.
func NewChecker(log *slog.Logger, source Source, pendingWarn int) *Checker {
	if log == nil {
		log = slog.Default()
	}
	if pendingWarn <= 0 {
		pendingWarn = defaultPendingWarn
	}
	return &Checker{
		logger:      log.With(slog.String("checker", "healthcheck_hook")),
		source:      source,
		pendingWarn: pendingWarn,
	}
}

func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	if c.source == nil {
		return []healthcheck.CheckResult{{
			ID:      checkTypeLogin + ".service",
			Type:    checkTypeLogin,
			Status:  healthcheck.StatusWarn,
			Summary: "Hook checker service is not available.",
		}}
	}
	return []healthcheck.CheckResult{c.login(ctx), c.backlog()}
}

func (c *Checker) login(ctx context.Context) healthcheck.CheckResult {
	item := healthcheck.CheckResult{ID: checkTypeLogin, Type: checkTypeLogin}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	ok, err := c.source.LoggedIn(ctx)
	switch {
	case err != nil:
		c.logger.Warn("hook login probe failed", slog.Any("error", err))
		item.Status = healthcheck.StatusError
		item.Summary = "Hook is unreachable."
		item.Detail = err.Error()
	case !ok:
		item.Status = healthcheck.StatusWarn
		item.Summary = "WeChat account is not logged in."
	default:
		item.Status = healthcheck.StatusOK
		item.Summary = "WeChat account is logged in."
	}
	return item
}

func (c *Checker) backlog() healthcheck.CheckResult {
	pending := c.source.Pending()
	staged := c.source.StagedFiles()
	item := healthcheck.CheckResult{
		ID:      checkTypeBacklog,
		Type:    checkTypeBacklog,
		Status:  healthcheck.StatusOK,
		Summary: fmt.Sprintf("%d messages waiting for payloads.", pending),
		Metadata: map[string]any{
			"pending": pending,
			"staged":  staged,
		},
	}
	if pending >= c.pendingWarn {
		item.Status = healthcheck.StatusWarn
	}
	return item
}
