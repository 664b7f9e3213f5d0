package relaychecker

import (
	"context"
	"testing"

	"github.com/honus/comwechat/internal/healthcheck"
)

type fakeObserver struct{ clients, backlog int }

func (f fakeObserver) Clients() int { return f.clients }
func (f fakeObserver) Backlog() int { return f.backlog }

func TestRelayChecker(t *testing.T) {
	t.Parallel()

	items := NewChecker(fakeObserver{clients: 1}).ListChecks(context.Background())
	if len(items) != 1 || items[0].Status != healthcheck.StatusOK {
		t.Fatalf("unexpected checks: %+v", items)
	}

	items = NewChecker(fakeObserver{backlog: 4}).ListChecks(context.Background())
	if items[0].Status != healthcheck.StatusWarn {
		t.Fatalf("expected warn, got %s", items[0].Status)
	}
	if items[0].Summary != "No middleware client connected, 4 frames queued." {
		t.Fatalf("unexpected summary: %s", items[0].Summary)
	}

	if items := NewChecker(nil).ListChecks(context.Background()); len(items) != 0 {
		t.Fatalf("expected no checks for nil observer")
	}
}
