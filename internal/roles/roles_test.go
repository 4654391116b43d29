package roles

import (
	"context"
	"testing"
	"time"

	"github.com/taskforge/maf/internal/artifact"
	"github.com/taskforge/maf/internal/event"
	"github.com/taskforge/maf/internal/eventbus"
	"github.com/taskforge/maf/internal/llm"
)

func newTestBus(t *testing.T) eventbus.Bus {
	t.Helper()
	bus := eventbus.NewInMemoryBus(nil)
	if err := bus.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { bus.Stop(context.Background()) })
	return bus
}

func TestClassifyPicksFirstMatchingRule(t *testing.T) {
	got := classify("please update the user profile component", frontendRules, "general")
	if got != "component" {
		t.Fatalf("expected component (checked before update), got %s", got)
	}
}

func TestClassifyFallsBackToDefault(t *testing.T) {
	got := classify("do something entirely unrelated", frontendRules, "general")
	if got != "general" {
		t.Fatalf("expected default fallback, got %s", got)
	}
}

func TestClassifyUXDesignSystemTakesPriority(t *testing.T) {
	if got := classifyUX("build out our design system colors"); got != "design_system" {
		t.Fatalf("expected design_system to win over color_system, got %s", got)
	}
}

func TestClassifyUXFallsThroughToKeywordTable(t *testing.T) {
	if got := classifyUX("pick a new color palette"); got != "color_system" {
		t.Fatalf("expected color_system, got %s", got)
	}
}

func TestFrontendAgentGeneratesAndPlacesArtifact(t *testing.T) {
	bus := newTestBus(t)
	client := llm.NewMockClient()
	sink := artifact.NewFSSink(t.TempDir())

	rt := NewFrontendAgent(bus, nil, client, sink, "generated/frontend")
	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(rt.Stop)

	completed := make(chan event.Event, 1)
	bus.Subscribe(event.TaskCompleted, func(ctx context.Context, e event.Event) { completed <- e })

	bus.PublishTaskEvent(context.Background(), event.TaskAssigned, "task-1", "orchestrator", map[string]interface{}{
		"assigned_agent": FrontendAgentName,
		"description":    "build a new button component",
	})

	select {
	case e := <-completed:
		if e.Data["status"] != "success" {
			t.Fatalf("expected success, got %+v", e.Data)
		}
		if e.Data["path"] == "" || e.Data["path"] == nil {
			t.Fatalf("expected a non-empty path, got %+v", e.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for TaskCompleted")
	}

	if client.CallCount() != 1 {
		t.Fatalf("expected the LLM client to be called once, got %d", client.CallCount())
	}
}
