package artifact

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFSSinkCreateDerivesDeterministicPath(t *testing.T) {
	sink := NewFSSink(t.TempDir())

	strategy := Strategy{
		Mode:      ModeCreate,
		TargetDir: "generated/backend",
		NamingHints: NamingHints{
			Pattern: "handler.go",
			Base:    "api_route",
		},
	}

	first := sink.Place("package api\n", strategy)
	if !first.Success || first.Action != ActionCreated {
		t.Fatalf("expected successful create, got %+v", first)
	}

	second := sink.Place("package api\n", strategy)
	if !second.Success || second.Path != first.Path {
		t.Fatalf("expected idempotent placement at the same path, got %+v vs %+v", second, first)
	}
}

func TestFSSinkCreateDifferentContentDifferentPath(t *testing.T) {
	sink := NewFSSink(t.TempDir())
	strategy := Strategy{
		Mode:      ModeCreate,
		TargetDir: "generated/backend",
		NamingHints: NamingHints{Base: "api_route"},
	}

	a := sink.Place("content A", strategy)
	b := sink.Place("content B", strategy)
	if a.Path == b.Path {
		t.Fatalf("expected distinct content to land at distinct paths, both got %s", a.Path)
	}
}

func TestFSSinkModifyRequiresTargetFile(t *testing.T) {
	sink := NewFSSink(t.TempDir())
	res := sink.Place("content", Strategy{Mode: ModeModify})
	if res.Success {
		t.Fatalf("expected failure when Modify strategy has no TargetFile, got %+v", res)
	}
}

func TestFSSinkModifyReportsModifiedAction(t *testing.T) {
	root := t.TempDir()
	sink := NewFSSink(root)

	target := "src/existing.go"
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, target), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := sink.Place("new content", Strategy{Mode: ModeModify, TargetFile: target})
	if !res.Success || res.Action != ActionModified || res.Path != target {
		t.Fatalf("expected modified action at %s, got %+v", target, res)
	}

	got, err := os.ReadFile(filepath.Join(root, target))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new content" {
		t.Fatalf("expected file contents updated, got %q", got)
	}
}
