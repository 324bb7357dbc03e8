package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattjoyce/switchboard/internal/catalog"
	"github.com/mattjoyce/switchboard/internal/engine"
	"github.com/mattjoyce/switchboard/internal/events"
	"github.com/mattjoyce/switchboard/internal/exechandler"
	"github.com/mattjoyce/switchboard/internal/handler"
	"github.com/mattjoyce/switchboard/internal/journal"
	"github.com/mattjoyce/switchboard/internal/log"
	"github.com/mattjoyce/switchboard/internal/manifest"
	"github.com/mattjoyce/switchboard/internal/observe"
	"github.com/mattjoyce/switchboard/internal/storage"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

// TestEndToEndDispatchFallback runs the full chain with real subprocess
// handlers: discovery, catalog build, dispatch with fallback, journal
// persistence, and event publication.
func TestEndToEndDispatchFallback(t *testing.T) {
	tmpDir := t.TempDir()
	handlersDir := filepath.Join(tmpDir, "handlers")
	dbPath := filepath.Join(tmpDir, "switchboard.db")

	// Primary candidate for "render" always faults; the fallback succeeds.
	createHandler(t, handlersDir, "render-primary", `name: render-primary
version: 2.0.0
capability: render
priority: 100
protocol: 1
entrypoint: run.sh
timeout: 5s
`, `#!/bin/bash
cat > /dev/null
echo '{"status":"error","error":"renderer backend offline"}'
`)

	createHandler(t, handlersDir, "render-fallback", `name: render-fallback
version: 1.0.0
capability: render
priority: 10
protocol: 1
entrypoint: run.sh
timeout: 5s
`, `#!/bin/bash
cat > /dev/null
echo '{"status":"ok","logs":[{"level":"info","message":"rendered by fallback"}]}'
`)

	// A deprecated handler for a second capability.
	createHandler(t, handlersDir, "legacy-archiver", `name: legacy-archiver
version: 0.9.0
capability: archive
priority: 50
deprecated: true
protocol: 1
entrypoint: run.sh
timeout: 5s
`, `#!/bin/bash
cat > /dev/null
echo '{"status":"ok"}'
`)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db, err := storage.Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer db.Close()

	defs, err := manifest.Discover(handlersDir, func(l, m string, a ...any) {})
	if err != nil {
		t.Fatalf("discovery failed: %v", err)
	}
	if len(defs) != 3 {
		t.Fatalf("expected 3 handler definitions, got %d", len(defs))
	}

	cat, err := catalog.Build(exechandler.FromDefinitions(defs))
	if err != nil {
		t.Fatalf("catalog build failed: %v", err)
	}

	hub := events.NewHub(64)
	coordinator := engine.New(cat, observe.NewHubObserver(hub))

	store := journal.NewStore(db)
	dispatcher := journal.NewRecordingDispatcher(coordinator, store)

	// Dispatch "render": primary faults, fallback handles.
	result, err := dispatcher.Execute(handler.NewRequest(ctx, "render", map[string]any{"format": "pdf"}))
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if result.Handler != "render-fallback" {
		t.Fatalf("expected render-fallback to handle, got %q", result.Handler)
	}
	if result.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", result.Attempts)
	}

	// Dispatch "archive": deprecated handler still executes.
	result, err = dispatcher.Execute(handler.NewRequest(ctx, "archive", nil))
	if err != nil {
		t.Fatalf("archive dispatch failed: %v", err)
	}
	if result.Handler != "legacy-archiver" {
		t.Fatalf("expected legacy-archiver to handle, got %q", result.Handler)
	}

	// Dispatch an unregistered capability.
	_, err = dispatcher.Execute(handler.NewRequest(ctx, "transcode", nil))
	var unsupported *engine.UnsupportedCapabilityError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedCapabilityError, got %v", err)
	}

	// All three dispatches must be journaled, newest first.
	records, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("failed to read journal: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 journal records, got %d", len(records))
	}
	if records[0].Outcome != journal.OutcomeUnsupported {
		t.Fatalf("expected newest record unsupported, got %q", records[0].Outcome)
	}
	if records[2].Outcome != journal.OutcomeSuccess || records[2].Handler != "render-fallback" {
		t.Fatalf("unexpected oldest record: %+v", records[2])
	}

	// The event stream must show the fault, the fallback selection, and
	// the deprecation warning.
	var sawFailed, sawSelected, sawDeprecated bool
	for _, ev := range hub.SnapshotSince(0) {
		switch ev.Type {
		case events.TypeDispatchFailed:
			sawFailed = true
		case events.TypeDispatchSelected:
			sawSelected = true
		case events.TypeDispatchDeprecated:
			sawDeprecated = true
		}
	}
	if !sawFailed || !sawSelected || !sawDeprecated {
		t.Fatalf("missing dispatch events: failed=%v selected=%v deprecated=%v",
			sawFailed, sawSelected, sawDeprecated)
	}
}

// TestEndToEndExhaustion covers the case where every candidate faults.
func TestEndToEndExhaustion(t *testing.T) {
	tmpDir := t.TempDir()
	handlersDir := filepath.Join(tmpDir, "handlers")

	for i, name := range []string{"flaky-a", "flaky-b"} {
		createHandler(t, handlersDir, name, fmt.Sprintf(`name: %s
version: 1.0.0
capability: convert
priority: %d
protocol: 1
entrypoint: run.sh
timeout: 5s
`, name, 100-i), fmt.Sprintf(`#!/bin/bash
cat > /dev/null
echo '{"status":"error","error":"%s is broken"}'
`, name))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	defs, err := manifest.Discover(handlersDir, func(l, m string, a ...any) {})
	if err != nil {
		t.Fatalf("discovery failed: %v", err)
	}

	cat, err := catalog.Build(exechandler.FromDefinitions(defs))
	if err != nil {
		t.Fatalf("catalog build failed: %v", err)
	}

	coordinator := engine.New(cat, nil)
	_, err = coordinator.Execute(handler.NewRequest(ctx, "convert", nil))

	var exhausted *engine.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", exhausted.Attempts)
	}
	// Last fault comes from the last candidate in chain order.
	if exhausted.LastErr == nil || exhausted.LastErr.Error() == "" {
		t.Fatalf("expected last fault to be carried, got %v", exhausted.LastErr)
	}
}

func createHandler(t *testing.T, root, name, manifestYAML, script string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(manifestYAML), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
}
