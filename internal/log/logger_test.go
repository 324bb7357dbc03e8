package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
)

func TestSetup(t *testing.T) {
	// Reset logger for testing
	logger = nil
	once = *new(sync.Once)

	Setup("DEBUG", "json")
	if logger == nil {
		t.Fatal("Logger should not be nil")
	}
}

func captureLogger() *bytes.Buffer {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))
	return &buf
}

func TestWithComponent(t *testing.T) {
	buf := captureLogger()

	WithComponent("engine").Info("hello")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}

	if out["component"] != "engine" {
		t.Errorf("Expected component 'engine', got %v", out["component"])
	}
	if out["msg"] != "hello" {
		t.Errorf("Expected msg 'hello', got %v", out["msg"])
	}
}

func TestWithCapability(t *testing.T) {
	buf := captureLogger()

	WithCapability("ExportPdf").Info("dispatching")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}

	if out["capability"] != "ExportPdf" {
		t.Errorf("Expected capability 'ExportPdf', got %v", out["capability"])
	}
}

func TestWithHandler(t *testing.T) {
	buf := captureLogger()

	WithHandler("pdf-export").Info("selected")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}

	if out["handler"] != "pdf-export" {
		t.Errorf("Expected handler 'pdf-export', got %v", out["handler"])
	}
}

func TestWithRequest(t *testing.T) {
	buf := captureLogger()

	WithRequest("req-123").Info("request msg")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}

	if out["request_id"] != "req-123" {
		t.Errorf("Expected request_id 'req-123', got %v", out["request_id"])
	}
}
