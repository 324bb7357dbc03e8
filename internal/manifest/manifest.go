package manifest

import (
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Manifest defines the structure of a handler's manifest.yaml file.
type Manifest struct {
	Name        string            `yaml:"name"`
	Version     string            `yaml:"version"`
	Capability  string            `yaml:"capability"`
	Priority    int               `yaml:"priority"`
	Deprecated  bool              `yaml:"deprecated,omitempty"`
	Protocol    int               `yaml:"protocol"`
	Entrypoint  string            `yaml:"entrypoint"`
	Description string            `yaml:"description,omitempty"`
	Match       map[string]string `yaml:"match,omitempty"`
	Timeout     time.Duration     `yaml:"timeout,omitempty"`
}

// Definition is a discovered and validated handler definition.
type Definition struct {
	Name        string          // Handler name from manifest
	Version     *semver.Version // Parsed semantic version
	Capability  string          // Capability this handler serves
	Priority    int             // Higher = preferred
	Deprecated  bool            // Emits a deprecation event when dispatched
	Path        string          // Absolute path to handler directory
	Entrypoint  string          // Absolute path to entrypoint executable
	Protocol    int             // Wire protocol version
	Description string          // Human-readable description
	Match       map[string]string
	Timeout     time.Duration
}

// validateManifest checks required manifest fields.
func validateManifest(m *Manifest) error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}

	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if _, err := semver.NewVersion(strings.TrimPrefix(m.Version, "v")); err != nil {
		return fmt.Errorf("invalid version %q: %w", m.Version, err)
	}

	if strings.TrimSpace(m.Capability) == "" {
		return fmt.Errorf("capability is required")
	}

	if m.Protocol == 0 {
		return fmt.Errorf("protocol version is required")
	}

	if m.Entrypoint == "" {
		return fmt.Errorf("entrypoint is required")
	}

	// Check for path traversal in entrypoint
	if strings.Contains(m.Entrypoint, "..") {
		return fmt.Errorf("entrypoint contains path traversal: %s", m.Entrypoint)
	}

	if m.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}

	return nil
}
