// Package manifest discovers exec-backed handler definitions from
// manifest.yaml files under one or more handler roots. Discovery is a host
// concern: it produces the finite registration list the catalog is built
// from, and nothing in the core depends on how that list was assembled.
package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

const (
	supportedProtocol = 1
	manifestFilename  = "manifest.yaml"
)

// Discover scans a single handlersDir for handlers with manifest.yaml and validates them.
// Invalid handlers are logged but not fatal.
func Discover(handlersDir string, logger func(level, msg string, args ...any)) ([]*Definition, error) {
	return DiscoverMany([]string{handlersDir}, logger)
}

// DiscoverMany scans multiple handler roots for manifest.yaml files and validates handlers.
// Roots are processed in input order; duplicate handler names keep the first discovered one.
func DiscoverMany(handlerRoots []string, logger func(level, msg string, args ...any)) ([]*Definition, error) {
	if logger == nil {
		logger = func(level, msg string, args ...any) {}
	}
	if len(handlerRoots) == 0 {
		return nil, fmt.Errorf("at least one handler root is required")
	}

	absRoots := make([]string, 0, len(handlerRoots))
	seenRoots := make(map[string]struct{}, len(handlerRoots))
	for _, root := range handlerRoots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve handler root %q: %w", root, err)
		}
		info, err := os.Stat(absRoot)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("handler root does not exist: %s", absRoot)
			}
			return nil, fmt.Errorf("failed to stat handler root %s: %w", absRoot, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("handler root is not a directory: %s", absRoot)
		}
		if _, ok := seenRoots[absRoot]; ok {
			continue
		}
		seenRoots[absRoot] = struct{}{}
		absRoots = append(absRoots, absRoot)
	}
	if len(absRoots) == 0 {
		return nil, fmt.Errorf("at least one handler root is required")
	}

	var defs []*Definition
	seen := make(map[string]*Definition)

	for _, root := range absRoots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || d.Name() != manifestFilename {
				return nil
			}

			handlerPath := filepath.Dir(path)

			def, err := loadDefinition(handlerPath, root)
			if err != nil {
				logger("warn", "failed to load handler", "root", root, "path", handlerPath, "error", err.Error())
				return nil
			}

			if existing, ok := seen[def.Name]; ok {
				logger(
					"warn",
					"duplicate handler ignored (keeping first discovered)",
					"handler", def.Name,
					"ignored_path", def.Path,
					"kept_path", existing.Path,
				)
				return nil
			}

			seen[def.Name] = def
			defs = append(defs, def)
			logger("info", "loaded handler", "handler", def.Name, "capability", def.Capability,
				"path", def.Path, "version", def.Version.String(), "priority", def.Priority)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan handler root %s: %w", root, err)
		}
	}

	return defs, nil
}

// loadDefinition reads and validates a single handler manifest.
func loadDefinition(handlerPath, handlersDir string) (*Definition, error) {
	manifestPath := filepath.Join(handlerPath, manifestFilename)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}

	if err := validateManifest(&m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	if m.Protocol != supportedProtocol {
		return nil, fmt.Errorf("unsupported protocol version %d (supported: %d)", m.Protocol, supportedProtocol)
	}

	version, err := semver.NewVersion(strings.TrimPrefix(m.Version, "v"))
	if err != nil {
		return nil, fmt.Errorf("invalid version: %w", err)
	}

	entrypointPath := filepath.Join(handlerPath, m.Entrypoint)

	if err := validateTrust(entrypointPath, handlerPath, handlersDir); err != nil {
		return nil, fmt.Errorf("trust validation failed: %w", err)
	}

	return &Definition{
		Name:        m.Name,
		Version:     version,
		Capability:  m.Capability,
		Priority:    m.Priority,
		Deprecated:  m.Deprecated,
		Path:        handlerPath,
		Entrypoint:  entrypointPath,
		Protocol:    m.Protocol,
		Description: m.Description,
		Match:       m.Match,
		Timeout:     m.Timeout,
	}, nil
}

// validateTrust enforces security constraints on discovered entrypoints.
func validateTrust(entrypointPath, handlerPath, handlersDir string) error {
	// Resolve symlinks
	resolvedEntrypoint, err := filepath.EvalSymlinks(entrypointPath)
	if err != nil {
		return fmt.Errorf("failed to resolve entrypoint symlink: %w", err)
	}

	resolvedHandlerPath, err := filepath.EvalSymlinks(handlerPath)
	if err != nil {
		return fmt.Errorf("failed to resolve handler path symlink: %w", err)
	}

	resolvedRoot, err := filepath.EvalSymlinks(handlersDir)
	if err != nil {
		return fmt.Errorf("failed to resolve handler root symlink %s: %w", handlersDir, err)
	}

	// Check entrypoint is under the configured handler root
	if !strings.HasPrefix(resolvedEntrypoint, resolvedRoot+string(os.PathSeparator)) {
		return fmt.Errorf("entrypoint %s is not under handler root %s", resolvedEntrypoint, resolvedRoot)
	}

	// Check entrypoint is under the handler directory
	if !strings.HasPrefix(resolvedEntrypoint, resolvedHandlerPath+string(os.PathSeparator)) {
		return fmt.Errorf("entrypoint %s is not under handler directory %s", resolvedEntrypoint, resolvedHandlerPath)
	}

	// Check entrypoint is executable
	info, err := os.Stat(resolvedEntrypoint)
	if err != nil {
		return fmt.Errorf("entrypoint not found: %w", err)
	}

	mode := info.Mode()
	if mode&0111 == 0 {
		return fmt.Errorf("entrypoint is not executable: %s", resolvedEntrypoint)
	}

	// Check handler directory is not world-writable
	handlerInfo, err := os.Stat(resolvedHandlerPath)
	if err != nil {
		return fmt.Errorf("handler directory not found: %w", err)
	}

	if handlerInfo.Mode().Perm()&0002 != 0 {
		return fmt.Errorf("handler directory is world-writable: %s", resolvedHandlerPath)
	}

	return nil
}
