package subprocess

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/wagiedev/ioprocess-go/internal/errors"
)

// ExecutableName is the worker binary looked up in PATH.
const ExecutableName = "ioprocess"

// DefaultSearchPatterns are the install locations checked after PATH.
var DefaultSearchPatterns = []string{
	"/usr/libexec/ioprocess-*/ioprocess",
	"/usr/libexec/ioprocess",
	"/usr/local/libexec/ioprocess",
}

// DiscoveryConfig holds configuration for worker discovery.
type DiscoveryConfig struct {
	// ExecutablePath is an explicit path that skips every other lookup.
	ExecutablePath string

	// SearchPatterns overrides DefaultSearchPatterns. Glob patterns are allowed.
	SearchPatterns []string

	// Logger is an optional logger for discovery operations.
	Logger *slog.Logger
}

// Discoverer locates the ioprocess binary.
type Discoverer struct {
	cfg *DiscoveryConfig
	log *slog.Logger
}

// NewDiscoverer creates a discoverer with the given configuration.
func NewDiscoverer(cfg *DiscoveryConfig) *Discoverer {
	if cfg == nil {
		cfg = &DiscoveryConfig{}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}

	return &Discoverer{cfg: cfg, log: log}
}

// Discover returns the path of the worker binary.
// It fails with *errors.ExecutableNotFoundError listing every place searched.
func (d *Discoverer) Discover(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// An explicit path is used and only it.
	if d.cfg.ExecutablePath != "" {
		if isExecutableFile(d.cfg.ExecutablePath) {
			d.log.Debug("Using explicit ioprocess path", "path", d.cfg.ExecutablePath)

			return d.cfg.ExecutablePath, nil
		}

		return "", &errors.ExecutableNotFoundError{SearchedPaths: []string{d.cfg.ExecutablePath}}
	}

	searched := make([]string, 0, 4)

	if path, err := exec.LookPath(ExecutableName); err == nil {
		d.log.Debug("Found ioprocess in PATH", "path", path)

		return path, nil
	}

	searched = append(searched, "$PATH")

	patterns := d.cfg.SearchPatterns
	if patterns == nil {
		patterns = DefaultSearchPatterns
	}

	for _, pattern := range patterns {
		searched = append(searched, pattern)

		matches, err := filepath.Glob(pattern)
		if err != nil {
			d.log.Debug("Skipping malformed search pattern", "pattern", pattern, "error", err)

			continue
		}

		for _, path := range matches {
			if isExecutableFile(path) {
				d.log.Debug("Found ioprocess at common path", "path", path)

				return path, nil
			}
		}
	}

	d.log.Warn("ioprocess not found in any searched paths", "searched_paths", searched)

	return "", &errors.ExecutableNotFoundError{SearchedPaths: searched}
}

// ResolveTaskset returns the taskset binary to pin the worker with, or "" to
// launch unpinned. A configured path that does not exist falls back to PATH.
func ResolveTaskset(log *slog.Logger, path string) string {
	if path == "" {
		return ""
	}

	if isExecutableFile(path) {
		return path
	}

	if found, err := exec.LookPath("taskset"); err == nil {
		log.Debug("Configured taskset missing, using PATH", "configured", path, "path", found)

		return found
	}

	log.Warn("taskset not found, launching ioprocess without CPU pinning", "configured", path)

	return ""
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	return info.Mode().Perm()&0o111 != 0
}
