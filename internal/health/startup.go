// SPDX-License-Identifier: MIT
package health

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/evangelie19/movie-notifier-bot/internal/config"
	"github.com/evangelie19/movie-notifier-bot/internal/log"
)

// PerformStartupChecks validates the filesystem and listener prerequisites
// before the daemon starts. Pure configuration rules live in
// config.Validate; this covers what only the runtime host can answer.
func PerformStartupChecks(cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	for _, dir := range stateDirs(cfg) {
		if err := ensureWritableDir(dir); err != nil {
			return fmt.Errorf("state directory check failed: %w", err)
		}
		logger.Info().Str(log.FieldPath, dir).Msg("✓ state directory is writable")
	}

	for _, addr := range []struct{ name, value string }{
		{"admin listen address", cfg.Daemon.ListenAddr},
		{"metrics listen address", cfg.Daemon.MetricsAddr},
	} {
		if addr.value == "" {
			continue
		}
		if err := checkListenAddr(addr.value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", addr.name, addr.value, err)
		}
		logger.Info().Str("addr", addr.value).Msgf("✓ %s is valid", addr.name)
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

// stateDirs collects every directory the daemon writes into.
func stateDirs(cfg config.AppConfig) []string {
	seen := make(map[string]struct{})
	var dirs []string
	add := func(dir string) {
		if dir == "" || dir == "." {
			return
		}
		if _, ok := seen[dir]; ok {
			return
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}

	switch cfg.History.Backend {
	case "", "file":
		add(filepath.Dir(cfg.History.Path))
	case "sqlite":
		add(filepath.Dir(cfg.History.DSN))
	}
	add(cfg.Daemon.ArchivePath)
	return dirs
}

func ensureWritableDir(path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	probe := filepath.Join(path, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", path, err)
	}
	return os.Remove(probe)
}

func checkListenAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("port %q out of range", port)
	}
	return nil
}
