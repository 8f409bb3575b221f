package runtime

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"github.com/Dmi3yy/webui-pipes/internal/config"
	"github.com/Dmi3yy/webui-pipes/internal/storage"
	"github.com/Dmi3yy/webui-pipes/internal/storage/memory"
	"github.com/Dmi3yy/webui-pipes/internal/storage/sqlite"
)

// Option is a functional option for configuring a Service.
type Option func(*Service) error

// WithConfig uses cfg as-is. The config is not watched.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) error {
		s.cfg = cfg
		return nil
	}
}

// WithConfigFile loads path (plus the environment) and reloads it on change.
func WithConfigFile(path string) Option {
	return func(s *Service) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		s.cfg = cfg
		if _, err := os.Stat(path); err == nil {
			s.configPath = path
		}
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		s.logger = logger
		return nil
	}
}

// WithSQLite records invocations in a SQLite database at path.
func WithSQLite(path string) Option {
	return func(s *Service) error {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create storage directory: %w", err)
			}
		}
		store, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		s.store = store
		s.ownsStore = true
		return nil
	}
}

// WithMemoryStore keeps invocations in memory.
func WithMemoryStore() Option {
	return func(s *Service) error {
		s.store = memory.New()
		s.ownsStore = true
		return nil
	}
}

// WithStore uses a caller-owned store; Shutdown does not close it.
func WithStore(store storage.Store) Option {
	return func(s *Service) error {
		s.store = store
		s.ownsStore = false
		return nil
	}
}

// WithListener serves on ln instead of the configured port.
func WithListener(ln net.Listener) Option {
	return func(s *Service) error {
		s.listener = ln
		return nil
	}
}
