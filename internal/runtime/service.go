// Package runtime assembles the tool server from configuration and manages
// its lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/Dmi3yy/webui-pipes/internal/acl"
	"github.com/Dmi3yy/webui-pipes/internal/api/toolserver"
	"github.com/Dmi3yy/webui-pipes/internal/auth"
	"github.com/Dmi3yy/webui-pipes/internal/config"
	"github.com/Dmi3yy/webui-pipes/internal/filecache"
	"github.com/Dmi3yy/webui-pipes/internal/httpclient"
	"github.com/Dmi3yy/webui-pipes/internal/localpipe"
	"github.com/Dmi3yy/webui-pipes/internal/manifest"
	"github.com/Dmi3yy/webui-pipes/internal/n8n"
	"github.com/Dmi3yy/webui-pipes/internal/pipeline"
	"github.com/Dmi3yy/webui-pipes/internal/prompt"
	"github.com/Dmi3yy/webui-pipes/internal/server"
	"github.com/Dmi3yy/webui-pipes/internal/storage"
	"github.com/Dmi3yy/webui-pipes/internal/telemetry"
	"github.com/Dmi3yy/webui-pipes/internal/tools"
	"github.com/Dmi3yy/webui-pipes/internal/webui"
)

// Service owns every component of the tool server.
type Service struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	listener   net.Listener

	store     storage.Store
	ownsStore bool

	acl       *acl.Loader
	manifests *manifest.Loader
	snippet   prompt.Snippet
	tools     *tools.Registry
	runner    *pipeline.Runner
	local     *localpipe.Registry
	n8n       *n8n.Pipe
	server    *server.Server
	watcher   *config.Watcher

	stopTracer telemetry.ShutdownFunc
	errc       chan error

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New builds the service. A config is required (WithConfig or
// WithConfigFile); storage defaults to what the config selects.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		logger:     slog.Default(),
		stopTracer: telemetry.Noop,
		errc:       make(chan error, 1),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if s.cfg == nil {
		return nil, errors.New("config required (use WithConfig or WithConfigFile)")
	}
	if s.store == nil {
		if err := s.openStore(); err != nil {
			return nil, err
		}
	}
	if err := s.build(); err != nil {
		if s.ownsStore && s.store != nil {
			s.store.Close()
		}
		return nil, err
	}
	return s, nil
}

func (s *Service) openStore() error {
	switch s.cfg.Storage.Type {
	case "", "sqlite":
		return WithSQLite(s.cfg.Storage.SQLite.Path)(s)
	case "memory":
		return WithMemoryStore()(s)
	case "none":
		return nil
	default:
		return fmt.Errorf("unknown storage type %q", s.cfg.Storage.Type)
	}
}

func (s *Service) build() error {
	cfg := s.cfg
	client := httpclient.New(cfg.HTTP.ClientTimeout)

	cacheOpts := []filecache.Option{filecache.WithTTL(cfg.Pipelines.CacheTTL)}
	s.acl = acl.NewLoader(cfg.Pipelines.ACLPath, s.logger, cacheOpts...)
	s.manifests = manifest.NewLoader(cfg.Pipelines.ManifestPath, s.logger, cacheOpts...)
	s.snippet.Init(s.manifests)

	host := webui.NewClient(
		webui.WithBaseURL(cfg.WebUI.APIURL),
		webui.WithHTTPClient(client),
		webui.WithTokenSource(auth.NewTokenSource(cfg.WebUI.JWT, cfg.WebUI.SecretKey, cfg.WebUI.TokenTTL)),
		webui.WithLogger(s.logger),
	)
	kb := tools.New(host, cfg.WebUI.UIBaseURL, s.logger)

	s.tools = tools.NewRegistry(s.logger)
	if err := tools.RegisterBuiltins(s.tools, kb); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	s.runner = pipeline.NewRunner(pipeline.RunnerConfig{
		BaseURL:   cfg.Pipelines.URL,
		Key:       cfg.Pipelines.Key,
		ACL:       s.acl,
		Manifests: s.manifests,
		Client:    client,
		Logger:    s.logger,
	})
	if err := pipeline.RegisterTool(s.tools, s.runner); err != nil {
		return fmt.Errorf("register pipeline tool: %w", err)
	}

	s.local = localpipe.NewRegistry()
	if err := localpipe.RegisterBuiltins(s.local, kb); err != nil {
		return fmt.Errorf("register local pipelines: %w", err)
	}

	n8nOpts := []n8n.Option{
		n8n.WithHTTPClient(client),
		n8n.WithWebUI(host),
		n8n.WithLogger(s.logger),
	}
	if s.store != nil {
		n8nOpts = append(n8nOpts, n8n.WithStore(s.store))
	}
	s.n8n = n8n.New(ValvesFrom(cfg.N8N), n8nOpts...)

	s.server = server.New(cfg.Server.Port, s.logger, cfg.Server.RequestTimeout)
	toolserver.New(toolserver.Config{
		Tools:      s.tools,
		Runner:     s.runner,
		ACL:        s.acl,
		Manifests:  s.manifests,
		N8N:        s.n8n,
		LocalPipes: localpipe.NewHandler(s.local, cfg.Pipelines.Key, s.logger),
		Store:      s.store,
		Auth:       auth.NewAuthenticator(cfg.Server.APIKeyHashes),
		Logger:     s.logger,
	}).Mount(s.server.Router)

	return nil
}

// ValvesFrom maps the n8n config section onto pipe valves.
func ValvesFrom(c config.N8NConfig) n8n.Valves {
	v := n8n.DefaultValves()
	if c.URL != "" {
		v.N8NURL = c.URL
	}
	if c.BearerToken != "" {
		v.N8NBearerToken = c.BearerToken
	}
	if c.FilesURL != "" {
		v.WebUIFilesURL = c.FilesURL
	}
	if c.InputField != "" {
		v.InputField = c.InputField
	}
	if c.ResponseField != "" {
		v.ResponseField = c.ResponseField
	}
	v.WebUIAPIToken = c.APIToken
	v.EmitInterval = c.EmitInterval
	v.EnableStatusIndicator = c.EnableStatusIndicator
	v.Debug = c.Debug
	return v
}

// Start serves HTTP in the background and, when the config came from a file,
// watches it for changes.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)

	if s.cfg.Telemetry.Tracing {
		stop, err := telemetry.InitTracer(s.cfg.Telemetry.ServiceName, nil, s.logger)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		s.stopTracer = stop
	}

	ln := s.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Server.Port))
		if err != nil {
			return fmt.Errorf("listen on port %d: %w", s.cfg.Server.Port, err)
		}
		s.listener = ln
	}
	go func() {
		if err := s.server.Serve(ln); err != nil {
			s.errc <- err
		}
	}()

	if s.configPath != "" {
		w, err := config.NewWatcher(s.configPath, s.logger)
		if err != nil {
			return fmt.Errorf("create config watcher: %w", err)
		}
		if err := w.Watch(s.ctx, s.apply); err != nil {
			s.logger.Warn("config hot reload disabled", slog.String("error", err.Error()))
		} else {
			s.watcher = w
		}
	}

	s.logger.Info("tool server started",
		slog.String("addr", ln.Addr().String()),
		slog.Int("tools", len(s.tools.Spec())),
		slog.Int("local_pipelines", len(s.local.IDs())),
		slog.Int("manifest_entries", len(s.manifests.Load())))
	return nil
}

// apply takes over the reloadable parts of a new config: n8n valves and the
// ACL and manifest paths.
func (s *Service) apply(cfg *config.Config) {
	s.n8n.SetValves(ValvesFrom(cfg.N8N))
	s.acl.SetPath(cfg.Pipelines.ACLPath)
	s.manifests.SetPath(cfg.Pipelines.ManifestPath)
	s.snippet.Init(s.manifests)
	s.logger.Info("configuration applied",
		slog.String("acl_path", cfg.Pipelines.ACLPath),
		slog.String("manifest_path", cfg.Pipelines.ManifestPath))
}

// Errors reports a server failure after Start.
func (s *Service) Errors() <-chan error { return s.errc }

// Addr is the listening address, or "" before Start.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server, the config watch and the tracer, then closes
// storage the service opened.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("shutting down tool server")
	if s.cancel != nil {
		s.cancel()
	}

	var errs []error
	if err := s.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown server: %w", err))
	}
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close watcher: %w", err))
		}
	}
	if err := s.stopTracer(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
	}
	if s.ownsStore && s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) Config() *config.Config { return s.cfg }
func (s *Service) Handler() http.Handler { return s.server.Router }
func (s *Service) ACL() *acl.Loader { return s.acl }
func (s *Service) Manifests() *manifest.Loader { return s.manifests }
func (s *Service) Runner() *pipeline.Runner { return s.runner }
func (s *Service) Tools() *tools.Registry { return s.tools }
func (s *Service) N8N() *n8n.Pipe { return s.n8n }
func (s *Service) Store() storage.Store { return s.store }
func (s *Service) PromptSnippet() string { return s.snippet.Current() }
