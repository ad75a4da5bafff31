package core

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path"
	"reflect"
	"syscall"
	"time"

	"github.com/encodeous/strand/state"
	"github.com/encodeous/strand/sys"
	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
	"golang.org/x/sync/errgroup"
)

// Bootstrap loads the config at configPath and runs strand until it receives SIGINT or SIGTERM.
func Bootstrap(configPath, logPath string, verbose bool) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	cfg, err := state.ReadConfig(configPath)
	if err != nil {
		return err
	}
	if logPath != "" {
		cfg.LogPath = logPath
	}
	return Start(context.Background(), *cfg, level, state.External{}, nil)
}

func NewLogger(cfg state.Config, logLevel slog.Level) (*slog.Logger, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        logLevel,
			AddSource:    false,
			CustomPrefix: cfg.Name,
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	if cfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(cfg.LogPath), 0700)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel}))
	}
	return slog.New(slogmulti.Fanout(handlers...)), nil
}

// Start runs strand until ctx is cancelled or a shutdown signal arrives. Collaborators
// missing from ext are created from the operating system. If initState is not nil, it
// receives the state before any module starts.
func Start(ctx context.Context, cfg state.Config, logLevel slog.Level, ext state.External, initState **state.State) error {
	logger, err := NewLogger(cfg, logLevel)
	if err != nil {
		return err
	}
	return StartWithLogger(ctx, cfg, logger, ext, initState)
}

func StartWithLogger(ctx context.Context, cfg state.Config, logger *slog.Logger, ext state.External, initState **state.State) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(context.Canceled)

	closers, err := initExternal(ctx, &cfg, logger, &ext)
	defer func() {
		for _, c := range closers {
			c()
		}
	}()
	if err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)
	s := state.State{
		Modules: make(map[string]state.Module),
		Env: &state.Env{
			Config:   cfg,
			External: ext,
			Context:  gctx,
			Cancel:   cancel,
			Log:      logger,
			Group:    group,
		},
	}
	if initState != nil {
		*initState = &s
	}

	s.Log.Info("init modules")
	err = initModules(&s)
	if err != nil {
		cancel(err)
		_ = group.Wait()
		Stop(&s)
		return err
	}
	s.Log.Info("init modules complete")

	if cfg.MetricsAddr != "" {
		serveMetrics(&s)
	}

	s.Log.Info("strand has been initialized. To gracefully exit, send SIGINT or Ctrl+C.", "port", cfg.Port, "interval", cfg.AdvertiseInterval, "fanout", cfg.Fanout)

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	group.Go(func() error {
		select {
		case <-c:
			s.Cancel(errors.New("received shutdown signal"))
		case <-gctx.Done():
		}
		return nil
	})

	err = group.Wait()
	s.Log.Info("stopped tasks", "reason", context.Cause(gctx))
	Stop(&s)
	return err
}

func initExternal(ctx context.Context, cfg *state.Config, logger *slog.Logger, ext *state.External) ([]func(), error) {
	closers := make([]func(), 0)
	if ext.Catalog == nil {
		catalog, err := sys.NewInterfaceCatalog(cfg.Interfaces)
		if err != nil {
			return closers, err
		}
		ext.Catalog = catalog
	}
	if ext.Probe == nil {
		probe, err := sys.NewICMPProbe(cfg.Probe.Timeout, cfg.Probe.Attempts)
		if err != nil {
			return closers, err
		}
		closers = append(closers, probe.Close)
		ext.Probe = probe
	}
	if ext.Table == nil {
		if cfg.ShouldInstallRoutes() {
			if err := sys.VerifyForwarding(); err != nil {
				logger.Warn("routes will be installed, but this node may not forward traffic", "error", err)
			}
			ext.Table = sys.NewKernelTable(cfg.RouteProtocol)
		} else {
			ext.Table = state.NewMemoryTable()
		}
	}
	if ext.Transport == nil {
		transport, err := sys.ListenUDP(ctx, cfg.Port)
		if err != nil {
			return closers, err
		}
		ext.Transport = transport
	}
	return closers, nil
}

func initModules(s *state.State) error {
	modules := []state.Module{
		&Router{},
		&Inspector{},
	}

	for _, module := range modules {
		s.Modules[reflect.TypeOf(module).String()] = module
		if err := module.Init(s); err != nil {
			return err
		}
	}
	return nil
}

func serveMetrics(s *state.State) {
	srv := &http.Server{
		Addr:        s.MetricsAddr,
		Handler:     http.DefaultServeMux,
		BaseContext: func(net.Listener) context.Context { return s.Context },
	}
	s.Env.Go(func() error {
		s.Log.Info("serving metrics", "addr", s.MetricsAddr)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Log.Error("metrics server failed", "error", err)
		}
		return nil
	})
	s.Env.Go(func() error {
		<-s.Context.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func Stop(s *state.State) {
	s.Cancel(context.Canceled)
	s.Log.Info("cleaning up modules")
	for moduleName, module := range s.Modules {
		err := module.Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	s.Log.Info("stopped")
}

// Get returns the running module of type T.
func Get[T state.Module](s *state.State) T {
	t := reflect.TypeFor[T]()
	return s.Modules[t.String()].(T)
}
