package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/janekbaraniewski/usagebar/internal/config"
	"github.com/janekbaraniewski/usagebar/internal/core"
	"github.com/janekbaraniewski/usagebar/internal/daemon"
	"github.com/janekbaraniewski/usagebar/internal/history"
	"github.com/janekbaraniewski/usagebar/internal/providers"
)

// app is the wired runtime shared by every command.
type app struct {
	cfg      config.Config
	registry providers.Registry
	service  *daemon.Service
	history  *history.Store
}

func newApp(cfg config.Config) (*app, error) {
	registry := providers.Build(cfg, providers.OpenCredentialStore(cfg))

	a := &app{cfg: cfg, registry: registry}
	opts := []daemon.Option{}
	if cfg.History.Enabled {
		store, err := openHistory(cfg)
		if err != nil {
			return nil, err
		}
		a.history = store
		opts = append(opts, daemon.WithRecorder(store))
	}

	a.service = daemon.New(daemon.Config{
		PollInterval: cfg.PollInterval(),
		UsageTTL:     cfg.UsageCacheTTL(),
		FetchTimeout: cfg.RequestTimeout() + 5*time.Second,
		Verbose:      debugEnabled(),
	}, registry.Providers, opts...)
	return a, nil
}

func openHistory(cfg config.Config) (*history.Store, error) {
	path := strings.TrimSpace(cfg.History.Path)
	if path == "" {
		var err error
		path, err = history.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	store, err := history.OpenStore(path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	return store, nil
}

func (a *app) Close() error {
	return a.history.Close()
}

// providerArgs returns the requested providers, or all enabled ones.
func (a *app) providerArgs(args []string) ([]string, error) {
	if len(args) == 0 {
		ids := a.service.Providers()
		if len(ids) == 0 {
			return nil, fmt.Errorf("no providers enabled in %s", config.ConfigPath())
		}
		return ids, nil
	}
	for _, id := range args {
		if _, ok := a.registry.ByID(id); !ok {
			return nil, fmt.Errorf("unknown or disabled provider %q (enabled: %s)", id, strings.Join(a.service.Providers(), ", "))
		}
	}
	return args, nil
}

func (a *app) displayName(id string) string {
	info, err := a.service.Describe(id)
	if err != nil || info.Name == "" {
		return id
	}
	return info.Name
}

// quickstart returns the setup steps a provider advertises.
func (a *app) quickstart(id string) []string {
	p, ok := a.registry.ByID(id)
	if !ok {
		return nil
	}
	spec, ok := p.(interface{ Spec() core.ProviderSpec })
	if !ok {
		return nil
	}
	return spec.Spec().Setup.Quickstart
}
