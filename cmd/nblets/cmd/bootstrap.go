package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/opensoc/notebooklets/nb"
	"github.com/opensoc/notebooklets/pkg/cache"
	"github.com/opensoc/notebooklets/pkg/config"
	"github.com/opensoc/notebooklets/pkg/display"
	"github.com/opensoc/notebooklets/pkg/notebooklet"
	"github.com/opensoc/notebooklets/pkg/observability"
	"github.com/opensoc/notebooklets/pkg/providers"
	"github.com/opensoc/notebooklets/pkg/registry"
)

// loadConfigOrDefaults loads the config file, falling back to built-in
// defaults when no file is present.
func loadConfigOrDefaults(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}

	if path != "" {
		return nil, err
	}

	cfg = &config.Config{}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// buildProviders assembles the provider set named by
// providers.default. Threat intel lookups are wrapped in the configured
// enrichment cache.
func buildProviders(logger *logrus.Logger, cfg *config.Config) (*providers.Set, error) {
	set := providers.NewSet(logger)

	var enrichmentCache cache.Cache
	switch cfg.Cache.Backend {
	case "redis":
		enrichmentCache = cache.NewRedis(cfg.Cache.Redis)
	default:
		enrichmentCache = cache.NewMemory()
	}

	for _, name := range cfg.Providers.Default {
		switch name {
		case "clickhouse":
			p, err := providers.NewClickHouse(logger, *cfg.Providers.ClickHouse)
			if err != nil {
				return nil, fmt.Errorf("building clickhouse provider: %w", err)
			}

			set.Register(p)
		case "localdata":
			p, err := providers.NewLocalData(logger, *cfg.Providers.LocalData)
			if err != nil {
				return nil, fmt.Errorf("building localdata provider: %w", err)
			}

			set.Register(p)
		case "tilookup":
			ti, err := providers.NewHTTPTI(logger, *cfg.Providers.TILookup)
			if err != nil {
				return nil, fmt.Errorf("building tilookup provider: %w", err)
			}

			set.Register(providers.NewCachedTI(ti, enrichmentCache, cfg.Cache.TTL))
		case "geolookup":
			p, err := providers.NewHTTPGeoIP(logger, *cfg.Providers.GeoLookup)
			if err != nil {
				return nil, fmt.Errorf("building geolookup provider: %w", err)
			}

			set.Register(p)
		case "whois":
			whoisCfg := providers.WhoisConfig{}
			if cfg.Providers.Whois != nil {
				whoisCfg = *cfg.Providers.Whois
			}

			set.Register(providers.NewWhois(logger, whoisCfg))
		default:
			return nil, fmt.Errorf("unknown provider %q in providers.default", name)
		}
	}

	return set, nil
}

// buildEnvironment builds the environment notebooklets run against.
// Silent environments render nothing; interactive ones render to
// stdout.
func buildEnvironment(logger *logrus.Logger, cfg *config.Config, silent bool) (*notebooklet.Environment, error) {
	set, err := buildProviders(logger, cfg)
	if err != nil {
		return nil, err
	}

	return &notebooklet.Environment{
		Providers: set,
		Display:   display.NewEmitter(logger, display.NewConsole(os.Stdout)),
		Log:       logger,
		Silent:    silent || cfg.Display.Silent,
	}, nil
}

// buildRegistry discovers the bundled notebooklet catalog.
func buildRegistry(logger *logrus.Logger) (*registry.Registry, error) {
	reg := registry.New(logger)
	if err := reg.Discover(nb.Catalog()); err != nil {
		return nil, fmt.Errorf("discovering notebooklets: %w", err)
	}

	observability.RegistrySize.Set(float64(reg.Count()))

	return reg, nil
}
