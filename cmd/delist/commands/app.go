package commands

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/delist-sh/delist/internal/broker"
	"github.com/delist-sh/delist/internal/browser"
	"github.com/delist-sh/delist/internal/events"
	"github.com/delist-sh/delist/internal/removal"
	"github.com/delist-sh/delist/internal/scan"
	"github.com/delist-sh/delist/internal/store"
	"github.com/delist-sh/delist/internal/vault"
	"github.com/delist-sh/delist/pkg/models"
	"github.com/delist-sh/delist/pkg/utils"
)

// App wires the engine together for CLI commands. Commands open it in
// RunE and must Close it on the way out.
type App struct {
	Config       models.Config
	Logger       *logrus.Logger
	Store        *store.Store
	Vault        *vault.Vault
	Registry     *broker.Registry
	Engine       *browser.Engine
	Orchestrator *scan.Orchestrator
	Pool         *removal.Pool
	Hub          *events.Hub
	Metrics      *utils.Metrics
}

// OpenApp builds the full engine stack from config and flags.
func OpenApp(engineVersion string) (*App, error) {
	cfg, err := loadEngineConfig()
	if err != nil {
		return nil, err
	}

	logger := logrus.StandardLogger()

	st, err := store.Open(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	keyB64 := viper.GetString("vault_key")
	if keyB64 == "" {
		_ = st.Close()
		return nil, fmt.Errorf("no vault key configured (set DELIST_VAULT_KEY or vault_key in config)")
	}
	cipher, err := vault.NewCipherFromBase64(keyB64)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	v := vault.New(cipher, st, logger)

	registry, err := broker.LoadDir(cfg.Brokers.DefinitionsDir, engineVersion, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load broker catalog: %w", err)
	}

	hub := events.NewHub()
	metrics := utils.NewMetrics(false)

	pacer := browser.NewDomainPacer(cfg.Browser.MinDomainDelay, logger)
	engine := browser.NewEngine(cfg.Browser, pacer, logger)

	orchestrator := scan.NewOrchestrator(registry, st, v, engine, hub, metrics, cfg.Scan, logger)

	submitter := removal.NewFormSubmitter(func(ctx context.Context) (browser.Actions, error) {
		return engine.NewSession(ctx)
	}, logger)
	pool := removal.NewPool(st, registry, v, submitter, hub, metrics, cfg.Removal, logger)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Store:        st,
		Vault:        v,
		Registry:     registry,
		Engine:       engine,
		Orchestrator: orchestrator,
		Pool:         pool,
		Hub:          hub,
		Metrics:      metrics,
	}, nil
}

func (a *App) Close() {
	if a.Engine != nil {
		if err := a.Engine.Close(); err != nil {
			a.Logger.WithError(err).Warn("Browser engine close failed")
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.WithError(err).Warn("Store close failed")
		}
	}
}

// loadEngineConfig reads the YAML engine config when one is present,
// then applies flag and environment overrides.
func loadEngineConfig() (models.Config, error) {
	cfg := models.DefaultConfig()
	if path := viper.GetString("engine_config"); path != "" {
		loaded, err := models.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if v := viper.GetString("database_path"); v != "" {
		cfg.Storage.DatabasePath = v
	}
	if v := viper.GetString("brokers_dir"); v != "" {
		cfg.Brokers.DefinitionsDir = v
	}
	if viper.IsSet("headless") {
		cfg.Browser.Headless = viper.GetBool("headless")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if cfg.Global.DataDir != "" {
		if err := utils.EnsureDir(cfg.Global.DataDir); err != nil {
			return cfg, fmt.Errorf("ensure data dir: %w", err)
		}
	}
	return cfg, nil
}
