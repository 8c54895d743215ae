// Package extension provides the Forge extension adapter for MealPass.
//
// It implements the forge.Extension interface to integrate the MealPass
// engine into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.mealpass" or "mealpass" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	mealpass "github.com/mealvine/mealpass"
	"github.com/mealvine/mealpass/store"
	"github.com/mealvine/mealpass/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "mealpass"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Meal subscription and voucher consumption engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts MealPass as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *mealpass.Engine
	store      store.Store
	engineOpts []mealpass.Option
	useGrove   bool
}

// New creates a new MealPass Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying MealPass engine.
// This is nil until Register is called.
func (e *Extension) Engine() *mealpass.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build engine options from resolved config.
	opts := e.buildEngineOpts()

	eng := mealpass.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*mealpass.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("mealpass: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return mealpass.ErrStoreNotReady
	}
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", mealpass.ErrStoreNotReady, err)
	}
	return nil
}

// buildEngineOpts constructs mealpass.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []mealpass.Option {
	opts := make([]mealpass.Option, 0, len(e.engineOpts)+3)

	if e.config.RedemptionBatchSize > 0 || e.config.RedemptionFlushInterval > 0 {
		batchSize := e.config.RedemptionBatchSize
		flushInterval := e.config.RedemptionFlushInterval
		defaults := DefaultConfig()
		if batchSize == 0 {
			batchSize = defaults.RedemptionBatchSize
		}
		if flushInterval == 0 {
			flushInterval = defaults.RedemptionFlushInterval
		}
		opts = append(opts, mealpass.WithRedemptionConfig(batchSize, flushInterval))
	}

	if e.config.ConsumeRetries > 0 {
		opts = append(opts, mealpass.WithConsumeRetries(e.config.ConsumeRetries))
	}

	if e.config.Currency != "" {
		opts = append(opts, mealpass.WithCurrency(e.config.Currency))
	}

	if e.config.DisableMigrate {
		opts = append(opts, mealpass.WithDisableMigrate())
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("mealpass: configuration is required but not found in config files; " +
				"ensure 'extensions.mealpass' or 'mealpass' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	if e.config.GroveDatabase != "" {
		e.useGrove = true
	}

	e.Logger().Debug("mealpass: configuration loaded",
		forge.F("currency", e.config.Currency),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("redemption_batch_size", e.config.RedemptionBatchSize),
		forge.F("redemption_flush_interval", e.config.RedemptionFlushInterval),
		forge.F("consume_retries", e.config.ConsumeRetries),
		forge.F("use_grove", e.useGrove),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.mealpass" first (namespaced pattern).
	if cm.IsSet("extensions.mealpass") {
		if err := cm.Bind("extensions.mealpass", &cfg); err == nil {
			e.Logger().Debug("mealpass: loaded config from file",
				forge.F("key", "extensions.mealpass"),
			)
			return cfg, true
		}
		e.Logger().Warn("mealpass: failed to bind extensions.mealpass config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "mealpass" key.
	if cm.IsSet("mealpass") {
		if err := cm.Bind("mealpass", &cfg); err == nil {
			e.Logger().Debug("mealpass: loaded config from file",
				forge.F("key", "mealpass"),
			)
			return cfg, true
		}
		e.Logger().Warn("mealpass: failed to bind mealpass config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.RedemptionBatchSize == 0 {
		cfg.RedemptionBatchSize = defaults.RedemptionBatchSize
	}
	if cfg.RedemptionFlushInterval == 0 {
		cfg.RedemptionFlushInterval = defaults.RedemptionFlushInterval
	}
	if cfg.ConsumeRetries == 0 {
		cfg.ConsumeRetries = defaults.ConsumeRetries
	}
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.GroveDatabase == "" && programmaticConfig.GroveDatabase != "" {
		yamlConfig.GroveDatabase = programmaticConfig.GroveDatabase
	}
	if yamlConfig.Currency == "" && programmaticConfig.Currency != "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.RedemptionBatchSize == 0 && programmaticConfig.RedemptionBatchSize != 0 {
		yamlConfig.RedemptionBatchSize = programmaticConfig.RedemptionBatchSize
	}
	if yamlConfig.RedemptionFlushInterval == 0 && programmaticConfig.RedemptionFlushInterval != 0 {
		yamlConfig.RedemptionFlushInterval = programmaticConfig.RedemptionFlushInterval
	}
	if yamlConfig.ConsumeRetries == 0 && programmaticConfig.ConsumeRetries != 0 {
		yamlConfig.ConsumeRetries = programmaticConfig.ConsumeRetries
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
