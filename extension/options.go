package extension

import (
	"time"

	mealpass "github.com/mealvine/mealpass"
	"github.com/mealvine/mealpass/plugin"
	"github.com/mealvine/mealpass/store"
)

// Option configures the MealPass Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a mealpass.Option through to the underlying engine.
func WithEngineOption(opt mealpass.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a mealpass plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, mealpass.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithRedemptionBatchSize sets the number of redemption events to buffer
// before flushing.
func WithRedemptionBatchSize(size int) Option {
	return func(e *Extension) { e.config.RedemptionBatchSize = size }
}

// WithRedemptionFlushInterval sets how frequently the redemption buffer is
// flushed.
func WithRedemptionFlushInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.RedemptionFlushInterval = d }
}

// WithCurrency sets the catalog currency every plan price must use.
func WithCurrency(currency string) Option {
	return func(e *Extension) { e.config.Currency = currency }
}

// WithConsumeRetries sets the voucher redemption retry budget.
func WithConsumeRetries(n int) Option {
	return func(e *Extension) { e.config.ConsumeRetries = n }
}

// WithGroveDatabase sets the name of the grove.DB to resolve from the DI container.
// The extension will auto-construct the appropriate store backend (postgres/sqlite/mongo)
// based on the grove driver type. Pass an empty string to use the default (unnamed) grove.DB.
func WithGroveDatabase(name string) Option {
	return func(e *Extension) {
		e.config.GroveDatabase = name
		e.useGrove = true
	}
}
