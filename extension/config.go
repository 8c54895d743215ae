package extension

import "time"

// Config holds the MealPass extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.mealpass" or "mealpass" keys).
type Config struct {
	// Currency is the catalog currency every plan price must be denominated
	// in (ISO 4217 lowercase, default: "inr").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// RedemptionBatchSize is the number of redemption events to buffer before
	// flushing to the store (default: 100).
	RedemptionBatchSize int `json:"redemption_batch_size" mapstructure:"redemption_batch_size" yaml:"redemption_batch_size"`

	// RedemptionFlushInterval is how frequently the redemption buffer is
	// flushed even if the batch size has not been reached (default: 5s).
	RedemptionFlushInterval time.Duration `json:"redemption_flush_interval" mapstructure:"redemption_flush_interval" yaml:"redemption_flush_interval"`

	// ConsumeRetries is how many times a voucher redemption re-reads and
	// retries after losing a concurrent conditional write (default: 3).
	ConsumeRetries int `json:"consume_retries" mapstructure:"consume_retries" yaml:"consume_retries"`

	// GroveDatabase is the name of a grove.DB registered in the DI container.
	// When set, the extension resolves this named database and auto-constructs
	// the appropriate store based on the driver type (pg/sqlite/mongo).
	// When empty and WithGroveDatabase was called, the default (unnamed) DB is used.
	GroveDatabase string `json:"grove_database" mapstructure:"grove_database" yaml:"grove_database"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Currency:                "inr",
		RedemptionBatchSize:     100,
		RedemptionFlushInterval: 5 * time.Second,
		ConsumeRetries:          3,
	}
}
