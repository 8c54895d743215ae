package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the MealPass store (SQLite).
var Migrations = migrate.NewGroup("mealpass")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_mealpass_plans",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS mealpass_plans (
    id                  TEXT PRIMARY KEY,
    name                TEXT NOT NULL DEFAULT '',
    description         TEXT NOT NULL DEFAULT '',
    duration_days       INTEGER NOT NULL DEFAULT 0,
    scope               TEXT NOT NULL DEFAULT 'both',
    voucher_count       INTEGER NOT NULL DEFAULT 0,
    price_cents         INTEGER NOT NULL DEFAULT 0,
    price_currency      TEXT NOT NULL DEFAULT '',
    compare_at_cents    INTEGER,
    compare_at_currency TEXT,
    status              TEXT NOT NULL DEFAULT 'active',
    created_at          TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at          TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_mealpass_plans_status ON mealpass_plans (status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_mealpass_plans_active_triple ON mealpass_plans (name, duration_days, scope) WHERE status = 'active';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS mealpass_plans`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_mealpass_subscriptions",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS mealpass_subscriptions (
    id                   TEXT PRIMARY KEY,
    customer_id          TEXT NOT NULL DEFAULT '',
    plan_id              TEXT NOT NULL DEFAULT '',
    scope                TEXT NOT NULL DEFAULT 'both',
    duration_days        INTEGER NOT NULL DEFAULT 0,
    total_vouchers       INTEGER NOT NULL DEFAULT 0,
    used_vouchers        INTEGER NOT NULL DEFAULT 0,
    amount_paid_cents    INTEGER NOT NULL DEFAULT 0,
    amount_paid_currency TEXT NOT NULL DEFAULT '',
    purchased_at         TEXT NOT NULL DEFAULT (datetime('now')),
    expires_at           TEXT NOT NULL DEFAULT (datetime('now')),
    status               TEXT NOT NULL DEFAULT 'active',
    deleted_at           TEXT,
    created_at           TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at           TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_mealpass_subs_customer ON mealpass_subscriptions (customer_id, status);
CREATE INDEX IF NOT EXISTS idx_mealpass_subs_plan ON mealpass_subscriptions (plan_id);
CREATE INDEX IF NOT EXISTS idx_mealpass_subs_sweep ON mealpass_subscriptions (status, expires_at) WHERE deleted_at IS NULL;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS mealpass_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_mealpass_redemptions",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS mealpass_redemptions (
    id              TEXT PRIMARY KEY,
    subscription_id TEXT NOT NULL DEFAULT '',
    customer_id     TEXT NOT NULL DEFAULT '',
    plan_id         TEXT NOT NULL DEFAULT '',
    remaining_after INTEGER NOT NULL DEFAULT 0,
    timestamp       TEXT NOT NULL DEFAULT (datetime('now')),
    created_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_mealpass_redemptions_sub ON mealpass_redemptions (subscription_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_mealpass_redemptions_customer ON mealpass_redemptions (customer_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_mealpass_redemptions_timestamp ON mealpass_redemptions (timestamp);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS mealpass_redemptions`)
				return err
			},
		},
	)
}
