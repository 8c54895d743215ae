// Package mealpass provides a composable meal-subscription engine for Go applications.
//
// MealPass is designed as a library, not a service. Import it directly into
// your Go application and put your own transport in front of it. It provides:
//
//   - A plan catalog with fixed duration tiers and meal-window scopes
//   - A subscription ledger with purchase-time plan snapshots
//   - Race-safe voucher redemption via conditional counter writes
//   - Lazy expiry plus an idempotent bulk expiry sweep
//   - An append-only redemption log with batched ingestion
//   - Store-side statistics rollups
//
// # Quick Start
//
// Create an engine instance with your preferred store:
//
//	import (
//	    "github.com/mealvine/mealpass"
//	    "github.com/mealvine/mealpass/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.New(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create engine
//	e := mealpass.New(store)
//
//	// Start the engine (begins background workers)
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop()
//
// # Core Concepts
//
// Plans define what a customer buys:
//
//	p := &plan.Plan{
//	    Name:         "Monthly Lunch",
//	    Duration:     plan.DurationMonth,
//	    Scope:        plan.ScopeLunch,
//	    VoucherCount: 30,
//	    Price:        types.INR(499900),
//	}
//
// Purchasing issues a subscription that snapshots the plan's terms:
//
//	receipt, err := e.Purchase(ctx, customerID, planID, types.INR(499900))
//
// Redeeming a voucher decrements the counter atomically:
//
//	sub, err := e.UseVoucher(ctx, customerID, receipt.Subscription.ID)
//
// # Concurrency
//
// Voucher redemption is a single conditional write keyed on the counter
// value just read. Concurrent redemptions against the same subscription
// never double-spend: with k vouchers remaining, exactly k of N racing
// calls succeed.
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest
// currency unit (paise for INR, cents for USD, etc).
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	plan_01h2xcejqtf2nbrexx3vqjhp41  // Plan ID
//	sub_01h2xcejqtf2nbrexx3vqjhp41   // Subscription ID
//	rdm_01h455vb4pex5vsknk084sn02q   // Redemption event ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package mealpass
