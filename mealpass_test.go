package mealpass_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/mealvine/mealpass"
	"github.com/mealvine/mealpass/id"
	"github.com/mealvine/mealpass/plan"
	"github.com/mealvine/mealpass/redemption"
	"github.com/mealvine/mealpass/stats"
	"github.com/mealvine/mealpass/store/memory"
	"github.com/mealvine/mealpass/subscription"
	"github.com/mealvine/mealpass/types"
)

func newTestEngine(t *testing.T, opts ...mealpass.Option) (*mealpass.Engine, *memory.Store) {
	t.Helper()

	st := memory.New()
	e := mealpass.New(st, opts...)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(func() {
		if err := e.Stop(); err != nil {
			t.Errorf("stop engine: %v", err)
		}
	})
	return e, st
}

func seedPlan(t *testing.T, e *mealpass.Engine, name string, d plan.Duration, scope plan.Scope, vouchers int, price types.Money) *plan.Plan {
	t.Helper()

	p := &plan.Plan{
		Name:         name,
		Duration:     d,
		Scope:        scope,
		VoucherCount: vouchers,
		Price:        price,
	}
	if err := e.CreatePlan(context.Background(), p); err != nil {
		t.Fatalf("seed plan %q: %v", name, err)
	}
	return p
}

// seedSubscription writes a subscription straight into the store, bypassing
// Purchase, so tests can stage records in states the engine would never issue
// (for example ACTIVE with a lapsed window).
func seedSubscription(t *testing.T, st *memory.Store, customerID id.CustomerID, planID id.PlanID, scope plan.Scope, used, total int, expiresAt time.Time) *subscription.Subscription {
	t.Helper()

	sub := &subscription.Subscription{
		Entity:        types.NewEntity(),
		ID:            id.NewSubscriptionID(),
		CustomerID:    customerID,
		PlanID:        planID,
		Scope:         scope,
		DurationDays:  30,
		TotalVouchers: total,
		UsedVouchers:  used,
		AmountPaid:    types.INR(49900),
		PurchasedAt:   expiresAt.AddDate(0, 0, -30),
		ExpiresAt:     expiresAt,
		Status:        subscription.StatusActive,
	}
	if err := st.CreateSubscription(context.Background(), sub); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return sub
}

func TestPlanCatalog(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateDefaultsToActive", func(t *testing.T) {
		e, _ := newTestEngine(t)

		p := seedPlan(t, e, "Lunch Saver", plan.DurationMonth, plan.ScopeLunch, 20, types.INR(49900))
		if p.ID.IsNil() {
			t.Fatal("expected a generated plan ID")
		}
		if p.Status != plan.StatusActive {
			t.Fatalf("status = %s, want active", p.Status)
		}

		got, err := e.GetPlan(ctx, p.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Name != "Lunch Saver" || got.VoucherCount != 20 {
			t.Fatalf("stored plan mismatch: %+v", got)
		}
	})

	t.Run("Validation", func(t *testing.T) {
		e, _ := newTestEngine(t)

		cmp := types.INR(100)
		cases := []struct {
			name string
			p    *plan.Plan
		}{
			{"MissingName", &plan.Plan{Duration: plan.DurationWeek, Scope: plan.ScopeBoth, VoucherCount: 5, Price: types.INR(100)}},
			{"BadDuration", &plan.Plan{Name: "x", Duration: 10, Scope: plan.ScopeBoth, VoucherCount: 5, Price: types.INR(100)}},
			{"BadScope", &plan.Plan{Name: "x", Duration: plan.DurationWeek, Scope: "brunch", VoucherCount: 5, Price: types.INR(100)}},
			{"ZeroVouchers", &plan.Plan{Name: "x", Duration: plan.DurationWeek, Scope: plan.ScopeBoth, VoucherCount: 0, Price: types.INR(100)}},
			{"FreePlan", &plan.Plan{Name: "x", Duration: plan.DurationWeek, Scope: plan.ScopeBoth, VoucherCount: 5, Price: types.INR(0)}},
			{"CompareAtBelowPrice", &plan.Plan{Name: "x", Duration: plan.DurationWeek, Scope: plan.ScopeBoth, VoucherCount: 5, Price: types.INR(200), CompareAtPrice: &cmp}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				err := e.CreatePlan(ctx, tc.p)
				if !mealpass.IsValidation(err) {
					t.Fatalf("err = %v, want validation error", err)
				}
			})
		}
	})

	t.Run("SingleCurrencyEnforced", func(t *testing.T) {
		e, _ := newTestEngine(t)

		// An INR catalog must not accept a USD-priced plan; a second
		// currency would poison every revenue rollup downstream.
		lunch := seedPlan(t, e, "Lunch", plan.DurationMonth, plan.ScopeLunch, 20, types.INR(49900))
		usd := &plan.Plan{Name: "Dinner", Duration: plan.DurationMonth, Scope: plan.ScopeDinner, VoucherCount: 20, Price: types.USD(4900)}
		if err := e.CreatePlan(ctx, usd); !mealpass.IsValidation(err) {
			t.Fatalf("err = %v, want validation error", err)
		}

		cmp := types.USD(60000)
		mixed := &plan.Plan{Name: "Deal", Duration: plan.DurationMonth, Scope: plan.ScopeDinner, VoucherCount: 20, Price: types.INR(49900), CompareAtPrice: &cmp}
		if err := e.CreatePlan(ctx, mixed); !mealpass.IsValidation(err) {
			t.Fatalf("compare-at err = %v, want validation error", err)
		}

		// The ledger stays single-currency, so the rollup cannot trip on a
		// cross-currency sum.
		if _, err := e.Purchase(ctx, id.NewCustomerID(), lunch.ID, types.INR(49900)); err != nil {
			t.Fatal(err)
		}
		ov, err := e.Stats(ctx, stats.Opts{})
		if err != nil {
			t.Fatal(err)
		}
		if ov.RevenueTotal.Currency != "inr" {
			t.Fatalf("revenue currency = %s, want inr", ov.RevenueTotal.Currency)
		}
	})

	t.Run("ConfiguredCurrency", func(t *testing.T) {
		e, _ := newTestEngine(t, mealpass.WithCurrency("USD"))

		seedPlan(t, e, "Lunch", plan.DurationMonth, plan.ScopeLunch, 20, types.USD(4900))
		inr := &plan.Plan{Name: "Dinner", Duration: plan.DurationMonth, Scope: plan.ScopeDinner, VoucherCount: 20, Price: types.INR(49900)}
		if err := e.CreatePlan(ctx, inr); !mealpass.IsValidation(err) {
			t.Fatalf("err = %v, want validation error", err)
		}
	})

	t.Run("UniqueTripleAmongActive", func(t *testing.T) {
		e, _ := newTestEngine(t)

		seedPlan(t, e, "Saver", plan.DurationMonth, plan.ScopeLunch, 20, types.INR(49900))

		dup := &plan.Plan{Name: "Saver", Duration: plan.DurationMonth, Scope: plan.ScopeLunch, VoucherCount: 10, Price: types.INR(29900)}
		if err := e.CreatePlan(ctx, dup); !errors.Is(err, mealpass.ErrDuplicatePlan) {
			t.Fatalf("err = %v, want ErrDuplicatePlan", err)
		}

		// Same name is fine when duration or scope differs.
		seedPlan(t, e, "Saver", plan.DurationWeek, plan.ScopeLunch, 5, types.INR(14900))
		seedPlan(t, e, "Saver", plan.DurationMonth, plan.ScopeDinner, 20, types.INR(49900))
	})

	t.Run("DeactivateFreesTriple", func(t *testing.T) {
		e, _ := newTestEngine(t)

		first := seedPlan(t, e, "Saver", plan.DurationMonth, plan.ScopeLunch, 20, types.INR(49900))
		if err := e.DeactivatePlan(ctx, first.ID); err != nil {
			t.Fatal(err)
		}

		// The triple is free again once the holder goes inactive.
		seedPlan(t, e, "Saver", plan.DurationMonth, plan.ScopeLunch, 20, types.INR(52900))

		// Reactivating the original would recreate the collision.
		if err := e.ReactivatePlan(ctx, first.ID); !errors.Is(err, mealpass.ErrDuplicatePlan) {
			t.Fatalf("reactivate err = %v, want ErrDuplicatePlan", err)
		}
	})

	t.Run("UpdateIntoCollisionRejected", func(t *testing.T) {
		e, _ := newTestEngine(t)

		seedPlan(t, e, "Saver", plan.DurationMonth, plan.ScopeLunch, 20, types.INR(49900))
		other := seedPlan(t, e, "Saver", plan.DurationWeek, plan.ScopeLunch, 5, types.INR(14900))

		other.Duration = plan.DurationMonth
		if err := e.UpdatePlan(ctx, other); !errors.Is(err, mealpass.ErrDuplicatePlan) {
			t.Fatalf("err = %v, want ErrDuplicatePlan", err)
		}
	})

	t.Run("ListByStatus", func(t *testing.T) {
		e, _ := newTestEngine(t)

		a := seedPlan(t, e, "A", plan.DurationWeek, plan.ScopeLunch, 5, types.INR(100))
		seedPlan(t, e, "B", plan.DurationWeek, plan.ScopeDinner, 5, types.INR(100))
		if err := e.DeactivatePlan(ctx, a.ID); err != nil {
			t.Fatal(err)
		}

		active, err := e.ListPlans(ctx, plan.ListOpts{Status: plan.StatusActive})
		if err != nil {
			t.Fatal(err)
		}
		if len(active) != 1 || active[0].Name != "B" {
			t.Fatalf("active plans = %+v, want just B", active)
		}

		if _, err := e.ListPlans(ctx, plan.ListOpts{Status: "retired"}); !mealpass.IsValidation(err) {
			t.Fatalf("err = %v, want validation error", err)
		}
	})
}

func TestPurchase(t *testing.T) {
	ctx := context.Background()

	t.Run("IssuesSnapshot", func(t *testing.T) {
		e, _ := newTestEngine(t)
		p := seedPlan(t, e, "Monthly Lunch", plan.DurationMonth, plan.ScopeLunch, 20, types.INR(49900))
		customer := id.NewCustomerID()

		r, err := e.Purchase(ctx, customer, p.ID, types.INR(49900))
		if err != nil {
			t.Fatal(err)
		}

		sub := r.Subscription
		if sub.Scope != plan.ScopeLunch || sub.DurationDays != 30 || sub.TotalVouchers != 20 {
			t.Fatalf("snapshot mismatch: %+v", sub)
		}
		if sub.UsedVouchers != 0 || sub.Status != subscription.StatusActive {
			t.Fatalf("fresh subscription not active/unused: %+v", sub)
		}
		if got := sub.ExpiresAt.Sub(sub.PurchasedAt); got != 30*24*time.Hour {
			t.Fatalf("validity window = %s, want 720h", got)
		}
		if r.Plan.ID.String() != p.ID.String() {
			t.Fatalf("receipt plan = %s, want %s", r.Plan.ID, p.ID)
		}

		history, err := e.ListSubscriptions(ctx, customer, subscription.ListOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 1 || history[0].ID.String() != sub.ID.String() {
			t.Fatalf("history = %+v, want the new subscription", history)
		}
	})

	t.Run("PriceTolerance", func(t *testing.T) {
		e, _ := newTestEngine(t)
		p := seedPlan(t, e, "Monthly Lunch", plan.DurationMonth, plan.ScopeLunch, 20, types.INR(49900))

		// One minor unit either way passes; a distinct customer per attempt
		// keeps the scope-conflict check out of the picture.
		for _, paid := range []int64{49899, 49900, 49901} {
			if _, err := e.Purchase(ctx, id.NewCustomerID(), p.ID, types.INR(paid)); err != nil {
				t.Fatalf("paid %d: %v", paid, err)
			}
		}

		for _, paid := range []int64{49898, 49902} {
			_, err := e.Purchase(ctx, id.NewCustomerID(), p.ID, types.INR(paid))
			var pm mealpass.PriceMismatchError
			if !errors.As(err, &pm) {
				t.Fatalf("paid %d: err = %v, want PriceMismatchError", paid, err)
			}
			if !mealpass.IsValidation(err) {
				t.Fatalf("paid %d: price mismatch should classify as validation", paid)
			}
		}
	})

	t.Run("CurrencyMismatch", func(t *testing.T) {
		e, _ := newTestEngine(t)
		p := seedPlan(t, e, "Monthly Lunch", plan.DurationMonth, plan.ScopeLunch, 20, types.INR(49900))

		_, err := e.Purchase(ctx, id.NewCustomerID(), p.ID, types.USD(49900))
		var pm mealpass.PriceMismatchError
		if !errors.As(err, &pm) {
			t.Fatalf("err = %v, want PriceMismatchError", err)
		}
	})

	t.Run("InactivePlan", func(t *testing.T) {
		e, _ := newTestEngine(t)
		p := seedPlan(t, e, "Monthly Lunch", plan.DurationMonth, plan.ScopeLunch, 20, types.INR(49900))
		if err := e.DeactivatePlan(ctx, p.ID); err != nil {
			t.Fatal(err)
		}

		if _, err := e.Purchase(ctx, id.NewCustomerID(), p.ID, types.INR(49900)); !errors.Is(err, mealpass.ErrPlanInactive) {
			t.Fatalf("err = %v, want ErrPlanInactive", err)
		}
	})

	t.Run("UnknownPlan", func(t *testing.T) {
		e, _ := newTestEngine(t)

		_, err := e.Purchase(ctx, id.NewCustomerID(), id.NewPlanID(), types.INR(49900))
		if !mealpass.IsNotFound(err) {
			t.Fatalf("err = %v, want not-found", err)
		}
	})

	t.Run("MissingCustomer", func(t *testing.T) {
		e, _ := newTestEngine(t)
		p := seedPlan(t, e, "Monthly Lunch", plan.DurationMonth, plan.ScopeLunch, 20, types.INR(49900))

		if _, err := e.Purchase(ctx, id.Nil, p.ID, types.INR(49900)); !mealpass.IsValidation(err) {
			t.Fatalf("err = %v, want validation error", err)
		}
	})
}

func TestPurchaseScopeConflicts(t *testing.T) {
	ctx := context.Background()

	newCatalog := func(t *testing.T, e *mealpass.Engine) (lunch, dinner, both *plan.Plan) {
		t.Helper()
		lunch = seedPlan(t, e, "Lunch", plan.DurationMonth, plan.ScopeLunch, 20, types.INR(49900))
		dinner = seedPlan(t, e, "Dinner", plan.DurationMonth, plan.ScopeDinner, 20, types.INR(49900))
		both = seedPlan(t, e, "Full Day", plan.DurationMonth, plan.ScopeBoth, 40, types.INR(89900))
		return lunch, dinner, both
	}

	t.Run("DisjointScopesCoexist", func(t *testing.T) {
		e, _ := newTestEngine(t)
		lunch, dinner, _ := newCatalog(t, e)
		customer := id.NewCustomerID()

		if _, err := e.Purchase(ctx, customer, lunch.ID, types.INR(49900)); err != nil {
			t.Fatal(err)
		}
		if _, err := e.Purchase(ctx, customer, dinner.ID, types.INR(49900)); err != nil {
			t.Fatalf("lunch holder buying dinner: %v", err)
		}
	})

	t.Run("OverlapBlocks", func(t *testing.T) {
		e, _ := newTestEngine(t)
		lunch, dinner, both := newCatalog(t, e)

		// Holding lunch blocks lunch and BOTH, holding BOTH blocks everything.
		cases := []struct {
			name string
			held *plan.Plan
			next *plan.Plan
		}{
			{"LunchBlocksLunch", lunch, lunch},
			{"LunchBlocksBoth", lunch, both},
			{"BothBlocksLunch", both, lunch},
			{"BothBlocksDinner", both, dinner},
			{"BothBlocksBoth", both, both},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				customer := id.NewCustomerID()
				if _, err := e.Purchase(ctx, customer, tc.held.ID, tc.held.Price); err != nil {
					t.Fatal(err)
				}
				_, err := e.Purchase(ctx, customer, tc.next.ID, tc.next.Price)
				if !errors.Is(err, mealpass.ErrSubscriptionConflict) {
					t.Fatalf("err = %v, want ErrSubscriptionConflict", err)
				}
				if !mealpass.IsConflict(err) {
					t.Fatal("conflict error should classify as conflict")
				}
			})
		}
	})

	t.Run("ExhaustedCounterDoesNotBlock", func(t *testing.T) {
		e, _ := newTestEngine(t)
		single := seedPlan(t, e, "Single", plan.DurationMonth, plan.ScopeLunch, 1, types.INR(2900))
		customer := id.NewCustomerID()

		r, err := e.Purchase(ctx, customer, single.ID, types.INR(2900))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.UseVoucher(ctx, customer, r.Subscription.ID); err != nil {
			t.Fatal(err)
		}

		// The old row is still stored; its drained counter is what stops it
		// from blocking.
		if _, err := e.Purchase(ctx, customer, single.ID, types.INR(2900)); err != nil {
			t.Fatalf("repurchase after exhaustion: %v", err)
		}
	})

	t.Run("CancelledDoesNotBlock", func(t *testing.T) {
		e, _ := newTestEngine(t)
		lunch, _, _ := newCatalog(t, e)
		customer := id.NewCustomerID()

		r, err := e.Purchase(ctx, customer, lunch.ID, types.INR(49900))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.Cancel(ctx, customer, r.Subscription.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := e.Purchase(ctx, customer, lunch.ID, types.INR(49900)); err != nil {
			t.Fatalf("repurchase after cancel: %v", err)
		}
	})

	t.Run("LapsedWindowDoesNotBlock", func(t *testing.T) {
		e, st := newTestEngine(t)
		lunch, _, _ := newCatalog(t, e)
		customer := id.NewCustomerID()

		// Stored ACTIVE but past its window; the sweep has not visited it yet.
		seedSubscription(t, st, customer, lunch.ID, plan.ScopeLunch, 3, 20, time.Now().UTC().Add(-time.Hour))

		if _, err := e.Purchase(ctx, customer, lunch.ID, types.INR(49900)); err != nil {
			t.Fatalf("purchase over lapsed subscription: %v", err)
		}
	})
}

func TestUseVoucher(t *testing.T) {
	ctx := context.Background()

	t.Run("DecrementsCounter", func(t *testing.T) {
		e, _ := newTestEngine(t)
		p := seedPlan(t, e, "Lunch", plan.DurationMonth, plan.ScopeLunch, 5, types.INR(14900))
		customer := id.NewCustomerID()

		r, err := e.Purchase(ctx, customer, p.ID, types.INR(14900))
		if err != nil {
			t.Fatal(err)
		}

		for i := 1; i <= 2; i++ {
			sub, err := e.UseVoucher(ctx, customer, r.Subscription.ID)
			if err != nil {
				t.Fatal(err)
			}
			if sub.UsedVouchers != i || sub.Remaining() != 5-i {
				t.Fatalf("after redemption %d: used=%d remaining=%d", i, sub.UsedVouchers, sub.Remaining())
			}
			if sub.Status != subscription.StatusActive {
				t.Fatalf("status = %s, want active", sub.Status)
			}
		}
	})

	t.Run("FinalVoucherExhausts", func(t *testing.T) {
		e, _ := newTestEngine(t)
		p := seedPlan(t, e, "Duo", plan.DurationMonth, plan.ScopeLunch, 2, types.INR(4900))
		customer := id.NewCustomerID()

		r, err := e.Purchase(ctx, customer, p.ID, types.INR(4900))
		if err != nil {
			t.Fatal(err)
		}

		if _, err := e.UseVoucher(ctx, customer, r.Subscription.ID); err != nil {
			t.Fatal(err)
		}
		sub, err := e.UseVoucher(ctx, customer, r.Subscription.ID)
		if err != nil {
			t.Fatal(err)
		}
		if sub.Status != subscription.StatusExhausted || sub.Remaining() != 0 {
			t.Fatalf("after final voucher: status=%s remaining=%d", sub.Status, sub.Remaining())
		}

		if _, err := e.UseVoucher(ctx, customer, r.Subscription.ID); !errors.Is(err, mealpass.ErrVouchersExhausted) {
			t.Fatalf("err = %v, want ErrVouchersExhausted", err)
		}
	})

	t.Run("LazyExpiryCorrectsStatus", func(t *testing.T) {
		e, st := newTestEngine(t)
		customer := id.NewCustomerID()
		sub := seedSubscription(t, st, customer, id.NewPlanID(), plan.ScopeLunch, 3, 20, time.Now().UTC().Add(-time.Hour))

		if _, err := e.UseVoucher(ctx, customer, sub.ID); !errors.Is(err, mealpass.ErrSubscriptionExpired) {
			t.Fatalf("err = %v, want ErrSubscriptionExpired", err)
		}

		got, err := e.AdminGetSubscription(ctx, sub.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != subscription.StatusExpired {
			t.Fatalf("stored status = %s, want expired after lazy correction", got.Status)
		}
		if got.UsedVouchers != 3 {
			t.Fatalf("used = %d, counter must not move on a failed redemption", got.UsedVouchers)
		}
	})

	t.Run("LazyExhaustionCorrectsStatus", func(t *testing.T) {
		e, st := newTestEngine(t)
		customer := id.NewCustomerID()
		sub := seedSubscription(t, st, customer, id.NewPlanID(), plan.ScopeLunch, 20, 20, time.Now().UTC().Add(24*time.Hour))

		if _, err := e.UseVoucher(ctx, customer, sub.ID); !errors.Is(err, mealpass.ErrVouchersExhausted) {
			t.Fatalf("err = %v, want ErrVouchersExhausted", err)
		}

		got, err := e.AdminGetSubscription(ctx, sub.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != subscription.StatusExhausted {
			t.Fatalf("stored status = %s, want exhausted after lazy correction", got.Status)
		}
	})

	t.Run("CancelledIsTerminal", func(t *testing.T) {
		e, _ := newTestEngine(t)
		p := seedPlan(t, e, "Lunch", plan.DurationMonth, plan.ScopeLunch, 5, types.INR(14900))
		customer := id.NewCustomerID()

		r, err := e.Purchase(ctx, customer, p.ID, types.INR(14900))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.Cancel(ctx, customer, r.Subscription.ID); err != nil {
			t.Fatal(err)
		}

		_, err = e.UseVoucher(ctx, customer, r.Subscription.ID)
		var ise mealpass.InvalidStateError
		if !errors.As(err, &ise) || ise.Status != subscription.StatusCancelled {
			t.Fatalf("err = %v, want InvalidStateError{cancelled}", err)
		}
	})

	t.Run("OwnershipEnforced", func(t *testing.T) {
		e, _ := newTestEngine(t)
		p := seedPlan(t, e, "Lunch", plan.DurationMonth, plan.ScopeLunch, 5, types.INR(14900))
		owner := id.NewCustomerID()

		r, err := e.Purchase(ctx, owner, p.ID, types.INR(14900))
		if err != nil {
			t.Fatal(err)
		}

		// Someone else's subscription reads as not found, not forbidden.
		if _, err := e.UseVoucher(ctx, id.NewCustomerID(), r.Subscription.ID); !errors.Is(err, mealpass.ErrSubscriptionNotFound) {
			t.Fatalf("err = %v, want ErrSubscriptionNotFound", err)
		}
	})

	t.Run("SoftDeletedReadsAsNotFound", func(t *testing.T) {
		e, _ := newTestEngine(t)
		p := seedPlan(t, e, "Lunch", plan.DurationMonth, plan.ScopeLunch, 5, types.INR(14900))
		customer := id.NewCustomerID()

		r, err := e.Purchase(ctx, customer, p.ID, types.INR(14900))
		if err != nil {
			t.Fatal(err)
		}
		if err := e.SoftDeleteSubscription(ctx, r.Subscription.ID); err != nil {
			t.Fatal(err)
		}

		if _, err := e.UseVoucher(ctx, customer, r.Subscription.ID); !errors.Is(err, mealpass.ErrSubscriptionNotFound) {
			t.Fatalf("err = %v, want ErrSubscriptionNotFound", err)
		}
	})
}

func TestUseVoucherConcurrent(t *testing.T) {
	ctx := context.Background()

	// With contention every lost conditional write means some other caller
	// succeeded, so a retry budget of the caller count guarantees each
	// goroutine lands on success or a terminal error.
	const (
		vouchers = 5
		callers  = 20
	)

	e, _ := newTestEngine(t, mealpass.WithConsumeRetries(callers))
	p := seedPlan(t, e, "Contended", plan.DurationMonth, plan.ScopeLunch, vouchers, types.INR(14900))
	customer := id.NewCustomerID()

	r, err := e.Purchase(ctx, customer, p.ID, types.INR(14900))
	if err != nil {
		t.Fatal(err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	errs := make([]error, 0, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.UseVoucher(ctx, customer, r.Subscription.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else {
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()

	if succeeded != vouchers {
		t.Fatalf("succeeded = %d, want exactly %d", succeeded, vouchers)
	}
	for _, err := range errs {
		if !errors.Is(err, mealpass.ErrVouchersExhausted) {
			t.Fatalf("loser got %v, want ErrVouchersExhausted", err)
		}
	}

	final, err := e.AdminGetSubscription(ctx, r.Subscription.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.UsedVouchers != vouchers || final.Status != subscription.StatusExhausted {
		t.Fatalf("final record: used=%d status=%s", final.UsedVouchers, final.Status)
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("VoidsRemainingVouchers", func(t *testing.T) {
		e, _ := newTestEngine(t)
		p := seedPlan(t, e, "Lunch", plan.DurationMonth, plan.ScopeLunch, 5, types.INR(14900))
		customer := id.NewCustomerID()

		r, err := e.Purchase(ctx, customer, p.ID, types.INR(14900))
		if err != nil {
			t.Fatal(err)
		}

		sub, err := e.Cancel(ctx, customer, r.Subscription.ID)
		if err != nil {
			t.Fatal(err)
		}
		if sub.Status != subscription.StatusCancelled {
			t.Fatalf("status = %s, want cancelled", sub.Status)
		}
		if sub.Remaining() != 5 {
			t.Fatalf("remaining = %d, counters must survive a cancel", sub.Remaining())
		}
	})

	t.Run("RepeatCancel", func(t *testing.T) {
		e, _ := newTestEngine(t)
		p := seedPlan(t, e, "Lunch", plan.DurationMonth, plan.ScopeLunch, 5, types.INR(14900))
		customer := id.NewCustomerID()

		r, err := e.Purchase(ctx, customer, p.ID, types.INR(14900))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.Cancel(ctx, customer, r.Subscription.ID); err != nil {
			t.Fatal(err)
		}

		if _, err := e.Cancel(ctx, customer, r.Subscription.ID); !errors.Is(err, mealpass.ErrAlreadyCancelled) {
			t.Fatalf("err = %v, want ErrAlreadyCancelled", err)
		}
	})

	t.Run("ExhaustedRejected", func(t *testing.T) {
		e, _ := newTestEngine(t)
		p := seedPlan(t, e, "Single", plan.DurationMonth, plan.ScopeLunch, 1, types.INR(2900))
		customer := id.NewCustomerID()

		r, err := e.Purchase(ctx, customer, p.ID, types.INR(2900))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.UseVoucher(ctx, customer, r.Subscription.ID); err != nil {
			t.Fatal(err)
		}

		if _, err := e.Cancel(ctx, customer, r.Subscription.ID); !errors.Is(err, mealpass.ErrVouchersExhausted) {
			t.Fatalf("err = %v, want ErrVouchersExhausted", err)
		}
	})

	t.Run("LapsedWindowRejectedAndCorrected", func(t *testing.T) {
		e, st := newTestEngine(t)
		customer := id.NewCustomerID()
		sub := seedSubscription(t, st, customer, id.NewPlanID(), plan.ScopeLunch, 3, 20, time.Now().UTC().Add(-time.Hour))

		if _, err := e.Cancel(ctx, customer, sub.ID); !errors.Is(err, mealpass.ErrSubscriptionExpired) {
			t.Fatalf("err = %v, want ErrSubscriptionExpired", err)
		}

		got, err := e.AdminGetSubscription(ctx, sub.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != subscription.StatusExpired {
			t.Fatalf("stored status = %s, want expired", got.Status)
		}
	})

	t.Run("OwnershipEnforced", func(t *testing.T) {
		e, _ := newTestEngine(t)
		p := seedPlan(t, e, "Lunch", plan.DurationMonth, plan.ScopeLunch, 5, types.INR(14900))

		r, err := e.Purchase(ctx, id.NewCustomerID(), p.ID, types.INR(14900))
		if err != nil {
			t.Fatal(err)
		}

		if _, err := e.Cancel(ctx, id.NewCustomerID(), r.Subscription.ID); !errors.Is(err, mealpass.ErrSubscriptionNotFound) {
			t.Fatalf("err = %v, want ErrSubscriptionNotFound", err)
		}
	})
}

func TestActiveForScope(t *testing.T) {
	ctx := context.Background()

	t.Run("BothSatisfiesEitherWindow", func(t *testing.T) {
		e, _ := newTestEngine(t)
		both := seedPlan(t, e, "Full Day", plan.DurationMonth, plan.ScopeBoth, 40, types.INR(89900))
		customer := id.NewCustomerID()

		r, err := e.Purchase(ctx, customer, both.ID, types.INR(89900))
		if err != nil {
			t.Fatal(err)
		}

		for _, scope := range []plan.Scope{plan.ScopeLunch, plan.ScopeDinner, plan.ScopeBoth} {
			subs, err := e.ActiveForScope(ctx, customer, scope)
			if err != nil {
				t.Fatal(err)
			}
			if len(subs) != 1 || subs[0].ID.String() != r.Subscription.ID.String() {
				t.Fatalf("scope %s: got %d subscriptions, want the BOTH pass", scope, len(subs))
			}
		}
	})

	t.Run("SingleScopeDoesNotCross", func(t *testing.T) {
		e, _ := newTestEngine(t)
		lunch := seedPlan(t, e, "Lunch", plan.DurationMonth, plan.ScopeLunch, 20, types.INR(49900))
		customer := id.NewCustomerID()

		if _, err := e.Purchase(ctx, customer, lunch.ID, types.INR(49900)); err != nil {
			t.Fatal(err)
		}

		dinner, err := e.ActiveForScope(ctx, customer, plan.ScopeDinner)
		if err != nil {
			t.Fatal(err)
		}
		if len(dinner) != 0 {
			t.Fatalf("lunch pass answered a dinner request: %+v", dinner)
		}
	})

	t.Run("FiltersUnusable", func(t *testing.T) {
		e, st := newTestEngine(t)
		customer := id.NewCustomerID()
		now := time.Now().UTC()

		// Lapsed window, drained counter, and a live one.
		seedSubscription(t, st, customer, id.NewPlanID(), plan.ScopeLunch, 3, 20, now.Add(-time.Hour))
		seedSubscription(t, st, customer, id.NewPlanID(), plan.ScopeLunch, 20, 20, now.Add(24*time.Hour))
		live := seedSubscription(t, st, customer, id.NewPlanID(), plan.ScopeLunch, 3, 20, now.Add(24*time.Hour))

		subs, err := e.ActiveForScope(ctx, customer, plan.ScopeLunch)
		if err != nil {
			t.Fatal(err)
		}
		if len(subs) != 1 || subs[0].ID.String() != live.ID.String() {
			t.Fatalf("usable = %+v, want only the live subscription", subs)
		}
	})

	t.Run("SoonestExpiryFirst", func(t *testing.T) {
		e, st := newTestEngine(t)
		customer := id.NewCustomerID()
		now := time.Now().UTC()

		later := seedSubscription(t, st, customer, id.NewPlanID(), plan.ScopeBoth, 0, 20, now.Add(20*24*time.Hour))
		sooner := seedSubscription(t, st, customer, id.NewPlanID(), plan.ScopeLunch, 0, 20, now.Add(2*24*time.Hour))

		subs, err := e.ActiveForScope(ctx, customer, plan.ScopeLunch)
		if err != nil {
			t.Fatal(err)
		}
		if len(subs) != 2 || subs[0].ID.String() != sooner.ID.String() || subs[1].ID.String() != later.ID.String() {
			t.Fatalf("order mismatch: %+v", subs)
		}
	})

	t.Run("InvalidScope", func(t *testing.T) {
		e, _ := newTestEngine(t)
		if _, err := e.ActiveForScope(ctx, id.NewCustomerID(), "brunch"); !mealpass.IsValidation(err) {
			t.Fatalf("err = %v, want validation error", err)
		}
	})
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t)
	now := time.Now().UTC()

	lapsed := make([]*subscription.Subscription, 0, 3)
	for i := 0; i < 3; i++ {
		lapsed = append(lapsed, seedSubscription(t, st, id.NewCustomerID(), id.NewPlanID(), plan.ScopeLunch, 2, 20, now.Add(-time.Hour)))
	}
	live := seedSubscription(t, st, id.NewCustomerID(), id.NewPlanID(), plan.ScopeLunch, 2, 20, now.Add(24*time.Hour))

	// Terminal records past their window are not the sweep's business.
	cancelled := seedSubscription(t, st, id.NewCustomerID(), id.NewPlanID(), plan.ScopeLunch, 2, 20, now.Add(-time.Hour))
	if err := e.SetSubscriptionStatus(ctx, cancelled.ID, subscription.StatusCancelled); err != nil {
		t.Fatal(err)
	}

	count, err := e.SweepExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("swept %d, want 3", count)
	}

	for _, sub := range lapsed {
		got, err := e.AdminGetSubscription(ctx, sub.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != subscription.StatusExpired {
			t.Fatalf("lapsed %s: status = %s, want expired", sub.ID, got.Status)
		}
	}
	if got, _ := e.AdminGetSubscription(ctx, live.ID); got.Status != subscription.StatusActive {
		t.Fatalf("live subscription swept: %s", got.Status)
	}
	if got, _ := e.AdminGetSubscription(ctx, cancelled.ID); got.Status != subscription.StatusCancelled {
		t.Fatalf("cancelled subscription touched: %s", got.Status)
	}

	// Rerun finds nothing.
	count, err = e.SweepExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("second sweep = %d, want 0", count)
	}
}

func TestAdminOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("StatusOverride", func(t *testing.T) {
		e, _ := newTestEngine(t)
		p := seedPlan(t, e, "Lunch", plan.DurationMonth, plan.ScopeLunch, 5, types.INR(14900))
		customer := id.NewCustomerID()

		r, err := e.Purchase(ctx, customer, p.ID, types.INR(14900))
		if err != nil {
			t.Fatal(err)
		}

		// No transition rules: the override can resurrect a terminal record.
		if _, err := e.Cancel(ctx, customer, r.Subscription.ID); err != nil {
			t.Fatal(err)
		}
		if err := e.SetSubscriptionStatus(ctx, r.Subscription.ID, subscription.StatusActive); err != nil {
			t.Fatal(err)
		}
		if _, err := e.UseVoucher(ctx, customer, r.Subscription.ID); err != nil {
			t.Fatalf("redeem after override: %v", err)
		}

		if err := e.SetSubscriptionStatus(ctx, r.Subscription.ID, "paused"); !mealpass.IsValidation(err) {
			t.Fatalf("err = %v, want validation error", err)
		}
	})

	t.Run("SoftDeleteAndRestore", func(t *testing.T) {
		e, _ := newTestEngine(t)
		p := seedPlan(t, e, "Lunch", plan.DurationMonth, plan.ScopeLunch, 5, types.INR(14900))
		customer := id.NewCustomerID()

		r, err := e.Purchase(ctx, customer, p.ID, types.INR(14900))
		if err != nil {
			t.Fatal(err)
		}
		if err := e.SoftDeleteSubscription(ctx, r.Subscription.ID); err != nil {
			t.Fatal(err)
		}

		history, err := e.ListSubscriptions(ctx, customer, subscription.ListOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 0 {
			t.Fatalf("customer history shows soft-deleted record: %+v", history)
		}

		all, err := e.AdminListSubscriptions(ctx, subscription.ListOpts{IncludeDeleted: true})
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 1 || !all[0].IsDeleted() {
			t.Fatalf("admin list = %+v, want the deleted record", all)
		}

		if err := e.RestoreSubscription(ctx, r.Subscription.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := e.UseVoucher(ctx, customer, r.Subscription.ID); err != nil {
			t.Fatalf("redeem after restore: %v", err)
		}
	})

	t.Run("ListFilters", func(t *testing.T) {
		e, _ := newTestEngine(t)
		p := seedPlan(t, e, "Single", plan.DurationMonth, plan.ScopeLunch, 1, types.INR(2900))

		alice := id.NewCustomerID()
		bob := id.NewCustomerID()
		ra, err := e.Purchase(ctx, alice, p.ID, types.INR(2900))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.Purchase(ctx, bob, p.ID, types.INR(2900)); err != nil {
			t.Fatal(err)
		}
		if _, err := e.UseVoucher(ctx, alice, ra.Subscription.ID); err != nil {
			t.Fatal(err)
		}

		exhausted, err := e.AdminListSubscriptions(ctx, subscription.ListOpts{Status: subscription.StatusExhausted})
		if err != nil {
			t.Fatal(err)
		}
		if len(exhausted) != 1 || exhausted[0].CustomerID.String() != alice.String() {
			t.Fatalf("exhausted filter = %+v", exhausted)
		}

		if _, err := e.AdminListSubscriptions(ctx, subscription.ListOpts{Status: "paused"}); !mealpass.IsValidation(err) {
			t.Fatalf("err = %v, want validation error", err)
		}
	})
}

func TestListSubscriptionsSort(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t)
	customer := id.NewCustomerID()
	now := time.Now().UTC()

	seed := func(purchasedAt, expiresAt time.Time) *subscription.Subscription {
		t.Helper()
		sub := &subscription.Subscription{
			Entity:        types.NewEntity(),
			ID:            id.NewSubscriptionID(),
			CustomerID:    customer,
			PlanID:        id.NewPlanID(),
			Scope:         plan.ScopeLunch,
			DurationDays:  30,
			TotalVouchers: 20,
			AmountPaid:    types.INR(49900),
			PurchasedAt:   purchasedAt,
			ExpiresAt:     expiresAt,
			Status:        subscription.StatusActive,
		}
		if err := st.CreateSubscription(ctx, sub); err != nil {
			t.Fatal(err)
		}
		return sub
	}

	// Purchase order and expiry order deliberately disagree.
	early := seed(now.Add(-48*time.Hour), now.Add(60*24*time.Hour))
	late := seed(now.Add(-1*time.Hour), now.Add(7*24*time.Hour))

	cases := []struct {
		name  string
		sort  subscription.Sort
		first *subscription.Subscription
	}{
		{"DefaultNewestPurchase", "", late},
		{"PurchasedAsc", subscription.SortPurchasedAsc, early},
		{"ExpiresAsc", subscription.SortExpiresAsc, late},
		{"ExpiresDesc", subscription.SortExpiresDesc, early},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			subs, err := e.ListSubscriptions(ctx, customer, subscription.ListOpts{Sort: tc.sort})
			if err != nil {
				t.Fatal(err)
			}
			if len(subs) != 2 || subs[0].ID.String() != tc.first.ID.String() {
				t.Fatalf("sort %q: first = %s, want %s", tc.sort, subs[0].ID, tc.first.ID)
			}
		})
	}

	t.Run("AdminHonorsSort", func(t *testing.T) {
		subs, err := e.AdminListSubscriptions(ctx, subscription.ListOpts{Sort: subscription.SortExpiresAsc})
		if err != nil {
			t.Fatal(err)
		}
		if len(subs) != 2 || subs[0].ID.String() != late.ID.String() {
			t.Fatalf("admin sort: first = %s, want %s", subs[0].ID, late.ID)
		}
	})

	t.Run("UnknownSortRejected", func(t *testing.T) {
		if _, err := e.ListSubscriptions(ctx, customer, subscription.ListOpts{Sort: "alphabetical"}); !mealpass.IsValidation(err) {
			t.Fatalf("err = %v, want validation error", err)
		}
		if _, err := e.AdminListSubscriptions(ctx, subscription.ListOpts{Sort: "alphabetical"}); !mealpass.IsValidation(err) {
			t.Fatalf("admin err = %v, want validation error", err)
		}
	})
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	lunch := seedPlan(t, e, "Lunch", plan.DurationMonth, plan.ScopeLunch, 10, types.INR(30000))
	dinner := seedPlan(t, e, "Dinner", plan.DurationMonth, plan.ScopeDinner, 10, types.INR(36000))

	alice := id.NewCustomerID()
	bob := id.NewCustomerID()

	ra, err := e.Purchase(ctx, alice, lunch.ID, types.INR(30000))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Purchase(ctx, bob, lunch.ID, types.INR(30000)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Purchase(ctx, alice, dinner.ID, types.INR(36000)); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if _, err := e.UseVoucher(ctx, alice, ra.Subscription.ID); err != nil {
			t.Fatal(err)
		}
	}

	ov, err := e.Stats(ctx, stats.Opts{})
	if err != nil {
		t.Fatal(err)
	}

	if ov.TotalSubscriptions != 3 {
		t.Fatalf("total = %d, want 3", ov.TotalSubscriptions)
	}
	if ov.CountsByStatus["active"] != 3 {
		t.Fatalf("active count = %d, want 3", ov.CountsByStatus["active"])
	}
	if want := types.INR(96000); !ov.RevenueTotal.Equal(want) {
		t.Fatalf("revenue = %s, want %s", ov.RevenueTotal, want)
	}
	if want := types.INR(32000); !ov.RevenueAverage.Equal(want) {
		t.Fatalf("average = %s, want %s", ov.RevenueAverage, want)
	}
	if ov.VouchersIssued != 30 || ov.VouchersUsed != 2 {
		t.Fatalf("vouchers = %d/%d, want 2/30", ov.VouchersUsed, ov.VouchersIssued)
	}
	if got, want := ov.RedemptionRate, float64(2)/float64(30); got != want {
		t.Fatalf("redemption rate = %f, want %f", got, want)
	}

	if len(ov.PerPlan) != 2 {
		t.Fatalf("per-plan rows = %d, want 2", len(ov.PerPlan))
	}
	byName := make(map[string]stats.PlanBreakdown, 2)
	for _, pb := range ov.PerPlan {
		byName[pb.PlanName] = pb
	}
	if pb := byName["Lunch"]; pb.Subscriptions != 2 || pb.VouchersUsed != 2 || !pb.Revenue.Equal(types.INR(60000)) {
		t.Fatalf("lunch breakdown = %+v", pb)
	}
	if pb := byName["Dinner"]; pb.Subscriptions != 1 || pb.VouchersUsed != 0 || !pb.Revenue.Equal(types.INR(36000)) {
		t.Fatalf("dinner breakdown = %+v", pb)
	}
}

func TestRedemptionLog(t *testing.T) {
	ctx := context.Background()

	// Batch size of one makes the flush worker persist each event as soon as
	// it drains it from the buffer.
	e, _ := newTestEngine(t, mealpass.WithRedemptionConfig(1, 20*time.Millisecond))
	p := seedPlan(t, e, "Lunch", plan.DurationMonth, plan.ScopeLunch, 5, types.INR(14900))
	customer := id.NewCustomerID()

	r, err := e.Purchase(ctx, customer, p.ID, types.INR(14900))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := e.UseVoucher(ctx, customer, r.Subscription.ID); err != nil {
			t.Fatal(err)
		}
	}

	var events []*redemption.Event
	deadline := time.Now().Add(2 * time.Second)
	for {
		events, err = e.QueryRedemptions(ctx, redemption.QueryOpts{SubscriptionID: r.Subscription.ID})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(events) != 2 {
		t.Fatalf("logged events = %d, want 2", len(events))
	}

	// Oldest first, remaining counts walking down.
	if events[0].RemainingAfter != 4 || events[1].RemainingAfter != 3 {
		t.Fatalf("remaining after = %d,%d, want 4,3", events[0].RemainingAfter, events[1].RemainingAfter)
	}
	for _, ev := range events {
		if ev.CustomerID.String() != customer.String() || ev.PlanID.String() != p.ID.String() {
			t.Fatalf("event attribution mismatch: %+v", ev)
		}
	}

	purged, err := e.PurgeRedemptions(ctx, time.Now().UTC().Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if purged != 2 {
		t.Fatalf("purged = %d, want 2", purged)
	}
	events, err = e.QueryRedemptions(ctx, redemption.QueryOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatalf("log not empty after purge: %+v", events)
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"Nil", nil, "", http.StatusOK},
		{"PlanNotFound", mealpass.ErrPlanNotFound, "not_found", http.StatusNotFound},
		{"SubscriptionNotFound", mealpass.ErrSubscriptionNotFound, "not_found", http.StatusNotFound},
		{"DuplicatePlan", mealpass.ErrDuplicatePlan, "conflict", http.StatusConflict},
		{"ScopeConflict", mealpass.ErrSubscriptionConflict, "conflict", http.StatusConflict},
		{"Expired", mealpass.ErrSubscriptionExpired, "subscription_expired", http.StatusBadRequest},
		{"Exhausted", mealpass.ErrVouchersExhausted, "vouchers_exhausted", http.StatusBadRequest},
		{"AlreadyCancelled", mealpass.ErrAlreadyCancelled, "already_cancelled", http.StatusBadRequest},
		{"InvalidState", mealpass.InvalidStateError{Status: subscription.StatusCancelled}, "invalid_state", http.StatusBadRequest},
		{"Validation", mealpass.ValidationError{Field: "scope", Message: "bad"}, "validation_failed", http.StatusBadRequest},
		{"PriceMismatch", mealpass.PriceMismatchError{Want: types.INR(100), Got: types.INR(200)}, "validation_failed", http.StatusBadRequest},
		{"MigrationFailed", mealpass.ErrMigrationFailed, "internal", http.StatusInternalServerError},
		{"Unclassified", errors.New("disk on fire"), "internal", http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mealpass.Code(tc.err); got != tc.code {
				t.Fatalf("Code = %q, want %q", got, tc.code)
			}
			if got := mealpass.HTTPStatus(tc.err); got != tc.status {
				t.Fatalf("HTTPStatus = %d, want %d", got, tc.status)
			}
		})
	}

	t.Run("StaleIsRetryable", func(t *testing.T) {
		if !mealpass.IsRetryable(mealpass.ErrStaleRecord) {
			t.Fatal("stale record must be retryable")
		}
		if !mealpass.IsRetryable(mealpass.ErrStoreNotReady) {
			t.Fatal("store not ready must be retryable")
		}
		if mealpass.IsRetryable(mealpass.ErrVouchersExhausted) {
			t.Fatal("exhaustion is terminal, not retryable")
		}
		if mealpass.IsRetryable(mealpass.ErrMigrationFailed) {
			t.Fatal("migration failure is not retryable")
		}
	})
}
