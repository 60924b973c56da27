// Package reconcile keeps each account's derived location fields (address
// cache, coordinates, zone) consistent with its structured address.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/evcraddock/advocate/internal/account"
	"github.com/evcraddock/advocate/internal/geocode"
	"github.com/evcraddock/advocate/internal/jobs"
	"github.com/evcraddock/advocate/internal/zone"
)

// Geocoder resolves an address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*geocode.Result, error)
}

// Summary counts the outcome of a batch run.
type Summary struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Cleared   int `json:"cleared"`
	Failed    int `json:"failed"`
}

// Outcome is the result of reconciling one account.
type Outcome int

const (
	Unchanged Outcome = iota
	Updated
	Cleared
)

func (o Outcome) String() string {
	switch o {
	case Updated:
		return "updated"
	case Cleared:
		return "cleared"
	default:
		return "unchanged"
	}
}

// Reconciler derives address_raw, point and zone for accounts.
type Reconciler struct {
	accounts *account.Repository
	zones    *zone.Repository
	geocoder Geocoder
}

// New creates a reconciler.
func New(accounts *account.Repository, zones *zone.Repository, geocoder Geocoder) *Reconciler {
	return &Reconciler{accounts: accounts, zones: zones, geocoder: geocoder}
}

// Run reconciles every account. A failure on one account is logged and
// counted; the batch continues. Only a failure to load the account list or
// zones, or cancellation, stops the run.
func (r *Reconciler) Run(ctx context.Context) (*Summary, error) {
	locator, err := zone.LoadLocator(ctx, r.zones)
	if err != nil {
		return nil, err
	}

	ids, err := r.accounts.ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		summary.Processed++
		outcome, err := r.reconcile(ctx, locator, id)
		if err != nil {
			summary.Failed++
			slog.Warn("reconciling account", "account_id", id, "err", err)
			continue
		}
		switch outcome {
		case Updated:
			summary.Updated++
		case Cleared:
			summary.Cleared++
		}
	}

	slog.Info("reconcile complete",
		"processed", summary.Processed,
		"updated", summary.Updated,
		"cleared", summary.Cleared,
		"failed", summary.Failed,
	)
	return summary, nil
}

// ReconcileAccount reconciles a single account against the current zones.
func (r *Reconciler) ReconcileAccount(ctx context.Context, id int64) (Outcome, error) {
	locator, err := zone.LoadLocator(ctx, r.zones)
	if err != nil {
		return Unchanged, err
	}
	return r.reconcile(ctx, locator, id)
}

func (r *Reconciler) reconcile(ctx context.Context, locator *zone.Locator, id int64) (Outcome, error) {
	a, err := r.accounts.Get(ctx, id)
	if err != nil {
		return Unchanged, err
	}

	current := a.Derived()

	if a.Address.IsZero() {
		if current.Equal(account.Derived{}) {
			return Unchanged, nil
		}
		if ok, err := r.write(ctx, a, account.Derived{}); !ok {
			return Unchanged, err
		}
		return Cleared, nil
	}

	next := account.Derived{
		AddressRaw: a.Address.String(),
		Point:      current.Point,
		ZoneID:     current.ZoneID,
	}

	if next.AddressRaw != current.AddressRaw || next.Point == nil {
		res, err := r.geocoder.Geocode(ctx, next.AddressRaw)
		if err != nil {
			// Persist the address cache so the failure is visible, but
			// never keep a point or zone derived from an older address.
			if next.AddressRaw != current.AddressRaw {
				ok, setErr := r.write(ctx, a, account.Derived{AddressRaw: next.AddressRaw})
				if setErr != nil {
					return Unchanged, errors.Join(err, setErr)
				}
				if !ok {
					return Unchanged, nil
				}
			}
			return Unchanged, fmt.Errorf("geocoding %q: %w", next.AddressRaw, err)
		}
		next.Point = &account.Point{Lat: res.Lat, Lng: res.Lng}
	}

	z := locator.Locate(next.Point.Lat, next.Point.Lng)
	if z == nil {
		return Unchanged, fmt.Errorf("no zone or sentinel available")
	}
	next.ZoneID = &z.ID

	if next.Equal(current) {
		return Unchanged, nil
	}
	if ok, err := r.write(ctx, a, next); !ok {
		return Unchanged, err
	}
	return Updated, nil
}

// write saves d for a if its address is unchanged since a was read. A stale
// write is skipped with ok false and no error; the address update that made
// it stale queues its own reconcile.
func (r *Reconciler) write(ctx context.Context, a *account.Account, d account.Derived) (ok bool, err error) {
	err = r.accounts.SetDerived(ctx, a.ID, a.Address, d)
	if errors.Is(err, account.ErrStale) {
		slog.Info("skipping stale reconcile, address changed", "account_id", a.ID)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Handler returns a job handler for account.reconcile jobs.
func (r *Reconciler) Handler() jobs.Handler {
	return jobs.HandlerFunc(func(ctx context.Context, job *jobs.Job) error {
		var p jobs.AccountPayload
		if err := job.Decode(&p); err != nil {
			return err
		}
		outcome, err := r.ReconcileAccount(ctx, p.AccountID)
		if errors.Is(err, account.ErrNotFound) {
			slog.Info("skipping reconcile for deleted account", "account_id", p.AccountID)
			return nil
		}
		if errors.Is(err, geocode.ErrNoResults) {
			return jobs.Permanent(err)
		}
		if err != nil {
			return err
		}
		slog.Debug("account reconciled", "account_id", p.AccountID, "outcome", outcome.String())
		return nil
	})
}
