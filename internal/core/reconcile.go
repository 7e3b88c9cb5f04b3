package core

// reconcile.go decides, per normalized record, whether to create, update or
// skip the stored customer.
//
// Same-key reconciliations are serialized through a KeyLocker. Correctness
// across processes rests on storage: the natural-key unique constraint turns
// a lost create race into ErrDuplicateKey, and the version compare-and-swap
// turns a lost update race into ErrStaleVersion. Both cause the lookup to run
// again, so a race resolves to update or skip instead of a duplicate.

import (
	"context"
	"errors"
	"fmt"
)

// maxReconcileAttempts bounds lookup retries after a lost race.
const maxReconcileAttempts = 3

// Repository is the storage collaborator for customers.
type Repository interface {
	// FindByNaturalKey returns ErrNotFound when no customer has key.
	FindByNaturalKey(ctx context.Context, key string) (Customer, error)
	// Create inserts c and fills its ID, Version and timestamps.
	// Returns ErrDuplicateKey when the natural key already exists.
	Create(ctx context.Context, c *Customer) error
	// Update writes c if the stored version equals expectedVersion and
	// advances c.Version. Returns ErrStaleVersion otherwise.
	Update(ctx context.Context, c *Customer, expectedVersion int64) error
}

// KeyLocker serializes work on a single natural key.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Reconciler applies normalized records to the Repository.
type Reconciler struct {
	repo  Repository
	locks KeyLocker
}

// NewReconciler creates a reconciler. locks may be nil when the caller
// already guarantees one writer per key.
func NewReconciler(repo Repository, locks KeyLocker) *Reconciler {
	return &Reconciler{repo: repo, locks: locks}
}

// Reconcile applies rec and reports what happened to the stored customer.
// Storage failures are returned as *ReconciliationError.
func (r *Reconciler) Reconcile(ctx context.Context, rec NormalizedRecord) (Outcome, error) {
	if r.locks != nil {
		unlock, err := r.locks.Lock(ctx, rec.NaturalKey)
		if err != nil {
			return OutcomeFailed, &ReconciliationError{Line: rec.Line, Key: rec.NaturalKey, Err: fmt.Errorf("acquire key lock: %w", err)}
		}
		defer unlock()
	}

	var lastErr error
	for attempt := 0; attempt < maxReconcileAttempts; attempt++ {
		outcome, err := r.apply(ctx, rec)
		if err == nil {
			return outcome, nil
		}
		if !errors.Is(err, ErrDuplicateKey) && !errors.Is(err, ErrStaleVersion) {
			return OutcomeFailed, &ReconciliationError{Line: rec.Line, Key: rec.NaturalKey, Err: err}
		}
		lastErr = err
	}
	return OutcomeFailed, &ReconciliationError{
		Line: rec.Line,
		Key:  rec.NaturalKey,
		Err:  fmt.Errorf("gave up after %d attempts: %w", maxReconcileAttempts, lastErr),
	}
}

func (r *Reconciler) apply(ctx context.Context, rec NormalizedRecord) (Outcome, error) {
	existing, err := r.repo.FindByNaturalKey(ctx, rec.NaturalKey)
	switch {
	case errors.Is(err, ErrNotFound):
		c := &Customer{NaturalKey: rec.NaturalKey, Profile: rec.Profile}
		if err := r.repo.Create(ctx, c); err != nil {
			return OutcomeFailed, fmt.Errorf("create customer: %w", err)
		}
		return OutcomeCreated, nil
	case err != nil:
		return OutcomeFailed, fmt.Errorf("find customer: %w", err)
	}

	if existing.Profile == rec.Profile {
		return OutcomeSkipped, nil
	}

	expected := existing.Version
	existing.Profile = rec.Profile
	if err := r.repo.Update(ctx, &existing, expected); err != nil {
		return OutcomeFailed, fmt.Errorf("update customer: %w", err)
	}
	return OutcomeUpdated, nil
}
