// Package identity implements the Identity Router (C10): it owns
// account_id -> (proxy, fingerprint) assignment and is the only component
// that mutates the identity table (spec.md §4.10, §5, invariants I5-I7).
package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/clipcast/engine/internal/domain"
	domainerrors "github.com/clipcast/engine/internal/domain/errors"
)

// Router assigns and validates identities. Per-account claims are cached in
// a lock-free map (xsync) so Validate, which sits on the hot path of every
// C4/C7/C9 outbound call (spec.md §4.10), never round-trips storage; the
// store remains the durable source of truth and is consulted on Assign and
// on cache miss.
type Router struct {
	store domain.IdentityRepository

	claims *xsync.MapOf[uuid.UUID, *domain.Identity]

	// allocMu serializes proxy/fingerprint allocation so the
	// check-then-claim sequence in Assign is atomic across goroutines,
	// matching the teacher's double-checked-locking registries.
	allocMu sync.Mutex

	exclusiveVPNAccount *uuid.UUID
	rotatingPool        []*domain.Identity
	rotatingCursor      int
}

func NewRouter(store domain.IdentityRepository) *Router {
	return &Router{
		store:  store,
		claims: xsync.NewMapOf[uuid.UUID, *domain.Identity](),
	}
}

// AssignIdentity creates and persists a new identity for accountID, picking
// an unused proxy and a fresh fingerprint for deviceClass. For
// IdentityClassExclusiveVPN, only one account may ever hold the assignment
// (I6); attempting a second fails.
func (r *Router) AssignIdentity(ctx context.Context, accountID uuid.UUID, class domain.IdentityClass, deviceClass domain.DeviceClass) (*domain.Identity, error) {
	r.allocMu.Lock()
	defer r.allocMu.Unlock()

	if class == domain.IdentityClassExclusiveVPN && r.exclusiveVPNAccount != nil && *r.exclusiveVPNAccount != accountID {
		return nil, domainerrors.NewIsolationViolationError(accountID.String(), "exclusive-VPN identity class already assigned to another account")
	}

	const maxAttempts = 10
	for attempt := 0; attempt < maxAttempts; attempt++ {
		proxy := fmt.Sprintf("%s-proxy-%s-%d", class, accountID, attempt)
		fingerprint := fmt.Sprintf("%s-fp-%s-%d", deviceClass, accountID, attempt)

		proxyInUse, err := r.store.IsProxyInUse(ctx, proxy)
		if err != nil {
			return nil, err
		}
		fpInUse, err := r.store.IsFingerprintInUse(ctx, fingerprint)
		if err != nil {
			return nil, err
		}
		if proxyInUse || fpInUse {
			continue
		}

		ident := &domain.Identity{
			AccountID:             accountID,
			ProxyDescriptor:       proxy,
			FingerprintDescriptor: fingerprint,
			DeviceClass:           deviceClass,
			IdentityClass:         class,
			LastUsedAt:            time.Now().UTC(),
		}
		if err := r.store.SaveIdentity(ctx, ident); err != nil {
			return nil, err
		}
		r.claims.Store(accountID, ident)
		if class == domain.IdentityClassExclusiveVPN {
			acct := accountID
			r.exclusiveVPNAccount = &acct
		}
		if class == domain.IdentityClassRotatingSystem {
			r.rotatingPool = append(r.rotatingPool, ident)
		}
		return ident, nil
	}
	return nil, domainerrors.NewIsolationViolationError(accountID.String(), "exhausted attempts to claim a unique proxy/fingerprint pair")
}

// Validate resolves the identity an outbound call on behalf of accountID
// must present, returning isolation_violation if none is assigned. This is
// spec.md §4.10's per-call validation entry point used by C4, C7, and C9.
func (r *Router) Validate(ctx context.Context, accountID uuid.UUID, componentType string) (*domain.Identity, error) {
	if ident, ok := r.claims.Load(accountID); ok {
		ident.Touch(time.Now().UTC())
		return ident, nil
	}

	ident, err := r.store.GetIdentityByAccount(ctx, accountID)
	if err != nil {
		if err == domain.ErrNotFound {
			return nil, domainerrors.NewIsolationViolationError(accountID.String(), "no identity assigned")
		}
		return nil, err
	}
	ident.Touch(time.Now().UTC())
	r.claims.Store(accountID, ident)
	return ident, nil
}

// ClaimRotating returns the next identity from the disjoint rotating-system
// pool, used by scrapers and system-internal calls that are not bound to a
// single account (spec.md §4.10).
func (r *Router) ClaimRotating(ctx context.Context) (*domain.Identity, error) {
	r.allocMu.Lock()
	defer r.allocMu.Unlock()

	if len(r.rotatingPool) == 0 {
		pool, err := r.store.ListIdentitiesByClass(ctx, domain.IdentityClassRotatingSystem)
		if err != nil {
			return nil, err
		}
		r.rotatingPool = pool
	}
	if len(r.rotatingPool) == 0 {
		return nil, domainerrors.NewIsolationViolationError("rotating-pool", "no rotating-system identities provisioned")
	}
	ident := r.rotatingPool[r.rotatingCursor%len(r.rotatingPool)]
	r.rotatingCursor++
	ident.Touch(time.Now().UTC())
	return ident, nil
}
