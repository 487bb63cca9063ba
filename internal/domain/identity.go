package domain

import (
	"time"

	"github.com/google/uuid"
)

// Identity binds an account to an exclusive proxy and a unique device
// fingerprint (spec.md §3, invariants I5–I7). The Identity Router (C10) is
// the only component permitted to mutate this type; every other component
// consumes it as a read view.
type Identity struct {
	AccountID            uuid.UUID
	ProxyDescriptor      string
	FingerprintDescriptor string
	DeviceClass          DeviceClass
	IdentityClass        IdentityClass
	LastUsedAt           time.Time
}

// Touch records that the identity was just used for an outbound call.
func (i *Identity) Touch(now time.Time) {
	i.LastUsedAt = now
}
