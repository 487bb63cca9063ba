package domain

import (
	"time"

	"github.com/google/uuid"
)

// SocialAccount is a platform account the core is authorized to publish to
// and/or run ads for (spec.md §3). Credentials are carried only as the
// opaque EncryptedCredentials byte blob; no package in this repository
// encrypts or decrypts it.
type SocialAccount struct {
	ID                  uuid.UUID
	Platform            Platform
	ExternalAccountID   string
	DisplayName         string
	EncryptedCredentials []byte
	IdentityClass       IdentityClass
	AssignedIdentityID  *uuid.UUID
	DailyPostCap        int
	DailyPostCount      int
	DailyPostCountResetAt time.Time
	Active              bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CanPostToday reports whether the account has remaining daily post budget,
// treating the counter as reset if the window rolled over (spec.md §4.1).
// It does not modify the account; RegisterPost performs the reset.
func (a *SocialAccount) CanPostToday(now time.Time) bool {
	if now.After(a.DailyPostCountResetAt) {
		return true
	}
	return a.DailyPostCount < a.DailyPostCap
}

// RegisterPost increments the rolling daily counter, resetting it first if
// the 24h window has elapsed since the last reset.
func (a *SocialAccount) RegisterPost(now time.Time) {
	if now.After(a.DailyPostCountResetAt) {
		a.DailyPostCount = 0
		a.DailyPostCountResetAt = now.Add(24 * time.Hour)
	}
	a.DailyPostCount++
	a.UpdatedAt = now
}
