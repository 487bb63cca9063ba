package domain

import (
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/clipcast/engine/internal/domain/errors"
)

// ABVariant is one arm of an ABTest (spec.md §3).
type ABVariant struct {
	ClipID uuid.UUID
	AdID   uuid.UUID
}

// ABTest tracks a running creative experiment and its eventual winner
// (spec.md §3, §4.8).
type ABTest struct {
	ID                   uuid.UUID
	CampaignID           uuid.UUID
	Variants             []ABVariant
	MetricsKeys          []string
	Status               ABTestStatus
	WinnerClipID         *uuid.UUID
	WinnerDecidedAt      *time.Time
	MetricsSnapshot      map[string]any
	StatisticalResults   map[string]any
	PublishedWinnerLogID *uuid.UUID
	MinImpressions       int64
	MinDurationHours     float64
	CreatedAt            time.Time
	StartTime            time.Time
	EndTime              *time.Time

	// Platform/AccountID name where the eventual winner should be
	// organically published, since the Ads campaign's platform and the
	// winner's social-publishing destination are independent choices
	// (spec.md §9's redesign note: route the winner through C1 rather
	// than the source's raw pending-log stub).
	Platform  Platform
	AccountID *uuid.UUID
}

// NewABTest enforces the |variants| >= 2 invariant at construction.
func NewABTest(campaignID uuid.UUID, variants []ABVariant, metricsKeys []string, minImpressions int64, minDurationHours float64, startTime time.Time, platform Platform, accountID *uuid.UUID) (*ABTest, error) {
	if len(variants) < 2 {
		return nil, domainerrors.NewValidationError("variants", "an A/B test requires at least two variants")
	}
	now := time.Now().UTC()
	return &ABTest{
		ID:               uuid.New(),
		CampaignID:       campaignID,
		Variants:         variants,
		MetricsKeys:      metricsKeys,
		Status:           ABTestStatusActive,
		MinImpressions:   minImpressions,
		MinDurationHours: minDurationHours,
		CreatedAt:        now,
		StartTime:        startTime,
		Platform:         platform,
		AccountID:        accountID,
	}, nil
}

// EmbargoPassed reports whether enough wall-clock time and impressions have
// accumulated for a winner to be chosen (spec.md §4.8).
func (t *ABTest) EmbargoPassed(now time.Time, impressionsByVariant map[uuid.UUID]int64) bool {
	if now.Sub(t.StartTime).Hours() < t.MinDurationHours {
		return false
	}
	for _, v := range t.Variants {
		if impressionsByVariant[v.ClipID] < t.MinImpressions {
			return false
		}
	}
	return true
}

// BeginEvaluating moves active -> evaluating; only active/evaluating tests
// may be evaluated (spec.md §4.8).
func (t *ABTest) BeginEvaluating() error {
	if t.Status != ABTestStatusActive && t.Status != ABTestStatusEvaluating {
		return domainerrors.NewStateError(t.ID.String(), "only an active or evaluating test can be evaluated")
	}
	t.Status = ABTestStatusEvaluating
	return nil
}

// MarkNeedsMoreData records the embargo failure without consuming the
// monotonic winner-selection guarantee; the test stays active per spec.md §4.8.
func (t *ABTest) MarkNeedsMoreData() {
	t.Status = ABTestStatusActive
}

// SelectWinner sets the winner and moves the test to completed. Winner
// selection is monotonic: once set it cannot change unless the test is
// archived and a new one created (spec.md §3 invariant).
func (t *ABTest) SelectWinner(clipID uuid.UUID, statisticalResults, metricsSnapshot map[string]any) error {
	if t.WinnerClipID != nil {
		return domainerrors.NewStateError(t.ID.String(), "winner already selected; archive and recreate to change it")
	}
	if t.Status != ABTestStatusEvaluating && t.Status != ABTestStatusActive {
		return domainerrors.NewStateError(t.ID.String(), "cannot select winner from current status")
	}
	now := time.Now().UTC()
	t.WinnerClipID = &clipID
	t.WinnerDecidedAt = &now
	t.StatisticalResults = statisticalResults
	t.MetricsSnapshot = metricsSnapshot
	t.Status = ABTestStatusCompleted
	t.EndTime = &now
	return nil
}

// RecordWinnerPublication is idempotent: the first call records logID, every
// subsequent call returns the original id unchanged (spec.md §4.8, §8).
func (t *ABTest) RecordWinnerPublication(logID uuid.UUID) (uuid.UUID, error) {
	if t.Status != ABTestStatusCompleted {
		return uuid.Nil, domainerrors.NewStateError(t.ID.String(), "only a completed test can publish a winner")
	}
	if t.PublishedWinnerLogID != nil {
		return *t.PublishedWinnerLogID, nil
	}
	t.PublishedWinnerLogID = &logID
	return logID, nil
}

// Archive is a terminal status transition; archived tests can never be
// reactivated, only superseded by a new ABTest record.
func (t *ABTest) Archive() error {
	if t.Status != ABTestStatusCompleted {
		return domainerrors.NewStateError(t.ID.String(), "only a completed test can be archived")
	}
	t.Status = ABTestStatusArchived
	return nil
}
