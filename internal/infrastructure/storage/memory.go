package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipcast/engine/internal/domain"
)

// MemoryStore is an in-process implementation of domain.Storage, the same
// map-plus-RWMutex shape as the teacher's original MemoryStore, generalized
// from one entity per map to the full repository surface SPEC_FULL.md's
// twelve components share.
type MemoryStore struct {
	mu sync.RWMutex

	clips        map[uuid.UUID]*domain.Clip
	associations map[uuid.UUID][]domain.CampaignAssociation // keyed by clip id

	publishLogs       map[uuid.UUID]*domain.PublishLog
	publishLogEvents  map[uuid.UUID][]domain.PublishEvent
	externalPostIndex map[string]uuid.UUID

	socialAccounts map[uuid.UUID]*domain.SocialAccount

	optimizationActions map[uuid.UUID]*domain.OptimizationAction

	abTests map[uuid.UUID]*domain.ABTest

	campaigns map[uuid.UUID]*domain.Campaign
	adSets    map[uuid.UUID]*domain.AdSet
	creatives map[uuid.UUID]*domain.Creative
	ads       map[uuid.UUID]*domain.Ad

	identities map[uuid.UUID]*domain.Identity

	ledger []domain.LedgerEvent

	componentHealth map[string]healthRow
}

type healthRow struct {
	status    domain.ComponentStatus
	lastRunAt time.Time
	errorRate float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clips:               make(map[uuid.UUID]*domain.Clip),
		associations:        make(map[uuid.UUID][]domain.CampaignAssociation),
		publishLogs:         make(map[uuid.UUID]*domain.PublishLog),
		publishLogEvents:    make(map[uuid.UUID][]domain.PublishEvent),
		externalPostIndex:   make(map[string]uuid.UUID),
		socialAccounts:      make(map[uuid.UUID]*domain.SocialAccount),
		optimizationActions: make(map[uuid.UUID]*domain.OptimizationAction),
		abTests:             make(map[uuid.UUID]*domain.ABTest),
		campaigns:           make(map[uuid.UUID]*domain.Campaign),
		adSets:              make(map[uuid.UUID]*domain.AdSet),
		creatives:           make(map[uuid.UUID]*domain.Creative),
		ads:                 make(map[uuid.UUID]*domain.Ad),
		identities:          make(map[uuid.UUID]*domain.Identity),
		componentHealth:     make(map[string]healthRow),
	}
}

// --- ClipRepository. Clips are seeded by tests/fixtures, never written by
// application code (spec.md §3: produced upstream, immutable in the core).

func (s *MemoryStore) SeedClip(c *domain.Clip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clips[c.ID] = c
}

func (s *MemoryStore) SeedCampaignAssociation(a domain.CampaignAssociation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.associations[a.ClipID] = append(s.associations[a.ClipID], a)
}

func (s *MemoryStore) GetClip(ctx context.Context, id uuid.UUID) (*domain.Clip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clips[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) GetCampaignAssociations(ctx context.Context, clipID uuid.UUID) ([]domain.CampaignAssociation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CampaignAssociation(nil), s.associations[clipID]...), nil
}

// --- PublishLogRepository

func (s *MemoryStore) SavePublishLog(ctx context.Context, log *domain.PublishLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLogs[log.ID()] = log
	s.publishLogEvents[log.ID()] = append(s.publishLogEvents[log.ID()], log.GetUncommittedEvents()...)
	log.MarkEventsCommitted()
	if id := log.ExternalPostID(); id != nil {
		s.externalPostIndex[*id] = log.ID()
	}
	if meta := log.ExtraMetadata(); meta != nil {
		if pending, ok := meta["pending_external_post_id"].(string); ok && pending != "" {
			s.externalPostIndex[pending] = log.ID()
		}
	}
	return nil
}

func (s *MemoryStore) GetPublishLog(ctx context.Context, id uuid.UUID) (*domain.PublishLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.publishLogs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return l, nil
}

func (s *MemoryStore) GetPublishLogByExternalPostID(ctx context.Context, externalPostID string) (*domain.PublishLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.externalPostIndex[externalPostID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.publishLogs[id], nil
}

func (s *MemoryStore) ListNonTerminalByPartition(ctx context.Context, platform domain.Platform, accountID *uuid.UUID) ([]*domain.PublishLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.PublishLog
	for _, l := range s.publishLogs {
		if l.Platform() != platform || !samePtr(l.SocialAccountID(), accountID) {
			continue
		}
		if l.Status().IsTerminal() {
			continue
		}
		out = append(out, l)
	}
	sortLogsByScheduledFor(out)
	return out, nil
}

func (s *MemoryStore) ListScheduledDue(ctx context.Context, before time.Time) ([]*domain.PublishLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.PublishLog
	for _, l := range s.publishLogs {
		if l.Status() != domain.PublishStatusScheduled {
			continue
		}
		if sf := l.ScheduledFor(); sf != nil && !sf.After(before) {
			out = append(out, l)
		}
	}
	sortLogsByScheduledFor(out)
	return out, nil
}

func (s *MemoryStore) ListByStatusBefore(ctx context.Context, statuses []domain.PublishStatus, updatedBefore time.Time) ([]*domain.PublishLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[domain.PublishStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []*domain.PublishLog
	for _, l := range s.publishLogs {
		if want[l.Status()] && l.UpdatedAt().Before(updatedBefore) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *MemoryStore) FetchNextDue(ctx context.Context, platform domain.Platform, accountID *uuid.UUID, now time.Time) (*domain.PublishLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *domain.PublishLog
	for _, l := range s.publishLogs {
		if l.Platform() != platform || !samePtr(l.SocialAccountID(), accountID) {
			continue
		}
		if l.Status() != domain.PublishStatusPending && l.Status() != domain.PublishStatusRetry {
			continue
		}
		sf := l.ScheduledFor()
		if sf == nil || sf.After(now) {
			continue
		}
		if best == nil || sf.Before(*best.ScheduledFor()) {
			best = l
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return best, nil
}

func (s *MemoryStore) ListPublishEvents(ctx context.Context, logID uuid.UUID) ([]domain.PublishEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.PublishEvent(nil), s.publishLogEvents[logID]...), nil
}

func (s *MemoryStore) ListPublishLogs(ctx context.Context, filter domain.PublishLogFilter) ([]*domain.PublishLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*domain.PublishLog
	for _, l := range s.publishLogs {
		if filter.Status != nil && l.Status() != *filter.Status {
			continue
		}
		if filter.Platform != nil && l.Platform() != *filter.Platform {
			continue
		}
		if filter.ClipID != nil && l.ClipID() != *filter.ClipID {
			continue
		}
		matched = append(matched, l)
	}
	sortLogsByScheduledFor(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func sortLogsByScheduledFor(logs []*domain.PublishLog) {
	sort.Slice(logs, func(i, j int) bool {
		si, sj := logs[i].ScheduledFor(), logs[j].ScheduledFor()
		if si == nil || sj == nil {
			return logs[i].RequestedAt().Before(logs[j].RequestedAt())
		}
		return si.Before(*sj)
	})
}

func samePtr(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// --- SocialAccountRepository

func (s *MemoryStore) SaveSocialAccount(ctx context.Context, acct *domain.SocialAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.socialAccounts[acct.ID] = acct
	return nil
}

func (s *MemoryStore) GetSocialAccount(ctx context.Context, id uuid.UUID) (*domain.SocialAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.socialAccounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) ListSocialAccountsByPlatform(ctx context.Context, platform domain.Platform) ([]*domain.SocialAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.SocialAccount
	for _, a := range s.socialAccounts {
		if a.Platform == platform {
			out = append(out, a)
		}
	}
	return out, nil
}

// --- OptimizationActionRepository

func (s *MemoryStore) SaveOptimizationAction(ctx context.Context, a *domain.OptimizationAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.optimizationActions[a.ID] = a
	return nil
}

func (s *MemoryStore) GetOptimizationAction(ctx context.Context, id uuid.UUID) (*domain.OptimizationAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.optimizationActions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) ListOptimizationActionsByStatus(ctx context.Context, status domain.ActionStatus) ([]*domain.OptimizationAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.OptimizationAction
	for _, a := range s.optimizationActions {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListOptimizationActionsByTarget(ctx context.Context, level domain.TargetLevel, targetID uuid.UUID) ([]*domain.OptimizationAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.OptimizationAction
	for _, a := range s.optimizationActions {
		if a.TargetLevel == level && a.TargetID == targetID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) LastExecutedActionForTarget(ctx context.Context, level domain.TargetLevel, targetID uuid.UUID) (*domain.OptimizationAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *domain.OptimizationAction
	for _, a := range s.optimizationActions {
		if a.TargetLevel != level || a.TargetID != targetID || a.ExecutedAt == nil {
			continue
		}
		if best == nil || a.ExecutedAt.After(*best.ExecutedAt) {
			best = a
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return best, nil
}

// --- ABTestRepository

func (s *MemoryStore) SaveABTest(ctx context.Context, t *domain.ABTest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abTests[t.ID] = t
	return nil
}

func (s *MemoryStore) GetABTest(ctx context.Context, id uuid.UUID) (*domain.ABTest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.abTests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) ListABTestsByStatus(ctx context.Context, status domain.ABTestStatus) ([]*domain.ABTest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.ABTest
	for _, t := range s.abTests {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

// --- AdsRepository

func (s *MemoryStore) SaveCampaign(ctx context.Context, c *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = c
	return nil
}

func (s *MemoryStore) SaveAdSet(ctx context.Context, a *domain.AdSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adSets[a.ID] = a
	return nil
}

func (s *MemoryStore) SaveCreative(ctx context.Context, c *domain.Creative) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creatives[c.ID] = c
	return nil
}

func (s *MemoryStore) SaveAd(ctx context.Context, a *domain.Ad) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ads[a.ID] = a
	return nil
}

func (s *MemoryStore) GetCampaign(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) GetCampaignByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.campaigns {
		if c.RequestID == requestID {
			return c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *MemoryStore) GetAdSetByCampaign(ctx context.Context, campaignID uuid.UUID) (*domain.AdSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.adSets {
		if a.CampaignID == campaignID {
			return a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *MemoryStore) GetCreativeByClip(ctx context.Context, campaignID, clipID uuid.UUID) (*domain.Creative, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.creatives {
		if c.ClipID == clipID {
			return c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *MemoryStore) GetAdByAdSet(ctx context.Context, adSetID uuid.UUID) (*domain.Ad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.ads {
		if a.AdSetID == adSetID {
			return a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *MemoryStore) ListAdsByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*domain.Ad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	adSetIDs := make(map[uuid.UUID]bool)
	for _, a := range s.adSets {
		if a.CampaignID == campaignID {
			adSetIDs[a.ID] = true
		}
	}
	var out []*domain.Ad
	for _, ad := range s.ads {
		if adSetIDs[ad.AdSetID] {
			out = append(out, ad)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListActiveCampaigns(ctx context.Context) ([]*domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Campaign
	for _, c := range s.campaigns {
		if c.Status == domain.AdsEntityActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetAdSet(ctx context.Context, id uuid.UUID) (*domain.AdSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.adSets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) GetCreative(ctx context.Context, id uuid.UUID) (*domain.Creative, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creatives[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) GetAd(ctx context.Context, id uuid.UUID) (*domain.Ad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.ads[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

// --- IdentityRepository

func (s *MemoryStore) SaveIdentity(ctx context.Context, id *domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[id.AccountID] = id
	return nil
}

func (s *MemoryStore) GetIdentityByAccount(ctx context.Context, accountID uuid.UUID) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.identities[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return id, nil
}

func (s *MemoryStore) ListIdentitiesByClass(ctx context.Context, class domain.IdentityClass) ([]*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Identity
	for _, id := range s.identities {
		if id.IdentityClass == class {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *MemoryStore) IsProxyInUse(ctx context.Context, proxyDescriptor string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.identities {
		if id.ProxyDescriptor == proxyDescriptor {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) IsFingerprintInUse(ctx context.Context, fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.identities {
		if id.FingerprintDescriptor == fingerprint {
			return true, nil
		}
	}
	return false, nil
}

// --- LedgerRepository

func (s *MemoryStore) AppendLedgerEvent(ctx context.Context, e domain.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = append(s.ledger, e)
	return nil
}

func (s *MemoryStore) ListLedgerEvents(ctx context.Context, entityType, entityID string) ([]domain.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.LedgerEvent
	for _, e := range s.ledger {
		if (entityType == "" || e.EntityType == entityType) && (entityID == "" || e.EntityID == entityID) {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- ComponentHealthRepository

func (s *MemoryStore) SaveComponentHealth(ctx context.Context, component string, status domain.ComponentStatus, lastRunAt time.Time, errorRate24h float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.componentHealth[component] = healthRow{status: status, lastRunAt: lastRunAt, errorRate: errorRate24h}
	return nil
}

func (s *MemoryStore) GetComponentHealth(ctx context.Context, component string) (domain.ComponentStatus, time.Time, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.componentHealth[component]
	if !ok {
		return "", time.Time{}, 0, domain.ErrNotFound
	}
	return row.status, row.lastRunAt, row.errorRate, nil
}

func (s *MemoryStore) ListComponentHealth(ctx context.Context) (map[string]domain.ComponentStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.ComponentStatus, len(s.componentHealth))
	for name, row := range s.componentHealth {
		out[name] = row.status
	}
	return out, nil
}

var _ domain.Storage = (*MemoryStore)(nil)
