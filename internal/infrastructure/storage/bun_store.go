package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/clipcast/engine/internal/domain"
)

// BunStore is the Postgres-backed implementation of domain.Storage, built
// on the teacher's uptrace/bun + pgdriver stack (NewBunStore/InitSchema/
// per-entity Model+ToDomain shape carried over from the teacher's
// WorkflowModel/ExecutionModel pattern, generalized to the ads/publishing
// domain).
type BunStore struct {
	db *bun.DB
}

func NewBunStore(dsn string) *BunStore {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &BunStore{db: db}
}

func (s *BunStore) InitSchema(ctx context.Context) error {
	models := []interface{}{
		(*ClipModel)(nil),
		(*CampaignAssociationModel)(nil),
		(*PublishLogModel)(nil),
		(*PublishEventModel)(nil),
		(*SocialAccountModel)(nil),
		(*OptimizationActionModel)(nil),
		(*ABTestModel)(nil),
		(*CampaignModel)(nil),
		(*AdSetModel)(nil),
		(*CreativeModel)(nil),
		(*AdModel)(nil),
		(*IdentityModel)(nil),
		(*LedgerEventModel)(nil),
		(*ComponentHealthModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *BunStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *BunStore) Close() error                   { return s.db.Close() }

// --- Clip (read-only; seeded by the upstream video pipeline)

type ClipModel struct {
	bun.BaseModel `bun:"table:clips,alias:cl"`

	ID            uuid.UUID      `bun:"id,pk"`
	SourceVideoID uuid.UUID      `bun:"source_video_id"`
	DurationMS    int64          `bun:"duration_ms"`
	VisualScore   float64        `bun:"visual_score"`
	Params        map[string]any `bun:"params,type:jsonb"`
}

func (m *ClipModel) ToDomain() *domain.Clip {
	return &domain.Clip{ID: m.ID, SourceVideoID: m.SourceVideoID, DurationMS: m.DurationMS, VisualScore: m.VisualScore, Params: m.Params}
}

func (s *BunStore) GetClip(ctx context.Context, id uuid.UUID) (*domain.Clip, error) {
	model := new(ClipModel)
	err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

type CampaignAssociationModel struct {
	bun.BaseModel `bun:"table:campaign_associations,alias:ca"`

	CampaignID  uuid.UUID `bun:"campaign_id,pk"`
	ClipID      uuid.UUID `bun:"clip_id,pk"`
	BudgetCents int64     `bun:"budget_cents"`
}

func (s *BunStore) GetCampaignAssociations(ctx context.Context, clipID uuid.UUID) ([]domain.CampaignAssociation, error) {
	var models []CampaignAssociationModel
	if err := s.db.NewSelect().Model(&models).Where("clip_id = ?", clipID).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.CampaignAssociation, len(models))
	for i, m := range models {
		out[i] = domain.CampaignAssociation{CampaignID: m.CampaignID, ClipID: m.ClipID, BudgetCents: m.BudgetCents}
	}
	return out, nil
}

// --- PublishLog

type PublishLogModel struct {
	bun.BaseModel `bun:"table:publish_logs,alias:pl"`

	ID              uuid.UUID            `bun:"id,pk"`
	ClipID          uuid.UUID            `bun:"clip_id"`
	Platform        domain.Platform      `bun:"platform"`
	SocialAccountID *uuid.UUID           `bun:"social_account_id"`
	Status          domain.PublishStatus `bun:"status"`
	ScheduledFor    *time.Time           `bun:"scheduled_for"`
	RequestedAt     time.Time            `bun:"requested_at"`
	PublishedAt     *time.Time           `bun:"published_at"`
	RetryCount      int                  `bun:"retry_count"`
	MaxRetries      int                  `bun:"max_retries"`
	LastRetryAt     *time.Time           `bun:"last_retry_at"`
	ExternalPostID  *string              `bun:"external_post_id"`
	ExternalURL     *string              `bun:"external_url"`
	ErrorMessage    *string              `bun:"error_message"`
	ScheduledBy     domain.ScheduledBy   `bun:"scheduled_by"`
	ExtraMetadata   map[string]any       `bun:"extra_metadata,type:jsonb"`
	UpdatedAt       time.Time            `bun:"updated_at"`
	Version         int64                `bun:"version"`
}

func (m *PublishLogModel) ToDomain() *domain.PublishLog {
	return domain.ReconstructPublishLog(
		m.ID, m.ClipID, m.Platform, m.SocialAccountID, m.Status, m.ScheduledFor, m.RequestedAt,
		m.PublishedAt, m.RetryCount, m.MaxRetries, m.LastRetryAt, m.ExternalPostID, m.ExternalURL,
		m.ErrorMessage, m.ScheduledBy, m.ExtraMetadata, m.UpdatedAt, m.Version,
	)
}

func newPublishLogModel(l *domain.PublishLog) *PublishLogModel {
	return &PublishLogModel{
		ID: l.ID(), ClipID: l.ClipID(), Platform: l.Platform(), SocialAccountID: l.SocialAccountID(),
		Status: l.Status(), ScheduledFor: l.ScheduledFor(), RequestedAt: l.RequestedAt(), PublishedAt: l.PublishedAt(),
		RetryCount: l.RetryCount(), MaxRetries: l.MaxRetries(), LastRetryAt: l.LastRetryAt(),
		ExternalPostID: l.ExternalPostID(), ExternalURL: l.ExternalURL(), ErrorMessage: l.ErrorMessage(),
		ScheduledBy: l.ScheduledBy(), ExtraMetadata: l.ExtraMetadata(), UpdatedAt: l.UpdatedAt(), Version: l.Version(),
	}
}

type PublishEventModel struct {
	bun.BaseModel `bun:"table:publish_events,alias:pe"`

	ID             uuid.UUID               `bun:"id,pk"`
	PublishLogID   uuid.UUID               `bun:"publish_log_id"`
	Type           domain.PublishEventType `bun:"type"`
	SequenceNumber int64                   `bun:"sequence_number"`
	Timestamp      time.Time               `bun:"timestamp"`
	Data           map[string]any          `bun:"data,type:jsonb"`
}

func (s *BunStore) SavePublishLog(ctx context.Context, log *domain.PublishLog) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		model := newPublishLogModel(log)
		if _, err := tx.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx); err != nil {
			return err
		}
		events := log.GetUncommittedEvents()
		if len(events) == 0 {
			return nil
		}
		eventModels := make([]*PublishEventModel, len(events))
		for i, e := range events {
			eventModels[i] = &PublishEventModel{ID: e.ID, PublishLogID: e.PublishLogID, Type: e.Type, SequenceNumber: e.SequenceNumber, Timestamp: e.Timestamp, Data: e.Data}
		}
		if _, err := tx.NewInsert().Model(&eventModels).Exec(ctx); err != nil {
			return err
		}
		log.MarkEventsCommitted()
		return nil
	})
}

func (s *BunStore) GetPublishLog(ctx context.Context, id uuid.UUID) (*domain.PublishLog, error) {
	model := new(PublishLogModel)
	err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// GetPublishLogByExternalPostID matches the authoritative external_post_id
// column or the provisional id a worker stashed in extra_metadata before a
// crash (spec.md §4.5/§4.6).
func (s *BunStore) GetPublishLogByExternalPostID(ctx context.Context, externalPostID string) (*domain.PublishLog, error) {
	model := new(PublishLogModel)
	err := s.db.NewSelect().Model(model).
		Where("external_post_id = ?", externalPostID).
		WhereOr("extra_metadata->>'pending_external_post_id' = ?", externalPostID).
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (s *BunStore) ListNonTerminalByPartition(ctx context.Context, platform domain.Platform, accountID *uuid.UUID) ([]*domain.PublishLog, error) {
	q := s.db.NewSelect().Model((*PublishLogModel)(nil)).Where("platform = ?", platform).
		Where("status NOT IN (?)", bun.In([]domain.PublishStatus{domain.PublishStatusSuccess, domain.PublishStatusFailed, domain.PublishStatusCancelled}))
	q = whereAccount(q, accountID)
	var models []PublishLogModel
	if err := q.Order("scheduled_for ASC").Scan(ctx, &models); err != nil {
		return nil, err
	}
	return publishLogsFromModels(models), nil
}

func (s *BunStore) ListScheduledDue(ctx context.Context, before time.Time) ([]*domain.PublishLog, error) {
	var models []PublishLogModel
	err := s.db.NewSelect().Model(&models).
		Where("status = ?", domain.PublishStatusScheduled).
		Where("scheduled_for <= ?", before).
		Order("scheduled_for ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return publishLogsFromModels(models), nil
}

func (s *BunStore) ListByStatusBefore(ctx context.Context, statuses []domain.PublishStatus, updatedBefore time.Time) ([]*domain.PublishLog, error) {
	var models []PublishLogModel
	err := s.db.NewSelect().Model(&models).
		Where("status IN (?)", bun.In(statuses)).
		Where("updated_at < ?", updatedBefore).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return publishLogsFromModels(models), nil
}

func (s *BunStore) FetchNextDue(ctx context.Context, platform domain.Platform, accountID *uuid.UUID, now time.Time) (*domain.PublishLog, error) {
	q := s.db.NewSelect().Model((*PublishLogModel)(nil)).
		Where("platform = ?", platform).
		Where("status IN (?)", bun.In([]domain.PublishStatus{domain.PublishStatusPending, domain.PublishStatusRetry})).
		Where("scheduled_for <= ?", now)
	q = whereAccount(q, accountID)
	model := new(PublishLogModel)
	err := q.Order("scheduled_for ASC").Limit(1).Scan(ctx, model)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (s *BunStore) ListPublishEvents(ctx context.Context, logID uuid.UUID) ([]domain.PublishEvent, error) {
	var models []PublishEventModel
	err := s.db.NewSelect().Model(&models).Where("publish_log_id = ?", logID).Order("sequence_number ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PublishEvent, len(models))
	for i, m := range models {
		out[i] = domain.PublishEvent{ID: m.ID, PublishLogID: m.PublishLogID, Type: m.Type, SequenceNumber: m.SequenceNumber, Timestamp: m.Timestamp, Data: m.Data}
	}
	return out, nil
}

func (s *BunStore) ListPublishLogs(ctx context.Context, filter domain.PublishLogFilter) ([]*domain.PublishLog, error) {
	q := s.db.NewSelect().Model((*PublishLogModel)(nil))
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.Platform != nil {
		q = q.Where("platform = ?", *filter.Platform)
	}
	if filter.ClipID != nil {
		q = q.Where("clip_id = ?", *filter.ClipID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var models []PublishLogModel
	if err := q.Order("scheduled_for ASC").Scan(ctx, &models); err != nil {
		return nil, err
	}
	return publishLogsFromModels(models), nil
}

func publishLogsFromModels(models []PublishLogModel) []*domain.PublishLog {
	out := make([]*domain.PublishLog, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out
}

func whereAccount(q *bun.SelectQuery, accountID *uuid.UUID) *bun.SelectQuery {
	if accountID == nil {
		return q.Where("social_account_id IS NULL")
	}
	return q.Where("social_account_id = ?", *accountID)
}

// --- SocialAccount

type SocialAccountModel struct {
	bun.BaseModel `bun:"table:social_accounts,alias:sa"`

	ID                    uuid.UUID            `bun:"id,pk"`
	Platform              domain.Platform      `bun:"platform"`
	ExternalAccountID     string               `bun:"external_account_id"`
	DisplayName           string               `bun:"display_name"`
	EncryptedCredentials  []byte               `bun:"encrypted_credentials"`
	IdentityClass         domain.IdentityClass `bun:"identity_class"`
	AssignedIdentityID    *uuid.UUID           `bun:"assigned_identity_id"`
	DailyPostCap          int                  `bun:"daily_post_cap"`
	DailyPostCount        int                  `bun:"daily_post_count"`
	DailyPostCountResetAt time.Time            `bun:"daily_post_count_reset_at"`
	Active                bool                 `bun:"active"`
	CreatedAt             time.Time            `bun:"created_at"`
	UpdatedAt             time.Time            `bun:"updated_at"`
}

func (m *SocialAccountModel) ToDomain() *domain.SocialAccount {
	return &domain.SocialAccount{
		ID: m.ID, Platform: m.Platform, ExternalAccountID: m.ExternalAccountID, DisplayName: m.DisplayName,
		EncryptedCredentials: m.EncryptedCredentials, IdentityClass: m.IdentityClass, AssignedIdentityID: m.AssignedIdentityID,
		DailyPostCap: m.DailyPostCap, DailyPostCount: m.DailyPostCount, DailyPostCountResetAt: m.DailyPostCountResetAt,
		Active: m.Active, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func newSocialAccountModel(a *domain.SocialAccount) *SocialAccountModel {
	return &SocialAccountModel{
		ID: a.ID, Platform: a.Platform, ExternalAccountID: a.ExternalAccountID, DisplayName: a.DisplayName,
		EncryptedCredentials: a.EncryptedCredentials, IdentityClass: a.IdentityClass, AssignedIdentityID: a.AssignedIdentityID,
		DailyPostCap: a.DailyPostCap, DailyPostCount: a.DailyPostCount, DailyPostCountResetAt: a.DailyPostCountResetAt,
		Active: a.Active, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

func (s *BunStore) SaveSocialAccount(ctx context.Context, acct *domain.SocialAccount) error {
	model := newSocialAccountModel(acct)
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	return err
}

func (s *BunStore) GetSocialAccount(ctx context.Context, id uuid.UUID) (*domain.SocialAccount, error) {
	model := new(SocialAccountModel)
	err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (s *BunStore) ListSocialAccountsByPlatform(ctx context.Context, platform domain.Platform) ([]*domain.SocialAccount, error) {
	var models []SocialAccountModel
	if err := s.db.NewSelect().Model(&models).Where("platform = ?", platform).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.SocialAccount, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, nil
}

// --- OptimizationAction

type OptimizationActionModel struct {
	bun.BaseModel `bun:"table:optimization_actions,alias:oa"`

	ID               uuid.UUID                     `bun:"id,pk"`
	TargetLevel      domain.TargetLevel            `bun:"target_level"`
	TargetID         uuid.UUID                      `bun:"target_id"`
	ActionType       domain.OptimizationActionType `bun:"action_type"`
	AmountPct        float64                        `bun:"amount_pct"`
	AmountAbsolute   *int64                          `bun:"amount_absolute"`
	ReasonCode       string                          `bun:"reason_code"`
	ROASValue        float64                         `bun:"roas_value"`
	Confidence       float64                         `bun:"confidence"`
	Status           domain.ActionStatus            `bun:"status"`
	ReallocationPlan map[string]int64               `bun:"reallocation_plan,type:jsonb"`
	CreatedAt        time.Time                       `bun:"created_at"`
	ApprovedAt       *time.Time                      `bun:"approved_at"`
	ExecutedAt       *time.Time                      `bun:"executed_at"`
	ExpiresAt        time.Time                       `bun:"expires_at"`
	LedgerEventID    *uuid.UUID                      `bun:"ledger_event_id"`
	GuardSnapshot    map[string]any                  `bun:"guard_snapshot,type:jsonb"`
	ExecutionResult  map[string]any                  `bun:"execution_result,type:jsonb"`
}

func (m *OptimizationActionModel) ToDomain() *domain.OptimizationAction {
	return &domain.OptimizationAction{
		ID: m.ID, TargetLevel: m.TargetLevel, TargetID: m.TargetID, ActionType: m.ActionType, AmountPct: m.AmountPct,
		AmountAbsolute: m.AmountAbsolute, ReasonCode: m.ReasonCode, ROASValue: m.ROASValue, Confidence: m.Confidence,
		Status: m.Status, ReallocationPlan: m.ReallocationPlan, CreatedAt: m.CreatedAt, ApprovedAt: m.ApprovedAt,
		ExecutedAt: m.ExecutedAt, ExpiresAt: m.ExpiresAt, LedgerEventID: m.LedgerEventID, GuardSnapshot: m.GuardSnapshot,
		ExecutionResult: m.ExecutionResult,
	}
}

func newOptimizationActionModel(a *domain.OptimizationAction) *OptimizationActionModel {
	return &OptimizationActionModel{
		ID: a.ID, TargetLevel: a.TargetLevel, TargetID: a.TargetID, ActionType: a.ActionType, AmountPct: a.AmountPct,
		AmountAbsolute: a.AmountAbsolute, ReasonCode: a.ReasonCode, ROASValue: a.ROASValue, Confidence: a.Confidence,
		Status: a.Status, ReallocationPlan: a.ReallocationPlan, CreatedAt: a.CreatedAt, ApprovedAt: a.ApprovedAt,
		ExecutedAt: a.ExecutedAt, ExpiresAt: a.ExpiresAt, LedgerEventID: a.LedgerEventID, GuardSnapshot: a.GuardSnapshot,
		ExecutionResult: a.ExecutionResult,
	}
}

func (s *BunStore) SaveOptimizationAction(ctx context.Context, a *domain.OptimizationAction) error {
	model := newOptimizationActionModel(a)
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	return err
}

func (s *BunStore) GetOptimizationAction(ctx context.Context, id uuid.UUID) (*domain.OptimizationAction, error) {
	model := new(OptimizationActionModel)
	err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (s *BunStore) ListOptimizationActionsByStatus(ctx context.Context, status domain.ActionStatus) ([]*domain.OptimizationAction, error) {
	var models []OptimizationActionModel
	if err := s.db.NewSelect().Model(&models).Where("status = ?", status).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.OptimizationAction, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, nil
}

func (s *BunStore) ListOptimizationActionsByTarget(ctx context.Context, level domain.TargetLevel, targetID uuid.UUID) ([]*domain.OptimizationAction, error) {
	var models []OptimizationActionModel
	if err := s.db.NewSelect().Model(&models).Where("target_level = ?", level).Where("target_id = ?", targetID).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.OptimizationAction, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, nil
}

func (s *BunStore) LastExecutedActionForTarget(ctx context.Context, level domain.TargetLevel, targetID uuid.UUID) (*domain.OptimizationAction, error) {
	model := new(OptimizationActionModel)
	err := s.db.NewSelect().Model(model).
		Where("target_level = ?", level).
		Where("target_id = ?", targetID).
		Where("executed_at IS NOT NULL").
		Order("executed_at DESC").
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// --- ABTest

type ABTestModel struct {
	bun.BaseModel `bun:"table:ab_tests,alias:abt"`

	ID                   uuid.UUID             `bun:"id,pk"`
	CampaignID           uuid.UUID             `bun:"campaign_id"`
	Variants             []domain.ABVariant    `bun:"variants,type:jsonb"`
	MetricsKeys          []string              `bun:"metrics_keys,array"`
	Status               domain.ABTestStatus   `bun:"status"`
	WinnerClipID         *uuid.UUID            `bun:"winner_clip_id"`
	WinnerDecidedAt      *time.Time            `bun:"winner_decided_at"`
	MetricsSnapshot      map[string]any        `bun:"metrics_snapshot,type:jsonb"`
	StatisticalResults   map[string]any        `bun:"statistical_results,type:jsonb"`
	PublishedWinnerLogID *uuid.UUID            `bun:"published_winner_log_id"`
	MinImpressions       int64                 `bun:"min_impressions"`
	MinDurationHours     float64               `bun:"min_duration_hours"`
	CreatedAt            time.Time             `bun:"created_at"`
	StartTime            time.Time             `bun:"start_time"`
	EndTime              *time.Time            `bun:"end_time"`
	Platform             domain.Platform       `bun:"platform"`
	AccountID            *uuid.UUID            `bun:"account_id"`
}

func (m *ABTestModel) ToDomain() *domain.ABTest {
	return &domain.ABTest{
		ID: m.ID, CampaignID: m.CampaignID, Variants: m.Variants, MetricsKeys: m.MetricsKeys, Status: m.Status,
		WinnerClipID: m.WinnerClipID, WinnerDecidedAt: m.WinnerDecidedAt, MetricsSnapshot: m.MetricsSnapshot,
		StatisticalResults: m.StatisticalResults, PublishedWinnerLogID: m.PublishedWinnerLogID,
		MinImpressions: m.MinImpressions, MinDurationHours: m.MinDurationHours, CreatedAt: m.CreatedAt,
		StartTime: m.StartTime, EndTime: m.EndTime, Platform: m.Platform, AccountID: m.AccountID,
	}
}

func newABTestModel(t *domain.ABTest) *ABTestModel {
	return &ABTestModel{
		ID: t.ID, CampaignID: t.CampaignID, Variants: t.Variants, MetricsKeys: t.MetricsKeys, Status: t.Status,
		WinnerClipID: t.WinnerClipID, WinnerDecidedAt: t.WinnerDecidedAt, MetricsSnapshot: t.MetricsSnapshot,
		StatisticalResults: t.StatisticalResults, PublishedWinnerLogID: t.PublishedWinnerLogID,
		MinImpressions: t.MinImpressions, MinDurationHours: t.MinDurationHours, CreatedAt: t.CreatedAt,
		StartTime: t.StartTime, EndTime: t.EndTime, Platform: t.Platform, AccountID: t.AccountID,
	}
}

func (s *BunStore) SaveABTest(ctx context.Context, t *domain.ABTest) error {
	model := newABTestModel(t)
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	return err
}

func (s *BunStore) GetABTest(ctx context.Context, id uuid.UUID) (*domain.ABTest, error) {
	model := new(ABTestModel)
	err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (s *BunStore) ListABTestsByStatus(ctx context.Context, status domain.ABTestStatus) ([]*domain.ABTest, error) {
	var models []ABTestModel
	if err := s.db.NewSelect().Model(&models).Where("status = ?", status).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.ABTest, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, nil
}

// --- Ads saga entities

type CampaignModel struct {
	bun.BaseModel `bun:"table:campaigns,alias:c"`

	ID               uuid.UUID             `bun:"id,pk"`
	RequestID        uuid.UUID             `bun:"request_id"`
	ExternalID       *string               `bun:"external_id"`
	Name             string                `bun:"name"`
	DailyBudgetCents int64                 `bun:"daily_budget_cents"`
	Status           domain.AdsEntityStatus `bun:"status"`
	CreatedAt        time.Time             `bun:"created_at"`
}

func (m *CampaignModel) ToDomain() *domain.Campaign {
	return &domain.Campaign{ID: m.ID, RequestID: m.RequestID, ExternalID: m.ExternalID, Name: m.Name, DailyBudgetCents: m.DailyBudgetCents, Status: m.Status, CreatedAt: m.CreatedAt}
}

func newCampaignModel(c *domain.Campaign) *CampaignModel {
	return &CampaignModel{ID: c.ID, RequestID: c.RequestID, ExternalID: c.ExternalID, Name: c.Name, DailyBudgetCents: c.DailyBudgetCents, Status: c.Status, CreatedAt: c.CreatedAt}
}

func (s *BunStore) SaveCampaign(ctx context.Context, c *domain.Campaign) error {
	model := newCampaignModel(c)
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	return err
}

func (s *BunStore) GetCampaign(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	model := new(CampaignModel)
	err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (s *BunStore) GetCampaignByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.Campaign, error) {
	model := new(CampaignModel)
	err := s.db.NewSelect().Model(model).Where("request_id = ?", requestID).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (s *BunStore) ListActiveCampaigns(ctx context.Context) ([]*domain.Campaign, error) {
	var models []CampaignModel
	if err := s.db.NewSelect().Model(&models).Where("status = ?", domain.AdsEntityActive).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.Campaign, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, nil
}

type AdSetModel struct {
	bun.BaseModel `bun:"table:ad_sets,alias:adst"`

	ID            uuid.UUID              `bun:"id,pk"`
	ExternalID    *string                `bun:"external_id"`
	CampaignID    uuid.UUID              `bun:"campaign_id"`
	Targeting     map[string]any         `bun:"targeting,type:jsonb"`
	BudgetCents   int64                  `bun:"budget_cents"`
	ScheduleStart time.Time              `bun:"schedule_start"`
	ScheduleEnd   *time.Time             `bun:"schedule_end"`
	Status        domain.AdsEntityStatus `bun:"status"`
	CreatedAt     time.Time              `bun:"created_at"`
}

func (m *AdSetModel) ToDomain() *domain.AdSet {
	return &domain.AdSet{ID: m.ID, ExternalID: m.ExternalID, CampaignID: m.CampaignID, Targeting: m.Targeting, BudgetCents: m.BudgetCents, ScheduleStart: m.ScheduleStart, ScheduleEnd: m.ScheduleEnd, Status: m.Status, CreatedAt: m.CreatedAt}
}

func newAdSetModel(a *domain.AdSet) *AdSetModel {
	return &AdSetModel{ID: a.ID, ExternalID: a.ExternalID, CampaignID: a.CampaignID, Targeting: a.Targeting, BudgetCents: a.BudgetCents, ScheduleStart: a.ScheduleStart, ScheduleEnd: a.ScheduleEnd, Status: a.Status, CreatedAt: a.CreatedAt}
}

func (s *BunStore) SaveAdSet(ctx context.Context, a *domain.AdSet) error {
	model := newAdSetModel(a)
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	return err
}

func (s *BunStore) GetAdSetByCampaign(ctx context.Context, campaignID uuid.UUID) (*domain.AdSet, error) {
	model := new(AdSetModel)
	err := s.db.NewSelect().Model(model).Where("campaign_id = ?", campaignID).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (s *BunStore) GetAdSet(ctx context.Context, id uuid.UUID) (*domain.AdSet, error) {
	model := new(AdSetModel)
	err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

type CreativeModel struct {
	bun.BaseModel `bun:"table:creatives,alias:cr"`

	ID         uuid.UUID              `bun:"id,pk"`
	ExternalID *string                `bun:"external_id"`
	ClipID     uuid.UUID              `bun:"clip_id"`
	Caption    string                 `bun:"caption"`
	Hashtags   []string               `bun:"hashtags,array"`
	Status     domain.AdsEntityStatus `bun:"status"`
	CreatedAt  time.Time              `bun:"created_at"`
}

func (m *CreativeModel) ToDomain() *domain.Creative {
	return &domain.Creative{ID: m.ID, ExternalID: m.ExternalID, ClipID: m.ClipID, Caption: m.Caption, Hashtags: m.Hashtags, Status: m.Status, CreatedAt: m.CreatedAt}
}

func newCreativeModel(c *domain.Creative) *CreativeModel {
	return &CreativeModel{ID: c.ID, ExternalID: c.ExternalID, ClipID: c.ClipID, Caption: c.Caption, Hashtags: c.Hashtags, Status: c.Status, CreatedAt: c.CreatedAt}
}

func (s *BunStore) SaveCreative(ctx context.Context, c *domain.Creative) error {
	model := newCreativeModel(c)
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	return err
}

func (s *BunStore) GetCreativeByClip(ctx context.Context, campaignID, clipID uuid.UUID) (*domain.Creative, error) {
	model := new(CreativeModel)
	err := s.db.NewSelect().Model(model).Where("clip_id = ?", clipID).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (s *BunStore) GetCreative(ctx context.Context, id uuid.UUID) (*domain.Creative, error) {
	model := new(CreativeModel)
	err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

type AdModel struct {
	bun.BaseModel `bun:"table:ads,alias:ad"`

	ID          uuid.UUID              `bun:"id,pk"`
	ExternalID  *string                `bun:"external_id"`
	AdSetID     uuid.UUID              `bun:"ad_set_id"`
	CreativeID  uuid.UUID              `bun:"creative_id"`
	BudgetCents int64                  `bun:"budget_cents"`
	Status      domain.AdsEntityStatus `bun:"status"`
	CreatedAt   time.Time              `bun:"created_at"`
}

func (m *AdModel) ToDomain() *domain.Ad {
	return &domain.Ad{ID: m.ID, ExternalID: m.ExternalID, AdSetID: m.AdSetID, CreativeID: m.CreativeID, BudgetCents: m.BudgetCents, Status: m.Status, CreatedAt: m.CreatedAt}
}

func newAdModel(a *domain.Ad) *AdModel {
	return &AdModel{ID: a.ID, ExternalID: a.ExternalID, AdSetID: a.AdSetID, CreativeID: a.CreativeID, BudgetCents: a.BudgetCents, Status: a.Status, CreatedAt: a.CreatedAt}
}

func (s *BunStore) SaveAd(ctx context.Context, a *domain.Ad) error {
	model := newAdModel(a)
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (id) DO UPDATE").Exec(ctx)
	return err
}

func (s *BunStore) GetAdByAdSet(ctx context.Context, adSetID uuid.UUID) (*domain.Ad, error) {
	model := new(AdModel)
	err := s.db.NewSelect().Model(model).Where("ad_set_id = ?", adSetID).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (s *BunStore) GetAd(ctx context.Context, id uuid.UUID) (*domain.Ad, error) {
	model := new(AdModel)
	err := s.db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (s *BunStore) ListAdsByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*domain.Ad, error) {
	var models []AdModel
	err := s.db.NewSelect().Model(&models).
		Join("JOIN ad_sets AS adst ON adst.id = ad.ad_set_id").
		Where("adst.campaign_id = ?", campaignID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Ad, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, nil
}

// --- Identity

type IdentityModel struct {
	bun.BaseModel `bun:"table:identities,alias:idn"`

	AccountID             uuid.UUID          `bun:"account_id,pk"`
	ProxyDescriptor       string             `bun:"proxy_descriptor"`
	FingerprintDescriptor string             `bun:"fingerprint_descriptor"`
	DeviceClass           domain.DeviceClass `bun:"device_class"`
	IdentityClass         domain.IdentityClass `bun:"identity_class"`
	LastUsedAt            time.Time          `bun:"last_used_at"`
}

func (m *IdentityModel) ToDomain() *domain.Identity {
	return &domain.Identity{AccountID: m.AccountID, ProxyDescriptor: m.ProxyDescriptor, FingerprintDescriptor: m.FingerprintDescriptor, DeviceClass: m.DeviceClass, IdentityClass: m.IdentityClass, LastUsedAt: m.LastUsedAt}
}

func newIdentityModel(i *domain.Identity) *IdentityModel {
	return &IdentityModel{AccountID: i.AccountID, ProxyDescriptor: i.ProxyDescriptor, FingerprintDescriptor: i.FingerprintDescriptor, DeviceClass: i.DeviceClass, IdentityClass: i.IdentityClass, LastUsedAt: i.LastUsedAt}
}

func (s *BunStore) SaveIdentity(ctx context.Context, id *domain.Identity) error {
	model := newIdentityModel(id)
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (account_id) DO UPDATE").Exec(ctx)
	return err
}

func (s *BunStore) GetIdentityByAccount(ctx context.Context, accountID uuid.UUID) (*domain.Identity, error) {
	model := new(IdentityModel)
	err := s.db.NewSelect().Model(model).Where("account_id = ?", accountID).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (s *BunStore) ListIdentitiesByClass(ctx context.Context, class domain.IdentityClass) ([]*domain.Identity, error) {
	var models []IdentityModel
	if err := s.db.NewSelect().Model(&models).Where("identity_class = ?", class).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.Identity, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, nil
}

func (s *BunStore) IsProxyInUse(ctx context.Context, proxyDescriptor string) (bool, error) {
	count, err := s.db.NewSelect().Model((*IdentityModel)(nil)).Where("proxy_descriptor = ?", proxyDescriptor).Count(ctx)
	return count > 0, err
}

func (s *BunStore) IsFingerprintInUse(ctx context.Context, fingerprint string) (bool, error) {
	count, err := s.db.NewSelect().Model((*IdentityModel)(nil)).Where("fingerprint_descriptor = ?", fingerprint).Count(ctx)
	return count > 0, err
}

// --- Ledger

// LedgerEventModel stores Payload as bytea, not jsonb: the ledger is
// write-heavy and never queried by payload shape, so it keeps the domain
// type's msgpack encoding (domain.LedgerEvent.EncodePayload) rather than
// re-serializing to JSON on the way into Postgres.
type LedgerEventModel struct {
	bun.BaseModel `bun:"table:ledger_events,alias:le"`

	ID         uuid.UUID       `bun:"id,pk"`
	EventType  string          `bun:"event_type"`
	EntityType string          `bun:"entity_type"`
	EntityID   string          `bun:"entity_id"`
	Severity   domain.Severity `bun:"severity"`
	Payload    []byte          `bun:"payload"`
	CreatedAt  time.Time       `bun:"created_at"`
}

func (s *BunStore) AppendLedgerEvent(ctx context.Context, e domain.LedgerEvent) error {
	payload, err := e.EncodePayload()
	if err != nil {
		return err
	}
	model := &LedgerEventModel{ID: e.ID, EventType: e.EventType, EntityType: e.EntityType, EntityID: e.EntityID, Severity: e.Severity, Payload: payload, CreatedAt: e.CreatedAt}
	_, err = s.db.NewInsert().Model(model).Exec(ctx)
	return err
}

func (s *BunStore) ListLedgerEvents(ctx context.Context, entityType, entityID string) ([]domain.LedgerEvent, error) {
	q := s.db.NewSelect().Model((*LedgerEventModel)(nil))
	if entityType != "" {
		q = q.Where("entity_type = ?", entityType)
	}
	if entityID != "" {
		q = q.Where("entity_id = ?", entityID)
	}
	var models []LedgerEventModel
	if err := q.Order("created_at ASC").Scan(ctx, &models); err != nil {
		return nil, err
	}
	out := make([]domain.LedgerEvent, len(models))
	for i, m := range models {
		payload, err := domain.DecodeLedgerPayload(m.Payload)
		if err != nil {
			return nil, err
		}
		out[i] = domain.LedgerEvent{ID: m.ID, EventType: m.EventType, EntityType: m.EntityType, EntityID: m.EntityID, Severity: m.Severity, Payload: payload, CreatedAt: m.CreatedAt}
	}
	return out, nil
}

// --- Component health

type ComponentHealthModel struct {
	bun.BaseModel `bun:"table:component_health,alias:ch"`

	Component    string                 `bun:"component,pk"`
	Status       domain.ComponentStatus `bun:"status"`
	LastRunAt    time.Time              `bun:"last_run_at"`
	ErrorRate24h float64                `bun:"error_rate_24h"`
}

func (s *BunStore) SaveComponentHealth(ctx context.Context, component string, status domain.ComponentStatus, lastRunAt time.Time, errorRate24h float64) error {
	model := &ComponentHealthModel{Component: component, Status: status, LastRunAt: lastRunAt, ErrorRate24h: errorRate24h}
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (component) DO UPDATE").Exec(ctx)
	return err
}

func (s *BunStore) GetComponentHealth(ctx context.Context, component string) (domain.ComponentStatus, time.Time, float64, error) {
	model := new(ComponentHealthModel)
	err := s.db.NewSelect().Model(model).Where("component = ?", component).Scan(ctx)
	if err == sql.ErrNoRows {
		return "", time.Time{}, 0, domain.ErrNotFound
	}
	if err != nil {
		return "", time.Time{}, 0, err
	}
	return model.Status, model.LastRunAt, model.ErrorRate24h, nil
}

func (s *BunStore) ListComponentHealth(ctx context.Context) (map[string]domain.ComponentStatus, error) {
	var models []ComponentHealthModel
	if err := s.db.NewSelect().Model(&models).Scan(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]domain.ComponentStatus, len(models))
	for _, m := range models {
		out[m.Component] = m.Status
	}
	return out, nil
}

var _ domain.Storage = (*BunStore)(nil)
