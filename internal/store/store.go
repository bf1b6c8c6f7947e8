// Package store persists the orchestration layer's local state: the two
// assistant tracking stores (the generic tenant settings blob and the
// dedicated assistant record), agent actions with their confirmations,
// and agent sessions.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	featlyErrors "github.com/featly/featly/internal/errors"

	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&tenantSettingsRow{},
		&assistantRecordRow{},
		&agentActionRow{},
		&confirmationRow{},
		&agentSessionRow{},
	)
}

// --- System A: tenant settings blob ---

func (s *Store) GetSettings(ctx context.Context, tenantID string) (map[string]any, error) {
	var row tenantSettingsRow
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}

	settings := map[string]any{}
	if row.Settings != "" {
		if err := json.Unmarshal([]byte(row.Settings), &settings); err != nil {
			return nil, fmt.Errorf("parse settings blob for tenant %s: %w", tenantID, err)
		}
	}
	return settings, nil
}

// SetSettingsKey writes one key into the tenant's settings blob,
// preserving every sibling key.
func (s *Store) SetSettingsKey(ctx context.Context, tenantID, key string, value any) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		var row tenantSettingsRow
		err := tx.Where("tenant_id = ?", tenantID).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = tenantSettingsRow{TenantID: tenantID, Settings: "{}", CreatedAt: now}
			err = nil
		}
		if err != nil {
			return fmt.Errorf("get settings: %w", err)
		}

		settings := map[string]any{}
		if row.Settings != "" {
			if err := json.Unmarshal([]byte(row.Settings), &settings); err != nil {
				return fmt.Errorf("parse settings blob: %w", err)
			}
		}
		settings[key] = value

		encoded, err := json.Marshal(settings)
		if err != nil {
			return fmt.Errorf("encode settings blob: %w", err)
		}
		row.Settings = string(encoded)
		row.UpdatedAt = now

		return tx.Save(&row).Error
	})
}

// RemoveSettingsKey deletes one key from the tenant's settings blob,
// preserving every sibling key. Removing an absent key is a no-op.
func (s *Store) RemoveSettingsKey(ctx context.Context, tenantID, key string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row tenantSettingsRow
		err := tx.Where("tenant_id = ?", tenantID).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get settings: %w", err)
		}

		settings := map[string]any{}
		if row.Settings != "" {
			if err := json.Unmarshal([]byte(row.Settings), &settings); err != nil {
				return fmt.Errorf("parse settings blob: %w", err)
			}
		}
		if _, ok := settings[key]; !ok {
			return nil
		}
		delete(settings, key)

		encoded, err := json.Marshal(settings)
		if err != nil {
			return fmt.Errorf("encode settings blob: %w", err)
		}
		row.Settings = string(encoded)
		row.UpdatedAt = time.Now().UTC()

		return tx.Save(&row).Error
	})
}

// AllSettings returns every tenant's parsed settings blob.
func (s *Store) AllSettings(ctx context.Context) ([]TenantSettings, error) {
	var rows []tenantSettingsRow
	if err := s.db.WithContext(ctx).Order("tenant_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}

	out := make([]TenantSettings, 0, len(rows))
	for _, row := range rows {
		settings := map[string]any{}
		if row.Settings != "" {
			if err := json.Unmarshal([]byte(row.Settings), &settings); err != nil {
				return nil, fmt.Errorf("parse settings blob for tenant %s: %w", row.TenantID, err)
			}
		}
		out = append(out, TenantSettings{TenantID: row.TenantID, Settings: settings})
	}
	return out, nil
}

// --- System B: assistant records ---

func (s *Store) GetAssistantRecord(ctx context.Context, tenantID string) (AssistantRecord, error) {
	var row assistantRecordRow
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AssistantRecord{}, featlyErrors.NotFound("assistant record for tenant " + tenantID)
		}
		return AssistantRecord{}, fmt.Errorf("get assistant record: %w", err)
	}
	return row.toRecord(), nil
}

func (s *Store) SaveAssistantRecord(ctx context.Context, rec AssistantRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	row := assistantRecordRowFromRecord(rec)
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save assistant record: %w", err)
	}
	return nil
}

func (s *Store) DeleteAssistantRecord(ctx context.Context, tenantID string) error {
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Delete(&assistantRecordRow{}).Error; err != nil {
		return fmt.Errorf("delete assistant record: %w", err)
	}
	return nil
}

func (s *Store) ListAssistantRecords(ctx context.Context) ([]AssistantRecord, error) {
	var rows []assistantRecordRow
	if err := s.db.WithContext(ctx).Order("tenant_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list assistant records: %w", err)
	}
	out := make([]AssistantRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

// --- Agent actions ---

func (s *Store) CreateAction(ctx context.Context, rec AgentAction) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	row := agentActionRowFromRecord(rec)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create action: %w", err)
	}
	return nil
}

func (s *Store) GetAction(ctx context.Context, actionID string) (AgentAction, error) {
	var row agentActionRow
	err := s.db.WithContext(ctx).Where("id = ?", actionID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AgentAction{}, featlyErrors.NotFound("action " + actionID)
		}
		return AgentAction{}, fmt.Errorf("get action: %w", err)
	}
	return row.toRecord(), nil
}

func (s *Store) SaveAction(ctx context.Context, rec AgentAction) error {
	row := agentActionRowFromRecord(rec)
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save action: %w", err)
	}
	return nil
}

func (s *Store) ListActions(ctx context.Context, tenantID, userID string, limit int) ([]AgentAction, error) {
	q := s.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []agentActionRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	out := make([]AgentAction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

// --- Confirmations ---

func (s *Store) CreateConfirmation(ctx context.Context, rec Confirmation) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	row := confirmationRowFromRecord(rec)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create confirmation: %w", err)
	}
	return nil
}

func (s *Store) GetConfirmation(ctx context.Context, confirmationID string) (Confirmation, error) {
	var row confirmationRow
	err := s.db.WithContext(ctx).Where("id = ?", confirmationID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Confirmation{}, featlyErrors.NotFound("confirmation " + confirmationID)
		}
		return Confirmation{}, fmt.Errorf("get confirmation: %w", err)
	}
	return row.toRecord(), nil
}

func (s *Store) SaveConfirmation(ctx context.Context, rec Confirmation) error {
	row := confirmationRowFromRecord(rec)
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save confirmation: %w", err)
	}
	return nil
}

func (s *Store) ListConfirmationsForAction(ctx context.Context, actionID string) ([]Confirmation, error) {
	var rows []confirmationRow
	err := s.db.WithContext(ctx).
		Where("action_id = ?", actionID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list confirmations: %w", err)
	}
	out := make([]Confirmation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

// ListPendingConfirmations returns unanswered, unexpired confirmations
// whose owning action belongs to the given tenant and user.
func (s *Store) ListPendingConfirmations(ctx context.Context, tenantID, userID string, now time.Time) ([]Confirmation, error) {
	var rows []confirmationRow
	err := s.db.WithContext(ctx).
		Joins("JOIN agent_actions ON agent_actions.id = confirmations.action_id").
		Where("agent_actions.tenant_id = ? AND agent_actions.user_id = ?", tenantID, userID).
		Where("confirmations.response = '' AND confirmations.expires_at > ?", now).
		Order("confirmations.created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list pending confirmations: %w", err)
	}
	out := make([]Confirmation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

// ListOverdueConfirmations returns unanswered confirmations past their expiry.
func (s *Store) ListOverdueConfirmations(ctx context.Context, now time.Time) ([]Confirmation, error) {
	var rows []confirmationRow
	err := s.db.WithContext(ctx).
		Where("response = '' AND expires_at <= ?", now).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list overdue confirmations: %w", err)
	}
	out := make([]Confirmation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

// --- Agent sessions ---

func (s *Store) GetSession(ctx context.Context, tenantID, userID string, mode SessionMode) (AgentSession, error) {
	var row agentSessionRow
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ? AND mode = ?", tenantID, userID, string(mode)).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AgentSession{}, featlyErrors.NotFound("session")
		}
		return AgentSession{}, fmt.Errorf("get session: %w", err)
	}
	return row.toRecord(), nil
}

func (s *Store) SaveSession(ctx context.Context, rec AgentSession) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	row := agentSessionRowFromRecord(rec)
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
