package store

import (
	"encoding/json"
	"time"
)

// SettingsKeyAssistantID is the key inside the tenant settings blob
// (System A) recording the tenant's assistant. Sibling keys in the blob
// belong to other parts of the application and must never be disturbed.
const SettingsKeyAssistantID = "openai_assistant_id"

// TenantSettings is a tenant's System A settings blob, parsed.
type TenantSettings struct {
	TenantID string
	Settings map[string]any
}

// AssistantRecord is the System B row: the dedicated assistant-tracking
// record with the attached corpus files and last sync time.
type AssistantRecord struct {
	TenantID      string
	AssistantID   string
	VectorStoreID string
	FileIDs       []string
	LastSyncedAt  time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionConfirmed ActionStatus = "confirmed"
	ActionRejected  ActionStatus = "rejected"
	ActionCancelled ActionStatus = "cancelled"
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
)

// Terminal reports whether the action can change no further.
func (s ActionStatus) Terminal() bool {
	switch s {
	case ActionRejected, ActionCancelled, ActionCompleted, ActionFailed:
		return true
	}
	return false
}

// AgentAction is one proposed or executed agent operation. Rows are
// never deleted; they form the audit trail.
type AgentAction struct {
	ID                   string
	UserID               string
	TenantID             string
	SessionID            string
	FunctionName         string
	Parameters           json.RawMessage
	RequiresConfirmation bool
	EntityType           string
	OperationType        string
	Status               ActionStatus
	Result               json.RawMessage
	Error                string
	CreatedAt            time.Time
	ConfirmedAt          *time.Time
	CompletedAt          *time.Time
}

type ConfirmationResponse string

const (
	ResponseConfirmed ConfirmationResponse = "confirmed"
	ResponseRejected  ConfirmationResponse = "rejected"
	ResponseCancelled ConfirmationResponse = "cancelled"
)

// Confirmation is the dialog record attached to an AgentAction.
type Confirmation struct {
	ID              string
	ActionID        string
	DialogType      string
	Title           string
	Message         string
	Details         json.RawMessage
	ExpiresAt       time.Time
	Response        ConfirmationResponse
	ResponseDetails json.RawMessage
	RespondedAt     *time.Time
	CreatedAt       time.Time
}

type SessionMode string

const (
	ModeAsk   SessionMode = "ask"
	ModeAgent SessionMode = "agent"
)

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

// AgentSession groups a user+tenant+mode with its provider thread.
type AgentSession struct {
	ID        string
	UserID    string
	TenantID  string
	Mode      SessionMode
	ThreadID  string
	Status    SessionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type tenantSettingsRow struct {
	TenantID  string    `gorm:"primaryKey;size:191"`
	Settings  string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (tenantSettingsRow) TableName() string {
	return "tenant_settings"
}

type assistantRecordRow struct {
	TenantID      string     `gorm:"primaryKey;size:191"`
	AssistantID   string     `gorm:"size:191;not null"`
	VectorStoreID string     `gorm:"size:191"`
	FileIDs       string     `gorm:"type:text"`
	LastSyncedAt  *time.Time `gorm:""`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null"`
}

func (assistantRecordRow) TableName() string {
	return "assistant_records"
}

func (r assistantRecordRow) toRecord() AssistantRecord {
	rec := AssistantRecord{
		TenantID:      r.TenantID,
		AssistantID:   r.AssistantID,
		VectorStoreID: r.VectorStoreID,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.FileIDs != "" {
		_ = json.Unmarshal([]byte(r.FileIDs), &rec.FileIDs)
	}
	if r.LastSyncedAt != nil {
		rec.LastSyncedAt = *r.LastSyncedAt
	}
	return rec
}

func assistantRecordRowFromRecord(rec AssistantRecord) assistantRecordRow {
	row := assistantRecordRow{
		TenantID:      rec.TenantID,
		AssistantID:   rec.AssistantID,
		VectorStoreID: rec.VectorStoreID,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
	if len(rec.FileIDs) > 0 {
		if encoded, err := json.Marshal(rec.FileIDs); err == nil {
			row.FileIDs = string(encoded)
		}
	}
	if !rec.LastSyncedAt.IsZero() {
		t := rec.LastSyncedAt
		row.LastSyncedAt = &t
	}
	return row
}

type agentActionRow struct {
	ID                   string     `gorm:"primaryKey;size:64"`
	UserID               string     `gorm:"size:191;not null;index:idx_actions_owner,priority:2"`
	TenantID             string     `gorm:"size:191;not null;index:idx_actions_owner,priority:1"`
	SessionID            string     `gorm:"size:64;index"`
	FunctionName         string     `gorm:"size:191;not null"`
	Parameters           string     `gorm:"type:text"`
	RequiresConfirmation bool       `gorm:"not null"`
	EntityType           string     `gorm:"size:64"`
	OperationType        string     `gorm:"size:64"`
	Status               string     `gorm:"size:32;not null;index"`
	Result               string     `gorm:"type:text"`
	Error                string     `gorm:"type:text"`
	CreatedAt            time.Time  `gorm:"not null"`
	ConfirmedAt          *time.Time `gorm:""`
	CompletedAt          *time.Time `gorm:""`
}

func (agentActionRow) TableName() string {
	return "agent_actions"
}

func (r agentActionRow) toRecord() AgentAction {
	rec := AgentAction{
		ID:                   r.ID,
		UserID:               r.UserID,
		TenantID:             r.TenantID,
		SessionID:            r.SessionID,
		FunctionName:         r.FunctionName,
		RequiresConfirmation: r.RequiresConfirmation,
		EntityType:           r.EntityType,
		OperationType:        r.OperationType,
		Status:               ActionStatus(r.Status),
		Error:                r.Error,
		CreatedAt:            r.CreatedAt,
		ConfirmedAt:          r.ConfirmedAt,
		CompletedAt:          r.CompletedAt,
	}
	if r.Parameters != "" {
		rec.Parameters = json.RawMessage(r.Parameters)
	}
	if r.Result != "" {
		rec.Result = json.RawMessage(r.Result)
	}
	return rec
}

func agentActionRowFromRecord(rec AgentAction) agentActionRow {
	return agentActionRow{
		ID:                   rec.ID,
		UserID:               rec.UserID,
		TenantID:             rec.TenantID,
		SessionID:            rec.SessionID,
		FunctionName:         rec.FunctionName,
		Parameters:           string(rec.Parameters),
		RequiresConfirmation: rec.RequiresConfirmation,
		EntityType:           rec.EntityType,
		OperationType:        rec.OperationType,
		Status:               string(rec.Status),
		Result:               string(rec.Result),
		Error:                rec.Error,
		CreatedAt:            rec.CreatedAt,
		ConfirmedAt:          rec.ConfirmedAt,
		CompletedAt:          rec.CompletedAt,
	}
}

type confirmationRow struct {
	ID              string     `gorm:"primaryKey;size:64"`
	ActionID        string     `gorm:"size:64;not null;index"`
	DialogType      string     `gorm:"size:64"`
	Title           string     `gorm:"size:255"`
	Message         string     `gorm:"type:text"`
	Details         string     `gorm:"type:text"`
	ExpiresAt       time.Time  `gorm:"not null;index"`
	Response        string     `gorm:"size:32"`
	ResponseDetails string     `gorm:"type:text"`
	RespondedAt     *time.Time `gorm:""`
	CreatedAt       time.Time  `gorm:"not null"`
}

func (confirmationRow) TableName() string {
	return "confirmations"
}

func (r confirmationRow) toRecord() Confirmation {
	rec := Confirmation{
		ID:          r.ID,
		ActionID:    r.ActionID,
		DialogType:  r.DialogType,
		Title:       r.Title,
		Message:     r.Message,
		ExpiresAt:   r.ExpiresAt,
		Response:    ConfirmationResponse(r.Response),
		RespondedAt: r.RespondedAt,
		CreatedAt:   r.CreatedAt,
	}
	if r.Details != "" {
		rec.Details = json.RawMessage(r.Details)
	}
	if r.ResponseDetails != "" {
		rec.ResponseDetails = json.RawMessage(r.ResponseDetails)
	}
	return rec
}

func confirmationRowFromRecord(rec Confirmation) confirmationRow {
	return confirmationRow{
		ID:              rec.ID,
		ActionID:        rec.ActionID,
		DialogType:      rec.DialogType,
		Title:           rec.Title,
		Message:         rec.Message,
		Details:         string(rec.Details),
		ExpiresAt:       rec.ExpiresAt,
		Response:        string(rec.Response),
		ResponseDetails: string(rec.ResponseDetails),
		RespondedAt:     rec.RespondedAt,
		CreatedAt:       rec.CreatedAt,
	}
}

type agentSessionRow struct {
	ID        string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"size:191;not null;uniqueIndex:idx_sessions_scope,priority:2"`
	TenantID  string    `gorm:"size:191;not null;uniqueIndex:idx_sessions_scope,priority:1"`
	Mode      string    `gorm:"size:16;not null;uniqueIndex:idx_sessions_scope,priority:3"`
	ThreadID  string    `gorm:"size:191"`
	Status    string    `gorm:"size:32;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (agentSessionRow) TableName() string {
	return "agent_sessions"
}

func (r agentSessionRow) toRecord() AgentSession {
	return AgentSession{
		ID:        r.ID,
		UserID:    r.UserID,
		TenantID:  r.TenantID,
		Mode:      SessionMode(r.Mode),
		ThreadID:  r.ThreadID,
		Status:    SessionStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func agentSessionRowFromRecord(rec AgentSession) agentSessionRow {
	return agentSessionRow{
		ID:        rec.ID,
		UserID:    rec.UserID,
		TenantID:  rec.TenantID,
		Mode:      string(rec.Mode),
		ThreadID:  rec.ThreadID,
		Status:    string(rec.Status),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}
