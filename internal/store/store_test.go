package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/featly/featly/internal/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := db.Open("sqlite", filepath.Join(t.TempDir(), "featly.db"))
	require.NoError(t, err)
	s, err := New(gdb)
	require.NoError(t, err)
	return s
}

func TestSettingsKeyRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetSettingsKey(ctx, "t1", "theme", "dark"))
	require.NoError(t, s.SetSettingsKey(ctx, "t1", SettingsKeyAssistantID, "asst_1"))

	settings, err := s.GetSettings(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "dark", settings["theme"])
	assert.Equal(t, "asst_1", settings[SettingsKeyAssistantID])
}

func TestRemoveSettingsKeyPreservesSiblings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetSettingsKey(ctx, "t1", "theme", "dark"))
	require.NoError(t, s.SetSettingsKey(ctx, "t1", "locale", "en-US"))
	require.NoError(t, s.SetSettingsKey(ctx, "t1", SettingsKeyAssistantID, "asst_1"))

	require.NoError(t, s.RemoveSettingsKey(ctx, "t1", SettingsKeyAssistantID))

	settings, err := s.GetSettings(ctx, "t1")
	require.NoError(t, err)
	assert.NotContains(t, settings, SettingsKeyAssistantID)
	assert.Equal(t, "dark", settings["theme"])
	assert.Equal(t, "en-US", settings["locale"])
}

func TestRemoveSettingsKeyMissingTenant(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.RemoveSettingsKey(context.Background(), "ghost", SettingsKeyAssistantID))
}

func TestAssistantRecordRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := AssistantRecord{
		TenantID:      "t1",
		AssistantID:   "asst_1",
		VectorStoreID: "vs_1",
		FileIDs:       []string{"file_1", "file_2"},
		LastSyncedAt:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveAssistantRecord(ctx, rec))

	got, err := s.GetAssistantRecord(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "asst_1", got.AssistantID)
	assert.Equal(t, "vs_1", got.VectorStoreID)
	assert.Equal(t, []string{"file_1", "file_2"}, got.FileIDs)
	assert.False(t, got.LastSyncedAt.IsZero())

	require.NoError(t, s.DeleteAssistantRecord(ctx, "t1"))
	_, err = s.GetAssistantRecord(ctx, "t1")
	assert.Error(t, err)
}

func TestActionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	action := AgentAction{
		ID:                   "act_1",
		UserID:               "u1",
		TenantID:             "t1",
		FunctionName:         "createFeature",
		Parameters:           json.RawMessage(`{"name":"SSO"}`),
		RequiresConfirmation: true,
		EntityType:           "feature",
		OperationType:        "create",
		Status:               ActionPending,
	}
	require.NoError(t, s.CreateAction(ctx, action))

	got, err := s.GetAction(ctx, "act_1")
	require.NoError(t, err)
	assert.Equal(t, ActionPending, got.Status)
	assert.JSONEq(t, `{"name":"SSO"}`, string(got.Parameters))

	got.Status = ActionCompleted
	now := time.Now().UTC()
	got.CompletedAt = &now
	require.NoError(t, s.SaveAction(ctx, got))

	got, err = s.GetAction(ctx, "act_1")
	require.NoError(t, err)
	assert.Equal(t, ActionCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestPendingConfirmationsScopedToOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.CreateAction(ctx, AgentAction{ID: "act_1", UserID: "u1", TenantID: "t1", FunctionName: "deleteRelease", Status: ActionPending}))
	require.NoError(t, s.CreateAction(ctx, AgentAction{ID: "act_2", UserID: "u2", TenantID: "t1", FunctionName: "deleteRelease", Status: ActionPending}))

	require.NoError(t, s.CreateConfirmation(ctx, Confirmation{ID: "conf_1", ActionID: "act_1", Title: "Delete release?", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.CreateConfirmation(ctx, Confirmation{ID: "conf_2", ActionID: "act_2", Title: "Delete release?", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.CreateConfirmation(ctx, Confirmation{ID: "conf_3", ActionID: "act_1", Title: "Expired", ExpiresAt: now.Add(-time.Hour)}))

	pending, err := s.ListPendingConfirmations(ctx, "t1", "u1", now)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "conf_1", pending[0].ID)

	overdue, err := s.ListOverdueConfirmations(ctx, now)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "conf_3", overdue[0].ID)
}

func TestSessionScopeUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, AgentSession{ID: "sess_1", UserID: "u1", TenantID: "t1", Mode: ModeAgent, ThreadID: "thread_1", Status: SessionActive}))

	got, err := s.GetSession(ctx, "t1", "u1", ModeAgent)
	require.NoError(t, err)
	assert.Equal(t, "thread_1", got.ThreadID)

	_, err = s.GetSession(ctx, "t1", "u1", ModeAsk)
	assert.Error(t, err)
}
