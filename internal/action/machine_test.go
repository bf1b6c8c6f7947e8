package action

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/featly/featly/internal/config"
	"github.com/featly/featly/internal/db"
	"github.com/featly/featly/internal/domain"
	"github.com/featly/featly/internal/errors"
	"github.com/featly/featly/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMachine(t *testing.T) *Machine {
	t.Helper()
	gdb, err := db.Open("sqlite", filepath.Join(t.TempDir(), "featly.db"))
	require.NoError(t, err)
	st, err := store.New(gdb)
	require.NoError(t, err)

	m, err := NewMachine(st, config.ConfirmationConfig{})
	require.NoError(t, err)
	return m
}

func propose(t *testing.T, m *Machine, functionName string) store.AgentAction {
	t.Helper()
	act, err := m.Propose(context.Background(), ProposeInput{
		TenantID:     "t1",
		UserID:       "u1",
		FunctionName: functionName,
		Parameters:   json.RawMessage(`{"name":"Atlas"}`),
	})
	require.NoError(t, err)
	return act
}

func confirmFor(t *testing.T, m *Machine, actionID string) store.Confirmation {
	t.Helper()
	conf, err := m.CreateConfirmation(context.Background(), "t1", "u1", ConfirmationInput{
		ActionID:   actionID,
		DialogType: "confirm",
		Title:      "Create product?",
		Message:    "The agent wants to create product Atlas.",
	})
	require.NoError(t, err)
	return conf
}

func TestParseFunction(t *testing.T) {
	tests := []struct {
		name      string
		op        Operation
		entity    domain.EntityType
		wantError bool
	}{
		{name: "create_product", op: OpCreate, entity: domain.EntityProduct},
		{name: "update_feature", op: OpUpdate, entity: domain.EntityFeature},
		{name: "delete_release", op: OpDelete, entity: domain.EntityRelease},
		{name: "get_requirement", op: OpGet, entity: domain.EntityRequirement},
		{name: "list_roadmaps", op: OpList, entity: domain.EntityRoadmap},
		{name: "drop_table", wantError: true},
		{name: "create_invoice", wantError: true},
		{name: "nonsense", wantError: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			op, entity, err := ParseFunction(tc.name)
			if tc.wantError {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.op, op)
			assert.Equal(t, tc.entity, entity)
		})
	}
}

func TestClassify(t *testing.T) {
	for _, destructive := range []string{"create_product", "update_feature", "delete_roadmap"} {
		assert.True(t, Classify(destructive), destructive)
	}
	for _, safe := range []string{"get_product", "list_features"} {
		assert.False(t, Classify(safe), safe)
	}
	// Anything unrecognized is treated as destructive.
	assert.True(t, Classify("drop_everything"))
}

func TestProposeClassifies(t *testing.T) {
	m := newMachine(t)

	act := propose(t, m, "delete_product")
	assert.True(t, act.RequiresConfirmation)
	assert.Equal(t, "product", act.EntityType)
	assert.Equal(t, "delete", act.OperationType)
	assert.Equal(t, store.ActionPending, act.Status)

	act = propose(t, m, "list_products")
	assert.False(t, act.RequiresConfirmation)
}

func TestCreateConfirmationOwnership(t *testing.T) {
	m := newMachine(t)
	act := propose(t, m, "delete_product")

	_, err := m.CreateConfirmation(context.Background(), "t2", "u1", ConfirmationInput{ActionID: act.ID})
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = m.CreateConfirmation(context.Background(), "t1", "u2", ConfirmationInput{ActionID: act.ID})
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = m.CreateConfirmation(context.Background(), "t1", "u1", ConfirmationInput{ActionID: "missing"})
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRespondConfirm(t *testing.T) {
	m := newMachine(t)
	act := propose(t, m, "delete_product")
	conf := confirmFor(t, m, act.ID)
	ctx := context.Background()

	answered, err := m.Respond(ctx, conf.ID, store.ResponseConfirmed, nil)
	require.NoError(t, err)
	assert.Equal(t, store.ResponseConfirmed, answered.Response)
	assert.NotNil(t, answered.RespondedAt)

	got, err := m.ConfirmedAction(ctx, act.ID, "t1", "u1", "delete_product")
	require.NoError(t, err)
	assert.Equal(t, store.ActionConfirmed, got.Status)
	assert.NotNil(t, got.ConfirmedAt)
}

func TestRespondIdempotentSameAnswer(t *testing.T) {
	m := newMachine(t)
	act := propose(t, m, "delete_product")
	conf := confirmFor(t, m, act.ID)
	ctx := context.Background()

	_, err := m.Respond(ctx, conf.ID, store.ResponseRejected, nil)
	require.NoError(t, err)

	// Same answer again is accepted as a no-op.
	again, err := m.Respond(ctx, conf.ID, store.ResponseRejected, nil)
	require.NoError(t, err)
	assert.Equal(t, store.ResponseRejected, again.Response)

	// A different answer after a terminal state is not.
	_, err = m.Respond(ctx, conf.ID, store.ResponseConfirmed, nil)
	assert.ErrorIs(t, err, errors.ErrConflict)
}

func TestRespondUnknownAnswer(t *testing.T) {
	m := newMachine(t)
	act := propose(t, m, "delete_product")
	conf := confirmFor(t, m, act.ID)

	_, err := m.Respond(context.Background(), conf.ID, "maybe", nil)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestRespondAfterExpiry(t *testing.T) {
	m := newMachine(t)
	act := propose(t, m, "delete_product")
	conf := confirmFor(t, m, act.ID)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err := m.Respond(context.Background(), conf.ID, store.ResponseConfirmed, nil)
	assert.ErrorIs(t, err, errors.ErrConflict)
}

func TestConfirmedActionGuards(t *testing.T) {
	m := newMachine(t)
	act := propose(t, m, "delete_product")
	ctx := context.Background()

	// Still pending: resubmission must not execute.
	_, err := m.ConfirmedAction(ctx, act.ID, "t1", "u1", "delete_product")
	assert.ErrorIs(t, err, errors.ErrConfirmationRequired)

	conf := confirmFor(t, m, act.ID)
	_, err = m.Respond(ctx, conf.ID, store.ResponseConfirmed, nil)
	require.NoError(t, err)

	// Confirmed, but for a different function.
	_, err = m.ConfirmedAction(ctx, act.ID, "t1", "u1", "delete_feature")
	assert.ErrorIs(t, err, errors.ErrValidation)

	// Wrong owner still reads as missing.
	_, err = m.ConfirmedAction(ctx, act.ID, "t1", "u2", "delete_product")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestMarkCompletedAndFailed(t *testing.T) {
	m := newMachine(t)
	ctx := context.Background()

	done := propose(t, m, "create_product")
	require.NoError(t, m.MarkCompleted(ctx, done.ID, json.RawMessage(`{"id":"p1"}`)))
	got, err := m.store.GetAction(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ActionCompleted, got.Status)
	assert.JSONEq(t, `{"id":"p1"}`, string(got.Result))
	assert.NotNil(t, got.CompletedAt)

	failed := propose(t, m, "create_product")
	require.NoError(t, m.MarkFailed(ctx, failed.ID, "boom"))
	got, err = m.store.GetAction(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ActionFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}

func TestCleanupExpired(t *testing.T) {
	m := newMachine(t)
	ctx := context.Background()

	expired := propose(t, m, "delete_product")
	_, err := m.CreateConfirmation(ctx, "t1", "u1", ConfirmationInput{ActionID: expired.ID, ExpiresInMins: 1})
	require.NoError(t, err)

	fresh := propose(t, m, "delete_feature")
	confirmFor(t, m, fresh.ID)

	m.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	swept, err := m.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	got, err := m.store.GetAction(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ActionCancelled, got.Status)

	got, err = m.store.GetAction(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ActionPending, got.Status)

	// A second sweep finds nothing new.
	swept, err = m.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, swept)
}
